package vault

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const maxUint256 = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

func TestParseAmount(t *testing.T) {
	a, err := ParseAmount("1000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000", a.String())

	_, err = ParseAmount(maxUint256)
	require.NoError(t, err)

	for _, bad := range []string{"", "-1", "1.5", "abc", " 1"} {
		_, err := ParseAmount(bad)
		require.ErrorIs(t, err, ErrInvalidAmount, bad)
	}
	_, err = ParseAmount(maxUint256 + "0")
	require.ErrorIs(t, err, ErrOverflow)
}

func TestAmountCheckedMath(t *testing.T) {
	max := MustAmount(maxUint256)

	_, err := max.Add(NewAmount(1))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = NewAmount(1).Sub(NewAmount(2))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = max.Mul(NewAmount(2))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = NewAmount(1).Div(ZeroAmount())
	require.ErrorIs(t, err, ErrDivideByZero)

	assert.True(t, NewAmount(3).SaturatingSub(NewAmount(5)).IsZero())
	assert.Equal(t, "2", NewAmount(5).SaturatingSub(NewAmount(3)).String())
}

func TestAmountJSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		A Amount `json:"a"`
	}{NewAmount(42)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"42"}`, string(raw))

	var out struct {
		A Amount `json:"a"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"7"}`), &out))
	assert.Equal(t, "7", out.A.String())
}

func TestComputePayout(t *testing.T) {
	cases := []struct {
		stake      uint64
		bps        uint16
		commission string
		payout     string
	}{
		{200, 1000, "40", "360"},
		{100, 0, "0", "200"},
		{1, 5000, "1", "1"},
		{3, 333, "0", "6"},
		{10_000, 10_000, "20000", "0"},
	}
	for _, tc := range cases {
		p, err := ComputePayout(NewAmount(tc.stake), tc.bps)
		require.NoError(t, err)
		assert.Equal(t, tc.commission, p.Commission.String(), "stake %d bps %d", tc.stake, tc.bps)
		assert.Equal(t, tc.payout, p.Payout.String(), "stake %d bps %d", tc.stake, tc.bps)
	}

	_, err := ComputePayout(NewAmount(1), 10_001)
	require.ErrorIs(t, err, ErrInvalidCommission)

	_, err = ComputePayout(MustAmount(maxUint256), 1)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestTransition(t *testing.T) {
	all := []BetStatus{StatusOpen, StatusAccepted, StatusRevealed, StatusCanceled, StatusTimeoutClaimed}
	allowed := map[BetStatus]map[action]BetStatus{
		StatusOpen: {
			actionCancel:          StatusCanceled,
			actionAccept:          StatusAccepted,
			actionAcceptAndReveal: StatusRevealed,
		},
		StatusAccepted: {
			actionReveal:       StatusRevealed,
			actionClaimTimeout: StatusTimeoutClaimed,
		},
	}
	actions := []action{actionCancel, actionAccept, actionReveal, actionAcceptAndReveal, actionClaimTimeout}

	for _, from := range all {
		for _, a := range actions {
			next, err := transition(from, a)
			want, ok := allowed[from][a]
			if !ok {
				require.ErrorIs(t, err, ErrInvalidStateTransition, "%s/%s", from, a)
				assert.Equal(t, from, next)
				assert.Contains(t, err.Error(), from.String())
				continue
			}
			require.NoError(t, err, "%s/%s", from, a)
			assert.Equal(t, want, next)
		}
		assert.Equal(t, len(allowed[from]) == 0, from.Terminal(), from.String())
	}
}

func TestErrorKinds(t *testing.T) {
	assert.Equal(t, KindAuthorization, KindOf(ErrSelfAcceptNotAllowed))
	assert.Equal(t, KindState, KindOf(BetNotFound(3)))
	assert.Equal(t, KindResource, KindOf(insufficient(NewAmount(2), NewAmount(1))))
	assert.Equal(t, KindArithmetic, KindOf(ErrOverflow))
	assert.Equal(t, KindInternal, KindOf(assert.AnError))
	assert.Equal(t, "bet_not_found", CodeOf(BetNotFound(3)))
	assert.Equal(t, "internal", CodeOf(assert.AnError))
}

func TestDailyBucket(t *testing.T) {
	assert.Equal(t, uint64(0), dayBucket(86_399))
	assert.Equal(t, uint64(1), dayBucket(86_400))
}
