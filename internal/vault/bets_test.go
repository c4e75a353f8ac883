package vault_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/radieske/coinflip-vault/internal/store/memory"
	"github.com/radieske/coinflip-vault/internal/vault"
	"github.com/radieske/coinflip-vault/pkg/contracts/events"
)

func TestMakerWinsOnReveal(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	id := f.createBet(maker, 200, vault.Heads)
	f.requireBalance(maker, 800, 200)

	_, err := f.engine.AcceptBet(f.ctx, f.advance(5), acceptor, id, vault.Tails)
	require.NoError(t, err)
	f.requireBalance(acceptor, 800, 200)

	res, err := f.engine.Reveal(f.ctx, f.advance(5), maker, id, vault.Heads, secret)
	require.NoError(t, err)

	f.requireBalance(maker, 1160, 0)
	f.requireBalance(acceptor, 800, 0)
	f.requireBalance(treasury, 40, 0)

	require.Len(t, res.Events, 2)
	assert.Equal(t, vault.EventBetRevealed, res.Events[0].Type)
	winner, _ := res.Events[0].Attr("winner")
	assert.Equal(t, maker, winner)
	assert.Equal(t, vault.EventCommissionPaid, res.Events[1].Type)

	b := f.bet(id)
	assert.Equal(t, "revealed", b.Status)
	require.NotNil(t, b.Winner)
	assert.Equal(t, maker, *b.Winner)
	require.NotNil(t, b.PayoutAmount)
	assert.Equal(t, "360", b.PayoutAmount.String())
	require.NotNil(t, b.CommissionPaid)
	assert.Equal(t, "40", b.CommissionPaid.String())
}

func TestAcceptorWinsWhenGuessMatches(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	id := f.createBet(maker, 200, vault.Tails)
	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.NoError(t, err)
	_, err = f.engine.Reveal(f.ctx, f.env, maker, id, vault.Tails, secret)
	require.NoError(t, err)

	f.requireBalance(acceptor, 1160, 0)
	f.requireBalance(maker, 800, 0)
}

func TestAcceptorClaimsTimeout(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	id := f.createBet(maker, 200, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.NoError(t, err)

	// no prazo exato ainda não dá
	_, err = f.engine.ClaimTimeout(f.ctx, f.advance(300), acceptor, id)
	require.ErrorIs(t, err, vault.ErrRevealNotYetExpired)

	_, err = f.engine.ClaimTimeout(f.ctx, f.advance(1), maker, id)
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	res, err := f.engine.ClaimTimeout(f.ctx, f.env, acceptor, id)
	require.NoError(t, err)
	assert.Equal(t, vault.EventTimeoutClaimed, res.Events[0].Type)

	f.requireBalance(acceptor, 1160, 0)
	f.requireBalance(maker, 800, 0)
	f.requireBalance(treasury, 40, 0)
	assert.Equal(t, "timeoutclaimed", f.bet(id).Status)
}

func TestRevealAfterDeadline(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	id := f.createBet(maker, 100, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Heads)
	require.NoError(t, err)

	_, err = f.engine.Reveal(f.ctx, f.advance(301), maker, id, vault.Heads, secret)
	require.ErrorIs(t, err, vault.ErrRevealTimeoutExpired)
	assert.Equal(t, "accepted", f.bet(id).Status)
}

func TestRevealAtDeadline(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	id := f.createBet(maker, 100, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Heads)
	require.NoError(t, err)

	_, err = f.engine.Reveal(f.ctx, f.advance(300), maker, id, vault.Heads, secret)
	require.NoError(t, err)
}

func TestCreateBetCommitmentLength(t *testing.T) {
	for _, n := range []int{0, 31, 33, 64} {
		f := newFixture(t)
		f.deposit(maker, 1000)

		_, err := f.engine.CreateBet(f.ctx, f.env, maker, vault.NewAmount(100), make([]byte, n))
		require.ErrorIs(t, err, vault.ErrInvalidCommitmentLength, "len %d", n)
		f.requireBalance(maker, 1000, 0)
	}
}

func TestCreateBetMinimum(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)

	_, err := f.engine.CreateBet(f.ctx, f.env, maker, vault.NewAmount(9), commit(t, maker, vault.Heads, secret))
	require.ErrorIs(t, err, vault.ErrBetAmountBelowMinimum)

	id := f.createBet(maker, 10, vault.Heads)
	assert.Equal(t, uint64(1), id)
	f.requireBalance(maker, 990, 10)
}

func TestCreateBetInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 50)

	_, err := f.engine.CreateBet(f.ctx, f.env, maker, vault.NewAmount(51), commit(t, maker, vault.Heads, secret))
	require.ErrorIs(t, err, vault.ErrInsufficientAvailableBalance)
	f.requireBalance(maker, 50, 0)

	// o contador de abertas não pode ter subido
	for i := 0; i < 5; i++ {
		f.createBet(maker, 10, vault.Heads)
	}
}

func TestMaxOpenBets(t *testing.T) {
	f := newFixture(t, func(m *vault.InstantiateMsg) { m.MaxOpenPerUser = 3 })
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	first := f.createBet(maker, 10, vault.Heads)
	second := f.createBet(maker, 10, vault.Heads)
	f.createBet(maker, 10, vault.Heads)

	_, err := f.engine.CreateBet(f.ctx, f.env, maker, vault.NewAmount(10), commit(t, maker, vault.Heads, secret))
	require.ErrorIs(t, err, vault.ErrTooManyOpenBets)

	// cancelar libera uma vaga
	_, err = f.engine.CancelBet(f.ctx, f.env, maker, first)
	require.NoError(t, err)
	f.createBet(maker, 10, vault.Heads)

	_, err = f.engine.CreateBet(f.ctx, f.env, maker, vault.NewAmount(10), commit(t, maker, vault.Heads, secret))
	require.ErrorIs(t, err, vault.ErrTooManyOpenBets)

	// aceitar não libera, resolver libera
	_, err = f.engine.AcceptBet(f.ctx, f.env, acceptor, second, vault.Tails)
	require.NoError(t, err)
	_, err = f.engine.CreateBet(f.ctx, f.env, maker, vault.NewAmount(10), commit(t, maker, vault.Heads, secret))
	require.ErrorIs(t, err, vault.ErrTooManyOpenBets)

	_, err = f.engine.Reveal(f.ctx, f.env, maker, second, vault.Heads, secret)
	require.NoError(t, err)
	f.createBet(maker, 10, vault.Heads)
}

func TestCommitRevealSoundness(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	id := f.createBet(maker, 100, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.NoError(t, err)

	cases := []struct {
		name   string
		side   vault.Side
		secret []byte
	}{
		{"wrong side", vault.Tails, secret},
		{"wrong secret", vault.Heads, []byte("other")},
		{"empty secret", vault.Heads, nil},
		{"secret with suffix", vault.Heads, append(append([]byte(nil), secret...), 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.Reveal(f.ctx, f.env, maker, id, tc.side, tc.secret)
			require.ErrorIs(t, err, vault.ErrCommitmentMismatch)
			assert.Equal(t, "accepted", f.bet(id).Status)
			f.requireBalance(maker, 900, 100)
			f.requireBalance(acceptor, 900, 100)
		})
	}

	_, err = f.engine.Reveal(f.ctx, f.env, maker, id, vault.Heads, secret)
	require.NoError(t, err)
}

func TestCommitmentBindsMaker(t *testing.T) {
	a := commit(t, maker, vault.Heads, secret)
	b := commit(t, carol, vault.Heads, secret)
	assert.NotEqual(t, a, b)
	require.ErrorIs(t, vault.VerifyCommitment(a, carol, vault.Heads, secret), vault.ErrCommitmentMismatch)
	require.NoError(t, vault.VerifyCommitment(a, maker, vault.Heads, secret))
}

func TestNoDoubleSettlement(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)
	f.deposit(carol, 1000)

	id := f.createBet(maker, 100, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.NoError(t, err)
	_, err = f.engine.Reveal(f.ctx, f.env, maker, id, vault.Heads, secret)
	require.NoError(t, err)

	_, err = f.engine.Reveal(f.ctx, f.env, maker, id, vault.Heads, secret)
	require.ErrorIs(t, err, vault.ErrInvalidStateTransition)
	_, err = f.engine.ClaimTimeout(f.ctx, f.advance(1000), acceptor, id)
	require.ErrorIs(t, err, vault.ErrInvalidStateTransition)
	_, err = f.engine.AcceptAndReveal(f.ctx, f.env, carol, id, vault.Heads, vault.Heads, secret)
	require.ErrorIs(t, err, vault.ErrInvalidStateTransition)
	_, err = f.engine.CancelBet(f.ctx, f.env, maker, id)
	require.ErrorIs(t, err, vault.ErrInvalidStateTransition)

	f.requireBalance(maker, 1080, 0)
	f.requireBalance(treasury, 20, 0)
}

func TestAcceptAndRevealByThirdParty(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(carol, 1000)

	id := f.createBet(maker, 100, vault.Heads)

	// o maker não pode ser o acceptor
	_, err := f.engine.AcceptAndReveal(f.ctx, f.env, maker, id, vault.Tails, vault.Heads, secret)
	require.ErrorIs(t, err, vault.ErrSelfAcceptNotAllowed)

	// qualquer outra conta com o preimage resolve
	res, err := f.engine.AcceptAndReveal(f.ctx, f.env, carol, id, vault.Heads, vault.Heads, secret)
	require.NoError(t, err)
	assert.Equal(t, vault.EventAcceptAndReveal, res.Events[0].Type)

	b := f.bet(id)
	assert.Equal(t, "revealed", b.Status)
	require.NotNil(t, b.Acceptor)
	assert.Equal(t, carol, *b.Acceptor)
	assert.Equal(t, carol, *b.Winner)

	f.requireBalance(carol, 1080, 0)
	f.requireBalance(maker, 900, 0)
	f.requireBalance(treasury, 20, 0)
}

func TestAcceptAndRevealMismatchLeavesBetOpen(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(carol, 1000)

	id := f.createBet(maker, 100, vault.Heads)
	_, err := f.engine.AcceptAndReveal(f.ctx, f.env, carol, id, vault.Heads, vault.Tails, secret)
	require.ErrorIs(t, err, vault.ErrCommitmentMismatch)

	assert.Equal(t, "open", f.bet(id).Status)
	f.requireBalance(carol, 1000, 0)
}

func TestAcceptBetRules(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 50)

	id := f.createBet(maker, 100, vault.Heads)

	_, err := f.engine.AcceptBet(f.ctx, f.env, maker, id, vault.Tails)
	require.ErrorIs(t, err, vault.ErrSelfAcceptNotAllowed)

	_, err = f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.ErrorIs(t, err, vault.ErrInsufficientAvailableBalance)

	_, err = f.engine.AcceptBet(f.ctx, f.env, acceptor, 999, vault.Tails)
	require.ErrorIs(t, err, vault.ErrBetNotFound)

	_, err = f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Side(7))
	require.ErrorIs(t, err, vault.ErrInvalidSide)

	f.deposit(acceptor, 50)
	_, err = f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.NoError(t, err)

	_, err = f.engine.AcceptBet(f.ctx, f.env, carol, id, vault.Tails)
	require.ErrorIs(t, err, vault.ErrInvalidStateTransition)
}

func TestAcceptExpiredBet(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	expired := f.createBet(maker, 100, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.advance(10_801), acceptor, expired, vault.Tails)
	require.ErrorIs(t, err, vault.ErrBetExpired)

	// o maker ainda pode cancelar uma aposta expirada
	_, err = f.engine.CancelBet(f.ctx, f.env, maker, expired)
	require.NoError(t, err)

	edge := f.createBet(maker, 100, vault.Heads)
	_, err = f.engine.AcceptBet(f.ctx, f.advance(10_800), acceptor, edge, vault.Tails)
	require.NoError(t, err)
}

func TestAcceptWithTTLDisabled(t *testing.T) {
	ttl := uint64(0)
	f := newFixture(t, func(m *vault.InstantiateMsg) { m.BetTTLSecs = &ttl })
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	id := f.createBet(maker, 100, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.advance(30*86_400), acceptor, id, vault.Tails)
	require.NoError(t, err)
}

func TestCancelBet(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	id := f.createBet(maker, 300, vault.Heads)

	_, err := f.engine.CancelBet(f.ctx, f.env, acceptor, id)
	require.ErrorIs(t, err, vault.ErrUnauthorized)

	res, err := f.engine.CancelBet(f.ctx, f.env, maker, id)
	require.NoError(t, err)
	assert.Equal(t, vault.EventBetCanceled, res.Events[0].Type)
	f.requireBalance(maker, 1000, 0)
	assert.Equal(t, "canceled", f.bet(id).Status)

	accepted := f.createBet(maker, 300, vault.Heads)
	_, err = f.engine.AcceptBet(f.ctx, f.env, acceptor, accepted, vault.Tails)
	require.NoError(t, err)
	_, err = f.engine.CancelBet(f.ctx, f.env, maker, accepted)
	require.ErrorIs(t, err, vault.ErrInvalidStateTransition)
}

func TestBetIDsStrictlyIncrease(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)

	var last uint64
	for i := 0; i < 5; i++ {
		id := f.createBet(maker, 10, vault.Heads)
		require.Greater(t, id, last)
		last = id
	}
	_, err := f.engine.CancelBet(f.ctx, f.env, maker, last)
	require.NoError(t, err)
	assert.Equal(t, last+1, f.createBet(maker, 10, vault.Heads))
}

func TestDailyLimit(t *testing.T) {
	f := newFixture(t, func(m *vault.InstantiateMsg) { m.MaxDailyAmountPerUser = vault.NewAmount(300) })
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)

	first := f.createBet(maker, 200, vault.Heads)
	_, err := f.engine.CreateBet(f.ctx, f.env, maker, vault.NewAmount(200), commit(t, maker, vault.Heads, secret))
	require.ErrorIs(t, err, vault.ErrDailyLimitExceeded)
	f.requireBalance(maker, 800, 200)

	// cancelar não devolve o uso do dia
	_, err = f.engine.CancelBet(f.ctx, f.env, maker, first)
	require.NoError(t, err)
	_, err = f.engine.CreateBet(f.ctx, f.env, maker, vault.NewAmount(200), commit(t, maker, vault.Heads, secret))
	require.ErrorIs(t, err, vault.ErrDailyLimitExceeded)
	f.createBet(maker, 100, vault.Heads)

	// acceptor também é limitado
	f.advance(86_400)
	big := f.createBet(maker, 250, vault.Heads)
	small := f.createBet(maker, 50, vault.Heads)
	_, err = f.engine.AcceptBet(f.ctx, f.env, acceptor, big, vault.Tails)
	require.NoError(t, err)
	_, err = f.engine.AcceptBet(f.ctx, f.env, acceptor, small, vault.Tails)
	require.NoError(t, err)

	_, err = f.engine.CreateBet(f.ctx, f.env, acceptor, vault.NewAmount(10), commit(t, acceptor, vault.Heads, secret))
	require.ErrorIs(t, err, vault.ErrDailyLimitExceeded)
}

func TestDailyLimitDisabled(t *testing.T) {
	f := newFixture(t, func(m *vault.InstantiateMsg) { m.MaxDailyAmountPerUser = vault.ZeroAmount() })
	f.deposit(maker, 100_000)

	for i := 0; i < 5; i++ {
		f.createBet(maker, 10_000, vault.Heads)
	}
}

func TestConservation(t *testing.T) {
	f := newFixture(t, func(m *vault.InstantiateMsg) { m.CommissionBps = 333 })
	f.deposit(maker, 1000)
	f.deposit(acceptor, 777)
	f.deposit(carol, 501)
	want := f.tracked()
	require.Equal(t, "2278", want)

	a := f.createBet(maker, 123, vault.Heads)
	b := f.createBet(maker, 77, vault.Tails)
	c := f.createBet(carol, 55, vault.Heads)
	require.Equal(t, want, f.tracked())

	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, a, vault.Tails)
	require.NoError(t, err)
	_, err = f.engine.AcceptAndReveal(f.ctx, f.env, carol, b, vault.Tails, vault.Tails, secret)
	require.NoError(t, err)
	_, err = f.engine.AcceptBet(f.ctx, f.env, maker, c, vault.Heads)
	require.NoError(t, err)
	require.Equal(t, want, f.tracked())

	_, err = f.engine.Reveal(f.ctx, f.env, maker, a, vault.Heads, secret)
	require.NoError(t, err)
	_, err = f.engine.ClaimTimeout(f.ctx, f.advance(301), maker, c)
	require.NoError(t, err)
	require.Equal(t, want, f.tracked())

	// pot 246 * 333 / 10000 = 8 (floor); pot 154 -> 5; pot 110 -> 3
	f.requireBalance(treasury, 16, 0)

	_, err = f.engine.Withdraw(f.ctx, f.env, acceptor, vault.NewAmount(100))
	require.NoError(t, err)
	require.Equal(t, "2178", f.tracked())
}

func TestRevealByNonMakerIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)
	f.deposit(carol, 1000)

	id := f.createBet(maker, 200, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.NoError(t, err)

	// segredo e lado corretos não bastam
	for _, who := range []string{acceptor, carol} {
		_, err = f.engine.Reveal(f.ctx, f.env, who, id, vault.Heads, secret)
		require.ErrorIs(t, err, vault.ErrUnauthorized, who)
	}

	assert.Equal(t, "accepted", f.bet(id).Status)
	f.requireBalance(maker, 800, 200)
	f.requireBalance(acceptor, 800, 200)
	f.requireBalance(carol, 1000, 0)
	f.requireBalance(treasury, 0, 0)
}

func TestAcceptRejectsDeadlineOverflow(t *testing.T) {
	ttl := uint64(0)
	f := newFixture(t, func(m *vault.InstantiateMsg) { m.BetTTLSecs = &ttl })
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)
	id := f.createBet(maker, 200, vault.Heads)

	f.env = vault.Env{Height: f.env.Height + 1, Time: math.MaxUint64 - 100}
	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.ErrorIs(t, err, vault.ErrOverflow)
	assert.Equal(t, vault.KindArithmetic, vault.KindOf(err))

	_, err = f.engine.AcceptAndReveal(f.ctx, f.env, acceptor, id, vault.Tails, vault.Heads, secret)
	require.ErrorIs(t, err, vault.ErrOverflow)

	assert.Equal(t, "open", f.bet(id).Status)
	f.requireBalance(maker, 800, 200)
	f.requireBalance(acceptor, 1000, 0)

	// sem aceite não há prazo a reclamar
	_, err = f.engine.ClaimTimeout(f.ctx, f.env, acceptor, id)
	require.ErrorIs(t, err, vault.ErrInvalidStateTransition)
}

func TestAcceptRejectsExpiryOverflow(t *testing.T) {
	f := newFixture(t)
	f.env = vault.Env{Height: f.env.Height + 1, Time: math.MaxUint64 - 100}
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)
	id := f.createBet(maker, 200, vault.Heads)

	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.ErrorIs(t, err, vault.ErrOverflow)
	assert.Equal(t, "open", f.bet(id).Status)
	f.requireBalance(acceptor, 1000, 0)
}

func TestBlockRegressionIsRejected(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)
	id := f.createBet(maker, 200, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.advance(100), acceptor, id, vault.Tails)
	require.NoError(t, err)

	// várias operações no mesmo bloco são permitidas
	_, err = f.engine.Withdraw(f.ctx, f.env, carol, vault.NewAmount(1))
	require.ErrorIs(t, err, vault.ErrInsufficientAvailableBalance)

	for _, env := range []vault.Env{
		{Height: f.env.Height - 1, Time: f.env.Time},
		{Height: f.env.Height, Time: f.env.Time - 1},
		{Height: f.env.Height + 1, Time: genesisTime},
	} {
		_, err = f.engine.Reveal(f.ctx, env, maker, id, vault.Heads, secret)
		require.ErrorIs(t, err, vault.ErrBlockRegression)
		assert.Equal(t, vault.KindState, vault.KindOf(err))
	}
	assert.Equal(t, "accepted", f.bet(id).Status)
	f.requireBalance(maker, 800, 200)
	f.requireBalance(acceptor, 800, 200)

	last, err := f.query.Block(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.env, last)

	_, err = f.engine.Reveal(f.ctx, f.advance(1), maker, id, vault.Heads, secret)
	require.NoError(t, err)
}

func TestLateDepositIsCreditedAtLastBlock(t *testing.T) {
	f := newFixture(t)
	f.advance(50)
	f.deposit(maker, 10)

	res, err := f.engine.Receive(f.ctx, vault.Env{Height: 1, Time: 1}, token, vault.DepositNotification{
		ID: "old", Sender: carol, Amount: vault.NewAmount(70), Msg: []byte(`{"deposit":{}}`),
	})
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	f.requireBalance(carol, 70, 0)

	// o bloco não volta
	last, err := f.query.Block(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.env, last)

	// o envelope do outbox sai com o bloco atual
	pending, err := f.store.PendingOutbox(f.ctx, 0)
	require.NoError(t, err)
	var ev events.VaultEvent
	require.NoError(t, json.Unmarshal(pending[len(pending)-1].Payload, &ev))
	assert.Equal(t, f.env.Height, ev.Height)
	assert.Equal(t, f.env.Time, ev.Time)
}

// commitFails roda a operação inteira e derruba a transação no fim
type commitFails struct{ *memory.Store }

var errCommit = errors.New("commit failed")

func (s commitFails) Update(ctx context.Context, fn func(tx vault.Tx) error) error {
	return s.Store.Update(ctx, func(tx vault.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errCommit
	})
}

func TestSettledLoggedOnlyAfterCommit(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 1000)
	f.deposit(acceptor, 1000)
	id := f.createBet(maker, 200, vault.Heads)
	_, err := f.engine.AcceptBet(f.ctx, f.env, acceptor, id, vault.Tails)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	settled := 0
	broken := vault.NewEngine(commitFails{f.store}, zap.New(core))
	broken.OnSettled = func(string, vault.Payout) { settled++ }

	_, err = broken.Reveal(f.ctx, f.env, maker, id, vault.Heads, secret)
	require.ErrorIs(t, err, errCommit)
	assert.Zero(t, logs.FilterMessage("bet settled").Len())
	assert.Zero(t, settled)
	assert.Equal(t, "accepted", f.bet(id).Status)

	ok := vault.NewEngine(f.store, zap.New(core))
	ok.OnSettled = func(string, vault.Payout) { settled++ }
	_, err = ok.Reveal(f.ctx, f.env, maker, id, vault.Heads, secret)
	require.NoError(t, err)

	entries := logs.FilterMessage("bet settled").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.EqualValues(t, id, fields["bet_id"])
	assert.Equal(t, maker, fields["winner"])
	assert.Equal(t, "360", fields["payout"])
	assert.Equal(t, "40", fields["commission"])
	assert.Equal(t, 1, settled)
}
