package leveldb_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"github.com/radieske/coinflip-vault/internal/store/leveldb"
	"github.com/radieske/coinflip-vault/internal/vault"
)

func newStore(t *testing.T) *leveldb.Store {
	t.Helper()
	st, err := leveldb.NewWithStorage(storage.NewMemStorage())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func genesis() vault.InstantiateMsg {
	return vault.InstantiateMsg{
		Token:                 "token",
		Treasury:              "treasury",
		CommissionBps:         1000,
		MinBet:                vault.NewAmount(10),
		RevealTimeoutSecs:     300,
		MaxOpenPerUser:        10,
		MaxDailyAmountPerUser: vault.NewAmount(10_000),
	}
}

func deposit(t *testing.T, e *vault.Engine, env vault.Env, id, account string, amount uint64) {
	t.Helper()
	_, err := e.Receive(context.Background(), env, "token", vault.DepositNotification{
		ID: id, Sender: account, Amount: vault.NewAmount(amount), Msg: []byte(`{"deposit":{}}`),
	})
	require.NoError(t, err)
}

func TestFullBetFlow(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	e := vault.NewEngine(st, nil)
	q := vault.NewQueryService(st)
	env := vault.Env{Height: 1, Time: 1_700_000_000}

	_, err := e.Instantiate(ctx, env, "admin", genesis())
	require.NoError(t, err)
	deposit(t, e, env, "d1", "maker", 1000)
	deposit(t, e, env, "d2", "acceptor", 1000)

	secret := []byte("abc")
	c, err := vault.Commit("maker", vault.Heads, secret)
	require.NoError(t, err)
	res, err := e.CreateBet(ctx, env, "maker", vault.NewAmount(200), c)
	require.NoError(t, err)
	id := res.BetID

	_, err = e.AcceptBet(ctx, env, "acceptor", id, vault.Tails)
	require.NoError(t, err)

	// mismatch não deixa rastro
	_, err = e.Reveal(ctx, env, "maker", id, vault.Tails, secret)
	require.ErrorIs(t, err, vault.ErrCommitmentMismatch)
	b, err := q.Bet(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "accepted", b.Status)

	_, err = e.Reveal(ctx, env, "maker", id, vault.Heads, secret)
	require.NoError(t, err)

	for acct, want := range map[string]string{"maker": "1160", "acceptor": "800", "treasury": "40"} {
		bal, err := q.VaultBalance(ctx, acct)
		require.NoError(t, err)
		assert.Equal(t, want, bal.Available.String(), acct)
		assert.True(t, bal.Locked.IsZero(), acct)
	}

	// notificação repetida
	res, err = e.Receive(ctx, env, "token", vault.DepositNotification{
		ID: "d1", Sender: "maker", Amount: vault.NewAmount(1000), Msg: []byte(`{"deposit":{}}`),
	})
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
}

func TestListBetsOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	e := vault.NewEngine(st, nil)
	q := vault.NewQueryService(st)
	env := vault.Env{Height: 1, Time: 1_700_000_000}

	msg := genesis()
	msg.MaxOpenPerUser = 50
	_, err := e.Instantiate(ctx, env, "admin", msg)
	require.NoError(t, err)
	deposit(t, e, env, "d1", "maker", 10_000)

	c, err := vault.Commit("maker", vault.Tails, []byte("x"))
	require.NoError(t, err)
	for i := 0; i < 25; i++ {
		_, err := e.CreateBet(ctx, env, "maker", vault.NewAmount(10), c)
		require.NoError(t, err)
	}
	_, err = e.CancelBet(ctx, env, "maker", 10)
	require.NoError(t, err)

	after := uint64(8)
	limit := uint32(3)
	page, err := q.OpenBets(ctx, vault.Page{StartAfter: &after, Limit: &limit})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, []uint64{9, 11, 12}, []uint64{page[0].ID, page[1].ID, page[2].ID})

	all, err := q.UserBets(ctx, "maker", vault.Page{})
	require.NoError(t, err)
	assert.Len(t, all, vault.DefaultQueryLimit)
	assert.Equal(t, uint64(1), all[0].ID)
}

func TestResetAndOutbox(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	e := vault.NewEngine(st, nil)
	env := vault.Env{Height: 1, Time: 1_700_000_000}

	_, err := e.Instantiate(ctx, env, "admin", genesis())
	require.NoError(t, err)
	deposit(t, e, env, "d1", "maker", 500)
	_, err = e.Withdraw(ctx, env, "maker", vault.NewAmount(100))
	require.NoError(t, err)

	pending, err := st.PendingOutbox(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 4)
	assert.Equal(t, vault.OutboxEvent, pending[0].Kind)

	for _, rec := range pending[:2] {
		require.NoError(t, st.MarkOutboxSent(ctx, rec.ID, time.Now()))
	}
	pending, err = st.PendingOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	out, err := e.Migrate(ctx, env, vault.MigrateMsg{ResetState: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), out.ClearedEntries)

	var next uint64
	require.NoError(t, st.View(ctx, func(tx vault.ReadTx) error {
		var err error
		next, err = tx.NextBetID(ctx)
		return err
	}))
	assert.Equal(t, uint64(1), next)
}

func TestViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	err := st.View(ctx, func(tx vault.ReadTx) error {
		w, ok := tx.(vault.Tx)
		require.True(t, ok)
		return w.SetNextBetID(ctx, 9)
	})
	require.Error(t, err)

	err = st.View(ctx, func(tx vault.ReadTx) error {
		_, err := tx.Config(ctx)
		return err
	})
	require.ErrorIs(t, err, vault.ErrNotInstantiated)
}

func TestLastBlockAndFlowsPersist(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	e := vault.NewEngine(st, nil)
	env := vault.Env{Height: 5, Time: 1_700_000_000}

	_, err := e.Instantiate(ctx, env, "admin", genesis())
	require.NoError(t, err)
	deposit(t, e, env, "d1", "maker", 500)
	_, err = e.Withdraw(ctx, env, "maker", vault.NewAmount(100))
	require.NoError(t, err)

	_, err = e.Withdraw(ctx, vault.Env{Height: 4, Time: env.Time}, "maker", vault.NewAmount(1))
	require.ErrorIs(t, err, vault.ErrBlockRegression)

	_, err = e.Migrate(ctx, env, vault.MigrateMsg{ResetState: true})
	require.NoError(t, err)

	require.NoError(t, st.View(ctx, func(tx vault.ReadTx) error {
		last, err := tx.LastBlock(ctx)
		require.NoError(t, err)
		assert.Equal(t, env, last)

		f, err := tx.Flows(ctx, "token")
		require.NoError(t, err)
		assert.Equal(t, "500", f.Credited.String())
		assert.Equal(t, "100", f.Instructed.String())
		return nil
	}))
}
