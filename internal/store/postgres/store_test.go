package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radieske/coinflip-vault/internal/shared/db"
	"github.com/radieske/coinflip-vault/internal/store/postgres"
	"github.com/radieske/coinflip-vault/internal/vault"
)

// Roda só com um Postgres descartável: POSTGRES_TEST_DSN=postgres://... go test ./internal/store/postgres
func TestStoreAgainstPostgres(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}
	ctx := context.Background()
	conn, err := db.ConnectPostgres(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	st := postgres.New(conn)
	require.NoError(t, st.Migrate(ctx))
	_, err = conn.ExecContext(ctx, `
		TRUNCATE vault_balances, vault_bets, vault_open_counts, vault_daily_usage, vault_notifications, vault_outbox, vault_flows;
		UPDATE vault_state SET config=NULL, contract='', version='', next_bet_id=0, last_height=0, last_time=0 WHERE id=1`)
	require.NoError(t, err)

	e := vault.NewEngine(st, nil)
	env := vault.Env{Height: 1, Time: 1_700_000_000}
	_, err = e.Instantiate(ctx, env, "admin", vault.InstantiateMsg{
		Token: "token", Treasury: "treasury", CommissionBps: 1000,
		MinBet: vault.NewAmount(10), RevealTimeoutSecs: 300, MaxOpenPerUser: 10,
		MaxDailyAmountPerUser: vault.NewAmount(10_000),
	})
	require.NoError(t, err)

	for _, acct := range []string{"maker", "acceptor"} {
		_, err = e.Receive(ctx, env, "token", vault.DepositNotification{
			ID: "dep-" + acct, Sender: acct, Amount: vault.NewAmount(1000), Msg: []byte(`{"deposit":{}}`),
		})
		require.NoError(t, err)
	}

	secret := []byte("pg")
	c, err := vault.Commit("maker", vault.Heads, secret)
	require.NoError(t, err)
	res, err := e.CreateBet(ctx, env, "maker", vault.NewAmount(200), c)
	require.NoError(t, err)
	_, err = e.AcceptBet(ctx, env, "acceptor", res.BetID, vault.Tails)
	require.NoError(t, err)
	_, err = e.Reveal(ctx, env, "maker", res.BetID, vault.Heads, secret)
	require.NoError(t, err)

	bal, err := vault.NewQueryService(st).VaultBalance(ctx, "maker")
	require.NoError(t, err)
	require.Equal(t, "1160", bal.Available.String())

	pending, err := st.PendingOutbox(ctx, 100)
	require.NoError(t, err)
	require.NotEmpty(t, pending)

	_, err = e.Withdraw(ctx, vault.Env{Height: 0, Time: env.Time}, "maker", vault.NewAmount(1))
	require.ErrorIs(t, err, vault.ErrBlockRegression)

	require.NoError(t, st.View(ctx, func(tx vault.ReadTx) error {
		last, err := tx.LastBlock(ctx)
		require.NoError(t, err)
		require.Equal(t, env, last)
		f, err := tx.Flows(ctx, "token")
		require.NoError(t, err)
		require.Equal(t, "2000", f.Credited.String())
		return nil
	}))
}
