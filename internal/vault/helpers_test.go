package vault_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/radieske/coinflip-vault/internal/store/memory"
	"github.com/radieske/coinflip-vault/internal/vault"
)

const (
	admin    = "admin"
	token    = "token-contract"
	treasury = "treasury"
	maker    = "maker"
	acceptor = "acceptor"
	carol    = "carol"
	self     = "vault-contract"

	genesisTime = uint64(1_700_000_000)
)

var secret = []byte("s3cret-nonce")

// fakeTokens é a visão do ledger externo sobre a conta do vault
type fakeTokens struct {
	held vault.Holdings
	err  error
}

func (f *fakeTokens) Holdings(_ context.Context, tok, account string) (vault.Holdings, error) {
	if f.err != nil {
		return vault.Holdings{}, f.err
	}
	if tok != token || account != self {
		return vault.Holdings{}, nil
	}
	return f.held, nil
}

func mustAdd(t *testing.T, a vault.Amount, n uint64) vault.Amount {
	t.Helper()
	out, err := a.Add(vault.NewAmount(n))
	require.NoError(t, err)
	return out
}

// send é um depósito que o ledger já moveu e notificou
func (f *fixture) send(n uint64) {
	f.tokens.held.Balance = mustAdd(f.t, f.tokens.held.Balance, n)
	f.tokens.held.Notified = mustAdd(f.t, f.tokens.held.Notified, n)
}

// transferIn são tokens que chegam ao vault sem notificação
func (f *fixture) transferIn(n uint64) {
	f.tokens.held.Balance = mustAdd(f.t, f.tokens.held.Balance, n)
}

// apply é o ledger executando uma instrução de saída do vault
func (f *fixture) apply(n uint64) {
	f.t.Helper()
	rest, err := f.tokens.held.Balance.Sub(vault.NewAmount(n))
	require.NoError(f.t, err)
	f.tokens.held.Balance = rest
	f.tokens.held.Applied = mustAdd(f.t, f.tokens.held.Applied, n)
}

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	engine *vault.Engine
	query  *vault.QueryService
	tokens *fakeTokens
	env    vault.Env
	seq    int
}

func defaultGenesis() vault.InstantiateMsg {
	ttl := uint64(10_800)
	return vault.InstantiateMsg{
		Token:                 token,
		Treasury:              treasury,
		CommissionBps:         1000,
		MinBet:                vault.NewAmount(10),
		RevealTimeoutSecs:     300,
		MaxOpenPerUser:        10,
		MaxDailyAmountPerUser: vault.NewAmount(10_000),
		BetTTLSecs:            &ttl,
	}
}

func newFixture(t *testing.T, tweak ...func(*vault.InstantiateMsg)) *fixture {
	t.Helper()
	f := newBareFixture(t)
	msg := defaultGenesis()
	for _, fn := range tweak {
		fn(&msg)
	}
	_, err := f.engine.Instantiate(f.ctx, f.env, admin, msg)
	require.NoError(t, err)
	return f
}

func newBareFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	tokens := &fakeTokens{}
	n := 0
	return &fixture{
		t:     t,
		ctx:   context.Background(),
		store: st,
		engine: vault.NewEngine(st, nil,
			vault.WithTokenLedger(tokens, self),
			vault.WithIDGenerator(func() string { n++; return fmt.Sprintf("msg-%d", n) }),
		),
		query:  vault.NewQueryService(st),
		tokens: tokens,
		env:    vault.Env{Height: 100, Time: genesisTime},
	}
}

// advance avança o bloco em secs segundos
func (f *fixture) advance(secs uint64) vault.Env {
	f.env.Height++
	f.env.Time += secs
	return f.env
}

func (f *fixture) deposit(account string, amount uint64) {
	f.t.Helper()
	f.send(amount)
	f.seq++
	_, err := f.engine.Receive(f.ctx, f.env, token, vault.DepositNotification{
		ID:     fmt.Sprintf("dep-%d", f.seq),
		Sender: account,
		Amount: vault.NewAmount(amount),
		Msg:    []byte(`{"deposit":{}}`),
	})
	require.NoError(f.t, err)
}

func (f *fixture) balance(account string) vault.BalanceResponse {
	f.t.Helper()
	bal, err := f.query.VaultBalance(f.ctx, account)
	require.NoError(f.t, err)
	return bal
}

func (f *fixture) requireBalance(account string, available, locked uint64) {
	f.t.Helper()
	bal := f.balance(account)
	require.Equal(f.t, vault.NewAmount(available).String(), bal.Available.String(), "available of %s", account)
	require.Equal(f.t, vault.NewAmount(locked).String(), bal.Locked.String(), "locked of %s", account)
}

func commit(t *testing.T, maker string, side vault.Side, secret []byte) []byte {
	t.Helper()
	c, err := vault.Commit(maker, side, secret)
	require.NoError(t, err)
	return c
}

func (f *fixture) createBet(from string, amount uint64, side vault.Side) uint64 {
	f.t.Helper()
	res, err := f.engine.CreateBet(f.ctx, f.env, from, vault.NewAmount(amount), commit(f.t, from, side, secret))
	require.NoError(f.t, err)
	require.NotZero(f.t, res.BetID)
	return res.BetID
}

func (f *fixture) bet(id uint64) vault.BetResponse {
	f.t.Helper()
	b, err := f.query.Bet(f.ctx, id)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) tracked() string {
	f.t.Helper()
	var total vault.Amount
	require.NoError(f.t, f.store.View(f.ctx, func(tx vault.ReadTx) error {
		var err error
		total, err = tx.TotalTracked(f.ctx)
		return err
	}))
	return total.String()
}
