package vault_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/coinflip-vault/internal/vault"
	"github.com/radieske/coinflip-vault/pkg/contracts/events"
)

func TestReceive(t *testing.T) {
	f := newFixture(t)

	note := vault.DepositNotification{ID: "n-1", Sender: maker, Amount: vault.NewAmount(500), Msg: []byte(`{"deposit":{}}`)}
	res, err := f.engine.Receive(f.ctx, f.env, token, note)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.Equal(t, vault.EventDeposit, res.Events[0].Type)
	avail, _ := res.Events[0].Attr("new_available")
	assert.Equal(t, "500", avail)

	// mesma notificação de novo não credita
	res, err = f.engine.Receive(f.ctx, f.env, token, note)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	assert.Empty(t, res.Events)
	f.requireBalance(maker, 500, 0)
}

func TestReceiveRejects(t *testing.T) {
	ok := vault.DepositNotification{ID: "n", Sender: maker, Amount: vault.NewAmount(10), Msg: []byte(`{"deposit":{}}`)}

	cases := []struct {
		name   string
		sender string
		mutate func(*vault.DepositNotification)
		want   error
	}{
		{"foreign token", "fake-token", func(*vault.DepositNotification) {}, vault.ErrInvalidToken},
		{"other hook", token, func(n *vault.DepositNotification) { n.Msg = []byte(`{"create_bet":{}}`) }, vault.ErrInvalidReceiveMsg},
		{"extra hook field", token, func(n *vault.DepositNotification) { n.Msg = []byte(`{"deposit":{},"x":1}`) }, vault.ErrInvalidReceiveMsg},
		{"empty hook", token, func(n *vault.DepositNotification) { n.Msg = nil }, vault.ErrInvalidReceiveMsg},
		{"not json", token, func(n *vault.DepositNotification) { n.Msg = []byte(`deposit`) }, vault.ErrInvalidReceiveMsg},
		{"zero amount", token, func(n *vault.DepositNotification) { n.Amount = vault.ZeroAmount() }, vault.ErrInvalidZeroAmount},
		{"bad depositor", token, func(n *vault.DepositNotification) { n.Sender = "has space" }, vault.ErrInvalidAddress},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			n := ok
			tc.mutate(&n)
			_, err := f.engine.Receive(f.ctx, f.env, tc.sender, n)
			require.ErrorIs(t, err, tc.want)
			f.requireBalance(maker, 0, 0)

			// a rejeição não consome o id
			_, err = f.engine.Receive(f.ctx, f.env, token, ok)
			require.NoError(t, err)
			f.requireBalance(maker, 10, 0)
		})
	}
}

func TestWithdraw(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 300)
	f.createBet(maker, 100, vault.Heads)

	_, err := f.engine.Withdraw(f.ctx, f.env, maker, vault.ZeroAmount())
	require.ErrorIs(t, err, vault.ErrInvalidZeroAmount)

	// o valor travado não pode sair
	_, err = f.engine.Withdraw(f.ctx, f.env, maker, vault.NewAmount(201))
	require.ErrorIs(t, err, vault.ErrInsufficientAvailableBalance)

	res, err := f.engine.Withdraw(f.ctx, f.env, maker, vault.NewAmount(200))
	require.NoError(t, err)
	require.Len(t, res.Transfers, 1)
	assert.Equal(t, vault.Transfer{Token: token, Recipient: maker, Amount: vault.NewAmount(200)}, res.Transfers[0])
	f.requireBalance(maker, 0, 100)
}

func TestOperationsFillOutbox(t *testing.T) {
	f := newFixture(t)
	f.deposit(maker, 300)

	_, err := f.engine.Withdraw(f.ctx, f.advance(12), maker, vault.NewAmount(120))
	require.NoError(t, err)

	pending, err := f.store.PendingOutbox(f.ctx, 0)
	require.NoError(t, err)
	// instantiate, deposit, withdraw (evento) + a transferência
	require.Len(t, pending, 4)

	var transfer *vault.OutboxRecord
	for i := range pending {
		if pending[i].Kind == vault.OutboxTransfer {
			transfer = &pending[i]
		}
	}
	require.NotNil(t, transfer)
	assert.Equal(t, maker, transfer.Key)

	var ti events.TransferInstruction
	require.NoError(t, json.Unmarshal(transfer.Payload, &ti))
	assert.Equal(t, transfer.ID, ti.ID)
	assert.Equal(t, "120", ti.Amount)
	assert.Equal(t, self, ti.From)
	assert.Equal(t, f.env.Time, ti.Time)

	// erro não deixa nada no outbox
	_, err = f.engine.Withdraw(f.ctx, f.env, maker, vault.NewAmount(1000))
	require.Error(t, err)
	again, err := f.store.PendingOutbox(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, again, 4)

	require.NoError(t, f.store.MarkOutboxSent(f.ctx, transfer.ID, time.Unix(int64(f.env.Time), 0)))
	left, err := f.store.PendingOutbox(f.ctx, 0)
	require.NoError(t, err)
	assert.Len(t, left, 3)
}
