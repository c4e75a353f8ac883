package ledger

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/coinflip-vault/internal/vault"
	"github.com/radieske/coinflip-vault/pkg/contracts/events"
)

type captured struct{ notes []events.DepositNotification }

func (c *captured) Notify(_ context.Context, n events.DepositNotification) error {
	c.notes = append(c.notes, n)
	return nil
}

func bal(t *testing.T, l *Ledger, acct string) string {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), "tok", acct)
	require.NoError(t, err)
	return b.String()
}

func TestSendNotifiesVault(t *testing.T) {
	n := &captured{}
	l := New("vault", n)
	_, err := l.Mint("tok", "alice", vault.NewAmount(100))
	require.NoError(t, err)

	dn, err := l.Send(context.Background(), "tok", "alice", "vault", vault.NewAmount(60), json.RawMessage(`{"deposit":{}}`))
	require.NoError(t, err)
	require.Len(t, n.notes, 1)
	assert.Equal(t, dn.ID, n.notes[0].ID)
	assert.Equal(t, "60", n.notes[0].Amount)
	assert.Equal(t, "40", bal(t, l, "alice"))
	assert.Equal(t, "60", bal(t, l, "vault"))

	// transfer simples não notifica
	require.NoError(t, l.Transfer("tok", "alice", "vault", vault.NewAmount(10)))
	assert.Len(t, n.notes, 1)
	assert.Equal(t, "70", bal(t, l, "vault"))

	_, err = l.Send(context.Background(), "tok", "alice", "vault", vault.NewAmount(31), nil)
	require.ErrorIs(t, err, ErrInsufficientFunds)
}

func TestApplyIsIdempotent(t *testing.T) {
	l := New("vault", nil)
	_, err := l.Mint("tok", "vault", vault.NewAmount(50))
	require.NoError(t, err)

	ins := events.TransferInstruction{ID: "i1", Token: "tok", From: "vault", Recipient: "bob", Amount: "20"}
	ok, err := l.Apply(ins)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = l.Apply(ins)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "20", bal(t, l, "bob"))
	assert.Equal(t, "30", bal(t, l, "vault"))
}

func TestHoldingsTrackNotifiedAndApplied(t *testing.T) {
	ctx := context.Background()
	l := New("vault", &captured{})
	_, err := l.Mint("tok", "alice", vault.NewAmount(100))
	require.NoError(t, err)

	_, err = l.Send(ctx, "tok", "alice", "vault", vault.NewAmount(60), json.RawMessage(`{"deposit":{}}`))
	require.NoError(t, err)
	require.NoError(t, l.Transfer("tok", "alice", "vault", vault.NewAmount(5)))
	_, err = l.Apply(events.TransferInstruction{ID: "i1", Token: "tok", From: "vault", Recipient: "alice", Amount: "25"})
	require.NoError(t, err)
	// repetida não soma de novo
	_, err = l.Apply(events.TransferInstruction{ID: "i1", Token: "tok", From: "vault", Recipient: "alice", Amount: "25"})
	require.NoError(t, err)

	h, err := l.Holdings(ctx, "tok", "vault")
	require.NoError(t, err)
	assert.Equal(t, "40", h.Balance.String())
	assert.Equal(t, "60", h.Notified.String())
	assert.Equal(t, "25", h.Applied.String())

	// send falho não conta
	_, err = l.Send(ctx, "tok", "alice", "vault", vault.NewAmount(1_000), nil)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	h, err = l.Holdings(ctx, "tok", "vault")
	require.NoError(t, err)
	assert.Equal(t, "60", h.Notified.String())

	other, err := l.Holdings(ctx, "tok", "nobody")
	require.NoError(t, err)
	assert.True(t, other.Balance.IsZero())
	assert.True(t, other.Notified.IsZero())
}
