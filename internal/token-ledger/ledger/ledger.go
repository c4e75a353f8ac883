// Package ledger é um ledger de tokens fungíveis em memória, usado só em desenvolvimento
// no lugar do ledger externo real.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radieske/coinflip-vault/internal/vault"
	"github.com/radieske/coinflip-vault/pkg/contracts/events"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroAmount        = errors.New("amount must be greater than zero")
)

// Notifier entrega o push de depósito ao vault (Kafka token_deposits)
type Notifier interface {
	Notify(ctx context.Context, n events.DepositNotification) error
}

type balanceKey struct{ token, account string }

// Ledger guarda saldos por (token, conta) e simula a altura do bloco
type Ledger struct {
	mu       sync.Mutex
	balances map[balanceKey]vault.Amount
	applied  map[string]struct{} // ids de TransferInstruction já executadas
	notified map[balanceKey]vault.Amount // entradas por send notificado
	outflow  map[balanceKey]vault.Amount // saídas por instrução aplicada
	height   uint64

	vault    string
	notifier Notifier
	now      func() time.Time
}

func New(vaultAddr string, notifier Notifier) *Ledger {
	return &Ledger{
		balances: make(map[balanceKey]vault.Amount),
		applied:  make(map[string]struct{}),
		notified: make(map[balanceKey]vault.Amount),
		outflow:  make(map[balanceKey]vault.Amount),
		vault:    vaultAddr,
		notifier: notifier,
		now:      time.Now,
	}
}

func (l *Ledger) BalanceOf(_ context.Context, token, account string) (vault.Amount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(token, account), nil
}

// Holdings lê saldo e acumulados da conta sob a mesma trava
func (l *Ledger) Holdings(_ context.Context, token, account string) (vault.Holdings, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := balanceKey{token, account}
	return vault.Holdings{
		Balance:  l.balance(token, account),
		Notified: l.notified[k],
		Applied:  l.outflow[k],
	}, nil
}

func (l *Ledger) balance(token, account string) vault.Amount {
	if b, ok := l.balances[balanceKey{token, account}]; ok {
		return b
	}
	return vault.ZeroAmount()
}


// Mint cria saldo do nada (faucet de desenvolvimento)
func (l *Ledger) Mint(token, account string, amount vault.Amount) (vault.Amount, error) {
	if amount.IsZero() {
		return vault.Amount{}, ErrZeroAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := l.balance(token, account).Add(amount)
	if err != nil {
		return vault.Amount{}, err
	}
	l.balances[balanceKey{token, account}] = next
	l.height++
	return next, nil
}

// move debita from e credita to; chamado com mu travado
func (l *Ledger) move(token, from, to string, amount vault.Amount) error {
	if amount.IsZero() {
		return ErrZeroAmount
	}
	src := l.balance(token, from)
	if src.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from, src, amount)
	}
	dst, err := l.balance(token, to).Add(amount)
	if err != nil {
		return err
	}
	rest, err := src.Sub(amount)
	if err != nil {
		return err
	}
	l.balances[balanceKey{token, from}] = rest
	l.balances[balanceKey{token, to}] = dst
	l.height++
	return nil
}

// Transfer é a transferência simples. Se o destino for o vault, nenhum
// depósito é notificado e os tokens ficam órfãos (recuperáveis via admin_sweep).
func (l *Ledger) Transfer(token, from, to string, amount vault.Amount) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(token, from, to, amount)
}

// Send transfere para o contrato e dispara o hook de recebimento.
// A entrada conta como notificada na mesma trava do movimento, antes do push,
// mesmo que o push falhe depois.
func (l *Ledger) Send(ctx context.Context, token, from, contract string, amount vault.Amount, msg json.RawMessage) (events.DepositNotification, error) {
	notify := contract == l.vault && l.notifier != nil
	k := balanceKey{token, contract}
	l.mu.Lock()
	seen, err := l.notified[k].Add(amount)
	if err != nil {
		l.mu.Unlock()
		return events.DepositNotification{}, err
	}
	if err := l.move(token, from, contract, amount); err != nil {
		l.mu.Unlock()
		return events.DepositNotification{}, err
	}
	if notify {
		l.notified[k] = seen
	}
	now := l.now().UTC()
	n := events.DepositNotification{
		ID:      uuid.NewString(),
		Token:   token,
		Sender:  from,
		Amount:  amount.String(),
		Msg:     msg,
		Height:  l.height,
		Time:    uint64(now.Unix()),
		Emitted: now,
	}
	l.mu.Unlock()

	if !notify {
		return n, nil
	}
	if err := l.notifier.Notify(ctx, n); err != nil {
		return n, fmt.Errorf("notify vault: %w", err)
	}
	return n, nil
}

// Apply executa uma instrução de saída do vault; ids repetidos são ignorados
func (l *Ledger) Apply(ins events.TransferInstruction) (bool, error) {
	amount, err := vault.ParseAmount(ins.Amount)
	if err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.applied[ins.ID]; ok {
		return false, nil
	}
	k := balanceKey{ins.Token, ins.From}
	out, err := l.outflow[k].Add(amount)
	if err != nil {
		return false, err
	}
	if err := l.move(ins.Token, ins.From, ins.Recipient, amount); err != nil {
		return false, err
	}
	l.outflow[k] = out
	l.applied[ins.ID] = struct{}{}
	return true, nil
}
