package vault

import "context"

// Ledger faz a contabilidade available/locked por conta dentro de uma transação.
// Cada operação recarrega o saldo antes de gravar, então contas repetidas
// (ex.: maker e tesouraria iguais) não se sobrescrevem.
type Ledger struct {
	tx Tx
}

func NewLedger(tx Tx) *Ledger { return &Ledger{tx: tx} }

// Balance retorna o saldo atual (zero se a conta ainda não existe)
func (l *Ledger) Balance(ctx context.Context, account string) (VaultBalance, error) {
	return l.tx.Balance(ctx, account)
}

// Credit soma amount ao available
func (l *Ledger) Credit(ctx context.Context, account string, amount Amount) (VaultBalance, error) {
	bal, err := l.tx.Balance(ctx, account)
	if err != nil {
		return VaultBalance{}, err
	}
	if bal.Available, err = bal.Available.Add(amount); err != nil {
		return VaultBalance{}, err
	}
	return bal, l.tx.SaveBalance(ctx, account, bal)
}

// Debit subtrai do available; quem chama emite a instrução de transferência externa
func (l *Ledger) Debit(ctx context.Context, account string, amount Amount) (VaultBalance, error) {
	bal, err := l.tx.Balance(ctx, account)
	if err != nil {
		return VaultBalance{}, err
	}
	if bal.Available.LessThan(amount) {
		return VaultBalance{}, insufficient(amount, bal.Available)
	}
	if bal.Available, err = bal.Available.Sub(amount); err != nil {
		return VaultBalance{}, err
	}
	return bal, l.tx.SaveBalance(ctx, account, bal)
}

// Lock move amount de available para locked
func (l *Ledger) Lock(ctx context.Context, account string, amount Amount) error {
	bal, err := l.tx.Balance(ctx, account)
	if err != nil {
		return err
	}
	if bal.Available.LessThan(amount) {
		return insufficient(amount, bal.Available)
	}
	if bal.Available, err = bal.Available.Sub(amount); err != nil {
		return err
	}
	if bal.Locked, err = bal.Locked.Add(amount); err != nil {
		return err
	}
	return l.tx.SaveBalance(ctx, account, bal)
}

// Unlock devolve amount de locked para available
func (l *Ledger) Unlock(ctx context.Context, account string, amount Amount) error {
	bal, err := l.tx.Balance(ctx, account)
	if err != nil {
		return err
	}
	if bal.Locked, err = bal.Locked.Sub(amount); err != nil {
		return err
	}
	if bal.Available, err = bal.Available.Add(amount); err != nil {
		return err
	}
	return l.tx.SaveBalance(ctx, account, bal)
}

// release remove amount de locked sem creditar available
func (l *Ledger) release(ctx context.Context, account string, amount Amount) error {
	bal, err := l.tx.Balance(ctx, account)
	if err != nil {
		return err
	}
	if bal.Locked, err = bal.Locked.Sub(amount); err != nil {
		return err
	}
	return l.tx.SaveBalance(ctx, account, bal)
}

// Settle libera amount travado de maker e acceptor, credita o payout ao vencedor
// e a comissão à tesouraria. Os dois lados precisam ter travado exatamente amount.
func (l *Ledger) Settle(ctx context.Context, maker, acceptor, winner string, amount Amount, treasury string, p Payout) error {
	if err := l.release(ctx, maker, amount); err != nil {
		return err
	}
	if err := l.release(ctx, acceptor, amount); err != nil {
		return err
	}
	if _, err := l.Credit(ctx, winner, p.Payout); err != nil {
		return err
	}
	if _, err := l.Credit(ctx, treasury, p.Commission); err != nil {
		return err
	}
	return nil
}
