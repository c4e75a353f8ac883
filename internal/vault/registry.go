package vault

import (
	"context"
	"fmt"
)

// Registry guarda apostas, o contador de ids e os contadores por conta
type Registry struct {
	tx Tx
}

func NewRegistry(tx Tx) *Registry { return &Registry{tx: tx} }

func (r *Registry) Load(ctx context.Context, id uint64) (Bet, error) {
	return r.tx.Bet(ctx, id)
}

func (r *Registry) Save(ctx context.Context, b Bet) error {
	return r.tx.SaveBet(ctx, b)
}

// NextID reserva o próximo id (estritamente crescente, começa em 1)
func (r *Registry) NextID(ctx context.Context) (uint64, error) {
	id, err := r.tx.NextBetID(ctx)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		id = 1
	}
	if err := r.tx.SetNextBetID(ctx, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

// IncrementOpen sobe o contador de apostas abertas respeitando o limite
func (r *Registry) IncrementOpen(ctx context.Context, account string, max uint16) error {
	n, err := r.tx.OpenBetCount(ctx, account)
	if err != nil {
		return err
	}
	if n >= max {
		return fmt.Errorf("%w: max %d", ErrTooManyOpenBets, max)
	}
	return r.tx.SetOpenBetCount(ctx, account, n+1)
}

// DecrementOpen desce o contador (saturando em zero) numa resolução terminal
func (r *Registry) DecrementOpen(ctx context.Context, account string) error {
	n, err := r.tx.OpenBetCount(ctx, account)
	if err != nil {
		return err
	}
	if n > 0 {
		n--
	}
	return r.tx.SetOpenBetCount(ctx, account, n)
}

// ChargeDaily acumula amount no uso diário da conta; cap zero desliga o limite
func (r *Registry) ChargeDaily(ctx context.Context, account string, now uint64, amount, capAmount Amount) error {
	if capAmount.IsZero() {
		return nil
	}
	day := dayBucket(now)
	used, err := r.tx.DailyUsage(ctx, account, day)
	if err != nil {
		return err
	}
	next, err := used.Add(amount)
	if err != nil {
		return err
	}
	if capAmount.LessThan(next) {
		return fmt.Errorf("%w: max %s per day", ErrDailyLimitExceeded, capAmount)
	}
	return r.tx.SetDailyUsage(ctx, account, day, next)
}
