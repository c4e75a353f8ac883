package vault

import (
	"context"
	"encoding/hex"
)

const (
	DefaultQueryLimit = 20
	MaxQueryLimit     = 100
)

// BetResponse é a visão pública de uma aposta
type BetResponse struct {
	ID               uint64  `json:"id"`
	Maker            string  `json:"maker"`
	Amount           Amount  `json:"amount"`
	Commitment       string  `json:"commitment"` // hex
	Status           string  `json:"status"`
	CreatedAtHeight  uint64  `json:"created_at_height"`
	CreatedAtTime    uint64  `json:"created_at_time"`
	Acceptor         *string `json:"acceptor,omitempty"`
	AcceptorGuess    *Side   `json:"acceptor_guess,omitempty"`
	AcceptedAtHeight *uint64 `json:"accepted_at_height,omitempty"`
	AcceptedAtTime   *uint64 `json:"accepted_at_time,omitempty"`
	RevealSide       *Side   `json:"reveal_side,omitempty"`
	ResolvedAtHeight *uint64 `json:"resolved_at_height,omitempty"`
	Winner           *string `json:"winner,omitempty"`
	PayoutAmount     *Amount `json:"payout_amount,omitempty"`
	CommissionPaid   *Amount `json:"commission_paid,omitempty"`
}

// NewBetResponse converte o registro persistido; valores zerados de payout somem
func NewBetResponse(b Bet) BetResponse {
	r := BetResponse{
		ID:               b.ID,
		Maker:            b.Maker,
		Amount:           b.Amount,
		Commitment:       hex.EncodeToString(b.Commitment),
		Status:           b.Status.String(),
		CreatedAtHeight:  b.CreatedAtHeight,
		CreatedAtTime:    b.CreatedAtTime,
		Acceptor:         b.Acceptor,
		AcceptorGuess:    b.AcceptorGuess,
		AcceptedAtHeight: b.AcceptedAtHeight,
		AcceptedAtTime:   b.AcceptedAtTime,
		RevealSide:       b.RevealSide,
		ResolvedAtHeight: b.ResolvedAtHeight,
		Winner:           b.Winner,
	}
	if !b.PayoutAmount.IsZero() {
		r.PayoutAmount = ptr(b.PayoutAmount)
	}
	if !b.CommissionPaid.IsZero() {
		r.CommissionPaid = ptr(b.CommissionPaid)
	}
	return r
}

// BalanceResponse é o saldo interno de uma conta
type BalanceResponse struct {
	Account   string `json:"account"`
	Available Amount `json:"available"`
	Locked    Amount `json:"locked"`
}

// Page são os parâmetros de paginação (start_after exclusivo)
type Page struct {
	StartAfter *uint64
	Limit      *uint32
}

func (p Page) limit() int {
	if p.Limit == nil {
		return DefaultQueryLimit
	}
	if *p.Limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return int(*p.Limit)
}

func (p Page) startAfter() uint64 {
	if p.StartAfter == nil {
		return 0
	}
	return *p.StartAfter
}

// QueryService atende leituras sem efeito colateral
type QueryService struct {
	store Store
}

func NewQueryService(store Store) *QueryService { return &QueryService{store: store} }

func (q *QueryService) Config(ctx context.Context) (Config, error) {
	var cfg Config
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		cfg, err = tx.Config(ctx)
		return err
	})
	return cfg, err
}

func (q *QueryService) ContractInfo(ctx context.Context) (ContractInfo, error) {
	var info ContractInfo
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		info, err = tx.ContractInfo(ctx)
		return err
	})
	return info, err
}

// Block é o último bloco que o vault aceitou; operações não podem voltar antes dele
func (q *QueryService) Block(ctx context.Context) (Env, error) {
	var env Env
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		env, err = tx.LastBlock(ctx)
		return err
	})
	return env, err
}

func (q *QueryService) VaultBalance(ctx context.Context, account string) (BalanceResponse, error) {
	if err := ValidateAddress(account); err != nil {
		return BalanceResponse{}, err
	}
	var bal VaultBalance
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		bal, err = tx.Balance(ctx, account)
		return err
	})
	if err != nil {
		return BalanceResponse{}, err
	}
	return BalanceResponse{Account: account, Available: bal.Available, Locked: bal.Locked}, nil
}

func (q *QueryService) Bet(ctx context.Context, id uint64) (BetResponse, error) {
	var bet Bet
	err := q.store.View(ctx, func(tx ReadTx) error {
		var err error
		bet, err = tx.Bet(ctx, id)
		return err
	})
	if err != nil {
		return BetResponse{}, err
	}
	return NewBetResponse(bet), nil
}

// OpenBets lista apostas Open em ordem crescente de id
func (q *QueryService) OpenBets(ctx context.Context, p Page) ([]BetResponse, error) {
	open := StatusOpen
	return q.list(ctx, BetFilter{Status: &open, StartAfter: p.startAfter(), Limit: p.limit()})
}

// UserBets lista apostas em que a conta é maker ou acceptor
func (q *QueryService) UserBets(ctx context.Context, account string, p Page) ([]BetResponse, error) {
	if err := ValidateAddress(account); err != nil {
		return nil, err
	}
	return q.list(ctx, BetFilter{Account: account, StartAfter: p.startAfter(), Limit: p.limit()})
}

func (q *QueryService) list(ctx context.Context, f BetFilter) ([]BetResponse, error) {
	out := []BetResponse{}
	if f.Limit == 0 {
		return out, nil
	}
	err := q.store.View(ctx, func(tx ReadTx) error {
		bets, err := tx.ListBets(ctx, f)
		if err != nil {
			return err
		}
		for _, b := range bets {
			out = append(out, NewBetResponse(b))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
