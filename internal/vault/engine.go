package vault

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/pkg/contracts/events"
)

// Holdings é a metade do ledger externo na conciliação do sweep, lida de uma vez
// só: saldo da conta, tudo que chegou nela por send notificado e tudo que saiu
// por instruções aplicadas
type Holdings struct {
	Balance  Amount `json:"balance"`
	Notified Amount `json:"notified"`
	Applied  Amount `json:"applied"`
}

// TokenLedger consulta o ledger externo de tokens (usado só pelo admin_sweep)
type TokenLedger interface {
	Holdings(ctx context.Context, token, account string) (Holdings, error)
}

// Engine executa as mensagens do vault. Cada operação roda numa transação do Store
// e grava transferências e eventos no outbox antes do commit.
type Engine struct {
	store  Store
	log    *zap.Logger
	tokens TokenLedger
	self   string

	now   func() time.Time
	newID func() string

	// Callbacks opcionais (métricas)
	OnExecuted func(op string, err error)
	OnSettled  func(op string, p Payout)
}

type Option func(*Engine)

// WithTokenLedger liga o cliente do ledger externo e o endereço do próprio vault
func WithTokenLedger(t TokenLedger, self string) Option {
	return func(e *Engine) {
		e.tokens = t
		e.self = self
	}
}

// WithClock troca o relógio usado só para carimbar registros do outbox
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator troca o gerador de ids do outbox (testes)
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) { e.newID = gen }
}

func NewEngine(store Store, log *zap.Logger, opts ...Option) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		store: store,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Address é o endereço do vault no ledger de tokens
func (e *Engine) Address() string { return e.self }

// exec roda fn numa transação; a resposta só é devolvida se o commit tiver sucesso.
// Um Env anterior ao último gravado é rejeitado.
func (e *Engine) exec(ctx context.Context, op string, env Env, fn func(tx Tx, res *Response) error) (Response, error) {
	return e.run(ctx, op, env, false, fn)
}

// run com clamp=true adianta um Env atrasado até o último bloco em vez de rejeitar
func (e *Engine) run(ctx context.Context, op string, env Env, clamp bool, fn func(tx Tx, res *Response) error) (Response, error) {
	var res Response
	err := e.store.Update(ctx, func(tx Tx) error {
		res = Response{}
		last, err := tx.LastBlock(ctx)
		if err != nil {
			return err
		}
		if env.Height < last.Height || env.Time < last.Time {
			if !clamp {
				return blockRegression(env, last)
			}
			env = env.atLeast(last)
		}
		if err := fn(tx, &res); err != nil {
			return err
		}
		if err := tx.SaveLastBlock(ctx, env); err != nil {
			return err
		}
		return e.enqueue(ctx, tx, env, res)
	})
	if e.OnExecuted != nil {
		e.OnExecuted(op, err)
	}
	if err != nil {
		if KindOf(err) == KindInternal {
			e.log.Error("vault op failed", zap.String("op", op), zap.Error(err))
		} else {
			e.log.Debug("vault op rejected", zap.String("op", op), zap.String("code", CodeOf(err)), zap.Error(err))
		}
		return Response{}, err
	}
	if s := res.settled; s != nil {
		e.log.Info("bet settled",
			zap.Uint64("bet_id", s.BetID),
			zap.String("winner", s.Winner),
			zap.String("payout", s.Payout.Payout.String()),
			zap.String("commission", s.Commission.String()),
		)
		if e.OnSettled != nil {
			e.OnSettled(op, s.Payout)
		}
	}
	e.log.Info("vault op executed",
		zap.String("op", op),
		zap.Uint64("height", env.Height),
		zap.Uint64("bet_id", res.BetID),
		zap.Int("transfers", len(res.Transfers)),
		zap.Int("events", len(res.Events)),
	)
	return res, nil
}

func (e *Engine) enqueue(ctx context.Context, tx Tx, env Env, res Response) error {
	now := e.now().UTC()
	for _, t := range res.Transfers {
		if err := addFlows(ctx, tx, t.Token, Flows{Instructed: t.Amount}); err != nil {
			return err
		}
		id := e.newID()
		payload, err := json.Marshal(events.TransferInstruction{
			ID:        id,
			Token:     t.Token,
			From:      e.self,
			Recipient: t.Recipient,
			Amount:    t.Amount.String(),
			Height:    env.Height,
			Time:      env.Time,
		})
		if err != nil {
			return err
		}
		if err := tx.Enqueue(ctx, OutboxRecord{ID: id, Kind: OutboxTransfer, Key: t.Recipient, Payload: payload, CreatedAt: now}); err != nil {
			return err
		}
	}
	for _, ev := range res.Events {
		id := e.newID()
		attrs := make(map[string]string, len(ev.Attributes))
		for _, a := range ev.Attributes {
			attrs[a.Key] = a.Value
		}
		payload, err := json.Marshal(events.VaultEvent{
			ID:         id,
			Type:       ev.Type,
			BetID:      ev.BetID,
			Attributes: attrs,
			Height:     env.Height,
			Time:       env.Time,
		})
		if err != nil {
			return err
		}
		key := ev.Type
		if ev.BetID != 0 {
			key = strconv.FormatUint(ev.BetID, 10)
		}
		if err := tx.Enqueue(ctx, OutboxRecord{ID: id, Kind: OutboxEvent, Key: key, Payload: payload, CreatedAt: now}); err != nil {
			return err
		}
	}
	return nil
}

// addFlows soma d aos acumulados do token
func addFlows(ctx context.Context, tx Tx, token string, d Flows) error {
	f, err := tx.Flows(ctx, token)
	if err != nil {
		return err
	}
	if f.Credited, err = f.Credited.Add(d.Credited); err != nil {
		return err
	}
	if f.Instructed, err = f.Instructed.Add(d.Instructed); err != nil {
		return err
	}
	return tx.SaveFlows(ctx, token, f)
}

type action string

const (
	actionCancel          action = "cancel"
	actionAccept          action = "accept"
	actionReveal          action = "reveal"
	actionAcceptAndReveal action = "accept_and_reveal"
	actionClaimTimeout    action = "claim_timeout"
)

// transition é a máquina de estados da aposta. Estados terminais não têm saída.
func transition(from BetStatus, a action) (BetStatus, error) {
	switch from {
	case StatusOpen:
		switch a {
		case actionCancel:
			return StatusCanceled, nil
		case actionAccept:
			return StatusAccepted, nil
		case actionAcceptAndReveal:
			return StatusRevealed, nil
		case actionReveal, actionClaimTimeout:
		}
	case StatusAccepted:
		switch a {
		case actionReveal:
			return StatusRevealed, nil
		case actionClaimTimeout:
			return StatusTimeoutClaimed, nil
		case actionCancel, actionAccept, actionAcceptAndReveal:
		}
	case StatusRevealed, StatusCanceled, StatusTimeoutClaimed:
	}
	return from, invalidTransition(string(a), from)
}
