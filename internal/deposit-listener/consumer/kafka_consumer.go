package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/vault"
	"github.com/radieske/coinflip-vault/pkg/contracts/events"
)

// Fetcher é o lado do kafka.Reader usado aqui (commit manual)
type Fetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Publisher é o writer da DLQ
type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Receiver credita depósitos (vault.Engine)
type Receiver interface {
	Receive(ctx context.Context, env vault.Env, tokenSender string, n vault.DepositNotification) (vault.Response, error)
}

// Processor consome notificações de depósito do ledger de tokens e credita no vault.
// O offset só é confirmado depois do crédito ou do envio para a DLQ; como o vault
// deduplica pelo id da notificação, reprocessar uma mensagem é seguro.
type Processor struct {
	Log    *zap.Logger
	Reader Fetcher
	DLQ    Publisher // opcional
	Vault  Receiver

	Retries int           // tentativas extras em falha interna
	Backoff time.Duration // base do backoff linear

	OnConsumed  func()       // métricas (counter++)
	OnCredited  func()       // métricas
	OnDuplicate func()       // métricas
	OnRejected  func(string) // métricas por código de erro
	OnError     func(string) // métricas por fase
}

// Run inicia o loop principal de consumo
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err() // encerra se o contexto for cancelado
			}
			p.Log.Warn("kafka fetch failed", zap.Error(err))
			p.onError("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if p.OnConsumed != nil {
			p.OnConsumed()
		}

		if err := p.handle(ctx, m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// sem commit: a mensagem volta no próximo rebalance/restart
			p.Log.Error("deposit not processed", zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		if err := p.Reader.CommitMessages(ctx, m); err != nil {
			p.Log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
			p.onError("commit")
		}
	}
}

// handle retorna erro só quando a mensagem não pôde ser nem creditada nem enviada à DLQ
func (p *Processor) handle(ctx context.Context, m kafka.Message) error {
	var n events.DepositNotification
	if err := json.Unmarshal(m.Value, &n); err != nil {
		p.Log.Warn("invalid deposit message", zap.Error(err))
		p.onError("decode")
		return p.deadLetter(ctx, m, "decode", err)
	}
	amount, err := vault.ParseAmount(n.Amount)
	if err != nil {
		p.onError("decode")
		return p.deadLetter(ctx, m, vault.CodeOf(err), err)
	}
	dn := vault.DepositNotification{ID: n.ID, Sender: n.Sender, Amount: amount, Msg: n.Msg}
	env := vault.Env{Height: n.Height, Time: n.Time}

	var res vault.Response
	for attempt := 0; ; attempt++ {
		res, err = p.Vault.Receive(ctx, env, n.Token, dn)
		if err == nil || vault.KindOf(err) != vault.KindInternal || attempt >= p.Retries {
			break
		}
		p.onError("vault")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * p.Backoff):
		}
	}

	switch {
	case err == nil && res.Duplicate:
		p.Log.Debug("duplicate deposit notification", zap.String("id", n.ID))
		if p.OnDuplicate != nil {
			p.OnDuplicate()
		}
		return nil
	case err == nil:
		p.Log.Info("deposit credited", zap.String("id", n.ID), zap.String("sender", n.Sender), zap.String("amount", n.Amount))
		if p.OnCredited != nil {
			p.OnCredited()
		}
		return nil
	case vault.KindOf(err) == vault.KindInternal:
		return p.deadLetter(ctx, m, "internal", err)
	default:
		// rejeição de domínio: os tokens ficam órfãos no vault até um admin_sweep
		p.Log.Warn("deposit rejected", zap.String("id", n.ID), zap.String("code", vault.CodeOf(err)), zap.Error(err))
		if p.OnRejected != nil {
			p.OnRejected(vault.CodeOf(err))
		}
		return p.deadLetter(ctx, m, vault.CodeOf(err), err)
	}
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message, reason string, cause error) error {
	if p.DLQ == nil {
		return nil
	}
	dl := kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: append(append([]kafka.Header(nil), m.Headers...),
			kafka.Header{Key: "dlq_reason", Value: []byte(reason)},
			kafka.Header{Key: "dlq_error", Value: []byte(cause.Error())},
		),
		Time: time.Now(),
	}
	if err := p.DLQ.WriteMessages(ctx, dl); err != nil {
		p.onError("dlq")
		return err
	}
	return nil
}

func (p *Processor) onError(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}
