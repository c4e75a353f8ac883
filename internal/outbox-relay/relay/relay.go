package relay

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/vault"
)

// Publisher entrega um registro num tópico (Kafka em produção)
type Publisher interface {
	Publish(ctx context.Context, id, key string, payload []byte) error
}

// Broadcaster repassa eventos para o feed em tempo real; falhas não bloqueiam o relay
type Broadcaster interface {
	Broadcast(ctx context.Context, payload []byte) error
}

// Relay drena o outbox do vault: transferências vão para token_transfers,
// eventos para vault_events e para o broadcast. A entrega é at-least-once.
type Relay struct {
	Log       *zap.Logger
	Outbox    vault.Outbox
	Transfers Publisher
	Events    Publisher
	Broadcast Broadcaster // opcional

	Interval  time.Duration
	BatchSize int
	Now       func() time.Time

	OnRelayed func(kind string) // métricas
	OnError   func(stage string)
}

// Run repete Drain a cada Interval até o contexto ser cancelado
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.Interval)
	defer t.Stop()
	for {
		if _, err := r.Drain(ctx); err != nil && ctx.Err() == nil {
			r.Log.Warn("outbox drain stopped", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Drain publica um lote em ordem. Para no primeiro erro para não reordenar.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	recs, err := r.Outbox.PendingOutbox(ctx, r.BatchSize)
	if err != nil {
		r.onError("load")
		return 0, err
	}
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	for i, rec := range recs {
		var pub Publisher
		switch rec.Kind {
		case vault.OutboxTransfer:
			pub = r.Transfers
		case vault.OutboxEvent:
			pub = r.Events
		default:
			r.Log.Error("unknown outbox kind, skipping", zap.String("id", rec.ID), zap.String("kind", string(rec.Kind)))
			if err := r.Outbox.MarkOutboxSent(ctx, rec.ID, now()); err != nil {
				return i, err
			}
			continue
		}

		if err := pub.Publish(ctx, rec.ID, rec.Key, rec.Payload); err != nil {
			r.onError("publish")
			return i, err
		}
		if rec.Kind == vault.OutboxEvent && r.Broadcast != nil {
			if err := r.Broadcast.Broadcast(ctx, rec.Payload); err != nil {
				r.Log.Warn("event broadcast failed", zap.String("id", rec.ID), zap.Error(err))
				r.onError("broadcast")
			}
		}
		if err := r.Outbox.MarkOutboxSent(ctx, rec.ID, now()); err != nil {
			r.onError("mark")
			return i, err
		}
		if r.OnRelayed != nil {
			r.OnRelayed(string(rec.Kind))
		}
	}
	return len(recs), nil
}

func (r *Relay) onError(stage string) {
	if r.OnError != nil {
		r.OnError(stage)
	}
}
