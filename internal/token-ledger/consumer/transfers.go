package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/pkg/contracts/events"
)

// Applier executa instruções de transferência (ledger.Ledger)
type Applier interface {
	Apply(ins events.TransferInstruction) (bool, error)
}

// TransferWorker consome token_transfers e aplica no ledger simulado.
// Instruções que falham vão para a DLQ.
type TransferWorker struct {
	Log    *zap.Logger
	Reader *kafka.Reader
	DLQ    *kafka.Writer // opcional
	Ledger Applier
}

func (w *TransferWorker) Run(ctx context.Context) error {
	for {
		m, err := w.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.Log.Warn("kafka read failed", zap.Error(err))
			time.Sleep(500 * time.Millisecond)
			continue
		}
		var ins events.TransferInstruction
		if err := json.Unmarshal(m.Value, &ins); err != nil {
			w.Log.Warn("invalid transfer instruction", zap.Error(err))
			w.deadLetter(ctx, m)
			continue
		}
		applied, err := w.Ledger.Apply(ins)
		if err != nil {
			w.Log.Error("transfer instruction failed", zap.String("id", ins.ID), zap.Error(err))
			w.deadLetter(ctx, m)
			continue
		}
		w.Log.Info("transfer instruction",
			zap.String("id", ins.ID),
			zap.String("recipient", ins.Recipient),
			zap.String("amount", ins.Amount),
			zap.Bool("applied", applied),
		)
	}
}

func (w *TransferWorker) deadLetter(ctx context.Context, m kafka.Message) {
	if w.DLQ == nil {
		return
	}
	if err := w.DLQ.WriteMessages(ctx, kafka.Message{Key: m.Key, Value: m.Value, Time: time.Now()}); err != nil {
		w.Log.Error("dlq write failed", zap.Error(err))
	}
}

// KafkaNotifier publica notificações de depósito em token_deposits
type KafkaNotifier struct {
	Writer *kafka.Writer
}

func (n *KafkaNotifier) Notify(ctx context.Context, dn events.DepositNotification) error {
	raw, err := json.Marshal(dn)
	if err != nil {
		return err
	}
	return n.Writer.WriteMessages(ctx, kafka.Message{Key: []byte(dn.Sender), Value: raw, Time: time.Now()})
}
