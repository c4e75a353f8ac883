package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/deposit-listener/consumer"
	"github.com/radieske/coinflip-vault/internal/shared/config"
	"github.com/radieske/coinflip-vault/internal/shared/kafka"
	"github.com/radieske/coinflip-vault/internal/shared/logger"
	"github.com/radieske/coinflip-vault/internal/shared/metrics"
	"github.com/radieske/coinflip-vault/internal/store"
	"github.com/radieske/coinflip-vault/internal/vault"
)

func main() {
	cfg := config.LoadFor("deposit-listener-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	// Sinalização para shutdown gracioso (SIGINT/SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// O worker escreve direto no mesmo store do vault-service
	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal("store open", zap.Error(err))
	}
	defer st.Close()

	engine := vault.NewEngine(st, log)
	metrics.NewVault(prometheus.DefaultRegisterer).Instrument(engine)

	// Kafka consumer: notificações de depósito do ledger de tokens
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicTokenDeposits, "vault-deposit-listener")
	defer reader.Close()

	var dlq *kafka.Writer
	if cfg.TopicTokenDepositsDLQ != "" {
		dlq = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTokenDepositsDLQ)
		defer dlq.Close()
	}

	// Métricas Prometheus para monitoramento do consumo
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "deposit_listener_messages_consumed_total", Help: "mensagens consumidas"})
	credited := prometheus.NewCounter(prometheus.CounterOpts{Name: "deposit_listener_credited_total", Help: "depósitos creditados"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "deposit_listener_duplicates_total", Help: "notificações repetidas ignoradas"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "deposit_listener_rejected_total", Help: "depósitos rejeitados por código"}, []string{"code"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "deposit_listener_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, credited, duplicates, rejected, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Vault:       engine,
		Retries:     3,
		Backoff:     300 * time.Millisecond,
		OnConsumed:  consumed.Inc,
		OnCredited:  credited.Inc,
		OnDuplicate: duplicates.Inc,
		OnRejected:  func(code string) { rejected.WithLabelValues(code).Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}
	if dlq != nil {
		proc.DLQ = dlq
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, st.Health, log)
	defer metricsSrv.Close()

	log.Info("deposit-listener started",
		zap.String("consume", cfg.TopicTokenDeposits),
		zap.String("dlq", cfg.TopicTokenDepositsDLQ),
	)
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("deposit-listener stopped")
}
