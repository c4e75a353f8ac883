package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/outbox-relay/producer"
	"github.com/radieske/coinflip-vault/internal/outbox-relay/pubsub"
	"github.com/radieske/coinflip-vault/internal/outbox-relay/relay"
	"github.com/radieske/coinflip-vault/internal/shared/cache"
	"github.com/radieske/coinflip-vault/internal/shared/config"
	"github.com/radieske/coinflip-vault/internal/shared/kafka"
	"github.com/radieske/coinflip-vault/internal/shared/logger"
	"github.com/radieske/coinflip-vault/internal/shared/metrics"
	"github.com/radieske/coinflip-vault/internal/store"
)

func main() {
	cfg := config.LoadFor("outbox-relay-worker")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal("store open", zap.Error(err))
	}
	defer st.Close()

	brokers := kafka.Brokers(cfg.KafkaBrokers)
	transfers, err := producer.New(brokers, cfg.TopicTokenTransfers, cfg.Env, log)
	if err != nil {
		log.Fatal("transfers producer", zap.Error(err))
	}
	defer transfers.Close()
	evs, err := producer.New(brokers, cfg.TopicVaultEvents, cfg.Env, log)
	if err != nil {
		log.Fatal("events producer", zap.Error(err))
	}
	defer evs.Close()

	// Redis Pub/Sub alimenta o feed WebSocket do vault-service
	redisClient, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer redisClient.Close()

	relayed := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outbox_relay_records_total", Help: "registros do outbox publicados por tipo"}, []string{"kind"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "outbox_relay_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(relayed, errorsBy)

	r := &relay.Relay{
		Log:       log,
		Outbox:    st,
		Transfers: transfers,
		Events:    evs,
		Broadcast: pubsub.NewRedisBroadcaster(redisClient, cfg.RedisPubSubChannel),
		Interval:  cfg.RelayInterval,
		BatchSize: cfg.RelayBatchSize,
		OnRelayed: func(kind string) { relayed.WithLabelValues(kind).Inc() },
		OnError:   func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.All(
		st.Health,
		func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
	), log)
	defer metricsSrv.Close()

	log.Info("outbox-relay started",
		zap.String("transfers", cfg.TopicTokenTransfers),
		zap.String("events", cfg.TopicVaultEvents),
		zap.Duration("interval", cfg.RelayInterval),
	)
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("relay stopped with error", zap.Error(err))
	}
	log.Info("outbox-relay stopped")
}
