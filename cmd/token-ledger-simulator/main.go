package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/shared/config"
	"github.com/radieske/coinflip-vault/internal/shared/kafka"
	"github.com/radieske/coinflip-vault/internal/shared/logger"
	"github.com/radieske/coinflip-vault/internal/shared/metrics"
	"github.com/radieske/coinflip-vault/internal/token-ledger/consumer"
	thttp "github.com/radieske/coinflip-vault/internal/token-ledger/http"
	"github.com/radieske/coinflip-vault/internal/token-ledger/ledger"
)

func main() {
	cfg := config.LoadFor("token-ledger-simulator")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Kafka producer: notificações de depósito para o vault
	deposits := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTokenDeposits)
	defer deposits.Close()

	l := ledger.New(cfg.VaultAddress, &consumer.KafkaNotifier{Writer: deposits})

	// Kafka consumer: instruções de transferência emitidas pelo vault
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicTokenTransfers, "token-ledger-simulator")
	defer reader.Close()
	var dlq *kafka.Writer
	if cfg.TopicTokenTransfersDLQ != "" {
		dlq = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicTokenTransfersDLQ)
		defer dlq.Close()
	}
	worker := &consumer.TransferWorker{Log: log, Reader: reader, DLQ: dlq, Ledger: l}
	go func() {
		if err := worker.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("transfer worker stopped", zap.Error(err))
		}
	}()

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, nil, log)

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           thttp.NewServer(log, l).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("token ledger simulator running",
			zap.String("addr", apiSrv.Addr),
			zap.String("vault", cfg.VaultAddress),
		)
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("public server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}
