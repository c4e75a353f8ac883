package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/shared/cache"
	"github.com/radieske/coinflip-vault/internal/shared/config"
	"github.com/radieske/coinflip-vault/internal/shared/logger"
	"github.com/radieske/coinflip-vault/internal/shared/metrics"
	"github.com/radieske/coinflip-vault/internal/store"
	"github.com/radieske/coinflip-vault/internal/vault"
	betcache "github.com/radieske/coinflip-vault/internal/vault-service/cache"
	"github.com/radieske/coinflip-vault/internal/vault-service/feed"
	httpapi "github.com/radieske/coinflip-vault/internal/vault-service/http"
	"github.com/radieske/coinflip-vault/internal/vault-service/tokenledger"
)

func main() {
	// carrega config
	cfg := config.LoadFor("vault-service")

	// inicia logger
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogFile)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// abre o store configurado (postgres | leveldb | memory)
	st, err := store.Open(ctx, cfg)
	if err != nil {
		log.Fatal("store open", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer st.Close()
	log.Info("store ready", zap.String("backend", st.Kind))

	engine := vault.NewEngine(st, log,
		vault.WithTokenLedger(tokenledger.New(cfg.TokenLedgerURL), cfg.VaultAddress),
	)
	metrics.NewVault(prometheus.DefaultRegisterer).Instrument(engine)

	query := vault.NewQueryService(st)
	if cfg.GenesisFile != "" {
		instantiate(ctx, log, engine, query, cfg)
	}

	api := &httpapi.API{
		Engine: engine,
		Query:  query,
		Log:    log,
	}
	health := []metrics.HealthFunc{st.Health}

	// Redis é opcional: sem ele não há cache nem feed em tempo real
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		if rdb, err = cache.ConnectRedis(cfg.RedisAddr); err != nil {
			log.Warn("redis unavailable, running without cache and feed", zap.Error(err))
			rdb = nil
		}
	}
	if rdb != nil {
		defer rdb.Close()
		api.Cache = betcache.New(rdb, cfg.BetCacheTTL)

		wsClients := prometheus.NewGauge(prometheus.GaugeOpts{Name: "vault_ws_connections", Help: "clientes WebSocket conectados"})
		prometheus.MustRegister(wsClients)
		hub := feed.NewHub(func(*http.Request) bool { return true })
		hub.OnConnect = wsClients.Inc
		hub.OnDisconnect = wsClients.Dec
		feed.StartRedisSubscriber(ctx, rdb, cfg.RedisPubSubChannel, hub, log)
		api.WS = http.HandlerFunc(hub.HandleWS)

		health = append(health, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, metrics.All(health...), log)

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("api listening", zap.String("addr", apiSrv.Addr))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api srv", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	_ = apiSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// instantiate aplica o arquivo de gênese no primeiro boot; reinícios são no-op
func instantiate(ctx context.Context, log *zap.Logger, engine *vault.Engine, query *vault.QueryService, cfg config.Config) {
	msg, err := config.LoadGenesis(cfg.GenesisFile)
	if err != nil {
		log.Fatal("genesis", zap.Error(err))
	}
	last, err := query.Block(ctx)
	if err != nil {
		log.Fatal("last block", zap.Error(err))
	}
	env := vault.Env{Height: last.Height, Time: max(last.Time, uint64(time.Now().Unix()))}
	_, err = engine.Instantiate(ctx, env, cfg.VaultAdmin, msg)
	switch {
	case err == nil:
		log.Info("vault instantiated", zap.String("admin", cfg.VaultAdmin), zap.String("token", msg.Token))
	case errors.Is(err, vault.ErrAlreadyInstantiated):
		log.Info("vault already instantiated")
	default:
		log.Fatal("instantiate", zap.Error(err))
	}
}
