package main

import (
	"net/http"
	"net/http/httputil"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/coinflip-vault/internal/api-gateway/ratelimit"
	"github.com/radieske/coinflip-vault/internal/shared/config"
	"github.com/radieske/coinflip-vault/internal/shared/logger"
	"github.com/radieske/coinflip-vault/internal/shared/metrics"
)

func rp(log *zap.Logger, to string) *httputil.ReverseProxy {
	u, err := url.Parse(to)
	if err != nil {
		log.Fatal("invalid upstream", zap.String("url", to), zap.Error(err))
	}
	return httputil.NewSingleHostReverseProxy(u)
}

func main() {
	cfg := config.LoadFor("api-gateway")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogFile)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	vault := rp(log, cfg.VaultURL)
	token := rp(log, cfg.TokenLedgerURL)

	mux := http.NewServeMux()

	// vault (ex.: /api/vault/v1/bets -> vault-service /v1/bets)
	mux.Handle("/api/vault/", http.StripPrefix("/api/vault", vault))

	// ledger de tokens (ex.: /api/token/token/balance -> simulador)
	mux.Handle("/api/token/", http.StripPrefix("/api/token", token))

	limited := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_rate_limited_total",
		Help: "requisições recusadas pelo rate limit",
	})
	prometheus.MustRegister(limited)
	limiter := ratelimit.NewIPRateLimiter(rate.Limit(cfg.GatewayRPS), cfg.GatewayBurst)

	metrics.StartMetricsServer(cfg.MetricsPort, nil, log)

	addr := ":" + cfg.HTTPPort
	log.Info("api-gateway listening",
		zap.String("addr", addr),
		zap.String("vault", cfg.VaultURL),
		zap.String("token", cfg.TokenLedgerURL),
	)
	if err := http.ListenAndServe(addr, withCORS(limiter.Middleware(mux, limited.Inc))); err != nil && err != http.ErrServerClosed {
		log.Fatal("gateway failed", zap.Error(err))
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.ServeHTTP(w, r)
	})
}
