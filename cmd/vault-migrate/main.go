package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/radieske/coinflip-vault/internal/shared/cache"
	"github.com/radieske/coinflip-vault/internal/shared/config"
	"github.com/radieske/coinflip-vault/internal/shared/logger"
	"github.com/radieske/coinflip-vault/internal/store"
	"github.com/radieske/coinflip-vault/internal/vault"
	betcache "github.com/radieske/coinflip-vault/internal/vault-service/cache"
)

var rootCmd = &cobra.Command{
	Use:   "vault-migrate",
	Short: "Vault state maintenance",
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd.AddCommand(infoCmd(), migrateCmd())
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show stored contract name and version",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := store.Open(ctx, config.LoadFor("vault-migrate"))
			if err != nil {
				return err
			}
			defer st.Close()
			info, err := vault.NewQueryService(st).ContractInfo(ctx)
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run the version migration, optionally switching token or resetting state",
		RunE:  runMigrate,
	}
	cmd.Flags().String("new-token", "", "replace the accepted token contract")
	cmd.Flags().Bool("reset-state", false, "wipe balances, bets and counters")
	cmd.Flags().Uint64("height", 0, "block height recorded on the migration (default: last block)")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.LoadFor("vault-migrate")
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogFile)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := cmd.Context()
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var msg vault.MigrateMsg
	if tok, _ := cmd.Flags().GetString("new-token"); tok != "" {
		msg.NewToken = &tok
	}
	msg.ResetState, _ = cmd.Flags().GetBool("reset-state")
	last, err := vault.NewQueryService(st).Block(ctx)
	if err != nil {
		return err
	}
	env := vault.Env{Height: last.Height, Time: max(last.Time, uint64(time.Now().Unix()))}
	if cmd.Flags().Changed("height") {
		env.Height, _ = cmd.Flags().GetUint64("height")
	}

	engine := vault.NewEngine(st, log)
	out, err := engine.Migrate(ctx, env, msg)
	if err != nil {
		return err
	}

	// apostas em cache deixam de existir depois do reset
	if msg.ResetState {
		flushBetCache(ctx, cfg, log)
	}
	return printJSON(out)
}

func flushBetCache(ctx context.Context, cfg config.Config, log *zap.Logger) {
	r, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable, bet cache not flushed", zap.Error(err))
		return
	}
	defer r.Close()
	n, err := betcache.New(r, cfg.BetCacheTTL).Flush(ctx)
	if err != nil {
		log.Warn("bet cache flush failed", zap.Error(err))
		return
	}
	log.Info("bet cache flushed", zap.Int("keys", n))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
