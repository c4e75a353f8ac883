package vault

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/mod/semver"
)

// InstantiateMsg são os parâmetros de gênese do vault
type InstantiateMsg struct {
	Token                 string  `json:"token" toml:"token"`
	Treasury              string  `json:"treasury" toml:"treasury"`
	CommissionBps         uint16  `json:"commission_bps" toml:"commission_bps"`
	MinBet                Amount  `json:"min_bet" toml:"min_bet"`
	RevealTimeoutSecs     uint64  `json:"reveal_timeout_secs" toml:"reveal_timeout_secs"`
	MaxOpenPerUser        uint16  `json:"max_open_per_user" toml:"max_open_per_user"`
	MaxDailyAmountPerUser Amount  `json:"max_daily_amount_per_user" toml:"max_daily_amount_per_user"`
	BetTTLSecs            *uint64 `json:"bet_ttl_secs,omitempty" toml:"bet_ttl_secs"`
}

// UpdateConfigMsg: campos nil ficam como estão
type UpdateConfigMsg struct {
	Treasury              *string `json:"treasury,omitempty"`
	CommissionBps         *uint16 `json:"commission_bps,omitempty"`
	MinBet                *Amount `json:"min_bet,omitempty"`
	RevealTimeoutSecs     *uint64 `json:"reveal_timeout_secs,omitempty"`
	MaxOpenPerUser        *uint16 `json:"max_open_per_user,omitempty"`
	MaxDailyAmountPerUser *Amount `json:"max_daily_amount_per_user,omitempty"`
	BetTTLSecs            *uint64 `json:"bet_ttl_secs,omitempty"`
}

// MigrateMsg é aplicado por um operador na troca de versão
type MigrateMsg struct {
	NewToken   *string `json:"new_token,omitempty"`
	ResetState bool    `json:"reset_state"`
}

func validateCommission(bps uint16) error {
	if bps > MaxCommissionBps {
		return invalidCommission()
	}
	return nil
}

func validateRevealTimeout(secs uint64) error {
	if secs < MinRevealTimeoutSecs || secs > MaxRevealTimeoutSecs {
		return invalidTimeout(MinRevealTimeoutSecs, MaxRevealTimeoutSecs)
	}
	return nil
}

// ttl zero desliga a expiração
func validateBetTTL(secs uint64) error {
	if secs != 0 && (secs < MinBetTTLSecs || secs > MaxBetTTLSecs) {
		return invalidTimeout(MinBetTTLSecs, MaxBetTTLSecs)
	}
	return nil
}

// Instantiate grava a configuração inicial; quem chama vira admin
func (e *Engine) Instantiate(ctx context.Context, env Env, sender string, msg InstantiateMsg) (Response, error) {
	return e.exec(ctx, "instantiate", env, func(tx Tx, res *Response) error {
		switch _, err := tx.Config(ctx); {
		case err == nil:
			return ErrAlreadyInstantiated
		case !errors.Is(err, ErrNotInstantiated):
			return err
		}
		for _, addr := range []string{sender, msg.Token, msg.Treasury} {
			if err := ValidateAddress(addr); err != nil {
				return err
			}
		}
		if err := validateCommission(msg.CommissionBps); err != nil {
			return err
		}
		if err := validateRevealTimeout(msg.RevealTimeoutSecs); err != nil {
			return err
		}
		ttl := uint64(DefaultBetTTLSecs)
		if msg.BetTTLSecs != nil {
			ttl = *msg.BetTTLSecs
		}
		if err := validateBetTTL(ttl); err != nil {
			return err
		}

		cfg := Config{
			Admin:                 sender,
			Token:                 msg.Token,
			Treasury:              msg.Treasury,
			CommissionBps:         msg.CommissionBps,
			MinBet:                msg.MinBet,
			RevealTimeoutSecs:     msg.RevealTimeoutSecs,
			MaxOpenPerUser:        msg.MaxOpenPerUser,
			MaxDailyAmountPerUser: msg.MaxDailyAmountPerUser,
			BetTTLSecs:            ttl,
		}
		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return err
		}
		if err := tx.SaveContractInfo(ctx, ContractInfo{Contract: ContractName, Version: ContractVersion}); err != nil {
			return err
		}
		if err := tx.SetNextBetID(ctx, 1); err != nil {
			return err
		}

		res.event(EventInstantiate, 0).
			attr("admin", sender).
			attr("token", msg.Token).
			attr("treasury", msg.Treasury).
			attr("commission_bps", strconv.FormatUint(uint64(msg.CommissionBps), 10))
		return nil
	})
}

// UpdateConfig valida todos os campos antes de gravar qualquer um
func (e *Engine) UpdateConfig(ctx context.Context, env Env, sender string, msg UpdateConfigMsg) (Response, error) {
	return e.exec(ctx, "update_config", env, func(tx Tx, res *Response) error {
		cfg, err := e.requireAdmin(ctx, tx, sender)
		if err != nil {
			return err
		}
		if msg.Treasury != nil {
			if err := ValidateAddress(*msg.Treasury); err != nil {
				return err
			}
			cfg.Treasury = *msg.Treasury
		}
		if msg.CommissionBps != nil {
			if err := validateCommission(*msg.CommissionBps); err != nil {
				return err
			}
			cfg.CommissionBps = *msg.CommissionBps
		}
		if msg.MinBet != nil {
			cfg.MinBet = *msg.MinBet
		}
		if msg.RevealTimeoutSecs != nil {
			if err := validateRevealTimeout(*msg.RevealTimeoutSecs); err != nil {
				return err
			}
			cfg.RevealTimeoutSecs = *msg.RevealTimeoutSecs
		}
		if msg.MaxOpenPerUser != nil {
			cfg.MaxOpenPerUser = *msg.MaxOpenPerUser
		}
		if msg.MaxDailyAmountPerUser != nil {
			cfg.MaxDailyAmountPerUser = *msg.MaxDailyAmountPerUser
		}
		if msg.BetTTLSecs != nil {
			if err := validateBetTTL(*msg.BetTTLSecs); err != nil {
				return err
			}
			cfg.BetTTLSecs = *msg.BetTTLSecs
		}
		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return err
		}

		res.event(EventUpdateConfig, 0).
			attr("admin", sender).
			attr("commission_bps", strconv.FormatUint(uint64(cfg.CommissionBps), 10)).
			attr("reveal_timeout_secs", strconv.FormatUint(cfg.RevealTimeoutSecs, 10)).
			attr("bet_ttl_secs", strconv.FormatUint(cfg.BetTTLSecs, 10))
		return nil
	})
}

// TransferAdmin propõe um novo admin; sobrescreve qualquer proposta anterior
func (e *Engine) TransferAdmin(ctx context.Context, env Env, sender, newAdmin string) (Response, error) {
	return e.exec(ctx, "transfer_admin", env, func(tx Tx, res *Response) error {
		cfg, err := e.requireAdmin(ctx, tx, sender)
		if err != nil {
			return err
		}
		if err := ValidateAddress(newAdmin); err != nil {
			return err
		}
		cfg.PendingAdmin = ptr(newAdmin)
		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return err
		}
		res.event(EventTransferAdmin, 0).
			attr("current_admin", sender).
			attr("pending_admin", newAdmin)
		return nil
	})
}

// AcceptAdmin conclui a troca; só o admin pendente pode chamar
func (e *Engine) AcceptAdmin(ctx context.Context, env Env, sender string) (Response, error) {
	return e.exec(ctx, "accept_admin", env, func(tx Tx, res *Response) error {
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		if cfg.PendingAdmin == nil || *cfg.PendingAdmin != sender {
			return ErrUnauthorized
		}
		previous := cfg.Admin
		cfg.Admin = sender
		cfg.PendingAdmin = nil
		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return err
		}
		res.event(EventAcceptAdmin, 0).
			attr("previous_admin", previous).
			attr("new_admin", sender)
		return nil
	})
}

// AdminSweep transfere tokens que o vault detém mas que nenhuma conta rastreia.
//
// O saldo do ledger anda atrasado em relação ao vault (saques ainda no relay,
// depósitos ainda não notificados), então o órfão sai da conciliação dos
// acumulados dos dois lados:
//
//	balance + applied + credited - (tracked + instructed + notified)
//
// Cada evento entre sistemas mexe nos dois lados da mesma conta, então as duas
// leituras não precisam ser simultâneas. O ledger é lido fora da transação.
func (e *Engine) AdminSweep(ctx context.Context, env Env, sender string, recipient *string) (Response, error) {
	var token string
	err := e.store.View(ctx, func(tx ReadTx) error {
		cfg, err := e.requireAdmin(ctx, tx, sender)
		if err != nil {
			return err
		}
		token = cfg.Token
		return nil
	})
	if err == nil && e.tokens == nil {
		err = fmt.Errorf("admin sweep: token ledger not configured")
	}
	var held Holdings
	if err == nil {
		if held, err = e.tokens.Holdings(ctx, token, e.self); err != nil {
			err = fmt.Errorf("admin sweep: token holdings: %w", err)
		}
	}
	if err != nil {
		if e.OnExecuted != nil {
			e.OnExecuted("admin_sweep", err)
		}
		return Response{}, err
	}

	return e.exec(ctx, "admin_sweep", env, func(tx Tx, res *Response) error {
		cfg, err := e.requireAdmin(ctx, tx, sender)
		if err != nil {
			return err
		}
		if cfg.Token != token {
			return fmt.Errorf("admin sweep: token changed from %s to %s during sweep", token, cfg.Token)
		}
		to := cfg.Admin
		if recipient != nil {
			if err := ValidateAddress(*recipient); err != nil {
				return err
			}
			to = *recipient
		}
		tracked, err := tx.TotalTracked(ctx)
		if err != nil {
			return err
		}
		flows, err := tx.Flows(ctx, cfg.Token)
		if err != nil {
			return err
		}
		orphaned, err := sweepable(held, tracked, flows)
		if err != nil {
			return err
		}
		if orphaned.IsZero() {
			return ErrNothingToSweep
		}

		res.transfer(Transfer{Token: cfg.Token, Recipient: to, Amount: orphaned})
		res.event(EventAdminSweep, 0).
			attr("orphaned_amount", orphaned.String()).
			attr("recipient", to).
			attr("contract_balance", held.Balance.String()).
			attr("total_vault", tracked.String())
		return nil
	})
}

// sweepable aplica a conciliação; satura em zero
func sweepable(h Holdings, tracked Amount, f Flows) (Amount, error) {
	in, err := sum(h.Balance, h.Applied, f.Credited)
	if err != nil {
		return Amount{}, err
	}
	out, err := sum(tracked, f.Instructed, h.Notified)
	if err != nil {
		return Amount{}, err
	}
	return in.SaturatingSub(out), nil
}

func sum(xs ...Amount) (Amount, error) {
	var total Amount
	for _, x := range xs {
		var err error
		if total, err = total.Add(x); err != nil {
			return Amount{}, err
		}
	}
	return total, nil
}

// MigrateResult reporta o que a migração fez
type MigrateResult struct {
	Response
	FromVersion    string `json:"from_version"`
	ToVersion      string `json:"to_version"`
	ClearedEntries uint64 `json:"cleared_entries"`
}

// Migrate roda na troca de versão: confere a versão gravada, opcionalmente
// troca o token e opcionalmente zera o estado
func (e *Engine) Migrate(ctx context.Context, env Env, msg MigrateMsg) (MigrateResult, error) {
	var out MigrateResult
	res, err := e.exec(ctx, "migrate", env, func(tx Tx, res *Response) error {
		info, err := tx.ContractInfo(ctx)
		if err != nil {
			return err
		}
		if info.Contract != ContractName {
			return fmt.Errorf("%w: cannot migrate from %q", ErrInvalidMigration, info.Contract)
		}
		if !semver.IsValid(info.Version) {
			return fmt.Errorf("%w: stored version %q", ErrInvalidMigration, info.Version)
		}
		if semver.Compare(info.Version, ContractVersion) > 0 {
			return fmt.Errorf("%w: stored version %s is newer than %s", ErrInvalidMigration, info.Version, ContractVersion)
		}
		cfg, err := tx.Config(ctx)
		if err != nil {
			return err
		}
		if msg.NewToken != nil {
			if err := ValidateAddress(*msg.NewToken); err != nil {
				return err
			}
			cfg.Token = *msg.NewToken
		}

		var cleared uint64
		if msg.ResetState {
			counts, err := tx.Reset(ctx)
			if err != nil {
				return err
			}
			cleared = counts.Total()
			if err := tx.SetNextBetID(ctx, 1); err != nil {
				return err
			}
		}
		if err := tx.SaveConfig(ctx, cfg); err != nil {
			return err
		}
		if err := tx.SaveContractInfo(ctx, ContractInfo{Contract: ContractName, Version: ContractVersion}); err != nil {
			return err
		}

		out.FromVersion = info.Version
		out.ToVersion = ContractVersion
		out.ClearedEntries = cleared
		res.event(EventMigrate, 0).
			attr("from_version", info.Version).
			attr("to_version", ContractVersion).
			attr("token", cfg.Token).
			attr("state_reset", strconv.FormatBool(msg.ResetState)).
			attr("cleared_entries", strconv.FormatUint(cleared, 10))
		return nil
	})
	if err != nil {
		return MigrateResult{}, err
	}
	out.Response = res
	return out, nil
}

func (e *Engine) requireAdmin(ctx context.Context, tx ReadTx, sender string) (Config, error) {
	cfg, err := tx.Config(ctx)
	if err != nil {
		return Config{}, err
	}
	if cfg.Admin != sender {
		return Config{}, ErrUnauthorized
	}
	return cfg, nil
}
