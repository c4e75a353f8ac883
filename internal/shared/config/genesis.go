package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"

	"github.com/radieske/coinflip-vault/internal/vault"
)

// LoadGenesis lê os parâmetros de instantiate de um arquivo TOML (opcional)
// e aplica por cima as variáveis VAULT_*.
func LoadGenesis(path string) (vault.InstantiateMsg, error) {
	var msg vault.InstantiateMsg
	if path != "" {
		if _, err := toml.DecodeFile(path, &msg); err != nil {
			return vault.InstantiateMsg{}, fmt.Errorf("decode genesis %s: %w", path, err)
		}
	}

	if v, ok := os.LookupEnv("VAULT_TOKEN"); ok {
		msg.Token = v
	}
	if v, ok := os.LookupEnv("VAULT_TREASURY"); ok {
		msg.Treasury = v
	}
	if v, ok := os.LookupEnv("VAULT_COMMISSION_BPS"); ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return vault.InstantiateMsg{}, fmt.Errorf("VAULT_COMMISSION_BPS: %w", err)
		}
		msg.CommissionBps = uint16(n)
	}
	if v, ok := os.LookupEnv("VAULT_MIN_BET"); ok {
		a, err := vault.ParseAmount(v)
		if err != nil {
			return vault.InstantiateMsg{}, fmt.Errorf("VAULT_MIN_BET: %w", err)
		}
		msg.MinBet = a
	}
	if v, ok := os.LookupEnv("VAULT_REVEAL_TIMEOUT_SECS"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return vault.InstantiateMsg{}, fmt.Errorf("VAULT_REVEAL_TIMEOUT_SECS: %w", err)
		}
		msg.RevealTimeoutSecs = n
	}
	if v, ok := os.LookupEnv("VAULT_MAX_OPEN_PER_USER"); ok {
		n, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return vault.InstantiateMsg{}, fmt.Errorf("VAULT_MAX_OPEN_PER_USER: %w", err)
		}
		msg.MaxOpenPerUser = uint16(n)
	}
	if v, ok := os.LookupEnv("VAULT_MAX_DAILY_AMOUNT_PER_USER"); ok {
		a, err := vault.ParseAmount(v)
		if err != nil {
			return vault.InstantiateMsg{}, fmt.Errorf("VAULT_MAX_DAILY_AMOUNT_PER_USER: %w", err)
		}
		msg.MaxDailyAmountPerUser = a
	}
	if v, ok := os.LookupEnv("VAULT_BET_TTL_SECS"); ok {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return vault.InstantiateMsg{}, fmt.Errorf("VAULT_BET_TTL_SECS: %w", err)
		}
		msg.BetTTLSecs = &n
	}
	return msg, nil
}
