package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radieske/coinflip-vault/internal/vault"
)

// BetCache guarda apostas em estado terminal, que não mudam mais
type BetCache struct {
	R   *redis.Client
	TTL time.Duration
}

func New(r *redis.Client, ttl time.Duration) *BetCache { return &BetCache{R: r, TTL: ttl} }

func keyBet(id uint64) string { return "vault:bet:" + strconv.FormatUint(id, 10) }

// Get retorna false quando a aposta não está no cache
func (c *BetCache) Get(ctx context.Context, id uint64) (vault.BetResponse, bool, error) {
	b, err := c.R.Get(ctx, keyBet(id)).Bytes()
	if err == redis.Nil {
		return vault.BetResponse{}, false, nil
	}
	if err != nil {
		return vault.BetResponse{}, false, err
	}
	var out vault.BetResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return vault.BetResponse{}, false, err
	}
	return out, true, nil
}

// Put só grava apostas terminais
func (c *BetCache) Put(ctx context.Context, bet vault.BetResponse) error {
	st, err := vault.ParseBetStatus(bet.Status)
	if err != nil || !st.Terminal() {
		return err
	}
	b, err := json.Marshal(bet)
	if err != nil {
		return err
	}
	return c.R.Set(ctx, keyBet(bet.ID), b, c.TTL).Err()
}

// Flush apaga todas as apostas em cache (usado após um migrate com reset)
func (c *BetCache) Flush(ctx context.Context) (int, error) {
	var n int
	iter := c.R.Scan(ctx, 0, "vault:bet:*", 500).Iterator()
	for iter.Next(ctx) {
		if err := c.R.Del(ctx, iter.Val()).Err(); err != nil {
			return n, err
		}
		n++
	}
	return n, iter.Err()
}
