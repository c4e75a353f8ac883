// Package memory é o store em memória: determinístico, usado em testes e no modo dev.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/radieske/coinflip-vault/internal/vault"
)

type dailyKey struct {
	account string
	day     uint64
}

type state struct {
	config        *vault.Config
	info          vault.ContractInfo
	nextBetID     uint64
	balances      map[string]vault.VaultBalance
	bets          map[uint64]vault.Bet
	openCounts    map[string]uint16
	daily         map[dailyKey]vault.Amount
	notifications map[string]struct{}
	flows         map[string]vault.Flows
	lastBlock     vault.Env
}

func newState() *state {
	return &state{
		balances:      map[string]vault.VaultBalance{},
		bets:          map[uint64]vault.Bet{},
		openCounts:    map[string]uint16{},
		daily:         map[dailyKey]vault.Amount{},
		notifications: map[string]struct{}{},
		flows:         map[string]vault.Flows{},
	}
}

func (s *state) clone() *state {
	c := newState()
	if s.config != nil {
		cfg := *s.config
		c.config = &cfg
	}
	c.info = s.info
	c.nextBetID = s.nextBetID
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.bets {
		c.bets[k] = v
	}
	for k, v := range s.openCounts {
		c.openCounts[k] = v
	}
	for k, v := range s.daily {
		c.daily[k] = v
	}
	for k := range s.notifications {
		c.notifications[k] = struct{}{}
	}
	for k, v := range s.flows {
		c.flows[k] = v
	}
	c.lastBlock = s.lastBlock
	return c
}

// Store serializa as operações com um mutex e aplica uma cópia só no sucesso.
// O outbox fica fora do estado copiado: a transação acumula os registros e o
// commit os anexa; registros enviados saem da fila.
type Store struct {
	mu     sync.RWMutex
	st     *state
	outbox []vault.OutboxRecord
}

func New() *Store { return &Store{st: newState()} }

func (s *Store) Update(ctx context.Context, fn func(tx vault.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{st: s.st.clone()}
	if err := fn(t); err != nil {
		return err
	}
	s.st = t.st
	s.outbox = append(s.outbox, t.pending...)
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx vault.ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&tx{st: s.st, readOnly: true})
}

func (s *Store) PendingOutbox(_ context.Context, limit int) ([]vault.OutboxRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.outbox)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]vault.OutboxRecord(nil), s.outbox[:n]...), nil
}

func (s *Store) MarkOutboxSent(_ context.Context, id string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.outbox {
		if rec.ID == id {
			s.outbox = append(s.outbox[:i], s.outbox[i+1:]...)
			break
		}
	}
	return nil
}

type tx struct {
	st       *state
	readOnly bool
	pending  []vault.OutboxRecord
}

var errReadOnly = fmt.Errorf("memory store: write in read-only transaction")

func (t *tx) write() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *tx) Config(context.Context) (vault.Config, error) {
	if t.st.config == nil {
		return vault.Config{}, vault.ErrNotInstantiated
	}
	return *t.st.config, nil
}

func (t *tx) ContractInfo(context.Context) (vault.ContractInfo, error) {
	if t.st.config == nil {
		return vault.ContractInfo{}, vault.ErrNotInstantiated
	}
	return t.st.info, nil
}

func (t *tx) NextBetID(context.Context) (uint64, error) { return t.st.nextBetID, nil }

func (t *tx) Balance(_ context.Context, account string) (vault.VaultBalance, error) {
	return t.st.balances[account], nil
}

func (t *tx) TotalTracked(context.Context) (vault.Amount, error) {
	total := vault.ZeroAmount()
	for _, b := range t.st.balances {
		sum, err := b.Total()
		if err != nil {
			return vault.Amount{}, err
		}
		if total, err = total.Add(sum); err != nil {
			return vault.Amount{}, err
		}
	}
	return total, nil
}

func (t *tx) Bet(_ context.Context, id uint64) (vault.Bet, error) {
	b, ok := t.st.bets[id]
	if !ok {
		return vault.Bet{}, vault.BetNotFound(id)
	}
	return b, nil
}

func (t *tx) ListBets(_ context.Context, f vault.BetFilter) ([]vault.Bet, error) {
	ids := make([]uint64, 0, len(t.st.bets))
	for id := range t.st.bets {
		if id > f.StartAfter {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []vault.Bet
	for _, id := range ids {
		b := t.st.bets[id]
		if !f.Match(b) {
			continue
		}
		out = append(out, b)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (t *tx) OpenBetCount(_ context.Context, account string) (uint16, error) {
	return t.st.openCounts[account], nil
}

func (t *tx) DailyUsage(_ context.Context, account string, day uint64) (vault.Amount, error) {
	return t.st.daily[dailyKey{account, day}], nil
}

func (t *tx) SaveConfig(_ context.Context, c vault.Config) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.config = &c
	return nil
}

func (t *tx) SaveContractInfo(_ context.Context, info vault.ContractInfo) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.info = info
	return nil
}

func (t *tx) SetNextBetID(_ context.Context, id uint64) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.nextBetID = id
	return nil
}

func (t *tx) SaveBalance(_ context.Context, account string, b vault.VaultBalance) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.balances[account] = b
	return nil
}

func (t *tx) SaveBet(_ context.Context, b vault.Bet) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.bets[b.ID] = b
	return nil
}

func (t *tx) SetOpenBetCount(_ context.Context, account string, n uint16) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.openCounts[account] = n
	return nil
}

func (t *tx) SetDailyUsage(_ context.Context, account string, day uint64, used vault.Amount) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.daily[dailyKey{account, day}] = used
	return nil
}

func (t *tx) MarkNotification(_ context.Context, id string) (bool, error) {
	if err := t.write(); err != nil {
		return false, err
	}
	if _, seen := t.st.notifications[id]; seen {
		return false, nil
	}
	t.st.notifications[id] = struct{}{}
	return true, nil
}

func (t *tx) Enqueue(_ context.Context, rec vault.OutboxRecord) error {
	if err := t.write(); err != nil {
		return err
	}
	t.pending = append(t.pending, rec)
	return nil
}

func (t *tx) LastBlock(context.Context) (vault.Env, error) { return t.st.lastBlock, nil }

func (t *tx) SaveLastBlock(_ context.Context, env vault.Env) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.lastBlock = env
	return nil
}

func (t *tx) Flows(_ context.Context, token string) (vault.Flows, error) {
	return t.st.flows[token], nil
}

func (t *tx) SaveFlows(_ context.Context, token string, f vault.Flows) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.flows[token] = f
	return nil
}

func (t *tx) Reset(context.Context) (vault.ResetCounts, error) {
	if err := t.write(); err != nil {
		return vault.ResetCounts{}, err
	}
	counts := vault.ResetCounts{
		Balances:     uint64(len(t.st.balances)),
		Bets:         uint64(len(t.st.bets)),
		OpenCounters: uint64(len(t.st.openCounts)),
		DailyUsage:   uint64(len(t.st.daily)),
	}
	t.st.balances = map[string]vault.VaultBalance{}
	t.st.bets = map[uint64]vault.Bet{}
	t.st.openCounts = map[string]uint16{}
	t.st.daily = map[dailyKey]vault.Amount{}
	return counts, nil
}
