// Package leveldb é o store embutido para um único nó, sobre goleveldb.
// Cada Update roda numa goleveldb.Transaction (escrita exclusiva); View usa snapshot.
package leveldb

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	goleveldb "github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/radieske/coinflip-vault/internal/vault"
)

var (
	keyConfig    = []byte("cfg")
	keyInfo      = []byte("info")
	keyNextBet   = []byte("next_bet")
	keyOutboxSeq = []byte("outbox_seq")
	keyLastBlock = []byte("last_block")

	prefixBalance = "bal/"
	prefixBet     = "bet/"
	prefixOpen    = "open/"
	prefixDaily   = "day/"
	prefixNote    = "note/"
	prefixOutbox  = "outbox/"
	prefixOutID   = "outbox_id/"
	prefixSent    = "sent/"
	prefixFlows   = "flows/"
)

func betKey(id uint64) []byte { return []byte(fmt.Sprintf("%s%020d", prefixBet, id)) }

func dailyKey(account string, day uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d/%s", prefixDaily, day, account))
}

type Store struct {
	db *goleveldb.DB
}

// Open abre (ou cria) o banco em path, recuperando arquivos corrompidos
func Open(path string) (*Store, error) {
	opts := &opt.Options{
		OpenFilesCacheCapacity: 64,
		BlockCacheCapacity:     32 * opt.MiB,
		WriteBuffer:            16 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
	db, err := goleveldb.OpenFile(path, opts)
	if _, corrupted := err.(*lerrors.ErrCorrupted); corrupted {
		db, err = goleveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "open leveldb %s", path)
	}
	return &Store{db: db}, nil
}

// NewWithStorage usa um storage arbitrário (storage.NewMemStorage() nos testes)
func NewWithStorage(stor storage.Storage) (*Store, error) {
	db, err := goleveldb.Open(stor, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb storage")
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Update(ctx context.Context, fn func(tx vault.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return errors.Wrap(err, "open transaction")
	}
	if err := fn(&tx{r: tr, w: tr}); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx vault.ReadTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}
	defer snap.Release()
	return fn(&tx{r: snap})
}

func (s *Store) PendingOutbox(_ context.Context, limit int) ([]vault.OutboxRecord, error) {
	it := s.db.NewIterator(util.BytesPrefix([]byte(prefixOutbox)), nil)
	defer it.Release()

	var out []vault.OutboxRecord
	for it.Next() {
		var rec vault.OutboxRecord
		if err := json.Unmarshal(it.Value(), &rec); err != nil {
			return nil, errors.Wrap(err, "decode outbox record")
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, errors.Wrap(it.Error(), "iterate outbox")
}

func (s *Store) MarkOutboxSent(ctx context.Context, id string, at time.Time) error {
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return errors.Wrap(err, "open transaction")
	}
	defer tr.Discard()

	seqKey, err := tr.Get([]byte(prefixOutID+id), nil)
	if err == goleveldb.ErrNotFound {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load outbox index")
	}
	if err := tr.Delete(seqKey, nil); err != nil {
		return errors.Wrap(err, "delete outbox record")
	}
	if err := tr.Delete([]byte(prefixOutID+id), nil); err != nil {
		return errors.Wrap(err, "delete outbox index")
	}
	if err := tr.Put([]byte(prefixSent+id), []byte(at.UTC().Format(time.RFC3339Nano)), nil); err != nil {
		return errors.Wrap(err, "mark sent")
	}
	return errors.Wrap(tr.Commit(), "commit")
}

type reader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type writer interface {
	Put(key, value []byte, wo *opt.WriteOptions) error
	Delete(key []byte, wo *opt.WriteOptions) error
}

type tx struct {
	r reader
	w writer // nil em View
}

var errReadOnly = errors.New("leveldb store: write in read-only transaction")

// getJSON retorna false se a chave não existe
func (t *tx) getJSON(key []byte, v any) (bool, error) {
	raw, err := t.r.Get(key, nil)
	if err == goleveldb.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get %s", key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, errors.Wrapf(err, "decode %s", key)
	}
	return true, nil
}

func (t *tx) putJSON(key []byte, v any) error {
	if t.w == nil {
		return errReadOnly
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return errors.Wrapf(t.w.Put(key, raw, nil), "put %s", key)
}

func (t *tx) Config(context.Context) (vault.Config, error) {
	var cfg vault.Config
	ok, err := t.getJSON(keyConfig, &cfg)
	if err != nil {
		return vault.Config{}, err
	}
	if !ok {
		return vault.Config{}, vault.ErrNotInstantiated
	}
	return cfg, nil
}

func (t *tx) ContractInfo(context.Context) (vault.ContractInfo, error) {
	var info vault.ContractInfo
	ok, err := t.getJSON(keyInfo, &info)
	if err != nil {
		return vault.ContractInfo{}, err
	}
	if !ok {
		return vault.ContractInfo{}, vault.ErrNotInstantiated
	}
	return info, nil
}

func (t *tx) NextBetID(context.Context) (uint64, error) {
	var id uint64
	_, err := t.getJSON(keyNextBet, &id)
	return id, err
}

func (t *tx) Balance(_ context.Context, account string) (vault.VaultBalance, error) {
	var bal vault.VaultBalance
	_, err := t.getJSON([]byte(prefixBalance+account), &bal)
	return bal, err
}

func (t *tx) TotalTracked(context.Context) (vault.Amount, error) {
	it := t.r.NewIterator(util.BytesPrefix([]byte(prefixBalance)), nil)
	defer it.Release()

	total := vault.ZeroAmount()
	for it.Next() {
		var bal vault.VaultBalance
		if err := json.Unmarshal(it.Value(), &bal); err != nil {
			return vault.Amount{}, errors.Wrap(err, "decode balance")
		}
		sum, err := bal.Total()
		if err != nil {
			return vault.Amount{}, err
		}
		if total, err = total.Add(sum); err != nil {
			return vault.Amount{}, err
		}
	}
	return total, errors.Wrap(it.Error(), "iterate balances")
}

func (t *tx) Bet(_ context.Context, id uint64) (vault.Bet, error) {
	var b vault.Bet
	ok, err := t.getJSON(betKey(id), &b)
	if err != nil {
		return vault.Bet{}, err
	}
	if !ok {
		return vault.Bet{}, vault.BetNotFound(id)
	}
	return b, nil
}

func (t *tx) ListBets(_ context.Context, f vault.BetFilter) ([]vault.Bet, error) {
	// ids com zero à esquerda: ordem lexicográfica == ordem numérica
	rng := util.BytesPrefix([]byte(prefixBet))
	rng.Start = betKey(f.StartAfter + 1)
	it := t.r.NewIterator(rng, nil)
	defer it.Release()

	var out []vault.Bet
	for it.Next() {
		var b vault.Bet
		if err := json.Unmarshal(it.Value(), &b); err != nil {
			return nil, errors.Wrap(err, "decode bet")
		}
		if !f.Match(b) {
			continue
		}
		out = append(out, b)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, errors.Wrap(it.Error(), "iterate bets")
}

func (t *tx) OpenBetCount(_ context.Context, account string) (uint16, error) {
	var n uint16
	_, err := t.getJSON([]byte(prefixOpen+account), &n)
	return n, err
}

func (t *tx) DailyUsage(_ context.Context, account string, day uint64) (vault.Amount, error) {
	var used vault.Amount
	_, err := t.getJSON(dailyKey(account, day), &used)
	return used, err
}

func (t *tx) SaveConfig(_ context.Context, c vault.Config) error { return t.putJSON(keyConfig, c) }

func (t *tx) SaveContractInfo(_ context.Context, info vault.ContractInfo) error {
	return t.putJSON(keyInfo, info)
}

func (t *tx) SetNextBetID(_ context.Context, id uint64) error { return t.putJSON(keyNextBet, id) }

func (t *tx) SaveBalance(_ context.Context, account string, b vault.VaultBalance) error {
	return t.putJSON([]byte(prefixBalance+account), b)
}

func (t *tx) SaveBet(_ context.Context, b vault.Bet) error { return t.putJSON(betKey(b.ID), b) }

func (t *tx) SetOpenBetCount(_ context.Context, account string, n uint16) error {
	return t.putJSON([]byte(prefixOpen+account), n)
}

func (t *tx) SetDailyUsage(_ context.Context, account string, day uint64, used vault.Amount) error {
	return t.putJSON(dailyKey(account, day), used)
}

func (t *tx) MarkNotification(_ context.Context, id string) (bool, error) {
	key := []byte(prefixNote + id)
	if _, err := t.r.Get(key, nil); err == nil {
		return false, nil
	} else if err != goleveldb.ErrNotFound {
		return false, errors.Wrap(err, "load notification")
	}
	if err := t.putJSON(key, time.Now().UTC()); err != nil {
		return false, err
	}
	return true, nil
}

func (t *tx) Enqueue(_ context.Context, rec vault.OutboxRecord) error {
	var seq uint64
	if _, err := t.getJSON(keyOutboxSeq, &seq); err != nil {
		return err
	}
	seq++
	if err := t.putJSON(keyOutboxSeq, seq); err != nil {
		return err
	}
	key := fmt.Sprintf("%s%020d", prefixOutbox, seq)
	if err := t.putJSON([]byte(key), rec); err != nil {
		return err
	}
	return errors.Wrap(t.w.Put([]byte(prefixOutID+rec.ID), []byte(key), nil), "put outbox index")
}

func (t *tx) LastBlock(context.Context) (vault.Env, error) {
	var env vault.Env
	_, err := t.getJSON(keyLastBlock, &env)
	return env, err
}

func (t *tx) SaveLastBlock(_ context.Context, env vault.Env) error {
	return t.putJSON(keyLastBlock, env)
}

func (t *tx) Flows(_ context.Context, token string) (vault.Flows, error) {
	var f vault.Flows
	_, err := t.getJSON([]byte(prefixFlows+token), &f)
	return f, err
}

func (t *tx) SaveFlows(_ context.Context, token string, f vault.Flows) error {
	return t.putJSON([]byte(prefixFlows+token), f)
}

func (t *tx) Reset(context.Context) (vault.ResetCounts, error) {
	if t.w == nil {
		return vault.ResetCounts{}, errReadOnly
	}
	var counts vault.ResetCounts
	for _, p := range []struct {
		prefix string
		n      *uint64
	}{
		{prefixBalance, &counts.Balances},
		{prefixBet, &counts.Bets},
		{prefixOpen, &counts.OpenCounters},
		{prefixDaily, &counts.DailyUsage},
	} {
		keys, err := t.keys(p.prefix)
		if err != nil {
			return vault.ResetCounts{}, err
		}
		for _, k := range keys {
			if err := t.w.Delete(k, nil); err != nil {
				return vault.ResetCounts{}, errors.Wrapf(err, "delete %s", k)
			}
		}
		*p.n = uint64(len(keys))
	}
	return counts, nil
}

// keys coleta as chaves antes de apagar; não mexemos no memdb durante a iteração
func (t *tx) keys(prefix string) ([][]byte, error) {
	it := t.r.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer it.Release()
	var out [][]byte
	for it.Next() {
		out = append(out, append([]byte(nil), it.Key()...))
	}
	return out, errors.Wrapf(it.Error(), "iterate %s", strings.TrimSuffix(prefix, "/"))
}

// Stats expõe contadores internos do goleveldb (diagnóstico)
func (s *Store) Stats() map[string]string {
	stats := map[string]string{}
	for _, k := range []string{"leveldb.stats", "leveldb.alivesnaps", "leveldb.aliveiters"} {
		if v, err := s.db.GetProperty(k); err == nil {
			stats[k] = v
		}
	}
	stats["outbox_seq"] = "0"
	if raw, err := s.db.Get(keyOutboxSeq, nil); err == nil {
		if n, err := strconv.ParseUint(string(raw), 10, 64); err == nil {
			stats["outbox_seq"] = strconv.FormatUint(n, 10)
		}
	}
	return stats
}
