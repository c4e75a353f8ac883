package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/radieske/coinflip-vault/internal/vault"
)

//go:embed schema.sql
var schema string

// Store implementa vault.Store em Postgres.
// Toda escrita trava a linha singleton de vault_state, serializando as operações.
type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store { return &Store{db: db} }

// Migrate aplica o schema (idempotente)
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return errors.Wrap(err, "apply schema")
}

func (s *Store) Update(ctx context.Context, fn func(tx vault.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `SELECT 1 FROM vault_state WHERE id=1 FOR UPDATE`); err != nil {
		return errors.Wrap(err, "lock vault_state")
	}
	if err := fn(&tx{q: sqlTx}); err != nil {
		return err
	}
	return errors.Wrap(sqlTx.Commit(), "commit")
}

func (s *Store) View(ctx context.Context, fn func(tx vault.ReadTx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true, Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return errors.Wrap(err, "begin read")
	}
	defer sqlTx.Rollback()
	return fn(&tx{q: sqlTx, readOnly: true})
}

func (s *Store) PendingOutbox(ctx context.Context, limit int) ([]vault.OutboxRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, key, payload, created_at
		FROM vault_outbox
		WHERE sent_at IS NULL
		ORDER BY seq
		LIMIT $1`, nullLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "query outbox")
	}
	defer rows.Close()

	var out []vault.OutboxRecord
	for rows.Next() {
		var rec vault.OutboxRecord
		var kind string
		if err := rows.Scan(&rec.ID, &kind, &rec.Key, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan outbox")
		}
		rec.Kind = vault.OutboxKind(kind)
		out = append(out, rec)
	}
	return out, errors.Wrap(rows.Err(), "iterate outbox")
}

func (s *Store) MarkOutboxSent(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE vault_outbox SET sent_at=$2 WHERE id=$1 AND sent_at IS NULL`, id, at)
	return errors.Wrap(err, "mark outbox sent")
}

func nullLimit(limit int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type tx struct {
	q        querier
	readOnly bool
}

var errReadOnly = errors.New("postgres store: write in read-only transaction")

func (t *tx) exec(ctx context.Context, what, query string, args ...any) (sql.Result, error) {
	if t.readOnly {
		return nil, errReadOnly
	}
	res, err := t.q.ExecContext(ctx, query, args...)
	return res, errors.Wrap(err, what)
}

func parseAmount(s string) (vault.Amount, error) {
	a, err := vault.ParseAmount(s)
	return a, errors.Wrapf(err, "decode numeric %q", s)
}

func (t *tx) Config(ctx context.Context) (vault.Config, error) {
	var raw []byte
	if err := t.q.QueryRowContext(ctx, `SELECT config FROM vault_state WHERE id=1`).Scan(&raw); err != nil {
		return vault.Config{}, errors.Wrap(err, "load config")
	}
	if raw == nil {
		return vault.Config{}, vault.ErrNotInstantiated
	}
	var cfg vault.Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return vault.Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

func (t *tx) ContractInfo(ctx context.Context) (vault.ContractInfo, error) {
	var info vault.ContractInfo
	if err := t.q.QueryRowContext(ctx, `SELECT contract, version FROM vault_state WHERE id=1`).Scan(&info.Contract, &info.Version); err != nil {
		return vault.ContractInfo{}, errors.Wrap(err, "load contract info")
	}
	if info.Contract == "" {
		return vault.ContractInfo{}, vault.ErrNotInstantiated
	}
	return info, nil
}

func (t *tx) NextBetID(ctx context.Context) (uint64, error) {
	var id int64
	err := t.q.QueryRowContext(ctx, `SELECT next_bet_id FROM vault_state WHERE id=1`).Scan(&id)
	return uint64(id), errors.Wrap(err, "load next bet id")
}

func (t *tx) Balance(ctx context.Context, account string) (vault.VaultBalance, error) {
	var avail, locked string
	err := t.q.QueryRowContext(ctx, `SELECT available::text, locked::text FROM vault_balances WHERE account=$1`, account).Scan(&avail, &locked)
	if err == sql.ErrNoRows {
		return vault.VaultBalance{}, nil
	}
	if err != nil {
		return vault.VaultBalance{}, errors.Wrap(err, "load balance")
	}
	var bal vault.VaultBalance
	if bal.Available, err = parseAmount(avail); err != nil {
		return vault.VaultBalance{}, err
	}
	if bal.Locked, err = parseAmount(locked); err != nil {
		return vault.VaultBalance{}, err
	}
	return bal, nil
}

func (t *tx) TotalTracked(ctx context.Context) (vault.Amount, error) {
	var total string
	if err := t.q.QueryRowContext(ctx, `SELECT COALESCE(SUM(available + locked), 0)::text FROM vault_balances`).Scan(&total); err != nil {
		return vault.Amount{}, errors.Wrap(err, "sum balances")
	}
	return parseAmount(total)
}

func (t *tx) Bet(ctx context.Context, id uint64) (vault.Bet, error) {
	var raw []byte
	err := t.q.QueryRowContext(ctx, `SELECT body FROM vault_bets WHERE id=$1`, int64(id)).Scan(&raw)
	if err == sql.ErrNoRows {
		return vault.Bet{}, vault.BetNotFound(id)
	}
	if err != nil {
		return vault.Bet{}, errors.Wrap(err, "load bet")
	}
	var b vault.Bet
	if err := json.Unmarshal(raw, &b); err != nil {
		return vault.Bet{}, errors.Wrap(err, "decode bet")
	}
	return b, nil
}

func (t *tx) ListBets(ctx context.Context, f vault.BetFilter) ([]vault.Bet, error) {
	status := ""
	if f.Status != nil {
		status = f.Status.String()
	}
	rows, err := t.q.QueryContext(ctx, `
		SELECT body FROM vault_bets
		WHERE id > $1
		  AND ($2 = '' OR status = $2)
		  AND ($3 = '' OR maker = $3 OR acceptor = $3)
		ORDER BY id
		LIMIT $4`, int64(f.StartAfter), status, f.Account, nullLimit(f.Limit))
	if err != nil {
		return nil, errors.Wrap(err, "list bets")
	}
	defer rows.Close()

	var out []vault.Bet
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.Wrap(err, "scan bet")
		}
		var b vault.Bet
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, errors.Wrap(err, "decode bet")
		}
		out = append(out, b)
	}
	return out, errors.Wrap(rows.Err(), "iterate bets")
}

func (t *tx) OpenBetCount(ctx context.Context, account string) (uint16, error) {
	var n int
	err := t.q.QueryRowContext(ctx, `SELECT n FROM vault_open_counts WHERE account=$1`, account).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return uint16(n), errors.Wrap(err, "load open count")
}

func (t *tx) DailyUsage(ctx context.Context, account string, day uint64) (vault.Amount, error) {
	var used string
	err := t.q.QueryRowContext(ctx, `SELECT used::text FROM vault_daily_usage WHERE account=$1 AND day=$2`, account, int64(day)).Scan(&used)
	if err == sql.ErrNoRows {
		return vault.ZeroAmount(), nil
	}
	if err != nil {
		return vault.Amount{}, errors.Wrap(err, "load daily usage")
	}
	return parseAmount(used)
}

func (t *tx) SaveConfig(ctx context.Context, c vault.Config) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "encode config")
	}
	_, err = t.exec(ctx, "save config", `UPDATE vault_state SET config=$1 WHERE id=1`, string(raw))
	return err
}

func (t *tx) SaveContractInfo(ctx context.Context, info vault.ContractInfo) error {
	_, err := t.exec(ctx, "save contract info", `UPDATE vault_state SET contract=$1, version=$2 WHERE id=1`, info.Contract, info.Version)
	return err
}

func (t *tx) SetNextBetID(ctx context.Context, id uint64) error {
	_, err := t.exec(ctx, "save next bet id", `UPDATE vault_state SET next_bet_id=$1 WHERE id=1`, int64(id))
	return err
}

func (t *tx) SaveBalance(ctx context.Context, account string, b vault.VaultBalance) error {
	_, err := t.exec(ctx, "save balance", `
		INSERT INTO vault_balances(account, available, locked) VALUES($1, $2::numeric, $3::numeric)
		ON CONFLICT (account) DO UPDATE SET available=EXCLUDED.available, locked=EXCLUDED.locked`,
		account, b.Available.String(), b.Locked.String())
	return err
}

func (t *tx) SaveBet(ctx context.Context, b vault.Bet) error {
	raw, err := json.Marshal(b)
	if err != nil {
		return errors.Wrap(err, "encode bet")
	}
	var acceptor sql.NullString
	if b.Acceptor != nil {
		acceptor = sql.NullString{String: *b.Acceptor, Valid: true}
	}
	_, err = t.exec(ctx, "save bet", `
		INSERT INTO vault_bets(id, maker, acceptor, status, body) VALUES($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET acceptor=EXCLUDED.acceptor, status=EXCLUDED.status, body=EXCLUDED.body`,
		int64(b.ID), b.Maker, acceptor, b.Status.String(), string(raw))
	return err
}

func (t *tx) SetOpenBetCount(ctx context.Context, account string, n uint16) error {
	_, err := t.exec(ctx, "save open count", `
		INSERT INTO vault_open_counts(account, n) VALUES($1,$2)
		ON CONFLICT (account) DO UPDATE SET n=EXCLUDED.n`, account, int(n))
	return err
}

func (t *tx) SetDailyUsage(ctx context.Context, account string, day uint64, used vault.Amount) error {
	_, err := t.exec(ctx, "save daily usage", `
		INSERT INTO vault_daily_usage(account, day, used) VALUES($1,$2,$3::numeric)
		ON CONFLICT (account, day) DO UPDATE SET used=EXCLUDED.used`, account, int64(day), used.String())
	return err
}

func (t *tx) MarkNotification(ctx context.Context, id string) (bool, error) {
	res, err := t.exec(ctx, "mark notification", `INSERT INTO vault_notifications(id) VALUES($1) ON CONFLICT (id) DO NOTHING`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	return n == 1, nil
}

func (t *tx) Enqueue(ctx context.Context, rec vault.OutboxRecord) error {
	_, err := t.exec(ctx, "enqueue outbox", `
		INSERT INTO vault_outbox(id, kind, key, payload, created_at) VALUES($1,$2,$3,$4,$5)`,
		rec.ID, string(rec.Kind), rec.Key, string(rec.Payload), rec.CreatedAt)
	return err
}

func (t *tx) LastBlock(ctx context.Context) (vault.Env, error) {
	var height, at string
	if err := t.q.QueryRowContext(ctx, `SELECT last_height::text, last_time::text FROM vault_state WHERE id=1`).Scan(&height, &at); err != nil {
		return vault.Env{}, errors.Wrap(err, "load last block")
	}
	var env vault.Env
	var err error
	if env.Height, err = strconv.ParseUint(height, 10, 64); err != nil {
		return vault.Env{}, errors.Wrapf(err, "decode last height %q", height)
	}
	if env.Time, err = strconv.ParseUint(at, 10, 64); err != nil {
		return vault.Env{}, errors.Wrapf(err, "decode last time %q", at)
	}
	return env, nil
}

func (t *tx) SaveLastBlock(ctx context.Context, env vault.Env) error {
	_, err := t.exec(ctx, "save last block", `UPDATE vault_state SET last_height=$1::numeric, last_time=$2::numeric WHERE id=1`,
		strconv.FormatUint(env.Height, 10), strconv.FormatUint(env.Time, 10))
	return err
}

func (t *tx) Flows(ctx context.Context, token string) (vault.Flows, error) {
	var credited, instructed string
	err := t.q.QueryRowContext(ctx, `SELECT credited::text, instructed::text FROM vault_flows WHERE token=$1`, token).Scan(&credited, &instructed)
	if err == sql.ErrNoRows {
		return vault.Flows{}, nil
	}
	if err != nil {
		return vault.Flows{}, errors.Wrap(err, "load flows")
	}
	var f vault.Flows
	if f.Credited, err = parseAmount(credited); err != nil {
		return vault.Flows{}, err
	}
	if f.Instructed, err = parseAmount(instructed); err != nil {
		return vault.Flows{}, err
	}
	return f, nil
}

func (t *tx) SaveFlows(ctx context.Context, token string, f vault.Flows) error {
	_, err := t.exec(ctx, "save flows", `
		INSERT INTO vault_flows(token, credited, instructed) VALUES($1, $2::numeric, $3::numeric)
		ON CONFLICT (token) DO UPDATE SET credited=EXCLUDED.credited, instructed=EXCLUDED.instructed`,
		token, f.Credited.String(), f.Instructed.String())
	return err
}

func (t *tx) Reset(ctx context.Context) (vault.ResetCounts, error) {
	var counts vault.ResetCounts
	for _, step := range []struct {
		table string
		n     *uint64
	}{
		{"vault_balances", &counts.Balances},
		{"vault_bets", &counts.Bets},
		{"vault_open_counts", &counts.OpenCounters},
		{"vault_daily_usage", &counts.DailyUsage},
	} {
		res, err := t.exec(ctx, "reset "+step.table, `DELETE FROM `+step.table)
		if err != nil {
			return vault.ResetCounts{}, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return vault.ResetCounts{}, errors.Wrap(err, "rows affected")
		}
		*step.n = uint64(n)
	}
	return counts, nil
}
