package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/devblac/syt-bridge/internal/domain"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store wraps SQLite-backed persistence for debates, evidence, audit cursors
// and sink deliveries.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS debates (
  id                INTEGER PRIMARY KEY AUTOINCREMENT,
  debate_id         INTEGER NOT NULL,
  chain_id          INTEGER NOT NULL,
  title             TEXT NOT NULL,
  description       TEXT NOT NULL,
  asset_url         TEXT,
  creation_tx_hash  TEXT NOT NULL,
  created_at        TIMESTAMP NOT NULL,
  updated_at        TIMESTAMP NOT NULL,
  UNIQUE(chain_id, debate_id)
);

CREATE TABLE IF NOT EXISTS evidence (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  debate_id_pg  INTEGER NOT NULL REFERENCES debates(id),
  content       TEXT NOT NULL,
  asset_url     TEXT,
  created_at    TIMESTAMP NOT NULL,
  updated_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS evidence_debate_idx ON evidence(debate_id_pg, created_at);

CREATE TABLE IF NOT EXISTS audit_cursors (
  chain_id    INTEGER PRIMARY KEY,
  block       INTEGER NOT NULL,
  updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS deliveries (
  debate_id_pg  INTEGER NOT NULL REFERENCES debates(id),
  sink_id       TEXT NOT NULL,
  status        TEXT NOT NULL,
  response_code INTEGER,
  created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(debate_id_pg, sink_id)
);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const debateColumns = `id, debate_id, chain_id, title, description, asset_url, creation_tx_hash, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDebate(row scanner) (domain.Debate, error) {
	var (
		d     domain.Debate
		asset sql.NullString
	)
	err := row.Scan(&d.ID, &d.DebateID, &d.ChainID, &d.Title, &d.Description, &asset, &d.CreationTxHash, &d.CreatedAt, &d.UpdatedAt)
	d.AssetURL = asset.String
	return d, err
}

// CreateDebate inserts a debate. A second row for the same (chain_id,
// debate_id) fails with domain.ErrStorageConflict.
func (s *Store) CreateDebate(ctx context.Context, d domain.Debate) (domain.Debate, error) {
	if d.ChainID <= 0 || d.DebateID < 0 || d.CreationTxHash == "" {
		return domain.Debate{}, fmt.Errorf("%w: chain id, debate id and tx hash required", domain.ErrInvalidInput)
	}
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO debates (debate_id, chain_id, title, description, asset_url, creation_tx_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?);
`, d.DebateID, d.ChainID, d.Title, d.Description, nullString(d.AssetURL), d.CreationTxHash, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Debate{}, fmt.Errorf("insert debate %d on chain %d: %w", d.DebateID, d.ChainID, domain.ErrStorageConflict)
		}
		return domain.Debate{}, fmt.Errorf("insert debate: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Debate{}, fmt.Errorf("debate id: %w", err)
	}
	d.ID = id
	d.CreatedAt, d.UpdatedAt = now, now
	return d, nil
}

// GetDebate loads a debate by primary key.
func (s *Store) GetDebate(ctx context.Context, id int64) (domain.Debate, error) {
	d, err := scanDebate(s.db.QueryRowContext(ctx, `SELECT `+debateColumns+` FROM debates WHERE id = ?;`, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Debate{}, fmt.Errorf("debate %d: %w", id, domain.ErrNotFound)
	case err != nil:
		return domain.Debate{}, fmt.Errorf("get debate: %w", err)
	}
	return d, nil
}

// GetDebateByChain loads a debate by its on-chain identity.
func (s *Store) GetDebateByChain(ctx context.Context, chainID, debateID int64) (domain.Debate, error) {
	d, err := scanDebate(s.db.QueryRowContext(ctx,
		`SELECT `+debateColumns+` FROM debates WHERE chain_id = ? AND debate_id = ?;`, chainID, debateID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Debate{}, fmt.Errorf("debate %d on chain %d: %w", debateID, chainID, domain.ErrNotFound)
	case err != nil:
		return domain.Debate{}, fmt.Errorf("get debate: %w", err)
	}
	return d, nil
}

// ListDebates returns every debate in insertion order.
func (s *Store) ListDebates(ctx context.Context) ([]domain.Debate, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+debateColumns+` FROM debates ORDER BY id ASC;`)
	if err != nil {
		return nil, fmt.Errorf("list debates: %w", err)
	}
	defer rows.Close()

	out := []domain.Debate{}
	for rows.Next() {
		d, err := scanDebate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debate: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// UpdateDebate corrects the title and description. The on-chain identity and
// creation tx are immutable.
func (s *Store) UpdateDebate(ctx context.Context, id int64, title, description string) (domain.Debate, error) {
	var out domain.Debate
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE debates SET title = ?, description = ?, updated_at = ? WHERE id = ?;
`, title, description, s.now().UTC(), id)
		if err != nil {
			return fmt.Errorf("update debate: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("debate %d: %w", id, domain.ErrNotFound)
		}
		out, err = scanDebate(tx.QueryRowContext(ctx, `SELECT `+debateColumns+` FROM debates WHERE id = ?;`, id))
		if err != nil {
			return fmt.Errorf("reload debate: %w", err)
		}
		return nil
	})
	return out, err
}

// CreateEvidence appends an evidence row to an existing debate.
func (s *Store) CreateEvidence(ctx context.Context, e domain.Evidence) (domain.Evidence, error) {
	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO evidence (debate_id_pg, content, asset_url, created_at, updated_at)
VALUES (?, ?, ?, ?, ?);
`, e.DebateIDPg, e.Content, nullString(e.AssetURL), now, now)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Evidence{}, fmt.Errorf("debate %d: %w", e.DebateIDPg, domain.ErrNotFound)
		}
		return domain.Evidence{}, fmt.Errorf("insert evidence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Evidence{}, fmt.Errorf("evidence id: %w", err)
	}
	e.ID = id
	e.CreatedAt, e.UpdatedAt = now, now
	return e, nil
}

// ListEvidence returns a debate's evidence oldest first.
func (s *Store) ListEvidence(ctx context.Context, debateIDPg int64) ([]domain.Evidence, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, debate_id_pg, content, asset_url, created_at, updated_at
FROM evidence WHERE debate_id_pg = ? ORDER BY created_at ASC, id ASC;
`, debateIDPg)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()

	out := []domain.Evidence{}
	for rows.Next() {
		var (
			e     domain.Evidence
			asset sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.DebateIDPg, &e.Content, &asset, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		e.AssetURL = asset.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertAuditCursor records the last block scanned by an audit on chainID.
func (s *Store) UpsertAuditCursor(ctx context.Context, chainID int64, block uint64) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO audit_cursors (chain_id, block, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(chain_id) DO UPDATE SET
  block=excluded.block,
  updated_at=CURRENT_TIMESTAMP;
`, chainID, block)
	if err != nil {
		return fmt.Errorf("upsert audit cursor: %w", err)
	}
	return nil
}

// GetAuditCursor retrieves the audit cursor for chainID.
func (s *Store) GetAuditCursor(ctx context.Context, chainID int64) (block uint64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT block FROM audit_cursors WHERE chain_id = ?;`, chainID)
	switch err = row.Scan(&block); {
	case err == nil:
		return block, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("get audit cursor: %w", err)
	}
}

// Delivery is one sink notification attempt for a debate.
type Delivery struct {
	DebateIDPg   int64
	SinkID       string
	Status       string
	ResponseCode int
	CreatedAt    time.Time
}

// RecordDelivery stores the latest delivery outcome per debate and sink.
func (s *Store) RecordDelivery(ctx context.Context, d Delivery) error {
	if d.DebateIDPg <= 0 || d.SinkID == "" || d.Status == "" {
		return errors.New("debate_id_pg, sink_id, and status are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO deliveries (debate_id_pg, sink_id, status, response_code, created_at)
VALUES (?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP))
ON CONFLICT(debate_id_pg, sink_id) DO UPDATE SET
  status=excluded.status,
  response_code=excluded.response_code,
  created_at=excluded.created_at;
`, d.DebateIDPg, d.SinkID, d.Status, d.ResponseCode, nullTime(d.CreatedAt))
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	return nil
}

// Deliveries lists delivery outcomes for a debate ordered by sink id.
func (s *Store) Deliveries(ctx context.Context, debateIDPg int64) ([]Delivery, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT debate_id_pg, sink_id, status, COALESCE(response_code, 0), created_at
FROM deliveries WHERE debate_id_pg = ? ORDER BY sink_id;
`, debateIDPg)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()
	var out []Delivery
	for rows.Next() {
		var d Delivery
		if err := rows.Scan(&d.DebateIDPg, &d.SinkID, &d.Status, &d.ResponseCode, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// WithTx executes a callback inside a transaction for callers needing atomicity.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
