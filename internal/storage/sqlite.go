package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "remibot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Insert(ctx context.Context, r Record) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.Category == "" || r.ID == "" {
		return errors.New("record needs category and id")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(category, id, owner, fire_at, payload, created_at)
		 VALUES(?,?,?,?,?,?)`,
		r.Category, r.ID, r.Owner, r.FireAt.UnixMilli(), string(r.Payload), time.Now().UnixMilli(),
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return fmt.Errorf("%s/%s: %w", r.Category, r.ID, ErrExists)
	}
	return err
}

func (s *sqliteStore) Get(ctx context.Context, category, id string) (Record, bool, error) {
	if s == nil || s.db == nil {
		return Record{}, false, ErrDisabled
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT owner, fire_at, payload FROM tasks WHERE category = ? AND id = ?`,
		category, id,
	)
	var (
		owner   int64
		fireAt  int64
		payload string
	)
	err := row.Scan(&owner, &fireAt, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return Record{
		Category: category,
		ID:       id,
		Owner:    owner,
		FireAt:   time.UnixMilli(fireAt),
		Payload:  []byte(payload),
	}, true, nil
}

const listOrder = ` ORDER BY fire_at ASC, created_at ASC, id ASC`

func (s *sqliteStore) ListCategory(ctx context.Context, category string) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, fire_at, payload FROM tasks WHERE category = ?`+listOrder,
		category,
	)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows, category)
}

func (s *sqliteStore) ListOwner(ctx context.Context, category string, owner int64) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner, fire_at, payload FROM tasks WHERE category = ? AND owner = ?`+listOrder,
		category, owner,
	)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows, category)
}

func scanRecords(rows *sql.Rows, category string) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var (
			id      string
			owner   int64
			fireAt  int64
			payload string
		)
		if err := rows.Scan(&id, &owner, &fireAt, &payload); err != nil {
			return nil, err
		}
		out = append(out, Record{
			Category: category,
			ID:       id,
			Owner:    owner,
			FireAt:   time.UnixMilli(fireAt),
			Payload:  []byte(payload),
		})
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountOwner(ctx context.Context, category string, owner int64) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tasks WHERE category = ? AND owner = ?`,
		category, owner,
	).Scan(&n)
	return n, err
}

func (s *sqliteStore) Delete(ctx context.Context, category, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE category = ? AND id = ?`,
		category, id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Maintain checkpoints the WAL and reclaims free pages. Intended to run
// from a low-traffic cron slot.
func (s *sqliteStore) Maintain(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	start := time.Now()
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA incremental_vacuum"); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return err
	}
	if !s.log.IsZero() {
		s.log.Debug("sqlite maintenance done", logx.Duration("took", time.Since(start)))
	}
	return nil
}
