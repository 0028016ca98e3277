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

	_ "modernc.org/sqlite"

	logx "sigrelay/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: writers are serialized here instead of fighting over the file lock.
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
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Info("storage opened", logx.String("path", path))
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

func (s *sqliteStore) AppendSignal(ctx context.Context, r SignalRow) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO signals(received_at, ticker, action, price, sl, tp, timeframe, raw_payload)
		 VALUES(?,?,?,?,?,?,?,?)`,
		formatReceivedAt(r.ReceivedAt), nullStr(r.Ticker), nullStr(r.Action), nullStr(r.Price),
		nullStr(r.StopLoss), nullStr(r.TakeProfit), nullStr(r.Timeframe), r.RawPayload,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]SignalRow, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, received_at, ticker, action, price, sl, tp, timeframe, raw_payload
		 FROM signals ORDER BY id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var (
			r                             SignalRow
			at                            string
			ticker, action, price, sl, tp sql.NullString
			tf                            sql.NullString
		)
		if err := rows.Scan(&r.ID, &at, &ticker, &action, &price, &sl, &tp, &tf, &r.RawPayload); err != nil {
			return nil, err
		}
		r.ReceivedAt = parseReceivedAt(at)
		r.Ticker, r.Action, r.Price = ticker.String, action.String, price.String
		r.StopLoss, r.TakeProfit, r.Timeframe = sl.String, tp.String, tf.String
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}
