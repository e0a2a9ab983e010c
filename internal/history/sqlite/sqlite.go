package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/loykin/llamactl/internal/history"
)

// Sink writes history events to SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite history sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = dsn[len("sqlite://"):]
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS launch_history(
			occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
			event TEXT NOT NULL,
			process_id TEXT NOT NULL,
			model_name TEXT NOT NULL,
			model_path TEXT NOT NULL,
			host TEXT NOT NULL,
			port INTEGER NOT NULL,
			pid INTEGER NOT NULL,
			status TEXT NOT NULL,
			exit_code INTEGER
		);`,
		`CREATE INDEX IF NOT EXISTS idx_launch_history_process ON launch_history(process_id);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	rec := e.Record
	var code any
	if rec.ExitCode != nil {
		code = *rec.ExitCode
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO launch_history(occurred_at, event, process_id, model_name, model_path, host, port, pid, status, exit_code)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), string(e.Type), rec.ProcessID, rec.ModelName, rec.ModelPath, rec.Host, int(rec.Port), rec.PID, rec.Status, code)
	return err
}

// Events returns the recorded events for processID in insertion order.
func (s *Sink) Events(ctx context.Context, processID string) ([]history.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, event, process_id, model_name, model_path, host, port, pid, status, exit_code
		FROM launch_history WHERE process_id = ? ORDER BY rowid;`, processID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []history.Event
	for rows.Next() {
		var (
			e    history.Event
			typ  string
			port int
			code sql.NullInt64
		)
		if err := rows.Scan(&e.OccurredAt, &typ, &e.Record.ProcessID, &e.Record.ModelName, &e.Record.ModelPath,
			&e.Record.Host, &port, &e.Record.PID, &e.Record.Status, &code); err != nil {
			return nil, err
		}
		e.Type = history.EventType(typ)
		e.Record.Port = uint16(port)
		if code.Valid {
			c := int(code.Int64)
			e.Record.ExitCode = &c
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
