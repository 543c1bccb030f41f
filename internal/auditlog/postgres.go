package auditlog

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink persists audit events in PostgreSQL for deployments where the
// gateway host has a database available. The full record is kept as JSONB so
// the schema does not chase the event type set.
type PostgresSink struct {
	mu   sync.Mutex
	pool *pgxpool.Pool
}

func NewPostgresSink(ctx context.Context, databaseURL string) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresSink{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			sender TEXT,
			record JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_ts ON audit_events (ts);`,
		`CREATE INDEX IF NOT EXISTS idx_audit_events_sender_ts ON audit_events (sender, ts);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresSink) Append(ev Event) error {
	stamp(&ev)
	record, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.pool.Exec(context.Background(),
		`INSERT INTO audit_events (id, type, ts, sender, record) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, string(ev.Type), ev.TS, ev.Sender, record,
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	s.pool.Close()
	return nil
}
