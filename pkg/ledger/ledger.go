// Package ledger implements the Call Detail Ledger, a supplemented
// feature not named in the distilled spec: a write-once audit row per
// finalized Call, adapted from the teacher's pgx insert/update idiom in
// call-initiator.go. It is explicitly not a session-persistence layer:
// it never rehydrates a Call, only records one that has already ended.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/birddigital/voicebridge/pkg/call"
)

// Ledger writes finalized-Call audit rows to Postgres. The zero value is
// not usable; construct with Open. A nil *Ledger is valid and every
// method on it is a no-op, so callers can leave the ledger disabled by
// simply not calling Open.
type Ledger struct {
	pool *pgxpool.Pool
}

// Open connects to the ledger database and ensures its table exists.
// Callers typically call this once at startup when LEDGER_DATABASE_URL
// is set, and pass a nil *Ledger everywhere otherwise.
func Open(ctx context.Context, dsn string) (*Ledger, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: connect: %w", err)
	}
	l := &Ledger{pool: pool}
	if err := l.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS call_ledger (
	call_id        TEXT PRIMARY KEY,
	dialect        TEXT NOT NULL,
	caller_id      TEXT NOT NULL,
	called_id      TEXT NOT NULL,
	started_at     TIMESTAMPTZ NOT NULL,
	ended_at       TIMESTAMPTZ NOT NULL,
	final_state    TEXT NOT NULL,
	bytes_in       BIGINT NOT NULL,
	bytes_out      BIGINT NOT NULL,
	tool_call_count INT NOT NULL
)`
	_, err := l.pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("ledger: ensure schema: %w", err)
	}
	return nil
}

// RecordFinalized writes one row for a Call that has ended; a repeated
// call for the same Call id overwrites its end-of-call fields. Nothing
// in pkg/server or cmd/voicebridge calls it: the server's connection
// handler does not record finalized Calls.
func (l *Ledger) RecordFinalized(ctx context.Context, c *call.Call, finalState string, toolCallCount int) error {
	if l == nil {
		return nil
	}
	endedAt := c.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	const insert = `
INSERT INTO call_ledger
	(call_id, dialect, caller_id, called_id, started_at, ended_at, final_state, bytes_in, bytes_out, tool_call_count)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (call_id) DO UPDATE SET
	ended_at = EXCLUDED.ended_at,
	final_state = EXCLUDED.final_state,
	bytes_in = EXCLUDED.bytes_in,
	bytes_out = EXCLUDED.bytes_out,
	tool_call_count = EXCLUDED.tool_call_count
`
	_, err := l.pool.Exec(ctx, insert,
		c.ID, c.Dialect, c.CallerID, c.CalledID, c.StartedAt, endedAt, finalState, c.BytesIn, c.BytesOut, toolCallCount,
	)
	if err != nil {
		return fmt.Errorf("ledger: record finalized call %s: %w", c.ID, err)
	}
	return nil
}

// Close releases the underlying connection pool. Safe to call on a nil
// Ledger.
func (l *Ledger) Close() {
	if l == nil {
		return
	}
	l.pool.Close()
}
