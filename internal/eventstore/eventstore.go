// Package eventstore persists a simulation's event log to SQLite as an
// append-only audit trail, and exports it as JSON-Lines for a replay
// consumer that never needs the database at all.
//
// Built on internal/database (database.New with the "ledger" profile:
// synchronous=FULL, auto_vacuum=NONE, WAL — maximum safety for an
// immutable record of money movement) and its WithTransaction helper,
// which this package reuses directly rather than re-implementing
// begin/commit/rollback bookkeeping.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/simcash/simcash/internal/database"
	"github.com/simcash/simcash/internal/events"
)

// Store wraps a ledger-profile database.DB scoped to one simulation's
// event log.
type Store struct {
	db *database.DB
}

// Open creates or opens the event database at path (use "file::memory:?cache=shared"
// for an ephemeral in-test store) and ensures its schema exists via
// database.DB.Migrate, which reads internal/database/schemas/events_schema.sql.
func Open(path string) (*Store, error) {
	db, err := database.New(database.Config{
		Path:    path,
		Profile: database.ProfileLedger,
		Name:    "events",
	})
	if err != nil {
		return nil, fmt.Errorf("eventstore: open: %w", err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("eventstore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AppendTick persists every event emitted during one tick in a single
// transaction, matching the tick-atomicity the orchestrator already
// guarantees in memory: either the whole tick's events land, or none
// do.
func (s *Store) AppendTick(records []events.Record) error {
	if len(records) == 0 {
		return nil
	}
	return database.WithTransaction(s.db.Conn(), func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`
			INSERT INTO events (sim_id, tick, day, intra_tick_seq, event_type, event_id, tx_id, agent_id, details_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range records {
			detailsJSON, err := json.Marshal(r.Details)
			if err != nil {
				return fmt.Errorf("marshal details for %s: %w", r.EventID, err)
			}
			if _, err := stmt.Exec(
				r.SimID, r.Tick, r.Day, r.IntraTickSeq, string(r.EventType), r.EventID,
				nullableString(r.TxID), nullableString(r.AgentID), string(detailsJSON),
			); err != nil {
				return fmt.Errorf("insert event %s: %w", r.EventID, err)
			}
		}
		return nil
	})
}

func nullableString(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// CountEvents returns the total number of persisted events.
func (s *Store) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("eventstore: count: %w", err)
	}
	return n, nil
}

// Ping reports whether the store's connection and data file are
// healthy, delegating to the database layer's QuickCheck.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.QuickCheck(ctx)
}
