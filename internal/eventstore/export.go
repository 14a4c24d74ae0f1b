package eventstore

import (
	"bufio"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"github.com/simcash/simcash/internal/events"
)

// row mirrors the events table's columns for scanning.
type row struct {
	SimID        string
	Tick         int64
	Day          int64
	IntraTickSeq int64
	EventType    string
	EventID      string
	TxID         sql.NullString
	AgentID      sql.NullString
	DetailsJSON  string
}

// ExportJSONL writes every persisted event to w, one JSON object per
// line in tick/intra_tick_seq order, matching wire format
// exactly — a replay consumer can read this file without ever opening
// the database.
func (s *Store) ExportJSONL(w io.Writer) error {
	rows, err := s.db.Conn().Query(`
		SELECT sim_id, tick, day, intra_tick_seq, event_type, event_id, tx_id, agent_id, details_json
		FROM events
		ORDER BY tick ASC, intra_tick_seq ASC
	`)
	if err != nil {
		return fmt.Errorf("eventstore: export query: %w", err)
	}
	defer rows.Close()

	bw := bufio.NewWriter(w)
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.SimID, &r.Tick, &r.Day, &r.IntraTickSeq, &r.EventType, &r.EventID, &r.TxID, &r.AgentID, &r.DetailsJSON); err != nil {
			return fmt.Errorf("eventstore: export scan: %w", err)
		}

		rec := events.Record{
			SimID:        r.SimID,
			Tick:         r.Tick,
			Day:          r.Day,
			IntraTickSeq: r.IntraTickSeq,
			EventType:    events.Type(r.EventType),
			EventID:      r.EventID,
		}
		if r.TxID.Valid {
			rec.TxID = &r.TxID.String
		}
		if r.AgentID.Valid {
			rec.AgentID = &r.AgentID.String
		}

		// Re-hydrate Record through its own UnmarshalJSON so the
		// exported line carries a typed details payload rather than a
		// raw column dump, even though we already have the pieces —
		// this keeps export and live-stream JSON byte-for-byte
		// identical in shape.
		envelope, err := json.Marshal(struct {
			SimID        string          `json:"sim_id"`
			Tick         int64           `json:"tick"`
			Day          int64           `json:"day"`
			IntraTickSeq int64           `json:"intra_tick_seq"`
			EventType    string          `json:"event_type"`
			EventID      string          `json:"event_id"`
			TxID         *string         `json:"tx_id,omitempty"`
			AgentID      *string         `json:"agent_id,omitempty"`
			Details      json.RawMessage `json:"details"`
		}{
			SimID: rec.SimID, Tick: rec.Tick, Day: rec.Day, IntraTickSeq: rec.IntraTickSeq,
			EventType: string(rec.EventType), EventID: rec.EventID, TxID: rec.TxID, AgentID: rec.AgentID,
			Details: json.RawMessage(r.DetailsJSON),
		})
		if err != nil {
			return fmt.Errorf("eventstore: export marshal %s: %w", r.EventID, err)
		}

		if _, err := bw.Write(envelope); err != nil {
			return fmt.Errorf("eventstore: export write: %w", err)
		}
		if _, err := bw.WriteString("\n"); err != nil {
			return fmt.Errorf("eventstore: export write newline: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("eventstore: export rows: %w", err)
	}
	return bw.Flush()
}

// LoadJSONL reads back a JSON-Lines export into typed Records, the
// counterpart a replay tool uses to reconstruct the totally-ordered
// event log without touching SQLite.
func LoadJSONL(r io.Reader) ([]events.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)
	var out []events.Record
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec events.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("eventstore: load jsonl: %w", err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("eventstore: load jsonl scan: %w", err)
	}
	return out, nil
}
