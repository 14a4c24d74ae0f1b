// Package events implements the event record and type taxonomy: a
// totally-ordered, JSON-Lines-persistable log of every observable
// thing that happens during a simulation. Replay identity requires
// that no field used for human-readable output be absent from the
// payload, so every EventType has its own typed Details struct rather
// than a loosely-typed map.
//
// The typed-union-over-json.RawMessage marshal/unmarshal shape is
// generalized from a closed set of portfolio events to the RTGS event
// alphabet below.
package events

import (
	"encoding/json"
	"fmt"
)

// Type is one of the event kinds names.
type Type string

const (
	Arrival                  Type = "Arrival"
	RtgsImmediateSettlement  Type = "RtgsImmediateSettlement"
	Queue2LiquidityRelease   Type = "Queue2LiquidityRelease"
	LsmBilateralOffset       Type = "LsmBilateralOffset"
	LsmCycleSettlement       Type = "LsmCycleSettlement"
	EntryDispositionOffset   Type = "EntryDispositionOffset"
	TransactionWentOverdue   Type = "TransactionWentOverdue"
	PolicySubmit             Type = "PolicySubmit"
	PolicyHold               Type = "PolicyHold"
	PolicyDrop               Type = "PolicyDrop"
	PolicySplit              Type = "PolicySplit"
	PolicyReprioritize       Type = "PolicyReprioritize"
	CollateralPost           Type = "CollateralPost"
	CollateralWithdraw       Type = "CollateralWithdraw"
	CostAccrual              Type = "CostAccrual"
	EndOfDay                 Type = "EndOfDay"
	ScenarioEventApplied     Type = "ScenarioEventApplied"
	PolicyEvaluationError    Type = "PolicyEvaluationError"
	NumericSaturation        Type = "NumericSaturation"
)

// Details is implemented by every typed payload struct below. The
// concrete type is selected by Record.EventType, not by any method on
// Details — it is a marker interface only, kept so Record.Details is
// statically narrower than interface{}.
type Details interface {
	isEventDetails()
}

// Record is the wire-level event of : `{ sim_id, tick, day,
// intra_tick_seq, event_type, event_id, tx_id?, agent_id?, details }`.
type Record struct {
	SimID        string  `json:"sim_id"`
	Tick         int64   `json:"tick"`
	Day          int64   `json:"day"`
	IntraTickSeq int64   `json:"intra_tick_seq"`
	EventType    Type    `json:"event_type"`
	EventID      string  `json:"event_id"`
	TxID         *string `json:"tx_id,omitempty"`
	AgentID      *string `json:"agent_id,omitempty"`
	Details      Details `json:"details"`
}

// MarshalJSON encodes Details as a nested JSON object rather than
// relying on the Details interface's dynamic type.
func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	detailsJSON, err := json.Marshal(r.Details)
	if err != nil {
		return nil, fmt.Errorf("events: marshal details for %s: %w", r.EventType, err)
	}
	return json.Marshal(struct {
		alias
		Details json.RawMessage `json:"details"`
	}{alias: alias(r), Details: detailsJSON})
}

// UnmarshalJSON decodes Details into the concrete struct matching
// EventType, so a replay consumer gets back typed payloads instead of
// a generic map.
func (r *Record) UnmarshalJSON(data []byte) error {
	type alias Record
	aux := struct {
		alias
		Details json.RawMessage `json:"details"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = Record(aux.alias)

	details, err := newDetails(aux.alias.EventType)
	if err != nil {
		return err
	}
	if len(aux.Details) > 0 {
		if err := json.Unmarshal(aux.Details, details); err != nil {
			return fmt.Errorf("events: unmarshal details for %s: %w", aux.alias.EventType, err)
		}
	}
	r.Details = details
	return nil
}

func newDetails(t Type) (Details, error) {
	switch t {
	case Arrival:
		return &ArrivalDetails{}, nil
	case RtgsImmediateSettlement:
		return &SettlementDetails{}, nil
	case Queue2LiquidityRelease:
		return &SettlementDetails{}, nil
	case LsmBilateralOffset:
		return &LsmBilateralDetails{}, nil
	case LsmCycleSettlement:
		return &LsmCycleDetails{}, nil
	case EntryDispositionOffset:
		return &SettlementDetails{}, nil
	case TransactionWentOverdue:
		return &OverdueDetails{}, nil
	case PolicySubmit, PolicyHold, PolicyDrop, PolicySplit, PolicyReprioritize:
		return &PolicyActionDetails{}, nil
	case CollateralPost, CollateralWithdraw:
		return &CollateralDetails{}, nil
	case CostAccrual:
		return &CostAccrualDetails{}, nil
	case EndOfDay:
		return &EndOfDayDetails{}, nil
	case ScenarioEventApplied:
		return &ScenarioEventDetails{}, nil
	case PolicyEvaluationError:
		return &PolicyErrorDetails{}, nil
	case NumericSaturation:
		return &NumericSaturationDetails{}, nil
	default:
		return nil, fmt.Errorf("events: unknown event type %q", t)
	}
}
