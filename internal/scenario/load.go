package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/simerr"
	"github.com/simcash/simcash/internal/txn"
)

type scheduleDoc struct {
	OneTime  bool  `json:"one_time"`
	Tick     int64 `json:"tick"`
	Start    int64 `json:"start"`
	Interval int64 `json:"interval"`
}

type eventDoc struct {
	ID          string          `json:"id"`
	Schedule    scheduleDoc     `json:"schedule"`
	PayloadKind string          `json:"payload_kind"`
	Payload     json.RawMessage `json:"payload"`
}

type directTransferDoc struct {
	From, To string
	Amount   int64
}

type customArrivalDoc struct {
	SenderID     string `json:"sender_id"`
	ReceiverID   string `json:"receiver_id"`
	Amount       int64  `json:"amount"`
	Priority     int    `json:"priority"`
	DeadlineTick int64  `json:"deadline_tick"`
	Divisible    bool   `json:"divisible"`
}

type collateralAdjustmentDoc struct {
	Agent string
	Delta int64
}

type globalArrivalRateChangeDoc struct {
	Factor float64 `json:"factor"`
}

type agentArrivalRateChangeDoc struct {
	Agent  string  `json:"agent"`
	Factor float64 `json:"factor"`
}

type counterpartyWeightChangeDoc struct {
	Agent   string `json:"agent"`
	Weights []struct {
		AgentID string  `json:"agent_id"`
		Weight  float64 `json:"weight"`
	} `json:"weights"`
}

type deadlineWindowChangeDoc struct {
	Agent  string `json:"agent"`
	NewMin int64  `json:"new_min"`
	NewMax int64  `json:"new_max"`
}

// ParseEvents decodes every raw scenario-event document
// into a validated Event, in the same order they were declared —
// configuration order is itself part of the deterministic ordering
// DueAt relies on for same-tick ties.
func ParseEvents(raw []json.RawMessage, knownAgents map[string]bool) ([]*Event, error) {
	events := make([]*Event, 0, len(raw))
	for i, r := range raw {
		var doc eventDoc
		if err := json.Unmarshal(r, &doc); err != nil {
			return nil, &simerr.ConfigurationError{
				Field:  fmt.Sprintf("scenario_events[%d]", i),
				Reason: fmt.Sprintf("malformed event document: %v", err),
			}
		}
		ev, err := doc.toEvent()
		if err != nil {
			return nil, err
		}
		if err := ev.Validate(knownAgents); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (d *eventDoc) toEvent() (*Event, error) {
	ev := &Event{
		ID: d.ID,
		Schedule: Schedule{
			OneTime:  d.Schedule.OneTime,
			Tick:     d.Schedule.Tick,
			Start:    d.Schedule.Start,
			Interval: d.Schedule.Interval,
		},
	}

	switch PayloadKind(d.PayloadKind) {
	case PayloadDirectTransfer:
		var p directTransferDoc
		if err := json.Unmarshal(d.Payload, &p); err != nil {
			return nil, fieldErr(d.ID, "direct_transfer payload: "+err.Error())
		}
		ev.Payload = DirectTransfer{From: p.From, To: p.To, Amount: money.Cents(p.Amount)}

	case PayloadCustomTransactionArrival:
		var p customArrivalDoc
		if err := json.Unmarshal(d.Payload, &p); err != nil {
			return nil, fieldErr(d.ID, "custom_transaction_arrival payload: "+err.Error())
		}
		// TxID is left empty here — the orchestrator fills it in via
		// simid.TxID at the moment the event actually fires, since the
		// sim_id and firing tick are not known at config-load time.
		ev.Payload = &txn.Transaction{
			SenderID:        p.SenderID,
			ReceiverID:      p.ReceiverID,
			Amount:          p.Amount,
			RemainingAmount: p.Amount,
			Priority:        p.Priority,
			DeadlineTick:    p.DeadlineTick,
			Divisible:       p.Divisible,
			Status:          txn.Arrived,
		}

	case PayloadCollateralAdjustment:
		var p collateralAdjustmentDoc
		if err := json.Unmarshal(d.Payload, &p); err != nil {
			return nil, fieldErr(d.ID, "collateral_adjustment payload: "+err.Error())
		}
		ev.Payload = CollateralAdjustment{Agent: p.Agent, Delta: money.Cents(p.Delta)}

	case PayloadGlobalArrivalRateChange:
		var p globalArrivalRateChangeDoc
		if err := json.Unmarshal(d.Payload, &p); err != nil {
			return nil, fieldErr(d.ID, "global_arrival_rate_change payload: "+err.Error())
		}
		ev.Payload = GlobalArrivalRateChange{Factor: p.Factor}

	case PayloadAgentArrivalRateChange:
		var p agentArrivalRateChangeDoc
		if err := json.Unmarshal(d.Payload, &p); err != nil {
			return nil, fieldErr(d.ID, "agent_arrival_rate_change payload: "+err.Error())
		}
		ev.Payload = AgentArrivalRateChange{Agent: p.Agent, Factor: p.Factor}

	case PayloadCounterpartyWeightChange:
		var p counterpartyWeightChangeDoc
		if err := json.Unmarshal(d.Payload, &p); err != nil {
			return nil, fieldErr(d.ID, "counterparty_weight_change payload: "+err.Error())
		}
		weights := make([]CounterpartyWeight, len(p.Weights))
		for i, w := range p.Weights {
			weights[i] = CounterpartyWeight{AgentID: w.AgentID, Weight: w.Weight}
		}
		ev.Payload = CounterpartyWeightChange{Agent: p.Agent, Weights: weights}

	case PayloadDeadlineWindowChange:
		var p deadlineWindowChangeDoc
		if err := json.Unmarshal(d.Payload, &p); err != nil {
			return nil, fieldErr(d.ID, "deadline_window_change payload: "+err.Error())
		}
		ev.Payload = DeadlineWindowChange{Agent: p.Agent, NewMin: p.NewMin, NewMax: p.NewMax}

	default:
		return nil, fieldErr(d.ID, fmt.Sprintf("unknown payload_kind %q", d.PayloadKind))
	}

	return ev, nil
}

func fieldErr(eventID, reason string) error {
	return &simerr.ConfigurationError{Field: "scenario_events." + eventID, Reason: reason}
}
