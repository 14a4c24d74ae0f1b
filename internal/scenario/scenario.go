// Package scenario implements scheduled interventions: one-time or
// repeating events that mutate agent balances, collateral, arrival
// parameters, or inject a specific transaction at a chosen tick.
//
// Repeating schedules are driven by robfig/cron's ConstantDelaySchedule
// against a synthetic tick-clock (tick N maps to the Unix epoch plus N
// seconds) rather than wall-clock time, so "every 10 ticks starting at
// tick 5" reuses the same cron dependency a real-time scheduler would,
// without introducing any real-time nondeterminism — Next() is a pure
// function of the synthetic clock, never time.Now().
package scenario

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/simerr"
	"github.com/simcash/simcash/internal/txn"
)

// PayloadKind discriminates the scenario Event payload union.
type PayloadKind string

const (
	PayloadDirectTransfer          PayloadKind = "DirectTransfer"
	PayloadCustomTransactionArrival PayloadKind = "CustomTransactionArrival"
	PayloadCollateralAdjustment    PayloadKind = "CollateralAdjustment"
	PayloadGlobalArrivalRateChange PayloadKind = "GlobalArrivalRateChange"
	PayloadAgentArrivalRateChange  PayloadKind = "AgentArrivalRateChange"
	PayloadCounterpartyWeightChange PayloadKind = "CounterpartyWeightChange"
	PayloadDeadlineWindowChange    PayloadKind = "DeadlineWindowChange"
)

// DirectTransfer debits From and credits To without creating a
// Transaction record — only a ScenarioEventApplied event marks it.
type DirectTransfer struct {
	From, To string
	Amount   money.Cents
}

// CollateralAdjustment changes an agent's posted collateral by Delta
// (may be negative).
type CollateralAdjustment struct {
	Agent string
	Delta money.Cents
}

// GlobalArrivalRateChange scales every agent's arrival Lambda by Factor.
type GlobalArrivalRateChange struct {
	Factor float64
}

// AgentArrivalRateChange scales one agent's arrival Lambda by Factor.
type AgentArrivalRateChange struct {
	Agent  string
	Factor float64
}

// CounterpartyWeightChange replaces one agent's counterparty weight
// table wholesale.
type CounterpartyWeightChange struct {
	Agent   string
	Weights []CounterpartyWeight
}

// CounterpartyWeight mirrors arrivals.CounterpartyWeight without
// importing internal/arrivals, keeping this package's dependency
// surface limited to what scenario events themselves need; the
// settlement/orchestrator layer that applies the event does the
// conversion.
type CounterpartyWeight struct {
	AgentID string
	Weight  float64
}

// DeadlineWindowChange replaces one agent's deadline sampling window.
type DeadlineWindowChange struct {
	Agent          string
	NewMin, NewMax int64
}

// Payload is a marker interface implemented by every event payload
// above plus CustomTransactionArrival.
type Payload interface {
	isScenarioPayload()
}

func (DirectTransfer) isScenarioPayload()           {}
func (*txn.Transaction) isScenarioPayload()          {} // CustomTransactionArrival wraps *txn.Transaction directly
func (CollateralAdjustment) isScenarioPayload()      {}
func (GlobalArrivalRateChange) isScenarioPayload()   {}
func (AgentArrivalRateChange) isScenarioPayload()    {}
func (CounterpartyWeightChange) isScenarioPayload()  {}
func (DeadlineWindowChange) isScenarioPayload()      {}

// Schedule is OneTime(tick) or Repeating(start, interval-in-ticks).
type Schedule struct {
	OneTime bool
	Tick    int64 // valid when OneTime

	Start    int64 // valid when !OneTime
	Interval int64 // valid when !OneTime, ticks between firings
}

// Event is one configured scenario intervention.
type Event struct {
	ID       string
	Schedule Schedule
	Payload  Payload

	// next caches the next firing tick for a Repeating schedule so
	// Due doesn't recompute the cron schedule from Start on every call.
	next    int64
	armed   bool
	delay   cron.ConstantDelaySchedule
}

// epoch is the synthetic zero point every tick-to-time mapping is
// relative to; its value is arbitrary (cron.ConstantDelaySchedule only
// cares about elapsed duration), chosen to avoid any dependence on the
// real wall clock.
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

func tickToTime(tick int64) time.Time {
	return epoch.Add(time.Duration(tick) * time.Second)
}

func timeToTick(t time.Time) int64 {
	return int64(t.Sub(epoch) / time.Second)
}

// arm initializes the cron-backed repeating schedule's internal state
// the first time Due is asked about this event.
func (e *Event) arm() {
	if e.armed {
		return
	}
	e.delay = cron.ConstantDelaySchedule{Delay: time.Duration(e.Schedule.Interval) * time.Second}
	e.next = e.Schedule.Start
	e.armed = true
}

// Due reports whether the event fires at tick, and advances its
// internal repeating-schedule state if so. Events must be queried in
// non-decreasing tick order (the orchestrator's tick loop, by
// construction, only ever moves forward).
func (e *Event) Due(tick int64) bool {
	if e.Schedule.OneTime {
		return e.Schedule.Tick == tick
	}
	e.arm()
	if tick < e.next {
		return false
	}
	fired := false
	for e.next <= tick {
		fired = true
		e.next = timeToTick(e.delay.Next(tickToTime(e.next)))
		if e.Schedule.Interval <= 0 {
			break // zero/negative interval: fire once, never rearm
		}
	}
	return fired
}

// Validate checks the structural invariants require:
// a OneTime event needs a non-negative tick, a Repeating event needs a
// positive interval, and every payload referencing an agent must name
// one that exists in knownAgents.
func (e *Event) Validate(knownAgents map[string]bool) error {
	if e.Schedule.OneTime {
		if e.Schedule.Tick < 0 {
			return &simerr.ConfigurationError{Field: "scenario_events." + e.ID, Reason: "one-time tick must be non-negative"}
		}
	} else {
		if e.Schedule.Start < 0 {
			return &simerr.ConfigurationError{Field: "scenario_events." + e.ID, Reason: "repeating start must be non-negative"}
		}
		if e.Schedule.Interval <= 0 {
			return &simerr.ConfigurationError{Field: "scenario_events." + e.ID, Reason: "repeating interval must be positive"}
		}
	}

	check := func(agent string) error {
		if agent != "" && !knownAgents[agent] {
			return &simerr.ConfigurationError{Field: "scenario_events." + e.ID, Reason: fmt.Sprintf("unknown agent %q", agent)}
		}
		return nil
	}

	switch p := e.Payload.(type) {
	case DirectTransfer:
		if err := check(p.From); err != nil {
			return err
		}
		if err := check(p.To); err != nil {
			return err
		}
		if p.Amount < 0 {
			return &simerr.ConfigurationError{Field: "scenario_events." + e.ID, Reason: "transfer amount must be non-negative"}
		}
	case *txn.Transaction:
		if err := check(p.SenderID); err != nil {
			return err
		}
		if err := check(p.ReceiverID); err != nil {
			return err
		}
	case CollateralAdjustment:
		return check(p.Agent)
	case GlobalArrivalRateChange:
		if p.Factor < 0 {
			return &simerr.ConfigurationError{Field: "scenario_events." + e.ID, Reason: "factor must be non-negative"}
		}
	case AgentArrivalRateChange:
		if err := check(p.Agent); err != nil {
			return err
		}
		if p.Factor < 0 {
			return &simerr.ConfigurationError{Field: "scenario_events." + e.ID, Reason: "factor must be non-negative"}
		}
	case CounterpartyWeightChange:
		if err := check(p.Agent); err != nil {
			return err
		}
		for _, w := range p.Weights {
			if err := check(w.AgentID); err != nil {
				return err
			}
		}
	case DeadlineWindowChange:
		if err := check(p.Agent); err != nil {
			return err
		}
		if p.NewMin > p.NewMax {
			return &simerr.ConfigurationError{Field: "scenario_events." + e.ID, Reason: "new_min must not exceed new_max"}
		}
	default:
		return &simerr.ConfigurationError{Field: "scenario_events." + e.ID, Reason: "unknown payload type"}
	}
	return nil
}

// DueAt returns every event in events due at tick, in configuration
// order (the order events were declared in the scenario file is
// already deterministic, so no further sort is needed).
func DueAt(events []*Event, tick int64) []*Event {
	var due []*Event
	for _, e := range events {
		if e.Due(tick) {
			due = append(due, e)
		}
	}
	return due
}
