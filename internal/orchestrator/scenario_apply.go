package orchestrator

import (
	"fmt"

	"github.com/simcash/simcash/internal/arrivals"
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/scenario"
	"github.com/simcash/simcash/internal/simerr"
	"github.com/simcash/simcash/internal/simid"
	"github.com/simcash/simcash/internal/txn"
)

// applyScenarioEvent mutates orchestrator state for one due Event
//. Every payload's target agent was already checked
// against the known-agent set by scenario.Validate at load time, so a
// lookup miss here would indicate an orchestrator/config mismatch bug,
// not a data condition — callers construct Orchestrator from the same
// cfg.Agents the events were validated against, so this cannot happen
// in practice.
func (o *Orchestrator) applyScenarioEvent(ev *scenario.Event, tick int64) error {
	switch p := ev.Payload.(type) {

	case scenario.DirectTransfer:
		from, to := o.Agents[p.From], o.Agents[p.To]
		from.Balance = from.Balance.Sub(p.Amount)
		to.Balance = to.Balance.Add(p.Amount)
		o.emitScenarioApplied(scenario.PayloadDirectTransfer, "",
			fmt.Sprintf("transferred %d cents from %s to %s", int64(p.Amount), p.From, p.To))

	case *txn.Transaction:
		o.applyCustomArrival(p, tick)

	case scenario.CollateralAdjustment:
		a := o.Agents[p.Agent]
		a.PostedCollateral = a.PostedCollateral.Add(p.Delta)
		o.emitScenarioApplied(scenario.PayloadCollateralAdjustment, p.Agent,
			fmt.Sprintf("adjusted %s posted collateral by %d cents", p.Agent, int64(p.Delta)))

	case scenario.GlobalArrivalRateChange:
		for _, cfg := range o.ArrivalConfig {
			cfg.Lambda *= p.Factor
		}
		o.emitScenarioApplied(scenario.PayloadGlobalArrivalRateChange, "",
			fmt.Sprintf("scaled every agent's arrival lambda by %g", p.Factor))

	case scenario.AgentArrivalRateChange:
		if cfg, ok := o.ArrivalConfig[p.Agent]; ok {
			cfg.Lambda *= p.Factor
		}
		o.emitScenarioApplied(scenario.PayloadAgentArrivalRateChange, p.Agent,
			fmt.Sprintf("scaled %s's arrival lambda by %g", p.Agent, p.Factor))

	case scenario.CounterpartyWeightChange:
		if cfg, ok := o.ArrivalConfig[p.Agent]; ok {
			weights := make([]arrivals.CounterpartyWeight, len(p.Weights))
			for i, w := range p.Weights {
				weights[i] = arrivals.CounterpartyWeight{AgentID: w.AgentID, Weight: w.Weight}
			}
			cfg.Counterparties = weights
		}
		o.emitScenarioApplied(scenario.PayloadCounterpartyWeightChange, p.Agent,
			fmt.Sprintf("replaced %s's counterparty weight table", p.Agent))

	case scenario.DeadlineWindowChange:
		if cfg, ok := o.ArrivalConfig[p.Agent]; ok {
			cfg.DeadlineMin = p.NewMin
			cfg.DeadlineMax = p.NewMax
		}
		o.emitScenarioApplied(scenario.PayloadDeadlineWindowChange, p.Agent,
			fmt.Sprintf("set %s's deadline window to [%d,%d]", p.Agent, p.NewMin, p.NewMax))

	default:
		return &simerr.ScenarioEventError{Tick: tick, Reason: "event has an unrecognized payload type"}
	}
	return nil
}

// applyCustomArrival injects a CustomTransactionArrival template as a
// real transaction, deriving its TxID from the same (sender-scoped
// sim_id, tick, ordinal) scheme a Poisson arrival uses, but drawing the ordinal from
// a counter scoped to this package so the two sources never collide.
func (o *Orchestrator) applyCustomArrival(template *txn.Transaction, tick int64) {
	ordinal := o.scenarioTxOrdinal[template.SenderID]
	o.scenarioTxOrdinal[template.SenderID] = ordinal + 1

	tx := *template
	tx.TxID = simid.TxID(o.SimID+":"+tx.SenderID, tick, -1-ordinal) // sender-scoped key, negative ordinal space: never produced by Arrivals.NextOrdinal
	tx.ArrivalTick = tick
	if tx.EffectivePriority == 0 {
		tx.EffectivePriority = tx.Priority
	}

	o.Txs[tx.TxID] = &tx
	sender := o.Agents[tx.SenderID]
	sender.Q1 = append(sender.Q1, tx.TxID)

	o.Bus.Emit(events.Arrival, strPtr(tx.TxID), strPtr(tx.SenderID), &events.ArrivalDetails{
		SenderID: tx.SenderID, ReceiverID: tx.ReceiverID, Amount: tx.Amount,
		Priority: tx.Priority, DeadlineTick: tx.DeadlineTick, Divisible: tx.Divisible,
	})
}

func (o *Orchestrator) emitScenarioApplied(kind scenario.PayloadKind, agentID, summary string) {
	var agentPtr *string
	if agentID != "" {
		agentPtr = &agentID
	}
	o.Bus.Emit(events.ScenarioEventApplied, nil, agentPtr, &events.ScenarioEventDetails{
		Payload: string(kind), AgentID: agentID, Summary: summary,
	})
}
