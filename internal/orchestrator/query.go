package orchestrator

import (
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/txn"
)

// GetAgentBalance returns an agent's current ledger balance.
func (o *Orchestrator) GetAgentBalance(agentID string) (money.Cents, bool) {
	a, ok := o.Agents[agentID]
	if !ok {
		return 0, false
	}
	return a.Balance, true
}

// GetQueue1Size returns the number of transactions currently awaiting
// a policy decision in agentID's Q1.
func (o *Orchestrator) GetQueue1Size(agentID string) (int, bool) {
	a, ok := o.Agents[agentID]
	if !ok {
		return 0, false
	}
	return len(a.Q1), true
}

// GetQueue2Size returns the number of transactions currently queued in
// the shared Queue 2.
func (o *Orchestrator) GetQueue2Size() int {
	return o.Engine.Q2.Len()
}

// GetTransaction looks up a transaction by ID.
func (o *Orchestrator) GetTransaction(txID string) (*txn.Transaction, bool) {
	tx, ok := o.Txs[txID]
	return tx, ok
}

// GetAgentAccumulatedCosts returns an agent's running total cost
// across every category, the figure a bootstrap
// evaluator scores a policy set on.
func (o *Orchestrator) GetAgentAccumulatedCosts(agentID string) (money.Cents, bool) {
	a, ok := o.Agents[agentID]
	if !ok {
		return 0, false
	}
	return a.TotalCost(), true
}

// GetTickEvents returns every event emitted during the given tick, in
// emission order.
func (o *Orchestrator) GetTickEvents(tick int64) []events.Record {
	return o.Bus.TickEvents(tick)
}

// AllEvents returns every event emitted so far, in emission order.
func (o *Orchestrator) AllEvents() []events.Record {
	return o.Bus.All()
}
