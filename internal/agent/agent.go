// Package agent defines the Agent entity of : balance sheet,
// per-agent queue, daily limits, cost accumulators, and the policy
// tree set that drives its decisions.
package agent

import (
	"sort"

	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/policy"
)

// CostCategory names one of the accumulators in cost
// table. Costs only ever increase — totals are monotone over the
// simulation.
type CostCategory int

const (
	CostLiquidity CostCategory = iota // overdraft
	CostDelay
	CostCollateral
	CostLiquidityOpportunity
	CostPenalty // deadline + EOD
	CostSplitFriction
	numCostCategories
)

// BilateralLimit caps the daily outflow to one named counterparty.
type BilateralLimit struct {
	Counterparty string
	MaxDaily     money.Cents
}

// Agent is a single RTGS participant. The Orchestrator owns the
// canonical slice of Agents; every other component receives a scoped,
// non-escaping pointer for the duration of one tick phase.
type Agent struct {
	ID string

	Balance          money.Cents
	UnsecuredCap     money.Cents
	PostedCollateral money.Cents
	CollateralHaircut float64 // in [0,1]

	Q1Ordering Queue1Ordering

	// Q1 holds transaction IDs awaiting a policy decision, in queue
	// order. The Transaction store itself lives in the
	// orchestrator's transaction arena; queues only ever hold IDs.
	Q1 []string

	BilateralLimits    map[string]money.Cents // counterparty -> max daily outflow
	MultilateralLimit  *money.Cents            // nil means unlimited
	DailyOutflowTo     map[string]money.Cents  // reset at each day boundary
	DailyOutflowTotal  money.Cents

	CostAccumulator [numCostCategories]money.Cents

	Policy *policy.Set

	// LiquidityPool and LiquidityAllocationFraction feed the
	// liquidity-opportunity cost term: the fraction of
	// a configured liquidity pool this agent has earmarked, whose
	// opportunity cost accrues whether or not it is used.
	LiquidityPool                money.Cents
	LiquidityAllocationFraction float64

	// BankState holds the bank_tree's AddState/SetState registers
	//, keyed by name.
	BankState map[string]float64

	// ReleaseBudget is set by the bank_tree's SetReleaseBudget action;
	// a negative value means "no budget configured" (unlimited).
	ReleaseBudget money.Cents

	// PendingCredit accumulates inbound settlements received this tick
	// while deferred_crediting is enabled: the
	// amount is not added to Balance, and so not usable as liquidity,
	// until Phase G runs at the end of the same tick.
	PendingCredit money.Cents
}

// Queue1Ordering selects Q1's ordering discipline.
type Queue1Ordering int

const (
	Fifo Queue1Ordering = iota
	PriorityDeadline
)

// New creates an Agent with its maps initialized and collateral
// haircut/cost accumulators zeroed.
func New(id string, openingBalance, unsecuredCap money.Cents) *Agent {
	return &Agent{
		ID:             id,
		Balance:        openingBalance,
		UnsecuredCap:   unsecuredCap,
		BilateralLimits: make(map[string]money.Cents),
		DailyOutflowTo:  make(map[string]money.Cents),
		BankState:       make(map[string]float64),
		ReleaseBudget:   -1,
	}
}

// AvailableLiquidity is invariant: balance + unsecured
// cap + posted collateral discounted by the haircut.
func (a *Agent) AvailableLiquidity() money.Cents {
	headroom := a.CollateralHeadroom()
	return a.Balance.Add(a.UnsecuredCap).Add(headroom)
}

// CollateralHeadroom is posted collateral net of its haircut, computed
// via the 128-bit-intermediate fixed-point helper so the haircut
// (a float in [0,1]) never touches the stored balance directly.
func (a *Agent) CollateralHeadroom() money.Cents {
	// haircut is represented to 1e-4 precision (basis points),
	// matching the bps-based arithmetic used elsewhere for costs.
	bps := int64(a.CollateralHaircut * 10_000)
	discount := a.PostedCollateral.MulBps(bps)
	return a.PostedCollateral.Sub(discount)
}

// RemainingBilateralCapacity returns how much more the agent may send
// to counterparty today before hitting its bilateral limit, or nil if
// unlimited.
func (a *Agent) RemainingBilateralCapacity(counterparty string) *money.Cents {
	limit, ok := a.BilateralLimits[counterparty]
	if !ok {
		return nil
	}
	used := a.DailyOutflowTo[counterparty]
	remaining := limit.Sub(used)
	return &remaining
}

// RemainingMultilateralCapacity returns how much more the agent may
// send in total today, or nil if unlimited.
func (a *Agent) RemainingMultilateralCapacity() *money.Cents {
	if a.MultilateralLimit == nil {
		return nil
	}
	remaining := a.MultilateralLimit.Sub(a.DailyOutflowTotal)
	return &remaining
}

// RecordOutflow updates the daily-outflow counters after a settlement
// debits this agent amt cents toward counterparty.
func (a *Agent) RecordOutflow(counterparty string, amt money.Cents) {
	a.DailyOutflowTo[counterparty] = a.DailyOutflowTo[counterparty].Add(amt)
	a.DailyOutflowTotal = a.DailyOutflowTotal.Add(amt)
}

// ResetDailyOutflows is called at each day boundary (// Phase I); cost totals are explicitly not reset.
func (a *Agent) ResetDailyOutflows() {
	a.DailyOutflowTo = make(map[string]money.Cents)
	a.DailyOutflowTotal = 0
}

// AccrueCost adds amt to the named cost category's accumulator.
func (a *Agent) AccrueCost(cat CostCategory, amt money.Cents) {
	a.CostAccumulator[cat] = a.CostAccumulator[cat].Add(amt)
}

// TotalCost sums every cost category, the figure the outer bootstrap
// evaluator scores policies on.
func (a *Agent) TotalCost() money.Cents {
	var total money.Cents
	for _, c := range a.CostAccumulator {
		total = total.Add(c)
	}
	return total
}

// RemoveFromQ1 removes txID from Q1 if present, preserving the order
// of the remaining entries.
func (a *Agent) RemoveFromQ1(txID string) {
	for i, id := range a.Q1 {
		if id == txID {
			a.Q1 = append(a.Q1[:i], a.Q1[i+1:]...)
			return
		}
	}
}

// SortedIDs returns agent IDs in lexicographic order — the iteration
// order every settlement phase must use ("no
// phase iterates over a hash-order structure").
func SortedIDs(agents map[string]*Agent) []string {
	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
