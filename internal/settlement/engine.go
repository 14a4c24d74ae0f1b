// Package settlement implements the tick-phase engine of :
// the fixed-order sequence of phases (policy decisions, immediate
// RTGS, entry-disposition offsetting, Q2 liquidity scan, LSM bilateral
// and cycle passes, end-of-tick collateral, deferred-credit
// application, cost accrual, day boundary) that together make up one
// tick's state transition.
//
// Engine is a thin coordinator: beyond configuration it owns only
// Queue 2 and the per-tick cost snapshots, operating otherwise on the
// Agent/Transaction state the orchestrator passes it. Every phase
// method is a deterministic function of that state; the engine holds
// no RNG stream, and determinism comes from sorted iteration.
package settlement

import (
	"sort"

	"github.com/simcash/simcash/internal/agent"
	"github.com/simcash/simcash/internal/config"
	"github.com/simcash/simcash/internal/costs"
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/txn"
	"github.com/simcash/simcash/internal/txqueue"
)

// Engine bundles the per-run configuration every phase needs. It is
// created once by the orchestrator and reused for every tick.
type Engine struct {
	Agents map[string]*agent.Agent
	Txs    map[string]*txn.Transaction

	Q2 *txqueue.Queue2

	Bus *events.Bus

	Rates               costs.Rates
	BandMult            costs.BandMultiplier
	LSM                 config.LSMConfig
	PriorityMode        bool
	Escalation          config.EscalationConfig
	AlgorithmSequencing bool

	EntryDispositionOffsetting bool
	DeferredCrediting          bool
	DeadlineCapAtEOD           bool

	TicksPerDay int64

	// costSnapshots holds each agent's cost totals as of the start of
	// the current tick, so phaseH can report this tick's per-category
	// delta instead of the running total (see cost.go).
	costSnapshots map[string]costSnapshot
}

// New creates an Engine over the given agent/transaction maps, which
// it does not copy — the orchestrator retains ownership and mutates
// them only between ticks.
func New(agents map[string]*agent.Agent, txs map[string]*txn.Transaction, bus *events.Bus, cfg *config.OrchestratorConfig) *Engine {
	return &Engine{
		Agents:                     agents,
		Txs:                        txs,
		Q2:                         txqueue.NewQueue2(),
		Bus:                        bus,
		Rates:                      cfg.CostRates,
		BandMult:                   cfg.BandMult,
		LSM:                        cfg.LSM,
		PriorityMode:               cfg.PriorityMode,
		Escalation:                 cfg.PriorityEscalation,
		AlgorithmSequencing:        cfg.AlgorithmSequencing,
		EntryDispositionOffsetting: cfg.EntryDispositionOffsetting,
		DeferredCrediting:          cfg.DeferredCrediting,
		DeadlineCapAtEOD:           cfg.DeadlineCapAtEOD,
		TicksPerDay:                cfg.TicksPerDay,
		costSnapshots:              make(map[string]costSnapshot, len(agents)),
	}
}

// sortedAgentIDs returns every agent ID in lexicographic order — the
// tie-break mandates for every phase that iterates agents.
func (e *Engine) sortedAgentIDs() []string {
	return agent.SortedIDs(e.Agents)
}

// RunTick executes Phases A-H in fixed order for one
// tick (Phase I, the day boundary, is a separate method the
// orchestrator calls only when tick crosses a day boundary, since it
// needs the *next* tick's day number before Phase A's policy context
// can reference `day` correctly — see internal/orchestrator).
func (e *Engine) RunTick(tick, day int64) {
	e.Bus.StartTick(tick, day)
	e.snapshotCosts()

	released := e.evaluatePaymentTrees(tick, day)
	e.evaluateBankTrees(tick, day)

	e.phaseA(tick, released)
	e.phaseC(tick)
	if e.LSM.EnableBilateral {
		e.phaseD(tick)
	}
	if e.LSM.EnableCycles {
		e.phaseE(tick)
	}
	e.phaseF(tick, day, false)
	if e.DeferredCrediting {
		e.phaseG()
	}
	e.phaseH(tick)
}

// RunDayBoundary executes Phase I: EOD penalty on every
// unsettled transaction, daily-outflow counter reset, and the
// strategic-collateral tree for the day now starting. The orchestrator
// calls this once per day, immediately after the last tick of the
// previous day's RunTick.
func (e *Engine) RunDayBoundary(newDay int64) []string {
	unsettled := e.unsettledTxIDs()

	var penaltyTotal int64
	for _, id := range e.sortedAgentIDs() {
		a := e.Agents[id]
		count := 0
		for _, txID := range unsettled {
			if e.Txs[txID].SenderID == id {
				count++
			}
		}
		if count > 0 {
			penalty := costs.EODPenalty(e.Rates, count)
			a.AccrueCost(agent.CostPenalty, penalty)
			penaltyTotal += int64(penalty)
			e.Bus.Emit(events.CostAccrual, nil, strPtr(id), &events.CostAccrualDetails{
				PenaltyCost: int64(penalty),
			})
		}
		a.ResetDailyOutflows()
	}

	e.Bus.Emit(events.EndOfDay, nil, nil, &events.EndOfDayDetails{
		Day:             newDay - 1,
		UnsettledCount:  len(unsettled),
		EODPenaltyTotal: penaltyTotal,
	})

	e.phaseF(0, newDay, true)
	return unsettled
}

func (e *Engine) unsettledTxIDs() []string {
	var ids []string
	for id, tx := range e.Txs {
		if tx.Status != txn.Settled && tx.Status != txn.Dropped {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

func strPtr(s string) *string { return &s }
