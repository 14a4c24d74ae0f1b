package settlement

import (
	"sort"

	"github.com/simcash/simcash/internal/agent"
	"github.com/simcash/simcash/internal/costs"
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/txn"
)

// costSnapshot mirrors agent.Agent's six cost categories so phaseH can
// report this tick's delta rather than the running total (:
// "CostAccrual ... carrying the per-category delta").
type costSnapshot struct {
	Liquidity, Delay, Collateral, LiquidityOpp, Penalty, SplitFriction money.Cents
}

func snapshotOf(a *agent.Agent) costSnapshot {
	return costSnapshot{
		Liquidity:     a.CostAccumulator[agent.CostLiquidity],
		Delay:         a.CostAccumulator[agent.CostDelay],
		Collateral:    a.CostAccumulator[agent.CostCollateral],
		LiquidityOpp:  a.CostAccumulator[agent.CostLiquidityOpportunity],
		Penalty:       a.CostAccumulator[agent.CostPenalty],
		SplitFriction: a.CostAccumulator[agent.CostSplitFriction],
	}
}

func (s costSnapshot) sub(prior costSnapshot) costSnapshot {
	return costSnapshot{
		Liquidity:     s.Liquidity.Sub(prior.Liquidity),
		Delay:         s.Delay.Sub(prior.Delay),
		Collateral:    s.Collateral.Sub(prior.Collateral),
		LiquidityOpp:  s.LiquidityOpp.Sub(prior.LiquidityOpp),
		Penalty:       s.Penalty.Sub(prior.Penalty),
		SplitFriction: s.SplitFriction.Sub(prior.SplitFriction),
	}
}

func (s costSnapshot) isZero() bool {
	return s.Liquidity == 0 && s.Delay == 0 && s.Collateral == 0 &&
		s.LiquidityOpp == 0 && s.Penalty == 0 && s.SplitFriction == 0
}

// snapshotCosts records every agent's current cost totals; RunTick
// calls this before any phase runs so phaseH's emitted CostAccrual
// reflects exactly this tick's accrual, including split-friction costs
// charged earlier in the tick by evaluatePaymentTrees.
func (e *Engine) snapshotCosts() {
	if e.costSnapshots == nil {
		e.costSnapshots = make(map[string]costSnapshot, len(e.Agents))
	}
	for id, a := range e.Agents {
		e.costSnapshots[id] = snapshotOf(a)
	}
}

// sortedTxIDs returns every known transaction ID in lexicographic
// order — the deterministic iteration requires
// whenever a phase must walk the whole transaction arena.
func (e *Engine) sortedTxIDs() []string {
	ids := make([]string, 0, len(e.Txs))
	for id := range e.Txs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) queuedAmountsFor(agentID string) []costs.QueuedAmount {
	var out []costs.QueuedAmount
	for _, id := range e.sortedTxIDs() {
		tx := e.Txs[id]
		if tx.SenderID != agentID {
			continue
		}
		switch tx.Status {
		case txn.InQueue1, txn.InQueue2, txn.PartiallySettled:
		default:
			continue
		}
		out = append(out, costs.QueuedAmount{
			RemainingAmount: money.Cents(tx.RemainingAmount),
			Band:            int(tx.Band()),
			Overdue:         tx.Overdue,
		})
	}
	return out
}

// phaseH executes Phase H: per-agent overdraft, delay,
// collateral, and liquidity-opportunity cost accrual, plus the
// deadline-overdue check, then emits one CostAccrual event per agent
// whose total changed this tick.
func (e *Engine) phaseH(tick int64) {
	for _, id := range e.sortedAgentIDs() {
		a := e.Agents[id]
		before := e.costSnapshots[id]

		a.AccrueCost(agent.CostLiquidity, costs.Overdraft(a.Balance, e.Rates))
		a.AccrueCost(agent.CostDelay, costs.Delay(e.queuedAmountsFor(id), e.Rates, e.BandMult))
		a.AccrueCost(agent.CostCollateral, costs.Collateral(a.PostedCollateral, e.Rates))

		allocBps := int64(a.LiquidityAllocationFraction * 10_000)
		allocated := a.LiquidityPool.MulBps(allocBps)
		a.AccrueCost(agent.CostLiquidityOpportunity, costs.LiquidityOpportunity(allocated, e.Rates))

		e.checkOverdue(id, tick)

		after := snapshotOf(a)
		delta := after.sub(before)
		if delta.isZero() {
			continue
		}
		e.Bus.Emit(events.CostAccrual, nil, strPtr(id), &events.CostAccrualDetails{
			LiquidityCost:     int64(delta.Liquidity),
			DelayCost:         int64(delta.Delay),
			CollateralCost:    int64(delta.Collateral),
			LiquidityOppCost:  int64(delta.LiquidityOpp),
			PenaltyCost:       int64(delta.Penalty),
			SplitFrictionCost: int64(delta.SplitFriction),
		})
		e.costSnapshots[id] = after
	}
}

// checkOverdue marks every not-yet-overdue transaction sent by
// agentID Overdue once the current tick reaches its deadline, charging
// the flat deadline penalty at most once per transaction (// invariant 6, guarded by Transaction.DeadlinePenaltyCharged).
func (e *Engine) checkOverdue(agentID string, tick int64) {
	a := e.Agents[agentID]
	for _, id := range e.sortedTxIDs() {
		tx := e.Txs[id]
		if tx.SenderID != agentID || tx.Overdue {
			continue
		}
		if tx.Status == txn.Settled || tx.Status == txn.Dropped {
			continue
		}
		if tick < tx.DeadlineTick {
			continue
		}
		tx.Overdue = true
		if !tx.DeadlinePenaltyCharged {
			a.AccrueCost(agent.CostPenalty, costs.Deadline(e.Rates))
			tx.DeadlinePenaltyCharged = true
		}
		e.Bus.Emit(events.TransactionWentOverdue, strPtr(tx.TxID), strPtr(agentID), &events.OverdueDetails{
			DeadlineTick:    tx.DeadlineTick,
			CurrentTick:     tick,
			RemainingAmount: tx.RemainingAmount,
		})
	}
}
