package settlement

import (
	"github.com/simcash/simcash/internal/agent"
	"github.com/simcash/simcash/internal/policy"
	"github.com/simcash/simcash/internal/txn"
)

// boolF converts a boolean condition into policy.Context's 0/1 float
// convention — the tree grammar has no boolean literal, only Compare.
func boolF(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// baseContext assembles the agent/system fields every tree kind shares:
// balance sheet, queue depths, and the tick/day clock, plus the
// agent's user-defined bank-state registers under a `state_` prefix so
// a policy author's SetState("reserve_target", ...) shows up as
// `state_reserve_target` in every later Field("state_reserve_target")
// lookup.
func (e *Engine) baseContext(a *agent.Agent, tick, day int64) policy.Context {
	ctx := policy.Context{
		"tick":                     float64(tick),
		"day":                      float64(day),
		"agent_balance":            float64(a.Balance),
		"agent_available_liquidity": float64(a.AvailableLiquidity()),
		"agent_unsecured_cap":      float64(a.UnsecuredCap),
		"agent_posted_collateral":  float64(a.PostedCollateral),
		"agent_collateral_headroom": float64(a.CollateralHeadroom()),
		"agent_liquidity_pool":     float64(a.LiquidityPool),
		"agent_release_budget":     float64(a.ReleaseBudget),
		"queue1_depth":             float64(len(a.Q1)),
		"queue2_depth":             float64(e.Q2.Len()),
	}
	for k, v := range a.BankState {
		ctx["state_"+k] = v
	}
	return ctx
}

// txContext extends baseContext with the fields payment_tree needs to
// reason about the specific transaction under evaluation.
func (e *Engine) txContext(a *agent.Agent, tx *txn.Transaction, tick, day int64) policy.Context {
	ctx := e.baseContext(a, tick, day)
	ctx["tx_amount"] = float64(tx.Amount)
	ctx["tx_remaining_amount"] = float64(tx.RemainingAmount)
	ctx["tx_priority"] = float64(tx.Priority)
	ctx["tx_arrival_tick"] = float64(tx.ArrivalTick)
	ctx["tx_deadline_tick"] = float64(tx.DeadlineTick)
	ctx["ticks_to_deadline"] = float64(tx.DeadlineTick - tick)
	ctx["tx_divisible"] = boolF(tx.Divisible)
	ctx["tx_overdue"] = boolF(tx.Overdue)
	return ctx
}
