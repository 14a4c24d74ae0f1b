package settlement

import (
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/policy"
)

// phaseF executes Phase F: strategic_collateral_tree runs
// once per day (strategic=true, called from RunDayBoundary for the
// day now starting), end_of_tick_collateral_tree runs once per tick
// (strategic=false, called from RunTick). Both trees share the same
// three-action alphabet, so one method evaluates either.
func (e *Engine) phaseF(tick, day int64, strategic bool) {
	kind := "end_of_tick_collateral_tree"
	for _, agentID := range e.sortedAgentIDs() {
		a := e.Agents[agentID]
		if a.Policy == nil {
			continue
		}
		tree := a.Policy.EndOfTickCollateral
		if strategic {
			tree = a.Policy.StrategicCollateral
			kind = "strategic_collateral_tree"
		}
		if tree == nil {
			continue
		}

		ctx := e.baseContext(a, tick, day)
		result, err := policy.Eval(tree, "", a.ID, ctx)
		if err != nil {
			e.Bus.Emit(events.PolicyEvaluationError, nil, strPtr(a.ID), &events.PolicyErrorDetails{
				TreeKind: kind, Reason: err.Error(),
			})
			continue
		}

		switch result.Tag {
		case policy.ActionPostCollateral:
			amt := money.Min(money.Cents(result.Params["amount"]), a.Balance)
			if amt <= 0 {
				continue
			}
			a.Balance = a.Balance.Sub(amt)
			a.PostedCollateral = a.PostedCollateral.Add(amt)
			e.Bus.Emit(events.CollateralPost, nil, strPtr(a.ID), &events.CollateralDetails{
				Amount: int64(amt), PostedCollateral: int64(a.PostedCollateral), TreeKind: kind,
			})

		case policy.ActionWithdrawCollateral:
			amt := money.Min(money.Cents(result.Params["amount"]), a.PostedCollateral)
			if amt <= 0 {
				continue
			}
			a.PostedCollateral = a.PostedCollateral.Sub(amt)
			a.Balance = a.Balance.Add(amt)
			e.Bus.Emit(events.CollateralWithdraw, nil, strPtr(a.ID), &events.CollateralDetails{
				Amount: int64(amt), PostedCollateral: int64(a.PostedCollateral), TreeKind: kind,
			})

		case policy.ActionHoldCollateral:
			// no-op: posted collateral stays exactly where it is
		}
	}
}
