package settlement

import (
	"github.com/simcash/simcash/internal/agent"
	"github.com/simcash/simcash/internal/costs"
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/policy"
	"github.com/simcash/simcash/internal/simid"
	"github.com/simcash/simcash/internal/txn"
	"github.com/simcash/simcash/internal/txqueue"
)

// evaluatePaymentTrees walks every agent's Q1, in that agent's
// configured ordering, through its payment_tree exactly once per tick
// per transaction in the agent's Q1. It returns the IDs of every
// transaction released this tick, in the deterministic order they
// should enter Queue 2 — agents in lexicographic order, then each
// agent's own Q1 order.
func (e *Engine) evaluatePaymentTrees(tick, day int64) []string {
	var released []string

	for _, agentID := range e.sortedAgentIDs() {
		a := e.Agents[agentID]
		if a.Policy == nil || a.Policy.Payment == nil || len(a.Q1) == 0 {
			continue
		}

		entries := make([]txqueue.Q1Entry, len(a.Q1))
		for i, txID := range a.Q1 {
			tx := e.Txs[txID]
			entries[i] = txqueue.Q1Entry{
				TxID:         txID,
				Priority:     tx.Priority,
				DeadlineTick: tx.DeadlineTick,
				ArrivalSeq:   int64(i), // a.Q1 is already maintained in arrival order
			}
		}
		txqueue.SortQ1(entries, int(a.Q1Ordering))

		for _, entry := range entries {
			tx := e.Txs[entry.TxID]
			if tx == nil || tx.Status == txn.Dropped || tx.Status == txn.Settled {
				continue
			}
			e.applyPaymentDecision(a, tx, tick, day, &released)
		}
	}
	return released
}

// applyPaymentDecision evaluates a.Policy.Payment for tx and applies
// the resulting action. A PolicyEvaluationError falls back to Hold,
// failing this one transaction conservatively rather than the tick.
func (e *Engine) applyPaymentDecision(a *agent.Agent, tx *txn.Transaction, tick, day int64, released *[]string) {
	ctx := e.txContext(a, tx, tick, day)
	result, err := policy.Eval(a.Policy.Payment, tx.TxID, a.ID, ctx)
	if err != nil {
		e.Bus.Emit(events.PolicyEvaluationError, strPtr(tx.TxID), strPtr(a.ID), &events.PolicyErrorDetails{
			TreeKind: "payment_tree",
			Reason:   err.Error(),
		})
		e.Bus.Emit(events.PolicyHold, strPtr(tx.TxID), strPtr(a.ID), &events.PolicyActionDetails{TreeKind: "payment_tree"})
		return
	}

	switch result.Tag {
	case policy.ActionHold:
		e.Bus.Emit(events.PolicyHold, strPtr(tx.TxID), strPtr(a.ID), &events.PolicyActionDetails{TreeKind: "payment_tree"})

	case policy.ActionRelease:
		a.RemoveFromQ1(tx.TxID)
		tx.Status = txn.InQueue1 // phaseA flips this to InQueue2/Settled as it settles
		*released = append(*released, tx.TxID)
		e.Bus.Emit(events.PolicySubmit, strPtr(tx.TxID), strPtr(a.ID), &events.PolicyActionDetails{TreeKind: "payment_tree"})

	case policy.ActionDrop:
		a.RemoveFromQ1(tx.TxID)
		tx.Status = txn.Dropped
		e.Bus.Emit(events.PolicyDrop, strPtr(tx.TxID), strPtr(a.ID), &events.PolicyActionDetails{TreeKind: "payment_tree"})

	case policy.ActionSplit:
		e.applySplit(a, tx, result, tick, day, released)

	case policy.ActionReprioritize:
		newPriority := int(result.Params["priority"])
		tx.Priority = newPriority
		tx.EffectivePriority = newPriority
		e.Bus.Emit(events.PolicyReprioritize, strPtr(tx.TxID), strPtr(a.ID), &events.PolicyActionDetails{
			TreeKind: "payment_tree", NewPriority: &newPriority,
		})

	default:
		e.Bus.Emit(events.PolicyHold, strPtr(tx.TxID), strPtr(a.ID), &events.PolicyActionDetails{TreeKind: "payment_tree"})
	}
}

// applySplit replaces tx with n equal-sized (up to a remainder
// absorbed by the first part) child transactions sharing its deadline
// and counterparty, charges the split-friction cost once, and queues
// every child for its own payment_tree evaluation on the very same
// pass — a split child is eligible for Release immediately, per
// Split{n} semantics producing n independently-routable
// children.
func (e *Engine) applySplit(a *agent.Agent, tx *txn.Transaction, result policy.ActionResult, tick, day int64, released *[]string) {
	n := int(result.Params["n"])
	if n < 2 {
		n = 2
	}
	if money.Cents(tx.RemainingAmount) < money.Cents(n) {
		// Not enough remaining cents to form n non-zero parts: treat as
		// Hold rather than creating zero-amount children.
		e.Bus.Emit(events.PolicyHold, strPtr(tx.TxID), strPtr(a.ID), &events.PolicyActionDetails{TreeKind: "payment_tree"})
		return
	}

	a.RemoveFromQ1(tx.TxID)
	tx.Status = txn.Dropped // parent is logically replaced, not settled

	parts := splitAmount(tx.RemainingAmount, n)
	var splitTxIDs []string
	children := make([]*txn.Transaction, 0, n)
	for i, amt := range parts {
		child := &txn.Transaction{
			TxID:            simid.SplitTxID(tx.TxID, i),
			SenderID:        tx.SenderID,
			ReceiverID:      tx.ReceiverID,
			Amount:          amt,
			RemainingAmount: amt,
			ArrivalTick:     tx.ArrivalTick,
			DeadlineTick:    tx.DeadlineTick,
			Priority:        tx.Priority,
			EffectivePriority: tx.Priority,
			Status:          txn.InQueue1,
			Divisible:       tx.Divisible,
			ParentTxID:      tx.TxID,
		}
		e.Txs[child.TxID] = child
		children = append(children, child)
		splitTxIDs = append(splitTxIDs, child.TxID)
	}

	a.AccrueCost(agent.CostSplitFriction, costs.SplitFrictionCost(e.Rates, n))

	e.Bus.Emit(events.PolicySplit, strPtr(tx.TxID), strPtr(a.ID), &events.PolicyActionDetails{
		TreeKind: "payment_tree", SplitParts: parts,
	})

	// Each child gets its own payment_tree evaluation in the same pass
	// (it did not exist when the outer Q1 snapshot was sorted), so a
	// child that would itself Hold stays in Q1 rather than being forced
	// to Release.
	for _, child := range children {
		a.Q1 = append(a.Q1, child.TxID)
	}
	entries := make([]txqueue.Q1Entry, 0, len(splitTxIDs))
	for i, txID := range splitTxIDs {
		c := e.Txs[txID]
		entries = append(entries, txqueue.Q1Entry{TxID: txID, Priority: c.Priority, DeadlineTick: c.DeadlineTick, ArrivalSeq: int64(i)})
	}
	txqueue.SortQ1(entries, int(a.Q1Ordering))
	for _, entry := range entries {
		e.applyPaymentDecision(a, e.Txs[entry.TxID], tick, day, released)
	}
}

// splitAmount divides total into n parts as evenly as possible, the
// first part absorbing the remainder so the parts always sum exactly
// to total (no cent is ever created or lost by a split).
func splitAmount(total int64, n int) []int64 {
	base := total / int64(n)
	rem := total % int64(n)
	out := make([]int64, n)
	for i := range out {
		out[i] = base
	}
	out[0] += rem
	return out
}

// evaluateBankTrees runs each agent's bank_tree exactly once per tick.
// The tree's action alphabet
// (SetReleaseBudget/SetState/AddState/NoAction) directly names the
// BankState register it targets via ActionResult.Params, so no
// separate per-action param-name table is needed: a SetState action's
// Params map keys ARE the register names to write; AddState's keys are
// the registers to increment.
func (e *Engine) evaluateBankTrees(tick, day int64) {
	for _, agentID := range e.sortedAgentIDs() {
		a := e.Agents[agentID]
		if a.Policy == nil || a.Policy.Bank == nil {
			continue
		}
		ctx := e.baseContext(a, tick, day)
		result, err := policy.Eval(a.Policy.Bank, "", a.ID, ctx)
		if err != nil {
			e.Bus.Emit(events.PolicyEvaluationError, nil, strPtr(a.ID), &events.PolicyErrorDetails{
				TreeKind: "bank_tree", Reason: err.Error(),
			})
			continue
		}

		switch result.Tag {
		case policy.ActionSetReleaseBudget:
			if v, ok := result.Params["budget"]; ok {
				a.ReleaseBudget = money.Cents(v)
			}
		case policy.ActionSetState:
			for k, v := range result.Params {
				a.BankState[k] = v
			}
		case policy.ActionAddState:
			for k, v := range result.Params {
				a.BankState[k] += v
			}
		case policy.ActionNoAction:
			// nothing to do
		}
	}
}
