package settlement

import (
	"github.com/simcash/simcash/internal/agent"
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/txn"
	"github.com/simcash/simcash/internal/txqueue"
)

// canSettle reports whether sender can move amt to receiverID right
// now: available liquidity and both the bilateral and multilateral
// daily-outflow caps must all have room.
func canSettle(sender *agent.Agent, receiverID string, amt money.Cents) bool {
	if sender.AvailableLiquidity() < amt {
		return false
	}
	if rem := sender.RemainingBilateralCapacity(receiverID); rem != nil && *rem < amt {
		return false
	}
	if rem := sender.RemainingMultilateralCapacity(); rem != nil && *rem < amt {
		return false
	}
	return true
}

// applySettlement moves amt cents from sender to receiver against tx,
// respecting deferred_crediting (Phase A/G: a deferred
// credit lands in PendingCredit, unusable as liquidity until Phase G
// runs). It does not emit an event — callers that settle one
// transaction at a time emit per-transaction events via settle below;
// callers that settle many transactions as one LSM pass emit a single
// aggregated event instead.
func (e *Engine) applySettlement(sender, receiver *agent.Agent, tx *txn.Transaction, amt money.Cents) {
	sender.Balance = sender.Balance.Sub(amt)
	sender.RecordOutflow(receiver.ID, amt)
	if e.DeferredCrediting {
		receiver.PendingCredit = receiver.PendingCredit.Add(amt)
	} else {
		receiver.Balance = receiver.Balance.Add(amt)
	}
	tx.ApplyPartialSettlement(int64(amt))
	if tx.Status == txn.Settled {
		e.Q2.Remove(tx.TxID)
	}
}

// settle is applySettlement plus the per-transaction settlement event
// defines for RtgsImmediateSettlement and
// Queue2LiquidityRelease.
func (e *Engine) settle(sender, receiver *agent.Agent, tx *txn.Transaction, amt money.Cents, evtType events.Type) {
	e.applySettlement(sender, receiver, tx, amt)
	e.Bus.Emit(evtType, strPtr(tx.TxID), nil, &events.SettlementDetails{
		SenderID:      sender.ID,
		ReceiverID:    receiver.ID,
		SettledAmount: int64(amt),
		FullySettled:  tx.Status == txn.Settled,
	})
}

// q2BandOf maps a transaction's fixed priority band onto txqueue's
// Band type — both share the Low=0/Normal=1/Urgent=2 encoding, so no
// translation table is needed beyond the cast.
func q2BandOf(tx *txn.Transaction) txqueue.Band {
	return txqueue.Band(tx.Band())
}

// phaseA executes Phase A for every transaction the
// payment_tree released this tick, in the order evaluatePaymentTrees
// returned: attempt full immediate RTGS settlement; failing that, and
// only when entry_disposition_offsetting is enabled, wash as much as
// possible against an already-queued opposite-direction transaction
// (Phase B, inline — : "Phase B ... inline within Phase A
// when enqueuing to Q2"); whatever amount remains enters Queue 2.
func (e *Engine) phaseA(tick int64, released []string) {
	for _, txID := range released {
		tx := e.Txs[txID]
		if tx == nil || tx.Status == txn.Settled || tx.Status == txn.Dropped {
			continue
		}
		sender := e.Agents[tx.SenderID]
		receiver := e.Agents[tx.ReceiverID]
		amt := money.Cents(tx.RemainingAmount)

		if canSettle(sender, receiver.ID, amt) {
			e.settle(sender, receiver, tx, amt, events.RtgsImmediateSettlement)
			continue
		}

		if e.EntryDispositionOffsetting {
			e.offsetAgainstQ2(sender, receiver, tx)
			if tx.Status == txn.Settled {
				continue
			}
		}

		tx.Status = txn.InQueue2
		tx.EnteredQ2AtTick = tick
		e.Q2.Push(tx.TxID, q2BandOf(tx), tx.EffectivePriority, tick)
	}
}

// offsetAgainstQ2 washes tx against every already-queued transaction
// running the opposite direction (receiver -> sender), FIFO, requiring
// no liquidity from either side since the common portion simply
// cancels.
func (e *Engine) offsetAgainstQ2(sender, receiver *agent.Agent, tx *txn.Transaction) {
	for _, entry := range e.Q2.Ordered(e.PriorityMode) {
		if tx.RemainingAmount == 0 {
			return
		}
		opp := e.Txs[entry.TxID]
		if opp == nil || opp.SenderID != receiver.ID || opp.ReceiverID != sender.ID {
			continue
		}
		wash := money.Min(money.Cents(tx.RemainingAmount), money.Cents(opp.RemainingAmount))
		if wash <= 0 {
			continue
		}
		tx.ApplyPartialSettlement(int64(wash))
		opp.ApplyPartialSettlement(int64(wash))

		e.Bus.Emit(events.EntryDispositionOffset, strPtr(tx.TxID), nil, &events.SettlementDetails{
			SenderID:      sender.ID,
			ReceiverID:    receiver.ID,
			SettledAmount: int64(wash),
			FullySettled:  tx.Status == txn.Settled,
		})
		if opp.Status == txn.Settled {
			e.Q2.Remove(opp.TxID)
		}
	}
	if tx.Status == txn.Settled {
		e.Q2.Remove(tx.TxID)
	}
}

// phaseC executes Phase C: a liquidity-release scan over
// Queue 2 in its current processing order, settling every entry whose
// sender now has enough room. Escalation is applied
// first, updating each entry's EffectivePriority; the scan order itself
// comes from Queue2.Ordered (band, then entry sequence), which does not
// read EffectivePriority, so a boost does not reorder this scan.
func (e *Engine) phaseC(tick int64) {
	if e.Escalation.Enabled {
		e.Q2.Escalate(tick, int(e.Escalation.StartEscalatingAtTicks), e.Escalation.MaxBoost, func(txID string) int64 {
			if tx := e.Txs[txID]; tx != nil {
				return tx.DeadlineTick
			}
			return tick
		})
	}

	for _, entry := range e.Q2.Ordered(e.PriorityMode) {
		tx := e.Txs[entry.TxID]
		if tx == nil || tx.Status == txn.Settled || tx.Status == txn.Dropped {
			e.Q2.Remove(entry.TxID)
			continue
		}
		sender := e.Agents[tx.SenderID]
		receiver := e.Agents[tx.ReceiverID]
		amt := money.Cents(tx.RemainingAmount)
		if canSettle(sender, receiver.ID, amt) {
			e.settle(sender, receiver, tx, amt, events.Queue2LiquidityRelease)
		}
	}
}
