// Package lsm implements the Liquidity Saving Mechanism: bilateral
// pair offsetting and multilateral cycle settlement. It operates
// purely on (TxID, Sender, Receiver, Amount) tuples and a
// caller-supplied liquidity oracle — it never touches the transaction
// arena or agent balances directly, so the settlement engine stays the
// single place that mutates state.
//
// Netting over a participant graph replaces a "simulate and remove
// insolvent participants" approach with an exact two-phase contract:
// an FIFO-ordered bilateral pass, then an SCC + bounded-DFS cycle pass.
package lsm

import "github.com/simcash/simcash/internal/money"

// Pending is one queued transaction as the LSM sees it: just enough to
// net positions and select a FIFO settlement order.
type Pending struct {
	TxID     string
	Sender   string
	Receiver string
	Amount   money.Cents
}

// Settlement is one transaction's outcome from an LSM pass: it
// receives SettleAmount cents toward its remaining balance (which may
// be less than its full remaining amount, i.e. a partial/marginal
// settlement Phase D).
type Settlement struct {
	TxID         string
	SettleAmount money.Cents
}

// BilateralResult is the outcome of one (A,B) pair's offset attempt.
type BilateralResult struct {
	AgentA, AgentB string
	ABSettlements  []Settlement
	BASettlements  []Settlement
	NetDebtor      string      // "" if qAB == qBA (no net liquidity needed)
	NetAmount      money.Cents // liquidity actually drawn from NetDebtor
}

// BilateralOffset implements Phase D for a single pair:
// match min(q_AB, q_BA) worth of transactions FIFO on each side
// (splitting the marginal transaction's settle amount if the prefix
// sum overshoots), then settle the net difference using the net
// debtor's available liquidity — fully if it covers the net, partially
// (as much as liquidity allows) otherwise. abTxs and baTxs must already
// be in FIFO (queue entry) order.
func BilateralOffset(agentA, agentB string, abTxs, baTxs []Pending, availableLiquidity func(agentID string) money.Cents) BilateralResult {
	qAB := sumAmounts(abTxs)
	qBA := sumAmounts(baTxs)

	m := money.Min(qAB, qBA)

	result := BilateralResult{AgentA: agentA, AgentB: agentB}
	result.ABSettlements = consumeFIFO(abTxs, m)
	result.BASettlements = consumeFIFO(baTxs, m)

	netAmount := qAB.Sub(qBA)
	if netAmount == 0 {
		return result
	}

	var netDebtor string
	var remainder []Pending
	var absNet money.Cents
	if netAmount > 0 {
		netDebtor = agentA
		absNet = netAmount
		remainder = remainderAfter(abTxs, m)
	} else {
		netDebtor = agentB
		absNet = netAmount.Neg()
		remainder = remainderAfter(baTxs, m)
	}

	available := availableLiquidity(netDebtor)
	drawable := money.Min(absNet, available)
	if drawable <= 0 {
		result.NetDebtor = netDebtor
		result.NetAmount = 0
		return result
	}

	extra := consumeFIFO(remainder, drawable)
	if netAmount > 0 {
		result.ABSettlements = append(result.ABSettlements, extra...)
	} else {
		result.BASettlements = append(result.BASettlements, extra...)
	}

	result.NetDebtor = netDebtor
	result.NetAmount = drawable
	return result
}

func sumAmounts(txs []Pending) money.Cents {
	var total money.Cents
	for _, t := range txs {
		total = total.Add(t.Amount)
	}
	return total
}

// consumeFIFO walks txs in order, allocating up to budget cents total,
// splitting the last (marginal) transaction's settle amount so the sum
// never exceeds budget.
func consumeFIFO(txs []Pending, budget money.Cents) []Settlement {
	if budget <= 0 {
		return nil
	}
	out := make([]Settlement, 0, len(txs))
	remaining := budget
	for _, t := range txs {
		if remaining <= 0 {
			break
		}
		take := money.Min(t.Amount, remaining)
		out = append(out, Settlement{TxID: t.TxID, SettleAmount: take})
		remaining = remaining.Sub(take)
	}
	return out
}

// remainderAfter returns the unconsumed balance of each tx in txs once
// budget cents have been taken FIFO — i.e. what is left to draw on for
// the net-liquidity top-up.
func remainderAfter(txs []Pending, budget money.Cents) []Pending {
	out := make([]Pending, 0, len(txs))
	remaining := budget
	for _, t := range txs {
		if remaining >= t.Amount {
			remaining = remaining.Sub(t.Amount)
			continue // fully consumed by the FIFO pass already
		}
		left := t.Amount.Sub(remaining)
		remaining = 0
		out = append(out, Pending{TxID: t.TxID, Sender: t.Sender, Receiver: t.Receiver, Amount: left})
	}
	return out
}
