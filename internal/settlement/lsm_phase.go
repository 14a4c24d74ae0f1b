package settlement

import (
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/lsm"
	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/txn"
)

// pendingQ2 snapshots Queue 2's current entries as lsm.Pending tuples,
// in the queue's current FIFO-within-band processing order — the
// ordering both BilateralOffset and BuildGraph rely on to match
// transactions deterministically.
func (e *Engine) pendingQ2() []lsm.Pending {
	entries := e.Q2.Ordered(e.PriorityMode)
	out := make([]lsm.Pending, 0, len(entries))
	for _, entry := range entries {
		tx := e.Txs[entry.TxID]
		if tx == nil || tx.Status == txn.Settled || tx.Status == txn.Dropped {
			continue
		}
		out = append(out, lsm.Pending{
			TxID:     tx.TxID,
			Sender:   tx.SenderID,
			Receiver: tx.ReceiverID,
			Amount:   money.Cents(tx.RemainingAmount),
		})
	}
	return out
}

func (e *Engine) availableLiquidity(agentID string) money.Cents {
	a := e.Agents[agentID]
	if a == nil {
		return 0
	}
	return a.AvailableLiquidity()
}

// phaseD executes Phase D: for every ordered pair of
// agents that each have at least one pending Q2 entry toward the
// other, run lsm.BilateralOffset and apply whatever it settles. Pairs
// are visited in lexicographic (agentA, agentB) order — the
// determinism rule every LSM phase follows.
func (e *Engine) phaseD(tick int64) {
	byPair := groupByDirectedPair(e.pendingQ2())

	agentIDs := e.sortedAgentIDs()
	for i, agentA := range agentIDs {
		for _, agentB := range agentIDs[i+1:] {
			abTxs := byPair[pairKey{agentA, agentB}]
			baTxs := byPair[pairKey{agentB, agentA}]
			if len(abTxs) == 0 || len(baTxs) == 0 {
				continue
			}

			result := lsm.BilateralOffset(agentA, agentB, abTxs, baTxs, e.availableLiquidity)
			if len(result.ABSettlements) == 0 && len(result.BASettlements) == 0 {
				continue
			}

			a, b := e.Agents[agentA], e.Agents[agentB]
			var abIDs, baIDs []string
			for _, s := range result.ABSettlements {
				tx := e.Txs[s.TxID]
				e.applySettlement(a, b, tx, s.SettleAmount)
				abIDs = append(abIDs, s.TxID)
			}
			for _, s := range result.BASettlements {
				tx := e.Txs[s.TxID]
				e.applySettlement(b, a, tx, s.SettleAmount)
				baIDs = append(baIDs, s.TxID)
			}

			e.Bus.Emit(events.LsmBilateralOffset, nil, nil, &events.LsmBilateralDetails{
				AgentA:    agentA,
				AgentB:    agentB,
				ABTxIDs:   abIDs,
				BATxIDs:   baIDs,
				NetDebtor: result.NetDebtor,
				NetAmount: int64(result.NetAmount),
			})
		}
	}
}

type pairKey struct{ from, to string }

func groupByDirectedPair(pending []lsm.Pending) map[pairKey][]lsm.Pending {
	out := make(map[pairKey][]lsm.Pending)
	for _, p := range pending {
		k := pairKey{p.Sender, p.Receiver}
		out[k] = append(out[k], p)
	}
	return out
}

// phaseE executes Phase E over whatever remains pending
// in Queue 2 after Phase D: enumerate multilateral cycles and settle
// every feasible one atomically. The deferred_crediting flag governs
// the credits of Phases A, C and D only; cycle settlements always
// apply immediately, regardless of DeferredCrediting.
func (e *Engine) phaseE(tick int64) {
	pending := e.pendingQ2()
	if len(pending) == 0 {
		return
	}
	graph := lsm.BuildGraph(pending)

	maxLen := e.LSM.MaxCycleLength
	if maxLen <= 0 {
		maxLen = 8
	}
	maxCount := e.LSM.MaxCyclesPerTick
	if maxCount <= 0 {
		maxCount = 32
	}

	for _, cycle := range lsm.FindCycles(graph, maxLen, maxCount) {
		if !cycle.Feasible(e.availableLiquidity) {
			continue
		}

		var txIDs []string
		for _, s := range cycle.Settlements {
			tx := e.Txs[s.TxID]
			sender := e.Agents[tx.SenderID]
			receiver := e.Agents[tx.ReceiverID]
			// Cycle settlement is atomic regardless of deferred_crediting:
			// apply the real credit immediately rather than through
			// PendingCredit, since every participant's incoming leg is
			// exactly what makes their outgoing leg feasible.
			sender.Balance = sender.Balance.Sub(s.SettleAmount)
			sender.RecordOutflow(receiver.ID, s.SettleAmount)
			receiver.Balance = receiver.Balance.Add(s.SettleAmount)
			tx.ApplyPartialSettlement(int64(s.SettleAmount))
			if tx.Status == txn.Settled {
				e.Q2.Remove(tx.TxID)
			}
			txIDs = append(txIDs, s.TxID)
		}

		e.Bus.Emit(events.LsmCycleSettlement, nil, nil, &events.LsmCycleDetails{
			Members:    cycle.Members,
			TxIDs:      txIDs,
			FlowAmount: int64(cycle.FlowAmount),
		})
	}
}
