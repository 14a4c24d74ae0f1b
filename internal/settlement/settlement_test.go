package settlement

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simcash/simcash/internal/agent"
	"github.com/simcash/simcash/internal/config"
	"github.com/simcash/simcash/internal/costs"
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/policy"
	"github.com/simcash/simcash/internal/txn"
)

func alwaysAction(kind policy.TreeKind, action policy.ActionTag, params map[string]policy.Value) *policy.Tree {
	if params == nil {
		params = map[string]policy.Value{}
	}
	return &policy.Tree{
		Kind:     kind,
		Root:     0,
		MaxDepth: 15,
		Div0:     policy.Div0Error,
		Nodes: []policy.Node{
			{ID: "root", IsAction: true, Action: action, Params: params},
		},
	}
}

func newTestEngine(agents map[string]*agent.Agent, txs map[string]*txn.Transaction) *Engine {
	bus := events.NewBus("test-sim", zerolog.Nop())
	cfg := &config.OrchestratorConfig{
		CostRates:   costs.Rates{},
		BandMult:    costs.BandMultiplier{Low: 1, Normal: 1, Urgent: 1},
		LSM:         config.LSMConfig{EnableBilateral: true, EnableCycles: true},
		TicksPerDay: 10,
	}
	return New(agents, txs, bus, cfg)
}

func TestRunTick_ImmediateSettlementWhenLiquidityAvailable(t *testing.T) {
	a := agent.New("A", money.Cents(100_000), 0)
	b := agent.New("B", 0, 0)
	a.Policy = &policy.Set{Payment: alwaysAction(policy.PaymentTree, policy.ActionRelease, nil)}

	tx := &txn.Transaction{
		TxID: "tx1", SenderID: "A", ReceiverID: "B",
		Amount: 500, RemainingAmount: 500, Priority: 5, EffectivePriority: 5,
		Status: txn.Arrived, DeadlineTick: 100,
	}
	a.Q1 = []string{tx.TxID}

	agents := map[string]*agent.Agent{"A": a, "B": b}
	txs := map[string]*txn.Transaction{tx.TxID: tx}
	e := newTestEngine(agents, txs)

	e.RunTick(0, 0)

	assert.Equal(t, money.Cents(99_500), a.Balance)
	assert.Equal(t, money.Cents(500), b.Balance)
	assert.Equal(t, txn.Settled, tx.Status)
	assert.Equal(t, int64(0), tx.RemainingAmount)
}

func TestRunTick_InsufficientLiquidityQueuesToQ2(t *testing.T) {
	a := agent.New("A", money.Cents(100), 0) // far less than the transaction
	b := agent.New("B", 0, 0)
	a.Policy = &policy.Set{Payment: alwaysAction(policy.PaymentTree, policy.ActionRelease, nil)}

	tx := &txn.Transaction{
		TxID: "tx1", SenderID: "A", ReceiverID: "B",
		Amount: 500, RemainingAmount: 500, Priority: 5, EffectivePriority: 5,
		Status: txn.Arrived, DeadlineTick: 100,
	}
	a.Q1 = []string{tx.TxID}

	agents := map[string]*agent.Agent{"A": a, "B": b}
	txs := map[string]*txn.Transaction{tx.TxID: tx}
	e := newTestEngine(agents, txs)

	e.RunTick(0, 0)

	assert.Equal(t, txn.InQueue2, tx.Status)
	assert.Equal(t, 1, e.Q2.Len())
	assert.Equal(t, money.Cents(100), a.Balance)
}

func TestRunTick_HoldKeepsTransactionInQ1(t *testing.T) {
	a := agent.New("A", money.Cents(100_000), 0)
	b := agent.New("B", 0, 0)
	a.Policy = &policy.Set{Payment: alwaysAction(policy.PaymentTree, policy.ActionHold, nil)}

	tx := &txn.Transaction{
		TxID: "tx1", SenderID: "A", ReceiverID: "B",
		Amount: 500, RemainingAmount: 500, Priority: 5, EffectivePriority: 5,
		Status: txn.Arrived, DeadlineTick: 100,
	}
	a.Q1 = []string{tx.TxID}

	agents := map[string]*agent.Agent{"A": a, "B": b}
	txs := map[string]*txn.Transaction{tx.TxID: tx}
	e := newTestEngine(agents, txs)

	e.RunTick(0, 0)

	assert.Equal(t, txn.Arrived, tx.Status) // untouched: still queued, never released
	require.Len(t, a.Q1, 1)
	assert.Equal(t, 0, e.Q2.Len())
}

func TestRunTick_SplitProducesRoutableChildren(t *testing.T) {
	a := agent.New("A", money.Cents(100_000), 0)
	b := agent.New("B", 0, 0)
	// Split anything above 250 cents and release the rest: the two
	// 250-cent children are re-evaluated by this same tree in the same
	// pass, so they are released instead of split again.
	a.Policy = &policy.Set{Payment: &policy.Tree{
		Kind: policy.PaymentTree, Root: 0, MaxDepth: 15, Div0: policy.Div0Error,
		Nodes: []policy.Node{
			{ID: "big", Cond: &policy.Expr{Kind: policy.ExprCompare, Op: policy.OpGt, Left: policy.FieldValue("tx_amount"), Right: policy.ConstValue(250)}, TrueNext: 1, FalseNext: 2},
			{ID: "split", IsAction: true, Action: policy.ActionSplit, Params: map[string]policy.Value{"n": policy.ConstValue(2)}},
			{ID: "release", IsAction: true, Action: policy.ActionRelease},
		},
	}}

	tx := &txn.Transaction{
		TxID: "tx1", SenderID: "A", ReceiverID: "B",
		Amount: 500, RemainingAmount: 500, Priority: 5, EffectivePriority: 5,
		Status: txn.Arrived, DeadlineTick: 100, Divisible: true,
	}
	a.Q1 = []string{tx.TxID}

	agents := map[string]*agent.Agent{"A": a, "B": b}
	txs := map[string]*txn.Transaction{tx.TxID: tx}
	e := newTestEngine(agents, txs)

	e.RunTick(0, 0)

	assert.Equal(t, txn.Dropped, tx.Status) // parent replaced, not settled
	assert.Equal(t, money.Cents(99_500), a.Balance)
	assert.Equal(t, money.Cents(500), b.Balance)

	var childCount int
	for id, child := range e.Txs {
		if id == tx.TxID {
			continue
		}
		assert.Equal(t, txn.Settled, child.Status)
		childCount++
	}
	assert.Equal(t, 2, childCount)
}

func TestRunDayBoundary_ChargesEODPenaltyOnUnsettled(t *testing.T) {
	a := agent.New("A", money.Cents(0), 0)
	b := agent.New("B", 0, 0)
	a.Policy = &policy.Set{Payment: alwaysAction(policy.PaymentTree, policy.ActionHold, nil)}

	tx := &txn.Transaction{
		TxID: "tx1", SenderID: "A", ReceiverID: "B",
		Amount: 500, RemainingAmount: 500, Priority: 5, EffectivePriority: 5,
		Status: txn.InQueue2, DeadlineTick: 100,
	}

	agents := map[string]*agent.Agent{"A": a, "B": b}
	txs := map[string]*txn.Transaction{tx.TxID: tx}
	e := newTestEngine(agents, txs)
	e.Rates.EODPenaltyPerTx = 250

	unsettled := e.RunDayBoundary(1)

	require.Len(t, unsettled, 1)
	assert.Equal(t, money.Cents(250), a.CostAccumulator[agent.CostPenalty])
}
