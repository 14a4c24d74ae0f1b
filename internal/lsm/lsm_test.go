package lsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simcash/simcash/internal/money"
)

func TestBilateralOffset_EqualFlowsNoLiquidityNeeded(t *testing.T) {
	ab := []Pending{{TxID: "ab1", Sender: "A", Receiver: "B", Amount: 1000}}
	ba := []Pending{{TxID: "ba1", Sender: "B", Receiver: "A", Amount: 1000}}

	result := BilateralOffset("A", "B", ab, ba, func(string) money.Cents { return 0 })

	require.Len(t, result.ABSettlements, 1)
	require.Len(t, result.BASettlements, 1)
	assert.Equal(t, money.Cents(1000), result.ABSettlements[0].SettleAmount)
	assert.Equal(t, money.Cents(1000), result.BASettlements[0].SettleAmount)
	assert.Equal(t, "", result.NetDebtor)
	assert.Equal(t, money.Cents(0), result.NetAmount)
}

func TestBilateralOffset_NetDebtorCoversNet(t *testing.T) {
	ab := []Pending{{TxID: "ab1", Sender: "A", Receiver: "B", Amount: 1500}}
	ba := []Pending{{TxID: "ba1", Sender: "B", Receiver: "A", Amount: 1000}}

	result := BilateralOffset("A", "B", ab, ba, func(agent string) money.Cents {
		if agent == "A" {
			return 10000
		}
		return 0
	})

	// m = min(1500,1000) = 1000, net = 500 owed by A.
	assert.Equal(t, "A", result.NetDebtor)
	assert.Equal(t, money.Cents(500), result.NetAmount)

	totalAB := money.Cents(0)
	for _, s := range result.ABSettlements {
		totalAB = totalAB.Add(s.SettleAmount)
	}
	assert.Equal(t, money.Cents(1500), totalAB, "A's full queue settles once liquidity covers the net")

	totalBA := money.Cents(0)
	for _, s := range result.BASettlements {
		totalBA = totalBA.Add(s.SettleAmount)
	}
	assert.Equal(t, money.Cents(1000), totalBA)
}

func TestBilateralOffset_InsufficientLiquiditySettlesPartialNet(t *testing.T) {
	ab := []Pending{{TxID: "ab1", Sender: "A", Receiver: "B", Amount: 1500}}
	ba := []Pending{{TxID: "ba1", Sender: "B", Receiver: "A", Amount: 1000}}

	result := BilateralOffset("A", "B", ab, ba, func(agent string) money.Cents {
		if agent == "A" {
			return 200 // less than the 500 net owed
		}
		return 0
	})

	assert.Equal(t, "A", result.NetDebtor)
	assert.Equal(t, money.Cents(200), result.NetAmount)

	totalAB := money.Cents(0)
	for _, s := range result.ABSettlements {
		totalAB = totalAB.Add(s.SettleAmount)
	}
	assert.Equal(t, money.Cents(1200), totalAB, "only m=1000 plus the 200 drawable net settles")
}

func TestBilateralOffset_MarginalTransactionSplitsAcrossFIFO(t *testing.T) {
	ab := []Pending{
		{TxID: "ab1", Sender: "A", Receiver: "B", Amount: 700},
		{TxID: "ab2", Sender: "A", Receiver: "B", Amount: 700},
	}
	ba := []Pending{{TxID: "ba1", Sender: "B", Receiver: "A", Amount: 1000}}

	result := BilateralOffset("A", "B", ab, ba, func(string) money.Cents { return 0 })

	// m = 1000: ab1 settles fully (700), ab2 settles the marginal 300.
	require.Len(t, result.ABSettlements, 2)
	assert.Equal(t, "ab1", result.ABSettlements[0].TxID)
	assert.Equal(t, money.Cents(700), result.ABSettlements[0].SettleAmount)
	assert.Equal(t, "ab2", result.ABSettlements[1].TxID)
	assert.Equal(t, money.Cents(300), result.ABSettlements[1].SettleAmount)
}

func TestFindCycles_ThreeAgentCycle(t *testing.T) {
	pending := []Pending{
		{TxID: "t1", Sender: "A", Receiver: "B", Amount: 1000},
		{TxID: "t2", Sender: "B", Receiver: "C", Amount: 800},
		{TxID: "t3", Sender: "C", Receiver: "A", Amount: 1200},
	}
	graph := BuildGraph(pending)
	cycles := FindCycles(graph, 5, 10)

	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"A", "B", "C"}, cycles[0].Members)
	assert.Equal(t, money.Cents(800), cycles[0].FlowAmount, "flow is the minimum edge weight around the cycle")
}

func TestFindCycles_NoCycleWhenGraphIsAcyclic(t *testing.T) {
	pending := []Pending{
		{TxID: "t1", Sender: "A", Receiver: "B", Amount: 1000},
		{TxID: "t2", Sender: "B", Receiver: "C", Amount: 800},
	}
	graph := BuildGraph(pending)
	cycles := FindCycles(graph, 5, 10)
	assert.Empty(t, cycles)
}

func TestFindCycles_RespectsMaxLength(t *testing.T) {
	pending := []Pending{
		{TxID: "t1", Sender: "A", Receiver: "B", Amount: 100},
		{TxID: "t2", Sender: "B", Receiver: "C", Amount: 100},
		{TxID: "t3", Sender: "C", Receiver: "D", Amount: 100},
		{TxID: "t4", Sender: "D", Receiver: "A", Amount: 100},
	}
	graph := BuildGraph(pending)

	cycles := FindCycles(graph, 3, 10)
	assert.Empty(t, cycles, "a 4-cycle must not be reported when max length is 3")

	cycles = FindCycles(graph, 4, 10)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"A", "B", "C", "D"}, cycles[0].Members)
}

func TestCycle_Feasible(t *testing.T) {
	c := Cycle{Members: []string{"A", "B", "C"}, FlowAmount: 500}

	// Every member's inflow and outflow around the ring are both exactly
	// FlowAmount, so liquidity never gates a balanced cycle — not even a
	// member with far less standing balance than the flow, or a negative
	// one.
	assert.True(t, c.Feasible(func(string) money.Cents { return 1000 }))
	assert.True(t, c.Feasible(func(agent string) money.Cents {
		if agent == "B" {
			return 100
		}
		return 1000
	}))
	assert.True(t, c.Feasible(func(string) money.Cents { return -5000 }))

	zeroFlow := Cycle{Members: []string{"A", "B"}, FlowAmount: 0}
	assert.False(t, zeroFlow.Feasible(func(string) money.Cents { return 1000 }))

	singleton := Cycle{Members: []string{"A"}, FlowAmount: 500}
	assert.False(t, singleton.Feasible(func(string) money.Cents { return 1000 }))
}

func TestFindCycles_Deterministic(t *testing.T) {
	pending := []Pending{
		{TxID: "t1", Sender: "A", Receiver: "B", Amount: 500},
		{TxID: "t2", Sender: "B", Receiver: "A", Amount: 300},
		{TxID: "t3", Sender: "B", Receiver: "C", Amount: 400},
		{TxID: "t4", Sender: "C", Receiver: "B", Amount: 200},
		{TxID: "t5", Sender: "A", Receiver: "C", Amount: 100},
		{TxID: "t6", Sender: "C", Receiver: "A", Amount: 150},
	}
	graph := BuildGraph(pending)

	c1 := FindCycles(graph, 5, 10)
	c2 := FindCycles(graph, 5, 10)
	require.Equal(t, len(c1), len(c2))
	for i := range c1 {
		assert.Equal(t, c1[i].Members, c2[i].Members)
		assert.Equal(t, c1[i].FlowAmount, c2[i].FlowAmount)
	}
}
