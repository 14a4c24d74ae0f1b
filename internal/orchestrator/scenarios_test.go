package orchestrator

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simcash/simcash/internal/agent"
	"github.com/simcash/simcash/internal/arrivals"
	"github.com/simcash/simcash/internal/config"
	"github.com/simcash/simcash/internal/costs"
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/policy"
)

// holdOnlyTree is releaseOnlyTree's opposite: every transaction it
// sees is held in Q1 forever, used to pin a transaction in place while
// a scenario plays out around deadline/EOD boundaries.
func holdOnlyTree() *policy.Tree {
	return &policy.Tree{
		Kind: policy.PaymentTree, Root: 0, MaxDepth: 15, Div0: policy.Div0Error,
		Nodes: []policy.Node{{ID: "root", IsAction: true, Action: policy.ActionHold}},
	}
}

func customArrivalEvent(id string, tick int64, sender, receiver string, amount, deadline int64) json.RawMessage {
	doc := fmt.Sprintf(`{
		"id": %q,
		"schedule": {"one_time": true, "tick": %d},
		"payload_kind": "CustomTransactionArrival",
		"payload": {"sender_id": %q, "receiver_id": %q, "amount": %d, "priority": 5, "deadline_tick": %d, "divisible": false}
	}`, id, tick, sender, receiver, amount, deadline)
	return json.RawMessage(doc)
}

// --- S1: two-period deterministic settlement ---------------------------

func s1Config() *config.OrchestratorConfig {
	a := agent.New("A", money.Cents(50_000), 0)
	b := agent.New("B", money.Cents(50_000), 0)
	a.Policy = &policy.Set{Payment: releaseOnlyTree()}
	b.Policy = &policy.Set{Payment: releaseOnlyTree()}

	return &config.OrchestratorConfig{
		TicksPerDay:   2,
		NumDays:       1,
		RngSeed:       7,
		Agents:        []*agent.Agent{a, b},
		ArrivalConfig: map[string]*arrivals.Config{},
		CostRates:     costs.Rates{},
		BandMult:      costs.BandMultiplier{Low: 1, Normal: 1, Urgent: 1},
		LSM:           config.LSMConfig{},
		DeferredCrediting: true,
		ScenarioEvents: []json.RawMessage{
			customArrivalEvent("e1", 0, "A", "B", 15_000, 100),
			customArrivalEvent("e2", 1, "A", "B", 5_000, 100),
			customArrivalEvent("e3", 1, "A", "B", 15_000, 100),
		},
	}
}

func TestS1_TwoPeriodDeterministicSettlement(t *testing.T) {
	o, err := New(s1Config(), zerolog.Nop())
	require.NoError(t, err)

	for !o.Done() {
		_, err := o.Tick()
		require.NoError(t, err)
	}

	balA, _ := o.GetAgentBalance("A")
	balB, _ := o.GetAgentBalance("B")
	assert.Equal(t, money.Cents(15_000), balA) // 50000 - 15000 - 5000 - 15000
	assert.Equal(t, money.Cents(85_000), balB) // 50000 + 15000 + 5000 + 15000

	for _, tx := range o.Txs {
		assert.Equal(t, "Settled", tx.Status.String())
		assert.Equal(t, int64(0), tx.RemainingAmount)
	}

	costA, _ := o.GetAgentAccumulatedCosts("A")
	costB, _ := o.GetAgentAccumulatedCosts("B")
	assert.Equal(t, money.Cents(0), costA)
	assert.Equal(t, money.Cents(0), costB)
}

// --- S2: bilateral offset ----------------------------------------------

func s2Config() *config.OrchestratorConfig {
	a := agent.New("A", 0, 0)
	b := agent.New("B", 0, 0)
	a.Policy = &policy.Set{Payment: releaseOnlyTree()}
	b.Policy = &policy.Set{Payment: releaseOnlyTree()}

	return &config.OrchestratorConfig{
		TicksPerDay:   1,
		NumDays:       1,
		RngSeed:       11,
		Agents:        []*agent.Agent{a, b},
		ArrivalConfig: map[string]*arrivals.Config{},
		CostRates:     costs.Rates{},
		BandMult:      costs.BandMultiplier{Low: 1, Normal: 1, Urgent: 1},
		LSM:           config.LSMConfig{EnableBilateral: true, EnableCycles: true},
		ScenarioEvents: []json.RawMessage{
			customArrivalEvent("e1", 0, "A", "B", 100_000, 100),
			customArrivalEvent("e2", 0, "B", "A", 80_000, 100),
		},
	}
}

func TestS2_BilateralOffset(t *testing.T) {
	o, err := New(s2Config(), zerolog.Nop())
	require.NoError(t, err)

	result, err := o.Tick()
	require.NoError(t, err)

	var offsets []*events.LsmBilateralDetails
	for _, rec := range result.Events {
		if rec.EventType == events.LsmBilateralOffset {
			offsets = append(offsets, rec.Details.(*events.LsmBilateralDetails))
		}
	}
	require.Len(t, offsets, 1)
	assert.ElementsMatch(t, []string{"A", "B"}, []string{offsets[0].AgentA, offsets[0].AgentB})

	var abTotal, baTotal int64
	for _, tx := range o.Txs {
		switch {
		case tx.SenderID == "A":
			abTotal = tx.Amount - tx.RemainingAmount
		case tx.SenderID == "B":
			baTotal = tx.Amount - tx.RemainingAmount
		}
	}
	assert.Equal(t, int64(80_000), abTotal)
	assert.Equal(t, int64(80_000), baTotal)

	balA, _ := o.GetAgentBalance("A")
	balB, _ := o.GetAgentBalance("B")
	assert.Equal(t, money.Cents(0), balA) // -80000 paid, +80000 received, net zero
	assert.Equal(t, money.Cents(0), balB)

	assert.Equal(t, 1, o.GetQueue2Size()) // the unmatched 20000 residual stays queued
}

// --- S3: three-agent cycle ----------------------------------------------

func s3Config() *config.OrchestratorConfig {
	// None of the three agents carries any gross liquidity at all — each
	// would fail Phase A's/Phase C's standalone solvency check for its
	// own outgoing leg (100, 80, and 90 respectively). The cycle is only
	// settleable because each member's inflow and outflow around the
	// ring net to exactly zero: A pays B 100 but the cycle only ever
	// moves the uniform 80 flow, so A's net exposure for the cycle is
	// -80 (to B) +80 (from C) = 0, and likewise for B and C.
	a := agent.New("A", 0, 0)
	b := agent.New("B", 0, 0)
	c := agent.New("C", 0, 0)
	a.Policy = &policy.Set{Payment: releaseOnlyTree()}
	b.Policy = &policy.Set{Payment: releaseOnlyTree()}
	c.Policy = &policy.Set{Payment: releaseOnlyTree()}

	return &config.OrchestratorConfig{
		TicksPerDay:   1,
		NumDays:       1,
		RngSeed:       13,
		Agents:        []*agent.Agent{a, b, c},
		ArrivalConfig: map[string]*arrivals.Config{},
		CostRates:     costs.Rates{},
		BandMult:      costs.BandMultiplier{Low: 1, Normal: 1, Urgent: 1},
		LSM:           config.LSMConfig{EnableBilateral: true, EnableCycles: true, MaxCycleLength: 8, MaxCyclesPerTick: 8},
		ScenarioEvents: []json.RawMessage{
			customArrivalEvent("e1", 0, "A", "B", 100, 100),
			customArrivalEvent("e2", 0, "B", "C", 80, 100),
			customArrivalEvent("e3", 0, "C", "A", 90, 100),
		},
	}
}

func TestS3_ThreeAgentCycle(t *testing.T) {
	o, err := New(s3Config(), zerolog.Nop())
	require.NoError(t, err)

	result, err := o.Tick()
	require.NoError(t, err)

	var cycles []*events.LsmCycleDetails
	for _, rec := range result.Events {
		if rec.EventType == events.LsmCycleSettlement {
			cycles = append(cycles, rec.Details.(*events.LsmCycleDetails))
		}
	}
	require.Len(t, cycles, 1)
	assert.Equal(t, int64(80), cycles[0].FlowAmount)
	assert.ElementsMatch(t, []string{"A", "B", "C"}, cycles[0].Members)
	assert.Len(t, cycles[0].TxIDs, 3)

	balA, _ := o.GetAgentBalance("A")
	balB, _ := o.GetAgentBalance("B")
	balC, _ := o.GetAgentBalance("C")
	assert.Equal(t, money.Cents(0), balA) // -80 (to B) +80 (from C): net zero
	assert.Equal(t, money.Cents(0), balB) // -80 (to C) +80 (from A): net zero
	assert.Equal(t, money.Cents(0), balC) // -80 (to A) +80 (from B): net zero
}

// --- S4: deadline overdue -------------------------------------------------

func s4Config() *config.OrchestratorConfig {
	a := agent.New("A", money.Cents(10_000), 0)
	b := agent.New("B", 0, 0)
	a.Policy = &policy.Set{Payment: holdOnlyTree()}
	b.Policy = &policy.Set{Payment: releaseOnlyTree()}

	return &config.OrchestratorConfig{
		TicksPerDay:   10,
		NumDays:       1,
		RngSeed:       17,
		Agents:        []*agent.Agent{a, b},
		ArrivalConfig: map[string]*arrivals.Config{},
		CostRates:     costs.Rates{DeadlinePenalty: 500, OverdueDelayMultiplier: 20_000},
		BandMult:      costs.BandMultiplier{Low: 1, Normal: 1, Urgent: 1},
		LSM:           config.LSMConfig{},
		ScenarioEvents: []json.RawMessage{
			customArrivalEvent("e1", 0, "A", "B", 1_000, 2),
		},
	}
}

func TestS4_DeadlineOverdue(t *testing.T) {
	o, err := New(s4Config(), zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := o.Tick()
		require.NoError(t, err)
	}

	var overdueCount, penaltyChargedCount int
	var penaltyCostTotal int64
	for _, rec := range o.AllEvents() {
		if rec.EventType == events.TransactionWentOverdue {
			overdueCount++
		}
		if rec.EventType == events.CostAccrual {
			if d, ok := rec.Details.(*events.CostAccrualDetails); ok && d.PenaltyCost != 0 {
				penaltyChargedCount++
				penaltyCostTotal += d.PenaltyCost
			}
		}
	}
	assert.Equal(t, 1, overdueCount, "deadline-penalty event must fire at most once")
	assert.Equal(t, 1, penaltyChargedCount)
	assert.Equal(t, int64(500), penaltyCostTotal)

	for _, t2 := range o.Txs {
		assert.True(t, t2.Overdue)
		assert.True(t, t2.DeadlinePenaltyCharged)
	}
}

// --- S5: EOD penalty -------------------------------------------------------

func s5Config() *config.OrchestratorConfig {
	a := agent.New("A", money.Cents(10_000), 0)
	b := agent.New("B", 0, 0)
	a.Policy = &policy.Set{Payment: holdOnlyTree()}
	b.Policy = &policy.Set{Payment: releaseOnlyTree()}

	return &config.OrchestratorConfig{
		TicksPerDay:   10,
		NumDays:       1,
		RngSeed:       19,
		Agents:        []*agent.Agent{a, b},
		ArrivalConfig: map[string]*arrivals.Config{},
		CostRates:     costs.Rates{EODPenaltyPerTx: 750},
		BandMult:      costs.BandMultiplier{Low: 1, Normal: 1, Urgent: 1},
		LSM:           config.LSMConfig{},
		ScenarioEvents: []json.RawMessage{
			customArrivalEvent("e1", 0, "A", "B", 1_000, 100),
		},
	}
}

func TestS5_EODPenalty(t *testing.T) {
	o, err := New(s5Config(), zerolog.Nop())
	require.NoError(t, err)

	var lastResult TickResult
	for !o.Done() {
		r, err := o.Tick()
		require.NoError(t, err)
		lastResult = r
	}
	assert.Equal(t, int64(9), lastResult.Tick) // ticks 0..9, day boundary folded into tick 9's result

	var eodEvents []*events.EndOfDayDetails
	var penaltyCosts []int64
	for _, rec := range lastResult.Events {
		if rec.EventType == events.EndOfDay {
			eodEvents = append(eodEvents, rec.Details.(*events.EndOfDayDetails))
		}
		if rec.EventType == events.CostAccrual {
			if d, ok := rec.Details.(*events.CostAccrualDetails); ok && d.PenaltyCost != 0 {
				penaltyCosts = append(penaltyCosts, d.PenaltyCost)
			}
		}
	}
	require.Len(t, eodEvents, 1)
	assert.Equal(t, 1, eodEvents[0].UnsettledCount)
	require.Len(t, penaltyCosts, 1)
	assert.Equal(t, int64(750), penaltyCosts[0])
}

// --- S6: determinism replay -----------------------------------------------

func TestS6_DeterminismReplay(t *testing.T) {
	run := func(cfg *config.OrchestratorConfig) []events.Record {
		o, err := New(cfg, zerolog.Nop())
		require.NoError(t, err)
		for !o.Done() {
			_, err := o.Tick()
			require.NoError(t, err)
		}
		return o.AllEvents()
	}

	events1 := run(s1Config())
	events2 := run(s1Config())
	assert.Equal(t, events1, events2)

	// A second, independently-built config for the same scenario must
	// also assign the same sim_id at construction time, before any
	// tick runs.
	o1, err := New(s1Config(), zerolog.Nop())
	require.NoError(t, err)
	o2, err := New(s1Config(), zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, o1.SimID, o2.SimID)
}
