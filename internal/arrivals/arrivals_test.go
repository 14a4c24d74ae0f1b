package arrivals

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simcash/simcash/internal/txn"
)

func baseConfig(agentID string) *Config {
	return &Config{
		AgentID:           agentID,
		Lambda:            3,
		Counterparties:    []CounterpartyWeight{{AgentID: "B", Weight: 1}, {AgentID: "C", Weight: 2}},
		Bands:             []PriorityBandWeight{{Band: txn.BandNormal, Weight: 1}},
		DeadlineMin:       1,
		DeadlineMax:       5,
		AmountMin:         100,
		AmountMax:         1000,
		DivisibleFraction: 0,
	}
}

func TestGenerateTick_ZeroLambdaProducesNoArrivals(t *testing.T) {
	g := NewGenerator(42, 1000, 10, false)
	cfg := baseConfig("A")
	cfg.Lambda = 0
	txs, err := g.GenerateTick("sim1", cfg, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestGenerateTick_NeverSelectsSenderAsReceiver(t *testing.T) {
	g := NewGenerator(42, 1000, 10, false)
	cfg := baseConfig("A")
	cfg.Counterparties = append(cfg.Counterparties, CounterpartyWeight{AgentID: "A", Weight: 99})
	for tick := int64(0); tick < 20; tick++ {
		txs, err := g.GenerateTick("sim1", cfg, tick, 0)
		require.NoError(t, err)
		for _, tx := range txs {
			assert.NotEqual(t, "A", tx.ReceiverID)
		}
	}
}

func TestGenerateTick_DeadlineRespectsEpisodeEndCap(t *testing.T) {
	g := NewGenerator(42, 3, 10, false)
	cfg := baseConfig("A")
	cfg.DeadlineMin = 100
	cfg.DeadlineMax = 200
	txs, err := g.GenerateTick("sim1", cfg, 0, 0)
	require.NoError(t, err)
	for _, tx := range txs {
		assert.LessOrEqual(t, tx.DeadlineTick, int64(3))
	}
}

func TestGenerateTick_DeadlineRespectsEODCapWhenEnabled(t *testing.T) {
	g := NewGenerator(42, 1000, 10, true)
	cfg := baseConfig("A")
	cfg.DeadlineMin = 50
	cfg.DeadlineMax = 50
	txs, err := g.GenerateTick("sim1", cfg, 2, 0) // day 0, ticks_per_day=10 -> eod cap at tick 10
	require.NoError(t, err)
	for _, tx := range txs {
		assert.LessOrEqual(t, tx.DeadlineTick, int64(10))
	}
}

func TestGenerateTick_MissingCounterpartiesIsConfigurationError(t *testing.T) {
	g := NewGenerator(42, 1000, 10, false)
	cfg := baseConfig("A")
	cfg.Counterparties = nil
	_, err := g.GenerateTick("sim1", cfg, 0, 0)
	require.Error(t, err)
}

func TestGenerateTick_DeterministicAcrossRepeatedCalls(t *testing.T) {
	g1 := NewGenerator(7, 1000, 10, false)
	g2 := NewGenerator(7, 1000, 10, false)
	cfg1 := baseConfig("A")
	cfg2 := baseConfig("A")

	tx1, err := g1.GenerateTick("sim1", cfg1, 5, 0)
	require.NoError(t, err)
	tx2, err := g2.GenerateTick("sim1", cfg2, 5, 0)
	require.NoError(t, err)

	require.Equal(t, len(tx1), len(tx2))
	for i := range tx1 {
		assert.Equal(t, tx1[i].TxID, tx2[i].TxID)
		assert.Equal(t, tx1[i].ReceiverID, tx2[i].ReceiverID)
		assert.Equal(t, tx1[i].Amount, tx2[i].Amount)
		assert.Equal(t, tx1[i].DeadlineTick, tx2[i].DeadlineTick)
	}
}

func TestGenerateTick_IndependentOfOtherAgentProcessingOrder(t *testing.T) {
	// Generating agent B's arrivals before or after agent A's must not
	// change A's arrivals, since each derives its own RNG substream
	// keyed only by (master_seed, "arrivals", agent_id, tick).
	gA := NewGenerator(99, 1000, 10, false)
	cfgA := baseConfig("A")
	cfgB := baseConfig("B")
	cfgB.Counterparties = []CounterpartyWeight{{AgentID: "A", Weight: 1}}

	txA1, err := gA.GenerateTick("sim1", cfgA, 3, 0)
	require.NoError(t, err)

	gA2 := NewGenerator(99, 1000, 10, false)
	_, err = gA2.GenerateTick("sim1", cfgB, 3, 0)
	require.NoError(t, err)
	txA2, err := gA2.GenerateTick("sim1", cfgA, 3, 0)
	require.NoError(t, err)

	require.Equal(t, len(txA1), len(txA2))
	for i := range txA1 {
		assert.Equal(t, txA1[i].Amount, txA2[i].Amount)
		assert.Equal(t, txA1[i].ReceiverID, txA2[i].ReceiverID)
	}
}
