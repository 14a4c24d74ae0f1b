// Package arrivals implements the Arrival Generator of :
// per-tick, per-agent Poisson-rate transaction creation with weighted
// counterparty selection, priority bands, and deadline windows.
package arrivals

import (
	"github.com/simcash/simcash/internal/distributions"
	"github.com/simcash/simcash/internal/rng"
	"github.com/simcash/simcash/internal/simerr"
	"github.com/simcash/simcash/internal/simid"
	"github.com/simcash/simcash/internal/txn"
)

// CounterpartyWeight is one entry in a weighted-selection table.
// Weights need not sum to 1; Config normalizes at
// selection time.
type CounterpartyWeight struct {
	AgentID string
	Weight  float64
}

// PriorityBandWeight assigns relative frequency to one of the three
// priority bands.
type PriorityBandWeight struct {
	Band   txn.PriorityBand
	Weight float64
}

// Config is one agent's arrival specification, mutable in place by
// scenario events (GlobalArrivalRateChange, AgentArrivalRateChange,
// CounterpartyWeightChange, DeadlineWindowChange — ).
type Config struct {
	AgentID string

	// Lambda is the per-tick Poisson arrival rate, in transactions per
	// tick. A GlobalArrivalRateChange/AgentArrivalRateChange scenario
	// event scales this value directly.
	Lambda float64

	Counterparties []CounterpartyWeight
	Bands          []PriorityBandWeight

	// DeadlineMin/DeadlineMax bound the uniform window added to
	// arrival_tick to compute deadline_tick.
	DeadlineMin int64
	DeadlineMax int64

	// AmountMin/AmountMax bound the transaction amount in cents,
	// sampled uniformly.
	AmountMin int64
	AmountMax int64

	// DivisibleFraction is the probability [0,1] that a generated
	// transaction is marked divisible (splittable by policy).
	DivisibleFraction float64
}

// Generator produces one tick's arrivals for every configured agent.
type Generator struct {
	MasterSeed uint64

	// EpisodeEndTick and TicksPerDay/DeadlineCapAtEOD implement the
	// two deadline caps of step 2.
	EpisodeEndTick   int64
	TicksPerDay      int64
	DeadlineCapAtEOD bool

	// NextOrdinal tracks, per agent, the next arrival ordinal used to
	// build a deterministic TxID (simid.TxID requires a per-arrival
	// ordinal, not just the tick, since a tick may produce >1 arrival
	// for the same agent).
	NextOrdinal map[string]int
}

// NewGenerator builds a Generator with its ordinal counters
// initialized.
func NewGenerator(masterSeed uint64, episodeEndTick, ticksPerDay int64, deadlineCapAtEOD bool) *Generator {
	return &Generator{
		MasterSeed:       masterSeed,
		EpisodeEndTick:   episodeEndTick,
		TicksPerDay:      ticksPerDay,
		DeadlineCapAtEOD: deadlineCapAtEOD,
		NextOrdinal:      make(map[string]int),
	}
}

// GenerateTick produces arrivals for a single agent at the given tick
// and current simulation day. The RNG stream is derived fresh from
// (master_seed, "arrivals", agent_id, tick) // determinism clause, so the result is independent of what order
// agents are processed in or what any other agent's stream consumed.
func (g *Generator) GenerateTick(simID string, cfg *Config, tick, currentDay int64) ([]*txn.Transaction, error) {
	if cfg.Lambda == 0 {
		return nil, nil
	}
	if len(cfg.Counterparties) == 0 {
		return nil, &simerr.ConfigurationError{
			Field: "arrivals." + cfg.AgentID + ".counterparties",
			Reason: "agent has a nonzero arrival rate but no counterparty weights",
		}
	}

	stream := rng.FromMaster(g.MasterSeed, "arrivals", cfg.AgentID, itoa(tick))

	count := distributions.Poisson{Lambda: cfg.Lambda}.Sample(stream)
	if count == 0 {
		return nil, nil
	}

	out := make([]*txn.Transaction, 0, count)
	for i := int64(0); i < count; i++ {
		tx, err := g.generateOne(stream, simID, cfg, tick, currentDay)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func (g *Generator) generateOne(stream *rng.Stream, simID string, cfg *Config, tick, currentDay int64) (*txn.Transaction, error) {
	receiver, err := weightedPick(stream, cfg.Counterparties, cfg.AgentID)
	if err != nil {
		return nil, err
	}

	priority := pickPriority(stream, cfg.Bands)

	amount := distributions.Uniform{Min: cfg.AmountMin, Max: cfg.AmountMax}.Sample(stream)

	window := distributions.Uniform{Min: cfg.DeadlineMin, Max: cfg.DeadlineMax}.Sample(stream)
	deadline := tick + window
	if deadline > g.EpisodeEndTick {
		deadline = g.EpisodeEndTick
	}
	if g.DeadlineCapAtEOD && g.TicksPerDay > 0 {
		eodCap := (currentDay + 1) * g.TicksPerDay
		if deadline > eodCap {
			deadline = eodCap
		}
	}

	divisible := stream.UniformFloat64() < cfg.DivisibleFraction

	ordinal := g.NextOrdinal[cfg.AgentID]
	g.NextOrdinal[cfg.AgentID] = ordinal + 1

	return &txn.Transaction{
		TxID:              simid.TxID(simID+":"+cfg.AgentID, tick, ordinal),
		SenderID:          cfg.AgentID,
		ReceiverID:        receiver,
		Amount:            amount,
		RemainingAmount:   amount,
		ArrivalTick:       tick,
		DeadlineTick:      deadline,
		Priority:          priority,
		EffectivePriority: priority,
		Status:            txn.Arrived,
		Divisible:         divisible,
	}, nil
}

// weightedPick selects a counterparty by weighted random draw,
// excluding the sender itself. Weights need not
// sum to 1.
func weightedPick(stream *rng.Stream, weights []CounterpartyWeight, excludeSelf string) (string, error) {
	var total float64
	for _, w := range weights {
		if w.AgentID == excludeSelf {
			continue
		}
		total += w.Weight
	}
	if total <= 0 {
		return "", &simerr.ConfigurationError{
			Field:  "arrivals." + excludeSelf + ".counterparties",
			Reason: "no eligible counterparty with positive weight after excluding sender",
		}
	}

	target := stream.UniformFloat64() * total
	var cumulative float64
	for _, w := range weights {
		if w.AgentID == excludeSelf {
			continue
		}
		cumulative += w.Weight
		if target < cumulative {
			return w.AgentID, nil
		}
	}
	// Floating-point rounding may leave target just past the last
	// cumulative boundary; fall back to the last eligible entry.
	for i := len(weights) - 1; i >= 0; i-- {
		if weights[i].AgentID != excludeSelf {
			return weights[i].AgentID, nil
		}
	}
	return "", &simerr.ConfigurationError{Field: "arrivals." + excludeSelf + ".counterparties", Reason: "unreachable"}
}

// pickPriority selects a priority value representative of the drawn
// band's midpoint, weighted over bands; an agent with no band weights
// configured gets a flat Normal-band priority.
func pickPriority(stream *rng.Stream, bands []PriorityBandWeight) int {
	if len(bands) == 0 {
		return 5
	}
	var total float64
	for _, b := range bands {
		total += b.Weight
	}
	if total <= 0 {
		return 5
	}
	target := stream.UniformFloat64() * total
	var cumulative float64
	chosen := bands[len(bands)-1].Band
	for _, b := range bands {
		cumulative += b.Weight
		if target < cumulative {
			chosen = b.Band
			break
		}
	}
	switch chosen {
	case txn.BandUrgent:
		return 9
	case txn.BandNormal:
		return 5
	default:
		return 1
	}
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
