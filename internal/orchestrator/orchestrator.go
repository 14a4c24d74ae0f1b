// Package orchestrator implements the single-threaded, tick-atomic
// driver that wires the arrival generator, scenario events, and the
// settlement engine together over one shared Agent/Transaction arena,
// and exposes a read-only query surface over the result.
package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/simcash/simcash/internal/agent"
	"github.com/simcash/simcash/internal/arrivals"
	"github.com/simcash/simcash/internal/config"
	"github.com/simcash/simcash/internal/events"
	"github.com/simcash/simcash/internal/scenario"
	"github.com/simcash/simcash/internal/settlement"
	"github.com/simcash/simcash/internal/simerr"
	"github.com/simcash/simcash/internal/simid"
	"github.com/simcash/simcash/internal/txn"
)

// Orchestrator owns the canonical agent and transaction arenas for one
// simulation run and drives them tick by tick. It is not safe for
// concurrent use — requires a single in-flight tick at a
// time, with cancellation only honored at a tick boundary.
type Orchestrator struct {
	Config *config.OrchestratorConfig
	SimID  string

	Agents        map[string]*agent.Agent
	Txs           map[string]*txn.Transaction
	ArrivalConfig map[string]*arrivals.Config

	Bus      *events.Bus
	Engine   *settlement.Engine
	Arrivals *arrivals.Generator
	log      zerolog.Logger

	ScenarioEvents []*scenario.Event

	CurrentTick int64
	CurrentDay  int64

	// scenarioTxOrdinal is a per-sender ordinal counter for
	// CustomTransactionArrival payloads, sharing the same TxID
	// derivation as a generated arrival (simid.TxID) but kept distinct
	// from Arrivals.NextOrdinal's own counter so a scenario-injected
	// transaction and a Poisson-generated one for the same agent and
	// tick never collide.
	scenarioTxOrdinal map[string]int

	cancelled bool
}

// New validates and wires an Orchestrator from a resolved
// OrchestratorConfig). Every agent,
// arrival config, and scenario event is already structurally validated
// by internal/config; the only failure mode left here is a malformed
// scenario-event document or an event naming an unknown agent.
func New(cfg *config.OrchestratorConfig, log zerolog.Logger) (*Orchestrator, error) {
	agents := make(map[string]*agent.Agent, len(cfg.Agents))
	known := make(map[string]bool, len(cfg.Agents))
	for _, a := range cfg.Agents {
		agents[a.ID] = a
		known[a.ID] = true
	}

	simID := simid.SimID(cfg.RngSeed, fingerprint(cfg))
	bus := events.NewBus(simID, log)
	olog := log.With().Str("component", "orchestrator").Str("sim_id", simID).Logger()

	scenarioEvents, err := scenario.ParseEvents(cfg.ScenarioEvents, known)
	if err != nil {
		olog.Error().Err(err).Msg("failed to parse scenario events at create time")
		return nil, err
	}

	episodeEndTick := cfg.TicksPerDay * cfg.NumDays
	gen := arrivals.NewGenerator(cfg.RngSeed, episodeEndTick, cfg.TicksPerDay, cfg.DeadlineCapAtEOD)

	txs := make(map[string]*txn.Transaction)
	engine := settlement.New(agents, txs, bus, cfg)

	return &Orchestrator{
		Config:            cfg,
		SimID:             simID,
		Agents:            agents,
		Txs:               txs,
		ArrivalConfig:     cfg.ArrivalConfig,
		Bus:               bus,
		Engine:            engine,
		Arrivals:          gen,
		log:               olog,
		ScenarioEvents:    scenarioEvents,
		scenarioTxOrdinal: make(map[string]int),
	}, nil
}

// fingerprint derives a stable string from ticks_per_day, num_days and
// the sorted agent IDs only, so simid.SimID is the same for two
// scenarios that differ only in other fields (balances, cost rates,
// policies, events). Such a collision is not a correctness bug:
// sim_id is an identifier, not a dedup key.
func fingerprint(cfg *config.OrchestratorConfig) string {
	ids := make([]string, len(cfg.Agents))
	for i, a := range cfg.Agents {
		ids[i] = a.ID
	}
	sort.Strings(ids)
	return fmt.Sprintf("%d|%d|%s", cfg.TicksPerDay, cfg.NumDays, strings.Join(ids, ","))
}

// TickResult is one call to Tick()'s return value: the tick/day just
// executed and every event it produced, in emission order.
type TickResult struct {
	Tick   int64
	Day    int64
	Events []events.Record
}

// Done reports whether the configured episode (ticks_per_day * num_days
// ticks) has fully elapsed.
func (o *Orchestrator) Done() bool {
	return o.CurrentTick >= o.Config.TicksPerDay*o.Config.NumDays
}

// Cancel requests the simulation stop at the next tick boundary. It is
// the only method safe to call while a Tick() from another goroutine
// might be in flight — it only sets a flag Tick() checks at its very
// start, never touching shared state directly, honoring cancellation
// only at tick boundaries.
func (o *Orchestrator) Cancel() {
	o.cancelled = true
}

// Tick executes exactly one tick: apply any scenario events due this
// tick, generate this tick's arrivals into each agent's Q1, run the
// settlement engine's Phases A-H, and — if this was the last tick of
// its day — run the day boundary (Phase I) before returning.
func (o *Orchestrator) Tick() (TickResult, error) {
	if o.cancelled {
		return TickResult{}, simerr.ErrCancelled
	}
	if o.Done() {
		return TickResult{}, fmt.Errorf("orchestrator: episode already complete at tick %d", o.CurrentTick)
	}

	tick, day := o.CurrentTick, o.CurrentDay

	for _, ev := range scenario.DueAt(o.ScenarioEvents, tick) {
		if err := o.applyScenarioEvent(ev, tick); err != nil {
			o.log.Error().Err(err).Int64("tick", tick).Msg("scenario event aborted the simulation")
			o.cancelled = true
			return TickResult{}, err
		}
	}

	o.generateArrivals(tick, day)

	o.Engine.RunTick(tick, day)

	nextTick := tick + 1
	if o.Config.TicksPerDay > 0 && nextTick%o.Config.TicksPerDay == 0 {
		o.Engine.RunDayBoundary(day + 1)
		o.CurrentDay = day + 1
	}
	o.CurrentTick = nextTick

	tickEvents := o.Bus.TickEvents(tick)
	o.logTick(tick, day, tickEvents)

	return TickResult{Tick: tick, Day: day, Events: tickEvents}, nil
}

// logTick emits the ambient per-tick log lines: one info-level summary
// and one warn-level line per recoverable policy/numeric-saturation
// event, so an operator tailing logs sees every anomaly without
// needing the event stream.
func (o *Orchestrator) logTick(tick, day int64, tickEvents []events.Record) {
	var arrivals, settlements, lsmOffsets int
	for _, rec := range tickEvents {
		switch rec.EventType {
		case events.Arrival:
			arrivals++
		case events.RtgsImmediateSettlement, events.Queue2LiquidityRelease, events.EntryDispositionOffset:
			settlements++
		case events.LsmBilateralOffset, events.LsmCycleSettlement:
			lsmOffsets++
		case events.PolicyEvaluationError:
			o.log.Warn().Int64("tick", tick).Msg("policy evaluation error, falling back to Hold")
		case events.NumericSaturation:
			o.log.Warn().Int64("tick", tick).Msg("numeric saturation occurred")
		}
	}
	o.log.Info().
		Int64("tick", tick).
		Int64("day", day).
		Int("arrivals", arrivals).
		Int("settlements", settlements).
		Int("lsm_offsets", lsmOffsets).
		Msg("tick complete")
}

// generateArrivals runs the arrival generator for every agent with a
// configured rate, in lexicographic agent order, and enqueues every
// resulting transaction onto its sender's Q1.
func (o *Orchestrator) generateArrivals(tick, day int64) {
	for _, agentID := range agent.SortedIDs(o.Agents) {
		cfg, ok := o.ArrivalConfig[agentID]
		if !ok {
			continue
		}
		txs, err := o.Arrivals.GenerateTick(o.SimID, cfg, tick, day)
		if err != nil {
			// A misconfigured arrival table (e.g. zero total counterparty
			// weight) is a ConfigurationError that should have been caught
			// at load time; if it still surfaces here, skip this agent's
			// arrivals for the tick rather than aborting the whole run.
			o.Bus.Emit(events.PolicyEvaluationError, nil, strPtr(agentID), &events.PolicyErrorDetails{
				TreeKind: "arrival_generator", Reason: err.Error(),
			})
			continue
		}
		a := o.Agents[agentID]
		for _, tx := range txs {
			o.Txs[tx.TxID] = tx
			a.Q1 = append(a.Q1, tx.TxID)
			o.Bus.Emit(events.Arrival, strPtr(tx.TxID), strPtr(agentID), &events.ArrivalDetails{
				SenderID: tx.SenderID, ReceiverID: tx.ReceiverID, Amount: tx.Amount,
				Priority: tx.Priority, DeadlineTick: tx.DeadlineTick, Divisible: tx.Divisible,
			})
		}
	}
}

func strPtr(s string) *string { return &s }
