package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/simcash/simcash/internal/simid"
)

// Bus is the append-only ordered event log and live pub/sub fan-out
// for one simulation run. It owns the intra_tick_seq counter — the
// only writer of Record.IntraTickSeq — so every emitted event gets a
// dense, strictly increasing sequence number within its tick, and
// resets that counter exactly once per tick via StartTick.
// Subscribe/Unsubscribe/Emit fan out over buffered channels, dropping
// on a full buffer rather than blocking a tick on a slow subscriber.
type Bus struct {
	simID string
	log   zerolog.Logger

	mu           sync.RWMutex
	all          []Record
	subscribers  map[chan Record]bool
	currentTick  int64
	currentDay   int64
	intraTickSeq int64
}

// NewBus creates an empty Bus for one simulation.
func NewBus(simID string, log zerolog.Logger) *Bus {
	return &Bus{
		simID:       simID,
		log:         log.With().Str("component", "event_bus").Logger(),
		subscribers: make(map[chan Record]bool),
	}
}

// StartTick resets the intra-tick sequence counter and records the
// tick/day this Bus is now emitting events for. The orchestrator calls
// this exactly once at the top of each tick.
func (b *Bus) StartTick(tick, day int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentTick = tick
	b.currentDay = day
	b.intraTickSeq = 0
}

// Emit appends a new Record with the Bus's own sim_id/tick/day/seq
// bookkeeping filled in, and fans it out to live subscribers.
// txID/agentID may be nil when not applicable to this event type.
func (b *Bus) Emit(eventType Type, txID, agentID *string, details Details) Record {
	b.mu.Lock()
	seq := b.intraTickSeq
	b.intraTickSeq++
	rec := Record{
		SimID:        b.simID,
		Tick:         b.currentTick,
		Day:          b.currentDay,
		IntraTickSeq: seq,
		EventType:    eventType,
		EventID:      simid.EventID(b.simID, b.currentTick, int(seq)),
		TxID:         txID,
		AgentID:      agentID,
		Details:      details,
	}
	b.all = append(b.all, rec)
	subs := make([]chan Record, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- rec:
		default:
			b.log.Warn().Str("event_type", string(eventType)).Msg("subscriber channel full, event dropped")
		}
	}
	return rec
}

// Subscribe returns a live feed of every Record emitted from this
// point forward. The channel is buffered; a slow consumer drops events
// rather than blocking the tick loop (the persisted log in
// internal/eventstore remains the source of truth for replay).
func (b *Bus) Subscribe() chan Record {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Record, 64)
	b.subscribers[ch] = true
	return ch
}

// Unsubscribe removes and closes a previously subscribed channel.
func (b *Bus) Unsubscribe(ch chan Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// TickEvents returns every Record emitted during the given tick, in
// emission order — the backing implementation for
// Orchestrator.get_tick_events(tick).
func (b *Bus) TickEvents(tick int64) []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Record
	for _, r := range b.all {
		if r.Tick == tick {
			out = append(out, r)
		}
	}
	return out
}

// All returns every Record emitted so far, in emission order. Callers
// must not mutate the returned slice.
func (b *Bus) All() []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Record, len(b.all))
	copy(out, b.all)
	return out
}
