// Package txqueue implements the two queue disciplines: Queue 1
// (per-agent, ordering selectable at load) and Queue 2 (shared RTGS
// queue, priority-band ordering with optional escalation).
//
// Both queues hold transaction IDs only — the Transaction arena itself
// lives with the orchestrator.
package txqueue

import "sort"

// Q1Entry is one Queue 1 slot: enough to order it without dereferencing
// the transaction arena on every comparison.
type Q1Entry struct {
	TxID        string
	Priority    int
	DeadlineTick int64
	ArrivalSeq  int64 // monotone counter, breaks ties by true arrival order
}

// SortQ1 orders entries in place per the agent's Q1Ordering: Fifo is
// strict arrival order; PriorityDeadline sorts by priority descending,
// then deadline ascending, then arrival as the final tiebreaker (both
// orderings are stable on arrival order, so a Fifo sort is a strict
// subset of PriorityDeadline's tiebreak chain).
func SortQ1(entries []Q1Entry, ordering int) {
	const priorityDeadline = 1
	if ordering == priorityDeadline {
		sort.SliceStable(entries, func(i, j int) bool {
			if entries[i].Priority != entries[j].Priority {
				return entries[i].Priority > entries[j].Priority
			}
			if entries[i].DeadlineTick != entries[j].DeadlineTick {
				return entries[i].DeadlineTick < entries[j].DeadlineTick
			}
			return entries[i].ArrivalSeq < entries[j].ArrivalSeq
		})
		return
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ArrivalSeq < entries[j].ArrivalSeq
	})
}

// Band is the Queue 2 priority band, processed Urgent before Normal
// before Low. Declared locally (rather than imported
// from internal/txn) so this package never needs to know about the
// Transaction type — only about the three band values every
// transaction maps to via txn.BandOf.
type Band int

const (
	BandLow Band = iota
	BandNormal
	BandUrgent
)

// Q2Entry is one Queue 2 slot.
type Q2Entry struct {
	TxID              string
	Band              Band
	BasePriority      int
	EffectivePriority int
	EnteredAtTick     int64
	EntrySeq          int64 // monotone counter, FIFO tiebreak within a band
}

// Queue2 is the shared RTGS queue. Entries are kept in a slice; Ordered
// returns a fresh sorted copy (Escalate is the separate step that
// updates priorities) rather than maintaining a heap, since tick sizes stay small
// enough that a full sort per tick is cheap and, crucially, simple to
// keep deterministic.
type Queue2 struct {
	entries  []Q2Entry
	nextSeq  int64
}

// NewQueue2 returns an empty Queue 2.
func NewQueue2() *Queue2 {
	return &Queue2{}
}

// Push enqueues a transaction, assigning it the next entry sequence
// number for FIFO-within-band tiebreaking.
func (q *Queue2) Push(txID string, band Band, priority int, enteredAtTick int64) {
	q.entries = append(q.entries, Q2Entry{
		TxID:              txID,
		Band:              band,
		BasePriority:      priority,
		EffectivePriority: priority,
		EnteredAtTick:     enteredAtTick,
		EntrySeq:          q.nextSeq,
	})
	q.nextSeq++
}

// Remove deletes the entry for txID, if present.
func (q *Queue2) Remove(txID string) {
	for i, e := range q.entries {
		if e.TxID == txID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// Len reports the current queue depth.
func (q *Queue2) Len() int {
	return len(q.entries)
}

// Escalate recomputes EffectivePriority = BasePriority + boost for
// every entry (idempotent — safe to call once per tick). Entries whose
// ticks-to-deadline has dropped to or below startEscalatingAtTicks get
// a boost that ramps linearly to maxBoost as ticks-to-deadline
// approaches zero. deadlineOf looks up a transaction's
// deadline tick; the queue holds no copy of it, to avoid letting the
// two diverge.
func (q *Queue2) Escalate(currentTick int64, startEscalatingAtTicks, maxBoost int, deadlineOf func(txID string) int64) {
	for i := range q.entries {
		e := &q.entries[i]
		if startEscalatingAtTicks <= 0 || maxBoost <= 0 {
			e.EffectivePriority = e.BasePriority
			continue
		}
		ticksToDeadline := deadlineOf(e.TxID) - currentTick
		if ticksToDeadline > int64(startEscalatingAtTicks) {
			e.EffectivePriority = e.BasePriority
			continue
		}
		if ticksToDeadline < 0 {
			ticksToDeadline = 0
		}
		// Linear ramp: full boost at ticksToDeadline==0, zero boost at
		// ticksToDeadline==startEscalatingAtTicks.
		fraction := 1.0 - float64(ticksToDeadline)/float64(startEscalatingAtTicks)
		boost := int(fraction * float64(maxBoost))
		e.EffectivePriority = e.BasePriority + boost
	}
}

// Ordered returns Queue 2's entries in deterministic processing order:
// priority mode enabled ⇒ band Urgent, then Normal, then Low, FIFO
// (by EntrySeq) within each band; priority mode disabled ⇒ pure FIFO
// by EntrySeq regardless of band.
func (q *Queue2) Ordered(priorityMode bool) []Q2Entry {
	out := make([]Q2Entry, len(q.entries))
	copy(out, q.entries)

	if !priorityMode {
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].EntrySeq < out[j].EntrySeq
		})
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Band != out[j].Band {
			return out[i].Band > out[j].Band // Urgent(2) > Normal(1) > Low(0)
		}
		return out[i].EntrySeq < out[j].EntrySeq
	})
	return out
}
