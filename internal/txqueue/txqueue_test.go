package txqueue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortQ1_Fifo(t *testing.T) {
	entries := []Q1Entry{
		{TxID: "c", Priority: 9, DeadlineTick: 1, ArrivalSeq: 2},
		{TxID: "a", Priority: 1, DeadlineTick: 5, ArrivalSeq: 0},
		{TxID: "b", Priority: 5, DeadlineTick: 3, ArrivalSeq: 1},
	}
	SortQ1(entries, 0)
	assert.Equal(t, []string{"a", "b", "c"}, idsOf(entries))
}

func TestSortQ1_PriorityDeadline(t *testing.T) {
	entries := []Q1Entry{
		{TxID: "low-early", Priority: 1, DeadlineTick: 1, ArrivalSeq: 0},
		{TxID: "high-late", Priority: 9, DeadlineTick: 10, ArrivalSeq: 1},
		{TxID: "high-early", Priority: 9, DeadlineTick: 2, ArrivalSeq: 2},
	}
	SortQ1(entries, 1)
	assert.Equal(t, []string{"high-early", "high-late", "low-early"}, idsOf(entries))
}

func TestSortQ1_PriorityDeadline_ArrivalTiebreak(t *testing.T) {
	entries := []Q1Entry{
		{TxID: "second", Priority: 5, DeadlineTick: 5, ArrivalSeq: 1},
		{TxID: "first", Priority: 5, DeadlineTick: 5, ArrivalSeq: 0},
	}
	SortQ1(entries, 1)
	assert.Equal(t, []string{"first", "second"}, idsOf(entries))
}

func idsOf(entries []Q1Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.TxID
	}
	return out
}

func TestQueue2_Ordered_PriorityMode(t *testing.T) {
	q := NewQueue2()
	q.Push("low1", BandLow, 1, 0)
	q.Push("urgent1", BandUrgent, 9, 0)
	q.Push("normal1", BandNormal, 5, 0)
	q.Push("urgent2", BandUrgent, 9, 0)

	ordered := q.Ordered(true)
	ids := make([]string, len(ordered))
	for i, e := range ordered {
		ids[i] = e.TxID
	}
	assert.Equal(t, []string{"urgent1", "urgent2", "normal1", "low1"}, ids)
}

func TestQueue2_Ordered_NonPriorityModeIsPureFifo(t *testing.T) {
	q := NewQueue2()
	q.Push("a", BandLow, 1, 0)
	q.Push("b", BandUrgent, 9, 0)
	q.Push("c", BandNormal, 5, 0)

	ordered := q.Ordered(false)
	ids := make([]string, len(ordered))
	for i, e := range ordered {
		ids[i] = e.TxID
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestQueue2_Remove(t *testing.T) {
	q := NewQueue2()
	q.Push("a", BandLow, 1, 0)
	q.Push("b", BandLow, 1, 0)
	q.Remove("a")
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, "b", q.Ordered(false)[0].TxID)
}

func TestQueue2_Escalate_RampsLinearlyAndIsIdempotent(t *testing.T) {
	q := NewQueue2()
	q.Push("tx1", BandLow, 3, 0)
	deadlines := map[string]int64{"tx1": 10}
	deadlineOf := func(id string) int64 { return deadlines[id] }

	q.Escalate(8, 10, 10, deadlineOf) // ticksToDeadline=2, startAt=10 -> fraction 0.8 -> boost 8
	assert.Equal(t, 11, q.entries[0].EffectivePriority)

	// Calling again at the same tick must not double the boost.
	q.Escalate(8, 10, 10, deadlineOf)
	assert.Equal(t, 11, q.entries[0].EffectivePriority)
}

func TestQueue2_Escalate_NoBoostBeforeWindow(t *testing.T) {
	q := NewQueue2()
	q.Push("tx1", BandLow, 3, 0)
	deadlines := map[string]int64{"tx1": 100}
	deadlineOf := func(id string) int64 { return deadlines[id] }

	q.Escalate(0, 10, 10, deadlineOf) // ticksToDeadline=100, far outside window
	assert.Equal(t, 3, q.entries[0].EffectivePriority)
}
