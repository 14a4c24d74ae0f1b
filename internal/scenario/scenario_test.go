package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simcash/simcash/internal/money"
)

func TestEvent_Due_OneTimeFiresExactlyOnce(t *testing.T) {
	e := &Event{ID: "e1", Schedule: Schedule{OneTime: true, Tick: 5}, Payload: DirectTransfer{From: "A", To: "B", Amount: 100}}
	assert.False(t, e.Due(4))
	assert.True(t, e.Due(5))
	assert.False(t, e.Due(6))
}

func TestEvent_Due_RepeatingFiresOnEveryInterval(t *testing.T) {
	e := &Event{ID: "e2", Schedule: Schedule{Start: 3, Interval: 10}, Payload: CollateralAdjustment{Agent: "A", Delta: 50}}
	assert.False(t, e.Due(0))
	assert.False(t, e.Due(2))
	assert.True(t, e.Due(3))
	assert.False(t, e.Due(4))
	assert.False(t, e.Due(12))
	assert.True(t, e.Due(13))
	assert.True(t, e.Due(23))
}

func TestEvent_Due_RepeatingCatchesUpAfterGap(t *testing.T) {
	e := &Event{ID: "e3", Schedule: Schedule{Start: 0, Interval: 5}, Payload: CollateralAdjustment{Agent: "A", Delta: 1}}
	assert.True(t, e.Due(0))
	// Querying tick 17 after having last checked tick 0 should still
	// report due (10 and 15 both already passed) even though we never
	// asked about them individually.
	assert.True(t, e.Due(17))
}

func TestEvent_Validate_RejectsUnknownAgent(t *testing.T) {
	known := map[string]bool{"A": true}
	e := &Event{ID: "e4", Schedule: Schedule{OneTime: true, Tick: 0}, Payload: DirectTransfer{From: "A", To: "Z", Amount: 10}}
	err := e.Validate(known)
	require.Error(t, err)
}

func TestEvent_Validate_RejectsNegativeAmount(t *testing.T) {
	known := map[string]bool{"A": true, "B": true}
	e := &Event{ID: "e5", Schedule: Schedule{OneTime: true, Tick: 0}, Payload: DirectTransfer{From: "A", To: "B", Amount: money.Cents(-5)}}
	require.Error(t, e.Validate(known))
}

func TestEvent_Validate_RejectsBadRepeatingInterval(t *testing.T) {
	known := map[string]bool{"A": true}
	e := &Event{ID: "e6", Schedule: Schedule{Start: 0, Interval: 0}, Payload: CollateralAdjustment{Agent: "A"}}
	require.Error(t, e.Validate(known))
}

func TestDueAt_PreservesConfigurationOrder(t *testing.T) {
	e1 := &Event{ID: "e1", Schedule: Schedule{OneTime: true, Tick: 5}, Payload: CollateralAdjustment{Agent: "A"}}
	e2 := &Event{ID: "e2", Schedule: Schedule{OneTime: true, Tick: 5}, Payload: CollateralAdjustment{Agent: "B"}}
	e3 := &Event{ID: "e3", Schedule: Schedule{OneTime: true, Tick: 6}, Payload: CollateralAdjustment{Agent: "C"}}

	due := DueAt([]*Event{e1, e2, e3}, 5)
	require.Len(t, due, 2)
	assert.Equal(t, "e1", due[0].ID)
	assert.Equal(t, "e2", due[1].ID)
}
