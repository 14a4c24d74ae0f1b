package eventstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simcash/simcash/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file:eventstore_test?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleRecords() []events.Record {
	txID := "tx1"
	agentID := "A"
	return []events.Record{
		{
			SimID: "sim1", Tick: 0, Day: 0, IntraTickSeq: 0,
			EventType: events.Arrival, EventID: "ev1", TxID: &txID, AgentID: &agentID,
			Details: &events.ArrivalDetails{SenderID: "A", ReceiverID: "B", Amount: 500, Priority: 5, DeadlineTick: 10},
		},
		{
			SimID: "sim1", Tick: 0, Day: 0, IntraTickSeq: 1,
			EventType: events.RtgsImmediateSettlement, EventID: "ev2", TxID: &txID, AgentID: &agentID,
			Details: &events.SettlementDetails{SenderID: "A", ReceiverID: "B", SettledAmount: 500, FullySettled: true},
		},
	}
}

func TestAppendTick_PersistsAllRecords(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendTick(sampleRecords()))

	n, err := s.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAppendTick_EmptySliceIsNoop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendTick(nil))

	n, err := s.CountEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestExportJSONL_RoundTripsThroughLoadJSONL(t *testing.T) {
	s := newTestStore(t)
	records := sampleRecords()
	require.NoError(t, s.AppendTick(records))

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSONL(&buf))

	loaded, err := LoadJSONL(&buf)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, events.Arrival, loaded[0].EventType)
	assert.Equal(t, "ev1", loaded[0].EventID)
	arrival, ok := loaded[0].Details.(*events.ArrivalDetails)
	require.True(t, ok)
	assert.Equal(t, int64(500), arrival.Amount)

	assert.Equal(t, events.RtgsImmediateSettlement, loaded[1].EventType)
	settlement, ok := loaded[1].Details.(*events.SettlementDetails)
	require.True(t, ok)
	assert.True(t, settlement.FullySettled)
}

func TestPing_SucceedsOnOpenStore(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Ping(context.Background()))
}
