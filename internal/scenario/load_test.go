package scenario

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simcash/simcash/internal/money"
	"github.com/simcash/simcash/internal/txn"
)

func rawDoc(t *testing.T, doc string) json.RawMessage {
	t.Helper()
	return json.RawMessage(doc)
}

func TestParseEvents_DirectTransfer(t *testing.T) {
	known := map[string]bool{"A": true, "B": true}
	raw := []json.RawMessage{rawDoc(t, `{
		"id": "e1",
		"schedule": {"one_time": true, "tick": 3},
		"payload_kind": "DirectTransfer",
		"payload": {"From": "A", "To": "B", "Amount": 500}
	}`)}

	events, err := ParseEvents(raw, known)
	require.NoError(t, err)
	require.Len(t, events, 1)

	xfer, ok := events[0].Payload.(DirectTransfer)
	require.True(t, ok)
	assert.Equal(t, "A", xfer.From)
	assert.Equal(t, "B", xfer.To)
	assert.Equal(t, money.Cents(500), xfer.Amount)
}

func TestParseEvents_CustomTransactionArrival(t *testing.T) {
	known := map[string]bool{"A": true, "B": true}
	raw := []json.RawMessage{rawDoc(t, `{
		"id": "e2",
		"schedule": {"one_time": true, "tick": 10},
		"payload_kind": "CustomTransactionArrival",
		"payload": {"sender_id": "A", "receiver_id": "B", "amount": 1000, "priority": 9, "deadline_tick": 20, "divisible": true}
	}`)}

	events, err := ParseEvents(raw, known)
	require.NoError(t, err)
	require.Len(t, events, 1)

	tpl, ok := events[0].Payload.(*txn.Transaction)
	require.True(t, ok)
	assert.Equal(t, "A", tpl.SenderID)
	assert.Equal(t, "B", tpl.ReceiverID)
	assert.Equal(t, int64(1000), tpl.Amount)
	assert.Equal(t, 9, tpl.Priority)
	assert.True(t, tpl.Divisible)
}

func TestParseEvents_UnknownAgentRejected(t *testing.T) {
	known := map[string]bool{"A": true}
	raw := []json.RawMessage{rawDoc(t, `{
		"id": "e3",
		"schedule": {"one_time": true, "tick": 1},
		"payload_kind": "CollateralAdjustment",
		"payload": {"Agent": "Z", "Delta": 10}
	}`)}

	_, err := ParseEvents(raw, known)
	require.Error(t, err)
}

func TestParseEvents_UnknownPayloadKindRejected(t *testing.T) {
	known := map[string]bool{"A": true}
	raw := []json.RawMessage{rawDoc(t, `{
		"id": "e4",
		"schedule": {"one_time": true, "tick": 1},
		"payload_kind": "NotARealKind",
		"payload": {}
	}`)}

	_, err := ParseEvents(raw, known)
	require.Error(t, err)
}

func TestParseEvents_GlobalArrivalRateChange(t *testing.T) {
	known := map[string]bool{"A": true}
	raw := []json.RawMessage{rawDoc(t, `{
		"id": "e5",
		"schedule": {"start": 0, "interval": 5},
		"payload_kind": "GlobalArrivalRateChange",
		"payload": {"factor": 2.5}
	}`)}

	events, err := ParseEvents(raw, known)
	require.NoError(t, err)
	rate, ok := events[0].Payload.(GlobalArrivalRateChange)
	require.True(t, ok)
	assert.InDelta(t, 2.5, rate.Factor, 1e-9)
}
