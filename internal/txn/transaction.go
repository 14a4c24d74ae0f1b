// Package txn defines the Transaction entity of and its
// status lifecycle. Transactions are created by the arrival generator
// or a scenario event, mutated only by the settlement engine and the
// policy interpreter (splitting), and never destroyed — settled
// transactions remain in the log for the lifetime of the simulation.
package txn

// Status is the transaction lifecycle state. Overdue is tracked as a
// separate bool flag (see Transaction.Overdue), not a Status value,
// because it may coexist with InQueue1/InQueue2 .
type Status int

const (
	Arrived Status = iota
	InQueue1
	InQueue2
	PartiallySettled
	Settled
	Dropped
)

func (s Status) String() string {
	switch s {
	case Arrived:
		return "Arrived"
	case InQueue1:
		return "InQueue1"
	case InQueue2:
		return "InQueue2"
	case PartiallySettled:
		return "PartiallySettled"
	case Settled:
		return "Settled"
	case Dropped:
		return "Dropped"
	default:
		return "Unknown"
	}
}

// PriorityBand buckets a 0..10 priority into three bands: Low 0-3,
// Normal 4-7, Urgent 8-10.
type PriorityBand int

const (
	BandLow PriorityBand = iota
	BandNormal
	BandUrgent
)

func (b PriorityBand) String() string {
	switch b {
	case BandLow:
		return "Low"
	case BandNormal:
		return "Normal"
	case BandUrgent:
		return "Urgent"
	default:
		return "Unknown"
	}
}

// BandOf returns the priority band for a raw 0..10 priority value.
func BandOf(priority int) PriorityBand {
	switch {
	case priority >= 8:
		return BandUrgent
	case priority >= 4:
		return BandNormal
	default:
		return BandLow
	}
}

// Transaction is a single payment obligation moving through the
// simulator. Amounts are in money.Cents but stored here as int64 to
// keep JSON-tagged wire encoding simple; internal/money.Cents is a
// defined type over int64, so callers convert explicitly (money.Cents(x),
// int64(c)).
type Transaction struct {
	TxID            string `json:"tx_id"`
	SenderID        string `json:"sender_id"`
	ReceiverID      string `json:"receiver_id"`
	Amount          int64  `json:"amount"`
	RemainingAmount int64  `json:"remaining_amount"`
	ArrivalTick     int64  `json:"arrival_tick"`
	DeadlineTick    int64  `json:"deadline_tick"`
	Priority        int    `json:"priority"`
	Status          Status `json:"status"`
	Divisible       bool   `json:"divisible"`
	ParentTxID      string `json:"parent_tx_id,omitempty"`

	// Overdue is a tag, not a Status: it may coexist with InQueue1 or
	// InQueue2 .
	Overdue bool `json:"overdue"`

	// DeadlinePenaltyCharged guards invariant 6: the
	// deadline-penalty event fires at most once per transaction.
	DeadlinePenaltyCharged bool `json:"deadline_penalty_charged"`

	// EnteredQ2AtTick records when this transaction entered Queue 2,
	// used for FIFO-within-band ordering and priority escalation.
	EnteredQ2AtTick int64 `json:"entered_q2_at_tick"`

	// EffectivePriority is Priority plus any escalation boost applied
	// while queued in Q2; it never mutates Priority
	// itself, so PriorityBand(Priority) stays stable for display.
	EffectivePriority int `json:"effective_priority"`
}

// Band returns the transaction's (fixed) priority band.
func (t *Transaction) Band() PriorityBand {
	return BandOf(t.Priority)
}

// IsSettled reports whether the transaction fully settled.
func (t *Transaction) IsSettled() bool {
	return t.Status == Settled
}

// Settle marks the transaction fully settled and zeroes the remaining
// amount, upholding "a Settled tx has remaining_amount ==
// 0" invariant by construction.
func (t *Transaction) Settle() {
	t.RemainingAmount = 0
	t.Status = Settled
}

// ApplyPartialSettlement reduces RemainingAmount by amt and flips the
// status to PartiallySettled or Settled as appropriate. Panics if amt
// exceeds RemainingAmount — that is a settlement-engine bug, not a
// data condition callers should handle.
func (t *Transaction) ApplyPartialSettlement(amt int64) {
	if amt > t.RemainingAmount {
		panic("txn: settlement amount exceeds remaining amount")
	}
	t.RemainingAmount -= amt
	if t.RemainingAmount == 0 {
		t.Status = Settled
	} else {
		t.Status = PartiallySettled
	}
}
