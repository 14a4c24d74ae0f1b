package events

// ArrivalDetails carries a newly created transaction's defining fields
// — enough for a replay consumer to reconstruct the verbose "arrival"
// display line without cross-referencing the transaction arena.
type ArrivalDetails struct {
	SenderID     string `json:"sender_id"`
	ReceiverID   string `json:"receiver_id"`
	Amount       int64  `json:"amount"`
	Priority     int    `json:"priority"`
	DeadlineTick int64  `json:"deadline_tick"`
	Divisible    bool   `json:"divisible"`
}

func (d *ArrivalDetails) isEventDetails() {}

// SettlementDetails covers RtgsImmediateSettlement, Queue2LiquidityRelease,
// and EntryDispositionOffset — each settles one transaction (fully or
// partially) between a sender and receiver.
type SettlementDetails struct {
	SenderID      string `json:"sender_id"`
	ReceiverID    string `json:"receiver_id"`
	SettledAmount int64  `json:"settled_amount"`
	FullySettled  bool   `json:"fully_settled"`
}

func (d *SettlementDetails) isEventDetails() {}

// LsmBilateralDetails records a bilateral offset pass between two
// agents, naming every transaction ID settled on each side.
type LsmBilateralDetails struct {
	AgentA        string   `json:"agent_a"`
	AgentB        string   `json:"agent_b"`
	ABTxIDs       []string `json:"ab_tx_ids"`
	BATxIDs       []string `json:"ba_tx_ids"`
	NetDebtor     string   `json:"net_debtor,omitempty"`
	NetAmount     int64    `json:"net_amount"`
}

func (d *LsmBilateralDetails) isEventDetails() {}

// LsmCycleDetails records one multilateral cycle settlement.
type LsmCycleDetails struct {
	Members    []string `json:"members"`
	TxIDs      []string `json:"tx_ids"`
	FlowAmount int64    `json:"flow_amount"`
}

func (d *LsmCycleDetails) isEventDetails() {}

// OverdueDetails marks a transaction's (at most once) transition to
// Overdue.
type OverdueDetails struct {
	DeadlineTick    int64 `json:"deadline_tick"`
	CurrentTick     int64 `json:"current_tick"`
	RemainingAmount int64 `json:"remaining_amount"`
}

func (d *OverdueDetails) isEventDetails() {}

// PolicyActionDetails covers the five PaymentTree action events:
// PolicySubmit (release), PolicyHold, PolicyDrop, PolicySplit,
// PolicyReprioritize. Only the fields relevant to the concrete action
// are populated; the rest are left zero.
type PolicyActionDetails struct {
	TreeKind      string  `json:"tree_kind"`
	NodeID        string  `json:"node_id"`
	SplitParts    []int64 `json:"split_parts,omitempty"`
	NewPriority   *int    `json:"new_priority,omitempty"`
}

func (d *PolicyActionDetails) isEventDetails() {}

// CollateralDetails covers CollateralPost and CollateralWithdraw.
type CollateralDetails struct {
	Amount           int64  `json:"amount"`
	PostedCollateral int64  `json:"posted_collateral_after"`
	TreeKind         string `json:"tree_kind"`
}

func (d *CollateralDetails) isEventDetails() {}

// CostAccrualDetails is emitted once per tick per agent in Phase H,
// carrying the per-category delta (not the running total, which the
// query surface exposes separately).
type CostAccrualDetails struct {
	LiquidityCost       int64 `json:"liquidity_cost"`
	DelayCost           int64 `json:"delay_cost"`
	CollateralCost      int64 `json:"collateral_cost"`
	LiquidityOppCost    int64 `json:"liquidity_opp_cost"`
	PenaltyCost         int64 `json:"penalty_cost"`
	SplitFrictionCost   int64 `json:"split_friction_cost"`
}

func (d *CostAccrualDetails) isEventDetails() {}

// EndOfDayDetails is emitted once per day boundary.
type EndOfDayDetails struct {
	Day             int64 `json:"day"`
	UnsettledCount  int   `json:"unsettled_count"`
	EODPenaltyTotal int64 `json:"eod_penalty_total"`
}

func (d *EndOfDayDetails) isEventDetails() {}

// ScenarioEventDetails records a scheduled event's application.
type ScenarioEventDetails struct {
	Payload string `json:"payload"` // the scenario payload kind, e.g. "Transfer", "CollateralAdjust"
	AgentID string `json:"agent_id,omitempty"`
	Summary string `json:"summary"`
}

func (d *ScenarioEventDetails) isEventDetails() {}

// PolicyErrorDetails records a recoverable per-transaction policy
// evaluation failure, and the Hold fallback applied in response.
type PolicyErrorDetails struct {
	TreeKind string `json:"tree_kind"`
	Reason   string `json:"reason"`
}

func (d *PolicyErrorDetails) isEventDetails() {}

// NumericSaturationDetails records an arithmetic saturation clamped to
// an int64 bound, non-fatal by construction.
type NumericSaturationDetails struct {
	Operation string `json:"operation"`
	Saturated string `json:"saturated_to"` // "max" or "min"
}

func (d *NumericSaturationDetails) isEventDetails() {}
