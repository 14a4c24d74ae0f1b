// Package config loads the OrchestratorConfig: a JSON scenario
// document (ticks_per_day, num_days, rng_seed, per-agent configs, cost
// rates, LSM/queue/policy toggles, scenario events) with a small set
// of scalar fields overridable from the environment (rng_seed,
// data_dir, log_level, http_port), loaded via godotenv with a
// .env-then-environment precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/simcash/simcash/internal/agent"
	"github.com/simcash/simcash/internal/arrivals"
	"github.com/simcash/simcash/internal/costs"
	"github.com/simcash/simcash/internal/policy"
	"github.com/simcash/simcash/internal/simerr"
)

// LSMConfig toggles the Liquidity Saving Mechanism's bilateral-offset
// and multilateral-cycle settlement phases.
type LSMConfig struct {
	EnableBilateral   bool `json:"enable_bilateral"`
	EnableCycles      bool `json:"enable_cycles"`
	MaxCycleLength    int  `json:"max_cycle_length"`
	MaxCyclesPerTick  int  `json:"max_cycles_per_tick"`
}

// EscalationConfig is Queue 2's optional linear priority ramp.
type EscalationConfig struct {
	Enabled                bool   `json:"enabled"`
	Curve                  string `json:"curve"` // only "linear" is defined
	StartEscalatingAtTicks int64  `json:"start_escalating_at_ticks"`
	MaxBoost               int    `json:"max_boost"`
}

// OrchestratorConfig is the fully-resolved, validated configuration an
// Orchestrator is created from.
type OrchestratorConfig struct {
	TicksPerDay      int64   `json:"ticks_per_day"`
	NumDays          int64   `json:"num_days"`
	RngSeed          uint64  `json:"rng_seed"`
	EodRushThreshold float64 `json:"eod_rush_threshold"`

	CostRates costs.Rates      `json:"-"`
	BandMult  costs.BandMultiplier `json:"-"`

	LSM LSMConfig `json:"lsm"`

	Queue1Ordering      agent.Queue1Ordering `json:"-"`
	PriorityMode        bool                 `json:"priority_mode"`
	PriorityEscalation  EscalationConfig     `json:"priority_escalation"`
	AlgorithmSequencing bool                 `json:"algorithm_sequencing"`

	EntryDispositionOffsetting bool `json:"entry_disposition_offsetting"`
	DeferredCrediting          bool `json:"deferred_crediting"`
	DeadlineCapAtEOD           bool `json:"deadline_cap_at_eod"`

	Agents        []*agent.Agent
	ArrivalConfig map[string]*arrivals.Config // agent_id -> config

	ScenarioEvents []json.RawMessage `json:"scenario_events"`

	// Runtime fields, sourced from the environment rather than the
	// scenario document (see Load).
	DataDir  string
	LogLevel string
	HTTPPort int
}

// --- JSON scenario document shape -----------------------------------
//
// The document format mirrors OrchestratorConfig field-for-field but
// keeps agents/rates/policy trees as loosely-typed JSON so doc.toConfig
// can validate and translate them with simerr.ConfigurationError
// context, rather than letting encoding/json's generic errors leak to
// the caller.

type costRatesDoc struct {
	OverdraftBpsPerTick    int64 `json:"overdraft_bps_per_tick"`
	DelayRate              int64 `json:"delay_rate"`
	CollateralBpsPerTick   int64 `json:"collateral_bps_per_tick"`
	LiquidityBpsPerTick    int64 `json:"liquidity_bps_per_tick"`
	DeadlinePenalty        int64 `json:"deadline_penalty"`
	SplitFriction          int64 `json:"split_friction"`
	EODPenaltyPerTx        int64 `json:"eod_penalty_per_transaction"`
	OverdueDelayMultiplier int64 `json:"overdue_delay_multiplier"`
	BandMultiplier         struct {
		Low    int64 `json:"low"`
		Normal int64 `json:"normal"`
		Urgent int64 `json:"urgent"`
	} `json:"band_multiplier"`
}

type bilateralLimitDoc struct {
	Counterparty string `json:"counterparty"`
	MaxDaily     int64  `json:"max_daily"`
}

type counterpartyWeightDoc struct {
	AgentID string  `json:"agent_id"`
	Weight  float64 `json:"weight"`
}

type bandWeightDoc struct {
	Band   string  `json:"band"`
	Weight float64 `json:"weight"`
}

type arrivalConfigDoc struct {
	Lambda            float64                 `json:"lambda"`
	Counterparties    []counterpartyWeightDoc `json:"counterparties"`
	Bands             []bandWeightDoc         `json:"bands"`
	DeadlineMin       int64                   `json:"deadline_min"`
	DeadlineMax       int64                   `json:"deadline_max"`
	AmountMin         int64                   `json:"amount_min"`
	AmountMax         int64                   `json:"amount_max"`
	DivisibleFraction float64                 `json:"divisible_fraction"`
}

type agentConfigDoc struct {
	ID                          string             `json:"id"`
	OpeningBalance              int64              `json:"opening_balance"`
	UnsecuredCap                int64              `json:"unsecured_cap"`
	PostedCollateral            int64              `json:"posted_collateral"`
	CollateralHaircut           float64            `json:"collateral_haircut"`
	LiquidityPool               int64              `json:"liquidity_pool"`
	LiquidityAllocationFraction float64            `json:"liquidity_allocation_fraction"`
	Q1Ordering                  string             `json:"q1_ordering"`
	BilateralLimits             []bilateralLimitDoc `json:"bilateral_limits"`
	MultilateralLimit           *int64             `json:"multilateral_limit"`
	ArrivalConfig               *arrivalConfigDoc  `json:"arrival_config"`
	Policy                      policyDoc          `json:"policy"`
}

type policyDoc struct {
	Payment             *treeDoc `json:"payment_tree"`
	Bank                *treeDoc `json:"bank_tree"`
	StrategicCollateral *treeDoc `json:"strategic_collateral_tree"`
	EndOfTickCollateral *treeDoc `json:"end_of_tick_collateral_tree"`
}

type nodeDoc struct {
	ID        string             `json:"id"`
	IsAction  bool               `json:"is_action"`
	Cond      json.RawMessage    `json:"cond"`
	TrueNext  int                `json:"true_next"`
	FalseNext int                `json:"false_next"`
	Action    string             `json:"action"`
	Params    map[string]float64 `json:"params"`
}

type treeDoc struct {
	Nodes    []nodeDoc          `json:"nodes"`
	Root     int                `json:"root"`
	Params   map[string]float64 `json:"params"`
	MaxDepth int                `json:"max_depth"`
	Div0     string             `json:"div0"`
}

type scenarioDoc struct {
	TicksPerDay         int64             `json:"ticks_per_day"`
	NumDays             int64             `json:"num_days"`
	RngSeed             *uint64           `json:"rng_seed"`
	EodRushThreshold    float64           `json:"eod_rush_threshold"`
	Agents              []agentConfigDoc  `json:"agents"`
	CostRates           costRatesDoc      `json:"cost_rates"`
	LSM                 LSMConfig         `json:"lsm"`
	Queue1Ordering      string            `json:"queue1_ordering"`
	PriorityMode        bool              `json:"priority_mode"`
	PriorityEscalation  EscalationConfig  `json:"priority_escalation"`
	AlgorithmSequencing bool              `json:"algorithm_sequencing"`

	EntryDispositionOffsetting bool              `json:"entry_disposition_offsetting"`
	DeferredCrediting          bool              `json:"deferred_crediting"`
	DeadlineCapAtEOD           bool              `json:"deadline_cap_at_eod"`
	ScenarioEvents             []json.RawMessage `json:"scenario_events"`
}

// rejectCreditLimitField rejects a scenario file whose agent entries
// still carry the retired credit_limit key. Unsecured overdraft
// capacity is configured exclusively via unsecured_cap; since
// agentConfigDoc has no CreditLimit field, a plain json.Unmarshal would
// silently drop credit_limit rather than flag the scenario as stale.
func rejectCreditLimitField(raw []byte) error {
	var probe struct {
		Agents []map[string]json.RawMessage `json:"agents"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil // the caller's own Unmarshal will surface this error
	}
	for _, a := range probe.Agents {
		if _, ok := a["credit_limit"]; !ok {
			continue
		}
		id := "?"
		if rawID, ok := a["id"]; ok {
			_ = json.Unmarshal(rawID, &id)
		}
		return &simerr.ConfigurationError{Field: "agents.credit_limit", Reason: fmt.Sprintf("agent %q sets credit_limit, which is no longer accepted; use unsecured_cap", id)}
	}
	return nil
}

// Load reads a scenario JSON file, layers .env/environment overrides
// for the scalar runtime fields (SIMCASH_DATA_DIR, SIMCASH_LOG_LEVEL,
// etc.), and returns a validated OrchestratorConfig. pathOverride, if
// non-empty, takes priority over the SIMCASH_SCENARIO_FILE env var,
// following a CLI-flag-beats-env-beats-default precedence.
func Load(pathOverride ...string) (*OrchestratorConfig, error) {
	_ = godotenv.Load()

	scenarioPath := ""
	if len(pathOverride) > 0 && pathOverride[0] != "" {
		scenarioPath = pathOverride[0]
	} else {
		scenarioPath = getEnv("SIMCASH_SCENARIO_FILE", "")
	}
	if scenarioPath == "" {
		return nil, &simerr.ConfigurationError{Field: "scenario_file", Reason: "no scenario file given (pass a path or set SIMCASH_SCENARIO_FILE)"}
	}

	raw, err := os.ReadFile(scenarioPath)
	if err != nil {
		return nil, &simerr.ConfigurationError{Field: "scenario_file", Reason: err.Error()}
	}

	if err := rejectCreditLimitField(raw); err != nil {
		return nil, err
	}

	var doc scenarioDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, &simerr.ConfigurationError{Field: "scenario_file", Reason: fmt.Sprintf("invalid JSON: %v", err)}
	}

	cfg, err := doc.toConfig()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("SIMCASH_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, &simerr.ConfigurationError{Field: "data_dir", Reason: err.Error()}
	}
	if err := os.MkdirAll(absDataDir, 0o755); err != nil {
		return nil, &simerr.ConfigurationError{Field: "data_dir", Reason: err.Error()}
	}
	cfg.DataDir = absDataDir
	cfg.LogLevel = getEnv("SIMCASH_LOG_LEVEL", "info")
	cfg.HTTPPort = getEnvAsInt("SIMCASH_HTTP_PORT", 8080)

	if seed := getEnv("SIMCASH_RNG_SEED", ""); seed != "" {
		parsed, err := strconv.ParseUint(seed, 10, 64)
		if err != nil {
			return nil, &simerr.ConfigurationError{Field: "rng_seed", Reason: fmt.Sprintf("SIMCASH_RNG_SEED: %v", err)}
		}
		cfg.RngSeed = parsed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (d *scenarioDoc) toConfig() (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{
		TicksPerDay:         d.TicksPerDay,
		NumDays:             d.NumDays,
		EodRushThreshold:    d.EodRushThreshold,
		LSM:                 d.LSM,
		PriorityMode:        d.PriorityMode,
		PriorityEscalation:  d.PriorityEscalation,
		AlgorithmSequencing: d.AlgorithmSequencing,

		EntryDispositionOffsetting: d.EntryDispositionOffsetting,
		DeferredCrediting:          d.DeferredCrediting,
		DeadlineCapAtEOD:           d.DeadlineCapAtEOD,
		ScenarioEvents:             d.ScenarioEvents,
		ArrivalConfig:              make(map[string]*arrivals.Config),
	}
	if d.RngSeed != nil {
		cfg.RngSeed = *d.RngSeed
	}

	switch d.Queue1Ordering {
	case "", "Fifo":
		cfg.Queue1Ordering = agent.Fifo
	case "PriorityDeadline":
		cfg.Queue1Ordering = agent.PriorityDeadline
	default:
		return nil, &simerr.ConfigurationError{Field: "queue1_ordering", Reason: fmt.Sprintf("unknown ordering %q", d.Queue1Ordering)}
	}

	cfg.CostRates = costs.Rates{
		OverdraftBpsPerTick:    d.CostRates.OverdraftBpsPerTick,
		DelayRate:              d.CostRates.DelayRate,
		CollateralBpsPerTick:   d.CostRates.CollateralBpsPerTick,
		LiquidityBpsPerTick:    d.CostRates.LiquidityBpsPerTick,
		DeadlinePenalty:        moneyOf(d.CostRates.DeadlinePenalty),
		SplitFriction:          moneyOf(d.CostRates.SplitFriction),
		EODPenaltyPerTx:        moneyOf(d.CostRates.EODPenaltyPerTx),
		OverdueDelayMultiplier: d.CostRates.OverdueDelayMultiplier,
	}
	cfg.BandMult = costs.BandMultiplier{
		Low:    d.CostRates.BandMultiplier.Low,
		Normal: d.CostRates.BandMultiplier.Normal,
		Urgent: d.CostRates.BandMultiplier.Urgent,
	}

	seen := make(map[string]bool, len(d.Agents))
	for _, ad := range d.Agents {
		if ad.ID == "" {
			return nil, &simerr.ConfigurationError{Field: "agents", Reason: "agent with empty id"}
		}
		if seen[ad.ID] {
			return nil, &simerr.ConfigurationError{Field: "agents", Reason: fmt.Sprintf("duplicate agent id %q", ad.ID)}
		}
		seen[ad.ID] = true

		a, err := ad.toAgent()
		if err != nil {
			return nil, err
		}
		cfg.Agents = append(cfg.Agents, a)

		if ad.ArrivalConfig != nil {
			ac, err := ad.ArrivalConfig.toConfig(ad.ID)
			if err != nil {
				return nil, err
			}
			cfg.ArrivalConfig[ad.ID] = ac
		}
	}
	sort.Slice(cfg.Agents, func(i, j int) bool { return cfg.Agents[i].ID < cfg.Agents[j].ID })

	known := make(map[string]bool, len(cfg.Agents))
	for _, a := range cfg.Agents {
		known[a.ID] = true
	}
	for _, a := range cfg.Agents {
		for cp := range a.BilateralLimits {
			if !known[cp] {
				return nil, &simerr.ConfigurationError{Field: "bilateral_limits", Reason: fmt.Sprintf("agent %q has a limit against unknown counterparty %q", a.ID, cp)}
			}
		}
	}
	for id, ac := range cfg.ArrivalConfig {
		for _, cp := range ac.Counterparties {
			if !known[cp.AgentID] {
				return nil, &simerr.ConfigurationError{Field: "arrival_config", Reason: fmt.Sprintf("agent %q names unknown counterparty %q", id, cp.AgentID)}
			}
		}
	}

	return cfg, nil
}

func (ad *agentConfigDoc) toAgent() (*agent.Agent, error) {
	a := agent.New(ad.ID, moneyOf(ad.OpeningBalance), moneyOf(ad.UnsecuredCap))
	a.PostedCollateral = moneyOf(ad.PostedCollateral)
	a.CollateralHaircut = ad.CollateralHaircut
	a.LiquidityPool = moneyOf(ad.LiquidityPool)
	a.LiquidityAllocationFraction = ad.LiquidityAllocationFraction

	switch ad.Q1Ordering {
	case "", "Fifo":
		a.Q1Ordering = agent.Fifo
	case "PriorityDeadline":
		a.Q1Ordering = agent.PriorityDeadline
	default:
		return nil, &simerr.ConfigurationError{Field: "agents." + ad.ID + ".q1_ordering", Reason: fmt.Sprintf("unknown ordering %q", ad.Q1Ordering)}
	}

	for _, bl := range ad.BilateralLimits {
		a.BilateralLimits[bl.Counterparty] = moneyOf(bl.MaxDaily)
	}
	if ad.MultilateralLimit != nil {
		lim := moneyOf(*ad.MultilateralLimit)
		a.MultilateralLimit = &lim
	}

	trees, err := ad.Policy.toSet(ad.ID)
	if err != nil {
		return nil, err
	}
	a.Policy = trees

	return a, nil
}

func (pd *policyDoc) toSet(agentID string) (*policy.Set, error) {
	set := &policy.Set{}
	var err error
	if set.Payment, err = pd.Payment.toTree(policy.PaymentTree, agentID); err != nil {
		return nil, err
	}
	if set.Payment == nil {
		return nil, &simerr.ConfigurationError{Field: "agents." + agentID + ".policy.payment_tree", Reason: "payment_tree is required"}
	}
	if set.Bank, err = pd.Bank.toTree(policy.BankTree, agentID); err != nil {
		return nil, err
	}
	if set.StrategicCollateral, err = pd.StrategicCollateral.toTree(policy.StrategicCollateralTree, agentID); err != nil {
		return nil, err
	}
	if set.EndOfTickCollateral, err = pd.EndOfTickCollateral.toTree(policy.EndOfTickCollateralTree, agentID); err != nil {
		return nil, err
	}
	return set, nil
}

func (td *treeDoc) toTree(kind policy.TreeKind, agentID string) (*policy.Tree, error) {
	if td == nil {
		return nil, nil
	}
	t := &policy.Tree{
		Kind:     kind,
		Root:     td.Root,
		Params:   td.Params,
		MaxDepth: td.MaxDepth,
	}
	switch td.Div0 {
	case "", "error":
		t.Div0 = policy.Div0Error
	case "zero":
		t.Div0 = policy.Div0Zero
	default:
		return nil, &simerr.ConfigurationError{Field: fmt.Sprintf("agents.%s.policy.%s.div0", agentID, kind), Reason: fmt.Sprintf("unknown div0 policy %q", td.Div0)}
	}

	t.Nodes = make([]policy.Node, len(td.Nodes))
	for i, nd := range td.Nodes {
		node := policy.Node{
			ID:        nd.ID,
			IsAction:  nd.IsAction,
			TrueNext:  nd.TrueNext,
			FalseNext: nd.FalseNext,
			Action:    policy.ActionTag(nd.Action),
		}
		if nd.IsAction {
			node.Params = make(map[string]policy.Value, len(nd.Params))
			for k, v := range nd.Params {
				node.Params[k] = policy.ConstValue(v)
			}
		} else {
			cond, err := parseExpr(nd.Cond)
			if err != nil {
				return nil, &simerr.ConfigurationError{Field: fmt.Sprintf("agents.%s.policy.%s.nodes[%d]", agentID, kind, i), Reason: err.Error()}
			}
			node.Cond = cond
		}
		t.Nodes[i] = node
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func (acd *arrivalConfigDoc) toConfig(agentID string) (*arrivals.Config, error) {
	cfg := &arrivals.Config{
		AgentID:           agentID,
		Lambda:            acd.Lambda,
		DeadlineMin:       acd.DeadlineMin,
		DeadlineMax:       acd.DeadlineMax,
		AmountMin:         acd.AmountMin,
		AmountMax:         acd.AmountMax,
		DivisibleFraction: acd.DivisibleFraction,
	}
	for _, cp := range acd.Counterparties {
		cfg.Counterparties = append(cfg.Counterparties, arrivals.CounterpartyWeight{AgentID: cp.AgentID, Weight: cp.Weight})
	}
	for _, bw := range acd.Bands {
		band, err := parseBand(bw.Band)
		if err != nil {
			return nil, &simerr.ConfigurationError{Field: "agents." + agentID + ".arrival_config.bands", Reason: err.Error()}
		}
		cfg.Bands = append(cfg.Bands, arrivals.PriorityBandWeight{Band: band, Weight: bw.Weight})
	}
	return cfg, nil
}

// Validate checks the cross-cutting invariants lists for
// Orchestrator.create(): at least one agent, positive tick/day counts,
// non-negative rates.
func (c *OrchestratorConfig) Validate() error {
	if c.TicksPerDay <= 0 {
		return &simerr.ConfigurationError{Field: "ticks_per_day", Reason: "must be positive"}
	}
	if c.NumDays <= 0 {
		return &simerr.ConfigurationError{Field: "num_days", Reason: "must be positive"}
	}
	if len(c.Agents) == 0 {
		return &simerr.ConfigurationError{Field: "agents", Reason: "at least one agent is required"}
	}
	if c.EodRushThreshold < 0 || c.EodRushThreshold > 1 {
		return &simerr.ConfigurationError{Field: "eod_rush_threshold", Reason: "must be in [0,1]"}
	}
	if c.LSM.MaxCycleLength < 0 || c.LSM.MaxCyclesPerTick < 0 {
		return &simerr.ConfigurationError{Field: "lsm", Reason: "max_cycle_length and max_cycles_per_tick must be non-negative"}
	}
	r, m := c.CostRates, c.BandMult
	for _, v := range []int64{r.OverdraftBpsPerTick, r.DelayRate, r.CollateralBpsPerTick, r.LiquidityBpsPerTick,
		int64(r.DeadlinePenalty), int64(r.SplitFriction), int64(r.EODPenaltyPerTx), r.OverdueDelayMultiplier,
		m.Low, m.Normal, m.Urgent} {
		if v < 0 {
			return &simerr.ConfigurationError{Field: "cost_rates", Reason: "rates and band multipliers must be non-negative"}
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
