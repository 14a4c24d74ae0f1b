// Package simerr defines the error taxonomy of the RTGS simulation
// core: configuration, policy loading, policy evaluation, and
// scenario-event failures. Each kind
// is a distinct Go type so callers can dispatch on it with errors.As,
// and each carries the structured fields the caller's zerolog call
// site wants to attach.
package simerr

import "fmt"

// ConfigurationError is raised at Orchestrator.create() for invalid
// schema, duplicate agent IDs, unknown counterparties, non-positive
// rates, tree/action mismatches, or out-of-range bounds. Creation
// fails entirely; no partial state is left behind.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// PolicyLoadError is raised at tree validation time: an action outside
// the tree kind's alphabet, an undefined parameter reference, or a
// tree deeper than the configured bound.
type PolicyLoadError struct {
	TreeKind string
	NodeID   string
	Reason   string
}

func (e *PolicyLoadError) Error() string {
	return fmt.Sprintf("policy load error: tree=%s node=%s: %s", e.TreeKind, e.NodeID, e.Reason)
}

// PolicyEvaluationError is a recoverable per-transaction runtime
// failure (missing field, divide-by-zero, type mismatch). The
// evaluator logs it as an event and falls back to Hold; it is never
// returned to the orchestrator as a fatal error.
type PolicyEvaluationError struct {
	TreeKind string
	TxID     string
	AgentID  string
	Reason   string
}

func (e *PolicyEvaluationError) Error() string {
	return fmt.Sprintf("policy evaluation error: tree=%s tx=%s agent=%s: %s", e.TreeKind, e.TxID, e.AgentID, e.Reason)
}

// ScenarioEventError is raised when a scheduled event refers to an
// unknown agent, a negative amount, or otherwise cannot be applied. It
// aborts the simulation at that tick — a deterministic point, so a
// replay of the same config reproduces the same abort.
type ScenarioEventError struct {
	Tick   int64
	Reason string
}

func (e *ScenarioEventError) Error() string {
	return fmt.Sprintf("scenario event error at tick %d: %s", e.Tick, e.Reason)
}

// ErrCancelled is returned by Tick() when the external cancellation
// flag was observed between ticks. Partial tick state is never
// committed — cancellation is only honored at a tick boundary.
var ErrCancelled = fmt.Errorf("simulation cancelled")
