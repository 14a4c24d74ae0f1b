package settlement

// phaseG executes Phase G: every agent's PendingCredit
// accumulated this tick while deferred_crediting is enabled becomes
// usable liquidity, applied to Balance in one step at the end of the
// tick rather than as each settlement lands.
func (e *Engine) phaseG() {
	for _, id := range e.sortedAgentIDs() {
		a := e.Agents[id]
		if a.PendingCredit == 0 {
			continue
		}
		a.Balance = a.Balance.Add(a.PendingCredit)
		a.PendingCredit = 0
	}
}
