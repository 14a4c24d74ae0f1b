package lsm

import (
	"sort"

	"github.com/simcash/simcash/internal/money"
)

// Cycle is one enumerated settlement cycle: an ordered list of agent
// IDs a_0 -> a_1 -> ... -> a_{n-1} -> a_0, the per-edge FIFO
// settlements it would draw on, and the uniform net flow amount every
// participant sends along the cycle.
type Cycle struct {
	Members     []string
	Settlements []Settlement
	FlowAmount  money.Cents
}

// edgeKey identifies a directed agent pair.
type edgeKey struct{ from, to string }

// BuildGraph aggregates pending Q2 transactions (normally the residue
// left after BilateralOffset, Phase E running after
// Phase D) into one net directed edge per ordered agent pair, each
// carrying the FIFO-ordered transaction list that edge would settle
// from.
func BuildGraph(pending []Pending) map[edgeKey][]Pending {
	graph := make(map[edgeKey][]Pending)
	for _, p := range pending {
		if p.Sender == p.Receiver {
			continue
		}
		k := edgeKey{p.Sender, p.Receiver}
		graph[k] = append(graph[k], p)
	}
	return graph
}

// FindCycles enumerates simple directed cycles of length 2..maxLen
// over graph's edges, in deterministic agent-ID order, via Tarjan SCC
// decomposition followed by a bounded DFS within each nontrivial SCC.
// It returns at most maxCount cycles.
func FindCycles(graph map[edgeKey][]Pending, maxLen, maxCount int) []Cycle {
	adj := adjacency(graph)
	nodes := sortedNodes(adj)

	// searchCap bounds total enumeration work: a modest surplus over
	// maxCount is collected so the final sort below can still pick the
	// deterministically-least cycles, without letting a dense graph's
	// enumeration run unbounded.
	searchCap := maxCount * 4
	if searchCap < maxCount {
		searchCap = maxCount // guard against maxCount*4 overflow for huge maxCount
	}

	var cycles []Cycle
sccLoop:
	for _, scc := range tarjanSCCs(nodes, adj) {
		if len(scc) < 2 {
			continue
		}
		sccSet := make(map[string]bool, len(scc))
		for _, n := range scc {
			sccSet[n] = true
		}
		sort.Strings(scc)
		for _, start := range scc {
			found := enumerateCyclesFrom(start, sccSet, adj, maxLen)
			for _, members := range found {
				cycles = append(cycles, materializeCycle(members, graph))
				if len(cycles) >= searchCap {
					break sccLoop
				}
			}
		}
	}

	sort.Slice(cycles, func(i, j int) bool {
		return lessMemberList(cycles[i].Members, cycles[j].Members)
	})

	if len(cycles) > maxCount {
		cycles = cycles[:maxCount]
	}
	return cycles
}

func adjacency(graph map[edgeKey][]Pending) map[string][]string {
	adj := make(map[string][]string)
	seen := make(map[edgeKey]bool)
	for k := range graph {
		if seen[k] {
			continue
		}
		seen[k] = true
		adj[k.from] = append(adj[k.from], k.to)
	}
	for n := range adj {
		sort.Strings(adj[n])
	}
	return adj
}

func sortedNodes(adj map[string][]string) []string {
	set := make(map[string]bool)
	for from, tos := range adj {
		set[from] = true
		for _, to := range tos {
			set[to] = true
		}
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// tarjanSCCs returns strongly connected components of the graph
// induced by adj, in deterministic node order.
func tarjanSCCs(nodes []string, adj map[string][]string) [][]string {
	index := make(map[string]int)
	lowlink := make(map[string]int)
	onStack := make(map[string]bool)
	var stack []string
	counter := 0
	var sccs [][]string

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range adj[v] {
			if _, ok := index[w]; !ok {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var scc []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, n := range nodes {
		if _, ok := index[n]; !ok {
			strongconnect(n)
		}
	}
	return sccs
}

// enumerateCyclesFrom performs a bounded DFS from start, within the
// given SCC's node set, returning every simple cycle up to maxLen that
// returns to start — and only to start, so each cycle is reported
// exactly once (canonicalized on its lexicographically smallest
// member, per the caller's iteration order over sorted SCC members).
func enumerateCyclesFrom(start string, sccSet map[string]bool, adj map[string][]string, maxLen int) [][]string {
	var results [][]string
	visited := map[string]bool{start: true}
	path := []string{start}

	var dfs func(v string)
	dfs = func(v string) {
		if len(path) > maxLen {
			return
		}
		for _, w := range adj[v] {
			if !sccSet[w] {
				continue
			}
			if w == start {
				if len(path) >= 2 {
					member := make([]string, len(path))
					copy(member, path)
					// Only report this cycle if start is its
					// lexicographically smallest member — otherwise
					// it is (or will be) reported when enumeration
					// reaches that smaller member instead.
					if isMinMember(member, start) {
						results = append(results, member)
					}
				}
				continue
			}
			if visited[w] {
				continue
			}
			visited[w] = true
			path = append(path, w)
			dfs(w)
			path = path[:len(path)-1]
			visited[w] = false
		}
	}
	dfs(start)
	return results
}

func isMinMember(members []string, candidate string) bool {
	for _, m := range members {
		if m < candidate {
			return false
		}
	}
	return true
}

func lessMemberList(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// materializeCycle resolves a member-ID cycle into its flow amount
// (the minimum edge weight around the cycle, since every participant's
// net outflow within the cycle equals that uniform amount) and the
// FIFO settlements each edge would draw from.
func materializeCycle(members []string, graph map[edgeKey][]Pending) Cycle {
	n := len(members)
	var flow money.Cents
	for i := 0; i < n; i++ {
		from, to := members[i], members[(i+1)%n]
		weight := sumAmounts(graph[edgeKey{from, to}])
		if i == 0 || weight < flow {
			flow = weight
		}
	}

	var settlements []Settlement
	for i := 0; i < n; i++ {
		from, to := members[i], members[(i+1)%n]
		settlements = append(settlements, consumeFIFO(graph[edgeKey{from, to}], flow)...)
	}

	return Cycle{Members: members, Settlements: settlements, FlowAmount: flow}
}

// Feasible reports whether the cycle is settleable. Every member sends
// exactly FlowAmount along its one outgoing edge and receives exactly
// FlowAmount along its one incoming edge, so each participant's net
// liquidity exposure is zero regardless of its standing balance — a
// balanced ring never needs any member's liquidity to cover the gross
// amount passing through it, only a positive flow to settle at all.
// The liquidity oracle is accepted for call-site symmetry with the
// bilateral phase but is never consulted: net exposure is always zero
// by construction for a cycle this type represents.
func (c Cycle) Feasible(_ func(agentID string) money.Cents) bool {
	return c.FlowAmount > 0 && len(c.Members) >= 2
}
