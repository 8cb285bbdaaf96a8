package router

import (
	"math/rand"
	"sort"
	"sync/atomic"
	"time"
)

// roundRobinCounter is the process-wide atomic cursor used by the
// RoundRobin strategy (spec.md §4.3/§5: "the counter is process-wide and
// atomic").
var roundRobinCounter atomic.Uint64

// selectBackends implements the six selection strategies, plus the
// PreferredBackend override, over a snapshot of available instances
// (spec.md §4.3). Selection never dispatches and never touches a
// BackendInstance's request counters; its only side effects are advancing
// the RoundRobin cursor and the spend-period rollover that
// BackendInstance.Available performs when a period boundary has passed.
func selectBackends(strategy SelectionStrategy, preferred string, now time.Time, instances []*BackendInstance) []*BackendInstance {
	available := make([]*BackendInstance, 0, len(instances))
	for _, b := range instances {
		if b.Available(now) {
			available = append(available, b)
		}
	}

	// PreferredBackend on the request overrides the configured strategy,
	// equivalent to Specific for that call (spec.md §4.3 "Tie-breaks").
	if preferred != "" {
		return selectSpecific(preferred, available)
	}

	switch strategy {
	case StrategyFailover:
		return selectFailover(available)
	case StrategyRoundRobin:
		return selectRoundRobin(available)
	case StrategyLowestLatency:
		return selectLowestLatency(available)
	case StrategyRandom:
		return selectRandom(available)
	case StrategySpecific:
		return nil // Specific with no PreferredBackend set has nothing to select.
	case StrategySimultaneous:
		return selectSimultaneous(available)
	default:
		return selectFailover(available)
	}
}

func selectFailover(available []*BackendInstance) []*BackendInstance {
	out := make([]*BackendInstance, len(available))
	copy(out, available)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].cfg.Priority, out[j].cfg.Priority
		if pi != pj {
			return pi < pj
		}
		return out[i].cfg.Name < out[j].cfg.Name
	})
	return out
}

func selectRoundRobin(available []*BackendInstance) []*BackendInstance {
	if len(available) == 0 {
		return nil
	}
	// Sort by name first so the rotation is deterministic across calls
	// regardless of map/slice ordering upstream.
	ordered := make([]*BackendInstance, len(available))
	copy(ordered, available)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].cfg.Name < ordered[j].cfg.Name })

	n := uint64(len(ordered))
	idx := (roundRobinCounter.Add(1) - 1) % n
	rotated := make([]*BackendInstance, 0, n)
	for i := uint64(0); i < n; i++ {
		rotated = append(rotated, ordered[(idx+i)%n])
	}
	return rotated
}

func selectLowestLatency(available []*BackendInstance) []*BackendInstance {
	out := make([]*BackendInstance, len(available))
	copy(out, available)
	sort.SliceStable(out, func(i, j int) bool {
		li, lj := out[i].AvgLatencyMs(), out[j].AvgLatencyMs()
		iUnknown, jUnknown := li == 0, lj == 0
		if iUnknown != jUnknown {
			// Unknown latency (no samples yet) sorts last.
			return jUnknown
		}
		if li != lj {
			return li < lj
		}
		return out[i].cfg.Name < out[j].cfg.Name
	})
	return out
}

func selectRandom(available []*BackendInstance) []*BackendInstance {
	out := make([]*BackendInstance, len(available))
	copy(out, available)
	// math/rand's global source is safe for concurrent use.
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func selectSpecific(preferred string, available []*BackendInstance) []*BackendInstance {
	for _, b := range available {
		if equalFoldASCII(b.cfg.Name, preferred) {
			return []*BackendInstance{b}
		}
	}
	return nil
}

func selectSimultaneous(available []*BackendInstance) []*BackendInstance {
	out := make([]*BackendInstance, len(available))
	copy(out, available)
	return out
}

func equalFoldASCII(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
