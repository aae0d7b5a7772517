package topology

import (
	"fmt"
)

// Role is the part a process plays in the reduction tree.
type Role int

const (
	// RoleRoot receives from its children and reports the final result.
	RoleRoot Role = iota
	// RoleInnerAggregator merges the snapshots of its selectors and forwards them to the root.
	RoleInnerAggregator
	// RoleSelector scans a shard range and sends its snapshot to its parent.
	RoleSelector
	// RoleIdle is assigned to ranks beyond S+A; they take no part in the run.
	RoleIdle
)

func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleInnerAggregator:
		return "aggregator"
	case RoleSelector:
		return "selector"
	case RoleIdle:
		return "idle"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// NoParent is the parent rank of processes that do not send (root and idle).
const NoParent = -1

// Params are the inputs of the planner.
type Params struct {
	// Processes is the size of the process group (N).
	Processes int
	// Selectors is the number of leaf selectors (S).
	Selectors int
	// Aggregators is the number of inner aggregators (A). Zero connects selectors to the root.
	Aggregators int
	// KeyHigh is the exclusive upper bound of the shard key range (H).
	// Zero defaults to Selectors.
	KeyHigh int
}

// Validate reports a *ConfigError when the parameters cannot form a tree.
func (p Params) Validate() error {
	switch {
	case p.Selectors <= 0:
		return &ConfigError{Field: "selectors", Reason: "selector count must be positive"}
	case p.Aggregators < 0:
		return &ConfigError{Field: "aggregators", Reason: "aggregator count must not be negative"}
	case p.KeyHigh < 0:
		return &ConfigError{Field: "key-high", Reason: "key range upper bound must not be negative"}
	case p.Processes <= 0:
		return &ConfigError{Field: "processes", Reason: "process count must be positive"}
	case p.Selectors+p.Aggregators+1 > p.Processes:
		return &ConfigError{
			Field:  "processes",
			Reason: fmt.Sprintf("selectors + aggregators + 1 > total processes (%d + %d + 1 > %d)", p.Selectors, p.Aggregators, p.Processes),
		}
	}
	return nil
}

func (p Params) keyHigh() int {
	if p.KeyHigh == 0 {
		return p.Selectors
	}
	return p.KeyHigh
}

// blockSize is ceil(H/S), the width of every shard range but possibly the last.
func (p Params) blockSize() int {
	return ceilDiv(p.keyHigh(), p.Selectors)
}

// fanIn is ceil(S/A), the number of selectors assigned to each full aggregator.
func (p Params) fanIn() int {
	if p.Aggregators == 0 {
		return p.Selectors
	}
	return ceilDiv(p.Selectors, p.Aggregators)
}

// ShardRange is the half-open key range [Low, High) scanned by one selector.
type ShardRange struct {
	Low  int
	High int
}

// Len returns the number of keys in the range.
func (r ShardRange) Len() int {
	if r.High <= r.Low {
		return 0
	}
	return r.High - r.Low
}

func (r ShardRange) String() string {
	return fmt.Sprintf("[%d,%d)", r.Low, r.High)
}

// Assignment is the planner's output for one rank.
type Assignment struct {
	Rank int
	Role Role
	// Shard is only meaningful for selectors.
	Shard ShardRange
	// Parent is the rank this process sends its snapshot to, or NoParent.
	Parent int
	// Expected is the number of messages an aggregator must receive.
	Expected int
}

// Sends reports whether the process forwards a snapshot to a parent.
func (a Assignment) Sends() bool {
	return a.Parent != NoParent
}

// Plan computes the assignment of rank.
func Plan(p Params, rank int) (Assignment, error) {
	if err := p.Validate(); err != nil {
		return Assignment{}, err
	}
	if rank < 0 || rank >= p.Processes {
		return Assignment{}, &ConfigError{
			Field:  "rank",
			Reason: fmt.Sprintf("rank %d outside process group [0,%d)", rank, p.Processes),
		}
	}

	s, a := p.Selectors, p.Aggregators
	switch {
	case rank == 0:
		expected := s
		if a > 0 {
			expected = a
		}
		return Assignment{Rank: 0, Role: RoleRoot, Parent: NoParent, Expected: expected}, nil

	case rank <= s:
		return Assignment{
			Rank:   rank,
			Role:   RoleSelector,
			Shard:  p.shard(rank),
			Parent: p.parentOf(rank),
		}, nil

	case rank <= s+a:
		return Assignment{
			Rank:     rank,
			Role:     RoleInnerAggregator,
			Parent:   0,
			Expected: p.expectedAt(rank - s - 1),
		}, nil

	default:
		return Assignment{Rank: rank, Role: RoleIdle, Parent: NoParent}, nil
	}
}

// PlanAll computes the assignments of every rank in the group.
func PlanAll(p Params) ([]Assignment, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	out := make([]Assignment, p.Processes)
	for r := range out {
		a, err := Plan(p, r)
		if err != nil {
			return nil, err
		}
		out[r] = a
	}
	return out, nil
}

// SelectorsOf returns the selector ranks that report to the given aggregator
// rank (the root when Aggregators == 0).
func SelectorsOf(p Params, rank int) []int {
	var out []int
	for r := 1; r <= p.Selectors; r++ {
		if p.parentOf(r) == rank {
			out = append(out, r)
		}
	}
	return out
}

func (p Params) shard(rank int) ShardRange {
	h := p.keyHigh()
	block := p.blockSize()
	low := min((rank-1)*block, h)
	high := min(low+block, h)
	return ShardRange{Low: low, High: high}
}

func (p Params) parentOf(selectorRank int) int {
	if p.Aggregators == 0 {
		return 0
	}
	return p.Selectors + 1 + (selectorRank-1)/p.fanIn()
}

// expectedAt is the number of selectors mapped to the aggregator with the
// given zero-based index. Trailing aggregators may get fewer than fanIn, or none.
func (p Params) expectedAt(index int) int {
	per := p.fanIn()
	remaining := p.Selectors - index*per
	return max(0, min(per, remaining))
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
