// Package topology maps a process rank onto its place in the static
// reduction tree.
//
// The tree has at most two levels below the root:
//
//	rank 0          root aggregator
//	ranks 1..S      selectors (leaves), one shard range each
//	ranks S+1..S+A  inner aggregators
//	ranks > S+A     idle
//
// With A == 0 every selector reports directly to the root. Planning is a pure
// function of Params and the rank, so every process computes the same tree
// without talking to any other process.
package topology
