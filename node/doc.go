// Package node implements the two working roles of the reduction tree.
//
// A Selector owns a contiguous range of shard keys. It keeps a fixed number
// of object reads in flight, folds every completed object into a bounded
// top-K merger and sends one fixed-width snapshot to its parent.
//
// An Aggregator receives exactly as many snapshots as the planner assigned
// to it, merges them, and either forwards the result to its own parent or,
// at the root, returns the final values in descending order.
//
// Missing or unreadable objects are logged and skipped. A transport failure
// ends the run.
package node
