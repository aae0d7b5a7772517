// Package fetch keeps a fixed number of object reads in flight.
//
// A Pool owns P slots, each with a reusable buffer. A slot moves through
// idle → pending → completed → collected → pending again:
//
//	pool.PendGet(ctx, slot, key, name)   // idle/collected → pending
//	slot, err := pool.WaitAny(ctx, next, timeout)
//	resp, err := pool.CompleteGet(slot)  // completed → collected
//
// Reads run concurrently in per-slot goroutines; PendGet, WaitAny and
// CompleteGet are meant to be driven from a single control goroutine.
// Response.Data aliases the slot buffer and is valid until the slot is
// pended again.
package fetch
