// Package testutil provides testing utilities for treetopk.
//
// This package is intended for use in tests only. It provides a seeded,
// thread-safe RNG for generating values and a brute-force top-K used as
// ground truth:
//
//	rng := testutil.NewRNG(seed)
//	values := rng.Values(1000, -1e6, 1e6)
//	want := testutil.TopK(values, 10)
package testutil
