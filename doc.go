// Package treetopk computes the K largest values of a sharded dataset with a
// static reduction tree of cooperating processes.
//
// The dataset is a range of shard keys, each naming one object in a blob
// store. Every process is given a rank; the planner turns the rank into a
// role:
//
//   - rank 0 is the root, which reports the final result;
//   - ranks 1..S are selectors, each scanning a contiguous key range;
//   - ranks S+1..S+A are inner aggregators, each merging a block of selectors;
//   - higher ranks are idle.
//
// # Quick Start
//
// In-process, one goroutine per rank:
//
//	store := blobstore.NewMemoryStore()
//	res, err := treetopk.RunLocal(ctx, treetopk.Config{Selectors: 10, K: 10}, 11, store)
//	fmt.Println(res.Values)
//
// One process per rank over TCP:
//
//	tr, _ := transport.ListenTCP(ctx, transport.TCPConfig{Rank: rank, Peers: peers})
//	res, err := treetopk.Run(ctx, cfg, store, tr, treetopk.WithLogger(treetopk.NewJSONLogger(slog.LevelInfo)))
//
// # Errors
//
// Configuration problems are reported as ErrConfig and transport failures as
// ErrTransport; both end the run. Objects that are missing or unreadable are
// logged and skipped, so a run over a partially missing dataset still
// succeeds with the values that could be read.
package treetopk
