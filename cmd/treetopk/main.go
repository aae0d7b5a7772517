// Command treetopk computes the K largest integers of a sharded dataset with a
// tree of selector and aggregator processes.
//
//	treetopk run -s 10 --local --backend local --root ./data
//	mpirun -n 21 treetopk run -s 16 -a 4 --peers host0:7000,... --backend s3 --bucket shards
//	treetopk seed --shards 10 --per-shard 100 --backend local --root ./data
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
