package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/hupe1980/treetopk/blobstore"
	"github.com/hupe1980/treetopk/config"
	"github.com/hupe1980/treetopk/dataset"
	"github.com/hupe1980/treetopk/record"
)

const seedLongDesc string = `Write a synthetic dataset of numbered shard objects.

Values depend only on --seed and the shard key, so every process of a run
that seeds the memory backend sees the same data.

Examples:
  treetopk seed --shards 10 --per-shard 100 --root ./data
  treetopk seed --shards 64 --per-shard 1000000 --compression zstd --backend s3 --bucket shards`

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write a synthetic dataset",
		Long:  seedLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateSeed(); err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg.Storage)
			if err != nil {
				return err
			}
			sum, err := dataset.Generate(cmd.Context(), store, seedSpec(cfg, cfg.Seed.Shards), logger.Logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d objects, %d values, %d bytes\n", sum.Objects, sum.Values, sum.Bytes)
			return nil
		},
	}

	config.AddFlags(cmd.Flags(),
		config.FlagShards, config.FlagPerShard, config.FlagMin, config.FlagMax,
		config.FlagSeed, config.FlagCompression, config.FlagConcurrency, config.FlagKeyFormat,
		config.FlagBackend, config.FlagBucket, config.FlagPrefix, config.FlagRoot,
		config.FlagEndpoint, config.FlagRegion, config.FlagPathStyle, config.FlagSecure,
		config.FlagLogLevel, config.FlagLogFormat,
	)
	return cmd
}

// seedSpec describes the dataset of cfg with the given number of shards.
func seedSpec(cfg *config.Config, shards int) dataset.Spec {
	// Compression was checked by ValidateSeed or defaults to none.
	c, _ := record.ParseCompression(cfg.Seed.Compression)
	return dataset.Spec{
		Shards:      shards,
		PerShard:    cfg.Seed.PerShard,
		Min:         cfg.Seed.Min,
		Max:         cfg.Seed.Max,
		Seed:        cfg.Seed.Seed,
		KeyFormat:   cfg.Run.KeyFormat,
		Compression: c,
		Concurrency: cfg.Seed.Concurrency,
	}
}

// seedMemory fills a memory store with the configured dataset so a memory
// run has data to read.
func seedMemory(ctx context.Context, store blobstore.BlobStore, cfg *config.Config, shards int, logger *slog.Logger) error {
	if cfg.Seed.PerShard == 0 {
		return nil
	}
	_, err := dataset.Generate(ctx, store, seedSpec(cfg, shards), logger)
	return err
}
