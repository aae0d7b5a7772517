package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/treetopk"
	"github.com/hupe1980/treetopk/codec"
	"github.com/hupe1980/treetopk/config"
	"github.com/hupe1980/treetopk/topology"
	"github.com/hupe1980/treetopk/transport"
)

const runLongDesc string = `Run one rank of a top-K computation, or the whole group with --local.

Without --local every process of the group runs this command with the same
settings, its own --rank and the full --peers list. The rank also comes from
TREETOPK_RANK, OMPI_COMM_WORLD_RANK or PMI_RANK, so the command can be started
by mpirun. Rank 0 prints the result.

The memory backend is seeded with the synthetic dataset of the seed command.

Examples:
  treetopk run -s 10 --local --root ./data
  treetopk run -s 16 -a 4 -k 100 --local --procs 21 --backend memory --output json
  treetopk run -s 2 --rank 1 --peers 10.0.0.1:7000,10.0.0.2:7000,10.0.0.3:7000 --backend s3 --bucket shards`

// runOutput is the structured result printed by --output json.
type runOutput struct {
	Values    []int64 `json:"values"`
	K         int     `json:"k"`
	Processes int     `json:"processes"`
	Fetches   int64   `json:"fetches"`
	Missing   int64   `json:"missing"`
	Errors    int64   `json:"errors"`
	Bytes     int64   `json:"bytes"`
	ElapsedMs int64   `json:"elapsed_ms"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compute the top K values",
		Long:  runLongDesc,
		Args:  cobra.NoArgs,
		RunE:  runE,
	}

	config.AddFlags(cmd.Flags(),
		config.FlagSelectors, config.FlagAggregators, config.FlagKeyHigh, config.FlagTopK,
		config.FlagKeyFormat, config.FlagSlots, config.FlagBufferSize, config.FlagWaitTimeout,
		config.FlagMemoryLimit, config.FlagIOLimit,
		config.FlagRank, config.FlagPeers, config.FlagLocal, config.FlagProcs, config.FlagDialTimeout,
		config.FlagBackend, config.FlagBucket, config.FlagPrefix, config.FlagRoot,
		config.FlagEndpoint, config.FlagRegion, config.FlagPathStyle, config.FlagSecure,
		config.FlagPerShard, config.FlagMin, config.FlagMax, config.FlagSeed, config.FlagCompression,
		config.FlagOutput, config.FlagLogLevel, config.FlagLogFormat,
	)
	return cmd
}

func runE(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	tc := cfg.TreeTopK()
	processes := cfg.Processes()
	if err := tc.Validate(processes); err != nil {
		return err
	}

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if cfg.Storage.Backend == "memory" {
		shards := tc.KeyHigh
		if shards == 0 {
			shards = tc.Selectors
		}
		if err := seedMemory(ctx, store, cfg, shards, logger.Logger); err != nil {
			return err
		}
	}

	metrics := &treetopk.BasicMetricsCollector{}
	opts := []treetopk.Option{
		treetopk.WithLogger(logger),
		treetopk.WithMetricsCollector(metrics),
	}

	start := time.Now()
	var res *treetopk.Result
	if cfg.Group.Local {
		res, err = treetopk.RunLocal(ctx, tc, processes, store, opts...)
	} else {
		var tr *transport.TCP
		tr, err = transport.ListenTCP(ctx, transport.TCPConfig{
			Rank:        cfg.Group.Rank,
			Peers:       cfg.Group.PeerList(),
			DialTimeout: cfg.Group.DialTimeout,
			Logger:      logger.Logger,
		})
		if err != nil {
			return err
		}
		defer tr.Close()
		res, err = treetopk.Run(ctx, tc, store, tr, opts...)
	}
	if err != nil {
		return err
	}
	if res.Role != topology.RoleRoot {
		return nil
	}

	stats := metrics.GetFetchStats()
	logger.InfoContext(ctx, "run complete",
		"values", len(res.Values),
		"fetches", stats.Count,
		"missing", stats.Missing,
		"errors", stats.Errors,
		"bytes", stats.Bytes,
		"elapsed", time.Since(start),
	)

	return writeResult(cmd.OutOrStdout(), cfg.Output, runOutput{
		Values:    res.Values,
		K:         cfg.Run.K,
		Processes: processes,
		Fetches:   stats.Count,
		Missing:   stats.Missing,
		Errors:    stats.Errors,
		Bytes:     stats.Bytes,
		ElapsedMs: time.Since(start).Milliseconds(),
	})
}

// writeResult prints the values space-separated on one line, or the whole
// output encoded with the named codec.
func writeResult(w io.Writer, format string, out runOutput) error {
	if format == "text" {
		parts := make([]string, len(out.Values))
		for i, v := range out.Values {
			parts[i] = strconv.FormatInt(v, 10)
		}
		_, err := fmt.Fprintln(w, strings.Join(parts, " "))
		return err
	}

	c, ok := codec.ByName(format)
	if !ok {
		return fmt.Errorf("%w: unknown output %q", treetopk.ErrConfig, format)
	}
	if out.Values == nil {
		out.Values = []int64{}
	}
	b, err := c.Marshal(out)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}
