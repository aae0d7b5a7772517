package config

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Flag ties a command-line flag to a viper key so the same setting keeps one
// name, shorthand and description across commands.
type Flag struct {
	Name        string
	Shorthand   string
	ViperKey    string
	Description string
}

// Flag registry keys.
const (
	FlagSelectors   = "selectors"
	FlagAggregators = "aggregators"
	FlagKeyHigh     = "key-high"
	FlagTopK        = "topk"
	FlagKeyFormat   = "key-format"
	FlagSlots       = "slots"
	FlagBufferSize  = "buffer-size"
	FlagWaitTimeout = "wait-timeout"
	FlagMemoryLimit = "memory-limit"
	FlagIOLimit     = "io-limit"

	FlagRank        = "rank"
	FlagPeers       = "peers"
	FlagLocal       = "local"
	FlagProcs       = "procs"
	FlagDialTimeout = "dial-timeout"

	FlagBackend   = "backend"
	FlagBucket    = "bucket"
	FlagPrefix    = "prefix"
	FlagRoot      = "root"
	FlagEndpoint  = "endpoint"
	FlagRegion    = "region"
	FlagPathStyle = "path-style"
	FlagSecure    = "secure"

	FlagShards      = "shards"
	FlagPerShard    = "per-shard"
	FlagMin         = "min"
	FlagMax         = "max"
	FlagSeed        = "seed"
	FlagCompression = "compression"
	FlagConcurrency = "concurrency"

	FlagOutput    = "output"
	FlagLogLevel  = "log-level"
	FlagLogFormat = "log-format"
)

// Flags is the registry of every flag the command line accepts.
var Flags = map[string]Flag{
	FlagSelectors:   {Name: "selectors", Shorthand: "s", ViperKey: "run.selectors", Description: "Number of leaf selectors"},
	FlagAggregators: {Name: "aggregators", Shorthand: "a", ViperKey: "run.aggregators", Description: "Number of inner aggregators"},
	FlagKeyHigh:     {Name: "key-high", Shorthand: "k", ViperKey: "run.key_high", Description: "Exclusive upper bound of shard keys (default: selectors)"},
	FlagTopK:        {Name: "topk", ViperKey: "run.k", Description: "Number of values to report"},
	FlagKeyFormat:   {Name: "key-format", ViperKey: "run.key_format", Description: "fmt verb mapping a key to an object name"},
	FlagSlots:       {Name: "slots", ViperKey: "run.slots", Description: "Concurrent reads per selector"},
	FlagBufferSize:  {Name: "buffer-size", ViperKey: "run.buffer_size", Description: "Per-read buffer size in bytes"},
	FlagWaitTimeout: {Name: "wait-timeout", ViperKey: "run.wait_timeout", Description: "Interval between stalled-read warnings"},
	FlagMemoryLimit: {Name: "memory-limit", ViperKey: "run.memory_limit_bytes", Description: "Fetch buffer memory limit in bytes (0 = unlimited)"},
	FlagIOLimit:     {Name: "io-limit", ViperKey: "run.io_limit_bytes_per_sec", Description: "Read throughput limit in bytes/s (0 = unlimited)"},

	FlagRank:        {Name: "rank", ViperKey: "group.rank", Description: "Rank of this process (default: TREETOPK_RANK, OMPI_COMM_WORLD_RANK or PMI_RANK)"},
	FlagPeers:       {Name: "peers", ViperKey: "group.peers", Description: "Comma-separated host:port of every rank"},
	FlagLocal:       {Name: "local", ViperKey: "group.local", Description: "Run the whole group in this process"},
	FlagProcs:       {Name: "procs", Shorthand: "n", ViperKey: "group.procs", Description: "Group size of a local run (default: selectors + aggregators + 1)"},
	FlagDialTimeout: {Name: "dial-timeout", ViperKey: "group.dial_timeout", Description: "How long to retry connecting to a peer"},

	FlagBackend:   {Name: "backend", ViperKey: "storage.backend", Description: "Blob store backend: memory, local, s3 or minio"},
	FlagBucket:    {Name: "bucket", ViperKey: "storage.bucket", Description: "Bucket of the s3 and minio backends"},
	FlagPrefix:    {Name: "prefix", ViperKey: "storage.prefix", Description: "Object name prefix"},
	FlagRoot:      {Name: "root", ViperKey: "storage.root", Description: "Directory of the local backend"},
	FlagEndpoint:  {Name: "endpoint", ViperKey: "storage.endpoint", Description: "Custom S3 or MinIO endpoint"},
	FlagRegion:    {Name: "region", ViperKey: "storage.region", Description: "S3 region"},
	FlagPathStyle: {Name: "path-style", ViperKey: "storage.path_style", Description: "Use path-style S3 addressing"},
	FlagSecure:    {Name: "secure", ViperKey: "storage.secure", Description: "Use TLS for the minio backend"},

	FlagShards:      {Name: "shards", ViperKey: "seed.shards", Description: "Number of shard objects to write"},
	FlagPerShard:    {Name: "per-shard", ViperKey: "seed.per_shard", Description: "Values per shard object"},
	FlagMin:         {Name: "min", ViperKey: "seed.min", Description: "Inclusive lower bound of generated values"},
	FlagMax:         {Name: "max", ViperKey: "seed.max", Description: "Exclusive upper bound of generated values"},
	FlagSeed:        {Name: "seed", ViperKey: "seed.seed", Description: "Random seed"},
	FlagCompression: {Name: "compression", ViperKey: "seed.compression", Description: "Object compression: none, zstd or lz4"},
	FlagConcurrency: {Name: "concurrency", ViperKey: "seed.concurrency", Description: "Parallel uploads"},

	FlagOutput:    {Name: "output", Shorthand: "o", ViperKey: "output", Description: "Result format: text, json or go-json"},
	FlagLogLevel:  {Name: "log-level", ViperKey: "log.level", Description: "Log level: debug, info, warn or error"},
	FlagLogFormat: {Name: "log-format", ViperKey: "log.format", Description: "Log format: text or json"},
}

// AddFlags registers the given flags on fs with their default values. The
// flag type follows the type of the default.
func AddFlags(fs *pflag.FlagSet, keys ...string) {
	d := viper.New()
	def := Default()
	setDefaults(d, &def)

	for _, key := range keys {
		f, ok := Flags[key]
		if !ok || fs.Lookup(f.Name) != nil {
			continue
		}
		switch val := d.Get(f.ViperKey).(type) {
		case bool:
			fs.BoolP(f.Name, f.Shorthand, val, f.Description)
		case int:
			fs.IntP(f.Name, f.Shorthand, val, f.Description)
		case int64:
			fs.Int64P(f.Name, f.Shorthand, val, f.Description)
		case uint64:
			fs.Uint64P(f.Name, f.Shorthand, val, f.Description)
		case time.Duration:
			fs.DurationP(f.Name, f.Shorthand, val, f.Description)
		default:
			fs.StringP(f.Name, f.Shorthand, d.GetString(f.ViperKey), f.Description)
		}
	}
}

// BindFlags binds the registered flags of cmd to their viper keys. Only flags
// the user set override environment and file values.
func BindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for _, f := range Flags {
		pf := cmd.Flags().Lookup(f.Name)
		if pf == nil {
			continue
		}
		if err := v.BindPFlag(f.ViperKey, pf); err != nil {
			return err
		}
	}
	return nil
}
