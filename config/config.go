// Package config loads process-level settings for the treetopk command.
//
// Precedence, highest first: flags bound with BindFlags, environment
// variables, the treetopk.yaml file, and the defaults of Default.
// Environment variables use the TREETOPK prefix with dots replaced by
// underscores, so "run.selectors" is read from TREETOPK_RUN_SELECTORS. The
// group rank and size also honor the MPI launcher variables.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hupe1980/treetopk"
	"github.com/hupe1980/treetopk/codec"
	"github.com/hupe1980/treetopk/record"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TREETOPK"

// Unset marks an integer setting that was not provided.
const Unset = -1

// Config aggregates the settings of one process.
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Group   GroupConfig   `mapstructure:"group"`
	Storage StorageConfig `mapstructure:"storage"`
	Seed    SeedConfig    `mapstructure:"seed"`
	Log     LogConfig     `mapstructure:"log"`
	// Output selects how the root prints its result: text, json or go-json.
	Output string `mapstructure:"output"`
}

// RunConfig mirrors treetopk.Config.
type RunConfig struct {
	Selectors          int           `mapstructure:"selectors"`
	Aggregators        int           `mapstructure:"aggregators"`
	KeyHigh            int           `mapstructure:"key_high"`
	K                  int           `mapstructure:"k"`
	KeyFormat          string        `mapstructure:"key_format"`
	Slots              int           `mapstructure:"slots"`
	BufferSize         int           `mapstructure:"buffer_size"`
	WaitTimeout        time.Duration `mapstructure:"wait_timeout"`
	MemoryLimitBytes   int64         `mapstructure:"memory_limit_bytes"`
	IOLimitBytesPerSec int64         `mapstructure:"io_limit_bytes_per_sec"`
}

// GroupConfig describes the process group.
type GroupConfig struct {
	// Rank of this process, Unset when not provided.
	Rank int `mapstructure:"rank"`
	// Size of the group, Unset to derive it from Peers or Procs.
	Size int `mapstructure:"size"`
	// Peers is a comma-separated host:port list, one per rank.
	Peers string `mapstructure:"peers"`
	// Local runs the whole group inside this process.
	Local bool `mapstructure:"local"`
	// Procs is the group size of a local run. Zero means S + A + 1.
	Procs       int           `mapstructure:"procs"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// StorageConfig selects and configures the blob store backend.
type StorageConfig struct {
	// Backend is one of memory, local, s3 or minio.
	Backend   string `mapstructure:"backend"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Root      string `mapstructure:"root"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	PathStyle bool   `mapstructure:"path_style"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Secure    bool   `mapstructure:"secure"`
}

// SeedConfig describes a synthetic dataset.
type SeedConfig struct {
	Shards      int    `mapstructure:"shards"`
	PerShard    int    `mapstructure:"per_shard"`
	Min         int64  `mapstructure:"min"`
	Max         int64  `mapstructure:"max"`
	Seed        uint64 `mapstructure:"seed"`
	Compression string `mapstructure:"compression"`
	Concurrency int    `mapstructure:"concurrency"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Backends lists the accepted storage backends.
var Backends = []string{"memory", "local", "s3", "minio"}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Run: RunConfig{
			K:           10,
			KeyFormat:   "%d",
			Slots:       16,
			BufferSize:  1 << 20,
			WaitTimeout: time.Second,
		},
		Group: GroupConfig{
			Rank:        Unset,
			Size:        Unset,
			DialTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Backend: "local",
			Root:    ".",
			Secure:  true,
		},
		Seed: SeedConfig{
			PerShard:    100,
			Max:         1_000_000,
			Seed:        1,
			Compression: "none",
			Concurrency: 8,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Output: "text",
	}
}

// mpiEnv lists launcher variables consulted after the TREETOPK ones.
var mpiEnv = map[string][]string{
	"group.rank": {"OMPI_COMM_WORLD_RANK", "PMI_RANK"},
	"group.size": {"OMPI_COMM_WORLD_SIZE", "PMI_SIZE"},
}

// New returns a viper instance with defaults, environment bindings and, when
// found, the config file. An empty file searches for treetopk.yaml in the
// working directory.
func New(file string) (*viper.Viper, error) {
	v := viper.New()

	d := Default()
	setDefaults(v, &d)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("treetopk")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) || file != "" {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, &d)

	// TREETOPK_RANK and TREETOPK_SIZE are the short forms.
	for key, extra := range mpiEnv {
		short := EnvPrefix + "_" + strings.ToUpper(strings.TrimPrefix(key, "group."))
		full := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = v.BindEnv(append([]string{key, full, short}, extra...)...)
	}
	return v, nil
}

// Load unmarshals v. Commands validate the result with Validate or
// ValidateSeed.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", treetopk.ErrConfig, err)
	}
	return &cfg, nil
}

// Validate checks the settings of the run command that do not depend on the
// group size.
func (c *Config) Validate() error {
	if c.Run.Selectors < 1 {
		return configErr("run.selectors", "at least one selector is required")
	}
	if c.Run.Aggregators < 0 {
		return configErr("run.aggregators", "must not be negative")
	}
	if !contains(Backends, c.Storage.Backend) {
		return configErr("storage.backend", fmt.Sprintf("unknown backend %q", c.Storage.Backend))
	}
	if (c.Storage.Backend == "s3" || c.Storage.Backend == "minio") && c.Storage.Bucket == "" {
		return configErr("storage.bucket", "required for "+c.Storage.Backend)
	}
	if c.Output != "text" {
		if _, ok := codec.ByName(c.Output); !ok {
			return configErr("output", fmt.Sprintf("unknown output %q", c.Output))
		}
	}
	if !c.Group.Local {
		if len(c.Group.PeerList()) == 0 {
			return configErr("group.peers", "peers are required unless running locally")
		}
		if c.Group.Rank < 0 {
			return configErr("group.rank", "rank is required unless running locally")
		}
		if n := len(c.Group.PeerList()); c.Group.Rank >= n {
			return configErr("group.rank", fmt.Sprintf("rank %d outside peer list of %d", c.Group.Rank, n))
		}
		if n := len(c.Group.PeerList()); c.Group.Size != Unset && c.Group.Size != n {
			return configErr("group.size", fmt.Sprintf("launcher reports %d processes but %d peers are listed", c.Group.Size, n))
		}
	}
	return nil
}

// ValidateSeed checks the settings of the seed command.
func (c *Config) ValidateSeed() error {
	if c.Seed.Shards < 1 {
		return configErr("seed.shards", "at least one shard is required")
	}
	if c.Seed.PerShard < 0 {
		return configErr("seed.per_shard", "must not be negative")
	}
	if _, err := record.ParseCompression(c.Seed.Compression); err != nil {
		return configErr("seed.compression", err.Error())
	}
	if !contains(Backends, c.Storage.Backend) {
		return configErr("storage.backend", fmt.Sprintf("unknown backend %q", c.Storage.Backend))
	}
	return nil
}

// PeerList splits Peers on commas and drops empty entries.
func (g GroupConfig) PeerList() []string {
	var out []string
	for _, p := range strings.Split(g.Peers, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Processes returns the group size: Procs for local runs (S + A + 1 when
// zero), otherwise the number of peers.
func (c *Config) Processes() int {
	if c.Group.Local {
		if c.Group.Procs > 0 {
			return c.Group.Procs
		}
		return c.Run.Selectors + c.Run.Aggregators + 1
	}
	return len(c.Group.PeerList())
}

// TreeTopK converts the run settings.
func (c *Config) TreeTopK() treetopk.Config {
	return treetopk.Config{
		Selectors:          c.Run.Selectors,
		Aggregators:        c.Run.Aggregators,
		KeyHigh:            c.Run.KeyHigh,
		K:                  c.Run.K,
		KeyFormat:          c.Run.KeyFormat,
		Slots:              c.Run.Slots,
		BufferSize:         c.Run.BufferSize,
		WaitTimeout:        c.Run.WaitTimeout,
		MemoryLimitBytes:   c.Run.MemoryLimitBytes,
		IOLimitBytesPerSec: c.Run.IOLimitBytesPerSec,
	}
}

func configErr(field, reason string) error {
	return fmt.Errorf("%w: %s: %s", treetopk.ErrConfig, field, reason)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// setDefaults registers every field of cfg as a viper default.
func setDefaults(v *viper.Viper, cfg any, parts ...string) {
	walk(cfg, parts, func(key string, val reflect.Value) {
		v.SetDefault(key, val.Interface())
	})
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	walk(cfg, parts, func(key string, _ reflect.Value) {
		_ = v.BindEnv(key)
	})
}

func walk(cfg any, parts []string, fn func(key string, val reflect.Value)) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct {
			walk(val.Field(i).Interface(), key, fn)
			continue
		}
		fn(strings.Join(key, "."), val.Field(i))
	}
}
