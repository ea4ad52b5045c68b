// Package config loads massdns-go's configuration using Viper, bound to a
// pflag flag set. Configuration is loaded in the following priority order
// (highest to lowest):
//
//  1. Command-line flags
//  2. Environment variables (MASSDNS_ prefix)
//  3. Hardcoded defaults
//
// Environment variables are the flag name upper-cased with '-' replaced
// by '_', e.g. MASSDNS_HASHMAP_SIZE sets --hashmap-size.
package config

import "time"

// OutputFormat selects the output sink format.
type OutputFormat string

const (
	OutputSimple OutputFormat = "S"
	OutputFull   OutputFormat = "F"
	OutputBinary OutputFormat = "B"
)

// Aggression controls how eagerly the engine re-arms send readiness.
type Aggression int

const (
	AggressionCompletionOnly Aggression = 0
	AggressionWarmupOnly     Aggression = 1
	AggressionAlwaysArmed    Aggression = 2
)

// ResolverConfig controls how upstream resolvers are loaded and chosen.
type ResolverConfig struct {
	ResolversFile string `mapstructure:"resolvers_file"`
	Predictable   bool   `mapstructure:"predictable"`
	Sticky        bool   `mapstructure:"sticky"`
}

// BindConfig controls which local addresses query sockets are opened on.
type BindConfig struct {
	Addrs []string `mapstructure:"addrs"`
}

// EngineConfig controls the query engine's timing, capacity, and retry
// policy.
type EngineConfig struct {
	HashmapSize      int           `mapstructure:"hashmap_size"`
	IntervalMS       int           `mapstructure:"interval_ms"`
	ResolveCount     int           `mapstructure:"resolve_count"`
	TimedRingBuckets int           `mapstructure:"timed_ring_buckets"`
	Norecurse        bool          `mapstructure:"norecurse"`
	QueryType        string        `mapstructure:"query_type"`
	RetryRcodes      []string      `mapstructure:"retry_rcodes"`
	RetryNever       bool          `mapstructure:"retry_never"`
	Extreme          Aggression    `mapstructure:"extreme"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
}

// OutputConfig controls where and how answers are written.
type OutputConfig struct {
	Format  OutputFormat `mapstructure:"format"`
	Outfile string       `mapstructure:"outfile"`
	Flush   bool         `mapstructure:"flush"`
}

// SocketConfig controls kernel socket buffer sizing (`--sndbuf`/`--rcvbuf`).
type SocketConfig struct {
	SndBuf int `mapstructure:"sndbuf"`
	RcvBuf int `mapstructure:"rcvbuf"`
}

// PrivilegeConfig controls privilege dropping after socket setup,
// consumed through internal/privdrop.
type PrivilegeConfig struct {
	DropUser string `mapstructure:"drop_user"`
	Root     string `mapstructure:"root"`
}

// LoggingConfig controls verbosity and encoding of the process logger.
type LoggingConfig struct {
	Quiet    bool `mapstructure:"quiet"`
	Debug    bool `mapstructure:"debug"`
	JSONLogs bool `mapstructure:"json_logs"`
}

// Config is the root configuration structure for a massdns-go run.
type Config struct {
	DomainFile string          `mapstructure:"domain_file"`
	Processes  int             `mapstructure:"processes"`
	Resolver   ResolverConfig  `mapstructure:"resolver"`
	Bind       BindConfig      `mapstructure:"bind"`
	Engine     EngineConfig    `mapstructure:"engine"`
	Output     OutputConfig    `mapstructure:"output"`
	Socket     SocketConfig    `mapstructure:"socket"`
	Privilege  PrivilegeConfig `mapstructure:"privilege"`
	Logging    LoggingConfig   `mapstructure:"logging"`
}
