// Package config loads massdns-go's configuration with the following
// priority (highest to lowest):
//  1. Command-line flags, bound via pflag
//  2. Environment variables (MASSDNS_ prefix)
//  3. Hardcoded defaults
//
// Environment variables are the flag name upper-cased with '-' replaced
// by '_', e.g. MASSDNS_HASHMAP_SIZE sets --hashmap-size.
//
// All configuration is validated during Load() so a bad flag combination
// fails fast at startup rather than mid-run.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/rahmiy/massdns-go/internal/dns"
)

// BuildFlags registers the full massdns-go CLI flag surface onto fs.
// Callers pass pflag.CommandLine in production and a fresh
// pflag.FlagSet in tests.
func BuildFlags(fs *pflag.FlagSet) {
	fs.StringSlice("resolvers", nil, "file of resolvers to use")
	fs.StringArray("bindto", nil, "bind to IP address (v4 and v6, repeatable)")
	fs.Int("resolve-count", 50, "number of tries for DNS resolution")
	fs.Int("interval", 200, "interval in milliseconds to wait between query retries")
	fs.Int("hashmap-size", 0, "size of the hash map used to track in-flight lookups (0 = derive from resolve count)")
	fs.StringArray("retry", nil, "which flags to retry on (REFUSED, SERVFAIL, NXDOMAIN, FORMERR, or \"never\"); repeatable, first occurrence clears the default")
	fs.Bool("norecurse", false, "do not set the recursion desired bit")
	fs.StringP("types", "t", "A", "record type to query for every domain (A, AAAA, CNAME, MX, NS, PTR, SOA, TXT)")
	fs.Bool("predictable", false, "pick resolvers for a query sequentially instead of randomly")
	fs.Bool("sticky", false, "keep using the same resolver for retries of the same lookup")
	fs.String("output", "S", "output format: S (simple text), F (full text), B (binary)")
	fs.String("outfile", "", "output file, defaults to standard output")
	fs.Int("processes", 1, "number of worker processes/goroutines to spawn")
	fs.Int("sndbuf", 0, "size in bytes for the kernel socket send buffer (0 = OS default)")
	fs.Int("rcvbuf", 0, "size in bytes for the kernel socket receive buffer (0 = OS default)")
	fs.Int("extreme", 1, "aggression level: 0 (completion-driven), 1 (warmup-driven), 2 (always armed)")
	fs.Bool("flush", false, "flush the output file after every write")
	fs.Bool("quiet", false, "do not print progress or info messages")
	fs.Bool("debug", false, "enable debug-level logging")
	fs.Bool("json-logs", false, "emit logs as JSON instead of text")
	fs.String("drop-user", "", "drop privileges to this user after socket setup")
	fs.String("root", "", "chroot to this directory after socket setup")
	fs.String("domain-file", "-", "file of domains to resolve, or \"-\" for standard input")
}

// Load builds a Config from fs (already parsed) and the environment,
// applying defaults for anything left unset, then validates and
// normalizes the result.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MASSDNS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	cfg := &Config{}
	loadResolverConfig(v, cfg)
	loadBindConfig(v, cfg)
	loadEngineConfig(v, cfg)
	loadOutputConfig(v, cfg)
	loadSocketConfig(v, cfg)
	loadPrivilegeConfig(v, cfg)
	loadLoggingConfig(v, cfg)
	cfg.DomainFile = v.GetString("domain-file")
	cfg.Processes = v.GetInt("processes")

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("resolve-count", 50)
	v.SetDefault("interval", 200)
	v.SetDefault("hashmap-size", 0)
	v.SetDefault("norecurse", false)
	v.SetDefault("types", "A")
	v.SetDefault("predictable", false)
	v.SetDefault("sticky", false)
	v.SetDefault("output", "S")
	v.SetDefault("processes", 1)
	v.SetDefault("sndbuf", 0)
	v.SetDefault("rcvbuf", 0)
	v.SetDefault("extreme", 1)
	v.SetDefault("flush", false)
	v.SetDefault("quiet", false)
	v.SetDefault("debug", false)
	v.SetDefault("json-logs", false)
	v.SetDefault("domain-file", "-")
}

func loadResolverConfig(v *viper.Viper, cfg *Config) {
	resolvers := v.GetStringSlice("resolvers")
	if len(resolvers) == 1 {
		cfg.Resolver.ResolversFile = resolvers[0]
	} else if len(resolvers) > 1 {
		cfg.Resolver.ResolversFile = resolvers[len(resolvers)-1]
	}
	cfg.Resolver.Predictable = v.GetBool("predictable")
	cfg.Resolver.Sticky = v.GetBool("sticky")
}

func loadBindConfig(v *viper.Viper, cfg *Config) {
	cfg.Bind.Addrs = cleanStrings(v.GetStringSlice("bindto"))
}

func loadEngineConfig(v *viper.Viper, cfg *Config) {
	cfg.Engine.ResolveCount = v.GetInt("resolve-count")
	cfg.Engine.IntervalMS = v.GetInt("interval")
	cfg.Engine.HashmapSize = v.GetInt("hashmap-size")
	cfg.Engine.Norecurse = v.GetBool("norecurse")
	cfg.Engine.QueryType = strings.ToUpper(v.GetString("types"))
	cfg.Engine.Extreme = Aggression(v.GetInt("extreme"))

	retry := cleanStrings(v.GetStringSlice("retry"))
	cfg.Engine.RetryRcodes, cfg.Engine.RetryNever = parseRetryFlags(retry)
}

func loadOutputConfig(v *viper.Viper, cfg *Config) {
	cfg.Output.Format = OutputFormat(strings.ToUpper(v.GetString("output")))
	cfg.Output.Outfile = v.GetString("outfile")
	cfg.Output.Flush = v.GetBool("flush")
}

func loadSocketConfig(v *viper.Viper, cfg *Config) {
	cfg.Socket.SndBuf = v.GetInt("sndbuf")
	cfg.Socket.RcvBuf = v.GetInt("rcvbuf")
}

func loadPrivilegeConfig(v *viper.Viper, cfg *Config) {
	cfg.Privilege.DropUser = v.GetString("drop-user")
	cfg.Privilege.Root = v.GetString("root")
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Quiet = v.GetBool("quiet")
	cfg.Logging.Debug = v.GetBool("debug")
	cfg.Logging.JSONLogs = v.GetBool("json-logs")
}

// parseRetryFlags splits --retry values into rcode names and a "never"
// flag. The first occurrence of --retry clears the default retry set
// rather than appending to it; since BuildFlags
// registers no default values for "retry", an empty slice here means
// "use the engine's built-in default", not "retry nothing".
func parseRetryFlags(values []string) (rcodes []string, never bool) {
	for _, r := range values {
		if strings.EqualFold(r, "never") {
			return nil, true
		}
		rcodes = append(rcodes, strings.ToUpper(r))
	}
	return rcodes, false
}

func cleanStrings(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// normalizeConfig validates and fills in derived fields left at their
// zero value.
func normalizeConfig(cfg *Config) error {
	if cfg.Engine.ResolveCount <= 0 {
		return errors.New("resolve-count must be positive")
	}
	if cfg.Engine.IntervalMS <= 0 {
		return errors.New("interval must be positive")
	}
	if cfg.Engine.HashmapSize <= 0 {
		// The table must hold every lookup that can be in flight at once
		// plus headroom below the max load factor; see internal/lookup.
		cfg.Engine.HashmapSize = cfg.Engine.ResolveCount * 10000
	}

	if cfg.Engine.QueryType == "" {
		cfg.Engine.QueryType = "A"
	}
	if _, err := dns.ParseType(cfg.Engine.QueryType); err != nil {
		return fmt.Errorf("invalid query type: %w", err)
	}

	switch cfg.Output.Format {
	case OutputSimple, OutputFull, OutputBinary:
	case "":
		cfg.Output.Format = OutputSimple
	default:
		return fmt.Errorf("unrecognized output format %q", cfg.Output.Format)
	}

	if cfg.Engine.Extreme < AggressionCompletionOnly || cfg.Engine.Extreme > AggressionAlwaysArmed {
		return fmt.Errorf("extreme must be 0, 1, or 2, got %d", cfg.Engine.Extreme)
	}

	if cfg.Processes <= 0 {
		cfg.Processes = 1
	}

	if cfg.Resolver.Predictable && cfg.Resolver.Sticky {
		return errors.New("predictable and sticky resolver selection are mutually exclusive")
	}

	if cfg.DomainFile == "" {
		cfg.DomainFile = "-"
	}

	return nil
}
