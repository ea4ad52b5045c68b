package engine

import (
	"fmt"

	"github.com/rahmiy/massdns-go/internal/config"
	"github.com/rahmiy/massdns-go/internal/dns"
)

// defaultRetryRcode is applied when the user configures neither --retry
// nor --retry=never, matching the original's built-in default of
// REFUSED.
const defaultRetryRcode = dns.RCodeRefused

// BuildConfig translates a loaded config.EngineConfig into the engine's
// runtime Config, resolving record-type and rcode names to their wire
// values.
func BuildConfig(ec config.EngineConfig) (Config, error) {
	qtype, err := dns.ParseType(ec.QueryType)
	if err != nil {
		return Config{}, fmt.Errorf("query type: %w", err)
	}

	cfg := Config{
		HashmapSize:  ec.HashmapSize,
		IntervalMS:   ec.IntervalMS,
		ResolveCount: ec.ResolveCount,
		Norecurse:    ec.Norecurse,
		QueryType:    qtype,
		RetryNever:   ec.RetryNever,
		Aggression:   ec.Extreme,
		RetryRcodes:  make(map[dns.RCode]bool),
	}

	if ec.RetryNever {
		return cfg, nil
	}

	if len(ec.RetryRcodes) == 0 {
		cfg.RetryRcodes[defaultRetryRcode] = true
		return cfg, nil
	}

	for _, name := range ec.RetryRcodes {
		rcode, err := dns.ParseRCode(name)
		if err != nil {
			return Config{}, fmt.Errorf("retry rcode: %w", err)
		}
		cfg.RetryRcodes[rcode] = true
	}
	return cfg, nil
}
