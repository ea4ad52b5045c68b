package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/rahmiy/massdns-go/internal/config"
	"github.com/rahmiy/massdns-go/internal/logging"
	"github.com/rahmiy/massdns-go/internal/runner"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := pflag.NewFlagSet("massdns", pflag.ExitOnError)
	config.BuildFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if args := fs.Args(); len(args) > 0 {
		cfg.DomainFile = args[0]
	}

	logger := logging.Configure(logging.Config{
		Quiet:    cfg.Logging.Quiet,
		Debug:    cfg.Logging.Debug,
		JSONLogs: cfg.Logging.JSONLogs,
	})
	logger.Info("massdns-go starting",
		"processes", cfg.Processes,
		"domain_file", cfg.DomainFile,
		"resolvers_file", cfg.Resolver.ResolversFile,
		"hashmap_size", cfg.Engine.HashmapSize,
		"interval_ms", cfg.Engine.IntervalMS,
		"resolve_count", cfg.Engine.ResolveCount,
		"query_type", cfg.Engine.QueryType,
		"output_format", cfg.Output.Format,
	)

	r := runner.NewRunner(logger)
	if err := r.Run(cfg); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}
