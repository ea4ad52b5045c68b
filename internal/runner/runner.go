// Package runner orchestrates a massdns-go run: loading resolvers and
// the domain list, opening the output sink, and fanning the work out
// across worker goroutines, one per configured process, instead of the
// fork-per-worker model of the original tool.
package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rahmiy/massdns-go/internal/config"
	"github.com/rahmiy/massdns-go/internal/engine"
	"github.com/rahmiy/massdns-go/internal/output"
	"github.com/rahmiy/massdns-go/internal/privdrop"
	"github.com/rahmiy/massdns-go/internal/resolvers"
	"github.com/rahmiy/massdns-go/internal/socketset"
	"github.com/rahmiy/massdns-go/internal/stats"
)

// Runner orchestrates loading, fan-out, and shutdown for one run.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a Runner logging through logger.
func NewRunner(logger *slog.Logger) *Runner {
	return &Runner{logger: logger}
}

// tick is one worker's progress report, tagged with its index so the
// coordinator can place it in the right aggregate slot.
type tick struct {
	idx  int
	snap stats.Snapshot
}

// Run loads the configured resolvers, domain list, and output sink,
// then starts cfg.Processes worker goroutines and blocks until every
// worker reaches StateDone or ctx is canceled by a shutdown signal.
//
// When Processes > 1, a separate aggregation goroutine receives every
// other worker's progress snapshots over a channel, stores each beside
// worker 0's own snapshot (slot 0), and prints the combined progress
// line for each snapshot it receives. With Processes == 1 the sole
// worker prints its own progress line.
func (r *Runner) Run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	resolverSet, err := resolvers.Load(cfg.Resolver.ResolversFile, cfg.Resolver.Predictable, cfg.Resolver.Sticky, r.logger)
	if err != nil {
		return fmt.Errorf("load resolvers: %w", err)
	}

	domains, err := engine.OpenDomainSource(cfg.DomainFile)
	if err != nil {
		return fmt.Errorf("open domain source: %w", err)
	}
	defer domains.Close()

	dest, err := openOutfile(cfg.Output.Outfile)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	w, err := output.Open(output.Format(cfg.Output.Format), dest, cfg.Output.Flush)
	if err != nil {
		return fmt.Errorf("open output writer: %w", err)
	}
	shared := &syncWriter{w: w}
	defer shared.Close()

	engineCfg, err := engine.BuildConfig(cfg.Engine)
	if err != nil {
		return fmt.Errorf("build engine config: %w", err)
	}

	processes := cfg.Processes
	if processes <= 0 {
		processes = 1
	}

	sockets := make([]*socketset.Set, processes)
	for i := 0; i < processes; i++ {
		sockets[i], err = socketset.Open(cfg.Bind.Addrs, cfg.Socket.SndBuf, cfg.Socket.RcvBuf)
		if err != nil {
			return fmt.Errorf("open sockets for worker %d: %w", i, err)
		}
	}
	defer func() {
		for _, s := range sockets {
			s.Close()
		}
	}()

	if err := privdrop.Apply(privdrop.Config{User: cfg.Privilege.DropUser, Root: cfg.Privilege.Root}, r.logger); err != nil {
		return fmt.Errorf("drop privileges: %w", err)
	}

	progressInterval := cfg.Engine.ProgressInterval
	if progressInterval <= 0 {
		progressInterval = time.Second
	}

	aggregate := stats.NewAggregate(processes)
	var ticks chan tick
	var aggWG sync.WaitGroup
	if processes > 1 {
		ticks = make(chan tick, processes)
		aggWG.Add(1)
		go func() {
			defer aggWG.Done()
			for t := range ticks {
				aggregate.Update(t.idx, t.snap)
				if !cfg.Logging.Quiet {
					stats.WriteProgressLine(os.Stderr, aggregate.Sum(), stats.CollectDiagnostics())
				}
			}
		}()
	}

	errs := make([]error, processes)
	var wg sync.WaitGroup
	for i := 0; i < processes; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			errs[idx] = r.runWorker(ctx, idx, processes, engineCfg, cfg, resolverSet, shared, domains, sockets[idx], progressInterval, aggregate, ticks)
		}(i)
	}
	wg.Wait()

	if ticks != nil {
		close(ticks)
		aggWG.Wait()
	}

	if !cfg.Logging.Quiet {
		stats.WriteProgressLine(os.Stderr, aggregate.Sum(), stats.CollectDiagnostics())
	}

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runWorker wires up one worker's engine around its pre-opened socket
// set, sets its progress handler, and runs it to completion. Every
// worker shares the same resolver set, domain source, and output
// writer — per-worker ownership applies only to sockets and engine
// state.
func (r *Runner) runWorker(ctx context.Context, idx, processes int, engineCfg engine.Config, cfg *config.Config, resolverSet *resolvers.Set, w output.Writer, domains *engine.DomainSource, sockets *socketset.Set, progressInterval time.Duration, aggregate *stats.Aggregate, ticks chan tick) error {
	workerID := strconv.Itoa(idx)
	logger := r.logger.With("worker", workerID)

	e, err := engine.New(engineCfg, sockets, resolverSet, w, domains, logger)
	if err != nil {
		return fmt.Errorf("worker %d: create engine: %w", idx, err)
	}
	defer e.Close()

	if idx == 0 {
		e.SetProgressHandler(progressInterval, func(snap stats.Snapshot) {
			snap.WorkerID = workerID
			aggregate.Update(0, snap)
			if processes == 1 && !cfg.Logging.Quiet {
				stats.WriteProgressLine(os.Stderr, aggregate.Sum(), stats.CollectDiagnostics())
			}
		})
	} else {
		e.SetProgressHandler(progressInterval, func(snap stats.Snapshot) {
			snap.WorkerID = workerID
			ticks <- tick{idx: idx, snap: snap}
		})
	}

	if err := e.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker %d: %w", idx, err)
	}
	return nil
}

// openOutfile opens cfg.Output.Outfile for writing, or wraps stdout
// when the path is empty or "-". Stdout is never actually closed,
// since other diagnostics may still want it.
func openOutfile(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return stdoutWriter{}, nil
	}
	return os.Create(path)
}

// stdoutWriter adapts os.Stdout to io.WriteCloser without closing it.
type stdoutWriter struct{}

func (stdoutWriter) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdoutWriter) Close() error                { return nil }
