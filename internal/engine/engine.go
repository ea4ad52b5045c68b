// Package engine implements the asynchronous query engine: admission,
// send, receive, retry, and completion over a fixed-capacity lookup
// table and a timing wheel, driven by one worker's epoll instance.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sys/unix"

	"github.com/rahmiy/massdns-go/internal/config"
	"github.com/rahmiy/massdns-go/internal/dns"
	"github.com/rahmiy/massdns-go/internal/eventloop"
	"github.com/rahmiy/massdns-go/internal/lookup"
	"github.com/rahmiy/massdns-go/internal/output"
	"github.com/rahmiy/massdns-go/internal/resolvers"
	"github.com/rahmiy/massdns-go/internal/socketset"
	"github.com/rahmiy/massdns-go/internal/stats"
	"github.com/rahmiy/massdns-go/internal/wheel"
)

// wheelResolutionMS is the timing wheel's bucket width. It is
// independent of --interval: a finer resolution keeps retry timing
// accurate without requiring one bucket per possible interval value.
const wheelResolutionMS = 10

// Config holds the subset of the loaded configuration the engine needs
// at runtime, already validated.
type Config struct {
	HashmapSize  int
	IntervalMS   int
	ResolveCount int
	Norecurse    bool
	QueryType    uint16
	RetryRcodes  map[dns.RCode]bool
	RetryNever   bool
	Aggression   config.Aggression
}

// Engine owns one worker's entire in-flight state: its lookup table,
// pool, timing wheel, sockets, and output sink. It is not safe for
// concurrent use — each worker goroutine owns exactly one Engine,
// which threads an explicit handle through every call instead of
// relying on global mutable state.
type Engine struct {
	cfg       Config
	table     *lookup.Table
	pool      *lookup.Pool
	wheel     *wheel.Wheel
	sockets   *socketset.Set
	resolvers *resolvers.Set
	loop      *eventloop.Loop
	writer    output.Writer
	domains   *DomainSource
	counters  *stats.Counters
	logger    *slog.Logger

	state            State
	admissionCounter uint64
	recvBuf          []byte
	sendBuf          []byte
	progressInterval time.Duration
	onProgress       func(stats.Snapshot)
}

// progressTick is the timing wheel payload for the periodic progress
// report, distinct from *lookup.Record so onTimerFired can tell a
// stats tick apart from an expired query.
type progressTick struct{}

// New builds an Engine ready to run. sockets, resolverSet, and writer
// are already opened/constructed by the caller (the worker goroutine),
// which owns its own socket set exclusively.
func New(cfg Config, sockets *socketset.Set, resolverSet *resolvers.Set, writer output.Writer, domains *DomainSource, logger *slog.Logger) (*Engine, error) {
	loop, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("create event loop: %w", err)
	}

	for _, sock := range sockets.All() {
		if err := loop.Add(sock.FD, cfg.Aggression != config.AggressionCompletionOnly); err != nil {
			_ = loop.Close()
			return nil, fmt.Errorf("register socket fd %d: %w", sock.FD, err)
		}
	}

	// The span covers the longer of the retry interval and the default
	// one-second progress period, so Add clamps neither.
	longestMS := cfg.IntervalMS
	if ms := int(time.Second.Milliseconds()); ms > longestMS {
		longestMS = ms
	}
	span := longestMS/wheelResolutionMS + 4
	if span < 4 {
		span = 4
	}

	return &Engine{
		cfg:              cfg,
		table:            lookup.NewTable(cfg.HashmapSize),
		pool:             lookup.NewPool(2 * cfg.HashmapSize),
		wheel:            wheel.New(wheelResolutionMS, span),
		sockets:          sockets,
		resolvers:        resolverSet,
		loop:             loop,
		writer:           writer,
		domains:          domains,
		counters:         stats.NewCounters(),
		logger:           logger,
		state:            StateWarmup,
		recvBuf:          make([]byte, dns.MaxIncomingDNSMessageSize),
		sendBuf:          make([]byte, 512),
		progressInterval: time.Second,
	}, nil
}

// Close releases the engine's epoll instance. Sockets and the writer
// are owned by the caller and are not closed here.
func (e *Engine) Close() error {
	return e.loop.Close()
}

// State reports the engine's current lifecycle state.
func (e *Engine) State() State {
	return e.state
}

// Counters exposes the engine's live counters for snapshotting.
func (e *Engine) Counters() *stats.Counters {
	return e.counters
}

// SetProgressHandler installs a callback invoked roughly once per
// progressInterval with a stats snapshot, used by the coordinator's
// progress line and by non-coordinator workers to report upstream.
func (e *Engine) SetProgressHandler(interval time.Duration, fn func(stats.Snapshot)) {
	e.progressInterval = interval
	e.onProgress = fn
}

// Run drives the engine until it reaches StateDone or ctx is canceled.
// Write-readiness is armed from the start at aggression 1 and 2 (never
// at aggression 0, which is completion-driven only) and disarmed on
// entering Querying at aggression <= 1. Run services readiness events and timer expiry on
// every iteration of the epoll loop.
func (e *Engine) Run(ctx context.Context) error {
	e.pumpAdmission()
	if e.state == StateWarmup && e.table.Size() >= e.cfg.HashmapSize {
		e.enterQuerying()
	}
	e.scheduleProgressTick()

	events := make([]unix.EpollEvent, 64)
	for e.state != StateDone {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ready, err := e.loop.Wait(events)
		if err != nil {
			return fmt.Errorf("event loop wait: %w", err)
		}

		for _, ev := range ready {
			sock := e.socketForFD(ev.FD)
			if sock == nil {
				continue
			}
			if ev.Readable {
				e.drainSocket(sock)
			}
			if ev.Writable {
				e.pumpAdmission()
			}
		}

		e.wheel.Handle(nowMS(), e.onTimerFired)

		if e.state == StateWarmup && e.table.Size() >= e.cfg.HashmapSize {
			e.enterQuerying()
		}
	}
	return nil
}

func (e *Engine) socketForFD(fd int) *socketset.Socket {
	for _, sock := range e.sockets.All() {
		if sock.FD == fd {
			return sock
		}
	}
	return nil
}

// enterQuerying transitions Warmup -> Querying, disarming write
// readiness at aggression levels 0 and 1.
func (e *Engine) enterQuerying() {
	e.state = StateQuerying
	if e.cfg.Aggression != config.AggressionAlwaysArmed {
		for _, sock := range e.sockets.All() {
			_ = e.loop.SetWriteArmed(sock.FD, false)
		}
	}
}

// scheduleProgressTick schedules the next progress report on the timing
// wheel. The wheel's span (set in New) covers the default one-second
// progress period; a longer progressInterval installed through
// SetProgressHandler is clamped by Add to the furthest bucket, so that
// tick fires earlier than configured.
func (e *Engine) scheduleProgressTick() {
	e.wheel.Add(e.progressInterval.Milliseconds(), progressTick{})
}

// handleProgressTick reports the current snapshot, if a handler is
// installed, and unconditionally reschedules itself — the wheel keeps
// ticking even through the final iteration where the engine's state
// flips to StateDone, since nothing here checks e.state.
func (e *Engine) handleProgressTick() {
	if e.onProgress != nil {
		e.onProgress(e.counters.Snapshot(""))
	}
	e.scheduleProgressTick()
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}

func randomXID() uint16 {
	return uint16(rand.Intn(1 << 16))
}
