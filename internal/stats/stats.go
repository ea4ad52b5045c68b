// Package stats tracks per-worker query counters and aggregates them at
// the coordinator.
package stats

import (
	"fmt"
	"io"
	"time"
)

// MaxRetriesHistogramLen is the length of the retries-per-attempt
// histogram; index i counts lookups that completed after i retries.
// Sized generously; callers with a smaller max_retries simply leave the
// tail buckets at zero.
const MaxRetriesHistogramLen = 256

// Counters holds one worker's mutable statistics. It is owned
// exclusively by its worker goroutine; only Snapshot (called from the
// progress tick) reads it for transmission elsewhere.
type Counters struct {
	StartedAt time.Time

	DomainsAdmitted  uint64
	RepliesReceived  uint64
	ParsedReplies    uint64
	FinalSuccess     uint64
	FinalByRcode     map[uint16]uint64
	AnyTimeByRcode   map[uint16]uint64
	MismatchDomain   uint64
	MismatchID       uint64
	RetriesHistogram [MaxRetriesHistogramLen]uint64
	CurrentSecond    uint64
}

// NewCounters returns a zeroed Counters with its StartedAt set to now.
func NewCounters() *Counters {
	return &Counters{
		StartedAt:      time.Now(),
		FinalByRcode:   make(map[uint16]uint64),
		AnyTimeByRcode: make(map[uint16]uint64),
	}
}

// Snapshot is the fixed-shape record a non-coordinator worker sends to
// the coordinator once per progress tick. It stands in for the
// original's byte-pipe record: sending a Go value over a channel is
// already the atomic, fixed-size transfer that protocol exists to
// simulate over a raw byte stream.
type Snapshot struct {
	WorkerID         string
	StartedAt        time.Time
	DomainsAdmitted  uint64
	RepliesReceived  uint64
	ParsedReplies    uint64
	FinalSuccess     uint64
	FinalByRcode     map[uint16]uint64
	AnyTimeByRcode   map[uint16]uint64
	MismatchDomain   uint64
	MismatchID       uint64
	RetriesHistogram [MaxRetriesHistogramLen]uint64
}

// Snapshot copies c's current state into an immutable Snapshot.
func (c *Counters) Snapshot(workerID string) Snapshot {
	s := Snapshot{
		WorkerID:         workerID,
		StartedAt:        c.StartedAt,
		DomainsAdmitted:  c.DomainsAdmitted,
		RepliesReceived:  c.RepliesReceived,
		ParsedReplies:    c.ParsedReplies,
		FinalSuccess:     c.FinalSuccess,
		FinalByRcode:     make(map[uint16]uint64, len(c.FinalByRcode)),
		AnyTimeByRcode:   make(map[uint16]uint64, len(c.AnyTimeByRcode)),
		MismatchDomain:   c.MismatchDomain,
		MismatchID:       c.MismatchID,
		RetriesHistogram: c.RetriesHistogram,
	}
	for k, v := range c.FinalByRcode {
		s.FinalByRcode[k] = v
	}
	for k, v := range c.AnyTimeByRcode {
		s.AnyTimeByRcode[k] = v
	}
	return s
}

// Aggregate holds one slot per worker (slot 0 is the coordinator's own).
type Aggregate struct {
	Workers []Snapshot
}

// NewAggregate preallocates n worker slots.
func NewAggregate(n int) *Aggregate {
	return &Aggregate{Workers: make([]Snapshot, n)}
}

// Update stores the latest snapshot for its worker slot. The aggregator
// treats the latest snapshot from each worker as authoritative; it
// never interpolates between ticks.
func (a *Aggregate) Update(idx int, snap Snapshot) {
	a.Workers[idx] = snap
}

// Sum returns the process-wide total: slot 0 plus every other slot. The
// coordinator's own counters must already be in slot 0 before calling
// Sum. The slots themselves are left unchanged.
func (a *Aggregate) Sum() Snapshot {
	total := a.Workers[0]
	finals := make(map[uint16]uint64, len(total.FinalByRcode))
	for k, v := range total.FinalByRcode {
		finals[k] = v
	}
	total.FinalByRcode = finals
	anyTime := make(map[uint16]uint64, len(total.AnyTimeByRcode))
	for k, v := range total.AnyTimeByRcode {
		anyTime[k] = v
	}
	total.AnyTimeByRcode = anyTime
	for i := 1; i < len(a.Workers); i++ {
		w := a.Workers[i]
		total.DomainsAdmitted += w.DomainsAdmitted
		total.RepliesReceived += w.RepliesReceived
		total.ParsedReplies += w.ParsedReplies
		total.FinalSuccess += w.FinalSuccess
		total.MismatchDomain += w.MismatchDomain
		total.MismatchID += w.MismatchID
		for j := range total.RetriesHistogram {
			total.RetriesHistogram[j] += w.RetriesHistogram[j]
		}
		for k, v := range w.FinalByRcode {
			total.FinalByRcode[k] += v
		}
		for k, v := range w.AnyTimeByRcode {
			total.AnyTimeByRcode[k] += v
		}
	}
	return total
}

// WriteProgressLine renders a human-readable one-line summary to w,
// enriched with process memory/CPU via gopsutil (see diagnostics.go).
// It is a no-op under --quiet, matched by the caller skipping this call
// entirely rather than filtering output here.
func WriteProgressLine(w io.Writer, snap Snapshot, diag Diagnostics) {
	elapsed := time.Since(snap.StartedAt).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(snap.DomainsAdmitted) / elapsed
	}
	fmt.Fprintf(w, "[%s] admitted=%d success=%d replies=%d mismatch=%d rate=%.1f/s rss=%dMB cpu=%.1f%%\n",
		snap.WorkerID, snap.DomainsAdmitted, snap.FinalSuccess, snap.RepliesReceived,
		snap.MismatchDomain+snap.MismatchID, rate, diag.RSSBytes/(1024*1024), diag.CPUPercent)
}
