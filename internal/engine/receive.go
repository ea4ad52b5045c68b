package engine

import (
	"errors"
	"net/netip"
	"syscall"
	"time"

	"github.com/rahmiy/massdns-go/internal/config"
	"github.com/rahmiy/massdns-go/internal/dns"
	"github.com/rahmiy/massdns-go/internal/helpers"
	"github.com/rahmiy/massdns-go/internal/lookup"
	"github.com/rahmiy/massdns-go/internal/socketset"
	"github.com/rahmiy/massdns-go/internal/stats"
)

// drainSocket reads every datagram currently queued on sock: one
// readiness event may represent several pending packets since the
// socket uses level-triggered readiness via epoll.
func (e *Engine) drainSocket(sock *socketset.Socket) {
	for {
		n, from, err := socketset.RecvFrom(sock, e.recvBuf)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				return
			}
			e.logger.Debug("recvfrom error", "error", err)
			return
		}
		e.handleReply(from, time.Now(), e.recvBuf[:n])
	}
}

// handleReply parses one datagram and correlates it against the
// in-flight table, applying the match/mismatch/retry rules.
func (e *Engine) handleReply(from netip.AddrPort, at time.Time, raw []byte) {
	e.counters.RepliesReceived++

	pkt, err := dns.ParseReplyBounded(raw)
	if err != nil {
		e.logger.Debug("failed to parse reply", "from", from, "error", err)
		return
	}
	if len(pkt.Questions) == 0 {
		e.logger.Debug("reply has no question section", "from", from)
		return
	}
	e.counters.ParsedReplies++

	q := pkt.Questions[0]
	key := lookup.Key{Name: dns.NormalizeName(q.Name), Type: q.Type}

	rec, ok := e.table.Get(key)
	if !ok {
		e.counters.MismatchDomain++
		return
	}
	if rec.XID != pkt.Header.ID {
		e.counters.MismatchID++
		return
	}

	e.wheel.Remove(rec.Handle)

	rcode := dns.RCodeFromFlags(pkt.Header.Flags)
	e.counters.AnyTimeByRcode[uint16(rcode)]++

	if e.isUnacceptable(rcode) {
		e.retryOrFail(rec)
		return
	}

	if err := e.writer.WriteReply(from, at, raw, pkt); err != nil {
		e.logger.Warn("failed to write reply", "name", rec.Key.Name, "error", err)
	}
	e.counters.FinalByRcode[uint16(rcode)]++
	e.counters.FinalSuccess++
	e.complete(rec)
}

// isUnacceptable reports whether rcode should trigger a retry rather
// than being treated as a terminal answer. --retry=never disables
// retries unconditionally.
func (e *Engine) isUnacceptable(rcode dns.RCode) bool {
	if e.cfg.RetryNever {
		return false
	}
	return e.cfg.RetryRcodes[rcode]
}

// onTimerFired is the timing wheel's callback, invoked for both of the
// wheel's payload variants: an expired lookup (meaning "no acceptable
// reply arrived within one interval", whether because nothing came
// back or because the socket is still being drained — both are
// treated identically as a timeout) and the periodic progress tick.
func (e *Engine) onTimerFired(payload any) {
	switch p := payload.(type) {
	case *lookup.Record:
		e.retryOrFail(p)
	case progressTick:
		e.handleProgressTick()
	}
}

// retryOrFail advances rec's retry histogram bucket and either resends
// (rescheduling the timeout) or completes the lookup as a terminal
// failure once resolve_count attempts have been used.
func (e *Engine) retryOrFail(rec *lookup.Record) {
	// --resolve-count is user-configurable and can exceed the histogram's
	// fixed width; clamp so a large value degrades to a saturated last
	// bucket instead of indexing out of range.
	bucket := helpers.ClampInt(rec.Retries, 0, stats.MaxRetriesHistogramLen-1)
	e.counters.RetriesHistogram[bucket]--
	rec.Retries++
	bucket = helpers.ClampInt(rec.Retries, 0, stats.MaxRetriesHistogramLen-1)
	e.counters.RetriesHistogram[bucket]++

	if rec.Retries >= e.cfg.ResolveCount {
		e.complete(rec)
		return
	}

	prior := rec.Resolver
	rec.Resolver = e.resolvers.Choose(e.admissionCounter, &prior)
	e.sendAttempt(rec)
	rec.Handle = e.wheel.Add(int64(e.cfg.IntervalMS), rec)
}

// complete removes rec from the table, returns it to the pool, and —
// at aggression levels 0 or 2 — immediately pumps the admission loop so
// throughput doesn't stall while send-readiness is disarmed.
func (e *Engine) complete(rec *lookup.Record) {
	e.table.Remove(rec.Key)
	e.pool.Put(rec)

	if e.state == StateCooldown && e.table.Size() == 0 {
		e.state = StateDone
	}

	if e.cfg.Aggression == config.AggressionCompletionOnly || e.cfg.Aggression == config.AggressionAlwaysArmed {
		e.pumpAdmission()
	}
}
