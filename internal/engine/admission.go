package engine

import (
	"github.com/rahmiy/massdns-go/internal/dns"
	"github.com/rahmiy/massdns-go/internal/lookup"
	"github.com/rahmiy/massdns-go/internal/socketset"
)

// pumpAdmission implements the can_send loop: while the table has
// spare capacity and the engine hasn't moved past Querying,
// admit the next input line. A name+type already in flight stops the
// loop for this tick without requeuing the duplicate; the next call
// resumes from the following input line, since it was already consumed.
func (e *Engine) pumpAdmission() {
	for e.state <= StateQuerying && e.table.Size() < e.cfg.HashmapSize {
		domain, ok := e.domains.Next()
		if !ok {
			e.onInputExhausted()
			return
		}
		if !e.admit(domain) {
			return
		}
	}
}

// admit inserts one canonicalized domain into the table and sends its
// first query. It reports false when the name+type was already in
// flight (a duplicate that the admission loop must not double-send).
func (e *Engine) admit(domain string) bool {
	name := dns.NormalizeName(domain)
	key := lookup.Key{Name: name, Type: e.cfg.QueryType}

	rec, ok := e.pool.Get()
	if !ok {
		// The pool is sized at 2x the table's capacity, and admission
		// only runs while the table has spare room, so this can only
		// happen if that invariant has already been broken elsewhere.
		panic("engine: lookup pool exhausted with table below capacity")
	}
	rec.Key = key

	if !e.table.InsertIfAbsent(key, rec) {
		e.pool.Put(rec)
		return false
	}

	rec.Resolver = e.resolvers.Choose(e.admissionCounter, nil)
	e.admissionCounter++
	rec.XID = randomXID()
	rec.Retries = 0

	e.counters.DomainsAdmitted++
	e.counters.RetriesHistogram[0]++

	e.sendAttempt(rec)
	rec.Handle = e.wheel.Add(int64(e.cfg.IntervalMS), rec)
	return true
}

// onInputExhausted implements the end-of-input transition: Cooldown if
// the table is non-empty, else Done directly.
func (e *Engine) onInputExhausted() {
	if e.table.Size() == 0 {
		e.state = StateDone
		return
	}
	e.state = StateCooldown
}

// sendAttempt encodes and transmits one query for rec's current
// resolver/transaction id, via a uniformly random source socket from
// the matching address family.
func (e *Engine) sendAttempt(rec *lookup.Record) {
	recursionDesired := !e.cfg.Norecurse
	q := dns.NewQuery(rec.XID, rec.Key.Name, rec.Key.Type, recursionDesired)

	buf, err := q.Marshal()
	if err != nil {
		e.logger.Warn("failed to marshal query", "name", rec.Key.Name, "error", err)
		return
	}
	if len(buf) > len(e.sendBuf) {
		e.logger.Warn("query too large for send buffer, dropping", "name", rec.Key.Name, "size", len(buf))
		return
	}
	n := copy(e.sendBuf, buf)

	sock, ok := e.sockets.Choose(rec.Resolver.IsIPv6)
	if !ok {
		e.logger.Warn("no source socket for resolver family", "resolver", rec.Resolver.String())
		return
	}
	rec.SocketIdx = sock.FD

	if err := socketset.SendTo(sock, rec.Resolver.Addr, e.sendBuf[:n]); err != nil {
		e.logger.Debug("short or failed send, will retry on timeout", "name", rec.Key.Name, "error", err)
	}
}
