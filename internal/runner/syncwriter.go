package runner

import (
	"net/netip"
	"sync"
	"time"

	"github.com/rahmiy/massdns-go/internal/dns"
	"github.com/rahmiy/massdns-go/internal/output"
)

// syncWriter serializes access to a single output.Writer shared by
// every worker goroutine. output.Writer implementations are documented
// as not safe for concurrent use (one worker per Writer in the
// original's fork model); goroutines sharing one output file need an
// explicit lock where forked processes relied on the kernel to
// interleave their independent file descriptors.
type syncWriter struct {
	mu sync.Mutex
	w  output.Writer
}

func (s *syncWriter) WriteReply(from netip.AddrPort, at time.Time, raw []byte, pkt dns.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.WriteReply(from, at, raw, pkt)
}

func (s *syncWriter) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}

func (s *syncWriter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}
