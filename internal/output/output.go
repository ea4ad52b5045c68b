// Package output implements the three answer-writing formats: simple
// text (S), full text (F), and a framed binary stream (B).
package output

import (
	"bufio"
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/rahmiy/massdns-go/internal/dns"
)

// Format selects which writer Open constructs.
type Format string

const (
	FormatSimple Format = "S"
	FormatFull   Format = "F"
	FormatBinary Format = "B"
)

// Writer renders one successful reply. Implementations are not safe for
// concurrent use; goroutines sharing one Writer must serialize calls to
// it (internal/runner wraps the shared Writer in a mutex).
type Writer interface {
	WriteReply(from netip.AddrPort, at time.Time, raw []byte, pkt dns.Packet) error
	Flush() error
	Close() error
}

// Open constructs a Writer for format, writing to dest (an *os.File or
// any io.WriteCloser). flush controls whether every WriteReply call
// flushes the underlying buffer immediately (`--flush`).
func Open(format Format, dest io.WriteCloser, flush bool) (Writer, error) {
	bw := bufio.NewWriter(dest)
	switch format {
	case FormatSimple:
		return &simpleWriter{dest: dest, w: bw, flush: flush}, nil
	case FormatFull:
		return &fullWriter{dest: dest, w: bw, flush: flush}, nil
	case FormatBinary:
		w := &binaryWriter{dest: dest, w: bw, flush: flush}
		if err := w.writeHeader(); err != nil {
			return nil, fmt.Errorf("write binary header: %w", err)
		}
		return w, nil
	default:
		return nil, fmt.Errorf("unrecognized output format %q", format)
	}
}

type simpleWriter struct {
	dest  io.WriteCloser
	w     *bufio.Writer
	flush bool
}

// WriteReply emits one line per answer-section record whose name
// equals the query name.
func (s *simpleWriter) WriteReply(_ netip.AddrPort, _ time.Time, _ []byte, pkt dns.Packet) error {
	if len(pkt.Questions) == 0 {
		return nil
	}
	queryName := dns.NormalizeName(pkt.Questions[0].Name)
	for _, rr := range pkt.Answers {
		if dns.NormalizeName(rr.Name) != queryName {
			continue
		}
		if _, err := fmt.Fprintf(s.w, "%s %s %s\n", pkt.Questions[0].Name, dns.TypeString(rr.Type), rr.RdataString()); err != nil {
			return err
		}
	}
	if s.flush {
		return s.w.Flush()
	}
	return nil
}

func (s *simpleWriter) Flush() error { return s.w.Flush() }
func (s *simpleWriter) Close() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	return s.dest.Close()
}

type fullWriter struct {
	dest  io.WriteCloser
	w     *bufio.Writer
	flush bool
}

// WriteReply emits a dig-style multi-line block.
func (f *fullWriter) WriteReply(from netip.AddrPort, at time.Time, raw []byte, pkt dns.Packet) error {
	fmt.Fprintf(f.w, ";; Server: %s\n", from)
	fmt.Fprintf(f.w, ";; Size: %d\n", len(raw))
	fmt.Fprintf(f.w, ";; Unix time: %d\n", at.Unix())
	fmt.Fprintf(f.w, ";; ->>HEADER<<- opcode: QUERY, status: %s, id: %d\n", rcodeName(dns.RCodeFromFlags(pkt.Header.Flags)), pkt.Header.ID)
	fmt.Fprintf(f.w, ";; QUESTION SECTION:\n")
	for _, q := range pkt.Questions {
		fmt.Fprintf(f.w, ";%s\t%s\t%s\n", q.Name, "IN", dns.TypeString(q.Type))
	}
	writeSection(f.w, "ANSWER", pkt.Answers)
	writeSection(f.w, "AUTHORITY", pkt.Authorities)
	writeSection(f.w, "ADDITIONAL", pkt.Additionals)
	fmt.Fprintln(f.w)

	if f.flush {
		return f.w.Flush()
	}
	return nil
}

func writeSection(w io.Writer, name string, records []dns.Record) {
	if len(records) == 0 {
		return
	}
	fmt.Fprintf(w, ";; %s SECTION:\n", name)
	for _, rr := range records {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", rr.Name, rr.TTL, "IN", dns.TypeString(rr.Type), rr.RdataString())
	}
}

func rcodeName(rc dns.RCode) string {
	switch rc {
	case dns.RCodeNoError:
		return "NOERROR"
	case dns.RCodeFormErr:
		return "FORMERR"
	case dns.RCodeServFail:
		return "SERVFAIL"
	case dns.RCodeNXDomain:
		return "NXDOMAIN"
	case dns.RCodeNotImp:
		return "NOTIMP"
	case dns.RCodeRefused:
		return "REFUSED"
	default:
		return fmt.Sprintf("RCODE%d", rc)
	}
}

func (f *fullWriter) Flush() error { return f.w.Flush() }
func (f *fullWriter) Close() error {
	if err := f.w.Flush(); err != nil {
		return err
	}
	return f.dest.Close()
}
