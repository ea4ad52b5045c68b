package engine

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rahmiy/massdns-go/internal/config"
	"github.com/rahmiy/massdns-go/internal/dns"
	"github.com/rahmiy/massdns-go/internal/output"
	"github.com/rahmiy/massdns-go/internal/resolvers"
	"github.com/rahmiy/massdns-go/internal/socketset"
)

// encodeAReply hand-builds the wire bytes of a one-question, one-answer
// reply. dns.Record has no Marshal of its own — massdns-go never sends
// answer records, only parses them — so a fake resolver acting as the
// other end of the wire has to build its response bytes directly, the
// way any test standing in for a real nameserver would.
func encodeAReply(t *testing.T, q dns.Question, id uint16, flags uint16, ip []byte) []byte {
	t.Helper()

	h := dns.Header{ID: id, Flags: flags, QDCount: 1, ANCount: 1}
	hb, err := h.Marshal()
	require.NoError(t, err)

	qb, err := q.Marshal()
	require.NoError(t, err)

	nameWire, err := dns.EncodeName(q.Name)
	require.NoError(t, err)

	rr := make([]byte, 0, len(nameWire)+10+len(ip))
	rr = append(rr, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], q.Type)
	binary.BigEndian.PutUint16(fixed[2:4], q.Class)
	binary.BigEndian.PutUint32(fixed[4:8], 300)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(ip)))
	rr = append(rr, fixed...)
	rr = append(rr, ip...)

	out := make([]byte, 0, len(hb)+len(qb)+len(rr))
	out = append(out, hb...)
	out = append(out, qb...)
	out = append(out, rr...)
	return out
}

type nopCloserBuffer struct {
	*bytes.Buffer
}

func (n nopCloserBuffer) Close() error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeResolver answers every query with a fixed A record.
type fakeResolver struct {
	conn *net.UDPConn
}

func startFakeResolver(t *testing.T, ip string) *fakeResolver {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)

	go func() {
		buf := make([]byte, 512)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			pkt, err := dns.ParsePacket(buf[:n])
			if err != nil || len(pkt.Questions) == 0 {
				continue
			}
			q := pkt.Questions[0]
			flags := dns.QRFlag | dns.RAFlag | (pkt.Header.Flags & dns.RDFlag)
			out := encodeAReply(t, q, pkt.Header.ID, flags, mustParseIPv4(ip))
			_, _ = conn.WriteToUDP(out, addr)
		}
	}()

	return &fakeResolver{conn: conn}
}

func mustParseIPv4(s string) []byte {
	ip := net.ParseIP(s).To4()
	return []byte(ip)
}

func (f *fakeResolver) Addr() netip.AddrPort {
	return netip.MustParseAddrPort(f.conn.LocalAddr().String())
}

func (f *fakeResolver) Close() { _ = f.conn.Close() }

func newSilentResolver(t *testing.T) netip.AddrPort {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return netip.MustParseAddrPort(conn.LocalAddr().String())
}

func newTestEngine(t *testing.T, domainsText string, resolverAddr netip.AddrPort, cfg Config, dest *nopCloserBuffer) *Engine {
	t.Helper()

	sockets, err := socketset.Open([]string{"127.0.0.1"}, 0, 0)
	require.NoError(t, err)
	t.Cleanup(sockets.Close)

	resolverSet, err := resolvers.NewSet([]resolvers.Resolver{{Addr: resolverAddr, IsIPv6: false}}, false, false)
	require.NoError(t, err)

	w, err := output.Open(output.FormatSimple, dest, true)
	require.NoError(t, err)

	domains := newDomainSourceFromReader(strings.NewReader(domainsText))

	e, err := New(cfg, sockets, resolverSet, w, domains, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	return e
}

func TestEngineSingleSuccess(t *testing.T) {
	resolver := startFakeResolver(t, "93.184.216.34")
	defer resolver.Close()

	dest := &nopCloserBuffer{Buffer: &bytes.Buffer{}}
	cfg := Config{
		HashmapSize:  4,
		IntervalMS:   50,
		ResolveCount: 3,
		QueryType:    uint16(dns.TypeA),
		RetryRcodes:  map[dns.RCode]bool{dns.RCodeRefused: true},
		Aggression:   config.AggressionCompletionOnly,
	}
	e := newTestEngine(t, "example.com\n", resolver.Addr(), cfg, dest)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	assert.Equal(t, StateDone, e.State())
	assert.EqualValues(t, 1, e.Counters().FinalSuccess)
	assert.EqualValues(t, 0, e.table.Size())
	assert.Contains(t, dest.String(), "example.com")
	assert.Contains(t, dest.String(), "93.184.216.34")
}

func TestEngineTimeoutToExhaustion(t *testing.T) {
	silent := newSilentResolver(t)

	dest := &nopCloserBuffer{Buffer: &bytes.Buffer{}}
	cfg := Config{
		HashmapSize:  4,
		IntervalMS:   20,
		ResolveCount: 2,
		QueryType:    uint16(dns.TypeA),
		RetryRcodes:  map[dns.RCode]bool{dns.RCodeRefused: true},
		Aggression:   config.AggressionCompletionOnly,
	}
	e := newTestEngine(t, "example.com\n", silent, cfg, dest)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Run(ctx))

	assert.Equal(t, StateDone, e.State())
	assert.EqualValues(t, 0, e.Counters().FinalSuccess)
	assert.EqualValues(t, 1, e.Counters().RetriesHistogram[2])
	assert.EqualValues(t, 0, e.table.Size())
}

func TestAdmitDedupInFlight(t *testing.T) {
	silent := newSilentResolver(t)

	dest := &nopCloserBuffer{Buffer: &bytes.Buffer{}}
	cfg := Config{
		HashmapSize:  4,
		IntervalMS:   10000,
		ResolveCount: 50,
		QueryType:    uint16(dns.TypeA),
		RetryRcodes:  map[dns.RCode]bool{dns.RCodeRefused: true},
		Aggression:   config.AggressionCompletionOnly,
	}
	e := newTestEngine(t, "example.com\nexample.com\n", silent, cfg, dest)

	e.pumpAdmission()

	assert.Equal(t, 1, e.table.Size())
	assert.EqualValues(t, 1, e.Counters().DomainsAdmitted)
}

func TestAdmissionRespectsCapacity(t *testing.T) {
	silent := newSilentResolver(t)

	lines := ""
	for i := 0; i < 10; i++ {
		lines += fmt.Sprintf("host%d.example.com\n", i)
	}

	dest := &nopCloserBuffer{Buffer: &bytes.Buffer{}}
	cfg := Config{
		HashmapSize:  4,
		IntervalMS:   10000,
		ResolveCount: 50,
		QueryType:    uint16(dns.TypeA),
		RetryRcodes:  map[dns.RCode]bool{dns.RCodeRefused: true},
		Aggression:   config.AggressionCompletionOnly,
	}
	e := newTestEngine(t, lines, silent, cfg, dest)

	e.pumpAdmission()
	if e.state == StateWarmup && e.table.Size() >= e.cfg.HashmapSize {
		e.enterQuerying()
	}

	assert.Equal(t, 4, e.table.Size())
	assert.Equal(t, StateQuerying, e.state)
	assert.EqualValues(t, 4, e.Counters().DomainsAdmitted)
}
