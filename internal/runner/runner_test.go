package runner_test

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rahmiy/massdns-go/internal/config"
	"github.com/rahmiy/massdns-go/internal/dns"
	"github.com/rahmiy/massdns-go/internal/runner"
)

// encodeAReply hand-builds the wire bytes of a one-question, one-answer
// reply. dns.Record has no Marshal of its own — massdns-go never sends
// answer records, only parses them — so a fake resolver standing in for
// a real nameserver has to build its response bytes directly.
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

func startFakeResolver(t *testing.T, ip string) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

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
			flags := dns.QRFlag | dns.RAFlag
			out := encodeAReply(t, q, pkt.Header.ID, flags, net.ParseIP(ip).To4())
			_, _ = conn.WriteToUDP(out, addr)
		}
	}()

	return conn
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunSingleProcessEndToEnd(t *testing.T) {
	resolverConn := startFakeResolver(t, "93.184.216.34")

	dir := t.TempDir()
	domainFile := writeFile(t, dir, "domains.txt", "example.com\n")
	resolversFile := writeFile(t, dir, "resolvers.txt", fmt.Sprintf("127.0.0.1:%d\n", resolverConn.LocalAddr().(*net.UDPAddr).Port))
	outFile := filepath.Join(dir, "out.txt")

	cfg := &config.Config{
		DomainFile: domainFile,
		Processes:  1,
		Resolver:   config.ResolverConfig{ResolversFile: resolversFile},
		Bind:       config.BindConfig{Addrs: []string{"127.0.0.1"}},
		Engine: config.EngineConfig{
			HashmapSize:      4,
			IntervalMS:       50,
			ResolveCount:     3,
			QueryType:        "A",
			Extreme:          config.AggressionCompletionOnly,
			ProgressInterval: 50 * time.Millisecond,
		},
		Output: config.OutputConfig{
			Format:  config.OutputSimple,
			Outfile: outFile,
			Flush:   true,
		},
		Logging: config.LoggingConfig{Quiet: true},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := runner.NewRunner(logger)

	require.NoError(t, r.Run(cfg))

	got, err := os.ReadFile(outFile)
	require.NoError(t, err)
	require.Contains(t, string(got), "example.com")
	require.Contains(t, string(got), "93.184.216.34")
}

func TestRunMultiProcessEndToEnd(t *testing.T) {
	resolverConn := startFakeResolver(t, "198.51.100.7")

	dir := t.TempDir()
	var domains string
	for i := 0; i < 20; i++ {
		domains += fmt.Sprintf("host%d.example.com\n", i)
	}
	domainFile := writeFile(t, dir, "domains.txt", domains)
	resolversFile := writeFile(t, dir, "resolvers.txt", fmt.Sprintf("127.0.0.1:%d\n", resolverConn.LocalAddr().(*net.UDPAddr).Port))
	outFile := filepath.Join(dir, "out.txt")

	cfg := &config.Config{
		DomainFile: domainFile,
		Processes:  4,
		Resolver:   config.ResolverConfig{ResolversFile: resolversFile},
		Bind:       config.BindConfig{Addrs: []string{"127.0.0.1"}},
		Engine: config.EngineConfig{
			HashmapSize:      4,
			IntervalMS:       50,
			ResolveCount:     3,
			QueryType:        "A",
			Extreme:          config.AggressionCompletionOnly,
			ProgressInterval: 20 * time.Millisecond,
		},
		Output: config.OutputConfig{
			Format:  config.OutputSimple,
			Outfile: outFile,
			Flush:   true,
		},
		Logging: config.LoggingConfig{Quiet: true},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := runner.NewRunner(logger)

	require.NoError(t, r.Run(cfg))

	got, err := os.ReadFile(outFile)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		require.Contains(t, string(got), fmt.Sprintf("host%d.example.com", i))
	}
}
