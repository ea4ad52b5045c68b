package dns

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeTestRecord builds the wire bytes for one resource record, for
// feeding into ParseRecord. Record no longer has its own Marshal —
// massdns-go never sends one — so tests that want wire bytes build
// them directly, the way a fixture for a fake upstream resolver would.
func encodeTestRecord(t *testing.T, name string, rrType uint16, ttl uint32, rdata []byte) []byte {
	t.Helper()
	nameWire, err := EncodeName(name)
	require.NoError(t, err)

	b := make([]byte, 0, len(nameWire)+10+len(rdata))
	b = append(b, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], rrType)
	binary.BigEndian.PutUint16(fixed[2:4], uint16(ClassIN))
	binary.BigEndian.PutUint32(fixed[4:8], ttl)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	b = append(b, fixed...)
	b = append(b, rdata...)
	return b
}

func TestParseRecordA(t *testing.T) {
	b := encodeTestRecord(t, "example.com", uint16(TypeA), 300, []byte{1, 2, 3, 4})

	off := 0
	got, err := ParseRecord(b, &off)
	require.NoError(t, err)
	assert.Equal(t, "example.com", got.Name)
	assert.Equal(t, uint16(TypeA), got.Type)
	assert.Equal(t, uint32(300), got.TTL)
	assert.Equal(t, []byte{1, 2, 3, 4}, got.Data)
	assert.Equal(t, len(b), off)
}

func TestParseRecordCNAME(t *testing.T) {
	target, err := EncodeName("target.example.com")
	require.NoError(t, err)
	b := encodeTestRecord(t, "alias.example.com", uint16(TypeCNAME), 60, target)

	off := 0
	got, err := ParseRecord(b, &off)
	require.NoError(t, err)
	assert.Equal(t, "target.example.com", got.Data)
}

func TestParseRecordMX(t *testing.T) {
	exchange, err := EncodeName("mail.example.com")
	require.NoError(t, err)
	rdata := make([]byte, 2+len(exchange))
	binary.BigEndian.PutUint16(rdata[0:2], 10)
	copy(rdata[2:], exchange)
	b := encodeTestRecord(t, "example.com", uint16(TypeMX), 60, rdata)

	off := 0
	got, err := ParseRecord(b, &off)
	require.NoError(t, err)
	assert.Equal(t, MXData{Preference: 10, Exchange: "mail.example.com"}, got.Data)
}

func TestParseRecordRejectsTruncatedRdata(t *testing.T) {
	b := encodeTestRecord(t, "example.com", uint16(TypeA), 300, []byte{1, 2, 3, 4})
	off := 0
	_, err := ParseRecord(b[:len(b)-2], &off)
	assert.Error(t, err)
}

func TestIPv4AndIPv6Accessors(t *testing.T) {
	a := Record{Type: uint16(TypeA), Data: []byte{93, 184, 216, 34}}
	s, ok := a.IPv4()
	require.True(t, ok)
	assert.Equal(t, "93.184.216.34", s)

	aaaa := Record{Type: uint16(TypeAAAA), Data: make([]byte, 16)}
	_, ok = aaaa.IPv6()
	assert.True(t, ok)

	wrongType := Record{Type: uint16(TypeCNAME), Data: "x"}
	_, ok = wrongType.IPv4()
	assert.False(t, ok)
}

func TestParseRecordTXT(t *testing.T) {
	txt := append([]byte{byte(len("hello world"))}, []byte("hello world")...)
	b := encodeTestRecord(t, "example.com", uint16(TypeTXT), 0, txt)

	off := 0
	got, err := ParseRecord(b, &off)
	require.NoError(t, err)
	// TXT rdata is stored raw (length-prefixed character-string), not
	// re-decoded into a Go string by ParseRecord.
	assert.Equal(t, txt, got.Data)
}
