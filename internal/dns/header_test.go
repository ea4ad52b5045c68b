package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderMarshalParseRoundTrip(t *testing.T) {
	h := Header{ID: 0xBEEF, Flags: RDFlag, QDCount: 1, ANCount: 2, NSCount: 0, ARCount: 0}
	b, err := h.Marshal()
	require.NoError(t, err)
	assert.Len(t, b, HeaderSize)

	off := 0
	got, err := ParseHeader(b, &off)
	require.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, HeaderSize, off)
}

func TestParseHeaderTruncated(t *testing.T) {
	off := 0
	_, err := ParseHeader(make([]byte, HeaderSize-1), &off)
	assert.Error(t, err)
}

func TestRCodeFromFlags(t *testing.T) {
	tests := []struct {
		flags uint16
		want  RCode
	}{
		{0x0000, RCodeNoError},
		{0x0002, RCodeServFail},
		{0x0003, RCodeNXDomain},
		{0x0005, RCodeRefused},
		{RDFlag | 0x0005, RCodeRefused},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RCodeFromFlags(tt.flags))
	}
}

func TestParseRCodeAcceptsKnownNames(t *testing.T) {
	for _, name := range []string{"NOERROR", "FORMERR", "SERVFAIL", "NXDOMAIN", "NOTIMP", "REFUSED"} {
		rcode, err := ParseRCode(name)
		require.NoError(t, err)
		_ = rcode
	}
	rcode, err := ParseRCode("refused")
	require.NoError(t, err)
	assert.Equal(t, RCodeRefused, rcode)
}

func TestParseRCodeRejectsUnknown(t *testing.T) {
	_, err := ParseRCode("BOGUS")
	assert.Error(t, err)
}
