package dns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trailing dot removed", "Example.COM.", "example.com"},
		{"no trailing dot", "Example.COM", "example.com"},
		{"already normalized", "example.com", "example.com"},
		{"root", ".", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeName(tt.in))
		})
	}
}

func TestEncodeDecodeNameRoundTrip(t *testing.T) {
	names := []string{"example.com", "www.example.com", "a.b.c.d.example.org"}
	for _, n := range names {
		t.Run(n, func(t *testing.T) {
			encoded, err := EncodeName(n)
			require.NoError(t, err)

			off := 0
			decoded, err := DecodeName(encoded, &off)
			require.NoError(t, err)
			assert.Equal(t, n, decoded)
			assert.Equal(t, len(encoded), off)
		})
	}
}

func TestEncodeNameRejectsEmptyLabel(t *testing.T) {
	_, err := EncodeName("a..b")
	assert.Error(t, err)
}

func TestEncodeNameRejectsOversizedLabel(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	_, err := EncodeName(string(long) + ".com")
	assert.Error(t, err)
}

func TestDecodeNameFollowsCompressionPointer(t *testing.T) {
	// Message: [example.com at offset 0][www + pointer to offset 0, at offset 13]
	base, err := EncodeName("example.com")
	require.NoError(t, err)

	msg := append([]byte{}, base...)
	pointerOff := len(msg)
	// www + pointer to offset 0
	msg = append(msg, 3, 'w', 'w', 'w')
	msg = append(msg, 0xC0, 0x00)

	off := pointerOff
	decoded, err := DecodeName(msg, &off)
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", decoded)
}

func TestDecodeNameDetectsCompressionLoop(t *testing.T) {
	msg := []byte{0xC0, 0x00} // points at itself
	off := 0
	_, err := DecodeName(msg, &off)
	assert.Error(t, err)
}
