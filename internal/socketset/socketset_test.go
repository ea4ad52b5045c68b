package socketset

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAndCloseLoopback(t *testing.T) {
	set, err := Open([]string{"127.0.0.1"}, 0, 0)
	require.NoError(t, err)
	defer set.Close()

	require.Len(t, set.All(), 1)
	assert.False(t, set.All()[0].IsIPv6)
}

func TestOpenIPv6Loopback(t *testing.T) {
	set, err := Open([]string{"::1"}, 0, 0)
	require.NoError(t, err)
	defer set.Close()

	require.Len(t, set.All(), 1)
	assert.True(t, set.All()[0].IsIPv6)
}

func TestChooseReturnsMatchingFamily(t *testing.T) {
	set, err := Open([]string{"127.0.0.1", "::1"}, 0, 0)
	require.NoError(t, err)
	defer set.Close()

	v4, ok := set.Choose(false)
	require.True(t, ok)
	assert.False(t, v4.IsIPv6)

	v6, ok := set.Choose(true)
	require.True(t, ok)
	assert.True(t, v6.IsIPv6)
}

func TestChooseFailsForUnboundFamily(t *testing.T) {
	set, err := Open([]string{"127.0.0.1"}, 0, 0)
	require.NoError(t, err)
	defer set.Close()

	_, ok := set.Choose(true)
	assert.False(t, ok)
}

func TestSendToAndRecvFromLoopback(t *testing.T) {
	recvSet, err := Open([]string{"127.0.0.1"}, 0, 0)
	require.NoError(t, err)
	defer recvSet.Close()

	sendSet, err := Open([]string{"127.0.0.1"}, 0, 0)
	require.NoError(t, err)
	defer sendSet.Close()

	recvSock := recvSet.All()[0]
	sendSock := sendSet.All()[0]

	dest := netip.MustParseAddrPort(recvSock.Conn.LocalAddr().String())
	payload := []byte("hello")

	require.NoError(t, SendTo(sendSock, dest, payload))

	buf := make([]byte, 512)
	var n int
	var from netip.AddrPort
	for i := 0; i < 1000; i++ {
		n, from, err = RecvFrom(recvSock, buf)
		if err == nil {
			break
		}
	}
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
	assert.Equal(t, sendSock.Conn.LocalAddr().(*net.UDPAddr).Port, int(from.Port()))
}
