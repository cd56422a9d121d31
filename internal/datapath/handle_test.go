package datapath

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingReceiver struct {
	received chan []byte
}

func (r *recordingReceiver) OnReceive(local, remote *net.UDPAddr, data []byte) {
	r.received <- data
}

func (r *recordingReceiver) OnUnreachable(remote *net.UDPAddr) {}

func TestOpen_BindsEphemeralPort(t *testing.T) {
	h, err := Open(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, nil)
	require.NoError(t, err)
	defer h.Close()

	require.NotZero(t, h.CanonicalLocalAddr().Port)
}

func TestOpen_SendReceiveRoundTrip(t *testing.T) {
	recv := &recordingReceiver{received: make(chan []byte, 1)}
	server, err := Open(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, recv)
	require.NoError(t, err)
	defer server.Close()

	client, err := Open(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, nil)
	require.NoError(t, err)
	defer client.Close()

	payload := []byte("hello qcore")
	_, err = client.WriteTo(payload, server.CanonicalLocalAddr())
	require.NoError(t, err)

	select {
	case got := <-recv.received:
		require.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for datagram")
	}
}

func TestOpenIOUring_UnavailableWithoutBuildTag(t *testing.T) {
	_, err := OpenIOUring(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)}, nil)
	if err == nil {
		t.Skip("io_uring backend enabled in this build")
	}
}
