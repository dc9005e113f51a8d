package transport

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

// pipeConns returns a connected (client, server)-role pair of WSConn wired
// over an in-memory net.Pipe, bypassing the HTTP upgrade handshake so
// framing itself can be exercised directly.
func pipeConns() (client, server *WSConn) {
	c1, c2 := net.Pipe()
	client = &WSConn{conn: c1, rw: bufio.NewReadWriter(bufio.NewReader(c1), bufio.NewWriter(c1)), isClient: true}
	server = &WSConn{conn: c2, rw: bufio.NewReadWriter(bufio.NewReader(c2), bufio.NewWriter(c2)), isClient: false}
	return client, server
}

func TestWSConn_ClientToServer_MaskedFrameRoundTrips(t *testing.T) {
	client, server := pipeConns()
	defer client.conn.Close()
	defer server.conn.Close()

	done := make(chan struct{})
	var got []byte
	var err error
	go func() {
		got, err = server.ReadMessage()
		close(done)
	}()

	payload := []byte("hello from client")
	require.NoError(t, client.WriteMessage(payload))
	<-done
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWSConn_ServerToClient_UnmaskedFrameRoundTrips(t *testing.T) {
	client, server := pipeConns()
	defer client.conn.Close()
	defer server.conn.Close()

	done := make(chan struct{})
	var got []byte
	var err error
	go func() {
		got, err = client.ReadMessage()
		close(done)
	}()

	payload := []byte("hello from server")
	require.NoError(t, server.WriteMessage(payload))
	<-done
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestWSConn_LargeMessage_UsesExtendedLength(t *testing.T) {
	client, server := pipeConns()
	defer client.conn.Close()
	defer server.conn.Close()

	payload := make([]byte, 70000) // above 0xFFFF: forces the 64-bit extended-length branch
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan struct{})
	var got []byte
	var err error
	go func() {
		got, err = server.ReadMessage()
		close(done)
	}()

	require.NoError(t, client.WriteMessage(payload))
	<-done
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
