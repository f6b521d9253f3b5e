package client

import (
	"bufio"
	"fmt"
	"net"
	"testing"

	"drop4/internal/pkg/protocol"

	"github.com/stretchr/testify/require"
)

// pipeClient wires a Client to an in-memory connection and returns the
// server end.
func pipeClient(t *testing.T) (*Client, net.Conn) {
	t.Helper()
	server, conn := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		conn.Close()
	})
	c, err := NewClient(WithServerAddr("test"))
	require.NoError(t, err)
	c.conn = conn
	c.scanner = bufio.NewScanner(conn)
	return c, server
}

func serverLines(t *testing.T, server net.Conn) <-chan string {
	t.Helper()
	lines := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(server)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	return lines
}

func TestRecvAnswersKeepAlive(t *testing.T) {
	c, server := pipeClient(t)
	received := serverLines(t, server)

	go func() {
		fmt.Fprintf(server, "PING\nOK\n")
	}()

	msg, err := c.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TagOK, msg.Tag)
	require.Equal(t, "PONG", <-received)
}

func TestRecvTagSkipsUnrelated(t *testing.T) {
	c, server := pipeClient(t)

	go func() {
		fmt.Fprintf(server, "ADD_CLIENT bob\nPLAYER_STATE bob ON\nLIST bob carol\n")
	}()

	msg, err := c.RecvTag(protocol.TagListReply)
	require.NoError(t, err)
	require.Equal(t, []string{"bob", "carol"}, msg.Args)
}

func TestRecvTagSurfacesServerError(t *testing.T) {
	c, server := pipeClient(t)

	go func() {
		fmt.Fprintf(server, "ERR BAD_STATE no request to cancel\n")
	}()

	_, err := c.RecvTag(protocol.TagOK)
	require.ErrorContains(t, err, "BAD_STATE")
}

func TestLogin(t *testing.T) {
	c, server := pipeClient(t)
	received := serverLines(t, server)

	go func() {
		fmt.Fprintf(server, "OK\n")
	}()

	require.NoError(t, c.Login("alice"))
	require.Equal(t, "NICK alice", <-received)
}

func TestNewClientRequiresAddress(t *testing.T) {
	_, err := NewClient()
	require.Error(t, err)
}
