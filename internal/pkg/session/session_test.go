package session

import (
	"bufio"
	"net"
	"testing"

	"drop4/internal/pkg/protocol"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newPipeSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() {
		server.Close()
		client.Close()
	})
	return New(server), client
}

func TestSendWritesOneLine(t *testing.T) {
	sess, client := newPipeSession(t)

	lines := make(chan string, 2)
	go func() {
		sc := bufio.NewScanner(client)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	require.NoError(t, sess.Send(protocol.New(protocol.TagGameStart, "bob", "YES")))
	require.Equal(t, "GAME_START bob YES", <-lines)

	require.NoError(t, sess.SendErr(protocol.CodeBadState, "not in a match"))
	require.Equal(t, "ERR BAD_STATE not in a match", <-lines)
}

func TestSendAfterDetach(t *testing.T) {
	sess, _ := newPipeSession(t)
	sess.Detach()
	err := sess.Send(protocol.New(protocol.TagOK))
	require.True(t, errors.Is(err, ErrNotAttached))
	require.Equal(t, "detached", sess.RemoteAddr())
}

func TestPongFlagIsConsumed(t *testing.T) {
	sess, _ := newPipeSession(t)
	require.False(t, sess.ConsumePong())
	sess.MarkPong()
	require.True(t, sess.ConsumePong())
	require.False(t, sess.ConsumePong())
}

func TestMarkDisconnectedIsOneShot(t *testing.T) {
	sess, _ := newPipeSession(t)
	sess.SetState(InMatch)
	require.True(t, sess.MarkDisconnected())
	require.False(t, sess.MarkDisconnected())
}

func TestMarkDisconnectedAfterTermination(t *testing.T) {
	sess, _ := newPipeSession(t)
	sess.SetState(Terminated)
	require.False(t, sess.MarkDisconnected())
}

func TestCloseIsIdempotent(t *testing.T) {
	sess, _ := newPipeSession(t)
	sess.Close()
	sess.Close()
}

func TestStateStrings(t *testing.T) {
	require.Equal(t, "IDLE", Idle.String())
	require.Equal(t, "DISCONNECTED_GRACE", DisconnectedGrace.String())
	require.Equal(t, "State(99)", State(99).String())
}
