// Package session holds the server-side state for one connected client.
package session

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"drop4/internal/pkg/protocol"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// writeTimeout bounds a single send so a stalled peer cannot wedge the
// sending task.
const writeTimeout = 5 * time.Second

// State is the position of a session in its connection state machine.
type State int

// Session states.
const (
	// Connecting: socket open, handshake not started.
	Connecting State = iota
	// AwaitingNick: waiting for the client to negotiate a nickname.
	AwaitingNick
	// Idle: online, not involved in a request or match.
	Idle
	// RequestSent: issued a game request, awaiting the reply.
	RequestSent
	// RequestReceived: holding an unanswered incoming request.
	RequestReceived
	// InMatch: bound to a running match.
	InMatch
	// DisconnectedGrace: transport lost while InMatch, reconnection
	// window open.
	DisconnectedGrace
	// Terminated: final.
	Terminated
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case AwaitingNick:
		return "AWAITING_NICK"
	case Idle:
		return "IDLE"
	case RequestSent:
		return "REQUEST_SENT"
	case RequestReceived:
		return "REQUEST_RECEIVED"
	case InMatch:
		return "IN_MATCH"
	case DisconnectedGrace:
		return "DISCONNECTED_GRACE"
	case Terminated:
		return "TERMINATED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrNotAttached indicates a send to a session whose transport is gone.
var ErrNotAttached = errors.New("session has no connection")

// Session is the server-side state machine for one client. The reader task
// owns the connection's read side exclusively; Send may be called from any
// task and is safe to invoke concurrently with the reader.
type Session struct {
	id uuid.UUID

	mu            sync.Mutex
	conn          net.Conn
	nick          string
	state         State
	opponent      string
	gotPong       bool
	disconnecting bool

	sendMu sync.Mutex
}

// New creates a session for a freshly accepted connection.
func New(conn net.Conn) *Session {
	return &Session{
		id:    uuid.New(),
		conn:  conn,
		state: Connecting,
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Nick returns the negotiated nickname, or the empty string before
// negotiation.
func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

// SetNick records the negotiated nickname.
func (s *Session) SetNick(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nick = nick
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetState moves the session to the given state.
func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Opponent returns the nickname of the peer in an active or pending match.
// It is a lookup key only; the match engine owns the relationship.
func (s *Session) Opponent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opponent
}

// SetOpponent records the nickname of the match peer.
func (s *Session) SetOpponent(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opponent = nick
}

// MarkPong records a received keep-alive reply.
func (s *Session) MarkPong() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gotPong = true
}

// ConsumePong reports whether a keep-alive reply arrived since the last
// probe, clearing the flag.
func (s *Session) ConsumePong() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	got := s.gotPong
	s.gotPong = false
	return got
}

// MarkDisconnected claims the right to handle this session's transport
// loss. The reader task and the keep-alive supervisor can both observe a
// dead connection; only the first caller gets true, so the resulting state
// transition happens exactly once.
func (s *Session) MarkDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnecting || s.state == Terminated {
		return false
	}
	s.disconnecting = true
	return true
}

// Send writes one protocol line to the client.
func (s *Session) Send(msg protocol.Message) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errors.Wrapf(ErrNotAttached, "send %s failed", msg.Tag)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return errors.Wrap(err, "set write deadline failed")
	}
	if _, err := fmt.Fprintf(conn, "%s\n", msg.Serialize()); err != nil {
		return errors.Wrapf(err, "send %s failed", msg.Tag)
	}
	return nil
}

// SendErr sends an ERR reply with the given code and detail text.
func (s *Session) SendErr(code, text string) error {
	return s.Send(protocol.New(protocol.TagErr, append([]string{code}, strings.Fields(text)...)...))
}

// Detach drops the connection handle, e.g. when the transport is lost but
// the session lives on through a grace window.
func (s *Session) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = nil
}

// Close terminates the transport if still attached.
func (s *Session) Close() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

// RemoteAddr describes the peer endpoint for logging.
func (s *Session) RemoteAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return "detached"
	}
	return s.conn.RemoteAddr().String()
}
