package match

import (
	"sync"
	"testing"
	"time"

	"drop4/internal/pkg/board"
	"drop4/internal/pkg/protocol"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

// recordingHost captures everything the engine sends so tests can assert on
// message order and delivery without a real registry.
type recordingHost struct {
	mu    sync.Mutex
	sent  map[string][]protocol.Message
	ended chan *Match
}

func newRecordingHost() *recordingHost {
	return &recordingHost{
		sent:  make(map[string][]protocol.Message),
		ended: make(chan *Match, 1),
	}
}

func (h *recordingHost) SendTo(nick string, msg protocol.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent[nick] = append(h.sent[nick], msg)
}

func (h *recordingHost) MatchEnded(m *Match) {
	h.ended <- m
}

func (h *recordingHost) messages(nick string) []protocol.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]protocol.Message, len(h.sent[nick]))
	copy(out, h.sent[nick])
	return out
}

func (h *recordingHost) last(t *testing.T, nick string) protocol.Message {
	t.Helper()
	msgs := h.messages(nick)
	require.NotEmpty(t, msgs, "no messages sent to %s", nick)
	return msgs[len(msgs)-1]
}

func (h *recordingHost) awaitEnd(t *testing.T) *Match {
	t.Helper()
	select {
	case m := <-h.ended:
		return m
	case <-time.After(time.Second):
		t.Fatal("match did not end")
		return nil
	}
}

const testTurnWait = time.Minute

func newTestMatch(host Host) *Match {
	m := New("alice", "bob", testTurnWait, host)
	m.Start()
	return m
}

func TestFirstMoverAndTurnFlip(t *testing.T) {
	h := newRecordingHost()
	m := newTestMatch(h)
	defer m.Abandon("alice")

	require.Equal(t, "alice", m.TurnHolder())
	require.NoError(t, m.ApplyMove("alice", 3))
	require.Equal(t, "bob", m.TurnHolder())
	require.NoError(t, m.ApplyMove("bob", 4))
	require.Equal(t, "alice", m.TurnHolder())

	// Both players saw both moves, in order.
	want := []protocol.Message{
		protocol.New(protocol.TagMovePlayed, "alice", "5", "3"),
		protocol.New(protocol.TagMovePlayed, "bob", "5", "4"),
	}
	require.Equal(t, want, h.messages("alice"))
	require.Equal(t, want, h.messages("bob"))
}

func TestMoveOutOfTurn(t *testing.T) {
	h := newRecordingHost()
	m := newTestMatch(h)
	defer m.Abandon("alice")

	err := m.ApplyMove("bob", 0)
	require.True(t, errors.Is(err, ErrNotYourTurn))
	require.Empty(t, h.messages("alice"))

	// A rejected move does not flip the turn.
	require.Equal(t, "alice", m.TurnHolder())
	require.NoError(t, m.ApplyMove("alice", 0))
}

func TestInvalidColumnKeepsTurn(t *testing.T) {
	h := newRecordingHost()
	m := newTestMatch(h)
	defer m.Abandon("alice")

	err := m.ApplyMove("alice", board.Cols)
	require.True(t, errors.Is(err, board.ErrInvalidColumn))
	require.Equal(t, "alice", m.TurnHolder())

	for i := 0; i < board.Rows; i++ {
		player := [2]string{"alice", "bob"}[i%2]
		require.NoError(t, m.ApplyMove(player, 6))
	}
	holder := m.TurnHolder()
	err = m.ApplyMove(holder, 6)
	require.True(t, errors.Is(err, board.ErrInvalidColumn))
	require.Equal(t, holder, m.TurnHolder())
}

func TestWinEndsMatch(t *testing.T) {
	h := newRecordingHost()
	m := newTestMatch(h)

	for _, col := range []int{3, 3, 4, 4, 5, 5} {
		require.NoError(t, m.ApplyMove(m.TurnHolder(), col))
	}
	require.NoError(t, m.ApplyMove("alice", 6))

	require.Same(t, m, h.awaitEnd(t))
	require.Equal(t, Won, m.State())

	// The winner hears MOVE, OUTCOME WIN, WINNING_TILES in that order.
	msgs := h.messages("alice")
	require.True(t, len(msgs) >= 3)
	tail := msgs[len(msgs)-3:]
	require.Equal(t, protocol.New(protocol.TagMovePlayed, "alice", "5", "6"), tail[0])
	require.Equal(t, protocol.TagOutcome, tail[1].Tag)
	require.Equal(t, "WIN", tail[1].Arg(0))
	require.Equal(t, protocol.New(protocol.TagWinningTiles,
		"5", "3", "5", "4", "5", "5", "5", "6"), tail[2])

	require.Equal(t, "LOSS", h.messages("bob")[len(h.messages("bob"))-2].Arg(0))

	// The board stays closed afterwards.
	err := m.ApplyMove("bob", 0)
	require.True(t, errors.Is(err, ErrMatchOver))
}

func TestDrawOnFullBoard(t *testing.T) {
	h := newRecordingHost()
	m := newTestMatch(h)

	// A full 42-move game in which neither player ever lines up four.
	cols := []int{
		4, 5, 3, 3, 6, 4, 4, 6, 1, 4, 5, 3, 4, 3,
		5, 0, 3, 4, 0, 5, 3, 0, 6, 0, 1, 0, 6, 5,
		0, 6, 5, 2, 6, 1, 2, 1, 2, 1, 2, 2, 1, 2,
	}
	for _, c := range cols {
		require.NoError(t, m.ApplyMove(m.TurnHolder(), c))
	}

	h.awaitEnd(t)
	require.Equal(t, Drawn, m.State())
	last := h.last(t, "alice")
	require.Equal(t, protocol.TagOutcome, last.Tag)
	require.Equal(t, "DRAW", last.Arg(0))
}

func TestTurnTimeoutForfeitsHolder(t *testing.T) {
	h := newRecordingHost()
	m := New("alice", "bob", 30*time.Millisecond, h)
	m.Start()

	h.awaitEnd(t)
	require.Equal(t, Forfeited, m.State())
	require.Equal(t, "LOSS", h.last(t, "alice").Arg(0))
	require.Equal(t, "WIN", h.last(t, "bob").Arg(0))
}

func TestDisconnectPausesTurnClock(t *testing.T) {
	h := newRecordingHost()
	m := New("alice", "bob", 60*time.Millisecond, h)
	m.Start()

	m.PlayerDisconnected("alice", time.Second)

	// The clock is held: well past the turn budget, no forfeit.
	time.Sleep(120 * time.Millisecond)
	require.Equal(t, AwaitingFirstMove, m.State())
	info := h.last(t, "bob")
	require.Equal(t, protocol.TagInfo, info.Tag)

	m.PlayerReconnected("alice")
	recovery := h.last(t, "alice")
	require.Equal(t, protocol.TagRecovery, recovery.Tag)
	require.Equal(t, "alice", recovery.Arg(0))
	require.Len(t, recovery.Args, 1+board.Rows*board.Cols)

	// Resumed from the remaining time, the clock now runs out.
	h.awaitEnd(t)
	require.Equal(t, Forfeited, m.State())
}

func TestRecoverySnapshotReflectsMoves(t *testing.T) {
	h := newRecordingHost()
	m := newTestMatch(h)
	defer m.Abandon("alice")

	require.NoError(t, m.ApplyMove("alice", 0))
	require.NoError(t, m.ApplyMove("bob", 6))

	rec := m.Recovery()
	require.Equal(t, "alice", rec.Arg(0))
	snapshot := rec.Args[1:]
	require.Equal(t, "1", snapshot[(board.Rows-1)*board.Cols])
	require.Equal(t, "2", snapshot[board.Rows*board.Cols-1])
}

func TestForfeitNotifiesBoth(t *testing.T) {
	h := newRecordingHost()
	m := newTestMatch(h)

	m.Forfeit("bob", "opponent did not reconnect in time")
	require.Same(t, m, h.awaitEnd(t))
	require.Equal(t, Forfeited, m.State())
	require.Equal(t, "WIN", h.last(t, "alice").Arg(0))
	require.Equal(t, "LOSS", h.last(t, "bob").Arg(0))

	// Terminal transitions are one-shot.
	m.Abandon("alice")
	require.Equal(t, Forfeited, m.State())
}

func TestMoveBeforeClockArmed(t *testing.T) {
	h := newRecordingHost()
	m := New("alice", "bob", testTurnWait, h)
	defer m.Abandon("alice")

	// A move racing match creation must find a playable match, not a nil
	// turn clock.
	require.NotPanics(t, func() {
		require.NoError(t, m.ApplyMove("alice", 3))
	})
	require.Equal(t, "bob", m.TurnHolder())
}

func TestMoveDuringOpponentGraceHoldsClock(t *testing.T) {
	h := newRecordingHost()
	m := New("alice", "bob", 50*time.Millisecond, h)
	m.Start()

	m.PlayerDisconnected("bob", time.Second)
	require.NoError(t, m.ApplyMove("alice", 0))

	// The turn flipped to the disconnected player; their clock stays held
	// for as long as the grace window is open, well past the turn budget.
	time.Sleep(150 * time.Millisecond)
	require.Equal(t, InProgress, m.State())
	require.Equal(t, "bob", m.TurnHolder())

	// Once back, the clock runs and the turn budget applies again.
	m.PlayerReconnected("bob")
	h.awaitEnd(t)
	require.Equal(t, Forfeited, m.State())
	require.Equal(t, "WIN", h.last(t, "alice").Arg(0))
}

func TestStaleTurnTimeoutIgnored(t *testing.T) {
	h := newRecordingHost()
	m := newTestMatch(h)
	defer m.Abandon("alice")

	m.mu.Lock()
	stale := m.turnClock
	m.mu.Unlock()

	require.NoError(t, m.ApplyMove("alice", 0))

	// A timeout that committed just before the move rearmed the clock
	// arrives late; it must not forfeit the player who just got the turn.
	m.onTurnTimeout(stale)
	require.Equal(t, InProgress, m.State())
	require.Equal(t, "bob", m.TurnHolder())
}

func TestOpponent(t *testing.T) {
	h := newRecordingHost()
	m := newTestMatch(h)
	defer m.Abandon("alice")

	require.Equal(t, "bob", m.Opponent("alice"))
	require.Equal(t, "alice", m.Opponent("bob"))
	require.Equal(t, "", m.Opponent("mallory"))
	require.Equal(t, [2]string{"alice", "bob"}, m.Players())
}
