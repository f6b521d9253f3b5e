// Package match runs one Connect-Four match between two paired sessions.
//
// The engine owns the board and turn state behind a single lock, so moves
// on a match are never evaluated concurrently. It messages players through
// its Host by nickname only; the registry owns the nickname-to-session
// binding, which is what lets a player drop and reconnect mid-match without
// the engine ever holding a dead connection.
package match

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"drop4/internal/pkg/board"
	"drop4/internal/pkg/protocol"
	"drop4/internal/pkg/timer"

	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Host is the registry surface the engine reports into.
type Host interface {
	// SendTo delivers a message to the session currently bound to nick.
	// Delivery failures are the host's problem; the engine fires and
	// forgets.
	SendTo(nick string, msg protocol.Message)
	// MatchEnded tells the host the match reached a terminal state and
	// its bindings can be torn down.
	MatchEnded(m *Match)
}

// State is the lifecycle position of a match.
type State int

// Match states. Won, Drawn, Forfeited and Abandoned are terminal.
const (
	AwaitingFirstMove State = iota
	InProgress
	Won
	Drawn
	Forfeited
	Abandoned
)

func (s State) String() string {
	switch s {
	case AwaitingFirstMove:
		return "AWAITING_FIRST_MOVE"
	case InProgress:
		return "IN_PROGRESS"
	case Won:
		return "WON"
	case Drawn:
		return "DRAWN"
	case Forfeited:
		return "FORFEITED"
	case Abandoned:
		return "ABANDONED"
	}
	return "UNKNOWN"
}

// outbound is a message queued under the match lock and flushed after it is
// released, so the engine never holds its lock across a send.
type outbound struct {
	nick string
	msg  protocol.Message
}

// Match is one Connect-Four game between two players. players[0] moves
// first.
type Match struct {
	host     Host
	turnWait time.Duration

	mu        sync.Mutex
	b         board.Board
	players   [2]string
	turn      int
	state     State
	turnClock *timer.Countdown
	// away is the player currently inside a reconnection grace window,
	// or empty. A turn clock armed for the away player stays paused
	// until they return.
	away string
}

// New creates a match between p1 (first to move) and p2. The turn clock is
// not armed until Start is called.
func New(p1, p2 string, turnWait time.Duration, host Host) *Match {
	return &Match{
		host:     host,
		turnWait: turnWait,
		players:  [2]string{p1, p2},
		state:    AwaitingFirstMove,
	}
}

// Start arms the first turn clock.
func (m *Match) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armTurnClock()
	logger.WithFields(logrus.Fields{
		"player1": m.players[0],
		"player2": m.players[1],
	}).Info("match started")
}

// Players returns both player nicknames, first mover first.
func (m *Match) Players() [2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players
}

// Opponent returns the other player's nickname, or the empty string if nick
// is not part of this match.
func (m *Match) Opponent(nick string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opponentLocked(nick)
}

// State returns the current match state.
func (m *Match) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// TurnHolder returns the nickname whose move is expected next.
func (m *Match) TurnHolder() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.players[m.turn]
}

// ApplyMove validates and applies one move by nick into col. On success the
// move is broadcast to both players, win/draw detection runs, and the turn
// clock is rearmed for the opponent. A detected terminal condition ends the
// match and notifies both players before the method returns.
func (m *Match) ApplyMove(nick string, col int) error {
	m.mu.Lock()
	if m.state != AwaitingFirstMove && m.state != InProgress {
		m.mu.Unlock()
		return ErrMatchOver
	}
	if m.players[m.turn] != nick {
		m.mu.Unlock()
		return ErrNotYourTurn
	}
	row, err := m.b.Drop(col, m.cellLocked(nick))
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if m.turnClock != nil {
		m.turnClock.Stop()
	}
	m.state = InProgress

	outs := m.toBothLocked(protocol.New(protocol.TagMovePlayed,
		nick, strconv.Itoa(row), strconv.Itoa(col)))

	ended := false
	if win := m.b.WinningLine(row, col); win != nil {
		ended = true
		m.state = Won
		outs = append(outs, m.resultLocked(nick, "four in a row")...)
		outs = append(outs, m.toBothLocked(winningTilesMessage(win))...)
	} else if m.b.Full() {
		// Win detection has precedence on the filling move; only a
		// winless full board is a draw.
		ended = true
		m.state = Drawn
		outs = append(outs, m.toBothLocked(outcomeMessage("DRAW", "the board is full"))...)
	} else {
		m.turn = 1 - m.turn
		m.armTurnClock()
	}
	m.mu.Unlock()

	m.flush(outs)
	if ended {
		m.host.MatchEnded(m)
	}
	return nil
}

// PlayerDisconnected holds the turn clock while nick's reconnection grace
// window is open. The clock keeps its remaining time.
func (m *Match) PlayerDisconnected(nick string, grace time.Duration) {
	m.mu.Lock()
	if !m.activeLocked() {
		m.mu.Unlock()
		return
	}
	m.away = nick
	if m.turnClock != nil {
		m.turnClock.Pause()
	}
	opponent := m.opponentLocked(nick)
	m.mu.Unlock()

	m.host.SendTo(opponent, infoMessage(
		nick+" lost their connection, holding the game for "+grace.String()))
	logger.WithField("nick", nick).Info("turn clock paused for disconnected player")
}

// PlayerReconnected resumes the held turn clock from its remaining time and
// replays the current game state to the returning player.
func (m *Match) PlayerReconnected(nick string) {
	m.mu.Lock()
	if !m.activeLocked() {
		m.mu.Unlock()
		return
	}
	if m.away == nick {
		m.away = ""
	}
	if m.turnClock != nil {
		m.turnClock.Resume()
	}
	outs := []outbound{
		{nick: nick, msg: m.recoveryLocked()},
		{nick: m.opponentLocked(nick), msg: infoMessage(nick + " is back in the game")},
	}
	m.mu.Unlock()

	m.flush(outs)
	logger.WithField("nick", nick).Info("turn clock resumed for reconnected player")
}

// Forfeit ends the match against nick, e.g. when the reconnection grace
// window expired.
func (m *Match) Forfeit(nick, reason string) {
	m.endAgainst(nick, Forfeited, reason)
}

// Abandon ends the match immediately because nick's session terminated
// outright, notifying the remaining player.
func (m *Match) Abandon(nick string) {
	m.endAgainst(nick, Abandoned, "opponent left the game")
}

func (m *Match) endAgainst(loser string, state State, reason string) {
	m.mu.Lock()
	if !m.activeLocked() {
		m.mu.Unlock()
		return
	}
	outs := m.endLocked(loser, state, reason)
	m.mu.Unlock()

	m.flush(outs)
	m.host.MatchEnded(m)
	logger.WithFields(logrus.Fields{
		"loser":  loser,
		"state":  state.String(),
		"reason": reason,
	}).Info("match ended")
}

// endLocked moves the match to a terminal state and builds the OUTCOME
// pair. Callers must hold mu.
func (m *Match) endLocked(loser string, state State, reason string) []outbound {
	if m.turnClock != nil {
		m.turnClock.Stop()
	}
	m.state = state
	return m.resultLocked(m.opponentLocked(loser), reason)
}

// onTurnTimeout fires when the turn holder did not move in time; the match
// is forfeited against them. The fired clock identifies itself: a fire that
// committed just before a move rearmed the clock would otherwise forfeit
// the player the turn has just flipped to.
func (m *Match) onTurnTimeout(clock *timer.Countdown) {
	m.mu.Lock()
	if !m.activeLocked() || m.turnClock != clock {
		m.mu.Unlock()
		return
	}
	slow := m.players[m.turn]
	outs := m.endLocked(slow, Forfeited, "turn time expired")
	m.mu.Unlock()

	m.flush(outs)
	m.host.MatchEnded(m)
	logger.WithFields(logrus.Fields{
		"loser":  slow,
		"reason": "turn time expired",
	}).Info("match ended")
}

// armTurnClock replaces the turn clock with a fresh full-duration one. The
// clock for a player inside their reconnection grace window is created
// held and only starts running when they return. Callers must hold mu.
func (m *Match) armTurnClock() {
	if m.turnClock != nil {
		m.turnClock.Stop()
	}
	var clock *timer.Countdown
	clock = timer.New(m.turnWait, func() { m.onTurnTimeout(clock) })
	m.turnClock = clock
	if m.players[m.turn] != m.away {
		clock.Start()
	}
}

// TurnRemaining reports the time left on the current turn clock.
func (m *Match) TurnRemaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.turnClock == nil {
		return 0
	}
	return m.turnClock.Remaining()
}

// Recovery returns the board snapshot message sent to a reconnecting
// player.
func (m *Match) Recovery() protocol.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoveryLocked()
}

func (m *Match) recoveryLocked() protocol.Message {
	args := append([]string{m.players[m.turn]}, m.b.Snapshot()...)
	return protocol.New(protocol.TagRecovery, args...)
}

func (m *Match) activeLocked() bool {
	return m.state == AwaitingFirstMove || m.state == InProgress
}

func (m *Match) opponentLocked(nick string) string {
	switch nick {
	case m.players[0]:
		return m.players[1]
	case m.players[1]:
		return m.players[0]
	}
	return ""
}

func (m *Match) cellLocked(nick string) board.Cell {
	if nick == m.players[0] {
		return board.PlayerOne
	}
	return board.PlayerTwo
}

// resultLocked builds the per-player OUTCOME pair for a match won by
// winner. Callers must hold mu.
func (m *Match) resultLocked(winner, reason string) []outbound {
	loser := m.opponentLocked(winner)
	return []outbound{
		{nick: winner, msg: outcomeMessage("WIN", reason)},
		{nick: loser, msg: outcomeMessage("LOSS", reason)},
	}
}

func (m *Match) toBothLocked(msg protocol.Message) []outbound {
	return []outbound{
		{nick: m.players[0], msg: msg},
		{nick: m.players[1], msg: msg},
	}
}

func (m *Match) flush(outs []outbound) {
	for _, o := range outs {
		m.host.SendTo(o.nick, o.msg)
	}
}

func winningTilesMessage(win []board.Pos) protocol.Message {
	args := make([]string, 0, len(win)*2)
	for _, p := range win {
		args = append(args, strconv.Itoa(p.Row), strconv.Itoa(p.Col))
	}
	return protocol.New(protocol.TagWinningTiles, args...)
}

func infoMessage(text string) protocol.Message {
	return protocol.New(protocol.TagInfo, strings.Fields(text)...)
}

func outcomeMessage(result, reason string) protocol.Message {
	return protocol.New(protocol.TagOutcome, append([]string{result}, strings.Fields(reason)...)...)
}
