package hub

import (
	"strings"

	"drop4/internal/pkg/board"
	"drop4/internal/pkg/log"
	"drop4/internal/pkg/match"
	"drop4/internal/pkg/protocol"
	"drop4/internal/pkg/session"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const helpText = "NICK <name> | LIST | RQ <nick> | RQ_CANCEL | RPL <YES|NO> | MOVE <column> | SAY <text> | WHOAMI | STATE | HELP | PING | QUIT"

// HandleLine parses and dispatches one line received from a session's
// reader task. Protocol violations are answered with an ERR reply and
// never alter session state.
func (h *Hub) HandleLine(sess *session.Session, line string) {
	msg, err := protocol.ParseClient(line)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"nick": sess.Nick(),
			"line": line,
		}).WithError(err).Warn("malformed message")
		_ = sess.SendErr(protocol.CodeMalformed, err.Error())
		return
	}
	logger.WithField("nick", sess.Nick()).WithFields(log.MessageToFields(msg)).Debug("received message")

	switch msg.Tag {
	case protocol.TagPing:
		_ = sess.Send(protocol.New(protocol.TagPong))
	case protocol.TagPong:
		sess.MarkPong()
	case protocol.TagHelp:
		_ = sess.Send(protocol.New(protocol.TagInfo, strings.Fields(helpText)...))
	case protocol.TagWhoami:
		_ = sess.Send(protocol.New(protocol.TagInfo, orUnset(sess.Nick())))
	case protocol.TagGetState:
		_ = sess.Send(protocol.New(protocol.TagInfo, sess.State().String()))
	case protocol.TagQuit:
		_ = sess.Send(protocol.New(protocol.TagOK))
		h.Release(sess)
	case protocol.TagNick:
		h.handleNick(sess, msg.Arg(0))
	case protocol.TagList:
		h.handleList(sess)
	case protocol.TagSay:
		h.handleSay(sess, msg)
	case protocol.TagRequest:
		h.handleRequest(sess, msg.Arg(0))
	case protocol.TagCancel:
		h.handleCancel(sess)
	case protocol.TagReply:
		h.handleReply(sess, msg.Arg(0) == protocol.ReplyAccept)
	case protocol.TagMove:
		h.handleMove(sess, msg)
	}
}

// handleNick negotiates a session's nickname. A nickname matching a player
// inside their reconnection grace window puts the new connection back into
// that player's match.
func (h *Hub) handleNick(sess *session.Session, nick string) {
	if sess.State() != session.AwaitingNick {
		_ = sess.SendErr(protocol.CodeBadState, "nickname already negotiated")
		return
	}

	h.mu.Lock()
	existing := h.byNick[nick]
	if existing != nil && existing.State() != session.DisconnectedGrace {
		h.mu.Unlock()
		logger.WithField("nick", nick).Warn("nickname already taken")
		_ = sess.SendErr(protocol.CodeNickTaken, "nickname is already taken")
		return
	}
	h.byNick[nick] = sess
	if clock := h.nickClocks[sess.ID()]; clock != nil {
		clock.Stop()
		delete(h.nickClocks, sess.ID())
	}
	if existing != nil {
		// Retire the grace-window placeholder; the nick now belongs to
		// the fresh connection.
		delete(h.sessions, existing.ID())
		existing.SetState(session.Terminated)
	}
	h.mu.Unlock()

	sess.SetNick(nick)
	_ = sess.Send(protocol.New(protocol.TagOK))

	if existing != nil {
		h.rejoinMatch(sess, nick)
	} else {
		sess.SetState(session.Idle)
		h.Broadcast(protocol.New(protocol.TagClientJoined, nick), nick)
		h.sendLobbySnapshot(sess)
		logger.WithFields(logrus.Fields{
			"id":   sess.ID().String(),
			"nick": nick,
		}).Info("nickname accepted")
	}
	go h.superviseLiveness(sess)
}

// rejoinMatch puts a reconnected player back into their held match.
func (h *Hub) rejoinMatch(sess *session.Session, nick string) {
	h.graceMu.Lock()
	w := h.waiting[nick]
	delete(h.waiting, nick)
	h.graceMu.Unlock()

	h.matchMu.Lock()
	m := h.matches[nick]
	h.matchMu.Unlock()

	if w != nil {
		w.clock.Stop()
	}
	if m == nil {
		// The match resolved while the client was reconnecting.
		sess.SetState(session.Idle)
		h.Broadcast(protocol.New(protocol.TagClientJoined, nick), nick)
		h.sendLobbySnapshot(sess)
		return
	}

	opponent := m.Opponent(nick)
	sess.SetState(session.InMatch)
	sess.SetOpponent(opponent)
	yourTurn := protocol.ReplyReject
	if m.TurnHolder() == nick {
		yourTurn = protocol.ReplyAccept
	}
	_ = sess.Send(protocol.New(protocol.TagGameStart, opponent, yourTurn))
	m.PlayerReconnected(nick)
	h.notifyAvailability(nick, false)
	logger.WithFields(logrus.Fields{
		"nick":     nick,
		"opponent": opponent,
	}).Info("player rejoined their match")
}

// sendLobbySnapshot tells a freshly joined client who is online and who is
// busy.
func (h *Hub) sendLobbySnapshot(sess *session.Session) {
	nick := sess.Nick()
	_ = sess.Send(protocol.New(protocol.TagListReply, h.ListOnline(nick)...))

	h.mu.Lock()
	busy := make([]string, 0, len(h.byNick))
	for other, s := range h.byNick {
		if other == nick {
			continue
		}
		switch s.State() {
		case session.RequestSent, session.RequestReceived, session.InMatch, session.DisconnectedGrace:
			busy = append(busy, other)
		}
	}
	h.mu.Unlock()

	for _, other := range busy {
		_ = sess.Send(protocol.New(protocol.TagPlayerState, other, "OFF"))
	}
}

func (h *Hub) handleList(sess *session.Session) {
	if sess.State() < session.Idle || sess.State() == session.Terminated {
		_ = sess.SendErr(protocol.CodeBadState, "set your nickname first")
		return
	}
	_ = sess.Send(protocol.New(protocol.TagListReply, h.ListOnline(sess.Nick())...))
}

func (h *Hub) handleSay(sess *session.Session, msg protocol.Message) {
	if sess.State() < session.Idle || sess.State() == session.Terminated {
		_ = sess.SendErr(protocol.CodeBadState, "set your nickname first")
		return
	}
	args := append([]string{sess.Nick()}, msg.Args...)
	h.Broadcast(protocol.New(protocol.TagSaid, args...), sess.Nick())
}

func (h *Hub) handleRequest(sess *session.Session, target string) {
	if err := h.RequestMatch(sess, target); err != nil {
		code := protocol.CodeInvalidTarget
		if errors.Is(err, ErrDuplicateRequest) {
			code = protocol.CodeDuplicateRQ
		}
		_ = sess.SendErr(code, err.Error())
		return
	}
	_ = sess.Send(protocol.New(protocol.TagOK))
}

func (h *Hub) handleCancel(sess *session.Session) {
	if sess.State() != session.RequestSent {
		_ = sess.SendErr(protocol.CodeBadState, "no request to cancel")
		return
	}
	if err := h.CancelRequest(sess); err != nil {
		_ = sess.SendErr(protocol.CodeBadState, err.Error())
		return
	}
	_ = sess.Send(protocol.New(protocol.TagOK))
}

func (h *Hub) handleReply(sess *session.Session, accept bool) {
	if sess.State() != session.RequestReceived {
		_ = sess.SendErr(protocol.CodeBadState, "no request to reply to")
		return
	}
	if err := h.RespondMatch(sess, accept); err != nil {
		_ = sess.SendErr(protocol.CodeBadState, err.Error())
		return
	}
	if !accept {
		_ = sess.Send(protocol.New(protocol.TagOK))
	}
}

func (h *Hub) handleMove(sess *session.Session, msg protocol.Message) {
	if sess.State() != session.InMatch {
		_ = sess.SendErr(protocol.CodeBadState, "you are not in a match")
		return
	}
	col, err := msg.Column()
	if err != nil {
		_ = sess.SendErr(protocol.CodeMalformed, "column is not a number")
		return
	}
	nick := sess.Nick()
	h.matchMu.Lock()
	m := h.matches[nick]
	h.matchMu.Unlock()
	if m == nil {
		_ = sess.SendErr(protocol.CodeBadState, "you are not in a match")
		return
	}
	switch err := m.ApplyMove(nick, col); {
	case err == nil:
	case errors.Is(err, match.ErrNotYourTurn):
		_ = sess.SendErr(protocol.CodeNotYourTurn, "it is not your turn")
	case errors.Is(err, board.ErrInvalidColumn):
		_ = sess.SendErr(protocol.CodeInvalidColumn, err.Error())
	default:
		_ = sess.SendErr(protocol.CodeBadState, err.Error())
	}
}

func orUnset(nick string) string {
	if nick == "" {
		return "unset"
	}
	return nick
}
