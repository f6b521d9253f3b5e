// Package hub implements the session registry.
//
// The hub owns every client session, enforces the client capacity, routes
// directed and broadcast messages, matches game requests between sessions
// and supervises keep-alive probing and reconnection grace windows. It is
// the single authority allowed to create or destroy match engines and to
// mutate cross-session relationships; each mutable structure is guarded by
// its own lock and no operation holds two of them at once.
package hub

import (
	"net"
	"sync"
	"time"

	"drop4/internal/pkg/match"
	"drop4/internal/pkg/protocol"
	"drop4/internal/pkg/session"
	"drop4/internal/pkg/timer"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Timeouts are the server-configured waiting periods.
type Timeouts struct {
	// NickWait is how long a fresh connection may take to negotiate a
	// nickname.
	NickWait time.Duration `validate:"required"`
	// PingReply is how long a session may take to answer a keep-alive
	// probe; it is also the probing period.
	PingReply time.Duration `validate:"required"`
	// ReplyWait is how long a game request stays open for an answer.
	ReplyWait time.Duration `validate:"required"`
	// TurnWait is the maximum think-time per move.
	TurnWait time.Duration `validate:"required"`
	// GraceWait is the reconnection window after a mid-match transport
	// loss.
	GraceWait time.Duration `validate:"required"`
}

// DefaultTimeouts mirror the thresholds of the reference deployment.
var DefaultTimeouts = Timeouts{
	NickWait:  10 * time.Second,
	PingReply: 6 * time.Second,
	ReplyWait: 30 * time.Second,
	TurnWait:  30 * time.Second,
	GraceWait: 60 * time.Second,
}

// pendingRequest is one open game request, keyed by its requester.
type pendingRequest struct {
	target string
	clock  *timer.Countdown
}

// graceWait tracks one disconnected player whose match is held open.
type graceWait struct {
	opponent string
	clock    *timer.Countdown
}

// Hub is the session registry.
type Hub struct {
	maxClients int
	timeouts   Timeouts

	mu         sync.Mutex
	sessions   map[uuid.UUID]*session.Session
	byNick     map[string]*session.Session
	nickClocks map[uuid.UUID]*timer.Countdown

	reqMu    sync.Mutex
	pending  map[string]*pendingRequest
	incoming map[string]string

	matchMu sync.Mutex
	matches map[string]*match.Match

	graceMu sync.Mutex
	waiting map[string]*graceWait
}

// Cfg configures a Hub.
type Cfg func(*Hub) error

// WithMaxClients sets the maximum number of concurrently registered
// sessions.
func WithMaxClients(n int) Cfg {
	return func(h *Hub) error {
		if n < 1 {
			return errors.New("max clients must be positive")
		}
		h.maxClients = n
		return nil
	}
}

// WithTimeouts sets the waiting periods.
func WithTimeouts(t Timeouts) Cfg {
	return func(h *Hub) error {
		h.timeouts = t
		return nil
	}
}

// NewHub creates a new Hub with the given configuration.
func NewHub(cfgs ...Cfg) (*Hub, error) {
	h := &Hub{
		maxClients: 10,
		timeouts:   DefaultTimeouts,
		sessions:   make(map[uuid.UUID]*session.Session),
		byNick:     make(map[string]*session.Session),
		nickClocks: make(map[uuid.UUID]*timer.Countdown),
		pending:    make(map[string]*pendingRequest),
		incoming:   make(map[string]string),
		matches:    make(map[string]*match.Match),
		waiting:    make(map[string]*graceWait),
	}
	for _, cfg := range cfgs {
		if err := cfg(h); err != nil {
			return nil, errors.Wrap(err, "apply Hub cfg failed")
		}
	}
	return h, nil
}

// Timeouts returns the configured waiting periods.
func (h *Hub) Timeouts() Timeouts {
	return h.timeouts
}

// Register creates a session for an accepted connection. It fails with
// ErrCapacityExceeded once the active session count has reached the
// configured maximum. The new session starts its nickname countdown
// immediately.
func (h *Hub) Register(conn net.Conn) (*session.Session, error) {
	h.mu.Lock()
	if len(h.sessions) >= h.maxClients {
		h.mu.Unlock()
		return nil, errors.Wrapf(ErrCapacityExceeded, "%d clients connected", h.maxClients)
	}
	sess := session.New(conn)
	sess.SetState(session.AwaitingNick)
	h.sessions[sess.ID()] = sess
	clock := timer.New(h.timeouts.NickWait, func() { h.onNickTimeout(sess) })
	h.nickClocks[sess.ID()] = clock
	h.mu.Unlock()

	clock.Start()
	logger.WithFields(logrus.Fields{
		"id":   sess.ID().String(),
		"addr": sess.RemoteAddr(),
	}).Info("session registered")
	return sess, nil
}

// ListOnline returns the nicknames of every online session except the
// requester's.
func (h *Hub) ListOnline(requester string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	names := make([]string, 0, len(h.byNick))
	for nick := range h.byNick {
		if nick != requester {
			names = append(names, nick)
		}
	}
	return names
}

// Broadcast delivers msg to every session that has finished nickname
// negotiation, except the one named by except. Delivery is best-effort:
// per-recipient failures are logged and do not abort the broadcast.
func (h *Hub) Broadcast(msg protocol.Message, except string) {
	h.mu.Lock()
	targets := make([]*session.Session, 0, len(h.byNick))
	for nick, sess := range h.byNick {
		if nick == except || sess.State() == session.Terminated {
			continue
		}
		targets = append(targets, sess)
	}
	h.mu.Unlock()

	for _, sess := range targets {
		if err := sess.Send(msg); err != nil {
			logger.WithField("nick", sess.Nick()).WithError(err).Warn("broadcast delivery failed")
		}
	}
}

// SendTo delivers a message to the session currently bound to nick,
// logging a warning if the nick is unknown or the send fails. It satisfies
// match.Host.
func (h *Hub) SendTo(nick string, msg protocol.Message) {
	h.mu.Lock()
	sess := h.byNick[nick]
	h.mu.Unlock()
	if sess == nil {
		logger.WithField("nick", nick).Warn("send to unknown nick dropped")
		return
	}
	if err := sess.Send(msg); err != nil {
		logger.WithField("nick", nick).WithError(err).Warn("directed send failed")
	}
}

// RequestMatch opens a game request from one session to the named target.
// The whole transition runs under the request lock so that two crossing
// requests serialize: the first one moves its target out of Idle and the
// second fails with ErrInvalidTarget.
func (h *Hub) RequestMatch(from *session.Session, targetNick string) error {
	fromNick := from.Nick()
	if targetNick == fromNick {
		return errors.Wrap(ErrInvalidTarget, "cannot request a match with yourself")
	}

	h.mu.Lock()
	target := h.byNick[targetNick]
	h.mu.Unlock()
	if target == nil {
		return errors.Wrapf(ErrInvalidTarget, "no client with nick %q", targetNick)
	}

	h.reqMu.Lock()
	if _, ok := h.pending[fromNick]; ok {
		h.reqMu.Unlock()
		return errors.Wrapf(ErrDuplicateRequest, "%s already has a pending request", fromNick)
	}
	if from.State() != session.Idle {
		h.reqMu.Unlock()
		return errors.Wrapf(ErrInvalidTarget, "%s is not idle", fromNick)
	}
	if target.State() != session.Idle {
		h.reqMu.Unlock()
		return errors.Wrapf(ErrInvalidTarget, "%s is not available", targetNick)
	}
	from.SetState(session.RequestSent)
	target.SetState(session.RequestReceived)
	clock := timer.New(h.timeouts.ReplyWait, func() { h.onReplyTimeout(fromNick, targetNick) })
	h.pending[fromNick] = &pendingRequest{target: targetNick, clock: clock}
	h.incoming[targetNick] = fromNick
	h.reqMu.Unlock()

	clock.Start()
	h.SendTo(targetNick, protocol.New(protocol.TagRequested, fromNick))
	h.notifyAvailability(fromNick, false)
	h.notifyAvailability(targetNick, false)
	logger.WithFields(logrus.Fields{"from": fromNick, "to": targetNick}).Info("game request opened")
	return nil
}

// CancelRequest withdraws the requester's own pending game request.
func (h *Hub) CancelRequest(from *session.Session) error {
	fromNick := from.Nick()
	h.reqMu.Lock()
	req, ok := h.pending[fromNick]
	if !ok {
		h.reqMu.Unlock()
		return errors.Wrapf(ErrInvalidTarget, "%s has no pending request", fromNick)
	}
	targetNick := req.target
	h.closeRequestLocked(fromNick, targetNick)
	h.reqMu.Unlock()

	from.SetState(session.Idle)
	h.mu.Lock()
	target := h.byNick[targetNick]
	h.mu.Unlock()
	if target != nil && target.State() == session.RequestReceived {
		target.SetState(session.Idle)
	}
	h.SendTo(targetNick, protocol.New(protocol.TagRequestGone, fromNick))
	h.notifyAvailability(fromNick, true)
	h.notifyAvailability(targetNick, true)
	return nil
}

// RespondMatch resolves the pending request held by the responding session.
// On acceptance a match engine is instantiated binding the two sessions; on
// rejection both return to Idle and the requester is notified.
func (h *Hub) RespondMatch(responder *session.Session, accept bool) error {
	respNick := responder.Nick()
	h.reqMu.Lock()
	fromNick, ok := h.incoming[respNick]
	if !ok {
		h.reqMu.Unlock()
		return errors.Wrapf(ErrInvalidTarget, "%s has no incoming request", respNick)
	}
	h.closeRequestLocked(fromNick, respNick)
	h.reqMu.Unlock()

	h.mu.Lock()
	requester := h.byNick[fromNick]
	h.mu.Unlock()
	if requester == nil {
		// Requester vanished between the request and the reply.
		responder.SetState(session.Idle)
		h.notifyAvailability(respNick, true)
		return errors.Wrapf(ErrInvalidTarget, "requester %s is gone", fromNick)
	}

	if !accept {
		requester.SetState(session.Idle)
		responder.SetState(session.Idle)
		h.SendTo(fromNick, protocol.New(protocol.TagRequestGone, respNick))
		h.notifyAvailability(fromNick, true)
		h.notifyAvailability(respNick, true)
		logger.WithFields(logrus.Fields{"from": fromNick, "to": respNick}).Info("game request rejected")
		return nil
	}

	m := match.New(fromNick, respNick, h.timeouts.TurnWait, h)
	// The clock must be armed before the match is reachable through the
	// registry; a MOVE racing this transition must find a running match.
	m.Start()
	h.matchMu.Lock()
	h.matches[fromNick] = m
	h.matches[respNick] = m
	h.matchMu.Unlock()

	requester.SetState(session.InMatch)
	requester.SetOpponent(respNick)
	responder.SetState(session.InMatch)
	responder.SetOpponent(fromNick)

	// The requester moves first.
	h.SendTo(fromNick, protocol.New(protocol.TagGameStart, respNick, protocol.ReplyAccept))
	h.SendTo(respNick, protocol.New(protocol.TagGameStart, fromNick, protocol.ReplyReject))
	logger.WithFields(logrus.Fields{"player1": fromNick, "player2": respNick}).Info("match created")
	return nil
}

// MatchEnded removes the bindings of a finished match and returns both
// players to Idle. It satisfies match.Host.
func (h *Hub) MatchEnded(m *match.Match) {
	players := m.Players()

	h.matchMu.Lock()
	for _, nick := range players {
		if h.matches[nick] == m {
			delete(h.matches, nick)
		}
	}
	h.matchMu.Unlock()

	for _, nick := range players {
		h.graceMu.Lock()
		w := h.waiting[nick]
		delete(h.waiting, nick)
		h.graceMu.Unlock()
		if w != nil {
			w.clock.Stop()
		}

		h.mu.Lock()
		sess := h.byNick[nick]
		h.mu.Unlock()
		if sess == nil {
			continue
		}
		switch sess.State() {
		case session.DisconnectedGrace:
			// The player never came back; drop the reserved nick.
			h.removeSession(sess)
		case session.InMatch:
			sess.SetState(session.Idle)
			sess.SetOpponent("")
			h.notifyAvailability(nick, true)
		}
	}
	logger.WithFields(logrus.Fields{
		"player1": players[0],
		"player2": players[1],
		"state":   m.State().String(),
	}).Info("match torn down")
}

// HandleTransportLoss drives the state transition for a session whose
// socket died or whose keep-alive lapsed. A session in a match enters its
// reconnection grace window; any other session terminates. The transition
// happens exactly once regardless of how many tasks observe the loss.
func (h *Hub) HandleTransportLoss(sess *session.Session) {
	if !sess.MarkDisconnected() {
		return
	}
	nick := sess.Nick()
	state := sess.State()
	logger.WithFields(logrus.Fields{
		"nick":  nick,
		"state": state.String(),
	}).Warn("lost connection to client")

	if state == session.InMatch {
		h.matchMu.Lock()
		m := h.matches[nick]
		h.matchMu.Unlock()
		if m != nil {
			sess.Close()
			sess.Detach()
			sess.SetState(session.DisconnectedGrace)
			m.PlayerDisconnected(nick, h.timeouts.GraceWait)

			clock := timer.New(h.timeouts.GraceWait, func() { h.onGraceExpired(nick) })
			h.graceMu.Lock()
			h.waiting[nick] = &graceWait{opponent: m.Opponent(nick), clock: clock}
			h.graceMu.Unlock()
			clock.Start()
			return
		}
	}
	h.terminate(sess)
}

// Release terminates a session outright: bindings are removed, any pending
// request is resolved, and an active match is abandoned in favour of the
// opponent.
func (h *Hub) Release(sess *session.Session) {
	sess.MarkDisconnected()
	h.terminate(sess)
}

func (h *Hub) terminate(sess *session.Session) {
	nick := sess.Nick()
	wasInMatch := sess.State() == session.InMatch

	h.resolvePendingFor(nick)
	h.removeSession(sess)

	if wasInMatch {
		h.matchMu.Lock()
		m := h.matches[nick]
		h.matchMu.Unlock()
		if m != nil {
			m.Abandon(nick)
		}
	}
}

// removeSession drops a session from the registry maps, closes its
// transport and announces the departure.
func (h *Hub) removeSession(sess *session.Session) {
	nick := sess.Nick()
	sess.SetState(session.Terminated)
	sess.Close()

	h.mu.Lock()
	delete(h.sessions, sess.ID())
	if clock := h.nickClocks[sess.ID()]; clock != nil {
		clock.Stop()
		delete(h.nickClocks, sess.ID())
	}
	if nick != "" && h.byNick[nick] == sess {
		delete(h.byNick, nick)
	}
	h.mu.Unlock()

	if nick != "" {
		h.Broadcast(protocol.New(protocol.TagClientLeft, nick), nick)
	}
	logger.WithFields(logrus.Fields{
		"id":   sess.ID().String(),
		"nick": nick,
	}).Info("session removed")
}

// resolvePendingFor clears any pending request nick is part of, returning
// the peer to Idle and notifying it.
func (h *Hub) resolvePendingFor(nick string) {
	if nick == "" {
		return
	}
	var peer string
	h.reqMu.Lock()
	if req, ok := h.pending[nick]; ok {
		peer = req.target
		h.closeRequestLocked(nick, peer)
	} else if from, ok := h.incoming[nick]; ok {
		peer = from
		h.closeRequestLocked(peer, nick)
	}
	h.reqMu.Unlock()
	if peer == "" {
		return
	}

	h.mu.Lock()
	peerSess := h.byNick[peer]
	h.mu.Unlock()
	if peerSess != nil {
		peerSess.SetState(session.Idle)
	}
	h.SendTo(peer, protocol.New(protocol.TagRequestGone, nick))
	h.notifyAvailability(peer, true)
}

// closeRequestLocked removes a pending request and stops its reply clock.
// Callers must hold reqMu.
func (h *Hub) closeRequestLocked(fromNick, targetNick string) {
	if req, ok := h.pending[fromNick]; ok {
		req.clock.Stop()
		delete(h.pending, fromNick)
	}
	delete(h.incoming, targetNick)
}

// onNickTimeout fires when a connection failed to negotiate a nickname in
// time.
func (h *Hub) onNickTimeout(sess *session.Session) {
	if sess.State() != session.AwaitingNick {
		return
	}
	logger.WithField("id", sess.ID().String()).Warn("client did not enter a nickname in time")
	_ = sess.SendErr(protocol.CodeBadState, "no nickname entered in time")
	if sess.MarkDisconnected() {
		h.terminate(sess)
	}
}

// onReplyTimeout fires when a game request went unanswered; the requester
// is notified of the expiry and both sides return to Idle.
func (h *Hub) onReplyTimeout(fromNick, targetNick string) {
	h.reqMu.Lock()
	req, ok := h.pending[fromNick]
	if !ok || req.target != targetNick {
		h.reqMu.Unlock()
		return
	}
	h.closeRequestLocked(fromNick, targetNick)
	h.reqMu.Unlock()

	h.mu.Lock()
	from := h.byNick[fromNick]
	target := h.byNick[targetNick]
	h.mu.Unlock()
	if from != nil && from.State() == session.RequestSent {
		from.SetState(session.Idle)
	}
	if target != nil && target.State() == session.RequestReceived {
		target.SetState(session.Idle)
	}
	h.SendTo(fromNick, protocol.New(protocol.TagRequestGone, targetNick))
	h.SendTo(targetNick, protocol.New(protocol.TagRequestGone, fromNick))
	h.notifyAvailability(fromNick, true)
	h.notifyAvailability(targetNick, true)
	logger.WithFields(logrus.Fields{"from": fromNick, "to": targetNick}).Info("game request expired")
}

// onGraceExpired fires when a disconnected player's reconnection window
// closed without them coming back; their match resolves to a forfeit.
func (h *Hub) onGraceExpired(nick string) {
	h.graceMu.Lock()
	w := h.waiting[nick]
	delete(h.waiting, nick)
	h.graceMu.Unlock()
	if w == nil {
		return
	}
	logger.WithField("nick", nick).Warn("reconnection window expired")

	h.matchMu.Lock()
	m := h.matches[nick]
	h.matchMu.Unlock()
	if m != nil {
		m.Forfeit(nick, "opponent did not reconnect in time")
	}
}

// notifyAvailability broadcasts a player's busy/free lobby state.
func (h *Hub) notifyAvailability(nick string, available bool) {
	state := "OFF"
	if available {
		state = "ON"
	}
	h.Broadcast(protocol.New(protocol.TagPlayerState, nick, state), nick)
}

// superviseLiveness probes one session with PING until it terminates or
// misses a reply, in which case the miss is treated exactly as a transport
// loss.
func (h *Hub) superviseLiveness(sess *session.Session) {
	for {
		switch sess.State() {
		case session.Terminated, session.DisconnectedGrace:
			return
		}
		if err := sess.Send(protocol.New(protocol.TagPing)); err != nil {
			h.HandleTransportLoss(sess)
			return
		}
		time.Sleep(h.timeouts.PingReply)
		switch sess.State() {
		case session.Terminated, session.DisconnectedGrace:
			return
		}
		if !sess.ConsumePong() {
			logger.WithField("nick", sess.Nick()).Warn("keep-alive reply missed")
			h.HandleTransportLoss(sess)
			return
		}
	}
}
