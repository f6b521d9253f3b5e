package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"

	"drop4/internal/pkg/hub"
	"drop4/internal/pkg/protocol"
	"drop4/internal/pkg/session"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Server accepts TCP connections and drives one reader task per client.
type Server struct {
	port     uint16
	registry *hub.Hub

	listener net.Listener
	wg       sync.WaitGroup
}

// Cfg configures a Server.
type Cfg func(*Server) error

// WithPort sets the listening port. Port 0 asks the OS for a free one.
func WithPort(port uint16) Cfg {
	return func(s *Server) error {
		s.port = port
		return nil
	}
}

// WithHub sets the session registry for the server.
func WithHub(h *hub.Hub) Cfg {
	return func(s *Server) error {
		s.registry = h
		return nil
	}
}

// NewServer creates a new Server with the given configuration.
func NewServer(cfgs ...Cfg) (*Server, error) {
	srv := &Server{}
	for _, cfg := range cfgs {
		if err := cfg(srv); err != nil {
			return nil, errors.Wrap(err, "apply Server cfg failed")
		}
	}
	if srv.registry == nil {
		return nil, errors.New("server requires a hub")
	}
	return srv, nil
}

// Start binds the listener and launches the accept loop. It returns once
// the server is accepting; cancelling ctx shuts it down.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d failed", s.port)
	}
	s.listener = listener
	logger.WithField("addr", listener.Addr().String()).Info("server listening")

	go func() {
		<-ctx.Done()
		if err := listener.Close(); err != nil {
			logger.WithError(err).Warn("close listener failed")
		}
	}()
	go s.acceptLoop(ctx)
	return nil
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Wait blocks until every connection handler has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.WithError(err).Error("accept failed")
			continue
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// handleConn registers the connection and runs its reader loop. The reader
// task exclusively owns the read side of the socket; the session's state
// machine is driven from here.
func (s *Server) handleConn(conn net.Conn) {
	defer s.wg.Done()

	sess, err := s.registry.Register(conn)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"addr": conn.RemoteAddr().String(),
		}).WithError(err).Warn("connection rejected")
		fmt.Fprintf(conn, "%s\n", protocol.New(protocol.TagErr, protocol.CodeCapacity, "server", "is", "full").Serialize())
		_ = conn.Close()
		return
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if sess.State() == session.Terminated {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		s.registry.HandleLine(sess, line)
	}
	if err := scanner.Err(); err != nil && sess.State() != session.Terminated {
		logger.WithField("nick", sess.Nick()).WithError(err).Warn("read failed")
	}
	s.registry.HandleTransportLoss(sess)
}
