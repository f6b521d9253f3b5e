// Package client implements a line-protocol client for the game server,
// used by the interactive CLI and by integration tests.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"

	"drop4/internal/pkg/protocol"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// Client is a connection to the game server. It answers keep-alive probes
// on its own; everything else is up to the caller.
type Client struct {
	serverAddr string

	conn    net.Conn
	scanner *bufio.Scanner
}

// Cfg configures a Client.
type Cfg func(*Client) error

// WithServerPort sets the server port to connect to on localhost.
func WithServerPort(p uint16) Cfg {
	return func(c *Client) error {
		c.serverAddr = fmt.Sprintf("localhost:%d", p)
		return nil
	}
}

// WithServerAddr sets the full server address to connect to.
func WithServerAddr(addr string) Cfg {
	return func(c *Client) error {
		c.serverAddr = addr
		return nil
	}
}

// NewClient creates a new Client with the given configuration.
func NewClient(cfgs ...Cfg) (*Client, error) {
	client := &Client{}
	for _, cfg := range cfgs {
		if err := cfg(client); err != nil {
			return nil, errors.Wrap(err, "apply Client cfg failed")
		}
	}
	if client.serverAddr == "" {
		return nil, errors.New("client requires a server address")
	}
	return client, nil
}

// Connect establishes the connection to the server.
func (c *Client) Connect(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.serverAddr)
	if err != nil {
		return errors.Wrapf(err, "connect to %s failed", c.serverAddr)
	}
	c.conn = conn
	c.scanner = bufio.NewScanner(conn)
	return nil
}

// Close tears the connection down.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return errors.Wrap(c.conn.Close(), "close connection failed")
}

// Send writes one protocol line to the server.
func (c *Client) Send(msg protocol.Message) error {
	if _, err := fmt.Fprintf(c.conn, "%s\n", msg.Serialize()); err != nil {
		return errors.Wrapf(err, "send %s failed", msg.Tag)
	}
	return nil
}

// Recv blocks for the next server message. Keep-alive probes are answered
// transparently and never surfaced to the caller.
func (c *Client) Recv() (protocol.Message, error) {
	for c.scanner.Scan() {
		line := c.scanner.Text()
		if line == "" {
			continue
		}
		msg, err := protocol.ParseServer(line)
		if err != nil {
			return protocol.Message{}, errors.Wrapf(err, "parse server line %q failed", line)
		}
		if msg.Tag == protocol.TagPing {
			if err := c.Send(protocol.New(protocol.TagPong)); err != nil {
				return protocol.Message{}, err
			}
			continue
		}
		return msg, nil
	}
	if err := c.scanner.Err(); err != nil {
		return protocol.Message{}, errors.Wrap(err, "read failed")
	}
	return protocol.Message{}, io.EOF
}

// RecvTag reads messages until one with the wanted tag arrives, returning
// an error if an ERR reply shows up instead.
func (c *Client) RecvTag(tag protocol.Tag) (protocol.Message, error) {
	for {
		msg, err := c.Recv()
		if err != nil {
			return protocol.Message{}, err
		}
		if msg.Tag == protocol.TagErr {
			return protocol.Message{}, errors.Errorf("server error: %s", msg.Tail(0))
		}
		if msg.Tag == tag {
			return msg, nil
		}
	}
}

// Login negotiates the nickname and waits for the acknowledgement.
func (c *Client) Login(nick string) error {
	if err := c.Send(protocol.New(protocol.TagNick, nick)); err != nil {
		return err
	}
	if _, err := c.RecvTag(protocol.TagOK); err != nil {
		return errors.Wrap(err, "nickname negotiation failed")
	}
	return nil
}

// Interactive pumps user lines to the server and server lines to out until
// the context is cancelled or either stream ends.
func (c *Client) Interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()
	go func() {
		userLines := bufio.NewScanner(in)
		for userLines.Scan() {
			if _, err := fmt.Fprintf(c.conn, "%s\n", userLines.Text()); err != nil {
				logger.WithError(err).Error("send failed")
				return
			}
		}
	}()
	for {
		msg, err := c.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "receive failed")
		}
		if _, err := fmt.Fprintf(out, "%s\n", msg.Serialize()); err != nil {
			return errors.Wrap(err, "write output failed")
		}
	}
}
