// Package natsrpc carries remote commands over NATS request/reply. Commands
// map to subjects by replacing "/" with "." under a prefix, so
// "schoolwizards/classes" travels on "<prefix>.schoolwizards.classes".
package natsrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-schoolwizard/pkg/remote"
)

const (
	// DefaultPrefix is the subject root used when none is configured.
	DefaultPrefix = "schoolwizard"
	// DefaultQueue groups backend responders so each request is served once.
	DefaultQueue = "schoolwizard-backend"

	defaultTimeout = 5 * time.Second
	statusHeader   = "Schoolwizard-Status"
	statusFailed   = "failed"
)

// ErrHandlerFailed marks a reply where the responder could not process the
// command at all, as opposed to a command-level error response.
var ErrHandlerFailed = errors.New("natsrpc: handler failed")

// Subject returns the subject for command under prefix.
func Subject(prefix, command string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + strings.ReplaceAll(strings.Trim(command, "/"), "/", ".")
}

// Command reverses Subject.
func Command(prefix, subject string) (string, bool) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	rest, ok := strings.CutPrefix(subject, prefix+".")
	if !ok || rest == "" {
		return "", false
	}
	return strings.ReplaceAll(rest, ".", "/"), true
}

// Client is a remote.Channel backed by a NATS connection.
type Client struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures a Client or a responder.
type Option func(*settings)

type settings struct {
	prefix  string
	queue   string
	timeout time.Duration
	logger  zerolog.Logger
}

// WithPrefix overrides the subject prefix.
func WithPrefix(prefix string) Option {
	return func(s *settings) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithQueue overrides the responder queue group.
func WithQueue(queue string) Option {
	return func(s *settings) {
		s.queue = queue
	}
}

// WithTimeout bounds requests whose context carries no deadline.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func newSettings(options []Option) settings {
	s := settings{
		prefix:  DefaultPrefix,
		queue:   DefaultQueue,
		timeout: defaultTimeout,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// NewClient wraps conn.
func NewClient(conn *nats.Conn, options ...Option) *Client {
	s := newSettings(options)
	return &Client{conn: conn, prefix: s.prefix, timeout: s.timeout, logger: s.logger}
}

// Invoke sends payload as JSON and decodes the reply.
func (c *Client) Invoke(ctx context.Context, command string, payload any) (remote.Response, error) {
	if c == nil || c.conn == nil {
		return remote.Response{}, errors.New("natsrpc: client has no connection")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return remote.Response{}, fmt.Errorf("natsrpc: encode payload: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	subject := Subject(c.prefix, command)
	msg, err := c.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		c.logger.Debug().Err(err).Str("subject", subject).Msg("request failed")
		return remote.Response{}, fmt.Errorf("natsrpc: request %s: %w", command, err)
	}
	if msg.Header != nil && msg.Header.Get(statusHeader) == statusFailed {
		return remote.Response{}, fmt.Errorf("%w: %s: %s", ErrHandlerFailed, command, string(msg.Data))
	}

	var resp remote.Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return remote.Response{}, fmt.Errorf("natsrpc: decode reply: %w", err)
	}
	return resp, nil
}

// Serve subscribes handler to every command under the prefix. The returned
// subscription is owned by the caller.
func Serve(ctx context.Context, conn *nats.Conn, handler remote.Handler, options ...Option) (*nats.Subscription, error) {
	s := newSettings(options)
	logger := s.logger
	return conn.QueueSubscribe(s.prefix+".>", s.queue, func(msg *nats.Msg) {
		command, ok := Command(s.prefix, msg.Subject)
		if !ok {
			return
		}
		reply := nats.NewMsg(msg.Reply)

		resp, err := handler.Handle(ctx, command, json.RawMessage(msg.Data))
		if err != nil {
			logger.Warn().Err(err).Str("command", command).Msg("handler failed")
			reply.Header.Set(statusHeader, statusFailed)
			reply.Data = []byte(err.Error())
		} else {
			data, encErr := json.Marshal(resp)
			if encErr != nil {
				reply.Header.Set(statusHeader, statusFailed)
				reply.Data = []byte(encErr.Error())
			} else {
				reply.Data = data
			}
		}
		if err := msg.RespondMsg(reply); err != nil {
			logger.Warn().Err(err).Str("command", command).Msg("respond failed")
		}
	})
}

// StartEmbedded starts an in-process NATS server without network listeners.
func StartEmbedded(timeout time.Duration) (*server.Server, error) {
	return StartServer(&server.Options{DontListen: true}, timeout)
}

// StartServer starts a NATS server with opts and waits until it accepts
// connections.
func StartServer(opts *server.Options, timeout time.Duration) (*server.Server, error) {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("natsrpc: create server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(timeout) {
		ns.Shutdown()
		return nil, errors.New("natsrpc: server not ready within timeout")
	}
	return ns, nil
}

// ConnectInProcess opens a connection to ns that bypasses the network.
func ConnectInProcess(ns *server.Server) (*nats.Conn, error) {
	conn, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		return nil, fmt.Errorf("natsrpc: connect in-process: %w", err)
	}
	return conn, nil
}

// Shutdown drains conn and stops ns, either of which may be nil.
func Shutdown(conn *nats.Conn, ns *server.Server) {
	if conn != nil {
		if err := conn.Drain(); err != nil {
			conn.Close()
		}
	}
	if ns != nil {
		ns.Shutdown()
		ns.WaitForShutdown()
	}
}
