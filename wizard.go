// Package schoolwizard exposes the school directory wizards behind a small
// facade: dial a backend channel, then open or run a named wizard.
package schoolwizard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-schoolwizard/pkg/orchestrator"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/remote/httprpc"
	"github.com/goliatone/go-schoolwizard/pkg/remote/natsrpc"
)

// Supported transports.
const (
	TransportNATS = "nats"
	TransportHTTP = "http"
)

// ErrUnknownTransport is returned by Dial for unsupported transports.
var ErrUnknownTransport = errors.New("schoolwizard: unknown transport")

// Request aliases orchestrator.Request for callers of the root package.
type Request = orchestrator.Request

// TransportOptions selects and configures the backend channel.
type TransportOptions struct {
	// Transport is TransportNATS (default) or TransportHTTP.
	Transport string

	// NATSURL is the server to connect to for TransportNATS.
	NATSURL string

	// SubjectPrefix scopes NATS subjects.
	SubjectPrefix string

	// Endpoint is the base URL for TransportHTTP.
	Endpoint string

	// Timeout bounds each remote call.
	Timeout time.Duration

	Logger zerolog.Logger
}

// Closer releases the resources held by a dialled channel.
type Closer func()

// Dial connects to the backend described by opts.
func Dial(ctx context.Context, opts TransportOptions) (remote.Channel, Closer, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	switch opts.Transport {
	case "", TransportNATS:
		url := opts.NATSURL
		if url == "" {
			url = nats.DefaultURL
		}
		conn, err := nats.Connect(url,
			nats.Name("schoolwizard"),
			nats.Timeout(dialTimeout(opts.Timeout)),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("schoolwizard: connect %s: %w", url, err)
		}
		opts.Logger.Debug().Str("url", url).Msg("connected to backend")
		client := natsrpc.NewClient(conn,
			natsrpc.WithPrefix(opts.SubjectPrefix),
			natsrpc.WithTimeout(opts.Timeout),
			natsrpc.WithLogger(opts.Logger),
		)
		return client, func() { natsrpc.Shutdown(conn, nil) }, nil
	case TransportHTTP:
		if opts.Endpoint == "" {
			return nil, nil, errors.New("schoolwizard: http transport needs an endpoint")
		}
		client := httprpc.NewClient(opts.Endpoint, httprpc.WithLogger(opts.Logger))
		return withTimeout(client, opts.Timeout), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownTransport, opts.Transport)
	}
}

// NewOrchestrator exposes the orchestrator constructor from the top-level
// module.
func NewOrchestrator(options ...orchestrator.Option) *orchestrator.Orchestrator {
	return orchestrator.New(options...)
}

func dialTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 2 * time.Second
	}
	return timeout
}

func withTimeout(channel remote.Channel, timeout time.Duration) remote.Channel {
	if timeout <= 0 {
		return channel
	}
	return remote.ChannelFunc(func(ctx context.Context, command string, payload any) (remote.Response, error) {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return channel.Invoke(ctx, command, payload)
	})
}
