// Package remote declares the narrow contracts the wizard engine uses to talk
// to the management backend: a generic command channel returning
// {result, warning, error}, the record store add/put primitives built on top
// of it, and configuration retrieval.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownCommand is returned by a Mux for unregistered commands.
var ErrUnknownCommand = errors.New("remote: unknown command")

// Response is the three-field result of a remote command.
type Response struct {
	Result  json.RawMessage `json:"result,omitempty"`
	Warning string          `json:"warning,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals Result into target. An empty result leaves target
// untouched.
func (r Response) Decode(target any) error {
	if len(r.Result) == 0 || string(r.Result) == "null" {
		return nil
	}
	return json.Unmarshal(r.Result, target)
}

// OK builds a success response carrying result.
func OK(result any) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return Failure(fmt.Sprintf("encode result: %v", err))
	}
	return Response{Result: raw}
}

// Warn builds a warning response.
func Warn(message string) Response {
	return Response{Warning: message}
}

// Failure builds an error response.
func Failure(message string) Response {
	return Response{Error: message}
}

// Channel invokes a named remote command.
type Channel interface {
	Invoke(ctx context.Context, command string, payload any) (Response, error)
}

// ChannelFunc adapts a function into a Channel.
type ChannelFunc func(ctx context.Context, command string, payload any) (Response, error)

// Invoke calls the wrapped function.
func (fn ChannelFunc) Invoke(ctx context.Context, command string, payload any) (Response, error) {
	return fn(ctx, command, payload)
}

// Handler serves commands on the receiving side of a channel.
type Handler interface {
	Handle(ctx context.Context, command string, payload json.RawMessage) (Response, error)
}

// HandlerFunc adapts a function into a Handler.
type HandlerFunc func(ctx context.Context, command string, payload json.RawMessage) (Response, error)

// Handle calls the wrapped function.
func (fn HandlerFunc) Handle(ctx context.Context, command string, payload json.RawMessage) (Response, error) {
	return fn(ctx, command, payload)
}

// Mux routes commands to handlers by exact name.
type Mux struct {
	routes map[string]Handler
}

// NewMux returns an empty Mux.
func NewMux() *Mux {
	return &Mux{routes: make(map[string]Handler)}
}

// Register binds handler to command.
func (m *Mux) Register(command string, handler Handler) {
	m.routes[command] = handler
}

// RegisterFunc registers a function for command.
func (m *Mux) RegisterFunc(command string, fn func(ctx context.Context, payload json.RawMessage) (Response, error)) {
	m.Register(command, HandlerFunc(func(ctx context.Context, _ string, payload json.RawMessage) (Response, error) {
		return fn(ctx, payload)
	}))
}

// Handle dispatches to the registered handler.
func (m *Mux) Handle(ctx context.Context, command string, payload json.RawMessage) (Response, error) {
	handler, ok := m.routes[command]
	if !ok {
		return Response{}, fmt.Errorf("%w: %s", ErrUnknownCommand, command)
	}
	return handler.Handle(ctx, command, payload)
}

// Local is an in-process Channel that serialises the payload and hands it to
// a Handler, mirroring what a network transport would do.
type Local struct {
	Handler Handler
}

// Invoke encodes payload and dispatches it.
func (l Local) Invoke(ctx context.Context, command string, payload any) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("remote: encode payload: %w", err)
	}
	return l.Handler.Handle(ctx, command, raw)
}
