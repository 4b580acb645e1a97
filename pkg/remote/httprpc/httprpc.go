// Package httprpc carries remote commands as JSON POSTs to
// "<base>/command/<command>" with the payload wrapped as {"options": ...}.
package httprpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-schoolwizard/pkg/remote"
)

// Client is a remote.Channel speaking HTTP.
type Client struct {
	base    string
	client  *http.Client
	headers map[string]string
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// WithHeader adds a header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient targets base, e.g. "https://dc.example.org/univention".
func NewClient(base string, options ...Option) *Client {
	c := &Client{
		base:    strings.TrimRight(base, "/"),
		client:  http.DefaultClient,
		headers: map[string]string{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type envelope struct {
	Options any `json:"options"`
}

// Invoke posts payload and decodes the {result, warning, error} reply.
func (c *Client) Invoke(ctx context.Context, command string, payload any) (remote.Response, error) {
	body, err := json.Marshal(envelope{Options: payload})
	if err != nil {
		return remote.Response{}, fmt.Errorf("httprpc: encode payload: %w", err)
	}
	endpoint := c.base + "/command/" + strings.Trim(command, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return remote.Response{}, fmt.Errorf("httprpc: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return remote.Response{}, fmt.Errorf("httprpc: %s: %w", command, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		c.logger.Debug().Int("status", res.StatusCode).Str("command", command).Msg("command rejected")
		return remote.Response{}, fmt.Errorf("httprpc: %s: unexpected status %d: %s", command, res.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var resp remote.Response
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return remote.Response{}, fmt.Errorf("httprpc: decode reply: %w", err)
	}
	return resp, nil
}

// Handler exposes a remote.Handler over HTTP using the same envelope.
func Handler(handler remote.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command, ok := strings.CutPrefix(r.URL.Path, "/command/")
		if !ok || command == "" {
			http.NotFound(w, r)
			return
		}
		var in struct {
			Options json.RawMessage `json:"options"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		resp, err := handler.Handle(r.Context(), command, in.Options)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}
