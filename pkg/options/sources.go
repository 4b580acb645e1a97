package options

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
)

// SourceFunc adapts a function into a model.ChoiceSource.
type SourceFunc func(ctx context.Context, governing string) ([]model.Choice, error)

// Choices calls the wrapped function.
func (fn SourceFunc) Choices(ctx context.Context, governing string) ([]model.Choice, error) {
	return fn(ctx, governing)
}

// StaticSource returns the same choices for every governing value.
type StaticSource []model.Choice

// Choices returns a copy of the static list.
func (s StaticSource) Choices(context.Context, string) ([]model.Choice, error) {
	return append([]model.Choice(nil), s...), nil
}

// CommandSource invokes a remote command with the governing value under
// Param and reads `{id, label}` items from the result.
type CommandSource struct {
	Channel remote.Channel
	Command string
	Param   string
	// MapID rewrites item ids, e.g. to reduce a DN to its first RDN value.
	MapID func(string) string
}

// Choices invokes the command.
func (s CommandSource) Choices(ctx context.Context, governing string) ([]model.Choice, error) {
	if s.Channel == nil {
		return nil, fmt.Errorf("options: command source %s has no channel", s.Command)
	}
	payload := map[string]any{}
	if s.Param != "" {
		payload[s.Param] = governing
	}
	resp, err := s.Channel.Invoke(ctx, s.Command, payload)
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("options: %s: %s", s.Command, resp.Error)
	}

	var items []model.Choice
	if err := resp.Decode(&items); err != nil {
		return nil, fmt.Errorf("options: decode %s result: %w", s.Command, err)
	}
	out := make([]model.Choice, 0, len(items))
	for _, item := range items {
		if s.MapID != nil {
			item.ID = s.MapID(item.ID)
		}
		if item.ID == "" {
			continue
		}
		if item.Label == "" {
			item.Label = item.ID
		}
		out = append(out, item)
	}
	return out, nil
}

// HTTPSource fetches choices from a JSON endpoint. The governing value is
// sent as the Param query parameter; items are read from ResultsPath (dotted,
// optional) using ValueField and LabelField.
type HTTPSource struct {
	Client      *http.Client
	URL         string
	Param       string
	ResultsPath string
	ValueField  string
	LabelField  string
	Headers     map[string]string
}

// Choices performs the GET request.
func (s HTTPSource) Choices(ctx context.Context, governing string) ([]model.Choice, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	reqURL, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("options: parse url: %w", err)
	}
	if s.Param != "" {
		q := reqURL.Query()
		q.Set(s.Param, governing)
		reqURL.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("options: request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, value := range s.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("options: do request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("options: unexpected status %d", resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("options: decode: %w", err)
	}

	valueField := s.ValueField
	if valueField == "" {
		valueField = "id"
	}
	labelField := s.LabelField
	if labelField == "" {
		labelField = "label"
	}

	var out []model.Choice
	for _, item := range extractResults(payload, s.ResultsPath) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := pick(obj, valueField)
		if id == "" {
			continue
		}
		label := pick(obj, labelField)
		if label == "" {
			label = id
		}
		out = append(out, model.Choice{ID: id, Label: label})
	}
	return out, nil
}

func extractResults(payload any, path string) []any {
	current := payload
	if path != "" {
		for _, segment := range strings.Split(path, ".") {
			node, ok := current.(map[string]any)
			if !ok {
				return nil
			}
			current = node[segment]
		}
	}
	items, _ := current.([]any)
	return items
}

func pick(obj map[string]any, path string) string {
	var current any = obj
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return ""
		}
		current = node[segment]
	}
	if current == nil {
		return ""
	}
	return fmt.Sprint(current)
}
