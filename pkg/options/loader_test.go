package options

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
)

type countingSource struct {
	calls     int
	governing []string
	byKey     map[string][]model.Choice
	err       error
}

func (s *countingSource) Choices(_ context.Context, governing string) ([]model.Choice, error) {
	s.calls++
	s.governing = append(s.governing, governing)
	if s.err != nil {
		return nil, s.err
	}
	return s.byKey[governing], nil
}

func TestLoaderEmptyGoverningSkipsSource(t *testing.T) {
	source := &countingSource{}
	loader := NewLoader(source)

	result, err := loader.Load(context.Background(), "  ", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if source.calls != 0 {
		t.Fatalf("expected no source call, got %d", source.calls)
	}
	if result.Choices == nil || len(result.Choices) != 0 {
		t.Fatalf("expected empty non-nil choices, got %#v", result.Choices)
	}
	if result.Selected != nil {
		t.Fatalf("expected no selection, got %v", result.Selected)
	}
}

func TestLoaderReplacesChoicesPerGoverningValue(t *testing.T) {
	source := &countingSource{byKey: map[string][]model.Choice{
		"school1": {{ID: "1a", Label: "1a"}, {ID: "2b", Label: "2b"}},
		"school2": {{ID: "7c", Label: "7c"}},
	}}
	loader := NewLoader(source)

	first, err := loader.Load(context.Background(), "school1", nil)
	if err != nil {
		t.Fatalf("load school1: %v", err)
	}
	second, err := loader.Load(context.Background(), "school2", nil)
	if err != nil {
		t.Fatalf("load school2: %v", err)
	}

	if diff := cmp.Diff([]model.Choice{{ID: "1a", Label: "1a"}, {ID: "2b", Label: "2b"}}, first.Choices); diff != "" {
		t.Fatalf("first choices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.Choice{{ID: "7c", Label: "7c"}}, second.Choices); diff != "" {
		t.Fatalf("second choices mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"school1", "school2"}, source.governing); diff != "" {
		t.Fatalf("governing mismatch (-want +got):\n%s", diff)
	}
}

func TestLoaderPriorValueTakesFirstSlot(t *testing.T) {
	source := &countingSource{byKey: map[string][]model.Choice{
		"school1": {{ID: "1a", Label: "Class 1a"}, {ID: "2b", Label: "Class 2b"}},
	}}
	loader := NewLoader(source)

	known, err := loader.Load(context.Background(), "school1", []any{"2b"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	wantKnown := []model.Choice{{ID: "2b", Label: "Class 2b"}, {ID: "1a", Label: "Class 1a"}}
	if diff := cmp.Diff(wantKnown, known.Choices); diff != "" {
		t.Fatalf("known prior mismatch (-want +got):\n%s", diff)
	}
	if known.Selected != "2b" {
		t.Fatalf("expected 2b selected, got %v", known.Selected)
	}

	unknown, err := loader.Load(context.Background(), "school1", "9z")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	wantUnknown := []model.Choice{{ID: "9z", Label: "9z"}, {ID: "1a", Label: "Class 1a"}, {ID: "2b", Label: "Class 2b"}}
	if diff := cmp.Diff(wantUnknown, unknown.Choices); diff != "" {
		t.Fatalf("unknown prior mismatch (-want +got):\n%s", diff)
	}
}

func TestLoaderWrapsSourceErrors(t *testing.T) {
	boom := errors.New("backend down")
	loader := NewLoader(&countingSource{err: boom})

	_, err := loader.Load(context.Background(), "school1", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped source error, got %v", err)
	}
}

func TestCommandSourceMapsIDs(t *testing.T) {
	var gotCommand string
	var gotPayload any
	channel := remote.ChannelFunc(func(_ context.Context, command string, payload any) (remote.Response, error) {
		gotCommand = command
		gotPayload = payload
		return remote.OK([]map[string]string{
			{"id": "cn=school1-1a,cn=klassen,ou=school1", "label": "1a"},
			{"id": "", "label": "broken"},
		}), nil
	})

	source := CommandSource{
		Channel: channel,
		Command: "schoolwizards/classes",
		Param:   "school",
		MapID: func(id string) string {
			head, _, _ := strings.Cut(id, ",")
			_, value, _ := strings.Cut(head, "=")
			return value
		},
	}

	choices, err := source.Choices(context.Background(), "school1")
	if err != nil {
		t.Fatalf("choices: %v", err)
	}
	if gotCommand != "schoolwizards/classes" {
		t.Fatalf("unexpected command %q", gotCommand)
	}
	if diff := cmp.Diff(map[string]any{"school": "school1"}, gotPayload); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.Choice{{ID: "school1-1a", Label: "1a"}}, choices); diff != "" {
		t.Fatalf("choices mismatch (-want +got):\n%s", diff)
	}
}

func TestCommandSourceSurfacesBackendError(t *testing.T) {
	channel := remote.ChannelFunc(func(context.Context, string, any) (remote.Response, error) {
		return remote.Failure("no such school"), nil
	})
	_, err := CommandSource{Channel: channel, Command: "schoolwizards/classes"}.Choices(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "no such school") {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestHTTPSourceReadsNestedResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("school"); got != "school1" {
			t.Errorf("unexpected school param %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer token" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"items": []any{
					map[string]any{"name": "1a", "title": "Class 1a"},
					map[string]any{"name": "2b"},
					map[string]any{"title": "missing id"},
				},
			},
		})
	}))
	defer server.Close()

	source := HTTPSource{
		Client:      server.Client(),
		URL:         server.URL + "/classes",
		Param:       "school",
		ResultsPath: "data.items",
		ValueField:  "name",
		LabelField:  "title",
		Headers:     map[string]string{"Authorization": "Bearer token"},
	}

	choices, err := source.Choices(context.Background(), "school1")
	if err != nil {
		t.Fatalf("choices: %v", err)
	}
	want := []model.Choice{{ID: "1a", Label: "Class 1a"}, {ID: "2b", Label: "2b"}}
	if diff := cmp.Diff(want, choices); diff != "" {
		t.Fatalf("choices mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPSourceRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := HTTPSource{Client: server.Client(), URL: server.URL}.Choices(context.Background(), "school1")
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected status error, got %v", err)
	}
}
