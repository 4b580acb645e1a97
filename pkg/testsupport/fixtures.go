// Package testsupport provides an in-memory school directory backend and
// small helpers shared by wizard, shell and facade tests.
package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/schoolwizards"
)

// Schools served by the fake backend. The first one is preselected by the
// wizards.
var Schools = []model.Choice{
	{ID: "demo", Label: "Demo School"},
	{ID: "other", Label: "Other School"},
}

// ComputerTypes served by the fake backend.
var ComputerTypes = []model.Choice{
	{ID: "windows", Label: "Windows system"},
	{ID: "macos", Label: "Mac OS X"},
}

// ClassDN returns the DN the fake backend uses for class name of school.
func ClassDN(school, name string) string {
	return fmt.Sprintf("cn=%s-%s,cn=klassen,cn=schueler,ou=%s", school, name, school)
}

// Backend answers the wizard commands from memory. Record writes succeed
// unless responses were queued for the command.
type Backend struct {
	mu        sync.Mutex
	mux       *remote.Mux
	config    map[string]string
	records   map[string]map[string]any
	responses map[string][]remote.Response
	payloads  map[string][]map[string]any
}

// NewBackend builds a backend with two schools, two computer types and the
// classes "1a" and "2b" in every school.
func NewBackend() *Backend {
	b := &Backend{
		mux:       remote.NewMux(),
		config:    map[string]string{},
		records:   map[string]map[string]any{},
		responses: map[string][]remote.Response{},
		payloads:  map[string][]map[string]any{},
	}
	b.mux.RegisterFunc(schoolwizards.CommandSchools, func(context.Context, json.RawMessage) (remote.Response, error) {
		return remote.OK(Schools), nil
	})
	b.mux.RegisterFunc(schoolwizards.CommandComputerTypes, func(context.Context, json.RawMessage) (remote.Response, error) {
		return remote.OK(ComputerTypes), nil
	})
	b.mux.RegisterFunc(schoolwizards.CommandClasses, func(_ context.Context, raw json.RawMessage) (remote.Response, error) {
		var req struct {
			School string `json:"school"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return remote.Response{}, err
		}
		return remote.OK([]model.Choice{
			{ID: ClassDN(req.School, "1a"), Label: "1a"},
			{ID: ClassDN(req.School, "2b"), Label: "2b"},
		}), nil
	})
	b.mux.RegisterFunc(remote.ConfigCommand, func(context.Context, json.RawMessage) (remote.Response, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		return remote.OK(b.config), nil
	})
	for _, prefix := range []string{schoolwizards.CommandComputers, schoolwizards.CommandUsers} {
		b.mux.RegisterFunc(prefix+"/get", b.get)
		for _, op := range []string{"/add", "/put"} {
			command := prefix + op
			b.mux.RegisterFunc(command, func(_ context.Context, raw json.RawMessage) (remote.Response, error) {
				return b.write(command, raw)
			})
		}
	}
	return b
}

func (b *Backend) get(_ context.Context, raw json.RawMessage) (remote.Response, error) {
	var req map[string]any
	if err := json.Unmarshal(raw, &req); err != nil {
		return remote.Response{}, err
	}
	dn, _ := req[schoolwizards.DNKey].(string)

	b.mu.Lock()
	defer b.mu.Unlock()
	record, ok := b.records[dn]
	if !ok {
		return remote.Failure("no such object"), nil
	}
	return remote.OK(record), nil
}

func (b *Backend) write(command string, raw json.RawMessage) (remote.Response, error) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return remote.Response{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads[command] = append(b.payloads[command], payload)
	queue := b.responses[command]
	if len(queue) == 0 {
		return remote.OK(true), nil
	}
	b.responses[command] = queue[1:]
	return queue[0], nil
}

// Channel returns an in-process channel to the backend.
func (b *Backend) Channel() remote.Channel {
	return remote.Local{Handler: b.mux}
}

// Handler exposes the backend for transports under test.
func (b *Backend) Handler() remote.Handler {
	return b.mux
}

// SetConfig stores a configuration registry value.
func (b *Backend) SetConfig(key, value string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config[key] = value
}

// AddRecord stores a record returned by "<prefix>/get" for dn.
func (b *Backend) AddRecord(dn string, record map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[dn] = record
}

// Queue sets the responses returned by the next writes to command.
func (b *Backend) Queue(command string, responses ...remote.Response) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses[command] = append(b.responses[command], responses...)
}

// Sent returns the payloads received for command.
func (b *Backend) Sent(command string) []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]map[string]any(nil), b.payloads[command]...)
}

// Context returns a background context for tests.
func Context() context.Context {
	return context.Background()
}

// Diff returns a diff string if the values differ.
func Diff(want, got any) string {
	return cmp.Diff(want, got)
}
