package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/renderers/tui"
	"github.com/goliatone/go-schoolwizard/pkg/schoolwizards"
	"github.com/goliatone/go-schoolwizard/pkg/submission"
	"github.com/goliatone/go-schoolwizard/pkg/testsupport"
	"github.com/goliatone/go-schoolwizard/pkg/wizard"
)

type stubRunner struct {
	run     func(ctx context.Context, session tui.Session) (tui.Summary, error)
	session tui.Session
}

func (s *stubRunner) Run(ctx context.Context, session tui.Session) (tui.Summary, error) {
	s.session = session
	if s.run == nil {
		return tui.Summary{}, nil
	}
	return s.run(ctx, session)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(" Computer ", schoolwizards.Computer); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register("computer", schoolwizards.Computer); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
	if err := reg.Register("", schoolwizards.User); err == nil {
		t.Fatalf("expected empty name to fail")
	}
	if err := reg.Register("user", nil); err == nil {
		t.Fatalf("expected nil factory to fail")
	}
	reg.MustRegister("user", schoolwizards.User)

	if !reg.Has("COMPUTER") || reg.Has("printer") {
		t.Fatalf("unexpected Has results")
	}
	if _, err := reg.Get("printer"); err == nil {
		t.Fatalf("expected unknown wizard error")
	}
	if diff := cmp.Diff([]string{"computer", "user"}, reg.List()); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenPresetsValuesAndEditTarget(t *testing.T) {
	backend := testsupport.NewBackend()
	dn := "cn=pc01,cn=computers,ou=other"
	backend.AddRecord(dn, map[string]any{
		"name": "pc01", "school": "other", "type": "macos",
		"ip_address": []any{"10.0.0.5"}, "mac_address": []any{"00:11:22:33:44:55"},
	})
	o := New(WithChannel(backend.Channel()), WithRunner(&stubRunner{}))

	created, err := o.Open(context.Background(), Request{
		Wizard: WizardComputer,
		Values: model.Values{"school": "other"},
	})
	if err != nil {
		t.Fatalf("open create: %v", err)
	}
	defer created.Close()
	if got := created.Values().String("school"); got != "other" {
		t.Fatalf("expected preset school, got %q", got)
	}
	if created.Context().Editing() {
		t.Fatalf("create session reports editing")
	}

	edited, err := o.Open(context.Background(), Request{Wizard: WizardComputer, Target: dn})
	if err != nil {
		t.Fatalf("open edit: %v", err)
	}
	defer edited.Close()
	if !edited.Context().Editing() || edited.Values().String("name") != "pc01" {
		t.Fatalf("expected edit session for pc01, got %v", edited.Values())
	}
}

func TestOpenErrors(t *testing.T) {
	if _, err := New(WithRunner(&stubRunner{})).Open(context.Background(), Request{Wizard: WizardUser}); err == nil {
		t.Fatalf("expected missing channel error")
	}
	backend := testsupport.NewBackend()
	o := New(WithChannel(backend.Channel()), WithRunner(&stubRunner{}))
	if _, err := o.Open(context.Background(), Request{Wizard: "printer"}); err == nil {
		t.Fatalf("expected unknown wizard error")
	}
	if diff := cmp.Diff([]string{WizardComputer, WizardUser}, o.Wizards()); diff != "" {
		t.Fatalf("wizards mismatch (-want +got):\n%s", diff)
	}
}

func TestRunDrivesSessionAndClosesIt(t *testing.T) {
	backend := testsupport.NewBackend()
	runner := &stubRunner{
		run: func(ctx context.Context, session tui.Session) (tui.Summary, error) {
			if err := session.Next(); err != nil {
				return tui.Summary{}, err
			}
			for name, value := range map[string]any{
				"name":        "pc09",
				"ip_address":  []any{"10.0.0.9"},
				"mac_address": []any{"00:11:22:33:44:99"},
			} {
				if err := session.Set(ctx, name, value); err != nil {
					return tui.Summary{}, err
				}
			}
			outcome, err := session.Submit(ctx)
			if err != nil {
				return tui.Summary{}, err
			}
			if outcome.Kind != submission.KindSuccess {
				return tui.Summary{}, errors.New(outcome.Message)
			}
			return tui.Summary{Created: 1}, nil
		},
	}
	o := New(WithChannel(backend.Channel()), WithRunner(runner), WithSessionOptions(wizard.WithMaxWarningCycles(1)))

	summary, err := o.Run(context.Background(), Request{Wizard: WizardComputer})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(tui.Summary{Created: 1}, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if !runner.session.Closed() {
		t.Fatalf("expected the session to be closed after Run")
	}
	sent := backend.Sent(schoolwizards.CommandComputers + "/add")
	if len(sent) != 1 || sent[0]["name"] != "pc09" {
		t.Fatalf("unexpected payloads %v", sent)
	}
}

func TestRunWrapsRunnerError(t *testing.T) {
	backend := testsupport.NewBackend()
	boom := errors.New("boom")
	runner := &stubRunner{
		run: func(context.Context, tui.Session) (tui.Summary, error) {
			return tui.Summary{}, boom
		},
	}
	o := New(WithChannel(backend.Channel()), WithRunner(runner))
	if _, err := o.Run(context.Background(), Request{Wizard: WizardUser}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped runner error, got %v", err)
	}
	if !runner.session.Closed() {
		t.Fatalf("expected the session to be closed after a failed run")
	}
}
