package schoolwizards_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-schoolwizard/pkg/model"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/schoolwizards"
	"github.com/goliatone/go-schoolwizard/pkg/submission"
	"github.com/goliatone/go-schoolwizard/pkg/testsupport"
	"github.com/goliatone/go-schoolwizard/pkg/wizard"
)

func set(t *testing.T, s *wizard.Session, values map[string]any) {
	t.Helper()
	for name, value := range values {
		if err := s.Set(context.Background(), name, value); err != nil {
			t.Fatalf("set %s: %v", name, err)
		}
	}
}

func TestFirstRDNValue(t *testing.T) {
	cases := map[string]string{
		"cn=demo-1a,cn=klassen,cn=schueler,ou=demo": "demo-1a",
		`cn=a\,b,ou=demo`: "a,b",
		"uid=anna":        "anna",
		"demo-1a":         "demo-1a",
		"":                "",
	}
	for dn, want := range cases {
		if got := schoolwizards.FirstRDNValue(dn); got != want {
			t.Fatalf("FirstRDNValue(%q) = %q, want %q", dn, got, want)
		}
	}
}

func TestComputerCreateWithWarning(t *testing.T) {
	backend := testsupport.NewBackend()
	backend.Queue(schoolwizards.CommandComputers+"/add",
		remote.Warn("The IP address 10.0.0.5 is already in use."),
		remote.OK(true),
	)

	s, err := wizard.Open(context.Background(), schoolwizards.Computer(backend.Channel()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if got := s.Values(); got["school"] != "demo" || got["type"] != "windows" {
		t.Fatalf("expected first school and type preselected, got %v", got)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	set(t, s, map[string]any{"name": "pc01", "ip_address": "10.0.0.5", "mac_address": "00:11:22:33:44:55"})

	outcome, err := s.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if outcome.Kind != submission.KindWarning {
		t.Fatalf("expected warning, got %#v", outcome)
	}
	if outcome, err = s.Confirm(context.Background()); err != nil || outcome.Kind != submission.KindSuccess {
		t.Fatalf("confirm: %#v %v", outcome, err)
	}

	sent := backend.Sent(schoolwizards.CommandComputers + "/add")
	if len(sent) != 2 {
		t.Fatalf("expected two add calls, got %d", len(sent))
	}
	want := map[string]any{
		"school":           "demo",
		"type":             "windows",
		"name":             "pc01",
		"ip_address":       []any{"10.0.0.5"},
		"subnet_mask":      schoolwizards.DefaultSubnetMask,
		"mac_address":      []any{"00:11:22:33:44:55"},
		"inventory_number": nil,
		"ignore_warning":   false,
	}
	if diff := cmp.Diff(want, sent[0]); diff != "" {
		t.Fatalf("first payload mismatch (-want +got):\n%s", diff)
	}
	want["ignore_warning"] = true
	if diff := cmp.Diff(want, sent[1]); diff != "" {
		t.Fatalf("second payload mismatch (-want +got):\n%s", diff)
	}

	notes := s.TakeNotes()
	wantNote := `Computer "pc01" has been successfully created. Continue to create another computer or press "Cancel" to close this wizard.`
	if diff := cmp.Diff([]string{wantNote}, notes); diff != "" {
		t.Fatalf("notes mismatch (-want +got):\n%s", diff)
	}
	values := s.Values()
	if values["school"] != "demo" || values["name"] != nil || values["subnet_mask"] != schoolwizards.DefaultSubnetMask {
		t.Fatalf("unexpected values after restart %v", values)
	}
}

func TestComputerEditSendsTarget(t *testing.T) {
	backend := testsupport.NewBackend()
	dn := "cn=pc01,cn=computers,ou=demo"
	backend.AddRecord(dn, map[string]any{
		"name": "pc01", "school": "demo", "type": "windows",
		"ip_address": []any{"10.0.0.5"}, "mac_address": []any{"00:11:22:33:44:55"},
		"subnet_mask": "255.255.0.0", "inventory_number": "INV-1",
	})

	s, err := wizard.Open(context.Background(), schoolwizards.Computer(backend.Channel()), wizard.WithEdit(dn))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if err := s.Set(context.Background(), "name", "pc02"); !errors.Is(err, wizard.ErrFieldDisabled) {
		t.Fatalf("expected name to be read-only, got %v", err)
	}
	set(t, s, map[string]any{"inventory_number": "INV-2"})

	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !s.Closed() {
		t.Fatalf("edit success must close the wizard")
	}
	sent := backend.Sent(schoolwizards.CommandComputers + "/put")
	if len(sent) != 1 {
		t.Fatalf("expected one put, got %d", len(sent))
	}
	got := sent[0]
	if got[schoolwizards.DNKey] != dn || got["school"] != "demo" || got["inventory_number"] != "INV-2" {
		t.Fatalf("unexpected put payload %v", got)
	}
	if diff := cmp.Diff([]any{"10.0.0.5"}, got["ip_address"]); diff != "" {
		t.Fatalf("ip mismatch (-want +got):\n%s", diff)
	}
	if _, ok := got["ignore_warning"]; ok {
		t.Fatalf("updates must not carry the warning flag: %v", got)
	}
}

func TestUserEditMergesClasses(t *testing.T) {
	backend := testsupport.NewBackend()
	dn := "uid=anna,cn=schueler,cn=users,ou=demo"
	backend.AddRecord(dn, map[string]any{
		"name": "anna", "firstname": "Anna", "lastname": "Abel", "school": "demo", "type": "student",
		"school_classes": map[string]any{"demo": []any{"demo-1a", "demo-x"}, "other": []any{"other-1"}},
	})

	s, err := wizard.Open(context.Background(), schoolwizards.User(backend.Channel()), wizard.WithEdit(dn))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	want := []model.Choice{{ID: "demo-1a", Label: "1a"}, {ID: "demo-2b", Label: "2b"}}
	if diff := cmp.Diff(want, s.Choices("school_classes")); diff != "" {
		t.Fatalf("class choices mismatch (-want +got):\n%s", diff)
	}
	if got := s.Values()["school_classes"]; got != "demo-1a" {
		t.Fatalf("expected loaded class selected, got %v", got)
	}

	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	set(t, s, map[string]any{"school_classes": "demo-2b"})
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	sent := backend.Sent(schoolwizards.CommandUsers + "/put")
	if len(sent) != 1 {
		t.Fatalf("expected one put, got %d", len(sent))
	}
	wantClasses := map[string]any{"demo": []any{"demo-2b", "demo-x"}, "other": []any{"other-1"}}
	if diff := cmp.Diff(wantClasses, sent[0]["school_classes"]); diff != "" {
		t.Fatalf("class map mismatch (-want +got):\n%s", diff)
	}
	if sent[0][schoolwizards.DNKey] != dn {
		t.Fatalf("missing DN in %v", sent[0])
	}
	if _, ok := sent[0]["$school_classes$"]; ok {
		t.Fatalf("internal class map leaked into the payload")
	}
}

func TestUserEditSchoolChangeUsesClassOfNewSchool(t *testing.T) {
	backend := testsupport.NewBackend()
	dn := "uid=anna,cn=schueler,cn=users,ou=demo"
	backend.AddRecord(dn, map[string]any{
		"name": "anna", "firstname": "Anna", "lastname": "Abel", "school": "demo", "type": "student",
		"school_classes": map[string]any{"demo": []any{"demo-1a"}},
	})

	s, err := wizard.Open(context.Background(), schoolwizards.User(backend.Channel()), wizard.WithEdit(dn))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	set(t, s, map[string]any{"school": "other"})

	want := []model.Choice{{ID: "other-1a", Label: "1a"}, {ID: "other-2b", Label: "2b"}}
	if diff := cmp.Diff(want, s.Choices("school_classes")); diff != "" {
		t.Fatalf("class choices mismatch (-want +got):\n%s", diff)
	}
	if got := s.Values()["school_classes"]; got != "other-1a" {
		t.Fatalf("expected a class of the new school, got %v", got)
	}

	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sent := backend.Sent(schoolwizards.CommandUsers + "/put")
	if len(sent) != 1 {
		t.Fatalf("expected one put, got %d", len(sent))
	}
	wantClasses := map[string]any{"demo": []any{"demo-1a"}, "other": []any{"other-1a"}}
	if diff := cmp.Diff(wantClasses, sent[0]["school_classes"]); diff != "" {
		t.Fatalf("class map mismatch (-want +got):\n%s", diff)
	}
}

func TestUserEditSchoolChangePrefersLoadedClassOfThatSchool(t *testing.T) {
	backend := testsupport.NewBackend()
	dn := "uid=anna,cn=schueler,cn=users,ou=demo"
	backend.AddRecord(dn, map[string]any{
		"name": "anna", "firstname": "Anna", "lastname": "Abel", "school": "demo", "type": "student",
		"school_classes": map[string]any{"demo": []any{"demo-1a"}, "other": []any{"other-2b"}},
	})

	s, err := wizard.Open(context.Background(), schoolwizards.User(backend.Channel()), wizard.WithEdit(dn))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	set(t, s, map[string]any{"school": "other"})

	want := []model.Choice{{ID: "other-2b", Label: "2b"}, {ID: "other-1a", Label: "1a"}}
	if diff := cmp.Diff(want, s.Choices("school_classes")); diff != "" {
		t.Fatalf("class choices mismatch (-want +got):\n%s", diff)
	}
	if got := s.Values()["school_classes"]; got != "other-2b" {
		t.Fatalf("expected the loaded class of the new school, got %v", got)
	}
}

func TestUserCreateTeacherOmitsClasses(t *testing.T) {
	backend := testsupport.NewBackend()
	backend.SetConfig(model.KeyOptionalVisibleFields, "email password")

	s, err := wizard.Open(context.Background(), schoolwizards.User(backend.Channel()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	set(t, s, map[string]any{"type": "teacher"})
	if state, _ := s.State("school_classes"); state.Visible || state.Required {
		t.Fatalf("class must be hidden for teachers, got %+v", state)
	}
	if state, _ := s.State("email"); !state.Visible {
		t.Fatalf("allow-listed email should be visible")
	}
	if state, _ := s.State("birthday"); state.Visible {
		t.Fatalf("birthday is not allow-listed")
	}
	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}

	set(t, s, map[string]any{"firstname": "Tom", "lastname": "Teach", "name": strings.Repeat("t", 16)})
	_, err = s.Submit(context.Background())
	var verr *submission.ValidationError
	if !errors.As(err, &verr) || verr.Results.Failed()[0] != "name" {
		t.Fatalf("expected username length failure, got %v", err)
	}
	if !strings.Contains(verr.Results["name"].Messages[0], "longer than 15 characters") {
		t.Fatalf("unexpected message %q", verr.Results["name"].Messages[0])
	}

	set(t, s, map[string]any{"name": "tteach"})
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sent := backend.Sent(schoolwizards.CommandUsers + "/add")
	if len(sent) != 1 {
		t.Fatalf("expected one add, got %d", len(sent))
	}
	if _, ok := sent[0]["school_classes"]; ok {
		t.Fatalf("teachers must not send classes: %v", sent[0])
	}
	if diff := cmp.Diff([]any{"demo"}, sent[0]["schools"]); diff != "" {
		t.Fatalf("schools mismatch (-want +got):\n%s", diff)
	}
	if v, ok := sent[0]["password"]; !ok || v != nil {
		t.Fatalf("expected null password, got %v", v)
	}
}

func TestUserCreateStudentKeepsClassAcrossLoop(t *testing.T) {
	backend := testsupport.NewBackend()
	s, err := wizard.Open(context.Background(), schoolwizards.User(backend.Channel()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	set(t, s, map[string]any{"firstname": "Sam", "lastname": "Stud", "name": "sstud", "school_classes": "demo-2b"})
	if _, err := s.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}

	sent := backend.Sent(schoolwizards.CommandUsers + "/add")
	if diff := cmp.Diff(map[string]any{"demo": []any{"demo-2b"}}, sent[0]["school_classes"]); diff != "" {
		t.Fatalf("class map mismatch (-want +got):\n%s", diff)
	}
	values := s.Values()
	if values["school_classes"] != "demo-2b" || values["name"] != nil || values["password"] != nil {
		t.Fatalf("unexpected values after restart %v", values)
	}
}
