package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/schoolwizards"
	"github.com/goliatone/go-schoolwizard/pkg/testsupport"
	"github.com/goliatone/go-schoolwizard/pkg/wizard"
)

type stubDriver struct {
	inputs       []string
	selectIdx    []int
	confirm      []bool
	passwords    []string
	infoMessages []string
	prompts      []string
	inputPos     int
	selectPos    int
	confirmPos   int
	passPos      int
}

func (s *stubDriver) Input(_ context.Context, cfg InputConfig) (string, error) {
	s.prompts = append(s.prompts, cfg.Message)
	if s.inputPos >= len(s.inputs) {
		return "", errors.New("no input scripted")
	}
	val := s.inputs[s.inputPos]
	s.inputPos++
	if cfg.Validator != nil {
		if err := cfg.Validator(val); err != nil {
			return "", err
		}
	}
	return val, nil
}

func (s *stubDriver) Password(_ context.Context, cfg InputConfig) (string, error) {
	s.prompts = append(s.prompts, cfg.Message)
	if s.passPos >= len(s.passwords) {
		return "", errors.New("no password scripted")
	}
	val := s.passwords[s.passPos]
	s.passPos++
	return val, nil
}

func (s *stubDriver) Confirm(_ context.Context, cfg ConfirmConfig) (bool, error) {
	s.prompts = append(s.prompts, cfg.Message)
	if s.confirmPos >= len(s.confirm) {
		return false, errors.New("no confirm scripted")
	}
	val := s.confirm[s.confirmPos]
	s.confirmPos++
	return val, nil
}

func (s *stubDriver) Select(_ context.Context, cfg SelectConfig) (int, error) {
	s.prompts = append(s.prompts, cfg.Message)
	if s.selectPos >= len(s.selectIdx) {
		return -1, errors.New("no select scripted")
	}
	val := s.selectIdx[s.selectPos]
	s.selectPos++
	return val, nil
}

func (s *stubDriver) Info(_ context.Context, msg string) error {
	s.infoMessages = append(s.infoMessages, msg)
	return nil
}

func (s *stubDriver) said(prefix string) []string {
	var out []string
	for _, msg := range s.infoMessages {
		if strings.HasPrefix(msg, prefix) {
			out = append(out, msg)
		}
	}
	return out
}

func openComputer(t *testing.T, backend *testsupport.Backend, opts ...wizard.Option) *wizard.Session {
	t.Helper()
	s, err := wizard.Open(context.Background(), schoolwizards.Computer(backend.Channel()), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return s
}

func TestRunCreatesComputerThroughWarning(t *testing.T) {
	backend := testsupport.NewBackend()
	backend.Queue(schoolwizards.CommandComputers+"/add", remote.Warn("<p>The IP address is <b>already</b> in use.</p>"))
	session := openComputer(t, backend)

	driver := &stubDriver{
		// school, type, action on general; action on item
		selectIdx: []int{0, 1, 0, 0},
		inputs:    []string{"pc01", "10.0.0.5, 10.0.0.6", "255.255.255.0", "00:11:22:33:44:55", ""},
		// continue despite warning, stop after the first record
		confirm: []bool{true, false},
	}
	summary, err := New(WithPromptDriver(driver)).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(Summary{Created: 1}, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if !session.Closed() {
		t.Fatalf("declining another record should close the session")
	}

	sent := backend.Sent(schoolwizards.CommandComputers + "/add")
	if len(sent) != 2 {
		t.Fatalf("expected two add calls, got %d", len(sent))
	}
	if sent[0]["type"] != "macos" || sent[0]["ignore_warning"] != false || sent[1]["ignore_warning"] != true {
		t.Fatalf("unexpected payloads %v", sent)
	}
	if diff := cmp.Diff([]any{"10.0.0.5", "10.0.0.6"}, sent[1]["ip_address"]); diff != "" {
		t.Fatalf("ip mismatch (-want +got):\n%s", diff)
	}
	if got := driver.prompts[len(driver.prompts)-2]; got != "Warning: The IP address is already in use. Continue anyway?" {
		t.Fatalf("unexpected warning prompt %q", got)
	}
	if notes := driver.said(`Computer "pc01"`); len(notes) != 1 {
		t.Fatalf("expected the success note, got %v", driver.infoMessages)
	}
}

func TestRunReportsValidationAndRetries(t *testing.T) {
	backend := testsupport.NewBackend()
	session := openComputer(t, backend)

	driver := &stubDriver{
		selectIdx: []int{0, 0, 0, 0, 0},
		inputs: []string{
			"", "", "255.255.255.0", "", "",
			"pc02", "10.0.0.7", "255.255.255.0", "00:11:22:33:44:66", "",
		},
		confirm: []bool{false},
	}
	summary, err := New(WithPromptDriver(driver)).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.Created != 1 {
		t.Fatalf("expected one record, got %+v", summary)
	}
	if errs := driver.said("Error: Name:"); len(errs) == 0 {
		t.Fatalf("expected a labelled name error, got %v", driver.infoMessages)
	}
	if errs := driver.said("Error: IP address:"); len(errs) == 0 {
		t.Fatalf("expected a labelled ip error, got %v", driver.infoMessages)
	}
	if sent := backend.Sent(schoolwizards.CommandComputers + "/add"); len(sent) != 1 || sent[0]["name"] != "pc02" {
		t.Fatalf("unexpected payloads %v", sent)
	}
}

func TestRunAbandonedWarningKeepsValuesUntilCancel(t *testing.T) {
	backend := testsupport.NewBackend()
	backend.Queue(schoolwizards.CommandComputers+"/add", remote.Warn("Duplicate IP."))
	session := openComputer(t, backend)

	driver := &stubDriver{
		// general, finish, then cancel on the redisplayed item page
		selectIdx: []int{0, 0, 0, 0, 2},
		inputs: []string{
			"pc03", "10.0.0.8", "255.255.255.0", "00:11:22:33:44:77", "",
			"pc03", "10.0.0.8", "255.255.255.0", "00:11:22:33:44:77", "",
		},
		confirm: []bool{false},
	}
	summary, err := New(WithPromptDriver(driver)).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(Summary{Cancelled: true}, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if sent := backend.Sent(schoolwizards.CommandComputers + "/add"); len(sent) != 1 {
		t.Fatalf("abandon must not resubmit, got %d calls", len(sent))
	}
}

func TestRunEditShowsReadOnlyFieldsAndSaves(t *testing.T) {
	backend := testsupport.NewBackend()
	dn := "cn=pc01,cn=computers,ou=demo"
	backend.AddRecord(dn, map[string]any{
		"name": "pc01", "school": "demo", "type": "windows",
		"ip_address": []any{"10.0.0.5"}, "mac_address": []any{"00:11:22:33:44:55"},
		"subnet_mask": "255.255.0.0", "inventory_number": "INV-1",
	})
	session := openComputer(t, backend, wizard.WithEdit(dn))

	driver := &stubDriver{
		selectIdx: []int{0, 0, 0, 0},
		inputs:    []string{"10.0.0.5", "255.255.0.0", "00:11:22:33:44:55", "INV-2"},
	}
	summary, err := New(WithPromptDriver(driver)).Run(context.Background(), session)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if diff := cmp.Diff(Summary{Updated: true}, summary); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	if shown := driver.said("Name: pc01"); len(shown) != 1 {
		t.Fatalf("expected read-only name to be shown, got %v", driver.infoMessages)
	}
	sent := backend.Sent(schoolwizards.CommandComputers + "/put")
	if len(sent) != 1 || sent[0]["inventory_number"] != "INV-2" || sent[0][schoolwizards.DNKey] != dn {
		t.Fatalf("unexpected put payloads %v", sent)
	}
}

func TestRunStopsWhenPromptFails(t *testing.T) {
	backend := testsupport.NewBackend()
	session := openComputer(t, backend)

	driver := &stubDriver{}
	if _, err := New(WithPromptDriver(driver)).Run(context.Background(), session); err == nil {
		t.Fatalf("expected the driver error to end the run")
	}
}

func TestParseAndFormatList(t *testing.T) {
	got := parseList(" 10.0.0.1,10.0.0.2 ;10.0.0.3 ")
	if diff := cmp.Diff([]any{"10.0.0.1", "10.0.0.2", "10.0.0.3"}, got); diff != "" {
		t.Fatalf("parse mismatch (-want +got):\n%s", diff)
	}
	if formatted := formatList(got); formatted != "10.0.0.1, 10.0.0.2, 10.0.0.3" {
		t.Fatalf("unexpected format %q", formatted)
	}
	if !sameValue(nil, []any{}) || sameValue("a", "b") {
		t.Fatalf("blank values should compare equal")
	}
	if err := validDate("2024-02-30"); err == nil {
		t.Fatalf("expected invalid date")
	}
}
