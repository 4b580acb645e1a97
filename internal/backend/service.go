package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/rs/zerolog"

	"github.com/goliatone/go-schoolwizard/pkg/messages"
	"github.com/goliatone/go-schoolwizard/pkg/remote"
	"github.com/goliatone/go-schoolwizard/pkg/schoolwizards"
	"github.com/goliatone/go-schoolwizard/pkg/submission"
)

// internal payload keys that are never stored
var transient = []string{schoolwizards.DNKey, submission.DefaultAckKey}

// Service answers the wizard commands from a Store.
type Service struct {
	store  *Store
	logger zerolog.Logger
}

// NewService builds a Service over store.
func NewService(store *Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Mux returns a command mux with every wizard command registered.
func (s *Service) Mux() *remote.Mux {
	mux := remote.NewMux()
	mux.RegisterFunc(schoolwizards.CommandSchools, s.schools)
	mux.RegisterFunc(schoolwizards.CommandClasses, s.classes)
	mux.RegisterFunc(schoolwizards.CommandComputerTypes, s.computerTypes)
	mux.RegisterFunc(remote.ConfigCommand, s.config)

	for kind, prefix := range map[Kind]string{
		KindComputer: schoolwizards.CommandComputers,
		KindUser:     schoolwizards.CommandUsers,
	} {
		mux.RegisterFunc(prefix+"/get", func(ctx context.Context, raw json.RawMessage) (remote.Response, error) {
			return s.get(ctx, kind, raw)
		})
		mux.RegisterFunc(prefix+"/add", func(ctx context.Context, raw json.RawMessage) (remote.Response, error) {
			return s.write(ctx, kind, raw, false)
		})
		mux.RegisterFunc(prefix+"/put", func(ctx context.Context, raw json.RawMessage) (remote.Response, error) {
			return s.write(ctx, kind, raw, true)
		})
	}
	return mux
}

func (s *Service) schools(ctx context.Context, _ json.RawMessage) (remote.Response, error) {
	schools, err := s.store.Schools(ctx)
	if err != nil {
		return remote.Response{}, err
	}
	return remote.OK(schools), nil
}

func (s *Service) classes(ctx context.Context, raw json.RawMessage) (remote.Response, error) {
	var req struct {
		School string `json:"school"`
	}
	if err := decode(raw, &req); err != nil {
		return remote.Response{}, err
	}
	classes, err := s.store.Classes(ctx, req.School)
	if err != nil {
		return remote.Response{}, err
	}
	return remote.OK(classes), nil
}

func (s *Service) computerTypes(ctx context.Context, _ json.RawMessage) (remote.Response, error) {
	types, err := s.store.ComputerTypes(ctx)
	if err != nil {
		return remote.Response{}, err
	}
	return remote.OK(types), nil
}

func (s *Service) config(ctx context.Context, raw json.RawMessage) (remote.Response, error) {
	var req struct {
		Keys []string `json:"keys"`
	}
	if err := decode(raw, &req); err != nil {
		return remote.Response{}, err
	}
	values, err := s.store.Config(ctx, req.Keys)
	if err != nil {
		return remote.Response{}, err
	}
	return remote.OK(values), nil
}

func (s *Service) get(ctx context.Context, kind Kind, raw json.RawMessage) (remote.Response, error) {
	var req map[string]any
	if err := decode(raw, &req); err != nil {
		return remote.Response{}, err
	}
	dn := stringAttr(req, schoolwizards.DNKey)
	record, err := s.store.Get(ctx, kind, dn)
	if errors.Is(err, ErrNotFound) {
		return remote.Failure(fmt.Sprintf("The object %s does not exist.", html.EscapeString(dn))), nil
	}
	if err != nil {
		return remote.Response{}, err
	}
	return remote.OK(record.Data), nil
}

// write validates and stores an add or put. Business rule violations are
// answered with an error or warning response, infrastructure failures with
// a handler error.
func (s *Service) write(ctx context.Context, kind Kind, raw json.RawMessage, update bool) (remote.Response, error) {
	var payload map[string]any
	if err := decode(raw, &payload); err != nil {
		return remote.Response{}, err
	}
	acknowledged, _ := payload[submission.DefaultAckKey].(bool)
	record := Record{Kind: kind, DN: stringAttr(payload, schoolwizards.DNKey), Data: payload}
	for _, key := range transient {
		delete(record.Data, key)
	}
	log := s.logger.With().Str("kind", string(kind)).Bool("update", update).Logger()

	if update {
		if record.DN == "" {
			return remote.Failure("The object to modify is missing."), nil
		}
		if _, err := s.store.Get(ctx, kind, record.DN); err != nil {
			if errors.Is(err, ErrNotFound) {
				return remote.Failure(fmt.Sprintf("The object %s does not exist.", html.EscapeString(record.DN))), nil
			}
			return remote.Response{}, err
		}
	} else {
		record.DN = ""
	}

	if problems := required(record); len(problems) > 0 {
		return remote.Failure(strings.Join(problems, "<br>")), nil
	}

	taken, err := s.store.NameTaken(ctx, kind, record.Name(), record.DN)
	if err != nil {
		return remote.Response{}, err
	}
	if taken {
		log.Debug().Str("name", record.Name()).Msg("name already in use")
		return remote.Failure(messages.Labelled("Name",
			fmt.Sprintf("The name <b>%s</b> is already in use", html.EscapeString(record.Name())))), nil
	}

	if kind == KindComputer && !acknowledged {
		inUse, err := s.store.AddressesInUse(ctx, listAttr(record.Data, "ip_address"), record.DN)
		if err != nil {
			return remote.Response{}, err
		}
		if len(inUse) > 0 {
			log.Debug().Strs("ips", inUse).Msg("address already in use")
			return remote.Warn(fmt.Sprintf("<p>The IP address %s is already in use.</p>", strings.Join(inUse, ", "))), nil
		}
	}

	if err := s.store.Save(ctx, record); err != nil {
		return remote.Response{}, err
	}
	log.Info().Str("name", record.Name()).Msg("record stored")
	return remote.OK(true), nil
}

func required(record Record) []string {
	var problems []string
	if record.Name() == "" {
		problems = append(problems, messages.Labelled("Name", "This value is required"))
	}
	if record.School() == "" {
		problems = append(problems, messages.Labelled("School", "This value is required"))
	}
	return problems
}

func decode(raw json.RawMessage, target any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("backend: decode request: %w", err)
	}
	return nil
}
