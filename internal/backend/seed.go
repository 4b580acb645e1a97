package backend

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-schoolwizard/pkg/model"
)

//go:embed seed.yml
var defaultSeed []byte

// School is a seeded school with its class names.
type School struct {
	ID      string   `yaml:"id"`
	Label   string   `yaml:"label"`
	Classes []string `yaml:"classes"`
}

// Seed is the initial content of a development directory.
type Seed struct {
	Config        map[string]string `yaml:"config"`
	Schools       []School          `yaml:"schools"`
	ComputerTypes []model.Choice    `yaml:"computer_types"`
	Computers     []map[string]any  `yaml:"computers"`
	Users         []map[string]any  `yaml:"users"`
}

// DefaultSeed returns the built-in seed.
func DefaultSeed() (Seed, error) {
	return ParseSeed(defaultSeed)
}

// LoadSeed reads a seed file. An empty path returns the built-in seed.
func LoadSeed(path string) (Seed, error) {
	if path == "" {
		return DefaultSeed()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("backend: read seed: %w", err)
	}
	return ParseSeed(data)
}

// ParseSeed decodes YAML seed data.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("backend: parse seed: %w", err)
	}
	for i, school := range seed.Schools {
		if school.ID == "" {
			return Seed{}, fmt.Errorf("backend: seed school %d has no id", i)
		}
	}
	return seed, nil
}

// Apply writes seed into the store. Records are inserted as given; existing
// rows are replaced.
func (s *Store) Apply(ctx context.Context, seed Seed) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("backend: begin seed: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, value := range seed.Config {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`, key, value); err != nil {
			return fmt.Errorf("backend: seed config %s: %w", key, err)
		}
	}
	for _, school := range seed.Schools {
		label := school.Label
		if label == "" {
			label = school.ID
		}
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO schools (id, label) VALUES (?, ?)`, school.ID, label); err != nil {
			return fmt.Errorf("backend: seed school %s: %w", school.ID, err)
		}
		for _, class := range school.Classes {
			if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO classes (dn, school, name) VALUES (?, ?, ?)`,
				ClassDN(school.ID, class), school.ID, class); err != nil {
				return fmt.Errorf("backend: seed class %s: %w", class, err)
			}
		}
	}
	for _, kind := range seed.ComputerTypes {
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO computer_types (id, label) VALUES (?, ?)`, kind.ID, kind.Label); err != nil {
			return fmt.Errorf("backend: seed computer type %s: %w", kind.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("backend: commit seed: %w", err)
	}

	for _, record := range seed.Computers {
		if err := s.Save(ctx, Record{Kind: KindComputer, Data: record}); err != nil {
			return err
		}
	}
	for _, record := range seed.Users {
		if err := s.Save(ctx, Record{Kind: KindUser, Data: record}); err != nil {
			return err
		}
	}
	return nil
}
