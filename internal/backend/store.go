// Package backend is a development implementation of the school directory
// commands used by the wizards, backed by SQLite.
package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/goliatone/go-schoolwizard/pkg/model"
)

// ErrNotFound is returned for unknown records.
var ErrNotFound = errors.New("backend: no such object")

// Kind is a record type.
type Kind string

const (
	KindComputer Kind = "computer"
	KindUser     Kind = "user"
)

// Record is a stored directory object. Data holds the submitted attributes.
type Record struct {
	Kind Kind
	DN   string
	Data map[string]any
}

// Name returns the record name attribute.
func (r Record) Name() string {
	return stringAttr(r.Data, "name")
}

// School returns the record school attribute.
func (r Record) School() string {
	return stringAttr(r.Data, "school")
}

// RecordDN builds the DN of a new record.
func RecordDN(kind Kind, name, school string) string {
	if kind == KindUser {
		return fmt.Sprintf("uid=%s,cn=users,ou=%s", name, school)
	}
	return fmt.Sprintf("cn=%s,cn=computers,ou=%s", name, school)
}

// ClassDN builds the DN of a class.
func ClassDN(school, name string) string {
	return fmt.Sprintf("cn=%s-%s,cn=klassen,cn=schueler,ou=%s", school, name, school)
}

const schema = `
CREATE TABLE IF NOT EXISTS config (key TEXT PRIMARY KEY, value TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS schools (id TEXT PRIMARY KEY, label TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS classes (dn TEXT PRIMARY KEY, school TEXT NOT NULL, name TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS computer_types (id TEXT PRIMARY KEY, label TEXT NOT NULL);
CREATE TABLE IF NOT EXISTS records (
	dn TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	school TEXT NOT NULL,
	data TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS records_kind_name ON records (kind, name);
CREATE TABLE IF NOT EXISTS addresses (ip TEXT NOT NULL, dn TEXT NOT NULL);
CREATE INDEX IF NOT EXISTS addresses_ip ON addresses (ip);
`

// Store persists the directory in SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens (and migrates) the database at dsn. ":memory:" keeps the
// directory in memory for the lifetime of the store.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("backend: open %s: %w", dsn, err)
	}
	// every connection to :memory: would see its own empty database
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: zerolog.Nop()}
	for _, opt := range options {
		if opt != nil {
			opt(s)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("backend: migrate: %w", err)
	}
	s.logger.Debug().Str("dsn", dsn).Msg("directory store ready")
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Schools lists the schools ordered by id.
func (s *Store) Schools(ctx context.Context) ([]model.Choice, error) {
	return s.choices(ctx, `SELECT id, label FROM schools ORDER BY id`)
}

// Classes lists the classes of school. Ids are class DNs.
func (s *Store) Classes(ctx context.Context, school string) ([]model.Choice, error) {
	return s.choices(ctx, `SELECT dn, name FROM classes WHERE school = ? ORDER BY name`, school)
}

// ComputerTypes lists the computer types in seed order.
func (s *Store) ComputerTypes(ctx context.Context) ([]model.Choice, error) {
	return s.choices(ctx, `SELECT id, label FROM computer_types ORDER BY rowid`)
}

func (s *Store) choices(ctx context.Context, query string, args ...any) ([]model.Choice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("backend: query choices: %w", err)
	}
	defer rows.Close()

	out := []model.Choice{}
	for rows.Next() {
		var choice model.Choice
		if err := rows.Scan(&choice.ID, &choice.Label); err != nil {
			return nil, fmt.Errorf("backend: scan choice: %w", err)
		}
		out = append(out, choice)
	}
	return out, rows.Err()
}

// Config returns the configuration values of keys. No keys returns every
// value.
func (s *Store) Config(ctx context.Context, keys []string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("backend: query config: %w", err)
	}
	defer rows.Close()

	wanted := make(map[string]bool, len(keys))
	for _, key := range keys {
		wanted[key] = true
	}
	out := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("backend: scan config: %w", err)
		}
		if len(wanted) == 0 || wanted[key] {
			out[key] = value
		}
	}
	return out, rows.Err()
}

// SetConfig stores a configuration value.
func (s *Store) SetConfig(ctx context.Context, key, value string) error {
	if _, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO config (key, value) VALUES (?, ?)`, key, value); err != nil {
		return fmt.Errorf("backend: set config %s: %w", key, err)
	}
	return nil
}

// Get loads a record by DN.
func (s *Store) Get(ctx context.Context, kind Kind, dn string) (Record, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE dn = ? AND kind = ?`, dn, string(kind)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, dn)
	}
	if err != nil {
		return Record{}, fmt.Errorf("backend: get %s: %w", dn, err)
	}
	record := Record{Kind: kind, DN: dn}
	if err := json.Unmarshal([]byte(data), &record.Data); err != nil {
		return Record{}, fmt.Errorf("backend: decode %s: %w", dn, err)
	}
	return record, nil
}

// Save inserts or replaces a record and its address index. A record without
// DN gets one derived from its name and school.
func (s *Store) Save(ctx context.Context, record Record) error {
	name, school := record.Name(), record.School()
	if name == "" || school == "" {
		return fmt.Errorf("backend: %s record needs name and school", record.Kind)
	}
	if record.DN == "" {
		record.DN = RecordDN(record.Kind, name, school)
	}
	data, err := json.Marshal(record.Data)
	if err != nil {
		return fmt.Errorf("backend: encode %s: %w", record.DN, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("backend: begin save: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO records (dn, kind, name, school, data) VALUES (?, ?, ?, ?, ?)`,
		record.DN, string(record.Kind), name, school, string(data)); err != nil {
		return fmt.Errorf("backend: save %s: %w", record.DN, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM addresses WHERE dn = ?`, record.DN); err != nil {
		return fmt.Errorf("backend: reset addresses of %s: %w", record.DN, err)
	}
	for _, ip := range listAttr(record.Data, "ip_address") {
		if _, err := tx.ExecContext(ctx, `INSERT INTO addresses (ip, dn) VALUES (?, ?)`, ip, record.DN); err != nil {
			return fmt.Errorf("backend: index address %s: %w", ip, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("backend: commit %s: %w", record.DN, err)
	}
	s.logger.Debug().Str("dn", record.DN).Str("kind", string(record.Kind)).Msg("record saved")
	return nil
}

// NameTaken reports whether another record of kind uses name.
func (s *Store) NameTaken(ctx context.Context, kind Kind, name, except string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE kind = ? AND lower(name) = lower(?) AND dn <> ?`,
		string(kind), name, except).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("backend: check name %s: %w", name, err)
	}
	return count > 0, nil
}

// AddressesInUse returns the addresses of ips already assigned to another
// record, sorted.
func (s *Store) AddressesInUse(ctx context.Context, ips []string, except string) ([]string, error) {
	if len(ips) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ips)), ",")
	args := make([]any, 0, len(ips)+1)
	for _, ip := range ips {
		args = append(args, ip)
	}
	args = append(args, except)

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT ip FROM addresses WHERE ip IN (`+placeholders+`) AND dn <> ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("backend: check addresses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var ip string
		if err := rows.Scan(&ip); err != nil {
			return nil, fmt.Errorf("backend: scan address: %w", err)
		}
		out = append(out, ip)
	}
	sort.Strings(out)
	return out, rows.Err()
}

func stringAttr(data map[string]any, key string) string {
	if value, ok := data[key].(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

func listAttr(data map[string]any, key string) []string {
	switch typed := data[key].(type) {
	case string:
		if strings.TrimSpace(typed) == "" {
			return nil
		}
		return []string{strings.TrimSpace(typed)}
	case []any:
		out := make([]string, 0, len(typed))
		for _, item := range typed {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case []string:
		return typed
	}
	return nil
}
