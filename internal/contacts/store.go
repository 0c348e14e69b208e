// Package contacts implements the contacts capability group: a small
// SQLite directory of people with email, phone and relationship, plus
// vCard import and export.
package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Errors returned by Store.
var (
	ErrNotFound = errors.New("contact not found")
	ErrExists   = errors.New("contact already exists")
)

const (
	contactColumns = "id, name, email, phone, relationship, created_at, updated_at"
	activeFilter   = "deleted_at IS NULL"
)

// Contact is one directory entry. Names are unique ignoring case.
type Contact struct {
	ID           uuid.UUID `json:"-"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	Relationship string    `json:"relationship"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// Patch lists the fields to change on edit. Empty fields are kept.
type Patch struct {
	Name         string
	Email        string
	Phone        string
	Relationship string
}

// Store persists contacts in SQLite. Deletes are soft so a re-added
// name gets a fresh row.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// Open opens (or creates) the contacts database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates a store over an open database.
func New(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger, nowFunc: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS contacts (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			email        TEXT NOT NULL DEFAULT '',
			phone        TEXT NOT NULL DEFAULT '',
			relationship TEXT NOT NULL DEFAULT '',
			created_at   TEXT NOT NULL,
			updated_at   TEXT NOT NULL,
			deleted_at   TEXT
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_contacts_name_active
			ON contacts(LOWER(name)) WHERE deleted_at IS NULL;
		CREATE INDEX IF NOT EXISTS idx_contacts_email ON contacts(LOWER(email));
	`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts c, assigning its ID and timestamps.
func (s *Store) Add(ctx context.Context, c *Contact) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return errors.New("name is required")
	}
	if _, err := s.FindByName(ctx, c.Name); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, c.Name)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate id: %w", err)
	}
	now := s.nowFunc().UTC()
	c.ID, c.CreatedAt, c.UpdatedAt = id, now, now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, name, email, phone, relationship, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID.String(), c.Name, c.Email, c.Phone, c.Relationship,
		now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	s.logger.Debug("contact added", "name", c.Name)
	return nil
}

// Edit applies p to the contact named name and returns the result.
func (s *Store) Edit(ctx context.Context, name string, p Patch) (*Contact, error) {
	c, err := s.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if p.Name != "" && !strings.EqualFold(p.Name, c.Name) {
		if _, err := s.FindByName(ctx, p.Name); err == nil {
			return nil, fmt.Errorf("%w: %s", ErrExists, p.Name)
		}
	}
	if p.Name != "" {
		c.Name = p.Name
	}
	if p.Email != "" {
		c.Email = p.Email
	}
	if p.Phone != "" {
		c.Phone = p.Phone
	}
	if p.Relationship != "" {
		c.Relationship = p.Relationship
	}
	c.UpdatedAt = s.nowFunc().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE contacts SET name = ?, email = ?, phone = ?, relationship = ?, updated_at = ?
		WHERE id = ?
	`, c.Name, c.Email, c.Phone, c.Relationship, c.UpdatedAt.Format(time.RFC3339Nano), c.ID.String())
	if err != nil {
		return nil, fmt.Errorf("update: %w", err)
	}
	return c, nil
}

// Delete soft-deletes the contact named name.
func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE contacts SET deleted_at = ? WHERE LOWER(name) = LOWER(?) AND `+activeFilter,
		s.nowFunc().UTC().Format(time.RFC3339Nano), strings.TrimSpace(name))
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// FindByName returns the active contact whose name matches ignoring case.
func (s *Store) FindByName(ctx context.Context, name string) (*Contact, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE LOWER(name) = LOWER(?) AND `+activeFilter,
		strings.TrimSpace(name))
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return c, err
}

// Search returns contacts whose name, email, phone or relationship
// contains query, ignoring case.
func (s *Store) Search(ctx context.Context, query string) ([]*Contact, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contactColumns+` FROM contacts
		WHERE `+activeFilter+` AND (
			LOWER(name) LIKE ? OR LOWER(email) LIKE ? OR LOWER(phone) LIKE ? OR LOWER(relationship) LIKE ?
		)
		ORDER BY name COLLATE NOCASE
	`, like, like, like, like)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return scanContacts(rows)
}

// List returns every active contact by name.
func (s *Store) List(ctx context.Context) ([]*Contact, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+contactColumns+` FROM contacts WHERE `+activeFilter+` ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return scanContacts(rows)
}

// Count returns the number of active contacts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM contacts WHERE `+activeFilter).Scan(&n)
	return n, err
}

// LookupEmail returns the name of the contact with address addr.
func (s *Store) LookupEmail(ctx context.Context, addr string) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM contacts WHERE LOWER(email) = LOWER(?) AND `+activeFilter+` LIMIT 1`,
		strings.TrimSpace(addr)).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup %s: %w", addr, err)
	}
	return name, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (*Contact, error) {
	var (
		c                Contact
		id               string
		created, updated string
	)
	if err := row.Scan(&id, &c.Name, &c.Email, &c.Phone, &c.Relationship, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse id %q: %w", id, err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &c, nil
}

func scanContacts(rows *sql.Rows) ([]*Contact, error) {
	defer rows.Close()
	var out []*Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
