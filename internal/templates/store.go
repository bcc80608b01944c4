// Package templates persists reusable summary prompts in a fixed number of
// slots. Templates are the only state that survives a session reset.
package templates

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Slots is the fixed number of template slots, numbered 1..Slots.
const Slots = 5

var (
	ErrInvalidSlot = fmt.Errorf("slot must be between 1 and %d", Slots)
	ErrEmptySlot   = errors.New("template slot is empty")
	ErrEmptyPrompt = errors.New("template prompt is empty")
)

// Template is one saved prompt. An unused slot has an empty Prompt.
type Template struct {
	Slot      int       `json:"slot"`
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Empty reports whether the slot holds no template.
func (t Template) Empty() bool { return t.Prompt == "" }

// Store is a sqlite-backed template store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path. ":memory:" gives each store
// its own private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	if path == ":memory:" {
		dsn = fmt.Sprintf("file:templates-%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open template db: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS prompt_templates (
		slot INTEGER PRIMARY KEY CHECK (slot BETWEEN 1 AND 5),
		name TEXT NOT NULL DEFAULT '',
		prompt TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);`)
	if err != nil {
		return fmt.Errorf("migrate template db: %w", err)
	}
	return nil
}

func checkSlot(slot int) error {
	if slot < 1 || slot > Slots {
		return fmt.Errorf("%w: got %d", ErrInvalidSlot, slot)
	}
	return nil
}

// List returns all Slots templates in slot order; unused slots are empty.
func (s *Store) List() ([]Template, error) {
	out := make([]Template, Slots)
	for i := range out {
		out[i].Slot = i + 1
	}
	rows, err := s.db.Query("SELECT slot, name, prompt, updated_at FROM prompt_templates ORDER BY slot")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.Slot, &t.Name, &t.Prompt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out[t.Slot-1] = t
	}
	return out, rows.Err()
}

// Get returns the template in slot, or ErrEmptySlot.
func (s *Store) Get(slot int) (Template, error) {
	if err := checkSlot(slot); err != nil {
		return Template{}, err
	}
	t := Template{Slot: slot}
	err := s.db.QueryRow(
		"SELECT name, prompt, updated_at FROM prompt_templates WHERE slot = ?", slot,
	).Scan(&t.Name, &t.Prompt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrEmptySlot
	}
	return t, err
}

// Save overwrites slot. A blank name defaults to the prompt's first line.
func (s *Store) Save(slot int, name, prompt string) (Template, error) {
	if err := checkSlot(slot); err != nil {
		return Template{}, err
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Template{}, ErrEmptyPrompt
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = defaultName(prompt)
	}
	t := Template{Slot: slot, Name: name, Prompt: prompt, UpdatedAt: time.Now().UTC().Truncate(time.Second)}
	_, err := s.db.Exec(`
		INSERT INTO prompt_templates (slot, name, prompt, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET name = excluded.name, prompt = excluded.prompt, updated_at = excluded.updated_at`,
		t.Slot, t.Name, t.Prompt, t.UpdatedAt,
	)
	if err != nil {
		return Template{}, fmt.Errorf("save template %d: %w", slot, err)
	}
	return t, nil
}

// Delete clears slot. Clearing an empty slot is not an error.
func (s *Store) Delete(slot int) error {
	if err := checkSlot(slot); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM prompt_templates WHERE slot = ?", slot)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func defaultName(prompt string) string {
	line, _, _ := strings.Cut(prompt, "\n")
	if r := []rune(line); len(r) > 40 {
		return string(r[:40]) + "…"
	}
	return line
}
