// Package memory persists durable user facts as a structured, human-editable
// markdown note and serves keyword-scored recall over it. The note is the
// assistant's long-term memory; the transcript store covers the short term.
package memory

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AverageNftEnjoyer/Nova-sub008/internal/logging"
)

const noteHeader = "# MEMORY\n\nFacts Nova has been asked to remember. One bullet per fact;\nedit freely, Nova upserts by key.\n"

// Note is one remembered fact.
type Note struct {
	Key       string    `json:"key"`
	Text      string    `json:"text"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store reads and writes the MEMORY.md note file. Upserts are keyed so
// re-remembering a fact replaces the stale version instead of appending a
// duplicate.
type Store struct {
	mu    sync.RWMutex
	path  string
	notes []Note // insertion-ordered
}

// NewStore opens (or lazily creates) the note file under the workspace.
func NewStore(workspace string) (*Store, error) {
	path := filepath.Join(workspace, ".nova", "MEMORY.md")
	s := &Store{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open memory note: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "- ") {
			continue
		}
		body := strings.TrimPrefix(line, "- ")
		key, text, ok := strings.Cut(body, ": ")
		if !ok {
			key, text = deriveKey(body), body
		}
		s.notes = append(s.notes, Note{Key: strings.TrimSpace(key), Text: strings.TrimSpace(text)})
	}
	return scanner.Err()
}

// Upsert stores a fact, replacing any existing note with the same key.
func (s *Store) Upsert(key, text string) error {
	if key == "" {
		key = deriveKey(text)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	replaced := false
	for i := range s.notes {
		if s.notes[i].Key == key {
			s.notes[i].Text = text
			s.notes[i].UpdatedAt = now
			replaced = true
			break
		}
	}
	if !replaced {
		s.notes = append(s.notes, Note{Key: key, Text: text, UpdatedAt: now})
	}

	if err := s.flushLocked(); err != nil {
		return err
	}
	logging.Memory("upserted note key=%q replaced=%v", key, replaced)
	return nil
}

// All returns a copy of every note in insertion order.
func (s *Store) All() []Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Note, len(s.notes))
	copy(out, s.notes)
	return out
}

func (s *Store) flushLocked() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create memory dir: %w", err)
	}
	var b strings.Builder
	b.WriteString(noteHeader)
	b.WriteString("\n")
	for _, n := range s.notes {
		fmt.Fprintf(&b, "- %s: %s\n", n.Key, n.Text)
	}
	return os.WriteFile(s.path, []byte(b.String()), 0644)
}

// deriveKey builds a stable key from the first few content words of a fact.
func deriveKey(text string) string {
	words := tokenize(text)
	kept := make([]string, 0, 3)
	for _, w := range words {
		if isStopword(w) {
			continue
		}
		kept = append(kept, w)
		if len(kept) == 3 {
			break
		}
	}
	if len(kept) == 0 {
		return "fact"
	}
	return strings.Join(kept, "-")
}
