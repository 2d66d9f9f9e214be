// Package masterconfig maintains the secondary JSON document mirroring which
// agents exist, for cross-view UI queries. It is a cache: the registry and
// the plist files stay authoritative, and no lifecycle decision ever reads
// this document.
package masterconfig

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/roostd/roostd/internal/agent"
)

// Entry mirrors a subset of a descriptor.
type Entry struct {
	Label     string     `json:"label"`
	Kind      agent.Kind `json:"kind"`
	Target    string     `json:"target"`
	CreatedAt time.Time  `json:"created_at"`
}

// Document is the whole on-disk file.
type Document struct {
	UpdatedAt time.Time `json:"updated_at"`
	Agents    []Entry   `json:"agents"`
}

// Store serializes access to the document file. Writes are atomic
// (temp+rename) so a concurrent reader never observes a torn file.
type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store { return &Store{path: path} }

// Load returns the current document; a missing file is an empty document.
func (s *Store) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (Document, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, nil
		}
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Store) saveLocked(doc Document) error {
	doc.UpdatedAt = time.Now().UTC()
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	return agent.WriteFileAtomic(s.path, b)
}

// AddEntry inserts or replaces the mirror entry for e.Label.
func (s *Store) AddEntry(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	replaced := false
	for i := range doc.Agents {
		if doc.Agents[i].Label == e.Label {
			doc.Agents[i] = e
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Agents = append(doc.Agents, e)
	}
	return s.saveLocked(doc)
}

// RemoveEntry drops the entry for label; removing an absent label is a no-op.
func (s *Store) RemoveEntry(label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.loadLocked()
	if err != nil {
		return err
	}
	kept := doc.Agents[:0]
	for _, e := range doc.Agents {
		if e.Label != label {
			kept = append(kept, e)
		}
	}
	doc.Agents = kept
	return s.saveLocked(doc)
}

// List returns the mirror entries. Advisory only.
func (s *Store) List() ([]Entry, error) {
	doc, err := s.Load()
	if err != nil {
		return nil, err
	}
	return doc.Agents, nil
}

// Replace swaps in a whole new document (PUT /api/config/master).
func (s *Store) Replace(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(doc)
}
