// Package memory implements the persistent long-term memory store. Records
// are append-oriented: add and update both append, delete appends a
// tombstone, and the in-memory index is rebuilt by replaying the journal in
// order. The store is long-term memory, not a cache — it never evicts.
package memory

import (
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of memory categories.
type Kind string

const (
	KindNote       Kind = "note"
	KindFact       Kind = "fact"
	KindPreference Kind = "preference"
	KindTask       Kind = "task"
	KindContext    Kind = "context"
)

// ValidKind reports whether k is a member of the closed set.
func ValidKind(k Kind) bool {
	switch k {
	case KindNote, KindFact, KindPreference, KindTask, KindContext:
		return true
	}
	return false
}

// Kinds lists all valid kinds, for help text and stats ordering.
func Kinds() []Kind {
	return []Kind{KindNote, KindFact, KindPreference, KindTask, KindContext}
}

var (
	// ErrNotFound indicates no live entry exists for the id.
	ErrNotFound = errors.New("memory entry not found")

	// ErrCapacityExceeded is reported on add when the store is full. The
	// store is left unchanged; there is no silent eviction.
	ErrCapacityExceeded = errors.New("memory store capacity exceeded")

	// ErrInvalidEntry indicates a validation failure on add or update.
	ErrInvalidEntry = errors.New("invalid memory entry")
)

// Entry is a single remembered fact. The id is immutable after creation and
// never reused, even after deletion. Callers always receive copies, never
// live references into the index.
type Entry struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastAccessed time.Time `json:"last_accessed"`
	Kind         Kind      `json:"kind"`
	Content      string    `json:"content"`
	Tags         []string  `json:"tags,omitempty"`
	Importance   float64   `json:"importance"`
	AccessCount  int       `json:"access_count"`
}

// clone returns a deep copy safe to hand to callers.
func (e *Entry) clone() *Entry {
	out := *e
	if e.Tags != nil {
		out.Tags = make([]string, len(e.Tags))
		copy(out.Tags, e.Tags)
	}
	return &out
}

// hasTag reports whether the entry carries the tag. Tag order is irrelevant.
func (e *Entry) hasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// validate checks the invariants enforced on add and update.
func (e *Entry) validate() error {
	if e.Content == "" {
		return fmt.Errorf("%w: content must not be empty", ErrInvalidEntry)
	}
	if !ValidKind(e.Kind) {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, e.Kind)
	}
	if e.Importance < 0 || e.Importance > 1 {
		return fmt.Errorf("%w: importance %v outside [0,1]", ErrInvalidEntry, e.Importance)
	}
	return nil
}

// UpdateRequest is a partial mutation: nil fields are left unchanged. The id
// and created_at can never change.
type UpdateRequest struct {
	Content    *string
	Tags       *[]string
	Importance *float64
	Kind       *Kind
}

// Stats summarizes the live entry set.
type Stats struct {
	Total        int          `json:"total"`
	ByKind       map[Kind]int `json:"by_kind"`
	ContentBytes int          `json:"content_bytes"`
	MaxEntries   int          `json:"max_entries"`
}
