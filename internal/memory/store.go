package memory

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"memchat/internal/logging"
)

// Journal operations. The current value of an entry is the most recent
// record for its id; a delete tombstone ends the lifecycle for good.
const (
	opAdd    = "add"
	opUpdate = "update"
	opTouch  = "touch"
	opDelete = "delete"
)

// Store is the persistent memory store. All mutations serialize through
// writeMu and append to the SQLite-backed journal; reads serve from the
// in-memory index under a read lock and may proceed concurrently.
type Store struct {
	db         *sql.DB
	maxEntries int

	writeMu sync.Mutex // serializes the append path

	mu    sync.RWMutex // guards index
	index map[string]*Entry
}

// Open opens (or creates) the store in dir. The journal is replayed in order
// to rebuild the index: last record per id wins, tombstoned ids are skipped.
func Open(dir string, maxEntries int) (*Store, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("%w: max entries must be positive", ErrInvalidEntry)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}

	path := filepath.Join(dir, "memory.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}
	// The journal append path is single-writer; one connection avoids
	// SQLITE_BUSY entirely.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS journal (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id   TEXT NOT NULL,
		op         TEXT NOT NULL,
		payload    TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_journal_entry ON journal(entry_id);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	s := &Store{
		db:         db,
		maxEntries: maxEntries,
		index:      make(map[string]*Entry),
	}
	if err := s.replay(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Store("opened memory store at %s (%d live entries, cap %d)", path, len(s.index), maxEntries)
	return s, nil
}

// replay rebuilds the index from the journal. The index is a cache: the
// journal alone is the source of truth.
func (s *Store) replay() error {
	rows, err := s.db.Query("SELECT entry_id, op, payload FROM journal ORDER BY seq")
	if err != nil {
		return fmt.Errorf("failed to read journal: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, op string
		var payload sql.NullString
		if err := rows.Scan(&id, &op, &payload); err != nil {
			return fmt.Errorf("failed to scan journal record: %w", err)
		}

		switch op {
		case opAdd, opUpdate, opTouch:
			var e Entry
			if err := json.Unmarshal([]byte(payload.String), &e); err != nil {
				// A corrupt record loses one entry state, not the store.
				logging.Store("skipping corrupt journal record for %s: %v", id, err)
				continue
			}
			s.index[id] = &e
		case opDelete:
			delete(s.index, id)
		}
	}
	return rows.Err()
}

// append writes one journal record. Callers hold writeMu.
func (s *Store) append(id, op string, e *Entry) error {
	var payload []byte
	if e != nil {
		var err error
		payload, err = json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
	}
	_, err := s.db.Exec(
		"INSERT INTO journal (entry_id, op, payload, created_at) VALUES (?, ?, ?, ?)",
		id, op, string(payload), time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal record: %w", err)
	}
	return nil
}

// Add stores a new entry and returns its generated id. Tags are deduplicated;
// a full store reports ErrCapacityExceeded and is left unchanged.
func (s *Store) Add(kind Kind, content string, tags []string, importance float64) (*Entry, error) {
	now := time.Now().UTC()
	e := &Entry{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		LastAccessed: now,
		Kind:         kind,
		Content:      content,
		Tags:         dedupTags(tags),
		Importance:   importance,
	}
	if err := e.validate(); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	full := len(s.index) >= s.maxEntries
	s.mu.RUnlock()
	if full {
		return nil, fmt.Errorf("%w: %d entries (limit %d)", ErrCapacityExceeded, s.maxEntries, s.maxEntries)
	}

	if err := s.append(e.ID, opAdd, e); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.index[e.ID] = e
	s.mu.Unlock()

	logging.Store("add %s kind=%s (%d bytes)", e.ID, e.Kind, len(e.Content))
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditMemoryStore,
		Target:    e.ID,
		Action:    string(e.Kind),
		Success:   true,
	})
	return e.clone(), nil
}

// Get returns a copy of the entry and records the access (access_count,
// last_accessed). The touch is journaled so access history survives restart.
func (s *Store) Get(id string) (*Entry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	e, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.AccessCount++
	e.LastAccessed = time.Now().UTC()
	out := e.clone()
	s.mu.Unlock()

	if err := s.append(id, opTouch, out); err != nil {
		logging.Store("touch append failed for %s: %v", id, err)
	}
	return out, nil
}

// Peek returns a copy without recording an access. Admin surfaces use this so
// inspection doesn't skew access counts.
func (s *Store) Peek(id string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.clone(), nil
}

// Query is the conjunction of search filters; zero values mean "no filter".
type Query struct {
	Text          string
	Tags          []string
	Kind          Kind
	MinImportance float64
	Limit         int
}

// Search scans the live entry set applying every supplied filter, orders by
// descending importance then recency, and truncates to the limit. A linear
// scan is deliberate: at tens of thousands of entries it stays fast, and it
// is much easier to prove correct than a query planner.
func (s *Store) Search(q Query) []*Entry {
	text := strings.ToLower(q.Text)

	s.mu.RLock()
	matches := make([]*Entry, 0, 16)
	for _, e := range s.index {
		if q.Kind != "" && e.Kind != q.Kind {
			continue
		}
		if e.Importance < q.MinImportance {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(e.Content), text) {
			continue
		}
		if !hasAllTags(e, q.Tags) {
			continue
		}
		matches = append(matches, e.clone())
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Importance != matches[j].Importance {
			return matches[i].Importance > matches[j].Importance
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})

	if q.Limit > 0 && len(matches) > q.Limit {
		matches = matches[:q.Limit]
	}

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditMemoryRecall,
		Action:    "search",
		Success:   true,
		Fields:    map[string]interface{}{"matches": len(matches)},
	})
	return matches
}

// Update applies a partial mutation and returns the updated copy. The id and
// created_at never change; history is preserved by appending, not rewriting.
func (s *Store) Update(id string, req UpdateRequest) (*Entry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	cur, ok := s.index[id]
	var next *Entry
	if ok {
		next = cur.clone()
	}
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if req.Content != nil {
		next.Content = *req.Content
	}
	if req.Tags != nil {
		next.Tags = dedupTags(*req.Tags)
	}
	if req.Importance != nil {
		next.Importance = *req.Importance
	}
	if req.Kind != nil {
		next.Kind = *req.Kind
	}
	if err := next.validate(); err != nil {
		return nil, err
	}

	if err := s.append(id, opUpdate, next); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.index[id] = next
	s.mu.Unlock()

	logging.Store("update %s", id)
	return next.clone(), nil
}

// Delete appends a tombstone and drops the entry from the index. The id is a
// UUID and never reused; the entry never reappears in search.
func (s *Store) Delete(id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	_, ok := s.index[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := s.append(id, opDelete, nil); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()

	logging.Store("delete %s", id)
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditMemoryDelete,
		Target:    id,
		Success:   true,
	})
	return nil
}

// ComputeStats summarizes the live set.
func (s *Store) ComputeStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Total:      len(s.index),
		ByKind:     make(map[Kind]int),
		MaxEntries: s.maxEntries,
	}
	for _, e := range s.index {
		st.ByKind[e.Kind]++
		st.ContentBytes += len(e.Content)
	}
	return st
}

// Compact rewrites the journal down to one record per live entry, discarding
// superseded states and tombstones. Replay after Compact yields the same
// index. Maintenance only; never required for correctness.
func (s *Store) Compact() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	live := make([]*Entry, 0, len(s.index))
	for _, e := range s.index {
		live = append(live, e.clone())
	}
	s.mu.RUnlock()
	// Deterministic journal order after compaction.
	sort.Slice(live, func(i, j int) bool { return live[i].CreatedAt.Before(live[j].CreatedAt) })

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin compaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM journal"); err != nil {
		return fmt.Errorf("failed to clear journal: %w", err)
	}
	for _, e := range live {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entry %s: %w", e.ID, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO journal (entry_id, op, payload, created_at) VALUES (?, ?, ?, ?)",
			e.ID, opAdd, string(payload), time.Now().UnixMilli(),
		); err != nil {
			return fmt.Errorf("failed to rewrite entry %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit compaction: %w", err)
	}

	logging.Store("compacted journal to %d records", len(live))
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func dedupTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func hasAllTags(e *Entry, tags []string) bool {
	for _, t := range tags {
		if !e.hasTag(t) {
			return false
		}
	}
	return true
}
