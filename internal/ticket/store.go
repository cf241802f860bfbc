package ticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
)

// Recorder is a secondary, best-effort ticket sink (e.g. a Postgres archive).
// Failures are logged and never interrupt the ledger flush.
type Recorder interface {
	Record(ctx context.Context, sessionID string, e Entry) error
}

// Store keeps each session's entries in memory and flushes them to the ledger
// file on every append. The ledger is a JSON object mapping session id to an
// entry array, rewritten whole on each flush with 2-space indentation.
//
// The ledger file is shared across channels and processes. The read-merge-write
// flush is not atomic: two stores flushing concurrently can race and one
// update can be silently lost. Known hazard, accepted.
type Store struct {
	path    string
	archive Recorder
	logger  *slog.Logger

	mu       sync.Mutex
	sessions map[string][]Entry
}

// StoreOption is a functional option for Store.
type StoreOption func(*Store)

// WithArchive attaches a secondary Recorder that receives every appended
// entry after the ledger flush.
func WithArchive(r Recorder) StoreOption {
	return func(s *Store) { s.archive = r }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore creates a Store persisting to the ledger file at path. The file is
// created on first flush.
func NewStore(path string, opts ...StoreOption) (*Store, error) {
	if path == "" {
		return nil, errors.New("ticket: ledger path must not be empty")
	}
	s := &Store{
		path:     path,
		logger:   slog.Default(),
		sessions: make(map[string][]Entry),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Append records the entry under sessionID and immediately flushes the
// session to the ledger. On flush failure the entry stays in memory and the
// error is returned; callers log it and continue.
func (s *Store) Append(ctx context.Context, sessionID string, e Entry) error {
	s.mu.Lock()
	s.sessions[sessionID] = append(s.sessions[sessionID], e)
	entries := snapshot(s.sessions[sessionID])
	s.mu.Unlock()

	if s.archive != nil {
		if err := s.archive.Record(ctx, sessionID, e); err != nil {
			s.logger.Warn("ticket archive record failed", "session_id", sessionID, "error", err)
		}
	}

	if err := s.flush(sessionID, entries); err != nil {
		return fmt.Errorf("ticket: append flush: %w", err)
	}
	return nil
}

// FlushOnStop writes the session's entries to the ledger one final time.
// Sessions with zero entries write nothing.
func (s *Store) FlushOnStop(sessionID string) error {
	s.mu.Lock()
	entries := snapshot(s.sessions[sessionID])
	s.mu.Unlock()

	if len(entries) == 0 {
		return nil
	}
	if err := s.flush(sessionID, entries); err != nil {
		return fmt.Errorf("ticket: final flush: %w", err)
	}
	return nil
}

// Clear drops the session's in-memory entries. The ledger file is untouched.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// Entries returns a copy of the session's in-memory entries.
func (s *Store) Entries(sessionID string) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.sessions[sessionID])
}

// flush merges the session's entries into the ledger file: load the current
// file, replace this session's key, rewrite the whole file.
func (s *Store) flush(sessionID string, entries []Entry) error {
	ledger := make(map[string][]Entry)

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// first flush, start from an empty ledger
	case err != nil:
		return fmt.Errorf("read ledger: %w", err)
	default:
		if err := json.Unmarshal(data, &ledger); err != nil {
			return fmt.Errorf("parse ledger: %w", err)
		}
	}

	ledger[sessionID] = entries

	out, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := os.WriteFile(s.path, out, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func snapshot(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
