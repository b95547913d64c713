package blacklist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ignite/redirectgate/internal/pkg/logger"
)

// snapshot is the on-disk document shape: a single JSON file with the
// range table and aggregate stats, matching the file-backed caches the
// rest of this codebase uses for small, single-writer state.
type snapshot struct {
	Ranges []Entry `json:"ranges"`
	Stats  Stats   `json:"stats"`
}

// Store wraps a Blacklist with debounced, hit-counter-gated persistence
// to a local JSON file.
type Store struct {
	bl       *Blacklist
	path     string
	debounce time.Duration
	modulus  int

	mu        sync.Mutex
	dirty     bool
	lastSave  time.Time
	saveTimer *time.Timer

	// leaderCheck, when set, gates whether NoteHit/NoteChange actually
	// schedule a file write. A horizontally scaled deployment wires
	// this to its distributed-lock leadership flag so only one replica
	// writes the shared snapshot file; nil means always write (the
	// single-instance/local-dev case).
	leaderCheck func() bool
}

// NewStore wires a Blacklist to a snapshot file. Call Load once at
// startup before serving traffic.
func NewStore(bl *Blacklist, path string, debounce time.Duration, modulus int) *Store {
	if modulus <= 0 {
		modulus = 10
	}
	return &Store{bl: bl, path: path, debounce: debounce, modulus: modulus}
}

// SetLeaderCheck installs the leadership predicate described on the
// leaderCheck field.
func (s *Store) SetLeaderCheck(check func() bool) {
	s.leaderCheck = check
}

func (s *Store) isLeader() bool {
	return s.leaderCheck == nil || s.leaderCheck()
}

// Load reads the snapshot file into the blacklist. A missing file means
// start empty, not an error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	s.bl.Import(snap.Ranges)
	logger.Info("blacklist snapshot loaded", "path", s.path, "ranges", len(snap.Ranges))
	return nil
}

// NoteHit should be called after every Blacklist.Contains hit so the
// store can decide whether this hit crosses the hit-counter save
// threshold (every Nth hit, to avoid thrashing the file on hot ranges).
func (s *Store) NoteHit(hitCount int64) {
	if !s.isLeader() {
		return
	}
	if s.modulus > 0 && hitCount%int64(s.modulus) == 0 {
		s.scheduleSave()
	}
}

// NoteChange should be called after Add/Remove/Clear/Import — any
// mutation to the table itself, not just a hit counter bump.
func (s *Store) NoteChange() {
	if !s.isLeader() {
		return
	}
	s.scheduleSave()
}

func (s *Store) scheduleSave() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dirty = true
	if s.saveTimer != nil {
		return
	}
	s.saveTimer = time.AfterFunc(s.debounce, s.flush)
}

func (s *Store) flush() {
	s.mu.Lock()
	s.saveTimer = nil
	dirty := s.dirty
	s.dirty = false
	s.mu.Unlock()

	if !dirty {
		return
	}

	snap := snapshot{
		Ranges: s.bl.List(),
		Stats:  s.bl.StatsSnapshot(),
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		logger.Error("blacklist snapshot marshal failed", "error", err.Error())
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		logger.Error("blacklist snapshot mkdir failed", "error", err.Error())
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		logger.Error("blacklist snapshot write failed", "error", err.Error())
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		logger.Error("blacklist snapshot rename failed", "error", err.Error())
		return
	}
	s.mu.Lock()
	s.lastSave = time.Now()
	s.mu.Unlock()
}

// FlushNow forces an immediate save, used on graceful shutdown.
func (s *Store) FlushNow() {
	s.flush()
}
