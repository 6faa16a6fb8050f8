package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/cognipeer/smartagent-go/pkg/agent"
)

// ErrNotFound is returned when no snapshot exists for a key.
var ErrNotFound = errors.New("session: snapshot not found")

// Snapshot is the on-disk envelope for a saved session state.
type Snapshot struct {
	Key     string      `json:"key"`
	SavedAt time.Time   `json:"savedAt"`
	State   agent.State `json:"state"`
}

// Info is metadata about a stored snapshot.
type Info struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	MessageCount int       `json:"messageCount"`
}

// Store persists session states as JSON snapshots, one file per key.
// Saves are atomic (temp file plus rename) so a crash mid-write never
// leaves a corrupt snapshot behind.
type Store struct {
	dir        string
	writeLocks map[string]*sync.Mutex
	locksMu    sync.RWMutex
}

// New creates a Store rooted at dir. An empty dir defaults to
// ~/.smartagent/sessions.
func New(dir string) (*Store, error) {
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(homeDir, ".smartagent", "sessions")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create sessions directory: %w", err)
	}

	st := &Store{
		dir:        dir,
		writeLocks: make(map[string]*sync.Mutex),
	}

	log.Debug().Str("dir", dir).Msg("Session store initialized")

	return st, nil
}

// Dir returns the directory snapshots are stored in.
func (st *Store) Dir() string {
	return st.dir
}

// validateKey rejects keys that could escape the store directory.
func (st *Store) validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("session key cannot be empty")
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("session key cannot contain '..'")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("session key cannot contain path separators")
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("session key cannot contain null bytes")
	}
	return nil
}

func (st *Store) snapshotPath(key string) string {
	return filepath.Join(st.dir, key+".json")
}

// getWriteLock gets or creates a write lock for a key.
func (st *Store) getWriteLock(key string) *sync.Mutex {
	st.locksMu.Lock()
	defer st.locksMu.Unlock()

	if lock, exists := st.writeLocks[key]; exists {
		return lock
	}

	lock := &sync.Mutex{}
	st.writeLocks[key] = lock
	return lock
}

func (st *Store) releaseWriteLock(key string) {
	st.locksMu.Lock()
	defer st.locksMu.Unlock()
	delete(st.writeLocks, key)
}

// Save writes a snapshot of state under key, replacing any previous one.
func (st *Store) Save(key string, state *agent.State) error {
	if err := st.validateKey(key); err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("state cannot be nil")
	}

	lock := st.getWriteLock(key)
	lock.Lock()
	defer lock.Unlock()

	snap := Snapshot{
		Key:     key,
		SavedAt: time.Now(),
		State:   *state,
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := st.snapshotPath(key)
	tempPath := path + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}

	file.Close()

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	log.Debug().
		Str("key", key).
		Int("messages", len(state.Messages)).
		Msg("Snapshot saved")

	return nil
}

// Load reads the snapshot stored under key. The returned state is ready to
// pass back into an Invoke call to resume the conversation.
func (st *Store) Load(key string) (*agent.State, error) {
	if err := st.validateKey(key); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(st.snapshotPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	return &snap.State, nil
}

// Exists reports whether a snapshot is stored under key.
func (st *Store) Exists(key string) bool {
	if st.validateKey(key) != nil {
		return false
	}
	_, err := os.Stat(st.snapshotPath(key))
	return err == nil
}

// Delete removes the snapshot stored under key. Deleting a missing
// snapshot is not an error.
func (st *Store) Delete(key string) error {
	if err := st.validateKey(key); err != nil {
		return err
	}

	lock := st.getWriteLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(st.snapshotPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot file: %w", err)
	}

	st.releaseWriteLock(key)

	log.Debug().Str("key", key).Msg("Snapshot deleted")

	return nil
}

// List returns the keys of all stored snapshots.
func (st *Store) List() ([]string, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read sessions directory: %w", err)
	}

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		keys = append(keys, strings.TrimSuffix(name, ".json"))
	}

	return keys, nil
}

// GetInfo returns metadata about the snapshot stored under key.
func (st *Store) GetInfo(key string) (*Info, error) {
	if err := st.validateKey(key); err != nil {
		return nil, err
	}

	fi, err := os.Stat(st.snapshotPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to stat snapshot file: %w", err)
	}

	state, err := st.Load(key)
	if err != nil {
		return nil, err
	}

	return &Info{
		Key:          key,
		Size:         fi.Size(),
		LastModified: fi.ModTime(),
		MessageCount: len(state.Messages),
	}, nil
}

// Close releases all write locks.
func (st *Store) Close() error {
	st.locksMu.Lock()
	st.writeLocks = make(map[string]*sync.Mutex)
	st.locksMu.Unlock()
	return nil
}
