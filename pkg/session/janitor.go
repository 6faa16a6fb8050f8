package session

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultMaxAge is how long an untouched snapshot is kept before the
// janitor removes it.
const DefaultMaxAge = 7 * 24 * time.Hour

// Janitor periodically deletes snapshots that have not been touched for
// longer than maxAge.
type Janitor struct {
	store    *Store
	maxAge   time.Duration
	interval time.Duration
	stopCh   chan struct{}
	running  bool
}

// NewJanitor creates a janitor for store. A zero maxAge defaults to
// DefaultMaxAge.
func NewJanitor(store *Store, maxAge time.Duration) *Janitor {
	if maxAge == 0 {
		maxAge = DefaultMaxAge
	}

	return &Janitor{
		store:    store,
		maxAge:   maxAge,
		interval: 24 * time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (j *Janitor) Start() error {
	if j.running {
		return fmt.Errorf("janitor is already running")
	}

	j.running = true
	go j.run()

	log.Info().Dur("max_age", j.maxAge).Msg("Session janitor started")

	return nil
}

// Stop halts the background sweep loop.
func (j *Janitor) Stop() error {
	if !j.running {
		return fmt.Errorf("janitor is not running")
	}

	close(j.stopCh)
	j.running = false

	log.Info().Msg("Session janitor stopped")

	return nil
}

func (j *Janitor) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	if _, err := j.Sweep(); err != nil {
		log.Error().Err(err).Msg("Failed to sweep stale snapshots")
	}

	for {
		select {
		case <-ticker.C:
			if _, err := j.Sweep(); err != nil {
				log.Error().Err(err).Msg("Failed to sweep stale snapshots")
			}
		case <-j.stopCh:
			return
		}
	}
}

// Sweep deletes every snapshot older than maxAge and returns how many
// were removed.
func (j *Janitor) Sweep() (int, error) {
	keys, err := j.store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list snapshots: %w", err)
	}

	now := time.Now()
	deleted := 0

	for _, key := range keys {
		info, err := j.store.GetInfo(key)
		if err != nil {
			log.Warn().Str("key", key).Err(err).Msg("Failed to stat snapshot")
			continue
		}

		age := now.Sub(info.LastModified)
		if age < j.maxAge {
			continue
		}

		if err := j.store.Delete(key); err != nil {
			log.Error().Str("key", key).Err(err).Msg("Failed to delete stale snapshot")
			continue
		}
		deleted++

		log.Debug().Str("key", key).Dur("age", age).Msg("Stale snapshot deleted")
	}

	if deleted > 0 {
		log.Info().Int("deleted", deleted).Msg("Swept stale snapshots")
	}

	return deleted, nil
}

// IsRunning reports whether the background loop is active.
func (j *Janitor) IsRunning() bool {
	return j.running
}

// MaxAge returns the retention window.
func (j *Janitor) MaxAge() time.Duration {
	return j.maxAge
}

// SetMaxAge updates the retention window.
func (j *Janitor) SetMaxAge(age time.Duration) {
	j.maxAge = age
}
