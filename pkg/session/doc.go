// Package session persists agent states as JSON snapshots on disk so a
// conversation can be resumed across process restarts. Saves are atomic
// and keys are validated against path traversal. A Janitor can sweep
// snapshots that have gone untouched past a retention window.
package session
