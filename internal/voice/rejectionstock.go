package voice

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/soms-platform/soms-core/internal/httpmw"
)

const (
	// MaxStock is the manifest's maximum length.
	MaxStock = 100
	// RefillThreshold is the level below which the idle generator tops up.
	RefillThreshold = 80

	manifestLockKey = "rejection-manifest"
)

// RejectionStock is the persisted manifest of pre-generated rejection
// lines. Reads and writes serialize through a single KeyedMutex key —
// the same per-key locking primitive used across the system for
// guarding a shared mutable resource, here applied to one fixed key
// since there's exactly one manifest.
type RejectionStock struct {
	locks        *httpmw.KeyedMutex
	audio        *AudioStore
	manifestPath string
	entries      []RejectionEntry
}

// NewRejectionStock loads the manifest from disk, pruning any entry
// whose audio file has gone missing.
func NewRejectionStock(audio *AudioStore) (*RejectionStock, error) {
	rs := &RejectionStock{
		locks:        httpmw.NewKeyedMutex(),
		audio:        audio,
		manifestPath: audio.Path("rejections", "manifest.json"),
	}
	if err := rs.load(); err != nil {
		return nil, err
	}
	return rs, nil
}

func (rs *RejectionStock) load() error {
	data, err := os.ReadFile(rs.manifestPath)
	if os.IsNotExist(err) {
		rs.entries = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("voice: read rejection manifest: %w", err)
	}

	var entries []RejectionEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("voice: parse rejection manifest: %w", err)
	}

	pruned := entries[:0]
	for _, e := range entries {
		if rs.audio.Exists("rejections", e.AudioFileName) {
			pruned = append(pruned, e)
		}
	}
	rs.entries = pruned
	return nil
}

func (rs *RejectionStock) save() error {
	data, err := json.MarshalIndent(rs.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("voice: marshal rejection manifest: %w", err)
	}
	tmp := rs.manifestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("voice: write rejection manifest: %w", err)
	}
	if err := os.Rename(tmp, rs.manifestPath); err != nil {
		return fmt.Errorf("voice: commit rejection manifest: %w", err)
	}
	return nil
}

// Len returns the current manifest length.
func (rs *RejectionStock) Len() int {
	rs.locks.Lock(manifestLockKey)
	defer rs.locks.Unlock(manifestLockKey)
	return len(rs.entries)
}

// Pop removes and returns the oldest entry, or ok=false if empty.
func (rs *RejectionStock) Pop() (RejectionEntry, bool) {
	rs.locks.Lock(manifestLockKey)
	defer rs.locks.Unlock(manifestLockKey)

	if len(rs.entries) == 0 {
		return RejectionEntry{}, false
	}
	e := rs.entries[0]
	rs.entries = rs.entries[1:]
	if err := rs.save(); err != nil {
		// Roll back the in-memory pop so a failed persist never loses the
		// entry silently.
		rs.entries = append([]RejectionEntry{e}, rs.entries...)
		return RejectionEntry{}, false
	}
	return e, true
}

// Push appends a newly generated entry, rejecting once MaxStock is reached.
func (rs *RejectionStock) Push(e RejectionEntry) error {
	rs.locks.Lock(manifestLockKey)
	defer rs.locks.Unlock(manifestLockKey)

	if len(rs.entries) >= MaxStock {
		return fmt.Errorf("voice: rejection stock at capacity (%d)", MaxStock)
	}
	before := rs.entries
	rs.entries = append(rs.entries, e)
	if err := rs.save(); err != nil {
		rs.entries = before
		return err
	}
	return nil
}

// Clear empties the manifest and leaves existing audio files on disk
// (they're no longer referenced but pop/pruning only ever scans the
// manifest, so orphaned files are harmless apart from disk usage).
func (rs *RejectionStock) Clear() error {
	rs.locks.Lock(manifestLockKey)
	defer rs.locks.Unlock(manifestLockKey)

	before := rs.entries
	rs.entries = nil
	if err := rs.save(); err != nil {
		rs.entries = before
		return err
	}
	return nil
}

func newRejectionEntry(text, audioFileName string) RejectionEntry {
	return RejectionEntry{
		ID:            uuid.NewString(),
		Text:          text,
		AudioFileName: audioFileName,
		CreatedAt:     time.Now(),
	}
}
