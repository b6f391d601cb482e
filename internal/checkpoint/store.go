// Package checkpoint persists the incremental extraction state: one cursor
// file per (affiliate, endpoint) pair and one seen-identifier file per
// affiliate. Files are single-writer; concurrent runs against the same
// affiliate are a caller error.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store reads and writes checkpoint and seen-set files under one directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) checkpointPath(affiliateID, endpoint string) string {
	return filepath.Join(s.dir, affiliateID, endpoint+".checkpoint")
}

func (s *Store) seenPath(affiliateID string) string {
	return filepath.Join(s.dir, affiliateID, "customer_seen.json")
}

// Load returns the last successfully processed window end for the pair, and
// whether a checkpoint exists. A missing file is not an error; the caller
// applies its default lookback.
func (s *Store) Load(affiliateID, endpoint string) (time.Time, bool, error) {
	data, err := os.ReadFile(s.checkpointPath(affiliateID, endpoint))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("read checkpoint: %w", err)
	}
	ms, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt checkpoint %s/%s: %w", affiliateID, endpoint, err)
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// Save atomically overwrites the checkpoint with the decimal epoch-millisecond
// value of ts.
func (s *Store) Save(affiliateID, endpoint string, ts time.Time) error {
	path := s.checkpointPath(affiliateID, endpoint)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	return atomicWrite(path, []byte(strconv.FormatInt(ts.UnixMilli(), 10)))
}

// SeenSet is the per-affiliate cache of customer identifiers already
// ingested. It only grows during a run.
type SeenSet struct {
	ids   map[string]struct{}
	dirty bool
}

func (s *SeenSet) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func (s *SeenSet) Add(id string) {
	if _, ok := s.ids[id]; ok {
		return
	}
	s.ids[id] = struct{}{}
	s.dirty = true
}

func (s *SeenSet) Len() int {
	return len(s.ids)
}

// Dirty reports whether the set changed since it was loaded.
func (s *SeenSet) Dirty() bool {
	return s.dirty
}

// LoadSeen reads the affiliate's seen set; a missing file yields an empty set.
func (s *Store) LoadSeen(affiliateID string) (*SeenSet, error) {
	set := &SeenSet{ids: make(map[string]struct{})}
	data, err := os.ReadFile(s.seenPath(affiliateID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return set, nil
		}
		return nil, fmt.Errorf("read seen set: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("corrupt seen set for %s: %w", affiliateID, err)
	}
	for _, id := range ids {
		set.ids[id] = struct{}{}
	}
	return set, nil
}

// SaveSeen atomically persists the seen set as a JSON array of identifiers.
func (s *Store) SaveSeen(affiliateID string, set *SeenSet) error {
	path := s.seenPath(affiliateID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create seen set dir: %w", err)
	}
	ids := make([]string, 0, len(set.ids))
	for id := range set.ids {
		ids = append(ids, id)
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode seen set: %w", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return err
	}
	set.dirty = false
	return nil
}

// atomicWrite writes via a temp file in the same directory and renames it
// over the target, so readers never observe a partial file.
func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
