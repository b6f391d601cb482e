package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingCheckpoint(t *testing.T) {
	store := NewStore(t.TempDir())

	_, ok, err := store.Load("A1", "trade_activities")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ok {
		t.Fatalf("expected no checkpoint for fresh store")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	store := NewStore(t.TempDir())
	ts := time.UnixMilli(1700000600000).UTC()

	if err := store.Save("A1", "trade_activities", ts); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, ok, err := store.Load("A1", "trade_activities")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ok {
		t.Fatalf("expected checkpoint to exist")
	}
	if !got.Equal(ts) {
		t.Fatalf("expected %v, got %v", ts, got)
	}
}

func TestCheckpointFileFormat(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	ts := time.UnixMilli(1700000600000)

	if err := store.Save("A1", "deposits", ts); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "A1", "deposits.checkpoint"))
	if err != nil {
		t.Fatalf("read checkpoint file: %v", err)
	}
	if string(data) != "1700000600000" {
		t.Fatalf("expected decimal epoch millis, got %q", string(data))
	}
}

func TestCheckpointsIsolatedPerEndpoint(t *testing.T) {
	store := NewStore(t.TempDir())
	trades := time.UnixMilli(1000)
	deposits := time.UnixMilli(2000)

	if err := store.Save("A1", "trade_activities", trades); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save("A1", "deposits", deposits); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, _, err := store.Load("A1", "trade_activities")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.Equal(trades.UTC()) {
		t.Fatalf("endpoints share a checkpoint: %v", got)
	}
}

func TestCorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	path := filepath.Join(dir, "A1", "assets.checkpoint")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("not-a-number"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := store.Load("A1", "assets"); err == nil {
		t.Fatalf("expected error for corrupt checkpoint")
	}
}

func TestSeenSetRoundtrip(t *testing.T) {
	store := NewStore(t.TempDir())

	set, err := store.LoadSeen("A1")
	if err != nil {
		t.Fatalf("LoadSeen failed: %v", err)
	}
	if set.Len() != 0 {
		t.Fatalf("expected empty set, got %d", set.Len())
	}

	set.Add("c1")
	set.Add("c2")
	set.Add("c1")
	if set.Len() != 2 {
		t.Fatalf("expected 2 ids, got %d", set.Len())
	}
	if !set.Dirty() {
		t.Fatalf("expected set to be dirty after Add")
	}
	if err := store.SaveSeen("A1", set); err != nil {
		t.Fatalf("SaveSeen failed: %v", err)
	}
	if set.Dirty() {
		t.Fatalf("expected set clean after SaveSeen")
	}

	reloaded, err := store.LoadSeen("A1")
	if err != nil {
		t.Fatalf("LoadSeen failed: %v", err)
	}
	if !reloaded.Contains("c1") || !reloaded.Contains("c2") || reloaded.Contains("c3") {
		t.Fatalf("seen set did not survive reload")
	}
}

func TestSeenSetIsolatedPerAffiliate(t *testing.T) {
	store := NewStore(t.TempDir())

	set, _ := store.LoadSeen("A1")
	set.Add("c1")
	if err := store.SaveSeen("A1", set); err != nil {
		t.Fatalf("SaveSeen failed: %v", err)
	}

	other, err := store.LoadSeen("A2")
	if err != nil {
		t.Fatalf("LoadSeen failed: %v", err)
	}
	if other.Contains("c1") {
		t.Fatalf("seen sets leak across affiliates")
	}
}
