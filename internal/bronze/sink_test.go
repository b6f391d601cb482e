package bronze

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"affiliateflow/internal/model"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testRecords() []model.Record {
	return []model.Record{
		model.DepositRecord{AffiliateID: "A1", ClientID: "c1", OrderID: "o1", DepositAmount: 10, DepositTime: testNow},
		model.DepositRecord{AffiliateID: "A1", ClientID: "c2", OrderID: "o2", DepositAmount: 20, DepositTime: testNow},
	}
}

type diskEnvelope struct {
	Metadata BatchMetadata     `json:"metadata"`
	Records  []json.RawMessage `json:"records"`
}

func readOnlyBatch(t *testing.T, dir, affiliate, endpoint string) diskEnvelope {
	t.Helper()
	pattern := filepath.Join(dir, affiliate, endpoint, "2024", "03", "01", "*.json")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one batch file under %s, got %d", pattern, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read batch: %v", err)
	}
	var env diskEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode batch: %v", err)
	}
	return env
}

func TestSaveWritesPartitionedBatch(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(dir)
	sink.now = func() time.Time { return testNow }

	err := sink.Save(context.Background(), testRecords(), "deposits", "A1", 3, model.LoadSuccess)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	env := readOnlyBatch(t, dir, "A1", "deposits")
	if env.Metadata.AffiliateID != "A1" || env.Metadata.Endpoint != "deposits" {
		t.Errorf("unexpected metadata: %+v", env.Metadata)
	}
	if env.Metadata.Batch != 3 {
		t.Errorf("expected batch 3, got %d", env.Metadata.Batch)
	}
	if env.Metadata.BatchID == "" {
		t.Errorf("expected a batch id")
	}
	if env.Metadata.TotalRecords != 2 || len(env.Records) != 2 {
		t.Errorf("record counts do not match: %+v", env.Metadata)
	}
	if env.Metadata.LoadStatus != model.LoadSuccess {
		t.Errorf("unexpected status: %s", env.Metadata.LoadStatus)
	}
}

func TestSaveCarriesPartialStatus(t *testing.T) {
	dir := t.TempDir()
	sink := NewSink(dir)
	sink.now = func() time.Time { return testNow }

	err := sink.Save(context.Background(), testRecords(), "trade_activities", "A1", 1, model.LoadPartial)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	env := readOnlyBatch(t, dir, "A1", "trade_activities")
	if env.Metadata.LoadStatus != model.LoadPartial {
		t.Errorf("expected PARTIAL, got %s", env.Metadata.LoadStatus)
	}
}

type fakeChannel struct {
	upserts  int
	archives int
	publish  int
	err      error
}

func (f *fakeChannel) UpsertBatch(_ context.Context, _ string, _ []model.Record) error {
	f.upserts++
	return f.err
}

func (f *fakeChannel) Archive(_ context.Context, _ BatchEnvelope) error {
	f.archives++
	return f.err
}

func (f *fakeChannel) Publish(_ context.Context, _ BatchEnvelope) error {
	f.publish++
	return f.err
}

func TestSideChannelsInvoked(t *testing.T) {
	ch := &fakeChannel{}
	sink := NewSink(t.TempDir(), WithUpserter(ch), WithArchiver(ch), WithPublisher(ch))

	if err := sink.Save(context.Background(), testRecords(), "deposits", "A1", 1, model.LoadSuccess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if ch.upserts != 1 || ch.archives != 1 || ch.publish != 1 {
		t.Errorf("side channels not invoked once each: %+v", ch)
	}
}

func TestSideChannelFailureDoesNotFailSave(t *testing.T) {
	ch := &fakeChannel{err: errors.New("broker unreachable")}
	dir := t.TempDir()
	sink := NewSink(dir, WithUpserter(ch), WithArchiver(ch), WithPublisher(ch))
	sink.now = func() time.Time { return testNow }

	// The file is the durability point; side channels can be replayed.
	if err := sink.Save(context.Background(), testRecords(), "deposits", "A1", 1, model.LoadSuccess); err != nil {
		t.Fatalf("Save must survive side channel failures, got %v", err)
	}
	if env := readOnlyBatch(t, dir, "A1", "deposits"); env.Metadata.TotalRecords != 2 {
		t.Errorf("batch file missing records")
	}
}

func TestSaveFailsWhenPartitionUnwritable(t *testing.T) {
	dir := t.TempDir()
	// Occupy the affiliate path with a file so MkdirAll fails.
	if err := os.WriteFile(filepath.Join(dir, "A1"), []byte("x"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
	sink := NewSink(dir)

	if err := sink.Save(context.Background(), testRecords(), "deposits", "A1", 1, model.LoadSuccess); err == nil {
		t.Fatalf("expected write failure to surface")
	}
}
