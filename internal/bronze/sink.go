// Package bronze lands validated batches as partitioned JSON files, the
// durability point of the pipeline. Warehouse upserts, S3 parquet archival
// and Kafka publication hang off the file write as optional side channels.
package bronze

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"affiliateflow/internal/model"
	"affiliateflow/logger"
)

// Upserter mirrors a batch into the warehouse bronze tables.
type Upserter interface {
	UpsertBatch(ctx context.Context, endpoint string, records []model.Record) error
}

// Archiver ships a batch to long-term object storage.
type Archiver interface {
	Archive(ctx context.Context, env BatchEnvelope) error
}

// Publisher emits a batch event for downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, env BatchEnvelope) error
}

// BatchMetadata is the provenance block written alongside every batch.
type BatchMetadata struct {
	AffiliateID  string           `json:"affiliate_id"`
	Endpoint     string           `json:"endpoint"`
	Batch        int              `json:"batch"`
	BatchID      string           `json:"batch_id"`
	Timestamp    time.Time        `json:"timestamp"`
	TotalRecords int              `json:"total_records"`
	LoadStatus   model.LoadStatus `json:"load_status"`
}

// BatchEnvelope is the on-disk and on-wire shape of one bronze batch.
type BatchEnvelope struct {
	Metadata BatchMetadata  `json:"metadata"`
	Records  []model.Record `json:"records"`
}

// Sink writes batches under dir with the layout
// {affiliate}/{endpoint}/{yyyy}/{mm}/{dd}/{endpoint}_batch{n}_{id}.json.
type Sink struct {
	dir       string
	upserter  Upserter
	archiver  Archiver
	publisher Publisher
	log       *logger.Log
	now       func() time.Time
}

type Option func(*Sink)

// WithUpserter mirrors every batch into warehouse bronze tables.
func WithUpserter(u Upserter) Option { return func(s *Sink) { s.upserter = u } }

// WithArchiver ships every batch to object storage as parquet.
func WithArchiver(a Archiver) Option { return func(s *Sink) { s.archiver = a } }

// WithPublisher emits a message per batch.
func WithPublisher(p Publisher) Option { return func(s *Sink) { s.publisher = p } }

func NewSink(dir string, opts ...Option) *Sink {
	s := &Sink{
		dir: dir,
		log: logger.GetLogger(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save persists one batch. The JSON file write is the only fatal path: side
// channels are best-effort because the file can always be replayed into
// them, while a lost file cannot be recovered once the checkpoint moves.
func (s *Sink) Save(ctx context.Context, records []model.Record, endpoint, affiliateID string, batch int, status model.LoadStatus) error {
	ts := s.now().UTC()
	env := BatchEnvelope{
		Metadata: BatchMetadata{
			AffiliateID:  affiliateID,
			Endpoint:     endpoint,
			Batch:        batch,
			BatchID:      uuid.New().String(),
			Timestamp:    ts,
			TotalRecords: len(records),
			LoadStatus:   status,
		},
		Records: records,
	}

	log := s.log.WithComponent("bronze_sink").WithFields(logger.Fields{
		"affiliate_id": affiliateID,
		"endpoint":     endpoint,
		"batch":        batch,
		"batch_id":     env.Metadata.BatchID,
		"records":      len(records),
	})

	path := s.batchPath(env)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create bronze partition: %w", err)
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("encode bronze batch: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("write bronze batch: %w", err)
	}
	log.WithFields(logger.Fields{"path": path, "load_status": status}).Info("bronze batch written")
	s.log.LogMetric("bronze_sink", "batches_written", 1, "counter", logger.Fields{
		"affiliate_id": affiliateID,
		"endpoint":     endpoint,
	})

	if s.upserter != nil {
		if err := s.upserter.UpsertBatch(ctx, endpoint, records); err != nil {
			log.WithError(err).Warn("warehouse upsert failed; batch remains on disk")
		}
	}
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, env); err != nil {
			log.WithError(err).Warn("archive upload failed; batch remains on disk")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, env); err != nil {
			log.WithError(err).Warn("batch event publish failed")
		}
	}
	return nil
}

func (s *Sink) batchPath(env BatchEnvelope) string {
	ts := env.Metadata.Timestamp
	name := fmt.Sprintf("%s_batch%d_%s.json", env.Metadata.Endpoint, env.Metadata.Batch, shortID(env.Metadata.BatchID))
	return filepath.Join(
		s.dir,
		env.Metadata.AffiliateID,
		env.Metadata.Endpoint,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		name,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
