package bronze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "affiliateflow/config"
	"affiliateflow/logger"
)

// parquetRow flattens one bronze record for columnar archival. The record
// payload stays JSON so all endpoints share a single schema.
type parquetRow struct {
	AffiliateID string `parquet:"name=affiliate_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	Endpoint    string `parquet:"name=endpoint, type=BYTE_ARRAY, convertedtype=UTF8"`
	BatchID     string `parquet:"name=batch_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	RecordKey   string `parquet:"name=record_key, type=BYTE_ARRAY, convertedtype=UTF8"`
	Payload     string `parquet:"name=payload, type=BYTE_ARRAY, convertedtype=UTF8"`
	LoadTime    int64  `parquet:"name=load_time, type=INT64"`
}

// memoryFile implements ParquetFile for in-memory writing.
type memoryFile struct {
	buffer *bytes.Buffer
}

func newMemoryFile() *memoryFile {
	return &memoryFile{buffer: &bytes.Buffer{}}
}

func (mf *memoryFile) Create(name string) (source.ParquetFile, error) { return mf, nil }
func (mf *memoryFile) Open(name string) (source.ParquetFile, error)   { return mf, nil }

func (mf *memoryFile) Seek(offset int64, whence int) (int64, error) {
	// Write-only usage; the writer never seeks backwards.
	return int64(mf.buffer.Len()), nil
}

func (mf *memoryFile) Read(b []byte) (int, error)  { return mf.buffer.Read(b) }
func (mf *memoryFile) Write(b []byte) (int, error) { return mf.buffer.Write(b) }
func (mf *memoryFile) Close() error                { return nil }
func (mf *memoryFile) Bytes() []byte               { return mf.buffer.Bytes() }

// S3Archiver converts bronze batches to parquet and uploads them, keeping
// the same partition layout as the local files.
type S3Archiver struct {
	bucket   string
	s3Client *s3.Client
	log      *logger.Log
}

func NewS3Archiver(cfg *appconfig.Config) (*S3Archiver, error) {
	log := logger.GetLogger()
	ctx := context.Background()

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.S3.Region),
	}
	if cfg.Storage.S3.AccessKeyID != "" && cfg.Storage.S3.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.Storage.S3.AccessKeyID,
				cfg.Storage.S3.SecretAccessKey,
				"",
			),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.S3.Endpoint)
		}
		o.UsePathStyle = cfg.Storage.S3.PathStyle
	})

	log.WithComponent("s3_archiver").WithFields(logger.Fields{
		"bucket":     cfg.Storage.S3.Bucket,
		"region":     cfg.Storage.S3.Region,
		"endpoint":   cfg.Storage.S3.Endpoint,
		"path_style": cfg.Storage.S3.PathStyle,
	}).Info("s3 archiver initialized")

	return &S3Archiver{
		bucket:   cfg.Storage.S3.Bucket,
		s3Client: client,
		log:      log,
	}, nil
}

// Archive writes the batch as a snappy-compressed parquet object.
func (a *S3Archiver) Archive(ctx context.Context, env BatchEnvelope) error {
	log := a.log.WithComponent("s3_archiver").WithFields(logger.Fields{
		"affiliate_id": env.Metadata.AffiliateID,
		"endpoint":     env.Metadata.Endpoint,
		"batch_id":     env.Metadata.BatchID,
		"records":      len(env.Records),
	})

	data, err := a.createParquet(env)
	if err != nil {
		return fmt.Errorf("create parquet: %w", err)
	}

	key := a.objectKey(env)
	_, err = a.s3Client.PutObject(context.WithoutCancel(ctx), &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		Metadata: map[string]string{
			"content-type": "parquet",
			"batch-id":     env.Metadata.BatchID,
			"load-status":  string(env.Metadata.LoadStatus),
		},
	})
	if err != nil {
		return fmt.Errorf("upload to S3 bucket %s: %w", a.bucket, err)
	}

	log.WithFields(logger.Fields{"s3_key": key, "file_size": len(data)}).Info("batch archived")
	return nil
}

func (a *S3Archiver) createParquet(env BatchEnvelope) ([]byte, error) {
	mf := newMemoryFile()
	pw, err := writer.NewParquetWriter(mf, new(parquetRow), 4)
	if err != nil {
		return nil, fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, record := range env.Records {
		payload, err := json.Marshal(record)
		if err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("encode record: %w", err)
		}
		row := parquetRow{
			AffiliateID: env.Metadata.AffiliateID,
			Endpoint:    env.Metadata.Endpoint,
			BatchID:     env.Metadata.BatchID,
			RecordKey:   record.Key(),
			Payload:     string(payload),
			LoadTime:    env.Metadata.Timestamp.UnixMilli(),
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("finalize parquet: %w", err)
	}
	return mf.Bytes(), nil
}

func (a *S3Archiver) objectKey(env BatchEnvelope) string {
	ts := env.Metadata.Timestamp
	name := fmt.Sprintf("%s_batch%d_%s.parquet", env.Metadata.Endpoint, env.Metadata.Batch, shortID(env.Metadata.BatchID))
	key := filepath.Join(
		"bronze",
		env.Metadata.AffiliateID,
		env.Metadata.Endpoint,
		fmt.Sprintf("%04d", ts.Year()),
		fmt.Sprintf("%02d", ts.Month()),
		fmt.Sprintf("%02d", ts.Day()),
		name,
	)
	return filepath.ToSlash(key)
}
