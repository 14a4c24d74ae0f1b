// Package archive optionally uploads a finished simulation run's
// event log to an S3-compatible bucket: gzip-compressed JSON-Lines
// plus a JSON metadata sidecar (size, SHA-256 checksum, timestamp).
//
// Uses the same checksum-plus-metadata-sidecar shape and timestamped
// object key convention as a multi-database tar.gz backup would, but
// generalized to a single gzip-compressed event log, uploaded via
// aws-sdk-go-v2's s3/manager uploader directly rather than a bespoke
// client — R2 is itself S3-compatible, so the same manager.Uploader
// works unmodified against either.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Metadata describes one archived event log.
type Metadata struct {
	SimID           string    `json:"sim_id"`
	Timestamp       time.Time `json:"timestamp"`
	EventCount      int64     `json:"event_count"`
	UncompressedSHA string    `json:"uncompressed_sha256"`
	SizeBytes       int64     `json:"size_bytes"`
}

// Uploader archives a simulation's event log to an S3-compatible
// bucket. Construction takes an *s3.Client directly rather than a
// region/endpoint pair so the caller decides how to point it at R2,
// MinIO, or AWS S3 itself (config.LoadDefaultConfig plus
// s3.WithEndpointResolverV2 upstream of this package).
type Uploader struct {
	client *manager.Uploader
	bucket string
	log    zerolog.Logger
}

// New builds an Uploader targeting bucket via client.
func New(client *s3.Client, bucket string, log zerolog.Logger) *Uploader {
	return &Uploader{
		client: manager.NewUploader(client),
		bucket: bucket,
		log:    log.With().Str("component", "archive").Logger(),
	}
}

// UploadEventLog gzip-compresses jsonl (already-serialized JSON-Lines
// content, e.g. from eventstore.Store.ExportJSONL) and uploads it
// alongside a metadata sidecar, both keyed by simID and a UTC
// timestamp so repeated archival of the same sim never collides.
func (u *Uploader) UploadEventLog(ctx context.Context, simID string, jsonl []byte, eventCount int64) error {
	start := time.Now()

	payload, err := prepareArchive(simID, jsonl, eventCount, start)
	if err != nil {
		return err
	}

	if _, err := u.client.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &payload.logKey,
		Body:        bytes.NewReader(payload.compressed),
		ContentType: awsString("application/gzip"),
	}); err != nil {
		return fmt.Errorf("archive: upload event log: %w", err)
	}

	if _, err := u.client.Upload(ctx, &s3.PutObjectInput{
		Bucket:      &u.bucket,
		Key:         &payload.metaKey,
		Body:        bytes.NewReader(payload.metaJSON),
		ContentType: awsString("application/json"),
	}); err != nil {
		return fmt.Errorf("archive: upload metadata sidecar: %w", err)
	}

	u.log.Info().
		Str("sim_id", simID).
		Str("object_key", payload.logKey).
		Int64("uncompressed_bytes", payload.meta.SizeBytes).
		Int64("compressed_bytes", int64(len(payload.compressed))).
		Dur("duration_ms", time.Since(start)).
		Msg("uploaded event log archive")

	return nil
}

// archivePayload holds everything derived from a raw JSON-Lines event
// log ahead of the actual network upload, split out from
// UploadEventLog so the compression/checksum/key-naming logic can be
// exercised without an S3 client.
type archivePayload struct {
	logKey     string
	metaKey    string
	compressed []byte
	metaJSON   []byte
	meta       Metadata
}

func prepareArchive(simID string, jsonl []byte, eventCount int64, at time.Time) (archivePayload, error) {
	checksum := sha256.Sum256(jsonl)
	meta := Metadata{
		SimID:           simID,
		Timestamp:       at.UTC(),
		EventCount:      eventCount,
		UncompressedSHA: fmt.Sprintf("sha256:%x", checksum),
		SizeBytes:       int64(len(jsonl)),
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(jsonl); err != nil {
		return archivePayload{}, fmt.Errorf("archive: gzip event log: %w", err)
	}
	if err := gz.Close(); err != nil {
		return archivePayload{}, fmt.Errorf("archive: close gzip writer: %w", err)
	}

	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return archivePayload{}, fmt.Errorf("archive: marshal metadata: %w", err)
	}

	timestamp := at.UTC().Format("2006-01-02-150405")
	return archivePayload{
		logKey:     fmt.Sprintf("simcash-events-%s-%s.jsonl.gz", simID, timestamp),
		metaKey:    fmt.Sprintf("simcash-events-%s-%s.metadata.json", simID, timestamp),
		compressed: compressed.Bytes(),
		metaJSON:   metaJSON,
		meta:       meta,
	}, nil
}

func awsString(s string) *string { return &s }
