// Package archive time-boxes expired event and signal rows to S3.
//
// Hot tables stay small: rows past their retention TTL are exported as
// day-partitioned NDJSON objects and then deleted. Deletion only happens
// after the S3 write succeeds, so a failed export leaves the rows in place
// for the next run.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/doron007/realtechee-notify/internal/domain"
	"github.com/doron007/realtechee-notify/internal/events"
	"github.com/doron007/realtechee-notify/internal/pkg/logger"
)

// S3API is the subset of the S3 client the archiver uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver exports expired event rows to S3 and prunes them.
type Archiver struct {
	s3        S3API
	repo      events.Repository
	bucket    string
	prefix    string
	batchSize int
	now       func() time.Time
}

// NewArchiver creates the archiver.
func NewArchiver(client S3API, repo events.Repository, bucket, prefix string) *Archiver {
	return &Archiver{
		s3:        client,
		repo:      repo,
		bucket:    bucket,
		prefix:    prefix,
		batchSize: 1000,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RunOnce exports one batch of expired events. Returns the number archived;
// callers loop until it reports zero.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	expired, err := a.repo.Expired(ctx, a.now(), a.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load expired events: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	key := a.objectKey(expired[0].Timestamp)
	body, err := ndjson(expired)
	if err != nil {
		return 0, fmt.Errorf("encode archive batch: %w", err)
	}

	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return 0, fmt.Errorf("upload archive object %s: %w", key, err)
	}

	ids := make([]string, len(expired))
	for i, e := range expired {
		ids[i] = e.ID
	}
	if err := a.repo.DeleteExpired(ctx, ids); err != nil {
		// The object is already uploaded; re-running will write a duplicate
		// object but never lose data.
		return 0, fmt.Errorf("prune archived events: %w", err)
	}

	logger.Info("events archived", "count", len(expired), "s3_key", key)
	return len(expired), nil
}

// Run drains all expired rows, batch by batch.
func (a *Archiver) Run(ctx context.Context) (int, error) {
	total := 0
	for {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
		n, err := a.RunOnce(ctx)
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
}

// objectKey partitions archives by the day of the oldest row in the batch.
func (a *Archiver) objectKey(oldest time.Time) string {
	return fmt.Sprintf("%s/events/%s/%s.ndjson",
		a.prefix, oldest.Format("2006/01/02"), uuid.NewString())
}

func ndjson(rows []domain.NotificationEvent) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range rows {
		if err := enc.Encode(&rows[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
