// Package minio implements indexer.Sink by writing each document as a
// JSON object into an S3-compatible bucket, one object per document under
// a documents/<runID>/<documentID>.json key ("no-run" when the document
// carries no run id).
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/kmwllc/lucille-go/document"
	"github.com/kmwllc/lucille-go/indexer"
)

// Sink writes completed documents to a bucket, one object per document.
type Sink struct {
	client *minio.Client
	bucket string
}

// New connects to an S3-compatible endpoint configured by the
// MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY and MINIO_USE_SSL
// environment variables.
func New(bucket string) (*Sink, error) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("minio sink: missing one or more required environment variables: MINIO_ENDPOINT, MINIO_ACCESS_KEY, MINIO_SECRET_KEY")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio sink: creating client: %w", err)
	}
	return &Sink{client: client, bucket: bucket}, nil
}

// ValidateConnection checks that the configured bucket exists.
func (s *Sink) ValidateConnection(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio sink: checking bucket %q: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("minio sink: bucket %q does not exist", s.bucket)
	}
	return nil
}

// Index writes each document as its own object; minio-go has no native bulk
// put, so a per-document failure is captured in that document's Result
// rather than aborting the whole batch. offsets is ignored: an object
// store has no notion of external document versioning.
func (s *Sink) Index(ctx context.Context, docs []*document.Document, offsets []int64) ([]indexer.Result, error) {
	results := make([]indexer.Result, len(docs))
	for i, doc := range docs {
		results[i] = indexer.Result{DocumentID: doc.ID(), Err: s.put(ctx, doc)}
	}
	return results, nil
}

func (s *Sink) put(ctx context.Context, doc *document.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("minio sink: marshaling %s: %w", doc.ID(), err)
	}
	key := objectKey(doc)
	_, err = s.client.PutObject(
		ctx,
		s.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return fmt.Errorf("minio sink: storing %s: %w", key, err)
	}
	return nil
}

func objectKey(doc *document.Document) string {
	runID := doc.RunID()
	if runID == "" {
		runID = "no-run"
	}
	return fmt.Sprintf("documents/%s/%s.json", runID, doc.ID())
}
