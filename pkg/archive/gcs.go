package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// The GCS client is used through narrow interfaces so the sink can be
// exercised against an in-memory fake.

// GCSClient abstracts the top-level *storage.Client.
type GCSClient interface {
	Bucket(name string) GCSBucketHandle
}

// GCSBucketHandle abstracts a *storage.BucketHandle.
type GCSBucketHandle interface {
	Object(name string) GCSObjectHandle
}

// GCSObjectHandle abstracts a *storage.ObjectHandle.
type GCSObjectHandle interface {
	NewWriter(ctx context.Context) GCSWriter
}

// GCSWriter abstracts a *storage.Writer.
type GCSWriter interface {
	io.WriteCloser
}

type gcsClientAdapter struct {
	client *storage.Client
}

// NewGCSClientAdapter makes a concrete *storage.Client satisfy GCSClient.
func NewGCSClientAdapter(client *storage.Client) GCSClient {
	if client == nil {
		return nil
	}
	return &gcsClientAdapter{client: client}
}

func (a *gcsClientAdapter) Bucket(name string) GCSBucketHandle {
	return &gcsBucketAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketAdapter) Object(name string) GCSObjectHandle {
	return &gcsObjectAdapter{handle: a.handle.Object(name)}
}

type gcsObjectAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectAdapter) NewWriter(ctx context.Context) GCSWriter {
	// *storage.Writer already satisfies io.WriteCloser.
	return a.handle.NewWriter(ctx)
}

// GCSSinkConfig holds the settings for a GCSSink.
type GCSSinkConfig struct {
	BucketName string
	// ObjectPrefix roots every object written by this sink.
	ObjectPrefix string
}

// GCSSink archives observation batches as gzip-compressed JSONL objects,
// one object per UTC day and city, named
// {prefix}/{yyyy/mm/dd}/{city}/{uuid}.jsonl.gz.
type GCSSink struct {
	client GCSClient
	cfg    GCSSinkConfig
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// NewGCSSink creates a sink writing to the given bucket.
func NewGCSSink(client GCSClient, cfg GCSSinkConfig, logger zerolog.Logger) (*GCSSink, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSSink{
		client: client,
		cfg:    cfg,
		logger: logger.With().Str("component", "GCSSink").Str("bucket", cfg.BucketName).Logger(),
	}, nil
}

// InsertBatch groups the rows by day and city and uploads each group as its
// own object, in parallel.
func (s *GCSSink) InsertBatch(ctx context.Context, rows []*Observation) error {
	if len(rows) == 0 {
		return nil
	}

	groups := make(map[string][]*Observation)
	for _, row := range rows {
		if row == nil {
			continue
		}
		key := path.Join(row.FetchedAt.UTC().Format("2006/01/02"), row.City)
		groups[key] = append(groups[key], row)
	}
	if len(groups) == 0 {
		return nil
	}

	var uploadWg sync.WaitGroup
	errs := make(chan error, len(groups))
	for key, group := range groups {
		uploadWg.Add(1)
		s.wg.Add(1)
		go func(key string, group []*Observation) {
			defer uploadWg.Done()
			defer s.wg.Done()
			if err := s.uploadGroup(ctx, key, group); err != nil {
				errs <- err
			}
		}(key, group)
	}
	uploadWg.Wait()
	close(errs)

	var combined error
	for err := range errs {
		if combined == nil {
			combined = err
		} else {
			combined = fmt.Errorf("%v; %w", combined, err)
		}
	}
	return combined
}

// uploadGroup streams one group of rows to a compressed GCS object.
func (s *GCSSink) uploadGroup(ctx context.Context, key string, group []*Observation) error {
	objectName := path.Join(s.cfg.ObjectPrefix, key, fmt.Sprintf("%s.jsonl.gz", uuid.NewString()))

	writer := s.client.Bucket(s.cfg.BucketName).Object(objectName).NewWriter(ctx)
	pr, pw := io.Pipe()
	// Unblocks the encoder goroutine if the copy below fails part-way.
	defer func() { _ = pr.Close() }()

	// Encode and compress into the pipe while the GCS writer drains it.
	go func() {
		var err error
		defer func() { _ = pw.CloseWithError(err) }()
		gz := gzip.NewWriter(pw)
		defer func() { _ = gz.Close() }()
		enc := json.NewEncoder(gz)
		for _, row := range group {
			if err = enc.Encode(row); err != nil {
				err = fmt.Errorf("json encoding failed for %s: %w", objectName, err)
				return
			}
		}
	}()

	bytesWritten, copyErr := io.Copy(writer, pr)
	closeErr := writer.Close()
	if copyErr != nil {
		return fmt.Errorf("failed to stream data for GCS object %s: %w", objectName, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close GCS object writer for %s: %w", objectName, closeErr)
	}

	s.logger.Debug().
		Str("object_name", objectName).
		Int64("bytes_written", bytesWritten).
		Int("record_count", len(group)).
		Msg("Uploaded observation group to GCS.")
	return nil
}

// Close waits for in-flight uploads to finish. The archiver's Stop timeout
// bounds the wait.
func (s *GCSSink) Close() error {
	s.logger.Info().Msg("Waiting for pending GCS uploads to complete...")
	s.wg.Wait()
	return nil
}
