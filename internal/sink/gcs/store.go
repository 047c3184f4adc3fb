// Package gcs implements sink.Store over Google Cloud Storage.
//
// Grounded on the teacher's cloud.google.com/go client wiring pattern
// (internal/events.PubSubEventBus's NewClient/Exists/Close shape) and on
// the original Python S3CrashStorage's object layout (v1/raw_crash/<date>/
// <id>, v1/dump_names/<id>, v1/<dump_name>/<id>, dumps written before the
// raw-crash blob).
package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/ocx/backend/internal/crashreport"
	"github.com/ocx/backend/internal/health"
	"github.com/ocx/backend/internal/sink"
)

// Store saves crash artifacts as objects in a single GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed store. It does not verify the bucket exists;
// call VerifyWrite at startup for that.
func New(ctx context.Context, bucketName string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs.NewClient: %w", err)
	}
	return &Store{client: client, bucket: bucketName}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) putObject(ctx context.Context, key string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs: write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs: close %s: %w", key, err)
	}
	return nil
}

// Save writes every dump, then the dump-names manifest, then the raw-crash
// JSON, per the object-write ordering invariant: a consumer that observes
// the raw-crash blob must find all dumps already present.
func (s *Store) Save(ctx context.Context, report *crashreport.Report) error {
	crashID := report.CrashID

	for name, data := range report.Dumps {
		key := sink.DumpKey(name, crashID)
		if err := s.putObject(ctx, key, data); err != nil {
			return err
		}
	}

	names := sink.SortedDumpNames(report)
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("gcs: marshal dump names: %w", err)
	}
	if err := s.putObject(ctx, sink.DumpNamesKey(crashID), namesJSON); err != nil {
		return err
	}

	rawCrash := sink.BuildRawCrash(report)
	rawCrashJSON, err := json.Marshal(rawCrash)
	if err != nil {
		return fmt.Errorf("gcs: marshal raw crash: %w", err)
	}
	return s.putObject(ctx, sink.RawCrashKey(crashID), rawCrashJSON)
}

// VerifyWrite writes a small probe object to prove write permission. A fresh
// UUID per call ensures this is always a create, not an overwrite of a
// stale probe object from a previous run.
func (s *Store) VerifyWrite(ctx context.Context) error {
	return s.putObject(ctx, sink.ProbeKey(uuid.NewString()), []byte("test"))
}

// CheckHealth verifies the bucket is still reachable by issuing a bounded
// object listing.
func (s *Store) CheckHealth(ctx context.Context, state *health.State) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: "v1/"})
	_, err := it.Next()
	if err != nil && err != iterator.Done {
		state.AddError(fmt.Sprintf("gcs store: %v", err))
		return
	}
	state.SetInfo("gcs_bucket", s.bucket)
}

var _ sink.Store = (*Store)(nil)
