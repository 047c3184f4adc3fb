// Package fs implements sink.Store over the local filesystem, for
// development and tests when no cloud bucket is configured.
//
// Grounded on the original Python FSCrashStorage (antenna/ext/fs), adapted
// to reuse the same v1/... object-key scheme as the GCS adapter so a single
// key-layout contract (internal/sink) serves every backend.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/ocx/backend/internal/crashreport"
	"github.com/ocx/backend/internal/health"
	"github.com/ocx/backend/internal/sink"
)

// Store saves crash artifacts under a root directory, mirroring the
// key layout object stores use with '/' replaced by the OS separator.
type Store struct {
	root string
}

// New returns a filesystem store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("fs store: mkdir %s: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *Store) writeFile(key string, data []byte) error {
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("fs store: mkdir for %s: %w", key, err)
	}
	return os.WriteFile(p, data, 0o644)
}

// Save writes every dump, then the dump-names manifest, then the raw-crash
// JSON — dumps must exist on disk before the raw-crash file appears.
func (s *Store) Save(ctx context.Context, report *crashreport.Report) error {
	crashID := report.CrashID

	for name, data := range report.Dumps {
		if err := s.writeFile(sink.DumpKey(name, crashID), data); err != nil {
			return err
		}
	}

	names := sink.SortedDumpNames(report)
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("fs store: marshal dump names: %w", err)
	}
	if err := s.writeFile(sink.DumpNamesKey(crashID), namesJSON); err != nil {
		return err
	}

	rawCrash := sink.BuildRawCrash(report)
	rawCrashJSON, err := json.Marshal(rawCrash)
	if err != nil {
		return fmt.Errorf("fs store: marshal raw crash: %w", err)
	}
	return s.writeFile(sink.RawCrashKey(crashID), rawCrashJSON)
}

// VerifyWrite proves the root directory is writable. A fresh UUID per call
// ensures this is always a create, not an overwrite of a stale probe file
// from a previous run.
func (s *Store) VerifyWrite(ctx context.Context) error {
	return s.writeFile(sink.ProbeKey(uuid.NewString()), []byte("test"))
}

// CheckHealth verifies the root directory still exists and is a directory.
func (s *Store) CheckHealth(ctx context.Context, state *health.State) {
	info, err := os.Stat(s.root)
	if err != nil {
		state.AddError(fmt.Sprintf("fs store: %v", err))
		return
	}
	if !info.IsDir() {
		state.AddError(fmt.Sprintf("fs store: %s is not a directory", s.root))
		return
	}
	state.SetInfo("fs_root", s.root)
}

var _ sink.Store = (*Store)(nil)
