package calibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/banshee-data/pothole.report/internal/fsutil"
)

// DefaultPath is where the calibration record is kept unless configured.
const DefaultPath = "camera_calibration.json"

const maxRecordSize = 1 * 1024 * 1024 // 1MB

// ErrNoRecord is returned by Load when no calibration has been saved yet.
var ErrNoRecord = errors.New("no calibration record")

// Store persists a single calibration Record as a JSON file. The file is
// always rewritten whole.
type Store struct {
	path string
	fs   fsutil.FileSystem
	now  func() time.Time
}

// NewStore returns a Store backed by the OS filesystem.
func NewStore(path string) *Store {
	return NewStoreFS(path, fsutil.OSFileSystem{})
}

// NewStoreFS returns a Store backed by fsys.
func NewStoreFS(path string, fsys fsutil.FileSystem) *Store {
	return &Store{path: filepath.Clean(path), fs: fsys, now: time.Now}
}

// Path returns the record file path.
func (s *Store) Path() string { return s.path }

// Load reads the record. A missing file yields ErrNoRecord.
func (s *Store) Load() (*Record, error) {
	if ext := filepath.Ext(s.path); ext != ".json" {
		return nil, fmt.Errorf("calibration file must have .json extension, got %q", ext)
	}
	data, err := fsutil.ReadFileLimited(s.fs, s.path, maxRecordSize)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrNoRecord, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read calibration file: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse calibration file %s: %w", s.path, err)
	}
	return &rec, nil
}

// LoadComplete reads the record and checks it is usable for measurement.
func (s *Store) LoadComplete() (*Record, error) {
	rec, err := s.Load()
	if err != nil {
		return nil, err
	}
	if err := rec.Complete(); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return rec, nil
}

// Save writes rec, replacing any existing record.
func (s *Store) Save(rec *Record) error {
	if ext := filepath.Ext(s.path); ext != ".json" {
		return fmt.Errorf("calibration file must have .json extension, got %q", ext)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode calibration record: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.fs, s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	opsf("calibration saved to %s", s.path)
	return nil
}

// SaveIntrinsics writes a fresh record holding the intrinsic solve. Any scale
// stored previously is dropped: it was measured through the old lens model and
// reference calibration must be repeated.
func (s *Store) SaveIntrinsics(res *IntrinsicResult) (*Record, error) {
	rec := &Record{}
	rec.SetIntrinsics(res, s.now().UTC())
	if err := s.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// MergeScale reads the existing record, sets its scale pair and rewrites it.
// It fails with MissingIntrinsics when there is no record with intrinsics.
func (s *Store) MergeScale(scale ScaleResult) (*Record, error) {
	rec, err := s.Load()
	if errors.Is(err, ErrNoRecord) {
		return nil, newError(MissingIntrinsics, "run intrinsic calibration first (%s not found)", s.path)
	}
	if err != nil {
		return nil, err
	}
	if !rec.HasIntrinsics() {
		return nil, newError(MissingIntrinsics, "%s has no intrinsic matrix", s.path)
	}
	rec.SetScale(scale, s.now().UTC())
	if err := s.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}
