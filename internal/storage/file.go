package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"wastewater/internal/core"
)

// FileStore keeps the dataset as a pretty-printed JSON array.
type FileStore struct {
	path          string
	now           func() time.Time
	backupCorrupt bool
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// WithCorruptBackup makes Load copy a malformed file to
// <path>.corrupt-<unix> before reporting an empty dataset. Only the writer
// needs it, since its next Save replaces the malformed file.
func (s *FileStore) WithCorruptBackup() *FileStore {
	s.backupCorrupt = true
	return s
}

// Path returns the location of the store file.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements Store. With WithCorruptBackup a malformed file is copied
// aside before the empty dataset is returned so the next write does not
// erase it.
func (s *FileStore) Load(ctx context.Context) (core.Dataset, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.InfoContext(ctx, "Store file not found, starting empty", "path", s.path)
		return core.Dataset{}, nil
	}
	if err != nil {
		slog.WarnContext(ctx, "Store unreadable, starting empty",
			"error", &ReadError{Path: s.path, Err: err})
		return core.Dataset{}, nil
	}

	ds, err := decodeDataset(data)
	if err != nil {
		readErr := &ReadError{Path: s.path, Err: err}
		if !s.backupCorrupt {
			slog.WarnContext(ctx, "Store malformed, reading as empty", "error", readErr)
			return core.Dataset{}, nil
		}
		backup := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		if werr := os.WriteFile(backup, data, 0o644); werr != nil {
			slog.WarnContext(ctx, "Failed to keep copy of malformed store", "path", backup, "error", werr)
			backup = ""
		}
		slog.WarnContext(ctx, "Store malformed, starting empty",
			"error", readErr,
			"backup", backup)
		return core.Dataset{}, nil
	}

	slog.DebugContext(ctx, "Store loaded", "path", s.path, "records", len(ds))
	return ds, nil
}

// Save implements Store by writing a temp file next to the target and
// renaming it over the old one.
func (s *FileStore) Save(ctx context.Context, ds core.Dataset) error {
	data, err := encodeDataset(ds)
	if err != nil {
		return &WriteError{Path: s.path, Err: err}
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return &WriteError{Path: s.path, Err: err}
	}

	slog.InfoContext(ctx, "Store written", "path", s.path, "records", len(ds))
	return nil
}

func decodeDataset(data []byte) (core.Dataset, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("empty file")
	}
	var ds core.Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, err
	}
	if ds == nil {
		// literal null
		return nil, errors.New("not a JSON array")
	}
	return ds, nil
}

func encodeDataset(ds core.Dataset) ([]byte, error) {
	if ds == nil {
		ds = core.Dataset{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ds); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once the rename succeeded
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace store file: %w", err)
	}
	return nil
}
