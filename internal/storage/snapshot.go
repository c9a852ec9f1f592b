package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// snapshotFile persists a whole-document JSON snapshot. Schedule is
// fire-and-forget: a single writer goroutine coalesces requests and every write
// takes a fresh snapshot, so the last write always reflects the latest state.
type snapshotFile struct {
	fs       afero.Fs
	path     string
	snapshot func() any
	logger   zerolog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	dirty  bool
	kick   chan struct{}
	done   chan struct{}
}

func newSnapshotFile(fs afero.Fs, path string, snapshot func() any, logger zerolog.Logger) *snapshotFile {
	f := &snapshotFile{
		fs:       fs,
		path:     path,
		snapshot: snapshot,
		logger:   logger,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go f.loop()
	return f
}

// load decodes the file into dst. A missing file reports (false, nil).
func (f *snapshotFile) load(dst any) (bool, error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", f.path, err)
	}
	return true, nil
}

// Schedule requests an asynchronous rewrite.
func (f *snapshotFile) Schedule() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.dirty = true
	select {
	case f.kick <- struct{}{}:
	default:
	}
}

// Flush writes the current state synchronously.
func (f *snapshotFile) Flush() error {
	return f.write(true)
}

// Close stops the writer goroutine. The final write only happens when a
// mutation is still unwritten, so an untouched file is left as it was.
func (f *snapshotFile) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	close(f.kick)
	f.mu.Unlock()

	<-f.done
	return f.write(false)
}

func (f *snapshotFile) loop() {
	defer close(f.done)
	for range f.kick {
		if err := f.write(false); err != nil {
			f.logger.Error().Err(err).Str("path", f.path).Msg("failed to persist snapshot")
		}
	}
}

func (f *snapshotFile) setDirty(dirty bool) {
	f.mu.Lock()
	f.dirty = dirty
	f.mu.Unlock()
}

// write persists a fresh snapshot. Unless force is set, a clean file is
// skipped. The dirty flag is cleared before the snapshot is taken and raised
// again when the write fails.
func (f *snapshotFile) write(force bool) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.Lock()
	dirty := f.dirty
	f.dirty = false
	f.mu.Unlock()
	if !dirty && !force {
		return nil
	}

	if err := f.writeSnapshot(); err != nil {
		f.setDirty(true)
		return err
	}
	return nil
}

func (f *snapshotFile) writeSnapshot() error {
	data, err := json.MarshalIndent(f.snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", f.path, err)
	}

	if dir := filepath.Dir(f.path); dir != "." && dir != "" {
		if err := f.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
