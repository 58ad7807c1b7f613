// Package filelock provides file locking and atomic write operations so that a
// destination is either fully written or untouched, even when several workers
// or processes target the same directory.
package filelock

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// tempPattern names in-flight writes; they are hidden and never committed under
// this name.
const tempPattern = ".packrat-tmp-*"

// FileLock wraps a flock file lock for coordinating access to files.
type FileLock struct {
	flock *flock.Flock
	path  string
}

// NewFileLock creates a new file lock for the given path.
// The lock file will be created at the specified path.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		flock: flock.New(path),
		path:  path,
	}
}

// Lock acquires an exclusive lock on the file, blocking until the lock is available.
func (fl *FileLock) Lock() error {
	if err := fl.flock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", fl.path, err)
	}
	return nil
}

// Unlock releases the lock.
func (fl *FileLock) Unlock() error {
	if err := fl.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock on %s: %w", fl.path, err)
	}
	return nil
}

// Options control how a committed file is finalized.
type Options struct {
	Perm    os.FileMode // Permission bits; 0 means 0644
	ModTime time.Time   // Applied when non-zero
}

// Commit fills a temp file beside path and renames it into place atomically.
// Readers never observe a partially written destination: either the rename
// happens after every byte is synced, or the temp file is removed and path is
// left as it was.
//
// The process:
// 1. Create a temporary file in the same directory as the target
// 2. Let fill write the content and sync it
// 3. Apply permissions and modification time
// 4. Rename the temporary file to the target path
func Commit(path string, opts Options, fill func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Same directory keeps the rename on one filesystem.
	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	defer func() {
		if tempFile != nil {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if err := fill(tempFile); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	perm := opts.Perm.Perm()
	if perm == 0 {
		perm = 0644
	}
	if err := os.Chmod(tempPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if !opts.ModTime.IsZero() {
		if err := os.Chtimes(tempPath, opts.ModTime, opts.ModTime); err != nil {
			return fmt.Errorf("failed to set modification time: %w", err)
		}
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", path, err)
	}

	tempFile = nil
	return nil
}

// AtomicWrite streams r into path through Commit and reports the bytes copied,
// including on failure.
func AtomicWrite(path string, r io.Reader, opts Options) (int64, error) {
	var n int64
	err := Commit(path, opts, func(w io.Writer) error {
		var err error
		n, err = io.Copy(w, r)
		return err
	})
	return n, err
}

// LockAndCommit holds an advisory lock on path+".lock" for the duration of a
// Commit, so concurrent processes producing the same file serialize. The lock
// file is removed afterwards.
func LockAndCommit(path string, opts Options, fill func(w io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
	}
	lockPath := path + ".lock"
	lock := NewFileLock(lockPath)
	if err := lock.Lock(); err != nil {
		return err
	}
	defer func() {
		lock.Unlock()
		os.Remove(lockPath)
	}()

	return Commit(path, opts, fill)
}

// LockAndWrite is AtomicWrite under LockAndCommit's lock.
func LockAndWrite(path string, r io.Reader, opts Options) (int64, error) {
	var n int64
	err := LockAndCommit(path, opts, func(w io.Writer) error {
		var err error
		n, err = io.Copy(w, r)
		return err
	})
	return n, err
}

// Symlink creates a symbolic link at path pointing to target, replacing any
// existing entry atomically.
func Symlink(target, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	// Reserve a unique temp name, then swap the placeholder for the link.
	tempFile, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	tempFile.Close()
	os.Remove(tempPath)

	if err := os.Symlink(target, tempPath); err != nil {
		return fmt.Errorf("failed to create link %s: %w", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename link to %s: %w", path, err)
	}
	return nil
}

// IsTemp reports whether name looks like an in-flight temp file.
func IsTemp(name string) bool {
	matched, _ := filepath.Match(tempPattern, filepath.Base(name))
	return matched
}
