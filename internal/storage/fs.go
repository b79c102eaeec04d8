// Package storage replaces files on disk without ever exposing a partially
// written state.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// BackupSuffix is appended to the target path when Options.Backup is set.
const BackupSuffix = ".bak"

// Options tune Update.
type Options struct {
	// Backup copies the original to <path>.bak before it is replaced.
	Backup bool
	// DryRun runs the caller's work on the temp copy and discards it.
	DryRun bool
	// Companions are suffixes of sidecar files (for example ".idx.json")
	// that move together with the target.
	Companions []string
}

// ReplaceFile atomically replaces path with whatever write produces:
// tmp file → fsync → rename. The temp file lives in the target directory.
func ReplaceFile(path string, write func(f *os.File) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := tmp.Chmod(mode); err != nil {
		return fmt.Errorf("storage: chmod temp: %w", err)
	}

	if err := write(tmp); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// Update hands fn a writable temp copy of path and replaces path with it
// only if fn succeeds.
//
// The temp copy is created next to path so the final rename stays on one
// file system. When path does not exist the copy starts empty. On error the
// original is untouched, the temp file and its companions are removed and
// the error names path. In dry-run mode fn runs the same way but nothing is
// replaced.
func Update(path string, opts Options, fn func(tmpPath string) error) error {
	if err := update(path, opts, fn); err != nil {
		return fmt.Errorf("storage: update %s: %w", path, err)
	}
	return nil
}

func update(path string, opts Options, fn func(tmpPath string) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = os.Remove(tmpName)
		for _, suffix := range opts.Companions {
			_ = os.Remove(tmpName + suffix)
		}
	}()

	exists, err := copyInto(tmp, path)
	_ = tmp.Close()
	if err != nil {
		return err
	}
	for _, suffix := range opts.Companions {
		if _, err := copyFile(path+suffix, tmpName+suffix); err != nil {
			return err
		}
	}

	if err := fn(tmpName); err != nil {
		return err
	}
	if opts.DryRun {
		return nil
	}

	if opts.Backup && exists {
		if _, err := copyFile(path, path+BackupSuffix); err != nil {
			return fmt.Errorf("backup: %w", err)
		}
	}
	if err := syncFile(tmpName); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true

	for _, suffix := range opts.Companions {
		err := os.Rename(tmpName+suffix, path+suffix)
		if errors.Is(err, fs.ErrNotExist) {
			// fn dropped the sidecar; the old one no longer matches
			err = os.Remove(path + suffix)
			if errors.Is(err, fs.ErrNotExist) {
				err = nil
			}
		}
		if err != nil {
			return fmt.Errorf("companion %s: %w", suffix, err)
		}
	}
	return nil
}

// copyInto copies src into dst, keeping src's permissions. It reports
// whether src existed.
func copyInto(dst *os.File, src string) (bool, error) {
	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer in.Close()
	if info, err := in.Stat(); err == nil {
		_ = dst.Chmod(info.Mode().Perm())
	}
	if _, err := io.Copy(dst, in); err != nil {
		return true, err
	}
	return true, nil
}

// copyFile copies src to dst. A missing src is not an error.
func copyFile(src, dst string) (bool, error) {
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return false, err
	}
	exists, err := copyInto(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if !exists {
		_ = os.Remove(dst)
	}
	return exists, err
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
