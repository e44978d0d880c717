// Package fileutil holds small filesystem helpers shared by capture import
// and the PIN store.
package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFileVerified copies src to dst, re-reads the staged copy and compares
// its SHA-256 and size against the bytes read from src. dst is either
// complete or absent.
func CopyFileVerified(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("copy %s: not a regular file", src)
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcSum := sha256.New()
	return replaceAtomic(dst, 0o644, func(tmp *os.File) error {
		n, err := io.Copy(tmp, io.TeeReader(in, srcSum))
		if err != nil {
			return err
		}
		if n != info.Size() {
			return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", info.Size(), n)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return err
		}
		dstSum := sha256.New()
		if _, err := io.Copy(dstSum, tmp); err != nil {
			return err
		}
		if !bytes.Equal(dstSum.Sum(nil), srcSum.Sum(nil)) {
			return fmt.Errorf("copy hash mismatch: %s corrupted during copy", filepath.Base(dst))
		}
		return nil
	})
}

// WriteFileAtomic replaces path with data.
func WriteFileAtomic(path string, data []byte, mode os.FileMode) error {
	return replaceAtomic(path, mode, func(tmp *os.File) error {
		_, err := tmp.Write(data)
		return err
	})
}

// replaceAtomic stages content in a hidden sibling of path, syncs it and
// renames it over path. The sibling is removed on any failure.
func replaceAtomic(path string, mode os.FileMode, fill func(*os.File) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = fill(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), mode); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
