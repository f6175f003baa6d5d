// Package atomicfile writes files so that readers see either the old
// contents or the new contents, never a partial write.
//
// Every write goes to a synced temporary file in the target directory
// first. [Write] renames it over the target; [Create] links it into place
// only if the target does not exist yet.
package atomicfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrExist is returned by [Create] when the target already exists.
var ErrExist = fs.ErrExist

// Write replaces path with data.
func Write(path string, data []byte, perm os.FileMode) error {
	tmp, err := stage(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Create writes data to path only if nothing is there. Two racing callers
// cannot both succeed, and an existing file is never modified. It returns
// an error wrapping [ErrExist] when path exists.
func Create(path string, data []byte, perm os.FileMode) error {
	tmp, err := stage(path, data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("create %s: %w", path, ErrExist)
		}
		return fmt.Errorf("link temp file: %w", err)
	}
	return nil
}

// WriteJSON encodes v as indented JSON with a trailing newline and writes it
// with [Write]. Nothing is written when encoding fails.
func WriteJSON(path string, v any, perm os.FileMode) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return Write(path, append(data, '\n'), perm)
}

// stage writes data to a synced temporary file next to path with mode perm
// and returns its name. On error nothing is left behind.
func stage(path string, data []byte, perm os.FileMode) (name string, err error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	name = f.Name()
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(name)
		}
	}()

	if _, err = f.Write(data); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(name, perm); err != nil {
		return "", fmt.Errorf("chmod temp file: %w", err)
	}
	return name, nil
}
