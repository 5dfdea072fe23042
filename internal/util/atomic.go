// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile replaces path with data. Readers see the previous file or
// the complete new one, never a partial export or config.
//
// RELIABILITY: The temp file lives next to the target so the final rename
// stays on one filesystem.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	target, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0700); err != nil {
		return fmt.Errorf("create directory for %s: %w", filepath.Base(target), err)
	}

	tmp, err := writeTemp(target, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", filepath.Base(target), err)
	}
	return nil
}

// writeTemp writes data to a synced temp file beside target and returns its
// path. The temp file is removed on failure.
func writeTemp(target string, data []byte, perm os.FileMode) (name string, err error) {
	f, err := os.CreateTemp(filepath.Dir(target), ".tmp-"+filepath.Base(target)+"-")
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
		return "", fmt.Errorf("write %s: %w", filepath.Base(target), err)
	}
	if err = f.Sync(); err != nil {
		return "", fmt.Errorf("sync %s: %w", filepath.Base(target), err)
	}
	if err = f.Chmod(perm); err != nil {
		return "", fmt.Errorf("chmod %s: %w", filepath.Base(target), err)
	}
	if err = f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", filepath.Base(target), err)
	}
	return name, nil
}
