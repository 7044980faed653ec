// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides utility functions for the chatdeck application.
package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// RELIABILITY: Atomic write with fsync prevents data loss on crash
//
// AtomicWriteFile writes data to path through a temp file in the same
// directory: write, fsync, close, chmod, rename. After a crash either
// the old file or the complete new file exists, never a partial write.
// The guest store and the config writer both depend on this.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	dir := filepath.Dir(absPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	// Temp file must be on the same filesystem for the rename to be atomic.
	f, err := os.CreateTemp(dir, ".chatdeck-tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := f.Name()

	cleanup := func(err error) error {
		f.Close()
		os.Remove(tempPath)
		return err
	}

	if _, err := f.Write(data); err != nil {
		return cleanup(fmt.Errorf("write temp file: %w", err))
	}

	// Persist before the rename lands, or a crash can leave the new
	// name pointing at unsynced data.
	if err := f.Sync(); err != nil {
		return cleanup(fmt.Errorf("sync temp file: %w", err))
	}

	// Close before rename, required on Windows.
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tempPath, perm); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("set permissions: %w", err)
	}

	if err := os.Rename(tempPath, absPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename into place: %w", err)
	}

	return nil
}
