package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	readRetries    = 3
	readRetryDelay = 200 * time.Millisecond
)

// document is one JSON-array file with atomic replace semantics.
// Writers hold mu across read-merge-write; readers may run concurrently
// with a rename and retry on the empty window.
type document struct {
	path string
}

// exists reports whether the document file is present on disk.
func (d *document) exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// read unmarshals the document into v. A missing file yields an empty
// array. A zero-byte or malformed file is retried up to readRetries
// times before ErrPartialDocument is returned.
func (d *document) read(v any) error {
	var lastErr error
	for attempt := 0; attempt < readRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(readRetryDelay)
		}

		data, err := os.ReadFile(d.path)
		if errors.Is(err, os.ErrNotExist) {
			return json.Unmarshal([]byte("[]"), v)
		}
		if err != nil {
			lastErr = err
			continue
		}
		if len(data) == 0 {
			lastErr = fmt.Errorf("zero-byte document %s", d.path)
			continue
		}
		if err := json.Unmarshal(data, v); err != nil {
			lastErr = fmt.Errorf("unmarshal %s: %w", d.path, err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrPartialDocument, d.path, lastErr)
}

// write commits v via write-temp-and-rename so readers never observe
// partial bytes at the destination path.
func (d *document) write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", d.path, err)
	}

	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, d.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", d.path, err)
	}
	return nil
}
