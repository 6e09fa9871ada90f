package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitChange(t *testing.T, w *Watcher) {
	t.Helper()
	select {
	case <-w.Changes():
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}

func TestWatcher_DetectsRenameOverWrite(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "posts.json")
	if err := os.WriteFile(target, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(target, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Atomic publish: write a temp file, rename it over the target. The
	// old inode disappears; the directory watch still sees it.
	tmp := filepath.Join(dir, "posts.json.tmp")
	if err := os.WriteFile(tmp, []byte(`[{"id":1}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, target); err != nil {
		t.Fatal(err)
	}

	waitChange(t, w)
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "posts.json")

	w, err := New(target, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-w.Changes():
		t.Fatal("sibling file change must not signal")
	case <-time.After(300 * time.Millisecond):
	}

	// The watched file still signals afterwards.
	if err := os.WriteFile(target, []byte("[]"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitChange(t, w)
}

func TestWatcher_BurstsCoalesce(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "posts.json")

	w, err := New(target, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 10; i++ {
		if err := os.WriteFile(target, []byte("[]"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	// Let the whole burst land while nobody drains: the capacity-1
	// channel coalesces it into a single pending signal.
	time.Sleep(300 * time.Millisecond)

	waitChange(t, w)
	select {
	case <-w.Changes():
		t.Fatal("burst left more than one pending signal")
	case <-time.After(300 * time.Millisecond):
	}
}
