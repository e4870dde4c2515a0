package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"nulldrop/internal/server/database"
)

func newTestWatchdog(t *testing.T, interval time.Duration) (*Watchdog, *database.Repository, *FileSystemStore, string) {
	t.Helper()

	uploadDir := t.TempDir()
	store := NewFileSystemStore(uploadDir, t.TempDir())
	if err := store.EnsureDirs(); err != nil {
		t.Fatalf("failed to ensure dirs: %v", err)
	}

	db := database.New(filepath.Join(t.TempDir(), "test.sqlite"))
	repo := database.NewRepository(db)

	return NewWatchdog(db, repo, store, interval), repo, store, uploadDir
}

func createUpload(t *testing.T, uploadDir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(uploadDir, name), []byte("data"), 0644); err != nil {
		t.Fatalf("failed to create upload %s: %v", name, err)
	}
}

func waitForAbsence(t *testing.T, uploadDir, name string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(filepath.Join(uploadDir, name)); os.IsNotExist(err) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("file %s still present after deadline", name)
}

func TestWatchdogLifecycle(t *testing.T) {
	t.Run("stop without start fails", func(t *testing.T) {
		w, _, _, _ := newTestWatchdog(t, time.Second)

		if err := w.Stop(); !errors.Is(err, ErrNotRunning) {
			t.Fatalf("expected ErrNotRunning, got %v", err)
		}
	})

	t.Run("double start fails", func(t *testing.T) {
		w, _, _, _ := newTestWatchdog(t, time.Second)

		if err := w.Start(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer w.Stop()

		if err := w.Start(); !errors.Is(err, ErrAlreadyRunning) {
			t.Fatalf("expected ErrAlreadyRunning, got %v", err)
		}
	})

	t.Run("start then stop transitions cleanly", func(t *testing.T) {
		w, _, _, _ := newTestWatchdog(t, time.Second)

		if err := w.Start(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !w.Running() {
			t.Error("expected watchdog to report running")
		}

		if err := w.Stop(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w.Running() {
			t.Error("expected watchdog to report stopped")
		}
	})

	t.Run("restart after stop works", func(t *testing.T) {
		w, _, _, _ := newTestWatchdog(t, time.Second)

		for i := 0; i < 2; i++ {
			if err := w.Start(); err != nil {
				t.Fatalf("start %d failed: %v", i, err)
			}
			if err := w.Stop(); err != nil {
				t.Fatalf("stop %d failed: %v", i, err)
			}
		}
	})
}

func TestWatchdogSweep(t *testing.T) {
	t.Run("immediate sweep removes already-expired files", func(t *testing.T) {
		w, repo, _, uploadDir := newTestWatchdog(t, time.Hour)

		// Seed a record whose termination time lies in the past.
		if err := w.db.Open(); err != nil {
			t.Fatalf("failed to open db: %v", err)
		}
		createUpload(t, uploadDir, "old.txt")
		if err := repo.AddFile(context.Background(), time.Now().UnixMilli()-1000, "old.txt"); err != nil {
			t.Fatalf("failed to track file: %v", err)
		}

		if err := w.Start(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer w.Stop()

		if _, err := os.Stat(filepath.Join(uploadDir, "old.txt")); !os.IsNotExist(err) {
			t.Error("expected old.txt to be deleted by the immediate sweep")
		}

		expired, err := repo.ListExpired(context.Background(), time.Now().UnixMilli())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(expired) != 0 {
			t.Errorf("expected no expired records left, got %d", len(expired))
		}
	})

	t.Run("interval zero sweeps continuously", func(t *testing.T) {
		w, repo, _, uploadDir := newTestWatchdog(t, 0)

		if err := w.Start(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer w.Stop()

		// Insert an already-expired file after start; only a follow-up
		// sweep can pick it up.
		createUpload(t, uploadDir, "zero.txt")
		if err := repo.AddFile(context.Background(), time.Now().UnixMilli()-1, "zero.txt"); err != nil {
			t.Fatalf("failed to track file: %v", err)
		}

		waitForAbsence(t, uploadDir, "zero.txt")
	})

	t.Run("unexpired files survive the sweep", func(t *testing.T) {
		w, repo, _, uploadDir := newTestWatchdog(t, time.Hour)

		if err := w.db.Open(); err != nil {
			t.Fatalf("failed to open db: %v", err)
		}
		createUpload(t, uploadDir, "fresh.txt")
		if err := repo.AddFile(context.Background(), time.Now().UnixMilli()+60_000, "fresh.txt"); err != nil {
			t.Fatalf("failed to track file: %v", err)
		}

		if err := w.Start(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer w.Stop()

		if _, err := os.Stat(filepath.Join(uploadDir, "fresh.txt")); err != nil {
			t.Errorf("expected fresh.txt to survive: %v", err)
		}
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		w, repo, _, _ := newTestWatchdog(t, time.Hour)

		if err := w.db.Open(); err != nil {
			t.Fatalf("failed to open db: %v", err)
		}
		// Track a file that never landed on disk.
		if err := repo.AddFile(context.Background(), time.Now().UnixMilli()-1000, "phantom.txt"); err != nil {
			t.Fatalf("failed to track file: %v", err)
		}

		if err := w.Start(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer w.Stop()

		expired, err := repo.ListExpired(context.Background(), time.Now().UnixMilli())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(expired) != 0 {
			t.Errorf("expected phantom record to be cleaned up, got %d rows", len(expired))
		}
	})
}
