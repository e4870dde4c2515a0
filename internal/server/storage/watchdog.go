package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"nulldrop/internal/server/database"
)

// Lifecycle-misuse errors. Both indicate a wiring bug in the caller.
var (
	ErrAlreadyRunning = errors.New("watchdog is already running")
	ErrNotRunning     = errors.New("watchdog has not been started")
)

// Watchdog periodically removes expired uploads from both the record
// store and file storage. It owns the database lifecycle: Start opens it,
// Stop closes it.
type Watchdog struct {
	db       *database.DB
	repo     *database.Repository
	store    Store
	interval time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWatchdog creates a stopped watchdog sweeping every interval.
// An interval of zero means sweeps re-fire without a fixed delay.
func NewWatchdog(db *database.DB, repo *database.Repository, store Store, interval time.Duration) *Watchdog {
	return &Watchdog{
		db:       db,
		repo:     repo,
		store:    store,
		interval: interval,
	}
}

// Start opens the record store, runs one immediate sweep, and begins the
// periodic sweep loop. Starting a running watchdog fails with
// ErrAlreadyRunning.
func (w *Watchdog) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return ErrAlreadyRunning
	}

	if err := w.db.Open(); err != nil {
		return err
	}

	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.running = true

	slog.Info("watchdog started", "interval", w.interval)
	w.sweep()

	go w.loop(w.stop, w.done)
	return nil
}

// Stop cancels the sweep loop, waits for it to exit, and closes the
// record store. Stopping a stopped watchdog fails with ErrNotRunning.
func (w *Watchdog) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return ErrNotRunning
	}

	close(w.stop)
	<-w.done
	w.running = false

	slog.Info("watchdog stopped")
	return w.db.Close()
}

// Running reports whether the watchdog is currently sweeping.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watchdog) loop(stop, done chan struct{}) {
	defer close(done)

	// A zero interval makes the timer fire immediately on every
	// iteration, so sweeps run back to back; the timer channel is the
	// yield point that keeps the scheduler fed.
	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			w.sweep()
			timer.Reset(w.interval)
		}
	}
}

// sweep deletes expired files from the upload directory and drops their
// tracking records. A failed query skips this iteration; the next one
// proceeds on schedule.
func (w *Watchdog) sweep() {
	ctx := context.Background()
	now := time.Now().UnixMilli()

	expired, err := w.repo.ListExpired(ctx, now)
	if err != nil {
		slog.Error("failed to list expired files", "error", err)
		return
	}

	if len(expired) == 0 {
		return
	}

	for _, file := range expired {
		// Missing files are swallowed by Delete; only real I/O
		// failures surface here.
		if err := w.store.Delete(file.Filename); err != nil {
			slog.Error("failed to delete expired file",
				"filename", file.Filename,
				"error", err,
			)
		}
	}

	if err := w.repo.DeleteExpired(ctx, now); err != nil {
		slog.Error("failed to delete expired records", "error", err)
		return
	}

	slog.Info("sweep complete", "expired", len(expired))
}
