package namegen

import (
	"io"
	"strings"
	"testing"

	"nulldrop/internal/server/config"
	"nulldrop/internal/server/storage"
)

// fakeStore records which names exist so collision handling can be
// exercised without touching the filesystem.
type fakeStore struct {
	existing map[string]bool
	probes   int
}

func (f *fakeStore) Exists(name string) (bool, error) {
	f.probes++
	return f.existing[name], nil
}

func (f *fakeStore) SaveTemp(io.Reader) (string, error) { return "", nil }
func (f *fakeStore) Promote(string, string) error       { return nil }
func (f *fakeStore) Delete(string) error                { return nil }
func (f *fakeStore) DeleteTemp(string) error            { return nil }
func (f *fakeStore) EnsureDirs() error                  { return nil }

func newTestGenerator(store storage.Store, placement string) *Generator {
	cfg := &config.Config{
		Filename: &config.Filename{Separator: "_", Placement: placement},
	}
	return New(store, cfg)
}

func TestGenerate(t *testing.T) {
	t.Run("random segment has the requested length", func(t *testing.T) {
		gen := newTestGenerator(&fakeStore{}, config.PlacementStart)

		for _, length := range []int{1, 5, 16, 64} {
			name, err := gen.Generate(length, "test", ".txt", false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := len(strings.TrimSuffix(name, ".txt")); got != length {
				t.Errorf("length %d: random segment has %d characters", length, got)
			}
		}
	})

	t.Run("only contains charset characters", func(t *testing.T) {
		gen := newTestGenerator(&fakeStore{}, config.PlacementStart)

		name, err := gen.Generate(100, "test", "", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, c := range name {
			if !strings.ContainsRune(charset, c) {
				t.Errorf("name contains invalid character: %c", c)
			}
		}
	})

	t.Run("appends extension last", func(t *testing.T) {
		gen := newTestGenerator(&fakeStore{}, config.PlacementStart)

		name, err := gen.Generate(8, "report", ".pdf", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasSuffix(name, ".pdf") {
			t.Errorf("expected .pdf suffix, got %q", name)
		}
	})

	t.Run("placement start puts the random segment first", func(t *testing.T) {
		gen := newTestGenerator(&fakeStore{}, config.PlacementStart)

		name, err := gen.Generate(6, "report", ".pdf", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasSuffix(name, "_report.pdf") {
			t.Errorf("expected <random>_report.pdf, got %q", name)
		}
		if got := len(strings.TrimSuffix(name, "_report.pdf")); got != 6 {
			t.Errorf("expected 6-character random segment, got %d", got)
		}
	})

	t.Run("placement end puts the original name first", func(t *testing.T) {
		gen := newTestGenerator(&fakeStore{}, config.PlacementEnd)

		name, err := gen.Generate(6, "report", ".pdf", true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(name, "report_") {
			t.Errorf("expected report_<random>.pdf, got %q", name)
		}
	})

	t.Run("generates unique names", func(t *testing.T) {
		gen := newTestGenerator(&fakeStore{}, config.PlacementStart)

		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			name, err := gen.Generate(16, "test", "", false)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seen[name] {
				t.Fatalf("duplicate name generated: %s", name)
			}
			seen[name] = true
		}
	})

	t.Run("retries on collision", func(t *testing.T) {
		// All single-character names from a fixed charset collide
		// eventually; pre-fill half the space and expect retries.
		store := &fakeStore{existing: map[string]bool{}}
		for _, c := range charset[:20] {
			store.existing[string(c)+".txt"] = true
		}
		gen := newTestGenerator(store, config.PlacementStart)

		name, err := gen.Generate(1, "test", ".txt", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if store.existing[name] {
			t.Errorf("generated a colliding name: %s", name)
		}
	})

	t.Run("gives up after the retry cap", func(t *testing.T) {
		full := &fullStore{}
		gen := newTestGenerator(full, config.PlacementStart)

		_, err := gen.Generate(4, "test", ".txt", false)
		if err != ErrNoNameAvailable {
			t.Fatalf("expected ErrNoNameAvailable, got %v", err)
		}
		if full.probes != maxAttempts {
			t.Errorf("expected %d probes, got %d", maxAttempts, full.probes)
		}
	})
}

// fullStore reports every name as taken.
type fullStore struct {
	fakeStore
}

func (f *fullStore) Exists(string) (bool, error) {
	f.probes++
	return true, nil
}
