package api

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nulldrop/internal/server/config"
	"nulldrop/internal/server/database"
	"nulldrop/internal/server/namegen"
	"nulldrop/internal/server/pipeline"
	"nulldrop/internal/server/storage"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	uploadDir := t.TempDir()
	stagingDir := t.TempDir()

	cfg := &config.Config{
		UploadURL: "http://localhost:8080",
		UploadDir: uploadDir,
		TempDir:   &stagingDir,
		Strict:    true,
		TemporaryStorage: &config.TemporaryStorage{
			ForceDefaultEnabled: true,
		},
		Filename: &config.Filename{Separator: "_", Placement: config.PlacementStart},
		RandomString: &config.RandomString{
			MaxLength:     10,
			MinLength:     5,
			DefaultLength: 5,
		},
	}

	store := storage.NewFileSystemStore(uploadDir, stagingDir)
	if err := store.EnsureDirs(); err != nil {
		t.Fatalf("failed to ensure dirs: %v", err)
	}

	db := database.New(t.TempDir() + "/test.sqlite")
	pipe := pipeline.New(cfg, store, namegen.New(store, cfg), database.NewRepository(db))

	return SetupRouter(NewHandler(pipe))
}

func TestRouter(t *testing.T) {
	router := newTestRouter(t)

	t.Run("GET is a 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("unknown path is a 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/somewhere", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("upload round-trip returns a plain-text URL", func(t *testing.T) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("file", "test.txt")
		if err != nil {
			t.Fatalf("failed to create part: %v", err)
		}
		part.Write([]byte("hello"))
		w.Close()

		req := httptest.NewRequest(http.MethodPost, "/", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if !strings.HasPrefix(rec.Body.String(), "http://localhost:8080/") {
			t.Errorf("expected a URL body, got %q", rec.Body.String())
		}
	})
}
