package namegen

import (
	"crypto/rand"
	"errors"
	"fmt"

	"nulldrop/internal/server/config"
	"nulldrop/internal/server/storage"
)

// charset matches the 62-symbol alphanumeric alphabet used for generated
// names. Mapping random bytes modulo 62 is not perfectly uniform, but the
// bias at this charset size is negligible and accepted.
const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxAttempts caps the collision-retry loop. Exceeding it means the name
// space at the requested length is effectively full.
const maxAttempts = 10

// ErrNoNameAvailable is returned when maxAttempts candidate names all
// collided with existing files. Callers translate this into a 409.
var ErrNoNameAvailable = errors.New("no unused filename available")

// Generator produces collision-free storage filenames. It holds no mutable
// state and is safe for concurrent use; two requests racing between the
// existence check and the final rename is an accepted TOCTOU risk.
type Generator struct {
	store     storage.Store
	separator string
	placement string
}

// New creates a Generator probing store for collisions, using the
// configured separator and placement for appended original filenames.
func New(store storage.Store, cfg *config.Config) *Generator {
	return &Generator{
		store:     store,
		separator: cfg.Filename.Separator,
		placement: cfg.Filename.Placement,
	}
}

// Generate returns a filename whose random segment has exactly length
// characters. With appendOriginal, the original name (without extension)
// is joined to the random segment on the configured side. The extension,
// when present, always comes last.
func (g *Generator) Generate(length int, originalName, extension string, appendOriginal bool) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		random, err := randomString(length)
		if err != nil {
			return "", err
		}

		var name string
		switch {
		case !appendOriginal:
			name = random + extension
		case g.placement == config.PlacementStart:
			name = random + g.separator + originalName + extension
		default:
			name = originalName + g.separator + random + extension
		}

		exists, err := g.store.Exists(name)
		if err != nil {
			return "", fmt.Errorf("failed to check name availability: %w", err)
		}
		if !exists {
			return name, nil
		}
	}

	return "", ErrNoNameAvailable
}

func randomString(length int) (string, error) {
	bytes := make([]byte, length)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("crypto/rand failure: %w", err)
	}

	result := make([]byte, length)
	for i, b := range bytes {
		result[i] = charset[int(b)%len(charset)]
	}
	return string(result), nil
}
