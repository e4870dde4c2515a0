package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Placement values for the append-filename policy.
const (
	PlacementStart = "start"
	PlacementEnd   = "end"
)

// TemporaryStorage controls whether uploads may be marked temporary and
// which TTLs clients may request.
type TemporaryStorage struct {
	ForceDefaultEnabled bool  `json:"forceDefaultEnabled"`
	ForceDefaultTTL     bool  `json:"forceDefaultTTL"`
	DefaultEnabled      bool  `json:"defaultEnabled"`
	MaxTTL              int64 `json:"maxTTL"`
	MinTTL              int64 `json:"minTTL"`
	DefaultTTL          int64 `json:"defaultTTL"`
}

// Backend selects and locates the embedded record store.
type Backend struct {
	Adapter string `json:"adapter"`
	Path    string `json:"path"`
}

// Watchdog holds the expiry sweeper settings. ScanInterval is in seconds;
// zero means sweeping re-fires continuously without a fixed delay.
type Watchdog struct {
	ScanInterval int64 `json:"scanInterval"`
}

// Filename controls whether the original filename is appended to the
// generated random name and where it is placed.
type Filename struct {
	ForceDefaultAppendFilename bool   `json:"forceDefaultAppendFilename"`
	DefaultAppendFilename      bool   `json:"defaultAppendFilename"`
	Separator                  string `json:"separator"`
	Placement                  string `json:"placement"`
}

// RandomString bounds the length of generated names.
type RandomString struct {
	ForceDefaultLength bool `json:"forceDefaultLength"`
	MaxLength          int  `json:"maxLength"`
	MinLength          int  `json:"minLength"`
	DefaultLength      int  `json:"defaultLength"`
}

// Config is the effective process configuration. It is loaded once at
// startup, validated eagerly, and never mutated while serving traffic.
type Config struct {
	Port               int               `json:"port"`
	UploadURL          string            `json:"uploadUrl"`
	UploadDir          string            `json:"uploadDir"`
	TempDir            *string           `json:"tempDir"`
	Strict             bool              `json:"strict"`
	TemporaryStorage   *TemporaryStorage `json:"temporaryStorage"`
	Backend            *Backend          `json:"backend"`
	Watchdog           *Watchdog         `json:"watchdog"`
	Filename           *Filename         `json:"filename"`
	RandomString       *RandomString     `json:"randomString"`
	ExtensionBlacklist []string          `json:"extensionBlacklist"`
}

// rawConfig mirrors Config with every leaf optional so that missing and
// mistyped fields can each be reported individually.
type rawConfig struct {
	Port      *int    `json:"port"`
	UploadURL *string `json:"uploadUrl"`
	UploadDir *string `json:"uploadDir"`
	TempDir   *string `json:"tempDir"`
	Strict    *bool   `json:"strict"`

	TemporaryStorage *struct {
		ForceDefaultEnabled *bool  `json:"forceDefaultEnabled"`
		ForceDefaultTTL     *bool  `json:"forceDefaultTTL"`
		DefaultEnabled      *bool  `json:"defaultEnabled"`
		MaxTTL              *int64 `json:"maxTTL"`
		MinTTL              *int64 `json:"minTTL"`
		DefaultTTL          *int64 `json:"defaultTTL"`
	} `json:"temporaryStorage"`

	Backend *struct {
		Adapter *string `json:"adapter"`
		Path    *string `json:"path"`
	} `json:"backend"`

	Watchdog *struct {
		ScanInterval *int64 `json:"scanInterval"`
	} `json:"watchdog"`

	Filename *struct {
		ForceDefaultAppendFilename *bool   `json:"forceDefaultAppendFilename"`
		DefaultAppendFilename      *bool   `json:"defaultAppendFilename"`
		Separator                  *string `json:"separator"`
		Placement                  *string `json:"placement"`
	} `json:"filename"`

	RandomString *struct {
		ForceDefaultLength *bool `json:"forceDefaultLength"`
		MaxLength          *int  `json:"maxLength"`
		MinLength          *int  `json:"minLength"`
		DefaultLength      *int  `json:"defaultLength"`
	} `json:"randomString"`

	ExtensionBlacklist *[]string `json:"extensionBlacklist"`
}

// Load reads and validates the configuration file at path. Every schema
// violation is reported; the returned error joins all of them so a broken
// file can be fixed in one pass.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configuration file %q could not be read: %w", path, err)
	}

	var raw rawConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("configuration file %q is not valid JSON: %w", path, err)
	}

	var errs []error
	missing := func(field string) {
		errs = append(errs, fmt.Errorf("%q is not defined in the configuration file", field))
	}

	cfg := &Config{}

	if raw.Port == nil {
		missing("port")
	} else {
		cfg.Port = *raw.Port
		if cfg.Port < 1 || cfg.Port > 65535 {
			errs = append(errs, errors.New(`"port" must be between 1 and 65535`))
		}
	}

	if raw.UploadURL == nil {
		missing("uploadUrl")
	} else {
		cfg.UploadURL = *raw.UploadURL
	}

	if raw.UploadDir == nil {
		missing("uploadDir")
	} else {
		cfg.UploadDir = *raw.UploadDir
		if err := checkWritableDir(cfg.UploadDir); err != nil {
			errs = append(errs, fmt.Errorf(`the path defined in "uploadDir" does not exist or is not writable: %w`, err))
		}
	}

	// tempDir is nullable: null falls back to the OS temp dir.
	if raw.TempDir != nil {
		cfg.TempDir = raw.TempDir
		if err := checkWritableDir(*raw.TempDir); err != nil {
			errs = append(errs, fmt.Errorf(`the path defined in "tempDir" does not exist or is not writable: %w`, err))
		}
	}

	if raw.Strict == nil {
		missing("strict")
	} else {
		cfg.Strict = *raw.Strict
	}

	if raw.TemporaryStorage == nil {
		missing("temporaryStorage")
	} else {
		ts := &TemporaryStorage{}
		cfg.TemporaryStorage = ts
		in := raw.TemporaryStorage

		if in.ForceDefaultEnabled == nil {
			missing("temporaryStorage.forceDefaultEnabled")
		} else {
			ts.ForceDefaultEnabled = *in.ForceDefaultEnabled
		}
		if in.ForceDefaultTTL == nil {
			missing("temporaryStorage.forceDefaultTTL")
		} else {
			ts.ForceDefaultTTL = *in.ForceDefaultTTL
		}
		if in.DefaultEnabled == nil {
			missing("temporaryStorage.defaultEnabled")
		} else {
			ts.DefaultEnabled = *in.DefaultEnabled
		}
		if in.MaxTTL == nil {
			missing("temporaryStorage.maxTTL")
		} else {
			ts.MaxTTL = *in.MaxTTL
			if ts.MaxTTL < 0 {
				errs = append(errs, errors.New(`"temporaryStorage.maxTTL" must be equal or greater than 0`))
			}
		}
		if in.MinTTL == nil {
			missing("temporaryStorage.minTTL")
		} else {
			ts.MinTTL = *in.MinTTL
			if ts.MinTTL < 0 {
				errs = append(errs, errors.New(`"temporaryStorage.minTTL" must be equal or greater than 0`))
			}
		}
		if in.DefaultTTL == nil {
			missing("temporaryStorage.defaultTTL")
		} else {
			ts.DefaultTTL = *in.DefaultTTL
			if ts.DefaultTTL < 0 {
				errs = append(errs, errors.New(`"temporaryStorage.defaultTTL" must be equal or greater than 0`))
			}
		}

		// Cross-field bounds only apply when clients may pick a TTL.
		if in.ForceDefaultTTL != nil && !*in.ForceDefaultTTL &&
			in.MinTTL != nil && in.MaxTTL != nil && in.DefaultTTL != nil {
			if ts.MaxTTL < ts.MinTTL {
				errs = append(errs, errors.New(`"temporaryStorage.maxTTL" cannot be smaller than "temporaryStorage.minTTL"`))
			}
			if ts.DefaultTTL < ts.MinTTL {
				errs = append(errs, errors.New(`"temporaryStorage.defaultTTL" cannot be smaller than "temporaryStorage.minTTL"`))
			}
			if ts.DefaultTTL > ts.MaxTTL {
				errs = append(errs, errors.New(`"temporaryStorage.defaultTTL" cannot be greater than "temporaryStorage.maxTTL"`))
			}
		}
	}

	if raw.Backend == nil {
		missing("backend")
	} else {
		b := &Backend{}
		cfg.Backend = b

		if raw.Backend.Adapter == nil {
			missing("backend.adapter")
		} else {
			b.Adapter = *raw.Backend.Adapter
			if b.Adapter != "sqlite" {
				errs = append(errs, errors.New(`"backend.adapter" can only be "sqlite"`))
			}
		}
		if raw.Backend.Path == nil {
			missing("backend.path")
		} else {
			b.Path = *raw.Backend.Path
			if err := checkWritableDir(b.Path); err != nil {
				errs = append(errs, fmt.Errorf(`the path defined in "backend.path" does not exist or is not writable: %w`, err))
			}
		}
	}

	if raw.Watchdog == nil {
		missing("watchdog")
	} else {
		w := &Watchdog{}
		cfg.Watchdog = w

		if raw.Watchdog.ScanInterval == nil {
			missing("watchdog.scanInterval")
		} else {
			w.ScanInterval = *raw.Watchdog.ScanInterval
			if w.ScanInterval < 0 {
				errs = append(errs, errors.New(`"watchdog.scanInterval" must be equal or greater than 0`))
			}
		}
	}

	if raw.Filename == nil {
		missing("filename")
	} else {
		f := &Filename{}
		cfg.Filename = f
		in := raw.Filename

		if in.ForceDefaultAppendFilename == nil {
			missing("filename.forceDefaultAppendFilename")
		} else {
			f.ForceDefaultAppendFilename = *in.ForceDefaultAppendFilename
		}
		if in.DefaultAppendFilename == nil {
			missing("filename.defaultAppendFilename")
		} else {
			f.DefaultAppendFilename = *in.DefaultAppendFilename
		}
		if in.Separator == nil {
			missing("filename.separator")
		} else {
			f.Separator = *in.Separator
		}
		if in.Placement == nil {
			missing("filename.placement")
		} else {
			f.Placement = *in.Placement
			if f.Placement != PlacementStart && f.Placement != PlacementEnd {
				errs = append(errs, errors.New(`"filename.placement" can only be "start" or "end"`))
			}
		}
	}

	if raw.RandomString == nil {
		missing("randomString")
	} else {
		rs := &RandomString{}
		cfg.RandomString = rs
		in := raw.RandomString

		if in.ForceDefaultLength == nil {
			missing("randomString.forceDefaultLength")
		} else {
			rs.ForceDefaultLength = *in.ForceDefaultLength
		}
		if in.MaxLength == nil {
			missing("randomString.maxLength")
		} else {
			rs.MaxLength = *in.MaxLength
			if rs.MaxLength < 1 {
				errs = append(errs, errors.New(`"randomString.maxLength" must be equal or greater than 1`))
			}
		}
		if in.MinLength == nil {
			missing("randomString.minLength")
		} else {
			rs.MinLength = *in.MinLength
			if rs.MinLength < 1 {
				errs = append(errs, errors.New(`"randomString.minLength" must be equal or greater than 1`))
			}
		}
		if in.DefaultLength == nil {
			missing("randomString.defaultLength")
		} else {
			rs.DefaultLength = *in.DefaultLength
			if rs.DefaultLength < 1 {
				errs = append(errs, errors.New(`"randomString.defaultLength" must be equal or greater than 1`))
			}
		}

		if in.ForceDefaultLength != nil && !*in.ForceDefaultLength &&
			in.MinLength != nil && in.MaxLength != nil && in.DefaultLength != nil {
			if rs.MaxLength < rs.MinLength {
				errs = append(errs, errors.New(`"randomString.maxLength" cannot be smaller than "randomString.minLength"`))
			}
			if rs.DefaultLength < rs.MinLength {
				errs = append(errs, errors.New(`"randomString.defaultLength" cannot be smaller than "randomString.minLength"`))
			}
			if rs.DefaultLength > rs.MaxLength {
				errs = append(errs, errors.New(`"randomString.defaultLength" cannot be greater than "randomString.maxLength"`))
			}
		}
	}

	// A null blacklist means every extension is allowed.
	if raw.ExtensionBlacklist != nil && *raw.ExtensionBlacklist != nil {
		list := make([]string, 0, len(*raw.ExtensionBlacklist))
		for _, entry := range *raw.ExtensionBlacklist {
			if !strings.HasPrefix(entry, ".") {
				entry = "." + entry
			}
			list = append(list, entry)
		}
		cfg.ExtensionBlacklist = list
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return cfg, nil
}

// StagingDir returns the directory incoming files are written to before
// being renamed into the upload directory.
func (c *Config) StagingDir() string {
	if c.TempDir != nil {
		return *c.TempDir
	}
	return os.TempDir()
}

// WatchdogDisabled reports whether the expiry tracker must never start:
// temporary storage is forced off for every request.
func (c *Config) WatchdogDisabled() bool {
	return c.TemporaryStorage.ForceDefaultEnabled && !c.TemporaryStorage.DefaultEnabled
}

// ExtensionAllowed checks ext (dot-prefixed, case preserved) against the
// blacklist. A nil blacklist allows everything.
func (c *Config) ExtensionAllowed(ext string) bool {
	for _, blocked := range c.ExtensionBlacklist {
		if ext == blocked {
			return false
		}
	}
	return true
}

// DatabasePath locates the SQLite file inside the backend directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Backend.Path, "nulldrop.sqlite")
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".nulldrop-probe-*")
	if err != nil {
		return err
	}
	probe.Close()
	return os.Remove(probe.Name())
}
