package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"nulldrop/internal/server/config"
	"nulldrop/internal/server/database"
	"nulldrop/internal/server/namegen"
	"nulldrop/internal/server/storage"
)

// Context carries one upload request through the stages. It is created at
// request start, mutated only by the owning request, and discarded with
// the response.
type Context struct {
	OriginalFilename string
	TempPath         string
	Extension        string
	GeneratedName    string

	// Client-negotiated options; nil means "use the configured default".
	Temporary *bool
	TTL       *int64
	Length    *int
	Append    *bool
}

// maxFieldBytes bounds how much of a non-file form field is read.
const maxFieldBytes = 4096

// stagedFile is one file part written to the staging directory.
type stagedFile struct {
	originalName string
	path         string
}

// Pipeline validates and stores one upload request through a fixed
// sequence of stages. Safe for concurrent use; all mutable state lives on
// the per-request Context.
type Pipeline struct {
	cfg   *config.Config
	store storage.Store
	gen   *namegen.Generator
	repo  *database.Repository
	now   func() time.Time
}

// New wires a Pipeline. repo may only be exercised when temporary storage
// is possible; the watchdog has opened the database by then.
func New(cfg *config.Config, store storage.Store, gen *namegen.Generator, repo *database.Repository) *Pipeline {
	return &Pipeline{
		cfg:   cfg,
		store: store,
		gen:   gen,
		repo:  repo,
		now:   time.Now,
	}
}

// Run executes the stages in order and returns the final result. Any
// rejection after extraction cleans up the staged temp file.
func (p *Pipeline) Run(req *http.Request) Result {
	if req.Method != http.MethodPost {
		return Reject(http.StatusNotFound, "")
	}

	files, form, err := p.extract(req)
	if err != nil {
		// A body that cannot be read as multipart delivered no usable
		// file; same answer as a POST without one.
		for _, f := range files {
			p.store.DeleteTemp(f.path)
		}
		return Reject(http.StatusNotFound, "")
	}

	uc := &Context{}

	if res := p.processFiles(uc, files); res.Final() {
		return res
	}

	res := p.runValidated(uc, form, req)
	if res.Final() && res.Status() != http.StatusOK {
		p.store.DeleteTemp(uc.TempPath)
	}
	return res
}

// runValidated covers every stage that owns a staged file; Run deletes
// the file whenever one of these rejects.
func (p *Pipeline) runValidated(uc *Context, form url.Values, req *http.Request) Result {
	if res := p.validateFields(uc, form); res.Final() {
		return res
	}
	if res := p.checkExtension(uc); res.Final() {
		return res
	}
	if res := p.generateName(uc); res.Final() {
		return res
	}
	return p.persist(uc, req)
}

// extract streams every multipart file part into the staging directory
// and collects the plain form fields.
func (p *Pipeline) extract(req *http.Request) ([]stagedFile, url.Values, error) {
	form := url.Values{}

	mr, err := req.MultipartReader()
	if err != nil {
		// Not a multipart request at all: treated the same as a POST
		// without files.
		return nil, form, nil
	}

	var files []stagedFile
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return files, form, fmt.Errorf("failed to read multipart body: %w", err)
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(io.LimitReader(part, maxFieldBytes))
			part.Close()
			if err != nil {
				return files, form, fmt.Errorf("failed to read form field: %w", err)
			}
			form.Add(part.FormName(), string(value))
			continue
		}

		path, err := p.store.SaveTemp(part)
		part.Close()
		if err != nil {
			return files, form, err
		}
		files = append(files, stagedFile{originalName: part.FileName(), path: path})
	}

	return files, form, nil
}

// processFiles enforces the single-file policy. Exactly one file is the
// expected case; extra files are rejected under strict mode and silently
// discarded otherwise. Either way no staged extras survive.
func (p *Pipeline) processFiles(uc *Context, files []stagedFile) Result {
	if len(files) == 0 {
		return Reject(http.StatusNotFound, "")
	}

	if len(files) > 1 {
		if p.cfg.Strict {
			for _, f := range files {
				p.store.DeleteTemp(f.path)
			}
			return Reject(http.StatusForbidden, "Multiple files are not supported.")
		}
		for _, f := range files[1:] {
			p.store.DeleteTemp(f.path)
		}
	}

	uc.OriginalFilename = filepath.Base(files[0].originalName)
	uc.TempPath = files[0].path
	return Continue()
}

// validateFields checks the optional form fields against the configured
// force flags and bounds. Accepted values land on the Context; they are
// applied later. Under strict mode a violation rejects the request,
// otherwise the field falls back to its default.
func (p *Pipeline) validateFields(uc *Context, form url.Values) Result {
	strict := p.cfg.Strict
	ts := p.cfg.TemporaryStorage
	rs := p.cfg.RandomString

	if form.Has("temporary") {
		switch {
		case ts.ForceDefaultEnabled:
			if strict {
				return Reject(http.StatusForbidden, `The server enforces a default value for "temporary".`)
			}
		default:
			v, err := parseBool(form.Get("temporary"))
			if err != nil {
				if strict {
					return Reject(http.StatusForbidden, `"temporary" must be "true" or "false".`)
				}
			} else {
				uc.Temporary = &v
			}
		}
	}

	if form.Has("TTL") {
		switch {
		// Force-disabling temporary storage forces the TTL too: no
		// upload can be temporary, so a client TTL can never apply.
		case ts.ForceDefaultTTL, ts.ForceDefaultEnabled && !ts.DefaultEnabled:
			if strict {
				return Reject(http.StatusForbidden, `The server enforces a default value for "TTL".`)
			}
		default:
			v, err := strconv.ParseInt(form.Get("TTL"), 10, 64)
			if err != nil || v < ts.MinTTL || v > ts.MaxTTL {
				if strict {
					return Reject(http.StatusForbidden,
						fmt.Sprintf(`"TTL" must be an integer between %d and %d.`, ts.MinTTL, ts.MaxTTL))
				}
			} else {
				uc.TTL = &v
			}
		}
	}

	if form.Has("length") {
		switch {
		case rs.ForceDefaultLength:
			if strict {
				return Reject(http.StatusForbidden, `The server enforces a default value for "length".`)
			}
		default:
			v, err := strconv.Atoi(form.Get("length"))
			if err != nil || v < rs.MinLength || v > rs.MaxLength {
				if strict {
					return Reject(http.StatusForbidden,
						fmt.Sprintf(`"length" must be an integer between %d and %d.`, rs.MinLength, rs.MaxLength))
				}
			} else {
				uc.Length = &v
			}
		}
	}

	if form.Has("append") {
		switch {
		case p.cfg.Filename.ForceDefaultAppendFilename:
			if strict {
				return Reject(http.StatusForbidden, `The server enforces a default value for "append".`)
			}
		default:
			v, err := parseBool(form.Get("append"))
			if err != nil {
				if strict {
					return Reject(http.StatusForbidden, `"append" must be "true" or "false".`)
				}
			} else {
				uc.Append = &v
			}
		}
	}

	// A TTL only makes sense for a temporary upload; combining it with an
	// explicit temporary=false is itself invalid.
	if uc.TTL != nil && uc.Temporary != nil && !*uc.Temporary {
		if strict {
			return Reject(http.StatusForbidden, `"TTL" cannot be combined with "temporary" set to "false".`)
		}
		uc.TTL = nil
	}

	return Continue()
}

// checkExtension derives the extension from the original filename and
// consults the blacklist. Comparison is dot-prefixed with case preserved.
func (p *Pipeline) checkExtension(uc *Context) Result {
	uc.Extension = filepath.Ext(uc.OriginalFilename)

	if !p.cfg.ExtensionAllowed(uc.Extension) {
		return Reject(http.StatusForbidden, "File type not allowed.")
	}
	return Continue()
}

// generateName resolves the effective length and append flag and asks the
// generator for an unused name.
func (p *Pipeline) generateName(uc *Context) Result {
	length := p.cfg.RandomString.DefaultLength
	if uc.Length != nil {
		length = *uc.Length
	}

	appendOriginal := p.cfg.Filename.DefaultAppendFilename
	if uc.Append != nil {
		appendOriginal = *uc.Append
	}

	baseName := strings.TrimSuffix(uc.OriginalFilename, uc.Extension)

	name, err := p.gen.Generate(length, baseName, uc.Extension, appendOriginal)
	if err != nil {
		if errors.Is(err, namegen.ErrNoNameAvailable) {
			return Reject(http.StatusConflict, "Could not generate a unique filename, try increasing the length.")
		}
		slog.Error("name generation failed", "error", err)
		return Reject(http.StatusInternalServerError, "Internal server error.")
	}

	uc.GeneratedName = name
	return Continue()
}

// persist moves the staged file into the upload directory, records the
// expiry when the upload is temporary, and builds the public URL. The
// tracking insert happens strictly after the rename so a file that never
// landed on disk is never tracked.
func (p *Pipeline) persist(uc *Context, req *http.Request) Result {
	if err := p.store.Promote(uc.TempPath, uc.GeneratedName); err != nil {
		slog.Error("failed to store upload", "name", uc.GeneratedName, "error", err)
		return Reject(http.StatusInternalServerError, "Internal server error.")
	}

	temporary := p.cfg.TemporaryStorage.DefaultEnabled
	if uc.Temporary != nil {
		temporary = *uc.Temporary
	}

	if temporary {
		ttl := p.cfg.TemporaryStorage.DefaultTTL
		if uc.TTL != nil {
			ttl = *uc.TTL
		}
		terminationTime := p.now().UnixMilli() + ttl*1000

		if err := p.repo.AddFile(req.Context(), terminationTime, uc.GeneratedName); err != nil {
			// The file is on disk; losing the record only means it
			// never expires. Log and serve it anyway.
			slog.Error("failed to track temporary file",
				"name", uc.GeneratedName,
				"error", err,
			)
		}
	}

	slog.Info("upload stored",
		"name", uc.GeneratedName,
		"original", uc.OriginalFilename,
		"temporary", temporary,
	)

	return Respond(http.StatusOK,
		fmt.Sprintf("%s/%s", strings.TrimSuffix(p.cfg.UploadURL, "/"), uc.GeneratedName))
}

func parseBool(value string) (bool, error) {
	switch value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("%q is not a boolean literal", value)
}
