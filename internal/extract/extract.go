// Package extract writes the contents of an NPA archive onto a filesystem.
package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/samber/lo"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"

	"github.com/ossyrian/npaparse/internal/npa"
	"github.com/ossyrian/npaparse/internal/parser"
	"github.com/ossyrian/npaparse/internal/titles"
)

// ErrNotFound is returned when a requested path is not in the archive.
var ErrNotFound = errors.New("entry not found in archive")

// Opener returns a fresh handle on the archive. Every extraction task reads
// through its own handle.
type Opener func() (io.ReadSeekCloser, error)

// FileOpener opens path on fs for every call.
func FileOpener(fs afero.Fs, path string) Opener {
	return func() (io.ReadSeekCloser, error) {
		return fs.Open(path)
	}
}

// Options controls an extraction run.
type Options struct {
	// OutputDir is the directory the archive tree is created under.
	OutputDir string
	// Workers is the number of entries read in parallel, at least 1.
	Workers int
	// DryRun decodes every entry without writing anything.
	DryRun bool
	// Paths restricts extraction to the given entry paths when non-empty.
	Paths []string
}

// Summary reports what an extraction did.
type Summary struct {
	Dirs   int
	Files  int
	Bytes  int64
	Failed int
}

// Extractor writes decoded entries onto an afero filesystem.
type Extractor struct {
	fs      afero.Fs
	open    Opener
	header  *npa.Header
	profile *titles.Profile
	logger  *slog.Logger
}

// New creates an extractor. header is shared read-only by every task.
func New(fs afero.Fs, open Opener, header *npa.Header, profile *titles.Profile, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Extractor{
		fs:      fs,
		open:    open,
		header:  header,
		profile: profile,
		logger:  logger,
	}
}

// Extract creates every directory entry and writes every file entry under
// opts.OutputDir. A failing entry does not stop the others; all failures are
// returned joined once the run has finished.
func (x *Extractor) Extract(ctx context.Context, entries []*npa.Entry, opts Options) (*Summary, error) {
	selected, err := selectEntries(entries, opts.Paths)
	if err != nil {
		return nil, err
	}

	dirs, files := lo.FilterReject(selected, func(e *npa.Entry, _ int) bool {
		return e.IsDirectory()
	})

	summary := &Summary{}

	if !opts.DryRun {
		if err := x.fs.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		for _, d := range dirs {
			if d.Path == "" {
				continue
			}
			if err := x.fs.MkdirAll(filepath.Join(opts.OutputDir, d.Path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %s: %w", d.Path, err)
			}
		}
	}
	summary.Dirs = len(dirs)

	var written, size, failed atomic.Int64

	p := pool.New().
		WithMaxGoroutines(max(opts.Workers, 1)).
		WithErrors().
		WithContext(ctx)

	for _, e := range files {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := x.extractFile(e, opts)
			if err != nil {
				failed.Add(1)
				x.logger.Error("failed to extract entry", "path", e.Path, "error", err)
				return fmt.Errorf("%s: %w", e.Path, err)
			}
			written.Add(1)
			size.Add(int64(n))
			return nil
		})
	}

	err = p.Wait()

	summary.Files = int(written.Load())
	summary.Bytes = size.Load()
	summary.Failed = int(failed.Load())

	x.logger.Info("extraction finished",
		"output", opts.OutputDir,
		"dirs", summary.Dirs,
		"files", summary.Files,
		"bytes", summary.Bytes,
		"failed", summary.Failed,
		"dry_run", opts.DryRun,
	)

	return summary, err
}

// extractFile decodes one entry through a handle of its own and writes it.
func (x *Extractor) extractFile(e *npa.Entry, opts Options) (int, error) {
	if e.Path == "" {
		return 0, fmt.Errorf("entry %d has an empty name", e.Index)
	}

	f, err := x.open()
	if err != nil {
		return 0, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	r := parser.WithHeader(f, x.header, x.logger)
	data, err := r.ReadEntryContent(e, x.profile)
	if err != nil {
		return 0, err
	}

	if opts.DryRun {
		x.logger.Debug("decoded entry", "path", e.Path, "size", len(data))
		return len(data), nil
	}

	out := filepath.Join(opts.OutputDir, e.Path)
	if err := x.fs.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := afero.WriteFile(x.fs, out, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", out, err)
	}

	x.logger.Debug("wrote entry", "path", out, "size", len(data))
	return len(data), nil
}

// selectEntries keeps the entries named in paths, or all of them.
func selectEntries(entries []*npa.Entry, paths []string) ([]*npa.Entry, error) {
	if len(paths) == 0 {
		return entries, nil
	}

	byPath := lo.KeyBy(entries, func(e *npa.Entry) string { return e.Path })

	selected := make([]*npa.Entry, 0, len(paths))
	for _, p := range lo.Uniq(paths) {
		e, ok := byPath[filepath.Clean(filepath.FromSlash(p))]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		selected = append(selected, e)
	}
	return selected, nil
}
