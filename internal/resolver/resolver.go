// Package resolver identifies which title an NPA archive belongs to by
// trying every known profile until one decodes a sample entry cleanly.
package resolver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/samber/lo"

	"github.com/ossyrian/npaparse/internal/media"
	"github.com/ossyrian/npaparse/internal/npa"
	"github.com/ossyrian/npaparse/internal/parser"
	"github.com/ossyrian/npaparse/internal/titles"
)

var (
	// ErrNoTitle is returned when no profile decodes the sample entry.
	ErrNoTitle = errors.New("no title could decode the archive")
	// ErrNoFile is returned by a candidate when the table has no file entry.
	ErrNoFile = errors.New("archive has no file entry")

	errNoHeader = errors.New("header must be read before resolving")
)

// ResolutionError wraps ErrNoTitle with the details of the search.
type ResolutionError struct {
	Tried   int // candidates that were actually attempted
	Skipped int // candidates without a substitution table
	Last    error
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("%v (tried %d titles, %d without a table)", ErrNoTitle, e.Tried, e.Skipped)
	if e.Last != nil {
		msg += fmt.Sprintf(": last error: %v", e.Last)
	}
	return msg
}

func (e *ResolutionError) Unwrap() error {
	return ErrNoTitle
}

// Resolver runs the trial-and-validate title search.
type Resolver struct {
	registry *titles.Registry
	logger   *slog.Logger
}

// New creates a resolver over the profiles of registry.
func New(registry *titles.Registry, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{registry: registry, logger: logger}
}

// sampleFunc picks the entry a candidate is validated against.
type sampleFunc func(entries []*npa.Entry) (*npa.Entry, error)

// firstFile picks the first entry that is not a directory.
func firstFile(entries []*npa.Entry) (*npa.Entry, error) {
	entry, _, ok := lo.FindIndexOf(entries, func(e *npa.Entry) bool { return !e.IsDirectory() })
	if !ok {
		return nil, ErrNoFile
	}
	return entry, nil
}

// entryAt picks the entry at a fixed table index.
func entryAt(index int) sampleFunc {
	return func(entries []*npa.Entry) (*npa.Entry, error) {
		if index < 0 || index >= len(entries) {
			return nil, fmt.Errorf("entry %d does not exist (%d entries)", index, len(entries))
		}
		if entries[index].IsDirectory() {
			return nil, fmt.Errorf("entry %d is a directory", index)
		}
		return entries[index], nil
	}
}

// Resolve returns the first profile, in declaration order, that decodes the
// archive's first file entry into bytes matching its extension. r must have
// read the header already; the entry table is re-decoded for every
// candidate, so r's stream is left at an arbitrary position.
func (res *Resolver) Resolve(r *parser.NpaReader) (*titles.Profile, error) {
	return res.resolve(r, firstFile)
}

// ResolveEntry is Resolve validating the entry at a given table index
// instead of the first file.
func (res *Resolver) ResolveEntry(r *parser.NpaReader, index int) (*titles.Profile, error) {
	return res.resolve(r, entryAt(index))
}

func (res *Resolver) resolve(r *parser.NpaReader, sample sampleFunc) (*titles.Profile, error) {
	if r.Header() == nil {
		return nil, errNoHeader
	}
	rerr := &ResolutionError{}

	for _, p := range res.registry.Profiles() {
		ok, err := res.try(r, p, sample)
		if errors.Is(err, titles.ErrMissingTable) {
			rerr.Skipped++
			continue
		}
		rerr.Tried++
		if err != nil {
			rerr.Last = err
			res.logger.Debug("title rejected", "title", p.ID, "error", err)
			continue
		}
		if ok {
			res.logger.Info("detected title", "title", p.ID, "name", p.Name)
			return p, nil
		}
		res.logger.Debug("title rejected", "title", p.ID, "reason", "content does not validate")
	}

	return nil, rerr
}

// Matches returns every profile that validates, in declaration order.
func (res *Resolver) Matches(r *parser.NpaReader) ([]*titles.Profile, error) {
	if r.Header() == nil {
		return nil, errNoHeader
	}
	var matches []*titles.Profile
	for _, p := range res.registry.Profiles() {
		ok, err := res.try(r, p, firstFile)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, npa.ErrFormat) {
				// structural problems do not depend on the candidate
				return nil, err
			}
			continue
		}
		if ok {
			matches = append(matches, p)
		}
	}
	return matches, nil
}

// try decodes the table and the sample entry under p and validates it.
func (res *Resolver) try(r *parser.NpaReader, p *titles.Profile, sample sampleFunc) (bool, error) {
	if r.Header().Encrypted && !p.HasTable() {
		return false, fmt.Errorf("%w: %s", titles.ErrMissingTable, p.ID)
	}

	res.logger.Debug("trying title", "title", p.ID, "family", p.Family)

	if err := r.RewindEntries(); err != nil {
		return false, err
	}
	entries, err := r.ReadEntries(p.AddVariant())
	if err != nil {
		return false, err
	}

	entry, err := sample(entries)
	if err != nil {
		return false, err
	}

	data, err := r.ReadEntryData(entry, p)
	if err != nil {
		return false, err
	}

	return media.Validate(data, entry.Extension()), nil
}
