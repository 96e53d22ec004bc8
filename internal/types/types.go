package npatypes

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/ossyrian/npaparse/internal/npa"
	"github.com/ossyrian/npaparse/internal/titles"
)

// Listing describes a decoded archive
type Listing struct {
	Archive string       `json:"archive"`
	Title   string       `json:"title,omitempty"`
	Header  HeaderInfo   `json:"header"`
	Entries []*EntryInfo `json:"entries"`
}

// HeaderInfo is the JSON form of npa.Header
type HeaderInfo struct {
	Magic       string `json:"magic"`
	Key1        string `json:"key1"`
	Key2        string `json:"key2"`
	Compressed  bool   `json:"compressed"`
	Encrypted   bool   `json:"encrypted"`
	TotalCount  uint32 `json:"total_count"`
	FolderCount uint32 `json:"folder_count"`
	FileCount   uint32 `json:"file_count"`
	Start       uint32 `json:"start"`
}

// EntryInfo is one row of the entry table
type EntryInfo struct {
	Index          int       `json:"index"`
	Path           string    `json:"path"`
	Kind           EntryKind `json:"kind"`
	FileID         uint32    `json:"file_id"`
	Offset         int64     `json:"offset"`
	CompressedSize uint32    `json:"compressed_size"`
	OriginalSize   uint32    `json:"original_size"`
}

// EntryKind represents the type of an entry
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "File"
	case KindDirectory:
		return "Directory"
	default:
		return "Unknown"
	}
}

// MarshalText encodes the kind by name
func (k EntryKind) MarshalText() ([]byte, error) {
	switch k {
	case KindFile:
		return []byte("file"), nil
	case KindDirectory:
		return []byte("directory"), nil
	default:
		return nil, fmt.Errorf("unknown entry kind %d", int(k))
	}
}

// NewListing builds the listing of an archive. profile may be nil when the
// title was not determined; offsets are absolute positions in the archive.
func NewListing(archive string, h *npa.Header, entries []*npa.Entry, profile *titles.Profile) *Listing {
	l := &Listing{
		Archive: archive,
		Header: HeaderInfo{
			Magic:       fmt.Sprintf("%q", h.Magic[:]),
			Key1:        fmt.Sprintf("%#08x", h.Key1),
			Key2:        fmt.Sprintf("%#08x", h.Key2),
			Compressed:  h.Compressed,
			Encrypted:   h.Encrypted,
			TotalCount:  h.TotalCount,
			FolderCount: h.FolderCount,
			FileCount:   h.FileCount,
			Start:       h.Start,
		},
		Entries: lo.Map(entries, func(e *npa.Entry, _ int) *EntryInfo {
			return newEntryInfo(e, h)
		}),
	}
	if profile != nil {
		l.Title = profile.ID
	}
	return l
}

func newEntryInfo(e *npa.Entry, h *npa.Header) *EntryInfo {
	kind := KindFile
	if e.IsDirectory() {
		kind = KindDirectory
	}
	return &EntryInfo{
		Index:          e.Index,
		Path:           e.Path,
		Kind:           kind,
		FileID:         e.FileID,
		Offset:         e.DataOffset(h),
		CompressedSize: e.CompressedSize,
		OriginalSize:   e.OriginalSize,
	}
}

// Files returns the file rows of the listing.
func (l *Listing) Files() []*EntryInfo {
	return lo.Filter(l.Entries, func(e *EntryInfo, _ int) bool { return e.Kind == KindFile })
}

// TotalSize returns the summed original size of all files.
func (l *Listing) TotalSize() uint64 {
	return lo.SumBy(l.Files(), func(e *EntryInfo) uint64 { return uint64(e.OriginalSize) })
}
