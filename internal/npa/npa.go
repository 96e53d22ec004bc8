// Package npa describes the NPA archive format and implements its ciphers.
package npa

import (
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrFormat reports a structurally inconsistent archive.
	ErrFormat = errors.New("malformed archive")
	// ErrDecompress reports an entry whose zlib stream could not be inflated.
	ErrDecompress = errors.New("failed to decompress entry")
)

// Header is the fixed-size header at the start of an NPA archive.
type Header struct {
	Magic       [7]byte // "NPA\x01\x00\x00\x00" in practice, never validated
	Key1        uint32
	Key2        uint32
	Compressed  bool
	Encrypted   bool
	TotalCount  uint32 // number of records in the entry table
	FolderCount uint32 // advisory
	FileCount   uint32 // advisory
	Start       uint32 // size of the entry table; data begins at HeaderSize+Start
}

// Entry is one record of the entry table.
type Entry struct {
	Index      int    // position in the table, also the name cipher's file index
	NameLength uint32 // length of RawName as stored
	RawName    []byte // encrypted name bytes, needed for the data key
	Path       string // decoded relative path using host separators

	Type           EntryType
	FileID         uint32
	Offset         uint32 // relative to the data region
	CompressedSize uint32
	OriginalSize   uint32
}

// EntryType is the type byte of an entry.
type EntryType byte

// EntryTypeDirectory is the only type value with a meaning; everything else
// is a file.
const EntryTypeDirectory EntryType = 1

func (t EntryType) String() string {
	if t == EntryTypeDirectory {
		return "directory"
	}
	return "file"
}

// IsDirectory reports whether the entry is a folder record.
func (e *Entry) IsDirectory() bool {
	return e.Type == EntryTypeDirectory
}

// Extension returns the lower-case file extension of the entry without the
// leading dot.
func (e *Entry) Extension() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(e.Path), "."))
}

// DataOffset returns the absolute stream offset of the entry's data.
func (e *Entry) DataOffset(h *Header) int64 {
	return int64(e.Offset) + int64(h.Start) + HeaderSize
}
