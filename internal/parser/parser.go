package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/npaparse/internal/logging"
	"github.com/ossyrian/npaparse/internal/media"
	"github.com/ossyrian/npaparse/internal/npa"
	"github.com/ossyrian/npaparse/internal/sjis"
	"github.com/ossyrian/npaparse/internal/titles"
)

// NpaReader reads information from NPA archives.
//
// A reader owns its stream: callers must not share one NpaReader between
// goroutines. Parallel readers each need their own handle on the archive.
type NpaReader struct {
	file   io.ReadSeeker
	logger *slog.Logger
	header *npa.Header
	length int64 // stream size, -1 until first needed
}

// NewNpaReader creates a reader over file. A nil logger discards all output.
func NewNpaReader(file io.ReadSeeker, logger *slog.Logger) *NpaReader {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NpaReader{file: file, logger: logger, length: -1}
}

// WithHeader returns a reader over file that reuses an already parsed
// header, for additional handles on the same archive.
func WithHeader(file io.ReadSeeker, header *npa.Header, logger *slog.Logger) *NpaReader {
	r := NewNpaReader(file, logger)
	r.header = header
	return r
}

// Header returns the header read by ReadHeader, or nil.
func (r *NpaReader) Header() *npa.Header {
	return r.header
}

// ReadHeader reads the fixed header from the current position, which must
// be the start of the archive. No field is validated.
func (r *NpaReader) ReadHeader() (*npa.Header, error) {
	h := &npa.Header{}

	if _, err := io.ReadFull(r.file, h.Magic[:]); err != nil {
		return nil, fmt.Errorf("failed to read magic: %w", err)
	}

	fields := []struct {
		name string
		dst  *uint32
	}{
		{"key1", &h.Key1},
		{"key2", &h.Key2},
	}
	for _, f := range fields {
		v, err := npa.ReadUint32(r.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.name, err)
		}
		*f.dst = v
	}

	var err error
	if h.Compressed, err = npa.ReadFlag(r.file); err != nil {
		return nil, fmt.Errorf("failed to read compressed flag: %w", err)
	}
	if h.Encrypted, err = npa.ReadFlag(r.file); err != nil {
		return nil, fmt.Errorf("failed to read encrypted flag: %w", err)
	}

	fields = []struct {
		name string
		dst  *uint32
	}{
		{"total count", &h.TotalCount},
		{"folder count", &h.FolderCount},
		{"file count", &h.FileCount},
	}
	for _, f := range fields {
		v, err := npa.ReadUint32(r.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.name, err)
		}
		*f.dst = v
	}

	var reserved [8]byte
	if _, err := io.ReadFull(r.file, reserved[:]); err != nil {
		return nil, fmt.Errorf("failed to read reserved bytes: %w", err)
	}

	if h.Start, err = npa.ReadUint32(r.file); err != nil {
		return nil, fmt.Errorf("failed to read data start: %w", err)
	}

	r.logger.Info("read header",
		"magic", fmt.Sprintf("%q", h.Magic[:]),
		"key1", fmt.Sprintf("%#08x", h.Key1),
		"key2", fmt.Sprintf("%#08x", h.Key2),
		"compressed", h.Compressed,
		"encrypted", h.Encrypted,
		"total_count", h.TotalCount,
		"folder_count", h.FolderCount,
		"file_count", h.FileCount,
		"start", h.Start,
	)

	if uint64(h.FolderCount)+uint64(h.FileCount) != uint64(h.TotalCount) {
		r.logger.Debug("folder and file counts do not add up to the total",
			"total_count", h.TotalCount,
			"folder_count", h.FolderCount,
			"file_count", h.FileCount,
		)
	}

	r.header = h
	return h, nil
}

// RewindEntries positions the stream at the start of the entry table so it
// can be decoded again.
func (r *NpaReader) RewindEntries() error {
	if _, err := r.file.Seek(npa.HeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to entry table: %w", err)
	}
	return nil
}

// ReadEntry reads the table record at index from the current position.
//
// [name_length(uint32)][name(encrypted)][type(byte)][file_id][offset][compressed_size][original_size]
func (r *NpaReader) ReadEntry(index int, addVariant bool) (*npa.Entry, error) {
	raw, err := npa.ReadName(r.file)
	if err != nil {
		return nil, err
	}

	name := bytes.Clone(raw)
	npa.DecryptName(name, uint32(index), r.header, addVariant)

	decoded := sjis.Decode(name)
	if decoded.HadErrors {
		r.logger.Warn("failed to cleanly decode entry name",
			"index", index,
			"name", decoded.Text,
		)
	}

	entry := &npa.Entry{
		Index:      index,
		NameLength: uint32(len(raw)),
		RawName:    raw,
		Path:       npa.SanitizePath(decoded.Text),
	}

	typ, err := npa.ReadUint8(r.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read type for %s: %w", entry.Path, err)
	}
	entry.Type = npa.EntryType(typ)

	fields := []struct {
		name string
		dst  *uint32
	}{
		{"file id", &entry.FileID},
		{"offset", &entry.Offset},
		{"compressed size", &entry.CompressedSize},
		{"original size", &entry.OriginalSize},
	}
	for _, f := range fields {
		v, err := npa.ReadUint32(r.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s for %s: %w", f.name, entry.Path, err)
		}
		*f.dst = v
	}

	return entry, nil
}

// ReadEntries decodes the whole entry table from the current position,
// which must be directly after the header. Exactly TotalCount records are
// read; addVariant selects the name key formula.
func (r *NpaReader) ReadEntries(addVariant bool) ([]*npa.Entry, error) {
	if r.header == nil {
		return nil, fmt.Errorf("header must be read before the entry table")
	}

	r.logger.Debug("reading entry table",
		"total_count", r.header.TotalCount,
		"add_variant", addVariant,
	)

	// the count is untrusted, let append grow past a modest preallocation
	entries := make([]*npa.Entry, 0, min(r.header.TotalCount, 4096))

	for i := 0; i < int(r.header.TotalCount); i++ {
		entry, err := r.ReadEntry(i, addVariant)
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %d: %w", i, err)
		}

		entries = append(entries, entry)

		r.logger.Log(context.Background(), logging.LevelTrace, "read entry",
			"index", i,
			"path", entry.Path,
			"type", entry.Type,
			"file_id", entry.FileID,
			"offset", entry.Offset,
			"compressed_size", entry.CompressedSize,
			"original_size", entry.OriginalSize,
		)
	}

	r.logger.Info("read entry table",
		"entry_count", len(entries),
	)

	return entries, nil
}

// size returns the length of the underlying stream.
func (r *NpaReader) size() (int64, error) {
	if r.length >= 0 {
		return r.length, nil
	}

	pos, err := r.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("failed to get current position: %w", err)
	}
	end, err := r.file.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to seek to end: %w", err)
	}
	if _, err := r.file.Seek(pos, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek back to %d: %w", pos, err)
	}

	r.length = end
	return end, nil
}

// ReadEntryData reads the stored bytes of entry, decrypts them for profile
// and inflates them when the archive is compressed.
//
// A decompressed size that differs from OriginalSize is logged and the
// inflated bytes are returned anyway.
func (r *NpaReader) ReadEntryData(entry *npa.Entry, profile *titles.Profile) ([]byte, error) {
	if r.header == nil {
		return nil, fmt.Errorf("header must be read before entry data")
	}

	offset := entry.DataOffset(r.header)
	end, err := r.size()
	if err != nil {
		return nil, err
	}
	if offset+int64(entry.CompressedSize) > end {
		return nil, fmt.Errorf("%w: data of %s (%d bytes at %d) runs past the end of the archive (%d bytes)",
			npa.ErrFormat, entry.Path, entry.CompressedSize, offset, end)
	}

	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to data of %s at %d: %w", entry.Path, offset, err)
	}

	buf := make([]byte, entry.CompressedSize)
	if _, err := io.ReadFull(r.file, buf); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes of %s: %w", entry.CompressedSize, entry.Path, err)
	}

	if err := npa.DecryptData(buf, entry, r.header, profile); err != nil {
		return nil, fmt.Errorf("failed to decrypt %s: %w", entry.Path, err)
	}

	if !r.header.Compressed {
		return buf, nil
	}

	r.logger.Debug("decompressing", "path", entry.Path)

	data, err := npa.Inflate(buf, entry.OriginalSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", entry.Path, err)
	}

	if len(data) != int(entry.OriginalSize) {
		r.logger.Warn("decompressed size does not match expected size",
			"path", entry.Path,
			"decompressed", len(data),
			"expected", entry.OriginalSize,
		)
	}

	return data, nil
}

// ReadEntryContent returns the entry's data ready to be written out: entries
// whose extension is not a known binary media type are treated as legacy
// Shift-JIS text and converted to UTF-8.
func (r *NpaReader) ReadEntryContent(entry *npa.Entry, profile *titles.Profile) ([]byte, error) {
	data, err := r.ReadEntryData(entry, profile)
	if err != nil {
		return nil, err
	}

	if media.IsKnown(entry.Extension()) {
		return data, nil
	}

	text := sjis.Decode(data)
	if text.HadErrors {
		r.logger.Warn("entry content is not clean Shift-JIS, invalid sequences were replaced",
			"path", entry.Path,
		)
	}
	return text.Bytes(), nil
}
