package parser_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ossyrian/npaparse/internal/npa"
	"github.com/ossyrian/npaparse/internal/npa/npatest"
	"github.com/ossyrian/npaparse/internal/parser"
	"github.com/ossyrian/npaparse/internal/titles"
)

// buildHeader creates a raw header byte sequence for testing
func buildHeader(key1, key2 uint32, compressed, encrypted byte, total, folders, files, start uint32) []byte {
	buf := new(bytes.Buffer)
	buf.Write(npatest.Magic[:])
	binary.Write(buf, binary.LittleEndian, key1)
	binary.Write(buf, binary.LittleEndian, key2)
	buf.Write([]byte{compressed, encrypted})
	binary.Write(buf, binary.LittleEndian, total)
	binary.Write(buf, binary.LittleEndian, folders)
	binary.Write(buf, binary.LittleEndian, files)
	buf.Write(make([]byte, 8))
	binary.Write(buf, binary.LittleEndian, start)
	return buf.Bytes()
}

func TestNpaReader_ReadHeader(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    *npa.Header
		wantErr bool
		errMsg  string
	}{
		{
			name:  "valid header",
			input: buildHeader(0x11223344, 0x55667788, 1, 1, 3, 1, 2, 0x80),
			want: &npa.Header{
				Magic:       npatest.Magic,
				Key1:        0x11223344,
				Key2:        0x55667788,
				Compressed:  true,
				Encrypted:   true,
				TotalCount:  3,
				FolderCount: 1,
				FileCount:   2,
				Start:       0x80,
			},
		},
		{
			name:  "flags other than 1 are false",
			input: buildHeader(1, 2, 2, 0xFF, 0, 0, 0, 0),
			want: &npa.Header{
				Magic: npatest.Magic,
				Key1:  1,
				Key2:  2,
			},
		},
		{
			name: "magic is not validated",
			input: func() []byte {
				b := buildHeader(0, 0, 0, 0, 7, 100, 100, 0)
				copy(b, "GARBAGE")
				return b
			}(),
			want: &npa.Header{
				Magic:       [7]byte{'G', 'A', 'R', 'B', 'A', 'G', 'E'},
				TotalCount:  7,
				FolderCount: 100,
				FileCount:   100,
			},
		},
		{
			name:    "empty input",
			input:   []byte{},
			wantErr: true,
			errMsg:  "failed to read magic",
		},
		{
			name:    "EOF when reading key1",
			input:   buildHeader(0, 0, 0, 0, 0, 0, 0, 0)[:9],
			wantErr: true,
			errMsg:  "failed to read key1",
		},
		{
			name:    "EOF when reading encrypted flag",
			input:   buildHeader(0, 0, 0, 0, 0, 0, 0, 0)[:16],
			wantErr: true,
			errMsg:  "failed to read encrypted flag",
		},
		{
			name:    "EOF when reading file count",
			input:   buildHeader(0, 0, 0, 0, 0, 0, 0, 0)[:27],
			wantErr: true,
			errMsg:  "failed to read file count",
		},
		{
			name:    "EOF in reserved bytes",
			input:   buildHeader(0, 0, 0, 0, 0, 0, 0, 0)[:30],
			wantErr: true,
			errMsg:  "failed to read reserved bytes",
		},
		{
			name:    "EOF when reading data start",
			input:   buildHeader(0, 0, 0, 0, 0, 0, 0, 0)[:npa.HeaderSize-1],
			wantErr: true,
			errMsg:  "failed to read data start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := parser.NewNpaReader(bytes.NewReader(tt.input), nil)

			got, err := r.ReadHeader()

			if tt.wantErr {
				if err == nil {
					t.Fatal("ReadHeader() succeeded unexpectedly, wanted error")
				}
				if tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("ReadHeader() error = %v, should contain %q", err, tt.errMsg)
				}
				if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
					t.Errorf("ReadHeader() error = %v, should wrap an EOF", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ReadHeader() failed: %v", err)
			}

			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ReadHeader() = %+v, want %+v", got, tt.want)
			}
			if r.Header() != got {
				t.Error("Header() does not return the parsed header")
			}
		})
	}
}

func TestHeaderSize(t *testing.T) {
	if got := len(buildHeader(0, 0, 0, 0, 0, 0, 0, 0)); got != npa.HeaderSize {
		t.Fatalf("header is %d bytes, HeaderSize is %d", got, npa.HeaderSize)
	}
}

func sampleArchive(p *titles.Profile, compressed bool) *npatest.Archive {
	return &npatest.Archive{
		Key1:       0xCAFEBABE,
		Key2:       0x0BADF00D,
		Encrypted:  true,
		Compressed: compressed,
		Profile:    p,
		Files: []npatest.File{
			{Name: `cg`, Dir: true},
			{Name: `cg\bg01.png`, Data: npatest.PNG, FileID: 1},
			{Name: `nss\boot.nss`, Data: []byte("function main() {}\n"), FileID: 2},
		},
	}
}

func TestNpaReader_ReadEntries(t *testing.T) {
	reg := npatest.Registry()

	for _, title := range []titles.Title{titles.ChaosHead, titles.Lamento, titles.Totono} {
		t.Run(title.ID(), func(t *testing.T) {
			p := reg.Profile(title)
			data := sampleArchive(p, false).MustBuild()
			rs := bytes.NewReader(data)
			r := parser.NewNpaReader(rs, nil)

			h, err := r.ReadHeader()
			if err != nil {
				t.Fatalf("ReadHeader() failed: %v", err)
			}
			entries, err := r.ReadEntries(p.AddVariant())
			if err != nil {
				t.Fatalf("ReadEntries() failed: %v", err)
			}

			if len(entries) != int(h.TotalCount) {
				t.Fatalf("got %d entries, want %d", len(entries), h.TotalCount)
			}

			// the table is consumed exactly, leaving the stream at the data region
			pos, _ := rs.Seek(0, io.SeekCurrent)
			if pos != npa.HeaderSize+int64(h.Start) {
				t.Errorf("stream at %d after table, want %d", pos, npa.HeaderSize+int64(h.Start))
			}

			wantPaths := []string{"cg", filepath.Join("cg", "bg01.png"), filepath.Join("nss", "boot.nss")}
			for i, e := range entries {
				if e.Index != i {
					t.Errorf("entry %d has index %d", i, e.Index)
				}
				if e.Path != wantPaths[i] {
					t.Errorf("entry %d path = %q, want %q", i, e.Path, wantPaths[i])
				}
				if int(e.NameLength) != len(e.RawName) {
					t.Errorf("entry %d name length %d, raw name %d bytes", i, e.NameLength, len(e.RawName))
				}
			}
			if !entries[0].IsDirectory() || entries[1].IsDirectory() {
				t.Error("entry types decoded incorrectly")
			}
			if entries[1].FileID != 1 || entries[2].FileID != 2 {
				t.Errorf("file ids = %d, %d", entries[1].FileID, entries[2].FileID)
			}
			if entries[2].OriginalSize != uint32(len("function main() {}\n")) {
				t.Errorf("original size = %d", entries[2].OriginalSize)
			}
		})
	}
}

func TestNpaReader_ReadEntriesWrongVariant(t *testing.T) {
	reg := npatest.Registry()
	p := reg.Profile(titles.Lamento)
	data := sampleArchive(p, false).MustBuild()

	r := parser.NewNpaReader(bytes.NewReader(data), nil)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	entries, err := r.ReadEntries(false)
	if err != nil {
		t.Fatalf("ReadEntries() failed: %v", err)
	}
	// names come out scrambled but the record structure is unaffected
	if entries[1].Path == filepath.Join("cg", "bg01.png") {
		t.Error("multiplicative key decoded an additive-key name")
	}
	if entries[1].FileID != 1 {
		t.Errorf("file id = %d, want 1", entries[1].FileID)
	}
}

func TestNpaReader_ReadEntriesTruncated(t *testing.T) {
	reg := npatest.Registry()
	data := sampleArchive(reg.Profile(titles.ChaosHead), false).MustBuild()

	r := parser.NewNpaReader(bytes.NewReader(data), nil)
	h, err := r.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}

	// cut the table in the middle of the last record
	cut := npa.HeaderSize + int(h.Start) - 3
	r = parser.NewNpaReader(bytes.NewReader(data[:cut]), nil)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	_, err = r.ReadEntries(false)
	if err == nil {
		t.Fatal("ReadEntries() succeeded on a truncated table")
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadEntries() error = %v, want ErrUnexpectedEOF", err)
	}
	if !strings.Contains(err.Error(), "entry 2") {
		t.Errorf("ReadEntries() error = %v, should name entry 2", err)
	}
}

func TestNpaReader_ReadEntriesAbsurdNameLength(t *testing.T) {
	input := buildHeader(0, 0, 0, 0, 1, 0, 1, 0)
	input = binary.LittleEndian.AppendUint32(input, 0x7FFFFFFF)

	r := parser.NewNpaReader(bytes.NewReader(input), nil)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadEntries(false); !errors.Is(err, npa.ErrFormat) {
		t.Errorf("ReadEntries() error = %v, want ErrFormat", err)
	}
}

func TestNpaReader_ReadEntriesWithoutHeader(t *testing.T) {
	r := parser.NewNpaReader(bytes.NewReader(nil), nil)
	if _, err := r.ReadEntries(false); err == nil {
		t.Error("ReadEntries() succeeded without a header")
	}
}

func TestNpaReader_ReadEntryData(t *testing.T) {
	reg := npatest.Registry()

	tests := []struct {
		name       string
		title      titles.Title
		compressed bool
		encrypted  bool
	}{
		{name: "plain", title: titles.ChaosHead},
		{name: "encrypted", title: titles.Muramasa, encrypted: true},
		{name: "encrypted and compressed", title: titles.Sonicomi, encrypted: true, compressed: true},
		{name: "void family", title: titles.LamentoTrial, encrypted: true, compressed: true},
		{name: "totono", title: titles.Totono, encrypted: true, compressed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := reg.Profile(tt.title)
			a := sampleArchive(p, tt.compressed)
			a.Encrypted = tt.encrypted
			big := bytes.Repeat([]byte("0123456789abcdef"), 0x180) // longer than the cipher block
			a.Files = append(a.Files, npatest.File{Name: "big.txt", Data: big})

			r := parser.NewNpaReader(bytes.NewReader(a.MustBuild()), nil)
			if _, err := r.ReadHeader(); err != nil {
				t.Fatal(err)
			}
			entries, err := r.ReadEntries(p.AddVariant())
			if err != nil {
				t.Fatal(err)
			}

			want := [][]byte{nil, npatest.PNG, []byte("function main() {}\n"), big}
			for i, e := range entries {
				if e.IsDirectory() {
					continue
				}
				got, err := r.ReadEntryData(e, p)
				if err != nil {
					t.Fatalf("ReadEntryData(%s) failed: %v", e.Path, err)
				}
				if !bytes.Equal(got, want[i]) {
					t.Errorf("ReadEntryData(%s) = %d bytes, want %d", e.Path, len(got), len(want[i]))
				}
			}
		})
	}
}

func TestNpaReader_ReadEntryDataSizeMismatch(t *testing.T) {
	reg := npatest.Registry()
	p := reg.Profile(titles.Django)
	wrong := uint32(5)
	a := &npatest.Archive{
		Encrypted:  true,
		Compressed: true,
		Profile:    p,
		Files:      []npatest.File{{Name: "a.txt", Data: []byte("hello world"), OriginalSize: &wrong}},
	}

	logs := new(bytes.Buffer)
	logger := slog.New(slog.NewTextHandler(logs, nil))

	r := parser.NewNpaReader(bytes.NewReader(a.MustBuild()), logger)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	entries, err := r.ReadEntries(false)
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.ReadEntryData(entries[0], p)
	if err != nil {
		t.Fatalf("ReadEntryData() failed on a size mismatch: %v", err)
	}
	if string(got) != "hello world" {
		t.Errorf("ReadEntryData() = %q, want the inflated bytes", got)
	}
	if !strings.Contains(logs.String(), "decompressed size does not match") {
		t.Errorf("size mismatch was not logged: %s", logs.String())
	}
}

func TestNpaReader_ReadEntryDataErrors(t *testing.T) {
	reg := npatest.Registry()
	p := reg.Profile(titles.Sumaga)
	data := sampleArchive(p, true).MustBuild()

	open := func(t *testing.T, b []byte) (*parser.NpaReader, []*npa.Entry) {
		t.Helper()
		r := parser.NewNpaReader(bytes.NewReader(b), nil)
		if _, err := r.ReadHeader(); err != nil {
			t.Fatal(err)
		}
		entries, err := r.ReadEntries(false)
		if err != nil {
			t.Fatal(err)
		}
		return r, entries
	}

	t.Run("data past end of archive", func(t *testing.T) {
		r, entries := open(t, data[:len(data)-4])
		_, err := r.ReadEntryData(entries[2], p)
		if !errors.Is(err, npa.ErrFormat) {
			t.Errorf("ReadEntryData() error = %v, want ErrFormat", err)
		}
	})

	t.Run("wrong title fails to inflate", func(t *testing.T) {
		r, entries := open(t, data)
		_, err := r.ReadEntryData(entries[1], reg.Profile(titles.Demonbane))
		if !errors.Is(err, npa.ErrDecompress) {
			t.Errorf("ReadEntryData() error = %v, want ErrDecompress", err)
		}
	})

	t.Run("missing table", func(t *testing.T) {
		r, entries := open(t, data)
		bare := titles.NewRegistry(nil).Profile(titles.Sumaga)
		_, err := r.ReadEntryData(entries[1], bare)
		if !errors.Is(err, titles.ErrMissingTable) {
			t.Errorf("ReadEntryData() error = %v, want ErrMissingTable", err)
		}
	})
}

func TestNpaReader_ReadEntryContent(t *testing.T) {
	reg := npatest.Registry()
	p := reg.Profile(titles.ChaosHead)
	a := &npatest.Archive{
		Encrypted: true,
		Profile:   p,
		Files: []npatest.File{
			{Name: "bg.png", Data: npatest.PNG},
			// "テスト" in Shift-JIS
			{Name: "script.nss", Data: []byte{0x83, 0x65, 0x83, 0x58, 0x83, 0x67}},
		},
	}

	r := parser.NewNpaReader(bytes.NewReader(a.MustBuild()), nil)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}
	entries, err := r.ReadEntries(false)
	if err != nil {
		t.Fatal(err)
	}

	png, err := r.ReadEntryContent(entries[0], p)
	if err != nil || !bytes.Equal(png, npatest.PNG) {
		t.Errorf("ReadEntryContent(png) = %d bytes, %v; media must pass through", len(png), err)
	}

	text, err := r.ReadEntryContent(entries[1], p)
	if err != nil {
		t.Fatal(err)
	}
	if string(text) != "テスト" {
		t.Errorf("ReadEntryContent(nss) = %q, want %q", text, "テスト")
	}
}

func TestNpaReader_RewindEntries(t *testing.T) {
	reg := npatest.Registry()
	p := reg.Profile(titles.Kikokugai)
	r := parser.NewNpaReader(bytes.NewReader(sampleArchive(p, true).MustBuild()), nil)
	if _, err := r.ReadHeader(); err != nil {
		t.Fatal(err)
	}

	first, err := r.ReadEntries(false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadEntryData(first[1], p); err != nil {
		t.Fatal(err)
	}

	if err := r.RewindEntries(); err != nil {
		t.Fatalf("RewindEntries() failed: %v", err)
	}
	second, err := r.ReadEntries(false)
	if err != nil {
		t.Fatalf("ReadEntries() after rewind failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("entries differ after rewind")
	}
}

func TestWithHeader(t *testing.T) {
	reg := npatest.Registry()
	p := reg.Profile(titles.SweetPool)
	data := sampleArchive(p, true).MustBuild()

	r := parser.NewNpaReader(bytes.NewReader(data), nil)
	h, err := r.ReadHeader()
	if err != nil {
		t.Fatal(err)
	}
	entries, err := r.ReadEntries(false)
	if err != nil {
		t.Fatal(err)
	}

	other := parser.WithHeader(bytes.NewReader(data), h, nil)
	got, err := other.ReadEntryData(entries[1], p)
	if err != nil {
		t.Fatalf("ReadEntryData() on a second handle failed: %v", err)
	}
	if !bytes.Equal(got, npatest.PNG) {
		t.Error("second handle returned different data")
	}
}
