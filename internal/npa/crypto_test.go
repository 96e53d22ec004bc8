package npa_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ossyrian/npaparse/internal/npa"
	"github.com/ossyrian/npaparse/internal/titles"
)

func identityTable() [256]byte {
	var t [256]byte
	for i := range t {
		t[i] = byte(i)
	}
	return t
}

func profile(title titles.Title) *titles.Profile {
	reg := titles.NewRegistry(map[titles.Title][256]byte{title: identityTable()})
	return reg.Profile(title)
}

func TestNameKey(t *testing.T) {
	tests := []struct {
		name       string
		header     npa.Header
		x, i       uint32
		addVariant bool
		want       byte
	}{
		{
			name:   "first byte of first entry",
			header: npa.Header{Key1: 1, Key2: 2, Encrypted: true},
			want:   0xFE,
		},
		{
			name:       "additive variant",
			header:     npa.Header{Key1: 1, Key2: 2, Encrypted: true},
			addVariant: true,
			want:       0xFD,
		},
		{
			name:       "additive variant ignored when not encrypted",
			header:     npa.Header{Key1: 1, Key2: 2},
			addVariant: true,
			want:       0xFE,
		},
		{
			name:   "position and index",
			header: npa.Header{Key1: 1, Key2: 2, Encrypted: true},
			x:      1,
			i:      1,
			want:   0xF9,
		},
		{
			name:   "every byte of temp and index is subtracted",
			header: npa.Header{Key1: 0x01020304, Key2: 1},
			x:      2,
			i:      0x100,
			want:   0xED,
		},
		{
			name:   "wrapping product",
			header: npa.Header{Key1: 0xFFFFFFFF, Key2: 0xFFFFFFFF},
			// temp = 1
			x:    0,
			i:    0,
			want: 0xFF,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := npa.NameKey(tt.x, tt.i, &tt.header, tt.addVariant)
			if got != tt.want {
				t.Errorf("NameKey(%d, %d) = %#02x, want %#02x", tt.x, tt.i, got, tt.want)
			}
			if again := npa.NameKey(tt.x, tt.i, &tt.header, tt.addVariant); again != got {
				t.Errorf("NameKey is not deterministic: %#02x then %#02x", got, again)
			}
		})
	}
}

func TestDecryptName(t *testing.T) {
	h := &npa.Header{Key1: 0x1234, Key2: 0x5678, Encrypted: true}
	plain := []byte(`cg\bg01.png`)

	raw := make([]byte, len(plain))
	for x := range plain {
		raw[x] = plain[x] - npa.NameKey(uint32(x), 7, h, false)
	}

	npa.DecryptName(raw, 7, h, false)
	if !bytes.Equal(raw, plain) {
		t.Errorf("DecryptName() = %q, want %q", raw, plain)
	}
}

func TestDataKey(t *testing.T) {
	entry := &npa.Entry{RawName: []byte{0x01, 0x02}, NameLength: 2, OriginalSize: 1}
	h := &npa.Header{Key1: 3, Key2: 5}

	tests := []struct {
		name         string
		title        titles.Title
		originalSize uint32
		want         byte
	}{
		{name: "default family", title: titles.ChaosHead, originalSize: 1, want: 0x4B},
		{name: "default family scales by original size", title: titles.ChaosHead, originalSize: 2, want: 0x96},
		{name: "void family ignores key2 and size", title: titles.Lamento, originalSize: 2, want: 0x3C},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := *entry
			e.OriginalSize = tt.originalSize
			p := profile(tt.title)

			got := npa.DataKey(&e, h, p)
			if got != tt.want {
				t.Errorf("DataKey() = %#02x, want %#02x", got, tt.want)
			}
			if again := npa.DataKey(&e, h, p); again != got {
				t.Errorf("DataKey is not deterministic: %#02x then %#02x", got, again)
			}
		})
	}
}

func TestDecryptDataClamp(t *testing.T) {
	h := &npa.Header{Key1: 11, Key2: 13, Encrypted: true}
	name := []byte{0x10, 0x20, 0x30}

	tests := []struct {
		name     string
		title    titles.Title
		boundary int
	}{
		{name: "default family extends by name length", title: titles.Muramasa, boundary: 0x1000 + len(name)},
		{name: "totono extends by name length", title: titles.Totono, boundary: 0x1000 + len(name)},
		{name: "void family stops at the block size", title: titles.Lamento, boundary: 0x1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := make([]byte, 0x1000+64)
			for i := range src {
				src[i] = byte(i * 7)
			}
			buf := bytes.Clone(src)

			e := &npa.Entry{
				RawName:        name,
				NameLength:     uint32(len(name)),
				CompressedSize: uint32(len(src)),
				OriginalSize:   uint32(len(src)),
			}
			p := profile(tt.title)

			if err := npa.DecryptData(buf, e, h, p); err != nil {
				t.Fatalf("DecryptData() failed: %v", err)
			}

			if !bytes.Equal(buf[tt.boundary:], src[tt.boundary:]) {
				t.Errorf("bytes past %#x were modified", tt.boundary)
			}

			key := npa.DataKey(e, h, p)
			for x := 0; x < tt.boundary; x++ {
				var want byte
				switch p.Family {
				case titles.FamilyVoid:
					want = src[x] - key
				case titles.FamilyTotono:
					want = ^src[x] - key - byte(x)
				default:
					want = src[x] - key - byte(x)
				}
				if buf[x] != want {
					t.Fatalf("buf[%#x] = %#02x, want %#02x", x, buf[x], want)
				}
			}
		})
	}
}

func TestDecryptDataRespectsCompressedSize(t *testing.T) {
	h := &npa.Header{Encrypted: true}
	e := &npa.Entry{RawName: []byte{1}, NameLength: 1, CompressedSize: 4, OriginalSize: 4}
	p := profile(titles.ChaosHead)

	buf := []byte{9, 9, 9, 9, 9, 9}
	if err := npa.DecryptData(buf, e, h, p); err != nil {
		t.Fatalf("DecryptData() failed: %v", err)
	}
	if buf[4] != 9 || buf[5] != 9 {
		t.Errorf("bytes past compressed size were modified: %v", buf)
	}
	if buf[0] == 9 && buf[1] == 9 && buf[2] == 9 && buf[3] == 9 {
		t.Errorf("no byte within compressed size was modified: %v", buf)
	}
}

func TestDecryptDataVoidZeroLength(t *testing.T) {
	p := profile(titles.LamentoTrial)
	for _, key := range []uint32{0, 1, 0xDEADBEEF, 0xFFFFFFFF} {
		h := &npa.Header{Key1: key, Key2: key ^ 0x5A5A5A5A, Encrypted: true}
		e := &npa.Entry{RawName: []byte("a"), NameLength: 1}

		buf := []byte{}
		if err := npa.DecryptData(buf, e, h, p); err != nil {
			t.Fatalf("DecryptData() failed: %v", err)
		}
		if len(buf) != 0 {
			t.Errorf("DecryptData() produced %d bytes for an empty range", len(buf))
		}
	}
}

func TestDecryptDataPlainArchive(t *testing.T) {
	reg := titles.NewRegistry(nil)
	e := &npa.Entry{CompressedSize: 3}
	buf := []byte{1, 2, 3}

	// no table is needed when the archive is not encrypted
	if err := npa.DecryptData(buf, e, &npa.Header{}, reg.Profile(titles.ChaosHead)); err != nil {
		t.Fatalf("DecryptData() failed: %v", err)
	}
	if !bytes.Equal(buf, []byte{1, 2, 3}) {
		t.Errorf("DecryptData() modified plain data: %v", buf)
	}
}

func TestDecryptDataMissingTable(t *testing.T) {
	reg := titles.NewRegistry(nil)
	e := &npa.Entry{CompressedSize: 1}

	err := npa.DecryptData([]byte{0}, e, &npa.Header{Encrypted: true}, reg.Profile(titles.Sumaga))
	if !errors.Is(err, titles.ErrMissingTable) {
		t.Errorf("DecryptData() error = %v, want ErrMissingTable", err)
	}
}
