// Package npatest builds NPA archives in memory for tests.
package npatest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"

	"github.com/klauspost/compress/zlib"

	"github.com/ossyrian/npaparse/internal/npa"
	"github.com/ossyrian/npaparse/internal/titles"
)

// Magic is the magic written by Build.
var Magic = [7]byte{'N', 'P', 'A', 0x01, 0x00, 0x00, 0x00}

// File is one entry to be stored.
type File struct {
	Name string // backslash separated, stored byte for byte
	Dir  bool
	Data []byte

	FileID uint32
	// OriginalSize overrides the recorded original size when non-nil.
	OriginalSize *uint32
	// Type overrides the stored type byte when non-nil.
	Type *byte
}

// Archive describes the archive to build.
type Archive struct {
	Key1, Key2 uint32
	Encrypted  bool
	Compressed bool
	// Profile supplies the ciphers. It may be nil for unencrypted archives
	// using the multiplicative name key.
	Profile *titles.Profile
	Files   []File
}

// Build serializes a into the NPA layout.
func (a *Archive) Build() ([]byte, error) {
	h := &npa.Header{
		Key1:       a.Key1,
		Key2:       a.Key2,
		Encrypted:  a.Encrypted,
		Compressed: a.Compressed,
		TotalCount: uint32(len(a.Files)),
	}
	addVariant := a.Profile != nil && a.Profile.AddVariant()

	var inv [256]byte
	if a.Encrypted {
		if a.Profile == nil || !a.Profile.HasTable() {
			return nil, fmt.Errorf("encrypted archive needs a profile with a table")
		}
		var err error
		if inv, err = invert(a.Profile.Table); err != nil {
			return nil, err
		}
	}

	table := new(bytes.Buffer)
	data := new(bytes.Buffer)

	for i, f := range a.Files {
		if f.Dir {
			h.FolderCount++
		} else {
			h.FileCount++
		}

		raw := []byte(f.Name)
		for x := range raw {
			raw[x] -= npa.NameKey(uint32(x), uint32(i), h, addVariant)
		}

		stored := bytes.Clone(f.Data)
		if a.Compressed && !f.Dir {
			var err error
			if stored, err = deflate(f.Data); err != nil {
				return nil, err
			}
		}

		entry := &npa.Entry{
			Index:          i,
			NameLength:     uint32(len(raw)),
			RawName:        raw,
			Offset:         uint32(data.Len()),
			CompressedSize: uint32(len(stored)),
			OriginalSize:   uint32(len(f.Data)),
			FileID:         f.FileID,
		}
		if f.OriginalSize != nil {
			entry.OriginalSize = *f.OriginalSize
		}
		if a.Encrypted {
			encrypt(stored, entry, h, a.Profile, &inv)
		}
		data.Write(stored)

		typ := byte(0)
		if f.Dir {
			typ = byte(npa.EntryTypeDirectory)
		}
		if f.Type != nil {
			typ = *f.Type
		}

		binary.Write(table, binary.LittleEndian, entry.NameLength)
		table.Write(raw)
		table.WriteByte(typ)
		binary.Write(table, binary.LittleEndian, []uint32{
			entry.FileID, entry.Offset, entry.CompressedSize, entry.OriginalSize,
		})
	}
	h.Start = uint32(table.Len())

	out := new(bytes.Buffer)
	out.Write(Magic[:])
	binary.Write(out, binary.LittleEndian, []uint32{h.Key1, h.Key2})
	out.Write([]byte{flag(h.Compressed), flag(h.Encrypted)})
	binary.Write(out, binary.LittleEndian, []uint32{h.TotalCount, h.FolderCount, h.FileCount})
	out.Write(make([]byte, 8))
	binary.Write(out, binary.LittleEndian, h.Start)
	out.Write(table.Bytes())
	out.Write(data.Bytes())

	return out.Bytes(), nil
}

// MustBuild is Build that panics on error.
func (a *Archive) MustBuild() []byte {
	b, err := a.Build()
	if err != nil {
		panic(err)
	}
	return b
}

// encrypt is the inverse of npa.DecryptData.
func encrypt(buf []byte, e *npa.Entry, h *npa.Header, p *titles.Profile, inv *[256]byte) {
	n := min(len(buf), int(npa.DecodeLength(e, p)))
	key := npa.DataKey(e, h, p)

	for x := range n {
		switch p.Family {
		case titles.FamilyVoid:
			buf[x] = inv[buf[x]+key]
		case titles.FamilyTotono:
			buf[x] = inv[inv[inv[^(buf[x] + key + byte(x))]]]
		default:
			buf[x] = inv[buf[x]+key+byte(x)]
		}
	}
}

func invert(table *[256]byte) ([256]byte, error) {
	var inv [256]byte
	var seen [256]bool
	for i, v := range table {
		if seen[v] {
			return inv, fmt.Errorf("table is not a permutation: %#02x appears twice", v)
		}
		seen[v] = true
		inv[v] = byte(i)
	}
	return inv, nil
}

func deflate(data []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zlib.NewWriter(buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func flag(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// PermutationTable returns a deterministic pseudo-random byte permutation.
func PermutationTable(seed uint64) [256]byte {
	var t [256]byte
	for i, v := range rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15)).Perm(256) {
		t[i] = byte(v)
	}
	return t
}

// Registry returns a registry where every title has its own permutation table.
func Registry() *titles.Registry {
	tables := make(map[titles.Title][256]byte)
	for _, t := range titles.All() {
		tables[t] = PermutationTable(uint64(t) + 1)
	}
	return titles.NewRegistry(tables)
}

// PNG is a minimal 1x1 PNG image.
var PNG = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4, 0x89, 0x00, 0x00, 0x00,
	0x0A, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4E, 0x44, 0xAE, 0x42, 0x60, 0x82,
}
