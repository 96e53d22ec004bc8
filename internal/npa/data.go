package npa

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ReadUint32 reads a little-endian uint32 from r.
func ReadUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadUint8 reads a single byte from r.
func ReadUint8(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadFlag reads a one-byte boolean. Only the value 1 means true.
func ReadFlag(r io.Reader) (bool, error) {
	b, err := ReadUint8(r)
	if err != nil {
		return false, err
	}
	return b == 1, nil
}

// ReadName reads a length-prefixed name and returns its raw bytes.
//
// Layout: [length(uint32 LE)][length bytes]
func ReadName(r io.Reader) ([]byte, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read name length: %w", err)
	}
	if length > MaxNameLength {
		return nil, fmt.Errorf("%w: name length %d exceeds %d", ErrFormat, length, MaxNameLength)
	}

	name := make([]byte, length)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, fmt.Errorf("failed to read %d name bytes: %w", length, err)
	}
	return name, nil
}

// SanitizePath turns a backslash separated archive path into a relative
// host path. Empty, "." and ".." components are dropped and characters that
// would change the meaning of a component on the host are replaced, so the
// result can never escape the directory it is joined to.
func SanitizePath(name string) string {
	var parts []string
	for _, c := range strings.Split(name, `\`) {
		c = sanitizeComponent(c)
		if c == "" {
			continue
		}
		parts = append(parts, c)
	}
	if len(parts) == 0 {
		return ""
	}
	return filepath.Join(parts...)
}

var componentReplacer = strings.NewReplacer("/", "_", ":", "_", "\x00", "_")

func sanitizeComponent(c string) string {
	if c == "." || c == ".." {
		return ""
	}
	return componentReplacer.Replace(c)
}
