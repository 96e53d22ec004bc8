package titles

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// keysFile is the on-disk layout of a keys file:
//
//	[tables]
//	chaos-head = "<512 hex digits>"
type keysFile struct {
	Tables map[string]string `toml:"tables"`
}

// LoadKeys reads substitution tables from a TOML keys file.
func LoadKeys(path string) (map[Title][256]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keys file: %w", err)
	}
	return ParseKeys(data)
}

// ParseKeys decodes the TOML keys document. Every table must be exactly 256
// bytes of hex; unknown title ids are rejected so typos do not go unnoticed.
func ParseKeys(data []byte) (map[Title][256]byte, error) {
	var kf keysFile
	if err := toml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse keys file: %w", err)
	}

	tables := make(map[Title][256]byte, len(kf.Tables))
	for id, value := range kf.Tables {
		t, err := ParseTitle(id)
		if err != nil {
			return nil, err
		}

		raw, err := hex.DecodeString(strings.Join(strings.Fields(value), ""))
		if err != nil {
			return nil, fmt.Errorf("invalid table for %s: %w", id, err)
		}
		if len(raw) != 256 {
			return nil, fmt.Errorf("invalid table for %s: got %d bytes, want 256", id, len(raw))
		}

		var table [256]byte
		copy(table[:], raw)
		tables[t] = table
	}

	return tables, nil
}

// DefaultKeysPaths lists the locations searched when no keys file is configured.
func DefaultKeysPaths() []string {
	paths := []string{"npa-keys.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "npaparse", "keys.toml"))
	}
	return paths
}

// LoadDefaultKeys loads the first keys file found in DefaultKeysPaths.
func LoadDefaultKeys() (map[Title][256]byte, string, error) {
	for _, p := range DefaultKeysPaths() {
		if _, err := os.Stat(p); err == nil {
			tables, err := LoadKeys(p)
			return tables, p, err
		}
	}
	return nil, "", fmt.Errorf("no keys file found in %s", strings.Join(DefaultKeysPaths(), ", "))
}
