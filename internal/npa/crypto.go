package npa

import (
	"fmt"

	"github.com/ossyrian/npaparse/internal/titles"
)

// subtractBytes subtracts v>>24, v>>16, v>>8 and v&0xFF from key.
// Only the low byte of the result is ever used, so the shifted values are
// not masked.
func subtractBytes(key, v uint32) uint32 {
	key -= v >> 24
	key -= v >> 16
	key -= v >> 8
	key -= v & 0xFF
	return key
}

// NameKey returns the keystream byte for position x of the name of the
// entry at table index i. The decrypted name byte is raw + key.
//
// Algorithm:
//  1. key = 0xFC * x
//  2. temp = key1 + key2 for the additive variant of encrypted archives,
//     key1 * key2 otherwise
//  3. subtract each byte of temp from key
//  4. subtract each byte of i from key
//
// All arithmetic wraps at 32 bits.
func NameKey(x, i uint32, h *Header, addVariant bool) byte {
	key := nameKeyMultiplier * x

	var temp uint32
	if addVariant && h.Encrypted {
		temp = h.Key1 + h.Key2
	} else {
		temp = h.Key1 * h.Key2
	}

	key = subtractBytes(key, temp)
	key = subtractBytes(key, i)

	return byte(key)
}

// DecryptName decrypts raw in place for the entry at table index i.
func DecryptName(raw []byte, i uint32, h *Header, addVariant bool) {
	for x := range raw {
		raw[x] += NameKey(uint32(x), i, h, addVariant)
	}
}

// DataKey returns the single-byte key used for the content of e.
//
// Algorithm:
//  1. key1 = seed - sum of the encrypted name bytes
//  2. key = key1 * name length
//  3. except for the void family: key = (key + key1*key2 of the header) * original size
func DataKey(e *Entry, h *Header, p *titles.Profile) byte {
	key1 := p.Seed
	for _, b := range e.RawName {
		key1 -= uint32(b)
	}

	key2 := h.Key1 * h.Key2
	key := key1 * e.NameLength

	if p.Family != titles.FamilyVoid {
		key += key2
		key *= e.OriginalSize
	}

	return byte(key)
}

// DecodeLength returns how many leading content bytes of e are enciphered.
func DecodeLength(e *Entry, p *titles.Profile) uint32 {
	if p.Family == titles.FamilyVoid {
		return DecodeBlockSize
	}
	return DecodeBlockSize + uint32(len(e.RawName))
}

// DecryptData decrypts the content of e in place. Only the first
// min(CompressedSize, DecodeLength) bytes are transformed; the rest of buf is
// left untouched. Unencrypted archives are returned as-is.
func DecryptData(buf []byte, e *Entry, h *Header, p *titles.Profile) error {
	if !h.Encrypted {
		return nil
	}
	if !p.HasTable() {
		return fmt.Errorf("%w: %s", titles.ErrMissingTable, p.ID)
	}

	n := min(uint64(e.CompressedSize), uint64(DecodeLength(e, p)), uint64(len(buf)))
	key := DataKey(e, h, p)
	table := p.Table

	for x := range int(n) {
		switch p.Family {
		case titles.FamilyVoid:
			buf[x] = table[buf[x]] - key
		case titles.FamilyTotono:
			r := ^table[table[table[buf[x]]]]
			buf[x] = r - key - byte(x)
		default:
			buf[x] = table[buf[x]] - key - byte(x)
		}
	}

	return nil
}
