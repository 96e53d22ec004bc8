// Package sjis decodes the legacy Shift-JIS text found in NPA archives.
package sjis

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// DecodedText is the result of decoding a Shift-JIS byte sequence.
type DecodedText struct {
	Text string
	// HadErrors reports whether any byte sequence was invalid and had to be
	// replaced with U+FFFD.
	HadErrors bool
}

// Decode converts Shift-JIS (Windows-31J) bytes to UTF-8.
// Invalid sequences never fail the decode; they are replaced and reported
// through HadErrors.
func Decode(b []byte) DecodedText {
	out, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), b)
	if err != nil {
		// the decoder only fails on internal buffer errors, fall back to a
		// byte-wise lossy conversion
		return DecodedText{Text: strings.ToValidUTF8(string(b), string(utf8.RuneError)), HadErrors: true}
	}

	// Shift-JIS has no encoding for U+FFFD, so any occurrence was produced
	// by the decoder's replacement.
	text := string(out)
	return DecodedText{
		Text:      text,
		HadErrors: strings.ContainsRune(text, utf8.RuneError),
	}
}

// Bytes returns the UTF-8 encoding of the decoded text.
func (d DecodedText) Bytes() []byte {
	return []byte(d.Text)
}
