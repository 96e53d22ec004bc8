// Package media decides whether decoded entry bytes look like what their
// file extension promises.
package media

import (
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// families maps a file extension to the MIME types its content may be
// detected as. Container formats list every flavour mimetype reports.
var families = map[string][]string{
	"png":  {"image/png"},
	"jpg":  {"image/jpeg"},
	"jpeg": {"image/jpeg"},
	"gif":  {"image/gif"},
	"bmp":  {"image/bmp"},
	"webp": {"image/webp"},
	"wav":  {"audio/wav"},
	"ogg":  {"application/ogg", "audio/ogg", "video/ogg"},
	"flac": {"audio/flac"},
	"mp3":  {"audio/mpeg"},
	"m4a":  {"audio/x-m4a", "video/mp4"},
	"mp4":  {"video/mp4"},
	"webm": {"video/webm"},
	"mkv":  {"video/x-matroska"},
	"mov":  {"video/quicktime"},
	"avi":  {"video/x-msvideo"},
	"wmv":  {"video/x-ms-asf"},
	"flv":  {"video/x-flv"},
}

// IsKnown reports whether ext (with or without the leading dot) names a
// binary media type whose signature can be checked.
func IsKnown(ext string) bool {
	_, ok := families[normalize(ext)]
	return ok
}

// MatchesSignature reports whether data starts with a signature belonging
// to the family of ext. It is false for extensions that are not known.
func MatchesSignature(data []byte, ext string) bool {
	accepted, ok := families[normalize(ext)]
	if !ok {
		return false
	}

	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		for _, want := range accepted {
			if m.Is(want) {
				return true
			}
		}
	}
	return false
}

// Validate is the acceptance test used for decoded entries: known media
// extensions must carry a matching signature, everything else must be valid
// UTF-8.
func Validate(data []byte, ext string) bool {
	if IsKnown(ext) {
		return MatchesSignature(data, ext)
	}
	return utf8.Valid(data)
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
