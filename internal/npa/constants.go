package npa

const (
	// HeaderSize is the size in bytes of the fixed header.
	HeaderSize = 0x29

	// DecodeBlockSize is the number of content bytes covered by the cipher
	// before the name-length extension. Later bytes are stored in the clear.
	DecodeBlockSize = 0x1000

	// MaxNameLength bounds the name length field. Anything larger cannot be a
	// path and is treated as a corrupt table rather than allocated.
	MaxNameLength = 0x10000

	// nameKeyMultiplier is the per-position step of the name keystream.
	nameKeyMultiplier = 0xFC
)
