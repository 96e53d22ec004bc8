package npa

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// maxInflateHint caps the pre-allocation taken from an untrusted size field.
const maxInflateHint = 64 << 20

// Inflate decompresses a zlib stream. sizeHint pre-sizes the output buffer
// and is not enforced; comparing the result with the expected size is up to
// the caller.
func Inflate(data []byte, sizeHint uint32) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}
	defer zr.Close()

	out := bytes.NewBuffer(make([]byte, 0, min(int(sizeHint), maxInflateHint)))
	if _, err := io.Copy(out, zr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecompress, err)
	}

	return out.Bytes(), nil
}
