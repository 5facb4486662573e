// Package b3 fingerprints submitted audio with blake3.
package b3

import (
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

// CopyAndHash copies src into dst and hashes the bytes on the way through,
// so an upload is stored and fingerprinted in one pass.
func CopyAndHash(dst io.Writer, src io.Reader) (int64, string, error) {
	h := blake3.New(32, nil)
	n, err := io.Copy(io.MultiWriter(dst, h), src)
	if err != nil {
		return n, "", fmt.Errorf("copying and hashing: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}
