// Package romhash fingerprints ROM images.
//
// Hosts and guests must agree on the ROM before a session starts, so both
// sides hash the ROM contents with 64-bit MurmurHash3 and compare the
// fingerprints during the join handshake.
package romhash

import (
	"fmt"
	"io"
	"os"

	"github.com/spaolacci/murmur3"
)

// Sum fingerprints ROM contents already in memory.
func Sum(data []byte) uint64 {
	return murmur3.Sum64(data)
}

// SumReader fingerprints ROM contents streamed from r.
func SumReader(r io.Reader) (uint64, error) {
	h := murmur3.New64()
	if _, err := io.Copy(h, r); err != nil {
		return 0, fmt.Errorf("romhash: read: %w", err)
	}
	return h.Sum64(), nil
}

// SumFile fingerprints a ROM file on disk.
func SumFile(path string) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("romhash: open: %w", err)
	}
	defer f.Close()
	return SumReader(f)
}

// Format renders a fingerprint the way it appears in logs and file names.
func Format(hash uint64) string {
	return fmt.Sprintf("%016x", hash)
}
