package serialization

import (
	"crypto/sha256"
	"hash"
	"io"
)

// ComputeChecksum computes SHA-256 checksum of data.
func ComputeChecksum(data []byte) [ChecksumSize]byte {
	return sha256.Sum256(data)
}

// ComputeChecksumReader computes the SHA-256 checksum of everything read
// from r without holding it in memory.
func ComputeChecksumReader(r io.Reader) ([ChecksumSize]byte, error) {
	h := newChecksum()
	if _, err := io.Copy(h, r); err != nil {
		return [ChecksumSize]byte{}, err
	}
	return h.Sum(), nil
}

// ValidateChecksum compares computed checksum against stored checksum.
// Returns ErrChecksumMismatch if they don't match.
func ValidateChecksum(computed, stored [ChecksumSize]byte) error {
	if computed != stored {
		return ErrChecksumMismatch
	}
	return nil
}

type checksum struct{ h hash.Hash }

func newChecksum() *checksum {
	return &checksum{h: sha256.New()}
}

// Write never returns an error.
func (c *checksum) Write(p []byte) (int, error) {
	return c.h.Write(p)
}

func (c *checksum) Sum() [ChecksumSize]byte {
	var sum [ChecksumSize]byte
	copy(sum[:], c.h.Sum(nil))
	return sum
}
