package mediaingest

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// digestPrefix names the algorithm in stored digest strings, e.g.
// "sha256:9f86d08...". Keeping the prefix in the value lets the algorithm
// rotate without a schema change.
const digestPrefix = "sha256"

// DigestReader computes the content digest of a byte stream. The stream is
// hashed incrementally; the whole input is never held in memory.
func DigestReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}
	return fmt.Sprintf("%s:%x", digestPrefix, h.Sum(nil)), nil
}

// DigestFile computes the content digest of a file on disk.
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()
	return DigestReader(f)
}
