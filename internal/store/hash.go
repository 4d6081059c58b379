package store

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash returns the hex SHA-256 of a file's bytes. Cached results are
// valid only while the hash matches.
func ContentHash(src []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(src))
}

// Fingerprint hashes an ordered list of labelled parts into one value. The
// labels keep "a"+"bc" distinct from "ab"+"c".
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		fmt.Fprintf(h, "%d:%d:%s\n", i, len(p), p)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
