// Package contentid derives the deterministic identifiers the storage chain
// re-computes on its side: account hashes and filetree merkle paths.
//
// Outputs are lowercase hex SHA-256 digests. Same input, same bytes.
package contentid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashAndHex returns the hex SHA-256 of s.
//
// The filetree module keys an account by HashAndHex(owner address), so the
// relay always recomputes it from the sender instead of trusting input.
func HashAndHex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// MerklePath folds a slash separated path into the filetree position hash.
//
// One trailing slash is ignored. Starting from an empty total, every segment
// is folded as total = HashAndHex(total + HashAndHex(segment)).
//
//	MerklePath("s/home/notes.txt") == MerklePath("s/home/notes.txt/")
func MerklePath(path string) string {
	trimmed := strings.TrimSuffix(path, "/")
	total := ""
	for _, segment := range strings.Split(trimmed, "/") {
		total = HashAndHex(total + HashAndHex(segment))
	}
	return total
}

// MerkleHelper returns the parent and child hashes a PostFile needs to place
// child under parentPath: MerklePath(parentPath) and HashAndHex(child).
func MerkleHelper(parentPath, child string) (hashParent, hashChild string) {
	return MerklePath(parentPath), HashAndHex(child)
}
