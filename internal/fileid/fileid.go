// Package fileid derives stable document and chunk identifiers.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const prefix = "file:"

// chunkSep separates a parent id from the chunk index.
const chunkSep = "#"

// FileDocID returns a stable document ID for the given absolute path.
// Same path always yields the same ID, so re-seeding a file replaces its chunks.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// ChunkID returns the id of the index-th chunk of parentID.
func ChunkID(parentID string, index int) string {
	return fmt.Sprintf("%s%s%d", parentID, chunkSep, index)
}

// ParseChunkID splits a chunk id into its parent id and index.
func ParseChunkID(id string) (parentID string, index int, ok bool) {
	i := strings.LastIndex(id, chunkSep)
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return "", 0, false
	}
	return id[:i], n, true
}
