// Package fileid derives deterministic identifiers for source files and chunks.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"
)

const prefix = "file:"

// FileDocID returns a stable key for the given absolute path.
// Same path always yields the same key. Used by the ingestion ledger.
func FileDocID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return prefix + hex.EncodeToString(hash[:])
}

// ChunkKey is the name hashed into a chunk ID: source|page|chunk_index|length.
// Length counts characters (code points), not bytes.
func ChunkKey(source string, page, chunkIndex int, content string) string {
	return fmt.Sprintf("%s|%d|%d|%d", source, page, chunkIndex, utf8.RuneCountInString(content))
}

// ChunkID returns the version-5 UUID (URL namespace) for a chunk's identity.
// It is a pure function of its inputs.
func ChunkID(source string, page, chunkIndex int, content string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(ChunkKey(source, page, chunkIndex, content))).String()
}
