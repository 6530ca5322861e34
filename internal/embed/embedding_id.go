package embed

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

// encodeImage base64-encodes raw image bytes for transport to the CLIP
// server's JSON image endpoint.
func encodeImage(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// textEmbeddingID derives the deterministic id for a text input: the
// first 32 hex chars of SHA-256 of the trimmed text.
func textEmbeddingID(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])[:32]
}

// bytesEmbeddingID derives the deterministic id for an image input: the
// first 32 hex chars of SHA-256 of the file's bytes.
func bytesEmbeddingID(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:32]
}
