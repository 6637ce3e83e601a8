package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"path"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/text/unicode/norm"
)

// ChunkSize is the fixed read size used when streaming files through a hash.
const ChunkSize = 64 << 10

// Algorithm names a content hash.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// ParseAlgorithm maps a configuration value to an Algorithm; empty means SHA256.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", SHA256:
		return SHA256, nil
	case BLAKE3:
		return BLAKE3, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", s)
	}
}

// New returns a fresh hash context. Both algorithms produce 32-byte digests.
func (a Algorithm) New() hash.Hash {
	if a == BLAKE3 {
		return blake3.New()
	}
	return sha256.New()
}

// HashReader streams r through the algorithm in ChunkSize reads and returns
// the hex digest and the number of bytes consumed.
func HashReader(a Algorithm, r io.Reader) (string, int64, error) {
	h := a.New()
	buf := make([]byte, ChunkSize)
	var n int64
	for {
		read, err := r.Read(buf)
		if read > 0 {
			_, _ = h.Write(buf[:read])
			n += int64(read)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", n, err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashBytes hashes an in-memory document.
func HashBytes(a Algorithm, data []byte) string {
	h := a.New()
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Aggregate folds the (path, fingerprint) pairs of files, which must already
// be sorted by path, into one digest. Each pair contributes
// path NUL fingerprint NUL so neither renames nor edits go unnoticed.
func Aggregate(a Algorithm, files []Entry) string {
	h := a.New()
	for _, f := range files {
		_, _ = io.WriteString(h, f.Path)
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, f.Fingerprint)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizePath converts p to the manifest's canonical form: NFC Unicode,
// forward slashes, no leading "./".
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = norm.NFC.String(p)
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}
