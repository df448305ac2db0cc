// Package hashutil is the C2 hash service: SHA-1 and SHA-256 over files
// and byte strings, always reported base64-encoded the way CodeResources
// and SignNode digests expect.
package hashutil

import (
	"crypto/sha1" //nolint:gosec // required by the CodeResources legacy hash slot, not a security choice
	"crypto/sha256"
	"encoding/base64"
	"os"

	"github.com/ipasign/ipasign/internal/ipasignerr"
)

// Digests holds both hash algorithms for one piece of content.
type Digests struct {
	SHA1   string // base64
	SHA256 string // base64
}

// Bytes computes both digests of b.
func Bytes(b []byte) Digests {
	s1 := sha1.Sum(b) //nolint:gosec
	s256 := sha256.Sum256(b)
	return Digests{
		SHA1:   base64.StdEncoding.EncodeToString(s1[:]),
		SHA256: base64.StdEncoding.EncodeToString(s256[:]),
	}
}

// File computes both digests of the file at path.
func File(path string) (Digests, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Digests{}, ipasignerr.New("hashutil.File", ipasignerr.KindHashFailure, path, err)
	}
	return Bytes(data), nil
}

// SHA1Hex returns the lowercase hex SHA-1 of s, used for the cache-key
// derivation in C9 (not base64 — the cache file name, not a manifest entry).
func SHA1Hex(s string) string {
	sum := sha1.Sum([]byte(s)) //nolint:gosec
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(sum)*2)
	for i, b := range sum {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}

// DataPrefix formats a base64 digest the way CodeResources stores scalar
// hash entries: "data:<b64>".
func DataPrefix(b64 string) string { return "data:" + b64 }

// StripDataPrefix removes a leading "data:" if present, as the asset-change
// detector must when comparing a cached files[] entry to a freshly computed hash.
func StripDataPrefix(s string) string {
	const prefix = "data:"
	if len(s) >= len(prefix) && s[:len(prefix)] == prefix {
		return s[len(prefix):]
	}
	return s
}
