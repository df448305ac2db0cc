// Package signcache is the C9 cache store: it reads and writes the
// per-bundle signing manifest under a stable, path-derived cache key.
package signcache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ipasign/ipasign/internal/bundletree"
	"github.com/ipasign/ipasign/internal/hashutil"
	"github.com/ipasign/ipasign/internal/ipasignerr"
	"github.com/ipasign/ipasign/internal/pathfs"
)

const cacheDirName = ".zsign_cache"

// Key returns the cache key for a root bundle directory: the SHA-1 hex of
// its absolute path. Moving a bundle invalidates its cache — intentional,
// see SPEC_FULL.md §9.
func Key(rootDir string) (string, error) {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		return "", ipasignerr.New("signcache.Key", ipasignerr.KindIOFailure, rootDir, err)
	}
	return hashutil.SHA1Hex(abs), nil
}

func cachePath(baseDir, key string) string {
	return filepath.Join(baseDir, cacheDirName, key+".json")
}

// Exists reports whether a cache file exists for key under baseDir.
func Exists(baseDir, key string) bool {
	return pathfs.FileExists(cachePath(baseDir, key))
}

// Load reads and decodes the cached SignNode tree. A missing file is
// reported via ok=false, not an error — the caller forces a full sign in
// that case. A present-but-corrupt file is a CacheDecodeFailure.
func Load(baseDir, key string) (node *bundletree.SignNode, ok bool, err error) {
	path := cachePath(baseDir, key)
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil, false, nil
		}
		return nil, false, ipasignerr.New("signcache.Load", ipasignerr.KindIOFailure, path, readErr)
	}
	var n bundletree.SignNode
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, false, ipasignerr.New("signcache.Load", ipasignerr.KindCacheDecodeFailure, path, err)
	}
	return &n, true, nil
}

// Save persists node as the cache entry for key under baseDir, atomically.
func Save(baseDir, key string, node *bundletree.SignNode) error {
	data, err := json.MarshalIndent(node, "", "  ")
	if err != nil {
		return ipasignerr.New("signcache.Save", ipasignerr.KindIOFailure, key, err)
	}
	return pathfs.SafeWriteFile(cachePath(baseDir, key), data, 0o644)
}
