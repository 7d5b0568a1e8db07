// SPDX-License-Identifier: MIT

package render

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// smallImageCacheCapacity and smallImageMaxBytes mirror the teacher's
// background/cover cache: files at or below this size get base64-embedded
// and the encoded form is cached; anything larger is referenced by path so
// the renderer never inflates memory on a large asset.
const (
	smallImageCacheCapacity = 256
	smallImageMaxBytes      = 256 * 1024
)

// AssetCache resolves on-disk image paths into `<image href>` references,
// caching the base64 data URI for small files so repeat renders (a leaderboard
// card reusing the same ten backgrounds) skip the disk read and encode.
type AssetCache struct {
	mu    sync.Mutex
	small *lru.Cache[string, string]
}

// NewAssetCache builds an AssetCache. A non-positive capacity falls back to
// smallImageCacheCapacity.
func NewAssetCache(capacity int) *AssetCache {
	if capacity <= 0 {
		capacity = smallImageCacheCapacity
	}
	c, err := lru.New[string, string](capacity)
	if err != nil {
		// lru.New only errors on capacity <= 0, which we've just guarded.
		panic(err)
	}
	return &AssetCache{small: c}
}

// dataURIForSmallFile returns a cached or freshly-encoded data URI for path
// when it is at or below smallImageMaxBytes, or the bare path otherwise.
func (c *AssetCache) dataURIForSmallFile(path string) (string, bool) {
	c.mu.Lock()
	if v, ok := c.small.Get(path); ok {
		c.mu.Unlock()
		return v, true
	}
	c.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	if len(data) > smallImageMaxBytes {
		return path, true
	}

	mime := "image/jpeg"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		mime = "image/png"
	}
	uri := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)

	c.mu.Lock()
	c.small.Add(path, uri)
	c.mu.Unlock()
	return uri, true
}

// GetImageHref returns a reference suitable for an SVG `<image href>`
// attribute: a data URI for small images, the file path for large ones.
// When embedImages is false it always prefers the bare path (to spare the
// rasterizer's SVG parser the cost of inlining pixels it will just decode
// again), falling back to the small-file path only if path doesn't exist.
func (c *AssetCache) GetImageHref(path string, embedImages bool) (string, bool) {
	if path == "" {
		return "", false
	}
	if !embedImages {
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		return c.dataURIForSmallFile(path)
	}
	return c.dataURIForSmallFile(path)
}

// Purge drops every cached entry.
func (c *AssetCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.small.Purge()
}
