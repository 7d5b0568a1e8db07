// SPDX-License-Identifier: MIT

package render

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/draw"
)

// inverseColorCacheCapacity matches the teacher's dedicated inverse-color
// LRU: computing it requires decoding and thumbnailing a full-size cover,
// so repeat hits on a popular background are worth caching independently
// of the raw-bytes AssetCache.
const inverseColorCacheCapacity = 256

// thumbnailEdge is the side length used for the average-color sample. The
// teacher shrinks to 100x100 before averaging so a 4K jacket doesn't cost a
// full decode-and-sum on every cache miss.
const thumbnailEdge = 100

// InverseColorCache computes and caches the inverted mean color of an image
// file, used to pick a stroke/text color that stays legible against a
// cover's dominant hue.
type InverseColorCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, string]
}

// NewInverseColorCache builds an InverseColorCache. A non-positive capacity
// falls back to inverseColorCacheCapacity.
func NewInverseColorCache(capacity int) *InverseColorCache {
	if capacity <= 0 {
		capacity = inverseColorCacheCapacity
	}
	c, err := lru.New[string, string](capacity)
	if err != nil {
		panic(err)
	}
	return &InverseColorCache{cache: c}
}

// InverseColorFromPath returns the cached "#RRGGBB" inverse of path's mean
// color, computing and caching it on a miss.
func (c *InverseColorCache) InverseColorFromPath(path string) (string, error) {
	c.mu.Lock()
	if v, ok := c.cache.Get(path); ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	color, err := calculateInverseColorFromPath(path)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.cache.Add(path, color)
	c.mu.Unlock()
	return color, nil
}

// calculateInverseColorFromPath decodes path, shrinks it to a thumbnail, and
// returns the hex-inverted mean RGB over the thumbnail's pixels.
func calculateInverseColorFromPath(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("render: open image: %w", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("render: decode image: %w", err)
	}

	thumb := image.NewRGBA(image.Rect(0, 0, thumbnailEdge, thumbnailEdge))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), src, src.Bounds(), draw.Over, nil)

	var totalR, totalG, totalB uint64
	pixels := uint64(thumbnailEdge * thumbnailEdge)
	for i := 0; i < len(thumb.Pix); i += 4 {
		totalR += uint64(thumb.Pix[i])
		totalG += uint64(thumb.Pix[i+1])
		totalB += uint64(thumb.Pix[i+2])
	}
	if pixels == 0 {
		return "", fmt.Errorf("render: empty thumbnail for %s", path)
	}

	avgR := byte(totalR / pixels)
	avgG := byte(totalG / pixels)
	avgB := byte(totalB / pixels)

	return fmt.Sprintf("#%02X%02X%02X", 255-avgR, 255-avgG, 255-avgB), nil
}
