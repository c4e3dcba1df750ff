package loader

import (
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Collection holds the features loaded for one layer. Only the loader's
// writer goroutine appends; readers get copies of the feature slice.
type Collection struct {
	mu sync.RWMutex
	fc *geojson.FeatureCollection
}

func NewCollection() *Collection {
	return &Collection{fc: geojson.NewFeatureCollection()}
}

func (c *Collection) append(fs []*geojson.Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range fs {
		c.fc.Append(f)
	}
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fc.Features)
}

// Snapshot returns a collection sharing the stored features.
func (c *Collection) Snapshot() *geojson.FeatureCollection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := geojson.NewFeatureCollection()
	out.Features = append(make([]*geojson.Feature, 0, len(c.fc.Features)), c.fc.Features...)
	return out
}

// Intersecting returns the features whose geometry bound meets b.
func (c *Collection) Intersecting(b orb.Bound) *geojson.FeatureCollection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := geojson.NewFeatureCollection()
	for _, f := range c.fc.Features {
		if f.Geometry == nil {
			continue
		}
		if f.Geometry.Bound().Intersects(b) {
			out.Append(f)
		}
	}
	return out
}
