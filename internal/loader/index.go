package loader

import (
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
)

// rtreego needs non-zero side lengths
const minSide = 1e-9

type extentEntry struct {
	extent model.Extent
}

func (e *extentEntry) Bounds() rtreego.Rect {
	w := e.extent.MaxX - e.extent.MinX
	h := e.extent.MaxY - e.extent.MinY
	if w < minSide {
		w = minSide
	}
	if h < minSide {
		h = minSide
	}
	rect, _ := rtreego.NewRect(rtreego.Point{e.extent.MinX, e.extent.MinY}, []float64{w, h})
	return rect
}

// Index records extents that are loaded or being loaded.
type Index struct {
	mu      sync.Mutex
	tree    *rtreego.Rtree
	entries map[model.Extent]*extentEntry
}

func NewIndex() *Index {
	return &Index{
		tree:    rtreego.NewTree(2, 25, 50),
		entries: map[model.Extent]*extentEntry{},
	}
}

// Claim records e unless an existing extent already contains it. It
// reports whether e was recorded.
func (x *Index) Claim(e model.Extent) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	probe := &extentEntry{extent: e}
	for _, s := range x.tree.SearchIntersect(probe.Bounds()) {
		if s.(*extentEntry).extent.Contains(e) {
			return false
		}
	}
	x.tree.Insert(probe)
	x.entries[e] = probe
	return true
}

// Release forgets e so it can be claimed again.
func (x *Index) Release(e model.Extent) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	entry, ok := x.entries[e]
	if !ok {
		return false
	}
	delete(x.entries, e)
	return x.tree.Delete(entry)
}

// Covered reports whether a recorded extent contains e.
func (x *Index) Covered(e model.Extent) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	probe := &extentEntry{extent: e}
	for _, s := range x.tree.SearchIntersect(probe.Bounds()) {
		if s.(*extentEntry).extent.Contains(e) {
			return true
		}
	}
	return false
}

func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}
