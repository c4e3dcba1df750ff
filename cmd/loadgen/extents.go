package main

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/ogc-map-viewer/internal/core/model"
	"github.com/mohammed-shakir/ogc-map-viewer/internal/loadevents"
)

// makeExtents builds a pool of viewports around centre. The first quarter
// (at least 8) sits within one viewport of the centre so Zipf picks revisit
// them; the rest wander up to spread metres away.
func makeExtents(count int, center [2]float64, size, spread float64, r *rand.Rand) []model.Extent {
	if count <= 0 || size <= 0 {
		return nil
	}
	out := make([]model.Extent, 0, count)
	hot := int(math.Max(8, float64(count/4)))
	for len(out) < count {
		reach := spread
		if len(out) < hot {
			reach = size
		}
		cx := center[0] + (r.Float64()-0.5)*2*reach
		cy := center[1] + (r.Float64()-0.5)*2*reach
		w := size * (0.75 + r.Float64()*0.5)
		h := size * (0.75 + r.Float64()*0.5)
		out = append(out, model.Extent{MinX: cx - w/2, MinY: cy - h/2, MaxX: cx + w/2, MaxY: cy + h/2})
	}
	return out
}

func parsePoint(s string) ([2]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return [2]float64{}, fmt.Errorf("expected x,y got %q", s)
	}
	var p [2]float64
	for i, v := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return [2]float64{}, fmt.Errorf("parse %q: %w", v, err)
		}
		p[i] = f
	}
	return p, nil
}

// eventTally counts load outcomes for one layer from raw event payloads.
type eventTally struct {
	layer    string
	byResult map[loadevents.Outcome]int
	features int
	skipped  int
}

func newEventTally(layer string) *eventTally {
	return &eventTally{layer: layer, byResult: map[loadevents.Outcome]int{}}
}

func (t *eventTally) add(raw []byte) {
	var ev loadevents.Event
	if err := json.Unmarshal(raw, &ev); err != nil || ev.Layer != t.layer {
		t.skipped++
		return
	}
	t.byResult[ev.Outcome]++
	t.features += ev.Features
}

func percentile(sortedValues []float64, p float64) float64 {
	if len(sortedValues) == 0 {
		return math.NaN()
	}
	if p <= 0 {
		return sortedValues[0]
	}
	if p >= 100 {
		return sortedValues[len(sortedValues)-1]
	}
	k := (p / 100.0) * float64(len(sortedValues)-1)
	f := math.Floor(k)
	i := int(f)
	if i >= len(sortedValues)-1 {
		return sortedValues[len(sortedValues)-1]
	}
	d := k - f
	return sortedValues[i]*(1-d) + sortedValues[i+1]*d
}
