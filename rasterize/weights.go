/*
Copyright (C) 2018 the emitk authors.
This file is part of emitk.

emitk is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

emitk is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with emitk.  If not, see <http://www.gnu.org/licenses/>.
*/

package rasterize

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"sort"

	"github.com/ctessum/geom"
	"github.com/ctessum/requestcache"
	"github.com/ctessum/sparse"
)

func init() {
	gob.Register(&sparse.SparseArray{})
	gob.Register(geom.Point{})
	gob.Register(geom.Polygon{})
	gob.Register(geom.MultiPolygon{})
}

// GeometryError is returned when cell weights cannot be computed for a
// source geometry.
type GeometryError struct {
	// SourceID identifies the offending source, or is 0 if the geometry
	// does not belong to a stored source.
	SourceID int64
	msg      string
}

func (e *GeometryError) Error() string {
	if e.SourceID != 0 {
		return fmt.Sprintf("rasterize: source %d: %s", e.SourceID, e.msg)
	}
	return "rasterize: " + e.msg
}

func geometryErrorf(sourceID int64, format string, a ...interface{}) *GeometryError {
	return &GeometryError{SourceID: sourceID, msg: fmt.Sprintf(format, a...)}
}

// pointWeights returns the cell weights of a point source: the single
// cell containing p with weight 1. If p lies outside of the grid extent
// the result is empty; the source then contributes nothing.
func (g *Grid) pointWeights(p geom.Point) *sparse.SparseArray {
	w := sparse.ZerosSparse(g.Ny, g.Nx)
	if row, col, ok := g.CellIndex(p); ok {
		w.Set(1, row, col)
	}
	return w
}

// polygonWeights returns the cell weights of an area source covering the
// given polygons. Coverage is estimated by even-odd scanline fill at
// subcells×subcells sub-cell resolution per grid cell; each cell's weight
// is the fraction of the polygon's inside sub-samples that fall in it, so
// the weights sum to 1 whenever any sub-sample is inside the grid. Only
// sub-cells within the polygon bounding box are visited.
func (g *Grid) polygonWeights(polys []geom.Polygon, subcells int) (*sparse.SparseArray, error) {
	if subcells < 1 {
		subcells = 1
	}
	var rings [][]geom.Point
	b := geom.NewBounds()
	for _, poly := range polys {
		for _, ring := range poly {
			if len(ring) < 3 {
				return nil, geometryErrorf(0, "polygon ring has %d vertices; must have at least 3", len(ring))
			}
			rings = append(rings, ring)
		}
		b.Extend(poly.Bounds())
	}
	if len(rings) == 0 {
		return nil, geometryErrorf(0, "polygon has no rings")
	}

	dxs := g.Dx / float64(subcells)
	dys := g.Dy / float64(subcells)
	nxs := g.Nx * subcells
	nys := g.Ny * subcells

	// Sub-rows whose centers lie inside both the grid and the polygon
	// bounding box.
	jlo := int(math.Ceil((math.Max(b.Min.Y, g.Y0)-g.Y0)/dys - 0.5))
	jhi := int(math.Ceil((math.Min(b.Max.Y, g.Ymax())-g.Y0)/dys-0.5)) - 1
	if jlo < 0 {
		jlo = 0
	}
	if jhi > nys-1 {
		jhi = nys - 1
	}

	counts := sparse.ZerosSparse(g.Ny, g.Nx)
	total := 0.
	var crossings []float64
	for j := jlo; j <= jhi; j++ {
		y := g.Y0 + (float64(j)+0.5)*dys
		row := g.Ny - 1 - j/subcells

		// Even-odd rule: x positions where the scanline crosses a
		// polygon edge, counting each edge's lower endpoint but not
		// its upper one so that shared vertices are not double-counted.
		crossings = crossings[:0]
		for _, ring := range rings {
			for k, a := range ring {
				c := ring[(k+1)%len(ring)]
				if (a.Y <= y && y < c.Y) || (c.Y <= y && y < a.Y) {
					crossings = append(crossings, a.X+(y-a.Y)*(c.X-a.X)/(c.Y-a.Y))
				}
			}
		}
		if len(crossings) < 2 {
			continue
		}
		sort.Float64s(crossings)

		for k := 0; k+1 < len(crossings); k += 2 {
			// Sub-columns whose centers lie within the crossing pair
			// and inside the grid.
			ilo := int(math.Ceil((crossings[k]-g.X0)/dxs - 0.5))
			ihi := int(math.Ceil((crossings[k+1]-g.X0)/dxs-0.5)) - 1
			if ilo < 0 {
				ilo = 0
			}
			if ihi > nxs-1 {
				ihi = nxs - 1
			}
			for i := ilo; i <= ihi; i++ {
				counts.AddVal(1, row, i/subcells)
				total++
			}
		}
	}
	if total > 0 {
		counts.Scale(1 / total)
	}
	return counts, nil
}

// geomWeights dispatches the weight computation on geometry type.
func (g *Grid) geomWeights(sourceID int64, gm geom.Geom, subcells int) (*sparse.SparseArray, error) {
	switch t := gm.(type) {
	case geom.Point:
		return g.pointWeights(t), nil
	case geom.Polygon:
		w, err := g.polygonWeights([]geom.Polygon{t}, subcells)
		if gerr, ok := err.(*GeometryError); ok {
			gerr.SourceID = sourceID
		}
		return w, err
	case geom.MultiPolygon:
		w, err := g.polygonWeights(t, subcells)
		if gerr, ok := err.(*GeometryError); ok {
			gerr.SourceID = sourceID
		}
		return w, err
	default:
		return nil, geometryErrorf(sourceID, "unsupported geometry type %T", gm)
	}
}

// weightRequest asks for the cell weights of one source geometry.
type weightRequest struct {
	sourceID int64
	geom     geom.Geom
}

// weightCalculator computes source cell weights, deduplicating and
// caching results so that each source's geometry is only rasterized
// once per grid, regardless of how many substances or process calls
// refer to it.
type weightCalculator struct {
	grid     *Grid
	subcells int
	cache    *requestcache.Cache
}

// newWeightCalculator creates a weight calculator for the given grid.
// If diskCachePath is not empty, computed weights are additionally
// stored there and reused across program runs.
func newWeightCalculator(grid *Grid, subcells int, diskCachePath string, memCacheSize int) *weightCalculator {
	c := &weightCalculator{grid: grid, subcells: subcells}
	if diskCachePath == "" {
		c.cache = requestcache.NewCache(c.process, 1, requestcache.Deduplicate(),
			requestcache.Memory(memCacheSize))
	} else {
		c.cache = requestcache.NewCache(c.process, 1, requestcache.Deduplicate(),
			requestcache.Memory(memCacheSize),
			requestcache.Disk(diskCachePath, requestcache.MarshalGob, requestcache.UnmarshalGob))
	}
	return c
}

func (c *weightCalculator) process(ctx context.Context, request interface{}) (interface{}, error) {
	r := request.(*weightRequest)
	return c.grid.geomWeights(r.sourceID, r.geom, c.subcells)
}

// Weights returns the cell weights of the given source geometry. The
// cache key includes the grid signature so that a shared disk cache
// never serves weights computed for a different grid.
func (c *weightCalculator) Weights(ctx context.Context, sourceID int64, g geom.Geom) (*sparse.SparseArray, error) {
	req := c.cache.NewRequest(ctx, &weightRequest{sourceID: sourceID, geom: g},
		fmt.Sprintf("weights_%s_%d", c.grid.Key(), sourceID))
	result, err := req.Result()
	if err != nil {
		return nil, err
	}
	w := result.(*sparse.SparseArray)
	w.Fix()
	return w, nil
}
