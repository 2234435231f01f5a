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
	"io/ioutil"
	"math"
	"os"
	"testing"

	"github.com/ctessum/geom"
)

func different(a, b float64) bool {
	return math.Abs(a-b) > 1.e-6
}

func TestPointWeights(t *testing.T) {
	g := testGrid(t)
	w := g.pointWeights(geom.Point{X: 5, Y: 5})
	if len(w.Elements) != 1 {
		t.Fatalf("expected 1 cell but got %d", len(w.Elements))
	}
	if v := w.Get(2, 2); v != 1 {
		t.Errorf("weight = %g; want 1", v)
	}
}

// A point outside the grid extent is silently dropped: it contributes
// to no cell and does not cause an error.
func TestPointWeightsOutOfBounds(t *testing.T) {
	g := testGrid(t)
	for _, p := range []geom.Point{{X: -1, Y: 5}, {X: 11, Y: 5}, {X: 5, Y: -1}, {X: 5, Y: 11}} {
		if w := g.pointWeights(p); len(w.Elements) != 0 {
			t.Errorf("point %v: expected no cells but got %v", p, w.Elements)
		}
	}
}

// TestPolygonWeightsSum checks mass conservation: for polygons lying
// inside the grid extent, the weights over all touched cells sum to 1.
func TestPolygonWeightsSum(t *testing.T) {
	g := testGrid(t)
	tests := []struct {
		name string
		poly geom.Polygon
	}{
		{"aligned square", geom.Polygon{{{X: 2.5, Y: 2.5}, {X: 5, Y: 2.5}, {X: 5, Y: 5}, {X: 2.5, Y: 5}}}},
		{"offset square", geom.Polygon{{{X: 1, Y: 1}, {X: 4, Y: 1}, {X: 4, Y: 4}, {X: 1, Y: 4}}}},
		{"triangle", geom.Polygon{{{X: 0.5, Y: 0.5}, {X: 9.5, Y: 0.5}, {X: 0.5, Y: 9.5}}}},
		{"thin sliver", geom.Polygon{{{X: 1, Y: 1}, {X: 9, Y: 1.5}, {X: 9, Y: 2}, {X: 1, Y: 1.5}}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w, err := g.polygonWeights([]geom.Polygon{test.poly}, 2)
			if err != nil {
				t.Fatal(err)
			}
			if sum := w.Sum(); different(sum, 1) {
				t.Errorf("weights sum to %g; want 1", sum)
			}
		})
	}
}

// A polygon covering exactly one grid cell puts all of its weight
// there; one covering two half-and-half splits it evenly.
func TestPolygonWeightsDistribution(t *testing.T) {
	g := testGrid(t)

	one := geom.Polygon{{{X: 2.5, Y: 2.5}, {X: 5, Y: 2.5}, {X: 5, Y: 5}, {X: 2.5, Y: 5}}}
	w, err := g.polygonWeights([]geom.Polygon{one}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if v := w.Get(2, 1); different(v, 1) {
		t.Errorf("weight at (2,1) = %g; want 1", v)
	}

	two := geom.Polygon{{{X: 1.25, Y: 0}, {X: 3.75, Y: 0}, {X: 3.75, Y: 2.5}, {X: 1.25, Y: 2.5}}}
	w, err = g.polygonWeights([]geom.Polygon{two}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if v := w.Get(3, 0); different(v, 0.5) {
		t.Errorf("weight at (3,0) = %g; want 0.5", v)
	}
	if v := w.Get(3, 1); different(v, 0.5) {
		t.Errorf("weight at (3,1) = %g; want 0.5", v)
	}
}

// TestPolygonWeightsSupersampling checks that a square lying entirely
// within a single grid cell keeps all of its weight in that cell at any
// super-sampling factor, with the weights always summing to 1.
func TestPolygonWeightsSupersampling(t *testing.T) {
	g := testGrid(t)
	poly := geom.Polygon{{{X: 0.2, Y: 0.2}, {X: 2.2, Y: 0.2}, {X: 2.2, Y: 2.2}, {X: 0.2, Y: 2.2}}}
	for _, s := range []int{1, 2, 4, 8} {
		w, err := g.polygonWeights([]geom.Polygon{poly}, s)
		if err != nil {
			t.Fatal(err)
		}
		if sum := w.Sum(); different(sum, 1) {
			t.Errorf("subcells %d: weights sum to %g; want 1", s, sum)
		}
		if v := w.Get(3, 0); different(v, 1) {
			t.Errorf("subcells %d: weight at (3,0) = %g; want 1", s, v)
		}
	}
}

func TestPolygonWeightsOutsideGrid(t *testing.T) {
	g := testGrid(t)
	poly := geom.Polygon{{{X: 20, Y: 20}, {X: 22, Y: 20}, {X: 22, Y: 22}, {X: 20, Y: 22}}}
	w, err := g.polygonWeights([]geom.Polygon{poly}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(w.Elements) != 0 {
		t.Errorf("expected no cells but got %v", w.Elements)
	}
}

func TestPolygonWeightsMalformed(t *testing.T) {
	g := testGrid(t)
	_, err := g.polygonWeights([]geom.Polygon{{{{X: 0, Y: 0}, {X: 1, Y: 1}}}}, 2)
	if err == nil {
		t.Fatal("expected error for degenerate ring")
	}
	if _, ok := err.(*GeometryError); !ok {
		t.Errorf("error %v should be a GeometryError", err)
	}
}

func TestGeomWeightsUnsupportedType(t *testing.T) {
	g := testGrid(t)
	_, err := g.geomWeights(7, geom.LineString{{X: 0, Y: 0}, {X: 1, Y: 1}}, 2)
	if err == nil {
		t.Fatal("expected error for line geometry")
	}
	gerr, ok := err.(*GeometryError)
	if !ok {
		t.Fatalf("error %v should be a GeometryError", err)
	}
	if gerr.SourceID != 7 {
		t.Errorf("error should name source 7: %v", gerr)
	}
}

// TestWeightCalculatorDiskCache checks that weights survive a round trip
// through the on-disk request cache.
func TestWeightCalculatorDiskCache(t *testing.T) {
	dir, err := ioutil.TempDir("", "emitk_weights_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	g := testGrid(t)
	poly := geom.Polygon{{{X: 1, Y: 1}, {X: 4, Y: 1}, {X: 4, Y: 4}, {X: 1, Y: 4}}}
	ctx := context.Background()

	c1 := newWeightCalculator(g, 2, dir, 10)
	w1, err := c1.Weights(ctx, 1, poly)
	if err != nil {
		t.Fatal(err)
	}

	// A fresh calculator sharing the cache directory must reproduce the
	// same weights.
	c2 := newWeightCalculator(g, 2, dir, 10)
	w2, err := c2.Weights(ctx, 1, poly)
	if err != nil {
		t.Fatal(err)
	}
	if len(w1.Elements) != len(w2.Elements) {
		t.Fatalf("cached weights have %d cells; want %d", len(w2.Elements), len(w1.Elements))
	}
	for i, v := range w1.Elements {
		if different(v, w2.Elements[i]) {
			t.Errorf("cached weight at %d = %g; want %g", i, w2.Elements[i], v)
		}
	}
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) == 0 {
		t.Error("expected cache files on disk")
	}
}
