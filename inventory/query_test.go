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

package inventory

import (
	"context"
	"math"
	"sort"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// TestQueryEmissionsUnion checks that direct substance emissions and
// activity-rate emissions of the same source add up: 2000 ton/year stored
// directly plus 10/year of an activity emitting 100 kg per unit should
// total 2001000 kg/year.
func TestQueryEmissionsUnion(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	nox, err := st.SubstanceBySlug("NOx")
	if err != nil {
		t.Fatal(err)
	}
	actID, err := st.AddActivity(&Activity{
		Name: "residential heating", Unit: "GJ",
		EmissionFactors: []*EmissionFactor{{SubstanceID: nox.ID, Factor: 100}},
	})
	if err != nil {
		t.Fatal(err)
	}
	srcID, err := st.AddPointSource(&PointSource{
		Name:       "stack.1",
		Geom:       geom.Point{X: 5, Y: 5},
		Substances: []*SourceSubstance{{SubstanceID: nox.ID, Value: 2000 * 1000. / 31536000.}},
		Activities: []*SourceActivity{{ActivityID: actID, Rate: 10}},
	})
	if err != nil {
		t.Fatal(err)
	}

	recs, err := st.QueryEmissions(context.Background(), SourceTypePoint, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record but got %d", len(recs))
	}
	rec := recs[0]
	if rec.SourceID != srcID || rec.SubstanceID != nox.ID || rec.TimevarID != 0 {
		t.Errorf("unexpected record %+v", rec)
	}
	want := 2001000. / 31536000.
	if different(rec.Emission, want) {
		t.Errorf("expected %g kg/s but got %g", want, rec.Emission)
	}
}

func sourceIDs(recs []*EmissionRecord) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, rec := range recs {
		if !seen[rec.SourceID] {
			seen[rec.SourceID] = true
			ids = append(ids, rec.SourceID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func int64sEqual(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueryEmissionsFilters(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	nox, err := st.SubstanceBySlug("NOx")
	if err != nil {
		t.Fatal(err)
	}
	sox, err := st.SubstanceBySlug("SOx")
	if err != nil {
		t.Fatal(err)
	}
	csID, err := st.AddCodeSet("Nomenclature for reporting", "nfr")
	if err != nil {
		t.Fatal(err)
	}
	for _, code := range []string{"1", "1.3", "1.3.1", "2"} {
		if _, err := st.AddActivityCode(csID, code, ""); err != nil {
			t.Fatal(err)
		}
	}

	p1, err := st.AddPointSource(&PointSource{
		Name: "stack.north", Tags: map[string]string{"fuel": "wood"},
		ActivityCodes: [3]string{"1.3.1", "", ""},
		Geom:          geom.Point{X: 2, Y: 2},
		Substances:    []*SourceSubstance{{SubstanceID: nox.ID, Value: 1}},
	})
	if err != nil {
		t.Fatal(err)
	}
	p2, err := st.AddPointSource(&PointSource{
		Name: "stack.south", Tags: map[string]string{"fuel": "oil"},
		ActivityCodes: [3]string{"2", "", ""},
		Geom:          geom.Point{X: 8, Y: 8},
		Substances: []*SourceSubstance{
			{SubstanceID: nox.ID, Value: 2},
			{SubstanceID: sox.ID, Value: 3},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	p3, err := st.AddPointSource(&PointSource{
		Name:       "boiler.east",
		Geom:       geom.Point{X: 20, Y: 20},
		Substances: []*SourceSubstance{{SubstanceID: nox.ID, Value: 4}},
	})
	if err != nil {
		t.Fatal(err)
	}

	square := geom.Polygon{{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10}}}
	tests := []struct {
		name string
		f    *QueryFilter
		want []int64
		err  bool
	}{
		{name: "all", f: nil, want: []int64{p1, p2, p3}},
		{name: "name regexp", f: &QueryFilter{Name: "^stack"}, want: []int64{p1, p2}},
		{name: "tag match", f: &QueryFilter{Tags: map[string]TagFilter{"fuel": {Value: "wood"}}}, want: []int64{p1}},
		{name: "tag negation", f: &QueryFilter{Tags: map[string]TagFilter{"fuel": {Value: "wood", Negate: true}}}, want: []int64{p2, p3}},
		{name: "ids", f: &QueryFilter{IDs: []int64{p1, p3}}, want: []int64{p1, p3}},
		{name: "substance", f: &QueryFilter{Substances: []int64{sox.ID}}, want: []int64{p2}},
		{name: "code prefix", f: &QueryFilter{AC1: []string{"1.3"}}, want: []int64{p1}},
		{name: "code root", f: &QueryFilter{AC1: []string{"1"}}, want: []int64{p1}},
		{name: "code exact", f: &QueryFilter{AC1: []string{"2"}}, want: []int64{p2}},
		{name: "code union", f: &QueryFilter{AC1: []string{"1.3", "2"}}, want: []int64{p1, p2}},
		{name: "polygon", f: &QueryFilter{Polygon: square}, want: []int64{p1, p2}},
		{name: "unknown code", f: &QueryFilter{AC1: []string{"9"}}, err: true},
		{name: "bad name regexp", f: &QueryFilter{Name: "("}, err: true},
		{name: "slot without code set", f: &QueryFilter{AC2: []string{"1"}}, err: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			recs, err := st.QueryEmissions(context.Background(), SourceTypePoint, test.f, nil)
			if test.err {
				if err == nil {
					t.Fatal("expected error")
				}
				if _, ok := err.(*ConfigError); !ok {
					t.Errorf("error %v should be a ConfigError", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := sourceIDs(recs); !int64sEqual(got, test.want) {
				t.Errorf("expected sources %v but got %v", test.want, got)
			}
		})
	}
}

func TestQueryEmissionsSourceType(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	_, err := st.QueryEmissions(context.Background(), SourceType("line"), nil, nil)
	if err == nil {
		t.Fatal("expected error for unsupported source type")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Errorf("error %v should be a ConfigError", err)
	}
}

func TestQueryEmissionsReprojection(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	nox, err := st.SubstanceBySlug("NOx")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddPointSource(&PointSource{
		Name:       "stack.1",
		Geom:       geom.Point{X: -97, Y: 40},
		Substances: []*SourceSubstance{{SubstanceID: nox.ID, Value: 1}},
	}); err != nil {
		t.Fatal(err)
	}
	target, err := proj.Parse("+proj=lcc +lat_1=33.000000 +lat_2=45.000000 " +
		"+lat_0=40.000000 +lon_0=-97.000000 +x_0=0 +y_0=0 +a=6370997.000000 " +
		"+b=6370997.000000 +to_meter=1")
	if err != nil {
		t.Fatal(err)
	}
	recs, err := st.QueryEmissions(context.Background(), SourceTypePoint, nil, target)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record but got %d", len(recs))
	}
	got := recs[0].Geom.(geom.Point)

	// Transforming back must return the stored location.
	wgs84, err := proj.Parse(WGS84)
	if err != nil {
		t.Fatal(err)
	}
	back, err := target.NewTransform(wgs84)
	if err != nil {
		t.Fatal(err)
	}
	lon, lat, err := back(got.X, got.Y)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(lon+97) > 1.e-6 || math.Abs(lat-40) > 1.e-6 {
		t.Errorf("expected (-97, 40) but got (%g, %g)", lon, lat)
	}
}

func TestAggregateEmissions(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	nox, err := st.SubstanceBySlug("NOx")
	if err != nil {
		t.Fatal(err)
	}
	csID, err := st.AddCodeSet("Nomenclature for reporting", "nfr")
	if err != nil {
		t.Fatal(err)
	}
	for _, code := range []string{"1", "1.3", "1.3.1", "2"} {
		if _, err := st.AddActivityCode(csID, code, "code "+code); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := st.AddPointSource(&PointSource{
		Name:          "stack.1",
		ActivityCodes: [3]string{"1.3.1", "", ""},
		Geom:          geom.Point{X: 2, Y: 2},
		Substances:    []*SourceSubstance{{SubstanceID: nox.ID, Value: 1000. / 31536000.}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddAreaSource(&AreaSource{
		Name:          "district.1",
		ActivityCodes: [3]string{"2", "", ""},
		Geom:          geom.Polygon{{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}},
		Substances:    []*SourceSubstance{{SubstanceID: nox.ID, Value: 500. / 31536000.}},
	}); err != nil {
		t.Fatal(err)
	}

	total, err := st.AggregateEmissions(context.Background(), nil, "", "ton/year")
	if err != nil {
		t.Fatal(err)
	}
	if len(total) != 1 || total[0].Code != "total" {
		t.Fatalf("expected a single total row but got %+v", total)
	}
	if different(total[0].Totals["NOx"], 1.5) {
		t.Errorf("expected 1.5 ton/year but got %g", total[0].Totals["NOx"])
	}

	rows, err := st.AggregateEmissions(context.Background(), nil, "nfr", "ton/year")
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]float64{"1": 1, "1.3": 1, "1.3.1": 1, "2": 0.5}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows but got %d: %+v", len(want), len(rows), rows)
	}
	for _, row := range rows {
		if different(row.Totals["NOx"], want[row.Code]) {
			t.Errorf("code %s: expected %g ton/year but got %g",
				row.Code, want[row.Code], row.Totals["NOx"])
		}
	}

	if _, err := st.AggregateEmissions(context.Background(), nil, "snap", "ton/year"); err == nil {
		t.Error("expected error for unconfigured code set")
	}
}

func TestUsedSubstances(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	nox, err := st.SubstanceBySlug("NOx")
	if err != nil {
		t.Fatal(err)
	}
	pm25, err := st.SubstanceBySlug("PM25")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddPointSource(&PointSource{
		Name:       "stack.1",
		Geom:       geom.Point{X: 2, Y: 2},
		Substances: []*SourceSubstance{{SubstanceID: nox.ID, Value: 1}},
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddActivity(&Activity{
		Name: "wood burning", Unit: "t",
		EmissionFactors: []*EmissionFactor{{SubstanceID: pm25.ID, Factor: 5}},
	}); err != nil {
		t.Fatal(err)
	}
	used, err := st.UsedSubstances(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(used) != 2 {
		t.Fatalf("expected 2 used substances but got %d", len(used))
	}
	if used[0].Slug != "NOx" || used[1].Slug != "PM25" {
		t.Errorf("unexpected substances %+v", used)
	}
}
