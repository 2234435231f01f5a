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
	"reflect"
	"testing"

	"github.com/ctessum/geom"

	"github.com/airshedmodel/emitk/temporal"
)

func testSettings() *Settings {
	return &Settings{
		Proj4:    WGS84,
		Extent:   [4]float64{0, 0, 10, 10},
		Timezone: "UTC",
		CodeSets: [3]string{"nfr", "", ""},
	}
}

func newTestStore(t *testing.T) *Store {
	st, err := Create(":memory:", testSettings())
	if err != nil {
		t.Fatal(err)
	}
	return st
}

// daytimeProfile emits between 06:00 and 18:00 on every day of the week.
func daytimeProfile() *temporal.Profile {
	hourly := make([][]float64, 24)
	for hr := range hourly {
		hourly[hr] = make([]float64, 7)
		for wd := range hourly[hr] {
			if hr >= 6 && hr < 18 {
				hourly[hr][wd] = 100
			}
		}
	}
	monthly := make([]float64, 12)
	for m := range monthly {
		monthly[m] = 100
	}
	p, err := temporal.NewProfile(hourly, monthly)
	if err != nil {
		panic(err)
	}
	return p
}

func TestCreateInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		s    *Settings
	}{
		{"bad extent", &Settings{Proj4: WGS84, Extent: [4]float64{10, 0, 0, 10}, Timezone: "UTC"}},
		{"bad timezone", &Settings{Proj4: WGS84, Extent: [4]float64{0, 0, 1, 1}, Timezone: "Mars/Olympus"}},
		{"bad projection", &Settings{Proj4: "+proj=nosuch", Extent: [4]float64{0, 0, 1, 1}, Timezone: "UTC"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if _, err := Create(":memory:", test.s); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	got, err := st.Settings()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, testSettings()) {
		t.Errorf("expected %+v but got %+v", testSettings(), got)
	}
}

func TestDefaultSubstances(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	subs, err := st.Substances()
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != len(defaultSubstances) {
		t.Fatalf("expected %d substances but got %d", len(defaultSubstances), len(subs))
	}
	nox, err := st.SubstanceBySlug("NOx")
	if err != nil {
		t.Fatal(err)
	}
	if nox.Name != "Nitrogen oxides" {
		t.Errorf("expected 'Nitrogen oxides' but got '%s'", nox.Name)
	}
	_, err = st.SubstanceBySlug("XYZ")
	if err == nil {
		t.Fatal("expected error for unknown substance")
	}
	if _, ok := err.(*ConfigError); !ok {
		t.Errorf("error %v should be a ConfigError", err)
	}
}

func TestTimevarRoundTrip(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	p := daytimeProfile()
	id, err := st.AddTimevar("daytime", p)
	if err != nil {
		t.Fatal(err)
	}
	tv, err := st.TimevarByName("daytime")
	if err != nil {
		t.Fatal(err)
	}
	if tv.ID != id {
		t.Errorf("expected id %d but got %d", id, tv.ID)
	}
	if !reflect.DeepEqual(tv.Profile, p) {
		t.Error("profile did not survive the round trip")
	}
	tvs, err := st.Timevars()
	if err != nil {
		t.Fatal(err)
	}
	if len(tvs) != 1 {
		t.Errorf("expected 1 timevar but got %d", len(tvs))
	}
	if _, err := st.TimevarByName("nighttime"); err == nil {
		t.Error("expected error for unknown timevar")
	}
}

func TestAddPointSource(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	nox, err := st.SubstanceBySlug("NOx")
	if err != nil {
		t.Fatal(err)
	}
	facID, err := st.AddFacility("SE.1234", "Works")
	if err != nil {
		t.Fatal(err)
	}
	id, err := st.AddPointSource(&PointSource{
		FacilityID:            facID,
		Name:                  "stack.1",
		Tags:                  map[string]string{"fuel": "wood"},
		ActivityCodes:         [3]string{"1.3", "", ""},
		ChimneyHeight:         25,
		ChimneyOuterDiameter:  1.2,
		ChimneyInnerDiameter:  1,
		ChimneyGasSpeed:       10,
		ChimneyGasTemperature: 373,
		Geom:                  geom.Point{X: 5, Y: 5},
		Substances:            []*SourceSubstance{{SubstanceID: nox.ID, Value: 1.5}},
	})
	if err != nil {
		t.Fatal(err)
	}

	var height float64
	if err := st.db.QueryRow(
		"SELECT chimney_height FROM point_sources WHERE id = ?", id).Scan(&height); err != nil {
		t.Fatal(err)
	}
	if height != 25 {
		t.Errorf("expected chimney height 25 but got %g", height)
	}

	recs, err := st.QueryEmissions(context.Background(), SourceTypePoint, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record but got %d", len(recs))
	}
	rec := recs[0]
	if rec.SourceID != id || rec.SubstanceID != nox.ID {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Emission != 1.5 {
		t.Errorf("expected emission 1.5 but got %g", rec.Emission)
	}
	pt, ok := rec.Geom.(geom.Point)
	if !ok {
		t.Fatalf("expected a point but got %T", rec.Geom)
	}
	if pt.X != 5 || pt.Y != 5 {
		t.Errorf("expected (5, 5) but got (%g, %g)", pt.X, pt.Y)
	}
}

func TestAddAreaSource(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	nox, err := st.SubstanceBySlug("NOx")
	if err != nil {
		t.Fatal(err)
	}
	poly := geom.Polygon{{{X: 0, Y: 0}, {X: 2, Y: 0}, {X: 2, Y: 2}, {X: 0, Y: 2}}}
	id, err := st.AddAreaSource(&AreaSource{
		Name:       "district.1",
		Geom:       poly,
		Substances: []*SourceSubstance{{SubstanceID: nox.ID, Value: 0.5}},
	})
	if err != nil {
		t.Fatal(err)
	}
	recs, err := st.QueryEmissions(context.Background(), SourceTypeArea, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].SourceID != id {
		t.Fatalf("expected 1 record for source %d but got %+v", id, recs)
	}
	got, ok := recs[0].Geom.(geom.Polygon)
	if !ok {
		t.Fatalf("expected a polygon but got %T", recs[0].Geom)
	}
	if !got.Similar(poly, 1.e-9) {
		t.Errorf("expected %+v but got %+v", poly, got)
	}
}

func TestFacilityUpsert(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	id1, err := st.AddFacility("SE.1", "Works")
	if err != nil {
		t.Fatal(err)
	}
	id2, err := st.AddFacility("SE.1", "Works again")
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Errorf("expected the same facility id but got %d and %d", id1, id2)
	}
}
