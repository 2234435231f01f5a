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

package emitkutil

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/geom"

	"github.com/airshedmodel/emitk/inventory"
)

// newTestDB creates a populated inventory database on disk and returns
// its path.
func newTestDB(t *testing.T, dir string) string {
	path := filepath.Join(dir, "test.db")
	st, err := inventory.Create(path, &inventory.Settings{
		Proj4:    inventory.WGS84,
		Extent:   [4]float64{0, 0, 10, 10},
		Timezone: "UTC",
	})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	nox, err := st.SubstanceBySlug("NOx")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := st.AddPointSource(&inventory.PointSource{
		Name:       "stack.1",
		Geom:       geom.Point{X: 5, Y: 5},
		Substances: []*inventory.SourceSubstance{{SubstanceID: nox.ID, Value: 1}},
	}); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRasterizeJobRun(t *testing.T) {
	dir, err := ioutil.TempDir("", "emitk_run_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	db := newTestDB(t, dir)

	outDir := filepath.Join(dir, "out")
	if err := os.Mkdir(outDir, 0755); err != nil {
		t.Fatal(err)
	}
	err = Rasterize(context.Background(), db, &RasterizeJob{
		Output: outDir,
		Nx:     4,
		Ny:     4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "emission_NOx.nc")); err != nil {
		t.Errorf("output file was not written: %v", err)
	}
}

func TestRasterizeJobBadSubstance(t *testing.T) {
	dir, err := ioutil.TempDir("", "emitk_run_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	db := newTestDB(t, dir)

	err = Rasterize(context.Background(), db, &RasterizeJob{
		Output:     dir,
		Nx:         4,
		Ny:         4,
		Substances: []string{"unobtainium"},
	})
	if err == nil {
		t.Fatal("expected error for unknown substance")
	}
	if _, ok := err.(*inventory.ConfigError); !ok {
		t.Errorf("error %v should be a ConfigError", err)
	}
}

func TestAggregateCSV(t *testing.T) {
	dir, err := ioutil.TempDir("", "emitk_run_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	db := newTestDB(t, dir)

	var buf bytes.Buffer
	if err := Aggregate(context.Background(), &buf, db, &AggregateJob{Unit: "kg/s"}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d CSV lines; want 2:\n%s", len(lines), buf.String())
	}
	if want := "code,label,NOx [kg/s]"; lines[0] != want {
		t.Errorf("header = %q; want %q", lines[0], want)
	}
	if want := "total,,1"; lines[1] != want {
		t.Errorf("row = %q; want %q", lines[1], want)
	}
}

func TestWriteGridShapefile(t *testing.T) {
	dir, err := ioutil.TempDir("", "emitk_run_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	db := newTestDB(t, dir)

	if err := WriteGridShapefile(db, dir, "testgrid", 4, 4, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "testgrid.shp")); err != nil {
		t.Errorf("grid shapefile was not written: %v", err)
	}
}
