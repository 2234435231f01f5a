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
	"bytes"
	"crypto/md5"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/airshedmodel/emitk/inventory"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	goshp "github.com/jonas-p/go-shp"
)

// Grid specifies a regular raster grid that emissions are allocated to.
// Rows are ordered north to south, so row 0 holds the northernmost cells
// and row Ny-1 the southernmost. Columns run west to east.
type Grid struct {
	Name string

	// Nx and Ny are the number of columns and rows.
	Nx, Ny int

	// Dx and Dy are the cell edge lengths in the units of SR.
	Dx, Dy float64

	// X0 and Y0 are the coordinates of the southwest corner of the grid.
	X0, Y0 float64

	// SR is the spatial reference system of the grid, and Proj4 is its
	// PROJ.4 definition string.
	SR    *proj.SR
	Proj4 string

	// Extent is the outline of the grid.
	Extent geom.Polygon
}

// NewGrid creates a regular grid named name covering the extent
// {xmin, ymin, xmax, ymax} with nx columns and ny rows, in the spatial
// reference described by the PROJ.4 string proj4.
func NewGrid(name string, nx, ny int, extent [4]float64, proj4 string) (*Grid, error) {
	if nx < 1 || ny < 1 {
		return nil, inventory.ConfigErrorf("grid %s: nx and ny must be at least 1 (got %d and %d)", name, nx, ny)
	}
	x1, y1, x2, y2 := extent[0], extent[1], extent[2], extent[3]
	if x2 <= x1 || y2 <= y1 {
		return nil, inventory.ConfigErrorf("grid %s: invalid extent [%g %g %g %g]", name, x1, y1, x2, y2)
	}
	sr, err := proj.Parse(proj4)
	if err != nil {
		return nil, inventory.ConfigErrorf("grid %s: parsing projection: %v", name, err)
	}
	g := &Grid{
		Name:  name,
		Nx:    nx,
		Ny:    ny,
		Dx:    (x2 - x1) / float64(nx),
		Dy:    (y2 - y1) / float64(ny),
		X0:    x1,
		Y0:    y1,
		SR:    sr,
		Proj4: proj4,
	}
	g.Extent = geom.Polygon{{
		{X: x1, Y: y1},
		{X: x2, Y: y1},
		{X: x2, Y: y2},
		{X: x1, Y: y2},
		{X: x1, Y: y1},
	}}
	return g, nil
}

// Xmax returns the easternmost coordinate of the grid.
func (g *Grid) Xmax() float64 { return g.X0 + float64(g.Nx)*g.Dx }

// Ymax returns the northernmost coordinate of the grid.
func (g *Grid) Ymax() float64 { return g.Y0 + float64(g.Ny)*g.Dy }

// CellIndex returns the row and column of the cell containing point p,
// or ok == false if p lies outside of the grid extent. Points exactly on
// the eastern or northern boundary are assigned to the outermost cell.
func (g *Grid) CellIndex(p geom.Point) (row, col int, ok bool) {
	if p.X < g.X0 || p.X > g.Xmax() || p.Y < g.Y0 || p.Y > g.Ymax() {
		return 0, 0, false
	}
	col = int(math.Floor((p.X - g.X0) / g.Dx))
	if col < 0 {
		col = 0
	} else if col > g.Nx-1 {
		col = g.Nx - 1
	}
	row = g.Ny - int(math.Ceil((p.Y-g.Y0)/g.Dy))
	if row < 0 {
		row = 0
	} else if row > g.Ny-1 {
		row = g.Ny - 1
	}
	return row, col, true
}

// CellPolygon returns the outline of the cell at the given row and column.
func (g *Grid) CellPolygon(row, col int) geom.Polygon {
	x := g.X0 + float64(col)*g.Dx
	yTop := g.Ymax() - float64(row)*g.Dy
	return geom.Polygon{{
		{X: x, Y: yTop - g.Dy},
		{X: x + g.Dx, Y: yTop - g.Dy},
		{X: x + g.Dx, Y: yTop},
		{X: x, Y: yTop},
		{X: x, Y: yTop - g.Dy},
	}}
}

// X returns the x coordinates of the cell centers, ordered west to east.
func (g *Grid) X() []float64 {
	x := make([]float64, g.Nx)
	for i := range x {
		x[i] = g.X0 + (float64(i)+0.5)*g.Dx
	}
	return x
}

// Y returns the y coordinates of the cell centers in row order, so the
// northernmost center comes first.
func (g *Grid) Y() []float64 {
	y := make([]float64, g.Ny)
	for i := range y {
		y[i] = g.Ymax() - (float64(i)+0.5)*g.Dy
	}
	return y
}

// Key returns a unique identifier for this grid definition, suitable for
// use in cache keys and file names.
func (g *Grid) Key() string {
	b := bytes.NewBuffer(nil)
	e := gob.NewEncoder(b)
	if err := e.Encode([]interface{}{g.Name, g.Nx, g.Ny, g.Dx, g.Dy, g.X0, g.Y0, g.Proj4}); err != nil {
		panic(err)
	}
	return fmt.Sprintf("%s_%x", g.Name, md5.Sum(b.Bytes()))
}

// WriteToShp writes the grid cells to a shapefile in directory outdir,
// with the row and column number of each cell as attributes.
func (g *Grid) WriteToShp(outdir string) error {
	for _, ext := range []string{".shp", ".prj", ".dbf", ".shx"} {
		os.Remove(filepath.Join(outdir, g.Name+ext))
	}
	fields := make([]goshp.Field, 2)
	fields[0] = goshp.NumberField("row", 10)
	fields[1] = goshp.NumberField("col", 10)
	shpf, err := shp.NewEncoderFromFields(filepath.Join(outdir, g.Name+".shp"), goshp.POLYGON, fields...)
	if err != nil {
		return fmt.Errorf("rasterize: creating output shapefile: %v", err)
	}
	for row := 0; row < g.Ny; row++ {
		for col := 0; col < g.Nx; col++ {
			if err := shpf.EncodeFields(g.CellPolygon(row, col), row, col); err != nil {
				shpf.Close()
				return fmt.Errorf("rasterize: writing grid cell (%d,%d): %v", row, col, err)
			}
		}
	}
	shpf.Close()
	return nil
}
