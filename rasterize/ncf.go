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
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"

	"github.com/airshedmodel/emitk/inventory"
)

// timeEpoch is the reference time of the output time coordinate.
var timeEpoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

const timeUnits = "hours since 2000-01-01 00:00:00 UTC"

func hoursSinceEpoch(t time.Time) float64 {
	return t.Sub(timeEpoch).Hours()
}

// outputFileName returns the path of the output file for one substance.
func outputFileName(dir string, s *inventory.Substance) string {
	return filepath.Join(dir, "emission_"+s.Slug+".nc")
}

func emissionVarName(s *inventory.Substance) string {
	return "emission_" + s.Slug
}

// createOutputFile creates (or overwrites) the NetCDF output file for
// one substance and writes its coordinate variables. In time-series
// mode the time axis is an initially empty record dimension that chunks
// are appended to.
func createOutputFile(path string, g *Grid, s *inventory.Substance, units string, timeseries bool) error {
	varName := emissionVarName(s)
	var h *cdf.Header
	if timeseries {
		h = cdf.NewHeader([]string{"time", "nv", "y", "x"}, []int{0, 2, g.Ny, g.Nx})
		h.AddVariable("time", []string{"time"}, []float64{0})
		h.AddAttribute("time", "units", timeUnits)
		h.AddAttribute("time", "calendar", "gregorian")
		h.AddAttribute("time", "bounds", "time_bnds")
		h.AddVariable("time_bnds", []string{"time", "nv"}, []float64{0})
		h.AddVariable(varName, []string{"time", "y", "x"}, []float32{0})
	} else {
		h = cdf.NewHeader([]string{"y", "x"}, []int{g.Ny, g.Nx})
		h.AddVariable(varName, []string{"y", "x"}, []float32{0})
	}
	h.AddVariable("x", []string{"x"}, []float64{0})
	h.AddAttribute("x", "long_name", "x coordinate of cell center")
	h.AddVariable("y", []string{"y"}, []float64{0})
	h.AddAttribute("y", "long_name", "y coordinate of cell center")
	h.AddVariable("crs", []string{}, []int32{0})
	h.AddAttribute("crs", "proj4", g.Proj4)
	h.AddAttribute(varName, "units", units)
	h.AddAttribute(varName, "long_name", "Emission of "+s.Name)
	h.AddAttribute(varName, "grid_mapping", "crs")
	h.Define()
	for _, err := range h.Check() {
		return fmt.Errorf("rasterize: preparing output file %s: %v", path, err)
	}

	ff, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("rasterize: creating output file %s: %v", path, err)
	}
	f, err := cdf.Create(ff, h)
	if err != nil {
		ff.Close()
		return fmt.Errorf("rasterize: creating output file %s: %v", path, err)
	}
	if _, err := f.Writer("x", []int{0}, []int{g.Nx}).Write(g.X()); err != nil {
		ff.Close()
		return fmt.Errorf("rasterize: writing x coordinates to %s: %v", path, err)
	}
	if _, err := f.Writer("y", []int{0}, []int{g.Ny}).Write(g.Y()); err != nil {
		ff.Close()
		return fmt.Errorf("rasterize: writing y coordinates to %s: %v", path, err)
	}
	return ff.Close()
}

// openOutputFile opens an existing output file for appending.
func openOutputFile(path string) (*os.File, *cdf.File, error) {
	ff, err := os.OpenFile(path, os.O_RDWR, os.ModePerm)
	if err != nil {
		return nil, nil, fmt.Errorf("rasterize: opening output file %s: %v", path, err)
	}
	f, err := cdf.Open(ff)
	if err != nil {
		ff.Close()
		return nil, nil, fmt.Errorf("rasterize: opening output file %s: %v", path, err)
	}
	return ff, f, nil
}

// writeAverage writes a time-averaged emission raster. chunk has shape
// (ny, nx).
func writeAverage(path string, s *inventory.Substance, chunk *sparse.DenseArray) error {
	ff, f, err := openOutputFile(path)
	if err != nil {
		return err
	}
	defer ff.Close()
	ny, nx := chunk.Shape[0], chunk.Shape[1]
	data := make([]float32, len(chunk.Elements))
	for i, v := range chunk.Elements {
		data[i] = float32(v)
	}
	w := f.Writer(emissionVarName(s), []int{0, 0}, []int{ny, nx})
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("rasterize: writing %s to %s: %v", emissionVarName(s), path, err)
	}
	return ff.Close()
}

// writeTimeChunk appends one time chunk to an output file, starting at
// the given timestep offset. chunk has shape (timesteps, ny, nx); begin
// is the start of the chunk's first hourly interval. The file is opened
// and closed per chunk so that each successfully written chunk is
// durable before the next one is computed.
func writeTimeChunk(path string, s *inventory.Substance, offset int, begin time.Time, chunk *sparse.DenseArray) error {
	ff, f, err := openOutputFile(path)
	if err != nil {
		return err
	}
	defer ff.Close()
	steps, ny, nx := chunk.Shape[0], chunk.Shape[1], chunk.Shape[2]

	data := make([]float32, len(chunk.Elements))
	for i, v := range chunk.Elements {
		data[i] = float32(v)
	}
	w := f.Writer(emissionVarName(s), []int{offset, 0, 0}, []int{offset + steps, ny, nx})
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("rasterize: writing %s to %s: %v", emissionVarName(s), path, err)
	}

	// Timestamps label the start of each hourly interval; the bounds
	// variable holds the full interval.
	times := make([]float64, steps)
	bounds := make([]float64, 2*steps)
	for i := range times {
		t := begin.Add(time.Duration(i) * time.Hour)
		times[i] = hoursSinceEpoch(t)
		bounds[2*i] = times[i]
		bounds[2*i+1] = hoursSinceEpoch(t.Add(time.Hour))
	}
	if _, err := f.Writer("time", []int{offset}, []int{offset + steps}).Write(times); err != nil {
		return fmt.Errorf("rasterize: writing time coordinates to %s: %v", path, err)
	}
	if _, err := f.Writer("time_bnds", []int{offset, 0}, []int{offset + steps, 2}).Write(bounds); err != nil {
		return fmt.Errorf("rasterize: writing time bounds to %s: %v", path, err)
	}
	if err := cdf.UpdateNumRecs(ff); err != nil {
		return fmt.Errorf("rasterize: finalizing %s: %v", path, err)
	}
	return ff.Close()
}
