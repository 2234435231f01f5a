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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cast"

	"github.com/airshedmodel/emitk/inventory"
)

// A RasterizeJob holds the parameters of one rasterization run. It can be
// filled from command-line flags or decoded from a TOML job file.
type RasterizeJob struct {
	// Output is the directory the NetCDF raster files are written to.
	Output string

	// GridName names the output grid; Nx and Ny are its dimensions.
	// Extent ({x1, y1, x2, y2}) and Proj4 default to the inventory
	// domain and projection when empty.
	GridName string
	Nx, Ny   int
	Extent   []float64
	Proj4    string

	// Substances lists the substance slugs to rasterize. Empty means
	// every substance with emission data.
	Substances []string

	// Begin and End delimit the output time series (inclusive). If both
	// are empty a single time-averaged raster is written.
	Begin, End string

	// Unit is the output emission unit; empty means kg/s.
	Unit string

	// SourceTypes restricts the run to the given source types ("point",
	// "area"). Empty means all.
	SourceTypes []string

	// Name, Tags and IDs filter the included sources; see the
	// corresponding inventory.QueryFilter fields. Tags entries have the
	// form "key=value" or "key!=value".
	Name string
	Tags []string
	IDs  []int64

	// Cache is a directory where computed cell weights are persisted
	// between runs; empty disables persistence.
	Cache string

	// Subcells is the area-source super-sampling factor; values < 1
	// select the default.
	Subcells int
}

// ReadRasterizeJob decodes a RasterizeJob from a TOML file.
func ReadRasterizeJob(filename string) (*RasterizeJob, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("emitk: opening job file: %v", err)
	}
	defer f.Close()
	job := new(RasterizeJob)
	if _, err := toml.DecodeReader(f, job); err != nil {
		return nil, fmt.Errorf("emitk: decoding job file %s: %v", filename, err)
	}
	return job, nil
}

// rasterizeJobFromFlags fills a RasterizeJob from the bound flags.
func rasterizeJobFromFlags() (*RasterizeJob, error) {
	extent, err := parseExtent(Cfg.GetString("extent"))
	if err != nil {
		return nil, err
	}
	ids, err := parseIDs(Cfg.GetStringSlice("ids"))
	if err != nil {
		return nil, err
	}
	return &RasterizeJob{
		Output:      os.ExpandEnv(Cfg.GetString("output")),
		GridName:    Cfg.GetString("gridname"),
		Nx:          Cfg.GetInt("nx"),
		Ny:          Cfg.GetInt("ny"),
		Extent:      extent,
		Proj4:       Cfg.GetString("proj4"),
		Substances:  Cfg.GetStringSlice("substances"),
		Begin:       Cfg.GetString("begin"),
		End:         Cfg.GetString("end"),
		Unit:        Cfg.GetString("unit"),
		SourceTypes: Cfg.GetStringSlice("sourcetypes"),
		Name:        Cfg.GetString("name"),
		Tags:        Cfg.GetStringSlice("tags"),
		IDs:         ids,
		Cache:       os.ExpandEnv(Cfg.GetString("cache")),
		Subcells:    Cfg.GetInt("subcells"),
	}, nil
}

// An AggregateJob holds the parameters of one aggregation report.
type AggregateJob struct {
	// Substances, Name, Tags and IDs filter the included emissions the
	// same way the RasterizeJob fields do.
	Substances []string
	Name       string
	Tags       []string
	IDs        []int64

	// CodeSet optionally groups the report by the codes of one
	// activity-code set.
	CodeSet string

	// Unit is the report unit; empty means ton/year.
	Unit string
}

func aggregateJobFromFlags() (*AggregateJob, error) {
	ids, err := parseIDs(Cfg.GetStringSlice("ids"))
	if err != nil {
		return nil, err
	}
	return &AggregateJob{
		Substances: Cfg.GetStringSlice("substances"),
		Name:       Cfg.GetString("name"),
		Tags:       Cfg.GetStringSlice("tags"),
		IDs:        ids,
		CodeSet:    Cfg.GetString("codeset"),
		Unit:       Cfg.GetString("unit"),
	}, nil
}

// timeFormats are the layouts accepted for the begin and end parameters.
var timeFormats = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTime parses a timestamp in one of the accepted layouts,
// interpreted as UTC unless the layout carries a zone.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, inventory.ConfigErrorf(
		"emitk: invalid timestamp '%s'; expected e.g. '2006-01-02 15:04'", s)
}

// parseExtent parses a whitespace-separated 'x1 y1 x2 y2' bounding box.
// The empty string means no extent was given.
func parseExtent(s string) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	if len(fields) != 4 {
		return nil, inventory.ConfigErrorf(
			"emitk: invalid extent '%s'; expected 'x1 y1 x2 y2'", s)
	}
	extent := make([]float64, 4)
	for i, f := range fields {
		v, err := cast.ToFloat64E(f)
		if err != nil {
			return nil, inventory.ConfigErrorf("emitk: invalid extent coordinate '%s'", f)
		}
		extent[i] = v
	}
	return extent, nil
}

func checkExtent(s string) ([4]float64, error) {
	extent, err := parseExtent(s)
	if err != nil {
		return [4]float64{}, err
	}
	if extent == nil {
		return [4]float64{}, inventory.ConfigErrorf(
			"emitk: an extent is required ('x1 y1 x2 y2')")
	}
	var o [4]float64
	copy(o[:], extent)
	return o, nil
}

func checkCodeSets(slugs []string) [3]string {
	var o [3]string
	copy(o[:], slugs)
	return o
}

func parseIDs(s []string) ([]int64, error) {
	var ids []int64
	for _, v := range s {
		id, err := cast.ToInt64E(v)
		if err != nil {
			return nil, inventory.ConfigErrorf("emitk: invalid source id '%s'", v)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parseTags converts "key=value" and "key!=value" entries to tag
// predicates.
func parseTags(tags []string) (map[string]inventory.TagFilter, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	o := make(map[string]inventory.TagFilter)
	for _, t := range tags {
		if i := strings.Index(t, "!="); i > 0 {
			o[t[:i]] = inventory.TagFilter{Value: t[i+2:], Negate: true}
			continue
		}
		if i := strings.Index(t, "="); i > 0 {
			o[t[:i]] = inventory.TagFilter{Value: t[i+1:]}
			continue
		}
		return nil, inventory.ConfigErrorf(
			"emitk: invalid tag filter '%s'; expected 'key=value' or 'key!=value'", t)
	}
	return o, nil
}
