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
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/airshedmodel/emitk/inventory"
	"github.com/airshedmodel/emitk/rasterize"
)

// InitDB creates a new inventory database at path with the given
// settings.
func InitDB(path string, settings *inventory.Settings) error {
	st, err := inventory.Create(os.ExpandEnv(path), settings)
	if err != nil {
		return err
	}
	defer st.Close()
	logrus.WithFields(logrus.Fields{"db": path}).Info("created inventory database")
	return nil
}

func openStore() (*inventory.Store, error) {
	return inventory.Open(os.ExpandEnv(Cfg.GetString("db")))
}

type importKind int

const (
	importPoints importKind = iota
	importAreas
	importTimevars
)

// runImport executes one of the import subcommands against the flag-bound
// configuration.
func runImport(kind importKind) error {
	file := os.ExpandEnv(Cfg.GetString("file"))
	if file == "" {
		return inventory.ConfigErrorf("emitk: an input file is required (--file)")
	}
	var cfg *inventory.ImportConfig
	if path := Cfg.GetString("importconfig"); path != "" {
		var err error
		if cfg, err = inventory.ReadImportConfig(os.ExpandEnv(path)); err != nil {
			return err
		}
	} else {
		cfg = new(inventory.ImportConfig)
	}
	if Cfg.GetBool("dry-run") {
		cfg.DryRun = true
	}
	if Cfg.GetBool("overwrite") {
		cfg.Overwrite = true
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	var stats *inventory.ImportStats
	switch kind {
	case importPoints:
		stats, err = st.ImportPointSourcesXLSX(file, Cfg.GetString("sheet"), cfg)
	case importAreas:
		stats, err = st.ImportAreaSourcesShapefile(file, cfg)
	case importTimevars:
		stats, err = st.ImportTimevarsXLSX(file, cfg)
	}
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"sources":   stats.Sources,
		"emissions": stats.Emissions,
		"timevars":  stats.Timevars,
		"replaced":  stats.Replaced,
		"dryrun":    cfg.DryRun,
	}).Info("import finished")
	return nil
}

// jobGrid builds the output grid of a job, defaulting the extent and
// projection to the inventory settings.
func jobGrid(settings *inventory.Settings, name string, nx, ny int, extent []float64, proj4 string) (*rasterize.Grid, error) {
	if name == "" {
		name = "grid"
	}
	var e [4]float64
	switch len(extent) {
	case 0:
		e = settings.Extent
	case 4:
		copy(e[:], extent)
	default:
		return nil, inventory.ConfigErrorf("emitk: invalid extent %v; expected 4 values", extent)
	}
	if proj4 == "" {
		proj4 = settings.Proj4
	}
	return rasterize.NewGrid(name, nx, ny, e, proj4)
}

// jobSubstances resolves substance slugs, defaulting to every substance
// with emission data.
func jobSubstances(ctx context.Context, st *inventory.Store, slugs []string) ([]*inventory.Substance, error) {
	if len(slugs) == 0 {
		return st.UsedSubstances(ctx)
	}
	substances := make([]*inventory.Substance, len(slugs))
	for i, slug := range slugs {
		s, err := st.SubstanceBySlug(slug)
		if err != nil {
			return nil, err
		}
		substances[i] = s
	}
	return substances, nil
}

// Rasterize runs one rasterization job against the inventory database at
// db.
func Rasterize(ctx context.Context, db string, job *RasterizeJob) error {
	st, err := inventory.Open(os.ExpandEnv(db))
	if err != nil {
		return err
	}
	defer st.Close()
	settings, err := st.Settings()
	if err != nil {
		return err
	}
	grid, err := jobGrid(settings, job.GridName, job.Nx, job.Ny, job.Extent, job.Proj4)
	if err != nil {
		return err
	}
	substances, err := jobSubstances(ctx, st, job.Substances)
	if err != nil {
		return err
	}
	if len(substances) == 0 {
		logrus.Info("the inventory holds no emission data")
		return nil
	}
	tags, err := parseTags(job.Tags)
	if err != nil {
		return err
	}

	req := &rasterize.Request{
		Substances: substances,
		Unit:       job.Unit,
		Filter: inventory.QueryFilter{
			Name: job.Name,
			Tags: tags,
			IDs:  job.IDs,
		},
	}
	for _, t := range job.SourceTypes {
		req.SourceTypes = append(req.SourceTypes, inventory.SourceType(t))
	}
	if job.Begin != "" || job.End != "" {
		if req.Begin, err = parseTime(job.Begin); err != nil {
			return err
		}
		if req.End, err = parseTime(job.End); err != nil {
			return err
		}
	}

	r := rasterize.New(st, grid, *settings, job.Output)
	if job.Subcells > 0 {
		r.Subcells = job.Subcells
	}
	r.WeightCachePath = job.Cache
	return r.Process(ctx, req)
}

// Aggregate prints the emission totals that pass the job's filter as CSV
// to w: one row per activity code (or a single total row), one column
// per substance.
func Aggregate(ctx context.Context, w io.Writer, db string, job *AggregateJob) error {
	st, err := inventory.Open(os.ExpandEnv(db))
	if err != nil {
		return err
	}
	defer st.Close()
	units := job.Unit
	if units == "" {
		units = "ton/year"
	}
	tags, err := parseTags(job.Tags)
	if err != nil {
		return err
	}
	filter := &inventory.QueryFilter{
		Name: job.Name,
		Tags: tags,
		IDs:  job.IDs,
	}
	for _, slug := range job.Substances {
		s, err := st.SubstanceBySlug(slug)
		if err != nil {
			return err
		}
		filter.Substances = append(filter.Substances, s.ID)
	}

	totals, err := st.AggregateEmissions(ctx, filter, job.CodeSet, units)
	if err != nil {
		return err
	}

	// One column per substance appearing in any row, in stable order.
	slugSet := make(map[string]bool)
	for _, row := range totals {
		for slug := range row.Totals {
			slugSet[slug] = true
		}
	}
	slugs := make([]string, 0, len(slugSet))
	for slug := range slugSet {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)

	cw := csv.NewWriter(w)
	header := []string{"code", "label"}
	for _, slug := range slugs {
		header = append(header, fmt.Sprintf("%s [%s]", slug, units))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range totals {
		record := []string{row.Code, row.Label}
		for _, slug := range slugs {
			record = append(record, strconv.FormatFloat(row.Totals[slug], 'g', -1, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteGridShapefile exports the output grid cells to a shapefile in
// directory outdir.
func WriteGridShapefile(db, outdir, name string, nx, ny int, extent, proj4 string) error {
	st, err := inventory.Open(os.ExpandEnv(db))
	if err != nil {
		return err
	}
	defer st.Close()
	settings, err := st.Settings()
	if err != nil {
		return err
	}
	e, err := parseExtent(extent)
	if err != nil {
		return err
	}
	grid, err := jobGrid(settings, name, nx, ny, e, proj4)
	if err != nil {
		return err
	}
	if err := grid.WriteToShp(os.ExpandEnv(outdir)); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"grid": grid.Name, "nx": nx, "ny": ny, "dir": outdir,
	}).Info("wrote grid shapefile")
	return nil
}
