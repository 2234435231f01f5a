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

// Package rasterize computes spatially and temporally resolved emission
// rasters from an emission inventory.
//
// A Rasterizer queries emission records per source type, computes the
// grid-cell weights of each source geometry once, pages records and
// weights through a bounded-memory cache, applies time-variation
// scaling, and writes one NetCDF file per substance, either as a single
// time-averaged field or as an hourly time series written in chunks.
// Values are computed in SI kg/s and converted to the requested output
// unit just before writing.
package rasterize

import (
	"context"
	"fmt"
	"time"

	"github.com/ctessum/geom/proj"
	"github.com/ctessum/sparse"
	"github.com/sirupsen/logrus"

	"github.com/airshedmodel/emitk/inventory"
	"github.com/airshedmodel/emitk/temporal"
)

// chunkByteBudget is the maximum size in bytes of one in-memory time
// chunk (single-precision values).
const chunkByteBudget = 1e8

// hoursPerYear caps the chunk length at one year of hourly timesteps.
const hoursPerYear = 8760

// An Inventory answers the emission queries and profile lookups that a
// Rasterizer needs. *inventory.Store implements it.
type Inventory interface {
	// QueryEmissions returns the filtered emission records of one source
	// type, with geometries in the target spatial reference.
	QueryEmissions(ctx context.Context, typ inventory.SourceType, f *inventory.QueryFilter, target *proj.SR) ([]*inventory.EmissionRecord, error)

	// Timevars returns all stored time-variation profiles.
	Timevars() ([]*inventory.Timevar, error)
}

// A Request describes one rasterization run.
type Request struct {
	// Substances to rasterize. One output file is written per substance
	// that has any emissions within the requested extent.
	Substances []*inventory.Substance

	// Begin and End select time-series mode: hourly rasters are written
	// for every interval from Begin to End (inclusive). If both are
	// zero, a single time-averaged raster is written instead.
	Begin, End time.Time

	// SourceTypes restricts the run to the given source types. Empty
	// means all supported types.
	SourceTypes []inventory.SourceType

	// Unit is the output emission unit ("<mass>/<time>"); empty means
	// kg/s.
	Unit string

	// Filter restricts the included sources. A zero Polygon is replaced
	// by the grid extent.
	Filter inventory.QueryFilter
}

// A Rasterizer converts filtered sets of emission sources into gridded
// NetCDF emission fields. The same Rasterizer can be reused for
// subsequent independent Process calls.
type Rasterizer struct {
	// Subcells is the super-sampling factor for area-source coverage
	// estimates; each grid cell is sampled at Subcells×Subcells points.
	// Values < 1 select the default of 2.
	Subcells int

	// PageSize overrides the number of sources per cache page.
	PageSize int

	// WeightCachePath optionally persists computed cell weights between
	// program runs.
	WeightCachePath string

	// ChunkBytes overrides the byte budget of one in-memory time chunk;
	// values < 1 select the default of 1e8.
	ChunkBytes float64

	Log logrus.FieldLogger

	inv      Inventory
	grid     *Grid
	settings inventory.Settings
	outDir   string
	weights  *weightCalculator

	// Per-run state, reset at the end of every Process call.
	unitFactor float64
	files      map[int64]string
	scalers    map[int64]*temporal.Scaler
}

// New creates a Rasterizer that reads emissions from inv and writes one
// NetCDF file per substance to outputDir.
func New(inv Inventory, grid *Grid, settings inventory.Settings, outputDir string) *Rasterizer {
	return &Rasterizer{
		Subcells: 2,
		Log:      logrus.StandardLogger(),
		inv:      inv,
		grid:     grid,
		settings: settings,
		outDir:   outputDir,
	}
}

// reset clears the per-run state so that the Rasterizer can be reused.
// It is idempotent and also runs when Process fails.
func (r *Rasterizer) reset() {
	r.unitFactor = 0
	r.files = nil
	r.scalers = nil
}

// Process runs one rasterization. If no emission data matches the
// request, it returns nil without creating any output file.
func (r *Rasterizer) Process(ctx context.Context, req *Request) error {
	defer r.reset()

	sourceTypes := req.SourceTypes
	if len(sourceTypes) == 0 {
		sourceTypes = inventory.SourceTypes
	}
	for _, st := range sourceTypes {
		if !st.Valid() {
			return inventory.ConfigErrorf("rasterize: unsupported source type '%s'", st)
		}
	}
	units := req.Unit
	if units == "" {
		units = "kg/s"
	}
	var err error
	r.unitFactor, err = inventory.EmisConversionFactorFromSI(units)
	if err != nil {
		return err
	}
	timeseries := !req.Begin.IsZero() || !req.End.IsZero()
	var begin, end time.Time
	if timeseries {
		begin = req.Begin.UTC().Truncate(time.Hour)
		end = req.End.UTC().Truncate(time.Hour)
		if begin.IsZero() || end.IsZero() || end.Before(begin) {
			return inventory.ConfigErrorf("rasterize: invalid time range %v - %v", req.Begin, req.End)
		}
	}
	filter := req.Filter
	if len(filter.Polygon) == 0 {
		filter.Polygon = r.grid.Extent
	}
	if len(filter.Substances) == 0 {
		for _, s := range req.Substances {
			filter.Substances = append(filter.Substances, s.ID)
		}
	}
	if r.weights == nil {
		r.weights = newWeightCalculator(r.grid, r.Subcells, r.WeightCachePath, defaultPageSize)
	}

	cache, err := OpenCache(r.PageSize)
	if err != nil {
		return err
	}
	defer cache.Close()

	for _, st := range sourceTypes {
		r.Log.WithFields(logrus.Fields{"sourcetype": st}).Debug("querying emissions")
		recs, err := r.inv.QueryEmissions(ctx, st, &filter, r.grid.SR)
		if err != nil {
			return err
		}
		r.Log.WithFields(logrus.Fields{"sourcetype": st, "records": len(recs)}).Debug("computing cell weights")
		for _, rec := range recs {
			var w *sparse.SparseArray
			if !cache.Seen(st, rec.SourceID) {
				if w, err = r.weights.Weights(ctx, rec.SourceID, rec.Geom); err != nil {
					return err
				}
			}
			if err := cache.AddRecord(rec, st, w); err != nil {
				return err
			}
		}
		if err := cache.Flush(st); err != nil {
			return err
		}
	}

	r.files = make(map[int64]string)
	for _, s := range req.Substances {
		for _, st := range sourceTypes {
			if cache.HasSubstance(st, s.ID) {
				path := outputFileName(r.outDir, s)
				if err := createOutputFile(path, r.grid, s, units, timeseries); err != nil {
					return err
				}
				r.files[s.ID] = path
				break
			}
		}
	}
	if len(r.files) == 0 {
		r.Log.Info("no emissions found within requested extent")
		return nil
	}

	if timeseries {
		if err := r.prepareScalers(cache); err != nil {
			return err
		}
		return r.processTimeseries(cache, req.Substances, sourceTypes, begin, end)
	}
	return r.processAverage(cache, req.Substances, sourceTypes)
}

// prepareScalers builds one normalized scaling evaluator per
// time-variation profile referenced by the cached records. Profile id 0
// is the flat default.
func (r *Rasterizer) prepareScalers(cache *Cache) error {
	loc, err := r.settings.Location()
	if err != nil {
		return err
	}
	var tvars []*inventory.Timevar
	r.scalers = make(map[int64]*temporal.Scaler)
	for _, id := range cache.TimevarIDs() {
		if id == 0 {
			if r.scalers[0], err = temporal.NewScaler(temporal.Default(), loc); err != nil {
				return err
			}
			continue
		}
		if tvars == nil {
			if tvars, err = r.inv.Timevars(); err != nil {
				return err
			}
		}
		var tv *inventory.Timevar
		for _, t := range tvars {
			if t.ID == id {
				tv = t
				break
			}
		}
		if tv == nil {
			return fmt.Errorf("rasterize: missing time-variation profile %d", id)
		}
		s, err := temporal.NewScaler(tv.Profile, loc)
		if err != nil {
			return inventory.ConfigErrorf("rasterize: time-variation profile '%s': %v", tv.Name, err)
		}
		r.scalers[id] = s
	}
	return nil
}

// processAverage accumulates, per substance, emission_value × cell_weight
// over all cached pages into one (ny, nx) raster.
func (r *Rasterizer) processAverage(cache *Cache, substances []*inventory.Substance, sourceTypes []inventory.SourceType) error {
	for _, s := range substances {
		path, ok := r.files[s.ID]
		if !ok {
			continue
		}
		r.Log.WithFields(logrus.Fields{"substance": s.Slug}).Debug("calculating average emissions")
		chunk := sparse.ZerosDense(r.grid.Ny, r.grid.Nx)
		for _, st := range sourceTypes {
			if !cache.HasSourceType(st) {
				continue
			}
			for page := 0; page < cache.EmissionPageCount(st, s.ID); page++ {
				weights, err := cache.ReadWeights(st, page)
				if err == ErrNotInCache {
					break
				} else if err != nil {
					return err
				}
				recs, err := cache.ReadEmissions(st, s.ID, page)
				if err == ErrNotInCache {
					break
				} else if err != nil {
					return err
				}
				for _, rec := range recs {
					w := weights[rec.SourceID]
					for i, wv := range w.Elements {
						chunk.Elements[i] += rec.Emission * wv
					}
				}
			}
		}
		chunk.Scale(r.unitFactor)
		if err := writeAverage(path, s, chunk); err != nil {
			return err
		}
	}
	return nil
}

// chunkLength returns the number of hourly timesteps processed per
// chunk: at most one year of hours, at most what fits the chunk byte
// budget at single precision, and at least 1.
func (r *Rasterizer) chunkLength(totalSteps int) int {
	budget := r.ChunkBytes
	if budget < 1 {
		budget = chunkByteBudget
	}
	n := int(budget / (4 * float64(r.grid.Nx) * float64(r.grid.Ny)))
	if n > hoursPerYear {
		n = hoursPerYear
	}
	if n > totalSteps {
		n = totalSteps
	}
	if n < 1 {
		n = 1
	}
	return n
}

// processTimeseries splits [begin, end] into contiguous chunks, scales
// each cached record by its profile's hourly factors, and appends the
// resulting (timesteps, ny, nx) rasters to the output files.
func (r *Rasterizer) processTimeseries(cache *Cache, substances []*inventory.Substance, sourceTypes []inventory.SourceType, begin, end time.Time) error {
	totalSteps := int(end.Sub(begin).Hours()) + 1
	chunkLen := r.chunkLength(totalSteps)
	spatialSize := r.grid.Ny * r.grid.Nx

	for offset := 0; offset < totalSteps; offset += chunkLen {
		steps := chunkLen
		if offset+steps > totalSteps {
			steps = totalSteps - offset
		}
		chunkBegin := begin.Add(time.Duration(offset) * time.Hour)
		r.Log.WithFields(logrus.Fields{
			"begin": chunkBegin.Format("2006-01-02 15:04"),
			"steps": steps,
		}).Debug("processing time chunk")

		// Hourly scaling factors for every profile, for exactly this
		// chunk's hour range.
		scalings := make(map[int64][]float64, len(r.scalers))
		for id, s := range r.scalers {
			scalings[id] = s.Series(chunkBegin, steps)
		}

		for _, s := range substances {
			path, ok := r.files[s.ID]
			if !ok {
				continue
			}
			chunk := sparse.ZerosDense(steps, r.grid.Ny, r.grid.Nx)
			for _, st := range sourceTypes {
				if !cache.HasSourceType(st) {
					continue
				}
				for page := 0; page < cache.EmissionPageCount(st, s.ID); page++ {
					weights, err := cache.ReadWeights(st, page)
					if err == ErrNotInCache {
						break
					} else if err != nil {
						return err
					}
					recs, err := cache.ReadEmissions(st, s.ID, page)
					if err == ErrNotInCache {
						break
					} else if err != nil {
						return err
					}
					for _, rec := range recs {
						scaling := scalings[rec.TimevarID]
						w := weights[rec.SourceID]
						for i, wv := range w.Elements {
							ew := rec.Emission * wv
							for t := 0; t < steps; t++ {
								chunk.Elements[t*spatialSize+i] += scaling[t] * ew
							}
						}
					}
				}
			}
			chunk.Scale(r.unitFactor)
			if err := writeTimeChunk(path, s, offset, chunkBegin, chunk); err != nil {
				return err
			}
		}
	}
	return nil
}
