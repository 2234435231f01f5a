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
	"database/sql"
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/tealeg/xlsx"

	"github.com/airshedmodel/emitk/temporal"
)

// pointCols maps the recognized point-source spreadsheet headers to their
// column indices. Unused columns stay at -1.
type pointCols struct {
	name, x, y               int
	facilityID, facilityName int
	timevar                  int
	ac                       [3]int
	height, outer, inner     int
	speed, temp              int
	houseWidth, houseHeight  int
	tags                     map[string]int
	substances               map[string]int
}

func readPointHeader(s *xlsx.Sheet, imp *importer) (*pointCols, error) {
	cols := &pointCols{
		name: -1, x: -1, y: -1,
		facilityID: -1, facilityName: -1, timevar: -1,
		ac:     [3]int{-1, -1, -1},
		height: -1, outer: -1, inner: -1, speed: -1, temp: -1,
		houseWidth: -1, houseHeight: -1,
		tags:       make(map[string]int),
		substances: make(map[string]int),
	}
	for c := 0; c < s.MaxCol; c++ {
		h := strings.TrimSpace(s.Cell(0, c).Value)
		switch {
		case h == "name":
			cols.name = c
		case h == "x":
			cols.x = c
		case h == "y":
			cols.y = c
		case h == "facility_id":
			cols.facilityID = c
		case h == "facility_name":
			cols.facilityName = c
		case h == "timevar":
			cols.timevar = c
		case h == "ac1":
			cols.ac[0] = c
		case h == "ac2":
			cols.ac[1] = c
		case h == "ac3":
			cols.ac[2] = c
		case h == "chimney_height":
			cols.height = c
		case h == "chimney_outer_diameter":
			cols.outer = c
		case h == "chimney_inner_diameter":
			cols.inner = c
		case h == "chimney_gas_speed":
			cols.speed = c
		case h == "chimney_gas_temperature":
			cols.temp = c
		case h == "house_width":
			cols.houseWidth = c
		case h == "house_height":
			cols.houseHeight = c
		case strings.HasPrefix(h, "tag:"):
			cols.tags[strings.TrimPrefix(h, "tag:")] = c
		case strings.HasPrefix(h, "subst:"):
			slug := strings.TrimPrefix(h, "subst:")
			if _, ok := imp.substances[slug]; !ok {
				return nil, ConfigErrorf("inventory: cell %s: unknown substance '%s'",
					cellName(0, c), slug)
			}
			cols.substances[slug] = c
		}
	}
	for _, req := range []struct {
		name string
		col  int
	}{{"name", cols.name}, {"x", cols.x}, {"y", cols.y}} {
		if req.col < 0 {
			return nil, ConfigErrorf("inventory: missing required column '%s'", req.name)
		}
	}
	return cols, nil
}

// optFloat parses an optional numeric cell; empty cells are 0.
func optFloat(s *xlsx.Sheet, r, c int) (float64, error) {
	if c < 0 {
		return 0, nil
	}
	v := strings.TrimSpace(s.Cell(r, c).Value)
	if v == "" {
		return 0, nil
	}
	f, err := attrFloat(v)
	if err != nil {
		return 0, fmt.Errorf("inventory: cell %s: %v", cellName(r, c), err)
	}
	return f, nil
}

func optString(s *xlsx.Sheet, r, c int) string {
	if c < 0 {
		return ""
	}
	return strings.TrimSpace(s.Cell(r, c).Value)
}

// ImportPointSourcesXLSX imports point sources from a spreadsheet. The
// first row holds column headers: "name", "x" and "y" are required;
// "facility_id", "facility_name", "timevar", "ac1"-"ac3", the chimney
// parameters, "tag:<key>" and "subst:<slug>" columns are optional.
// Coordinates are interpreted in cfg.Proj4 and emission values in
// cfg.Unit. The whole file imports in one transaction; any invalid cell
// aborts the import.
func (st *Store) ImportPointSourcesXLSX(filename, sheet string, cfg *ImportConfig) (*ImportStats, error) {
	imp, err := st.newImporter(cfg, nil)
	if err != nil {
		return nil, err
	}
	f, err := xlsx.OpenFile(filename)
	if err != nil {
		return nil, fmt.Errorf("inventory: opening %s: %v", filename, err)
	}
	s, ok := f.Sheet[sheet]
	if !ok {
		return nil, fmt.Errorf("inventory: no sheet '%s' in %s", sheet, filename)
	}
	cols, err := readPointHeader(s, imp)
	if err != nil {
		return nil, err
	}

	stats := new(ImportStats)
	err = st.transact(imp.cfg.DryRun, func(tx *sql.Tx) error {
		for r := 1; r < s.MaxRow; r++ {
			name := optString(s, r, cols.name)
			if name == "" {
				continue
			}
			ps := &PointSource{Name: name, Tags: make(map[string]string)}

			x, err := optFloat(s, r, cols.x)
			if err != nil {
				return err
			}
			y, err := optFloat(s, r, cols.y)
			if err != nil {
				return err
			}
			lon, lat, err := imp.transform(x, y)
			if err != nil {
				return fmt.Errorf("inventory: row %d: reprojecting (%g, %g): %v", r+1, x, y, err)
			}
			ps.Geom = geom.Point{X: lon, Y: lat}

			if officialID := optString(s, r, cols.facilityID); officialID != "" {
				if ps.FacilityID, err = addFacility(tx, officialID,
					optString(s, r, cols.facilityName)); err != nil {
					return err
				}
			}
			if ps.TimevarID, err = imp.timevarID(optString(s, r, cols.timevar)); err != nil {
				return fmt.Errorf("inventory: row %d: %v", r+1, err)
			}
			for slot, c := range cols.ac {
				code := optString(s, r, c)
				if code == "" {
					continue
				}
				if err := imp.checkCode(slot, code); err != nil {
					return fmt.Errorf("inventory: cell %s: %v", cellName(r, c), err)
				}
				ps.ActivityCodes[slot] = code
			}
			if ps.ChimneyHeight, err = optFloat(s, r, cols.height); err != nil {
				return err
			}
			if ps.ChimneyOuterDiameter, err = optFloat(s, r, cols.outer); err != nil {
				return err
			}
			if ps.ChimneyInnerDiameter, err = optFloat(s, r, cols.inner); err != nil {
				return err
			}
			if ps.ChimneyGasSpeed, err = optFloat(s, r, cols.speed); err != nil {
				return err
			}
			if ps.ChimneyGasTemperature, err = optFloat(s, r, cols.temp); err != nil {
				return err
			}
			if ps.HouseWidth, err = optFloat(s, r, cols.houseWidth); err != nil {
				return err
			}
			if ps.HouseHeight, err = optFloat(s, r, cols.houseHeight); err != nil {
				return err
			}
			for key, c := range cols.tags {
				if v := optString(s, r, c); v != "" {
					ps.Tags[key] = v
				}
			}
			for slug, c := range cols.substances {
				v := optString(s, r, c)
				if v == "" {
					continue
				}
				val, err := attrFloat(v)
				if err != nil {
					return fmt.Errorf("inventory: cell %s: %v", cellName(r, c), err)
				}
				ps.Substances = append(ps.Substances, &SourceSubstance{
					SubstanceID: imp.substances[slug],
					Value:       val * imp.toSI,
				})
			}

			if err := imp.replaceSource(tx, "point_sources", name, stats); err != nil {
				return err
			}
			if _, err := st.addPointSourceTx(tx, ps); err != nil {
				return err
			}
			stats.Sources++
			stats.Emissions += len(ps.Substances)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ImportTimevarsXLSX imports time-variation profiles from a spreadsheet.
// Each sheet holds one profile named after the sheet: rows 1-24 and
// columns A-G hold the hour-of-day x day-of-week matrix (Monday first),
// and row 25 columns A-L hold the monthly weights.
func (st *Store) ImportTimevarsXLSX(filename string, cfg *ImportConfig) (*ImportStats, error) {
	if cfg == nil {
		cfg = new(ImportConfig)
	}
	f, err := xlsx.OpenFile(filename)
	if err != nil {
		return nil, fmt.Errorf("inventory: opening %s: %v", filename, err)
	}
	existing, err := st.Timevars()
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool)
	for _, tv := range existing {
		names[tv.Name] = true
	}

	stats := new(ImportStats)
	err = st.transact(cfg.DryRun, func(tx *sql.Tx) error {
		for _, s := range f.Sheets {
			hourly := make([][]float64, 24)
			for hr := range hourly {
				hourly[hr] = make([]float64, 7)
				for wd := range hourly[hr] {
					if hourly[hr][wd], err = optFloat(s, hr, wd); err != nil {
						return fmt.Errorf("inventory: sheet %s: %v", s.Name, err)
					}
				}
			}
			monthly := make([]float64, 12)
			for m := range monthly {
				if monthly[m], err = optFloat(s, 24, m); err != nil {
					return fmt.Errorf("inventory: sheet %s: %v", s.Name, err)
				}
			}
			p, err := temporal.NewProfile(hourly, monthly)
			if err != nil {
				return fmt.Errorf("inventory: sheet %s: %v", s.Name, err)
			}
			b, err := encodeProfile(p)
			if err != nil {
				return err
			}
			if names[s.Name] {
				if !cfg.Overwrite {
					return fmt.Errorf("inventory: timevar '%s' already exists; "+
						"enable overwrite to replace it", s.Name)
				}
				if _, err := tx.Exec("UPDATE timevars SET profile = ? WHERE name = ?",
					b, s.Name); err != nil {
					return fmt.Errorf("inventory: updating timevar %s: %v", s.Name, err)
				}
				stats.Replaced++
			} else if _, err := tx.Exec(
				"INSERT INTO timevars (name, profile) VALUES (?, ?)", s.Name, b); err != nil {
				return fmt.Errorf("inventory: adding timevar %s: %v", s.Name, err)
			}
			stats.Timevars++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
