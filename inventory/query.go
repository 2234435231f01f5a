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
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/geojson"
	"github.com/ctessum/geom/proj"
)

// secPerYear converts activity rates per year to rates per second.
const secPerYear = 31536000.

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// validateFilter checks the parts of f that can be wrong independently of
// the data, so that configuration errors surface before any rows are read.
func (st *Store) validateFilter(f *QueryFilter) (*regexp.Regexp, error) {
	var nameRE *regexp.Regexp
	if f.Name != "" {
		var err error
		if nameRE, err = regexp.Compile(f.Name); err != nil {
			return nil, ConfigErrorf("inventory: invalid name filter '%s': %v", f.Name, err)
		}
	}
	var settings *Settings
	for i, codes := range [3][]string{f.AC1, f.AC2, f.AC3} {
		if len(codes) == 0 {
			continue
		}
		if settings == nil {
			var err error
			if settings, err = st.Settings(); err != nil {
				return nil, err
			}
		}
		slug := settings.CodeSets[i]
		if slug == "" {
			return nil, ConfigErrorf("inventory: no code set configured in slot %d", i+1)
		}
		for _, c := range codes {
			ok, err := st.hasActivityCode(slug, c)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, ConfigErrorf("inventory: unknown activity code '%s' in code set '%s'", c, slug)
			}
		}
	}
	return nameRE, nil
}

// matchTags applies the per-key tag predicates to a source's tags.
func matchTags(tags map[string]string, filters map[string]TagFilter) bool {
	for key, tf := range filters {
		v, ok := tags[key]
		if tf.Negate {
			if ok && v == tf.Value {
				return false
			}
		} else if !ok || v != tf.Value {
			return false
		}
	}
	return true
}

// intersects reports whether g intersects poly. Both must be in the same
// spatial reference.
func intersects(g geom.Geom, poly geom.Polygon) bool {
	switch t := g.(type) {
	case geom.Point:
		return t.Within(poly) != geom.Outside
	case geom.Polygonal:
		if !t.Bounds().Overlaps(poly.Bounds()) {
			return false
		}
		return t.Intersection(poly).Area() > 0
	}
	return false
}

// QueryEmissions returns the total emission rate in kg/s of each
// (source, substance) pair of the given source type that passes the
// filter. Direct substance emissions and activity-rate emissions are
// summed together. Geometries are returned in the target spatial
// reference; a nil target leaves them in WGS84.
func (st *Store) QueryEmissions(ctx context.Context, typ SourceType, f *QueryFilter, target *proj.SR) ([]*EmissionRecord, error) {
	if !typ.Valid() {
		return nil, ConfigErrorf("inventory: unsupported source type '%s'", typ)
	}
	if f == nil {
		f = new(QueryFilter)
	}
	nameRE, err := st.validateFilter(f)
	if err != nil {
		return nil, err
	}

	// Transform source geometries out of storage coordinates, and the
	// filter polygon into them.
	var toTarget proj.Transformer
	var filterPoly geom.Polygon
	if target != nil || len(f.Polygon) > 0 {
		wgs84, err := proj.Parse(WGS84)
		if err != nil {
			return nil, fmt.Errorf("inventory: parsing WGS84: %v", err)
		}
		if target != nil {
			if toTarget, err = wgs84.NewTransform(target); err != nil {
				return nil, fmt.Errorf("inventory: creating coordinate transform: %v", err)
			}
		}
		if len(f.Polygon) > 0 {
			from := target
			if from == nil {
				from = wgs84
			}
			g, err := Reproject(f.Polygon, from, wgs84)
			if err != nil {
				return nil, err
			}
			filterPoly = g.(geom.Polygon)
		}
	}

	table := string(typ) + "_source"
	var conds []string
	var args []interface{}
	if len(f.Substances) > 0 {
		conds = append(conds, "rec.substance_id IN ("+placeholders(len(f.Substances))+")")
		for _, id := range f.Substances {
			args = append(args, id)
		}
	}
	if len(f.IDs) > 0 {
		conds = append(conds, "src.id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	for i, codes := range [3][]string{f.AC1, f.AC2, f.AC3} {
		if len(codes) == 0 {
			continue
		}
		col := fmt.Sprintf("src.ac%d", i+1)
		ors := make([]string, len(codes))
		for j, c := range codes {
			// A code matches itself and everything below it.
			ors[j] = "(" + col + " = ? OR " + col + " LIKE ? || '.%')"
			args = append(args, c, c)
		}
		conds = append(conds, "("+strings.Join(ors, " OR ")+")")
	}

	q := `SELECT src.id, src.name, src.timevar_id, src.tags, src.geom,
			rec.substance_id, SUM(rec.emis)
		FROM (
			SELECT source_id, substance_id, value AS emis
				FROM ` + table + `_substances
			UNION ALL
			SELECT sa.source_id, ef.substance_id, sa.rate * ef.factor / ` +
		fmt.Sprintf("%.1f", secPerYear) + `
				FROM ` + table + `_activities sa
				JOIN emission_factors ef ON ef.activity_id = sa.activity_id
		) rec
		JOIN ` + table + `s src ON src.id = rec.source_id`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " GROUP BY rec.source_id, rec.substance_id ORDER BY rec.source_id, rec.substance_id"

	rows, err := st.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: querying %s emissions: %v", typ, err)
	}
	defer rows.Close()

	// The name, tag and polygon predicates and the reprojection depend
	// only on the source, so evaluate them once per source rather than
	// once per row.
	type srcEval struct {
		keep bool
		g    geom.Geom
	}
	evaluated := make(map[int64]*srcEval)

	var o []*EmissionRecord
	for rows.Next() {
		var (
			srcID, subID int64
			name         string
			timevarID    sql.NullInt64
			tagsJSON     string
			geomJSON     string
			emis         float64
		)
		if err := rows.Scan(&srcID, &name, &timevarID, &tagsJSON, &geomJSON, &subID, &emis); err != nil {
			return nil, fmt.Errorf("inventory: scanning emission record: %v", err)
		}
		ev, ok := evaluated[srcID]
		if !ok {
			ev = new(srcEval)
			evaluated[srcID] = ev
			if nameRE != nil && !nameRE.MatchString(name) {
				continue
			}
			if len(f.Tags) > 0 {
				var tags map[string]string
				if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
					return nil, fmt.Errorf("inventory: decoding tags of source %d: %v", srcID, err)
				}
				if !matchTags(tags, f.Tags) {
					continue
				}
			}
			g, err := geojson.Decode([]byte(geomJSON))
			if err != nil {
				return nil, fmt.Errorf("inventory: decoding geometry of source %d: %v", srcID, err)
			}
			if filterPoly != nil && !intersects(g, filterPoly) {
				continue
			}
			if toTarget != nil {
				if g, err = g.Transform(toTarget); err != nil {
					return nil, fmt.Errorf("inventory: reprojecting source %d: %v", srcID, err)
				}
			}
			ev.keep = true
			ev.g = g
		}
		if !ev.keep {
			continue
		}
		o = append(o, &EmissionRecord{
			SourceID:    srcID,
			SubstanceID: subID,
			TimevarID:   timevarID.Int64,
			Emission:    emis,
			Geom:        ev.g,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inventory: reading emission records: %v", err)
	}
	return o, nil
}
