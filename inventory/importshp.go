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

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// ImportAreaSourcesShapefile imports area sources from a polygon
// shapefile. Attribute columns are mapped through cfg: NameField holds
// source names, SubstanceFields maps substance slugs to emission value
// columns, TagFields and CodeFields copy attributes into tags and
// activity codes. Coordinates come from the .prj file when present,
// otherwise from cfg.Proj4. The whole file imports in one transaction.
func (st *Store) ImportAreaSourcesShapefile(filename string, cfg *ImportConfig) (*ImportStats, error) {
	d, err := shp.NewDecoder(filename)
	if err != nil {
		return nil, fmt.Errorf("inventory: opening %s: %v", filename, err)
	}
	defer d.Close()

	inSR, err := d.SR()
	if err != nil {
		// No .prj file; fall back to the configured projection.
		inSR = nil
	}
	imp, err := st.newImporter(cfg, inSR)
	if err != nil {
		return nil, err
	}

	nameField := imp.cfg.NameField
	if nameField == "" {
		nameField = "name"
	}
	fieldNames := []string{nameField}
	for slug := range imp.cfg.SubstanceFields {
		if _, ok := imp.substances[slug]; !ok {
			return nil, ConfigErrorf("inventory: unknown substance '%s' in import config", slug)
		}
	}
	for _, field := range imp.cfg.SubstanceFields {
		fieldNames = append(fieldNames, field)
	}
	fieldNames = append(fieldNames, imp.cfg.TagFields...)
	for _, field := range imp.cfg.CodeFields {
		if field != "" {
			fieldNames = append(fieldNames, field)
		}
	}

	stats := new(ImportStats)
	err = st.transact(imp.cfg.DryRun, func(tx *sql.Tx) error {
		for i := 0; ; i++ {
			g, fields, more := d.DecodeRowFields(fieldNames...)
			if !more {
				break
			}
			var poly geom.Polygon
			switch t := g.(type) {
			case geom.Polygon:
				poly = t
			case geom.MultiPolygon:
				for _, p := range t {
					poly = append(poly, p...)
				}
			default:
				return fmt.Errorf("inventory: %s feature %d: unsupported geometry type %T",
					filename, i, g)
			}
			wgs, err := poly.Transform(imp.transform)
			if err != nil {
				return fmt.Errorf("inventory: %s feature %d: reprojecting: %v", filename, i, err)
			}

			name, ok := fields[nameField]
			if !ok || name == "" {
				return fmt.Errorf("inventory: %s feature %d: missing attribute column %s",
					filename, i, nameField)
			}
			as := &AreaSource{
				Name: name,
				Geom: wgs.(geom.Polygon),
				Tags: make(map[string]string),
			}
			if as.TimevarID, err = imp.timevarID(""); err != nil {
				return err
			}
			for _, key := range imp.cfg.TagFields {
				if v, ok := fields[key]; ok && v != "" {
					as.Tags[key] = v
				}
			}
			for slot, field := range imp.cfg.CodeFields {
				if field == "" {
					continue
				}
				code, ok := fields[field]
				if !ok || code == "" {
					continue
				}
				if err := imp.checkCode(slot, code); err != nil {
					return fmt.Errorf("inventory: %s feature %d: %v", filename, i, err)
				}
				as.ActivityCodes[slot] = code
			}
			for slug, field := range imp.cfg.SubstanceFields {
				v, ok := fields[field]
				if !ok {
					return fmt.Errorf("inventory: %s feature %d: missing attribute column %s",
						filename, i, field)
				}
				if v == "" {
					continue
				}
				val, err := attrFloat(v)
				if err != nil {
					return fmt.Errorf("inventory: %s feature %d, column %s: %v",
						filename, i, field, err)
				}
				as.Substances = append(as.Substances, &SourceSubstance{
					SubstanceID: imp.substances[slug],
					Value:       val * imp.toSI,
				})
			}

			if err := imp.replaceSource(tx, "area_sources", name, stats); err != nil {
				return err
			}
			if _, err := st.addAreaSourceTx(tx, as); err != nil {
				return err
			}
			stats.Sources++
			stats.Emissions += len(as.Substances)
		}
		if err := d.Error(); err != nil {
			return fmt.Errorf("inventory: reading %s: %v", filename, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}
