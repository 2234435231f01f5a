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
	"fmt"
)

// An EmissionTotal is one row of an aggregation report: the total emission
// of each substance for one activity code, or for the whole inventory.
type EmissionTotal struct {
	// Code is an activity code, or "total" when the report is not
	// grouped by code set.
	Code  string
	Label string
	// Totals maps substance slug to the total emission in the
	// report unit.
	Totals map[string]float64
}

// ActivityCodes returns the codes of the code set with the given slug,
// ordered by code.
func (st *Store) ActivityCodes(codeSetSlug string) ([]*ActivityCode, error) {
	rows, err := st.db.Query(
		`SELECT ac.id, ac.code_set_id, ac.code, ac.label FROM activity_codes ac
			JOIN code_sets cs ON cs.id = ac.code_set_id
			WHERE cs.slug = ? ORDER BY ac.code`, codeSetSlug)
	if err != nil {
		return nil, fmt.Errorf("inventory: listing activity codes: %v", err)
	}
	defer rows.Close()
	var o []*ActivityCode
	for rows.Next() {
		ac := new(ActivityCode)
		if err := rows.Scan(&ac.ID, &ac.CodeSetID, &ac.Code, &ac.Label); err != nil {
			return nil, fmt.Errorf("inventory: scanning activity code: %v", err)
		}
		o = append(o, ac)
	}
	return o, rows.Err()
}

// sumEmissions queries both source types and sums emissions per substance
// slug, in kg/s.
func (st *Store) sumEmissions(ctx context.Context, f *QueryFilter, slugs map[int64]string) (map[string]float64, error) {
	totals := make(map[string]float64)
	for _, typ := range SourceTypes {
		recs, err := st.QueryEmissions(ctx, typ, f, nil)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			totals[slugs[rec.SubstanceID]] += rec.Emission
		}
	}
	return totals, nil
}

// AggregateEmissions sums the emissions of both source types that pass the
// filter. If codeSet names one of the configured code sets, the report
// holds one row per activity code (codes match themselves and their
// sub-codes); otherwise it holds a single "total" row. Totals are
// converted from SI to the given units (e.g. "ton/year").
func (st *Store) AggregateEmissions(ctx context.Context, f *QueryFilter, codeSet, units string) ([]*EmissionTotal, error) {
	factor, err := EmisConversionFactorFromSI(units)
	if err != nil {
		return nil, err
	}
	if f == nil {
		f = new(QueryFilter)
	}
	substances, err := st.Substances()
	if err != nil {
		return nil, err
	}
	slugs := make(map[int64]string)
	for _, s := range substances {
		slugs[s.ID] = s.Slug
	}

	convert := func(totals map[string]float64) map[string]float64 {
		for slug, v := range totals {
			totals[slug] = v * factor
		}
		return totals
	}

	if codeSet == "" {
		totals, err := st.sumEmissions(ctx, f, slugs)
		if err != nil {
			return nil, err
		}
		return []*EmissionTotal{{Code: "total", Totals: convert(totals)}}, nil
	}

	settings, err := st.Settings()
	if err != nil {
		return nil, err
	}
	slot := -1
	for i, slug := range settings.CodeSets {
		if slug == codeSet {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, ConfigErrorf("inventory: code set '%s' is not configured", codeSet)
	}
	codes, err := st.ActivityCodes(codeSet)
	if err != nil {
		return nil, err
	}
	var o []*EmissionTotal
	for _, ac := range codes {
		cf := *f
		switch slot {
		case 0:
			cf.AC1 = []string{ac.Code}
		case 1:
			cf.AC2 = []string{ac.Code}
		case 2:
			cf.AC3 = []string{ac.Code}
		}
		totals, err := st.sumEmissions(ctx, &cf, slugs)
		if err != nil {
			return nil, err
		}
		if len(totals) == 0 {
			continue
		}
		o = append(o, &EmissionTotal{Code: ac.Code, Label: ac.Label, Totals: convert(totals)})
	}
	return o, nil
}

// UsedSubstances returns the substances that appear in direct source
// emissions or in emission factors, ordered by id.
func (st *Store) UsedSubstances(ctx context.Context) ([]*Substance, error) {
	rows, err := st.db.QueryContext(ctx,
		`SELECT id, name, slug FROM substances WHERE id IN (
			SELECT substance_id FROM point_source_substances
			UNION SELECT substance_id FROM area_source_substances
			UNION SELECT substance_id FROM emission_factors
		) ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("inventory: listing used substances: %v", err)
	}
	defer rows.Close()
	var o []*Substance
	for rows.Next() {
		s := new(Substance)
		if err := rows.Scan(&s.ID, &s.Name, &s.Slug); err != nil {
			return nil, fmt.Errorf("inventory: scanning substance: %v", err)
		}
		o = append(o, s)
	}
	return o, rows.Err()
}
