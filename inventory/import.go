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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ctessum/geom/proj"
)

// ImportConfig controls a source import. It is usually decoded from a TOML
// file accompanying the input data.
type ImportConfig struct {
	// Proj4 is the spatial reference of the input coordinates. It
	// defaults to WGS84. Shapefile imports prefer the .prj file when
	// one is present.
	Proj4 string

	// Unit is the unit of substance emission values in the input
	// (default "kg/year"). Values are converted to kg/s when stored.
	Unit string

	// Timevar optionally names a time-variation profile to assign to
	// every imported source that does not name its own.
	Timevar string

	// Overwrite replaces existing sources with the same name instead
	// of failing.
	Overwrite bool

	// DryRun validates the input and reports what would be imported,
	// then rolls the transaction back.
	DryRun bool

	// NameField is the shapefile attribute holding source names
	// (default "name").
	NameField string

	// TagFields lists shapefile attributes to import as source tags.
	TagFields []string

	// SubstanceFields maps substance slugs to the shapefile attributes
	// holding their emission values.
	SubstanceFields map[string]string

	// CodeFields holds the shapefile attributes for activity codes,
	// one per code-set slot.
	CodeFields [3]string
}

// ReadImportConfig decodes an ImportConfig from a TOML file.
func ReadImportConfig(filename string) (*ImportConfig, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("inventory: opening import config: %v", err)
	}
	defer f.Close()
	cfg := new(ImportConfig)
	if _, err := toml.DecodeReader(f, cfg); err != nil {
		return nil, fmt.Errorf("inventory: decoding import config %s: %v", filename, err)
	}
	return cfg, nil
}

// ImportStats summarizes what an import wrote (or, for a dry run, would
// have written).
type ImportStats struct {
	// Sources is the number of sources written.
	Sources int
	// Emissions is the number of substance emission values written.
	Emissions int
	// Timevars is the number of time-variation profiles written.
	Timevars int
	// Replaced is the number of existing sources that were overwritten.
	Replaced int
}

// importer carries the lookups shared by all rows of one import.
type importer struct {
	st   *Store
	cfg  *ImportConfig
	toSI float64
	// transform converts input coordinates to WGS84.
	transform  proj.Transformer
	substances map[string]int64
	timevars   map[string]int64
	// codes holds the known activity codes per configured code-set
	// slot; nil for unconfigured slots.
	codes [3]map[string]bool
}

func (st *Store) newImporter(cfg *ImportConfig, inputSR *proj.SR) (*importer, error) {
	if cfg == nil {
		cfg = new(ImportConfig)
	}
	units := cfg.Unit
	if units == "" {
		units = "kg/year"
	}
	toSI, err := EmissionUnitToSI(units)
	if err != nil {
		return nil, err
	}
	wgs84, err := proj.Parse(WGS84)
	if err != nil {
		return nil, fmt.Errorf("inventory: parsing WGS84: %v", err)
	}
	if inputSR == nil {
		proj4 := cfg.Proj4
		if proj4 == "" {
			proj4 = WGS84
		}
		if inputSR, err = proj.Parse(proj4); err != nil {
			return nil, ConfigErrorf("inventory: parsing import projection %q: %v", proj4, err)
		}
	}
	ct, err := inputSR.NewTransform(wgs84)
	if err != nil {
		return nil, fmt.Errorf("inventory: creating coordinate transform: %v", err)
	}
	imp := &importer{st: st, cfg: cfg, toSI: toSI, transform: ct}

	subs, err := st.Substances()
	if err != nil {
		return nil, err
	}
	imp.substances = make(map[string]int64)
	for _, s := range subs {
		imp.substances[s.Slug] = s.ID
	}
	tvs, err := st.Timevars()
	if err != nil {
		return nil, err
	}
	imp.timevars = make(map[string]int64)
	for _, tv := range tvs {
		imp.timevars[tv.Name] = tv.ID
	}
	settings, err := st.Settings()
	if err != nil {
		return nil, err
	}
	for i, slug := range settings.CodeSets {
		if slug == "" {
			continue
		}
		acs, err := st.ActivityCodes(slug)
		if err != nil {
			return nil, err
		}
		imp.codes[i] = make(map[string]bool)
		for _, ac := range acs {
			imp.codes[i][ac.Code] = true
		}
	}
	return imp, nil
}

// timevarID resolves a timevar name, falling back to the config-wide
// default. The empty name means no time variation.
func (imp *importer) timevarID(name string) (int64, error) {
	if name == "" {
		name = imp.cfg.Timevar
	}
	if name == "" {
		return 0, nil
	}
	id, ok := imp.timevars[name]
	if !ok {
		return 0, ConfigErrorf("inventory: unknown timevar '%s'", name)
	}
	return id, nil
}

// checkCode verifies that an activity code exists in the code set
// configured for the given slot.
func (imp *importer) checkCode(slot int, code string) error {
	if imp.codes[slot] == nil {
		return ConfigErrorf("inventory: no code set configured in slot %d", slot+1)
	}
	if !imp.codes[slot][code] {
		return ConfigErrorf("inventory: unknown activity code '%s' in slot %d", code, slot+1)
	}
	return nil
}

// replaceSource handles a pre-existing source with the same name: delete
// it in overwrite mode, fail otherwise.
func (imp *importer) replaceSource(q execer, table, name string, stats *ImportStats) error {
	var n int
	err := q.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE name = ?", name).Scan(&n)
	if err != nil {
		return fmt.Errorf("inventory: looking up source %s: %v", name, err)
	}
	if n == 0 {
		return nil
	}
	if !imp.cfg.Overwrite {
		return fmt.Errorf("inventory: source '%s' already exists; "+
			"enable overwrite to replace it", name)
	}
	if _, err := q.Exec("DELETE FROM "+table+" WHERE name = ?", name); err != nil {
		return fmt.Errorf("inventory: replacing source %s: %v", name, err)
	}
	stats.Replaced += n
	return nil
}

// attrFloat parses a numeric attribute, tolerating the comma thousands
// separators that spreadsheet exports sometimes carry.
func attrFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.Replace(strings.TrimSpace(s), ",", "", -1), 64)
}

// cellName returns the spreadsheet-style name ("B3") of a 0-based
// row/column pair.
func cellName(r, c int) string {
	col := ""
	for c >= 0 {
		col = string(rune('A'+c%26)) + col
		c = c/26 - 1
	}
	return fmt.Sprintf("%s%d", col, r+1)
}
