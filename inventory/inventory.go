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

// Package inventory manages an offline database of air pollutant emission
// sources and answers emission queries against it.
//
// Sources are points or polygons. Each source carries direct substance
// emissions (stored in SI kg/s) and may carry activity rates which are
// combined with per-activity emission factors at query time. Geometries are
// stored in WGS84 and reprojected to the caller's spatial reference when
// queried.
package inventory

import (
	"encoding/gob"
	"fmt"
	"time"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"

	"github.com/airshedmodel/emitk/temporal"
)

// WGS84 is the spatial reference that all source geometries are stored in.
const WGS84 = "+proj=longlat +datum=WGS84 +no_defs"

func init() {
	gob.Register(geom.Point{})
	gob.Register(geom.Polygon{})
	gob.Register(geom.MultiPolygon{})
}

// SourceType identifies a kind of emission source.
type SourceType string

// The supported source types.
const (
	SourceTypePoint SourceType = "point"
	SourceTypeArea  SourceType = "area"
)

// SourceTypes lists the supported source types in processing order.
var SourceTypes = []SourceType{SourceTypePoint, SourceTypeArea}

// Valid reports whether st is a supported source type.
func (st SourceType) Valid() bool {
	return st == SourceTypePoint || st == SourceTypeArea
}

// ConfigError is returned for invalid configuration values (unknown units,
// unsupported source types, nonexistent activity codes, malformed extents).
// Configuration errors are always detected before any output is written.
type ConfigError struct {
	msg string
}

func (e *ConfigError) Error() string { return e.msg }

// ConfigErrorf creates a ConfigError with a formatted message.
func ConfigErrorf(format string, a ...interface{}) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, a...)}
}

// Settings holds the inventory-wide configuration. It is stored as a
// singleton in the database and passed by value to the components that
// need it; nothing reads it from ambient state.
type Settings struct {
	// Proj4 is the proj4 specification of the inventory's output
	// spatial reference.
	Proj4 string

	// Extent is the inventory domain (x1, y1, x2, y2) in the output
	// spatial reference.
	Extent [4]float64

	// Timezone is the IANA name of the inventory timezone, used when
	// expanding time-variation profiles.
	Timezone string

	// CodeSets holds the slugs of the code sets assigned to activity
	// code slots 1-3. Empty slots are unused.
	CodeSets [3]string
}

// SR returns the parsed output spatial reference.
func (s *Settings) SR() (*proj.SR, error) {
	sr, err := proj.Parse(s.Proj4)
	if err != nil {
		return nil, fmt.Errorf("inventory: parsing projection %q: %v", s.Proj4, err)
	}
	return sr, nil
}

// Location returns the inventory timezone.
func (s *Settings) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, ConfigErrorf("inventory: unknown timezone %q", s.Timezone)
	}
	return loc, nil
}

// A Substance is a tracked pollutant.
type Substance struct {
	ID   int64
	Name string
	// Slug is a short identifier safe for use in file and variable names.
	Slug string
}

// A Timevar is a named, reusable time-variation profile.
type Timevar struct {
	ID      int64
	Name    string
	Profile *temporal.Profile
}

// A Facility groups sources belonging to the same plant or site.
type Facility struct {
	ID int64
	// OfficialID is the external identifier of the facility, e.g. from
	// a national registry.
	OfficialID string
	Name       string
}

// A SourceSubstance is a direct emission of one substance from one source.
type SourceSubstance struct {
	SubstanceID int64
	// Value is the emission rate in kg/s.
	Value float64
}

// A SourceActivity is an activity rate attached to a source. Emissions
// follow from the rate multiplied by the activity's emission factors.
type SourceActivity struct {
	ActivityID int64
	// Rate is in activity units per year.
	Rate float64
}

// An Activity is an emission-generating process (e.g. fuel combustion)
// quantified in its own unit, with emission factors per substance.
type Activity struct {
	ID   int64
	Name string
	// Unit describes the activity quantity, e.g. "MWh" or "t fuel".
	Unit            string
	EmissionFactors []*EmissionFactor
}

// An EmissionFactor converts an activity rate to an emission of one
// substance.
type EmissionFactor struct {
	SubstanceID int64
	// Factor is in kg per activity unit.
	Factor float64
}

// A CodeSet is a classification scheme for emission activities.
type CodeSet struct {
	ID   int64
	Name string
	Slug string
}

// An ActivityCode is one code in a code set. Codes are hierarchical with
// dot separators ("1.3.1" is below "1.3").
type ActivityCode struct {
	ID        int64
	CodeSetID int64
	Code      string
	Label     string
}

// A PointSource emits from a single location.
type PointSource struct {
	ID         int64
	FacilityID int64 // 0 = no facility
	Name       string
	TimevarID  int64 // 0 = no time variation
	Tags       map[string]string
	// ActivityCodes holds one code per configured code-set slot;
	// empty strings mean unclassified.
	ActivityCodes [3]string

	// Chimney parameters, used by downstream dispersion models.
	ChimneyHeight         float64 // m
	ChimneyOuterDiameter  float64 // m
	ChimneyInnerDiameter  float64 // m
	ChimneyGasSpeed       float64 // m/s
	ChimneyGasTemperature float64 // K
	HouseWidth            float64 // m
	HouseHeight           float64 // m

	// Geom is the source location in WGS84.
	Geom geom.Point

	Substances []*SourceSubstance
	Activities []*SourceActivity
}

// An AreaSource emits uniformly over a polygon.
type AreaSource struct {
	ID            int64
	FacilityID    int64
	Name          string
	TimevarID     int64
	Tags          map[string]string
	ActivityCodes [3]string

	// Geom is the source footprint in WGS84.
	Geom geom.Polygon

	Substances []*SourceSubstance
	Activities []*SourceActivity
}

// An EmissionRecord is one row of an emission query result: the total
// emission of one substance from one source.
type EmissionRecord struct {
	SourceID    int64
	SubstanceID int64
	// TimevarID is the source's time-variation profile, or 0 if the
	// source emits at a constant rate.
	TimevarID int64
	// Emission is in kg/s.
	Emission float64
	// Geom is the source geometry in the spatial reference that was
	// requested in the query.
	Geom geom.Geom
}

// A TagFilter matches a source tag value. The zero Negate means the tag
// must exist and equal Value; Negate means sources where the tag exists
// and equals Value are excluded (sources without the tag pass).
type TagFilter struct {
	Value  string
	Negate bool
}

// A QueryFilter restricts an emission query. Zero-valued fields place no
// restriction on their dimension.
type QueryFilter struct {
	// Substances restricts results to these substance IDs.
	Substances []int64
	// Name is a regular expression matched against source names.
	Name string
	// IDs is an explicit source id allow-list.
	IDs []int64
	// Tags are per-key predicates, ANDed together.
	Tags map[string]TagFilter
	// Polygon restricts results to sources intersecting it. It is
	// given in the query's target spatial reference.
	Polygon geom.Polygon
	// AC1, AC2 and AC3 restrict sources by activity-code prefix in the
	// corresponding code-set slot.
	AC1, AC2, AC3 []string
}

// Reproject transforms g from spatial reference from to spatial
// reference to.
func Reproject(g geom.Geom, from, to *proj.SR) (geom.Geom, error) {
	ct, err := from.NewTransform(to)
	if err != nil {
		return nil, fmt.Errorf("inventory: creating coordinate transform: %v", err)
	}
	o, err := g.Transform(ct)
	if err != nil {
		return nil, fmt.Errorf("inventory: reprojecting geometry: %v", err)
	}
	return o, nil
}
