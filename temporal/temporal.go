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

// Package temporal models time-variation profiles for emission sources.
//
// A profile holds relative intensity weights for each hour of a type-week
// (24 hours × 7 weekdays) and for each month of the year. Profiles are
// normalized so that the mean scaling over a reference year equals one;
// applying a profile to a constant emission rate therefore preserves the
// annual total regardless of profile shape.
package temporal

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
)

// hoursPerYear is the number of hours in the non-leap reference year
// used for profile normalization.
const hoursPerYear = 8760

// referenceYear is the year used to normalize profiles. It is fixed so
// that normalization constants are reproducible.
const referenceYear = 2015

// ErrZeroProfile is returned when a profile's scaling sums to zero over
// the reference year, making normalization impossible.
var ErrZeroProfile = errors.New("temporal: profile scaling sums to zero over reference year")

// Profile holds the relative time variation of an emission source.
// Weights are relative intensities; they do not need to sum to any
// particular value because scaling is normalized over a reference year.
type Profile struct {
	// Hourly holds one row per hour of the day (24 rows), each with one
	// weight per weekday (7 columns, Monday first).
	Hourly [][]float64

	// Monthly holds one weight per month (12 values, January first).
	Monthly []float64
}

// NewProfile creates a time-variation profile from an hour-of-day ×
// weekday matrix (24 rows × 7 columns, Monday first) and a monthly
// weight vector (12 values). All weights must be non-negative.
func NewProfile(hourly [][]float64, monthly []float64) (*Profile, error) {
	if len(hourly) != 24 {
		return nil, fmt.Errorf("temporal: hourly matrix has %d rows; must have 24", len(hourly))
	}
	for i, row := range hourly {
		if len(row) != 7 {
			return nil, fmt.Errorf("temporal: hourly matrix row %d has %d columns; must have 7", i, len(row))
		}
		for j, w := range row {
			if w < 0 {
				return nil, fmt.Errorf("temporal: negative weight %g at hour %d, weekday %d", w, i, j)
			}
		}
	}
	if len(monthly) != 12 {
		return nil, fmt.Errorf("temporal: monthly vector has %d values; must have 12", len(monthly))
	}
	for i, w := range monthly {
		if w < 0 {
			return nil, fmt.Errorf("temporal: negative weight %g for month %d", w, i+1)
		}
	}
	return &Profile{Hourly: hourly, Monthly: monthly}, nil
}

// Default returns the flat profile: every hour, weekday and month is
// weighted equally, so the scaling is 1 for every timestamp.
func Default() *Profile {
	hourly := make([][]float64, 24)
	for i := range hourly {
		hourly[i] = []float64{1, 1, 1, 1, 1, 1, 1}
	}
	monthly := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	return &Profile{Hourly: hourly, Monthly: monthly}
}

// factor returns the unnormalized scaling for time t, which must
// already be expressed in the profile's target timezone.
func (p *Profile) factor(t time.Time) float64 {
	// switch from sunday to monday for first weekday
	weekday := (int(t.Weekday()) + 6) % 7
	hour := t.Hour()
	month := int(t.Month()) - 1
	return p.Hourly[hour][weekday] * p.Monthly[month]
}

// A Scaler evaluates a normalized profile in a given timezone. The
// normalization constant is computed once, when the Scaler is created.
type Scaler struct {
	profile *Profile
	loc     *time.Location
	norm    float64
}

// NewScaler prepares profile p for evaluation in timezone loc. The
// normalization constant is chosen so that the mean scaling over the
// reference year equals one. NewScaler returns ErrZeroProfile if the
// profile scaling sums to zero over the reference year.
func NewScaler(p *Profile, loc *time.Location) (*Scaler, error) {
	if loc == nil {
		loc = time.UTC
	}
	facs := make([]float64, hoursPerYear)
	t := time.Date(referenceYear, time.January, 1, 0, 0, 0, 0, loc)
	for i := range facs {
		facs[i] = p.factor(t.In(loc))
		t = t.Add(time.Hour)
	}
	sum := floats.Sum(facs)
	if sum == 0 {
		return nil, ErrZeroProfile
	}
	return &Scaler{
		profile: p,
		loc:     loc,
		norm:    hoursPerYear / sum,
	}, nil
}

// Factor returns the normalized scaling for the hourly interval
// starting at t. t is converted to the Scaler's timezone before the
// profile is evaluated.
func (s *Scaler) Factor(t time.Time) float64 {
	return s.profile.factor(t.In(s.loc)) * s.norm
}

// Series returns n normalized hourly scaling factors, for the intervals
// starting at begin, begin+1h, ..., begin+(n-1)h.
func (s *Scaler) Series(begin time.Time, n int) []float64 {
	out := make([]float64, n)
	t := begin
	for i := range out {
		out[i] = s.Factor(t)
		t = t.Add(time.Hour)
	}
	return out
}
