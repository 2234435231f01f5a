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

package temporal

import (
	"math"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats"
)

// daytimeProfile is nonzero between 06:00 and 18:59 every day.
func daytimeProfile() *Profile {
	hourly := make([][]float64, 24)
	for h := range hourly {
		hourly[h] = make([]float64, 7)
		if h >= 6 && h < 19 {
			for d := range hourly[h] {
				hourly[h][d] = 100
			}
		}
	}
	monthly := []float64{100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100}
	p, err := NewProfile(hourly, monthly)
	if err != nil {
		panic(err)
	}
	return p
}

func TestDefaultProfile(t *testing.T) {
	s, err := NewScaler(Default(), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	begin := time.Date(2012, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i, f := range s.Series(begin, 48) {
		if f != 1 {
			t.Errorf("hour %d: factor = %g; want 1", i, f)
		}
	}
}

func TestNormalization(t *testing.T) {
	s, err := NewScaler(daytimeProfile(), time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	begin := time.Date(referenceYear, time.January, 1, 0, 0, 0, 0, time.UTC)
	series := s.Series(begin, hoursPerYear)
	mean := floats.Sum(series) / hoursPerYear
	if math.Abs(mean-1) > 1e-6 {
		t.Errorf("mean scaling over reference year = %g; want 1", mean)
	}

	// A constant nominal rate scaled by the profile must reproduce the
	// nominal annual total.
	const rate = 2.5 // kg/s
	var total float64
	for _, f := range series {
		total += rate * f * 3600
	}
	want := rate * hoursPerYear * 3600
	if math.Abs(total-want)/want > 1e-6 {
		t.Errorf("annual total = %g; want %g", total, want)
	}
}

func TestZeroProfile(t *testing.T) {
	hourly := make([][]float64, 24)
	for h := range hourly {
		hourly[h] = make([]float64, 7)
	}
	p, err := NewProfile(hourly, make([]float64, 12))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewScaler(p, time.UTC); err != ErrZeroProfile {
		t.Errorf("NewScaler error = %v; want ErrZeroProfile", err)
	}
}

func TestProfileValidation(t *testing.T) {
	good := daytimeProfile()
	tests := []struct {
		name    string
		hourly  [][]float64
		monthly []float64
	}{
		{"short hourly", good.Hourly[:23], good.Monthly},
		{"short row", append(append([][]float64{}, good.Hourly[:23]...), []float64{1}), good.Monthly},
		{"short monthly", good.Hourly, good.Monthly[:11]},
		{"negative weight", good.Hourly, []float64{-1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}},
	}
	for _, test := range tests {
		if _, err := NewProfile(test.hourly, test.monthly); err == nil {
			t.Errorf("%s: expected error", test.name)
		}
	}
}

func TestWeekdayConvention(t *testing.T) {
	// Weight only on Monday at 00:00.
	hourly := make([][]float64, 24)
	for h := range hourly {
		hourly[h] = make([]float64, 7)
	}
	hourly[0][0] = 1
	monthly := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	p, err := NewProfile(hourly, monthly)
	if err != nil {
		t.Fatal(err)
	}
	s, err := NewScaler(p, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	monday := time.Date(2015, time.January, 5, 0, 0, 0, 0, time.UTC)
	if s.Factor(monday) == 0 {
		t.Error("expected nonzero factor on Monday 00:00")
	}
	sunday := time.Date(2015, time.January, 4, 0, 0, 0, 0, time.UTC)
	if f := s.Factor(sunday); f != 0 {
		t.Errorf("factor on Sunday 00:00 = %g; want 0", f)
	}
}

func TestTimezoneEvaluation(t *testing.T) {
	// Weight only at 12:00 local time.
	hourly := make([][]float64, 24)
	for h := range hourly {
		hourly[h] = make([]float64, 7)
	}
	for d := 0; d < 7; d++ {
		hourly[12][d] = 1
	}
	monthly := []float64{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	p, err := NewProfile(hourly, monthly)
	if err != nil {
		t.Fatal(err)
	}
	loc := time.FixedZone("UTC+1", 3600)
	s, err := NewScaler(p, loc)
	if err != nil {
		t.Fatal(err)
	}
	// 11:00 UTC is 12:00 in UTC+1.
	if f := s.Factor(time.Date(2015, time.June, 1, 11, 0, 0, 0, time.UTC)); f == 0 {
		t.Error("expected nonzero factor at 11:00 UTC for UTC+1 profile")
	}
	if f := s.Factor(time.Date(2015, time.June, 1, 12, 0, 0, 0, time.UTC)); f != 0 {
		t.Errorf("factor at 12:00 UTC = %g; want 0 for UTC+1 profile", f)
	}
}
