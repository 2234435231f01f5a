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
	"strings"

	"github.com/ctessum/unit"
)

// emisDims is the dimensionality of an emission rate [kg/s].
var emisDims = unit.Dimensions{unit.MassDim: 1, unit.TimeDim: -1}

// massUnit returns one of the given mass unit expressed in kilograms.
// Tons are metric.
func massUnit(units string) (*unit.Unit, error) {
	switch units {
	case "g":
		return unit.New(1.e-3, unit.Kilogram), nil
	case "kg":
		return unit.New(1., unit.Kilogram), nil
	case "ton", "Mg":
		return unit.New(1.e3, unit.Kilogram), nil
	case "kt", "Gg":
		return unit.New(1.e6, unit.Kilogram), nil
	default:
		return nil, ConfigErrorf("inventory: invalid mass unit '%s'; "+
			"acceptable values are g, kg, ton, Mg, kt, and Gg", units)
	}
}

// timeUnit returns one of the given time unit expressed in seconds.
// A year is 365 days.
func timeUnit(units string) (*unit.Unit, error) {
	switch units {
	case "s":
		return unit.New(1., unit.Second), nil
	case "min":
		return unit.New(60., unit.Second), nil
	case "h":
		return unit.New(3600., unit.Second), nil
	case "day":
		return unit.New(86400., unit.Second), nil
	case "year":
		return unit.New(31536000., unit.Second), nil
	default:
		return nil, ConfigErrorf("inventory: invalid time unit '%s'; "+
			"acceptable values are s, min, h, day, and year", units)
	}
}

// EmissionUnitToSI returns the factor that converts an emission rate in
// the given units ("<mass>/<time>", e.g. "ton/year") to kg/s.
func EmissionUnitToSI(units string) (float64, error) {
	parts := strings.Split(units, "/")
	if len(parts) != 2 {
		return 0, ConfigErrorf("inventory: invalid emission unit '%s'; "+
			"expected '<mass>/<time>', e.g. 'kg/year'", units)
	}
	m, err := massUnit(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, err
	}
	t, err := timeUnit(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, err
	}
	v := unit.Div(m, t)
	if err := v.Check(emisDims); err != nil {
		return 0, ConfigErrorf("inventory: emission unit '%s': %v", units, err)
	}
	return v.Value(), nil
}

// EmisConversionFactorFromSI returns the factor that converts an emission
// rate in kg/s to the given units.
func EmisConversionFactorFromSI(units string) (float64, error) {
	toSI, err := EmissionUnitToSI(units)
	if err != nil {
		return 0, err
	}
	return 1 / toSI, nil
}
