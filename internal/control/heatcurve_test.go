/*
 * Copyright (c) 2024. Anton Starikov -- All Rights Reserved
 *
 * This file is part of SATBC project.
 *
 * SATBC is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as the Free Software Foundation,
 * either version 3 of the License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeatingCurveClassicValue(t *testing.T) {
	h := NewHeatingCurve(SystemRadiator, CurveClassic, 1.2, 65)
	h.Update(20, 0)

	// 28 + (1.2/4) * 20 = 34
	assert.InDelta(t, 34.0, h.Value(), 1e-9)
	assert.True(t, h.Valid())
}

func TestHeatingCurveColderOutsideNeverLowersValue(t *testing.T) {
	for _, version := range []CurveVersion{CurveClassic, CurveQuantum, CurvePrecision} {
		h := NewHeatingCurve(SystemRadiator, version, 1.5, 80)

		prev := -1.0
		for ot := 20.0; ot >= -25; ot -= 0.5 {
			h.Update(21, ot)
			require.GreaterOrEqual(t, h.Value(), prev, "version %d at outside %v", version, ot)
			prev = h.Value()
		}
	}
}

func TestHeatingCurveClampedToMaxSetpoint(t *testing.T) {
	h := NewHeatingCurve(SystemRadiator, CurveClassic, 4.0, 60)
	h.Update(25, -30)
	assert.Equal(t, 60.0, h.Value())
}

func TestHeatingCurveUnderfloorRunsFlatter(t *testing.T) {
	rad := NewHeatingCurve(SystemRadiator, CurveClassic, 1.5, 80)
	ufh := NewHeatingCurve(SystemUnderfloor, CurveClassic, 1.5, 80)

	rad.Update(20, -10)
	ufh.Update(20, -10)

	assert.Less(t, ufh.Value(), rad.Value())
	assert.Equal(t, 20.0, ufh.BaseOffset())
	assert.Equal(t, 28.0, rad.BaseOffset())
}

func TestHeatingCurvePrecisionShiftsLinearlyWithSetpoint(t *testing.T) {
	h := NewHeatingCurve(SystemRadiator, CurvePrecision, 1.5, 80)

	h.Update(20, 5)
	at20 := h.Value()
	h.Update(22, 5)
	at22 := h.Value()

	assert.InDelta(t, 2.0, at22-at20, 1e-9)
}

func TestHeatingCurveQuantumNeverBelowBaseOffset(t *testing.T) {
	h := NewHeatingCurve(SystemRadiator, CurveQuantum, 1.5, 80)
	// Warm enough outside for the demand term to go negative.
	h.Update(15, 25)
	assert.Equal(t, h.BaseOffset(), h.Value())
}

func TestHeatingCurveReset(t *testing.T) {
	h := NewHeatingCurve(SystemRadiator, CurveClassic, 1.2, 65)
	h.Update(20, 0)
	require.True(t, h.Valid())

	h.Reset()
	assert.False(t, h.Valid())
	assert.Zero(t, h.Value())
}
