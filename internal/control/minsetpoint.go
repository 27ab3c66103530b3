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

import "math"

const (
	// Slew limits per adjustment: raise slowly, back off fast.
	adjustStepUp   = 0.1
	adjustStepDown = 2.0
)

// MinimumSetpoint corrects the low-load control setpoint using the boiler
// return temperature. Closed zone valves shrink the heat sink, the return
// temperature creeps up, and the setpoint must follow or the boiler shoots
// past the calibrated protection value at minimum fire.
type MinimumSetpoint struct {
	factor        float64
	configuredMin float64

	baseReturn    float64
	hasBaseReturn bool

	current    float64
	hasCurrent bool
}

// NewMinimumSetpoint creates an adjuster. factor trades responsiveness
// (higher) against stability (lower); 0.1 to 0.5 is the sane range.
func NewMinimumSetpoint(factor, configuredMin float64) *MinimumSetpoint {
	return &MinimumSetpoint{factor: factor, configuredMin: configuredMin}
}

func (m *MinimumSetpoint) Reset() {
	m.hasBaseReturn = false
	m.hasCurrent = false
	m.current = 0
}

// BaseReturnTemperature is the coldest return temperature seen since the
// last reset, used as the correction anchor.
func (m *MinimumSetpoint) BaseReturnTemperature() float64 {
	return m.baseReturn
}

// Adjust computes the corrected low-load setpoint for the given calibrated
// overshoot protection value and the current return temperature.
func (m *MinimumSetpoint) Adjust(overshootProtectionValue, returnTemperature float64) float64 {
	if !m.hasBaseReturn || returnTemperature < m.baseReturn {
		m.baseReturn = returnTemperature
		m.hasBaseReturn = true
	}

	target := overshootProtectionValue + m.factor*(returnTemperature-m.baseReturn)

	if !m.hasCurrent {
		m.current = target
		m.hasCurrent = true
		return m.round()
	}

	if m.current < target {
		m.current = math.Min(m.current+adjustStepUp, target)
	} else if m.current > target {
		m.current = math.Max(m.current-adjustStepDown, target)
	}

	return m.round()
}

// Current returns the last adjusted setpoint, falling back to the
// configured minimum before the first adjustment.
func (m *MinimumSetpoint) Current() float64 {
	if !m.hasCurrent {
		return m.configuredMin
	}
	return m.round()
}

func (m *MinimumSetpoint) round() float64 {
	return math.Round(m.current*10) / 10
}
