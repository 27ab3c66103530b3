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

type HeatingSystem string

const (
	SystemRadiator   HeatingSystem = "radiator"
	SystemUnderfloor HeatingSystem = "underfloor"
)

type CurveVersion int

const (
	CurveClassic CurveVersion = iota + 1
	CurveQuantum
	CurvePrecision
)

const (
	radiatorBaseOffset   = 28.0
	underfloorBaseOffset = 20.0

	// Reference room setpoint the curve coefficients are tuned against.
	comfortReference = 20.0

	// Underfloor loops run much flatter than radiators.
	underfloorDamping = 0.5
)

// HeatingCurve maps outside temperature to a base water setpoint for the
// configured heating system. The value is recomputed on demand and kept
// for diagnostics and for the PID automatic gains.
type HeatingCurve struct {
	system      HeatingSystem
	version     CurveVersion
	coefficient float64
	maxSetpoint float64

	value float64
	valid bool
}

func NewHeatingCurve(system HeatingSystem, version CurveVersion, coefficient, maxSetpoint float64) *HeatingCurve {
	return &HeatingCurve{
		system:      system,
		version:     version,
		coefficient: coefficient,
		maxSetpoint: maxSetpoint,
	}
}

// BaseOffset is the water temperature at which the system delivers no
// usable heat. The duty-cycle computation measures demand above it.
func (h *HeatingCurve) BaseOffset() float64 {
	if h.system == SystemUnderfloor {
		return underfloorBaseOffset
	}
	return radiatorBaseOffset
}

func (h *HeatingCurve) SetCoefficient(coefficient float64) {
	h.coefficient = coefficient
}

func (h *HeatingCurve) MaxSetpoint() float64 {
	return h.maxSetpoint
}

// Update recomputes the curve value for the given room setpoint and
// outside temperature.
func (h *HeatingCurve) Update(roomSetpoint, outsideTemperature float64) {
	var v float64
	switch h.version {
	case CurveQuantum:
		v = h.quantum(roomSetpoint, outsideTemperature)
	case CurvePrecision:
		v = h.precision(roomSetpoint, outsideTemperature)
	default:
		v = h.classic(roomSetpoint, outsideTemperature)
	}

	h.value = math.Round(clamp(v, 0, h.maxSetpoint)*10) / 10
	h.valid = true
}

// Value returns the last computed curve value.
func (h *HeatingCurve) Value() float64 {
	return h.value
}

func (h *HeatingCurve) Valid() bool {
	return h.valid
}

func (h *HeatingCurve) Reset() {
	h.value = 0
	h.valid = false
}

// demand is the raw heat demand term: quadratic in outside temperature,
// anchored at the room setpoint.
func demand(roomSetpoint, outsideTemperature float64) float64 {
	return roomSetpoint - 0.01*outsideTemperature*outsideTemperature - 0.8*outsideTemperature
}

func (h *HeatingCurve) classic(roomSetpoint, outsideTemperature float64) float64 {
	return h.BaseOffset() + h.damping()*(h.coefficient/4)*demand(roomSetpoint, outsideTemperature)
}

// quantum flattens the classic curve by taking the demand term through a
// square root, trading responsiveness in cold weather for steadier water
// temperatures.
func (h *HeatingCurve) quantum(roomSetpoint, outsideTemperature float64) float64 {
	d := math.Max(demand(roomSetpoint, outsideTemperature), 0)
	return h.BaseOffset() + h.damping()*h.coefficient*math.Sqrt(d)
}

// precision anchors the quadratic demand term at the comfort reference and
// moves the output linearly with the setpoint deviation, so a setpoint
// change shifts the curve instead of bending it.
func (h *HeatingCurve) precision(roomSetpoint, outsideTemperature float64) float64 {
	base := h.BaseOffset() + h.damping()*(h.coefficient/4)*demand(comfortReference, outsideTemperature)
	return base + (roomSetpoint - comfortReference)
}

func (h *HeatingCurve) damping() float64 {
	if h.system == SystemUnderfloor {
		return underfloorDamping
	}
	return 1.0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
