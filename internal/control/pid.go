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
	"math"
	"time"
)

type PIDVersion int

const (
	// PIDClassic differentiates the error signal.
	PIDClassic PIDVersion = iota + 1
	// PIDImproved differentiates the room temperature instead, which keeps
	// setpoint changes out of the derivative term.
	PIDImproved
)

const (
	// Low-pass filter weights for the derivative, applied in sequence.
	derivativeAlpha1 = 0.8
	derivativeAlpha2 = 0.6

	// Automatic gain factors, expressed relative to the heating curve value.
	// Underfloor loops respond slowly, so their derivative gain is larger.
	autoGainKpFactor     = 1.65
	autoGainKiDivisor    = 73900.0
	autoGainKdRadiator   = 1650.0
	autoGainKdUnderfloor = 2720.0
)

type PIDConfig struct {
	Version PIDVersion
	System  HeatingSystem

	Kp float64
	Ki float64
	Kd float64

	AutomaticGains       bool
	AutomaticGainsValue  float64
	DerivativeTimeWeight float64

	// Deadband is the error range in which the integral accumulates and
	// the derivative is muted.
	Deadband float64

	// SampleTime is the minimum interval between recomputations; updates
	// arriving earlier are coalesced and the last output held.
	SampleTime time.Duration
}

// PIDState is a diagnostics snapshot of the controller internals.
type PIDState struct {
	Proportional float64 `json:"proportional"`
	Integral     float64 `json:"integral"`
	Derivative   float64 `json:"derivative"`
	LastError    float64 `json:"last_error"`
	Kp           float64 `json:"kp"`
	Ki           float64 `json:"ki"`
	Kd           float64 `json:"kd"`
	LastUpdated  time.Time `json:"last_updated"`
}

// PID keeps integral and derivative state across control ticks. It is not
// safe for concurrent use; the control loop owns it exclusively.
type PID struct {
	cfg PIDConfig

	integral      float64
	rawDerivative float64

	lastError           float64
	previousError       float64
	lastRoomTemperature float64
	lastCurveValue      float64
	lastUpdated         time.Time
	hasSample           bool

	now func() time.Time
}

func NewPID(cfg PIDConfig) *PID {
	if cfg.SampleTime <= 0 {
		cfg.SampleTime = time.Second
	}
	return &PID{cfg: cfg, now: time.Now}
}

// Reset clears all accumulated state.
func (p *PID) Reset() {
	p.integral = 0
	p.rawDerivative = 0
	p.lastError = 0
	p.previousError = 0
	p.lastRoomTemperature = 0
	p.lastCurveValue = 0
	p.hasSample = false
}

// ResetIntegral zeroes the integral term only. Explicit service call, the
// rest of the state keeps running.
func (p *PID) ResetIntegral() {
	p.integral = 0
}

// RestoreIntegral seeds the integral term from persisted state.
func (p *PID) RestoreIntegral(value float64) {
	p.integral = value
}

// Update feeds one sample into the controller. It returns false when the
// sample arrived before the sample time elapsed and was coalesced.
func (p *PID) Update(err, heatingCurveValue, roomTemperature float64) bool {
	now := p.now()

	if p.hasSample && now.Sub(p.lastUpdated) < p.cfg.SampleTime {
		return false
	}

	if !p.hasSample {
		// First sample only seeds the history.
		p.hasSample = true
		p.lastError = err
		p.previousError = err
		p.lastUpdated = now
		p.lastCurveValue = heatingCurveValue
		p.lastRoomTemperature = roomTemperature
		return true
	}

	dt := now.Sub(p.lastUpdated).Seconds()
	p.updateIntegral(err, heatingCurveValue, dt)
	p.updateDerivative(err, roomTemperature, dt)

	p.previousError = p.lastError
	p.lastError = err
	p.lastUpdated = now
	p.lastCurveValue = heatingCurveValue
	p.lastRoomTemperature = roomTemperature
	return true
}

func (p *PID) updateIntegral(err, heatingCurveValue, dt float64) {
	if math.Abs(err) > p.cfg.Deadband {
		// Large errors are the proportional term's job. Letting the
		// integral wind up here causes overshoot once the room catches up.
		p.integral = 0
		return
	}

	limit := heatingCurveValue / 10
	p.integral += p.ki() * err * dt
	p.integral = clamp(p.integral, -limit, +limit)
}

func (p *PID) updateDerivative(err, roomTemperature, dt float64) {
	if dt <= 0 {
		return
	}

	var derivative float64
	switch p.cfg.Version {
	case PIDImproved:
		derivative = -(roomTemperature - p.lastRoomTemperature) / dt
		if p.cfg.DerivativeTimeWeight > 0 {
			derivative *= p.cfg.DerivativeTimeWeight
		}
	default:
		derivative = (err - p.lastError) / dt
	}

	filtered := derivativeAlpha1*derivative + (1-derivativeAlpha1)*p.rawDerivative
	p.rawDerivative = derivativeAlpha2*filtered + (1-derivativeAlpha2)*p.rawDerivative
}

func (p *PID) kp() float64 {
	if p.cfg.AutomaticGains {
		return round6(p.cfg.AutomaticGainsValue * p.lastCurveValue * autoGainKpFactor / comfortReference)
	}
	return p.cfg.Kp
}

func (p *PID) ki() float64 {
	if p.cfg.AutomaticGains {
		return round6(p.cfg.AutomaticGainsValue * p.lastCurveValue / autoGainKiDivisor)
	}
	return p.cfg.Ki
}

func (p *PID) kd() float64 {
	if !p.derivativeEnabled() {
		return 0
	}
	if p.cfg.AutomaticGains {
		factor := autoGainKdRadiator
		if p.cfg.System == SystemUnderfloor {
			factor = autoGainKdUnderfloor
		}
		return round6(p.cfg.AutomaticGainsValue * p.lastCurveValue * factor / comfortReference)
	}
	return p.cfg.Kd
}

// derivativeEnabled mutes the derivative inside the deadband, where sensor
// noise dominates the real trend.
func (p *PID) derivativeEnabled() bool {
	return math.Abs(p.lastError) > p.cfg.Deadband || math.Abs(p.previousError) > p.cfg.Deadband
}

// Proportional returns the current proportional term.
func (p *PID) Proportional() float64 {
	return round3(p.kp() * p.lastError)
}

// Integral returns the current integral term.
func (p *PID) Integral() float64 {
	return round3(p.integral)
}

// Derivative returns the current derivative term.
func (p *PID) Derivative() float64 {
	return round3(p.kd() * p.rawDerivative)
}

// Output is the correction added on top of the heating curve value.
func (p *PID) Output() float64 {
	return p.Proportional() + p.Integral() + p.Derivative()
}

func (p *PID) LastError() float64 {
	return p.lastError
}

func (p *PID) State() PIDState {
	return PIDState{
		Proportional: p.Proportional(),
		Integral:     p.Integral(),
		Derivative:   p.Derivative(),
		LastError:    p.lastError,
		Kp:           p.kp(),
		Ki:           p.ki(),
		Kd:           p.kd(),
		LastUpdated:  p.lastUpdated,
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
