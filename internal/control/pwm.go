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
	"time"
)

type PWMState string

const (
	PWMIdle PWMState = "idle"
	PWMOn   PWMState = "on"
	PWMOff  PWMState = "off"
)

// DutyCycle is one on/off period of low-load operation.
type DutyCycle struct {
	On  time.Duration `json:"on"`
	Off time.Duration `json:"off"`
}

func (d DutyCycle) Period() time.Duration {
	return d.On + d.Off
}

type PWMConfig struct {
	// CyclesPerHour caps burner starts; cycles are stretched, never split,
	// to honor it.
	CyclesPerHour int

	// CycleTime is the fixed period used when Automatic is false.
	CycleTime time.Duration

	// Automatic picks the period from the demand fraction, favoring longer
	// cycles as demand decreases.
	Automatic bool
}

// PWM converts a control setpoint below the boiler's minimum capacity into
// timed on/off cycles. Owned by the control loop; not safe for concurrent
// use.
type PWM struct {
	cfg PWMConfig

	state      PWMState
	duty       *DutyCycle
	lastChange time.Time
	forced     *bool

	now func() time.Time
}

func NewPWM(cfg PWMConfig) *PWM {
	return &PWM{cfg: cfg, state: PWMIdle, now: time.Now}
}

// Reset returns the scheduler to idle. A forced pin survives the reset;
// only Release ends it.
func (p *PWM) Reset() {
	if p.forced != nil {
		return
	}
	p.duty = nil
	p.state = PWMIdle
	p.lastChange = p.now()
}

// Force pins the output state until Release is called. The scheduler keeps
// computing duty cycles for diagnostics but no longer alternates.
func (p *PWM) Force(on bool) {
	p.forced = &on
	if on {
		p.state = PWMOn
	} else {
		p.state = PWMOff
	}
	p.lastChange = p.now()
}

// Release returns the scheduler to automatic control on the next update.
func (p *PWM) Release() {
	p.forced = nil
}

func (p *PWM) Forced() bool {
	return p.forced != nil
}

// Update advances the schedule for the requested setpoint. baseOffset is
// the heating curve's no-heat water temperature, overshootProtectionValue
// the calibrated maximum flow temperature at minimum fire.
func (p *PWM) Update(setpoint, baseOffset, overshootProtectionValue float64) {
	if p.forced != nil {
		return
	}

	if overshootProtectionValue <= baseOffset {
		p.Reset()
		return
	}

	fraction := (setpoint - baseOffset) / (overshootProtectionValue - baseOffset)
	duty := p.calculateDutyCycle(fraction)
	p.duty = duty

	if duty == nil || duty.On == 0 {
		p.state = PWMIdle
		p.lastChange = p.now()
		return
	}

	elapsed := p.now().Sub(p.lastChange)
	switch p.state {
	case PWMOn:
		if elapsed >= duty.On {
			p.state = PWMOff
			p.lastChange = p.now()
		}
	case PWMOff:
		if elapsed >= duty.Off {
			p.state = PWMOn
			p.lastChange = p.now()
		}
	default:
		p.state = PWMOn
		p.lastChange = p.now()
	}
}

// calculateDutyCycle maps the demand fraction to on/off durations. In
// automatic mode low demand gets short burns with long pauses and high
// demand long burns with short pauses; the middle band runs a proportional
// fifteen-minute cycle. A nil result means PWM does not apply.
func (p *PWM) calculateDutyCycle(fraction float64) *DutyCycle {
	if fraction >= 1 {
		return nil
	}
	if fraction < 0 {
		fraction = 0
	}

	var on, off time.Duration
	if p.cfg.Automatic {
		switch {
		case fraction < 0.1:
			return &DutyCycle{}
		case fraction <= 0.2:
			on = 3 * time.Minute
			off = time.Duration(float64(3*time.Minute)/(1-fraction)) - 3*time.Minute
		case fraction <= 0.8:
			on = time.Duration(fraction * float64(15*time.Minute))
			off = time.Duration((1 - fraction) * float64(15*time.Minute))
		case fraction <= 0.9:
			on = time.Duration(float64(3*time.Minute)/(1-fraction)) - 3*time.Minute
			off = 3 * time.Minute
		default:
			return nil
		}
	} else {
		on = time.Duration(fraction * float64(p.cfg.CycleTime))
		off = p.cfg.CycleTime - on
	}

	return p.capCycle(&DutyCycle{On: on, Off: off})
}

// capCycle stretches a cycle that would exceed the cycles-per-hour budget,
// preserving the on/off ratio.
func (p *PWM) capCycle(duty *DutyCycle) *DutyCycle {
	if p.cfg.CyclesPerHour <= 0 || duty.Period() == 0 {
		return duty
	}

	minPeriod := time.Hour / time.Duration(p.cfg.CyclesPerHour)
	if duty.Period() >= minPeriod {
		return duty
	}

	scale := float64(minPeriod) / float64(duty.Period())
	return &DutyCycle{
		On:  time.Duration(float64(duty.On) * scale),
		Off: time.Duration(float64(duty.Off) * scale),
	}
}

func (p *PWM) State() PWMState {
	return p.state
}

// DutyCycleValue returns the last computed schedule, nil while idle or out
// of the PWM regime.
func (p *PWM) DutyCycleValue() *DutyCycle {
	return p.duty
}
