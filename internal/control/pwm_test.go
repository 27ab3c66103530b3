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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPWM(cfg PWMConfig) (*PWM, *fakeClock) {
	clock := newFakeClock()
	p := NewPWM(cfg)
	p.now = clock.Now
	return p, clock
}

func TestPWMProportionalBand(t *testing.T) {
	p, _ := testPWM(PWMConfig{Automatic: true, CyclesPerHour: 4})

	// base 28, protection 68: setpoint 40 gives fraction 0.3.
	p.Update(40, 28, 68)

	duty := p.DutyCycleValue()
	require.NotNil(t, duty)
	assert.Equal(t, time.Duration(4.5*float64(time.Minute)), duty.On)
	assert.Equal(t, time.Duration(10.5*float64(time.Minute)), duty.Off)
	assert.Equal(t, 15*time.Minute, duty.Period())
	assert.Equal(t, PWMOn, p.State())
}

func TestPWMIdleBelowMinimumDemand(t *testing.T) {
	p, _ := testPWM(PWMConfig{Automatic: true, CyclesPerHour: 4})

	// fraction 0.05
	p.Update(30, 28, 68)

	assert.Equal(t, PWMIdle, p.State())
	duty := p.DutyCycleValue()
	require.NotNil(t, duty)
	assert.Zero(t, duty.On)
}

func TestPWMDisabledNearFullDemand(t *testing.T) {
	p, _ := testPWM(PWMConfig{Automatic: true, CyclesPerHour: 4})

	// fraction 0.95
	p.Update(66, 28, 68)

	assert.Nil(t, p.DutyCycleValue())
	assert.Equal(t, PWMIdle, p.State())
}

func TestPWMAlternatesOnSchedule(t *testing.T) {
	p, clock := testPWM(PWMConfig{Automatic: true, CyclesPerHour: 4})

	p.Update(40, 28, 68)
	require.Equal(t, PWMOn, p.State())

	clock.Advance(4*time.Minute + 30*time.Second)
	p.Update(40, 28, 68)
	assert.Equal(t, PWMOff, p.State())

	clock.Advance(10*time.Minute + 30*time.Second)
	p.Update(40, 28, 68)
	assert.Equal(t, PWMOn, p.State())
}

func TestPWMCapStretchesShortCycles(t *testing.T) {
	p, _ := testPWM(PWMConfig{Automatic: false, CycleTime: 10 * time.Minute, CyclesPerHour: 4})

	// fraction 0.5 of a 10 minute cycle busts 4 cycles/hour; the cycle is
	// stretched to 15 minutes with the ratio intact.
	p.Update(48, 28, 68)

	duty := p.DutyCycleValue()
	require.NotNil(t, duty)
	assert.Equal(t, 15*time.Minute, duty.Period())
	assert.Equal(t, duty.On, duty.Off)
}

func TestPWMForcePinsState(t *testing.T) {
	p, clock := testPWM(PWMConfig{Automatic: true, CyclesPerHour: 4})

	p.Force(false)
	p.Update(40, 28, 68)
	assert.Equal(t, PWMOff, p.State())
	assert.True(t, p.Forced())

	clock.Advance(time.Hour)
	p.Update(40, 28, 68)
	assert.Equal(t, PWMOff, p.State())

	p.Release()
	assert.False(t, p.Forced())
	p.Update(40, 28, 68)
	assert.Equal(t, PWMOn, p.State())
}

func TestPWMForceSurvivesReset(t *testing.T) {
	p, _ := testPWM(PWMConfig{Automatic: true, CyclesPerHour: 4})

	// A high-demand tick resets the scheduler; the pin must hold through
	// it and through the next low-load update.
	p.Force(true)
	p.Reset()
	require.Equal(t, PWMOn, p.State())
	require.True(t, p.Forced())

	p.Update(40, 28, 57)
	assert.Equal(t, PWMOn, p.State())

	p.Release()
	p.Reset()
	assert.Equal(t, PWMIdle, p.State())
}

func TestPWMResetsWhenProtectionValueBelowBase(t *testing.T) {
	p, _ := testPWM(PWMConfig{Automatic: true, CyclesPerHour: 4})

	p.Update(40, 28, 68)
	require.Equal(t, PWMOn, p.State())

	p.Update(40, 28, 20)
	assert.Equal(t, PWMIdle, p.State())
	assert.Nil(t, p.DutyCycleValue())
}
