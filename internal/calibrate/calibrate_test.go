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

package calibrate

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBoiler struct {
	telemetry    Telemetry
	hasTelemetry bool

	lastSetpoint float64
	lastMaxMod   float64
	heating      bool
}

func (b *fakeBoiler) Telemetry() (Telemetry, bool)     { return b.telemetry, b.hasTelemetry }
func (b *fakeBoiler) SetControlSetpoint(value float64) { b.lastSetpoint = value }
func (b *fakeBoiler) SetMaxModulation(value float64)   { b.lastMaxMod = value }
func (b *fakeBoiler) SetHeating(enabled bool)          { b.heating = enabled }

func (b *fakeBoiler) feed(flow, mod float64, flame bool, ts time.Time) {
	b.telemetry = Telemetry{
		FlowTemperature: flow,
		Modulation:      mod,
		FlameActive:     flame,
		Timestamp:       ts,
	}
	b.hasTelemetry = true
}

// testCalibrator seeds an active session without the background goroutine,
// so the test drives the state machine through step.
func testCalibrator(t *testing.T, cfg Config, boiler *fakeBoiler) (*Calibrator, *time.Time) {
	t.Helper()

	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	c := New(cfg, boiler, nil)
	c.now = func() time.Time { return now }

	c.session = &session{
		id:           uuid.New(),
		state:        StateProbing,
		variant:      VariantSimple,
		startedAt:    now,
		probingStart: now,
	}

	return c, &now
}

func TestCalibrationSimpleVariantCompletes(t *testing.T) {
	boiler := &fakeBoiler{}
	cfg := DefaultConfig(65)
	c, now := testCalibrator(t, cfg, boiler)

	// Boiler honors the probe right away.
	boiler.feed(48, 0, true, *now)
	require.False(t, c.step(*now))
	require.Equal(t, StateHolding, c.Session().State)
	assert.Equal(t, cfg.ProbeSetpoint, boiler.lastSetpoint)
	assert.Zero(t, boiler.lastMaxMod)

	// Flow creeps up during the hold.
	flow := 48.0
	for !c.step(*now) {
		*now = now.Add(cfg.SampleInterval)
		if flow < 57 {
			flow += 0.5
		}
		boiler.feed(flow, 0, true, *now)
	}

	session := c.Session()
	assert.Equal(t, StateCompleted, session.State)
	assert.Equal(t, VariantSimple, session.Variant)
	assert.InDelta(t, 57.0, session.Candidate, 1e-9)
	assert.False(t, c.Active())

	// Boiler handed back.
	assert.False(t, boiler.heating)
	assert.Equal(t, 100.0, boiler.lastMaxMod)
	assert.Equal(t, cfg.ReleaseSetpoint, boiler.lastSetpoint)
}

func TestCalibrationSwitchesToAdaptiveWhenProbeRefused(t *testing.T) {
	boiler := &fakeBoiler{}
	cfg := DefaultConfig(80)
	c, now := testCalibrator(t, cfg, boiler)

	// Boiler keeps modulating at 40% no matter what.
	for i := 0; time.Duration(i)*cfg.SampleInterval <= cfg.ProbingBudget; i++ {
		boiler.feed(50, 40, true, *now)
		require.False(t, c.step(*now))
		*now = now.Add(cfg.SampleInterval)
	}
	require.Equal(t, VariantAdaptive, c.Session().Variant)
	require.Equal(t, StateHolding, c.Session().State)

	done := false
	for !done {
		boiler.feed(50, 40, true, *now)
		done = c.step(*now)
		*now = now.Add(cfg.SampleInterval)
	}

	session := c.Session()
	assert.Equal(t, StateCompleted, session.State)
	// (100 - 40) / 100 * 75
	assert.InDelta(t, 45.0, session.Candidate, 1e-9)
}

func TestCalibrationFailsOnDeadline(t *testing.T) {
	boiler := &fakeBoiler{}
	cfg := DefaultConfig(65)
	// Make the adaptive variant effectively endless so only the deadline
	// can end the session.
	cfg.AdaptiveSamples = 1 << 20
	c, now := testCalibrator(t, cfg, boiler)

	start := *now
	done := false
	for !done {
		boiler.feed(50, 100, true, *now)
		done = c.step(*now)
		*now = now.Add(cfg.SampleInterval)
	}

	session := c.Session()
	assert.Equal(t, StateFailed, session.State)
	assert.Contains(t, session.Error, "deadline")
	assert.LessOrEqual(t, now.Sub(start), cfg.Deadline+cfg.SampleInterval)
	assert.False(t, c.Active())
	assert.False(t, boiler.heating)
}

func TestCalibrationRejectsImplausibleCandidate(t *testing.T) {
	boiler := &fakeBoiler{}
	cfg := DefaultConfig(65)
	c, now := testCalibrator(t, cfg, boiler)

	// Boiler pretends to honor the probe but the flow never gets past
	// lukewarm, so the simple candidate is implausibly low.
	done := false
	for !done {
		boiler.feed(20, 0, true, *now)
		done = c.step(*now)
		*now = now.Add(cfg.SampleInterval)
	}

	session := c.Session()
	assert.Equal(t, StateFailed, session.State)
	assert.Contains(t, session.Error, "implausible")
}

func TestCalibrationDropoutSwitchesThenFails(t *testing.T) {
	boiler := &fakeBoiler{}
	cfg := DefaultConfig(65)
	c, now := testCalibrator(t, cfg, boiler)

	// No telemetry at all: the first sustained blackout downgrades to the
	// adaptive variant, the second one is terminal.
	done := false
	steps := 0
	for !done {
		done = c.step(*now)
		*now = now.Add(cfg.SampleInterval)
		steps++
		require.Less(t, steps, 100)
	}

	session := c.Session()
	assert.Equal(t, StateFailed, session.State)
	assert.Equal(t, VariantAdaptive, session.Variant)
	assert.Contains(t, session.Error, "telemetry lost")
}

func TestCalibrationCancelReleasesBoiler(t *testing.T) {
	boiler := &fakeBoiler{}
	c, _ := testCalibrator(t, DefaultConfig(65), boiler)

	require.True(t, c.Active())
	session := c.Cancel()

	assert.Equal(t, StateIdle, session.State)
	assert.False(t, c.Active())
	assert.False(t, boiler.heating)
	assert.Equal(t, 100.0, boiler.lastMaxMod)
}

func TestCalibrationAbortsWhenContextEnds(t *testing.T) {
	boiler := &fakeBoiler{}
	c := New(DefaultConfig(65), boiler, nil)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := c.Start(ctx)
	require.NoError(t, err)
	require.True(t, c.Active())

	// The caller vanishing must not leave the session pinned in probing.
	cancel()
	require.Eventually(t, func() bool { return !c.Active() }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateIdle, c.Session().State)
	assert.False(t, boiler.heating)
	assert.Equal(t, 100.0, boiler.lastMaxMod)
	assert.Equal(t, DefaultConfig(65).ReleaseSetpoint, boiler.lastSetpoint)
}

func TestCalibrationRejectsConcurrentSession(t *testing.T) {
	boiler := &fakeBoiler{}
	c, _ := testCalibrator(t, DefaultConfig(65), boiler)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := c.Start(ctx)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}
