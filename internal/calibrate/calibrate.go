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

// Package calibrate discovers the boiler's overshoot protection value: the
// maximum flow temperature it produces at minimum fire. The procedure runs
// as a long-lived session with exclusive control of the boiler output and a
// hard wall-clock deadline.
package calibrate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/antst/satbc/internal/logger"
)

type State string

const (
	StateIdle       State = "idle"
	StateProbing    State = "probing"
	StateHolding    State = "holding"
	StateEvaluating State = "evaluating"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

type Variant string

const (
	// VariantSimple holds the boiler at 0% modulation and reads the flow
	// temperature directly.
	VariantSimple Variant = "simple"
	// VariantAdaptive infers the value from the modulation level when the
	// boiler refuses the 0% instruction.
	VariantAdaptive Variant = "adaptive"
)

var (
	ErrTimeout            = errors.New("calibration deadline exceeded")
	ErrImplausibleResult  = errors.New("calibration produced an implausible overshoot value")
	ErrBoilerUnresponsive = errors.New("boiler telemetry lost during calibration")
	ErrAlreadyRunning     = errors.New("calibration session already active")
)

// Telemetry is one boiler telemetry reading.
type Telemetry struct {
	FlowTemperature   float64
	ReturnTemperature float64
	Modulation        float64
	FlameActive       bool
	Timestamp         time.Time
}

// Boiler is the narrow command/telemetry surface the calibrator needs.
type Boiler interface {
	Telemetry() (Telemetry, bool)
	SetControlSetpoint(value float64)
	SetMaxModulation(value float64)
	SetHeating(enabled bool)
}

type Config struct {
	// ProbeSetpoint is sent together with 0% max modulation, instructing
	// the boiler to run at minimum fire.
	ProbeSetpoint float64
	// ReleaseSetpoint is sent when the session releases the boiler.
	ReleaseSetpoint float64

	// MinPlausible and MaxSetpoint bound an acceptable candidate.
	MinPlausible float64
	MaxSetpoint  float64

	ProbingBudget   time.Duration
	HoldDuration    time.Duration
	Deadline        time.Duration
	SampleInterval  time.Duration
	TelemetryMaxAge time.Duration

	// AdaptiveSamples is how many readings the adaptive variant averages.
	AdaptiveSamples int
}

func DefaultConfig(maxSetpoint float64) Config {
	return Config{
		ProbeSetpoint:   75,
		ReleaseSetpoint: 10,
		MinPlausible:    25,
		MaxSetpoint:     maxSetpoint,
		ProbingBudget:   5 * time.Minute,
		HoldDuration:    10 * time.Minute,
		Deadline:        20 * time.Minute,
		SampleInterval:  5 * time.Second,
		TelemetryMaxAge: 30 * time.Second,
		AdaptiveSamples: 40,
	}
}

// Session is a diagnostics snapshot of the active (or last) session.
type Session struct {
	ID        uuid.UUID `json:"id"`
	State     State     `json:"state"`
	Variant   Variant   `json:"variant"`
	StartedAt time.Time `json:"started_at"`
	Samples   int       `json:"samples"`
	Candidate float64   `json:"candidate"`
	Error     string    `json:"error,omitempty"`
}

type session struct {
	id        uuid.UUID
	state     State
	variant   Variant
	startedAt time.Time

	probingStart time.Time
	holdingStart time.Time

	samples         int
	maxFlow         float64
	modulationTotal float64

	variantSwitched bool
	staleSince      time.Time
	dropouts        int

	err error
}

// Calibrator owns at most one session at a time. Transitions happen only on
// its own sampling cadence; external callers see immutable snapshots.
type Calibrator struct {
	mu     sync.Mutex
	cfg    Config
	boiler Boiler

	session *session
	cancel  context.CancelFunc

	// onResult receives the accepted overshoot protection value.
	onResult func(value float64)

	now func() time.Time
}

func New(cfg Config, boiler Boiler, onResult func(value float64)) *Calibrator {
	return &Calibrator{cfg: cfg, boiler: boiler, onResult: onResult, now: time.Now}
}

// Start begins a new session. It fails when one is already running; retry
// after completion or failure replaces the previous session.
func (c *Calibrator) Start(ctx context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionActive() {
		return c.snapshotLocked(), ErrAlreadyRunning
	}

	now := c.now()
	c.session = &session{
		id:           uuid.New(),
		state:        StateProbing,
		variant:      VariantSimple,
		startedAt:    now,
		probingStart: now,
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.run(runCtx)

	logger.L().Infof("Calibration session %s started", c.session.id)
	return c.snapshotLocked(), nil
}

// Cancel aborts the active session and releases the boiler.
func (c *Calibrator) Cancel() Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionActive() {
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		logger.L().Infof("Calibration session %s cancelled", c.session.id)
		c.session.state = StateIdle
		c.releaseBoiler()
	}
	return c.snapshotLocked()
}

// Active reports whether a session currently holds the boiler output path.
func (c *Calibrator) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionActive()
}

// Session returns a snapshot of the current or last session.
func (c *Calibrator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Calibrator) sessionActive() bool {
	if c.session == nil {
		return false
	}
	switch c.session.state {
	case StateProbing, StateHolding, StateEvaluating:
		return true
	}
	return false
}

func (c *Calibrator) snapshotLocked() Session {
	if c.session == nil {
		return Session{State: StateIdle, Variant: VariantSimple}
	}

	s := Session{
		ID:        c.session.id,
		State:     c.session.state,
		Variant:   c.session.variant,
		StartedAt: c.session.startedAt,
		Samples:   c.session.samples,
		Candidate: c.candidateLocked(),
	}
	if c.session.err != nil {
		s.Error = c.session.err.Error()
	}
	return s
}

func (c *Calibrator) run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// The context ending is an abort, not a verdict. Release the
			// boiler so a vanished caller can never leave the loop pinned.
			c.mu.Lock()
			if c.sessionActive() {
				logger.L().Warnf("Calibration session %s aborted: %v", c.session.id, ctx.Err())
				c.session.state = StateIdle
				c.releaseBoiler()
			}
			c.cancel = nil
			c.mu.Unlock()
			return
		case <-ticker.C:
			c.mu.Lock()
			done := c.step(c.now())
			var result *float64
			if done && c.session != nil && c.session.state == StateCompleted {
				v := c.candidateLocked()
				result = &v
			}
			if done {
				c.cancel = nil
			}
			c.mu.Unlock()
			if done {
				// The result hook runs unlocked; it is free to call back
				// into the calibrator.
				if result != nil && c.onResult != nil {
					c.onResult(*result)
				}
				return
			}
		}
	}
}

// step advances the state machine by one sampling interval. It returns true
// once the session reached a terminal state.
func (c *Calibrator) step(now time.Time) bool {
	s := c.session
	if s == nil || !c.sessionActive() {
		return true
	}

	// Deadline watchdog bounds the user-visible wait no matter what the
	// boiler does.
	if now.Sub(s.startedAt) >= c.cfg.Deadline {
		return c.fail(ErrTimeout)
	}

	telemetry, ok := c.boiler.Telemetry()
	fresh := ok && now.Sub(telemetry.Timestamp) <= c.cfg.TelemetryMaxAge

	if !fresh {
		if c.handleDropout(now) {
			return c.fail(ErrBoilerUnresponsive)
		}
		return false
	}
	s.staleSince = time.Time{}

	switch s.state {
	case StateProbing:
		c.stepProbing(now, telemetry)
	case StateHolding:
		c.stepHolding(now, telemetry)
	case StateEvaluating:
		return c.evaluate()
	}
	return false
}

// handleDropout tracks a telemetry blackout. The first sustained dropout
// switches the simple variant to adaptive; the second one is terminal.
func (c *Calibrator) handleDropout(now time.Time) bool {
	s := c.session
	if s.staleSince.IsZero() {
		s.staleSince = now
		return false
	}
	if now.Sub(s.staleSince) < c.cfg.TelemetryMaxAge {
		return false
	}

	s.staleSince = time.Time{}
	s.dropouts++
	if s.dropouts == 1 && !s.variantSwitched {
		logger.L().Warn("Boiler telemetry lost, switching to adaptive calibration")
		c.switchToAdaptive(now)
		return false
	}
	return true
}

func (c *Calibrator) stepProbing(now time.Time, telemetry Telemetry) {
	s := c.session

	// Re-assert the probe command each interval. The gateway may have been
	// restarted or overridden since the last one.
	c.boiler.SetHeating(true)
	c.boiler.SetMaxModulation(0)
	c.boiler.SetControlSetpoint(c.cfg.ProbeSetpoint)

	if telemetry.FlameActive && telemetry.Modulation <= 0 {
		logger.L().Infof("Boiler confirmed 0%% modulation, holding for %v", c.cfg.HoldDuration)
		s.state = StateHolding
		s.holdingStart = now
		return
	}

	if now.Sub(s.probingStart) >= c.cfg.ProbingBudget && !s.variantSwitched {
		logger.L().Warn("Boiler did not honor 0% modulation, switching to adaptive calibration")
		c.switchToAdaptive(now)
	}
}

// switchToAdaptive happens at most once per session; the probing budget
// check and the dropout handler both guard on variantSwitched.
func (c *Calibrator) switchToAdaptive(now time.Time) {
	s := c.session
	s.variant = VariantAdaptive
	s.variantSwitched = true
	s.state = StateHolding
	s.holdingStart = now
	s.samples = 0
	s.maxFlow = 0
	s.modulationTotal = 0
}

func (c *Calibrator) stepHolding(now time.Time, telemetry Telemetry) {
	s := c.session

	s.samples++
	s.modulationTotal += telemetry.Modulation
	if telemetry.FlowTemperature > s.maxFlow {
		s.maxFlow = telemetry.FlowTemperature
	}

	switch s.variant {
	case VariantAdaptive:
		if s.samples >= c.cfg.AdaptiveSamples {
			s.state = StateEvaluating
		}
	default:
		if now.Sub(s.holdingStart) >= c.cfg.HoldDuration {
			s.state = StateEvaluating
		}
	}
}

func (c *Calibrator) evaluate() bool {
	s := c.session
	candidate := c.candidateLocked()

	if candidate < c.cfg.MinPlausible || candidate >= c.cfg.MaxSetpoint {
		return c.fail(errors.Wrapf(ErrImplausibleResult, "candidate %.1f", candidate))
	}

	s.state = StateCompleted
	c.releaseBoiler()
	logger.L().Infof("Calibration session %s completed, overshoot protection value %.1f", s.id, candidate)
	return true
}

func (c *Calibrator) fail(err error) bool {
	s := c.session
	s.state = StateFailed
	s.err = err
	c.releaseBoiler()
	logger.L().Errorf("Calibration session %s failed: %v", s.id, err)
	return true
}

// releaseBoiler hands the output path back to the control loop.
func (c *Calibrator) releaseBoiler() {
	c.boiler.SetMaxModulation(100)
	c.boiler.SetControlSetpoint(c.cfg.ReleaseSetpoint)
	c.boiler.SetHeating(false)
}

// candidateLocked is the overshoot protection value the session would
// produce in its current state.
func (c *Calibrator) candidateLocked() float64 {
	s := c.session
	if s.variant == VariantAdaptive {
		if s.samples == 0 {
			return 0
		}
		mean := s.modulationTotal / float64(s.samples)
		return (100 - mean) / 100 * c.cfg.ProbeSetpoint
	}
	return s.maxFlow
}
