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

package internal

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antst/satbc/internal/calibrate"
	"github.com/antst/satbc/internal/config"
	"github.com/antst/satbc/internal/control"
	"github.com/antst/satbc/internal/logger"
	"github.com/antst/satbc/internal/safe_mqtt"
	"github.com/antst/satbc/internal/store"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
)

const tickInterval = 10 * time.Second

// Diagnostics is the read-only state exposed over HTTP.
type Diagnostics struct {
	Enabled             bool               `json:"enabled"`
	HeatingCurveValue   float64            `json:"heating_curve_value"`
	HeatingCurveValid   bool               `json:"heating_curve_valid"`
	PID                 control.PIDState   `json:"pid"`
	PWMState            control.PWMState   `json:"pwm_state"`
	DutyCycle           *control.DutyCycle `json:"duty_cycle,omitempty"`
	MinimumSetpoint     float64            `json:"minimum_setpoint"`
	OvershootProtection *float64           `json:"overshoot_protection_value,omitempty"`
	Calibration         calibrate.Session  `json:"calibration"`
	LastCommand         *Command           `json:"last_command,omitempty"`
}

// Controller is the control loop: it condenses sensor state into a boiler
// command once per tick and owns the calibration lifecycle.
type Controller struct {
	mu  sync.Mutex
	cfg *config.Config

	// active is the tuning the loop currently runs on; staged holds a
	// validated replacement promoted between ticks, and never while a
	// calibration owns the boiler.
	active *config.ControlConfig
	staged *config.ControlConfig

	sensors SensorView
	boiler  BoilerDriver
	db      *store.Store
	mqtt    safe_mqtt.MqttClient

	curve       *control.HeatingCurve
	pid         *control.PID
	pwm         *control.PWM
	minSetpoint *control.MinimumSetpoint
	calibrator  *calibrate.Calibrator

	enabled bool
	opv     float64
	hasOPV  bool

	lastCommand     Command
	hasCommand      bool
	staleSince      time.Time
	longStaleLogged bool

	controlChan chan bool
	now         func() time.Time
}

func NewController(_cfg *config.Config, _db *store.Store, _sensors SensorView, _boiler BoilerDriver) *Controller {
	c := &Controller{
		cfg:         _cfg,
		active:      _cfg.Control,
		sensors:     _sensors,
		boiler:      _boiler,
		db:          _db,
		enabled:     true,
		controlChan: make(chan bool, childChanBuffer),
		now:         time.Now,
	}

	c.rebuild()
	c.calibrator = calibrate.New(
		calibrate.DefaultConfig(*c.active.MaximumSetpoint), _boiler, c.calibrationCompleted,
	)
	c.restoreState()

	return c
}

// ControlChan is where the sensor side signals that an input changed.
func (c *Controller) ControlChan() chan bool {
	return c.controlChan
}

// SetSensors wires the sensor side in. The sensor hub needs the control
// channel from this controller, so it is constructed second and attached
// here before Run.
func (c *Controller) SetSensors(sensors SensorView) {
	c.mu.Lock()
	c.sensors = sensors
	c.mu.Unlock()
}

// rebuild recreates the control primitives from the active configuration.
// The PID integral survives the rebuild so a tuning change does not drop
// accumulated correction.
func (c *Controller) rebuild() {
	integral := 0.0
	if c.pid != nil {
		integral = c.pid.Integral()
	}

	cc := c.active
	c.curve = control.NewHeatingCurve(
		control.HeatingSystem(cc.HeatingSystem),
		control.CurveVersion(cc.HeatingCurveVersion),
		*cc.HeatingCurveCoefficient,
		*cc.MaximumSetpoint,
	)
	c.pid = control.NewPID(control.PIDConfig{
		Version:              control.PIDVersion(cc.PIDVersion),
		System:               control.HeatingSystem(cc.HeatingSystem),
		Kp:                   *cc.Proportional,
		Ki:                   *cc.Integral,
		Kd:                   *cc.Derivative,
		AutomaticGains:       cc.AutomaticGains,
		AutomaticGainsValue:  *cc.AutomaticGainsValue,
		DerivativeTimeWeight: *cc.DerivativeTimeWeight,
		Deadband:             *cc.Deadband,
		SampleTime:           cc.SampleTime.Value(),
	})
	c.pid.RestoreIntegral(integral)
	c.pwm = control.NewPWM(control.PWMConfig{
		CyclesPerHour: *cc.CyclesPerHour,
		CycleTime:     cc.DutyCyclePeriod.Value(),
		Automatic:     cc.AutomaticDutyCycle,
	})
	c.minSetpoint = control.NewMinimumSetpoint(
		*cc.MinimumSetpointAdjustmentFactor, *cc.MinimumSetpoint,
	)
}

func (c *Controller) restoreState() {
	if v, err := c.db.GetFloat(store.KeyOvershootProtection); err == nil {
		c.opv = v
		c.hasOPV = true
		logger.L().Infof("Restored overshoot protection value: %v", v)
	}
	if v, err := c.db.GetFloat(store.KeyPIDIntegral); err == nil {
		c.pid.RestoreIntegral(v)
		logger.L().Debugf("Restored PID integral: %v", v)
	}
	if v, err := c.db.GetValue(store.KeyEnabled); err == nil {
		c.enabled = v == "1"
		logger.L().Infof("Restored enabled state: %v", c.enabled)
	}
}

// StartMQTT subscribes the runtime control topics. Kept out of the
// constructor so the loop can run without a broker.
func (c *Controller) StartMQTT() {
	mc := c.cfg.MQTTConfig
	c.mqtt = safe_mqtt.InitMQTTClient(
		mc.URL, "satbc-control-"+uuid.New().String(), mc.User, mc.Password,
	)

	group := mc.ControlTopic + "/"
	for _, topic := range []string{
		"enable", "heating_mode", "log_level", "heating_curve_coefficient",
		"target_temperature", "reset_integral", "calibrate", "force_pwm",
	} {
		c.mqtt.SafeSubscribe(group+topic, mqttQoS, c.controlUpdateHandler)
	}
}

// Run drives the control loop until the context is cancelled. It ticks on
// a fixed interval and immediately when a sensor reports a change.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	c.Tick()
	for {
		select {
		case <-ctx.Done():
			c.persistIntegral()
			return
		case <-c.controlChan:
			c.Tick()
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick runs one pass of the control pipeline and returns the command in
// effect afterwards. Repeated ticks with unchanged inputs return the same
// command.
func (c *Controller) Tick() Command {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.promoteStagedLocked()

	if c.calibrator.Active() {
		// The calibrator owns the boiler; whatever we computed would
		// fight its probe commands.
		return c.lastCommand
	}

	snap := c.sensors.Snapshot(now, c.active.SensorMaxAge.Value(), c.active.ThermalComfort)

	if !c.enabled {
		return c.emitLocked(c.offCommand())
	}
	if snap.ContactSuppress {
		logger.L().Debug("Contact open, heating suppressed")
		return c.emitLocked(c.offCommand())
	}
	if !snap.InsideOK || !snap.OutsideOK {
		return c.holdLocked(now, snap)
	}
	c.staleSince = zeroTS
	c.longStaleLogged = false

	target := *c.active.TargetTemperature
	if snap.SetpointOK {
		target = snap.Setpoint
	}

	c.curve.Update(target, snap.OutsideTemperature)
	aggregated := control.AggregateError(
		control.HeatingMode(c.active.HeatingMode), snap.PrimaryError, snap.Rooms,
	)
	if c.pid.Update(aggregated, c.curve.Value(), snap.InsideTemperature) {
		c.persistIntegral()
	}

	requested := clampF(
		c.curve.Value()+c.pid.Output(), *c.active.MinimumSetpoint, *c.active.MaximumSetpoint,
	)

	cmd := c.composeLocked(requested)
	return c.emitLocked(cmd)
}

// composeLocked turns the requested water temperature into a command,
// switching to PWM when the boiler cannot modulate that low.
func (c *Controller) composeLocked(requested float64) Command {
	lowLoad := c.active.OvershootProtection && c.hasOPV && requested < c.opv
	if c.active.ForcePWM {
		if c.hasOPV {
			lowLoad = true
		} else {
			logger.L().Warn("PWM forced but no overshoot protection value known yet")
		}
	}

	if !lowLoad {
		if c.pwm != nil {
			c.pwm.Reset()
		}
		cmd := Command{Setpoint: requested, MaxModulation: 100, Heating: true}
		c.fillDHW(&cmd)
		return cmd
	}

	var ret float64
	if telemetry, ok := c.boiler.Telemetry(); ok {
		ret = telemetry.ReturnTemperature
	}
	adjusted := c.minSetpoint.Adjust(c.opv, ret)

	c.pwm.Update(requested, c.curve.BaseOffset(), c.opv)
	if c.pwm.State() == control.PWMOn {
		cmd := Command{Setpoint: adjusted, MaxModulation: 0, Heating: true}
		c.fillDHW(&cmd)
		return cmd
	}
	return c.offCommand()
}

func (c *Controller) fillDHW(cmd *Command) {
	if c.active.DHWSetpoint != nil {
		cmd.DHWSetpoint = *c.active.DHWSetpoint
	}
}

func (c *Controller) offCommand() Command {
	cmd := Command{Setpoint: *c.active.MinimumSetpoint, MaxModulation: 100, Heating: false}
	c.fillDHW(&cmd)
	return cmd
}

// holdLocked keeps the last command while sensors are stale; the boiler's
// own thermostat limits are the backstop. A sustained outage is logged once.
func (c *Controller) holdLocked(now time.Time, snap Snapshot) Command {
	if !c.staleSince.After(zeroTS) {
		c.staleSince = now
		logger.L().Warnf(
			"Sensor data stale (inside ok: %v, outside ok: %v), holding last command",
			snap.InsideOK, snap.OutsideOK,
		)
	}
	if !c.longStaleLogged && now.Sub(c.staleSince) >= c.active.LongStaleAge.Value() {
		c.longStaleLogged = true
		logger.L().Errorf("Sensors stale for %v, still holding last command", now.Sub(c.staleSince))
	}

	if !c.hasCommand {
		return c.emitLocked(c.offCommand())
	}
	return c.lastCommand
}

func (c *Controller) emitLocked(cmd Command) Command {
	if !c.hasCommand || cmd != c.lastCommand {
		logger.L().Infof(
			"Boiler command: setpoint=%.1f maxmod=%.0f heating=%v",
			cmd.Setpoint, cmd.MaxModulation, cmd.Heating,
		)
		c.boiler.Update(cmd)
		c.lastCommand = cmd
		c.hasCommand = true
	}
	return cmd
}

func (c *Controller) persistIntegral() {
	if err := c.db.UpsertFloat(store.KeyPIDIntegral, c.pid.Integral()); err != nil {
		logger.L().Error(err)
	}
}

// promoteStagedLocked swaps in a staged configuration. Deferred while a
// calibration runs so the probe finishes under the settings it started
// with.
func (c *Controller) promoteStagedLocked() {
	if c.staged == nil || c.calibrator.Active() {
		return
	}
	c.active = c.staged
	c.cfg.Control = c.staged
	c.staged = nil
	c.rebuild()
	logger.L().Info("Promoted staged control configuration")
}

// stage validates a mutated copy of the active configuration and queues it
// for promotion on the next tick. Invalid updates are dropped and the loop
// keeps the current tuning.
func (c *Controller) stage(mutate func(*config.ControlConfig)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := *c.active
	mutate(&next)

	probe := *c.cfg
	probe.Control = &next
	if err := probe.Validate(); err != nil {
		logger.L().Errorf("Rejected control update: %v", err)
		return err
	}

	c.staged = &next
	return nil
}

// calibrationCompleted is the calibrator's result hook: persist the value
// and put it into effect.
func (c *Controller) calibrationCompleted(value float64) {
	c.mu.Lock()
	c.opv = value
	c.hasOPV = true
	c.minSetpoint.Reset()
	c.mu.Unlock()

	if err := c.db.UpsertFloat(store.KeyOvershootProtection, value); err != nil {
		logger.L().Error(err)
	}
	logger.L().Infof("Calibration completed, overshoot protection value: %v", value)
	c.controlChan <- true
}

// RequestCalibration starts an overshoot protection probe. The control
// loop stops emitting commands until the session finishes.
func (c *Controller) RequestCalibration(ctx context.Context) (calibrate.Session, error) {
	return c.calibrator.Start(ctx)
}

func (c *Controller) CancelCalibration() calibrate.Session {
	session := c.calibrator.Cancel()
	c.controlChan <- true
	return session
}

func (c *Controller) Calibrating() bool {
	return c.calibrator.Active()
}

func (c *Controller) ResetIntegral() {
	c.mu.Lock()
	c.pid.ResetIntegral()
	c.mu.Unlock()
	c.persistIntegral()
	logger.L().Info("PID integral reset")
}

// ForcePWM pins the duty cycle output to on or off, or releases it back to
// automatic scheduling.
func (c *Controller) ForcePWM(state string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch strings.ToLower(state) {
	case "on":
		c.pwm.Force(true)
	case "off":
		c.pwm.Force(false)
	case "release":
		c.pwm.Release()
	default:
		return errors.Errorf("unknown PWM force state %q", state)
	}
	return nil
}

func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()

	payload := "0"
	if enabled {
		payload = "1"
	}
	if err := c.db.UpsertValue(store.KeyEnabled, payload); err != nil {
		logger.L().Error(err)
	}
	logger.L().Infof("Controller enabled: %v", enabled)
	c.controlChan <- true
}

func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// CurrentCommand returns the last emitted command; ok is false before the
// first emission.
func (c *Controller) CurrentCommand() (Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCommand, c.hasCommand
}

func (c *Controller) Diagnostics() Diagnostics {
	c.mu.Lock()
	defer c.mu.Unlock()

	d := Diagnostics{
		Enabled:           c.enabled,
		HeatingCurveValue: c.curve.Value(),
		HeatingCurveValid: c.curve.Valid(),
		PID:               c.pid.State(),
		PWMState:          c.pwm.State(),
		DutyCycle:         c.pwm.DutyCycleValue(),
		MinimumSetpoint:   c.minSetpoint.Current(),
		Calibration:       c.calibrator.Session(),
	}
	if c.hasOPV {
		opv := c.opv
		d.OvershootProtection = &opv
	}
	if c.hasCommand {
		cmd := c.lastCommand
		d.LastCommand = &cmd
	}
	return d
}

func (c *Controller) controlUpdateHandler(client mqtt.Client, message mqtt.Message) {
	topic := message.Topic()[strings.LastIndex(message.Topic(), "/")+1:]
	payload := strings.TrimSpace(string(message.Payload()))
	logger.L().Infof("Got MQTT control request: %v : %v", topic, payload)

	switch topic {
	case "enable":
		c.SetEnabled(payload == "1")

	case "heating_mode":
		if payload != config.HeatingModeComfort && payload != config.HeatingModeEco {
			logger.L().Errorf("Unknown heating mode: %v", payload)
			return
		}
		_ = c.stage(func(cc *config.ControlConfig) { cc.HeatingMode = payload })

	case "log_level":
		var level zapcore.Level
		if err := level.Set(payload); err != nil {
			logger.L().Errorf("Wrong log level `%v`: %v", payload, err)
			return
		}
		logger.SetLogLevel(level)

	case "heating_curve_coefficient":
		value, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			logger.L().Error(err)
			return
		}
		_ = c.stage(func(cc *config.ControlConfig) { cc.HeatingCurveCoefficient = config.GetPTR(value) })

	case "target_temperature":
		value, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			logger.L().Error(err)
			return
		}
		_ = c.stage(func(cc *config.ControlConfig) { cc.TargetTemperature = config.GetPTR(value) })

	case "reset_integral":
		c.ResetIntegral()

	case "calibrate":
		if payload == "cancel" {
			c.CancelCalibration()
			return
		}
		if _, err := c.RequestCalibration(context.Background()); err != nil {
			logger.L().Errorf("Calibration request failed: %v", err)
		}

	case "force_pwm":
		if err := c.ForcePWM(payload); err != nil {
			logger.L().Error(err)
		}

	default:
		logger.L().Errorf("Unknown control topic: %s", topic)
	}

	c.controlChan <- true
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
