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

package config

import (
	"time"

	"github.com/pkg/errors"
)

const (
	HeatingSystemRadiator   = "radiator"
	HeatingSystemUnderfloor = "underfloor"

	HeatingModeComfort = "comfort"
	HeatingModeEco     = "eco"
)

// ControlConfig carries the tuning of the control engine. It is read as an
// immutable snapshot at the start of every control tick; runtime changes go
// through a staging copy promoted between ticks.
type ControlConfig struct {
	HeatingSystem string `yaml:"heating_system"`
	HeatingMode   string `yaml:"heating_mode"`

	HeatingCurveVersion     int      `yaml:"heating_curve_version"`
	HeatingCurveCoefficient *float64 `yaml:"heating_curve_coefficient"`

	MaximumSetpoint   *float64 `yaml:"maximum_setpoint"`
	MinimumSetpoint   *float64 `yaml:"minimum_setpoint"`
	TargetTemperature *float64 `yaml:"target_temperature"`
	DHWSetpoint       *float64 `yaml:"dhw_setpoint,omitempty"`

	PIDVersion           int      `yaml:"pid_controller_version"`
	Proportional         *float64 `yaml:"proportional"`
	Integral             *float64 `yaml:"integral"`
	Derivative           *float64 `yaml:"derivative"`
	AutomaticGains       bool     `yaml:"automatic_gains"`
	AutomaticGainsValue  *float64 `yaml:"automatic_gains_value"`
	DerivativeTimeWeight *float64 `yaml:"derivative_time_weight"`
	Deadband             *float64 `yaml:"deadband"`

	SampleTime   Duration `yaml:"sample_time"`
	SensorMaxAge Duration `yaml:"sensor_max_age"`
	LongStaleAge Duration `yaml:"long_stale_age"`

	OvershootProtection bool     `yaml:"overshoot_protection"`
	DutyCyclePeriod     Duration `yaml:"duty_cycle_period"`
	CyclesPerHour       *int     `yaml:"cycles_per_hour"`
	AutomaticDutyCycle  bool     `yaml:"automatic_duty_cycle"`
	ForcePWM            bool     `yaml:"force_pulse_width_modulation"`

	MinimumSetpointAdjustmentFactor *float64 `yaml:"minimum_setpoint_adjustment_factor"`

	// ThermalComfort folds humidity into the effective inside temperature.
	ThermalComfort bool `yaml:"thermal_comfort"`
}

func NewControlConfig() *ControlConfig {
	cfg := &ControlConfig{}
	cfg.FillDefaults()
	return cfg
}

func (c *ControlConfig) FillDefaults() {
	if c.HeatingSystem == "" {
		c.HeatingSystem = HeatingSystemRadiator
	}
	if c.HeatingMode == "" {
		c.HeatingMode = HeatingModeComfort
	}
	if c.HeatingCurveVersion == 0 {
		c.HeatingCurveVersion = 1
	}
	if c.HeatingCurveCoefficient == nil {
		c.HeatingCurveCoefficient = GetPTR(1.0)
	}
	if c.MaximumSetpoint == nil {
		c.MaximumSetpoint = GetPTR(65.0)
	}
	if c.MinimumSetpoint == nil {
		c.MinimumSetpoint = GetPTR(10.0)
	}
	if c.TargetTemperature == nil {
		c.TargetTemperature = GetPTR(20.0)
	}
	if c.PIDVersion == 0 {
		c.PIDVersion = 2
	}
	if c.Proportional == nil {
		c.Proportional = GetPTR(45.0)
	}
	if c.Integral == nil {
		c.Integral = GetPTR(0.0)
	}
	if c.Derivative == nil {
		c.Derivative = GetPTR(6000.0)
	}
	if c.AutomaticGainsValue == nil {
		c.AutomaticGainsValue = GetPTR(5.0)
	}
	if c.DerivativeTimeWeight == nil {
		c.DerivativeTimeWeight = GetPTR(2.0)
	}
	if c.Deadband == nil {
		c.Deadband = GetPTR(0.1)
	}
	if c.SampleTime <= 0 {
		c.SampleTime = Duration(time.Minute)
	}
	if c.SensorMaxAge <= 0 {
		c.SensorMaxAge = Duration(6 * time.Hour)
	}
	if c.LongStaleAge <= 0 {
		c.LongStaleAge = Duration(12 * time.Hour)
	}
	if c.DutyCyclePeriod <= 0 {
		c.DutyCyclePeriod = Duration(13 * time.Minute)
	}
	if c.CyclesPerHour == nil {
		c.CyclesPerHour = GetPTR(4)
	}
	if c.MinimumSetpointAdjustmentFactor == nil {
		c.MinimumSetpointAdjustmentFactor = GetPTR(0.2)
	}
}

// Validate rejects configurations the control loop must never see. The
// loop keeps running on the last valid configuration when a runtime update
// fails validation.
func (cfg *Config) Validate() error {
	c := cfg.Control
	if c == nil {
		return errors.New("control section missing")
	}

	if c.HeatingSystem != HeatingSystemRadiator && c.HeatingSystem != HeatingSystemUnderfloor {
		return errors.Errorf("unknown heating system %q", c.HeatingSystem)
	}
	if c.HeatingMode != HeatingModeComfort && c.HeatingMode != HeatingModeEco {
		return errors.Errorf("unknown heating mode %q", c.HeatingMode)
	}
	if c.HeatingCurveVersion < 1 || c.HeatingCurveVersion > 3 {
		return errors.Errorf("heating curve version %d out of range", c.HeatingCurveVersion)
	}
	if c.PIDVersion < 1 || c.PIDVersion > 2 {
		return errors.Errorf("pid controller version %d out of range", c.PIDVersion)
	}
	if *c.HeatingCurveCoefficient <= 0 {
		return errors.Errorf("heating curve coefficient must be positive, got %v", *c.HeatingCurveCoefficient)
	}
	if c.SampleTime <= 0 {
		return errors.Errorf("sample time must be positive, got %v", c.SampleTime.Value())
	}
	if *c.MaximumSetpoint <= *c.MinimumSetpoint {
		return errors.Errorf(
			"maximum setpoint %v must exceed minimum setpoint %v",
			*c.MaximumSetpoint, *c.MinimumSetpoint,
		)
	}
	if *c.CyclesPerHour <= 0 {
		return errors.Errorf("cycles per hour must be positive, got %d", *c.CyclesPerHour)
	}
	if f := *c.MinimumSetpointAdjustmentFactor; f <= 0 || f > 1 {
		return errors.Errorf("minimum setpoint adjustment factor %v outside (0, 1]", f)
	}

	return nil
}
