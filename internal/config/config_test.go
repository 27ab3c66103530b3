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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig() *Config {
	cfg := defConfig()
	cfg.FillDefaults()
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown heating system", func(c *Config) { c.Control.HeatingSystem = "steam" }},
		{"unknown heating mode", func(c *Config) { c.Control.HeatingMode = "party" }},
		{"curve version out of range", func(c *Config) { c.Control.HeatingCurveVersion = 4 }},
		{"pid version out of range", func(c *Config) { c.Control.PIDVersion = 3 }},
		{"non-positive coefficient", func(c *Config) { c.Control.HeatingCurveCoefficient = GetPTR(0.0) }},
		{"non-positive sample time", func(c *Config) { c.Control.SampleTime = Duration(-time.Second) }},
		{"max below min setpoint", func(c *Config) { c.Control.MaximumSetpoint = GetPTR(5.0) }},
		{"non-positive cycles per hour", func(c *Config) { c.Control.CyclesPerHour = GetPTR(0) }},
		{"adjustment factor too large", func(c *Config) { c.Control.MinimumSetpointAdjustmentFactor = GetPTR(1.5) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestFillDefaultsControlValues(t *testing.T) {
	cfg := &Config{}
	cfg.FillDefaults()

	require.NotNil(t, cfg.Control)
	assert.Equal(t, HeatingSystemRadiator, cfg.Control.HeatingSystem)
	assert.Equal(t, HeatingModeComfort, cfg.Control.HeatingMode)
	assert.Equal(t, 65.0, *cfg.Control.MaximumSetpoint)
	assert.Equal(t, 10.0, *cfg.Control.MinimumSetpoint)
	assert.Equal(t, 2, cfg.Control.PIDVersion)
	assert.Equal(t, time.Minute, cfg.Control.SampleTime.Value())
	assert.Equal(t, 4, *cfg.Control.CyclesPerHour)
}

func TestDurationYAMLRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte(`"2m30s"`), &d))
	assert.Equal(t, 2*time.Minute+30*time.Second, d.Value())

	out, err := yaml.Marshal(d)
	require.NoError(t, err)

	var back Duration
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, d, back)
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration
	assert.Error(t, yaml.Unmarshal([]byte(`"soon"`), &d))
}

func TestSensorConfigDefaults(t *testing.T) {
	s := &SensorConfig{Topic: "home/livingroom/temp"}
	s.FillDefaults()

	assert.Equal(t, 0.0, *s.Offset)
	assert.Equal(t, 1.0, *s.Scale)
	assert.Equal(t, 1.0, *s.Weight)
}

func TestContactConfigDefaults(t *testing.T) {
	c := &ContactConfig{Topic: "home/window"}
	c.FillDefaults()

	assert.Equal(t, "open", c.OpenPayload)
	assert.Equal(t, 15*time.Second, c.MinimumOpenTime.Value())
}

func TestConfigYAMLOverridesDefaults(t *testing.T) {
	raw := `
control:
  heating_system: underfloor
  heating_mode: eco
  heating_curve_coefficient: 0.8
  sample_time: 30s
rooms:
  bedroom:
    setpoint:
      topic: home/bedroom/setpoint
`
	cfg := defConfig()
	require.NoError(t, yaml.Unmarshal([]byte(raw), cfg))
	cfg.FillDefaults()

	assert.Equal(t, HeatingSystemUnderfloor, cfg.Control.HeatingSystem)
	assert.Equal(t, HeatingModeEco, cfg.Control.HeatingMode)
	assert.Equal(t, 0.8, *cfg.Control.HeatingCurveCoefficient)
	assert.Equal(t, 30*time.Second, cfg.Control.SampleTime.Value())
	require.Contains(t, cfg.Rooms, "bedroom")
	assert.Equal(t, "home/bedroom/setpoint", cfg.Rooms["bedroom"].Setpoint.Topic)
	assert.NoError(t, cfg.Validate())
}
