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

import "time"

// SensorConfig: Configuration
type SensorConfig struct {
	Name      string   `yaml:"name,omitempty"`
	Topic     string   `yaml:"topic"`
	JSONEntry *string  `yaml:"json_entry,omitempty"`
	Offset    *float64 `yaml:"offset"`
	Scale     *float64 `yaml:"scale"`
	Weight    *float64 `yaml:"weight"`
}

func (s *SensorConfig) FillDefaults() {
	if s.Offset == nil {
		s.Offset = GetPTR(0.0)
	}
	if s.Scale == nil {
		s.Scale = GetPTR(1.0)
	}
	if s.Weight == nil {
		s.Weight = GetPTR(1.0)
	}
}

func NewSensorConfig() *SensorConfig {
	cfg := &SensorConfig{}
	cfg.FillDefaults()
	return cfg
}

// SetpointConfig config
type SetpointConfig struct {
	Topic     string   `yaml:"topic"`
	JSONEntry *string  `yaml:"json_entry,omitempty"`
	Offset    *float64 `yaml:"offset"`
	Scale     *float64 `yaml:"scale"`
}

func NewSetpointConfig() *SetpointConfig {
	cfg := &SetpointConfig{}
	cfg.FillDefaults()
	return cfg
}

func (c *SetpointConfig) FillDefaults() {
	if c.Offset == nil {
		c.Offset = GetPTR(0.0)
	}
	if c.Scale == nil {
		c.Scale = GetPTR(1.0)
	}
}

// ContactConfig describes a window/door contact sensor that suppresses
// heating while open.
type ContactConfig struct {
	Topic           string   `yaml:"topic"`
	OpenPayload     string   `yaml:"open_payload"`
	MinimumOpenTime Duration `yaml:"minimum_open_time"`
}

func (c *ContactConfig) FillDefaults() {
	if c.OpenPayload == "" {
		c.OpenPayload = "open"
	}
	if c.MinimumOpenTime <= 0 {
		c.MinimumOpenTime = Duration(15 * time.Second)
	}
}

// OutsideConfig represents the configuration for outside sensors
type OutsideConfig struct {
	TemperatureSensors     []*SensorConfig `yaml:"temperature_sensors"`
	TemperatureAverageType string          `yaml:"temperature_average_type"`
}

// NewOutsideConfig creates a new OutsideConfig with default values
func NewOutsideConfig() *OutsideConfig {
	cfg := &OutsideConfig{}
	cfg.FillDefaults()
	return cfg
}

// FillDefaults sets default values for the OutsideConfig
func (c *OutsideConfig) FillDefaults() {
	for _, s := range c.TemperatureSensors {
		s.FillDefaults()
	}
	if c.TemperatureAverageType == "" {
		c.TemperatureAverageType = DefaultAverageType
	}
}
