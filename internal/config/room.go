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

// RoomConfig describes one secondary room climate (TRV or thermostat).
type RoomConfig struct {
	Setpoint *SetpointConfig `yaml:"setpoint"`
	Sensors  []*SensorConfig `yaml:"sensors"`

	// ActionTopic carries the room climate's own HVAC action
	// ("heating"/"idle"/"off"); rooms reporting no demand are excluded
	// from the comfort-mode aggregation.
	ActionTopic string `yaml:"action_topic,omitempty"`

	SensorsAverageType string   `yaml:"sensors_average_type"`
	Weight             *float64 `yaml:"weight"`
}

func NewRoomConfig() *RoomConfig {
	return &RoomConfig{
		Sensors:  make([]*SensorConfig, 0),
		Setpoint: NewSetpointConfig(),
	}
}

func (r *RoomConfig) FillDefaults() {
	if r.SensorsAverageType == "" {
		r.SensorsAverageType = DefaultAverageType
	}
	if r.Weight == nil {
		r.Weight = GetPTR(1.0)
	}
	if r.Setpoint == nil {
		r.Setpoint = NewSetpointConfig()
	}
	r.Setpoint.FillDefaults()
	for _, s := range r.Sensors {
		s.FillDefaults()
	}
}
