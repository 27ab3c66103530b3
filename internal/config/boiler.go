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

// BoilerConfig wires the OpenTherm gateway topics: four command topics
// written by the control loop and four telemetry topics read back.
type BoilerConfig struct {
	SetpointTopic      string `yaml:"setpoint_topic"`
	MaxModulationTopic string `yaml:"max_modulation_topic"`
	CHEnableTopic      string `yaml:"ch_enable_topic"`
	DHWSetpointTopic   string `yaml:"dhw_setpoint_topic,omitempty"`

	FlowTemperatureTopic   string `yaml:"flow_temperature_topic"`
	ReturnTemperatureTopic string `yaml:"return_temperature_topic"`
	ModulationTopic        string `yaml:"modulation_topic"`
	FlameTopic             string `yaml:"flame_topic"`
}

func NewBoilerConfig() *BoilerConfig {
	return &BoilerConfig{
		SetpointTopic:          "OTGW/set/otgw/tset",
		MaxModulationTopic:     "OTGW/set/otgw/maxmod",
		CHEnableTopic:          "OTGW/set/otgw/ch_enable",
		DHWSetpointTopic:       "OTGW/set/otgw/tdhwset",
		FlowTemperatureTopic:   "OTGW/value/otgw/boiler_water_temp",
		ReturnTemperatureTopic: "OTGW/value/otgw/return_water_temp",
		ModulationTopic:        "OTGW/value/otgw/rel_mod_level",
		FlameTopic:             "OTGW/value/otgw/flame",
	}
}
