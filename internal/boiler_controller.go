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
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antst/satbc/internal/calibrate"
	"github.com/antst/satbc/internal/config"
	"github.com/antst/satbc/internal/logger"
	"github.com/antst/satbc/internal/safe_mqtt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Command is the sole output artifact of a control tick.
type Command struct {
	Setpoint      float64 `json:"setpoint"`
	MaxModulation float64 `json:"max_modulation"`
	DHWSetpoint   float64 `json:"dhw_setpoint"`
	Heating       bool    `json:"heating"`
}

// BoilerDriver is what the control loop needs from the boiler transport:
// command emission plus the calibrator's narrow surface.
type BoilerDriver interface {
	calibrate.Boiler
	Update(cmd Command)
}

// BoilerController is the MQTT transport to the OpenTherm gateway. Command
// emission is fire-and-forget; delivery retries are the broker's problem.
type BoilerController struct {
	lock sync.RWMutex
	cfg  *config.BoilerConfig
	mqtt safe_mqtt.MqttClient

	telemetry    calibrate.Telemetry
	hasTelemetry bool
}

func NewBoilerController(_cfg *config.BoilerConfig, _mqttCfg *config.MQTTConfig) *BoilerController {
	b := &BoilerController{cfg: _cfg}
	b.mqtt = safe_mqtt.InitMQTTClient(
		_mqttCfg.URL, "satbc-boiler-"+uuid.New().String(), _mqttCfg.User, _mqttCfg.Password,
	)

	b.mqtt.SafeSubscribe(_cfg.FlowTemperatureTopic, mqttQoS, b.telemetryUpdateHandler)
	b.mqtt.SafeSubscribe(_cfg.ReturnTemperatureTopic, mqttQoS, b.telemetryUpdateHandler)
	b.mqtt.SafeSubscribe(_cfg.ModulationTopic, mqttQoS, b.telemetryUpdateHandler)
	b.mqtt.SafeSubscribe(_cfg.FlameTopic, mqttQoS, b.telemetryUpdateHandler)

	return b
}

// Update publishes a full command to the gateway.
func (b *BoilerController) Update(cmd Command) {
	b.publish(b.cfg.SetpointTopic, fmt.Sprintf("%.1f", cmd.Setpoint))
	b.publish(b.cfg.MaxModulationTopic, fmt.Sprintf("%.0f", cmd.MaxModulation))
	if b.cfg.DHWSetpointTopic != "" && cmd.DHWSetpoint > 0 {
		b.publish(b.cfg.DHWSetpointTopic, fmt.Sprintf("%.1f", cmd.DHWSetpoint))
	}

	enable := "0"
	if cmd.Heating {
		enable = "1"
	}
	b.publish(b.cfg.CHEnableTopic, enable)
}

// SetControlSetpoint publishes just the control setpoint (calibrator path).
func (b *BoilerController) SetControlSetpoint(value float64) {
	b.publish(b.cfg.SetpointTopic, fmt.Sprintf("%.1f", value))
}

// SetMaxModulation publishes just the maximum relative modulation.
func (b *BoilerController) SetMaxModulation(value float64) {
	b.publish(b.cfg.MaxModulationTopic, fmt.Sprintf("%.0f", value))
}

// SetHeating publishes just the CH enable bit.
func (b *BoilerController) SetHeating(enabled bool) {
	payload := "0"
	if enabled {
		payload = "1"
	}
	b.publish(b.cfg.CHEnableTopic, payload)
}

// Telemetry returns the latest gateway reading; ok is false until the
// first value arrived.
func (b *BoilerController) Telemetry() (calibrate.Telemetry, bool) {
	b.lock.RLock()
	defer b.lock.RUnlock()
	return b.telemetry, b.hasTelemetry
}

func (b *BoilerController) publish(topic, payload string) {
	if token := b.mqtt.SafePublish(topic, mqttQoS, true, payload); token.Wait() && token.Error() != nil {
		logger.L().Error(token.Error())
	}
}

func (b *BoilerController) telemetryUpdateHandler(client mqtt.Client, message mqtt.Message) {
	payload := strings.TrimSpace(string(message.Payload()))

	b.lock.Lock()
	defer b.lock.Unlock()

	switch message.Topic() {
	case b.cfg.FlameTopic:
		b.telemetry.FlameActive = payload == "1" || strings.EqualFold(payload, "on") || strings.EqualFold(payload, "true")
	default:
		value, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			logger.L().Errorf("Bad telemetry payload on %s: %v", message.Topic(), err)
			return
		}
		switch message.Topic() {
		case b.cfg.FlowTemperatureTopic:
			b.telemetry.FlowTemperature = value
		case b.cfg.ReturnTemperatureTopic:
			b.telemetry.ReturnTemperature = value
		case b.cfg.ModulationTopic:
			b.telemetry.Modulation = value
		}
	}

	b.telemetry.Timestamp = time.Now()
	b.hasTelemetry = true
}
