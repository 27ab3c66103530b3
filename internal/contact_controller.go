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
	"strings"
	"sync"
	"time"

	"github.com/antst/satbc/internal/config"
	"github.com/antst/satbc/internal/logger"
	"github.com/antst/satbc/internal/safe_mqtt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// ContactController watches a window/door contact. Heating is suppressed
// only after the contact stayed open for the configured minimum time, so a
// brief airing does not shut the boiler down.
type ContactController struct {
	mu          sync.RWMutex
	cfg         *config.ContactConfig
	mqtt        safe_mqtt.MqttClient
	open        bool
	openSince   time.Time
	controlChan chan<- bool
}

func NewContactController(
	_cfg *config.ContactConfig, _mqttCfg *config.MQTTConfig, _controlChan chan<- bool,
) *ContactController {
	c := &ContactController{cfg: _cfg, controlChan: _controlChan}
	c.mqtt = safe_mqtt.InitMQTTClient(
		_mqttCfg.URL, "satbc-contact-"+uuid.New().String(), _mqttCfg.User, _mqttCfg.Password,
	)
	c.mqtt.SafeSubscribe(_cfg.Topic, mqttQoS, c.stateUpdateHandler)
	return c
}

func (c *ContactController) stateUpdateHandler(client mqtt.Client, message mqtt.Message) {
	payload := strings.TrimSpace(string(message.Payload()))
	open := strings.EqualFold(payload, c.cfg.OpenPayload)

	c.mu.Lock()
	changed := open != c.open
	if changed {
		c.open = open
		if open {
			c.openSince = time.Now()
		} else {
			c.openSince = zeroTS
		}
	}
	c.mu.Unlock()

	if changed {
		logger.L().Infof("Contact sensor is now %v", payload)
		c.controlChan <- true
	}
}

// OpenLongerThan reports whether the contact has been open at least d at
// the given instant.
func (c *ContactController) OpenLongerThan(now time.Time, d time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open && c.openSince.After(zeroTS) && now.Sub(c.openSince) >= d
}

// State returns the raw contact state and when it opened.
func (c *ContactController) State() (bool, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open, c.openSince
}
