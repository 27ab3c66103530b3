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
	"sync"
	"time"

	"github.com/antst/satbc/internal/config"
	"github.com/antst/satbc/internal/control"
	"github.com/antst/satbc/internal/logger"
	"github.com/antst/satbc/internal/safe_mqtt"
	"github.com/antst/satbc/internal/store"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const primarySetpointKey = "_primary"

// Snapshot is everything the control loop reads from the sensor side in one
// tick. All ok flags already account for staleness.
type Snapshot struct {
	Setpoint   float64
	SetpointOK bool

	InsideTemperature  float64
	InsideOK           bool
	InsideAge          time.Duration
	OutsideTemperature float64
	OutsideOK          bool

	PrimaryError float64
	Rooms        []control.RoomError

	ContactOpen      bool
	ContactSuppress  bool
	ContactOpenSince time.Time
}

// SensorView is the sensor side as seen by the control loop.
type SensorView interface {
	Snapshot(now time.Time, maxAge time.Duration, thermalComfort bool) Snapshot
}

// SensorHub owns all inbound MQTT state: the primary zone setpoint and
// temperature, optional humidity and contact sensors, the outside
// aggregation and the secondary rooms. It condenses them into a Snapshot
// each tick.
type SensorHub struct {
	mu   sync.RWMutex
	cfg  *config.Config
	mqtt safe_mqtt.MqttClient
	db   *store.Store

	setpoint          float64
	setpointTimestamp time.Time

	inside   *SensorController
	humidity *SensorController
	outside  *OutsideController
	contact  *ContactController
	rooms    map[string]*RoomController

	controlChan chan<- bool
}

func NewSensorHub(_cfg *config.Config, _db *store.Store, _controlChan chan<- bool) *SensorHub {
	h := &SensorHub{
		cfg:               _cfg,
		db:                _db,
		setpointTimestamp: zeroTS,
		controlChan:       _controlChan,
		rooms:             make(map[string]*RoomController),
	}

	if val, err := _db.GetRoomSetpoint(primarySetpointKey); err == nil {
		h.setpoint = val
		h.setpointTimestamp = time.Now()
		logger.L().Debugf("Loaded previous primary setpoint from DB: %v", val)
	}

	h.mqtt = safe_mqtt.InitMQTTClient(
		_cfg.MQTTConfig.URL, "satbc-hub-"+uuid.New().String(), _cfg.MQTTConfig.User, _cfg.MQTTConfig.Password,
	)
	h.mqtt.SafeSubscribe(_cfg.Setpoint.Topic, mqttQoS, h.setpointUpdateHandler)

	h.inside = NewSensorController("inside", _cfg.Inside, _cfg.MQTTConfig, _controlChan)
	if _cfg.Humidity != nil {
		h.humidity = NewSensorController("humidity", _cfg.Humidity, _cfg.MQTTConfig, _controlChan)
	}
	h.outside = NewOutsideController(_cfg.Outside, _cfg.MQTTConfig, _controlChan)
	if _cfg.Contact != nil {
		h.contact = NewContactController(_cfg.Contact, _cfg.MQTTConfig, _controlChan)
	}
	for name, room := range _cfg.Rooms {
		h.rooms[name] = newRoomController(name, room, _cfg.MQTTConfig, _db, _controlChan)
	}

	return h
}

func (h *SensorHub) setpointUpdateHandler(client mqtt.Client, message mqtt.Message) {
	t0, err := extractF64PlainOrJson(message, h.cfg.Setpoint.JSONEntry)
	if err != nil {
		logger.L().Error(err)
		return
	}

	h.mu.Lock()
	oldSP := h.setpoint
	h.setpoint = t0*(*h.cfg.Setpoint.Scale) + (*h.cfg.Setpoint.Offset)
	h.setpointTimestamp = time.Now()
	newSP := h.setpoint
	h.mu.Unlock()

	logger.L().Debugf("Got primary setpoint: %f", newSP)
	if err := h.db.UpsertRoomSetpoint(primarySetpointKey, newSP); err != nil {
		logger.L().Error(err)
	}
	if oldSP != newSP {
		h.controlChan <- true
	}
}

// Setpoint returns the externally requested room setpoint, if any arrived.
func (h *SensorHub) Setpoint() (float64, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.setpoint, h.setpointTimestamp.After(zeroTS)
}

// Snapshot condenses the sensor state at the given instant. When
// thermalComfort is set and a humidity reading is fresh, the inside
// temperature is replaced by its summer simmer equivalent so humid rooms
// read warmer than the thermometer says.
func (h *SensorHub) Snapshot(now time.Time, maxAge time.Duration, thermalComfort bool) Snapshot {
	var snap Snapshot

	snap.Setpoint, snap.SetpointOK = h.Setpoint()

	insideTemp, insideTS := h.inside.Reading()
	if insideTS.After(zeroTS) {
		snap.InsideAge = now.Sub(insideTS)
		snap.InsideOK = snap.InsideAge <= maxAge
		snap.InsideTemperature = insideTemp
	}

	if thermalComfort && snap.InsideOK && h.humidity != nil && h.humidity.Fresh(now, maxAge) {
		humidity, _ := h.humidity.Reading()
		snap.InsideTemperature = summerSimmerIndex(snap.InsideTemperature, humidity)
	}

	outsideTemp, outsideTS := h.outside.Temperature()
	if outsideTS.After(zeroTS) && now.Sub(outsideTS) <= maxAge {
		snap.OutsideOK = true
		snap.OutsideTemperature = outsideTemp
	}

	if snap.SetpointOK && snap.InsideOK {
		snap.PrimaryError = snap.Setpoint - snap.InsideTemperature
	}

	for _, room := range h.rooms {
		if roomErr, ok := room.Error(now, maxAge); ok {
			snap.Rooms = append(snap.Rooms, control.RoomError{
				Error:      roomErr,
				HeatDemand: room.HeatDemand(),
			})
		}
	}

	if h.contact != nil {
		snap.ContactOpen, snap.ContactOpenSince = h.contact.State()
		snap.ContactSuppress = h.contact.OpenLongerThan(now, h.cfg.Contact.MinimumOpenTime.Value())
	}

	return snap
}
