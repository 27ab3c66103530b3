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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antst/satbc/internal/config"
	"github.com/antst/satbc/internal/logger"
	"github.com/antst/satbc/internal/safe_mqtt"
	"github.com/antst/satbc/internal/store"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	hvacActionHeating = "heating"
	hvacActionOff     = "off"
)

// RoomController tracks one secondary room climate: its target and current
// temperature plus the HVAC action the room's own controller reports.
type RoomController struct {
	name    string
	mu      sync.RWMutex
	cfg     *config.RoomConfig
	mqtt    safe_mqtt.MqttClient
	sensors []*SensorController
	db      *store.Store

	setpoint           float64
	setpointTimestamp  time.Time
	averageTemperature float64
	averageTimestamp   time.Time
	hvacAction         string
	hvacActionSet      bool

	averageFunc func([]*SensorController) (float64, time.Time)
	controlChan chan<- bool
	childChan   chan bool
}

func newRoomController(
	_name string, _cfg *config.RoomConfig, _mqttCfg *config.MQTTConfig, _db *store.Store,
	_controlChan chan<- bool,
) *RoomController {
	r := &RoomController{
		name:              _name,
		cfg:               _cfg,
		db:                _db,
		setpointTimestamp: zeroTS,
		averageTimestamp:  zeroTS,
		controlChan:       _controlChan,
		childChan:         make(chan bool, childChanBuffer),
	}

	r.LinkAverageFun()
	if err := r.readState(); err == nil {
		logger.L().Debugf("Loaded previous setpoint from DB for room %v: %v", r.name, r.setpoint)
		r.setpointTimestamp = time.Now()
	}

	r.mqtt = safe_mqtt.InitMQTTClient(
		_mqttCfg.URL, "satbc-room-"+r.name+"-"+uuid.New().String(), _mqttCfg.User, _mqttCfg.Password,
	)
	r.mqtt.SafeSubscribe(_cfg.Setpoint.Topic, mqttQoS, r.setpointUpdateHandler)
	if _cfg.ActionTopic != "" {
		r.mqtt.SafeSubscribe(_cfg.ActionTopic, mqttQoS, r.actionUpdateHandler)
	}

	roomMQTTgroup := _mqttCfg.ControlTopic + "/room/" + r.name + "/"
	r.mqtt.SafeSubscribe(roomMQTTgroup+"sensors_average_type", mqttQoS, r.controlUpdateHandler)
	r.mqtt.SafeSubscribe(roomMQTTgroup+"weight", mqttQoS, r.controlUpdateHandler)

	r.sensors = make([]*SensorController, len(r.cfg.Sensors))
	for i, sensor := range r.cfg.Sensors {
		sName := "room-" + r.name + "-"
		if sensor.Name == "" {
			sName += strconv.Itoa(i + 1)
		} else {
			sName += sensor.Name
		}
		r.sensors[i] = NewSensorController(sName, sensor, _mqttCfg, r.childChan)
	}

	go r.childProcessor()
	r.updateAverage()

	return r
}

func (r *RoomController) LinkAverageFun() {
	if r.cfg.SensorsAverageType == config.DefaultAverageType {
		r.averageFunc = sensorsMean
	} else {
		logger.L().Errorf("Unknown average function type: %v", r.cfg.SensorsAverageType)
		logger.L().Error("Reverting to the `mean`")
		r.cfg.SensorsAverageType = config.DefaultAverageType
		r.averageFunc = sensorsMean
	}
}

func (r *RoomController) childProcessor() {
	for range r.childChan {
		r.updateAverage()
	}
}

func (r *RoomController) updateAverage() {
	v, t := r.averageFunc(r.sensors)
	if t.After(zeroTS) {
		r.mu.Lock()
		r.averageTimestamp = t
		r.averageTemperature = v
		r.mu.Unlock()
		r.controlChan <- true
	}
}

func (r *RoomController) setpointUpdateHandler(client mqtt.Client, message mqtt.Message) {
	t0, err := extractF64PlainOrJson(message, r.cfg.Setpoint.JSONEntry)
	if err != nil {
		logger.L().Error(err)
		return
	}

	r.mu.Lock()
	oldSP := r.setpoint
	r.setpoint = t0*(*r.cfg.Setpoint.Scale) + (*r.cfg.Setpoint.Offset)
	newSP := r.setpoint
	r.setpointTimestamp = time.Now()
	logger.L().Debugf("Got setpoint for room %s : %f", r.name, newSP)
	r.mu.Unlock()

	if err := r.writeState(); err != nil {
		logger.L().Error(err)
	}
	if newSP != oldSP {
		r.controlChan <- true
	}
}

func (r *RoomController) actionUpdateHandler(client mqtt.Client, message mqtt.Message) {
	action := strings.ToLower(strings.TrimSpace(string(message.Payload())))

	r.mu.Lock()
	r.hvacAction = action
	r.hvacActionSet = true
	r.mu.Unlock()

	logger.L().Debugf("Got HVAC action for room %s : %s", r.name, action)
	r.controlChan <- true
}

// Error returns target minus current temperature. ok is false until both
// sides have been seen.
func (r *RoomController) Error(now time.Time, maxAge time.Duration) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.setpointTimestamp.After(zeroTS) || !r.averageTimestamp.After(zeroTS) {
		return 0, false
	}
	if now.Sub(r.averageTimestamp) > maxAge {
		return 0, false
	}
	return r.setpoint - r.averageTemperature, true
}

// HeatDemand reports whether the room's own climate still asks for heat.
// Rooms that throttled themselves are excluded from the comfort-mode
// aggregation; rooms without an action topic are assumed to demand heat
// whenever they are below setpoint.
func (r *RoomController) HeatDemand() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.hvacActionSet {
		return r.hvacAction == hvacActionHeating
	}
	return r.setpoint > r.averageTemperature
}

func (r *RoomController) writeState() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.db.UpsertRoomSetpoint(r.name, r.setpoint)
}

func (r *RoomController) readState() error {
	val, err := r.db.GetRoomSetpoint(r.name)
	if err != nil {
		return err
	}
	r.setpoint = val
	return nil
}

func (r *RoomController) controlUpdateHandler(client mqtt.Client, message mqtt.Message) {
	topic := message.Topic()[strings.LastIndex(message.Topic(), "/")+1:]
	logger.L().Infof("Room %v got MQTT control request: %v : %v", r.name, topic, string(message.Payload()))

	switch topic {
	case "weight":
		value, err := strconv.ParseFloat(string(message.Payload()), 64)
		if err != nil {
			logger.L().Error(err)
			return
		}
		r.cfg.Weight = &value
		logger.L().Infof("Updated weight for room `%v` to %v", r.name, value)
	case "sensors_average_type":
		r.cfg.SensorsAverageType = string(message.Payload())
		r.LinkAverageFun()
		logger.L().Infof("Updated sensors average type to `%v`", r.cfg.SensorsAverageType)
	default:
		logger.L().Errorf("Unknown control topic: %s", topic)
	}
}
