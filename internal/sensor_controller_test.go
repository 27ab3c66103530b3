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
	"testing"
	"time"

	"github.com/antst/satbc/internal/config"

	"github.com/stretchr/testify/assert"
)

func testSensor(value, weight float64, ts time.Time) *SensorController {
	return &SensorController{
		cfg:       &config.SensorConfig{Weight: config.GetPTR(weight)},
		value:     value,
		timestamp: ts,
	}
}

func TestSensorsMeanWeighted(t *testing.T) {
	now := time.Now()
	sensors := []*SensorController{
		testSensor(20, 1, now),
		testSensor(22, 3, now),
	}

	v, _ := sensorsMean(sensors)
	assert.InDelta(t, 21.5, v, 1e-9)
}

func TestSensorsMeanReturnsOldestTimestamp(t *testing.T) {
	now := time.Now()
	old := now.Add(-time.Hour)
	sensors := []*SensorController{
		testSensor(20, 1, now),
		testSensor(21, 1, old),
	}

	_, ts := sensorsMean(sensors)
	assert.Equal(t, old, ts)
}

func TestSensorsMeanSkipsSensorsWithoutReadings(t *testing.T) {
	now := time.Now()
	sensors := []*SensorController{
		testSensor(20, 1, now),
		testSensor(99, 1, zeroTS),
	}

	v, ts := sensorsMean(sensors)
	assert.InDelta(t, 20.0, v, 1e-9)
	assert.Equal(t, now, ts)
}

func TestSensorsMeanEmpty(t *testing.T) {
	v, ts := sensorsMean(nil)
	assert.Zero(t, v)
	assert.Equal(t, zeroTS, ts)
}

func TestSensorFresh(t *testing.T) {
	now := time.Now()
	s := testSensor(20, 1, now.Add(-time.Minute))

	assert.True(t, s.Fresh(now, 5*time.Minute))
	assert.False(t, s.Fresh(now, 30*time.Second))

	never := testSensor(20, 1, zeroTS)
	assert.False(t, never.Fresh(now, time.Hour))
}
