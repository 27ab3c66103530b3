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

package control

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMinimumSetpointFirstAdjustmentJumpsToTarget(t *testing.T) {
	m := NewMinimumSetpoint(0.2, 10)

	assert.Equal(t, 10.0, m.Current())
	assert.InDelta(t, 45.0, m.Adjust(45, 32), 1e-9)
	assert.InDelta(t, 32.0, m.BaseReturnTemperature(), 1e-9)
}

func TestMinimumSetpointRisesSlowly(t *testing.T) {
	m := NewMinimumSetpoint(0.5, 10)

	m.Adjust(45, 30)
	// Return creeps up 4 degrees: target is 47, but each adjustment may
	// only add 0.1.
	got := m.Adjust(45, 34)
	assert.InDelta(t, 45.1, got, 1e-9)
	got = m.Adjust(45, 34)
	assert.InDelta(t, 45.2, got, 1e-9)
}

func TestMinimumSetpointDropsFast(t *testing.T) {
	m := NewMinimumSetpoint(0.5, 10)

	m.Adjust(45, 30)
	for i := 0; i < 40; i++ {
		m.Adjust(45, 34)
	}
	assert.InDelta(t, 47.0, m.Current(), 1e-9)

	// Return falls back to the base: drop up to 2.0 per adjustment.
	got := m.Adjust(45, 30)
	assert.InDelta(t, 45.0, got, 1e-9)
}

func TestMinimumSetpointTracksLowestReturn(t *testing.T) {
	m := NewMinimumSetpoint(0.5, 10)

	m.Adjust(45, 30)
	m.Adjust(45, 26)
	assert.InDelta(t, 26.0, m.BaseReturnTemperature(), 1e-9)
}

func TestMinimumSetpointReset(t *testing.T) {
	m := NewMinimumSetpoint(0.5, 10)
	m.Adjust(45, 30)

	m.Reset()
	assert.Equal(t, 10.0, m.Current())
}
