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

func TestAggregateErrorComfortTakesWorstDemandingRoom(t *testing.T) {
	rooms := []RoomError{
		{Error: 0.5, HeatDemand: true},
		{Error: 1.2, HeatDemand: true},
		{Error: -0.3, HeatDemand: true},
	}

	assert.InDelta(t, 1.2, AggregateError(ModeComfort, 0.8, rooms), 1e-9)
}

func TestAggregateErrorEcoFollowsPrimaryOnly(t *testing.T) {
	rooms := []RoomError{
		{Error: 2.5, HeatDemand: true},
	}

	assert.InDelta(t, 0.8, AggregateError(ModeEco, 0.8, rooms), 1e-9)
}

func TestAggregateErrorSkipsRoomsWithoutDemand(t *testing.T) {
	rooms := []RoomError{
		{Error: 3.0, HeatDemand: false},
		{Error: 1.0, HeatDemand: true},
	}

	assert.InDelta(t, 1.0, AggregateError(ModeComfort, 0.2, rooms), 1e-9)
}

func TestAggregateErrorNoRoomsFallsBackToPrimary(t *testing.T) {
	assert.InDelta(t, -0.4, AggregateError(ModeComfort, -0.4, nil), 1e-9)
}
