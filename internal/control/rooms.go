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

type HeatingMode string

const (
	// ModeComfort lets the most underheated demanding room drive the boiler.
	ModeComfort HeatingMode = "comfort"
	// ModeEco follows the primary zone only.
	ModeEco HeatingMode = "eco"
)

// RoomError is one secondary room's contribution: target minus current
// temperature, tagged with whether the room's own climate still wants heat.
type RoomError struct {
	Error      float64
	HeatDemand bool
}

// AggregateError reduces the primary-zone error and the secondary room
// errors into the single error fed to the PID controller.
//
// Rooms without heat demand are skipped even when numerically colder;
// fighting a room that throttled itself just overheats the rest.
func AggregateError(mode HeatingMode, primary float64, rooms []RoomError) float64 {
	if mode == ModeEco {
		return primary
	}

	max := primary
	for _, room := range rooms {
		if !room.HeatDemand {
			continue
		}
		if room.Error > max {
			max = room.Error
		}
	}
	return max
}
