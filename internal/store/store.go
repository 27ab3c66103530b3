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

// Package store persists the controller state that must survive restarts:
// the calibrated overshoot protection value, the PID integral term and the
// last known room setpoints.
package store

import (
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS controller_values (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS room_setpoints (
	room       TEXT PRIMARY KEY,
	setpoint   REAL NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Well-known controller value names.
const (
	KeyOvershootProtection = "overshoot_protection_value"
	KeyPIDIntegral         = "pid_integral"
	KeyEnabled             = "enabled"
)

type Store struct {
	db *sqlx.DB
}

func Open(dbFile string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbFile)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database %s", dbFile)
	}

	if err := db.Ping(); err != nil {
		return nil, errors.Wrapf(err, "failed to ping database %s", dbFile)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) UpsertValue(name, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO controller_values (name, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		name, value, time.Now(),
	)
	return errors.Wrapf(err, "failed to upsert value %s", name)
}

func (s *Store) GetValue(name string) (string, error) {
	var value string
	if err := s.db.Get(&value, `SELECT value FROM controller_values WHERE name = ?`, name); err != nil {
		return "", errors.Wrapf(err, "failed to read value %s", name)
	}
	return value, nil
}

func (s *Store) UpsertFloat(name string, value float64) error {
	return s.UpsertValue(name, strconv.FormatFloat(value, 'f', -1, 64))
}

func (s *Store) GetFloat(name string) (float64, error) {
	raw, err := s.GetValue(name)
	if err != nil {
		return 0, err
	}

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "value %s is not a float", name)
	}
	return value, nil
}

func (s *Store) UpsertRoomSetpoint(room string, setpoint float64) error {
	_, err := s.db.Exec(
		`INSERT INTO room_setpoints (room, setpoint, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(room) DO UPDATE SET setpoint = excluded.setpoint, updated_at = excluded.updated_at`,
		room, setpoint, time.Now(),
	)
	return errors.Wrapf(err, "failed to upsert setpoint for room %s", room)
}

func (s *Store) GetRoomSetpoint(room string) (float64, error) {
	var setpoint float64
	if err := s.db.Get(&setpoint, `SELECT setpoint FROM room_setpoints WHERE room = ?`, room); err != nil {
		return 0, errors.Wrapf(err, "failed to read setpoint for room %s", room)
	}
	return setpoint, nil
}
