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

	"github.com/antst/satbc/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessage struct {
	topic   string
	payload string
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return []byte(m.payload) }
func (m *fakeMessage) Ack()              {}

func TestExtractF64Plain(t *testing.T) {
	v, err := extractF64PlainOrJson(&fakeMessage{topic: "a/b", payload: "19.5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 19.5, v)

	_, err = extractF64PlainOrJson(&fakeMessage{topic: "a/b", payload: "warm"}, nil)
	assert.Error(t, err)
}

func TestExtractF64Json(t *testing.T) {
	entry := config.GetPTR("temperature")

	v, err := extractF64PlainOrJson(
		&fakeMessage{topic: "a/b", payload: `{"temperature": 21.3, "battery": 80}`}, entry,
	)
	require.NoError(t, err)
	assert.Equal(t, 21.3, v)

	_, err = extractF64PlainOrJson(&fakeMessage{topic: "a/b", payload: `{"battery": 80}`}, entry)
	assert.Error(t, err)

	_, err = extractF64PlainOrJson(&fakeMessage{topic: "a/b", payload: `not json`}, entry)
	assert.Error(t, err)
}

func TestSummerSimmerIndex(t *testing.T) {
	// 25 C at 50% humidity reads noticeably warmer.
	assert.InDelta(t, 29.6, summerSimmerIndex(25, 50), 0.05)

	// Below the 58 F threshold the plain temperature passes through.
	assert.InDelta(t, 10.0, summerSimmerIndex(10, 50), 1e-9)

	// Higher humidity reads warmer at the same temperature.
	assert.Greater(t, summerSimmerIndex(25, 80), summerSimmerIndex(25, 30))
}
