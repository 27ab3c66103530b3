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

package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/antst/satbc/internal"
	"github.com/antst/satbc/internal/api"
	"github.com/antst/satbc/internal/config"
	"github.com/antst/satbc/internal/logger"
	"github.com/antst/satbc/internal/store"
)

// Build version, overridden with flag during build.
var version = "devel"

func main() {
	defer logger.Close()
	logger.L().Warnf("Autotune Boiler Controller, version: %+v", version)

	cfg := config.Get()

	db, err := store.Open(cfg.DBFile)
	if err != nil {
		logger.L().Fatal(err)
	}
	defer db.Close()

	boiler := internal.NewBoilerController(cfg.Boiler, cfg.MQTTConfig)
	ctrl := internal.NewController(cfg, db, nil, boiler)
	hub := internal.NewSensorHub(cfg, db, ctrl.ControlChan())
	ctrl.SetSensors(hub)
	ctrl.StartMQTT()

	go func() {
		if err := api.NewServer(ctrl).Run(cfg.HTTPListen); err != nil {
			logger.L().Fatal(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctrl.Run(ctx)
}
