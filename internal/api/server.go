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

// Package api exposes the controller state over HTTP for dashboards and
// ad-hoc poking. Everything the handlers do is also reachable over MQTT.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/antst/satbc/internal"
	"github.com/antst/satbc/internal/calibrate"
	"github.com/antst/satbc/internal/logger"
)

type Server struct {
	ctrl   *internal.Controller
	engine *gin.Engine
}

func NewServer(ctrl *internal.Controller) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{ctrl: ctrl, engine: gin.New()}
	s.engine.Use(gin.Recovery())

	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/diagnostics", s.diagnostics)
	s.engine.GET("/command", s.command)
	s.engine.POST("/calibration", s.startCalibration)
	s.engine.DELETE("/calibration", s.cancelCalibration)
	s.engine.POST("/reset-integral", s.resetIntegral)
	s.engine.POST("/pwm/force", s.forcePWM)

	return s
}

// Run blocks serving HTTP on the given address.
func (s *Server) Run(listen string) error {
	logger.L().Infof("HTTP API listening on %v", listen)
	return s.engine.Run(listen)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) diagnostics(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Diagnostics())
}

func (s *Server) command(c *gin.Context) {
	cmd, ok := s.ctrl.CurrentCommand()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no command emitted yet"})
		return
	}
	c.JSON(http.StatusOK, cmd)
}

func (s *Server) startCalibration(c *gin.Context) {
	// The session outlives the request; the request context dies the moment
	// the handler returns.
	session, err := s.ctrl.RequestCalibration(context.Background())
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, calibrate.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, session)
}

func (s *Server) cancelCalibration(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.CancelCalibration())
}

func (s *Server) resetIntegral(c *gin.Context) {
	s.ctrl.ResetIntegral()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type forcePWMRequest struct {
	State string `json:"state" binding:"required"`
}

func (s *Server) forcePWM(c *gin.Context) {
	var req forcePWMRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.ctrl.ForcePWM(req.State); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
