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

package config

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/antst/satbc/internal/logger"

	"github.com/pborman/getopt/v2"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	defaultMQTTURL      = "tcp://127.0.0.1:1883"
	defaultControlTopic = "satbc/control"
	defaultHTTPListen   = "127.0.0.1:8428"
	defaultDBFile       = "~/.satbc.db"
	defaultConfigFile   = "config.yaml"
	DefaultAverageType  = "mean"
)

type MQTTConfig struct {
	URL          string `yaml:"url"`
	User         string `yaml:"user,omitempty"`
	Password     string `yaml:"password,omitempty"`
	ControlTopic string `yaml:"control_topic"`
}

func NewMQTTConfig() *MQTTConfig {
	return &MQTTConfig{
		URL:          defaultMQTTURL,
		ControlTopic: defaultControlTopic,
	}
}

type Config struct {
	LogLevel   zapcore.Level `yaml:"log_level"`
	MQTTConfig *MQTTConfig   `yaml:"mqtt"`
	HTTPListen string        `yaml:"http_listen"`
	DBFile     string        `yaml:"db_file"`

	Boiler   *BoilerConfig          `yaml:"boiler"`
	Setpoint *SetpointConfig        `yaml:"setpoint"`
	Inside   *SensorConfig          `yaml:"inside_sensor"`
	Humidity *SensorConfig          `yaml:"humidity_sensor,omitempty"`
	Outside  *OutsideConfig         `yaml:"outside"`
	Contact  *ContactConfig         `yaml:"contact_sensor,omitempty"`
	Rooms    map[string]*RoomConfig `yaml:"rooms"`
	Control  *ControlConfig         `yaml:"control"`
}

func defConfig() *Config {
	return &Config{
		LogLevel:   zapcore.InfoLevel,
		MQTTConfig: NewMQTTConfig(),
		HTTPListen: defaultHTTPListen,
		DBFile:     defaultDBFile,
		Boiler:     NewBoilerConfig(),
		Setpoint:   NewSetpointConfig(),
		Inside:     NewSensorConfig(),
		Outside:    NewOutsideConfig(),
		Rooms:      make(map[string]*RoomConfig),
		Control:    NewControlConfig(),
	}
}

func prettyPrint(cfg *Config) {
	d, err := yaml.Marshal(cfg)
	if err != nil {
		logger.L().Error("Failed to marshal config for pretty print", err)
		return
	}
	logger.L().Debugf("--- Config ---\n%s\n\n", string(d))
}

func (cfg *Config) FillDefaults() {
	if cfg.MQTTConfig == nil {
		cfg.MQTTConfig = NewMQTTConfig()
	}
	if cfg.HTTPListen == "" {
		cfg.HTTPListen = defaultHTTPListen
	}
	if cfg.Boiler == nil {
		cfg.Boiler = NewBoilerConfig()
	}
	if cfg.Setpoint == nil {
		cfg.Setpoint = NewSetpointConfig()
	}
	cfg.Setpoint.FillDefaults()
	if cfg.Inside != nil {
		cfg.Inside.FillDefaults()
	}
	if cfg.Humidity != nil {
		cfg.Humidity.FillDefaults()
	}
	if cfg.Outside == nil {
		cfg.Outside = NewOutsideConfig()
	}
	cfg.Outside.FillDefaults()
	if cfg.Contact != nil {
		cfg.Contact.FillDefaults()
	}
	for _, room := range cfg.Rooms {
		room.FillDefaults()
	}
	if cfg.Control == nil {
		cfg.Control = NewControlConfig()
	}
	cfg.Control.FillDefaults()
}

func Get() *Config {
	cfg := defConfig()
	logLevel := getopt.StringLong("log-level", 'l', "", "log levels: debug, info, warn, error, dpanic, panic, fatal")
	configFile := getopt.StringLong("config", 'c', defaultConfigFile, "config file pathname")

	getopt.Parse()

	if err := readFile(cfg, *configFile); err != nil {
		log.Panicf("GetConfig: %v", err)
	}

	logger.L().Infof("Using config file `%v`", *configFile)
	dbFile := getopt.StringLong("db", 'd', cfg.DBFile, "DB file pathname")
	if *dbFile != "" {
		cfg.DBFile = *dbFile
	}
	logger.L().Infof("Using DB file `%v`", cfg.DBFile)

	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		log.Panicf("GetConfig: %v", err)
	}

	if *logLevel != "" {
		if err := cfg.LogLevel.Set(*logLevel); err != nil {
			logger.L().Errorf("Wrong log level `%v`: %v", *logLevel, err)
		}
	}
	logger.SetLogLevel(cfg.LogLevel)

	prettyPrint(cfg)

	return cfg
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

func readFile(cfg *Config, configFileName string) error {
	if !fileExists(configFileName) {
		return nil
	}

	f, err := os.Open(configFileName)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil && err != io.EOF {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	return nil
}

func GetPTR[T any](v T) *T {
	return &v
}
