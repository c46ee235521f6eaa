// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker   string
	MQTTClientID string
	MQTTQoS      int // 0, 1 or 2; anything else falls back to 0
	MQTTUsername string
	MQTTPassword string

	// Station and sensor description
	StationID    string
	SensorID     string // e.g. LEMI036_1_0002
	PierID       string
	SensorGroup  string
	SensorDesc   string
	Protocol     string
	TimeProtocol string

	// Logger serial line
	SerialPort     string
	SerialBaudRate int

	// Optional NMEA receiver used as the local reference clock
	GPSReferencePort string
	GPSReferenceBaud int

	// Buffer files
	BufferDirectory string

	// Publishing
	StackSize    int // frames per published batch
	MetaInterval int // batches between dict/meta messages
	PublishQueue int // batches held while the broker is slow

	// Pusher (MQTT -> WebSocket relay)
	PusherListen  string
	PusherTopic   string
	PusherOrigins []string // allowed browser origins, empty allows any

	Debug bool
}

// Default returns a Config with every optional value set.
func Default() *Config {
	return &Config{
		MQTTBroker:       "tcp://localhost:1883",
		MQTTClientID:     "lemi-producer",
		Protocol:         "Lemi",
		TimeProtocol:     "GPS",
		SerialBaudRate:   57600,
		GPSReferenceBaud: 9600,
		StackSize:        1,
		MetaInterval:     10,
		PublishQueue:     256,
		PusherListen:     ":5000",
		PusherTopic:      "#",
	}
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_QOS":
		c.MQTTQoS, err = parseInt(key, value)
	case "MQTT_USERNAME":
		c.MQTTUsername = value
	case "MQTT_PASSWORD":
		c.MQTTPassword = value

	// Station and sensor
	case "STATION_ID":
		c.StationID = value
	case "SENSOR_ID":
		c.SensorID = value
	case "PIER_ID":
		c.PierID = value
	case "SENSOR_GROUP":
		c.SensorGroup = value
	case "SENSOR_DESC":
		c.SensorDesc = value
	case "SENSOR_PROTOCOL":
		c.Protocol = value
	case "TIME_PROTOCOL":
		c.TimeProtocol = value

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value)
	case "GPS_REFERENCE_PORT":
		c.GPSReferencePort = value
	case "GPS_REFERENCE_BAUD":
		c.GPSReferenceBaud, err = parseInt(key, value)

	// Buffer and publishing
	case "BUFFER_DIRECTORY":
		c.BufferDirectory = value
	case "STACK_SIZE":
		c.StackSize, err = parseInt(key, value)
	case "META_INTERVAL":
		c.MetaInterval, err = parseInt(key, value)
	case "PUBLISH_QUEUE":
		c.PublishQueue, err = parseInt(key, value)

	// Pusher
	case "PUSHER_LISTEN":
		c.PusherListen = value
	case "PUSHER_TOPIC":
		c.PusherTopic = value
	case "PUSHER_ORIGINS":
		c.PusherOrigins = nil
		for _, o := range strings.Split(value, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.PusherOrigins = append(c.PusherOrigins, o)
			}
		}

	case "DEBUG":
		c.Debug, err = strconv.ParseBool(value)
		if err != nil {
			err = fmt.Errorf("invalid DEBUG %q: %w", value, err)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// Validate checks the fields every tool needs.
func (c *Config) Validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.StationID == "" {
		return fmt.Errorf("STATION_ID is required")
	}
	if len(c.SensorID) < 7 {
		return fmt.Errorf("SENSOR_ID is required and must look like LEMI036_1_0002, got %q", c.SensorID)
	}
	if c.StackSize < 1 {
		return fmt.Errorf("STACK_SIZE must be >= 1, got %d", c.StackSize)
	}
	if c.PublishQueue < 1 {
		return fmt.Errorf("PUBLISH_QUEUE must be >= 1, got %d", c.PublishQueue)
	}
	return nil
}

// ValidateProducer checks the fields needed to read a logger.
func (c *Config) ValidateProducer() error {
	if c.SerialPort == "" {
		return fmt.Errorf("SERIAL_PORT is required")
	}
	if c.SerialBaudRate <= 0 {
		return fmt.Errorf("SERIAL_BAUD_RATE must be positive, got %d", c.SerialBaudRate)
	}
	if c.GPSReferencePort != "" && c.GPSReferenceBaud <= 0 {
		return fmt.Errorf("GPS_REFERENCE_BAUD must be positive, got %d", c.GPSReferenceBaud)
	}
	if c.BufferDirectory == "" {
		return fmt.Errorf("BUFFER_DIRECTORY is required")
	}
	return nil
}

// Topic returns the topic root <station>/<sensor>.
func (c *Config) Topic() string {
	return c.StationID + "/" + c.SensorID
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
