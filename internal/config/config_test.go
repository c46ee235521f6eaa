// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lemi_config.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimal = `
# station
STATION_ID=WIC
SENSOR_ID=LEMI036_1_0002
SERIAL_PORT=/dev/ttyUSB0
BUFFER_DIRECTORY=/srv/mqtt
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StackSize != 1 || cfg.MetaInterval != 10 || cfg.SerialBaudRate != 57600 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Topic() != "WIC/LEMI036_1_0002" {
		t.Fatalf("topic = %q", cfg.Topic())
	}
}

func TestLoadValues(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal+`
MQTT_QOS = 2
STACK_SIZE=5
DEBUG=true
PIER_ID=A2
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MQTTQoS != 2 || cfg.StackSize != 5 || !cfg.Debug || cfg.PierID != "A2" {
		t.Fatalf("values not applied: %+v", cfg)
	}
}

func TestLoadPusherOrigins(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.PusherOrigins) != 0 {
		t.Fatalf("default origins = %q, want none", cfg.PusherOrigins)
	}

	cfg, err = Load(writeConfig(t, minimal+"PUSHER_ORIGINS = https://dash.example.org, http://localhost:8080 ,\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"https://dash.example.org", "http://localhost:8080"}
	if len(cfg.PusherOrigins) != len(want) {
		t.Fatalf("origins = %q, want %q", cfg.PusherOrigins, want)
	}
	for i := range want {
		if cfg.PusherOrigins[i] != want[i] {
			t.Fatalf("origins = %q, want %q", cfg.PusherOrigins, want)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", minimal + "NOPE=1\n", "unknown config key"},
		{"bad line", minimal + "STACK_SIZE\n", "invalid config line"},
		{"bad int", minimal + "STACK_SIZE=three\n", "invalid STACK_SIZE"},
		{"zero stack", minimal + "STACK_SIZE=0\n", "STACK_SIZE must be >= 1"},
		{"missing sensor", "STATION_ID=WIC\n", "SENSOR_ID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestValidateProducer(t *testing.T) {
	cfg, err := Load(writeConfig(t, "STATION_ID=WIC\nSENSOR_ID=LEMI025_1_0001\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.ValidateProducer(); err == nil || !strings.Contains(err.Error(), "SERIAL_PORT") {
		t.Fatalf("ValidateProducer = %v, want SERIAL_PORT error", err)
	}
	cfg.SerialPort = "/dev/ttyUSB0"
	cfg.BufferDirectory = t.TempDir()
	if err := cfg.ValidateProducer(); err != nil {
		t.Fatalf("ValidateProducer: %v", err)
	}
}
