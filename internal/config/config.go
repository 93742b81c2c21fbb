package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config holds application configuration.
type Config struct {
	// FullScaleMicrotesla is the magnitude that maps to a normalized value
	// of 1.0 on the gauge. Readings above it are clamped, not scaled.
	FullScaleMicrotesla float64 `json:"full_scale_microtesla"`

	// SensorRateHz is the expected sample cadence of the magnetometer.
	SensorRateHz int `json:"sensor_rate_hz"`

	// DisplayRateHz is the refresh cadence of the needle/audio evaluation.
	// It runs independently of the sensor cadence and may exceed it.
	DisplayRateHz int `json:"display_rate_hz"`

	// LiveBufferCapacity is the fixed capacity of the live display ring
	// buffer (1800 entries is about 30 s at 60 Hz).
	LiveBufferCapacity int `json:"live_buffer_capacity"`

	// RecordingCeilingMinutes bounds continuous recording time. Recording
	// auto-stops once the ceiling is reached. Clamped to [5, 180].
	RecordingCeilingMinutes int `json:"recording_ceiling_minutes"`

	// Unit is the preferred display/export unit: "uT", "mG", or "G".
	Unit string `json:"unit,omitempty"`

	// MQTTBroker is the broker URL for the publish command.
	MQTTBroker string `json:"mqtt_broker,omitempty"`

	// MQTTTopic is the topic processed frames are published to.
	MQTTTopic string `json:"mqtt_topic,omitempty"`

	// WebBind and WebPort configure the local web UI.
	WebBind string `json:"web_bind,omitempty"`
	WebPort int    `json:"web_port,omitempty"`
}

// Recording ceiling bounds, matching the range offered to users.
const (
	MinCeilingMinutes = 5
	MaxCeilingMinutes = 180
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		FullScaleMicrotesla:     200,
		SensorRateHz:            30,
		DisplayRateHz:           60,
		LiveBufferCapacity:      1800,
		RecordingCeilingMinutes: 60,
		Unit:                    "uT",
		MQTTBroker:              "tcp://localhost:1883",
		MQTTTopic:               "fieldmeter/frames",
		WebBind:                 "127.0.0.1",
		WebPort:                 8463,
	}
}

// RecordingCeiling returns the configured ceiling as a duration, clamped
// to the supported range.
func (c *Config) RecordingCeiling() time.Duration {
	minutes := c.RecordingCeilingMinutes
	if minutes < MinCeilingMinutes {
		minutes = MinCeilingMinutes
	}
	if minutes > MaxCeilingMinutes {
		minutes = MaxCeilingMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.fieldmeter.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFileRaw(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Merge combines base and overlay configs. Overlay values take precedence
// for any field set to a non-zero value.
func Merge(base, overlay *Config) *Config {
	result := *overlay

	if result.FullScaleMicrotesla == 0 {
		result.FullScaleMicrotesla = base.FullScaleMicrotesla
	}
	if result.SensorRateHz == 0 {
		result.SensorRateHz = base.SensorRateHz
	}
	if result.DisplayRateHz == 0 {
		result.DisplayRateHz = base.DisplayRateHz
	}
	if result.LiveBufferCapacity == 0 {
		result.LiveBufferCapacity = base.LiveBufferCapacity
	}
	if result.RecordingCeilingMinutes == 0 {
		result.RecordingCeilingMinutes = base.RecordingCeilingMinutes
	}
	if result.Unit == "" {
		result.Unit = base.Unit
	}
	if result.MQTTBroker == "" {
		result.MQTTBroker = base.MQTTBroker
	}
	if result.MQTTTopic == "" {
		result.MQTTTopic = base.MQTTTopic
	}
	if result.WebBind == "" {
		result.WebBind = base.WebBind
	}
	if result.WebPort == 0 {
		result.WebPort = base.WebPort
	}

	return &result
}
