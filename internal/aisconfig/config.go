// Package aisconfig holds the detection pipeline's tunable thresholds and
// the ambient options (listen address, data directory, purge interval)
// needed to run it as a service. The schema mirrors the JSON shape an
// operator can hand to a running instance, so the same struct loads both
// startup configuration and file-based overrides.
package aisconfig

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Config represents the root configuration for detection tuning and
// service-level options. Every field is optional; fields omitted from a
// loaded JSON file retain their default values via the Get* accessors.
type Config struct {
	// Detection thresholds (spec §6 configuration table).
	TeleportSpeedKnotsShort         *float64 `json:"teleport_speed_knots_short,omitempty"`
	TeleportSpeedKnotsMedium        *float64 `json:"teleport_speed_knots_medium,omitempty"`
	TeleportDtShortMaxSec           *float64 `json:"teleport_dt_short_max_sec,omitempty"`
	TeleportDtMediumMaxSec          *float64 `json:"teleport_dt_medium_max_sec,omitempty"`
	TeleportDtLongMaxSec            *float64 `json:"teleport_dt_long_max_sec,omitempty"`
	TeleportSuspiciousMinKnots      *float64 `json:"teleport_suspicious_min_knots,omitempty"`
	MaxTurnRateDegPerSec            *float64 `json:"max_turn_rate_deg_per_sec,omitempty"`
	MaxTurnRateHighSpeedDegPerSec   *float64 `json:"max_turn_rate_high_speed_deg_per_sec,omitempty"`
	MinSpeedForTurnCheckKnots       *float64 `json:"min_speed_for_turn_check_knots,omitempty"`
	MinSpeedForTurnCheckLowKnots    *float64 `json:"min_speed_for_turn_check_low_knots,omitempty"`
	TurnRateDtMinSec                *float64 `json:"turn_rate_dt_min_sec,omitempty"`
	TurnRateSuspiciousMinDegPerSec  *float64 `json:"turn_rate_suspicious_min_deg_per_sec,omitempty"`
	MaxAccelKnotsPerSec             *float64 `json:"max_accel_knots_per_sec,omitempty"`
	SogImpliedSpeedDiffThreshold    *float64 `json:"sog_implied_speed_diff_threshold_knots,omitempty"`
	PositionOutlierDistanceKm       *float64 `json:"position_outlier_distance_km,omitempty"`
	AlertCooldownSec                *float64 `json:"alert_cooldown_sec,omitempty"`
	DefaultBatchSize                *int     `json:"default_batch_size,omitempty"`
	StreamingThresholdMB            *float64 `json:"streaming_threshold_mb,omitempty"`
	ChunkSize                       *int     `json:"chunk_size,omitempty"`
	TrackWindowSize                 *int     `json:"track_window_size,omitempty"`

	// Ambient service options, not part of the detection contract itself.
	ListenAddr               *string `json:"listen_addr,omitempty"`
	DataDir                  *string `json:"data_dir,omitempty"`
	CooldownPurgeInterval    *string `json:"cooldown_purge_interval,omitempty"`
	CooldownPurgeMaxAgeDays  *int    `json:"cooldown_purge_max_age_days,omitempty"`
}

// Empty returns a Config with every field nil. Use Load to populate one
// from a JSON file; the Get* methods supply defaults for anything unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file. The path must have a .json
// extension and the file must be at most 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that every set field is positive, finite, and within a
// sane upper bound, per spec's closing requirement on the configuration
// table.
func (c *Config) Validate() error {
	floatChecks := []struct {
		name string
		v    *float64
		max  float64
	}{
		{"teleport_speed_knots_short", c.TeleportSpeedKnotsShort, 1000},
		{"teleport_speed_knots_medium", c.TeleportSpeedKnotsMedium, 1000},
		{"teleport_dt_short_max_sec", c.TeleportDtShortMaxSec, 86400},
		{"teleport_dt_medium_max_sec", c.TeleportDtMediumMaxSec, 86400},
		{"teleport_dt_long_max_sec", c.TeleportDtLongMaxSec, 86400},
		{"teleport_suspicious_min_knots", c.TeleportSuspiciousMinKnots, 1000},
		{"max_turn_rate_deg_per_sec", c.MaxTurnRateDegPerSec, 360},
		{"max_turn_rate_high_speed_deg_per_sec", c.MaxTurnRateHighSpeedDegPerSec, 360},
		{"min_speed_for_turn_check_knots", c.MinSpeedForTurnCheckKnots, 1000},
		{"min_speed_for_turn_check_low_knots", c.MinSpeedForTurnCheckLowKnots, 1000},
		{"turn_rate_dt_min_sec", c.TurnRateDtMinSec, 3600},
		{"turn_rate_suspicious_min_deg_per_sec", c.TurnRateSuspiciousMinDegPerSec, 360},
		{"max_accel_knots_per_sec", c.MaxAccelKnotsPerSec, 1000},
		{"sog_implied_speed_diff_threshold_knots", c.SogImpliedSpeedDiffThreshold, 1000},
		{"position_outlier_distance_km", c.PositionOutlierDistanceKm, 40075},
		{"alert_cooldown_sec", c.AlertCooldownSec, 604800},
		{"streaming_threshold_mb", c.StreamingThresholdMB, 1000000},
	}
	for _, fc := range floatChecks {
		if fc.v == nil {
			continue
		}
		if *fc.v <= 0 || math.IsNaN(*fc.v) || math.IsInf(*fc.v, 0) {
			return fmt.Errorf("%s must be positive and finite, got %v", fc.name, *fc.v)
		}
		if *fc.v > fc.max {
			return fmt.Errorf("%s exceeds sane upper bound %v, got %v", fc.name, fc.max, *fc.v)
		}
	}

	if c.DefaultBatchSize != nil && *c.DefaultBatchSize <= 0 {
		return fmt.Errorf("default_batch_size must be positive, got %d", *c.DefaultBatchSize)
	}
	if c.ChunkSize != nil && *c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", *c.ChunkSize)
	}
	if c.TrackWindowSize != nil && *c.TrackWindowSize <= 1 {
		return fmt.Errorf("track_window_size must be greater than 1, got %d", *c.TrackWindowSize)
	}
	if c.CooldownPurgeMaxAgeDays != nil && *c.CooldownPurgeMaxAgeDays <= 0 {
		return fmt.Errorf("cooldown_purge_max_age_days must be positive, got %d", *c.CooldownPurgeMaxAgeDays)
	}
	if c.CooldownPurgeInterval != nil && *c.CooldownPurgeInterval != "" {
		if _, err := time.ParseDuration(*c.CooldownPurgeInterval); err != nil {
			return fmt.Errorf("invalid cooldown_purge_interval %q: %w", *c.CooldownPurgeInterval, err)
		}
	}

	return nil
}
