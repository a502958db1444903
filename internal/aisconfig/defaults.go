package aisconfig

import "time"

// Get* methods return a configured value or the spec-mandated default
// when the field was left unset by the loaded JSON.

func (c *Config) GetTeleportSpeedKnotsShort() float64 {
	if c.TeleportSpeedKnotsShort == nil {
		return 60.0
	}
	return *c.TeleportSpeedKnotsShort
}

func (c *Config) GetTeleportSpeedKnotsMedium() float64 {
	if c.TeleportSpeedKnotsMedium == nil {
		return 100.0
	}
	return *c.TeleportSpeedKnotsMedium
}

func (c *Config) GetTeleportDtShortMaxSec() float64 {
	if c.TeleportDtShortMaxSec == nil {
		return 120
	}
	return *c.TeleportDtShortMaxSec
}

func (c *Config) GetTeleportDtMediumMaxSec() float64 {
	if c.TeleportDtMediumMaxSec == nil {
		return 1800
	}
	return *c.TeleportDtMediumMaxSec
}

func (c *Config) GetTeleportDtLongMaxSec() float64 {
	if c.TeleportDtLongMaxSec == nil {
		return 3600
	}
	return *c.TeleportDtLongMaxSec
}

func (c *Config) GetTeleportSuspiciousMinKnots() float64 {
	if c.TeleportSuspiciousMinKnots == nil {
		return 40.0
	}
	return *c.TeleportSuspiciousMinKnots
}

func (c *Config) GetMaxTurnRateDegPerSec() float64 {
	if c.MaxTurnRateDegPerSec == nil {
		return 3.0
	}
	return *c.MaxTurnRateDegPerSec
}

func (c *Config) GetMaxTurnRateHighSpeedDegPerSec() float64 {
	if c.MaxTurnRateHighSpeedDegPerSec == nil {
		return 20.0
	}
	return *c.MaxTurnRateHighSpeedDegPerSec
}

func (c *Config) GetMinSpeedForTurnCheckKnots() float64 {
	if c.MinSpeedForTurnCheckKnots == nil {
		return 10.0
	}
	return *c.MinSpeedForTurnCheckKnots
}

func (c *Config) GetMinSpeedForTurnCheckLowKnots() float64 {
	if c.MinSpeedForTurnCheckLowKnots == nil {
		return 3.0
	}
	return *c.MinSpeedForTurnCheckLowKnots
}

func (c *Config) GetTurnRateDtMinSec() float64 {
	if c.TurnRateDtMinSec == nil {
		return 2.0
	}
	return *c.TurnRateDtMinSec
}

func (c *Config) GetTurnRateSuspiciousMinDegPerSec() float64 {
	if c.TurnRateSuspiciousMinDegPerSec == nil {
		return 1.0
	}
	return *c.TurnRateSuspiciousMinDegPerSec
}

func (c *Config) GetMaxAccelKnotsPerSec() float64 {
	if c.MaxAccelKnotsPerSec == nil {
		return 5.0
	}
	return *c.MaxAccelKnotsPerSec
}

func (c *Config) GetSogImpliedSpeedDiffThreshold() float64 {
	if c.SogImpliedSpeedDiffThreshold == nil {
		return 20.0
	}
	return *c.SogImpliedSpeedDiffThreshold
}

func (c *Config) GetPositionOutlierDistanceKm() float64 {
	if c.PositionOutlierDistanceKm == nil {
		return 1000.0
	}
	return *c.PositionOutlierDistanceKm
}

func (c *Config) GetAlertCooldownSec() float64 {
	if c.AlertCooldownSec == nil {
		return 300
	}
	return *c.AlertCooldownSec
}

func (c *Config) GetDefaultBatchSize() int {
	if c.DefaultBatchSize == nil {
		return 100
	}
	return *c.DefaultBatchSize
}

func (c *Config) GetStreamingThresholdMB() float64 {
	if c.StreamingThresholdMB == nil {
		return 50.0
	}
	return *c.StreamingThresholdMB
}

func (c *Config) GetChunkSize() int {
	if c.ChunkSize == nil {
		return 10000
	}
	return *c.ChunkSize
}

func (c *Config) GetTrackWindowSize() int {
	if c.TrackWindowSize == nil {
		return 5
	}
	return *c.TrackWindowSize
}

func (c *Config) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8090"
	}
	return *c.ListenAddr
}

func (c *Config) GetDataDir() string {
	if c.DataDir == nil || *c.DataDir == "" {
		return "./data"
	}
	return *c.DataDir
}

func (c *Config) GetCooldownPurgeInterval() time.Duration {
	if c.CooldownPurgeInterval == nil || *c.CooldownPurgeInterval == "" {
		return time.Hour
	}
	d, err := time.ParseDuration(*c.CooldownPurgeInterval)
	if err != nil {
		return time.Hour
	}
	return d
}

func (c *Config) GetCooldownPurgeMaxAgeDays() int {
	if c.CooldownPurgeMaxAgeDays == nil {
		return 7
	}
	return *c.CooldownPurgeMaxAgeDays
}
