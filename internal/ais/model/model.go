// Package model holds the core data types shared across the detection
// pipeline: points, tracks, alerts and the per-vessel/per-rule bookkeeping
// rows that back them.
package model

import "time"

// HeadingAbsent is the AIS sentinel meaning "heading not available".
const HeadingAbsent = 511

// AisPoint is one immutable vessel position report.
type AisPoint struct {
	MMSI      string
	Timestamp time.Time

	Lat float64
	Lon float64

	// SOG, COG and Heading are optional; Valid is false when the field was
	// absent or failed range validation at load time. Never store an
	// out-of-range value with Valid=true.
	SOG     OptionalFloat
	COG     OptionalFloat
	Heading OptionalFloat
}

// OptionalFloat is a present-or-absent float64, used instead of a pointer so
// points remain cheap value types.
type OptionalFloat struct {
	Value float64
	Valid bool
}

// Some returns a present OptionalFloat.
func Some(v float64) OptionalFloat { return OptionalFloat{Value: v, Valid: true} }

// None is the absent OptionalFloat.
var None = OptionalFloat{}

// HeadingValid reports whether p's heading is present and not the 511
// "not available" sentinel.
func (p AisPoint) HeadingValid() bool {
	return p.Heading.Valid && p.Heading.Value != HeadingAbsent
}

// RuleType names one of the seven detection rules. Values are stable wire
// identifiers: they are persisted and used as cooldown-store keys.
type RuleType string

const (
	RuleTeleport              RuleType = "TELEPORT"
	RuleTeleportT2            RuleType = "TELEPORT_T2"
	RuleTurnRate              RuleType = "TURN_RATE"
	RuleTurnRateT2            RuleType = "TURN_RATE_T2"
	RulePositionInvalid       RuleType = "POSITION_INVALID"
	RuleAcceleration          RuleType = "ACCELERATION"
	RuleHeadingCOGConsistency RuleType = "HEADING_COG_CONSISTENCY"
)

// AlertStatus is the review-workflow state of a persisted alert.
type AlertStatus string

const (
	AlertStatusNew           AlertStatus = "new"
	AlertStatusReviewed      AlertStatus = "reviewed"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// Evidence is the fixed-schema, rule-specific detail attached to an Alert.
// The common kinematic scalars are always populated; rule-specific extras
// (tier, band, etc.) live in Extra.
type Evidence struct {
	P1Lat, P1Lon float64
	P2Lat, P2Lon float64
	P1Timestamp  time.Time
	P2Timestamp  time.Time

	DeltaTSec      float64
	DistanceMeters float64
	ImpliedKnots   OptionalFloat
	TurnRateDegSec OptionalFloat
	AccelKnotsSec  OptionalFloat

	Extra map[string]any
}

// Alert is one emitted anomaly, the unit of record persisted and broadcast.
type Alert struct {
	ID        int64
	Timestamp time.Time
	MMSI      string
	Type      RuleType
	Severity  int
	Summary   string
	Evidence  Evidence
	Status    AlertStatus
	Notes     string
}

// VesselLatest is the per-MMSI last-seen snapshot.
type VesselLatest struct {
	MMSI              string
	Timestamp         time.Time
	Lat, Lon          float64
	SOG, COG, Heading OptionalFloat
	LastAlertSeverity int
}

// AlertCooldown is the per-(MMSI, rule type) suppression bookkeeping row.
type AlertCooldown struct {
	MMSI               string
	RuleType           RuleType
	LastAlertTimestamp time.Time
}
