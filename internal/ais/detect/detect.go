// Package detect implements the seven pure detection rules: each is a
// function of a consecutive point pair to an optional Alert. Rules never
// mutate their inputs and never block; the dispatch table lists them in
// the fixed evaluation order the pipeline uses.
package detect

import (
	"fmt"
	"math"

	"github.com/aegisais/detector/internal/aisconfig"
	"github.com/aegisais/detector/internal/ais/geo"
	"github.com/aegisais/detector/internal/ais/model"
)

// Rule evaluates a consecutive point pair and returns an Alert when it
// fires, or nil when it does not. p1 is the tail-before-last point, p2 is
// the newly pushed point, both drawn from the same vessel's track window.
type Rule func(p1, p2 model.AisPoint, cfg *aisconfig.Config) (*model.Alert, error)

// Table lists the seven rules in the fixed order the pipeline evaluates
// them in. Appending a rule means appending to this slice; there is no
// subclassing or registration machinery.
var Table = []struct {
	Type model.RuleType
	Rule Rule
}{
	{model.RuleTeleport, Teleport},
	{model.RuleTeleportT2, TeleportT2},
	{model.RuleTurnRate, TurnRate},
	{model.RuleTurnRateT2, TurnRateT2},
	{model.RulePositionInvalid, PositionInvalid},
	{model.RuleAcceleration, Acceleration},
	{model.RuleHeadingCOGConsistency, HeadingCOGConsistency},
}

func deltaSeconds(p1, p2 model.AisPoint) float64 {
	return p2.Timestamp.Sub(p1.Timestamp).Seconds()
}

func distanceMeters(p1, p2 model.AisPoint) float64 {
	return geo.HaversineMeters(p1.Lat, p1.Lon, p2.Lat, p2.Lon)
}

func impliedSpeedKnots(p1, p2 model.AisPoint, dt float64) (float64, bool) {
	return geo.ImpliedSpeedKnots(distanceMeters(p1, p2), dt)
}

func newEvidence(p1, p2 model.AisPoint, dt float64) model.Evidence {
	return model.Evidence{
		P1Lat: p1.Lat, P1Lon: p1.Lon,
		P2Lat: p2.Lat, P2Lon: p2.Lon,
		P1Timestamp: p1.Timestamp, P2Timestamp: p2.Timestamp,
		DeltaTSec:      dt,
		DistanceMeters: distanceMeters(p1, p2),
		Extra:          map[string]any{},
	}
}

func newAlert(ruleType model.RuleType, p2 model.AisPoint, severity int, summary string, ev model.Evidence) *model.Alert {
	return &model.Alert{
		Timestamp: p2.Timestamp,
		MMSI:      p2.MMSI,
		Type:      ruleType,
		Severity:  severity,
		Summary:   summary,
		Evidence:  ev,
		Status:    model.AlertStatusNew,
	}
}

// angleSelection picks the angular signal (heading or COG) to use for the
// turn-rate rules, matching the original heuristic: prefer heading over
// COG only when heading is actually moving or COG is stuck.
func angleSelection(p1, p2 model.AisPoint) (delta float64, isHeading bool, ok bool) {
	headingValid := p1.HeadingValid() && p2.HeadingValid()
	cogAvailable := p1.COG.Valid && p2.COG.Valid

	switch {
	case headingValid && cogAvailable:
		headingChange := geo.HeadingDeltaDeg(p1.Heading.Value, p2.Heading.Value)
		cogChange := geo.HeadingDeltaDeg(p1.COG.Value, p2.COG.Value)
		if headingChange > 0.1 || cogChange < 0.1 {
			return headingChange, true, true
		}
		return cogChange, false, true
	case headingValid:
		return geo.HeadingDeltaDeg(p1.Heading.Value, p2.Heading.Value), true, true
	case cogAvailable:
		return geo.HeadingDeltaDeg(p1.COG.Value, p2.COG.Value), false, true
	default:
		return 0, false, false
	}
}

func speedKnots(p1, p2 model.AisPoint, dt float64) (float64, bool) {
	if p2.SOG.Valid {
		return p2.SOG.Value, true
	}
	return impliedSpeedKnots(p1, p2, dt)
}

// Teleport is R1: tiered implausible-displacement detection.
func Teleport(p1, p2 model.AisPoint, cfg *aisconfig.Config) (*model.Alert, error) {
	dt := deltaSeconds(p1, p2)
	if dt <= 0 {
		return nil, nil
	}

	shortMax := cfg.GetTeleportDtShortMaxSec()
	mediumMax := cfg.GetTeleportDtMediumMaxSec()
	longMax := cfg.GetTeleportDtLongMaxSec()

	var threshold float64
	var tier string

	switch {
	case dt <= shortMax:
		threshold = cfg.GetTeleportSpeedKnotsShort()
		tier = "short"
	case dt <= mediumMax:
		threshold = cfg.GetTeleportSpeedKnotsMedium()
		tier = "medium"
	case dt <= longMax:
		sp, ok := impliedSpeedKnots(p1, p2, dt)
		if !ok {
			return nil, nil
		}
		if sp > cfg.GetTeleportSpeedKnotsMedium()*2 {
			ev := newEvidence(p1, p2, dt)
			ev.ImpliedKnots = model.Some(sp)
			ev.Extra["tier"] = "long_gap"
			summary := fmt.Sprintf("Large gap (%.1f min) with high speed %.1f kn", dt/60, sp)
			return newAlert(model.RuleTeleport, p2, 30, summary, ev), nil
		}
		return nil, nil
	default:
		return nil, nil
	}

	sp, ok := impliedSpeedKnots(p1, p2, dt)
	if !ok {
		return nil, nil
	}
	if sp <= threshold {
		return nil, nil
	}

	severity := min(100, int(100*(sp-threshold)/threshold))
	ev := newEvidence(p1, p2, dt)
	ev.ImpliedKnots = model.Some(sp)
	ev.Extra["tier"] = tier
	summary := fmt.Sprintf("Implied speed %.1f kn exceeds threshold (%s gap)", sp, tier)
	return newAlert(model.RuleTeleport, p2, severity, summary, ev), nil
}

// TeleportT2 is R2: the suspicious-band variant of Teleport.
func TeleportT2(p1, p2 model.AisPoint, cfg *aisconfig.Config) (*model.Alert, error) {
	dt := deltaSeconds(p1, p2)
	if dt <= 0 {
		return nil, nil
	}
	if dt > cfg.GetTeleportDtMediumMaxSec() {
		return nil, nil
	}

	sp, ok := impliedSpeedKnots(p1, p2, dt)
	if !ok {
		return nil, nil
	}

	var low, high float64
	var band string
	if dt <= cfg.GetTeleportDtShortMaxSec() {
		low, high = cfg.GetTeleportSuspiciousMinKnots(), cfg.GetTeleportSpeedKnotsShort()
		band = "short"
	} else {
		low, high = cfg.GetTeleportSpeedKnotsShort(), cfg.GetTeleportSpeedKnotsMedium()
		band = "medium"
	}

	if sp <= low || sp >= high {
		return nil, nil
	}

	frac := (sp - low) / math.Max(1.0, high-low)
	severity := 20 + int(40*frac)

	ev := newEvidence(p1, p2, dt)
	ev.ImpliedKnots = model.Some(sp)
	ev.Extra["tier"] = "suspicious"
	ev.Extra["band"] = band
	ev.Extra["band_low_kn"] = low
	ev.Extra["band_high_kn"] = high

	summary := fmt.Sprintf("Suspicious jump %.1f kn over %.0fs (Tier-2 teleport)", sp, dt)
	return newAlert(model.RuleTeleportT2, p2, severity, summary, ev), nil
}

// TurnRate is R3: tiered excessive-turn-rate detection.
func TurnRate(p1, p2 model.AisPoint, cfg *aisconfig.Config) (*model.Alert, error) {
	dt := deltaSeconds(p1, p2)
	if dt <= 0 || dt < cfg.GetTurnRateDtMinSec() {
		return nil, nil
	}

	angleChange, isHeading, ok := angleSelection(p1, p2)
	if !ok {
		return nil, nil
	}

	sog, ok := speedKnots(p1, p2, dt)
	if !ok {
		return nil, nil
	}

	lowFloor := cfg.GetMinSpeedForTurnCheckLowKnots()
	normalFloor := cfg.GetMinSpeedForTurnCheckKnots()

	var maxRate float64
	var severityCap int
	var tier string
	switch {
	case sog < lowFloor:
		return nil, nil
	case sog < normalFloor:
		maxRate = cfg.GetMaxTurnRateDegPerSec() * 1.5
		severityCap = 50
		tier = "low_speed"
	default:
		maxRate = cfg.GetMaxTurnRateDegPerSec()
		severityCap = 100
		tier = "normal"
	}

	rate := angleChange / dt
	if rate <= maxRate {
		return nil, nil
	}

	severity := min(severityCap, int(float64(severityCap)*(rate-maxRate)/maxRate))
	angleType := angleTypeLabel(isHeading)

	ev := newEvidence(p1, p2, dt)
	ev.TurnRateDegSec = model.Some(rate)
	ev.Extra["delta_angle_deg"] = angleChange
	ev.Extra["speed_kn"] = sog
	ev.Extra["angle_type"] = angleType
	ev.Extra["tier"] = tier

	summary := fmt.Sprintf("Turn rate %.2f deg/s at %.1f kn (%s)", rate, sog, angleType)
	return newAlert(model.RuleTurnRate, p2, severity, summary, ev), nil
}

// TurnRateT2 is R4: the suspicious-band variant of TurnRate.
func TurnRateT2(p1, p2 model.AisPoint, cfg *aisconfig.Config) (*model.Alert, error) {
	dt := deltaSeconds(p1, p2)
	if dt <= 0 || dt < cfg.GetTurnRateDtMinSec() {
		return nil, nil
	}

	angleChange, isHeading, ok := angleSelection(p1, p2)
	if !ok {
		return nil, nil
	}

	sog, ok := speedKnots(p1, p2, dt)
	if !ok || sog < cfg.GetMinSpeedForTurnCheckLowKnots() {
		return nil, nil
	}

	suspiciousMin := cfg.GetTurnRateSuspiciousMinDegPerSec()
	tier1 := cfg.GetMaxTurnRateDegPerSec()

	rate := angleChange / dt
	if rate <= suspiciousMin || rate >= tier1 {
		return nil, nil
	}

	frac := (rate - suspiciousMin) / math.Max(0.5, tier1-suspiciousMin)
	severity := 15 + int(35*frac)
	angleType := angleTypeLabel(isHeading)

	ev := newEvidence(p1, p2, dt)
	ev.TurnRateDegSec = model.Some(rate)
	ev.Extra["delta_angle_deg"] = angleChange
	ev.Extra["speed_kn"] = sog
	ev.Extra["angle_type"] = angleType
	ev.Extra["tier"] = "suspicious"
	ev.Extra["band_low_deg_s"] = suspiciousMin
	ev.Extra["band_high_deg_s"] = tier1

	summary := fmt.Sprintf("Moderate suspicious turn %.2f deg/s at %.1f kn (Tier-2)", rate, sog)
	return newAlert(model.RuleTurnRateT2, p2, severity, summary, ev), nil
}

func angleTypeLabel(isHeading bool) string {
	if isHeading {
		return "heading"
	}
	return "COG"
}

// PositionInvalid is R5: coordinate range, null-island and stuck-position
// sanity checks, evaluated in a fixed priority order.
func PositionInvalid(p1, p2 model.AisPoint, cfg *aisconfig.Config) (*model.Alert, error) {
	dt := deltaSeconds(p1, p2)
	ev := newEvidence(p1, p2, dt)

	if p2.Lat < -90 || p2.Lat > 90 || p2.Lon < -180 || p2.Lon > 180 {
		summary := fmt.Sprintf("Position out of bounds: lat=%v, lon=%v", p2.Lat, p2.Lon)
		return newAlert(model.RulePositionInvalid, p2, 100, summary, ev), nil
	}

	if math.Abs(p2.Lat) < 0.001 && math.Abs(p2.Lon) < 0.001 {
		return newAlert(model.RulePositionInvalid, p2, 100, "Position at or near (0, 0)", ev), nil
	}

	if p1.Lat == p2.Lat && p1.Lon == p2.Lon {
		if dt > 60 && p2.SOG.Valid && p2.SOG.Value > 1.0 {
			summary := fmt.Sprintf("Position unchanged for %.0fs while SOG=%.1f kn", dt, p2.SOG.Value)
			return newAlert(model.RulePositionInvalid, p2, 70, summary, ev), nil
		}
	}

	d := distanceMeters(p1, p2)
	if d > cfg.GetPositionOutlierDistanceKm()*1000 {
		if sp, ok := impliedSpeedKnots(p1, p2, dt); ok && sp > 1000 {
			ev.ImpliedKnots = model.Some(sp)
			summary := fmt.Sprintf("Extreme position jump: %.1f km in %.0fs", d/1000, dt)
			return newAlert(model.RulePositionInvalid, p2, 90, summary, ev), nil
		}
	}

	return nil, nil
}

// Acceleration is R6: SOG-vs-implied-speed mismatch, falling back to pure
// SOG-delta acceleration. The first sub-check that fires wins; the second
// is not evaluated once the first has matched.
func Acceleration(p1, p2 model.AisPoint, cfg *aisconfig.Config) (*model.Alert, error) {
	dt := deltaSeconds(p1, p2)
	if dt <= 0 || dt > 300 {
		return nil, nil
	}

	impliedSp, ok := impliedSpeedKnots(p1, p2, dt)
	if !ok {
		return nil, nil
	}

	if p2.SOG.Valid {
		diff := math.Abs(impliedSp - p2.SOG.Value)
		threshold := cfg.GetSogImpliedSpeedDiffThreshold()
		if diff > threshold {
			severity := min(100, int(100*diff/threshold))
			ev := newEvidence(p1, p2, dt)
			ev.ImpliedKnots = model.Some(impliedSp)
			ev.Extra["sog_reported"] = p2.SOG.Value
			ev.Extra["difference_kn"] = diff
			summary := fmt.Sprintf("SOG mismatch: reported %.1f kn vs implied %.1f kn", p2.SOG.Value, impliedSp)
			return newAlert(model.RuleAcceleration, p2, severity, summary, ev), nil
		}
	}

	if p1.SOG.Valid && p2.SOG.Valid {
		accel := math.Abs(p2.SOG.Value-p1.SOG.Value) / dt
		threshold := cfg.GetMaxAccelKnotsPerSec()
		if accel > threshold {
			severity := min(100, int(100*accel/threshold))
			ev := newEvidence(p1, p2, dt)
			ev.AccelKnotsSec = model.Some(accel)
			ev.Extra["sog1"] = p1.SOG.Value
			ev.Extra["sog2"] = p2.SOG.Value
			summary := fmt.Sprintf("Impossible acceleration: %.2f kn/s", accel)
			return newAlert(model.RuleAcceleration, p2, severity, summary, ev), nil
		}
	}

	return nil, nil
}

// HeadingCOGConsistency is R7: wild heading/COG swings at high speed over
// a short interval.
func HeadingCOGConsistency(p1, p2 model.AisPoint, cfg *aisconfig.Config) (*model.Alert, error) {
	dt := deltaSeconds(p1, p2)
	if dt <= 0 || dt > 10 {
		return nil, nil
	}

	sog, ok := speedKnots(p1, p2, dt)
	if !ok || sog < 15.0 {
		return nil, nil
	}

	var angleChange float64
	var angleType string
	haveAngle := false

	if p1.HeadingValid() && p2.HeadingValid() {
		angleChange = geo.HeadingDeltaDeg(p1.Heading.Value, p2.Heading.Value)
		angleType = "heading"
		haveAngle = true
	}

	if p1.COG.Valid && p2.COG.Valid {
		cogChange := geo.HeadingDeltaDeg(p1.COG.Value, p2.COG.Value)
		if !haveAngle || cogChange > angleChange {
			angleChange = cogChange
			angleType = "COG"
			haveAngle = true
		}
	}

	if !haveAngle {
		return nil, nil
	}

	rate := angleChange / dt
	threshold := cfg.GetMaxTurnRateHighSpeedDegPerSec()
	if rate <= threshold {
		return nil, nil
	}

	severity := min(100, int(100*(rate-threshold)/threshold))
	ev := newEvidence(p1, p2, dt)
	ev.TurnRateDegSec = model.Some(rate)
	ev.Extra["speed_kn"] = sog
	ev.Extra["angle_type"] = angleType
	ev.Extra["angle_change_deg"] = angleChange

	summary := fmt.Sprintf("Wild %s change: %.2f deg/s at %.1f kn", angleType, rate, sog)
	return newAlert(model.RuleHeadingCOGConsistency, p2, severity, summary, ev), nil
}

