// Package pipeline implements the per-point processing contract: push into
// the track store, upsert the vessel's latest snapshot, evaluate the seven
// detection rules in their fixed order, apply cooldown suppression, and
// persist whatever alerts survive.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aegisais/detector/internal/aisconfig"
	"github.com/aegisais/detector/internal/ais/cooldown"
	"github.com/aegisais/detector/internal/ais/detect"
	"github.com/aegisais/detector/internal/ais/model"
	"github.com/aegisais/detector/internal/ais/track"
	"github.com/aegisais/detector/internal/monitoring"
)

// Store is the persistence boundary the pipeline writes through. A real
// implementation backs it with SQLite (see internal/aisdb); tests can
// supply an in-memory fake.
type Store interface {
	UpsertVesselLatest(ctx context.Context, v model.VesselLatest) error
	InsertAlert(ctx context.Context, a *model.Alert) (int64, error)
	InsertPosition(ctx context.Context, p model.AisPoint) error
	// UpsertCooldown records the event-time timestamp of the most recent
	// alert for (mmsi, ruleType), mirroring the in-memory cooldown.Store
	// entry the pipeline just consulted so it survives a process restart.
	UpsertCooldown(ctx context.Context, mmsi string, ruleType model.RuleType, timestamp time.Time) error
}

// Pipeline owns the per-session track store plus references to the
// process-wide cooldown store and persistence layer. One Pipeline is
// created per replay session; it is not safe for concurrent use by more
// than one writer goroutine.
type Pipeline struct {
	cfg       *aisconfig.Config
	tracks    *track.Store
	cooldowns *cooldown.Store
	store     Store

	// vesselSeverity caches each MMSI's running max alert severity so a
	// VesselLatest upsert does not need a read-modify-write round trip
	// through the store for every point.
	vesselSeverity map[string]int
}

// New returns a Pipeline wired to the given config, cooldown store and
// persistence backend, with its own fresh per-session track store.
func New(cfg *aisconfig.Config, cooldowns *cooldown.Store, store Store) *Pipeline {
	return &Pipeline{
		cfg:            cfg,
		tracks:         track.NewStore(cfg.GetTrackWindowSize()),
		cooldowns:      cooldowns,
		store:          store,
		vesselSeverity: make(map[string]int),
	}
}

// ProcessPoint runs the full per-point contract and returns the alerts
// that survived cooldown suppression. A persistence failure aborts this
// point only; rule failures are isolated per rule.
func (p *Pipeline) ProcessPoint(ctx context.Context, point model.AisPoint) ([]*model.Alert, error) {
	w := p.tracks.Push(point)

	severity := p.vesselSeverity[point.MMSI]
	latest := model.VesselLatest{
		MMSI:              point.MMSI,
		Timestamp:         point.Timestamp,
		Lat:               point.Lat,
		Lon:               point.Lon,
		SOG:               point.SOG,
		COG:               point.COG,
		Heading:           point.Heading,
		LastAlertSeverity: severity,
	}

	var alerts []*model.Alert

	if w.Len() >= 2 {
		p1, p2, ok := w.Last2()
		if ok {
			for _, entry := range detect.Table {
				alert, err := runRule(entry.Rule, p1, p2, p.cfg)
				if err != nil {
					monitoring.Logf("detect: rule %s failed for MMSI %s: %v", entry.Type, p2.MMSI, err)
					continue
				}
				if alert == nil {
					continue
				}

				if !p.cooldowns.Allow(alert.MMSI, alert.Type, alert.Timestamp) {
					continue
				}
				if err := p.store.UpsertCooldown(ctx, alert.MMSI, alert.Type, alert.Timestamp); err != nil {
					monitoring.Logf("pipeline: persist cooldown for %s/%s failed: %v", alert.MMSI, alert.Type, err)
				}

				id, err := p.store.InsertAlert(ctx, alert)
				if err != nil {
					return alerts, fmt.Errorf("persist alert %s for MMSI %s: %w", alert.Type, alert.MMSI, err)
				}
				alert.ID = id

				if alert.Severity > severity {
					severity = alert.Severity
				}
				alerts = append(alerts, alert)
			}
		}
	}

	latest.LastAlertSeverity = severity
	p.vesselSeverity[point.MMSI] = severity

	if err := p.store.UpsertVesselLatest(ctx, latest); err != nil {
		return alerts, fmt.Errorf("upsert vessel latest for MMSI %s: %w", point.MMSI, err)
	}
	if err := p.store.InsertPosition(ctx, point); err != nil {
		return alerts, fmt.Errorf("insert position history for MMSI %s: %w", point.MMSI, err)
	}

	return alerts, nil
}

// runRule isolates a panic or error from one rule so the remaining rules
// in the table still run for this point.
func runRule(rule detect.Rule, p1, p2 model.AisPoint, cfg *aisconfig.Config) (alert *model.Alert, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return rule(p1, p2, cfg)
}
