// Package aisdb implements the pipeline.Store persistence boundary on top
// of SQLite (modernc.org/sqlite, pure Go, no cgo), with schema managed by
// golang-migrate against an embedded migrations directory.
package aisdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aegisais/detector/internal/ais/model"
	"github.com/aegisais/detector/internal/ais/pipeline"
)

// DB wraps a *sql.DB opened against a SQLite file and implements
// pipeline.Store.
type DB struct {
	*sql.DB
}

var _ pipeline.Store = (*DB)(nil)

// applyPragmas sets the WAL/concurrency pragmas the pipeline's
// single-writer-per-session access pattern depends on.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("exec %q: %w", p, err)
		}
	}
	return nil
}

// Open opens (creating if necessary) a SQLite database at path, applies
// pragmas, and migrates it to the latest schema version.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return db, nil
}

func nullableFloat(o model.OptionalFloat) sql.NullFloat64 {
	if !o.Valid {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: o.Value, Valid: true}
}

func optionalFromNull(n sql.NullFloat64) model.OptionalFloat {
	if !n.Valid {
		return model.None
	}
	return model.Some(n.Float64)
}

// UpsertVesselLatest implements pipeline.Store.
func (db *DB) UpsertVesselLatest(ctx context.Context, v model.VesselLatest) error {
	const q = `
		INSERT INTO vessels_latest (mmsi, timestamp, lat, lon, sog, cog, heading, last_alert_severity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(mmsi) DO UPDATE SET
			timestamp = excluded.timestamp,
			lat = excluded.lat,
			lon = excluded.lon,
			sog = excluded.sog,
			cog = excluded.cog,
			heading = excluded.heading,
			last_alert_severity = excluded.last_alert_severity
	`
	_, err := db.ExecContext(ctx, q,
		v.MMSI, v.Timestamp.Unix(), v.Lat, v.Lon,
		nullableFloat(v.SOG), nullableFloat(v.COG), nullableFloat(v.Heading),
		v.LastAlertSeverity,
	)
	if err != nil {
		return fmt.Errorf("upsert vessels_latest for %s: %w", v.MMSI, err)
	}
	return nil
}

// GetVesselLatest returns the latest known snapshot for mmsi, if any.
func (db *DB) GetVesselLatest(ctx context.Context, mmsi string) (model.VesselLatest, bool, error) {
	const q = `
		SELECT mmsi, timestamp, lat, lon, sog, cog, heading, last_alert_severity
		FROM vessels_latest WHERE mmsi = ?
	`
	row := db.QueryRowContext(ctx, q, mmsi)
	var v model.VesselLatest
	var ts int64
	var sog, cog, heading sql.NullFloat64
	err := row.Scan(&v.MMSI, &ts, &v.Lat, &v.Lon, &sog, &cog, &heading, &v.LastAlertSeverity)
	if err == sql.ErrNoRows {
		return model.VesselLatest{}, false, nil
	}
	if err != nil {
		return model.VesselLatest{}, false, fmt.Errorf("get vessels_latest for %s: %w", mmsi, err)
	}
	v.Timestamp = time.Unix(ts, 0).UTC()
	v.SOG = optionalFromNull(sog)
	v.COG = optionalFromNull(cog)
	v.Heading = optionalFromNull(heading)
	return v, true, nil
}

// InsertPosition implements pipeline.Store, appending one row to the
// vessel_positions history table.
func (db *DB) InsertPosition(ctx context.Context, p model.AisPoint) error {
	const q = `
		INSERT INTO vessel_positions (mmsi, timestamp, lat, lon, sog, cog, heading)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, q,
		p.MMSI, p.Timestamp.Unix(), p.Lat, p.Lon,
		nullableFloat(p.SOG), nullableFloat(p.COG), nullableFloat(p.Heading),
	)
	if err != nil {
		return fmt.Errorf("insert vessel_positions for %s: %w", p.MMSI, err)
	}
	return nil
}

// InsertAlert implements pipeline.Store, persisting a.Evidence as JSON and
// returning the assigned row ID.
func (db *DB) InsertAlert(ctx context.Context, a *model.Alert) (int64, error) {
	evidence, err := json.Marshal(a.Evidence)
	if err != nil {
		return 0, fmt.Errorf("marshal evidence for alert %s/%s: %w", a.MMSI, a.Type, err)
	}

	status := a.Status
	if status == "" {
		status = model.AlertStatusNew
	}

	const q = `
		INSERT INTO alerts (timestamp, mmsi, type, severity, summary, evidence_json, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.ExecContext(ctx, q,
		a.Timestamp.Unix(), a.MMSI, string(a.Type), a.Severity, a.Summary, string(evidence), string(status), a.Notes,
	)
	if err != nil {
		return 0, fmt.Errorf("insert alert %s/%s: %w", a.MMSI, a.Type, err)
	}
	return res.LastInsertId()
}

// ListAlerts returns up to limit alerts for mmsi ordered most-recent-first.
// Intended for the offline reporting tool, not a query API.
func (db *DB) ListAlerts(ctx context.Context, mmsi string, limit int) ([]*model.Alert, error) {
	const q = `
		SELECT id, timestamp, mmsi, type, severity, summary, evidence_json, status, notes
		FROM alerts WHERE mmsi = ? ORDER BY timestamp DESC LIMIT ?
	`
	rows, err := db.QueryContext(ctx, q, mmsi, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts for %s: %w", mmsi, err)
	}
	defer rows.Close()

	var alerts []*model.Alert
	for rows.Next() {
		a := &model.Alert{}
		var ts int64
		var ruleType, status, evidenceJSON string
		if err := rows.Scan(&a.ID, &ts, &a.MMSI, &ruleType, &a.Severity, &a.Summary, &evidenceJSON, &status, &a.Notes); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		a.Timestamp = time.Unix(ts, 0).UTC()
		a.Type = model.RuleType(ruleType)
		a.Status = model.AlertStatus(status)
		if err := json.Unmarshal([]byte(evidenceJSON), &a.Evidence); err != nil {
			return nil, fmt.Errorf("unmarshal evidence for alert %d: %w", a.ID, err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// UpsertCooldown implements pipeline.Store, persisting the event-time
// timestamp of the most recent alert for (mmsi, ruleType) so the cooldown
// survives a process restart; PurgeCooldownsOlderThan reaps stale rows.
func (db *DB) UpsertCooldown(ctx context.Context, mmsi string, ruleType model.RuleType, timestamp time.Time) error {
	const q = `
		INSERT INTO alert_cooldowns (mmsi, rule_type, last_alert_timestamp)
		VALUES (?, ?, ?)
		ON CONFLICT(mmsi, rule_type) DO UPDATE SET
			last_alert_timestamp = excluded.last_alert_timestamp
		WHERE excluded.last_alert_timestamp > alert_cooldowns.last_alert_timestamp
	`
	_, err := db.ExecContext(ctx, q, mmsi, string(ruleType), timestamp.Unix())
	if err != nil {
		return fmt.Errorf("upsert alert_cooldowns for %s/%s: %w", mmsi, ruleType, err)
	}
	return nil
}

// PurgeCooldownsOlderThan deletes alert_cooldowns rows whose
// last_alert_timestamp predates cutoff, for the periodic cleanup task.
func (db *DB) PurgeCooldownsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM alert_cooldowns WHERE last_alert_timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge alert_cooldowns: %w", err)
	}
	return res.RowsAffected()
}
