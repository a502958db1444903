package aisconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmptyConfigDefaults(t *testing.T) {
	c := Empty()
	if got, want := c.GetTeleportSpeedKnotsShort(), 60.0; got != want {
		t.Errorf("GetTeleportSpeedKnotsShort() = %v, want %v", got, want)
	}
	if got, want := c.GetAlertCooldownSec(), 300.0; got != want {
		t.Errorf("GetAlertCooldownSec() = %v, want %v", got, want)
	}
	if got, want := c.GetTrackWindowSize(), 5; got != want {
		t.Errorf("GetTrackWindowSize() = %v, want %v", got, want)
	}
	if got, want := c.GetChunkSize(), 10000; got != want {
		t.Errorf("GetChunkSize() = %v, want %v", got, want)
	}
	if got, want := c.GetListenAddr(), ":8090"; got != want {
		t.Errorf("GetListenAddr() = %v, want %v", got, want)
	}
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	bad := -1.0
	c := &Config{TeleportSpeedKnotsShort: &bad}
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for negative threshold")
	}

	tooLarge := 999999999.0
	c2 := &Config{MaxTurnRateDegPerSec: &tooLarge}
	if err := c2.Validate(); err == nil {
		t.Fatal("expected error for out-of-bound turn rate")
	}
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.txt")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-.json extension")
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"alert_cooldown_sec": 600}`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := c.GetAlertCooldownSec(), 600.0; got != want {
		t.Errorf("GetAlertCooldownSec() = %v, want %v", got, want)
	}
	// unset fields still fall back to defaults
	if got, want := c.GetChunkSize(), 10000; got != want {
		t.Errorf("GetChunkSize() = %v, want %v", got, want)
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	big := make([]byte, 2*1024*1024)
	for i := range big {
		big[i] = ' '
	}
	if err := os.WriteFile(path, big, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for oversized config file")
	}
}
