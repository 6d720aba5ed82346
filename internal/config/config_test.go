package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestParseKeyColonFileSkipsCommentsAndBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync-player.conf")
	content := "# a comment\n\nport: 4000\n  server_mode : true  \nno_colon_here\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := parseKeyColonFile(path)
	if err != nil {
		t.Fatalf("parseKeyColonFile: %v", err)
	}
	if got["port"] != "4000" {
		t.Errorf("port = %q, want 4000", got["port"])
	}
	if got["server_mode"] != "true" {
		t.Errorf("server_mode = %q, want true", got["server_mode"])
	}
	if _, ok := got["no_colon_here"]; ok {
		t.Error("expected a line with no colon to be skipped entirely")
	}
	if len(got) != 2 {
		t.Errorf("expected exactly 2 parsed keys, got %d: %v", len(got), got)
	}
}

func TestParseKeyColonFileOnMissingFileReturnsNotExist(t *testing.T) {
	_, err := parseKeyColonFile(filepath.Join(t.TempDir(), "missing.conf"))
	if !os.IsNotExist(err) {
		t.Fatalf("expected a not-exist error, got %v", err)
	}
}

func TestClampIntRevertsToDefaultOutOfRange(t *testing.T) {
	v := viper.New()
	v.Set("port", 99999)
	if got := clampInt(v, "port", 3000, 1024, 49151); got != 3000 {
		t.Errorf("clampInt out of range = %d, want default 3000", got)
	}

	v.Set("port", 8080)
	if got := clampInt(v, "port", 3000, 1024, 49151); got != 8080 {
		t.Errorf("clampInt in range = %d, want 8080", got)
	}
}

func TestClampEnumRevertsOnUnknownValue(t *testing.T) {
	if got := clampEnum("all", "any", "any", "all"); got != "all" {
		t.Errorf("clampEnum known value = %q, want all", got)
	}
	if got := clampEnum("bogus", "any", "any", "all"); got != "any" {
		t.Errorf("clampEnum unknown value = %q, want default any", got)
	}
}

func TestClampJoinModeRevertsToSyncOnInvalid(t *testing.T) {
	if got := clampJoinMode("reset"); got != JoinModeReset {
		t.Errorf("clampJoinMode(reset) = %q, want reset", got)
	}
	if got := clampJoinMode("garbage"); got != JoinModeSync {
		t.Errorf("clampJoinMode(garbage) = %q, want sync (default)", got)
	}
}

func TestLoadAppliesFileValuesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sync-player.conf")
	content := "port: 8081\nserver_mode: true\nbsl_s2_mode: all\njoin_mode: reset\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8081 {
		t.Errorf("Port = %d, want 8081", cfg.Port)
	}
	if !cfg.ServerMode {
		t.Error("expected ServerMode=true from file")
	}
	if cfg.BSLS2Mode != "all" {
		t.Errorf("BSLS2Mode = %q, want all", cfg.BSLS2Mode)
	}
	if cfg.JoinMode != JoinModeReset {
		t.Errorf("JoinMode = %q, want reset", cfg.JoinMode)
	}
}

func TestLoadOnMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want default 3000", cfg.Port)
	}
	if cfg.JoinMode != JoinModeSync {
		t.Errorf("JoinMode = %q, want default sync", cfg.JoinMode)
	}
}

func TestParseBool(t *testing.T) {
	if !ParseBool("true") {
		t.Error("ParseBool(true) should be true")
	}
	if ParseBool("not-a-bool") {
		t.Error("ParseBool of garbage should default to false")
	}
}
