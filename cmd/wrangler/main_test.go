package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verte-zerg/wrangler/internal/config"
)

func TestDefaultConfigTemplateLoads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		t.Fatalf("template should load: %v", err)
	}
	if cfg.Timer.Preset != nil || cfg.Notify.Message != nil {
		t.Fatalf("expected all values commented out")
	}

	uncommented := strings.ReplaceAll(defaultConfigTemplate(), "\n# ", "\n")
	uncommented = strings.Replace(uncommented, "wrangler configuration\n", "wrangler configuration\n#", 1)
	if err := os.WriteFile(path, []byte(uncommented), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err = config.LoadConfig(path)
	if err != nil {
		t.Fatalf("uncommented template should load: %v", err)
	}
	if cfg.Timer.Preset == nil || *cfg.Timer.Preset != "classic" {
		t.Fatalf("unexpected preset %v", cfg.Timer.Preset)
	}
}

func TestParseID(t *testing.T) {
	for in, want := range map[string]int64{"7": 7, "#12": 12, " 3 ": 3} {
		got, err := parseID("task", in)
		if err != nil || got != want {
			t.Errorf("parseID(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, in := range []string{"", "0", "-1", "abc"} {
		if _, err := parseID("task", in); err == nil {
			t.Errorf("parseID(%q) expected error", in)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	timerPreset, timerTickMS, timerExtendShort, timerExtendLong, notifyMessage = "deep", 250, 5, 10, ""
	preset, err := validateConfig()
	if err != nil || preset.Focus != 90 {
		t.Fatalf("expected deep preset, got %+v, %v", preset, err)
	}

	timerPreset = "marathon"
	if _, err := validateConfig(); err == nil {
		t.Fatalf("expected unknown preset error")
	}
	timerPreset = "classic"

	timerTickMS = 10
	if _, err := validateConfig(); err == nil {
		t.Fatalf("expected tick error")
	}
	timerTickMS = 250

	notifyMessage = "{{#type}"
	if _, err := validateConfig(); err == nil {
		t.Fatalf("expected template error")
	}
	notifyMessage = ""
}
