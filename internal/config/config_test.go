package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kozaktomas/frame-redactor/internal/effect"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "ENGINE_WORKERS", "DETECTION_THRESHOLD", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Engine.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Engine.Workers)
	}
	if cfg.Thresholds.DetectionThreshold != 0.5 || cfg.Thresholds.MergeThreshold != 0.8 {
		t.Errorf("unexpected default thresholds: %+v", cfg.Thresholds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ENGINE_GPU_ENABLED", "true")
	t.Setenv("DETECTION_THRESHOLD", "0.65")
	t.Setenv("MIN_PIXEL_COUNT", "20")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")

	cfg := Load()

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Engine.GPUEnabled {
		t.Error("expected GPU enabled")
	}
	if cfg.Thresholds.DetectionThreshold != 0.65 || cfg.Thresholds.MinPixelCount != 20 {
		t.Errorf("unexpected thresholds: %+v", cfg.Thresholds)
	}
	if cfg.Database.URL != "postgres://u:p@localhost/db" {
		t.Errorf("unexpected database URL %q", cfg.Database.URL)
	}
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "invalid")
	t.Setenv("ENGINE_WORKERS", "-3")
	t.Setenv("MERGE_THRESHOLD", "high")
	t.Setenv("ENGINE_GPU_ENABLED", "maybe")

	cfg := Load()

	if cfg.Server.Port != 8080 || cfg.Engine.Workers != 4 {
		t.Errorf("expected defaults for invalid ints, got port=%d workers=%d", cfg.Server.Port, cfg.Engine.Workers)
	}
	if cfg.Thresholds.MergeThreshold != 0.8 {
		t.Errorf("expected default merge threshold, got %v", cfg.Thresholds.MergeThreshold)
	}
	if cfg.Engine.GPUEnabled {
		t.Error("expected GPU disabled for unparsable value")
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Load()
	cfg.Log.Level = "loud"
	cfg.Engine.JPEGQuality = 101
	cfg.Thresholds.DetectionThreshold = 1.5

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"LOG_LEVEL", "JPEG_QUALITY", "detection threshold"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestPresets(t *testing.T) {
	cfg := Load()
	r := effect.DefaultRegistry()

	names := cfg.PresetNames()
	if len(names) == 0 {
		t.Fatal("expected built-in presets")
	}
	for _, name := range names {
		chain, ok := cfg.Preset(name)
		if !ok || len(chain) == 0 {
			t.Fatalf("preset %s is empty", name)
		}
		for _, c := range chain {
			if !c.Enabled || c.ID == "" {
				t.Errorf("preset %s effect %+v missing defaults", name, c)
			}
			if err := r.Validate(c); err != nil {
				t.Errorf("preset %s effect %s invalid: %v", name, c.ID, err)
			}
		}
	}

	chain, _ := cfg.Preset("retro")
	chain[0].Params["pixel_size"] = 30
	again, _ := cfg.Preset("retro")
	if again[0].Params["pixel_size"] == 30 {
		t.Error("Preset() returned shared params")
	}

	if _, ok := cfg.Preset("missing"); ok {
		t.Error("expected missing preset")
	}
}

func TestLoadChainFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "chain.yaml")
	jsonPath := filepath.Join(dir, "chain.json")
	os.WriteFile(yamlPath, []byte("effects:\n  - kind: blur\n    params:\n      radius: 4.5\n  - kind: mosaic\n    id: m\n    enabled: false\n"), 0o644)
	os.WriteFile(jsonPath, []byte(`{"effects":[{"kind":"pixelate","id":"p","intensity":0.5}]}`), 0o644)

	chain, err := LoadChainFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadChainFile(yaml) error = %v", err)
	}
	if len(chain) != 2 {
		t.Fatalf("expected 2 effects, got %d", len(chain))
	}
	if chain[0].ID == "" || !chain[0].Enabled || chain[0].Intensity != 1 {
		t.Errorf("defaults not applied: %+v", chain[0])
	}
	if chain[1].Enabled {
		t.Error("explicit enabled=false overridden")
	}

	chain, err = LoadChainFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadChainFile(json) error = %v", err)
	}
	if chain[0].ID != "p" || chain[0].Intensity != 0.5 || chain[0].BlendMode != effect.BlendNormal {
		t.Errorf("unexpected JSON effect: %+v", chain[0])
	}

	if _, err := ParseChain([]byte("effects:\n  - id: nokind\n"), ".yml"); err == nil {
		t.Error("expected error for missing kind")
	}
	if _, err := LoadChainFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_ServerAccess(t *testing.T) {
	t.Setenv("API_TOKEN", "s3cret")
	t.Setenv("WEB_ALLOWED_ORIGINS", " https://a.example ,,https://b.example")

	cfg := Load()

	if cfg.Server.APIToken != "s3cret" {
		t.Errorf("expected API token, got %q", cfg.Server.APIToken)
	}
	want := []string{"https://a.example", "https://b.example"}
	if strings.Join(cfg.Server.AllowedOrigins, "|") != strings.Join(want, "|") {
		t.Errorf("expected origins %v, got %v", want, cfg.Server.AllowedOrigins)
	}
}
