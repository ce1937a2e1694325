package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Test loader defaults
	if cfg.Loader.MinFrameRate != 15 {
		t.Errorf("expected min frame rate 15, got %v", cfg.Loader.MinFrameRate)
	}
	if cfg.Loader.MaxFrameRate != 60 {
		t.Errorf("expected max frame rate 60, got %v", cfg.Loader.MaxFrameRate)
	}
	if cfg.Loader.DefaultFrameRate != 30 {
		t.Errorf("expected default frame rate 30, got %v", cfg.Loader.DefaultFrameRate)
	}
	if cfg.Loader.GroundFrameRate != 10 {
		t.Errorf("expected ground frame rate 10, got %v", cfg.Loader.GroundFrameRate)
	}
	if cfg.Loader.FixDetailSize {
		t.Error("expected fix_detail_size to be false by default")
	}
	if cfg.Loader.MaxNodes != 2048 {
		t.Errorf("expected max nodes 2048, got %d", cfg.Loader.MaxNodes)
	}

	// Test batch defaults
	if cfg.Batch.Workers != 4 {
		t.Errorf("expected 4 workers, got %d", cfg.Batch.Workers)
	}

	// Test logging defaults
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "" {
		t.Errorf("expected empty log file, got %s", cfg.Logging.LogFile)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
loader:
  min_frame_rate: 10
  max_frame_rate: 120
  default_frame_rate: 24
  tolerance: 0.001
  fix_detail_size: true
  fixed_detail_size: 64

batch:
  workers: 8
  output_dir: "build/shapes"

data:
  grf_paths:
    - "data.grf"
    - "rdata.grf"

logging:
  level: "debug"
  log_file: "shapec.log"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Loader.MinFrameRate != 10 {
		t.Errorf("expected min frame rate 10, got %v", cfg.Loader.MinFrameRate)
	}
	if cfg.Loader.MaxFrameRate != 120 {
		t.Errorf("expected max frame rate 120, got %v", cfg.Loader.MaxFrameRate)
	}
	if cfg.Loader.DefaultFrameRate != 24 {
		t.Errorf("expected default frame rate 24, got %v", cfg.Loader.DefaultFrameRate)
	}
	if !cfg.Loader.FixDetailSize || cfg.Loader.FixedDetailSize != 64 {
		t.Errorf("expected fixed detail size 64, got %v/%d", cfg.Loader.FixDetailSize, cfg.Loader.FixedDetailSize)
	}
	// Untouched keys keep their defaults
	if cfg.Loader.GroundFrameRate != 10 {
		t.Errorf("expected ground frame rate 10, got %v", cfg.Loader.GroundFrameRate)
	}

	if cfg.Batch.Workers != 8 {
		t.Errorf("expected 8 workers, got %d", cfg.Batch.Workers)
	}
	if cfg.Batch.OutputDir != "build/shapes" {
		t.Errorf("expected output dir build/shapes, got %s", cfg.Batch.OutputDir)
	}
	if len(cfg.Data.GRFPaths) != 2 || cfg.Data.GRFPaths[1] != "rdata.grf" {
		t.Errorf("unexpected grf paths %v", cfg.Data.GRFPaths)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
	}
	if cfg.Logging.LogFile != "shapec.log" {
		t.Errorf("expected log file 'shapec.log', got %s", cfg.Logging.LogFile)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
loader:
  min_frame_rate: not a number
  invalid syntax here
`

	if err := os.WriteFile(configPath, []byte(invalidYAML), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	err := loadFromFile(cfg, configPath)
	if err == nil {
		t.Error("expected error loading invalid YAML, got nil")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := Default()
	err := loadFromFile(cfg, "/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"min above max", func(c *Config) { c.Loader.MinFrameRate = 90 }, true},
		{"zero frame rate", func(c *Config) { c.Loader.MaxFrameRate = 0 }, true},
		{"zero tolerance", func(c *Config) { c.Loader.Tolerance = 0 }, true},
		{"no workers", func(c *Config) { c.Batch.Workers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()

	// Actual path depends on OS
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}

	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	origDir, _ := os.Getwd()
	defer os.Chdir(origDir)

	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir)

	// No config file exists - should return empty
	path := findConfigFile()
	if path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	configPath := filepath.Join(tmpDir, "shapec.yaml")
	if err := os.WriteFile(configPath, []byte("batch:\n  workers: 2\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}

	path = findConfigFile()
	if path == "" {
		t.Error("expected to find shapec.yaml in current directory")
	}
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		setup    func()
		verify   func(*testing.T, *Config)
		teardown func()
	}{
		{
			name: "debug flag",
			setup: func() {
				*flagDebug = true
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
			teardown: func() {
				*flagDebug = false
			},
		},
		{
			name: "workers and output flags",
			setup: func() {
				*flagWorkers = 16
				*flagOutput = "dist"
			},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Batch.Workers != 16 {
					t.Errorf("expected 16 workers, got %d", cfg.Batch.Workers)
				}
				if cfg.Batch.OutputDir != "dist" {
					t.Errorf("expected output dir dist, got %s", cfg.Batch.OutputDir)
				}
			},
			teardown: func() {
				*flagWorkers = 0
				*flagOutput = ""
			},
		},
		{
			name: "grf flag",
			setup: func() {
				*flagGRF = "data.grf, custom.grf,"
			},
			verify: func(t *testing.T, cfg *Config) {
				if len(cfg.Data.GRFPaths) != 2 {
					t.Fatalf("expected 2 grf paths, got %v", cfg.Data.GRFPaths)
				}
				if cfg.Data.GRFPaths[1] != "custom.grf" {
					t.Errorf("expected custom.grf, got %s", cfg.Data.GRFPaths[1])
				}
			},
			teardown: func() {
				*flagGRF = ""
			},
		},
		{
			name: "detail flags",
			setup: func() {
				*flagFixDetail = true
				*flagDetailSize = 32
				*flagFrameRate = 25
			},
			verify: func(t *testing.T, cfg *Config) {
				if !cfg.Loader.FixDetailSize || cfg.Loader.FixedDetailSize != 32 {
					t.Errorf("expected fixed detail size 32, got %v/%d", cfg.Loader.FixDetailSize, cfg.Loader.FixedDetailSize)
				}
				if cfg.Loader.DefaultFrameRate != 25 {
					t.Errorf("expected default frame rate 25, got %v", cfg.Loader.DefaultFrameRate)
				}
			},
			teardown: func() {
				*flagFixDetail = false
				*flagDetailSize = 0
				*flagFrameRate = 0
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer tt.teardown()

			cfg := Default()
			applyFlags(cfg)

			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
batch:
  workers: 6
  output_dir: "from-file"
`

	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	// Set flag to override config file
	*flagConfig = configPath
	*flagWorkers = 12
	defer func() {
		*flagConfig = ""
		*flagWorkers = 0
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	// Workers should come from the flag, not the file
	if cfg.Batch.Workers != 12 {
		t.Errorf("expected 12 workers from flag, got %d", cfg.Batch.Workers)
	}

	// Output dir comes from the file since no flag overrides it
	if cfg.Batch.OutputDir != "from-file" {
		t.Errorf("expected output dir from file, got %s", cfg.Batch.OutputDir)
	}
}

func TestLoadReportsBadFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("batch:\n  workers: many\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	*flagConfig = configPath
	defer func() { *flagConfig = "" }()

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for non-numeric workers")
	}
	if !strings.Contains(err.Error(), configPath) {
		t.Errorf("error does not name the file: %v", err)
	}
	var typeErr *yaml.TypeError
	if !errors.As(err, &typeErr) {
		t.Errorf("expected wrapped *yaml.TypeError, got %T: %v", err, err)
	}
}

func TestValidateMessages(t *testing.T) {
	cfg := Default()
	cfg.Batch.Workers = 0
	err := cfg.Validate()
	if err == nil || !strings.HasPrefix(err.Error(), "batch: workers must be at least 1") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Batch.Workers = 3
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo failed: %v", err)
	}

	loaded := Default()
	if err := loadFromFile(loaded, path); err != nil {
		t.Fatalf("failed to reload saved config: %v", err)
	}
	if loaded.Batch.Workers != 3 {
		t.Errorf("expected 3 workers after reload, got %d", loaded.Batch.Workers)
	}
}
