// Package config handles compiler configuration loading and management.
package config

// Config holds all compiler settings.
type Config struct {
	Loader  LoaderConfig  `yaml:"loader"`
	Batch   BatchConfig   `yaml:"batch"`
	Data    DataConfig    `yaml:"data"`
	Logging LoggingConfig `yaml:"logging"`
}

// LoaderConfig holds shape compilation settings.
type LoaderConfig struct {
	MinFrameRate     float32 `yaml:"min_frame_rate"`
	MaxFrameRate     float32 `yaml:"max_frame_rate"`
	DefaultFrameRate float32 `yaml:"default_frame_rate"` // Used when a clip declares no rate
	GroundFrameRate  float32 `yaml:"ground_frame_rate"`
	Tolerance        float32 `yaml:"tolerance"`
	FixDetailSize    bool    `yaml:"fix_detail_size"`
	FixedDetailSize  int     `yaml:"fixed_detail_size"`
	MaxNodes         int     `yaml:"max_nodes"`
}

// BatchConfig holds batch compilation settings.
type BatchConfig struct {
	Workers   int    `yaml:"workers"`
	OutputDir string `yaml:"output_dir"`
}

// DataConfig holds game data file paths.
type DataConfig struct {
	GRFPaths []string `yaml:"grf_paths"` // GRF archives or directories, later entries searched first
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Loader: LoaderConfig{
			MinFrameRate:     15,
			MaxFrameRate:     60,
			DefaultFrameRate: 30,
			GroundFrameRate:  10,
			Tolerance:        1e-4,
			MaxNodes:         2048,
		},
		Batch: BatchConfig{
			Workers:   4,
			OutputDir: "out",
		},
		Data: DataConfig{
			GRFPaths: []string{},
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}
