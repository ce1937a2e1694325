package config

import (
	"flag"
	"strings"
)

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagWorkers    = flag.Int("workers", 0, "Number of batch workers")
	flagOutput     = flag.String("out", "", "Output directory for batch results")
	flagGRF        = flag.String("grf", "", "Comma-separated GRF archives or directories to read sources from")
	flagFrameRate  = flag.Float64("fps", 0, "Frame rate for clips that declare none")
	flagFixDetail  = flag.Bool("fix-detail", false, "Force every detail mesh to -detail-size")
	flagDetailSize = flag.Int("detail-size", 0, "Detail size used with -fix-detail")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagWorkers > 0 {
		cfg.Batch.Workers = *flagWorkers
	}
	if *flagOutput != "" {
		cfg.Batch.OutputDir = *flagOutput
	}
	if *flagGRF != "" {
		cfg.Data.GRFPaths = nil
		for _, p := range strings.Split(*flagGRF, ",") {
			if p = strings.TrimSpace(p); p != "" {
				cfg.Data.GRFPaths = append(cfg.Data.GRFPaths, p)
			}
		}
	}
	if *flagFrameRate > 0 {
		cfg.Loader.DefaultFrameRate = float32(*flagFrameRate)
	}
	if *flagFixDetail {
		cfg.Loader.FixDetailSize = true
		cfg.Loader.FixedDetailSize = *flagDetailSize
	}
}
