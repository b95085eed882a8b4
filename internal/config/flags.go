package config

import "flag"

var (
	flagConfig     = flag.String("config", "", "Path to config file")
	flagDebug      = flag.Bool("debug", false, "Enable debug logging")
	flagNoTasks    = flag.Bool("notasks", false, "Run the frame serially without the task scheduler")
	flagNoPVS      = flag.Bool("nopvs", false, "Disable PVS and frustum culling")
	flagSerialMark = flag.Bool("serialmark", false, "Mark surfaces in a single pass")
	flagGPULight   = flag.Bool("gpulightmaps", false, "Defer lightmap rebuilds to the update task")
	flagWorkers    = flag.Int("workers", 0, "Number of task workers")
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
	if *flagNoTasks {
		cfg.Tasks.Enabled = false
	}
	if *flagNoPVS {
		cfg.Render.PVSCulling = false
	}
	if *flagSerialMark {
		cfg.Render.ParallelMark = false
	}
	if *flagGPULight {
		cfg.Render.GPULightmapUpdate = true
	}
	if *flagWorkers > 0 {
		cfg.Tasks.Workers = *flagWorkers
	}
}
