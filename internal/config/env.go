package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"
)

// isFlagSet checks if a flag was explicitly set on the command line. This
// is used to decide whether environment overrides apply.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// getEnvString returns the value of the environment variable with the given
// key (prefixed with EnvPrefix), or the default value if not set.
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvInt returns the value of the environment variable with the given key
// (prefixed with EnvPrefix) parsed as int, or the default value if not set
// or invalid.
func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// getEnvFloat returns the value of the environment variable with the given
// key (prefixed with EnvPrefix) parsed as float64, or the default value if
// not set or invalid.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// getEnvBool returns the value of the environment variable with the given
// key (prefixed with EnvPrefix) parsed as bool, or the default value if not
// set. Accepts "true", "1", "yes" as true; "false", "0", "no" as false
// (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}

// getEnvDuration returns the value of the environment variable with the
// given key (prefixed with EnvPrefix) parsed as time.Duration, or the
// default value if not set or invalid. Accepts formats like "5m", "30s".
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

// applyEnvOverrides applies environment variable values to the
// configuration for any flags that were not explicitly set on the command
// line. This implements the priority: CLI flags > environment variables >
// input deck > defaults.
//
// Supported environment variables:
//   - MRSCF_INPUT: Path to the input deck (string)
//   - MRSCF_MAX_ITER: Iteration cap (int)
//   - MRSCF_ORBITAL_THRESHOLD: Orbital error threshold (float)
//   - MRSCF_PROPERTY_THRESHOLD: Energy change threshold (float)
//   - MRSCF_HISTORY: Accelerator history length (int)
//   - MRSCF_ROTATION: Rotation mode (string: canonical, localized)
//   - MRSCF_ROTATION_PERIOD: Rotation period (int)
//   - MRSCF_MODE: Optimization strategy (string: orbital, energy)
//   - MRSCF_START_PREC: Initial working precision (float)
//   - MRSCF_FINAL_PREC: Tightest working precision (float)
//   - MRSCF_CHECKPOINT: Orbital save prefix (string)
//   - MRSCF_PLOT: Convergence plot path (string)
//   - MRSCF_METRICS_ADDR: Metrics endpoint address (string)
//   - MRSCF_TIMEOUT: Wall-clock budget (duration: "5m", "30s")
//   - MRSCF_VERBOSE: Debug logging (bool)
//   - MRSCF_QUIET: Quiet mode (bool)
//   - MRSCF_NO_COLOR: Disable colored output (bool)
func applyEnvOverrides(config *AppConfig, fs *flag.FlagSet) {
	if !isFlagSet(fs, "input") && !isFlagSet(fs, "i") {
		config.Input = getEnvString("INPUT", config.Input)
	}
	if !isFlagSet(fs, "max-iter") {
		config.MaxIter = getEnvInt("MAX_ITER", config.MaxIter)
	}
	if !isFlagSet(fs, "orbital-threshold") {
		config.OrbitalThreshold = getEnvFloat("ORBITAL_THRESHOLD", config.OrbitalThreshold)
	}
	if !isFlagSet(fs, "property-threshold") {
		config.PropertyThreshold = getEnvFloat("PROPERTY_THRESHOLD", config.PropertyThreshold)
	}
	if !isFlagSet(fs, "history") {
		config.History = getEnvInt("HISTORY", config.History)
	}
	if !isFlagSet(fs, "rotation") {
		config.Rotation = getEnvString("ROTATION", config.Rotation)
	}
	if !isFlagSet(fs, "rotation-period") {
		config.RotationPeriod = getEnvInt("ROTATION_PERIOD", config.RotationPeriod)
	}
	if !isFlagSet(fs, "mode") {
		config.Mode = getEnvString("MODE", config.Mode)
	}
	if !isFlagSet(fs, "start-prec") {
		config.StartPrec = getEnvFloat("START_PREC", config.StartPrec)
	}
	if !isFlagSet(fs, "final-prec") {
		config.FinalPrec = getEnvFloat("FINAL_PREC", config.FinalPrec)
	}
	if !isFlagSet(fs, "checkpoint") {
		config.Checkpoint = getEnvString("CHECKPOINT", config.Checkpoint)
	}
	if !isFlagSet(fs, "plot") {
		config.Plot = getEnvString("PLOT", config.Plot)
	}
	if !isFlagSet(fs, "metrics-addr") {
		config.MetricsAddr = getEnvString("METRICS_ADDR", config.MetricsAddr)
	}
	if !isFlagSet(fs, "timeout") {
		config.Timeout = getEnvDuration("TIMEOUT", config.Timeout)
	}
	if !isFlagSet(fs, "v") {
		config.Verbose = getEnvBool("VERBOSE", config.Verbose)
	}
	if !isFlagSet(fs, "quiet") && !isFlagSet(fs, "q") {
		config.Quiet = getEnvBool("QUIET", config.Quiet)
	}
	if !isFlagSet(fs, "no-color") {
		config.NoColor = getEnvBool("NO_COLOR", config.NoColor)
	}
}
