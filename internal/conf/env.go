// env.go - environment variable bindings and validation
package conf

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix is prepended to every automatic environment key.
const envPrefix = "SHMAUDIO"

// envBinding holds metadata for explicit environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the environment variables that are checked before use.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"audio.backend", "SHMAUDIO_BACKEND", validateEnvOneOf("malgo", "loopback")},
		{"audio.samplerate", "SHMAUDIO_SAMPLERATE", validateEnvSampleRate},
		{"audio.blocksize", "SHMAUDIO_BLOCKSIZE", validateEnvPositiveInt},
		{"audio.buffersize", "SHMAUDIO_BUFFERSIZE", validateEnvPositiveInt},
		{"audio.dtype", "SHMAUDIO_DTYPE", validateEnvOneOf(supportedDTypes...)},
		{"audio.latency", "SHMAUDIO_LATENCY", validateEnvOneOf("low", "high")},
		{"recorder.device", "SHMAUDIO_RECORDER_DEVICE", nil},
		{"player.device", "SHMAUDIO_PLAYER_DEVICE", nil},
		{"player.loop", "SHMAUDIO_PLAYER_LOOP", validateEnvBool},
		{"monitor.interval", "SHMAUDIO_MONITOR_INTERVAL", validateEnvDuration},
		{"sentry.dsn", "SHMAUDIO_SENTRY_DSN", nil},
		{"debug", "SHMAUDIO_DEBUG", validateEnvBool},
	}
}

// bindEnvVars binds every known key to SHMAUDIO_<KEY> and returns a warning
// for each explicitly bound variable whose value fails validation. Invalid
// values are unbound so the file or default wins.
func bindEnvVars(v *viper.Viper) []string {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var warnings []string
	for _, binding := range getEnvBindings() {
		envValue, set := os.LookupEnv(binding.EnvVar)
		if set && binding.Validate != nil {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				// Shadow the automatic binding with a variable nobody sets.
				_ = v.BindEnv(binding.ConfigKey, binding.EnvVar+"_IGNORED")
				continue
			}
		}
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
		}
	}
	return warnings
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true/false, 1/0, t/f")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func validateEnvSampleRate(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < MinSampleRate || n > MaxSampleRate {
		return fmt.Errorf("must be between %d and %d, got %d", MinSampleRate, MaxSampleRate, n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %s", d)
	}
	return nil
}

func validateEnvOneOf(allowed ...string) func(string) error {
	return func(value string) error {
		if !slices.Contains(allowed, strings.ToLower(value)) {
			return fmt.Errorf("must be one of %s", strings.Join(allowed, ", "))
		}
		return nil
	}
}
