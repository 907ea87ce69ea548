package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/groblegark/payd/internal/breaker"
)

// duration wraps time.Duration so TOML values like "30s" decode directly.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// CircuitSettings is the tunable subset of a circuit's configuration.
// Zero values mean "inherit".
type CircuitSettings struct {
	FailureThreshold int      `toml:"failure_threshold"`
	RecoveryTimeout  duration `toml:"recovery_timeout"`
	SuccessThreshold int      `toml:"success_threshold"`
	Timeout          duration `toml:"timeout"`
}

// CircuitsConfig is the file layout:
//
//	[defaults]
//	failure_threshold = 5
//	recovery_timeout = "30s"
//
//	[circuits.fraud_assessment]
//	failure_threshold = 3
//	timeout = "2s"
type CircuitsConfig struct {
	Defaults CircuitSettings            `toml:"defaults"`
	Circuits map[string]CircuitSettings `toml:"circuits"`
}

// LoadCircuits reads the optional circuit settings file and merges it over
// base. A missing path returns base unchanged with no overrides.
func LoadCircuits(path string, base breaker.Config) (breaker.Config, map[string]breaker.Config, error) {
	if path == "" {
		return base, nil, nil
	}

	var file CircuitsConfig
	if _, err := toml.DecodeFile(path, &file); err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return breaker.Config{}, nil, fmt.Errorf("circuit settings %s: %w", path, err)
	}

	defaults := merge(base, file.Defaults)
	overrides := make(map[string]breaker.Config, len(file.Circuits))
	for name, s := range file.Circuits {
		overrides[name] = merge(defaults, s)
	}
	return defaults, overrides, nil
}

func merge(base breaker.Config, s CircuitSettings) breaker.Config {
	out := base
	if s.FailureThreshold > 0 {
		out.FailureThreshold = s.FailureThreshold
	}
	if s.RecoveryTimeout.Duration > 0 {
		out.RecoveryTimeout = s.RecoveryTimeout.Duration
	}
	if s.SuccessThreshold > 0 {
		out.SuccessThreshold = s.SuccessThreshold
	}
	if s.Timeout.Duration > 0 {
		out.Timeout = s.Timeout.Duration
	}
	return out
}
