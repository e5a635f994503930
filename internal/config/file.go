package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const defaultFileHeader = `# candypicker configuration
#
# tolerance.period_tol      absolute |dP| acceptance radius in seconds (required)
# tolerance.dm_tol          optional |dDM| gate; omit to disable
# tolerance.acc_tol         optional |dACC| gate; omit to disable
# tolerance.harmonics       treat integer multiples of a period as the same signal
# tolerance.max_harmonic    highest multiple tried when harmonics are on
# tolerance.observation_duration_s
#                           span used to reconcile trial accelerations
# workers                   parallel adjacency workers (0 = all CPUs)
# history.max_age_days      prune recorded runs older than this (0 = never)
# history.max_runs          keep only the newest runs (0 = unlimited)
`

// LoadConfig reads a YAML configuration file on top of base. Keys missing
// from the file keep their value from base.
func LoadConfig(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading config file: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("%w: parsing YAML %s: %v", ErrInvalidConfig, path, err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path as commented YAML.
func SaveConfig(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	out := append([]byte(defaultFileHeader+"\n"), data...)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// SaveDefaultConfig writes the default configuration to a file. PeriodTol is
// left at zero so the file fails validation until someone picks a value, and
// Workers at zero so the file does not pin this machine's CPU count.
func SaveDefaultConfig(path string) error {
	cfg := DefaultConfig()
	cfg.Workers = 0
	return SaveConfig(path, cfg)
}
