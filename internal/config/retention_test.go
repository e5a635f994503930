package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetentionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Retention)
		wantErr bool
	}{
		{"defaults", func(r *Retention) {}, false},
		{"zero value", func(r *Retention) { *r = Retention{} }, false},
		{"keep forever", func(r *Retention) { r.MaxAgeDays = 0 }, false},
		{"negative age", func(r *Retention) { r.MaxAgeDays = -1 }, true},
		{"age too large", func(r *Retention) { r.MaxAgeDays = 3651 }, true},
		{"negative runs", func(r *Retention) { r.MaxRuns = -5 }, true},
		{"runs below minimum", func(r *Retention) { r.MaxRuns = 3 }, true},
		{"runs at minimum", func(r *Retention) { r.MaxRuns = 10 }, false},
		{"runs too large", func(r *Retention) { r.MaxRuns = 1000001 }, true},
		{"batch too large", func(r *Retention) { r.BatchSize = 20000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultRetention()
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetentionEnabled(t *testing.T) {
	assert.True(t, DefaultRetention().Enabled())
	assert.False(t, Retention{}.Enabled())
	assert.True(t, Retention{MaxRuns: 10}.Enabled())
}

func TestApplyEnvHistory(t *testing.T) {
	t.Setenv("CANDYPICKER_HISTORY_MAX_AGE_DAYS", "7")
	t.Setenv("CANDYPICKER_HISTORY_MAX_RUNS", "0")
	t.Setenv("CANDYPICKER_HISTORY_VACUUM", "true")

	cfg, err := ApplyEnv(DefaultConfig())
	assert.NoError(t, err)
	assert.Equal(t, 7, cfg.History.MaxAgeDays)
	assert.Equal(t, 0, cfg.History.MaxRuns)
	assert.True(t, cfg.History.Vacuum)

	t.Setenv("CANDYPICKER_HISTORY_MAX_RUNS", "many")
	_, err = ApplyEnv(DefaultConfig())
	assert.Error(t, err)
}
