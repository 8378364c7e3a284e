package concurrency

import "testing"

func TestLoadConfigRespectsEnvironmentOverrides(t *testing.T) {
	t.Setenv("VISIONFLOW_MAX_CONCURRENT", "42")
	t.Setenv("VISIONFLOW_RUNNER_WORKERS", "7")

	cfg := LoadConfig()

	if cfg.MaxConcurrent != 42 {
		t.Fatalf("expected MaxConcurrent 42, got %d", cfg.MaxConcurrent)
	}
	if cfg.RunnerWorkers != 7 {
		t.Fatalf("expected RunnerWorkers 7, got %d", cfg.RunnerWorkers)
	}
	if cfg.Source != ConfigSourceEnvVar {
		t.Fatalf("expected env var source, got %s", cfg.Source)
	}
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	cfg := LoadConfig()
	if cfg.MaxConcurrent < 1 {
		t.Fatalf("expected positive MaxConcurrent, got %d", cfg.MaxConcurrent)
	}
	if cfg.RunnerWorkers < 1 {
		t.Fatalf("expected positive RunnerWorkers, got %d", cfg.RunnerWorkers)
	}
	if cfg.Source == "" {
		t.Fatal("expected config source to be populated")
	}
}

func TestLoadConfigMultiplierDerivesFromCPUs(t *testing.T) {
	t.Setenv("VISIONFLOW_CONCURRENCY_MULTIPLIER", "3")

	cfg := LoadConfig()
	if cfg.Source != ConfigSourceEnvVar {
		t.Fatalf("expected env var source, got %s", cfg.Source)
	}
	if cfg.MaxConcurrent != cfg.EffectiveCPUs*3 {
		t.Fatalf("expected MaxConcurrent %d, got %d", cfg.EffectiveCPUs*3, cfg.MaxConcurrent)
	}
}

func TestGetOptimalConcurrencyDefaultsMultiplier(t *testing.T) {
	withZero := GetOptimalConcurrency(0)
	withTwo := GetOptimalConcurrency(2)
	if withZero != withTwo {
		t.Fatalf("expected zero multiplier to default to 2, got %d vs %d", withZero, withTwo)
	}
}
