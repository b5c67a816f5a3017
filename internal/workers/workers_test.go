package workers

import (
	"runtime"
	"testing"
)

func TestCountScalesWithCPUs(t *testing.T) {
	cpus := runtime.GOMAXPROCS(0)

	if got := Count(1.0, 0); got != cpus {
		t.Errorf("Count(1.0, 0) = %d, want %d", got, cpus)
	}
	if got := Count(2.0, 0); got != cpus*2 {
		t.Errorf("Count(2.0, 0) = %d, want %d", got, cpus*2)
	}
}

func TestCountAppliesLimit(t *testing.T) {
	if got := Count(2.0, 1); got != 1 {
		t.Errorf("Count(2.0, 1) = %d, want 1", got)
	}
}

func TestCountMinimumOne(t *testing.T) {
	if got := Count(0.0, 0); got != 1 {
		t.Errorf("Count(0.0, 0) = %d, want 1", got)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PIPELINE_WORKERS", "7")
	if got := Count(1.0, 0); got != 7 {
		t.Errorf("Count with override = %d, want 7", got)
	}
	// Limit still applies to the override.
	if got := Count(1.0, 3); got != 3 {
		t.Errorf("Count with override and limit = %d, want 3", got)
	}
}

func TestEnvOverrideInvalidIgnored(t *testing.T) {
	t.Setenv("PIPELINE_WORKERS", "not-a-number")
	cpus := runtime.GOMAXPROCS(0)
	if got := Count(1.0, 0); got != cpus {
		t.Errorf("Count with invalid override = %d, want %d", got, cpus)
	}
}

func TestHelpers(t *testing.T) {
	cpus := runtime.GOMAXPROCS(0)
	if got := ForCPU(0); got != cpus {
		t.Errorf("ForCPU(0) = %d, want %d", got, cpus)
	}
	if got := ForIO(0); got != cpus*2 {
		t.Errorf("ForIO(0) = %d, want %d", got, cpus*2)
	}
}
