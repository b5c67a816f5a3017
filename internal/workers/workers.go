package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Count returns a worker count scaled from the CPUs actually
// available, which GOMAXPROCS reflects even under container limits.
//
// The multiplier adjusts for workload shape: 1.0 for CPU-bound work
// (transcoding), 2.0 for I/O-bound work (downloads). limit caps the
// result; 0 means uncapped.
//
// PIPELINE_WORKERS overrides the computed count.
func Count(multiplier float64, limit int) int {
	if override := os.Getenv("PIPELINE_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			if limit > 0 && count > limit {
				return limit
			}
			return count
		}
	}

	available := runtime.GOMAXPROCS(0)
	workers := int(float64(available) * multiplier)

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU sizes a pool for CPU-bound work, one worker per CPU.
func ForCPU(limit int) int {
	return Count(1.0, limit)
}

// ForIO sizes a pool for I/O-bound work, two workers per CPU.
func ForIO(limit int) int {
	return Count(2.0, limit)
}
