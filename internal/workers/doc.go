// Package workers sizes concurrency pools from the CPUs available to
// the process. The pipeline uses it to bound how many conversions run
// at once: each conversion holds an ffmpeg process, so unbounded
// parallelism turns a traffic spike into an OOM kill.
package workers
