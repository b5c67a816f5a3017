// Package filesystem wraps the handful of file operations the cache
// and download paths perform with retry logic for transient errors.
// Cache and working directories are commonly mounted over NFS, where a
// stale file handle surfaces as a one-off failure that succeeds on the
// next attempt.
package filesystem
