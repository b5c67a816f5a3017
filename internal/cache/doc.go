// Package cache stores finished conversions on disk with a SQLite
// index beside them. Entries expire after a TTL and the directory is
// held under a byte ceiling by least-recently-accessed eviction. A
// probabilistic sweep piggybacks on request traffic so no dedicated
// janitor process is needed, and startup reconciliation repairs any
// disagreement between index and disk left by an unclean shutdown.
package cache
