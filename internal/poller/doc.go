// Package poller implements the polling scheduler.
//
// The scheduler:
//   - Runs one fetch/ingest cycle immediately on start, then on a fixed interval
//   - Treats every failure as transient and keeps the loop alive
//   - Discards in-flight results once stopped, so a stale cycle cannot
//     mutate state after shutdown
package poller
