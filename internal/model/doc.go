// Package model defines the core data types shared across the pipeline:
// raw feed records, normalized announcements, polled batches, price quotes,
// and broker order shapes.
//
// Identity rules:
//   - An announcement's identity is the SHA-1 UUID of its composite key
//     (scrip code, news id, news timestamp, subject line). Two records with
//     identical composite keys always map to the same ID.
//   - Batch.PolledAt is the local retrieval time of the whole batch and is
//     distinct from the provider's per-record timestamp.
package model
