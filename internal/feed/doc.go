// Package feed implements the announcement fetch orchestrator.
//
// A fetch walks an ordered chain of transport sources:
//
//  1. the local trusted proxy (no special headers),
//  2. the origin feed directly, with browser headers to reduce the chance
//     of being blocked,
//  3. each configured public CORS relay, in listed order, with per-relay
//     response unwrapping.
//
// The first source that returns an HTTP success with a parseable body wins
// and the chain short-circuits. If every source fails, the fetch returns the
// last observed error. No source is retried within a single fetch; retry
// happens on the next scheduled poll.
package feed
