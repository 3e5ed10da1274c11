// Package publish fans scan events out through Redis.
//
// RedisPublisher implements scan.Sink. Every event is published as JSON on a
// Pub/Sub channel for live subscribers and pushed onto a per-run list, capped
// to a configurable length, so that late readers can replay a run.
package publish
