// Package monitor exposes running scans over HTTP.
//
// A Registry tracks the runs started by this process. Server serves their
// status as JSON, lets an operator abort a run, and exports the controller and
// messenger counters in the Prometheus text format:
//
//	GET  /live              liveness probe
//	GET  /runs              status of every registered run
//	GET  /runs/{id}         status of one run
//	POST /runs/{id}/abort   cancel a run; the controller still ramps down
//	GET  /metrics           Prometheus metrics
package monitor
