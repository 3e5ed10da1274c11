// Package store persists scan runs in a SQLite database.
//
// SQLiteStore implements scan.Sink, so it can be handed to a controller with
// scan.WithSink, alone or inside a scan.MultiSink. Runs, ramp points and
// stability samples go to three tables; the database is opened in WAL mode so
// that a reader such as "ivscan runs" can inspect a run while it is written.
package store
