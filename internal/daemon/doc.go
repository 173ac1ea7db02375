// Package daemon assembles the pipeline and runs it as a single process:
// blob store, queue broker, connection manager, both workers, and the HTTP
// API. A file lock enforces one instance per data directory.
package daemon
