// Package main hosts the mixdown CLI entrypoint and command graph.
//
// The Cobra-based command tree translates terminal invocations into HTTP
// calls against the daemon API: uploading videos, downloading converted
// audio, queue maintenance, status inspection, and configuration
// scaffolding. Heavy lifting lives in the internal packages; commands here
// stay declarative.
package main
