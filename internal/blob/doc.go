// Package blob persists opaque binary payloads (videos, extracted audio) in
// SQLite and serves them by identifier.
//
// Identifiers are assigned on write and are the only handle the rest of the
// pipeline carries; a blob referenced by a queued job must have been
// committed here before the job was published. The store is the durable
// system of record for media content, so deletes are explicit compensation
// actions, never side effects of reads.
package blob
