// Package mq implements the durable message queue connecting pipeline stages.
//
// Messages are persisted in SQLite under named channels and delivered
// at-least-once: a consumed message moves to an unacked claim until the
// consumer acks (removing it) or nacks (returning it to the channel with an
// incremented delivery count). Unacked claims from a previous process run are
// returned to their channels when the broker opens, and non-persistent
// messages are purged at the same point, so durable channels survive producer
// and consumer restarts.
//
// The broker hands out Sessions. A Session is the handle workers publish and
// consume through; it reports ErrClosed once the underlying connection is
// gone so the connection manager can establish a replacement. Only declared
// channels accept publishes.
package mq
