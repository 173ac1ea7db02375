package mq

import "errors"

// ErrClosed indicates the session or broker the call went through is no longer usable.
var ErrClosed = errors.New("queue connection closed")

// ErrChannelUnknown indicates a publish or consume against an undeclared channel.
var ErrChannelUnknown = errors.New("channel not declared")

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("queue schema version mismatch")
