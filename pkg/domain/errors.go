package domain

import "errors"

// ErrSectionNotFound is returned when a section ID cannot be found in the store.
var ErrSectionNotFound = errors.New("section not found")

// ErrNodeNotFound is returned when an operation references a node that is
// not present in the section.
var ErrNodeNotFound = errors.New("node not found")

// ErrNodeExists is returned when adding a node whose ID collides with an
// existing one.
var ErrNodeExists = errors.New("node already exists")

// ErrSelfLoop is returned when a connection request names the same node as
// both source and target.
var ErrSelfLoop = errors.New("self-loop connection rejected")

// ErrUnknownFrame is returned by DecodeFrame for message types this client
// does not understand. Callers treat it as "ignore", not as a failure.
var ErrUnknownFrame = errors.New("unknown frame type")

// ErrChannelDown is returned when the push channel has exhausted its
// reconnect budget and needs a manual reconnect.
var ErrChannelDown = errors.New("push channel down")
