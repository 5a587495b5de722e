// Package swarmerr declares the closed set of error kinds the swarm and its
// collaborators raise. Call sites use errors.Is against the sentinels
// below; wrapped errors carry additional context via %w.
package swarmerr

import "errors"

var (
	// ErrInvalidMessage is returned by the codec on a bad signature, an
	// unknown type tag, wrong payload arity, or a field that fails its
	// local invariant.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrIOError wraps a transport send/receive/connect failure.
	ErrIOError = errors.New("io error")

	// ErrUnreachable means every URL of a peer failed to dial.
	ErrUnreachable = errors.New("peer unreachable")

	// ErrPeerNotFound means a handler needed the client endpoint of a peer
	// it does not have.
	ErrPeerNotFound = errors.New("peer not found")

	// ErrAlreadyRunning is returned by Start when the swarm is already
	// running.
	ErrAlreadyRunning = errors.New("swarm already running")

	// ErrNotStarted is returned by operations that require a bound server
	// endpoint when the swarm is not running.
	ErrNotStarted = errors.New("swarm not started")

	// ErrNullArg, ErrRangeError, ErrArgError are collection-style argument
	// validation errors for CopyTo.
	ErrNullArg    = errors.New("null argument")
	ErrRangeError = errors.New("argument out of range")
	ErrArgError   = errors.New("invalid argument")
)
