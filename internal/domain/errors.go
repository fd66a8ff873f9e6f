package domain

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a stage jump not present in the transition graph.
	ErrInvalidTransition = errors.New("invalid stage transition")
	// ErrConflictingRound indicates a negotiation invariant violation.
	ErrConflictingRound = errors.New("conflicting negotiation round")
	// ErrVersionConflict indicates an optimistic-concurrency collision; the
	// caller retries the whole read-compute-write operation.
	ErrVersionConflict = errors.New("version conflict")
	// ErrBusy is surfaced after version-conflict retries are exhausted.
	ErrBusy = errors.New("deal busy")
	// ErrDispatchFailed indicates an external notification send failed after
	// bounded retries.
	ErrDispatchFailed = errors.New("dispatch failed")
	// ErrInvalidStatus indicates a status change that violates a record's
	// status machine.
	ErrInvalidStatus = errors.New("invalid status change")
	// ErrInvalidRuleInput indicates malformed deal attributes handed to the
	// rule engine. The stage transition itself still commits.
	ErrInvalidRuleInput = errors.New("invalid rule input")
)
