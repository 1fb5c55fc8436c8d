package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in the store
// - ErrConflict: a uniqueness claim (name, module key) lost the race
// - ErrInvalidState: record in wrong state for the requested mutation
// - ErrCapacity: a bounded slot set (module activations) is full
// - ErrUnavailable: backing service temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrCapacity     = errors.New("capacity exhausted")
	ErrUnavailable  = errors.New("unavailable")
)
