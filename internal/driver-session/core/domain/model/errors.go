package model

import (
	"errors"
	"fmt"
)

// Business-logic failures surfaced to the driver. None of these trigger
// automatic retries; the driver re-initiates the action.
var (
	ErrNotEligible         = errors.New("account not approved or inactive")
	ErrNotConnected        = errors.New("not connected to dispatch server")
	ErrLocationUnavailable = errors.New("current location not available")
	ErrNoSuchOffer         = errors.New("offer not found")
	ErrNoActiveRide        = errors.New("no active ride")
	ErrAlreadyInRide       = errors.New("a ride is already in progress")
	ErrToggleInFlight      = errors.New("status change already in progress")
	ErrSessionClosed       = errors.New("session closed")
)

// PersistenceError wraps a failed durable status write. The optimistic
// in-memory transition has been rolled back by the time it is returned.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("durable status update failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// GeoErrorCode classifies terminal failures of the position stream.
type GeoErrorCode string

const (
	GeoPermissionDenied    GeoErrorCode = "PERMISSION_DENIED"
	GeoPositionUnavailable GeoErrorCode = "POSITION_UNAVAILABLE"
	GeoTimeout             GeoErrorCode = "TIMEOUT"
)

// GeoError is terminal for the stream that produced it: the watch is
// released and going online again requires an explicit retry.
type GeoError struct {
	Code GeoErrorCode
	Err  error
}

func (e *GeoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("geolocation %s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("geolocation %s", e.Code)
}

func (e *GeoError) Unwrap() error { return e.Err }
