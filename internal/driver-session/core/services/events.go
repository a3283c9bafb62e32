package services

import (
	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driver"
)

// Session events form a tagged union: every connection edge, inbound
// frame, location callback, user command and async continuation becomes
// one of these, consumed by the single dispatch loop.
type event interface {
	isEvent()
}

type connStateEvent struct {
	state    driven.ConnState
	terminal bool
}

type inboundFrameEvent struct {
	data []byte
}

type locationEvent struct {
	sample model.LocationSample
}

type locationErrEvent struct {
	err error
}

// persistDoneEvent resumes a pending availability toggle once the
// durable write resolves.
type persistDoneEvent struct {
	desired model.Availability
	err     error
}

// routeDoneEvent resumes the best-effort distance lookup fired on
// acceptance.
type routeDoneEvent struct {
	rideID string
	route  driven.Route
	err    error
}

type cmdGoOnline struct {
	reply chan error
}

type cmdGoOffline struct {
	reply chan error
}

type acceptResult struct {
	ride model.ActiveRide
	err  error
}

type cmdAccept struct {
	rideID string
	reply  chan acceptResult
}

type cmdReject struct {
	rideID string
	reply  chan error
}

type completeResult struct {
	completion model.RideCompletion
	err        error
}

type cmdComplete struct {
	reply chan completeResult
}

type cmdSnapshot struct {
	reply chan driver.Snapshot
}

func (connStateEvent) isEvent()    {}
func (inboundFrameEvent) isEvent() {}
func (locationEvent) isEvent()     {}
func (locationErrEvent) isEvent()  {}
func (persistDoneEvent) isEvent()  {}
func (routeDoneEvent) isEvent()    {}
func (cmdGoOnline) isEvent()       {}
func (cmdGoOffline) isEvent()      {}
func (cmdAccept) isEvent()         {}
func (cmdReject) isEvent()         {}
func (cmdComplete) isEvent()       {}
func (cmdSnapshot) isEvent()       {}
