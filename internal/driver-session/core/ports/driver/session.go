package driver

import (
	"context"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
)

// Snapshot is a point-in-time copy of the session state for display.
type Snapshot struct {
	Status       model.Availability
	ConnState    driven.ConnState
	Offers       []model.RideOffer
	ActiveRide   *model.ActiveRide
	LastLocation *model.LocationSample
	GeoErr       error
}

// SessionCommands is the user-action surface of a driver session. Every
// call is serialized onto the session's event loop.
type SessionCommands interface {
	GoOnline(ctx context.Context) error
	GoOffline(ctx context.Context) error
	AcceptOffer(ctx context.Context, rideID string) (model.ActiveRide, error)
	RejectOffer(ctx context.Context, rideID string) error
	CompleteRide(ctx context.Context) (model.RideCompletion, error)
	Snapshot(ctx context.Context) (Snapshot, error)
}
