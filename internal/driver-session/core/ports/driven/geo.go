package driven

import (
	"context"
	"time"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
)

// WatchOptions mirror the device position API: cached fixes older than
// MaximumAge are discarded in favor of a fresh request, and a request
// that produces nothing within Timeout fails the watch.
type WatchOptions struct {
	HighAccuracy bool
	MaximumAge   time.Duration
	Timeout      time.Duration
}

// Subscription is a live position watch. Samples closes after a terminal
// failure; Err then reports the classified GeoError. Stop releases the
// underlying watch unconditionally.
type Subscription interface {
	Samples() <-chan model.LocationSample
	Err() error
	Stop()
}

// PositionSource abstracts the device's continuous position stream.
type PositionSource interface {
	Watch(ctx context.Context, opts WatchOptions) (Subscription, error)
}

// LocationEvents is the sink a streamer feeds. Calls arrive from the
// streamer goroutine.
type LocationEvents interface {
	LocationSample(sample model.LocationSample)

	// LocationStreamFailed reports the terminal stream error. The watch
	// has already been released; there is no automatic restart, going
	// online again retries explicitly.
	LocationStreamFailed(err error)
}

// LocationStreamer manages the device watch for one driver session.
type LocationStreamer interface {
	// Start opens a fresh watch. Restart requires Stop first; Start on a
	// live watch replaces it.
	Start(driverID string) error

	// Stop releases the position subscription unconditionally, even when
	// the watch already failed.
	Stop()
}
