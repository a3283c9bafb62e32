package driven

import (
	"context"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
)

type Route struct {
	DistanceMeters float64
	DurationSecs   float64
}

// RouteService computes driving distance between two points. Consumed
// best-effort on ride acceptance; a failure never fails the acceptance.
type RouteService interface {
	GetRoute(ctx context.Context, origin, destination model.Coordinates) (Route, error)
}
