package driven

import (
	"context"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
)

// StatusRepository is the durable driver-status store. The socket
// announcement and the durable write are independent channels; this one
// survives the session.
type StatusRepository interface {
	GetDriverByID(ctx context.Context, driverID string) (model.DriverIdentity, error)
	SetDriverActive(ctx context.Context, driverID string, active bool) error
}
