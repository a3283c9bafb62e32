package driven

import "context"

// TelemetryPublisher mirrors session activity onto the fleet message
// broker. Strictly best-effort: publish failures are logged and never
// surfaced to the driver.
type TelemetryPublisher interface {
	Publish(ctx context.Context, routingKey string, msg any) error
	IsAlive() bool
	Close() error
}
