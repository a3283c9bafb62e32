package geo

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
)

// SimSource is a simulated position stream for development and the
// autopilot mode: a vehicle doing a small random walk around a starting
// point, with speed derived from actual displacement.
type SimSource struct {
	Start    model.Coordinates
	Interval time.Duration
}

var _ driven.PositionSource = (*SimSource)(nil)

func (s *SimSource) Watch(ctx context.Context, opts driven.WatchOptions) (driven.Subscription, error) {
	interval := s.Interval
	if interval == 0 {
		interval = 2 * time.Second
	}

	watchCtx, cancel := context.WithCancel(ctx)
	sub := &simSubscription{
		samples: make(chan model.LocationSample),
		cancel:  cancel,
	}

	go sub.run(watchCtx, s.Start, interval)
	return sub, nil
}

type simSubscription struct {
	samples chan model.LocationSample
	cancel  context.CancelFunc
}

func (s *simSubscription) Samples() <-chan model.LocationSample { return s.samples }

func (s *simSubscription) Err() error { return nil }

func (s *simSubscription) Stop() { s.cancel() }

func (s *simSubscription) run(ctx context.Context, start model.Coordinates, interval time.Duration) {
	defer close(s.samples)

	current := start
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			previous := current
			// Simulate small movement
			current.Lat += (rand.Float64() - 0.5) / 1000
			current.Lng += (rand.Float64() - 0.5) / 1000

			meters := haversineMeters(previous, current)
			speed := meters / interval.Seconds() * 3.6
			heading := bearingDegrees(previous, current)

			sample := model.LocationSample{
				Latitude:       current.Lat,
				Longitude:      current.Lng,
				AccuracyMeters: 5 + rand.Float64()*5,
				HeadingDegrees: &heading,
				SpeedKmh:       &speed,
				CapturedAt:     time.Now(),
			}

			select {
			case s.samples <- sample:
			case <-ctx.Done():
				return
			}
		}
	}
}

// haversineMeters calculates the haversine distance between two coordinates in meters
func haversineMeters(a, b model.Coordinates) float64 {
	const R = 6371000 // Earth radius in meters
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLng/2)*math.Sin(dLng/2)*math.Cos(lat1)*math.Cos(lat2)
	return 2 * R * math.Asin(math.Sqrt(h))
}

func bearingDegrees(a, b model.Coordinates) float64 {
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180

	y := math.Sin(dLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLng)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}
