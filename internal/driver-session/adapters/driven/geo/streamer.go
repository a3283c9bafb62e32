package geo

import (
	"context"
	"sync"
	"time"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
	"github.com/man137/Ryda/internal/mylogger"
)

// Default watch parameters, matching the device position API settings
// the driver app runs with.
const (
	DefaultMaximumAge = 10 * time.Second
	DefaultTimeout    = 15 * time.Second
)

// Streamer turns a PositionSource watch into session events, enforcing
// the maximum-sample-age and timeout rules. Terminal errors release the
// watch and are not retried automatically.
type Streamer struct {
	source driven.PositionSource
	sink   driven.LocationEvents
	log    mylogger.Logger
	opts   driven.WatchOptions

	mu     sync.Mutex
	cancel context.CancelFunc
	sub    driven.Subscription
}

func NewStreamer(source driven.PositionSource, sink driven.LocationEvents, log mylogger.Logger, opts driven.WatchOptions) *Streamer {
	if opts.MaximumAge == 0 {
		opts.MaximumAge = DefaultMaximumAge
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Streamer{
		source: source,
		sink:   sink,
		log:    log,
		opts:   opts,
	}
}

var _ driven.LocationStreamer = (*Streamer)(nil)

// Start opens a fresh watch, replacing any live one.
func (s *Streamer) Start(driverID string) error {
	s.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := s.source.Watch(ctx, s.opts)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.cancel = cancel
	s.sub = sub
	s.mu.Unlock()

	s.log.Action("location_watch").Info("position watch started", "driver_id", driverID)
	go s.pump(ctx, sub)
	return nil
}

// Stop releases the position subscription unconditionally, error paths
// included.
func (s *Streamer) Stop() {
	s.mu.Lock()
	cancel, sub := s.cancel, s.sub
	s.cancel, s.sub = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sub != nil {
		sub.Stop()
	}
}

func (s *Streamer) pump(ctx context.Context, sub driven.Subscription) {
	timeout := time.NewTimer(s.opts.Timeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case sample, ok := <-sub.Samples():
			if !ok {
				err := sub.Err()
				if err == nil {
					err = &model.GeoError{Code: model.GeoPositionUnavailable}
				}
				s.Stop()
				s.sink.LocationStreamFailed(err)
				return
			}

			// A cached fix older than the maximum age is discarded in
			// favor of the next fresh one.
			if time.Since(sample.CapturedAt) > s.opts.MaximumAge {
				s.log.Action("location_watch").Debug("discarding stale sample",
					"age", time.Since(sample.CapturedAt).String())
			} else {
				s.sink.LocationSample(sample)
			}

			if !timeout.Stop() {
				select {
				case <-timeout.C:
				default:
				}
			}
			timeout.Reset(s.opts.Timeout)

		case <-timeout.C:
			s.Stop()
			s.sink.LocationStreamFailed(&model.GeoError{Code: model.GeoTimeout})
			return
		}
	}
}
