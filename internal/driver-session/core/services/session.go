package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
	"github.com/man137/Ryda/internal/driver-session/core/domain/wsdto"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driven"
	"github.com/man137/Ryda/internal/driver-session/core/ports/driver"
	"github.com/man137/Ryda/internal/mylogger"
)

// Session is the driver-side dispatch actor. All state transitions run
// on its single event loop: connection edges, inbound frames, location
// samples, user commands and async continuations are serialized through
// one channel, so no two handlers ever run simultaneously. Awaited
// results (durable writes, route lookups) come back as events and must
// re-check state before acting.
type Session struct {
	log      mylogger.Logger
	identity model.DriverIdentity

	conn       driven.DispatchConn
	statusRepo driven.StatusRepository
	routes     driven.RouteService       // optional
	telemetry  driven.TelemetryPublisher // optional
	streamer   driven.LocationStreamer

	// loop-owned state; touched only inside dispatch
	status           model.Availability
	connState        driven.ConnState
	offers           *OfferQueue
	active           *model.ActiveRide
	lastSample       *model.LocationSample
	lastGeoErr       error
	streaming        bool
	pendingToggle    *pendingToggle
	lastResolvedRide string

	events chan event
	done   chan struct{}

	now      func() time.Time
	runAsync func(task func() event)
}

// pendingToggle tracks the one in-flight availability change: the
// optimistic transition already applied and where to roll back to.
type pendingToggle struct {
	desired model.Availability
	prev    model.Availability
	reply   chan error
}

// Deps wires the session to its collaborators. The connection and the
// streamer report back into the session, so they are built from
// factories that receive it as their event sink.
type Deps struct {
	Log         mylogger.Logger
	Identity    model.DriverIdentity
	StatusRepo  driven.StatusRepository
	Routes      driven.RouteService
	Telemetry   driven.TelemetryPublisher
	NewConn     func(events driven.ConnEvents) driven.DispatchConn
	NewStreamer func(sink driven.LocationEvents) driven.LocationStreamer
}

func NewSession(deps Deps) *Session {
	s := &Session{
		log:        deps.Log,
		identity:   deps.Identity,
		statusRepo: deps.StatusRepo,
		routes:     deps.Routes,
		telemetry:  deps.Telemetry,
		status:     model.StatusOffline,
		connState:  driven.Disconnected,
		offers:     NewOfferQueue(),
		events:     make(chan event, 128),
		done:       make(chan struct{}),
		now:        time.Now,
	}
	s.conn = deps.NewConn(s)
	s.streamer = deps.NewStreamer(s)
	s.runAsync = func(task func() event) {
		go s.post(task())
	}
	return s
}

var (
	_ driver.SessionCommands = (*Session)(nil)
	_ driven.ConnEvents      = (*Session)(nil)
	_ driven.LocationEvents  = (*Session)(nil)
)

// Run consumes events until ctx is canceled, then tears the session
// down in bounded order: close the socket with the normal closure code,
// stop the location watch, and let Close cancel any reconnect timer.
// All three run unconditionally.
func (s *Session) Run(ctx context.Context) {
	defer s.teardown()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			s.dispatch(ev)
		}
	}
}

func (s *Session) teardown() {
	if err := s.conn.Close(driven.CloseNormalClosure, "session closed"); err != nil {
		s.log.Action("teardown").Warn("closing dispatch connection", "error", err)
	}
	s.streamer.Stop()
	close(s.done)
	s.log.Action("teardown").Info("driver session closed", "driver_id", s.identity.DriverID)
}

func (s *Session) post(ev event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// ConnStateChanged implements driven.ConnEvents.
func (s *Session) ConnStateChanged(state driven.ConnState, terminal bool) {
	s.post(connStateEvent{state: state, terminal: terminal})
}

// InboundFrame implements driven.ConnEvents.
func (s *Session) InboundFrame(data []byte) {
	s.post(inboundFrameEvent{data: data})
}

// LocationSample implements driven.LocationEvents.
func (s *Session) LocationSample(sample model.LocationSample) {
	s.post(locationEvent{sample: sample})
}

// LocationStreamFailed implements driven.LocationEvents.
func (s *Session) LocationStreamFailed(err error) {
	s.post(locationErrEvent{err: err})
}

// --- user-action surface (ports/driver.SessionCommands) ---

func (s *Session) GoOnline(ctx context.Context) error {
	cmd := cmdGoOnline{reply: make(chan error, 1)}
	return s.await(ctx, cmd, cmd.reply)
}

func (s *Session) GoOffline(ctx context.Context) error {
	cmd := cmdGoOffline{reply: make(chan error, 1)}
	return s.await(ctx, cmd, cmd.reply)
}

func (s *Session) AcceptOffer(ctx context.Context, rideID string) (model.ActiveRide, error) {
	cmd := cmdAccept{rideID: rideID, reply: make(chan acceptResult, 1)}
	res, err := awaitResult(ctx, s, cmd, cmd.reply)
	if err != nil {
		return model.ActiveRide{}, err
	}
	return res.ride, res.err
}

func (s *Session) RejectOffer(ctx context.Context, rideID string) error {
	cmd := cmdReject{rideID: rideID, reply: make(chan error, 1)}
	return s.await(ctx, cmd, cmd.reply)
}

func (s *Session) CompleteRide(ctx context.Context) (model.RideCompletion, error) {
	cmd := cmdComplete{reply: make(chan completeResult, 1)}
	res, err := awaitResult(ctx, s, cmd, cmd.reply)
	if err != nil {
		return model.RideCompletion{}, err
	}
	return res.completion, res.err
}

func (s *Session) Snapshot(ctx context.Context) (driver.Snapshot, error) {
	cmd := cmdSnapshot{reply: make(chan driver.Snapshot, 1)}
	return awaitResult(ctx, s, cmd, cmd.reply)
}

func (s *Session) await(ctx context.Context, cmd event, reply chan error) error {
	res, err := awaitResult(ctx, s, cmd, reply)
	if err != nil {
		return err
	}
	return res
}

func awaitResult[T any](ctx context.Context, s *Session, cmd event, reply chan T) (T, error) {
	var zero T
	select {
	case s.events <- cmd:
	case <-s.done:
		return zero, model.ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case res := <-reply:
		return res, nil
	case <-s.done:
		return zero, model.ErrSessionClosed
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// --- event dispatch ---

func (s *Session) dispatch(ev event) {
	switch ev := ev.(type) {
	case connStateEvent:
		s.onConnState(ev)
	case inboundFrameEvent:
		s.onInboundFrame(ev.data)
	case locationEvent:
		s.onLocation(ev.sample)
	case locationErrEvent:
		s.onLocationErr(ev.err)
	case persistDoneEvent:
		s.onPersistDone(ev)
	case routeDoneEvent:
		s.onRouteDone(ev)
	case cmdGoOnline:
		s.goOnline(ev.reply)
	case cmdGoOffline:
		s.goOffline(ev.reply)
	case cmdAccept:
		ev.reply <- s.acceptOffer(ev.rideID)
	case cmdReject:
		ev.reply <- s.rejectOffer(ev.rideID)
	case cmdComplete:
		ev.reply <- s.completeRide()
	case cmdSnapshot:
		ev.reply <- s.snapshot()
	}
}

func (s *Session) onConnState(ev connStateEvent) {
	prev := s.connState
	s.connState = ev.state
	log := s.log.Action("conn_state").With("from", prev.String(), "to", ev.state.String())

	switch {
	case ev.state == driven.Connected:
		log.Info("connected to dispatch server")
		// Mid-shift reconnect: the server requests fresh state on
		// reconnect, so re-announce availability immediately.
		if s.status == model.StatusAvailable {
			s.sendStatusUpdate(model.StatusAvailable)
		}

	case ev.state == driven.Disconnected && ev.terminal:
		log.Warn("dispatch connection gave up, forcing offline")
		// Safety transition: a driver with no server connectivity must
		// never be presented as available.
		s.status = model.StatusOffline
		s.offers.Clear()
		s.active = nil
		if pt := s.pendingToggle; pt != nil {
			s.pendingToggle = nil
			pt.reply <- model.ErrNotConnected
		}

	default:
		log.Info("dispatch connection state changed")
	}
}

func (s *Session) onInboundFrame(data []byte) {
	frame, err := wsdto.ParseInbound(data)
	if err != nil {
		// A single corrupt or unrecognized frame must not end the
		// session.
		if errors.Is(err, wsdto.ErrUnknownType) {
			s.log.Action("inbound_frame").Warn("ignoring unknown frame type", "error", err.Error())
		} else {
			s.log.Action("inbound_frame").Warn("dropping malformed frame", "error", err.Error())
		}
		return
	}

	switch frame := frame.(type) {
	case wsdto.RideRequestFrame:
		offer := model.RideOffer{
			RideID:             frame.RideID,
			PickupAddress:      frame.PickupAddress,
			DestinationAddress: frame.DestinationAddress,
			PickupCoords:       frame.PickupCoords,
			DestinationCoords:  frame.DestinationCoords,
			EstimatedFare:      frame.EstimatedFare,
			PassengerName:      frame.PassengerName,
			DistanceKm:         frame.Distance,
			ClientID:           frame.ClientID,
			ReceivedAt:         s.now(),
		}
		if s.offers.Offer(offer) {
			s.log.Action("ride_offer").Info("ride offer queued",
				"ride_id", offer.RideID, "estimated_fare", offer.EstimatedFare, "pending", s.offers.Len())
		} else {
			s.log.Action("ride_offer").Debug("duplicate ride offer ignored", "ride_id", offer.RideID)
		}

	case wsdto.RideCanceledFrame:
		s.onRideResolvedByServer(frame.RideID, "ride_canceled")

	case wsdto.RideCompletedFrame:
		s.onRideResolvedByServer(frame.RideID, "ride_completed")
	}
}

// onRideResolvedByServer handles inbound cancellation/completion. A
// frame for an already-resolved ride (e.g. a cancellation delayed past
// the driver's own completion) is idempotently ignored.
func (s *Session) onRideResolvedByServer(rideID, kind string) {
	log := s.log.Action(kind).With("ride_id", rideID)

	if s.offers.Withdraw(rideID) {
		log.Info("pending offer withdrawn")
	}

	if s.active != nil && s.active.Offer.RideID == rideID {
		s.active = nil
		s.lastResolvedRide = rideID
		s.status = model.StatusAvailable
		log.Info("active ride resolved by server", "status", s.status)
		return
	}

	if rideID == s.lastResolvedRide {
		log.Debug("ride already resolved, ignoring")
	}
}

func (s *Session) onLocation(sample model.LocationSample) {
	s.lastSample = &sample
	s.lastGeoErr = nil

	// Samples captured while disconnected are dropped, not queued; the
	// server asks for fresh state on reconnect.
	if s.connState != driven.Connected {
		return
	}

	frame := wsdto.LocationUpdateMessage{
		WebSocketMessage: wsdto.WebSocketMessage{Type: wsdto.MessageTypeLocationUpdate},
		DriverID:         s.identity.DriverID,
		Coords:           wsdto.CoordsFromSample(sample),
	}
	if err := s.conn.Send(frame); err != nil {
		s.log.Action("location_update").Warn("sending location update", "error", err.Error())
		return
	}
	s.publishTelemetry("driver.location."+s.identity.DriverID, frame)
}

func (s *Session) onLocationErr(err error) {
	s.lastGeoErr = err
	s.streaming = false
	s.log.Action("location_stream").Error("position stream failed", err)
}

func (s *Session) onPersistDone(ev persistDoneEvent) {
	pt := s.pendingToggle
	if pt == nil || pt.desired != ev.desired {
		// The toggle was already resolved (e.g. forced offline while the
		// write was in flight); this continuation is stale.
		s.log.Action("status_persist").Debug("stale persistence result ignored", "desired", string(ev.desired))
		return
	}
	s.pendingToggle = nil

	if ev.err != nil {
		// Roll back the optimistic transition. The status_update frame
		// already announced the desired state over the socket and is not
		// retracted; the next successful toggle re-announces.
		s.status = pt.prev
		if s.status == model.StatusOffline {
			s.offers.Clear()
		}
		s.log.Action("status_persist").Error("durable status write failed, rolled back", ev.err,
			"status", string(s.status))
		pt.reply <- &model.PersistenceError{Err: ev.err}
		return
	}

	s.log.Action("status_persist").Info("driver status persisted", "status", string(pt.desired))
	pt.reply <- nil
}

func (s *Session) onRouteDone(ev routeDoneEvent) {
	if ev.err != nil {
		s.log.Action("route_lookup").Warn("route lookup failed", "ride_id", ev.rideID, "error", ev.err.Error())
		return
	}
	// Guard against stale merges after the ride ended early.
	if s.active == nil || s.active.Offer.RideID != ev.rideID {
		s.log.Action("route_lookup").Debug("route resolved for a ride that is no longer active", "ride_id", ev.rideID)
		return
	}
	distance := ev.route.DistanceMeters
	s.active.RouteDistanceMeters = &distance
	s.log.Action("route_lookup").Info("route distance attached",
		"ride_id", ev.rideID, "distance_meters", distance)
}

// --- command handlers ---

// goOnline and goOffline do not answer their reply channel on the happy
// path: the reply is parked in pendingToggle and delivered once the
// durable write resolves, so the loop itself never blocks on it.
func (s *Session) goOnline(reply chan error) {
	if !s.identity.Eligible() {
		reply <- model.ErrNotEligible
		return
	}
	if s.status == model.StatusInRide {
		reply <- model.ErrAlreadyInRide
		return
	}
	if s.pendingToggle != nil {
		reply <- model.ErrToggleInFlight
		return
	}
	if s.connState != driven.Connected {
		reply <- model.ErrNotConnected
		return
	}

	// The position watch does not restart itself after a terminal error;
	// going online is the explicit retry, including when the driver is
	// still marked available.
	if !s.streaming {
		if err := s.streamer.Start(s.identity.DriverID); err != nil {
			reply <- fmt.Errorf("starting position stream: %w", err)
			return
		}
		s.streaming = true
		s.lastGeoErr = nil
	}

	if s.status == model.StatusAvailable {
		reply <- nil
		return
	}
	s.beginToggle(model.StatusAvailable, true, reply)
}

func (s *Session) goOffline(reply chan error) {
	switch s.status {
	case model.StatusOffline:
		reply <- nil
		return
	case model.StatusInRide:
		reply <- model.ErrAlreadyInRide
		return
	}
	if s.pendingToggle != nil {
		reply <- model.ErrToggleInFlight
		return
	}

	// Clearing the queue cancels every outstanding unaccepted offer.
	s.offers.Clear()
	s.beginToggle(model.StatusOffline, false, reply)
}

// beginToggle applies the optimistic transition, announces it over the
// socket, and kicks off the durable write. The command's reply is held
// in pendingToggle until the write resolves.
func (s *Session) beginToggle(desired model.Availability, active bool, reply chan error) {
	prev := s.status
	s.status = desired
	s.sendStatusUpdate(desired)
	s.pendingToggle = &pendingToggle{desired: desired, prev: prev, reply: reply}

	driverID := s.identity.DriverID
	s.runAsync(func() event {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.statusRepo.SetDriverActive(ctx, driverID, active)
		return persistDoneEvent{desired: desired, err: err}
	})
}

func (s *Session) acceptOffer(rideID string) acceptResult {
	offer, ok := s.offers.Get(rideID)
	if !ok {
		return acceptResult{err: model.ErrNoSuchOffer}
	}
	if s.status == model.StatusInRide {
		return acceptResult{err: model.ErrAlreadyInRide}
	}
	if s.connState != driven.Connected {
		// Offer stays queued; the driver may retry once reconnected.
		return acceptResult{err: model.ErrNotConnected}
	}
	if s.lastSample == nil {
		return acceptResult{err: model.ErrLocationUnavailable}
	}

	sample := *s.lastSample
	coords := wsdto.CoordsFromSample(sample)
	response := wsdto.RideResponseMessage{
		WebSocketMessage: wsdto.WebSocketMessage{Type: wsdto.MessageTypeRideResponse},
		RideID:           rideID,
		Accepted:         true,
		DriverID:         s.identity.DriverID,
		Coords:           &coords,
		Timestamp:        s.now().UnixMilli(),
	}
	if err := s.conn.Send(response); err != nil {
		return acceptResult{err: fmt.Errorf("sending ride response: %w", err)}
	}

	s.active = &model.ActiveRide{
		Offer:        offer,
		AcceptedAt:   s.now(),
		AcceptCoords: sample,
	}
	// Exactly one ride is in flight once accepted; the rest of the queue
	// is superseded.
	s.offers.Clear()
	s.status = model.StatusInRide

	s.log.Action("ride_accept").Info("ride accepted",
		"ride_id", rideID,
		"passenger", offer.PassengerName,
		"directions", directionsURL(sample.Coords(), offer.PickupCoords))

	if s.routes != nil {
		origin, destination := offer.PickupCoords, offer.DestinationCoords
		s.runAsync(func() event {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			route, err := s.routes.GetRoute(ctx, origin, destination)
			return routeDoneEvent{rideID: rideID, route: route, err: err}
		})
	}
	s.publishTelemetry("driver.ride."+s.identity.DriverID, rideEventMsg{
		Event:     "accepted",
		RideID:    rideID,
		DriverID:  s.identity.DriverID,
		Timestamp: s.now().UnixMilli(),
	})

	return acceptResult{ride: *s.active}
}

func (s *Session) rejectOffer(rideID string) error {
	if _, ok := s.offers.Get(rideID); !ok {
		return model.ErrNoSuchOffer
	}
	if s.connState != driven.Connected {
		return model.ErrNotConnected
	}

	response := wsdto.RideResponseMessage{
		WebSocketMessage: wsdto.WebSocketMessage{Type: wsdto.MessageTypeRideResponse},
		RideID:           rideID,
		Accepted:         false,
		DriverID:         s.identity.DriverID,
		Timestamp:        s.now().UnixMilli(),
	}
	if err := s.conn.Send(response); err != nil {
		return fmt.Errorf("sending ride response: %w", err)
	}

	s.offers.Withdraw(rideID)
	s.log.Action("ride_reject").Info("ride offer rejected", "ride_id", rideID)
	return nil
}

func (s *Session) completeRide() completeResult {
	if s.active == nil {
		return completeResult{err: model.ErrNoActiveRide}
	}
	if s.connState != driven.Connected {
		return completeResult{err: model.ErrNotConnected}
	}

	ride := s.active
	completedAt := s.now()
	frame := wsdto.RideCompletedMessage{
		WebSocketMessage: wsdto.WebSocketMessage{Type: wsdto.MessageTypeRideCompleted},
		RideID:           ride.Offer.RideID,
		DriverID:         s.identity.DriverID,
		DriverName:       s.identity.FullName(),
		VehicleNumber:    s.identity.LicensePlate,
		EstimatedFare:    ride.Offer.EstimatedFare,
		CompletedAt:      completedAt.Format(time.RFC3339),
		ClientID:         ride.Offer.ClientID,
	}
	if err := s.conn.Send(frame); err != nil {
		return completeResult{err: fmt.Errorf("sending ride completion: %w", err)}
	}

	s.lastResolvedRide = ride.Offer.RideID
	s.active = nil
	s.status = model.StatusAvailable
	s.log.Action("ride_complete").Info("ride completed",
		"ride_id", ride.Offer.RideID, "estimated_fare", ride.Offer.EstimatedFare)

	s.publishTelemetry("driver.ride."+s.identity.DriverID, rideEventMsg{
		Event:     "completed",
		RideID:    ride.Offer.RideID,
		DriverID:  s.identity.DriverID,
		Timestamp: completedAt.UnixMilli(),
	})

	return completeResult{completion: model.RideCompletion{
		RideID:        ride.Offer.RideID,
		EstimatedFare: ride.Offer.EstimatedFare,
		CompletedAt:   completedAt,
	}}
}

func (s *Session) snapshot() driver.Snapshot {
	snap := driver.Snapshot{
		Status:    s.status,
		ConnState: s.connState,
		Offers:    s.offers.List(),
		GeoErr:    s.lastGeoErr,
	}
	if s.active != nil {
		ride := *s.active
		snap.ActiveRide = &ride
	}
	if s.lastSample != nil {
		sample := *s.lastSample
		snap.LastLocation = &sample
	}
	return snap
}

// --- helpers ---

func (s *Session) sendStatusUpdate(status model.Availability) {
	frame := wsdto.StatusUpdateMessage{
		WebSocketMessage: wsdto.WebSocketMessage{Type: wsdto.MessageTypeStatusUpdate},
		DriverID:         s.identity.DriverID,
		Status:           string(status),
	}
	if err := s.conn.Send(frame); err != nil {
		s.log.Action("status_update").Warn("sending status update", "error", err.Error())
		return
	}
	s.publishTelemetry("driver.status."+s.identity.DriverID, frame)
}

// publishTelemetry mirrors a frame onto the fleet broker, detached from
// the loop. Failures are logged only.
func (s *Session) publishTelemetry(routingKey string, msg any) {
	if s.telemetry == nil {
		return
	}
	telemetry, log := s.telemetry, s.log
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Publish(ctx, routingKey, msg); err != nil {
			log.Action("telemetry").Warn("publishing telemetry", "routing_key", routingKey, "error", err.Error())
		}
	}()
}

type rideEventMsg struct {
	Event     string `json:"event"`
	RideID    string `json:"rideId"`
	DriverID  string `json:"driverId"`
	Timestamp int64  `json:"timestamp"`
}

// directionsURL builds a Google Maps driving-directions link from the
// driver's position to the pickup point, logged for the driver UI.
func directionsURL(from, to model.Coordinates) string {
	return fmt.Sprintf(
		"https://www.google.com/maps/dir/?api=1&origin=%f,%f&destination=%f,%f&travelmode=driving",
		from.Lat, from.Lng, to.Lat, to.Lng,
	)
}
