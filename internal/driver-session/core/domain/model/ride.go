package model

import "time"

// RideOffer is a pending ride proposal. At most one offer per ride id is
// held concurrently; offers leave the queue on cancellation, acceptance
// or rejection.
type RideOffer struct {
	RideID             string
	PickupAddress      string
	DestinationAddress string
	PickupCoords       Coordinates
	DestinationCoords  Coordinates
	EstimatedFare      float64
	PassengerName      string
	// DistanceKm is the server's own estimate, when it sent one.
	DistanceKm *float64
	// ClientID correlates the offer back to the requesting passenger
	// connection on the dispatch server.
	ClientID   string
	ReceivedAt time.Time
}

// ActiveRide is the single ride the driver is currently executing. Its
// existence implies the session is in-ride.
type ActiveRide struct {
	Offer        RideOffer
	AcceptedAt   time.Time
	AcceptCoords LocationSample
	// RouteDistanceMeters is filled in after the fact by the best-effort
	// route lookup; nil until (and unless) it resolves.
	RouteDistanceMeters *float64
}

// RideCompletion is the summary handed back to the driver once the
// completion frame has been sent.
type RideCompletion struct {
	RideID        string
	EstimatedFare float64
	CompletedAt   time.Time
}
