package wsdto

import (
	"errors"
	"testing"
	"time"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
)

func TestParseInboundRideRequest(t *testing.T) {
	data := []byte(`{
		"type": "ride_request",
		"rideId": "R1",
		"pickupAddress": "Abay Ave 10",
		"destinationAddress": "Dostyk Ave 97",
		"pickupCoords": {"lat": 43.24, "lng": 76.89},
		"destinationCoords": {"lat": 43.22, "lng": 76.95},
		"estimatedFare": 1800.5,
		"passengerName": "Dana",
		"distance": 4.2,
		"clientId": "client-9"
	}`)

	parsed, err := ParseInbound(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	frame, ok := parsed.(RideRequestFrame)
	if !ok {
		t.Fatalf("parsed type = %T, want RideRequestFrame", parsed)
	}
	if frame.RideID != "R1" || frame.EstimatedFare != 1800.5 || frame.PickupCoords.Lat != 43.24 {
		t.Fatalf("unexpected frame: %+v", frame)
	}
	if frame.Distance == nil || *frame.Distance != 4.2 {
		t.Fatalf("distance not carried: %+v", frame.Distance)
	}
}

func TestParseInboundRideRequestMissingID(t *testing.T) {
	if _, err := ParseInbound([]byte(`{"type":"ride_request","passengerName":"Dana"}`)); err == nil {
		t.Fatal("expected an error for a ride_request without rideId")
	}
}

func TestParseInboundRideCanceled(t *testing.T) {
	parsed, err := ParseInbound([]byte(`{"type":"ride_canceled","rideId":"R7"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	frame, ok := parsed.(RideCanceledFrame)
	if !ok || frame.RideID != "R7" {
		t.Fatalf("unexpected result: %T %+v", parsed, parsed)
	}
}

func TestParseInboundUnknownType(t *testing.T) {
	_, err := ParseInbound([]byte(`{"type":"surge_notice"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestParseInboundMalformed(t *testing.T) {
	if _, err := ParseInbound([]byte(`{oops`)); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestCoordsFromSampleUsesEpochMillis(t *testing.T) {
	heading := 45.0
	captured := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	coords := CoordsFromSample(model.LocationSample{
		Latitude:       43.24,
		Longitude:      76.89,
		AccuracyMeters: 8,
		HeadingDegrees: &heading,
		CapturedAt:     captured,
	})
	if coords.Timestamp != captured.UnixMilli() {
		t.Fatalf("timestamp = %d, want %d", coords.Timestamp, captured.UnixMilli())
	}
	if coords.Heading == nil || *coords.Heading != 45.0 {
		t.Fatalf("heading not carried: %+v", coords.Heading)
	}
	if coords.Speed != nil {
		t.Fatal("absent speed must stay nil")
	}
}
