package wsdto

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/man137/Ryda/internal/driver-session/core/domain/model"
)

// WebSocket message types
const (
	MessageTypeLocationUpdate = "location_update"
	MessageTypeStatusUpdate   = "status_update"
	MessageTypeRideResponse   = "ride_response"
	MessageTypeRideCompleted  = "ride_completed"
	MessageTypeRideRequest    = "ride_request"
	MessageTypeRideCanceled   = "ride_canceled"
)

// Base message structure
type WebSocketMessage struct {
	Type string `json:"type"`
}

// Coords is the position payload carried on outbound frames.
type Coords struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Accuracy  float64  `json:"accuracy"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
	Timestamp int64    `json:"timestamp"`
}

// CoordsFromSample converts a location sample for transmission. The
// timestamp travels as epoch milliseconds.
func CoordsFromSample(s model.LocationSample) Coords {
	return Coords{
		Lat:       s.Latitude,
		Lng:       s.Longitude,
		Accuracy:  s.AccuracyMeters,
		Heading:   s.HeadingDegrees,
		Speed:     s.SpeedKmh,
		Timestamp: s.CapturedAt.UnixMilli(),
	}
}

// Driver position report
type LocationUpdateMessage struct {
	WebSocketMessage
	DriverID string `json:"driverId"`
	Coords   Coords `json:"coords"`
}

// Availability announcement
type StatusUpdateMessage struct {
	WebSocketMessage
	DriverID string `json:"driverId"`
	Status   string `json:"status"`
}

// Driver response to a ride offer
type RideResponseMessage struct {
	WebSocketMessage
	RideID    string  `json:"rideId"`
	Accepted  bool    `json:"accepted"`
	DriverID  string  `json:"driverId"`
	Coords    *Coords `json:"coords,omitempty"`
	Timestamp int64   `json:"timestamp"`
}

// Driver-initiated ride completion
type RideCompletedMessage struct {
	WebSocketMessage
	RideID        string  `json:"rideId"`
	DriverID      string  `json:"driverId"`
	DriverName    string  `json:"driverName"`
	VehicleNumber string  `json:"vehicleNumber"`
	EstimatedFare float64 `json:"estimatedFare"`
	CompletedAt   string  `json:"completedAt"`
	ClientID      string  `json:"clientId"`
}

// Ride offer from the dispatch server
type RideRequestFrame struct {
	WebSocketMessage
	RideID             string            `json:"rideId"`
	PickupAddress      string            `json:"pickupAddress"`
	DestinationAddress string            `json:"destinationAddress"`
	PickupCoords       model.Coordinates `json:"pickupCoords"`
	DestinationCoords  model.Coordinates `json:"destinationCoords"`
	EstimatedFare      float64           `json:"estimatedFare"`
	PassengerName      string            `json:"passengerName"`
	Distance           *float64          `json:"distance,omitempty"`
	ClientID           string            `json:"clientId,omitempty"`
}

// Server-side cancellation of a pending or active ride
type RideCanceledFrame struct {
	WebSocketMessage
	RideID string `json:"rideId"`
}

// Server-side confirmation that a ride finished
type RideCompletedFrame struct {
	WebSocketMessage
	RideID string `json:"rideId"`
}

// ErrUnknownType marks frame types this client does not recognize. They
// are logged and dropped, never fatal.
var ErrUnknownType = errors.New("unknown frame type")

// ParseInbound decodes one server frame. A parse failure must not
// terminate the session; callers log and move on.
func ParseInbound(data []byte) (any, error) {
	var envelope WebSocketMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame envelope: %w", err)
	}

	switch envelope.Type {
	case MessageTypeRideRequest:
		var frame RideRequestFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode ride_request: %w", err)
		}
		if frame.RideID == "" {
			return nil, fmt.Errorf("decode ride_request: missing rideId")
		}
		return frame, nil

	case MessageTypeRideCanceled:
		var frame RideCanceledFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode ride_canceled: %w", err)
		}
		return frame, nil

	case MessageTypeRideCompleted:
		var frame RideCompletedFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			return nil, fmt.Errorf("decode ride_completed: %w", err)
		}
		return frame, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}
}
