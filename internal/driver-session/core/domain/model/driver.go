package model

import "time"

// Availability is the single source of truth for whether the driver can
// receive offers. Owned exclusively by the session state machine.
type Availability string

const (
	StatusOffline   Availability = "offline"
	StatusAvailable Availability = "available"
	StatusInRide    Availability = "in-ride"
)

// DriverIdentity is loaded once at session start and read-only thereafter.
type DriverIdentity struct {
	DriverID      string
	FirstName     string
	LastName      string
	IsApproved    bool
	IsActive      bool
	LicenseNumber string
	VehicleType   string
	LicensePlate  string
}

// Eligible reports whether the driver may request to go available.
func (d DriverIdentity) Eligible() bool {
	return d.IsApproved && d.IsActive
}

func (d DriverIdentity) FullName() string {
	if d.FirstName == "" && d.LastName == "" {
		return "Driver"
	}
	if d.LastName == "" {
		return d.FirstName
	}
	return d.FirstName + " " + d.LastName
}

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationSample is a single position fix. Never mutated after creation;
// ownership transfers to the connection layer for transmission.
type LocationSample struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	HeadingDegrees *float64
	SpeedKmh       *float64
	CapturedAt     time.Time
}

func (s LocationSample) Coords() Coordinates {
	return Coordinates{Lat: s.Latitude, Lng: s.Longitude}
}
