package model

import "time"

type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "DISCONNECTED"
	ConnectionConnecting   ConnectionState = "CONNECTING"
	ConnectionConnected    ConnectionState = "CONNECTED"
	ConnectionBackoff      ConnectionState = "BACKOFF"
	ConnectionFailed       ConnectionState = "FAILED"
)

// DriverSession is owned by the session coordinator.
type DriverSession struct {
	DriverID        string          `json:"driver_id"`
	Online          bool            `json:"online"`
	ConnectionState ConnectionState `json:"connection_state"`
}

type DriverStatus string

const (
	StatusAvailable  DriverStatus = "AVAILABLE"
	StatusPickingUp  DriverStatus = "PICKING_UP"
	StatusDelivering DriverStatus = "DELIVERING"
	StatusCompleted  DriverStatus = "COMPLETED"
)

type Coord struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coord) IsZero() bool { return c.Latitude == 0 && c.Longitude == 0 }

// Position is a raw fix from the position source.
type Position struct {
	Coord
	HeadingDeg   float64   `json:"heading_deg"`
	SpeedMps     float64   `json:"speed_mps"`
	AccuracyM    float64   `json:"accuracy_m"`
	AltitudeM    float64   `json:"altitude_m"`
	BatteryLevel float64   `json:"battery_level"`
	CapturedAt   time.Time `json:"captured_at"`
}

// LocationSample is what gets shipped. Immutable once captured.
type LocationSample struct {
	Latitude          float64      `json:"latitude"`
	Longitude         float64      `json:"longitude"`
	HeadingDeg        float64      `json:"heading_deg"`
	SpeedMps          float64      `json:"speed_mps"`
	AccuracyM         float64      `json:"accuracy_m"`
	AltitudeM         float64      `json:"altitude_m"`
	CapturedAtEpochMs int64        `json:"captured_at_ms"`
	BatteryLevel0to1  float64      `json:"battery_level"`
	Status            DriverStatus `json:"status"`
}

func NewLocationSample(p Position, status DriverStatus) LocationSample {
	return LocationSample{
		Latitude:          p.Latitude,
		Longitude:         p.Longitude,
		HeadingDeg:        p.HeadingDeg,
		SpeedMps:          p.SpeedMps,
		AccuracyM:         p.AccuracyM,
		AltitudeM:         p.AltitudeM,
		CapturedAtEpochMs: p.CapturedAt.UnixMilli(),
		BatteryLevel0to1:  p.BatteryLevel,
		Status:            status,
	}
}

func (s LocationSample) Coord() Coord {
	return Coord{Latitude: s.Latitude, Longitude: s.Longitude}
}

// DriverView is the aggregated snapshot served to the UI collaborator.
type DriverView struct {
	Session           DriverSession `json:"session"`
	Dispatchable      bool          `json:"dispatchable"`
	ReconnectRequired bool          `json:"reconnect_required"`
	Searching         bool          `json:"searching"`
	Notice            string        `json:"notice,omitempty"`
	Offer             *OrderOffer   `json:"offer,omitempty"`
	Route             *RouteInfo    `json:"route,omitempty"`
	Calculating       bool          `json:"calculating"`
	Trip              *Trip         `json:"trip,omitempty"`
	Status            DriverStatus  `json:"status"`
}
