// Package backend implements the client for the remote drink-recording API.
//
// All methods return *Error so callers can classify failures (see errors.go).
// The core treats the backend as best-effort for telemetry and at-least-once
// for drinks; nothing in this package retries on its own.
package backend

import (
	"fmt"
	"time"
)

// TapDescriptor is one tap definition as served by the backend.
type TapDescriptor struct {
	MeterName string  `json:"meter_name" mapstructure:"meter_name"`
	MLPerTick float64 `json:"ml_per_tick" mapstructure:"ml_per_tick"`
	RelayName string  `json:"relay_name" mapstructure:"relay_name"`
}

// AuthToken is the backend's view of an authentication token.
type AuthToken struct {
	AuthDevice string `json:"auth_device"`
	TokenValue string `json:"token_value"`
	Username   string `json:"username"`
	Enabled    bool   `json:"enabled"`
}

// Drink is a persisted drink record.
type Drink struct {
	ID       uint64   `json:"id"`
	Ticks    uint64   `json:"ticks"`
	VolumeML float64  `json:"volume_ml"`
	Username string   `json:"username"`
	KegID    uint64   `json:"keg_id"`
	Time     UnixTime `json:"time"`
}

// Controller is a registered hardware controller.
type Controller struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// DrinkRequest carries the fields of a drink post.
type DrinkRequest struct {
	MeterName string
	Ticks     uint64
	VolumeML  *float64
	Username  string
	PourTime  time.Time
	Duration  time.Duration
	AuthToken string
	Spilled   bool
}

// Client is the surface of the remote API consumed by the core.
type Client interface {
	// GetStatus returns the full system status used by the periodic sync.
	GetStatus() (map[string]interface{}, error)
	// GetAllTaps returns every tap configured on the backend.
	GetAllTaps() ([]TapDescriptor, error)
	// RecordDrink posts a completed flow as a drink.
	RecordDrink(req DrinkRequest) (*Drink, error)
	// CancelDrink voids a previously recorded drink.
	CancelDrink(drinkID uint64, spilled bool) error
	// LogSensorReading records one temperature reading.
	LogSensorReading(sensorName string, value float64, when time.Time) error
	// GetAuthToken looks up a token by device and value. Unknown tokens
	// yield a not-found error; transport trouble during lookup is also
	// reported as not-found so the token is treated as unassigned.
	GetAuthToken(authDevice, tokenValue string) (*AuthToken, error)
	// CreateController registers a controller and its default flow meters.
	CreateController(name string) (*Controller, error)
	// CreateFlowMeter adds a named meter to an existing controller.
	CreateFlowMeter(controllerID uint64, name string) error
}

// UnixTime decodes backend timestamps sent as epoch seconds.
type UnixTime struct {
	time.Time
}

func (u *UnixTime) UnmarshalJSON(data []byte) error {
	var secs int64
	if _, err := fmt.Sscan(string(data), &secs); err != nil {
		return err
	}
	u.Time = time.Unix(secs, 0)
	return nil
}

func (u UnixTime) MarshalJSON() ([]byte, error) {
	return []byte(fmt.Sprint(u.Unix())), nil
}
