package engine

import (
	"fmt"
	"time"
)

// Price is a single spot price quote valid from Validity until the next quote
type Price struct {
	Validity time.Time `json:"validity"`
	Price    float64   `json:"price"` // c/kWh, may be negative
}

// Constraints defines how a single device is scheduled
type Constraints struct {
	Name     string `json:"name" mapstructure:"name"`
	DeviceID string `json:"device_id" mapstructure:"device_id"`

	// Always on (up to MaxOnHours) if the hourly price is at or under this limit
	LowLimit *float64 `json:"low_limit,omitempty" mapstructure:"low_limit"`
	// Never on if the hourly price is at or over this limit
	HighLimit *float64 `json:"high_limit,omitempty" mapstructure:"high_limit"`

	MinOnHours int `json:"min_on_hours" mapstructure:"min_on_hours"`
	MaxOnHours int `json:"max_on_hours" mapstructure:"max_on_hours"`

	// On-periods shorter than this are dropped unless they touch midnight
	MinConsecutiveOnHours *int `json:"min_consecutive_on_hours,omitempty" mapstructure:"min_consecutive_on_hours"`
}

// Validate reports structurally invalid constraints
func (c Constraints) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidConstraints)
	case c.DeviceID == "":
		return fmt.Errorf("%w: %s: device_id is required", ErrInvalidConstraints, c.Name)
	case c.MinOnHours < 0 || c.MaxOnHours < 0:
		return fmt.Errorf("%w: %s: on hours must not be negative", ErrInvalidConstraints, c.Name)
	case c.MinConsecutiveOnHours != nil && *c.MinConsecutiveOnHours <= 0:
		return fmt.Errorf("%w: %s: min_consecutive_on_hours must be positive", ErrInvalidConstraints, c.Name)
	}
	return nil
}

// PinSchedule is the computed on-hours of one device for one day
type PinSchedule struct {
	Name     string      `json:"name"`
	DeviceID string      `json:"device_id"`
	OnHours  []time.Time `json:"on_hours"` // hour starts, strictly increasing
}

// Schedule bundles every device schedule of a day with the prices it was computed from
type Schedule struct {
	Pins   []PinSchedule `json:"pins"`
	Prices []Price       `json:"prices"`
}
