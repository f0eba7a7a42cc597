package engine

import (
	"fmt"
	"slices"
	"time"
)

// Compute builds the schedule of every configured device from a day of prices
func Compute(configs []Constraints, prices []Price) (*Schedule, error) {
	hours, err := HourlyAverages(prices)
	if err != nil {
		return nil, err
	}

	pins := make([]PinSchedule, 0, len(configs))
	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		pins = append(pins, computePin(c, hours))
	}

	return &Schedule{
		Pins:   pins,
		Prices: slices.Clone(prices),
	}, nil
}

// IsOn reports whether t falls within one of the on-hours. An on-hour lasts
// until the next local hour starts.
func (p PinSchedule) IsOn(t time.Time) bool {
	for _, h := range p.OnHours {
		if !t.Before(h) && t.Before(HourEnd(h)) {
			return true
		}
	}
	return false
}

// SetOnHours replaces the on-hours, restoring order and dropping duplicates
func (p *PinSchedule) SetOnHours(hours []time.Time) {
	sorted := slices.Clone(hours)
	slices.SortFunc(sorted, func(a, b time.Time) int { return a.Compare(b) })
	p.OnHours = slices.CompactFunc(sorted, time.Time.Equal)
}

// AvgPrice returns the average hourly price while the device is on (or off).
// An empty partition averages to 0 so reports never show NaN.
func (p PinSchedule) AvgPrice(prices []Price, on bool) float64 {
	hours, err := HourlyAverages(prices)
	if err != nil {
		return 0
	}

	onSet := make(map[int64]struct{}, len(p.OnHours))
	for _, h := range p.OnHours {
		onSet[h.Unix()] = struct{}{}
	}

	expected := len(p.OnHours)
	if !on {
		expected = len(hours) - len(p.OnHours)
	}
	if expected <= 0 {
		return 0
	}

	sum := 0.0
	for _, h := range hours {
		if _, isOn := onSet[h.Validity.Unix()]; isOn == on {
			sum += h.Price
		}
	}
	return sum / float64(expected)
}

// Pin returns the schedule of the given device
func (s *Schedule) Pin(deviceID string) (*PinSchedule, bool) {
	for i := range s.Pins {
		if s.Pins[i].DeviceID == deviceID {
			return &s.Pins[i], true
		}
	}
	return nil, false
}

// IsOn reports whether the device should be on at t. Unknown devices are off.
func (s *Schedule) IsOn(deviceID string, t time.Time) bool {
	pin, ok := s.Pin(deviceID)
	return ok && pin.IsOn(t)
}

// AvgPrice returns the device's average price while on (or off)
func (s *Schedule) AvgPrice(deviceID string, on bool) float64 {
	pin, ok := s.Pin(deviceID)
	if !ok {
		return 0
	}
	return pin.AvgPrice(s.Prices, on)
}

// AvgPriceForHour averages every price quoted within the hour containing t
func (s *Schedule) AvgPriceForHour(t time.Time) (float64, bool) {
	start := HourStart(t)
	end := start.Add(time.Hour)

	sum, count := 0.0, 0
	for _, p := range s.Prices {
		if !p.Validity.Before(start) && p.Validity.Before(end) {
			sum += p.Price
			count++
		}
	}
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// DayAvgPrice averages every price of the schedule. This assumes the prices
// are equally long and cover the whole day.
func (s *Schedule) DayAvgPrice() float64 {
	if len(s.Prices) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range s.Prices {
		sum += p.Price
	}
	return sum / float64(len(s.Prices))
}

// Validate checks that every pin's on-hours are strictly increasing
func (s *Schedule) Validate() error {
	for _, p := range s.Pins {
		for i := 1; i < len(p.OnHours); i++ {
			if !p.OnHours[i-1].Before(p.OnHours[i]) {
				return fmt.Errorf("%w: %s on-hours not strictly increasing", ErrInvalidSchedule, p.DeviceID)
			}
		}
	}
	return nil
}
