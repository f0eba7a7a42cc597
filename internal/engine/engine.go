package engine

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"
)

var (
	ErrInvalidPrice       = errors.New("price is not a finite number")
	ErrUnorderedPrices    = errors.New("prices are not in chronological order")
	ErrInvalidConstraints = errors.New("invalid schedule constraints")
	ErrInvalidSchedule    = errors.New("invalid schedule")
)

// HourlyAverages averages the prices of each hour into a single price whose
// validity is the start of that hour. Prices must be in chronological order.
func HourlyAverages(prices []Price) ([]Price, error) {
	hours := []Price{}
	count := 0
	for i, p := range prices {
		if math.IsNaN(p.Price) || math.IsInf(p.Price, 0) {
			return nil, fmt.Errorf("%w: %v at %s", ErrInvalidPrice, p.Price, p.Validity.Format(time.RFC3339))
		}
		if i > 0 && p.Validity.Before(prices[i-1].Validity) {
			return nil, fmt.Errorf("%w: %s after %s", ErrUnorderedPrices,
				p.Validity.Format(time.RFC3339), prices[i-1].Validity.Format(time.RFC3339))
		}

		// Same local hour keeps accumulating, which also merges the repeated
		// hour of a DST fall-back day.
		if count > 0 && hours[len(hours)-1].Validity.Hour() == p.Validity.Hour() {
			hours[len(hours)-1].Price += p.Price
			count++
			continue
		}
		if count > 0 {
			hours[len(hours)-1].Price /= float64(count)
		}
		hours = append(hours, Price{Validity: HourStart(p.Validity), Price: p.Price})
		count = 1
	}
	if count > 0 {
		hours[len(hours)-1].Price /= float64(count)
	}
	return hours, nil
}

// HourStart zeroes the minutes, seconds and nanoseconds of t in its own location
func HourStart(t time.Time) time.Time {
	offset := time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
	return t.Add(-offset)
}

// SelectHours picks the hours a device should be on. Hours are expected to be
// hourly averages in chronological order; the result is chronological too.
func SelectHours(hours []Price, c Constraints) []time.Time {
	var alwaysOn, others []Price
	for _, h := range hours {
		if c.HighLimit != nil && h.Price >= *c.HighLimit {
			continue
		}
		if c.LowLimit != nil && h.Price <= *c.LowLimit {
			alwaysOn = append(alwaysOn, h)
		} else {
			others = append(others, h)
		}
	}

	// Stable sorts keep equal prices in chronological order
	if len(alwaysOn) > c.MaxOnHours {
		slices.SortStableFunc(alwaysOn, byPrice)
		alwaysOn = alwaysOn[:c.MaxOnHours]
	}

	selected := alwaysOn
	if target := min(c.MinOnHours, c.MaxOnHours); len(selected) < target {
		slices.SortStableFunc(others, byPrice)
		need := min(target-len(selected), len(others))
		selected = append(selected, others[:need]...)
	}

	slices.SortFunc(selected, func(a, b Price) int {
		return a.Validity.Compare(b.Validity)
	})
	onHours := make([]time.Time, len(selected))
	for i, h := range selected {
		onHours[i] = h.Validity
	}
	return onHours
}

func byPrice(a, b Price) int {
	return cmp.Compare(a.Price, b.Price)
}

// Run is a maximal stretch of consecutive on-hours, both ends inclusive
type Run struct {
	Start time.Time
	End   time.Time
	Len   int
}

// Hours returns the number of hour buckets in the run
func (r Run) Hours() int {
	return r.Len
}

// Runs merges chronologically sorted hour starts into runs
func Runs(onHours []time.Time) []Run {
	var runs []Run
	for _, h := range onHours {
		if n := len(runs); n > 0 && HourEnd(runs[n-1].End).Equal(h) {
			runs[n-1].End = h
			runs[n-1].Len++
			continue
		}
		runs = append(runs, Run{Start: h, End: h, Len: 1})
	}
	return runs
}

// HourEnd returns the start of the local hour following the one starting at
// h. The repeated hour of a DST fall-back is part of h's hour, so that hour
// lasts two hours.
func HourEnd(h time.Time) time.Time {
	next := h.Add(time.Hour)
	if next.Hour() == h.Hour() {
		next = next.Add(time.Hour)
	}
	return next
}

// DropShortRuns removes runs shorter than minConsecutive hours. Runs touching
// the start or the end of the day are kept since they may continue into the
// adjacent day.
func DropShortRuns(onHours []time.Time, minConsecutive *int) []time.Time {
	if minConsecutive == nil {
		return slices.Clone(onHours)
	}

	kept := make([]time.Time, 0, len(onHours))
	rest := onHours
	for _, r := range Runs(onHours) {
		run := rest[:r.Len]
		rest = rest[r.Len:]
		if r.Start.Hour() != 0 && r.End.Hour() != 23 && r.Hours() < *minConsecutive {
			continue
		}
		kept = append(kept, run...)
	}
	return kept
}

// ComputePin computes the schedule of a single device from a day of prices
func ComputePin(c Constraints, prices []Price) (PinSchedule, error) {
	if err := c.Validate(); err != nil {
		return PinSchedule{}, err
	}
	hours, err := HourlyAverages(prices)
	if err != nil {
		return PinSchedule{}, err
	}
	return computePin(c, hours), nil
}

func computePin(c Constraints, hours []Price) PinSchedule {
	return PinSchedule{
		Name:     c.Name,
		DeviceID: c.DeviceID,
		OnHours:  DropShortRuns(SelectHours(hours, c), c.MinConsecutiveOnHours),
	}
}
