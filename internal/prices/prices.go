package prices

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/awaistahir/spotswitch/internal/day"
	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/logger"
)

var (
	ErrIncompleteFeed = errors.New("incomplete price feed")
	ErrSourceFailed   = errors.New("price source returned an error")
)

// Source fetches spot prices for the interval [start, end)
type Source interface {
	Name() string
	PricesForDay(ctx context.Context, start, end time.Time) ([]engine.Price, error)
}

// FetchRecorder is notified of every attempt against a source
type FetchRecorder interface {
	PriceFetch(source string, ok bool)
}

// Service fetches a day of prices, falling back to the next source when one
// fails or returns an incomplete day
type Service struct {
	sources    []Source
	minEntries int
	log        logger.Logger
	recorder   FetchRecorder
}

// NewService tries sources in order. A day needs at least minEntries prices;
// a DST transition day may have only 23 hours.
func NewService(minEntries int, log logger.Logger, recorder FetchRecorder, sources ...Source) *Service {
	return &Service{
		sources:    sources,
		minEntries: minEntries,
		log:        log,
		recorder:   recorder,
	}
}

// PricesForDay returns the chronologically ordered prices of date's calendar day
func (s *Service) PricesForDay(ctx context.Context, date time.Time) ([]engine.Price, error) {
	start, end := day.Bounds(date)

	var errs []error
	for _, src := range s.sources {
		s.log.Infof("getting prices for %s from %s", day.Format(date), src.Name())

		prices, err := src.PricesForDay(ctx, start, end)
		if err == nil && len(prices) < s.minEntries {
			err = fmt.Errorf("%w: %d prices", ErrIncompleteFeed, len(prices))
		}
		if s.recorder != nil {
			s.recorder.PriceFetch(src.Name(), err == nil)
		}
		if err != nil {
			s.log.Warnf("%s: %v", src.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		return prices, nil
	}

	if len(errs) == 0 {
		return nil, fmt.Errorf("no price sources configured")
	}
	return nil, fmt.Errorf("getting prices for %s: %w", day.Format(date), errors.Join(errs...))
}

// within keeps prices in [start, end), converted to start's location and sorted
func within(prices []engine.Price, start, end time.Time) []engine.Price {
	kept := make([]engine.Price, 0, len(prices))
	for _, p := range prices {
		if p.Validity.Before(start) || !p.Validity.Before(end) {
			continue
		}
		p.Validity = p.Validity.In(start.Location())
		kept = append(kept, p)
	}
	slices.SortStableFunc(kept, func(a, b engine.Price) int {
		return a.Validity.Compare(b.Validity)
	})
	return kept
}
