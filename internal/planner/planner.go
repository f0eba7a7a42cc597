// Package planner runs the control cycle: it makes sure schedules exist for
// today and tomorrow, drives the outputs and reports what happened.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awaistahir/spotswitch/internal/actuator"
	"github.com/awaistahir/spotswitch/internal/day"
	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/logger"
	"github.com/awaistahir/spotswitch/internal/store"
)

// PriceSource returns the prices of one local calendar day
type PriceSource interface {
	PricesForDay(ctx context.Context, date time.Time) ([]engine.Price, error)
}

// ScheduleStore persists one schedule per date
type ScheduleStore interface {
	LoadSchedule(ctx context.Context, date time.Time) (*engine.Schedule, error)
	SaveSchedule(ctx context.Context, date time.Time, schedule *engine.Schedule) error
	Lock() func()
}

type Notifier interface {
	SendSchedule(date time.Time, schedule *engine.Schedule) error
	SendPinStateChange(pins []actuator.PinState, poweredOn bool) error
	SendTomorrowError(err error) error
	SendError(err error) error
}

type Applier interface {
	Apply(ctx context.Context, expected []actuator.PinState) (actuator.Change, error)
}

type ComputeRecorder interface {
	ScheduleComputed(onHours map[string]int)
}

// Options wires a Planner
type Options struct {
	Constraints       []engine.Constraints
	Location          *time.Location
	TomorrowAfterHour int
	Prices            PriceSource
	Store             ScheduleStore
	Notifier          Notifier
	Controller        Applier
	Recorder          ComputeRecorder
	Log               logger.Logger
}

type Planner struct {
	opts Options
	log  logger.Logger

	mu sync.Mutex
}

func New(opts Options) *Planner {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	log := opts.Log
	if log == nil {
		log = logger.Nop{}
	}
	return &Planner{opts: opts, log: log}
}

// Plan fetches prices and computes the schedule for date without storing it
func (p *Planner) Plan(ctx context.Context, date time.Time) (*engine.Schedule, error) {
	prices, err := p.opts.Prices.PricesForDay(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("fetching prices for %s: %w", day.Format(date), err)
	}
	schedule, err := engine.Compute(p.opts.Constraints, prices)
	if err != nil {
		return nil, fmt.Errorf("computing schedule for %s: %w", day.Format(date), err)
	}
	return schedule, nil
}

// EnsureSchedule returns the stored schedule for date, computing and storing
// it first when missing. created reports whether it was computed.
func (p *Planner) EnsureSchedule(ctx context.Context, date time.Time) (*engine.Schedule, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	schedule, err := p.opts.Store.LoadSchedule(ctx, date)
	if err == nil {
		return schedule, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	schedule, err = p.Plan(ctx, date)
	if err != nil {
		return nil, false, err
	}

	unlock := p.opts.Store.Lock()
	err = p.opts.Store.SaveSchedule(ctx, date, schedule)
	unlock()
	if err != nil {
		return nil, false, err
	}

	p.log.Infof("Created schedule for %s", day.Format(date))
	if p.opts.Recorder != nil {
		onHours := make(map[string]int, len(schedule.Pins))
		for _, pin := range schedule.Pins {
			onHours[pin.DeviceID] = len(pin.OnHours)
		}
		p.opts.Recorder.ScheduleComputed(onHours)
	}
	return schedule, true, nil
}

// Run performs one control cycle at now. Errors are mailed before being returned.
func (p *Planner) Run(ctx context.Context, now time.Time) error {
	if err := p.run(ctx, now); err != nil {
		if nerr := p.opts.Notifier.SendError(err); nerr != nil {
			p.log.Errorf("Failed to send error email: %v", nerr)
		}
		return err
	}
	return nil
}

func (p *Planner) run(ctx context.Context, now time.Time) error {
	now = now.In(p.opts.Location)

	today := day.Today.Date(now, p.opts.Location)
	schedule, created, err := p.EnsureSchedule(ctx, today)
	if err != nil {
		return fmt.Errorf("today's schedule: %w", err)
	}
	if created {
		p.sendSchedule(today, schedule)
	}

	if now.Hour() >= p.opts.TomorrowAfterHour {
		p.ensureTomorrow(ctx, now)
	}

	expected := make([]actuator.PinState, 0, len(schedule.Pins))
	for _, pin := range schedule.Pins {
		expected = append(expected, actuator.PinState{Name: pin.Name, DeviceID: pin.DeviceID, On: pin.IsOn(now)})
	}

	change, err := p.opts.Controller.Apply(ctx, expected)
	if err != nil {
		return err
	}
	if change.None() {
		return nil
	}
	return p.opts.Notifier.SendPinStateChange(change.Changed, change.PoweredOn)
}

func (p *Planner) ensureTomorrow(ctx context.Context, now time.Time) {
	tomorrow := day.Tomorrow.Date(now, p.opts.Location)
	schedule, created, err := p.EnsureSchedule(ctx, tomorrow)
	if err != nil {
		p.log.Warnf("Tomorrow's schedule: %v", err)
		if nerr := p.opts.Notifier.SendTomorrowError(err); nerr != nil {
			p.log.Errorf("Failed to send email: %v", nerr)
		}
		return
	}
	if created {
		p.sendSchedule(tomorrow, schedule)
	}
}

func (p *Planner) sendSchedule(date time.Time, schedule *engine.Schedule) {
	if err := p.opts.Notifier.SendSchedule(date, schedule); err != nil {
		p.log.Errorf("Failed to send schedule for %s: %v", day.Format(date), err)
	}
}

// SendSchedules makes sure today's and tomorrow's schedules exist and mails both
func (p *Planner) SendSchedules(ctx context.Context, now time.Time) error {
	for _, rel := range []day.RelativeDate{day.Today, day.Tomorrow} {
		date := rel.Date(now, p.opts.Location)
		schedule, _, err := p.EnsureSchedule(ctx, date)
		if err != nil {
			return fmt.Errorf("%s's schedule: %w", rel, err)
		}
		p.sendSchedule(date, schedule)
	}
	return nil
}
