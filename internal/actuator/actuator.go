// Package actuator drives device outputs to the states a schedule asks for.
package actuator

import (
	"context"
	"fmt"

	"github.com/awaistahir/spotswitch/internal/logger"
)

// Output switches a single device on or off
type Output interface {
	Set(ctx context.Context, deviceID string, on bool) error
	Close() error
}

// StateStore remembers the last state driven to each device
type StateStore interface {
	PinStates(ctx context.Context) (map[string]bool, error)
	SavePinStates(ctx context.Context, states map[string]bool) error
}

// StateRecorder is notified of every state driven to a device
type StateRecorder interface {
	PinState(deviceID string, on bool)
}

// PinState is the state one device should be in
type PinState struct {
	Name     string
	DeviceID string
	On       bool
}

// Change describes what an Apply call switched
type Change struct {
	Changed []PinState
	// PoweredOn is set when no earlier states were known, e.g. on first run
	// or after the state store was reset.
	PoweredOn bool
}

// None reports whether nothing changed
func (c Change) None() bool {
	return len(c.Changed) == 0 && !c.PoweredOn
}

// Controller applies expected states to an Output
type Controller struct {
	out      Output
	states   StateStore
	recorder StateRecorder
	log      logger.Logger
}

func NewController(out Output, states StateStore, recorder StateRecorder, log logger.Logger) *Controller {
	return &Controller{out: out, states: states, recorder: recorder, log: log}
}

// Apply drives every device to its expected state and reports the devices
// whose state differs from the last one applied
func (c *Controller) Apply(ctx context.Context, expected []PinState) (Change, error) {
	previous, err := c.states.PinStates(ctx)
	if err != nil {
		return Change{}, fmt.Errorf("loading pin states: %w", err)
	}

	change := Change{PoweredOn: len(previous) == 0}
	applied := make(map[string]bool, len(expected))
	for _, pin := range expected {
		if err := c.out.Set(ctx, pin.DeviceID, pin.On); err != nil {
			return Change{}, fmt.Errorf("setting %s (%s): %w", pin.Name, pin.DeviceID, err)
		}
		applied[pin.DeviceID] = pin.On
		if c.recorder != nil {
			c.recorder.PinState(pin.DeviceID, pin.On)
		}

		if prev, ok := previous[pin.DeviceID]; !ok || prev != pin.On {
			c.log.Infof("%s (%s) => %s", pin.Name, pin.DeviceID, StateLabel(pin.On))
			change.Changed = append(change.Changed, pin)
		}
	}

	if err := c.states.SavePinStates(ctx, applied); err != nil {
		return Change{}, fmt.Errorf("saving pin states: %w", err)
	}
	return change, nil
}

// StateLabel renders a state as ON or OFF
func StateLabel(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// LogOutput only logs state changes; used when no hardware is attached
type LogOutput struct {
	log logger.Logger
}

func NewLogOutput(log logger.Logger) *LogOutput {
	return &LogOutput{log: log}
}

func (o *LogOutput) Set(_ context.Context, deviceID string, on bool) error {
	o.log.Debugf("PIN %s => %s", deviceID, StateLabel(on))
	return nil
}

func (o *LogOutput) Close() error {
	return nil
}
