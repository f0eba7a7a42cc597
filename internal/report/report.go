// Package report renders schedules for the terminal.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/awaistahir/spotswitch/internal/day"
	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/notify"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// WriteTable writes one row per local hour of date with its price and every
// pin's state, followed by the averages
func WriteTable(w io.Writer, date time.Time, s *engine.Schedule, useColors bool) error {
	table := tablewriter.NewWriter(w)
	defer func() { _ = table.Close() }()

	headers := []string{"Hour", "Price"}
	for _, pin := range s.Pins {
		headers = append(headers, pin.Name)
	}
	table.Header(headers)

	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})

	on, off := fmt.Sprint, fmt.Sprint
	if useColors {
		on = color.New(color.FgGreen).SprintFunc()
		off = color.New(color.FgHiBlack).SprintFunc()
	}

	var data [][]string
	for _, h := range day.Hours(date) {
		price := "-"
		if p, ok := s.AvgPriceForHour(h); ok {
			price = fmt.Sprintf("%.3f", p)
		}
		row := []string{h.Format("15:04"), price}
		for _, pin := range s.Pins {
			if pin.IsOn(h) {
				row = append(row, on("ON"))
			} else {
				row = append(row, off("off"))
			}
		}
		data = append(data, row)
	}

	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, pin := range s.Pins {
		if _, err := fmt.Fprintf(w, "%s (%s): %s (%d h), average on %.3f, off %.3f\n",
			pin.Name, pin.DeviceID, notify.FormatRanges(pin.OnHours), len(pin.OnHours),
			pin.AvgPrice(s.Prices, true), pin.AvgPrice(s.Prices, false)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Day average price %s: %.3f\n", day.Format(date), s.DayAvgPrice())
	return err
}

// WriteJSON writes v as indented JSON
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
