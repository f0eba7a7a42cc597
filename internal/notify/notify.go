// Package notify formats schedules and alerts and delivers them by email.
package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/awaistahir/spotswitch/internal/actuator"
	"github.com/awaistahir/spotswitch/internal/config"
	"github.com/awaistahir/spotswitch/internal/engine"
	"github.com/awaistahir/spotswitch/internal/logger"
	"github.com/wneessen/go-mail"
)

type sendFunc func(msgs ...*mail.Msg) error

// Notifier sends messages by SMTP when email is configured and always logs them
type Notifier struct {
	cfg  *config.EmailConfig
	log  logger.Logger
	send sendFunc
	now  func() time.Time
}

// New creates a Notifier. A nil cfg makes every message log-only.
func New(cfg *config.EmailConfig, log logger.Logger) (*Notifier, error) {
	n := &Notifier{cfg: cfg, log: log, now: time.Now}
	if cfg == nil {
		return n, nil
	}

	opts := []mail.Option{mail.WithTLSPortPolicy(mail.TLSOpportunistic), mail.WithPort(cfg.Port)}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSLPort(false))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Server, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating mail client for %s: %w", cfg.Server, err)
	}
	n.send = client.DialAndSend
	return n, nil
}

// SendSchedule mails the pins' on-hour ranges and average prices for date
func (n *Notifier) SendSchedule(date time.Time, s *engine.Schedule) error {
	subject := "Schedule " + date.Format("02.01.2006")

	var b strings.Builder
	for _, pin := range s.Pins {
		fmt.Fprintf(&b, "%s: %s (%d h)\n", pin.Name, FormatRanges(pin.OnHours), len(pin.OnHours))
		fmt.Fprintf(&b, "Average price: on %.3f, off %.3f\n\n",
			pin.AvgPrice(s.Prices, true), pin.AvgPrice(s.Prices, false))
	}
	fmt.Fprintf(&b, "Day average price: %.3f", s.DayAvgPrice())

	return n.deliver(subject, b.String())
}

// SendPinStateChange mails the pins that were switched
func (n *Notifier) SendPinStateChange(pins []actuator.PinState, poweredOn bool) error {
	subject := "State change"
	if poweredOn {
		subject += " (powered on)"
	}

	lines := make([]string, 0, len(pins))
	for _, pin := range pins {
		lines = append(lines, fmt.Sprintf("%s (device %s): %s", pin.Name, pin.DeviceID, actuator.StateLabel(pin.On)))
	}
	return n.deliver(subject, strings.Join(lines, "\n"))
}

func (n *Notifier) SendTomorrowError(err error) error {
	return n.deliver("Computing tomorrow's schedule failed", fmt.Sprintf("%+v", err))
}

func (n *Notifier) SendError(err error) error {
	return n.deliver("Unexpected error", fmt.Sprintf("%+v", err))
}

func (n *Notifier) deliver(subject, body string) error {
	n.log.Infof("Subject: %s\n\n%s", subject, body)
	if n.cfg == nil {
		return nil
	}

	msg, err := n.message(subject, body)
	if err != nil {
		return err
	}
	if err := n.send(msg); err != nil {
		return fmt.Errorf("sending %q: %w", subject, err)
	}
	return nil
}

func (n *Notifier) message(subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.cfg.From); err != nil {
		return nil, fmt.Errorf("sender %q: %w", n.cfg.From, err)
	}
	if err := msg.To(n.cfg.To...); err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(n.now())
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// FormatRanges renders sorted hour starts as "HH:00-HH:59" ranges
func FormatRanges(hours []time.Time) string {
	runs := engine.Runs(hours)
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		parts = append(parts, fmt.Sprintf("%02d:00-%02d:59", r.Start.Hour(), r.End.Hour()))
	}
	return strings.Join(parts, ", ")
}
