// Package messenger pushes notable agent events (deaths, emergencies,
// resets) to chat services. Delivery is best-effort: a failed or disabled
// sink never affects execution.
package messenger

import (
	"fmt"
	"log/slog"
	"time"
)

// Severity selects how a notification is rendered.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Notification is one outbound message.
type Notification struct {
	Severity Severity
	Title    string
	Body     string
	At       time.Time
}

// Notify builds a timestamped notification.
func Notify(severity Severity, title, format string, args ...any) Notification {
	return Notification{
		Severity: severity,
		Title:    title,
		Body:     fmt.Sprintf(format, args...),
		At:       time.Now(),
	}
}

// Sink delivers notifications to one chat service.
type Sink interface {
	Name() string
	Send(n Notification) error
	Close() error
}

// Messenger fans notifications out to all configured sinks.
type Messenger struct {
	sinks  []Sink
	logger *slog.Logger
}

func New(logger *slog.Logger, sinks ...Sink) *Messenger {
	return &Messenger{sinks: sinks, logger: logger}
}

// Send delivers to every sink, logging failures and moving on.
func (m *Messenger) Send(n Notification) {
	for _, s := range m.sinks {
		if err := s.Send(n); err != nil {
			m.logger.Warn("Notification delivery failed",
				slog.String("sink", s.Name()), slog.String("title", n.Title), slog.String("error", err.Error()))
		}
	}
}

// Close shuts down all sinks.
func (m *Messenger) Close() {
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			m.logger.Warn("Sink close failed", slog.String("sink", s.Name()), slog.String("error", err.Error()))
		}
	}
}

func render(n Notification) string {
	prefix := ""
	switch n.Severity {
	case SeverityWarning:
		prefix = "⚠️ "
	case SeverityCritical:
		prefix = "🔴 "
	}
	return fmt.Sprintf("%s**%s**\n%s", prefix, n.Title, n.Body)
}
