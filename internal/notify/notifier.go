// Package notify delivers composed alerts to operators. Channels are
// best-effort: a delivery failure is logged and never fails the
// pipeline run that produced the alert.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ymatsuda/cuprum/internal/contracts"
)

// Notifier delivers a single alert occurrence
type Notifier interface {
	Name() string
	Send(ctx context.Context, alert *contracts.Alert) error
}

// Format renders the shared one-line alert text used by all channels
func Format(alert *contracts.Alert) string {
	subject := alert.Category
	if alert.ModelName != "" {
		subject = fmt.Sprintf("%s (%s)", alert.Category, alert.ModelName)
	}
	return fmt.Sprintf("[%s] %s: %s", alert.Severity, subject, alert.Message)
}

// LogNotifier writes alerts to the structured log. Always configured,
// so every alert is observable even with no external channel set up.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier creates the log channel
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "notify.log").Logger()}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Send(_ context.Context, alert *contracts.Alert) error {
	event := n.log.Warn()
	if alert.Severity == contracts.SeverityError {
		event = n.log.Error()
	}
	event.
		Str("category", alert.Category).
		Str("model", alert.ModelName).
		Str("date", alert.Date.Format("2006-01-02")).
		Msg(Format(alert))
	return nil
}
