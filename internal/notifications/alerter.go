package notifications

import (
	"context"

	"github.com/meridianquant/orbitron/internal/alerts"
)

// Alerter adapts a Service to alerts.Alerter, so the mobile push channel
// can sit in the same alerts.Manager fan-out as Telegram — a secondary,
// optional operator channel rather than a second alerting mechanism.
type Alerter struct {
	svc         Service
	deviceToken string
}

// NewAlerter wraps svc, sending every alert to deviceToken. deviceToken is
// a single registered device rather than a user ID since the orchestrator
// has no notion of per-user accounts — it pages whichever device the
// operator registered.
func NewAlerter(svc Service, deviceToken string) *Alerter {
	return &Alerter{svc: svc, deviceToken: deviceToken}
}

// Send implements alerts.Alerter.
func (a *Alerter) Send(ctx context.Context, alert alerts.Alert) error {
	priority := "normal"
	if alert.Severity == alerts.SeverityCritical {
		priority = "high"
	}

	return a.svc.SendToDevice(ctx, a.deviceToken, Notification{
		Type:     NotificationTypePnLAlert,
		Title:    alert.Title,
		Body:     alert.Message,
		Priority: priority,
	})
}
