package worker

import (
	"context"

	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"go.uber.org/zap"
)

// Sender delivers one notification over a concrete channel.
type Sender interface {
	Deliver(ctx context.Context, event *models.NotificationRequestedEvent) error
}

// EmailSender is the email channel. Delivery is simulated: the message is
// logged and counted, the SMTP hop is out of scope.
type EmailSender struct {
	logger *zap.Logger
}

// NewEmailSender creates a new email sender
func NewEmailSender() *EmailSender {
	return &EmailSender{logger: util.GetLogger()}
}

// Deliver sends one email
func (es *EmailSender) Deliver(_ context.Context, event *models.NotificationRequestedEvent) error {
	es.logger.Info("Email delivered",
		zap.String("to", event.Recipient),
		zap.String("kind", event.Kind),
		zap.String("subject", event.Subject))
	util.NotificationsSentTotal.WithLabelValues(models.ChannelEmail).Inc()
	return nil
}

// SMSSender is the SMS channel, simulated the same way.
type SMSSender struct {
	logger *zap.Logger
}

// NewSMSSender creates a new SMS sender
func NewSMSSender() *SMSSender {
	return &SMSSender{logger: util.GetLogger()}
}

// Deliver sends one SMS
func (ss *SMSSender) Deliver(_ context.Context, event *models.NotificationRequestedEvent) error {
	ss.logger.Info("SMS delivered",
		zap.String("to", event.Recipient),
		zap.String("kind", event.Kind))
	util.NotificationsSentTotal.WithLabelValues(models.ChannelSMS).Inc()
	return nil
}
