// Package staffalert notifies store staff by SMS, with an optional e-mail copy.
package staffalert

import (
	"context"
	"errors"
	"fmt"

	"curbside_relay/internal/email"
	"curbside_relay/platform/logger"
)

// Messenger sends an SMS.
type Messenger interface {
	Send(ctx context.Context, to, body string) (string, error)
}

var errNoChannel = errors.New("no staff alert channel configured")

// Alerter delivers staff alerts. SMS is the primary channel; the e-mail copy
// is best effort.
type Alerter struct {
	sms        Messenger
	staffPhone string
	mail       email.Sender
	staffEmail string
	log        *logger.Logger
}

type Option func(*Alerter)

// WithEmail adds an e-mail copy of every alert.
func WithEmail(sender email.Sender, to string) Option {
	return func(a *Alerter) {
		a.mail = sender
		a.staffEmail = to
	}
}

func New(sms Messenger, staffPhone string, log *logger.Logger, opts ...Option) *Alerter {
	a := &Alerter{sms: sms, staffPhone: staffPhone, log: log}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Alert sends body to the staff phone and mails subject+body when enabled.
// It fails only when no channel delivered the alert.
func (a *Alerter) Alert(ctx context.Context, subject, body string) error {
	var smsErr error
	delivered := false

	if a.staffPhone != "" && a.sms != nil {
		if _, err := a.sms.Send(ctx, a.staffPhone, body); err != nil {
			smsErr = fmt.Errorf("staff sms: %w", err)
			a.log.WithContext(ctx).OutboundFailed("sms", "staff_alert", err)
		} else {
			delivered = true
		}
	}

	if a.mail != nil && a.staffEmail != "" {
		if err := a.mail.SendAlert(ctx, a.staffEmail, subject, body); err != nil {
			a.log.WithContext(ctx).OutboundFailed("smtp", "staff_alert", err)
			if !delivered {
				return errors.Join(smsErr, fmt.Errorf("staff email: %w", err))
			}
		} else {
			delivered = true
		}
	}

	if delivered {
		return nil
	}
	if smsErr != nil {
		return smsErr
	}
	return errNoChannel
}
