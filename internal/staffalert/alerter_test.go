package staffalert

import (
	"context"
	"errors"
	"testing"

	"curbside_relay/platform/logger"
)

type fakeSMS struct {
	to   []string
	body []string
	err  error
}

func (f *fakeSMS) Send(_ context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.to = append(f.to, to)
	f.body = append(f.body, body)
	return "SM1", nil
}

type fakeMail struct {
	subjects []string
	err      error
}

func (f *fakeMail) SendAlert(_ context.Context, _, subject, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	return nil
}

func TestAlertSendsSMSAndEmail(t *testing.T) {
	sms, mail := &fakeSMS{}, &fakeMail{}
	a := New(sms, "+16502530001", logger.New("test"), WithEmail(mail, "staff@example.com"))

	if err := a.Alert(context.Background(), "Customer arrived: order #A100", "Spot 7"); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if len(sms.to) != 1 || sms.to[0] != "+16502530001" || sms.body[0] != "Spot 7" {
		t.Fatalf("unexpected sms %+v", sms)
	}
	if len(mail.subjects) != 1 || mail.subjects[0] != "Customer arrived: order #A100" {
		t.Fatalf("unexpected mail %+v", mail)
	}
}

func TestAlertEmailFailureIsBestEffort(t *testing.T) {
	a := New(&fakeSMS{}, "+16502530001", logger.New("test"), WithEmail(&fakeMail{err: errors.New("smtp down")}, "staff@example.com"))
	if err := a.Alert(context.Background(), "s", "b"); err != nil {
		t.Fatalf("expected e-mail failure to be absorbed, got %v", err)
	}
}

func TestAlertFailsWhenNothingDelivered(t *testing.T) {
	a := New(&fakeSMS{err: errors.New("rejected")}, "+16502530001", logger.New("test"))
	if err := a.Alert(context.Background(), "s", "b"); err == nil {
		t.Fatalf("expected error when sms fails without e-mail")
	}

	if err := New(&fakeSMS{}, "", logger.New("test")).Alert(context.Background(), "s", "b"); !errors.Is(err, errNoChannel) {
		t.Fatalf("expected errNoChannel, got %v", err)
	}
}

func TestAlertFallsBackToEmail(t *testing.T) {
	mail := &fakeMail{}
	a := New(&fakeSMS{err: errors.New("rejected")}, "+16502530001", logger.New("test"), WithEmail(mail, "staff@example.com"))
	if err := a.Alert(context.Background(), "s", "b"); err != nil {
		t.Fatalf("expected e-mail delivery to count, got %v", err)
	}
	if len(mail.subjects) != 1 {
		t.Fatalf("expected e-mail to be sent")
	}
}
