package email

import (
	"strings"
	"testing"
	"time"
)

func TestRenderAlertSplitsLinesAndEscapes(t *testing.T) {
	at := time.Date(2026, 3, 1, 15, 4, 0, 0, time.UTC)
	html, err := renderAlert("Rural King", "Customer arrived: order #A100", "Order #A100,\n\nSpot 7,\nCustomer: <Jane>", at)
	if err != nil {
		t.Fatalf("renderAlert: %v", err)
	}
	for _, want := range []string{"Customer arrived: order #A100", "Spot 7,", "Customer: &lt;Jane&gt;", "Rural King curbside"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected %q in rendered alert:\n%s", want, html)
		}
	}
	if strings.Count(html, "<p style=\"margin: 0 0 6px") != 3 {
		t.Fatalf("expected blank lines to be dropped")
	}
}

func TestBuildMessageRejectsBadRecipient(t *testing.T) {
	s := &SMTPSender{fromName: "Relay", fromEmail: "relay@example.com", brand: "Rural King", now: time.Now}
	if _, err := s.buildMessage("not-an-address", "subject", "body"); err == nil {
		t.Fatalf("expected invalid recipient to be rejected")
	}
	if _, err := s.buildMessage("staff@example.com", "subject", "body"); err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
}
