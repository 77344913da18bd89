package domain

import "testing"

func TestParseActionKind(t *testing.T) {
	for _, raw := range []string{"arrival", " COMPLAINT ", "Order_Received", "general"} {
		if _, err := ParseActionKind(raw); err != nil {
			t.Fatalf("expected %q to parse, got %v", raw, err)
		}
	}
	if _, err := ParseActionKind("OPT_IN"); err == nil {
		t.Fatalf("expected unknown action to fail")
	}
}

func TestNewActionDefaultsSentiment(t *testing.T) {
	complaint, err := NewAction(ActionComplaint, "Sorry for the wait")
	if err != nil {
		t.Fatalf("NewAction: %v", err)
	}
	if complaint.Sentiment != SentimentNegative {
		t.Fatalf("expected negative sentiment for complaint, got %s", complaint.Sentiment)
	}
	if _, err := NewAction(ActionGeneral, "   "); err == nil {
		t.Fatalf("expected empty response to be rejected")
	}
}

func TestFallbackGeneral(t *testing.T) {
	action := FallbackGeneral()
	if action.Kind != ActionGeneral || !action.Fallback || action.Response != FallbackGreeting {
		t.Fatalf("unexpected fallback action %+v", action)
	}
}

func TestOrderStatus(t *testing.T) {
	if !OrderCompleted.IsTerminal() || OrderCustomerArrived.IsTerminal() {
		t.Fatalf("only COMPLETED is terminal")
	}
	if OrderStatus("CANCELLED").Valid() {
		t.Fatalf("unexpected status accepted")
	}
}

func TestParseSentiment(t *testing.T) {
	if ParseSentiment("negative") != SentimentNegative || ParseSentiment("meh") != SentimentNeutral {
		t.Fatalf("unexpected sentiment mapping")
	}
}
