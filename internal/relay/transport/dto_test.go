package transport

import (
	"encoding/json"
	"testing"
)

func TestCompletionPrefersNestedFields(t *testing.T) {
	var req CallEndedRequest
	raw := `{"transcript":"flat","message":{"call":{"id":"nested-id"},"transcript":"nested","durationSeconds":3.4},"call":{"id":"flat-id"},"summary":"flat summary"}`
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := req.Completion()
	if got.CallID != "nested-id" || got.Transcript != "nested" || got.Summary != "flat summary" || got.DurationSeconds != 3 {
		t.Fatalf("unexpected completion %+v", got)
	}
}

func TestCompletionWithoutCall(t *testing.T) {
	var req CallEndedRequest
	if err := json.Unmarshal([]byte(`{"message":{"type":"status-update"}}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := req.Completion(); got.CallID != "" {
		t.Fatalf("expected empty call id, got %q", got.CallID)
	}
}

func TestIsEndOfCall(t *testing.T) {
	cases := []struct {
		raw  string
		want bool
	}{
		{`{"message":{"type":"end-of-call-report","call":{"id":"c1"}}}`, true},
		{`{"message":{"type":"status-update","call":{"id":"c1"}}}`, false},
		{`{"type":"status-update","call":{"id":"c1"}}`, false},
		{`{"call":{"id":"c1"},"transcript":"flat"}`, true},
	}
	for _, tc := range cases {
		var req CallEndedRequest
		if err := json.Unmarshal([]byte(tc.raw), &req); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		if got := req.IsEndOfCall(); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.raw, tc.want, got)
		}
	}
}
