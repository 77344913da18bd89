package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"curbside_relay/internal/adapters/storage"
	"curbside_relay/internal/archive"
	"curbside_relay/internal/relay/domain"
	"curbside_relay/internal/relay/service"
	"curbside_relay/platform/apperr"
	"curbside_relay/platform/logger"
	"curbside_relay/platform/validator"
)

type fakeInbound struct {
	from, to, text string
	err            error
}

func (f *fakeInbound) HandleInboundMessage(_ context.Context, from, to, text string) (service.Outcome, error) {
	f.from, f.to, f.text = from, to, text
	return service.Outcome{Kind: service.OutcomeHandled}, f.err
}

type fakeCalls struct {
	got domain.CallCompletion
}

func (f *fakeCalls) HandleCallCompletion(_ context.Context, c domain.CallCompletion) (service.CompletionResult, error) {
	f.got = c
	return service.CompletionResult{CallID: c.CallID, Matched: c.CallID != ""}, nil
}

type fakeLifecycle struct {
	notified bool
	newErr   error
	input    service.OrderInput
}

func (f *fakeLifecycle) NewOrder(_ context.Context, in service.OrderInput) (service.NewOrderResult, error) {
	f.input = in
	if f.newErr != nil {
		return service.NewOrderResult{}, f.newErr
	}
	return service.NewOrderResult{Order: domain.Order{OrderNumber: in.OrderNumber}, MessageID: "SM1"}, nil
}

func (f *fakeLifecycle) ReadyForPickup(_ context.Context, in service.OrderInput) (service.ReadyResult, error) {
	f.input = in
	if !f.notified {
		return service.ReadyResult{}, nil
	}
	return service.ReadyResult{Notified: true, Order: domain.Order{OrderNumber: in.OrderNumber}, MessageID: "SM2"}, nil
}

func (f *fakeLifecycle) SendManualMessage(context.Context, string, string, string) (string, error) {
	return "SM3", nil
}

func (f *fakeLifecycle) ResetOptIn(_ context.Context, phone string) (domain.Customer, error) {
	if phone != "+16502530000" {
		return domain.Customer{}, apperr.NotFound("customer not found")
	}
	return domain.Customer{Phone: phone, Name: "Jane"}, nil
}

type fakeArchive struct {
	records map[string]archive.Record
}

func (f *fakeArchive) DownloadURL(_ context.Context, callID string) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "https://minio.local/" + callID, FileKey: "calls/" + callID + ".json"}, nil
}

func (f *fakeArchive) Load(_ context.Context, callID string) (archive.Record, error) {
	if _, err := archive.Key(callID); err != nil {
		return archive.Record{}, err
	}
	rec, ok := f.records[callID]
	if !ok {
		return archive.Record{}, storage.ErrObjectNotFound
	}
	return rec, nil
}

type testRig struct {
	engine    *gin.Engine
	inbound   *fakeInbound
	calls     *fakeCalls
	lifecycle *fakeLifecycle
}

func newRig() *testRig {
	return newRigWithArchive(nil)
}

func newRigWithArchive(calls CallArchive) *testRig {
	gin.SetMode(gin.TestMode)
	rig := &testRig{inbound: &fakeInbound{}, calls: &fakeCalls{}, lifecycle: &fakeLifecycle{}}
	h := New(rig.inbound, rig.calls, rig.lifecycle, calls, validator.New(), logger.New("test"))

	r := gin.New()
	r.POST("/webhook/sms", h.InboundSMS)
	r.POST("/vapi/call-ended", h.CallEnded)
	r.POST("/orders/new", h.NewOrder)
	r.POST("/orders/ready", h.ReadyForPickup)
	r.POST("/api/reset-optin/:phone", h.ResetOptIn)
	r.GET("/api/calls/:callId/archive", h.CallArchiveLink)
	r.GET("/api/calls/:callId/transcript", h.CallTranscript)
	rig.engine = r
	return rig
}

func (r *testRig) do(method, path, contentType, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

func TestInboundSMSAcknowledgesWithTwiML(t *testing.T) {
	rig := newRig()
	form := url.Values{"From": {"+16502530000"}, "To": {"+16502530001"}, "Body": {"I'm in spot 7"}}

	w := rig.do(http.MethodPost, "/webhook/sms", "application/x-www-form-urlencoded", form.Encode())
	if w.Code != http.StatusOK || w.Body.String() != "<Response/>" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get("Content-Type"), "text/xml") {
		t.Fatalf("expected text/xml, got %q", w.Header().Get("Content-Type"))
	}
	if rig.inbound.from != "+16502530000" || rig.inbound.text != "I'm in spot 7" {
		t.Fatalf("form not forwarded: %+v", rig.inbound)
	}
}

func TestInboundSMSFailureStillAnswersTwiML(t *testing.T) {
	rig := newRig()
	rig.inbound.err = errors.New("db down")

	w := rig.do(http.MethodPost, "/webhook/sms", "application/x-www-form-urlencoded", "From=%2B16502530000&Body=hi")
	if w.Code != http.StatusInternalServerError || w.Body.String() != "<Response/>" {
		t.Fatalf("unexpected response %d %q", w.Code, w.Body.String())
	}
}

func TestInboundSMSWithoutSenderIsAcknowledged(t *testing.T) {
	rig := newRig()
	w := rig.do(http.MethodPost, "/webhook/sms", "application/x-www-form-urlencoded", "Body=hi")
	if w.Code != http.StatusOK || rig.inbound.text != "" {
		t.Fatalf("expected silent ack, got %d and forwarded %q", w.Code, rig.inbound.text)
	}
}

func TestCallEndedAcceptsNestedAndFlatPayloads(t *testing.T) {
	rig := newRig()

	nested := `{"message":{"type":"end-of-call-report","call":{"id":"call-1"},"transcript":"hi","summary":"s","endedReason":"hangup","durationSeconds":41.6}}`
	w := rig.do(http.MethodPost, "/vapi/call-ended", "application/json", nested)
	body := decode(t, w)
	if w.Code != http.StatusOK || body["success"] != true || body["callId"] != "call-1" || body["message"] != "Call ended webhook processed" {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
	if rig.calls.got.DurationSeconds != 42 || rig.calls.got.EndedReason != "hangup" {
		t.Fatalf("unexpected completion %+v", rig.calls.got)
	}

	flat := `{"call":{"id":"call-2"},"transcript":"flat transcript","durationSeconds":10}`
	rig.do(http.MethodPost, "/vapi/call-ended", "application/json", flat)
	if rig.calls.got.CallID != "call-2" || rig.calls.got.Transcript != "flat transcript" {
		t.Fatalf("flat payload not parsed: %+v", rig.calls.got)
	}
}

func TestCallEndedIgnoresStatusUpdates(t *testing.T) {
	rig := newRig()

	w := rig.do(http.MethodPost, "/vapi/call-ended", "application/json", `{"message":{"type":"status-update","call":{"id":"call-1"}}}`)
	body := decode(t, w)
	if w.Code != http.StatusOK || body["success"] != true || body["processed"] != false {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
	if rig.calls.got.CallID != "" {
		t.Fatalf("status update must not complete the call, got %+v", rig.calls.got)
	}
}

func TestNewOrderValidatesPhone(t *testing.T) {
	rig := newRig()

	w := rig.do(http.MethodPost, "/orders/new", "application/json", `{"customer_phone":"12","order_id":"A100"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad phone, got %d", w.Code)
	}

	w = rig.do(http.MethodPost, "/orders/new", "application/json", `{"customer_phone":"+16502530000","customer_name":"Jane","order_id":"A100","store_name":"Store 12"}`)
	body := decode(t, w)
	if w.Code != http.StatusOK || body["order_id"] != "A100" || body["sms_sid"] != "SM1" {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
	if rig.lifecycle.input.StoreName != "Store 12" {
		t.Fatalf("input not forwarded: %+v", rig.lifecycle.input)
	}
}

func TestNewOrderUpstreamFailure(t *testing.T) {
	rig := newRig()
	rig.lifecycle.newErr = apperr.Upstream("failed to send opt-in request", errors.New("twilio 400"))

	w := rig.do(http.MethodPost, "/orders/new", "application/json", `{"customer_phone":"+16502530000","order_id":"A100"}`)
	body := decode(t, w)
	if w.Code != http.StatusBadGateway || body["success"] != false {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
}

func TestReadyForPickupReportsMissingOptIn(t *testing.T) {
	rig := newRig()
	payload := `{"customer_phone":"+16502530000","order_id":"A100"}`

	w := rig.do(http.MethodPost, "/orders/ready", "application/json", payload)
	body := decode(t, w)
	if w.Code != http.StatusOK || body["success"] != false || body["message"] != "Customer not opted in" {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}

	rig.lifecycle.notified = true
	body = decode(t, rig.do(http.MethodPost, "/orders/ready", "application/json", payload))
	if body["success"] != true || body["sms_sid"] != "SM2" {
		t.Fatalf("unexpected response %v", body)
	}
}

func TestResetOptInNotFound(t *testing.T) {
	rig := newRig()
	w := rig.do(http.MethodPost, "/api/reset-optin/+16502539999", "", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	w = rig.do(http.MethodPost, "/api/reset-optin/+16502530000", "", "")
	body := decode(t, w)
	customer, _ := body["customer"].(map[string]any)
	if w.Code != http.StatusOK || customer["name"] != "Jane" {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
}

func TestCallArchiveLinkDisabled(t *testing.T) {
	rig := newRig()
	if w := rig.do(http.MethodGet, "/api/calls/call-1/archive", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without archive, got %d", w.Code)
	}
}

func TestCallTranscript(t *testing.T) {
	rig := newRigWithArchive(&fakeArchive{records: map[string]archive.Record{
		"call-1": {CallID: "call-1", Transcript: "Manager: on my way", DurationSeconds: 42},
	}})

	w := rig.do(http.MethodGet, "/api/calls/call-1/transcript", "", "")
	body := decode(t, w)
	call, _ := body["call"].(map[string]any)
	if w.Code != http.StatusOK || call["transcript"] != "Manager: on my way" {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}

	if w := rig.do(http.MethodGet, "/api/calls/call-2/transcript", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unarchived call, got %d", w.Code)
	}
	if w := rig.do(http.MethodGet, "/api/calls/a..b/transcript", "", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid call id, got %d", w.Code)
	}
	if w := newRig().do(http.MethodGet, "/api/calls/call-1/transcript", "", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without archive, got %d", w.Code)
	}
}
