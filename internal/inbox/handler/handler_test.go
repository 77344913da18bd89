package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"curbside_relay/internal/inbox/repository"
	"curbside_relay/internal/inbox/service"
	"curbside_relay/internal/inbox/transport"
	"curbside_relay/platform/validator"
)

type stubReader struct {
	phone string
	page  transport.PageRequest
}

func (s *stubReader) ListConversations(_ context.Context, page transport.PageRequest) (transport.ConversationListResponse, error) {
	s.page = page
	return transport.ConversationListResponse{Conversations: []transport.ConversationResponse{}}, nil
}

func (s *stubReader) Messages(_ context.Context, phone string, page transport.PageRequest) (transport.MessageListResponse, error) {
	s.phone, s.page = phone, page
	return transport.MessageListResponse{Phone: phone}, nil
}

func (s *stubReader) ListCustomers(context.Context) ([]transport.CustomerSummaryResponse, error) {
	return []transport.CustomerSummaryResponse{}, nil
}

func (s *stubReader) CustomerProfile(context.Context, string) (transport.CustomerProfileResponse, error) {
	return transport.CustomerProfileResponse{}, nil
}

func (s *stubReader) Stats(context.Context) (transport.StatsResponse, error) {
	return transport.StatsResponse{Source: transport.SourceName}, nil
}

func (s *stubReader) Search(ctx context.Context, req transport.SearchRequest) (transport.SearchResponse, error) {
	// Exercise the real query validation.
	return service.New(&emptyRepo{}).Search(ctx, req)
}

type emptyRepo struct {
	repository.Reader
}

func (emptyRepo) Search(context.Context, string, int, int) ([]repository.SearchHit, error) {
	return nil, nil
}

func newEngine(reader Reader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := New(reader, validator.New())
	r := gin.New()
	r.GET("/api/conversations", h.ListConversations)
	r.GET("/api/conversations/:phone/messages", h.Messages)
	r.GET("/api/stats", h.Stats)
	r.GET("/api/search", h.Search)
	return r
}

func get(t *testing.T, r *gin.Engine, path string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return w.Code, body
}

func TestSearchRejectsShortQuery(t *testing.T) {
	r := newEngine(&stubReader{})

	code, body := get(t, r, "/api/search?q=a")
	if code != http.StatusBadRequest || body["success"] != false || body["error"] != "Search query must be at least 2 characters" {
		t.Fatalf("unexpected response %d %v", code, body)
	}

	code, body = get(t, r, "/api/search?q=spot")
	if code != http.StatusOK || body["success"] != true || body["query"] != "spot" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
}

func TestMessagesNormalizesPhoneAndBindsPage(t *testing.T) {
	reader := &stubReader{}
	r := newEngine(reader)

	code, body := get(t, r, "/api/conversations/6502530000/messages?limit=20&offset=40")
	if code != http.StatusOK || body["phone"] != "+16502530000" {
		t.Fatalf("unexpected response %d %v", code, body)
	}
	if reader.page.Limit != 20 || reader.page.Offset != 40 {
		t.Fatalf("page not bound: %+v", reader.page)
	}
}

func TestListRejectsInvalidPage(t *testing.T) {
	r := newEngine(&stubReader{})
	if code, _ := get(t, r, "/api/conversations?offset=-1"); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative offset, got %d", code)
	}
	if code, _ := get(t, r, "/api/conversations?limit=abc"); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric limit, got %d", code)
	}
}

func TestStatsEnvelope(t *testing.T) {
	code, body := get(t, newEngine(&stubReader{}), "/api/stats")
	if code != http.StatusOK || body["success"] != true || body["platform"] != transport.SourceName {
		t.Fatalf("unexpected response %d %v", code, body)
	}
}
