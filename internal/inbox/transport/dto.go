// Package transport holds the request and response shapes of the dashboard
// read API.
package transport

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultConversationLimit = 50
	DefaultMessageLimit      = 100
	MinSearchLength          = 2

	SourceName  = "curbside"
	MessageSMS  = "sms"
	MessageCall = "voice_call"
)

// ConversationID is the stable identifier dashboards key a thread on.
func ConversationID(phone string) string {
	return SourceName + "_" + phone
}

// PageRequest is the limit/offset window shared by list endpoints. A zero
// limit means the endpoint default.
type PageRequest struct {
	Limit  int `form:"limit" validate:"min=0,max=500"`
	Offset int `form:"offset" validate:"min=0"`
}

type SearchRequest struct {
	Query  string `form:"q" validate:"max=200"`
	Limit  int    `form:"limit" validate:"min=0,max=500"`
	Offset int    `form:"offset" validate:"min=0"`
}

type Pagination struct {
	Limit  int  `json:"limit"`
	Offset int  `json:"offset"`
	Total  *int `json:"total,omitempty"`
}

type ConversationMetadata struct {
	CustomerID      uuid.UUID  `json:"customer_id"`
	OptedIn         bool       `json:"opted_in"`
	OptedInAt       *time.Time `json:"opted_in_at"`
	CustomerSince   time.Time  `json:"customer_since"`
	OrderNumber     *string    `json:"order_number"`
	StoreName       *string    `json:"store_name"`
	StoreAddress    *string    `json:"store_address"`
	OrderStatus     *string    `json:"order_status"`
	LastSentiment   *string    `json:"last_sentiment"`
	LastParkingSpot *string    `json:"last_parking_spot"`
}

type ConversationResponse struct {
	ConversationID     string               `json:"conversation_id"`
	DisplayName        string               `json:"display_name"`
	UserIdentifier     string               `json:"user_identifier"`
	LastMessageAt      *time.Time           `json:"last_message_at"`
	LastMessageContent string               `json:"last_message_content"`
	Source             string               `json:"source"`
	MessageCount       int64                `json:"message_count"`
	Metadata           ConversationMetadata `json:"metadata"`
}

type ConversationListResponse struct {
	Conversations []ConversationResponse `json:"conversations"`
	TotalCount    int                    `json:"total_count"`
	Pagination    Pagination             `json:"pagination"`
}

// MessageResponse is one entry of a merged thread: an SMS turn or a voice call.
type MessageResponse struct {
	MessageID      string         `json:"message_id"`
	ConversationID string         `json:"conversation_id"`
	MessageContent string         `json:"message_content"`
	MessageRole    string         `json:"message_role"`
	MessageType    string         `json:"message_type"`
	CreatedAt      time.Time      `json:"created_at"`
	Source         string         `json:"source"`
	Details        map[string]any `json:"function_data"`
	Metadata       map[string]any `json:"metadata"`
}

type MessageListResponse struct {
	Phone          string            `json:"phone"`
	Messages       []MessageResponse `json:"messages"`
	TotalCount     int               `json:"total_count"`
	SMSCount       int               `json:"sms_count"`
	VoiceCallCount int               `json:"voice_call_count"`
	Pagination     Pagination        `json:"pagination"`
}

type CustomerResponse struct {
	ID        uuid.UUID  `json:"id"`
	Phone     string     `json:"phone"`
	Name      string     `json:"name"`
	OptedIn   bool       `json:"opted_in"`
	OptedInAt *time.Time `json:"opted_in_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CustomerSummaryResponse struct {
	CustomerResponse
	TotalOrders   int64      `json:"total_orders"`
	LastOrderDate *time.Time `json:"last_order_date"`
}

type OrderResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderNumber   string    `json:"order_number"`
	CustomerPhone string    `json:"customer_phone"`
	CustomerName  string    `json:"customer_name"`
	StoreName     string    `json:"store_name"`
	StoreAddress  string    `json:"store_address"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type ConversationStatsResponse struct {
	TotalMessages       int64      `json:"total_messages"`
	InboundMessages     int64      `json:"inbound_messages"`
	PositiveMessages    int64      `json:"positive_messages"`
	NegativeMessages    int64      `json:"negative_messages"`
	LastConversationAt  *time.Time `json:"last_conversation_at"`
	FirstConversationAt *time.Time `json:"first_conversation_at"`
}

type CallStatsResponse struct {
	TotalCalls        int64      `json:"total_calls"`
	TotalCallDuration int64      `json:"total_call_duration"`
	LastCallAt        *time.Time `json:"last_call_at"`
}

type CustomerProfileResponse struct {
	Customer          CustomerResponse          `json:"customer"`
	Orders            []OrderResponse           `json:"orders"`
	ConversationStats ConversationStatsResponse `json:"conversation_stats"`
	CallStats         CallStatsResponse         `json:"call_stats"`
	ConversationID    string                    `json:"conversation_id"`
}

type CustomerCounts struct {
	Total   int64 `json:"total"`
	OptedIn int64 `json:"opted_in"`
	New24h  int64 `json:"new_24h"`
	New7d   int64 `json:"new_7d"`
}

type OrderCounts struct {
	Total     int64 `json:"total"`
	New       int64 `json:"new"`
	Ready     int64 `json:"ready"`
	Arrived   int64 `json:"arrived"`
	Completed int64 `json:"completed"`
	Orders24h int64 `json:"orders_24h"`
}

type ConversationCounts struct {
	Total             int64 `json:"total"`
	Inbound           int64 `json:"inbound"`
	PositiveSentiment int64 `json:"positive_sentiment"`
	NegativeSentiment int64 `json:"negative_sentiment"`
	Conversations24h  int64 `json:"conversations_24h"`
}

type CallCounts struct {
	Total         int64   `json:"total"`
	Completed     int64   `json:"completed"`
	TotalDuration int64   `json:"total_duration"`
	AvgDuration   float64 `json:"avg_duration"`
	Calls24h      int64   `json:"calls_24h"`
}

type StatsResponse struct {
	Source        string             `json:"platform"`
	Timestamp     time.Time          `json:"timestamp"`
	Customers     CustomerCounts     `json:"customers"`
	Orders        OrderCounts        `json:"orders"`
	Conversations ConversationCounts `json:"conversations"`
	VoiceCalls    CallCounts         `json:"voice_calls"`
}

type SearchResult struct {
	ConversationID string    `json:"conversation_id"`
	CustomerName   *string   `json:"customer_name"`
	Phone          string    `json:"phone"`
	Content        string    `json:"content"`
	Response       string    `json:"ai_response"`
	CreatedAt      time.Time `json:"created_at"`
	OrderNumber    *string   `json:"order_number"`
	StoreName      *string   `json:"store_name"`
	OrderStatus    *string   `json:"order_status"`
	ResultType     string    `json:"result_type"`
	Source         string    `json:"source"`
}

type SearchResponse struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
	Pagination   Pagination     `json:"pagination"`
}
