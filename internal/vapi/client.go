// Package vapi places outbound store manager calls through the Vapi API.
// Every business detail is embedded in the call request; the voice agent
// performs no lookups of its own.
package vapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"curbside_relay/platform/config"
	"curbside_relay/platform/logger"
)

var errMissingCallID = errors.New("voice provider returned no call id")

// EscalationContext is the business context read out to the manager.
type EscalationContext struct {
	Brand        string
	CustomerName string
	OrderNumber  string
	ParkingSpot  string
	StoreName    string
	Complaint    string
	Timestamp    time.Time
}

type Client struct {
	baseURL       string
	apiKey        string
	assistantID   string
	phoneNumberID string
	managerPhone  string
	callbackURL   string
	http          *http.Client
	log           *logger.Logger
}

type callRequest struct {
	AssistantID        string             `json:"assistantId"`
	PhoneNumberID      string             `json:"phoneNumberId"`
	Customer           callCustomer       `json:"customer"`
	AssistantOverrides assistantOverrides `json:"assistantOverrides"`
}

type callCustomer struct {
	Number string `json:"number"`
}

type assistantOverrides struct {
	FirstMessage string        `json:"firstMessage"`
	Model        overrideModel `json:"model"`
	ServerURL    string        `json:"serverUrl,omitempty"`
}

type overrideModel struct {
	Provider    string            `json:"provider"`
	Model       string            `json:"model"`
	Temperature float64           `json:"temperature"`
	Messages    []overrideMessage `json:"messages"`
}

type overrideMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type callResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func NewClient(cfg config.VoiceConfig, log *logger.Logger) *Client {
	return &Client{
		baseURL:       strings.TrimRight(cfg.GetVoiceBaseURL(), "/"),
		apiKey:        cfg.GetVoiceAPIKey(),
		assistantID:   cfg.GetVoiceAssistantID(),
		phoneNumberID: cfg.GetVoicePhoneNumberID(),
		managerPhone:  cfg.GetStoreManagerPhone(),
		callbackURL:   cfg.GetVoiceCallbackURL(),
		http:          &http.Client{Timeout: 15 * time.Second},
		log:           log,
	}
}

// CreateEscalationCall asks the provider to call the store manager and
// returns the external call id.
func (c *Client) CreateEscalationCall(ctx context.Context, esc EscalationContext) (string, error) {
	payload := c.buildRequest(esc)

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal call payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("voice request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("voice provider returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out callResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode call response: %w", err)
	}
	if strings.TrimSpace(out.ID) == "" {
		return "", errMissingCallID
	}

	c.log.Info("escalation call created", "call_id", out.ID, "order", esc.OrderNumber)
	return out.ID, nil
}

func (c *Client) buildRequest(esc EscalationContext) callRequest {
	return callRequest{
		AssistantID:   c.assistantID,
		PhoneNumberID: c.phoneNumberID,
		Customer:      callCustomer{Number: c.managerPhone},
		AssistantOverrides: assistantOverrides{
			FirstMessage: firstMessage(esc),
			Model: overrideModel{
				Provider:    "openai",
				Model:       "gpt-4",
				Temperature: 0.7,
				Messages:    []overrideMessage{{Role: "system", Content: systemPrompt(esc)}},
			},
			ServerURL: c.callbackURL,
		},
	}
}

func spotOrUnknown(spot string) string {
	if strings.TrimSpace(spot) == "" {
		return "unknown"
	}
	return spot
}

func firstMessage(esc EscalationContext) string {
	return fmt.Sprintf("Hi, this is %s's automated system calling about order %s for customer %s. They're currently waiting in parking spot %s and have reported an issue with their pickup. Can you help me check on their order status and provide an update?",
		esc.Brand, esc.OrderNumber, esc.CustomerName, spotOrUnknown(esc.ParkingSpot))
}

func systemPrompt(esc EscalationContext) string {
	return fmt.Sprintf(`You are %[1]s's automated customer service assistant calling the store manager about a curbside pickup issue.

CONTEXT:
- Customer Name: %[2]s
- Order Number: %[3]s
- Parking Spot: %[4]s
- Store Location: %[5]s
- Customer Complaint: %[6]s
- Timestamp: %[7]s

Your responsibilities:
1. Greet the store manager professionally
2. Explain you're calling about a customer pickup issue
3. Provide the order details and customer complaint (DO NOT mention phone numbers)
4. Ask for status update and estimated resolution time
5. Confirm the customer's parking spot location
6. Before ending the call, provide a brief summary of what will happen next
7. Thank them for their assistance

Never read out phone numbers. Be concise, professional and solution-focused.
Assume the manager is busy: only repeat yourself when you are unsure of their answer.
Always end with a summary of the resolution.`,
		esc.Brand, esc.CustomerName, esc.OrderNumber, spotOrUnknown(esc.ParkingSpot),
		esc.StoreName, esc.Complaint, esc.Timestamp.Format(time.RFC1123))
}
