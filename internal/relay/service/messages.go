package service

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"curbside_relay/internal/relay/domain"
)

const (
	affirmativeKeyword = "YES"
	maxPostCallLength  = 160
	unknownSpot        = "Unknown"
	fallbackCallUpdate = "Update from store manager about your order."
)

// Messages renders every customer and staff text for one brand.
type Messages struct {
	Brand     string
	ReviewURL string
}

func (m Messages) OptInRequest(orderNumber string) string {
	return fmt.Sprintf("%s: Thank you for order #%s!\n\nReply YES to receive pickup notifications and support for this order. Standard msg rates may apply.",
		m.Brand, orderNumber)
}

func (m Messages) OptInConfirmation() string {
	return "✅ You're now opted in for order notifications. Thank you!"
}

func (m Messages) ReadyForPickup(customerName, orderNumber, storeName string) string {
	return fmt.Sprintf("Hi %s! Your %s order #%s is ready.\n\nPark in a Pickup spot & reply: \"I'm in spot X\". We'll bring it out. %s",
		customerName, m.Brand, orderNumber, storeName)
}

func (m Messages) ArrivalAlert(orderNumber, spot, customerName string) string {
	return fmt.Sprintf("%s PICKUP ALERT: Customer arrived!\n\nOrder #%s,\nSpot %s,\nCustomer: %s",
		strings.ToUpper(m.Brand), orderNumber, orDefault(spot, unknownSpot), customerName)
}

func (m Messages) EscalationStartedAlert(customerName, orderNumber, spot, issue string) string {
	return fmt.Sprintf("🚨 %s ESCALATION - Calling Manager NOW!\nCustomer: %s\nOrder: #%s\nSpot: %s\n\nIssue: %s\nThis issue has been escalated and you are being contacted for resolution.",
		strings.ToUpper(m.Brand), customerName, orderNumber, orDefault(spot, unknownSpot), issue)
}

func (m Messages) ResolutionAlert(orderNumber, spot, customerName string, at time.Time) string {
	return fmt.Sprintf("🚨 %s ESCALATION - Manager Assigned/Call Ended!\nOrder: #%s\nSpot: %s\nCustomer: %s\nCall completed at: %s\nStatus: Resolved",
		strings.ToUpper(m.Brand), orderNumber, orDefault(spot, unknownSpot), customerName, at.Format(time.Kitchen))
}

func (m Messages) ReviewRequest(orderNumber string) string {
	return fmt.Sprintf("⭐ Thanks for choosing %s! Your order #%s has been completed. Please leave us a review: %s",
		m.Brand, orderNumber, m.ReviewURL)
}

func (m Messages) PostCallPrompt(orderNumber, transcript, summary string) string {
	return fmt.Sprintf(`Based on the store manager's call, write a customer update SMS.

Rules:
- Keep under %d characters
- Be specific about what the manager said
- Include order number #%s
- Sound professional but friendly

Call transcript: %q
Call summary: %q`, maxPostCallLength, orderNumber, transcript, summary)
}

// isAffirmative reports whether body is exactly the opt-in keyword.
func isAffirmative(body string) bool {
	return strings.EqualFold(strings.TrimSpace(body), affirmativeKeyword)
}

// truncateSMS bounds text to limit runes, cutting at the last space when possible.
func truncateSMS(text string, limit int) string {
	text = strings.TrimSpace(strings.Trim(strings.TrimSpace(text), `"`))
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)[:limit]
	cut := string(runes)
	if idx := strings.LastIndex(cut, " "); idx > limit/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func customerName(customer domain.Customer, order domain.Order) string {
	if strings.TrimSpace(customer.Name) != "" {
		return customer.Name
	}
	if strings.TrimSpace(order.CustomerName) != "" {
		return order.CustomerName
	}
	return customer.DisplayName()
}
