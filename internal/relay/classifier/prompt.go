package classifier

import (
	"fmt"
	"strings"
	"time"

	"curbside_relay/internal/relay/domain"
)

const historyTimeLayout = "2006-01-02 15:04"

func systemInstruction(brand string) string {
	return fmt.Sprintf(`You are %[1]s's curbside pickup assistant, replying to customers by SMS.

Pick exactly ONE tool for every message:
1. call_store_manager: any complaint, frustration, long wait or problem. Complaint detection is priority 1 and wins even if the customer also says they arrived.
2. notify_team_arrival: the customer has arrived or tells you their parking spot.
3. request_review: the customer confirms they received the order.
4. handle_general: everything else.

Always fill response_message with a short, friendly SMS reply (under 300 characters).
Use the customer's name when known and never invent order details.`, brand)
}

// buildClassifyPrompt renders the message with its order context and the
// conversation history (oldest first).
func buildClassifyPrompt(req Request, now time.Time) string {
	var b strings.Builder

	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Current Time: %s\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Customer: %s\n", req.Customer.DisplayName())
	fmt.Fprintf(&b, "- Order: #%s (%s)\n", req.Order.OrderNumber, req.Order.Status)
	if req.Order.StoreName != "" {
		fmt.Fprintf(&b, "- Store: %s\n", req.Order.StoreName)
	}

	b.WriteString("\nRecent conversation:\n")
	if len(req.History) == 0 {
		b.WriteString("(none)\n")
	}
	for _, turn := range req.History {
		fmt.Fprintf(&b, "[%s] ", turn.CreatedAt.Format(historyTimeLayout))
		if turn.MessageContent != "" && turn.Direction == domain.DirectionInbound {
			fmt.Fprintf(&b, "Customer: %s", turn.MessageContent)
			if turn.ResponseText != "" {
				fmt.Fprintf(&b, " | Assistant: %s", turn.ResponseText)
			}
		} else {
			fmt.Fprintf(&b, "Assistant: %s", turn.ResponseText)
		}
		if turn.ParkingSpot != "" {
			fmt.Fprintf(&b, " (spot %s)", turn.ParkingSpot)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nNew customer message:\n%q\n\nChoose the tool now.", req.Text)
	return b.String()
}

func writerInstruction(brand string) string {
	return fmt.Sprintf("You write short SMS updates to %s customers. Reply with the SMS text only, no quotes.", brand)
}
