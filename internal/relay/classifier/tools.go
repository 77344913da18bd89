package classifier

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/adk/tool"
	"google.golang.org/adk/tool/functiontool"

	"curbside_relay/internal/relay/domain"
)

// Tool names offered to the model. Each maps to exactly one action kind.
const (
	toolNotifyArrival   = "notify_team_arrival"
	toolCallManager     = "call_store_manager"
	toolRequestReview   = "request_review"
	toolHandleGeneral   = "handle_general"
	errMsgMissingReply  = "response_message is required"
	errMsgAlreadyChosen = "an action was already chosen for this message"
)

var errNoActionChosen = errors.New("classifier: model did not choose an action")

type NotifyArrivalInput struct {
	ParkingSpot     string `json:"parking_spot"`
	ResponseMessage string `json:"response_message"`
	Sentiment       string `json:"sentiment,omitempty"`
}

type CallManagerInput struct {
	ComplaintReason string `json:"complaint_reason"`
	ParkingSpot     string `json:"parking_spot,omitempty"`
	ResponseMessage string `json:"response_message"`
	Sentiment       string `json:"sentiment,omitempty"`
}

type RequestReviewInput struct {
	ResponseMessage string `json:"response_message"`
	Sentiment       string `json:"sentiment,omitempty"`
}

type HandleGeneralInput struct {
	ResponseMessage string `json:"response_message"`
	Sentiment       string `json:"sentiment,omitempty"`
}

type ToolOutput struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ToolDeps captures the action chosen in each run, keyed by agent session.
type ToolDeps struct {
	mu      sync.RWMutex
	actions map[string]domain.Action
}

func newToolDeps() *ToolDeps {
	return &ToolDeps{actions: map[string]domain.Action{}}
}

// Forget drops the action recorded for sessionID.
func (d *ToolDeps) Forget(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.actions, sessionID)
}

// record stores the first valid action of a run. Later calls are rejected so
// one message resolves to exactly one action.
func (d *ToolDeps) record(sessionID string, action domain.Action) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.actions[sessionID]; ok {
		return errors.New(errMsgAlreadyChosen)
	}
	d.actions[sessionID] = action
	return nil
}

func (d *ToolDeps) Result(sessionID string) (domain.Action, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	action, ok := d.actions[sessionID]
	return action, ok
}

func buildAction(kind domain.ActionKind, response, sentiment string) (domain.Action, error) {
	if strings.TrimSpace(response) == "" {
		return domain.Action{}, errors.New(errMsgMissingReply)
	}
	action, err := domain.NewAction(kind, response)
	if err != nil {
		return domain.Action{}, err
	}
	if strings.TrimSpace(sentiment) != "" {
		action.Sentiment = domain.ParseSentiment(sentiment)
	}
	return action, nil
}

func accept(deps *ToolDeps, sessionID string, action domain.Action, err error) (ToolOutput, error) {
	if err != nil {
		return ToolOutput{Success: false, Message: err.Error()}, err
	}
	if err := deps.record(sessionID, action); err != nil {
		return ToolOutput{Success: false, Message: err.Error()}, err
	}
	return ToolOutput{Success: true, Message: fmt.Sprintf("%s recorded", action.Kind)}, nil
}

func createNotifyArrivalTool(deps *ToolDeps) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name:        toolNotifyArrival,
		Description: "Use when the customer says they have arrived or gives the parking spot they are waiting in. Only when there is no complaint in the message.",
	}, func(ctx tool.Context, input NotifyArrivalInput) (ToolOutput, error) {
		action, err := buildAction(domain.ActionArrival, input.ResponseMessage, input.Sentiment)
		action.ParkingSpot = normalizeSpot(input.ParkingSpot)
		return accept(deps, ctx.SessionID(), action, err)
	})
}

func createCallManagerTool(deps *ToolDeps) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name:        toolCallManager,
		Description: "Use for ANY complaint, frustration, long wait or problem. Takes priority over every other tool, even when the customer also mentions arriving.",
	}, func(ctx tool.Context, input CallManagerInput) (ToolOutput, error) {
		action, err := buildAction(domain.ActionComplaint, input.ResponseMessage, input.Sentiment)
		action.ComplaintReason = strings.TrimSpace(input.ComplaintReason)
		action.ParkingSpot = normalizeSpot(input.ParkingSpot)
		return accept(deps, ctx.SessionID(), action, err)
	})
}

func createRequestReviewTool(deps *ToolDeps) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name:        toolRequestReview,
		Description: "Use when the customer confirms they received their order.",
	}, func(ctx tool.Context, input RequestReviewInput) (ToolOutput, error) {
		action, err := buildAction(domain.ActionOrderReceived, input.ResponseMessage, input.Sentiment)
		return accept(deps, ctx.SessionID(), action, err)
	})
}

func createHandleGeneralTool(deps *ToolDeps) (tool.Tool, error) {
	return functiontool.New(functiontool.Config{
		Name:        toolHandleGeneral,
		Description: "Use for questions, greetings and anything that is not an arrival, complaint or order confirmation.",
	}, func(ctx tool.Context, input HandleGeneralInput) (ToolOutput, error) {
		action, err := buildAction(domain.ActionGeneral, input.ResponseMessage, input.Sentiment)
		return accept(deps, ctx.SessionID(), action, err)
	})
}

func buildTools(deps *ToolDeps) ([]tool.Tool, error) {
	builders := []func(*ToolDeps) (tool.Tool, error){
		createNotifyArrivalTool,
		createCallManagerTool,
		createRequestReviewTool,
		createHandleGeneralTool,
	}

	tools := make([]tool.Tool, 0, len(builders))
	var errs []error
	for _, build := range builders {
		t, err := build(deps)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		tools = append(tools, t)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return tools, nil
}

// normalizeSpot strips filler such as "spot" or "#" from a parking spot.
func normalizeSpot(raw string) string {
	spot := strings.TrimSpace(raw)
	lower := strings.ToLower(spot)
	for _, prefix := range []string{"parking spot", "spot", "space", "stall", "no.", "#"} {
		if strings.HasPrefix(lower, prefix) {
			spot = strings.TrimSpace(spot[len(prefix):])
			lower = strings.ToLower(spot)
		}
	}
	return strings.TrimPrefix(spot, "#")
}
