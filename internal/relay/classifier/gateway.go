// Package classifier resolves inbound customer messages to one of the fixed
// pickup actions by letting an LLM agent pick exactly one tool.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"curbside_relay/internal/relay/domain"
	"curbside_relay/platform/ai/openai"
	"curbside_relay/platform/config"
	"curbside_relay/platform/logger"
)

// Request is everything the classifier sees for one inbound message.
type Request struct {
	Text     string
	Customer domain.Customer
	Order    domain.Order
	// History holds recent turns, oldest first.
	History []domain.Turn
}

// Gateway wraps two agents: one that must resolve a message to a single
// action tool, and a tool-less writer used for free-form SMS text.
type Gateway struct {
	sessionService session.Service
	classifyRunner *runner.Runner
	writerRunner   *runner.Runner
	toolDeps       *ToolDeps
	log            *logger.Logger
	now            func() time.Time
}

const (
	classifyAppName = "curbside_classifier"
	writerAppName   = "curbside_writer"
)

// New builds a gateway backed by an OpenAI-compatible chat model.
func New(cfg config.AIConfig, brand string, log *logger.Logger) (*Gateway, error) {
	toolModel := openai.NewModel(openai.Config{
		APIKey:      cfg.GetAIAPIKey(),
		BaseURL:     cfg.GetAIBaseURL(),
		Model:       cfg.GetAIModel(),
		RequireTool: true,
	})
	textModel := openai.NewModel(openai.Config{
		APIKey:  cfg.GetAIAPIKey(),
		BaseURL: cfg.GetAIBaseURL(),
		Model:   cfg.GetAIModel(),
	})
	return NewWithModels(toolModel, textModel, brand, log)
}

// NewWithModels builds a gateway from explicit models.
func NewWithModels(toolModel, textModel model.LLM, brand string, log *logger.Logger) (*Gateway, error) {
	g := &Gateway{
		sessionService: session.InMemoryService(),
		toolDeps:       newToolDeps(),
		log:            log,
		now:            time.Now,
	}

	tools, err := buildTools(g.toolDeps)
	if err != nil {
		return nil, fmt.Errorf("failed to build classifier tools: %w", err)
	}

	classifyAgent, err := llmagent.New(llmagent.Config{
		Name:        "PickupClassifier",
		Model:       toolModel,
		Description: "Resolves a curbside pickup SMS to exactly one business action.",
		Instruction: systemInstruction(brand),
		Tools:       tools,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier agent: %w", err)
	}

	writerAgent, err := llmagent.New(llmagent.Config{
		Name:        "PickupWriter",
		Model:       textModel,
		Description: "Writes short customer-facing SMS updates.",
		Instruction: writerInstruction(brand),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create writer agent: %w", err)
	}

	g.classifyRunner, err = runner.New(runner.Config{
		AppName:        classifyAppName,
		Agent:          classifyAgent,
		SessionService: g.sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create classifier runner: %w", err)
	}

	g.writerRunner, err = runner.New(runner.Config{
		AppName:        writerAppName,
		Agent:          writerAgent,
		SessionService: g.sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create writer runner: %w", err)
	}

	return g, nil
}

// Classify returns exactly one action or an error. Callers substitute
// domain.FallbackGeneral on error.
func (g *Gateway) Classify(ctx context.Context, req Request) (domain.Action, error) {
	sessionID := uuid.NewString()
	defer g.toolDeps.Forget(sessionID)

	chosen := func() bool {
		_, ok := g.toolDeps.Result(sessionID)
		return ok
	}
	prompt := buildClassifyPrompt(req, g.now())
	if _, err := g.run(ctx, g.classifyRunner, classifyAppName, req.Order.CustomerPhone, sessionID, prompt, chosen); err != nil {
		return domain.Action{}, err
	}

	action, ok := g.toolDeps.Result(sessionID)
	if !ok {
		return domain.Action{}, errNoActionChosen
	}
	return action, nil
}

// Generate produces free-form text for prompt.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.run(ctx, g.writerRunner, writerAppName, "system", uuid.NewString(), prompt, nil)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("writer returned empty text")
	}
	return text, nil
}

// run executes one agent turn in the ephemeral session sessionID and returns
// the concatenated text output. When done reports true the run stops early.
func (g *Gateway) run(ctx context.Context, r *runner.Runner, appName, userID, sessionID, prompt string, done func() bool) (string, error) {
	if userID == "" {
		userID = "anonymous"
	}

	_, err := g.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer func() {
		if deleteErr := g.sessionService.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: sessionID,
		}); deleteErr != nil {
			g.log.Warn("failed to delete agent session", "app", appName, "error", deleteErr)
		}
	}()

	userMessage := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: prompt}},
	}
	runConfig := agent.RunConfig{StreamingMode: agent.StreamingModeNone}

	var output strings.Builder
	for event, err := range r.Run(ctx, userID, sessionID, userMessage, runConfig) {
		if err != nil {
			return "", fmt.Errorf("%s run failed: %w", appName, err)
		}
		if event.Content != nil {
			for _, part := range event.Content.Parts {
				if part != nil {
					output.WriteString(part.Text)
				}
			}
		}
		if done != nil && done() {
			break
		}
	}
	return output.String(), nil
}
