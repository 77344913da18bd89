// Package relay provides the curbside conversation bounded context module.
package relay

import (
	"curbside_relay/internal/archive"
	apphttp "curbside_relay/internal/http"
	"curbside_relay/internal/relay/handler"
	"curbside_relay/internal/relay/service"
	"curbside_relay/platform/logger"
	"curbside_relay/platform/validator"
)

// Module is the relay bounded context module implementing http.Module.
type Module struct {
	handler      *handler.Handler
	orchestrator *service.Orchestrator
	voice        *service.VoiceBridge
	lifecycle    *service.Lifecycle
}

// NewModule wires the relay services from shared dependencies. calls may be
// nil when the transcript archive is disabled.
func NewModule(deps service.Deps, calls *archive.CallArchive, val *validator.Validator, log *logger.Logger) *Module {
	if calls != nil {
		deps.Archive = calls
	}
	voice := service.NewVoiceBridge(deps)
	orchestrator := service.NewOrchestrator(deps, voice)
	lifecycle := service.NewLifecycle(deps)

	var archived handler.CallArchive
	if calls != nil {
		archived = calls
	}

	return &Module{
		handler:      handler.New(orchestrator, voice, lifecycle, archived, val, log),
		orchestrator: orchestrator,
		voice:        voice,
		lifecycle:    lifecycle,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "relay"
}

// VoiceBridge runs scheduled follow-ups.
func (m *Module) VoiceBridge() *service.VoiceBridge {
	return m.voice
}

// RegisterRoutes mounts relay routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Providers.POST("/webhook/sms", m.handler.InboundSMS)
	ctx.Providers.POST("/vapi/call-ended", m.handler.CallEnded)
	ctx.Webhooks.POST("/orders/new", m.handler.NewOrder)
	ctx.Webhooks.POST("/orders/ready", m.handler.ReadyForPickup)

	ctx.API.POST("/send-sms", m.handler.SendSMS)
	ctx.API.POST("/reset-optin/:phone", m.handler.ResetOptIn)
	ctx.API.GET("/calls/:callId/archive", m.handler.CallArchiveLink)
	ctx.API.GET("/calls/:callId/transcript", m.handler.CallTranscript)
}
