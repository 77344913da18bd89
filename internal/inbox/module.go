// Package inbox provides the dashboard read API bounded context module.
package inbox

import (
	"github.com/jackc/pgx/v5/pgxpool"

	apphttp "curbside_relay/internal/http"
	"curbside_relay/internal/inbox/handler"
	"curbside_relay/internal/inbox/repository"
	"curbside_relay/internal/inbox/service"
	"curbside_relay/platform/validator"
)

// Module is the inbox bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates and initializes the inbox module.
func NewModule(pool *pgxpool.Pool, val *validator.Validator) *Module {
	svc := service.New(repository.New(pool))
	return &Module{handler: handler.New(svc, val)}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "inbox"
}

// RegisterRoutes mounts the read API on the authenticated /api group.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.API.GET("/conversations", m.handler.ListConversations)
	ctx.API.GET("/conversations/:phone/messages", m.handler.Messages)
	ctx.API.GET("/customers", m.handler.ListCustomers)
	ctx.API.GET("/customers/:phone", m.handler.CustomerProfile)
	ctx.API.GET("/stats", m.handler.Stats)
	ctx.API.GET("/search", m.handler.Search)
}
