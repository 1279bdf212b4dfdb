// Package approval provides the human approval gate module.
package approval

import (
	"acquisition_backend/internal/email"
	"acquisition_backend/internal/events"
	apphttp "acquisition_backend/internal/http"
	"acquisition_backend/platform/config"
	"acquisition_backend/platform/logger"
)

// Module wires the approval gate: store, service, operator notification,
// and HTTP surface.
type Module struct {
	handler *Handler
	Service *Service
	Signer  *LinkSigner
}

// NewModule creates the approval module with all dependencies wired.
func NewModule(store Store, bus events.Bus, cfg config.AuthConfig, sender email.Sender, log *logger.Logger) *Module {
	svc := NewService(store, bus, log)
	signer := NewLinkSigner(cfg)

	notifier := NewNotifier(sender, signer, cfg.GetOperatorEmail(), log)
	notifier.Subscribe(bus)

	return &Module{
		handler: NewHandler(svc, signer),
		Service: svc,
		Signer:  signer,
	}
}

// Name returns the module name for logging.
func (m *Module) Name() string {
	return "approvals"
}

// RegisterRoutes mounts the operator routes under /api/v1/approvals and
// the public one-click resolver under /api/v1.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/approvals")
	m.handler.RegisterRoutes(group)

	ctx.V1.GET("/approvals/resolve", m.handler.ResolveLink)
}

var _ apphttp.Module = (*Module)(nil)
