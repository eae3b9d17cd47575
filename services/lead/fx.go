package lead

import (
	"outreach-controlplane/pkg/config"
	"outreach-controlplane/pkg/server"

	"go.uber.org/fx"
)

var Module = fx.Module("lead.service",
	fx.Provide(
		NewStore,
		server.AsRoute(newHandler),
	),
)

func newHandler(cfg *config.Config, store Store, accounts AccountResolver) *Handler {
	return NewHandler(store, accounts, cfg.Unipile.WebhookSecret)
}
