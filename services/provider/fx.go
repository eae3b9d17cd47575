package provider

import (
	"outreach-controlplane/pkg/config"
	"outreach-controlplane/pkg/server"
	"outreach-controlplane/services/lead"

	"go.uber.org/fx"
)

var Module = fx.Module("provider.service",
	fx.Provide(
		NewService,
		asAccountResolver,
		server.AsRoute(newHandler),
	),
)

func asAccountResolver(s *Service) lead.AccountResolver {
	return s
}

func newHandler(cfg *config.Config, svc *Service) *Handler {
	return NewHandler(svc, cfg.Unipile.WebhookSecret)
}
