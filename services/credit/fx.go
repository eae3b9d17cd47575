package credit

import (
	"outreach-controlplane/pkg/config"
	"outreach-controlplane/pkg/server"

	"go.uber.org/fx"
)

var Module = fx.Module("credit.service",
	fx.Provide(
		NewService,
		func(s *Service) Gate { return s },
		server.AsRoute(newHandler),
	),
)

func newHandler(cfg *config.Config, svc *Service) *Handler {
	return NewHandler(svc, cfg.Credits.AdminToken)
}
