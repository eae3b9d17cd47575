package unipile

import (
	"outreach-controlplane/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("unipile.client",
	fx.Provide(NewFromConfig),
)

func NewFromConfig(cfg *config.Config) Client {
	if cfg.Unipile.BaseURL == "" {
		zap.L().Warn("[Unipile] UNIPILE.BASE_URL is empty, external calls will fail")
	}
	return NewHTTPClient(cfg.Unipile.BaseURL, cfg.Unipile.APIKey, cfg.Unipile.Timeout)
}
