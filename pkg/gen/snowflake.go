package gen

import (
	"fmt"

	"outreach-controlplane/pkg/config"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("snowflake", fx.Provide(NewNode))

// NewNode returns the snowflake node used for every primary key. Each
// replica needs its own PLATFORM.NODE_ID to keep ids unique.
func NewNode(cfg *config.Config) (*snowflake.Node, error) {
	node, err := snowflake.NewNode(cfg.Platform.NodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", cfg.Platform.NodeID, err)
	}
	zap.L().Info("[Snowflake] node ready", zap.Int64("node_id", cfg.Platform.NodeID))
	return node, nil
}
