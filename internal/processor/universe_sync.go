package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"autotrader/internal/core"
	"autotrader/internal/universe"
)

// UniverseSync handles ASSET_UNIVERSE_SYNC work items by refreshing the
// tradable-universe cache.
type UniverseSync struct {
	universe *universe.Universe
	logger   core.ILogger
}

// NewUniverseSync creates the ASSET_UNIVERSE_SYNC processor
func NewUniverseSync(uni *universe.Universe, logger core.ILogger) *UniverseSync {
	return &UniverseSync{
		universe: uni,
		logger:   logger.WithField("component", "universe_sync_processor"),
	}
}

func (p *UniverseSync) Type() core.WorkItemType { return core.WorkItemAssetUniverseSync }

func (p *UniverseSync) Process(ctx context.Context, item *core.WorkItem) (string, error) {
	var payload UniverseSyncPayload
	if len(item.Payload) > 0 {
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return "", fmt.Errorf("validation failed: malformed ASSET_UNIVERSE_SYNC payload: %w", err)
		}
	}

	count, err := p.universe.Refresh(ctx, payload.AssetClass)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("universe refreshed, %d tradable symbols", count), nil
}
