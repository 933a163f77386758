package universe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/core"
	"autotrader/internal/mock"
	"autotrader/pkg/logging"
)

func TestUniverse_RefreshFiltersNonTradable(t *testing.T) {
	broker := mock.NewBroker()
	broker.SetAssets(
		&core.Asset{Symbol: "AAPL", Class: "us_equity", Tradable: true, Fractionable: true},
		&core.Asset{Symbol: "HALTED", Class: "us_equity", Tradable: false},
	)

	uni := NewUniverse(broker, nil, logging.NewNopLogger(), 0)
	assert.True(t, uni.Stale(), "a never-refreshed universe is stale")

	count, err := uni.Refresh(context.Background(), "us_equity")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 1, uni.Count())

	assert.True(t, uni.IsTradable("AAPL"))
	assert.False(t, uni.IsTradable("HALTED"))
	assert.False(t, uni.Stale())

	asset := uni.Get("AAPL")
	require.NotNil(t, asset)
	assert.True(t, asset.Fractionable)
	assert.Nil(t, uni.Get("HALTED"))
}

func TestUniverse_FailedRefreshKeepsCache(t *testing.T) {
	broker := mock.NewBroker()
	broker.SetAssets(&core.Asset{Symbol: "AAPL", Tradable: true})

	uni := NewUniverse(broker, nil, logging.NewNopLogger(), 0)
	_, err := uni.Refresh(context.Background(), "")
	require.NoError(t, err)

	broker.SetAssetsError(context.DeadlineExceeded)
	_, err = uni.Refresh(context.Background(), "")
	require.Error(t, err)
	assert.True(t, uni.IsTradable("AAPL"))
}

type frozenClock struct{ now time.Time }

func (c *frozenClock) Now() time.Time { return c.now }

func TestUniverse_TTLStaleness(t *testing.T) {
	broker := mock.NewBroker()
	broker.SetAssets(&core.Asset{Symbol: "AAPL", Tradable: true})

	clock := &frozenClock{now: time.Now()}
	uni := NewUniverse(broker, clock, logging.NewNopLogger(), time.Hour)

	_, err := uni.Refresh(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, uni.Stale())

	clock.now = clock.now.Add(2 * time.Hour)
	assert.True(t, uni.Stale())
}
