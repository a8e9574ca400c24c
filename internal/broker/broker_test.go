package broker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nepse-mock-trader/internal/service"
	"nepse-mock-trader/internal/store"
)

func testNATSConfig() *service.NATSConfig {
	return &service.NATSConfig{
		URL:           "nats://127.0.0.1:4222",
		ClientID:      "desk-1",
		SubjectPrefix: "nepse",
	}
}

func TestSubjectPrefix(t *testing.T) {
	np := NewNATSPublisher(testNATSConfig(), nil)
	assert.Equal(t, "nepse.collateral.updated", np.subject(SubjectCollateralUpdated))

	cfg := testNATSConfig()
	cfg.SubjectPrefix = ""
	np = NewNATSPublisher(cfg, nil)
	assert.Equal(t, "order.placed", np.subject(SubjectOrderPlaced))
}

func TestPublishWithoutConnection(t *testing.T) {
	np := NewNATSPublisher(testNATSConfig(), nil)

	assert.ErrorIs(t, np.PublishCollateral(CollateralEvent{}), ErrNotConnected)
	_, err := np.SubscribeCollateral(func(CollateralEvent) {})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NoError(t, np.Close())
}

func TestHandleCollateralFiltersOwnEvents(t *testing.T) {
	np := NewNATSPublisher(testNATSConfig(), nil)

	var got []CollateralEvent
	fn := func(e CollateralEvent) { got = append(got, e) }

	own, err := json.Marshal(CollateralEvent{Amount: decimal.NewFromInt(1), Version: 2, Origin: "desk-1"})
	require.NoError(t, err)
	other, err := json.Marshal(CollateralEvent{Amount: decimal.RequireFromString("49926000"), Version: 3, Origin: "cli"})
	require.NoError(t, err)

	np.handleCollateral(own, fn)
	np.handleCollateral([]byte("{not json"), fn)
	np.handleCollateral(other, fn)

	require.Len(t, got, 1)
	assert.Equal(t, int64(3), got[0].Version)
	assert.Equal(t, "49926000", got[0].Amount.String())
}

func TestCollateralEventBalance(t *testing.T) {
	now := time.Now()
	bal := store.Balance{Amount: decimal.NewFromInt(100), Version: 7, UpdatedAt: now}

	evt := NewCollateralEvent(bal, "cli")
	assert.Equal(t, "cli", evt.Origin)
	assert.Equal(t, bal, evt.Balance())
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.PublishOrder(SubjectOrderPlaced, OrderEvent{}))
	cancel, err := p.SubscribeCollateral(func(CollateralEvent) {})
	require.NoError(t, err)
	cancel()
	assert.NoError(t, p.Close())
}
