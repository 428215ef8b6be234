package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SmartTrader/internal/domain/models"
	"SmartTrader/pkg/cache"
)

func TestCacheStateStore(t *testing.T) {
	ctx := context.Background()
	mc := cache.NewMemoryCache()
	defer mc.Close()
	s := NewCacheStateStore(mc, time.Hour)

	snap, err := s.LoadAccount(ctx, "BTCTMN")
	require.NoError(t, err)
	assert.Nil(t, snap)

	side := models.SideShort
	require.NoError(t, s.SaveAccount(ctx, &models.AccountSnapshot{Symbol: "BTCTMN", Equity: 5, Balance: 4, PositionSide: &side}))
	snap, err = s.LoadAccount(ctx, "BTCTMN")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 5.0, snap.Equity)
	assert.Equal(t, models.SideShort, *snap.PositionSide)

	require.NoError(t, s.SaveLastDecision(ctx, &models.DecisionRecord{Symbol: "BTCTMN", Decision: models.ActionSell}))
	rec, err := s.LoadLastDecision(ctx, "BTCTMN")
	require.NoError(t, err)
	assert.Equal(t, models.ActionSell, rec.Decision)

	ok, err := s.AcquireLock(ctx, "BTCTMN", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = s.AcquireLock(ctx, "BTCTMN", time.Minute)
	assert.False(t, ok)
	require.NoError(t, s.RefreshLock(ctx, "BTCTMN", time.Minute))
	ok, _ = s.AcquireLock(ctx, "BTCTMN", time.Minute)
	assert.False(t, ok, "refresh keeps the lock held")
	require.NoError(t, s.ReleaseLock(ctx, "BTCTMN"))
	ok, _ = s.AcquireLock(ctx, "BTCTMN", time.Minute)
	assert.True(t, ok)
}

type fakeProducer struct {
	topics []string
	keys   []string
	err    error
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, _ any) error {
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, string(key))
	return f.err
}

func (f *fakeProducer) Close() error { return nil }

func TestKafkaPublisherRoutesTopics(t *testing.T) {
	ctx := context.Background()
	fp := &fakeProducer{}
	p := NewKafkaPublisher(fp, "decisions", "trades")

	require.NoError(t, p.PublishDecision(ctx, &models.DecisionRecord{Symbol: "BTCTMN"}))
	require.NoError(t, p.PublishTradeEvent(ctx, &models.TradeEvent{Symbol: "ETHTMN"}))
	assert.Equal(t, []string{"decisions", "trades"}, fp.topics)
	assert.Equal(t, []string{"BTCTMN", "ETHTMN"}, fp.keys)

	fp.err = errors.New("down")
	assert.Error(t, p.PublishDecision(ctx, &models.DecisionRecord{}))
	assert.NoError(t, NopPublisher{}.PublishDecision(ctx, nil))
}
