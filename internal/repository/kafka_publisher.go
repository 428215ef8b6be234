package repository

import (
	"context"

	"SmartTrader/internal/domain/models"
	domrepo "SmartTrader/internal/domain/repository"
)

// producer is satisfied by *pkg/kafka.Producer.
type producer interface {
	Publish(ctx context.Context, topic string, key []byte, value any) error
	Close() error
}

var _ domrepo.EventPublisher = (*KafkaPublisher)(nil)

// KafkaPublisher emits decisions and trade events keyed by symbol so each
// symbol's events stay ordered within a partition.
type KafkaPublisher struct {
	producer       producer
	decisionsTopic string
	tradesTopic    string
}

func NewKafkaPublisher(p producer, decisionsTopic, tradesTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, decisionsTopic: decisionsTopic, tradesTopic: tradesTopic}
}

func (p *KafkaPublisher) PublishDecision(ctx context.Context, rec *models.DecisionRecord) error {
	return p.producer.Publish(ctx, p.decisionsTopic, []byte(rec.Symbol), rec)
}

func (p *KafkaPublisher) PublishTradeEvent(ctx context.Context, ev *models.TradeEvent) error {
	return p.producer.Publish(ctx, p.tradesTopic, []byte(ev.Symbol), ev)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopPublisher is used when no message bus is configured.
type NopPublisher struct{}

func (NopPublisher) PublishDecision(context.Context, *models.DecisionRecord) error { return nil }
func (NopPublisher) PublishTradeEvent(context.Context, *models.TradeEvent) error   { return nil }
func (NopPublisher) Close() error                                                  { return nil }
