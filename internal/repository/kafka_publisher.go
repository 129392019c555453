package repository

import (
	"context"
	"fmt"

	"FieldScan/internal/domain/models"
	pkgkafka "FieldScan/pkg/kafka"
)

// BatchProducer is the subset of *pkgkafka.Producer used here.
type BatchProducer interface {
	PublishBatch(ctx context.Context, topic string, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher publishes each ticker's signals and trades keyed by ticker,
// so a hash balancer keeps one ticker's records ordered.
type KafkaPublisher struct {
	producer     BatchProducer
	signalsTopic string
	tradesTopic  string
}

func NewKafkaPublisher(producer BatchProducer, signalsTopic, tradesTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, signalsTopic: signalsTopic, tradesTopic: tradesTopic}
}

// SignalEvent is the wire form of a signal record.
type SignalEvent struct {
	Type   string        `json:"type"`
	Signal models.Signal `json:"signal"`
}

// TradeEvent is the wire form of a resolved trade.
type TradeEvent struct {
	Type  string               `json:"type"`
	Trade models.ResolvedTrade `json:"trade"`
}

func (p *KafkaPublisher) Publish(ctx context.Context, result models.TickerResult) error {
	key := []byte(result.Ticker)

	if len(result.Signals) > 0 {
		msgs := make([]pkgkafka.Message, len(result.Signals))
		for i, s := range result.Signals {
			s.Snapshot = s.Snapshot.Sanitized()
			msgs[i] = pkgkafka.Message{Key: key, Value: SignalEvent{Type: "signal", Signal: s}}
		}
		if err := p.producer.PublishBatch(ctx, p.signalsTopic, msgs); err != nil {
			return fmt.Errorf("publish signals %s: %w", result.Ticker, err)
		}
	}
	if len(result.Trades) > 0 {
		msgs := make([]pkgkafka.Message, len(result.Trades))
		for i, t := range result.Trades {
			t.Snapshot = t.Snapshot.Sanitized()
			msgs[i] = pkgkafka.Message{Key: key, Value: TradeEvent{Type: "trade", Trade: t}}
		}
		if err := p.producer.PublishBatch(ctx, p.tradesTopic, msgs); err != nil {
			return fmt.Errorf("publish trades %s: %w", result.Ticker, err)
		}
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
