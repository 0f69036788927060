package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"spcguard/internal/config"
	"spcguard/internal/model"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher sends one message per created alert, keyed by parameter so
// a consumer sees each parameter's alerts in order.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
}

type alertEvent struct {
	Event string      `json:"event"`
	Alert model.Alert `json:"alert"`
}

func NewKafkaPublisher(cfg config.PublishConfig, logger *slog.Logger) *KafkaPublisher {
	if logger != nil {
		logger.Info("alert publishing enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, alerts []model.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	msgs, err := buildMessages(alerts)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d alerts: %w", len(msgs), err)
	}
	if p.logger != nil {
		p.logger.Debug("alerts published", "count", len(msgs))
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessages(alerts []model.Alert) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(alerts))
	for _, a := range alerts {
		value, err := json.Marshal(alertEvent{Event: "alert_created", Alert: a})
		if err != nil {
			return nil, fmt.Errorf("encode alert %s: %w", a.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(a.ParameterID),
			Value: value,
			Time:  a.CreatedAt,
			Headers: []kafka.Header{
				{Key: "alert_type", Value: []byte(a.Kind)},
			},
		})
	}
	return msgs, nil
}
