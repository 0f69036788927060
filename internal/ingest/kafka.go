package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"spcguard/internal/config"
	"spcguard/internal/metrics"
	"spcguard/internal/model"
	"spcguard/internal/normalize"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaConsumer reads measurement messages and commits each offset once
// its records have been handed to the engine channel.
type kafkaConsumer struct {
	reader messageReader
	cfg    *config.Manager
	parser *Parser
	out    chan<- model.Measurement
	logger *slog.Logger
}

func StartKafka(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.Measurement, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", current.Brokers, "topic", current.Topic, "group_id", current.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  current.Brokers,
		Topic:    current.Topic,
		GroupID:  current.GroupID,
		MinBytes: 1e3,
		MaxBytes: 10e6,
	})
	c := &kafkaConsumer{reader: reader, cfg: cfg, parser: parser, out: out, logger: logger}
	go c.run(ctx)
}

func (c *kafkaConsumer) run(ctx context.Context) {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if c.logger != nil {
				c.logger.Warn("kafka fetch error", "err", err)
			}
			if !BackoffSleep(ctx, 0) {
				return
			}
			continue
		}
		accepted, errs := c.handle(ctx, msg)
		if c.logger != nil && len(errs) > 0 {
			c.logger.Warn("kafka message partially rejected",
				"partition", msg.Partition, "offset", msg.Offset,
				"accepted", accepted, "rejected", len(errs), "first_err", errs[0])
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil && c.logger != nil {
			c.logger.Warn("kafka commit error", "offset", msg.Offset, "err", err)
		}
	}
}

// handle emits every record carried by msg: a single line in any supported
// format, a JSON array, or newline-delimited records. The message key names
// the parameter when a record omits it.
func (c *kafkaConsumer) handle(ctx context.Context, msg kafka.Message) (int, []error) {
	cfg := c.cfg.Get()
	accepted := 0
	var errs []error
	err := ReadRecords(bytes.NewReader(msg.Value), c.parser, func(label string, fields *normalize.MeasurementFields, err error) {
		if err != nil {
			metrics.MeasurementsRejected.WithLabelValues("kafka").Inc()
		} else {
			if fields.ParameterID == "" && len(msg.Key) > 0 {
				fields.ParameterID = string(msg.Key)
			}
			err = emit(ctx, fields, cfg, "kafka", c.out, c.logger)
		}
		switch {
		case err == nil:
			accepted++
		case !errors.Is(err, normalize.ErrExcluded):
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
		}
	})
	if err != nil {
		metrics.MeasurementsRejected.WithLabelValues("kafka").Inc()
		errs = append(errs, err)
	}
	return accepted, errs
}
