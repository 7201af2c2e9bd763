package ingest

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/segmentio/kafka-go"

	"siemlite/internal/config"
	"siemlite/internal/model"
)

// StartKafka consumes cfg.Topic in the background, one log line per message
// value. It returns a nil channel when the source is disabled; otherwise the
// channel is closed once the reader has stopped.
func StartKafka(ctx context.Context, cfg config.KafkaConfig, out chan<- model.LogLine, logger *slog.Logger) <-chan struct{} {
	if !cfg.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", cfg.Brokers, "topic", cfg.Topic, "group_id", cfg.GroupID)
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer reader.Close()
		consumeKafka(ctx, reader, "kafka:"+cfg.Topic, out, logger, clock.New())
	}()
	return done
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

func consumeKafka(ctx context.Context, r messageReader, path string, out chan<- model.LogLine, logger *slog.Logger, c clock.Clock) {
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if logger != nil {
				logger.Warn("kafka read error", "err", err)
			}
			if !BackoffSleep(ctx, c, time.Second) {
				return
			}
			continue
		}
		text := strings.TrimSpace(string(m.Value))
		if text == "" {
			continue
		}
		if !Send(ctx, out, model.LogLine{Text: text, Time: c.Now(), Path: path}) {
			return
		}
	}
}
