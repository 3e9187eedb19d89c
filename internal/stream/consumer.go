// Package stream scores ride events pushed over MQTT. Each message is one
// batch: it is decoded, scored by the same pipeline the batch CLI runs, and
// published as a single result message.
package stream

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pkordes/ride-duration/internal/domain"
	"github.com/pkordes/ride-duration/internal/metrics"
	"github.com/pkordes/ride-duration/internal/service"
	"github.com/pkordes/ride-duration/internal/source"
)

// queueSize bounds how many received messages may wait for scoring.
const queueSize = 64

// Executor runs one batch. *service.RunService satisfies it.
type Executor interface {
	Execute(ctx context.Context, src service.Source, sink service.Sink, period domain.Period) (domain.BatchRun, error)
}

type message struct {
	topic   string
	payload []byte
}

// Consumer scores queued messages one at a time, in arrival order.
type Consumer struct {
	exec  Executor
	sink  service.Sink
	log   *slog.Logger
	queue chan message
}

// NewConsumer constructs a Consumer that publishes every scored batch to sink.
func NewConsumer(exec Executor, sink service.Sink, log *slog.Logger) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{exec: exec, sink: sink, log: log, queue: make(chan message, queueSize)}
}

// Enqueue hands a received message to Run. It blocks while the queue is full
// and gives up when ctx ends.
func (c *Consumer) Enqueue(ctx context.Context, topic string, payload []byte) error {
	select {
	case c.queue <- message{topic: topic, payload: payload}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes queued messages until ctx ends. A failed message is logged
// and counted; it does not stop the loop.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-c.queue:
			_ = c.Handle(ctx, m.topic, m.payload)
		}
	}
}

// Handle scores one event payload received on topic and publishes the result.
func (c *Consumer) Handle(ctx context.Context, topic string, payload []byte) error {
	err := c.handle(ctx, topic, payload)
	if err != nil {
		metrics.StreamMessages.WithLabelValues("failed").Inc()
		c.log.ErrorContext(ctx, "stream message failed", "topic", topic, "bytes", len(payload), "error", err)
		return err
	}
	metrics.StreamMessages.WithLabelValues("scored").Inc()
	return nil
}

func (c *Consumer) handle(ctx context.Context, topic string, payload []byte) error {
	event, err := source.DecodeEvent(payload)
	if err != nil {
		return fmt.Errorf("stream.Consumer.Handle: %w", err)
	}
	period, err := event.Period()
	if err != nil {
		return fmt.Errorf("stream.Consumer.Handle: %w", err)
	}

	src := source.NewEvents("mqtt:"+topic, event.Rides)
	if _, err := c.exec.Execute(ctx, src, c.sink, period); err != nil {
		return fmt.Errorf("stream.Consumer.Handle: %w", err)
	}
	return nil
}
