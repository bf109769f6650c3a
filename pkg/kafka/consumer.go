package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/wms-platform/nursery-fulfillment/pkg/cloudevents"
	"github.com/wms-platform/nursery-fulfillment/pkg/logging"
	"github.com/wms-platform/nursery-fulfillment/pkg/metrics"
	"github.com/wms-platform/nursery-fulfillment/pkg/tracing"
)

// EventHandler handles a CloudEvent. Returning an error leaves the message
// uncommitted so it is redelivered.
type EventHandler func(ctx context.Context, event *cloudevents.CloudEvent) error

// Consumer handles consuming messages from Kafka topics
type Consumer struct {
	config   *Config
	readers  map[string]*kafka.Reader
	handlers map[string]map[string]EventHandler // topic -> eventType -> handler
	logger   *logging.Logger
	metrics  *metrics.Metrics
	wg       sync.WaitGroup
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(config *Config, logger *logging.Logger, m *metrics.Metrics) *Consumer {
	return &Consumer{
		config:   config,
		readers:  make(map[string]*kafka.Reader),
		handlers: make(map[string]map[string]EventHandler),
		logger:   logger,
		metrics:  m,
	}
}

// Subscribe registers a handler for one event type on a topic
func (c *Consumer) Subscribe(topic string, eventType string, handler EventHandler) {
	if _, exists := c.handlers[topic]; !exists {
		c.handlers[topic] = make(map[string]EventHandler)
	}
	c.handlers[topic][eventType] = handler
}

func (c *Consumer) getReader(topic string) *kafka.Reader {
	if reader, exists := c.readers[topic]; exists {
		return reader
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        c.config.Brokers,
		GroupID:        c.config.ConsumerGroup,
		Topic:          topic,
		MinBytes:       c.config.MinBytes,
		MaxBytes:       c.config.MaxBytes,
		MaxWait:        c.config.MaxWait,
		CommitInterval: c.config.CommitTimeout,
	})

	c.readers[topic] = reader
	return reader
}

// Start starts one goroutine per subscribed topic and returns immediately.
// Consumption stops when ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) {
	for topic := range c.handlers {
		reader := c.getReader(topic)
		c.wg.Add(1)
		go func(topic string) {
			defer c.wg.Done()
			c.consumeTopic(ctx, topic, reader)
		}(topic)
	}
}

func (c *Consumer) consumeTopic(ctx context.Context, topic string, reader *kafka.Reader) {
	c.logger.Info("Starting consumer for topic", "topic", topic, "group", c.config.ConsumerGroup)

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Stopping consumer for topic", "topic", topic)
				return
			}
			c.logger.WithError(err).Error("Error fetching message", "topic", topic)
			continue
		}

		event, err := parseMessage(msg)
		if err != nil {
			c.logger.WithError(err).Error("Error parsing message", "topic", topic, "offset", msg.Offset)
			// poison message, commit so the partition is not blocked
			if commitErr := reader.CommitMessages(ctx, msg); commitErr != nil {
				c.logger.WithError(commitErr).Error("Error committing message", "topic", topic)
			}
			continue
		}

		c.logger.KafkaConsume(ctx, topic, event.Type, msg.Partition, msg.Offset)

		carrier := tracing.MapCarrier{}
		for _, h := range msg.Headers {
			carrier[h.Key] = string(h.Value)
		}
		err = c.handleEvent(tracing.ExtractTraceContext(ctx, carrier), topic, event)
		if c.metrics != nil {
			c.metrics.RecordKafkaConsume(topic, event.Type, err == nil)
		}
		if err != nil {
			c.logger.WithError(err).Error("Error handling event",
				"topic", topic,
				"eventType", event.Type,
				"eventId", event.ID,
			)
			continue
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithError(err).Error("Error committing message", "topic", topic)
		}
	}
}

func parseMessage(msg kafka.Message) (*cloudevents.CloudEvent, error) {
	var event cloudevents.CloudEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	for _, header := range msg.Headers {
		switch header.Key {
		case "ce-nurserycorrelationid":
			event.CorrelationID = string(header.Value)
		case "ce-nurseryorderid":
			event.OrderID = string(header.Value)
		}
	}

	return &event, nil
}

func (c *Consumer) handleEvent(ctx context.Context, topic string, event *cloudevents.CloudEvent) error {
	handlers, exists := c.handlers[topic]
	if !exists {
		return fmt.Errorf("no handlers registered for topic %s", topic)
	}

	if event.CorrelationID != "" {
		ctx = logging.ContextWithCorrelationID(ctx, event.CorrelationID)
	}

	if handler, exists := handlers[event.Type]; exists {
		return handler(ctx, event)
	}

	// other event types share the topic
	return nil
}

// Close waits for the topic goroutines and closes all readers
func (c *Consumer) Close() error {
	c.wg.Wait()

	var lastErr error
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close reader for topic %s: %w", topic, err)
		}
	}
	return lastErr
}
