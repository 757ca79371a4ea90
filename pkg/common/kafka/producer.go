package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/synaptica-ai/cid-coder/pkg/common/logger"
	"github.com/synaptica-ai/cid-coder/pkg/common/models"
)

// TaskEventType marks a StageTask on the task topic.
const TaskEventType = "task"

// Producer publishes stage tasks and stage events. Messages are keyed by the
// record file or record ID so every message about one record lands on the
// same partition.
type Producer struct {
	writer *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
	}

	return &Producer{writer: writer}
}

// PublishTask enqueues one stage over one record file.
func (p *Producer) PublishTask(ctx context.Context, source string, task models.StageTask) error {
	return p.publish(ctx, TaskEventType, source, task.File, task.Map())
}

// PublishStageEvent announces that a record finished a stage.
func (p *Producer) PublishStageEvent(ctx context.Context, source string, ev models.StageEvent) error {
	key := ev.RecordID
	if key == "" {
		key = ev.File
	}
	return p.publish(ctx, ev.Type(), source, key, ev.Map())
}

func (p *Producer) publish(ctx context.Context, eventType, source, key string, data map[string]interface{}) error {
	msg, event, err := buildMessage(eventType, source, key, data)
	if err != nil {
		return err
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": eventType,
			"key":        key,
		}).Error("failed to publish event")
		return err
	}

	logger.Log.WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": eventType,
		"key":        key,
		"topic":      p.writer.Topic,
	}).Debug("event published")
	return nil
}

// buildMessage wraps data in an Event envelope. An empty key falls back to the
// event ID.
func buildMessage(eventType, source, key string, data map[string]interface{}) (kafka.Message, models.Event, error) {
	event := models.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
	if key == "" {
		key = event.ID
	}

	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, event, fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(eventType)},
			{Key: "source", Value: []byte(source)},
		},
	}, event, nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
