// Package sink persists execution logs and status transitions and fans them out to
// watchers over a watermill pub/sub.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/dukex/conduit/pkg/models"
)

// Topic carries the events of every execution.
const Topic = "conduit.executions"

const (
	ExecutionIDMetadataKey = "execution_id"
	EventTypeMetadataKey   = "event_type"
)

type EventType string

const (
	EventLog        EventType = "execution.log"
	EventStatus     EventType = "execution.status"
	EventNodeStatus EventType = "execution.node_status"
)

// Event is one published change of an execution.
type Event struct {
	Type        EventType            `json:"type"`
	ExecutionID string               `json:"executionId"`
	Log         *models.ExecutionLog `json:"log,omitempty"`
	Execution   *models.Execution    `json:"execution,omitempty"`
	NodeID      string               `json:"nodeId,omitempty"`
	NodeStatus  models.NodeStatus    `json:"nodeStatus,omitempty"`
}

// Terminal reports whether e is the final status of its execution.
func (e Event) Terminal() bool {
	return e.Type == EventStatus && e.Execution != nil && e.Execution.Status != models.ExecutionStatusRunning
}

// Repository is the durable half of the sink.
type Repository interface {
	SaveExecution(ctx context.Context, execution *models.Execution) error
	UpdateNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus) error
	AppendLog(ctx context.Context, entry *models.ExecutionLog) error
}

// EventSink writes every change to the repository first and publishes it afterwards,
// so a watcher that reconnects can always catch up from storage.
type EventSink struct {
	repository Repository
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

func NewEventSink(repository Repository, publisher message.Publisher, subscriber message.Subscriber, logger *slog.Logger) *EventSink {
	return &EventSink{
		repository: repository,
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger.With("module", "sink"),
	}
}

func (s *EventSink) Append(ctx context.Context, entry *models.ExecutionLog) error {
	err := s.repository.AppendLog(ctx, entry)
	if err != nil {
		return fmt.Errorf("failed to persist log: %w", err)
	}

	return s.publish(Event{Type: EventLog, ExecutionID: entry.ExecutionID, Log: entry})
}

func (s *EventSink) SetStatus(ctx context.Context, execution *models.Execution) error {
	err := s.repository.SaveExecution(ctx, execution)
	if err != nil {
		return fmt.Errorf("failed to persist execution: %w", err)
	}

	return s.publish(Event{Type: EventStatus, ExecutionID: execution.ID, Execution: execution})
}

func (s *EventSink) SetNodeStatus(ctx context.Context, executionID, nodeID string, status models.NodeStatus) error {
	err := s.repository.UpdateNodeStatus(ctx, executionID, nodeID, status)
	if err != nil {
		return fmt.Errorf("failed to persist node status: %w", err)
	}

	return s.publish(Event{Type: EventNodeStatus, ExecutionID: executionID, NodeID: nodeID, NodeStatus: status})
}

func (s *EventSink) publish(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Type, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set(ExecutionIDMetadataKey, event.ExecutionID)
	msg.Metadata.Set(EventTypeMetadataKey, string(event.Type))

	err = s.publisher.Publish(Topic, msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	return nil
}

// Subscribe streams the events of executionID published after the call, in publish
// order, until ctx is done. An empty executionID streams the events of every execution. The channel is closed when the subscription ends.
func (s *EventSink) Subscribe(ctx context.Context, executionID string) (<-chan Event, error) {
	messages, err := s.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", Topic, err)
	}

	events := make(chan Event, 64)

	go func() {
		defer close(events)

		for msg := range messages {
			if executionID != "" && msg.Metadata.Get(ExecutionIDMetadataKey) != executionID {
				msg.Ack()

				continue
			}

			var event Event

			err := json.Unmarshal(msg.Payload, &event)
			if err != nil {
				s.logger.WarnContext(ctx, "Dropping malformed event", "execution_id", executionID, "error", err)
				msg.Ack()

				continue
			}

			select {
			case events <- event:
				msg.Ack()
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}

func (s *EventSink) Close() error {
	err := s.publisher.Close()
	if err != nil {
		return err
	}

	return s.subscriber.Close()
}
