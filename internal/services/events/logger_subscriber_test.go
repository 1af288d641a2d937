package events

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/common"
	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

func TestNewLoggerSubscriber(t *testing.T) {
	logger := arbor.NewLogger()
	defer common.Stop()

	subscriber := NewLoggerSubscriber(logger)
	ctx := context.Background()

	event := interfaces.Event{
		Type:    interfaces.EventJobStarted,
		Payload: &models.Job{ID: "test-job-123"},
	}
	if err := subscriber(ctx, event); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}

	event2 := interfaces.Event{Type: interfaces.EventClientHeartbeat, Payload: nil}
	if err := subscriber(ctx, event2); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
}

func TestSubscribeLoggerToAllEvents(t *testing.T) {
	logger := arbor.NewLogger()
	defer common.Stop()

	eventService := NewService(logger)
	defer eventService.Close()

	if err := SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		t.Fatalf("failed to subscribe logger to all events: %v", err)
	}

	ctx := context.Background()
	eventTypes := []interfaces.EventType{
		interfaces.EventJobProgress,
		interfaces.EventJobStarted,
		interfaces.EventJobCompleted,
		interfaces.EventDomainMappingLearned,
		interfaces.EventClientHeartbeat,
		interfaces.EventCommandResult,
	}

	for _, eventType := range eventTypes {
		event := interfaces.Event{Type: eventType, Payload: &models.Job{ID: "test-job"}}
		if err := eventService.Publish(ctx, event); err != nil {
			t.Errorf("expected no error publishing %s event, got: %v", eventType, err)
		}
	}
}

func TestLoggerSubscriberDoesNotInterfere(t *testing.T) {
	logger := arbor.NewLogger()
	defer common.Stop()

	eventService := NewService(logger)
	defer eventService.Close()

	if err := SubscribeLoggerToAllEvents(eventService, logger); err != nil {
		t.Fatalf("failed to subscribe logger to all events: %v", err)
	}

	callCount := 0
	customHandler := func(ctx context.Context, event interfaces.Event) error {
		callCount++
		return nil
	}

	if err := eventService.Subscribe(interfaces.EventJobStarted, customHandler); err != nil {
		t.Fatalf("failed to subscribe custom handler: %v", err)
	}

	ctx := context.Background()
	event := interfaces.Event{Type: interfaces.EventJobStarted, Payload: &models.Job{ID: "test-job"}}
	if err := eventService.PublishSync(ctx, event); err != nil {
		t.Errorf("expected no error, got: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected custom handler to be called once, got: %d", callCount)
	}
}
