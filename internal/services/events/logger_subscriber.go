package events

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/formflow/automation/internal/interfaces"
	"github.com/formflow/automation/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs every event at
// debug level, pulling job_id out of the common payload shapes (Job,
// ProgressEvent) when present.
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().Str("event_type", string(event.Type))

		if jobID, ok := jobIDFromPayload(event.Payload); ok {
			logEvent = logEvent.Str("job_id", jobID)
		}

		logEvent.Msg("event published")
		return nil
	}
}

func jobIDFromPayload(payload interface{}) (string, bool) {
	switch v := payload.(type) {
	case *models.Job:
		return v.ID, true
	case models.ProgressEvent:
		return v.JobID, true
	case *models.ProgressEvent:
		return v.JobID, true
	}
	return "", false
}

// SubscribeLoggerToAllEvents subscribes the logger to every event type the
// node publishes, giving a single place to see the full event stream in
// logs regardless of whether anything else is listening.
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventJobProgress,
		interfaces.EventJobStarted,
		interfaces.EventJobCompleted,
		interfaces.EventDomainMappingLearned,
		interfaces.EventClientHeartbeat,
		interfaces.EventCommandResult,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return err
		}
	}

	logger.Info().Int("event_type_count", len(eventTypes)).Msg("logger subscribed to all event types")
	return nil
}
