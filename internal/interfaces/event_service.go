package interfaces

import "context"

// EventType represents a kind of event published on the internal event bus.
// The Job Scheduler and Pipeline Executor publish job lifecycle events; the
// /ws handler and the admin callback loop subscribe to relay them onward.
type EventType string

const (
	// EventJobProgress is published on every pipeline phase transition and
	// field-fill completion (spec §4.4). Payload is models.ProgressEvent.
	EventJobProgress EventType = "job_progress"

	// EventJobStarted is published when a job is accepted by the scheduler
	// and assigned a worker. Payload is models.Job.
	EventJobStarted EventType = "job_started"

	// EventJobCompleted is published when a job reaches a terminal phase
	// (done, failed, or cancelled). Payload is models.Job.
	EventJobCompleted EventType = "job_completed"

	// EventDomainMappingLearned is published after the Domain Mapping
	// Store accepts a learning write (spec §4.7). Payload is
	// models.DomainMapping.
	EventDomainMappingLearned EventType = "domain_mapping_learned"

	// EventClientHeartbeat is published by the admin server on every
	// accepted heartbeat (spec §4.9). Payload is models.Client.
	EventClientHeartbeat EventType = "client_heartbeat"

	// EventCommandResult is published by the admin server when a client
	// reports a command result (spec §4.9). Payload is models.CommandResult.
	EventCommandResult EventType = "command_result"
)

// Event is one message on the event bus.
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler handles one published event.
type EventHandler func(ctx context.Context, event Event) error

// EventService is an in-process pub/sub bus. The node server uses it to
// fan job-progress events out to /ws subscribers without coupling the
// scheduler to the transport layer.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	Unsubscribe(eventType EventType, handler EventHandler) error
	Publish(ctx context.Context, event Event) error
	PublishSync(ctx context.Context, event Event) error
	Close() error
}
