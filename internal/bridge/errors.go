package bridge

import "errors"

// Domain errors for the bridge package.
var (
	// ErrInvalidPayload is returned when a message body is not valid JSON
	// or cannot be converted into an event.
	ErrInvalidPayload = errors.New("bridge: invalid payload")

	// ErrSchemaViolation is returned when a message body does not match
	// the schema of its topic.
	ErrSchemaViolation = errors.New("bridge: schema violation")

	// ErrUnknownTopic is returned for a message kind that has no schema.
	ErrUnknownTopic = errors.New("bridge: unknown topic")
)
