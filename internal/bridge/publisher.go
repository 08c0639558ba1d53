package bridge

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/entity"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/mqtt"
)

// stateQoS is used for outbound entity state.
const stateQoS = 1

// Publisher is the subset of the MQTT client needed to publish state.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// StatePublisher publishes every entity change as a retained StateMessage.
// It implements entity.Sink. Publishing blocks on the broker, so the
// engine runs it behind an asynchronous queue.
type StatePublisher struct {
	client Publisher
	topics mqtt.Topics
	now    func() time.Time
	logger Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewStatePublisher creates a publisher. logger may be nil.
func NewStatePublisher(client Publisher, topics mqtt.Topics, logger Logger) *StatePublisher {
	return &StatePublisher{
		client: client,
		topics: topics,
		now:    time.Now,
		logger: logger,
	}
}

// EntityAdded implements entity.Sink.
func (p *StatePublisher) EntityAdded(s entity.State) {
	p.publish(s)
}

// EntityUpdated implements entity.Sink.
func (p *StatePublisher) EntityUpdated(s entity.State) {
	p.publish(s)
}

func (p *StatePublisher) publish(s entity.State) {
	payload, err := json.Marshal(NewStateMessage(s, p.now()))
	if err != nil {
		p.failed.Add(1)
		p.logError("failed to encode state", s.EntityID, err)
		return
	}
	if err := p.client.Publish(p.topics.EntityState(s.EntityID), payload, stateQoS, true); err != nil {
		p.failed.Add(1)
		p.logError("failed to publish state", s.EntityID, err)
		return
	}
	p.published.Add(1)
}

func (p *StatePublisher) logError(msg, entityID string, err error) {
	if p.logger != nil {
		p.logger.Error(msg, "entity_id", entityID, "error", err)
	}
}

// Counts returns the number of successful and failed publishes.
func (p *StatePublisher) Counts() (published, failed uint64) {
	return p.published.Load(), p.failed.Load()
}
