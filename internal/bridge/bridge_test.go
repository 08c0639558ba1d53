package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-weather/internal/entity"
	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-weather/internal/sensor"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu           sync.Mutex
	published    []mockPublish
	handlers     map[string]mqtt.MessageHandler
	unsubscribed []string
	failPublish  error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{handlers: make(map[string]mqtt.MessageHandler)}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPublish != nil {
		return m.failPublish
	}
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

// SubscribeSensors registers handler the way the real client does, behind
// the default topic namespace.
func (m *MockMQTTClient) SubscribeSensors(kind string, _ byte, handler mqtt.SensorHandler) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	topics := mqtt.NewTopics("")
	topic := topics.AllSensor(kind)
	m.handlers[topic] = topics.ForSensors(kind, handler)
	return topic, nil
}

func (m *MockMQTTClient) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.handlers, topic)
	m.unsubscribed = append(m.unsubscribed, topic)
	return nil
}

// deliver routes a message to the handler subscribed for the wildcard
// pattern of kind.
func (m *MockMQTTClient) deliver(t *testing.T, topics mqtt.Topics, sensorID, kind, payload string) error {
	t.Helper()
	m.mu.Lock()
	handler, ok := m.handlers[topics.AllSensor(kind)]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no subscription for %s", kind)
	}
	return handler(topics.Sensor(sensorID, kind), []byte(payload))
}

type recordingHandler struct {
	mu         sync.Mutex
	added      []sensor.Added
	updated    []sensor.Updated
	status     []sensor.StatusChanged
	updatedErr error
}

func (h *recordingHandler) HandleAdded(_ context.Context, ev sensor.Added) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.added = append(h.added, ev)
	return nil
}

func (h *recordingHandler) HandleUpdated(_ context.Context, ev sensor.Updated) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updated = append(h.updated, ev)
	return h.updatedErr
}

func (h *recordingHandler) HandleStatus(_ context.Context, ev sensor.StatusChanged) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = append(h.status, ev)
	return nil
}

func startBridge(t *testing.T) (*Bridge, *MockMQTTClient, *recordingHandler) {
	t.Helper()
	client := NewMockMQTTClient()
	handler := &recordingHandler{}
	b, err := NewBridge(Options{MQTTClient: client, Topics: mqtt.NewTopics(""), Handler: handler})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(b.Stop)
	return b, client, handler
}

func TestNewBridge_Validation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"missing client", Options{Handler: &recordingHandler{}}},
		{"missing handler", Options{MQTTClient: NewMockMQTTClient()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewBridge(tt.opts); err == nil {
				t.Error("NewBridge() should fail")
			}
		})
	}
}

func TestBridge_StartStop(t *testing.T) {
	client := NewMockMQTTClient()
	b, err := NewBridge(Options{MQTTClient: client, Handler: &recordingHandler{}})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	topics := mqtt.NewTopics("")
	for _, kind := range []string{mqtt.KindAdded, mqtt.KindReading, mqtt.KindStatus} {
		if _, ok := client.handlers[topics.AllSensor(kind)]; !ok {
			t.Errorf("not subscribed to %s", topics.AllSensor(kind))
		}
	}

	b.Stop()
	b.Stop()
	if len(client.handlers) != 0 {
		t.Errorf("handlers after Stop = %d, want 0", len(client.handlers))
	}
	if len(client.unsubscribed) != 3 {
		t.Errorf("unsubscribed = %d topics, want 3", len(client.unsubscribed))
	}
}

func TestBridge_Added(t *testing.T) {
	_, client, handler := startBridge(t)
	topics := mqtt.NewTopics("")

	payload := `{
		"name": "Weather Station",
		"model": "WH-2000",
		"update_period": 60,
		"measurements": [
			{"id": "r1", "type": "rain", "name": "Rain", "unit": "mm", "supports_prior_value": true},
			{"id": "t1", "type": "temperature", "name": "Temperature", "prefix": "Pool"}
		]
	}`
	if err := client.deliver(t, topics, "08AABBCCDDEE", mqtt.KindAdded, payload); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}

	if len(handler.added) != 1 {
		t.Fatalf("added events = %d, want 1", len(handler.added))
	}
	s := handler.added[0].Sensor
	if s.ID != "08AABBCCDDEE" || s.Name != "Weather Station" || s.Model != "WH-2000" {
		t.Errorf("sensor = %+v", s)
	}
	if s.UpdatePeriod != time.Minute {
		t.Errorf("UpdatePeriod = %v, want 1m", s.UpdatePeriod)
	}
	if len(s.Measurements) != 2 {
		t.Fatalf("measurements = %d, want 2", len(s.Measurements))
	}
	if m := s.Measurements[0]; m.Type != sensor.TypeRain || !m.SupportsPriorValue || m.Unit != "mm" {
		t.Errorf("rain measurement = %+v", m)
	}
	if m := s.Measurements[1]; m.Prefix != "Pool" {
		t.Errorf("temperature prefix = %q, want Pool", m.Prefix)
	}
}

func TestBridge_ReadingFanOut(t *testing.T) {
	_, client, handler := startBridge(t)
	topics := mqtt.NewTopics("")

	payload := `{
		"timestamp": "2026-03-01T10:00:00Z",
		"by_event": true,
		"low_battery": true,
		"measurements": [
			{"id": "r1", "value": 12.5, "prior_value": 12.0},
			{"id": "t1", "value": null, "error": true, "error_text": "crc mismatch"}
		]
	}`
	if err := client.deliver(t, topics, "08AABBCCDDEE", mqtt.KindReading, payload); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}

	if len(handler.updated) != 3 {
		t.Fatalf("updated events = %d, want 3", len(handler.updated))
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rain := handler.updated[0]
	if rain.MeasurementID != "r1" || rain.Value != 12.5 || !rain.ByEvent {
		t.Errorf("rain update = %+v", rain)
	}
	if rain.PriorValue == nil || *rain.PriorValue != 12.0 {
		t.Errorf("rain prior = %v, want 12", rain.PriorValue)
	}
	if !rain.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", rain.Timestamp, want)
	}

	temp := handler.updated[1]
	if !temp.IsError || temp.ErrorText != "crc mismatch" || temp.Value != nil {
		t.Errorf("error update = %+v", temp)
	}

	battery := handler.updated[2]
	if battery.MeasurementID != sensor.BatteryMeasurementID || battery.Value != true {
		t.Errorf("battery update = %+v", battery)
	}
}

func TestBridge_ReadingTimestamps(t *testing.T) {
	b, client, handler := startBridge(t)
	topics := mqtt.NewTopics("")
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }

	tests := []struct {
		name    string
		payload string
		want    time.Time
	}{
		{"epoch seconds", `{"timestamp": 1772359200, "measurements": [{"id": "r1", "value": 1}]}`, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
		{"missing", `{"measurements": [{"id": "r1", "value": 1}]}`, now},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler.updated = nil
			if err := client.deliver(t, topics, "s1", mqtt.KindReading, tt.payload); err != nil {
				t.Fatalf("deliver() error = %v", err)
			}
			if len(handler.updated) != 1 {
				t.Fatalf("updated events = %d, want 1", len(handler.updated))
			}
			if got := handler.updated[0].Timestamp; !got.Equal(tt.want) {
				t.Errorf("Timestamp = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBridge_Status(t *testing.T) {
	_, client, handler := startBridge(t)
	topics := mqtt.NewTopics("")

	if err := client.deliver(t, topics, "s1", mqtt.KindStatus, `{"online": false, "update_period": 30}`); err != nil {
		t.Fatalf("deliver() error = %v", err)
	}
	if len(handler.status) != 1 {
		t.Fatalf("status events = %d, want 1", len(handler.status))
	}
	ev := handler.status[0]
	if ev.SensorID != "s1" || ev.Online || ev.UpdatePeriod != 30*time.Second {
		t.Errorf("status = %+v", ev)
	}
}

func TestBridge_Rejects(t *testing.T) {
	b, client, handler := startBridge(t)
	topics := mqtt.NewTopics("")

	tests := []struct {
		name    string
		kind    string
		payload string
		wantErr error
	}{
		{"not json", mqtt.KindReading, `{"measurements": [`, ErrInvalidPayload},
		{"value is an object", mqtt.KindReading, `{"measurements": [{"id": "r1", "value": {}}]}`, ErrSchemaViolation},
		{"added without measurements", mqtt.KindAdded, `{"name": "x"}`, ErrSchemaViolation},
		{"status without online", mqtt.KindStatus, `{"update_period": 10}`, ErrSchemaViolation},
		{"bad timestamp", mqtt.KindReading, `{"timestamp": "yesterday", "measurements": []}`, ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.deliver(t, topics, "s1", tt.kind, tt.payload)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if len(handler.added)+len(handler.updated)+len(handler.status) != 0 {
		t.Error("rejected messages reached the handler")
	}
	m := b.GetMetrics()
	if m.MessagesReceived != 5 {
		t.Errorf("MessagesReceived = %d, want 5", m.MessagesReceived)
	}
	if m.MessagesRejected != 4 || m.HandlerErrors != 1 {
		t.Errorf("metrics = %+v, want 4 rejected and 1 handler error", m)
	}
}

func TestBridge_UnknownTopicAndEmptyPayload(t *testing.T) {
	_, client, handler := startBridge(t)

	readings := client.handlers[mqtt.NewTopics("").AllSensor(mqtt.KindReading)]
	if err := readings("graylogic/weather/other/s1/reading", []byte(`{}`)); !errors.Is(err, mqtt.ErrInvalidTopic) {
		t.Errorf("error = %v, want ErrInvalidTopic", err)
	}
	if err := readings("graylogic/weather/sensor/s1/added", []byte(`{}`)); !errors.Is(err, mqtt.ErrInvalidTopic) {
		t.Errorf("mismatched kind error = %v, want ErrInvalidTopic", err)
	}
	if err := client.deliver(t, mqtt.NewTopics(""), "s1", mqtt.KindAdded, ""); err != nil {
		t.Errorf("empty payload error = %v, want nil", err)
	}
	if len(handler.added) != 0 {
		t.Error("empty payload reached the handler")
	}
}

func TestBridge_HandlerErrorsJoined(t *testing.T) {
	_, client, handler := startBridge(t)
	handler.updatedErr = errors.New("unknown measurement")

	payload := `{"low_battery": false, "measurements": [{"id": "r1", "value": 1}]}`
	err := client.deliver(t, mqtt.NewTopics(""), "s1", mqtt.KindReading, payload)
	if err == nil {
		t.Fatal("deliver() should return the handler errors")
	}
	if !errors.Is(err, handler.updatedErr) {
		t.Errorf("error = %v, want wrapped handler error", err)
	}
	if len(handler.updated) != 2 {
		t.Errorf("updated events = %d, want 2 (one failure must not stop the rest)", len(handler.updated))
	}
}

func TestStatePublisher(t *testing.T) {
	client := NewMockMQTTClient()
	topics := mqtt.NewTopics("site")
	p := NewStatePublisher(client, topics, nil)

	last := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p.EntityUpdated(entity.State{
		EntityID:   "s1-last_hour_rain",
		SensorID:   "s1",
		Name:       "Last Hour Rain",
		Kind:       entity.KindCalculated,
		Value:      2.5,
		Available:  true,
		Provenance: entity.ProvenanceLive,
		LastUpdate: last,
		Descriptor: sensor.Descriptor{Type: sensor.TypeRain, Unit: "mm"},
	})

	if len(client.published) != 1 {
		t.Fatalf("published = %d, want 1", len(client.published))
	}
	pub := client.published[0]
	if pub.Topic != "site/entity/s1-last_hour_rain/state" || !pub.Retained || pub.QoS != 1 {
		t.Errorf("publish = %s qos=%d retained=%v", pub.Topic, pub.QoS, pub.Retained)
	}

	var msg map[string]any
	if err := json.Unmarshal(pub.Payload, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg["value"] != 2.5 || msg["available"] != true || msg["provenance"] != "live" || msg["unit"] != "mm" {
		t.Errorf("payload = %v", msg)
	}
	if msg["last_update"] != "2026-03-01T10:00:00Z" {
		t.Errorf("last_update = %v", msg["last_update"])
	}

	client.failPublish = errors.New("broker down")
	p.EntityAdded(entity.State{EntityID: "s1-battery"})
	if published, failed := p.Counts(); published != 1 || failed != 1 {
		t.Errorf("Counts() = %d, %d, want 1, 1", published, failed)
	}
}

func TestStateMessage_OmitsZeroLastUpdate(t *testing.T) {
	msg := NewStateMessage(entity.State{EntityID: "s1-rain"}, time.Now())
	if msg.LastUpdate != nil {
		t.Errorf("LastUpdate = %v, want nil", msg.LastUpdate)
	}
	if msg.Provenance != "unknown" {
		t.Errorf("Provenance = %q, want unknown", msg.Provenance)
	}
}
