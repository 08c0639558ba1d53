package mqtt

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-weather/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "graylogic-weather-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
		TopicPrefix: "graylogic/weather",
	}
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *mockLogger) Info(string, ...any) {}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true for unconnected client")
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"wildcard topic", "graylogic/weather/entity/+/state", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "a/b", []byte("x"), 3, ErrInvalidQoS},
		{"too large", "a/b", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"valid but disconnected", "a/b", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	handler := func(string, []byte) error { return nil }

	if err := client.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := client.Subscribe("a/#", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := client.Subscribe("a/#", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := client.Subscribe("a/#", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if len(client.subscriptions) != 0 {
		t.Error("failed subscription was tracked")
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v", err)
	}
}

func TestSubscribeSensors_Validation(t *testing.T) {
	client := &Client{topics: NewTopics(""), subscriptions: make(map[string]subscription)}
	handler := func(string, string, []byte) error { return nil }

	if _, err := client.SubscribeSensors(KindReading, 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if _, err := client.SubscribeSensors(KindReading, 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	topic, err := client.SubscribeSensors(KindReading, 1, handler)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if topic != "" || len(client.subscriptions) != 0 {
		t.Errorf("failed subscription returned %q and tracked %d", topic, len(client.subscriptions))
	}
}

func TestDispatch_RecoversAndLogs(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	client.dispatch(func(string, []byte) error { panic("boom") }, "t", nil)
	client.dispatch(func(string, []byte) error { return errors.New("bad payload") }, "t", nil)
	client.dispatch(func(string, []byte) error { return nil }, "t", nil)

	if len(logger.errors) != 1 {
		t.Errorf("panic logs = %d, want 1", len(logger.errors))
	}
	if len(logger.warns) != 1 {
		t.Errorf("error logs = %d, want 1", len(logger.warns))
	}

	// Without a logger the panic is still contained.
	(&Client{}).dispatch(func(string, []byte) error { panic("quiet") }, "t", nil)
}

func TestUniqueClientID(t *testing.T) {
	a := uniqueClientID("graylogic-weather")
	b := uniqueClientID("graylogic-weather")

	if a == b {
		t.Error("client IDs should differ between calls")
	}
	if !strings.HasPrefix(a, "graylogic-weather-") || len(a) != len("graylogic-weather-")+clientIDSuffixLen {
		t.Errorf("uniqueClientID() = %q", a)
	}
	if !strings.HasPrefix(uniqueClientID(""), "graylogic-weather-") {
		t.Error("empty base should fall back to the service name")
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "weather"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg, "id-1")
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker = %s", got)
	}
	if opts.ClientID != "id-1" || opts.Username != "weather" || !opts.AutoReconnect || !opts.CleanSession {
		t.Errorf("options = %+v", opts)
	}
	if opts.TLSConfig != nil {
		t.Error("TLS configured without broker.tls")
	}

	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883
	opts = buildClientOptions(cfg, "id-1")
	if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("tls broker = %s", got)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS min version not set")
	}

	configureLWT(opts, NewTopics(cfg.TopicPrefix), "id-1")
	if !opts.WillEnabled || opts.WillTopic != "graylogic/weather/service/status" || !opts.WillRetained {
		t.Errorf("will = %v %s %v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	if !strings.Contains(string(opts.WillPayload), `"unexpected_disconnect"`) {
		t.Errorf("will payload = %s", opts.WillPayload)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("id-1")
	if !strings.Contains(online, `"status":"online"`) || strings.Contains(online, "reason") {
		t.Errorf("online payload = %s", online)
	}
	offline := buildOfflinePayload("id-1")
	if !strings.Contains(offline, `"reason":"graceful_shutdown"`) {
		t.Errorf("offline payload = %s", offline)
	}
}
