package systemair

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/mqtt"
	iam "github.com/nerrad567/gray-logic-systemair/internal/systemair"
)

// MockMQTTClient implements MQTTClient for testing.
type MockMQTTClient struct {
	mu            sync.Mutex
	published     []mockPublish
	subscriptions []string
	connected     bool
	handlers      map[string]mqtt.MessageHandler
	subscribeErr  error
}

type mockPublish struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

func NewMockMQTTClient() *MockMQTTClient {
	return &MockMQTTClient{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (m *MockMQTTClient) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, mockPublish{Topic: topic, Payload: payload, QoS: qos, Retained: retained})
	return nil
}

func (m *MockMQTTClient) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.subscriptions = append(m.subscriptions, topic)
	m.handlers[topic] = handler
	return nil
}

func (m *MockMQTTClient) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MockMQTTClient) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// publishedOn returns messages published on topic, in order.
func (m *MockMQTTClient) publishedOn(topic string) []mockPublish {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mockPublish
	for _, p := range m.published {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// SimulateMessage delivers payload to the handler subscribed on topic.
func (m *MockMQTTClient) SimulateMessage(t *testing.T, topic string, payload string) error {
	t.Helper()
	m.mu.Lock()
	handler, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		t.Fatalf("no handler subscribed on %s", topic)
	}
	return handler(topic, []byte(payload))
}

// mockPoller implements Poller for testing.
type mockPoller struct {
	mu        sync.Mutex
	refreshes int
	available bool
	last      *coordinator.Report
}

func (p *mockPoller) RequestRefresh() {
	p.mu.Lock()
	p.refreshes++
	p.mu.Unlock()
}

func (p *mockPoller) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

func (p *mockPoller) LastReport() (coordinator.Report, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return coordinator.Report{}, false
	}
	return *p.last, true
}

func (p *mockPoller) refreshCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refreshes
}

type testHarness struct {
	bridge *Bridge
	mqtt   *MockMQTTClient
	state  *iam.State
	poller *mockPoller
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		mqtt:   NewMockMQTTClient(),
		state:  iam.NewState(iam.DefaultTable()),
		poller: &mockPoller{available: true},
	}
	b, err := NewBridge(BridgeOptions{
		UnitID:     "ahu",
		Address:    "saveconnect.local",
		Version:    "test",
		MQTTClient: h.mqtt,
		Unit:       h.state,
		Poller:     h.poller,
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	h.bridge = b

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		b.Stop()
	})
	if err := b.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Wait for "starting" plus the reporter's initial publish.
	deadline := time.Now().Add(2 * time.Second)
	for len(h.mqtt.publishedOn(HealthTopic())) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("initial health not published")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return h
}

func (h *testHarness) lastAck(t *testing.T) AckMessage {
	t.Helper()
	acks := h.mqtt.publishedOn("graylogic/ack/systemair/ahu")
	if len(acks) == 0 {
		t.Fatal("no ack published")
	}
	var ack AckMessage
	if err := json.Unmarshal(acks[len(acks)-1].Payload, &ack); err != nil {
		t.Fatalf("unmarshal ack: %v", err)
	}
	return ack
}

func TestNewBridge_RequiresOptions(t *testing.T) {
	base := BridgeOptions{
		UnitID:     "ahu",
		MQTTClient: NewMockMQTTClient(),
		Unit:       iam.NewState(iam.DefaultTable()),
		Poller:     &mockPoller{},
	}

	tests := []struct {
		name   string
		mutate func(*BridgeOptions)
	}{
		{"no unit id", func(o *BridgeOptions) { o.UnitID = "" }},
		{"no mqtt", func(o *BridgeOptions) { o.MQTTClient = nil }},
		{"no unit", func(o *BridgeOptions) { o.Unit = nil }},
		{"no poller", func(o *BridgeOptions) { o.Poller = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base
			tt.mutate(&opts)
			if _, err := NewBridge(opts); !errors.Is(err, ErrMissingOption) {
				t.Errorf("NewBridge() error = %v, want ErrMissingOption", err)
			}
		})
	}
}

func TestStart_SubscribesAndPublishesStarting(t *testing.T) {
	h := newHarness(t)

	if len(h.mqtt.subscriptions) != 1 || h.mqtt.subscriptions[0] != "graylogic/command/systemair/ahu" {
		t.Errorf("subscriptions = %v", h.mqtt.subscriptions)
	}

	health := h.mqtt.publishedOn("graylogic/health/systemair")
	if len(health) == 0 {
		t.Fatal("no health published on start")
	}
	var msg HealthMessage
	if err := json.Unmarshal(health[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if msg.Status != HealthStarting || !health[0].Retained {
		t.Errorf("first health = %s retained=%v, want starting retained", msg.Status, health[0].Retained)
	}
}

func TestStart_SubscribeError(t *testing.T) {
	client := NewMockMQTTClient()
	client.subscribeErr = mqtt.ErrNotConnected

	b, err := NewBridge(BridgeOptions{
		UnitID:     "ahu",
		MQTTClient: client,
		Unit:       iam.NewState(iam.DefaultTable()),
		Poller:     &mockPoller{},
	})
	if err != nil {
		t.Fatalf("NewBridge() error = %v", err)
	}
	if err := b.Start(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Start() error = %v, want ErrNotConnected", err)
	}
}

func TestCommand_SetSetpoint(t *testing.T) {
	h := newHarness(t)

	err := h.mqtt.SimulateMessage(t, h.bridge.CommandTopic(),
		`{"id":"c1","device_id":"ahu","command":"set_setpoint","parameters":{"value":22}}`)
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if v, err := h.state.Get(iam.PropertySetpoint); err != nil || v != 22 {
		t.Errorf("setpoint = %d, %v; want 22", v, err)
	}
	if raw, _ := h.state.Raw(iam.RegisterSetpoint); raw != 220 {
		t.Errorf("raw = %d, want 220", raw)
	}
	if !h.state.Dirty() {
		t.Error("state not dirty after command")
	}
	if h.poller.refreshCount() != 1 {
		t.Errorf("refreshes = %d, want 1", h.poller.refreshCount())
	}

	ack := h.lastAck(t)
	if ack.CommandID != "c1" || ack.Status != AckAccepted || ack.Protocol != Protocol || ack.Error != nil {
		t.Errorf("ack = %+v", ack)
	}
}

func TestCommand_SetProperty(t *testing.T) {
	h := newHarness(t)

	_ = h.mqtt.SimulateMessage(t, h.bridge.CommandTopic(),
		`{"id":"c2","command":"set_property","parameters":{"property":"setpoint","value":19}}`)

	if v, _ := h.state.Get(iam.PropertySetpoint); v != 19 {
		t.Errorf("setpoint = %d, want 19", v)
	}
	if ack := h.lastAck(t); ack.Status != AckAccepted {
		t.Errorf("ack status = %s", ack.Status)
	}
}

func TestCommand_Refresh(t *testing.T) {
	h := newHarness(t)

	_ = h.mqtt.SimulateMessage(t, h.bridge.CommandTopic(), `{"id":"c3","command":"refresh"}`)

	if h.poller.refreshCount() != 1 {
		t.Errorf("refreshes = %d, want 1", h.poller.refreshCount())
	}
	if h.state.Dirty() {
		t.Error("refresh must not dirty state")
	}
	if ack := h.lastAck(t); ack.Status != AckAccepted {
		t.Errorf("ack status = %s", ack.Status)
	}
}

func TestCommand_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		wantCode string
	}{
		{"unknown command", `{"id":"x","command":"explode"}`, ErrCodeInvalidCommand},
		{"wrong device", `{"id":"x","device_id":"other","command":"refresh"}`, ErrCodeNotConfigured},
		{"missing value", `{"id":"x","command":"set_setpoint","parameters":{}}`, ErrCodeInvalidParameters},
		{"fractional value", `{"id":"x","command":"set_setpoint","parameters":{"value":21.5}}`, ErrCodeInvalidParameters},
		{"string value", `{"id":"x","command":"set_setpoint","parameters":{"value":"21"}}`, ErrCodeInvalidParameters},
		{"missing property", `{"id":"x","command":"set_property","parameters":{"value":1}}`, ErrCodeInvalidParameters},
		{"unknown property", `{"id":"x","command":"set_property","parameters":{"property":"fan_speed","value":1}}`, ErrCodeInvalidParameters},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			if err := h.mqtt.SimulateMessage(t, h.bridge.CommandTopic(), tt.payload); err != nil {
				t.Fatalf("handler error = %v", err)
			}

			ack := h.lastAck(t)
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want failed %s", ack, tt.wantCode)
			}
			if h.state.Dirty() {
				t.Error("rejected command dirtied state")
			}
			if h.poller.refreshCount() != 0 {
				t.Errorf("refreshes = %d, want 0", h.poller.refreshCount())
			}
		})
	}
}

func TestCommand_MalformedPayload(t *testing.T) {
	h := newHarness(t)

	err := h.mqtt.SimulateMessage(t, h.bridge.CommandTopic(), `not json`)
	if !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("handler error = %v, want ErrInvalidCommand", err)
	}
	if acks := h.mqtt.publishedOn(h.bridge.AckTopic()); len(acks) != 0 {
		t.Errorf("acks = %d, want 0 for unparseable payload", len(acks))
	}
}

func TestCommand_NoIDNoAck(t *testing.T) {
	h := newHarness(t)

	_ = h.mqtt.SimulateMessage(t, h.bridge.CommandTopic(), `{"command":"refresh"}`)

	if acks := h.mqtt.publishedOn(h.bridge.AckTopic()); len(acks) != 0 {
		t.Errorf("acks = %d, want 0 without command id", len(acks))
	}
	if h.poller.refreshCount() != 1 {
		t.Errorf("refreshes = %d, want 1", h.poller.refreshCount())
	}
}

func TestOnCycle_PublishesRetainedState(t *testing.T) {
	h := newHarness(t)
	h.state.Feed(iam.RawValues{iam.RegisterSetpoint: 215})
	at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	h.bridge.OnCycle(coordinator.Report{At: at, Available: true})

	states := h.mqtt.publishedOn("graylogic/state/systemair/ahu")
	if len(states) != 1 {
		t.Fatalf("state messages = %d, want 1", len(states))
	}
	if !states[0].Retained || states[0].QoS != 1 {
		t.Errorf("state qos=%d retained=%v, want 1 retained", states[0].QoS, states[0].Retained)
	}

	var msg StateMessage
	if err := json.Unmarshal(states[0].Payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.DeviceID != "ahu" || msg.Address != "saveconnect.local" || msg.Protocol != "systemair" {
		t.Errorf("state header = %+v", msg)
	}
	if msg.State["setpoint"] != float64(21) {
		t.Errorf("state = %v, want setpoint 21", msg.State)
	}
	if msg.Registers["2000"] != 215 || msg.Dirty {
		t.Errorf("registers = %v dirty=%v", msg.Registers, msg.Dirty)
	}
	if !msg.Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", msg.Timestamp, at)
	}
}

func TestOnCycle_FailureSkipsStateAndReportsHealth(t *testing.T) {
	h := newHarness(t)
	before := len(h.mqtt.publishedOn(HealthTopic()))

	h.poller.mu.Lock()
	h.poller.available = false
	h.poller.mu.Unlock()
	h.bridge.OnCycle(coordinator.Report{Err: errors.New("timeout"), Available: false})

	if states := h.mqtt.publishedOn(h.bridge.StateTopic()); len(states) != 0 {
		t.Errorf("state published after failed cycle")
	}

	health := h.mqtt.publishedOn(HealthTopic())
	if len(health) != before+1 {
		t.Fatalf("health messages = %d, want %d", len(health), before+1)
	}
	var msg HealthMessage
	_ = json.Unmarshal(health[len(health)-1].Payload, &msg)
	if msg.Status != HealthDegraded || msg.Reason != "unit unavailable" {
		t.Errorf("health = %s (%s), want degraded", msg.Status, msg.Reason)
	}

	// Same availability again: no extra health publish.
	h.bridge.OnCycle(coordinator.Report{Err: errors.New("timeout"), Available: false})
	if got := len(h.mqtt.publishedOn(HealthTopic())); got != before+1 {
		t.Errorf("health messages = %d, want unchanged %d", got, before+1)
	}
}

func TestStop_PublishesStopping(t *testing.T) {
	h := newHarness(t)

	h.bridge.Stop()
	h.bridge.Stop()

	health := h.mqtt.publishedOn(HealthTopic())
	var msg HealthMessage
	_ = json.Unmarshal(health[len(health)-1].Payload, &msg)
	if msg.Status != HealthStopping {
		t.Errorf("last health = %s, want stopping", msg.Status)
	}
}
