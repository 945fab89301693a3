package systemair

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
)

func decodeHealth(t *testing.T, p mockPublish) HealthMessage {
	t.Helper()
	var msg HealthMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return msg
}

func TestHealthReporter_Status(t *testing.T) {
	tests := []struct {
		name       string
		connected  bool
		available  bool
		wantStatus HealthStatus
		wantReason string
	}{
		{"healthy", true, true, HealthHealthy, ""},
		{"mqtt down", false, true, HealthDegraded, "MQTT disconnected"},
		{"unit down", true, false, HealthDegraded, "unit unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewMockMQTTClient()
			client.setConnected(tt.connected)
			r := NewHealthReporter(HealthReporterConfig{
				UnitID:    "ahu",
				Address:   "10.0.0.5",
				Publisher: client,
				Monitor:   &mockPoller{available: tt.available},
			})

			if err := r.PublishNow(); err != nil {
				t.Fatalf("PublishNow() error = %v", err)
			}

			msgs := client.publishedOn(HealthTopic())
			if len(msgs) != 1 {
				t.Fatalf("messages = %d, want 1", len(msgs))
			}
			msg := decodeHealth(t, msgs[0])
			if msg.Status != tt.wantStatus || msg.Reason != tt.wantReason {
				t.Errorf("health = %s (%q), want %s (%q)", msg.Status, msg.Reason, tt.wantStatus, tt.wantReason)
			}
			if msg.Bridge != Protocol || msg.Unit == nil || msg.Unit.ID != "ahu" || msg.Unit.Address != "10.0.0.5" {
				t.Errorf("health body = %+v", msg)
			}
		})
	}
}

func TestHealthReporter_IncludesLastReport(t *testing.T) {
	client := NewMockMQTTClient()
	at := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	poller := &mockPoller{last: &coordinator.Report{At: at, Err: errors.New("refused")}}

	r := NewHealthReporter(HealthReporterConfig{UnitID: "ahu", Publisher: client, Monitor: poller})
	_ = r.PublishNow()

	msg := decodeHealth(t, client.publishedOn(HealthTopic())[0])
	if msg.Unit.LastSync == nil || !msg.Unit.LastSync.Equal(at) {
		t.Errorf("LastSync = %v, want %v", msg.Unit.LastSync, at)
	}
	if msg.Unit.LastError != "refused" || msg.Unit.Available {
		t.Errorf("unit = %+v", msg.Unit)
	}
}

func TestHealthReporter_LoopPublishesPeriodically(t *testing.T) {
	client := NewMockMQTTClient()
	r := NewHealthReporter(HealthReporterConfig{
		UnitID:    "ahu",
		Interval:  20 * time.Millisecond,
		Publisher: client,
		Monitor:   &mockPoller{available: true},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for len(client.publishedOn(HealthTopic())) < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	r.Stop()

	msgs := client.publishedOn(HealthTopic())
	if len(msgs) < 4 {
		t.Fatalf("messages = %d, want at least 3 periodic plus stopping", len(msgs))
	}
	if last := decodeHealth(t, msgs[len(msgs)-1]); last.Status != HealthStopping {
		t.Errorf("last status = %s, want stopping", last.Status)
	}
}

func TestHealthReporter_NilPublisher(t *testing.T) {
	r := NewHealthReporter(HealthReporterConfig{UnitID: "ahu"})
	if err := r.PublishNow(); err != nil {
		t.Errorf("PublishNow() with nil publisher error = %v", err)
	}
	r.Stop()
}

func TestLWTPayload(t *testing.T) {
	var msg HealthMessage
	if err := json.Unmarshal(LWTPayload(), &msg); err != nil {
		t.Fatalf("unmarshal LWT: %v", err)
	}
	if msg.Status != HealthOffline || msg.Bridge != Protocol || msg.Reason != "unexpected_disconnect" {
		t.Errorf("LWT = %+v", msg)
	}
	if HealthTopic() != "graylogic/health/systemair" {
		t.Errorf("HealthTopic() = %s", HealthTopic())
	}
}
