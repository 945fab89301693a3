package systemair

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-systemair/internal/coordinator"
	"github.com/nerrad567/gray-logic-systemair/internal/infrastructure/mqtt"
)

// DefaultHealthInterval is how often health is published.
const DefaultHealthInterval = 30 * time.Second

// HealthPublisher is the part of the MQTT client the reporter needs.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// UnitMonitor exposes cycle outcomes. *coordinator.Coordinator satisfies it.
type UnitMonitor interface {
	Available() bool
	LastReport() (coordinator.Report, bool)
}

// HealthReporterConfig configures a HealthReporter.
type HealthReporterConfig struct {
	UnitID    string
	Address   string
	Version   string
	Interval  time.Duration
	Publisher HealthPublisher
	Monitor   UnitMonitor
}

// HealthReporter publishes bridge health on an interval.
type HealthReporter struct {
	unitID    string
	address   string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	monitor   UnitMonitor

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin publishing.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultHealthInterval
	}
	return &HealthReporter{
		unitID:    cfg.UnitID,
		address:   cfg.Address,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		monitor:   cfg.Monitor,
		done:      make(chan struct{}),
	}
}

// Start publishes the current status and then one every interval.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends the loop and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "bridge stopping")
	})
}

// SetLogger sets the logger for publish failures.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if h.monitor == nil || !h.monitor.Available() {
		return HealthDegraded, "unit unavailable"
	}
	return HealthHealthy, ""
}

// buildMessage assembles a health message for status.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Bridge:        Protocol,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}
	if h.monitor != nil {
		rep, ok := h.monitor.LastReport()
		msg.Unit = unitStatusFromReport(h.unitID, h.address, rep, ok)
	} else {
		msg.Unit = &UnitStatus{ID: h.unitID, Address: h.address}
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason))
	if err != nil {
		return err
	}
	return h.publisher.Publish(HealthTopic(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// HealthTopic is graylogic/health/systemair. It doubles as the LWT topic.
func HealthTopic() string {
	return mqtt.Topics{}.BridgeHealth(Protocol)
}
