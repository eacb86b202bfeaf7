package screenlogic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// GatewayHealth is a point-in-time view of the bridge's link to the
// controller.
type GatewayHealth struct {
	Reachable   bool
	Address     string
	Firmware    string
	LastRefresh time.Time
	LastError   error
	Devices     int
	Refreshes   uint64
	Commands    uint64
	Errors      uint64
}

// GatewayMonitor supplies the data for health messages. The Bridge
// implements it.
type GatewayMonitor interface {
	GatewayHealth() GatewayHealth
}

// HealthPublisher publishes health messages, typically an MQTT client.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Monitor   GatewayMonitor
}

// HealthReporter publishes retained health messages at a fixed interval.
type HealthReporter struct {
	bridgeID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	monitor   GatewayMonitor

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin reporting.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		monitor:   cfg.Monitor,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "", h.gatewayHealth())
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting", h.gatewayHealth())
}

// PublishNow publishes the current status immediately. The gateway view is
// taken once so the status and the gateway section of the message agree.
func (h *HealthReporter) PublishNow() error {
	gw := h.gatewayHealth()
	status, reason := h.determineStatus(gw)
	return h.publishStatus(status, reason, gw)
}

// gatewayHealth asks the monitor for its view. It returns nil without a
// monitor, and without a publisher since nothing will be sent.
func (h *HealthReporter) gatewayHealth() *GatewayHealth {
	if h.monitor == nil || h.publisher == nil {
		return nil
	}
	gw := h.monitor.GatewayHealth()
	return &gw
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

func (h *HealthReporter) determineStatus(gw *GatewayHealth) (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if gw == nil {
		return HealthHealthy, ""
	}

	if !gw.Reachable {
		if gw.LastError != nil {
			return HealthDegraded, fmt.Sprintf("controller unreachable: %v", gw.LastError)
		}
		return HealthDegraded, "controller unreachable"
	}
	return HealthHealthy, ""
}

// buildMessage assembles a health message from the monitor's view.
func (h *HealthReporter) buildMessage(status HealthStatus, reason string, gw *GatewayHealth) HealthMessage {
	msg := HealthMessage{
		Bridge:        h.bridgeID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Reason:        reason,
	}

	if gw == nil {
		return msg
	}

	msg.DevicesManaged = gw.Devices
	msg.Gateway = &GatewayStatus{
		Status:   "unreachable",
		Address:  gw.Address,
		Firmware: gw.Firmware,
	}
	if gw.Reachable {
		msg.Gateway.Status = "reachable"
	}
	if !gw.LastRefresh.IsZero() {
		last := gw.LastRefresh.UTC()
		msg.Gateway.LastRefresh = &last
	}
	msg.Statistics = &BridgeStatistics{
		Refreshes: gw.Refreshes,
		Commands:  gw.Commands,
		Errors:    gw.Errors,
	}
	return msg
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string, gw *GatewayHealth) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(h.buildMessage(status, reason, gw))
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
