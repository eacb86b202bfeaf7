package screenlogic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Bridge operation constants.
const (
	// DefaultRefreshInterval is how long pulled status is served before the
	// next read operation pulls again.
	DefaultRefreshInterval = 30 * time.Second

	// commandTimeout bounds an MQTT-triggered command including its
	// follow-up status pull.
	commandTimeout = 15 * time.Second

	// commandTopicParts is the number of parts in graylogic/command/screenlogic/{key}.
	commandTopicParts = 4

	// errorState is what GetCircuit returns when the state cannot be read.
	errorState = "error"
)

// MQTTClient is the subset of MQTT operations the bridge uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	IsConnected() bool
}

// DeviceState is the persisted view of one device after a refresh.
type DeviceState struct {
	Key        string
	Name       string
	Kind       Kind
	Raw        int32
	Value      float64
	State      string
	Unit       string
	ObservedAt time.Time
}

// DeviceStore persists device states. It is optional; this interface is
// satisfied by *device.Registry via an adapter in main.go.
type DeviceStore interface {
	SaveDeviceStates(ctx context.Context, states []DeviceState) error
}

// GatewayFactory opens a Gateway for a discovered controller.
type GatewayFactory func(info GatewayInfo) Gateway

// BridgeOptions holds configuration for creating a bridge.
type BridgeOptions struct {
	// Discoverer locates the controller. Required.
	Discoverer Discoverer

	// NewGateway creates a connection per operation. Default: a Session
	// built from the password and timeouts below.
	NewGateway GatewayFactory

	Password       string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	// RefreshInterval is the staleness threshold. Default: 30 seconds.
	RefreshInterval time.Duration

	// BridgeID and Version identify the bridge in health messages.
	BridgeID string
	Version  string

	// HealthInterval is the health publish period. Default: 30 seconds.
	HealthInterval time.Duration

	// MQTTClient enables state publishing and MQTT commands. Optional.
	MQTTClient MQTTClient

	// Store receives device states after each refresh. Optional.
	Store DeviceStore

	// Logger is an optional structured logger.
	Logger Logger

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// ExportedDevice is one entry of the flat JSON export.
type ExportedDevice struct {
	ID    any    `json:"id,omitempty"`
	Name  string `json:"name"`
	State string `json:"state"`
}

// Bridge owns the merged controller snapshot and the device registry built
// from it.
//
// Read and command operations first refresh the snapshot if it is older than
// the refresh interval. Each refresh opens a fresh session, pulls config
// (first time only) and status, and closes the session again; a failure
// leaves the previous data in place.
//
// Thread Safety: All methods are safe for concurrent use. Refreshes and
// commands are serialised by one mutex, so concurrent callers of a stale
// bridge cause a single pull.
type Bridge struct {
	discoverer Discoverer
	newGateway GatewayFactory
	interval   time.Duration
	now        func() time.Time
	bridgeID   string

	mu          sync.Mutex
	gateway     GatewayInfo
	snapshot    Snapshot
	devices     map[string]Device
	published   map[string]string
	lastRefresh time.Time
	lastErr     error

	mqtt    MQTTClient
	store   DeviceStore
	health  *HealthReporter
	started atomic.Bool

	refreshes   atomic.Uint64
	commands    atomic.Uint64
	errorsTotal atomic.Uint64

	// runMu orders command admission (wg.Add) against Stop.
	runMu     sync.Mutex
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context
	ctxCancel context.CancelFunc

	logger   Logger
	loggerMu sync.RWMutex
}

// NewBridge creates a bridge and performs the initial load: discovery,
// connect, config and status.
//
// A failed initial load is logged and leaves the bridge empty but usable;
// the next operation tries again.
//
// Parameters:
//   - ctx: Bounds the initial load
//   - opts: Bridge options; Discoverer is required
//
// Returns:
//   - *Bridge: Ready for use
//   - error: Only for invalid options
func NewBridge(ctx context.Context, opts BridgeOptions) (*Bridge, error) {
	if opts.Discoverer == nil {
		return nil, fmt.Errorf("discoverer is required")
	}

	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	bridgeID := opts.BridgeID
	if bridgeID == "" {
		bridgeID = Protocol
	}

	newGateway := opts.NewGateway
	if newGateway == nil {
		newGateway = sessionFactory(opts)
	}

	bridgeCtx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		discoverer: opts.Discoverer,
		newGateway: newGateway,
		interval:   interval,
		now:        now,
		bridgeID:   bridgeID,
		devices:    make(map[string]Device),
		published:  make(map[string]string),
		mqtt:       opts.MQTTClient,
		store:      opts.Store,
		ctx:        bridgeCtx,
		ctxCancel:  cancel,
		logger:     opts.Logger,
	}

	if opts.MQTTClient != nil {
		b.health = NewHealthReporter(HealthReporterConfig{
			BridgeID:  bridgeID,
			Version:   opts.Version,
			Interval:  opts.HealthInterval,
			Publisher: opts.MQTTClient,
			Monitor:   b,
		})
		if opts.Logger != nil {
			b.health.SetLogger(opts.Logger)
		}
	}

	b.mu.Lock()
	err := b.refreshLocked(ctx)
	b.mu.Unlock()
	if err != nil {
		b.logError("initial load failed", err)
	}

	return b, nil
}

// sessionFactory returns the default GatewayFactory.
func sessionFactory(opts BridgeOptions) GatewayFactory {
	return func(info GatewayInfo) Gateway {
		s := NewSession(SessionConfig{
			Host:           info.IP,
			Port:           info.Port,
			Password:       opts.Password,
			ConnectTimeout: opts.ConnectTimeout,
			RequestTimeout: opts.RequestTimeout,
		})
		if opts.Logger != nil {
			s.SetLogger(opts.Logger)
		}
		return s
	}
}

// RefreshIfStale pulls status when the last successful refresh is older
// than the refresh interval, or when there has been none.
func (b *Bridge) RefreshIfStale(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshIfStaleLocked(ctx)
}

// Refresh pulls status regardless of age.
func (b *Bridge) Refresh(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshLocked(ctx)
}

func (b *Bridge) refreshIfStaleLocked(ctx context.Context) error {
	if !b.lastRefresh.IsZero() && b.now().Sub(b.lastRefresh) <= b.interval {
		return nil
	}
	return b.refreshLocked(ctx)
}

func (b *Bridge) refreshLocked(ctx context.Context) error {
	return b.withGatewayLocked(ctx, func(gw Gateway) error {
		return b.pullLocked(ctx, gw)
	})
}

// withGatewayLocked discovers the controller if needed, opens a session,
// runs fn and closes the session.
func (b *Bridge) withGatewayLocked(ctx context.Context, fn func(Gateway) error) error {
	if !b.gateway.OK() {
		info, err := b.discoverer.Discover(ctx)
		if err != nil {
			return b.failLocked(fmt.Errorf("%w: %w", ErrDiscoveryFailed, err))
		}
		b.gateway = info
		b.logInfo("controller discovered", "address", info.Address(), "name", info.Name)
	}

	gw := b.newGateway(b.gateway)
	if err := gw.Connect(ctx); err != nil {
		// The controller may have moved; discover again next time.
		b.gateway = GatewayInfo{}
		return b.failLocked(err)
	}
	defer func() {
		if err := gw.Disconnect(); err != nil {
			b.logDebug("session close failed", "error", err)
		}
	}()

	if v := gw.Version(); v != "" {
		b.snapshot.Version = v
	}

	if err := fn(gw); err != nil {
		return b.failLocked(err)
	}
	return nil
}

// pullLocked fetches config (once) and status, then updates the devices.
func (b *Bridge) pullLocked(ctx context.Context, gw Gateway) error {
	if !b.snapshot.Config.Loaded {
		cfg, err := gw.GetConfig(ctx, b.snapshot.Config)
		if err != nil {
			return fmt.Errorf("pull config: %w", err)
		}
		b.snapshot.Config = cfg
		b.logInfo("controller config loaded",
			"controller_id", cfg.ControllerID,
			"circuits", len(cfg.Circuits),
			"celsius", cfg.IsCelsius)
	}

	status, err := gw.GetStatus(ctx, b.snapshot.Config, b.snapshot.Status)
	if err != nil {
		return fmt.Errorf("pull status: %w", err)
	}
	b.snapshot.Status = status
	b.lastRefresh = b.now()
	b.lastErr = nil
	b.refreshes.Add(1)

	changed := b.rebuildDevicesLocked()
	b.persistLocked(ctx)
	b.publishLocked(changed)

	return nil
}

func (b *Bridge) failLocked(err error) error {
	b.lastErr = err
	b.errorsTotal.Add(1)
	return err
}

// rebuildDevicesLocked updates devices in place from the snapshot, creating
// any that are new. Devices are never removed. It returns the devices whose
// rendered state differs from what was last published.
func (b *Bridge) rebuildDevicesLocked() []Device {
	var changed []Device
	for _, kr := range b.snapshot.Readings() {
		d, ok := b.devices[kr.Key]
		switch {
		case !ok && kr.Kind == KindSwitch:
			d = newSwitch(kr.CircuitID, kr.Reading, b)
			b.devices[kr.Key] = d
		case !ok:
			d = newSensor(kr.Key, kr.Reading)
			b.devices[kr.Key] = d
		default:
			switch dev := d.(type) {
			case *Switch:
				dev.update(kr.Reading)
			case *Sensor:
				dev.update(kr.Reading)
			}
		}

		if b.published[kr.Key] != d.State() {
			changed = append(changed, d)
		}
	}
	return changed
}

func (b *Bridge) persistLocked(ctx context.Context) {
	if b.store == nil {
		return
	}

	observed := b.lastRefresh.UTC()
	states := make([]DeviceState, 0, len(b.devices))
	for _, key := range slices.Sorted(maps.Keys(b.devices)) {
		d := b.devices[key]
		r := d.Reading()
		states = append(states, DeviceState{
			Key:        key,
			Name:       d.Name(),
			Kind:       d.Kind(),
			Raw:        r.Raw,
			Value:      r.Float(),
			State:      d.State(),
			Unit:       r.Unit,
			ObservedAt: observed,
		})
	}

	if err := b.store.SaveDeviceStates(ctx, states); err != nil {
		b.logError("failed to persist device states", err)
	}
}

// publishLocked publishes retained state messages once the bridge is
// started. Devices that fail to publish stay marked as changed.
func (b *Bridge) publishLocked(devices []Device) {
	if b.mqtt == nil || !b.started.Load() {
		return
	}

	for _, d := range devices {
		payload, err := json.Marshal(NewStateMessage(d))
		if err != nil {
			b.logError("failed to marshal state", err)
			continue
		}
		if err := b.mqtt.Publish(StateTopic(d.Key()), payload, 1, true); err != nil {
			b.logError("failed to publish state", err)
			continue
		}
		b.published[d.Key()] = d.State()
	}
}

// Snapshot returns a copy of the merged controller data after refreshing
// it if stale.
func (b *Bridge) Snapshot(ctx context.Context) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshQuietlyLocked(ctx)
	return b.snapshot.Clone()
}

// Devices returns all devices ordered by key after refreshing if stale.
func (b *Bridge) Devices(ctx context.Context) []Device {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshQuietlyLocked(ctx)
	return b.sortedDevicesLocked()
}

// Device returns one device by key after refreshing if stale.
func (b *Bridge) Device(ctx context.Context, key string) (Device, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshQuietlyLocked(ctx)
	d, ok := b.devices[key]
	return d, ok
}

// Switches returns the circuit devices ordered by key.
func (b *Bridge) Switches(ctx context.Context) []*Switch {
	var out []*Switch
	for _, d := range b.Devices(ctx) {
		if sw, ok := d.(*Switch); ok {
			out = append(out, sw)
		}
	}
	return out
}

// CircuitState returns "On", "Off" or "Unknown" for a circuit.
//
// Returns:
//   - string: Rendered state
//   - error: ErrUnknownCircuit if no circuit with that id has been seen
func (b *Bridge) CircuitState(ctx context.Context, circuitID int32) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshQuietlyLocked(ctx)
	sw, ok := b.devices[CircuitKey(circuitID)].(*Switch)
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownCircuit, circuitID)
	}
	return sw.State(), nil
}

// GetCircuit returns the rendered circuit state, or "error" when the
// circuit is unknown.
func (b *Bridge) GetCircuit(ctx context.Context, circuitID int32) string {
	state, err := b.CircuitState(ctx, circuitID)
	if err != nil {
		b.logDebug("circuit lookup failed", "circuit", circuitID, "error", err)
		return errorState
	}
	return state
}

// SetCircuitState switches a circuit and, once the controller has
// acknowledged, pulls status so the cached state reflects the change.
//
// Parameters:
//   - circuitID: Circuit id as reported by the controller
//   - state: 0 (off) or 1 (on)
//
// Returns:
//   - error: ErrInvalidState, ErrUnknownCircuit, or the connection or
//     command failure
func (b *Bridge) SetCircuitState(ctx context.Context, circuitID int32, state uint32) error {
	if state > 1 {
		return fmt.Errorf("%w: %d", ErrInvalidState, state)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refreshQuietlyLocked(ctx)
	if _, ok := b.devices[CircuitKey(circuitID)].(*Switch); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCircuit, circuitID)
	}

	b.commands.Add(1)
	return b.withGatewayLocked(ctx, func(gw Gateway) error {
		if err := gw.SetCircuit(ctx, circuitID, state); err != nil {
			return err
		}
		b.logInfo("circuit switched", "circuit", circuitID, "state", OnOff(int32(state))) //nolint:gosec // state is 0 or 1

		// The command took effect; a failed re-pull only leaves the cache stale.
		if err := b.pullLocked(ctx, gw); err != nil {
			b.logError("status refresh after command failed", err)
			_ = b.failLocked(err)
			b.lastRefresh = time.Time{}
		}
		return nil
	})
}

// SetCircuit switches a circuit and reports whether the controller
// acknowledged.
func (b *Bridge) SetCircuit(ctx context.Context, circuitID int32, state uint32) bool {
	if err := b.SetCircuitState(ctx, circuitID, state); err != nil {
		b.logError("set circuit failed", err)
		return false
	}
	return true
}

// Export returns the flat device map used by the JSON export, keyed by the
// lower-cased, underscore-joined device name.
func (b *Bridge) Export(ctx context.Context) map[string]ExportedDevice {
	out := make(map[string]ExportedDevice)
	for _, d := range b.Devices(ctx) {
		entry := ExportedDevice{Name: d.Name(), State: d.State()}
		switch d.Kind() {
		case KindSwitch:
			if sw, ok := d.(*Switch); ok {
				entry.ID = sw.ID()
			}
			entry.State = jsonName(entry.State)
		case KindBinarySensor:
			entry.ID = d.Key()
			entry.State = jsonName(entry.State)
		}
		out[jsonName(d.Name())] = entry
	}
	return out
}

// ExportJSON marshals Export.
func (b *Bridge) ExportJSON(ctx context.Context) ([]byte, error) {
	return json.Marshal(b.Export(ctx))
}

func jsonName(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", "_"))
}

// Endpoint returns the controller endpoint in use, zero if none has been
// discovered.
func (b *Bridge) Endpoint() GatewayInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gateway
}

// GatewayHealth implements GatewayMonitor.
func (b *Bridge) GatewayHealth() GatewayHealth {
	b.mu.Lock()
	defer b.mu.Unlock()

	h := GatewayHealth{
		Reachable:   !b.lastRefresh.IsZero() && b.lastErr == nil,
		Firmware:    b.snapshot.Version,
		LastRefresh: b.lastRefresh,
		LastError:   b.lastErr,
		Devices:     len(b.devices),
		Refreshes:   b.refreshes.Load(),
		Commands:    b.commands.Load(),
		Errors:      b.errorsTotal.Load(),
	}
	if b.gateway.OK() {
		h.Address = b.gateway.Address()
	}
	return h
}

// refreshQuietlyLocked refreshes if stale and logs a failure instead of
// returning it; readers are served the previous data.
func (b *Bridge) refreshQuietlyLocked(ctx context.Context) {
	if err := b.refreshIfStaleLocked(ctx); err != nil {
		b.logError("refresh failed", err)
	}
}

func (b *Bridge) sortedDevicesLocked() []Device {
	out := make([]Device, 0, len(b.devices))
	for _, key := range slices.Sorted(maps.Keys(b.devices)) {
		out = append(out, b.devices[key])
	}
	return out
}

// Start subscribes to MQTT commands, publishes every device state and
// begins health reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if b.mqtt == nil {
		return fmt.Errorf("MQTT client is required")
	}

	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	topic := CommandSubscribeTopic()
	if err := b.mqtt.Subscribe(topic, 1, b.handleMQTTMessage); err != nil {
		return fmt.Errorf("subscribe to commands: %w", err)
	}
	b.logInfo("subscribed to commands", "topic", topic)

	b.started.Store(true)

	b.mu.Lock()
	b.publishLocked(b.sortedDevicesLocked())
	deviceCount := len(b.devices)
	b.mu.Unlock()

	b.health.Start(ctx)

	b.logInfo("bridge started", "bridge_id", b.bridgeID, "devices", deviceCount)
	return nil
}

// Stop cancels in-flight MQTT commands and stops health reporting.
// Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		// Close admission before waiting for in-flight commands
		b.runMu.Lock()
		b.ctxCancel()
		b.started.Store(false)
		b.runMu.Unlock()

		if b.health != nil {
			b.health.Stop()
		}
		b.wg.Wait()
		b.logInfo("bridge stopped")
	})
}

// handleMQTTMessage handles graylogic/command/screenlogic/{key}.
func (b *Bridge) handleMQTTMessage(topic string, payload []byte) {
	parts := strings.Split(topic, "/")
	if len(parts) < commandTopicParts || parts[1] != "command" {
		b.logError("invalid topic format", fmt.Errorf("topic: %s", topic))
		return
	}

	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logError("failed to parse command", err)
		return
	}
	if cmd.DeviceID == "" {
		cmd.DeviceID = parts[3]
	}

	if !b.admitCommand() {
		b.logInfo("dropping command after stop",
			"command_id", cmd.ID,
			"device_id", cmd.DeviceID)
		return
	}
	defer b.wg.Done()
	b.handleCommand(cmd)
}

// admitCommand registers an in-flight command with the stop wait group.
// It reports false once the bridge is stopped or its context is done.
func (b *Bridge) admitCommand() bool {
	b.runMu.Lock()
	defer b.runMu.Unlock()

	if !b.started.Load() || b.ctx.Err() != nil {
		return false
	}
	b.wg.Add(1)
	return true
}

func (b *Bridge) handleCommand(cmd CommandMessage) {
	b.logInfo("received command",
		"command_id", cmd.ID,
		"device_id", cmd.DeviceID,
		"command", cmd.Command)

	sw := b.lookupSwitch(cmd.DeviceID)
	if sw == nil {
		b.publishAck(NewAckError(cmd, ErrCodeNotConfigured,
			fmt.Sprintf("device %s is not a known circuit", cmd.DeviceID)))
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	var err error
	switch cmd.Command {
	case "on":
		err = b.SetCircuitState(ctx, sw.ID(), 1)
	case "off":
		err = b.SetCircuitState(ctx, sw.ID(), 0)
	case "toggle":
		err = sw.Toggle(ctx)
	default:
		b.publishAck(NewAckError(cmd, ErrCodeInvalidCommand,
			fmt.Sprintf("unknown command: %s", cmd.Command)))
		return
	}

	if err != nil {
		b.logError("command execution failed", err)
		code := ErrCodeDeviceUnreachable
		if errors.Is(err, context.DeadlineExceeded) {
			code = ErrCodeTimeout
		}
		b.publishAck(NewAckError(cmd, code, err.Error()))
		return
	}

	b.publishAck(NewAckMessage(cmd, AckAccepted))
}

// lookupSwitch finds a circuit by key without refreshing.
func (b *Bridge) lookupSwitch(key string) *Switch {
	if _, err := strconv.Atoi(key); err != nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sw, _ := b.devices[key].(*Switch)
	return sw
}

func (b *Bridge) publishAck(ack AckMessage) {
	payload, err := json.Marshal(ack)
	if err != nil {
		b.logError("failed to marshal ack", err)
		return
	}
	if err := b.mqtt.Publish(AckTopic(ack.DeviceID), payload, 1, false); err != nil {
		b.logError("failed to publish ack", err)
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
