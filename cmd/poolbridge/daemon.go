package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-pool/internal/bridges/screenlogic"
	"github.com/nerrad567/gray-logic-pool/internal/device"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/mqtt"
)

func newRunCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the bridge daemon",
		Long: `Run the long-lived bridge until SIGINT or SIGTERM.

The daemon pulls controller status on the refresh interval, stores the
latest device states in SQLite and, when MQTT is enabled, publishes
retained states and health and accepts on/off/toggle commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.configPath)
		},
	}
}

// run is the daemon body, split from the command for testability.
//
// Parameters:
//   - ctx: Cancelled on shutdown signal
//   - configPath: Configuration file, falling back to defaults when missing
//
// Returns:
//   - error: Any start-up failure; nil on clean shutdown
func run(ctx context.Context, configPath string) error {
	// Bootstrap logger until config is loaded
	log := logging.Default()
	log.Info("starting pool bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logConfig(log, configPath, cfg)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	return runDaemon(ctx, cfg, log)
}

// logConfig records the effective configuration with secrets masked.
func logConfig(log *logging.Logger, path string, cfg *config.Config) {
	log.Info("configuration loaded",
		"path", path,
		"config", cfg.Redacted(),
	)
}

// runDaemon wires the infrastructure and drives the bridge until ctx ends.
func runDaemon(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	// Open database and device catalogue (optional)
	var db *database.DB
	var store screenlogic.DeviceStore
	if cfg.Database.Enabled {
		var err error
		db, err = database.Open(ctx, database.Config{
			Path:        cfg.Database.Path,
			WALMode:     cfg.Database.WALMode,
			BusyTimeout: cfg.Database.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		log.Info("database connected", "path", cfg.Database.Path)

		if migrateErr := db.Migrate(ctx); migrateErr != nil {
			return fmt.Errorf("running migrations: %w", migrateErr)
		}
		log.Info("database migrations complete")

		registry := device.NewRegistry(device.NewSQLiteRepository(db))
		registry.SetLogger(log.Component("device"))
		if refreshErr := registry.RefreshCache(ctx); refreshErr != nil {
			return fmt.Errorf("loading device registry: %w", refreshErr)
		}
		log.Info("device registry initialised", "devices", registry.GetDeviceCount())
		store = &deviceStoreAdapter{registry: registry}
	} else {
		log.Info("database disabled, device states are not persisted")
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var publisher screenlogic.MQTTClient
	if cfg.MQTT.Enabled {
		var err error
		mqttClient, err = connectMQTT(cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		if cfg.Bridge.PublishStates {
			publisher = &mqttBridgeAdapter{client: mqttClient}
		} else {
			log.Info("state publishing disabled")
		}
	} else {
		log.Info("MQTT disabled")
	}

	bridge, err := newBridge(ctx, cfg, log, publisher, store)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		bridge.Stop()
	}()

	if publisher != nil {
		if startErr := bridge.Start(ctx); startErr != nil {
			return fmt.Errorf("starting bridge: %w", startErr)
		}
	}

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("initialisation complete, waiting for shutdown signal",
		"gateway", cfg.Gateway.Address(),
		"refresh_interval", cfg.Gateway.RefreshInterval,
	)

	poll(ctx, bridge, cfg.Gateway.RefreshInterval, log)

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// poll asks the bridge to refresh on a ticker until ctx ends. Ticking at
// half the interval keeps served status at most one interval old.
func poll(ctx context.Context, bridge *screenlogic.Bridge, interval time.Duration, log *logging.Logger) {
	if interval <= 0 {
		interval = screenlogic.DefaultRefreshInterval
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := bridge.RefreshIfStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("status refresh failed", "error", err)
			}
		}
	}
}

// newBridge builds a bridge for the configured gateway.
//
// Parameters:
//   - ctx: Bounds the initial load
//   - cfg: Application configuration
//   - log: Logger instance
//   - publisher: MQTT client for states and commands (nil for none)
//   - store: Device catalogue (nil for none)
//
// Returns:
//   - *screenlogic.Bridge: Bridge after its initial load attempt
//   - error: Only for invalid options
func newBridge(ctx context.Context, cfg *config.Config, log *logging.Logger, publisher screenlogic.MQTTClient, store screenlogic.DeviceStore) (*screenlogic.Bridge, error) {
	return screenlogic.NewBridge(ctx, screenlogic.BridgeOptions{
		Discoverer:      screenlogic.StaticDiscoverer{Info: gatewayInfo(cfg.Gateway)},
		Password:        cfg.Gateway.Password,
		ConnectTimeout:  cfg.Gateway.ConnectTimeout,
		RequestTimeout:  cfg.Gateway.RequestTimeout,
		RefreshInterval: cfg.Gateway.RefreshInterval,
		BridgeID:        cfg.Bridge.ID,
		Version:         version,
		HealthInterval:  cfg.Bridge.HealthInterval,
		MQTTClient:      publisher,
		Store:           store,
		Logger:          log.Component("screenlogic"),
	})
}

// gatewayInfo converts the gateway section into a discovery record.
func gatewayInfo(g config.GatewayConfig) screenlogic.GatewayInfo {
	return screenlogic.GatewayInfo{
		IP:      g.Host,
		Port:    g.Port,
		Type:    g.Type,
		Subtype: g.Subtype,
		Name:    g.Name,
	}
}

// connectMQTT connects with a retained "offline" Last Will on the bridge
// health topic.
func connectMQTT(cfg *config.Config, log *logging.Logger) (*mqtt.Client, error) {
	lwt, err := screenlogic.LWTPayload(cfg.Bridge.ID)
	if err != nil {
		return nil, fmt.Errorf("encoding last will: %w", err)
	}

	client, err := mqtt.Connect(cfg.MQTT,
		mqtt.WithWill(mqtt.Will{
			Topic:    mqtt.Topics{}.BridgeHealth(screenlogic.Protocol),
			Payload:  lwt,
			QoS:      1,
			Retained: true,
		}),
		mqtt.WithLogger(log.Component("mqtt")),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	return client, nil
}

// healthCheck verifies the enabled infrastructure connections.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check (nil if disabled)
//   - mqttClient: MQTT client to check (nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	// The gateway is not checked: an unreachable controller leaves the
	// bridge empty and the next poll tries again.
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the bridge's
// MQTTClient interface. The difference is the Subscribe handler signature:
// - Infrastructure mqtt: func(topic, payload []byte) error
// - screenlogic bridge expects: func(topic, payload []byte)
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements screenlogic.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements screenlogic.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements screenlogic.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// deviceStoreAdapter records bridge device states in the device catalogue.
type deviceStoreAdapter struct {
	registry *device.Registry
}

// SaveDeviceStates implements screenlogic.DeviceStore.
func (a *deviceStoreAdapter) SaveDeviceStates(ctx context.Context, states []screenlogic.DeviceState) error {
	return a.registry.Observe(ctx, toDevices(states))
}

// toDevices maps bridge device states onto catalogue rows.
func toDevices(states []screenlogic.DeviceState) []device.Device {
	devices := make([]device.Device, 0, len(states))
	for _, s := range states {
		devices = append(devices, device.Device{
			Protocol:       screenlogic.Protocol,
			Address:        s.Key,
			Name:           s.Name,
			Kind:           device.Kind(s.Kind.String()),
			State:          s.State,
			Raw:            int64(s.Raw),
			Value:          s.Value,
			Unit:           s.Unit,
			StateUpdatedAt: s.ObservedAt,
		})
	}
	return devices
}
