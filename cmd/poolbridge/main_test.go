package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-pool/internal/bridges/screenlogic"
	"github.com/nerrad567/gray-logic-pool/internal/device"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-pool/internal/infrastructure/mqtt"
)

const testPassword = "pool-secret"

// startSimulator serves the sample installation for the duration of the test.
func startSimulator(t *testing.T) *screenlogic.Simulator {
	t.Helper()
	sim, err := screenlogic.NewSimulator("127.0.0.1:0", screenlogic.SampleSnapshot(), screenlogic.SimulatorOptions{
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("NewSimulator() error = %v", err)
	}
	t.Cleanup(func() { sim.Close() }) //nolint:errcheck // Test cleanup
	return sim
}

// writeConfig writes a config pointing at sim with MQTT and the database
// disabled.
func writeConfig(t *testing.T, sim *screenlogic.Simulator) string {
	t.Helper()
	info := sim.GatewayInfo()
	content := fmt.Sprintf(`
site:
  id: test-site

gateway:
  host: %q
  port: %d
  password: %q
  connect_timeout: 2s
  request_timeout: 2s
  refresh_interval: 30s

database:
  enabled: false

mqtt:
  enabled: false

logging:
  level: error
  format: text
`, info.IP, info.Port, testPassword)

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// execute runs the command tree and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(io.Discard)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GRAYLOGIC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestParseCircuitArgs(t *testing.T) {
	if id, err := parseCircuitID("505"); err != nil || id != 505 {
		t.Errorf("parseCircuitID(505) = %d, %v", id, err)
	}
	for _, bad := range []string{"", "pool", "99999999999"} {
		if _, err := parseCircuitID(bad); err == nil {
			t.Errorf("parseCircuitID(%q) expected error", bad)
		}
	}

	if s, err := parseCircuitState("1"); err != nil || s != 1 {
		t.Errorf("parseCircuitState(1) = %d, %v", s, err)
	}
	if _, err := parseCircuitState("2"); !errors.Is(err, screenlogic.ErrInvalidState) {
		t.Errorf("parseCircuitState(2) error = %v, want ErrInvalidState", err)
	}
}

func TestCLI_Get(t *testing.T) {
	sim := startSimulator(t)
	cfgPath := writeConfig(t, sim)

	out, err := execute(t, "--config", cfgPath, "get", "505")
	if err != nil {
		t.Fatalf("get error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "On" {
		t.Errorf("get 505 = %q, want On", got)
	}

	out, err = execute(t, "--config", cfgPath, "get", "777")
	if err != nil {
		t.Fatalf("get error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "error" {
		t.Errorf("get 777 = %q, want error", got)
	}
}

func TestCLI_Set(t *testing.T) {
	sim := startSimulator(t)
	cfgPath := writeConfig(t, sim)

	out, err := execute(t, "--config", cfgPath, "set", "505", "0")
	if err != nil {
		t.Fatalf("set error = %v", err)
	}
	if got := strings.TrimSpace(out); got != "Off" {
		t.Errorf("set 505 0 printed %q, want Off", got)
	}
	if state := sim.Snapshot().Status.Circuits[505].State; state != 0 {
		t.Errorf("simulator circuit 505 state = %d, want 0", state)
	}

	if _, err := execute(t, "--config", cfgPath, "set", "505", "7"); !errors.Is(err, screenlogic.ErrInvalidState) {
		t.Errorf("set 505 7 error = %v, want ErrInvalidState", err)
	}
}

func TestCLI_JSON(t *testing.T) {
	sim := startSimulator(t)
	cfgPath := writeConfig(t, sim)

	out, err := execute(t, "--config", cfgPath, "json")
	if err != nil {
		t.Fatalf("json error = %v", err)
	}

	var export map[string]map[string]any
	if err := json.Unmarshal([]byte(out), &export); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	pool, ok := export["pool"]
	if !ok {
		t.Fatalf("export has no pool entry: %s", out)
	}
	if pool["id"] != float64(505) || pool["state"] != "on" {
		t.Errorf("pool entry = %v", pool)
	}
	if _, ok := export["air_temperature"]["id"]; ok {
		t.Error("sensor entry carries an id")
	}
}

func TestCLI_Data(t *testing.T) {
	sim := startSimulator(t)
	cfgPath := writeConfig(t, sim)

	out, err := execute(t, "--config", cfgPath, "data")
	if err != nil {
		t.Fatalf("data error = %v", err)
	}
	var dump struct {
		Gateway  screenlogic.GatewayInfo `json:"gateway"`
		Snapshot struct {
			Version string `json:"version"`
		} `json:"snapshot"`
	}
	if err := json.Unmarshal([]byte(out), &dump); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if dump.Snapshot.Version != screenlogic.SampleSnapshot().Version {
		t.Errorf("version = %q", dump.Snapshot.Version)
	}
	if dump.Gateway.Port != sim.GatewayInfo().Port {
		t.Errorf("gateway = %+v", dump.Gateway)
	}

	out, err = execute(t, "--config", cfgPath, "data", "--format", "yaml")
	if err != nil {
		t.Fatalf("data --format yaml error = %v", err)
	}
	var doc struct {
		Snapshot struct {
			Version string `yaml:"version"`
			Config  struct {
				Circuits map[string]map[string]any `yaml:"circuits"`
			} `yaml:"config"`
		} `yaml:"snapshot"`
	}
	if err := yaml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not YAML: %v", err)
	}
	if doc.Snapshot.Version != screenlogic.SampleSnapshot().Version {
		t.Errorf("yaml version = %q", doc.Snapshot.Version)
	}
	if doc.Snapshot.Config.Circuits["505"]["name"] != "Pool" {
		t.Errorf("yaml circuit 505 = %v", doc.Snapshot.Config.Circuits["505"])
	}

	if _, err := execute(t, "--config", cfgPath, "data", "--format", "xml"); err == nil {
		t.Error("data --format xml expected error")
	}
}

func TestCLI_Version(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "poolbridge "+version) {
		t.Errorf("version output = %q", out)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("gateway:\n  password: \"\"\n"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, path); err == nil {
		t.Fatal("run() should fail with an empty gateway password")
	}
}

func TestLogConfig_MasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Gateway.Password = testPassword
	cfg.MQTT.Auth.Password = "broker-secret"

	var out bytes.Buffer
	logConfig(logging.NewWithWriter(cfg.Logging, "test", &out), "configs/config.yaml", cfg)

	logged := out.String()
	if !strings.Contains(logged, "configuration loaded") || !strings.Contains(logged, "configs/config.yaml") {
		t.Errorf("log output = %s", logged)
	}
	if strings.Contains(logged, testPassword) || strings.Contains(logged, "broker-secret") {
		t.Errorf("log output leaks a password: %s", logged)
	}
	if !strings.Contains(logged, "********") {
		t.Errorf("log output has no masked password: %s", logged)
	}
}

func TestRunDaemon_PersistsDeviceStates(t *testing.T) {
	sim := startSimulator(t)
	info := sim.GatewayInfo()

	cfg := config.Default()
	cfg.Gateway.Host = info.IP
	cfg.Gateway.Port = info.Port
	cfg.Gateway.Password = testPassword
	cfg.Gateway.RefreshInterval = 50 * time.Millisecond
	cfg.Database.Path = filepath.Join(t.TempDir(), "pool.db")
	cfg.MQTT.Enabled = false

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := runDaemon(ctx, cfg, logging.Discard()); err != nil {
		t.Fatalf("runDaemon() error = %v", err)
	}

	db, err := database.Open(context.Background(), database.Config{Path: cfg.Database.Path, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	repo := device.NewSQLiteRepository(db)
	pool, err := repo.GetByID(context.Background(), "screenlogic:505")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if pool.Kind != device.KindSwitch || pool.State != "On" {
		t.Errorf("pool device = %+v", pool)
	}
	if sim.Queries(screenlogic.OpStatusQuery) < 2 {
		t.Errorf("status queries = %d, want periodic pulls", sim.Queries(screenlogic.OpStatusQuery))
	}
}

func TestToDevices(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	got := toDevices([]screenlogic.DeviceState{
		{Key: "ph", Name: "pH", Kind: screenlogic.KindSensor, Raw: 750, Value: 7.5, State: "7.50", ObservedAt: at},
		{Key: "505", Name: "Pool", Kind: screenlogic.KindSwitch, Raw: 1, Value: 1, State: "On", ObservedAt: at},
	})

	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Protocol != screenlogic.Protocol || got[0].Address != "ph" || got[0].Kind != device.KindSensor {
		t.Errorf("ph device = %+v", got[0])
	}
	if got[0].Raw != 750 || got[0].Value != 7.5 || !got[0].StateUpdatedAt.Equal(at) {
		t.Errorf("ph reading = %+v", got[0])
	}
	if got[1].Kind != device.KindSwitch || !got[1].IsSwitch() {
		t.Errorf("pool device = %+v", got[1])
	}
}

func TestDeviceStoreAdapter(t *testing.T) {
	reg := device.NewRegistry(&memoryRepo{})
	store := &deviceStoreAdapter{registry: reg}

	err := store.SaveDeviceStates(context.Background(), []screenlogic.DeviceState{
		{Key: "heat_status_0", Name: "Pool Heater", Kind: screenlogic.KindBinarySensor, State: "Off"},
	})
	if err != nil {
		t.Fatalf("SaveDeviceStates() error = %v", err)
	}
	d, err := reg.GetDevice(context.Background(), "screenlogic:heat_status_0")
	if err != nil {
		t.Fatalf("GetDevice() error = %v", err)
	}
	if d.Kind != device.KindBinarySensor {
		t.Errorf("Kind = %q", d.Kind)
	}

	// A state the catalogue cannot represent is rejected, not stored.
	err = store.SaveDeviceStates(context.Background(), []screenlogic.DeviceState{
		{Key: "x", Name: "X", Kind: screenlogic.KindNone},
	})
	if !errors.Is(err, device.ErrInvalidKind) {
		t.Errorf("SaveDeviceStates(KindNone) error = %v, want ErrInvalidKind", err)
	}
}

func TestLWTTopicMatchesBridgeHealth(t *testing.T) {
	topics := mqtt.Topics{}

	lwtTopic := topics.BridgeHealth(screenlogic.Protocol)
	if lwtTopic != screenlogic.HealthTopic() {
		t.Errorf("LWT topic = %q, bridge health topic = %q", lwtTopic, screenlogic.HealthTopic())
	}
	if !mqtt.Match(topics.BridgeCommands(screenlogic.Protocol), screenlogic.CommandTopic("505")) {
		t.Error("command filter does not cover the bridge command topic")
	}
}

func TestMigrationsRegistered(t *testing.T) {
	if database.MigrationsFS == nil {
		t.Fatal("database.MigrationsFS is nil; the binary does not register its migrations")
	}

	db, err := database.Open(context.Background(), database.Config{Path: ":memory:", BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	defer db.Close() //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if _, err := device.NewSQLiteRepository(db).List(context.Background()); err != nil {
		t.Errorf("listing the device catalogue after Migrate() error = %v", err)
	}
}

// memoryRepo is a minimal in-memory device.Repository.
type memoryRepo struct {
	devices map[string]device.Device
}

func (m *memoryRepo) GetByID(_ context.Context, id string) (*device.Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.Clone(), nil
}

func (m *memoryRepo) List(_ context.Context) ([]device.Device, error) {
	out := make([]device.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d)
	}
	return out, nil
}

func (m *memoryRepo) UpsertBatch(_ context.Context, devices []device.Device) error {
	if m.devices == nil {
		m.devices = make(map[string]device.Device)
	}
	for i := range devices {
		if err := device.ValidateDevice(&devices[i]); err != nil {
			return err
		}
	}
	for _, d := range devices {
		m.devices[d.ID] = d
	}
	return nil
}
