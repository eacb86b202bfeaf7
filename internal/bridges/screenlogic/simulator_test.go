package screenlogic

import (
	"context"
	"testing"
	"time"
)

func TestSampleSnapshotFitsReadCaps(t *testing.T) {
	snap := SampleSnapshot()

	if n := HeaderSize + len(ConfigAnswerPayload(snap.Config)); n > configResponseBytes {
		t.Errorf("config answer is %d bytes, cap %d", n, configResponseBytes)
	}
	if n := HeaderSize + len(StatusAnswerPayload(snap.Status)); n > statusResponseBytes {
		t.Errorf("status answer is %d bytes, cap %d", n, statusResponseBytes)
	}
}

func TestSimulatorServesBridge(t *testing.T) {
	sim := newTestSimulator(t, SimulatorOptions{Password: "poolside"})

	b, err := NewBridge(context.Background(), BridgeOptions{
		Discoverer:     StaticDiscoverer{Info: sim.GatewayInfo()},
		Password:       "poolside",
		ConnectTimeout: time.Second,
		RequestTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewBridge() error: %v", err)
	}
	defer b.Stop()

	ctx := context.Background()
	if got := b.GetCircuit(ctx, 505); got != "On" {
		t.Errorf("GetCircuit(505) = %q, want On", got)
	}
	if !b.SetCircuit(ctx, 505, 0) {
		t.Fatal("SetCircuit(505, 0) = false")
	}
	if got := b.GetCircuit(ctx, 505); got != "Off" {
		t.Errorf("GetCircuit(505) after set = %q, want Off", got)
	}
	if sim.Snapshot().Status.Circuits[505].State != 0 {
		t.Error("simulator did not record the button press")
	}

	// Initial load and the command each used their own session; config is
	// pulled only once.
	if got := sim.Queries(OpLoginQuery); got != 2 {
		t.Errorf("logins = %d, want 2", got)
	}
	if got := sim.Queries(OpConfigQuery); got != 1 {
		t.Errorf("config queries = %d, want 1", got)
	}
}

func TestSimulatorSetSnapshot(t *testing.T) {
	sim := newTestSimulator(t, SimulatorOptions{})

	snap := SampleSnapshot()
	snap.Version = "POOL: 6.0"
	sim.SetSnapshot(snap)

	s := sessionFor(sim.GatewayInfo(), "")
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer s.Disconnect()

	if s.Version() != "POOL: 6.0" {
		t.Errorf("Version() = %q", s.Version())
	}
}
