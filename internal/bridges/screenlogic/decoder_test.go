package screenlogic

import (
	"errors"
	"reflect"
	"testing"
)

func TestDecodeConfigRoundTrip(t *testing.T) {
	want := SampleSnapshot().Config

	got, err := DecodeConfig(ConfigAnswerPayload(want), Config{})
	if err != nil {
		t.Fatalf("DecodeConfig() error: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DecodeConfig() = %+v\nwant %+v", got, want)
	}
}

func TestDecodeConfigFields(t *testing.T) {
	w := &writer{}
	w.uint32(7)                           // controller id
	w.raw([]byte{40, 104, 50, 100})       // set point ranges
	w.uint8(1)                            // celsius
	w.raw([]byte{13, 2, 64})              // controller type, hw type, buffer
	w.int32(-5)                           // equipment flags
	w.raw(encodeAnswerString("Features")) // generic circuit name
	w.uint32(1)                           // circuit count
	w.int32(502)                          // id
	w.raw(encodeAnswerString("Jets"))     // name
	w.raw([]byte{1, 2, 3, 4, 5, 6, 7, 8}) // name index .. device id
	w.uint16(720)                         // default runtime
	w.uint16(0)                           // padding
	w.uint32(1)                           // colour count
	w.raw(encodeAnswerString("Red"))      // colour name
	w.uint32(255)                         // r
	w.uint32(0)                           // g
	w.uint32(0)                           // b
	w.raw([]byte{1, 2, 3, 4, 5, 6, 7, 8}) // pumps
	w.uint32(0x7F)                        // interface tab flags
	w.uint32(1)                           // show alarms

	cfg, err := DecodeConfig(w.bytes(), Config{})
	if err != nil {
		t.Fatalf("DecodeConfig() error: %v", err)
	}

	if !cfg.Loaded {
		t.Error("Loaded = false")
	}
	if cfg.ControllerID != 7 {
		t.Errorf("ControllerID = %d, want 7", cfg.ControllerID)
	}
	if cfg.MinSetPoint != [2]uint8{40, 50} || cfg.MaxSetPoint != [2]uint8{104, 100} {
		t.Errorf("set points = %v/%v", cfg.MinSetPoint, cfg.MaxSetPoint)
	}
	if !cfg.IsCelsius || cfg.TemperatureUnit() != "°C" {
		t.Errorf("IsCelsius = %v, unit %q", cfg.IsCelsius, cfg.TemperatureUnit())
	}
	if cfg.EquipmentFlags != -5 {
		t.Errorf("EquipmentFlags = %d, want -5", cfg.EquipmentFlags)
	}
	if cfg.GenericCircuitName != "Features" {
		t.Errorf("GenericCircuitName = %q", cfg.GenericCircuitName)
	}

	circuit, ok := cfg.Circuits[502]
	if !ok {
		t.Fatal("circuit 502 missing")
	}
	wantCircuit := Circuit{
		ID: 502, Name: "Jets", NameIndex: 1, Function: 2, Interface: 3, Flags: 4,
		ColorSet: 5, ColorPosition: 6, ColorStagger: 7, DeviceID: 8, DefaultRuntime: 720,
	}
	if circuit != wantCircuit {
		t.Errorf("circuit = %+v, want %+v", circuit, wantCircuit)
	}

	if len(cfg.Colors) != 1 || cfg.Colors[0] != (Color{Name: "Red", R: 255}) {
		t.Errorf("Colors = %+v", cfg.Colors)
	}
	if cfg.Pumps != [pumpSlots]uint8{1, 2, 3, 4, 5, 6, 7, 8} {
		t.Errorf("Pumps = %v", cfg.Pumps)
	}
	if cfg.InterfaceTabFlags != 0x7F || cfg.ShowAlarms != 1 {
		t.Errorf("flags = %#x, alarms %d", cfg.InterfaceTabFlags, cfg.ShowAlarms)
	}
}

func TestDecodeConfigMergesCircuits(t *testing.T) {
	first := SampleSnapshot().Config

	second := first.Clone()
	second.Circuits = map[int32]Circuit{
		502: {ID: 502, Name: "Renamed Jets"},
	}
	second.Colors = second.Colors[:1]

	merged, err := DecodeConfig(ConfigAnswerPayload(second), first)
	if err != nil {
		t.Fatalf("DecodeConfig() error: %v", err)
	}

	if len(merged.Circuits) != len(first.Circuits) {
		t.Errorf("len(Circuits) = %d, want %d (circuits are never dropped)", len(merged.Circuits), len(first.Circuits))
	}
	if merged.Circuits[502].Name != "Renamed Jets" {
		t.Errorf("circuit 502 name = %q, want replaced", merged.Circuits[502].Name)
	}
	if merged.Circuits[505].Name != "Pool" {
		t.Errorf("circuit 505 name = %q, want kept", merged.Circuits[505].Name)
	}
	if len(merged.Colors) != 1 {
		t.Errorf("len(Colors) = %d, want 1", len(merged.Colors))
	}

	// The previous config must not be modified by the merge.
	if first.Circuits[502].Name != "Swim Jets" {
		t.Errorf("previous config mutated: %q", first.Circuits[502].Name)
	}
}

func TestDecodeConfigTruncated(t *testing.T) {
	payload := ConfigAnswerPayload(SampleSnapshot().Config)

	for n := range len(payload) {
		_, err := DecodeConfig(payload[:n], Config{})
		if !errors.Is(err, ErrTruncatedPayload) {
			t.Fatalf("DecodeConfig(%d of %d bytes) error = %v, want ErrTruncatedPayload", n, len(payload), err)
		}
	}
}

func TestDecodeConfigHugeCount(t *testing.T) {
	w := &writer{}
	w.raw(make([]byte, 16))
	w.raw(encodeAnswerString(""))
	w.uint32(0xFFFFFFFF)

	if _, err := DecodeConfig(w.bytes(), Config{}); !errors.Is(err, ErrTruncatedPayload) {
		t.Errorf("DecodeConfig() error = %v, want ErrTruncatedPayload", err)
	}
}

func TestDecodeStatusRoundTrip(t *testing.T) {
	snap := SampleSnapshot()

	got, err := DecodeStatus(StatusAnswerPayload(snap.Status), snap.Config, Status{})
	if err != nil {
		t.Fatalf("DecodeStatus() error: %v", err)
	}
	if !reflect.DeepEqual(got, snap.Status) {
		t.Errorf("DecodeStatus() = %+v\nwant %+v", got, snap.Status)
	}
}

func TestDecodeStatusRequiresConfig(t *testing.T) {
	payload := StatusAnswerPayload(SampleSnapshot().Status)

	if _, err := DecodeStatus(payload, Config{}, Status{}); !errors.Is(err, ErrConfigNotLoaded) {
		t.Errorf("DecodeStatus() error = %v, want ErrConfigNotLoaded", err)
	}
}

func TestDecodeStatusReadings(t *testing.T) {
	snap := SampleSnapshot()

	status, err := DecodeStatus(StatusAnswerPayload(snap.Status), snap.Config, Status{})
	if err != nil {
		t.Fatalf("DecodeStatus() error: %v", err)
	}

	tests := []struct {
		name      string
		reading   Reading
		wantLabel string
		wantValue string
		wantUnit  string
		wantKind  Kind
	}{
		{"air", status.AirTemperature, "Air Temperature", "72", "°F", KindSensor},
		{"pool temp", status.Bodies[0].CurrentTemperature, "Current Pool Temperature", "78", "°F", KindSensor},
		{"spa heater", status.Bodies[1].HeatStatus, "Spa Heater", "1", "", KindBinarySensor},
		{"spa set point", status.Bodies[1].HeatSetPoint, "Spa Heat Set Point", "102", "°F", KindSensor},
		{"pool heat mode", status.Bodies[0].HeatMode, "Pool Heater Mode", "3", "", KindSensor},
		{"ph", status.Chemistry.PH, "pH", "7.50", "", KindSensor},
		{"orp", status.Chemistry.ORP, "ORP", "700", "", KindSensor},
		{"saturation", status.Chemistry.Saturation, "Saturation Index", "-0.12", "", KindSensor},
		{"salt", status.Chemistry.SaltPPM, "Salt", "3200", "ppm", KindSensor},
		{"alarms", status.Chemistry.Alarms, "Chemistry Alarm", "0", "", KindBinarySensor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.reading.Label != tt.wantLabel {
				t.Errorf("Label = %q, want %q", tt.reading.Label, tt.wantLabel)
			}
			if tt.reading.Value() != tt.wantValue {
				t.Errorf("Value() = %q, want %q", tt.reading.Value(), tt.wantValue)
			}
			if tt.reading.Unit != tt.wantUnit {
				t.Errorf("Unit = %q, want %q", tt.reading.Unit, tt.wantUnit)
			}
			if tt.reading.Kind != tt.wantKind {
				t.Errorf("Kind = %v, want %v", tt.reading.Kind, tt.wantKind)
			}
		})
	}

	if got := renderReading(status.Bodies[0].HeatMode); got != "Heat" {
		t.Errorf("pool heat mode state = %q, want %q", got, "Heat")
	}

	if status.Circuits[503].State != 1 || status.Circuits[503].ColorSet != 2 {
		t.Errorf("circuit 503 = %+v", status.Circuits[503])
	}
}

func TestDecodeStatusCelsiusUnit(t *testing.T) {
	snap := SampleSnapshot()
	snap.Config.IsCelsius = true

	status, err := DecodeStatus(StatusAnswerPayload(snap.Status), snap.Config, Status{})
	if err != nil {
		t.Fatalf("DecodeStatus() error: %v", err)
	}
	if status.AirTemperature.Unit != "°C" {
		t.Errorf("air unit = %q, want °C", status.AirTemperature.Unit)
	}
	if status.Bodies[0].CoolSetPoint.Unit != "°C" {
		t.Errorf("cool set point unit = %q, want °C", status.Bodies[0].CoolSetPoint.Unit)
	}
}

func TestDecodeStatusExtraBodiesStayAligned(t *testing.T) {
	snap := SampleSnapshot()
	extra := snap.Status.Clone()
	extra.Bodies = append(extra.Bodies, extra.Bodies[0])

	status, err := DecodeStatus(StatusAnswerPayload(extra), snap.Config, Status{})
	if err != nil {
		t.Fatalf("DecodeStatus() error: %v", err)
	}

	if len(status.Bodies) != maxBodies {
		t.Errorf("len(Bodies) = %d, want %d", len(status.Bodies), maxBodies)
	}
	if len(status.Circuits) != len(snap.Status.Circuits) {
		t.Errorf("len(Circuits) = %d, want %d", len(status.Circuits), len(snap.Status.Circuits))
	}
	if status.Chemistry.SaltPPM.Raw != 3200 {
		t.Errorf("salt = %d, want 3200 (circuit section misaligned)", status.Chemistry.SaltPPM.Raw)
	}
}

func TestDecodeStatusUnknownBodyType(t *testing.T) {
	snap := SampleSnapshot()
	odd := snap.Status.Clone()
	odd.Bodies[1].Type = 7

	status, err := DecodeStatus(StatusAnswerPayload(odd), snap.Config, Status{})
	if err != nil {
		t.Fatalf("DecodeStatus() error: %v", err)
	}
	if status.Bodies[1].Type != BodyPool {
		t.Errorf("Type = %v, want Pool", status.Bodies[1].Type)
	}
	if status.Bodies[1].HeatStatus.Label != "Pool Heater" {
		t.Errorf("label = %q, want %q", status.Bodies[1].HeatStatus.Label, "Pool Heater")
	}
}

func TestDecodeStatusMergesCircuits(t *testing.T) {
	snap := SampleSnapshot()
	first, err := DecodeStatus(StatusAnswerPayload(snap.Status), snap.Config, Status{})
	if err != nil {
		t.Fatalf("DecodeStatus() error: %v", err)
	}

	partial := snap.Status.Clone()
	partial.Circuits = map[int32]CircuitState{502: {ID: 502, State: 1}}

	second, err := DecodeStatus(StatusAnswerPayload(partial), snap.Config, first)
	if err != nil {
		t.Fatalf("DecodeStatus() error: %v", err)
	}
	if second.Circuits[502].State != 1 {
		t.Errorf("circuit 502 state = %d, want 1", second.Circuits[502].State)
	}
	if _, ok := second.Circuits[505]; !ok {
		t.Error("circuit 505 dropped, want kept")
	}
	if first.Circuits[502].State != 0 {
		t.Error("previous status mutated")
	}
}

func TestDecodeStatusTruncated(t *testing.T) {
	snap := SampleSnapshot()
	payload := StatusAnswerPayload(snap.Status)

	for n := range len(payload) {
		_, err := DecodeStatus(payload[:n], snap.Config, Status{})
		if !errors.Is(err, ErrTruncatedPayload) {
			t.Fatalf("DecodeStatus(%d of %d bytes) error = %v, want ErrTruncatedPayload", n, len(payload), err)
		}
	}
}

func TestSnapshotReadings(t *testing.T) {
	snap := SampleSnapshot()
	snap.Status.Circuits[600] = CircuitState{ID: 600, State: 1}

	readings := snap.Readings()
	byKey := make(map[string]KeyedReading, len(readings))
	for _, r := range readings {
		if _, dup := byKey[r.Key]; dup {
			t.Errorf("duplicate key %q", r.Key)
		}
		byKey[r.Key] = r
	}

	// 1 air + 2 bodies x 5 + 7 chemistry + 6 circuits
	if len(readings) != 1+10+7+6 {
		t.Errorf("len(Readings()) = %d, want 24", len(readings))
	}

	for _, key := range []string{"air_temperature", "heat_status_0", "heat_status_1", "heat_mode_1", "ph", "salt_ppm", "alarms", "502"} {
		if _, ok := byKey[key]; !ok {
			t.Errorf("missing reading %q", key)
		}
	}

	if r := byKey["502"]; r.Label != "Swim Jets" || r.Kind != KindSwitch || r.CircuitID != 502 {
		t.Errorf("502 = %+v", r)
	}
	if r := byKey["600"]; r.Label != "Circuit 600" || r.Raw != 1 {
		t.Errorf("600 = %+v, want fallback name", r)
	}

	if got := (Snapshot{}).Readings(); got != nil {
		t.Errorf("Readings() before status = %v, want nil", got)
	}
}

func TestSnapshotCloneIsDeep(t *testing.T) {
	snap := SampleSnapshot()
	clone := snap.Clone()

	clone.Config.Circuits[502] = Circuit{ID: 502, Name: "changed"}
	clone.Status.Circuits[502] = CircuitState{ID: 502, State: 1}
	clone.Status.Bodies[0].CurrentTemperature.Raw = 1

	if snap.Config.Circuits[502].Name != "Swim Jets" {
		t.Error("config circuits shared with clone")
	}
	if snap.Status.Circuits[502].State != 0 {
		t.Error("status circuits shared with clone")
	}
	if snap.Status.Bodies[0].CurrentTemperature.Raw != 78 {
		t.Error("bodies shared with clone")
	}
}
