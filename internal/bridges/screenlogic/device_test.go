package screenlogic

import (
	"context"
	"testing"
)

func TestSensorState(t *testing.T) {
	tests := []struct {
		name    string
		reading Reading
		want    string
	}{
		{"temperature", Reading{Label: "Air Temperature", Raw: 72, Unit: "°F", Kind: KindSensor}, "72 °F"},
		{"negative temperature", Reading{Raw: -3, Unit: "°C", Kind: KindSensor}, "-3 °C"},
		{"hundredths", Reading{Label: "pH", Raw: 750, Scale: hundredths, Kind: KindSensor}, "7.50"},
		{"salt", Reading{Label: "Salt", Raw: 3200, Unit: "ppm", Kind: KindSensor}, "3200 ppm"},
		{"bare value", Reading{Label: "ORP", Raw: 700, Kind: KindSensor}, "700"},
		{"binary on", Reading{Label: "Spa Heater", Raw: 1, Kind: KindBinarySensor}, "On"},
		{"binary off", Reading{Label: "Spa Heater", Raw: 0, Kind: KindBinarySensor}, "Off"},
		{"binary other", Reading{Label: "Spa Heater", Raw: 2, Kind: KindBinarySensor}, "Unknown"},
		{"heat mode", Reading{Label: "Pool Heater Mode", Raw: 3, Kind: KindSensor, Format: FormatHeatMode}, "Heat"},
		{"heat mode solar", Reading{Label: "Spa Heater Mode", Raw: 1, Kind: KindSensor, Format: FormatHeatMode}, "Solar"},
		{"heat mode out of range", Reading{Label: "Spa Heater Mode", Raw: 9, Kind: KindSensor, Format: FormatHeatMode}, "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSensor("key", tt.reading)
			if got := s.State(); got != tt.want {
				t.Errorf("State() = %q, want %q", got, tt.want)
			}
			if s.Name() != tt.reading.Label || s.Kind() != tt.reading.Kind || s.Key() != "key" {
				t.Errorf("identity = %q/%v/%q", s.Name(), s.Kind(), s.Key())
			}
		})
	}
}

func TestSensorUpdate(t *testing.T) {
	s := newSensor("orp", Reading{Label: "ORP", Raw: 700, Kind: KindSensor})
	s.update(Reading{Label: "ORP", Raw: 650, Kind: KindSensor})

	if s.Reading().Raw != 650 || s.State() != "650" {
		t.Errorf("after update Reading() = %+v", s.Reading())
	}
}

type recordingCommander struct {
	id    int32
	state uint32
	calls int
}

func (r *recordingCommander) SetCircuitState(_ context.Context, id int32, state uint32) error {
	r.id, r.state = id, state
	r.calls++
	return nil
}

func TestSwitchToggleSendsInverse(t *testing.T) {
	owner := &recordingCommander{}

	on := newSwitch(505, Reading{Label: "Pool", Raw: 1, Kind: KindSwitch}, owner)
	if err := on.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if owner.id != 505 || owner.state != 0 {
		t.Errorf("Toggle() on running circuit sent %d=%d, want 505=0", owner.id, owner.state)
	}

	off := newSwitch(502, Reading{Label: "Swim Jets", Raw: 0, Kind: KindSwitch}, owner)
	if err := off.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle() error: %v", err)
	}
	if owner.id != 502 || owner.state != 1 {
		t.Errorf("Toggle() on stopped circuit sent %d=%d, want 502=1", owner.id, owner.state)
	}

	// Unknown state is treated as off.
	odd := newSwitch(503, Reading{Raw: 7, Kind: KindSwitch}, owner)
	if odd.State() != "Unknown" || odd.IsOn() {
		t.Errorf("State() = %q, IsOn() = %v", odd.State(), odd.IsOn())
	}
	if err := odd.Toggle(context.Background()); err != nil || owner.state != 1 {
		t.Errorf("Toggle() on unknown state sent %d (err %v), want 1", owner.state, err)
	}
	if owner.calls != 3 {
		t.Errorf("calls = %d, want 3", owner.calls)
	}
}

func TestSwitchIdentity(t *testing.T) {
	sw := newSwitch(502, Reading{Label: "Swim Jets", Kind: KindSwitch}, &recordingCommander{})

	if sw.Key() != "502" || sw.ID() != 502 || sw.Kind() != KindSwitch || sw.Name() != "Swim Jets" {
		t.Errorf("identity = %q/%d/%v/%q", sw.Key(), sw.ID(), sw.Kind(), sw.Name())
	}
}

func TestKindString(t *testing.T) {
	tests := map[Kind]string{
		KindNone:         "",
		KindSensor:       "sensor",
		KindBinarySensor: "binary_sensor",
		KindSwitch:       "switch",
	}
	for kind, want := range tests {
		if got := kind.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", int(kind), got, want)
		}
	}
}
