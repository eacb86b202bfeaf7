package screenlogic

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLoginPayload(t *testing.T) {
	payload, err := LoginPayload("mypassword")
	if err != nil {
		t.Fatalf("LoginPayload() error: %v", err)
	}

	w := &writer{}
	w.uint32(348)
	w.uint32(0)
	w.raw(EncodeString("Android"))
	w.raw(EncodeString("mypassword"))
	w.uint8(0)
	w.uint32(2)

	if !bytes.Equal(payload, w.bytes()) {
		t.Errorf("LoginPayload() = % X\nwant % X", payload, w.bytes())
	}

	password, err := ParseLoginPayload(payload)
	if err != nil {
		t.Fatalf("ParseLoginPayload() error: %v", err)
	}
	if password != "mypassword" {
		t.Errorf("ParseLoginPayload() = %q, want mypassword", password)
	}
}

func TestLoginPayloadRejectsBadPasswords(t *testing.T) {
	tests := []struct {
		name     string
		password string
	}{
		{"empty", ""},
		{"too long", strings.Repeat("x", MaxPasswordLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoginPayload(tt.password); !errors.Is(err, ErrInvalidPassword) {
				t.Errorf("LoginPayload() error = %v, want ErrInvalidPassword", err)
			}
		})
	}

	if _, err := LoginPayload(strings.Repeat("x", MaxPasswordLength)); err != nil {
		t.Errorf("LoginPayload() at max length error: %v", err)
	}
}

func TestQueryPayloads(t *testing.T) {
	if got := ConfigQueryPayload(); !bytes.Equal(got, make([]byte, 8)) {
		t.Errorf("ConfigQueryPayload() = % X, want 8 zero bytes", got)
	}
	if got := StatusQueryPayload(); !bytes.Equal(got, make([]byte, 4)) {
		t.Errorf("StatusQueryPayload() = % X, want 4 zero bytes", got)
	}
}

func TestButtonPressPayload(t *testing.T) {
	payload := ButtonPressPayload(502, 1)

	want := []byte{0, 0, 0, 0, 0xF6, 0x01, 0, 0, 1, 0, 0, 0}
	if !bytes.Equal(payload, want) {
		t.Errorf("ButtonPressPayload() = % X, want % X", payload, want)
	}

	id, state, err := ParseButtonPressPayload(payload)
	if err != nil {
		t.Fatalf("ParseButtonPressPayload() error: %v", err)
	}
	if id != 502 || state != 1 {
		t.Errorf("ParseButtonPressPayload() = %d, %d, want 502, 1", id, state)
	}

	if _, _, err := ParseButtonPressPayload(payload[:6]); !errors.Is(err, ErrTruncatedPayload) {
		t.Errorf("ParseButtonPressPayload(short) error = %v, want ErrTruncatedPayload", err)
	}
}

func TestVersionPayload(t *testing.T) {
	const version = "POOL: 5.2 Build 736.0 Rel"

	got, err := ParseVersionPayload(VersionAnswerPayload(version))
	if err != nil {
		t.Fatalf("ParseVersionPayload() error: %v", err)
	}
	if got != version {
		t.Errorf("ParseVersionPayload() = %q, want %q", got, version)
	}

	if _, err := ParseVersionPayload([]byte{9, 0}); !errors.Is(err, ErrTruncatedPayload) {
		t.Errorf("ParseVersionPayload(short) error = %v, want ErrTruncatedPayload", err)
	}
}

func TestRenderingHelpers(t *testing.T) {
	if OnOff(0) != "Off" || OnOff(1) != "On" || OnOff(2) != "Unknown" || OnOff(-1) != "Unknown" {
		t.Error("OnOff() mapping wrong")
	}
	if HeatModeName(3) != "Heat" || HeatModeName(9) != "Unknown" || HeatModeName(-1) != "Unknown" {
		t.Error("HeatModeName() mapping wrong")
	}
	if CircuitName(505) != "Pool" || CircuitName(42) != "Circuit 42" {
		t.Error("CircuitName() mapping wrong")
	}
	if BodySpa.String() != "Spa" || BodyPool.String() != "Pool" {
		t.Error("BodyType.String() wrong")
	}
}
