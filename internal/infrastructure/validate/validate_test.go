package validate

import (
	"strings"
	"testing"
)

func TestRoomID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "canonical uuid", value: "3f1c2a7e-8b4d-4c1e-9f2a-6d5b4c3a2e1f"},
		{name: "empty", value: "", wantErr: true},
		{name: "not a uuid", value: "r1", wantErr: true},
		{name: "braced uuid", value: "{3f1c2a7e-8b4d-4c1e-9f2a-6d5b4c3a2e1f}", wantErr: true},
	}

	v := RoomID()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v(tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RoomID(%q) error = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "roomId") {
				t.Fatalf("error %q does not name the field", err)
			}
		})
	}
}

func TestMessageText(t *testing.T) {
	v := MessageText(5)

	if err := v("hello"); err != nil {
		t.Fatalf("five bytes should pass: %v", err)
	}
	if err := v("héllo"); err == nil {
		t.Fatal("six bytes should fail")
	}
	if err := v("   "); err == nil {
		t.Fatal("blank message should fail")
	}
	if err := v(string([]byte{0xff, 0xfe})); err == nil {
		t.Fatal("invalid utf-8 should fail")
	}
}

func TestUsername(t *testing.T) {
	v := Username()

	if err := v("anonymous-Fox-a1b2c"); err != nil {
		t.Fatalf("generated username rejected: %v", err)
	}
	if err := v("bad\x00name"); err == nil {
		t.Fatal("control characters should fail")
	}
}

func TestOneOf(t *testing.T) {
	v := OneOf("redis", "memory")
	if err := v("redis"); err != nil {
		t.Fatal(err)
	}
	if err := v("sqlite"); err == nil || !strings.Contains(err.Error(), "redis, memory") {
		t.Fatalf("unexpected error %v", err)
	}
}
