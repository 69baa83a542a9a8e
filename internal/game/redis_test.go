package game

import "testing"

func TestUserChannel(t *testing.T) {
	if got := UserChannel("alice"); got != "user-alice" {
		t.Errorf("UserChannel(alice) = %q, want user-alice", got)
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{100, "100"},
		{2.5, "2.5"},
		{0.01, "0.01"},
		{1000, "1000"},
	}
	for _, tt := range tests {
		if got := formatAmount(tt.in); got != tt.want {
			t.Errorf("formatAmount(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewHub_StartsEmpty(t *testing.T) {
	hub := NewHub(nil)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}
