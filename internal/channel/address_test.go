package channel

import "testing"

func TestAddress(t *testing.T) {
	tests := []struct {
		name   string
		host   string
		secure bool
		mode   Mode
		scope  string
		want   string
	}{
		{"chat default", "localhost:8000", false, ModeChat, "", "ws://localhost:8000/ws"},
		{"chat with project scope", "localhost:8000", false, ModeChat, "7", "ws://localhost:8000/ws/7"},
		{"secure scheme", "tasks.example.com", true, ModeChat, "", "wss://tasks.example.com/ws"},
		{"learn more", "localhost:8000", false, ModeLearnMore, "", "ws://localhost:8000/ws/learn-more"},
		{"login", "localhost:8000", false, ModeLogin, "", "ws://localhost:8000/ws/login"},
		{"empty mode falls back to chat", "localhost:8000", false, "", "", "ws://localhost:8000/ws"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Address(tt.host, tt.secure, tt.mode, tt.scope)
			if err != nil {
				t.Fatalf("Address failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Address() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddressRejectsBadInput(t *testing.T) {
	if _, err := Address("", false, ModeChat, ""); err == nil {
		t.Error("expected error for empty host")
	}
	if _, err := Address("localhost:8000", false, "kiosk", ""); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestAddressScopeOnlyAppliesToChat(t *testing.T) {
	got, err := Address("localhost:8000", false, ModeLearnMore, "7")
	if err != nil {
		t.Fatalf("Address failed: %v", err)
	}
	if got != "ws://localhost:8000/ws/learn-more" {
		t.Errorf("Address() = %q, scope must not leak into fixed paths", got)
	}
}
