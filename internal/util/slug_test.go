package util

import "testing"

func TestSlugify(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"VPN issue", "vpn-issue"},
		{"  Database   Failover!  ", "database-failover"},
		{"How-To: Rotate TLS certs (2024)", "how-to-rotate-tls-certs-2024"},
		{"", "untitled"},
		{"!!!", "untitled"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNewIDPrefix(t *testing.T) {
	id := NewID("art")
	if len(id) <= 4 {
		t.Fatalf("unexpected id %q", id)
	}
	if id[:4] != "art_" {
		t.Errorf("expected art_ prefix, got %q", id)
	}
	if NewID("art") == id {
		t.Error("ids must be unique")
	}
}
