package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestConnectionLimit(t *testing.T) {
	rl := New(Config{MaxConnsPerIP: 2})
	defer rl.Stop()

	if !rl.AcquireConnection("1.2.3.4") || !rl.AcquireConnection("1.2.3.4") {
		t.Fatal("expected first two connections to be allowed")
	}
	if rl.AcquireConnection("1.2.3.4") {
		t.Fatal("expected third connection to be rejected")
	}
	if !rl.AcquireConnection("5.6.7.8") {
		t.Fatal("limit should be per ip")
	}

	rl.ReleaseConnection("1.2.3.4")
	if !rl.AcquireConnection("1.2.3.4") {
		t.Fatal("expected slot to be reusable after release")
	}

	rl.ReleaseConnection("5.6.7.8")
	if n := rl.Connections("5.6.7.8"); n != 0 {
		t.Errorf("expected 0 connections, got %d", n)
	}
}

func TestAuthWindow(t *testing.T) {
	rl := New(Config{AuthPerMinute: 2})
	defer rl.Stop()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.CanAuth("ip") || !rl.CanAuth("ip") {
		t.Fatal("expected first two attempts to be allowed")
	}
	if rl.CanAuth("ip") {
		t.Fatal("expected third attempt inside the window to be rejected")
	}

	now = now.Add(61 * time.Second)
	if !rl.CanAuth("ip") {
		t.Fatal("expected attempts to be allowed once the window has passed")
	}

	now = now.Add(2 * time.Minute)
	rl.cleanup()
	rl.mu.Lock()
	n := len(rl.authAttempts)
	rl.mu.Unlock()
	if n != 0 {
		t.Errorf("expected cleanup to drop stale entries, %d left", n)
	}
}

func TestDefaults(t *testing.T) {
	rl := New(Config{})
	defer rl.Stop()
	rl.Stop()

	if rl.maxConns != DefaultMaxConnsPerIP || rl.maxAuth != DefaultAuthPerMinute {
		t.Errorf("unexpected defaults: %d %d", rl.maxConns, rl.maxAuth)
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5555", "10.0.0.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.2"}, "10.0.0.1:5555", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.3"}, "10.0.0.1:5555", "198.51.100.3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := GetClientIP(r); got != tt.want {
				t.Errorf("GetClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
