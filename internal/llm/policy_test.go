package llm

import (
	"testing"
	"time"
)

func TestDefaultReconnectPolicyDelays(t *testing.T) {
	policy := DefaultReconnectPolicy()
	want := []time.Duration{
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, expected := range want {
		if got := policy.Delay(i + 1); got != expected {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, expected)
		}
	}
	if got := policy.Delay(1000); got != 60*time.Second {
		t.Fatalf("large attempt: got %v", got)
	}
}

func TestDefaultReconnectPolicyFlags(t *testing.T) {
	policy := DefaultReconnectPolicy()
	if !policy.RetryOnDisconnect || policy.RetryInitialConnection {
		t.Fatalf("unexpected flags: %+v", policy)
	}
	if policy.exhausted(1 << 20) {
		t.Fatalf("default policy must retry without bound")
	}
}

func TestReconnectPolicyExhausted(t *testing.T) {
	policy := ReconnectPolicy{MaxRetries: 3}
	if policy.exhausted(3) || !policy.exhausted(4) {
		t.Fatalf("unexpected exhaustion for MaxRetries=3")
	}
}
