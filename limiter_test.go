package main

import (
	"net"
	"testing"
	"time"
)

func newTestLimiter(t *testing.T, cfg RateLimitConfig, goroutines int) *LimiterManager {
	t.Helper()
	lm, err := NewLimiter(cfg)
	if err != nil {
		t.Fatalf("NewLimiter: %v", err)
	}
	lm.goroutines = func() int { return goroutines }
	return lm
}

func TestLimiterDisabled(t *testing.T) {
	lm := newTestLimiter(t, RateLimitConfig{Enabled: false, ClientQPS: 1, HardMaxGoroutines: 1}, 1000)
	for i := 0; i < 5; i++ {
		if action, _, _ := lm.Check(net.ParseIP("192.0.2.1")); action != ActionAllow {
			t.Fatalf("disabled limiter returned %s", action)
		}
	}
}

func TestLimiterClientPacing(t *testing.T) {
	lm := newTestLimiter(t, RateLimitConfig{Enabled: true, ClientQPS: 1, ClientBurst: 1}, 10)
	ip := net.ParseIP("192.0.2.1")

	want := []LimitAction{ActionAllow, ActionDelay, ActionDrop}
	for i, w := range want {
		action, delay, reason := lm.Check(ip)
		if action != w {
			t.Fatalf("request %d: %s (%s), want %s", i, action, reason, w)
		}
		if action == ActionDelay && (delay <= 0 || delay > maxPacingDelay) {
			t.Errorf("delay = %v", delay)
		}
	}

	// Other clients have their own bucket
	if action, _, _ := lm.Check(net.ParseIP("192.0.2.2")); action != ActionAllow {
		t.Errorf("second client got %s", action)
	}
	if action, _, _ := lm.Check(nil); action != ActionAllow {
		t.Errorf("unknown peer got %s", action)
	}
}

func TestLimiterTrusted(t *testing.T) {
	cfg := RateLimitConfig{
		Enabled:           true,
		ClientQPS:         1,
		ClientBurst:       1,
		MaxGoroutines:     100,
		HardMaxGoroutines: 200,
		TrustedCIDRs:      StringOrSlice{"10.0.0.0/8", "2001:db8::1"},
	}
	lm := newTestLimiter(t, cfg, 10)

	for _, s := range []string{"10.1.2.3", "2001:db8::1"} {
		ip := net.ParseIP(s)
		if !lm.IsTrusted(ip) {
			t.Errorf("%s not trusted", s)
		}
		for i := 0; i < 5; i++ {
			if action, _, _ := lm.Check(ip); action != ActionAllow {
				t.Fatalf("trusted %s got %s", s, action)
			}
		}
	}
	if lm.IsTrusted(net.ParseIP("11.0.0.1")) || lm.IsTrusted(nil) {
		t.Error("untrusted address reported as trusted")
	}

	// Overload still sheds trusted clients
	lm.goroutines = func() int { return 500 }
	if action, _, _ := lm.Check(net.ParseIP("10.1.2.3")); action != ActionDrop {
		t.Errorf("trusted client under overload got %s", action)
	}

	if _, err := NewLimiter(RateLimitConfig{TrustedCIDRs: StringOrSlice{"not-a-cidr"}}); err == nil {
		t.Error("invalid cidr accepted")
	}
}

func TestLimiterGoroutineLimits(t *testing.T) {
	cfg := RateLimitConfig{
		Enabled:           true,
		MaxGoroutines:     100,
		HardMaxGoroutines: 200,
		parsedBaseDelay:   10 * time.Millisecond,
		parsedMaxDelay:    110 * time.Millisecond,
	}
	tests := []struct {
		goroutines int
		action     LimitAction
		delay      time.Duration
	}{
		{50, ActionAllow, 0},
		{100, ActionAllow, 0},
		{150, ActionDelay, 60 * time.Millisecond},
		{199, ActionDelay, 109 * time.Millisecond},
		{200, ActionDrop, 0},
	}
	for _, tt := range tests {
		lm := newTestLimiter(t, cfg, tt.goroutines)
		action, delay, _ := lm.Check(net.ParseIP("192.0.2.1"))
		if action != tt.action || delay != tt.delay {
			t.Errorf("%d goroutines: %s %v, want %s %v", tt.goroutines, action, delay, tt.action, tt.delay)
		}
	}
}

func TestLimiterCleanup(t *testing.T) {
	cfg := RateLimitConfig{Enabled: true, ClientQPS: 10, parsedClientExpiration: time.Minute}
	lm := newTestLimiter(t, cfg, 1)
	lm.Check(net.ParseIP("192.0.2.1"))
	lm.Check(net.ParseIP("192.0.2.2"))

	if n := lm.cleanup(time.Now()); n != 0 {
		t.Errorf("cleanup removed %d fresh clients", n)
	}
	if n := lm.cleanup(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Errorf("cleanup removed %d idle clients, want 2", n)
	}
}

func TestLimitActionString(t *testing.T) {
	if ActionAllow.String() != "ALLOW" || ActionDelay.String() != "DELAY" || ActionDrop.String() != "DROP" || LimitAction(9).String() != "UNKNOWN" {
		t.Error("unexpected LimitAction names")
	}
}
