/*
File: limiter.go
Version: 2.0.0
Description: Request admission for the HTTP API.
             Load shedding on goroutine count (soft limit delays, hard limit drops) and a per
             client token bucket that paces short bursts instead of rejecting them.
             Clients inside trusted_cidrs skip the per-client check but are still shed under
             overload.
*/

package main

import (
	"context"
	"fmt"
	"hash/maphash"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/yl2chen/cidranger"
	"golang.org/x/time/rate"
)

type LimitAction int

const (
	ActionAllow LimitAction = iota
	ActionDelay
	ActionDrop
)

func (a LimitAction) String() string {
	switch a {
	case ActionAllow:
		return "ALLOW"
	case ActionDelay:
		return "DELAY"
	case ActionDrop:
		return "DROP"
	default:
		return "UNKNOWN"
	}
}

const (
	limitShardCount = 256
	// Longest wait a paced client is given before it is dropped instead
	maxPacingDelay = 1 * time.Second
)

type clientState struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterShard struct {
	sync.Mutex
	clients map[string]*clientState
}

type LimiterManager struct {
	shards  [limitShardCount]*limiterShard
	config  RateLimitConfig
	seed    maphash.Seed
	trusted cidranger.Ranger

	// goroutines is swapped in tests
	goroutines func() int
}

// NewLimiter builds a limiter from cfg. A disabled config yields a limiter that allows all.
func NewLimiter(cfg RateLimitConfig) (*LimiterManager, error) {
	lm := &LimiterManager{
		config:     cfg,
		seed:       maphash.MakeSeed(),
		trusted:    cidranger.NewPCTrieRanger(),
		goroutines: runtime.NumGoroutine,
	}
	for i := 0; i < limitShardCount; i++ {
		lm.shards[i] = &limiterShard{clients: make(map[string]*clientState)}
	}

	for _, cidr := range cfg.TrustedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted cidr %q", cidr)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			network = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		if err := lm.trusted.Insert(cidranger.NewBasicRangerEntry(*network)); err != nil {
			return nil, fmt.Errorf("trusted cidr %q: %w", cidr, err)
		}
	}
	return lm, nil
}

// IsTrusted reports whether ip falls inside trusted_cidrs.
func (lm *LimiterManager) IsTrusted(ip net.IP) bool {
	if ip == nil {
		return false
	}
	ok, err := lm.trusted.Contains(ip)
	return err == nil && ok
}

// StartCleanupRoutine drops idle client buckets until ctx is done.
func (lm *LimiterManager) StartCleanupRoutine(ctx context.Context) {
	if !lm.config.Enabled {
		return
	}

	interval := lm.config.parsedCleanupInterval
	if interval == 0 {
		interval = time.Minute
	}

	LogInfo("[LIMITER] Starting cleanup routine (Interval: %v)", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			LogInfo("[LIMITER] Stopping cleanup routine")
			return
		case <-ticker.C:
			lm.cleanup(time.Now())
		}
	}
}

func (lm *LimiterManager) cleanup(now time.Time) int {
	expiration := lm.config.parsedClientExpiration
	if expiration == 0 {
		expiration = 5 * time.Minute
	}
	removed := 0
	for _, shard := range lm.shards {
		shard.Lock()
		for ip, state := range shard.clients {
			if now.Sub(state.lastSeen) > expiration {
				delete(shard.clients, ip)
				removed++
			}
		}
		shard.Unlock()
	}
	if removed > 0 && IsDebugEnabled() {
		LogDebug("[LIMITER] Cleaned up %d idle client limiters", removed)
	}
	return removed
}

func (lm *LimiterManager) getShard(key string) *limiterShard {
	return lm.shards[maphash.String(lm.seed, key)&(limitShardCount-1)]
}

// Check decides whether a request from clientIP may proceed now, later or not at all.
func (lm *LimiterManager) Check(clientIP net.IP) (LimitAction, time.Duration, string) {
	if !lm.config.Enabled {
		return ActionAllow, 0, ""
	}

	// System health first: applies to trusted clients too
	n := lm.goroutines()
	if lm.config.HardMaxGoroutines > 0 && n >= lm.config.HardMaxGoroutines {
		return ActionDrop, 0, fmt.Sprintf("System Overload (Hard Limit: %d/%d Goroutines)", n, lm.config.HardMaxGoroutines)
	}
	if lm.config.MaxGoroutines > 0 && n > lm.config.MaxGoroutines {
		ratio := 1.0
		if spread := lm.config.HardMaxGoroutines - lm.config.MaxGoroutines; spread > 0 {
			ratio = float64(n-lm.config.MaxGoroutines) / float64(spread)
			if ratio > 1 {
				ratio = 1
			}
		}
		base := lm.config.parsedBaseDelay
		max := lm.config.parsedMaxDelay
		delay := base + time.Duration(float64(max-base)*ratio)
		return ActionDelay, delay, fmt.Sprintf("System Load (Soft Limit: %d/%d Goroutines, Ratio: %.2f)", n, lm.config.MaxGoroutines, ratio)
	}

	if clientIP == nil || lm.config.ClientQPS <= 0 || lm.IsTrusted(clientIP) {
		return ActionAllow, 0, ""
	}

	key := clientIP.String()
	shard := lm.getShard(key)

	shard.Lock()
	state, ok := shard.clients[key]
	if !ok {
		burst := lm.config.ClientBurst
		if burst <= 0 {
			burst = lm.config.ClientQPS
		}
		state = &clientState{limiter: rate.NewLimiter(rate.Limit(lm.config.ClientQPS), burst)}
		shard.clients[key] = state
	}
	state.lastSeen = time.Now()
	reservation := state.limiter.Reserve()
	shard.Unlock()

	if !reservation.OK() {
		return ActionDrop, 0, "Client Rate Limit Exceeded"
	}

	delay := reservation.Delay()
	if delay == 0 {
		return ActionAllow, 0, ""
	}
	if delay <= maxPacingDelay {
		return ActionDelay, delay, fmt.Sprintf("Client QPS Pacing (IP: %s, Delay: %v)", key, delay)
	}

	reservation.Cancel()
	return ActionDrop, 0, fmt.Sprintf("Client QPS Exceeded (IP: %s, Required Delay: %v > Limit: %v)", key, delay, maxPacingDelay)
}
