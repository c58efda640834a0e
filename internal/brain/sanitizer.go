package brain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	maxBountyGold    = 5000
	minUrgency       = 0
	maxUrgency       = 4
	createTaskLimit  = 10
	createTaskWindow = time.Hour
	speakCooldown    = 5 * time.Minute
	minTemperatureC  = 18.0
	maxTemperatureC  = 28.0
	maxPumpSeconds   = 60.0
)

const redisOpTimeout = 500 * time.Millisecond

// Sanitizer is the policy gate every tool call must clear before its
// side effect runs. It mirrors internal/httpmw.RateLimiter's sliding-
// window shape, applied one layer up at the tool-call boundary instead
// of the HTTP boundary: a window of timestamps per key, guarded by a
// mutex, advanced only when the call it is guarding actually succeeds.
//
// When redis is non-nil, each zone's speak cooldown is additionally
// mirrored there so a Brain restart doesn't forget one already running;
// the in-memory state stays authoritative and is what every check
// actually decides on, so a Redis outage degrades to the process-local
// behavior instead of failing the call.
type Sanitizer struct {
	mu            sync.Mutex
	createTaskLog []time.Time
	lastSpeakAt   map[string]time.Time
	allowedAgents map[string]bool
	allowedPrefix string

	log   zerolog.Logger
	redis *redis.Client
}

// NewSanitizer creates a Sanitizer. allowedAgents is the device-agent
// allow-list send_device_command may target; any agent id beginning
// with allowedPrefix is accepted regardless (swarm-spawned agents use a
// shared prefix rather than individual registration). redisClient may
// be nil, in which case counters live only in process memory.
func NewSanitizer(log zerolog.Logger, allowedAgents []string, allowedPrefix string, redisClient *redis.Client) *Sanitizer {
	set := make(map[string]bool, len(allowedAgents))
	for _, a := range allowedAgents {
		set[a] = true
	}
	s := &Sanitizer{
		lastSpeakAt:   make(map[string]time.Time),
		allowedAgents: set,
		allowedPrefix: allowedPrefix,
		log:           log.With().Str("component", "sanitizer").Logger(),
		redis:         redisClient,
	}
	s.hydrateFromRedis()
	return s
}

// hydrateFromRedis restores per-zone speak cooldowns still live in
// Redis from a previous process, so a Brain restart doesn't forget a
// cooldown that was already running.
func (s *Sanitizer) hydrateFromRedis() {
	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	keys, err := s.redis.Keys(ctx, "sanitizer:speak:*").Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("sanitizer: redis hydrate failed, starting with empty cooldown state")
		return
	}
	for _, key := range keys {
		zone := strings.TrimPrefix(key, "sanitizer:speak:")
		ttl, err := s.redis.TTL(ctx, key).Result()
		if err != nil || ttl <= 0 {
			continue
		}
		s.lastSpeakAt[zone] = time.Now().Add(ttl - speakCooldown)
	}
}

// ValidateCreateTask checks bounty/urgency bounds and the rolling-hour
// rate limit without advancing the counter — advancing happens only
// once the task is actually created, via RecordCreateTaskSuccess.
func (s *Sanitizer) ValidateCreateTask(bountyGold, urgency int) error {
	if bountyGold < 0 || bountyGold > maxBountyGold {
		return fmt.Errorf("bounty_gold %d outside [0,%d]", bountyGold, maxBountyGold)
	}
	if urgency < minUrgency || urgency > maxUrgency {
		return fmt.Errorf("urgency %d outside [%d,%d]", urgency, minUrgency, maxUrgency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-createTaskWindow)
	count := 0
	for _, t := range s.createTaskLog {
		if t.After(cutoff) {
			count++
		}
	}
	if count >= createTaskLimit {
		return fmt.Errorf("create_task rate limit of %d per hour exceeded", createTaskLimit)
	}
	return nil
}

// RecordCreateTaskSuccess advances the rolling-hour counter after a
// create_task call actually executed.
func (s *Sanitizer) RecordCreateTaskSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	cutoff := now.Add(-createTaskWindow)
	kept := s.createTaskLog[:0]
	for _, t := range s.createTaskLog {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.createTaskLog = append(kept, now)
}

// ValidateSpeak rejects empty messages and messages inside a zone's
// 5-minute post-speak cooldown.
func (s *Sanitizer) ValidateSpeak(zone, message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("speak message must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.lastSpeakAt[zone]; ok {
		if since := time.Since(last); since < speakCooldown {
			return fmt.Errorf("zone %q is in its post-speak cooldown for %s more", zone, (speakCooldown - since).Round(time.Second))
		}
	}
	return nil
}

// RecordSpeakSuccess starts zone's cooldown window after a speak call
// actually executed.
func (s *Sanitizer) RecordSpeakSuccess(zone string) {
	s.mu.Lock()
	s.lastSpeakAt[zone] = time.Now()
	s.mu.Unlock()

	if s.redis == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := s.redis.Set(ctx, "sanitizer:speak:"+zone, "1", speakCooldown).Err(); err != nil {
		s.log.Warn().Err(err).Str("zone", zone).Msg("sanitizer: redis cooldown mirror failed")
	}
}

// ValidateDeviceCommand enforces the agent allow-list and the two
// known-dangerous tool parameter ranges.
func (s *Sanitizer) ValidateDeviceCommand(agentID, toolName string, args map[string]interface{}) error {
	if agentID == "" {
		return fmt.Errorf("agent_id must not be empty")
	}
	s.mu.Lock()
	allowed := s.allowedAgents[agentID] || (s.allowedPrefix != "" && strings.HasPrefix(agentID, s.allowedPrefix))
	s.mu.Unlock()
	if !allowed {
		return fmt.Errorf("agent %q is not on the device command allow-list", agentID)
	}

	switch toolName {
	case "set_temperature":
		v, err := numericArg(args, "temperature")
		if err != nil {
			return err
		}
		if v < minTemperatureC || v > maxTemperatureC {
			return fmt.Errorf("temperature %.1f outside [%.0f,%.0f]", v, minTemperatureC, maxTemperatureC)
		}
	case "run_pump":
		v, err := numericArg(args, "duration")
		if err != nil {
			return err
		}
		if v <= 0 || v > maxPumpSeconds {
			return fmt.Errorf("duration %.1f outside (0,%.0f]", v, maxPumpSeconds)
		}
	}
	return nil
}

func numericArg(args map[string]interface{}, key string) (float64, error) {
	raw, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing required argument %q", key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("argument %q is not numeric", key)
	}
}
