package brain

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestSanitizer() *Sanitizer {
	return NewSanitizer(zerolog.Nop(), []string{"hvac_main"}, "swarm_hub", nil)
}

func TestValidateCreateTaskBounds(t *testing.T) {
	s := newTestSanitizer()

	cases := []struct {
		name    string
		bounty  int
		urgency int
		wantErr bool
	}{
		{"ok", 1500, 2, false},
		{"bounty at cap", 5000, 0, false},
		{"bounty over cap", 5001, 0, true},
		{"negative bounty", -1, 0, true},
		{"urgency at max", 0, 4, false},
		{"urgency over max", 0, 5, true},
		{"negative urgency", 0, -1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.ValidateCreateTask(tc.bounty, tc.urgency)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateCreateTask(%d, %d) = %v, wantErr %v", tc.bounty, tc.urgency, err, tc.wantErr)
			}
		})
	}
}

func TestCreateTaskRateLimitAdvancesOnlyOnSuccess(t *testing.T) {
	s := newTestSanitizer()

	// Validation alone must never consume the budget.
	for i := 0; i < 50; i++ {
		if err := s.ValidateCreateTask(100, 1); err != nil {
			t.Fatalf("validation %d consumed the rate budget: %v", i, err)
		}
	}

	for i := 0; i < createTaskLimit; i++ {
		if err := s.ValidateCreateTask(100, 1); err != nil {
			t.Fatalf("creation %d rejected early: %v", i, err)
		}
		s.RecordCreateTaskSuccess()
	}

	err := s.ValidateCreateTask(100, 1)
	if err == nil {
		t.Fatal("expected rate limit rejection after 10 recorded creations")
	}
	if !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("expected rate limit error, got %v", err)
	}
}

func TestSpeakRejectsEmptyMessage(t *testing.T) {
	s := newTestSanitizer()
	if err := s.ValidateSpeak("main", "   "); err == nil {
		t.Fatal("expected empty speak message to be rejected")
	}
}

func TestSpeakCooldownPerZone(t *testing.T) {
	s := newTestSanitizer()

	if err := s.ValidateSpeak("main", "hello"); err != nil {
		t.Fatalf("first speak rejected: %v", err)
	}
	s.RecordSpeakSuccess("main")

	if err := s.ValidateSpeak("main", "hello again"); err == nil {
		t.Fatal("expected second speak in same zone within 300s to be rejected")
	}
	// A different zone is unaffected.
	if err := s.ValidateSpeak("kitchen", "hello"); err != nil {
		t.Fatalf("speak in unrelated zone rejected: %v", err)
	}

	// Once the window has passed the zone opens up again.
	s.mu.Lock()
	s.lastSpeakAt["main"] = time.Now().Add(-speakCooldown - time.Second)
	s.mu.Unlock()
	if err := s.ValidateSpeak("main", "later"); err != nil {
		t.Fatalf("speak after cooldown rejected: %v", err)
	}
}

func TestDeviceCommandAllowList(t *testing.T) {
	s := newTestSanitizer()

	if err := s.ValidateDeviceCommand("hvac_main", "status", nil); err != nil {
		t.Fatalf("allow-listed agent rejected: %v", err)
	}
	if err := s.ValidateDeviceCommand("swarm_hub_03", "status", nil); err != nil {
		t.Fatalf("prefixed agent rejected: %v", err)
	}
	if err := s.ValidateDeviceCommand("rogue_device", "status", nil); err == nil {
		t.Fatal("expected unknown agent to be rejected")
	}
	if err := s.ValidateDeviceCommand("", "status", nil); err == nil {
		t.Fatal("expected empty agent id to be rejected")
	}
}

func TestDeviceCommandParameterRanges(t *testing.T) {
	s := newTestSanitizer()

	cases := []struct {
		name    string
		tool    string
		args    map[string]interface{}
		wantErr bool
	}{
		{"temperature in range", "set_temperature", map[string]interface{}{"temperature": 22.0}, false},
		{"temperature at low bound", "set_temperature", map[string]interface{}{"temperature": 18.0}, false},
		{"temperature too low", "set_temperature", map[string]interface{}{"temperature": 17.5}, true},
		{"temperature too high", "set_temperature", map[string]interface{}{"temperature": 28.5}, true},
		{"temperature missing", "set_temperature", map[string]interface{}{}, true},
		{"pump in range", "run_pump", map[string]interface{}{"duration": 30.0}, false},
		{"pump at bound", "run_pump", map[string]interface{}{"duration": 60.0}, false},
		{"pump too long", "run_pump", map[string]interface{}{"duration": 61.0}, true},
		{"pump zero", "run_pump", map[string]interface{}{"duration": 0.0}, true},
		{"unconstrained tool", "open_blinds", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := s.ValidateDeviceCommand("hvac_main", tc.tool, tc.args)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ValidateDeviceCommand(%s, %v) = %v, wantErr %v", tc.tool, tc.args, err, tc.wantErr)
			}
		})
	}
}
