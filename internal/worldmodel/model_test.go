package worldmodel

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestModel() *Model {
	return New(zerolog.Nop())
}

func sensorMsg(t *testing.T, value float64) []byte {
	t.Helper()
	b, err := json.Marshal(sensorPayload{Value: value, SensorID: "s1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func hasEventType(events []Event, eventType string) bool {
	for _, e := range events {
		if e.EventType == eventType {
			return true
		}
	}
	return false
}

func TestTempSpikeDetection(t *testing.T) {
	m := newTestModel()

	m.UpdateFromMessage("office/main/sensor/t1/temperature", sensorMsg(t, 22.0))
	events := m.UpdateFromMessage("office/main/sensor/t1/temperature", sensorMsg(t, 26.0))

	if !hasEventType(events, "temp_spike") {
		t.Fatalf("expected temp_spike for 22.0->26.0 (|Δ|=4>3), got %+v", events)
	}
}

func TestCO2ThresholdAndCooldown(t *testing.T) {
	m := newTestModel()

	events := m.UpdateFromMessage("office/main/sensor/c1/co2", sensorMsg(t, 2000))
	if !hasEventType(events, "co2_threshold_exceeded") {
		t.Fatalf("expected co2_threshold_exceeded, got %+v", events)
	}

	events2 := m.UpdateFromMessage("office/main/sensor/c1/co2", sensorMsg(t, 2000))
	if hasEventType(events2, "co2_threshold_exceeded") {
		t.Fatalf("expected no repeat co2_threshold_exceeded within cooldown, got %+v", events2)
	}
}

func TestSensorTamperOnRapidDelta(t *testing.T) {
	m := newTestModel()

	m.UpdateFromMessage("office/main/sensor/h1/humidity", sensorMsg(t, 60))
	events := m.UpdateFromMessage("office/main/sensor/h1/humidity", sensorMsg(t, 20))

	if !hasEventType(events, "sensor_tamper") {
		t.Fatalf("expected sensor_tamper for 60->20 humidity swing, got %+v", events)
	}
}

func TestAlertsListedBeforeZoneDetail(t *testing.T) {
	m := newTestModel()
	m.UpdateFromMessage("office/main/sensor/c1/co2", sensorMsg(t, 2000))

	ctx := m.GetLLMContext()
	alertsIdx := strings.Index(ctx, "alerts:")
	zoneIdx := strings.Index(ctx, "zone main:")

	if alertsIdx == -1 {
		t.Fatalf("expected alerts section, got: %s", ctx)
	}
	if zoneIdx == -1 {
		t.Fatalf("expected zone detail section, got: %s", ctx)
	}
	if alertsIdx > zoneIdx {
		t.Fatalf("expected alerts before zone detail, got: %s", ctx)
	}
}

func TestContextCachedFiveSeconds(t *testing.T) {
	m := newTestModel()
	m.UpdateFromMessage("office/main/camera/cam1", mustJSON(t, cameraPayload{VisionCount: 1}))

	first := m.GetLLMContext()

	m.mu.Lock()
	m.zones["main"].Occupancy.PersonCount = 99
	m.mu.Unlock()

	cached := m.GetLLMContext()
	if cached != first {
		t.Fatalf("expected cached context to be stable within TTL")
	}

	m.cacheMu.Lock()
	m.cachedAt = time.Now().Add(-10 * time.Second)
	m.cacheMu.Unlock()

	refreshed := m.GetLLMContext()
	if refreshed == first {
		t.Fatalf("expected context to refresh after TTL expiry")
	}
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestUnknownTopicIgnored(t *testing.T) {
	m := newTestModel()
	events := m.UpdateFromMessage("not/a/topic", []byte(`{}`))
	if events != nil {
		t.Fatalf("expected nil events for non-matching topic, got %+v", events)
	}
	if len(m.GetAllZones()) != 0 {
		t.Fatalf("expected no zones created for non-matching topic")
	}
}
