package worldmodel

import (
	"fmt"
	"math"
	"time"
)

const (
	co2Threshold      = 1000.0
	co2Cooldown       = 600 * time.Second
	tempSpikeDelta    = 3.0
	sedentaryMinSec   = 1800.0
	sedentaryCooldown = 3600 * time.Second
	tamperDeltaAbs    = 5.0
	tamperDeltaPct    = 0.20
	tamperWindow      = 30 * time.Second
	tamperCooldown    = 300 * time.Second
)

// detectChannelEvents runs the cheap-guards-first detectors. rawValue is
// this update's unfused sample (used for delta checks against the
// previous raw sample, so a single extreme reading isn't smoothed away
// by older readings still in the fusion window); fusedValue is the
// windowed fused average (used for threshold checks that key off the
// displayed reading, e.g. co2_threshold_exceeded).
func (m *Model) detectChannelEvents(z *Zone, channel string, rawValue, fusedValue float64, now time.Time) []Event {
	var events []Event
	prev, hadPrev := z.prevValues[channel]

	if channel == "co2" && fusedValue > co2Threshold {
		if m.cooldownElapsed(z, "co2_threshold_exceeded", now, co2Cooldown) {
			e := Event{
				Timestamp: now,
				EventType: "co2_threshold_exceeded",
				Severity:  SeverityWarning,
				Data:      map[string]interface{}{"zone": z.ZoneID, "co2": fusedValue},
				Summary:   fmt.Sprintf("CO2 in zone %s exceeded 1000ppm (%.0f)", z.ZoneID, fusedValue),
			}
			z.appendEvent(e)
			events = append(events, e)
			z.lastEventAt["co2_threshold_exceeded"] = now
		}
	}

	if hadPrev && channel == "temperature" {
		delta := rawValue - prev.value
		if math.Abs(delta) > tempSpikeDelta {
			e := Event{
				Timestamp: now,
				EventType: "temp_spike",
				Severity:  SeverityWarning,
				Data:      map[string]interface{}{"zone": z.ZoneID, "delta": delta, "value": rawValue},
				Summary:   fmt.Sprintf("temperature in zone %s jumped %.1f°C to %.1f°C", z.ZoneID, delta, rawValue),
			}
			z.appendEvent(e)
			events = append(events, e)
		}
	}

	if hadPrev && now.Sub(prev.at) <= tamperWindow {
		delta := math.Abs(rawValue - prev.value)
		pctDelta := 0.0
		if prev.value != 0 {
			pctDelta = delta / math.Abs(prev.value)
		}
		if (delta >= tamperDeltaAbs || pctDelta >= tamperDeltaPct) && m.cooldownElapsed(z, "sensor_tamper", now, tamperCooldown) {
			e := Event{
				Timestamp: now,
				EventType: "sensor_tamper",
				Severity:  SeverityWarning,
				Data:      map[string]interface{}{"zone": z.ZoneID, "channel": channel, "delta": delta},
				Summary:   fmt.Sprintf("possible tamper on %s sensor in zone %s (Δ=%.1f in %.0fs)", channel, z.ZoneID, delta, now.Sub(prev.at).Seconds()),
			}
			z.appendEvent(e)
			events = append(events, e)
			z.lastEventAt["sensor_tamper"] = now
		}
	}

	z.prevValues[channel] = channelSample{value: rawValue, at: now}

	if sed := m.detectSedentary(z, now); sed != nil {
		events = append(events, *sed)
	}

	return events
}

func (m *Model) detectSedentary(z *Zone, now time.Time) *Event {
	if z.Occupancy.PersonCount <= 0 || z.Occupancy.PostureStatus != PostureStatic {
		return nil
	}
	if z.Occupancy.PostureDurationSec < sedentaryMinSec {
		return nil
	}
	if !m.cooldownElapsed(z, "sedentary_alert", now, sedentaryCooldown) {
		return nil
	}
	e := Event{
		Timestamp: now,
		EventType: "sedentary_alert",
		Severity:  SeverityInfo,
		Data:      map[string]interface{}{"zone": z.ZoneID, "duration_sec": z.Occupancy.PostureDurationSec},
		Summary:   fmt.Sprintf("occupant in zone %s has been static for %.0fs", z.ZoneID, z.Occupancy.PostureDurationSec),
	}
	z.appendEvent(e)
	z.lastEventAt["sedentary_alert"] = now
	return &e
}

func (m *Model) cooldownElapsed(z *Zone, eventType string, now time.Time, cooldown time.Duration) bool {
	last, ok := z.lastEventAt[eventType]
	if !ok {
		return true
	}
	return now.Sub(last) >= cooldown
}
