package worldmodel

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	comfortColdMax  = 18.0
	comfortHotMin   = 26.0
	humidityLowMin  = 30.0
	humidityHighMax = 70.0
	stuffyCO2       = 1000.0
)

// GetLLMContext renders a human-readable multi-zone summary for the
// Brain's prompt assembly. Result is cached for 5s; any UpdateFromMessage
// call invalidates the cache.
func (m *Model) GetLLMContext() string {
	m.cacheMu.Lock()
	if m.cachedCtx != "" && time.Since(m.cachedAt) < m.cacheTTL {
		ctx := m.cachedCtx
		m.cacheMu.Unlock()
		return ctx
	}
	m.cacheMu.Unlock()

	rendered := m.render()

	m.cacheMu.Lock()
	m.cachedCtx = rendered
	m.cachedAt = time.Now()
	m.cacheMu.Unlock()

	return rendered
}

func (m *Model) render() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	zoneIDs := make([]string, 0, len(m.zones))
	for id := range m.zones {
		zoneIDs = append(zoneIDs, id)
	}
	sort.Strings(zoneIDs)

	var b strings.Builder

	alerts := collectAlerts(m.zones, zoneIDs)
	if len(alerts) > 0 {
		b.WriteString("alerts:\n")
		for _, a := range alerts {
			b.WriteString("- ")
			b.WriteString(a)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	for _, id := range zoneIDs {
		z := m.zones[id]
		b.WriteString(fmt.Sprintf("zone %s:\n", id))
		b.WriteString(fmt.Sprintf("  occupancy: %d people present", z.Occupancy.PersonCount))
		if z.Occupancy.ActivityClass != "" {
			b.WriteString(fmt.Sprintf(", activity %s", z.Occupancy.ActivityClass))
			if z.Occupancy.PostureDurationSec > 0 {
				b.WriteString(fmt.Sprintf(" (static %.0fs)", z.Occupancy.PostureDurationSec))
			}
		}
		b.WriteString("\n")

		if line := renderEnvironmentLine(&z.Environment); line != "" {
			b.WriteString("  environment: ")
			b.WriteString(line)
			b.WriteString("\n")
		}

		if len(z.Devices) > 0 {
			ids := make([]string, 0, len(z.Devices))
			for id := range z.Devices {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			b.WriteString("  devices: ")
			parts := make([]string, 0, len(ids))
			for _, id := range ids {
				d := z.Devices[id]
				parts = append(parts, fmt.Sprintf("%s=%s", d.DeviceID, d.PowerState))
			}
			b.WriteString(strings.Join(parts, ", "))
			b.WriteString("\n")
		}

		if recent := recentEvents(z.Events, 3, 10*time.Minute); len(recent) > 0 {
			b.WriteString("  recent events:\n")
			for _, e := range recent {
				b.WriteString(fmt.Sprintf("    - %s\n", e.Summary))
			}
		}
		b.WriteString("\n")
	}

	if len(zoneIDs) == 0 {
		return "no zones known yet"
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderEnvironmentLine(env *Environment) string {
	var parts []string
	if env.Temperature != nil {
		parts = append(parts, fmt.Sprintf("%.1f°C (%s)", *env.Temperature, thermalComfortLabel(*env.Temperature)))
	}
	if env.Humidity != nil {
		parts = append(parts, fmt.Sprintf("%.0f%% humidity", *env.Humidity))
	}
	if env.CO2 != nil {
		label := fmt.Sprintf("%.0fppm CO2", *env.CO2)
		if *env.CO2 > stuffyCO2 {
			label += " (stuffy)"
		}
		parts = append(parts, label)
	}
	if env.Illuminance != nil {
		parts = append(parts, fmt.Sprintf("%.0flux", *env.Illuminance))
	}
	if env.Pressure != nil {
		parts = append(parts, fmt.Sprintf("%.0fhPa", *env.Pressure))
	}
	return strings.Join(parts, ", ")
}

func thermalComfortLabel(temp float64) string {
	switch {
	case temp < comfortColdMax:
		return "cold"
	case temp > comfortHotMin:
		return "hot"
	default:
		return "comfortable"
	}
}

func recentEvents(events []Event, limit int, within time.Duration) []Event {
	cutoff := time.Now().Add(-within)
	var recent []Event
	for i := len(events) - 1; i >= 0 && len(recent) < limit; i-- {
		if events[i].Timestamp.After(cutoff) {
			recent = append([]Event{events[i]}, recent...)
		}
	}
	return recent
}

func collectAlerts(zones map[string]*Zone, ids []string) []string {
	var alerts []string
	for _, id := range ids {
		z := zones[id]
		env := z.Environment
		if env.Temperature != nil && (*env.Temperature < comfortColdMax || *env.Temperature > comfortHotMin) {
			alerts = append(alerts, fmt.Sprintf("%s: temperature out of comfortable range (%.1f°C)", id, *env.Temperature))
		}
		if env.Humidity != nil && (*env.Humidity < humidityLowMin || *env.Humidity > humidityHighMax) {
			alerts = append(alerts, fmt.Sprintf("%s: humidity out of range (%.0f%%)", id, *env.Humidity))
		}
		if env.CO2 != nil && *env.CO2 > stuffyCO2 {
			alerts = append(alerts, fmt.Sprintf("%s: CO2 elevated (%.0fppm)", id, *env.CO2))
		}
	}
	return alerts
}
