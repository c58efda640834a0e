package worldmodel

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// windowDuration is how long raw readings stay eligible for fusion.
const windowDuration = 600 * time.Second

var channelHalfLife = map[string]float64{
	"temperature": 120,
	"humidity":    120,
	"illuminance": 120,
	"co2":         60,
	"occupancy":   30,
	"pir":         10,
}

const defaultHalfLife = 120.0
const defaultReliability = 0.5

// Model is the single in-memory world state. All mutation happens on
// Brain's single world-update consumer goroutine — bus callbacks must
// never call UpdateFromMessage directly; see Brain's worldInbox channel.
type Model struct {
	mu    sync.RWMutex
	log   zerolog.Logger
	zones map[string]*Zone

	// readings is keyed by "zone_id\x00channel".
	readings map[string][]reading

	cacheMu   sync.Mutex
	cachedCtx string
	cachedAt  time.Time
	cacheTTL  time.Duration
}

// New creates an empty Model.
func New(log zerolog.Logger) *Model {
	return &Model{
		log:      log,
		zones:    make(map[string]*Zone),
		readings: make(map[string][]reading),
		cacheTTL: 5 * time.Second,
	}
}

// sensorPayload is the shape of a `sensor` device_type message.
type sensorPayload struct {
	Value       float64  `json:"value"`
	SensorID    string   `json:"sensor_id"`
	Reliability *float64 `json:"reliability"`
}

// cameraPayload is the shape of a `camera` device_type message.
type cameraPayload struct {
	VisionCount int  `json:"vision_count"`
	PIRDetected bool `json:"pir_detected"`
}

// activityPayload is the shape of an `activity` device_type message.
type activityPayload struct {
	ActivityDistribution map[string]int `json:"activity_distribution"`
	AvgMotionLevel       float64        `json:"avg_motion_level"`
	PostureDurationSec   float64        `json:"posture_duration_sec"`
}

// devicePayload is the shape of a device-class (hvac, light, …) message.
type devicePayload struct {
	PowerState    string                 `json:"power_state"`
	SpecificState map[string]interface{} `json:"specific_state"`
	IsOnline      *bool                  `json:"is_online"`
	Command       string                 `json:"command"`
}

// taskReportPayload is the shape of a task_report device_type message.
type taskReportPayload struct {
	TaskID         string `json:"task_id"`
	Title          string `json:"title"`
	ReportStatus   string `json:"report_status"`
	CompletionNote string `json:"completion_note"`
}

// parsedTopic is office/{zone}/{device_type}/{device_id}[/{channel}].
type parsedTopic struct {
	zone       string
	deviceType string
	deviceID   string
	channel    string
}

func parseTopic(topic string) (parsedTopic, bool) {
	parts := strings.Split(strings.Trim(topic, "/"), "/")
	if len(parts) < 4 || parts[0] != "office" {
		return parsedTopic{}, false
	}
	pt := parsedTopic{zone: parts[1], deviceType: parts[2], deviceID: parts[3]}
	if len(parts) >= 5 {
		pt.channel = parts[4]
	}
	return pt, true
}

// UpdateFromMessage parses topic, locates or creates the named zone, and
// routes payload to the handler matching device_type. Non-matching
// topics are silently ignored. Returns the events produced, if any.
func (m *Model) UpdateFromMessage(topic string, payload []byte) []Event {
	pt, ok := parseTopic(topic)
	if !ok {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	z, ok := m.zones[pt.zone]
	if !ok {
		z = newZone(pt.zone)
		m.zones[pt.zone] = z
	}

	var events []Event
	now := time.Now()

	switch {
	case pt.deviceType == "sensor":
		events = m.handleSensor(z, pt, payload, now)
	case pt.deviceType == "camera":
		events = m.handleCamera(z, payload, now)
	case pt.deviceType == "activity":
		events = m.handleActivity(z, payload, now)
	case pt.deviceType == "task_report":
		events = m.handleTaskReport(z, payload, now)
	default:
		m.handleDevice(z, pt, payload, now)
	}

	z.LastUpdate = now
	m.invalidateCache()
	return events
}

func (m *Model) handleSensor(z *Zone, pt parsedTopic, payload []byte, now time.Time) []Event {
	var p sensorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.log.Warn().Err(err).Str("topic_device", pt.deviceID).Msg("worldmodel: malformed sensor payload")
		return nil
	}
	channel := pt.channel
	if channel == "" {
		return nil
	}
	reliability := defaultReliability
	if p.Reliability != nil {
		reliability = *p.Reliability
	}
	sensorID := p.SensorID
	if sensorID == "" {
		sensorID = pt.deviceID
	}

	key := readingKey(z.ZoneID, channel)
	m.readings[key] = append(m.readings[key], reading{sensorID: sensorID, value: p.Value, at: now, reliability: reliability})
	m.readings[key] = pruneOldReadings(m.readings[key], now)

	fused := fuse(m.readings[key], channel, now)
	applyFusedReading(&z.Environment, channel, fused, now)

	// Event detection compares the raw incoming sample against the
	// previous raw sample, not the windowed fused average — a single
	// extreme reading should trip temp_spike/sensor_tamper immediately
	// rather than being smoothed away by older readings still in window.
	return m.detectChannelEvents(z, channel, p.Value, fused, now)
}

func readingKey(zone, channel string) string { return zone + "\x00" + channel }

func pruneOldReadings(rs []reading, now time.Time) []reading {
	cutoff := now.Add(-windowDuration)
	out := rs[:0]
	for _, r := range rs {
		if r.at.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// fuse computes the weighted exponential-decay average described for
// sensor fusion: value = Σ(value·weight) / Σweight, weight =
// reliability·exp(−age/half_life).
func fuse(rs []reading, channel string, now time.Time) float64 {
	if len(rs) == 0 {
		return 0
	}
	halfLife, ok := channelHalfLife[channel]
	if !ok {
		halfLife = defaultHalfLife
	}

	var weightedSum, weightSum float64
	for _, r := range rs {
		age := now.Sub(r.at).Seconds()
		ageFactor := math.Exp(-age / halfLife)
		weight := r.reliability * ageFactor
		weightedSum += r.value * weight
		weightSum += weight
	}
	if weightSum == 0 {
		return rs[len(rs)-1].value
	}
	return weightedSum / weightSum
}

func applyFusedReading(env *Environment, channel string, value float64, now time.Time) {
	v := value
	switch channel {
	case "temperature":
		env.Temperature = &v
	case "humidity":
		env.Humidity = &v
	case "co2":
		env.CO2 = &v
	case "illuminance":
		env.Illuminance = &v
	case "pressure":
		env.Pressure = &v
	case "gas_resistance":
		env.GasResistance = &v
	default:
		return
	}
	env.LastUpdate = now
}

func (m *Model) handleCamera(z *Zone, payload []byte, now time.Time) []Event {
	var p cameraPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.log.Warn().Err(err).Msg("worldmodel: malformed camera payload")
		return nil
	}

	prevCount := z.Occupancy.PersonCount

	personCount := p.VisionCount
	if p.PIRDetected && p.VisionCount == 0 {
		personCount = 1
	}
	if z.AreaSqM > 50 && p.VisionCount > 0 {
		personCount = int(math.Round(float64(p.VisionCount) * 1.2))
	}

	z.Occupancy.VisionCount = p.VisionCount
	z.Occupancy.PIRDetected = p.PIRDetected
	z.Occupancy.PersonCount = personCount

	if personCount > 0 && prevCount == 0 {
		z.Occupancy.LastEntryTime = now
	} else if personCount == 0 && prevCount > 0 {
		z.Occupancy.LastExitTime = now
	}

	var events []Event
	if personCount != prevCount {
		eventType := "person_entered"
		if personCount < prevCount {
			eventType = "person_exited"
		}
		e := Event{
			Timestamp: now,
			EventType: eventType,
			Severity:  SeverityInfo,
			Data:      map[string]interface{}{"zone": z.ZoneID, "person_count": personCount},
			Summary:   fmt.Sprintf("%s in zone %s (now %d people)", strings.ReplaceAll(eventType, "_", " "), z.ZoneID, personCount),
		}
		z.appendEvent(e)
		events = append(events, e)
	}
	return events
}

func (m *Model) handleActivity(z *Zone, payload []byte, now time.Time) []Event {
	var p activityPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.log.Warn().Err(err).Msg("worldmodel: malformed activity payload")
		return nil
	}
	z.Occupancy.ActivityDistribution = p.ActivityDistribution
	z.Occupancy.AvgMotionLevel = p.AvgMotionLevel
	z.Occupancy.ActivityLevel = p.AvgMotionLevel
	z.Occupancy.ActivityClass = classifyActivity(p.AvgMotionLevel)
	z.Occupancy.PostureDurationSec = p.PostureDurationSec
	z.Occupancy.PostureStatus = classifyPosture(p.PostureDurationSec)

	if sed := m.detectSedentary(z, now); sed != nil {
		return []Event{*sed}
	}
	return nil
}

func classifyActivity(level float64) ActivityClass {
	switch {
	case level < 0.1:
		return ActivityIdle
	case level < 0.3:
		return ActivityLow
	case level < 0.6:
		return ActivityModerate
	default:
		return ActivityHigh
	}
}

func classifyPosture(durationSec float64) PostureStatus {
	switch {
	case durationSec < 60:
		return PostureChanging
	case durationSec < 1800:
		return PostureMostlyStatic
	default:
		return PostureStatic
	}
}

func (m *Model) handleDevice(z *Zone, pt parsedTopic, payload []byte, now time.Time) {
	var p devicePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.log.Warn().Err(err).Msg("worldmodel: malformed device payload")
		return
	}
	d, ok := z.Devices[pt.deviceID]
	if !ok {
		d = &Device{DeviceID: pt.deviceID, DeviceType: pt.deviceType}
		z.Devices[pt.deviceID] = d
	}
	if p.PowerState != "" {
		d.PowerState = PowerState(p.PowerState)
	}
	if p.SpecificState != nil {
		d.SpecificState = p.SpecificState
	}
	if p.IsOnline != nil {
		d.IsOnline = *p.IsOnline
	}
	if p.Command != "" {
		d.LastCommand = p.Command
		d.LastCommandTime = now
	}
}

func (m *Model) handleTaskReport(z *Zone, payload []byte, now time.Time) []Event {
	var p taskReportPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.log.Warn().Err(err).Msg("worldmodel: malformed task_report payload")
		return nil
	}
	e := Event{
		Timestamp: now,
		EventType: "task_report",
		Severity:  severityForReportStatus(p.ReportStatus),
		Data: map[string]interface{}{
			"task_id":         p.TaskID,
			"title":           p.Title,
			"report_status":   p.ReportStatus,
			"completion_note": p.CompletionNote,
		},
		Summary: fmt.Sprintf("task %q reported %s", p.Title, p.ReportStatus),
	}
	z.appendEvent(e)
	return []Event{e}
}

func severityForReportStatus(status string) Severity {
	switch status {
	case "needs_followup", "cannot_resolve":
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func (m *Model) invalidateCache() {
	m.cacheMu.Lock()
	m.cachedCtx = ""
	m.cachedAt = time.Time{}
	m.cacheMu.Unlock()
}

// GetZone returns the zone by id, or nil if unknown.
func (m *Model) GetZone(zoneID string) *Zone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zones[zoneID]
}

// GetAllZones returns every known zone.
func (m *Model) GetAllZones() []*Zone {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Zone, 0, len(m.zones))
	for _, z := range m.zones {
		out = append(out, z)
	}
	return out
}
