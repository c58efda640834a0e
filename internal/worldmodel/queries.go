package worldmodel

import (
	"sort"
	"time"
)

// RecentEvents returns every event recorded across all zones within the
// last `within` duration, oldest first.
func (m *Model) RecentEvents(within time.Duration) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().Add(-within)
	var out []Event
	for _, z := range m.zones {
		for _, e := range z.Events {
			if e.Timestamp.After(cutoff) {
				out = append(out, e)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// ActionableTaskReports returns task_report events from the last
// `within` whose report_status signals the report still needs
// attention (needs_followup or cannot_resolve).
func (m *Model) ActionableTaskReports(within time.Duration) []Event {
	var out []Event
	for _, e := range m.RecentEvents(within) {
		if e.EventType != "task_report" {
			continue
		}
		status, _ := e.Data["report_status"].(string)
		if status == "needs_followup" || status == "cannot_resolve" {
			out = append(out, e)
		}
	}
	return out
}
