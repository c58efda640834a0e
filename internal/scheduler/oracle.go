package scheduler

import (
	"strings"
	"time"

	"github.com/soms-platform/soms-core/internal/worldmodel"
)

// DecisionInput bundles everything the oracle needs to evaluate one
// QueuedTask. NonInterruptible and LocalHour are supplied by the caller
// since they depend on the task record and wall clock, not WorldModel.
type DecisionInput struct {
	Task             *QueuedTask
	Zone             *worldmodel.Zone // nil if WorldModel has no such zone
	ZoneKnown        bool
	NonInterruptible bool
	LocalHour        int
}

// Decide applies the dispatch-decision oracle, first-rule-wins.
func Decide(in DecisionInput) (dispatch bool, reason string) {
	t := in.Task

	if t.Urgency >= 4 {
		return true, "critical"
	}
	if t.Zone == "" {
		return true, "no spatial constraint"
	}
	if !in.ZoneKnown {
		return false, "zone unknown to WorldModel"
	}
	if in.Zone.Occupancy.PersonCount < t.MinPeopleRequired {
		return false, "insufficient people present"
	}
	if in.NonInterruptible && t.Urgency < 3 && strings.Contains(dominantActivity(in.Zone), "focused") {
		return false, "zone occupants focused, task interruptible deferred"
	}
	if t.Urgency >= 3 {
		return true, "high urgency"
	}
	if (in.LocalHour < 7 || in.LocalHour > 22) && t.Urgency < 3 {
		return false, "outside active hours"
	}
	if in.Zone.Occupancy.PersonCount > 0 {
		return true, "zone occupied"
	}
	return false, "default"
}

// dominantActivity returns the activity tag with the highest count in
// the zone's activity distribution, or "" if none recorded.
func dominantActivity(z *worldmodel.Zone) string {
	best := ""
	bestCount := 0
	for activity, count := range z.Occupancy.ActivityDistribution {
		if count > bestCount {
			best = activity
			bestCount = count
		}
	}
	return best
}

// Reprocess runs one full queue re-evaluation pass: every queued task is
// re-scored and re-judged by the oracle. Tasks the oracle dispatches (or
// that have aged past forceDispatchAge) are returned for the caller to
// mark dispatched in TaskStore; everything else is re-enqueued.
func (q *Queue) Reprocess(now time.Time, resolve func(*QueuedTask) DecisionInput) []DispatchResult {
	drained := q.DrainAll(now)
	var results []DispatchResult

	for _, t := range drained {
		if now.Sub(t.CreatedAt) > forceDispatchAge {
			results = append(results, DispatchResult{Task: t, Reason: "force-dispatched after 24h wait", Forced: true})
			continue
		}

		in := resolve(t)
		dispatch, reason := Decide(in)
		if dispatch {
			results = append(results, DispatchResult{Task: t, Reason: reason})
			continue
		}
		q.Enqueue(t)
	}
	return results
}

// DispatchResult is one task the oracle decided should be dispatched
// during a Reprocess pass.
type DispatchResult struct {
	Task   *QueuedTask
	Reason string
	Forced bool
}
