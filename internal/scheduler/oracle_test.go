package scheduler

import (
	"testing"
	"time"

	"github.com/soms-platform/soms-core/internal/worldmodel"
)

func zoneWithOccupancy(t *testing.T, log ...int) *worldmodel.Zone {
	t.Helper()
	model := worldmodel.New(testLogger())
	count := 0
	if len(log) > 0 {
		count = log[0]
	}
	model.UpdateFromMessage("office/main/camera/cam1", []byte(`{"vision_count":0}`))
	z := model.GetZone("main")
	z.Occupancy.PersonCount = count
	return z
}

func TestCriticalUrgencyAlwaysDispatches(t *testing.T) {
	task := &QueuedTask{TaskID: "1", Urgency: 4, Zone: "main", MinPeopleRequired: 10, CreatedAt: time.Now()}
	zone := zoneWithOccupancy(t, 0)

	dispatch, reason := Decide(DecisionInput{Task: task, Zone: zone, ZoneKnown: true, LocalHour: 3})
	if !dispatch {
		t.Fatalf("expected urgency=4 to dispatch regardless of occupancy, got reason=%q", reason)
	}
}

func TestMinPeopleRequiredGatesDispatch(t *testing.T) {
	task := &QueuedTask{TaskID: "2", Urgency: 1, Zone: "main", MinPeopleRequired: 2, CreatedAt: time.Now()}
	zone := zoneWithOccupancy(t, 1)

	dispatch, _ := Decide(DecisionInput{Task: task, Zone: zone, ZoneKnown: true, LocalHour: 12})
	if dispatch {
		t.Fatalf("expected task to stay queued with person_count(1) < min_people_required(2)")
	}

	zone.Occupancy.PersonCount = 2
	dispatch2, _ := Decide(DecisionInput{Task: task, Zone: zone, ZoneKnown: true, LocalHour: 12})
	if !dispatch2 {
		t.Fatalf("expected task to dispatch once person_count reaches min_people_required")
	}
}

func TestForceDispatchAfter24Hours(t *testing.T) {
	q := NewQueue()
	old := &QueuedTask{TaskID: "3", Urgency: 0, Zone: "main", CreatedAt: time.Now().Add(-25 * time.Hour)}
	q.Enqueue(old)

	results := q.Reprocess(time.Now(), func(t *QueuedTask) DecisionInput {
		return DecisionInput{Task: t, ZoneKnown: false}
	})

	if len(results) != 1 || !results[0].Forced {
		t.Fatalf("expected force-dispatch result for task queued >24h, got %+v", results)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue empty after force-dispatching the only task")
	}
}

func TestReprocessRequeuesUndispatched(t *testing.T) {
	q := NewQueue()
	fresh := &QueuedTask{TaskID: "4", Urgency: 0, Zone: "main", MinPeopleRequired: 5, CreatedAt: time.Now()}
	q.Enqueue(fresh)

	zone := zoneWithOccupancy(t, 0)
	results := q.Reprocess(time.Now(), func(t *QueuedTask) DecisionInput {
		return DecisionInput{Task: t, Zone: zone, ZoneKnown: true, LocalHour: 12}
	})

	if len(results) != 0 {
		t.Fatalf("expected no dispatch for understaffed zone, got %+v", results)
	}
	if q.Len() != 1 {
		t.Fatalf("expected task re-enqueued, queue len=%d", q.Len())
	}
}
