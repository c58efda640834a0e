package brain

import (
	"testing"
	"time"

	"github.com/soms-platform/soms-core/internal/llmclient"
)

func toolCall(id, name, args string) llmclient.ToolCall {
	var tc llmclient.ToolCall
	tc.ID = id
	tc.Type = "function"
	tc.Function.Name = name
	tc.Function.Arguments = args
	return tc
}

func newFilterBrain() *Brain {
	return &Brain{cfg: Config{MaxSpeakPerCycle: 1}}
}

func TestFilterDropsIdenticalSpeakCalls(t *testing.T) {
	b := newFilterBrain()

	calls := []llmclient.ToolCall{
		toolCall("1", "speak", `{"message":"x","zone":"main"}`),
		toolCall("2", "speak", `{"message":"x","zone":"main"}`),
	}
	accepted := b.filterToolCalls(calls)
	if len(accepted) != 1 {
		t.Fatalf("expected 1 accepted call, got %d", len(accepted))
	}
	if accepted[0].ID != "1" {
		t.Fatalf("expected first call to survive, got %s", accepted[0].ID)
	}
}

func TestFilterDropsIdenticalCreateTaskCalls(t *testing.T) {
	b := newFilterBrain()

	calls := []llmclient.ToolCall{
		toolCall("1", "create_task", `{"title":"Ventilate","urgency":2}`),
		toolCall("2", "create_task", `{"title":"Ventilate","urgency":2}`),
		toolCall("3", "create_task", `{"title":"Restock coffee","urgency":1}`),
	}
	accepted := b.filterToolCalls(calls)
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted calls, got %d", len(accepted))
	}
	if accepted[0].ID != "1" || accepted[1].ID != "3" {
		t.Fatalf("wrong survivors: %s, %s", accepted[0].ID, accepted[1].ID)
	}
}

func TestFilterCapsSpeakPerCycle(t *testing.T) {
	b := newFilterBrain()

	// Distinct messages, so dedup alone would keep both — the per-cycle
	// speak cap has to do the dropping.
	calls := []llmclient.ToolCall{
		toolCall("1", "speak", `{"message":"first","zone":"main"}`),
		toolCall("2", "speak", `{"message":"second","zone":"kitchen"}`),
		toolCall("3", "get_zone_status", `{"zone":"main"}`),
	}
	accepted := b.filterToolCalls(calls)
	if len(accepted) != 2 {
		t.Fatalf("expected 2 accepted calls, got %d", len(accepted))
	}
	if accepted[0].Function.Name != "speak" || accepted[1].Function.Name != "get_zone_status" {
		t.Fatalf("wrong survivors: %s, %s", accepted[0].Function.Name, accepted[1].Function.Name)
	}
}

func TestActionHistoryPrune(t *testing.T) {
	h := NewActionHistory()
	now := time.Now()

	h.Record(ActionEntry{At: now.Add(-3 * time.Hour), Tool: ToolSpeak, Zone: "main", Success: true})
	h.Record(ActionEntry{At: now.Add(-time.Hour), Tool: ToolCreateTask, Success: true})
	h.Record(ActionEntry{At: now, Tool: ToolSpeak, Zone: "main", Success: true})

	h.Prune(now)

	all := h.Since(time.Time{})
	if len(all) != 2 {
		t.Fatalf("expected 2 entries after prune, got %d", len(all))
	}
	for _, e := range all {
		if now.Sub(e.At) > historyRetention {
			t.Fatalf("entry older than retention survived prune: %v", e.At)
		}
	}
}

func TestActionHistoryLastSpeakAt(t *testing.T) {
	h := NewActionHistory()
	now := time.Now()

	h.Record(ActionEntry{At: now.Add(-20 * time.Minute), Tool: ToolSpeak, Zone: "main", Success: true})
	h.Record(ActionEntry{At: now.Add(-10 * time.Minute), Tool: ToolSpeak, Zone: "main", Success: false})
	h.Record(ActionEntry{At: now.Add(-5 * time.Minute), Tool: ToolSpeak, Zone: "kitchen", Success: true})

	got := h.LastSpeakAt("main")
	want := now.Add(-20 * time.Minute)
	if !got.Equal(want) {
		t.Fatalf("LastSpeakAt must ignore failed speaks: got %v, want %v", got, want)
	}
	if !h.LastSpeakAt("lobby").IsZero() {
		t.Fatal("expected zero time for a zone never spoken in")
	}
}

func TestHasTag(t *testing.T) {
	if !hasTag([]string{"cleaning", "non_interruptible"}, "non_interruptible") {
		t.Fatal("expected tag to be found")
	}
	if hasTag([]string{"cleaning"}, "non_interruptible") {
		t.Fatal("expected tag to be absent")
	}
	if hasTag(nil, "anything") {
		t.Fatal("nil tag set must match nothing")
	}
}
