package brain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soms-platform/soms-core/internal/worldmodel"
)

// systemPrompt is loaded once; it never changes cycle to cycle.
const systemPrompt = `You are the cognitive core of an autonomous office-management system.
Each cycle you see the office's current fused sensor state, recent events, task reports that still
need attention, the tasks currently open, and a log of what you did in roughly the last 30 minutes.

You act only through the tools you are given: create_task to hand a human a job, send_device_command
to operate a piece of hardware directly, speak to say something aloud in a zone, and the read-only
get_zone_status / get_active_tasks to look before you act. Nothing else you say has any effect.

Do not repeat a tool call you already made this cycle with the same arguments. Do not speak into a
zone you already spoke into in roughly the last 30 minutes. Prefer creating a task over speaking or
acting directly whenever the thing that needs doing is better done by a person. When nothing needs
doing, call no tools and say so briefly.`

const actionWindow = 30 * time.Minute
const recentEventWindow = 5 * time.Minute

// BuildUserMessage assembles the per-cycle user message: current state,
// recent events, actionable task reports, open tasks, and a directive
// listing recent actions.
func BuildUserMessage(ctx context.Context, world *worldmodel.Model, taskstore TaskStoreClient, history *ActionHistory) string {
	var b strings.Builder

	b.WriteString("## Current state\n")
	b.WriteString(world.GetLLMContext())
	b.WriteString("\n\n")

	events := world.RecentEvents(recentEventWindow)
	b.WriteString("## Recent events (last 5 minutes)\n")
	if len(events) == 0 {
		b.WriteString("none\n")
	} else {
		for _, e := range events {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", e.Timestamp.Format(time.Kitchen), e.Severity, e.Summary)
		}
	}
	b.WriteString("\n")

	reports := world.ActionableTaskReports(recentEventWindow)
	b.WriteString("## Task reports needing attention\n")
	if len(reports) == 0 {
		b.WriteString("none\n")
	} else {
		for _, e := range reports {
			fmt.Fprintf(&b, "- %s\n", e.Summary)
		}
	}
	b.WriteString("\n")

	b.WriteString("## Open tasks\n")
	if taskstore != nil {
		tasks, err := taskstore.ListTasks(ctx, 0, 200)
		if err != nil {
			fmt.Fprintf(&b, "unavailable: %v\n", err)
		} else {
			open := 0
			for _, t := range tasks {
				if t.IsCompleted {
					continue
				}
				open++
				fmt.Fprintf(&b, "- %s [%s] urgency=%d queued=%v: %s\n", t.ID, t.Zone, t.Urgency, t.IsQueued, t.Title)
			}
			if open == 0 {
				b.WriteString("none\n")
			}
		}
	}
	b.WriteString("\n")

	b.WriteString("## Your recent actions (last 30 minutes)\n")
	recent := history.Since(time.Now().Add(-actionWindow))
	if len(recent) == 0 {
		b.WriteString("none\n")
	} else {
		for _, a := range recent {
			status := "ok"
			if !a.Success {
				status = "failed"
			}
			fmt.Fprintf(&b, "- [%s] %s (%s): %s\n", a.At.Format(time.Kitchen), a.Tool, status, a.Summary)
		}
	}

	return b.String()
}
