package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soms-platform/soms-core/internal/scheduler"
	"github.com/soms-platform/soms-core/internal/worldmodel"
	"github.com/soms-platform/soms-core/pkg/somssdk"
)

// TaskStoreClient is the taskstore HTTP surface the executor needs.
// somssdk.TaskStoreClient satisfies this structurally.
type TaskStoreClient interface {
	CreateTask(ctx context.Context, req somssdk.CreateTaskRequest) (*somssdk.Task, error)
	ListTasks(ctx context.Context, skip, limit int) ([]*somssdk.Task, error)
	Queue(ctx context.Context) ([]*somssdk.Task, error)
	DispatchTask(ctx context.Context, id string) (*somssdk.Task, error)
}

// VoiceClient is the voice HTTP surface the executor needs.
// somssdk.VoiceClient satisfies this structurally.
type VoiceClient interface {
	Synthesize(ctx context.Context, text, zone, tone string) (string, error)
}

// ToolExecutor dispatches one validated tool call to its concrete side
// effect: TaskStore, the MCP bridge, or VoicePipeline.
type ToolExecutor struct {
	taskstore TaskStoreClient
	voice     VoiceClient
	mcp       *MCPBridge
	sanitizer *Sanitizer
	queue     *scheduler.Queue
	world     *worldmodel.Model
}

// NewToolExecutor wires an executor's dependencies together.
func NewToolExecutor(taskstore TaskStoreClient, voice VoiceClient, mcp *MCPBridge, sanitizer *Sanitizer, queue *scheduler.Queue, world *worldmodel.Model) *ToolExecutor {
	return &ToolExecutor{taskstore: taskstore, voice: voice, mcp: mcp, sanitizer: sanitizer, queue: queue, world: world}
}

// Execute validates then runs one tool call, returning the text handed
// back to the model as the tool message's content.
func (e *ToolExecutor) Execute(ctx context.Context, name ToolName, rawArgs string) (result string, err error) {
	switch name {
	case ToolCreateTask:
		return e.executeCreateTask(ctx, rawArgs)
	case ToolSendDeviceCommand:
		return e.executeSendDeviceCommand(ctx, rawArgs)
	case ToolSpeak:
		return e.executeSpeak(ctx, rawArgs)
	case ToolGetZoneStatus:
		return e.executeGetZoneStatus(rawArgs)
	case ToolGetActiveTasks:
		return e.executeGetActiveTasks(ctx)
	default:
		return "", fmt.Errorf("unknown tool %q", name)
	}
}

func (e *ToolExecutor) executeCreateTask(ctx context.Context, rawArgs string) (string, error) {
	var args CreateTaskArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("create_task: invalid arguments: %w", err)
	}
	if err := e.sanitizer.ValidateCreateTask(args.BountyGold, args.Urgency); err != nil {
		return "", fmt.Errorf("create_task rejected: %w", err)
	}

	task, err := e.taskstore.CreateTask(ctx, somssdk.CreateTaskRequest{
		Title: args.Title, Description: args.Description, Location: args.Location, Zone: args.Zone,
		TaskType: args.TaskType, BountyGold: args.BountyGold, BountyXP: args.BountyXP, Urgency: args.Urgency,
		MinPeopleRequired: args.MinPeopleRequired, EstimatedDurationMin: args.EstimatedDurationMin,
	})
	if err != nil {
		return "", fmt.Errorf("create_task: %w", err)
	}
	e.sanitizer.RecordCreateTaskSuccess()

	e.queue.Enqueue(&scheduler.QueuedTask{
		TaskID: task.ID, Urgency: task.Urgency, Zone: task.Zone,
		MinPeopleRequired: task.MinPeopleRequired, EstimatedDurationMin: task.EstimatedDurationMin,
		CreatedAt: task.CreatedAt, NonInterruptible: args.NonInterruptible,
	})

	return fmt.Sprintf("created task %s %q in zone %q, queued for dispatch", task.ID, task.Title, task.Zone), nil
}

func (e *ToolExecutor) executeSendDeviceCommand(ctx context.Context, rawArgs string) (string, error) {
	var args SendDeviceCommandArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("send_device_command: invalid arguments: %w", err)
	}
	if err := e.sanitizer.ValidateDeviceCommand(args.AgentID, args.Tool, args.Arguments); err != nil {
		return "", fmt.Errorf("send_device_command rejected: %w", err)
	}

	result, err := e.mcp.CallTool(ctx, args.AgentID, args.Tool, args.Arguments)
	if err != nil {
		return "", fmt.Errorf("send_device_command: %w", err)
	}
	return fmt.Sprintf("device %s executed %s: %s", args.AgentID, args.Tool, string(result)), nil
}

func (e *ToolExecutor) executeSpeak(ctx context.Context, rawArgs string) (string, error) {
	var args SpeakArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("speak: invalid arguments: %w", err)
	}
	if err := e.sanitizer.ValidateSpeak(args.Zone, args.Message); err != nil {
		return "", fmt.Errorf("speak rejected: %w", err)
	}

	audioURL, err := e.voice.Synthesize(ctx, args.Message, args.Zone, args.Tone)
	if err != nil {
		return "", fmt.Errorf("speak: %w", err)
	}
	e.sanitizer.RecordSpeakSuccess(args.Zone)
	return fmt.Sprintf("spoke in zone %q: %q (%s)", args.Zone, args.Message, audioURL), nil
}

func (e *ToolExecutor) executeGetZoneStatus(rawArgs string) (string, error) {
	var args GetZoneStatusArgs
	if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
		return "", fmt.Errorf("get_zone_status: invalid arguments: %w", err)
	}
	z := e.world.GetZone(args.Zone)
	if z == nil {
		return fmt.Sprintf("zone %q is unknown to the world model", args.Zone), nil
	}
	b, _ := json.Marshal(map[string]interface{}{
		"zone":        z.ZoneID,
		"occupancy":   z.Occupancy,
		"environment": z.Environment,
		"last_update": z.LastUpdate,
	})
	return string(b), nil
}

func (e *ToolExecutor) executeGetActiveTasks(ctx context.Context) (string, error) {
	tasks, err := e.taskstore.ListTasks(ctx, 0, 200)
	if err != nil {
		return "", fmt.Errorf("get_active_tasks: %w", err)
	}
	type summary struct {
		ID      string    `json:"id"`
		Title   string    `json:"title"`
		Zone    string    `json:"zone"`
		Urgency int       `json:"urgency"`
		Queued  bool      `json:"queued"`
		Created time.Time `json:"created_at"`
	}
	var out []summary
	for _, t := range tasks {
		if t.IsCompleted {
			continue
		}
		out = append(out, summary{ID: t.ID, Title: t.Title, Zone: t.Zone, Urgency: t.Urgency, Queued: t.IsQueued, Created: t.CreatedAt})
	}
	b, _ := json.Marshal(out)
	return string(b), nil
}
