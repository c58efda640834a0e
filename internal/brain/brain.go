// Package brain implements the ReAct cycle that turns WorldModel state
// and task reports into create_task/send_device_command/speak tool
// calls, gated by a Sanitizer policy check before any side effect runs.
package brain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/soms-platform/soms-core/internal/bus"
	"github.com/soms-platform/soms-core/internal/llmclient"
	"github.com/soms-platform/soms-core/internal/observability"
	"github.com/soms-platform/soms-core/internal/scheduler"
	"github.com/soms-platform/soms-core/internal/worldmodel"
)

// cycleBudget bounds one RunCycle's wall-clock time, independent of how
// often cycles are triggered.
const cycleBudget = 60 * time.Second

// Config tunes the cycle trigger and ReAct loop. Field meanings mirror
// internal/config.Config's BRAIN_* settings.
type Config struct {
	CycleInterval       time.Duration
	MinCycleInterval    time.Duration
	BatchWindow         time.Duration
	ReactMaxIterations  int
	MaxSpeakPerCycle    int
	MaxConsecutiveError int
}

// Brain owns WorldModel ingestion, the dispatch queue, and the ReAct
// loop that drives TaskStore/Voice/device side effects each cycle.
type Brain struct {
	log       zerolog.Logger
	llm       *llmclient.Client
	world     *worldmodel.Model
	queue     *scheduler.Queue
	taskstore TaskStoreClient
	executor  *ToolExecutor
	history   *ActionHistory
	bus       bus.Bus
	tracer    *observability.CycleTracer
	metrics   *observability.Metrics
	cfg       Config

	worldInbox chan bus.Message
	trigger    chan struct{}
}

// New wires a Brain together. Call SeedQueue once before Run to restore
// any tasks TaskStore already has queued from a previous process.
func New(log zerolog.Logger, llm *llmclient.Client, world *worldmodel.Model, queue *scheduler.Queue, taskstore TaskStoreClient, executor *ToolExecutor, history *ActionHistory, b bus.Bus, cfg Config) *Brain {
	return &Brain{
		log: log.With().Str("component", "brain").Logger(), llm: llm, world: world, queue: queue,
		taskstore: taskstore, executor: executor, history: history, bus: b, cfg: cfg,
		tracer:     observability.NewCycleTracer(log),
		worldInbox: make(chan bus.Message, 512),
		trigger:    make(chan struct{}, 1),
	}
}

// SeedQueue pulls TaskStore's currently-queued tasks into the scheduler
// queue. NonInterruptible isn't a persisted task column — it's re-derived
// here from the presence of a "non_interruptible" task_type tag, the
// same signal create_task's caller can set directly at creation time.
func (b *Brain) SeedQueue(ctx context.Context) error {
	tasks, err := b.taskstore.Queue(ctx)
	if err != nil {
		return fmt.Errorf("brain: seed queue: %w", err)
	}
	for _, t := range tasks {
		b.queue.Enqueue(&scheduler.QueuedTask{
			TaskID: t.ID, Urgency: t.Urgency, Zone: t.Zone,
			MinPeopleRequired: t.MinPeopleRequired, EstimatedDurationMin: t.EstimatedDurationMin,
			CreatedAt: t.CreatedAt, NonInterruptible: hasTag(t.TaskType, "non_interruptible"),
		})
	}
	b.log.Info().Int("count", len(tasks)).Msg("brain: seeded dispatch queue from taskstore")
	return nil
}

// SetMetrics attaches the process's metric set. A nil receiver value
// (never calling this) leaves cycle and tool-call metrics unrecorded,
// which is what tests want.
func (b *Brain) SetMetrics(m *observability.Metrics) { b.metrics = m }

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Run subscribes to WorldModel updates and drives the cycle loop until
// ctx is canceled. Bus deliveries land on worldInbox; a single consumer
// goroutine is the only thing that ever calls world.UpdateFromMessage —
// the bus's own delivery goroutine never touches shared state directly.
func (b *Brain) Run(ctx context.Context) error {
	sub, err := b.bus.Subscribe("office/#", func(msg bus.Message) {
		select {
		case b.worldInbox <- msg:
		default:
			b.log.Warn().Str("topic", msg.Topic).Msg("brain: world-model inbox full, dropping message")
		}
	})
	if err != nil {
		return fmt.Errorf("brain: subscribe office/#: %w", err)
	}
	defer sub.Unsubscribe()

	go b.consumeWorldUpdates(ctx)

	var lastCycle time.Time
	ticker := time.NewTicker(b.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.trigger:
			b.coalesceBurst(ctx)
		case <-ticker.C:
		}

		if since := time.Since(lastCycle); since < b.cfg.MinCycleInterval {
			select {
			case <-time.After(b.cfg.MinCycleInterval - since):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		b.RunCycle(ctx)
		lastCycle = time.Now()
		ticker.Reset(b.cfg.CycleInterval)
	}
}

// coalesceBurst absorbs further triggers arriving within BatchWindow of
// the first one, so a burst of sensor events yields one cycle, not many.
func (b *Brain) coalesceBurst(ctx context.Context) {
	timer := time.NewTimer(b.cfg.BatchWindow)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.trigger:
			continue
		case <-timer.C:
			return
		}
	}
}

func (b *Brain) consumeWorldUpdates(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.worldInbox:
			events := b.world.UpdateFromMessage(msg.Topic, msg.Payload)
			if len(events) > 0 {
				select {
				case b.trigger <- struct{}{}:
				default:
				}
			}
		}
	}
}

// RunCycle executes one full ReAct cycle: dispatch re-evaluation, then
// up to ReactMaxIterations rounds of tool-calling, bounded by
// cycleBudget and aborted early after MaxConsecutiveError tool failures.
func (b *Brain) RunCycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(ctx, cycleBudget)
	defer cancel()

	cycleCtx, _, finish := b.tracer.Start(cycleCtx)
	started := time.Now()
	outcome := "completed"
	defer func() {
		finish(outcome)
		if b.metrics != nil {
			b.metrics.BrainCyclesTotal.WithLabelValues(outcome).Inc()
			b.metrics.BrainCycleDuration.Observe(time.Since(started).Seconds())
		}
	}()

	b.dispatchQueuedTasks(cycleCtx)

	messages := []llmclient.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: BuildUserMessage(cycleCtx, b.world, b.taskstore, b.history)},
	}

	for i := 0; i < b.cfg.ReactMaxIterations; i++ {
		resp, err := b.llm.ChatCompletion(cycleCtx, llmclient.ChatRequest{
			Messages: messages, Tools: ToolDefinitions(), Temperature: 0.3, MaxTokens: 1024,
		})
		if err != nil {
			b.log.Warn().Err(err).Msg("brain: chat completion failed, aborting cycle")
			outcome = "llm_error"
			break
		}
		if len(resp.Choices) == 0 {
			break
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			if msg.Content != "" {
				b.log.Info().Str("content", msg.Content).Msg("brain: cycle ended with no further action")
			}
			break
		}

		accepted := b.filterToolCalls(msg.ToolCalls)
		if len(accepted) == 0 {
			break
		}
		messages = append(messages, llmclient.Message{Role: "assistant", Content: msg.Content, ToolCalls: accepted})
		b.tracer.Step(cycleCtx, "act", map[string]interface{}{"iteration": i, "tool_calls": len(accepted)})

		if b.executeAccepted(cycleCtx, accepted, &messages) {
			outcome = "aborted"
			break
		}
	}

	b.history.Prune(time.Now())
}

// filterToolCalls drops (tool, args) pairs already accepted earlier in
// this cycle and caps speak calls at MaxSpeakPerCycle.
func (b *Brain) filterToolCalls(calls []llmclient.ToolCall) []llmclient.ToolCall {
	seen := make(map[string]bool, len(calls))
	speakCount := 0
	accepted := make([]llmclient.ToolCall, 0, len(calls))
	for _, tc := range calls {
		key := tc.Function.Name + ":" + tc.Function.Arguments
		if seen[key] {
			continue
		}
		if tc.Function.Name == string(ToolSpeak) {
			if speakCount >= b.cfg.MaxSpeakPerCycle {
				continue
			}
			speakCount++
		}
		seen[key] = true
		accepted = append(accepted, tc)
	}
	return accepted
}

// executeAccepted runs each accepted call, appends its tool-result
// message, and reports whether the cycle should abort because
// MaxConsecutiveError consecutive failures were reached.
func (b *Brain) executeAccepted(ctx context.Context, accepted []llmclient.ToolCall, messages *[]llmclient.Message) (aborted bool) {
	consecutiveErrors := 0
	for _, tc := range accepted {
		name := ToolName(tc.Function.Name)
		result, execErr := b.executor.Execute(ctx, name, tc.Function.Arguments)
		success := execErr == nil
		content := result
		if execErr != nil {
			content = execErr.Error()
		}

		b.history.Record(ActionEntry{
			At: time.Now(), Tool: name, ArgsKey: argsKeyRaw(name, tc.Function.Arguments),
			Zone: zoneFromRawArgs(tc.Function.Arguments), Summary: content, Success: success,
		})
		if b.metrics != nil {
			result := "ok"
			if !success {
				result = "error"
			}
			b.metrics.ToolCallsTotal.WithLabelValues(string(name), result).Inc()
		}
		*messages = append(*messages, llmclient.Message{Role: "tool", ToolCallID: tc.ID, Content: content})

		if success {
			consecutiveErrors = 0
			continue
		}

		consecutiveErrors++
		b.log.Warn().Err(execErr).Str("tool", string(name)).Msg("brain: tool execution failed")
		if consecutiveErrors >= b.cfg.MaxConsecutiveError {
			return true
		}
	}
	return false
}

func (b *Brain) dispatchQueuedTasks(ctx context.Context) {
	now := time.Now()
	results := b.queue.Reprocess(now, func(t *scheduler.QueuedTask) scheduler.DecisionInput {
		zone := b.world.GetZone(t.Zone)
		return scheduler.DecisionInput{
			Task: t, Zone: zone, ZoneKnown: zone != nil,
			NonInterruptible: t.NonInterruptible, LocalHour: now.Hour(),
		}
	})
	for _, r := range results {
		if _, err := b.taskstore.DispatchTask(ctx, r.Task.TaskID); err != nil {
			b.log.Warn().Err(err).Str("task_id", r.Task.TaskID).Msg("brain: dispatch failed")
			continue
		}
		b.log.Info().Str("task_id", r.Task.TaskID).Str("reason", r.Reason).Bool("forced", r.Forced).Msg("brain: task dispatched")
	}
}

func argsKeyRaw(tool ToolName, rawArgs string) string { return string(tool) + ":" + rawArgs }

func zoneFromRawArgs(rawArgs string) string {
	var z struct {
		Zone string `json:"zone"`
	}
	_ = json.Unmarshal([]byte(rawArgs), &z)
	return z.Zone
}
