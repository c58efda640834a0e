package voice

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/soms-platform/soms-core/internal/llmclient"
	"github.com/soms-platform/soms-core/internal/observability"
)

const (
	rejectionSystemPrompt    = "You write short, dry rejection lines an office assistant says when it declines a request. One sentence, no apology."
	announcementSystemPrompt = "You write a one-sentence spoken announcement for an office task, addressed to whoever is nearby."
	completionSystemPrompt   = "You write a one-sentence spoken note about how a task was resolved, given its report status and any note left by whoever completed it."
)

// Pipeline is VoicePipeline: synthesize/announce/rejection endpoints,
// the rejection-stock manifest, and the idle background generator.
type Pipeline struct {
	db      *sql.DB
	log     zerolog.Logger
	audio   *AudioStore
	synth   *SynthClient
	llm     *llmclient.Client
	stock   *RejectionStock
	metrics *observability.Metrics

	busy int64 // atomic; count of in-flight external HTTP calls

	generatorCancel context.CancelFunc
	generatorDone   chan struct{}
}

// New wires together an already-migrated database, audio store, synth
// client, LLM client, and rejection stock into a Pipeline.
func New(db *sql.DB, log zerolog.Logger, audio *AudioStore, synth *SynthClient, llm *llmclient.Client, stock *RejectionStock) *Pipeline {
	return &Pipeline{db: db, log: log, audio: audio, synth: synth, llm: llm, stock: stock}
}

// SetMetrics attaches the process's metric set so the rejection-stock
// gauge tracks the manifest's fill level. Nil (never calling this)
// leaves the gauge unrecorded, which is what tests want.
func (p *Pipeline) SetMetrics(m *observability.Metrics) {
	p.metrics = m
	p.recordStockLevel()
}

func (p *Pipeline) recordStockLevel() {
	if p.metrics != nil {
		p.metrics.VoiceStockLevel.Set(float64(p.stock.Len()))
	}
}

func (p *Pipeline) requestStarted()  { atomic.AddInt64(&p.busy, 1) }
func (p *Pipeline) requestFinished() { atomic.AddInt64(&p.busy, -1) }

// IsBusy reports whether any in-flight synthesize/announce call is in
// progress. Scheduled background generation never counts.
func (p *Pipeline) IsBusy() bool { return atomic.LoadInt64(&p.busy) > 0 }

// Synthesize converts text directly to audio (used by Brain's `speak` tool).
func (p *Pipeline) Synthesize(ctx context.Context, text, zone, tone string) (audioURL, audioText string, err error) {
	p.requestStarted()
	defer p.requestFinished()

	audio, err := p.synth.Synthesize(ctx, text, tone)
	if err != nil {
		return "", "", fmt.Errorf("voice: synthesize: %w", err)
	}
	_, url, err := p.audio.Save("", audio)
	if err != nil {
		return "", "", err
	}
	p.recordEvent("synthesize", zone, text, tone, url, "")
	return url, text, nil
}

// Announce synthesizes a direct announcement for a zone/task, logged as
// its own voice event kind so it's distinguishable from a bare synthesize call.
func (p *Pipeline) Announce(ctx context.Context, text, zone, taskID string) (audioURL string, err error) {
	p.requestStarted()
	defer p.requestFinished()

	audio, err := p.synth.Synthesize(ctx, text, "")
	if err != nil {
		return "", fmt.Errorf("voice: announce: %w", err)
	}
	_, url, err := p.audio.Save("", audio)
	if err != nil {
		return "", err
	}
	p.recordEvent("announcement", zone, text, "", url, taskID)
	return url, nil
}

// AnnounceWithCompletionResult carries both generated texts and audio URLs.
type AnnounceWithCompletionResult struct {
	AnnouncementAudioURL string
	AnnouncementText     string
	CompletionAudioURL   string
	CompletionText       string
}

// AnnounceWithCompletion makes two LLM calls (announcement, then a
// context-aware completion note) and two synth calls, saving two audio
// files so both clips are ready the moment the task needs them.
func (p *Pipeline) AnnounceWithCompletion(ctx context.Context, task AnnounceTask) (*AnnounceWithCompletionResult, error) {
	p.requestStarted()
	defer p.requestFinished()

	announcementText, err := p.llm.Complete(ctx, announcementSystemPrompt, fmt.Sprintf("Task: %s\nDescription: %s\nZone: %s\nBounty: %d gold", task.Title, task.Description, task.Zone, task.BountyGold))
	if err != nil {
		return nil, fmt.Errorf("voice: generate announcement text: %w", err)
	}
	announcementAudio, err := p.synth.Synthesize(ctx, announcementText, "")
	if err != nil {
		return nil, fmt.Errorf("voice: synthesize announcement: %w", err)
	}
	_, announcementURL, err := p.audio.Save("", announcementAudio)
	if err != nil {
		return nil, err
	}

	completionText, err := p.llm.Complete(ctx, completionSystemPrompt, fmt.Sprintf("Task: %s\nReport status: %s\nCompletion note: %s", task.Title, task.ReportStatus, task.CompletionNote))
	if err != nil {
		return nil, fmt.Errorf("voice: generate completion text: %w", err)
	}
	completionAudio, err := p.synth.Synthesize(ctx, completionText, "")
	if err != nil {
		return nil, fmt.Errorf("voice: synthesize completion: %w", err)
	}
	_, completionURL, err := p.audio.Save("", completionAudio)
	if err != nil {
		return nil, err
	}

	p.recordEvent("announcement", task.Zone, announcementText, "", announcementURL, task.TaskID)
	p.recordEvent("completion", task.Zone, completionText, "", completionURL, task.TaskID)

	return &AnnounceWithCompletionResult{
		AnnouncementAudioURL: announcementURL,
		AnnouncementText:     announcementText,
		CompletionAudioURL:   completionURL,
		CompletionText:       completionText,
	}, nil
}

// RandomRejection pops one entry from the stock, falling back to
// synchronous on-demand generation if the stock is empty.
func (p *Pipeline) RandomRejection(ctx context.Context) (text, audioURL string, err error) {
	if e, ok := p.stock.Pop(); ok {
		p.recordStockLevel()
		return e.Text, "/audio/rejections/" + e.AudioFileName, nil
	}

	p.requestStarted()
	defer p.requestFinished()

	text, err = p.llm.Complete(ctx, rejectionSystemPrompt, "Generate one rejection line.")
	if err != nil {
		return "", "", fmt.Errorf("voice: on-demand rejection generation: %w", err)
	}
	audio, err := p.synth.Synthesize(ctx, text, "")
	if err != nil {
		return "", "", fmt.Errorf("voice: synthesize on-demand rejection: %w", err)
	}
	_, url, err := p.audio.Save("rejections", audio)
	if err != nil {
		return "", "", err
	}
	return text, url, nil
}

// RejectionStatus reports the manifest's current fill level.
func (p *Pipeline) RejectionStatus() (count, max int) {
	return p.stock.Len(), MaxStock
}

// ClearRejectionStock empties the manifest.
func (p *Pipeline) ClearRejectionStock() error {
	if err := p.stock.Clear(); err != nil {
		return err
	}
	p.recordStockLevel()
	return nil
}

// RecordFeedback logs a feedback event of the given type against an
// optional task/zone context.
func (p *Pipeline) RecordFeedback(kind, zone, taskID string) {
	p.recordEvent("feedback:"+kind, zone, "", "", "", taskID)
}

func (p *Pipeline) recordEvent(kind, zone, text, tone, audioURL, taskID string) {
	e := VoiceEvent{
		ID: uuid.NewString(), Kind: kind, Zone: zone, Text: text,
		Tone: tone, AudioURL: audioURL, TaskID: taskID, CreatedAt: time.Now(),
	}
	_, err := p.db.Exec(`INSERT INTO voice_events (id, kind, zone, text, tone, audio_url, task_id, created_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		e.ID, e.Kind, nullableString(e.Zone), e.Text, nullableString(e.Tone), e.AudioURL, nullableString(e.TaskID), e.CreatedAt)
	if err != nil {
		p.log.Warn().Err(err).Str("kind", kind).Msg("voice: failed to record voice event")
	}
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
