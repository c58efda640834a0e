package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// SideEffectKind distinguishes the three fire-and-forget effects task
// completion (or creation) triggers.
type SideEffectKind string

const (
	SideEffectDeviceXP      SideEffectKind = "device_xp"
	SideEffectWalletPayment SideEffectKind = "wallet_payment"
	SideEffectBusPublish    SideEffectKind = "bus_publish"
)

// SideEffect is one queued unit of work for the dispatcher.
type SideEffect struct {
	Kind           SideEffectKind
	TaskID         string
	Zone           string
	XPAmount       int
	UserID         string
	BountyGold     int
	Title          string
	ReportStatus   string
	CompletionNote string
}

// Publisher is the minimal bus surface the dispatcher needs.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// WalletClient is the minimal ledger HTTP surface the dispatcher needs.
// PayTaskReward takes zone so the implementation can look up and apply
// that zone's device-XP multiplier before crediting the wallet.
type WalletClient interface {
	GrantDeviceXP(ctx context.Context, zone string, xp int) error
	PayTaskReward(ctx context.Context, userID, taskID, zone string, amountGold int) error
}

// SideEffectDispatcherConfig controls buffering and worker count, mirroring
// the shape of a buffered async ingestion pipeline: a bounded channel
// absorbs bursts from the request path without blocking it, and a
// background worker drains it.
type SideEffectDispatcherConfig struct {
	BufferSize int
	Workers    int
}

// DefaultSideEffectDispatcherConfig returns sane production defaults.
func DefaultSideEffectDispatcherConfig() SideEffectDispatcherConfig {
	return SideEffectDispatcherConfig{BufferSize: 10000, Workers: 2}
}

// SideEffectDispatcher executes TaskStore's fire-and-forget side effects
// off the request path: a full downstream outage (bus down, ledger
// down) never blocks or fails a create/complete call.
type SideEffectDispatcher struct {
	log    zerolog.Logger
	cfg    SideEffectDispatcherConfig
	bus    Publisher
	wallet WalletClient

	ch     chan SideEffect
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu       sync.Mutex
	received int64
	dropped  int64
	failed   int64
}

// NewSideEffectDispatcher creates a dispatcher. bus or wallet may be nil
// in tests; effects targeting a nil dependency are skipped without a log
// line and count as handled.
func NewSideEffectDispatcher(log zerolog.Logger, bus Publisher, wallet WalletClient, cfg SideEffectDispatcherConfig) *SideEffectDispatcher {
	return &SideEffectDispatcher{
		log:    log.With().Str("component", "taskstore-sideeffects").Logger(),
		cfg:    cfg,
		bus:    bus,
		wallet: wallet,
		ch:     make(chan SideEffect, cfg.BufferSize),
	}
}

// Start launches the dispatcher's background workers.
func (d *SideEffectDispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	d.log.Info().Int("workers", d.cfg.Workers).Int("buffer_size", d.cfg.BufferSize).Msg("side-effect dispatcher started")
}

// Stop cancels the workers and waits for in-flight effects to drain.
func (d *SideEffectDispatcher) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
	d.log.Info().Int64("received", d.received).Int64("failed", d.failed).Int64("dropped", d.dropped).Msg("side-effect dispatcher stopped")
}

// Submit enqueues e without blocking the caller; e is dropped (and
// logged) if the buffer is full.
func (d *SideEffectDispatcher) Submit(e SideEffect) {
	d.mu.Lock()
	d.received++
	d.mu.Unlock()

	select {
	case d.ch <- e:
	default:
		d.mu.Lock()
		d.dropped++
		d.mu.Unlock()
		d.log.Warn().Str("task_id", e.TaskID).Str("kind", string(e.Kind)).Msg("side effect dropped: buffer full")
	}
}

func (d *SideEffectDispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			d.drainRemaining()
			return
		case e := <-d.ch:
			d.execute(ctx, e)
		}
	}
}

func (d *SideEffectDispatcher) drainRemaining() {
	for {
		select {
		case e := <-d.ch:
			d.execute(context.Background(), e)
		default:
			return
		}
	}
}

func (d *SideEffectDispatcher) execute(ctx context.Context, e SideEffect) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	switch e.Kind {
	case SideEffectDeviceXP:
		err = d.executeDeviceXP(ctx, e)
	case SideEffectWalletPayment:
		err = d.executeWalletPayment(ctx, e)
	case SideEffectBusPublish:
		err = d.executeBusPublish(e)
	default:
		err = fmt.Errorf("unknown side effect kind %q", e.Kind)
	}

	if err != nil {
		d.mu.Lock()
		d.failed++
		d.mu.Unlock()
		d.log.Warn().Err(err).Str("task_id", e.TaskID).Str("kind", string(e.Kind)).Msg("side effect failed")
	}
}

func (d *SideEffectDispatcher) executeDeviceXP(ctx context.Context, e SideEffect) error {
	if d.wallet == nil {
		return nil
	}
	return d.wallet.GrantDeviceXP(ctx, e.Zone, e.XPAmount)
}

func (d *SideEffectDispatcher) executeWalletPayment(ctx context.Context, e SideEffect) error {
	if d.wallet == nil {
		return nil
	}
	return d.wallet.PayTaskReward(ctx, e.UserID, e.TaskID, e.Zone, e.BountyGold)
}

func (d *SideEffectDispatcher) executeBusPublish(e SideEffect) error {
	if d.bus == nil {
		return nil
	}
	payload, err := json.Marshal(map[string]interface{}{
		"task_id":         e.TaskID,
		"title":           e.Title,
		"report_status":   e.ReportStatus,
		"completion_note": e.CompletionNote,
		"zone":            e.Zone,
	})
	if err != nil {
		return fmt.Errorf("marshal task_report: %w", err)
	}
	topic := fmt.Sprintf("office/%s/task_report/%s", e.Zone, e.TaskID)
	return d.bus.Publish(topic, payload)
}
