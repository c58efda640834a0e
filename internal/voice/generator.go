package voice

import (
	"context"
	"time"
)

const (
	// IdleInterval is the sleep when stock is full or the pipeline is busy.
	IdleInterval = 30 * time.Second
	// GenerationPause is the sleep between successful back-to-back generations.
	GenerationPause = 3 * time.Second
)

// StartGenerator launches the idle background task that tops up the
// rejection stock whenever it drops below RefillThreshold and no
// synthesize/announce call is in flight. Mirrors the start/stop/loop
// shape used for every other background ticker in the system, wrapping
// each cycle body in a recover so one bad generation never kills the loop.
func (p *Pipeline) StartGenerator(ctx context.Context) {
	genCtx, cancel := context.WithCancel(ctx)
	p.generatorCancel = cancel
	p.generatorDone = make(chan struct{})
	go p.generatorLoop(genCtx)
}

// StopGenerator cancels the background loop and waits for it to exit.
func (p *Pipeline) StopGenerator() {
	if p.generatorCancel != nil {
		p.generatorCancel()
	}
	if p.generatorDone != nil {
		<-p.generatorDone
	}
}

func (p *Pipeline) generatorLoop(ctx context.Context) {
	defer close(p.generatorDone)

	for {
		sleep := IdleInterval
		if p.stock.Len() < RefillThreshold && !p.IsBusy() {
			if p.generateOne(ctx) {
				sleep = GenerationPause
			}
			p.recordStockLevel()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
}

func (p *Pipeline) generateOne(ctx context.Context) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("voice: rejection generation cycle panicked, recovering")
			ok = false
		}
	}()

	text, err := p.llm.Complete(ctx, rejectionSystemPrompt, "Generate one rejection line.")
	if err != nil {
		p.log.Warn().Err(err).Msg("voice: rejection text generation failed")
		return false
	}
	audio, err := p.synth.Synthesize(ctx, text, "")
	if err != nil {
		p.log.Warn().Err(err).Msg("voice: rejection synthesis failed")
		return false
	}
	filename, _, err := p.audio.Save("rejections", audio)
	if err != nil {
		p.log.Warn().Err(err).Msg("voice: rejection audio save failed")
		return false
	}
	if err := p.stock.Push(newRejectionEntry(text, filename)); err != nil {
		// Manifest rollback already happened inside Push; the audio file
		// is simply orphaned on disk, which is harmless.
		p.log.Warn().Err(err).Msg("voice: rejection manifest push failed")
		return false
	}
	return true
}
