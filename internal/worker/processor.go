package worker

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"sdqueue/internal/config"
	"sdqueue/internal/models"
	"sdqueue/internal/queue"
	"sdqueue/internal/sdapi"
	"sdqueue/internal/telemetry"
)

// Processor drives the runner loop: scan the queue, generate each item, persist, archive.
type Processor struct {
	cfg    config.Config
	store  *queue.Store
	client *sdapi.Client
	sink   *ResultSink
	models models.ModelPaths
	logger zerolog.Logger
}

func NewProcessor(cfg config.Config, st *queue.Store, client *sdapi.Client, sink *ResultSink, logger zerolog.Logger) *Processor {
	return &Processor{
		cfg:    cfg,
		store:  st,
		client: client,
		sink:   sink,
		models: models.NewModelPaths(cfg.Models()),
		logger: logger,
	}
}

// Run scans the queue until ctx is cancelled, sleeping ScanInterval after every scan.
func (p *Processor) Run(ctx context.Context) error {
	interval := p.cfg.ScanInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		p.RunOnce(ctx)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce processes every file currently pending, one at a time, and returns how many were archived.
func (p *Processor) RunOnce(ctx context.Context) int {
	names, err := p.store.ListPending()
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to scan queue")
		return 0
	}
	telemetry.QueueDepthGauge.Set(float64(len(names)))
	if len(names) == 0 {
		p.logger.Info().Msg("waiting for prompt files in queue")
		return 0
	}

	archived := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		if err := p.process(ctx, name); err == nil {
			archived++
		}
	}
	return archived
}

func (p *Processor) process(ctx context.Context, name string) error {
	log := p.logger.With().Str("file", name).Logger()
	log.Info().Msg("processing prompt file")

	item, err := p.store.Read(name)
	if err != nil {
		telemetry.GenerationFailures.Inc()
		log.Error().Err(err).Msg("failed to read prompt file")
		return err
	}
	modelName := p.models.Resolve(item.ModelType)
	log.Info().Str("model_type", string(item.ModelType)).Str("model", modelName).Msg("using model")

	req := models.NewGenerationRequest(item.Prompt, modelName, p.cfg.NegativePrompt)
	resp, err := p.generate(ctx, log, req)
	if err != nil {
		telemetry.GenerationFailures.Inc()
		log.Error().Err(err).Msg("generation failed, prompt file left in queue")
		return err
	}

	img, err := resp.Image(0)
	if err != nil {
		telemetry.GenerationFailures.Inc()
		log.Error().Err(err).Msg("unusable image in response, prompt file left in queue")
		return err
	}

	saved, err := p.sink.Save(ctx, models.GenerationResult{
		Image:     img,
		Prompt:    item.Prompt,
		ModelType: item.ModelType,
		ModelName: modelName,
	})
	if err != nil {
		telemetry.GenerationFailures.Inc()
		log.Error().Err(err).Msg("failed to save generated image, prompt file left in queue")
		return err
	}
	log.Info().Str("image", filepath.Base(saved.ImagePath)).Str("details", filepath.Base(saved.DetailsPath)).Msg("image saved")

	if err := p.store.Archive(name); err != nil {
		telemetry.ArchiveFailures.Inc()
		log.Error().Err(err).
			Str("queue_dir", p.store.QueueDir()).
			Str("archive_dir", p.store.ArchiveDir()).
			Str("image", filepath.Base(saved.ImagePath)).
			Msg("failed to archive processed prompt file; it will be generated again on the next scan")
		return fmt.Errorf("archive %s: %w", name, err)
	}
	telemetry.GenerationSuccess.Inc()
	log.Info().Msg("moved processed prompt file to archive")
	return nil
}

// generate submits req and polls progress on the same session until the submission resolves.
// The session is closed only after both activities have stopped.
func (p *Processor) generate(ctx context.Context, log zerolog.Logger, req models.GenerationRequest) (sdapi.Response, error) {
	session := p.client.NewSession()
	defer session.Close()

	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()
	start := time.Now()

	handle := session.Submit(ctx, req)
	log = log.With().Str("job", handle.ID()).Logger()

	pollCtx, stopPolling := context.WithCancel(ctx)
	poller := progressPoller{
		source:     session,
		interval:   p.cfg.ProgressInterval,
		maxRetries: p.cfg.ProgressMaxRetries,
		logger:     log,
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.run(pollCtx, handle)
	}()

	resp, err := handle.Wait(ctx)
	stopPolling()
	wg.Wait()

	telemetry.GenerationDuration.Observe(time.Since(start).Seconds())
	return resp, err
}
