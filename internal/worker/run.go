package worker

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"docforge/internal/convert"
	"docforge/internal/pkg/logger"
	"docforge/internal/repositories"
	"docforge/internal/resultcache"
	"docforge/internal/worker/processor"
	"docforge/internal/worker/queue"
	"docforge/internal/worker/renderer"
)

const invalidationChannel = "docforge:template-invalidations"

// jobQueue is the queue surface one consumer loop needs.
type jobQueue interface {
	Pop(ctx context.Context) (*queue.Message, string, error)
	Ack(ctx context.Context, raw string, jobID string) error
	Nack(ctx context.Context, raw string, jobID string) (bool, error)
}

// Run starts the queue consumer: a fixed pool of workers each processing
// one job end to end, plus the reclaimer, the queue-depth poller and the
// template invalidation listener. Canceling ctx stops the claiming loops;
// Run returns only after every in-flight job has finished, so callers can
// block on it to grant shutdown grace.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	q := queue.NewRedisQueue(d.RDB, queue.Config{
		Name:        d.Cfg.QueueName,
		DeadLetter:  d.Cfg.DeadLetterName,
		MaxAttempts: d.Cfg.MaxAttempts,
		Visibility:  d.Cfg.VisibilityTimeout,
		Log:         log,
	})

	p := processor.New(processor.Deps{
		Jobs:       repositories.NewExportJobRepository(d.Pool),
		Contracts:  repositories.NewContractRepository(d.Pool),
		Templates:  repositories.NewTemplateRepository(d.Pool),
		Renderer:   renderer.NewHTTPClient(d.Cfg.RendererBaseURL),
		Converter: convert.New(convert.Config{
			Bin:     d.Cfg.ConvertBin,
			Timeout: d.Cfg.ConvertTimeout,
			Log:     log,
		}),
		AssetCache: d.AssetCache,
		Results:    resultcache.New(d.Store, d.Cfg.ResultCachePrefix, d.Cfg.ResultCacheTTL, log),
		Store:      d.Store,
		Background: d.Background,
		Metrics:    d.Metrics,
		Log:        log,
	})

	if err := p.PrewarmTemplates(ctx, d.Cfg.TemplatePrewarmCount); err != nil {
		log.Warn("template prewarm failed", "error", err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < d.Cfg.Concurrency; i++ {
		g.Go(func() error {
			return runWorker(gctx, d, q, p, log)
		})
	}

	g.Go(func() error { return runReclaimer(gctx, q, d.Cfg.VisibilityTimeout) })
	g.Go(func() error { return runDepthPoller(gctx, q, d) })
	g.Go(func() error {
		l := queue.NewInvalidationListener(d.RDB, invalidationChannel, log)
		return l.Run(gctx, d.AssetCache.Invalidate)
	})

	err := g.Wait()
	log.Info("worker stopped")
	return err
}

// runWorker is one consumer loop. Claiming stops as soon as ctx is
// canceled, but a claimed job keeps running on a detached context bounded
// by the queue's visibility window, so shutdown prefers finishing in-flight
// work over abandoning it.
func runWorker(ctx context.Context, d Deps, q jobQueue, p *processor.Processor, log *logger.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msg, raw, err := q.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		d.Metrics.WorkerStarted()
		processOne(ctx, d, q, p, msg, raw, log)
		d.Metrics.WorkerFinished()
	}
}

func processOne(ctx context.Context, d Deps, q jobQueue, p *processor.Processor, msg *queue.Message, raw string, log *logger.Logger) {
	jobCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.Cfg.VisibilityTimeout)
	defer cancel()

	jobCtx = logger.ContextWithJobID(jobCtx, msg.JobID)
	jobCtx = logger.ContextWithTenant(jobCtx, msg.TenantID)
	jobLog := log.WithJobID(msg.JobID).WithTenant(msg.TenantID)

	jobLog.Info("processing export job")
	start := time.Now()

	if err := p.ProcessJob(jobCtx, msg); err != nil {
		jobLog.Error("job failed",
			"error", err.Error(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		retrying, nackErr := q.Nack(jobCtx, raw, msg.JobID)
		if nackErr != nil {
			jobLog.Error("failed to nack job", "error", nackErr.Error())
		} else if retrying {
			jobLog.Info("job requeued for retry")
		}
		return
	}

	if err := q.Ack(jobCtx, raw, msg.JobID); err != nil {
		jobLog.Error("failed to ack job", "error", err.Error())
	}
	jobLog.Info("job completed",
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func runReclaimer(ctx context.Context, q *queue.RedisQueue, visibility time.Duration) error {
	interval := visibility / 2
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := q.Reclaim(ctx); err != nil && ctx.Err() == nil {
				continue
			}
		}
	}
}

func runDepthPoller(ctx context.Context, q *queue.RedisQueue, d Deps) error {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			depth, err := q.Depth(ctx)
			if err != nil {
				continue
			}
			d.Metrics.SetQueueDepth(float64(depth))
		}
	}
}
