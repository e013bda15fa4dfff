// Package processor orchestrates one export job end to end: result-cache
// check, render, optional format conversion, cache population, upload and
// the final status update.
package processor

import (
	"bytes"
	"context"
	"time"

	"docforge/internal/cachekey"
	"docforge/internal/docformat"
	"docforge/internal/metrics"
	"docforge/internal/pkg/errors"
	"docforge/internal/pkg/logger"
	"docforge/internal/ports"
	"docforge/internal/repositories"
	"docforge/internal/resultcache"
	"docforge/internal/worker/background"
	"docforge/internal/worker/queue"
	"docforge/internal/worker/renderer"
)

// JobStore is the export job record's status surface.
type JobStore interface {
	Get(ctx context.Context, id string) (*repositories.ExportJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, resultPath string, resultSize int64) error
	MarkFailed(ctx context.Context, id, errText string) error
}

// RenderDataSource is the content-resolution collaborator.
type RenderDataSource interface {
	LoadRenderData(ctx context.Context, contractInstanceID string) (*repositories.RenderData, error)
}

// TemplateSource is the backing store behind the template cache.
type TemplateSource interface {
	ActiveVersionID(ctx context.Context, styleID string) (string, error)
	Version(ctx context.Context, versionID string) (*repositories.TemplateVersion, error)
	RecentVersions(ctx context.Context, limit int) ([]repositories.TemplateVersion, error)
}

// Converter turns native-format bytes into the requested format.
type Converter interface {
	Convert(ctx context.Context, src []byte, target docformat.Format, jobID string) ([]byte, error)
}

// TemplateCache is the in-process asset cache surface the processor needs.
type TemplateCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, blob []byte, ttl time.Duration)
}

type Deps struct {
	Jobs       JobStore
	Contracts  RenderDataSource
	Templates  TemplateSource
	Renderer   renderer.Client
	Converter  Converter
	AssetCache TemplateCache
	Results    *resultcache.Cache
	Store      ports.ObjectStore
	Background *background.Runner
	Metrics    *metrics.Recorder
	Log        *logger.Logger
}

type Processor struct {
	jobs       JobStore
	contracts  RenderDataSource
	templates  TemplateSource
	renderer   renderer.Client
	converter  Converter
	assetCache TemplateCache
	results    *resultcache.Cache
	store      ports.ObjectStore
	bg         *background.Runner
	metrics    *metrics.Recorder
	log        *logger.Logger
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Processor{
		jobs:       d.Jobs,
		contracts:  d.Contracts,
		templates:  d.Templates,
		renderer:   d.Renderer,
		converter:  d.Converter,
		assetCache: d.AssetCache,
		results:    d.Results,
		store:      d.Store,
		bg:         d.Background,
		metrics:    d.Metrics,
		log:        log.WithComponent("processor"),
	}
}

// ProcessJob runs the full pipeline for one queue message. The returned
// error is what the queue layer retries on.
func (p *Processor) ProcessJob(ctx context.Context, msg *queue.Message) error {
	log := p.log.FromContext(ctx)

	job, err := p.jobs.Get(ctx, msg.JobID)
	if err != nil {
		// No job row means nothing to mark failed either.
		return errors.Wrap(err, "processor.fetch", "failed to fetch export job")
	}

	format, err := docformat.Parse(job.Format)
	if err != nil {
		return p.failJob(ctx, job.ID, errors.WrapWithCode(err, errors.CodeValidation, "processor.format", "invalid output format"))
	}

	if err := p.jobs.MarkRunning(ctx, job.ID); err != nil {
		return p.failJob(ctx, job.ID, errors.Wrap(err, "processor.status", "failed to mark job running"))
	}

	// 1. Load the assembled render data.
	log.Debug("loading render data")
	data, err := p.contracts.LoadRenderData(ctx, job.ContractInstanceID)
	if err != nil {
		return p.failJob(ctx, job.ID, errors.Wrap(err, "processor.load", "failed to load render data"))
	}

	styleID := job.StyleTemplateID
	if styleID == "" {
		styleID = data.StyleTemplateID
	}

	keyInput := cachekey.Input{
		ContractInstanceID: job.ContractInstanceID,
		VersionIDs:         data.VersionIDs,
		Answers:            data.Answers,
		StyleID:            styleID,
		Format:             format.String(),
	}

	resultPath := ResultObjectKey(job.TenantID, job.ID, format)

	// 2. Result cache check. Malformed key input fails loudly; everything
	// else degrades to a miss inside Lookup.
	lookup, err := p.results.Lookup(ctx, keyInput)
	if err != nil {
		return p.failJob(ctx, job.ID, errors.Wrap(err, "processor.cachekey", "failed to compute cache key"))
	}

	if lookup.Hit {
		// The lookup counts as a hit even if serving from it fails below;
		// anything else skews the hit ratio exactly when the store
		// misbehaves.
		p.metrics.ResultCacheHit()
		copyErr := p.finishFromCache(ctx, job, lookup, resultPath)
		if copyErr == nil {
			return nil
		}
		// Hit-path copy failed: fall back to a full render rather than
		// failing a job whose inputs are perfectly render-able.
		log.Warn("cache hit copy failed, falling back to full render",
			"error", copyErr.Error(),
		)
	} else {
		p.metrics.ResultCacheMiss()
	}

	// 3. Resolve the template asset through the in-process cache.
	template, err := p.loadTemplate(ctx, styleID)
	if err != nil {
		return p.failJob(ctx, job.ID, errors.Wrap(err, "processor.template", "failed to resolve template asset"))
	}

	// 4. Render.
	log.Debug("rendering", "sections", len(data.Sections))
	renderStart := time.Now()
	native, err := p.renderer.Render(ctx, renderer.Spec{
		ContractInstanceID: job.ContractInstanceID,
		Sections:           data.Sections,
		Answers:            data.Answers,
		StyleID:            styleID,
		Template:           template,
	})
	p.metrics.ObserveRenderDuration(time.Since(renderStart).Seconds())
	if err != nil {
		return p.failJob(ctx, job.ID, errors.Wrap(err, "processor.render", "render failed"))
	}

	// 5. Convert when the requested format differs from the native one.
	final := native
	if format != docformat.Native {
		log.Debug("converting", "target", format.String())
		final, err = p.converter.Convert(ctx, native, format, job.ID)
		if err != nil {
			return p.failJob(ctx, job.ID, errors.Wrap(err, "processor.convert", "format conversion failed"))
		}
	}

	// 6. Fire-and-forget cache population; never blocks job completion.
	cacheKey := lookup.Key
	cacheBytes := final
	p.bg.Submit("resultcache.store", func(bgCtx context.Context) {
		p.results.Store(bgCtx, cacheKey, format.String(), cacheBytes)
	})

	// 7. Upload the deliverable to its canonical result path. This is the
	// single, final write to the job's externally visible location.
	if _, err := p.store.Put(ctx, ports.PutObjectInput{
		Key:         resultPath,
		ContentType: format.ContentType(),
		Reader:      bytes.NewReader(final),
		Size:        int64(len(final)),
	}); err != nil {
		return p.failJob(ctx, job.ID, errors.Wrap(err, "processor.upload", "failed to upload result"))
	}

	// 8. Final status update.
	if err := p.jobs.MarkDone(ctx, job.ID, resultPath, int64(len(final))); err != nil {
		return p.failJob(ctx, job.ID, errors.Wrap(err, "processor.status", "failed to mark job done"))
	}

	p.metrics.JobOutcome(metrics.OutcomeDone)
	log.Info("export completed",
		"result_path", resultPath,
		"result_bytes", len(final),
	)
	return nil
}

// finishFromCache completes the job from a result-cache hit: the cache
// object is copied server-side to the result path and the render and
// conversion stages never run.
func (p *Processor) finishFromCache(ctx context.Context, job *repositories.ExportJob, lookup resultcache.Result, resultPath string) error {
	format := docformat.Format(job.Format)

	if err := p.results.CopyToResultPath(ctx, lookup.Key, format.String(), resultPath); err != nil {
		return err
	}

	if err := p.jobs.MarkDone(ctx, job.ID, resultPath, int64(len(lookup.Bytes))); err != nil {
		return err
	}

	p.metrics.JobOutcome(metrics.OutcomeCached)
	p.log.FromContext(ctx).Info("export served from result cache",
		"result_path", resultPath,
		"result_bytes", len(lookup.Bytes),
	)
	return nil
}

func (p *Processor) failJob(ctx context.Context, jobID string, cause error) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 2000 {
			msg = msg[:2000]
		}

		var dfErr *errors.Error
		if errors.As(cause, &dfErr) {
			log.Error("job failed",
				"code", string(dfErr.Code),
				"op", dfErr.Op,
				"message", dfErr.Message,
			)
		} else {
			log.Error("job failed", "error", msg)
		}
	}

	if err := p.jobs.MarkFailed(ctx, jobID, msg); err != nil {
		log.Error("failed to record job failure", "error", err.Error())
	}

	p.metrics.JobOutcome(metrics.OutcomeFailed)
	return cause
}
