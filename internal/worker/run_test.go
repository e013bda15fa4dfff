package worker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"docforge/internal/assetcache"
	"docforge/internal/config"
	"docforge/internal/docformat"
	"docforge/internal/metrics"
	"docforge/internal/pkg/logger"
	"docforge/internal/ports"
	"docforge/internal/repositories"
	"docforge/internal/resultcache"
	"docforge/internal/worker/background"
	"docforge/internal/worker/processor"
	"docforge/internal/worker/queue"
	"docforge/internal/worker/renderer"
)

type fakeQueue struct {
	msgs chan *queue.Message

	mu     sync.Mutex
	acked  []string
	nacked []string
}

func (f *fakeQueue) Pop(ctx context.Context) (*queue.Message, string, error) {
	select {
	case m := <-f.msgs:
		return m, "raw-" + m.JobID, nil
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

func (f *fakeQueue) Ack(ctx context.Context, raw string, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, jobID)
	return nil
}

func (f *fakeQueue) Nack(ctx context.Context, raw string, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, jobID)
	return false, nil
}

func (f *fakeQueue) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

// blockingRenderer holds the render until released so the test controls
// when the in-flight job finishes.
type blockingRenderer struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRenderer) Render(ctx context.Context, spec renderer.Spec) ([]byte, error) {
	close(r.started)
	<-r.release
	return []byte("doc"), nil
}

type stubJobs struct {
	mu       sync.Mutex
	statuses []string
}

func (s *stubJobs) Get(ctx context.Context, id string) (*repositories.ExportJob, error) {
	return &repositories.ExportJob{ID: id, TenantID: "t1", ContractInstanceID: "c1", Format: "docx"}, nil
}

func (s *stubJobs) MarkRunning(ctx context.Context, id string) error {
	s.record(repositories.JobStatusRunning)
	return nil
}

func (s *stubJobs) MarkDone(ctx context.Context, id, resultPath string, resultSize int64) error {
	s.record(repositories.JobStatusDone)
	return nil
}

func (s *stubJobs) MarkFailed(ctx context.Context, id, errText string) error {
	s.record(repositories.JobStatusFailed)
	return nil
}

func (s *stubJobs) record(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
}

func (s *stubJobs) finalStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

type stubContracts struct{}

func (stubContracts) LoadRenderData(ctx context.Context, id string) (*repositories.RenderData, error) {
	return &repositories.RenderData{
		ContractInstanceID: id,
		VersionIDs:         []string{"v1"},
		Sections:           []renderer.Section{{VersionID: "v1", Title: "Scope", Body: "..."}},
		Answers:            map[string]any{},
	}, nil
}

type stubTemplates struct{}

func (stubTemplates) ActiveVersionID(ctx context.Context, styleID string) (string, error) {
	return "tv1", nil
}

func (stubTemplates) Version(ctx context.Context, versionID string) (*repositories.TemplateVersion, error) {
	return &repositories.TemplateVersion{ID: versionID, Asset: []byte("tpl")}, nil
}

func (stubTemplates) RecentVersions(ctx context.Context, limit int) ([]repositories.TemplateVersion, error) {
	return nil, nil
}

type stubConverter struct{}

func (stubConverter) Convert(ctx context.Context, src []byte, target docformat.Format, jobID string) ([]byte, error) {
	return src, nil
}

// discardStore accepts uploads and reports everything else missing.
type discardStore struct{}

func (discardStore) Provider() string { return "discard" }

func (discardStore) Put(ctx context.Context, in ports.PutObjectInput) (ports.ObjectInfo, error) {
	n, err := io.Copy(io.Discard, in.Reader)
	return ports.ObjectInfo{Key: in.Key, Size: n}, err
}

func (discardStore) Get(ctx context.Context, key string) (io.ReadCloser, ports.ObjectInfo, error) {
	return nil, ports.ObjectInfo{}, ports.ErrObjectNotFound
}

func (discardStore) Stat(ctx context.Context, key string) (ports.ObjectInfo, error) {
	return ports.ObjectInfo{}, ports.ErrObjectNotFound
}

func (discardStore) Copy(ctx context.Context, srcKey, dstKey string) error {
	return fmt.Errorf("copy unsupported")
}

func (discardStore) Delete(ctx context.Context, key string) error { return nil }

func TestShutdownLetsInFlightJobFinish(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "error", Format: "json", Output: &buf})

	bg := background.NewRunner(8, time.Second, log)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = bg.Close(ctx)
	}()

	jobs := &stubJobs{}
	rend := &blockingRenderer{started: make(chan struct{}), release: make(chan struct{})}

	p := processor.New(processor.Deps{
		Jobs:       jobs,
		Contracts:  stubContracts{},
		Templates:  stubTemplates{},
		Renderer:   rend,
		Converter:  stubConverter{},
		AssetCache: assetcache.New(assetcache.Config{}),
		Results:    resultcache.New(discardStore{}, "exports/cache", time.Hour, log),
		Store:      discardStore{},
		Background: bg,
		Metrics:    metrics.New(),
		Log:        log,
	})

	d := Deps{
		Cfg:     config.Worker{VisibilityTimeout: time.Minute},
		Metrics: metrics.New(),
	}

	q := &fakeQueue{msgs: make(chan *queue.Message, 1)}
	q.msgs <- &queue.Message{JobID: "job-1", TenantID: "t1", ContractInstanceID: "c1", Format: "docx"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runWorker(ctx, d, q, p, log)
	}()

	select {
	case <-rend.started:
	case <-time.After(2 * time.Second):
		t.Fatal("job was never claimed")
	}

	// Shutdown fires mid-render. The loop must keep running the claimed
	// job instead of returning with it abandoned.
	cancel()
	select {
	case <-done:
		t.Fatal("worker returned while a job was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(rend.release)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after the in-flight job completed")
	}

	if got := jobs.finalStatus(); got != repositories.JobStatusDone {
		t.Errorf("expected the in-flight job to finish as done, got %q", got)
	}
	acked := q.ackedIDs()
	if len(acked) != 1 || acked[0] != "job-1" {
		t.Errorf("expected job-1 to be acked, got %v", acked)
	}
}

func TestWorkerStopsClaimingOnCancel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Config{Level: "error", Format: "json", Output: &buf})

	d := Deps{
		Cfg:     config.Worker{VisibilityTimeout: time.Minute},
		Metrics: metrics.New(),
	}
	q := &fakeQueue{msgs: make(chan *queue.Message)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = runWorker(ctx, d, q, nil, log)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("idle worker did not stop on cancel")
	}
}
