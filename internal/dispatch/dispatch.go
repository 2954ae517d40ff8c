package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"photo-catalog/internal/catalog"
	"photo-catalog/internal/logging"
	"photo-catalog/internal/metrics"
	"photo-catalog/internal/preview"
	"photo-catalog/internal/scanner"
)

// Kind identifies a work descriptor type.
type Kind string

const (
	KindGeneratePreview Kind = "generate-preview"
	KindBulkGenerate    Kind = "bulk-generate"
	KindImportDirectory Kind = "import-directory"
)

// Work is a typed work descriptor. Every unit is safely re-executable:
// preview generation hits the cache on a re-run and imports deduplicate by
// fingerprint, so a queue that redelivers cannot corrupt anything.
type Work struct {
	Kind Kind `json:"kind"`

	// generate-preview
	PhotoID string            `json:"photoId,omitempty"`
	Size    catalog.SizeClass `json:"size,omitempty"`
	Format  catalog.Format    `json:"format,omitempty"`

	// bulk-generate
	PhotoIDs []string            `json:"photoIds,omitempty"`
	Sizes    []catalog.SizeClass `json:"sizes,omitempty"`
	Formats  []catalog.Format    `json:"formats,omitempty"`

	// import-directory
	Directory string `json:"directory,omitempty"`
}

// Report is the completion result delivered to the submitter and the
// completion callback.
type Report struct {
	Kind     Kind
	Err      error
	Artifact *catalog.PreviewArtifact
	Bulk     *preview.BulkReport
	Scan     *scanner.ScanReport
}

// Handle tracks one submitted work descriptor.
type Handle struct {
	id     string
	done   chan struct{}
	report *Report
}

// ID is the unique identifier assigned at submission.
func (h *Handle) ID() string {
	return h.id
}

// Done is closed when the work completes.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the work completes or ctx expires.
func (h *Handle) Wait(ctx context.Context) (*Report, error) {
	select {
	case <-h.done:
		return h.report, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type job struct {
	work   Work
	handle *Handle
}

// Pool executes work descriptors on a fixed set of background workers,
// separate from request-handling goroutines. Stopping the pool stops
// dispatching further units; completed units' results stand.
type Pool struct {
	previews *preview.Manager
	scans    *scanner.Scanner

	jobs   chan *job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders Submit's stopped-check-and-send against Stop, so a submit
	// racing a shutdown either queues before the stop or fails cleanly.
	mu      sync.RWMutex
	stopped bool

	// onComplete, when set, receives every finished report. This is how
	// results feed back into callers that did not hold on to the Handle.
	onComplete func(*Report)
}

// NewPool creates a Pool with numWorkers background workers and an
// optional completion callback.
func NewPool(previews *preview.Manager, scans *scanner.Scanner, numWorkers, queueSize int, onComplete func(*Report)) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		previews:   previews,
		scans:      scans,
		jobs:       make(chan *job, queueSize),
		ctx:        ctx,
		cancel:     cancel,
		onComplete: onComplete,
	}

	metrics.DispatchWorkers.Set(float64(numWorkers))
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logging.Info("dispatch pool started with %d workers", numWorkers)
	return p
}

// Submit queues a work descriptor. It fails immediately when the pool is
// stopped or the queue is full; the caller decides whether to run the work
// synchronously instead.
func (p *Pool) Submit(work Work) (*Handle, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return nil, fmt.Errorf("dispatch pool is stopped")
	}

	j := &job{work: work, handle: &Handle{id: uuid.NewString(), done: make(chan struct{})}}
	select {
	case p.jobs <- j:
		metrics.DispatchQueueDepth.Set(float64(len(p.jobs)))
		return j.handle, nil
	default:
		return nil, fmt.Errorf("dispatch queue full")
	}
}

// Stop cancels in-flight work contexts and waits for workers to exit.
// Queued but unstarted units are abandoned.
func (p *Pool) Stop() {
	p.mu.Lock()
	already := p.stopped
	p.stopped = true
	p.mu.Unlock()
	if already {
		return
	}

	// The jobs channel is never closed; workers exit on context
	// cancellation, so a submit that lost the race above cannot panic.
	p.cancel()
	p.wg.Wait()
	logging.Info("dispatch pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		var j *job
		select {
		case <-p.ctx.Done():
			return
		case j = <-p.jobs:
		}

		metrics.DispatchQueueDepth.Set(float64(len(p.jobs)))
		if p.ctx.Err() != nil {
			j.handle.report = &Report{Kind: j.work.Kind, Err: p.ctx.Err()}
			close(j.handle.done)
			continue
		}

		report := p.execute(p.ctx, j.work)
		status := "ok"
		if report.Err != nil {
			status = "failed"
			logging.Warn("dispatch worker %d: %s failed: %v", id, j.work.Kind, report.Err)
		}
		metrics.DispatchUnitsTotal.WithLabelValues(string(j.work.Kind), status).Inc()

		// Completion callback fires before the handle is released so a
		// submitter observing Done sees the completion log entry too.
		if p.onComplete != nil {
			p.onComplete(report)
		}
		j.handle.report = report
		close(j.handle.done)
	}
}

func (p *Pool) execute(ctx context.Context, work Work) *Report {
	report := &Report{Kind: work.Kind}

	switch work.Kind {
	case KindGeneratePreview:
		report.Artifact, report.Err = p.previews.GetOrGenerate(ctx, work.PhotoID, work.Size, work.Format)
	case KindBulkGenerate:
		report.Bulk = p.previews.BulkGenerate(ctx, work.PhotoIDs, work.Sizes, work.Formats)
	case KindImportDirectory:
		report.Scan, report.Err = p.scans.ImportDirectory(ctx, work.Directory)
	default:
		report.Err = fmt.Errorf("unknown work kind %q: %w", work.Kind, catalog.ErrInvalidInput)
	}
	return report
}
