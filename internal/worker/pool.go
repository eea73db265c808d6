// Package worker persists submission outcomes in the background so the submit
// path never waits on storage.
package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
)

const saveTimeout = 5 * time.Second

// Job carries one history record to persist.
type Job struct {
	Record domain.AnalysisRecord
}

// Pool manages background workers for async jobs.
type Pool struct {
	repo ports.AnalysisRepository
	jobs chan Job
	wg   sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewPool creates a worker pool with the given queue size.
func NewPool(repo ports.AnalysisRepository, queueSize int) *Pool {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{repo: repo, jobs: make(chan Job, queueSize)}
}

// Start launches the worker goroutines.
func (p *Pool) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.processJob(job)
			}
		}()
	}
}

// Stop waits for workers to drain the queue after closing it. Safe to call twice.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

// Submit queues a job without blocking. It reports whether the job was accepted.
func (p *Pool) Submit(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		log.Printf("WARN worker: pool stopped, dropping record %s", job.Record.ID)
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		log.Printf("WARN worker: queue full, dropping record %s", job.Record.ID)
		return false
	}
}

func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := p.repo.Save(ctx, job.Record); err != nil {
		log.Printf("WARN worker: failed to save record %s: %v", job.Record.ID, err)
		return
	}
	log.Printf("INFO worker: saved %s result %s", job.Record.Kind, job.Record.ID)
}

// Record queues rec for persistence. It satisfies ports.HistorySink.
func (p *Pool) Record(rec domain.AnalysisRecord) bool {
	return p.Submit(Job{Record: rec})
}
