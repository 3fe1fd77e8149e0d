package pipeline

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jasl/photo-index/internal/database"
)

// WorkerPool runs N workers that repeatedly claim and process pending
// photos. Workers are independent; claiming uses row locks so two workers
// never process the same photo.
type WorkerPool struct {
	processor    *Processor
	workers      int
	pollInterval time.Duration
}

// NewWorkerPool creates a pool of the given size. An empty queue is polled
// at pollInterval.
func NewWorkerPool(processor *Processor, workers int, pollInterval time.Duration) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &WorkerPool{
		processor:    processor,
		workers:      workers,
		pollInterval: pollInterval,
	}
}

// Run starts the workers and blocks until the context is canceled.
func (wp *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wp.runWorker(ctx)
		}()
	}
	wg.Wait()
}

func (wp *WorkerPool) runWorker(ctx context.Context) {
	workerID := uuid.NewString()[:8]
	log.Printf("worker %s: started", workerID)

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker %s: stopping", workerID)
			return
		default:
		}

		result, err := wp.processor.ProcessNext(ctx)
		if errors.Is(err, database.ErrNoPendingPhotos) {
			select {
			case <-ctx.Done():
				log.Printf("worker %s: stopping", workerID)
				return
			case <-time.After(wp.pollInterval):
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("worker %s: processing error: %v", workerID, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wp.pollInterval):
			}
			continue
		}

		log.Printf("worker %s: photo %d -> %s (steps ok: %d, failed: %d, tags: %d, faces: %d, duplicates: %d)",
			workerID, result.PhotoID, result.State,
			len(result.StepsCompleted), len(result.StepsFailed),
			result.TagCount, result.FaceCount, result.DuplicateCount)
	}
}

// DrainQueue processes pending photos until the queue is empty, returning
// the results. Used by the one-shot process command.
func (wp *WorkerPool) DrainQueue(ctx context.Context, onResult func(*Result)) error {
	var wg sync.WaitGroup
	errCh := make(chan error, wp.workers)
	var mu sync.Mutex

	for i := 0; i < wp.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				result, err := wp.processor.ProcessNext(ctx)
				if errors.Is(err, database.ErrNoPendingPhotos) {
					return
				}
				if err != nil {
					errCh <- err
					return
				}
				if onResult != nil {
					mu.Lock()
					onResult(result)
					mu.Unlock()
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)
	return <-errCh
}
