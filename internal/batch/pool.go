// Package batch implements the fetch/validate worker pool (BatchWorker)
// and the quota-enforcing BatchAccumulator that feeds it.
package batch

import (
	"context"
	"os"
	"sync"

	"github.com/go-imagenet/imagenetdl/internal/fetch"
)

// Worker runs a batch of (url, destPath) pairs and reports, per
// input index, whether that occurrence ended up succeeding.
type Worker interface {
	RunIndexed(urls, destPaths []string) []bool
}

// Pool is the process-wide bounded fetch/validate worker pool (spec
// §5: ~100 workers by default), shared across sequential
// StatefulDownloader runs rather than rebuilt per batch.
type Pool struct {
	queue     *queue
	fetcher   fetch.Fetcher
	validator fetch.Validator
	wg        sync.WaitGroup
}

// NewPool starts size persistent workers pulling fetch/validate jobs.
// size <= 0 defaults to 100.
func NewPool(size int, fetcher fetch.Fetcher, validator fetch.Validator) *Pool {
	if size <= 0 {
		size = 100
	}
	p := &Pool{queue: newQueue(), fetcher: fetcher, validator: validator}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		j, ok := p.queue.pop()
		if !ok {
			return
		}
		success := p.fetcher.Fetch(context.Background(), j.url, j.destPath)
		if success && !p.validator.IsValid(j.destPath) {
			_ = os.Remove(j.destPath)
			success = false
		}
		j.resultCh <- indexedResult{index: j.index, success: success}
	}
}

// RunIndexed implements Worker.
func (p *Pool) RunIndexed(urls, destPaths []string) []bool {
	n := len(urls)
	if n == 0 {
		return nil
	}

	resultCh := make(chan indexedResult, n)
	for i := range urls {
		p.queue.push(job{url: urls[i], destPath: destPaths[i], index: i, resultCh: resultCh})
	}

	outcomes := make([]bool, n)
	for i := 0; i < n; i++ {
		r := <-resultCh
		outcomes[r.index] = r.success
	}
	return outcomes
}

// Close stops all workers once the queue drains. Pending in-flight
// RunIndexed calls must complete before Close is called.
func (p *Pool) Close() {
	p.queue.close()
	p.wg.Wait()
}
