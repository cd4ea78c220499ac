package prober

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RunBatch probes every identifier and returns exactly one Result per input,
// in input order. Work is spread over a bounded pool of MaxConcurrency
// goroutines (1 means fully sequential). A panic inside one probe is
// converted into a failed Result so a single bad identifier never aborts the
// batch. Identifiers whose probe has not started, or is still in flight,
// when ctx expires are returned with Skipped set rather than marked broken.
func (p *Prober) RunBatch(ctx context.Context, identifiers []string) []Result {
	results := make([]Result, len(identifiers))

	concurrency := p.cfg.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	var wg sync.WaitGroup
	for i, id := range identifiers {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result{
						Identifier: id,
						Healthy:    false,
						Error:      fmt.Sprintf("internal error: %v", r),
						CheckedAt:  time.Now().UTC(),
					}
				}
			}()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = skippedResult(id)
				return
			}
			defer func() { <-sem }()

			// The budget may have expired while waiting for a slot.
			if ctx.Err() != nil {
				results[i] = skippedResult(id)
				return
			}

			results[i] = p.Probe(ctx, id)
		}(i, id)
	}
	wg.Wait()

	return results
}

func skippedResult(id string) Result {
	return Result{
		Identifier: id,
		Skipped:    true,
		CheckedAt:  time.Now().UTC(),
	}
}
