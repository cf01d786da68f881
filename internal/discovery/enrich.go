package discovery

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// enrich is stage 4: complete every approved candidate for persistence.
// Candidates that sailed through verification without an item fetch get
// their full item list here, throttled per value tier so the expensive
// tenders finish first. Enrichment never rejects; relevance was settled
// in stage 3.
func (p *Pipeline) enrich(ctx context.Context, in []Candidate, m *StageMetrics) ([]Candidate, error) {
	m.In = len(in)
	if len(in) == 0 {
		return nil, nil
	}

	high := semaphore.NewWeighted(int64(p.cfg.Tiers.High))
	medium := semaphore.NewWeighted(int64(p.cfg.Tiers.Medium))
	low := semaphore.NewWeighted(int64(p.cfg.Tiers.Low))

	tierFor := func(value float64) *semaphore.Weighted {
		switch {
		case value > 100_000:
			return high
		case value >= 10_000:
			return medium
		default:
			return low
		}
	}

	var (
		mu       sync.Mutex
		out      = make([]Candidate, 0, len(in))
		calls    atomic.Int64
		errCount atomic.Int64
	)

	g, gCtx := errgroup.WithContext(ctx)
	for _, c := range in {
		g.Go(func() error {
			c.GovernmentLevel = ClassifyGovernmentLevel(c.Organization)
			c.Size = ClassifyTenderSize(c.Value())

			// The candidate is already approved; it is kept on every exit
			// path, including cancellation mid-fetch.
			defer func() {
				mu.Lock()
				out = append(out, c)
				mu.Unlock()
			}()

			if len(c.Items) == 0 {
				sem := tierFor(c.Value())
				if err := sem.Acquire(gCtx, 1); err != nil {
					return err
				}
				calls.Add(1)
				items, err := p.client.TenderItems(gCtx, c.Ref())
				sem.Release(1)

				if err != nil {
					if gCtx.Err() != nil {
						return err
					}
					errCount.Add(1)
					zap.L().Warn("discovery: enrichment item fetch failed",
						zap.String("tender", c.ControlNumber),
						zap.Error(err),
					)
				} else {
					c.Items = items
					relevant := map[int]bool{}
					for _, it := range items {
						if p.scorer.Relevant(it.Description) {
							relevant[it.Number] = true
						}
					}
					c.RelevantItems = relevant
				}
			}
			return nil
		})
	}
	err := g.Wait()

	m.APICalls += int(calls.Load())
	m.Errors += int(errCount.Load())
	m.Out = len(out)
	return out, err
}
