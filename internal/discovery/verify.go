package discovery

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sealtrack/pncp-radar/pkg/pncp"
)

// verify is stage 3: spend API calls only on candidates the quick filter
// could not decide. The sampling strategy samples a few items per tender
// and learns org-level trust along the way; the exhaustive strategy reads
// every item of every candidate.
func (p *Pipeline) verify(ctx context.Context, in []Candidate, m *StageMetrics) ([]Candidate, error) {
	m.In = len(in)
	if len(in) == 0 {
		return nil, nil
	}

	var out []Candidate
	var err error
	switch p.cfg.Strategy {
	case StrategyExhaustive:
		out, err = p.verifyExhaustive(ctx, in, m)
	default:
		out, err = p.verifySampling(ctx, in, m)
	}

	// Keep the quick-score ordering the filter stage established. On
	// cancellation the candidates approved so far come back with the error
	// so the run can still persist them.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QuickScore > out[j].QuickScore
	})
	m.Out = len(out)
	return out, err
}

// verifySampling approves cheap cases without any API call, then samples
// the rest grouped by organization. Candidates of one organization are
// decided sequentially so trust earned on its early records spares calls
// on the later ones.
func (p *Pipeline) verifySampling(ctx context.Context, in []Candidate, m *StageMetrics) ([]Candidate, error) {
	var approved []Candidate
	byOrg := map[string][]Candidate{}
	var orgOrder []string

	for _, c := range in {
		switch {
		case c.QuickScore >= p.cfg.AutoApproveScore:
			c.Confidence = c.QuickScore
			c.ApprovalReason = ReasonHighScore
			approved = append(approved, c)

		case p.scorer.StrongMatchCount(c.Title) >= p.cfg.TitleMatchThreshold:
			c.Confidence = p.cfg.HighConfidence
			c.ApprovalReason = ReasonTitleMatch
			approved = append(approved, c)

		default:
			cnpj := c.CNPJ()
			if _, ok := byOrg[cnpj]; !ok {
				orgOrder = append(orgOrder, cnpj)
			}
			byOrg[cnpj] = append(byOrg[cnpj], c)
		}
	}

	var (
		mu       sync.Mutex
		calls    atomic.Int64
		errCount atomic.Int64
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.SamplingConcurrency)
	// Launch orgs in first-appearance order of the score-sorted input, so
	// the concurrency gate admits the best-scored organizations first.
	for _, cnpj := range orgOrder {
		group := byOrg[cnpj]
		g.Go(func() error {
			var kept []Candidate
			// Flush on every exit path: candidates confirmed before a
			// cancellation still count.
			defer func() {
				mu.Lock()
				approved = append(approved, kept...)
				mu.Unlock()
			}()

			for _, c := range group {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}

				if p.cache.Trusted(cnpj) {
					c.Confidence = p.cfg.HighConfidence
					c.ApprovalReason = ReasonOrgTrust
					kept = append(kept, c)
					continue
				}
				if p.cache.Rejected(cnpj) {
					continue
				}

				calls.Add(1)
				items, err := p.client.SampleItems(gCtx, c.Ref(), p.cfg.SampleSize)
				if err != nil {
					if gCtx.Err() != nil {
						return err
					}
					errCount.Add(1)
					zap.L().Warn("discovery: item sampling failed",
						zap.String("tender", c.ControlNumber),
						zap.Error(err),
					)
					continue
				}

				confidence := p.sampleConfidence(items)
				if confidence < p.cfg.ConfidenceThreshold {
					p.cache.Reject(cnpj)
					continue
				}
				if confidence >= p.cfg.HighConfidence {
					p.cache.Confirm(cnpj)
				}

				c.Confidence = confidence
				c.ApprovalReason = ReasonSampling
				kept = append(kept, c)
			}
			return nil
		})
	}
	err := g.Wait()

	m.APICalls += int(calls.Load())
	m.Errors += int(errCount.Load())
	return approved, err
}

// sampleConfidence converts sampled items into a 0..100 confidence: the
// fraction of items matching the vocabulary.
func (p *Pipeline) sampleConfidence(items []pncp.Item) float64 {
	if len(items) == 0 {
		return 0
	}
	matched := 0
	for _, it := range items {
		if p.scorer.Relevant(it.Description) {
			matched++
		}
	}
	return float64(matched) / float64(len(items)) * 100
}

// verifyExhaustive reads every item of every candidate. Needed when a
// relevant item can hide inside an otherwise unrelated tender; no shortcut
// is sound in that regime.
func (p *Pipeline) verifyExhaustive(ctx context.Context, in []Candidate, m *StageMetrics) ([]Candidate, error) {
	var (
		mu       sync.Mutex
		approved []Candidate
		calls    atomic.Int64
		errCount atomic.Int64
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.SamplingConcurrency)
	for _, c := range in {
		g.Go(func() error {
			if gCtx.Err() != nil {
				return gCtx.Err()
			}

			calls.Add(1)
			items, err := p.client.TenderItems(gCtx, c.Ref())
			if err != nil {
				if gCtx.Err() != nil {
					return err
				}
				errCount.Add(1)
				zap.L().Warn("discovery: full item fetch failed",
					zap.String("tender", c.ControlNumber),
					zap.Error(err),
				)
				return nil
			}

			relevant := map[int]bool{}
			for _, it := range items {
				if p.scorer.Relevant(it.Description) {
					relevant[it.Number] = true
				}
			}
			if len(relevant) == 0 {
				p.cache.Reject(c.CNPJ())
				return nil
			}

			c.Items = items
			c.RelevantItems = relevant
			c.Confidence = float64(len(relevant)) / float64(len(items)) * 100
			c.ApprovalReason = ReasonItemAnalysis
			p.cache.Confirm(c.CNPJ())

			mu.Lock()
			approved = append(approved, c)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	m.APICalls += int(calls.Load())
	m.Errors += int(errCount.Load())
	return approved, err
}
