package discovery

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sealtrack/pncp-radar/pkg/pncp"
)

// RelevanceScorer is what the pipeline needs from a scorer. Satisfied by
// *scorer.KeywordScorer.
type RelevanceScorer interface {
	Score(text string) (float64, []string)
	StrongMatchCount(text string) int
	Relevant(text string) bool
}

// TierConcurrency caps parallel item fetches per value tier. Expensive
// tenders get more slots since they are the ones worth verifying fast.
type TierConcurrency struct {
	High   int // value > 100k
	Medium int // 10k .. 100k
	Low    int // < 10k
}

// Config tunes the pipeline stages.
type Config struct {
	Modalities  []int
	PageSize    int
	OnlyOngoing bool

	MinValue float64
	MaxValue float64 // 0 = unbounded

	Strategy            Strategy
	SampleSize          int
	AutoApproveScore    float64
	TitleMatchThreshold int
	ConfidenceThreshold float64
	HighConfidence      float64
	OrgTrustMin         int
	SamplingConcurrency int
	Tiers               TierConcurrency

	SkipExisting bool
}

func (c *Config) applyDefaults() {
	if len(c.Modalities) == 0 {
		c.Modalities = []int{1, 4, 6, 8, 12}
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.MinValue <= 0 {
		c.MinValue = 1000
	}
	if c.Strategy == "" {
		c.Strategy = StrategySampling
	}
	if c.SampleSize <= 0 {
		c.SampleSize = 3
	}
	if c.AutoApproveScore <= 0 {
		c.AutoApproveScore = 70
	}
	if c.TitleMatchThreshold <= 0 {
		c.TitleMatchThreshold = 1
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = 50
	}
	if c.HighConfidence <= 0 {
		c.HighConfidence = 80
	}
	if c.OrgTrustMin <= 0 {
		c.OrgTrustMin = 2
	}
	if c.SamplingConcurrency <= 0 {
		c.SamplingConcurrency = 5
	}
	if c.Tiers.High <= 0 {
		c.Tiers.High = 10
	}
	if c.Tiers.Medium <= 0 {
		c.Tiers.Medium = 5
	}
	if c.Tiers.Low <= 0 {
		c.Tiers.Low = 3
	}
}

// Pipeline runs the five discovery stages over partitions. Create one per
// run: the org confidence cache it carries must not outlive the run.
type Pipeline struct {
	client pncp.Client
	scorer RelevanceScorer
	store  RecordStore
	cache  *OrgConfidenceCache
	cfg    Config
}

// New builds a pipeline. The config is defaulted in place.
func New(client pncp.Client, sc RelevanceScorer, store RecordStore, cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		client: client,
		scorer: sc,
		store:  store,
		cache:  NewOrgConfidenceCache(cfg.OrgTrustMin),
		cfg:    cfg,
	}
}

// PartitionResult is the outcome of one partition run.
type PartitionResult struct {
	Partition  Partition
	Candidates []Candidate
	Metrics    *PipelineMetrics
	Err        error
}

// Run executes all stages for one partition. Per-record failures are
// absorbed into stage error counts. Cancellation stops new API calls but
// still persists the candidates confirmed before the interrupt; the
// returned result carries them alongside the error.
func (p *Pipeline) Run(ctx context.Context, part Partition) (*PartitionResult, error) {
	return p.run(ctx, uuid.NewString(), part)
}

// RunAll runs partitions concurrently. A partition failure is recorded in
// its result; sibling partitions keep going.
func (p *Pipeline) RunAll(ctx context.Context, parts []Partition, concurrency int) ([]*PartitionResult, error) {
	if concurrency <= 0 {
		concurrency = 1
	}
	runID := uuid.NewString()
	results := make([]*PartitionResult, len(parts))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, part := range parts {
		g.Go(func() error {
			res, err := p.run(gCtx, runID, part)
			if res == nil {
				res = &PartitionResult{Partition: part, Err: err}
			}
			results[i] = res
			if err != nil {
				if gCtx.Err() != nil {
					return err
				}
				zap.L().Error("discovery: partition failed",
					zap.String("partition", part.String()),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (p *Pipeline) run(ctx context.Context, runID string, part Partition) (*PartitionResult, error) {
	log := zap.L().With(
		zap.String("run_id", runID),
		zap.String("partition", part.String()),
	)
	log.Info("discovery: starting partition",
		zap.String("strategy", string(p.cfg.Strategy)),
		zap.Ints("modalities", p.cfg.Modalities),
	)

	metrics := &PipelineMetrics{RunID: runID, Partition: part.String()}

	// trackStage owns timing for a stage; the stage fills in the counters.
	trackStage := func(name string, fn func(m *StageMetrics) error) (StageMetrics, error) {
		m := StageMetrics{Name: name}
		start := time.Now()
		err := fn(&m)
		m.Duration = time.Since(start)
		if err != nil {
			log.Error("discovery: stage failed",
				zap.String("stage", name),
				zap.Duration("duration", m.Duration),
				zap.Error(err),
			)
			return m, err
		}
		log.Info("discovery: stage complete",
			zap.String("stage", name),
			zap.Int("in", m.In),
			zap.Int("out", m.Out),
			zap.Int("api_calls", m.APICalls),
			zap.Int("errors", m.Errors),
			zap.Duration("duration", m.Duration),
		)
		return m, nil
	}

	var tenders []pncp.Tender
	var err error
	metrics.Fetch, err = trackStage("fetch", func(m *StageMetrics) error {
		tenders, err = p.bulkFetch(ctx, part, m)
		return err
	})
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: fetch stage for %s", part)
	}

	var candidates []Candidate
	metrics.Filter, _ = trackStage("filter", func(m *StageMetrics) error {
		candidates = p.quickFilter(tenders, m)
		return nil
	})

	var interrupted error
	metrics.Verify, err = trackStage("verify", func(m *StageMetrics) error {
		candidates, err = p.verify(ctx, candidates, m)
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			return nil, eris.Wrapf(err, "discovery: verify stage for %s", part)
		}
		interrupted = err
	}

	if interrupted == nil {
		metrics.Enrich, err = trackStage("enrich", func(m *StageMetrics) error {
			candidates, err = p.enrich(ctx, candidates, m)
			return err
		})
		if err != nil {
			if ctx.Err() == nil {
				return nil, eris.Wrapf(err, "discovery: enrich stage for %s", part)
			}
			interrupted = err
		}
	}

	// An interrupt stops new API calls but never discards confirmed work:
	// the persist stage runs detached so everything approved so far lands
	// in the store before the run winds down.
	persistCtx := ctx
	if interrupted != nil {
		persistCtx = context.WithoutCancel(ctx)
		log.Warn("discovery: partition interrupted, persisting confirmed candidates",
			zap.Int("candidates", len(candidates)),
			zap.Error(interrupted),
		)
	}

	metrics.Persist, err = trackStage("persist", func(m *StageMetrics) error {
		return p.persist(persistCtx, candidates, runID, m)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: persist stage for %s", part)
	}

	metrics.Log()
	res := &PartitionResult{Partition: part, Candidates: candidates, Metrics: metrics, Err: interrupted}
	if interrupted != nil {
		return res, eris.Wrapf(interrupted, "discovery: interrupted during %s", part)
	}
	return res, nil
}

// bulkFetch is stage 1: one paginated listing sweep per modality, then
// dedup within the batch and against the store. A failing modality costs
// an error count, not the partition.
func (p *Pipeline) bulkFetch(ctx context.Context, part Partition, m *StageMetrics) ([]pncp.Tender, error) {
	seen := map[RecordKey]bool{}
	var all []pncp.Tender

	for _, modality := range p.cfg.Modalities {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		q := pncp.SearchQuery{
			Window:      part.Window,
			Modality:    modality,
			UF:          part.UF,
			PageSize:    p.cfg.PageSize,
			OnlyOngoing: p.cfg.OnlyOngoing,
		}
		m.APICalls++
		tenders, err := p.client.SearchAllTenders(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			m.Errors++
			zap.L().Warn("discovery: modality fetch failed",
				zap.String("uf", part.UF),
				zap.Int("modality", modality),
				zap.Error(err),
			)
			continue
		}
		for _, t := range tenders {
			key := RecordKey{CNPJ: t.CNPJ(), Year: t.Year, Sequential: t.Sequential, UF: t.Unit.UF}
			if seen[key] {
				continue
			}
			seen[key] = true
			all = append(all, t)
		}
	}
	m.In = len(seen)

	if p.cfg.SkipExisting && len(all) > 0 {
		keys := make([]RecordKey, len(all))
		for i, t := range all {
			keys[i] = RecordKey{CNPJ: t.CNPJ(), Year: t.Year, Sequential: t.Sequential, UF: t.Unit.UF}
		}
		existing, err := p.store.ExistingKeys(ctx, keys)
		if err != nil {
			// Dedup is an optimization; upserts keep reprocessing harmless.
			m.Errors++
			zap.L().Warn("discovery: existing-key lookup failed, processing all", zap.Error(err))
		} else if len(existing) > 0 {
			fresh := all[:0]
			for _, t := range all {
				if !existing[RecordKey{CNPJ: t.CNPJ(), Year: t.Year, Sequential: t.Sequential, UF: t.Unit.UF}] {
					fresh = append(fresh, t)
				}
			}
			all = fresh
		}
	}

	m.Out = len(all)
	return all, nil
}

// quickFilter is stage 2: keyword and value screening with zero API calls,
// sorted so later stages spend their call budget on the best candidates
// first.
func (p *Pipeline) quickFilter(tenders []pncp.Tender, m *StageMetrics) []Candidate {
	m.In = len(tenders)

	var out []Candidate
	for _, t := range tenders {
		value := t.Value()
		if value < p.cfg.MinValue {
			continue
		}
		if p.cfg.MaxValue > 0 && value > p.cfg.MaxValue {
			continue
		}

		score, matched := p.scorer.Score(combinedText(t))
		if len(matched) == 0 {
			continue
		}
		out = append(out, Candidate{
			Tender:       t,
			QuickScore:   score,
			MatchedTerms: matched,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].QuickScore > out[j].QuickScore
	})
	m.Out = len(out)
	return out
}

// combinedText is what item-free scoring sees for a tender.
func combinedText(t pncp.Tender) string {
	return strings.TrimSpace(t.Title + " " + t.Description)
}
