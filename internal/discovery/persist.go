package discovery

import (
	"context"

	"go.uber.org/zap"
)

// persist is stage 5: write each candidate org-first so the tender's
// foreign key holds, then the tender, then its items in one batch. A
// failing record costs an error count, not the batch; a tender with no
// usable CNPJ cannot be keyed and is skipped with a log line.
func (p *Pipeline) persist(ctx context.Context, candidates []Candidate, runID string, m *StageMetrics) error {
	m.In = len(candidates)

	for _, c := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if c.CNPJ() == "" {
			zap.L().Warn("discovery: skipping tender without CNPJ",
				zap.String("tender", c.ControlNumber),
				zap.String("org", c.Organization.Name),
			)
			m.Errors++
			continue
		}

		if err := p.store.UpsertOrganization(ctx, orgRowFromCandidate(c)); err != nil {
			m.Errors++
			zap.L().Error("discovery: organization upsert failed",
				zap.String("cnpj", c.CNPJ()),
				zap.Error(err),
			)
			continue
		}
		if err := p.store.UpsertTender(ctx, c, runID); err != nil {
			m.Errors++
			zap.L().Error("discovery: tender upsert failed",
				zap.String("tender", c.ControlNumber),
				zap.Error(err),
			)
			continue
		}
		if err := p.store.UpsertItemsBatch(ctx, c.Key(), itemRowsFromCandidate(c)); err != nil {
			m.Errors++
			zap.L().Error("discovery: item batch upsert failed",
				zap.String("tender", c.ControlNumber),
				zap.Int("items", len(c.Items)),
				zap.Error(err),
			)
			continue
		}

		m.Out++
	}
	return nil
}
