package pncp

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// pageFunc fetches one page and reports how many pages remain after it.
type pageFunc[T any] func(ctx context.Context, pageNum int) ([]T, int, error)

// collectPages accumulates pages until the server reports none remaining,
// a page comes back empty, or the page ceiling is hit. A failure on the
// first page is an error; a failure on a later page returns what was
// already gathered, since a partial window is still worth filtering.
func collectPages[T any](ctx context.Context, pacer *rate.Limiter, fetch pageFunc[T]) ([]T, error) {
	var all []T
	for pageNum := 1; pageNum <= maxPages; pageNum++ {
		if pageNum > 1 && pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				return all, eris.Wrap(err, "pncp: page pacing wait")
			}
		}

		items, remaining, err := fetch(ctx, pageNum)
		if err != nil {
			if pageNum == 1 {
				return nil, err
			}
			zap.L().Warn("pncp: pagination stopped early",
				zap.Int("page", pageNum),
				zap.Int("collected", len(all)),
				zap.Error(err),
			)
			return all, nil
		}
		if len(items) == 0 {
			break
		}
		all = append(all, items...)
		if remaining <= 0 {
			break
		}
	}
	return all, nil
}
