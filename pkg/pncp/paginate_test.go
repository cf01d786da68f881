package pncp

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectPagesStopsOnEmptyPage(t *testing.T) {
	var pages []int
	got, err := collectPages(context.Background(), nil, func(_ context.Context, n int) ([]string, int, error) {
		pages = append(pages, n)
		if n == 3 {
			return nil, 5, nil
		}
		return []string{"v"}, 5, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, []int{1, 2, 3}, pages)
}

func TestCollectPagesStopsWhenNoneRemaining(t *testing.T) {
	got, err := collectPages(context.Background(), nil, func(_ context.Context, n int) ([]string, int, error) {
		return []string{"v"}, 2 - n, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestCollectPagesHonorsCeiling(t *testing.T) {
	var calls int
	got, err := collectPages(context.Background(), nil, func(_ context.Context, n int) ([]string, int, error) {
		calls++
		return []string{"v"}, 1000, nil
	})
	require.NoError(t, err)
	assert.Len(t, got, maxPages)
	assert.Equal(t, maxPages, calls)
}

func TestCollectPagesFirstPageErrorPropagates(t *testing.T) {
	_, err := collectPages(context.Background(), nil, func(_ context.Context, n int) ([]string, int, error) {
		return nil, 0, eris.New("boom")
	})
	require.Error(t, err)
}

func TestCollectPagesLaterErrorReturnsPartial(t *testing.T) {
	got, err := collectPages(context.Background(), nil, func(_ context.Context, n int) ([]string, int, error) {
		if n == 3 {
			return nil, 0, eris.New("boom")
		}
		return []string{"v"}, 10, nil
	})
	require.NoError(t, err, "a partial window is returned, not failed")
	assert.Len(t, got, 2)
}
