package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sealtrack/pncp-radar/internal/config"
	"github.com/sealtrack/pncp-radar/internal/discovery"
)

func TestBuildWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	t.Run("days back from now", func(t *testing.T) {
		w, err := buildWindow("", "", 7, now)
		require.NoError(t, err)
		assert.Equal(t, "20260823", w.StartParam())
		assert.Equal(t, "20260830", w.EndParam())
	})

	t.Run("explicit from and to", func(t *testing.T) {
		w, err := buildWindow("2026-01-01", "2026-02-15", 7, now)
		require.NoError(t, err)
		assert.Equal(t, "20260101", w.StartParam())
		assert.Equal(t, "20260215", w.EndParam())
	})

	t.Run("from overrides days", func(t *testing.T) {
		w, err := buildWindow("2026-06-01", "", 7, now)
		require.NoError(t, err)
		assert.Equal(t, "20260601", w.StartParam())
		assert.Equal(t, "20260830", w.EndParam())
	})

	t.Run("inverted window rejected", func(t *testing.T) {
		_, err := buildWindow("2026-09-01", "2026-08-01", 0, now)
		assert.Error(t, err)
	})

	t.Run("bad from format", func(t *testing.T) {
		_, err := buildWindow("01/06/2026", "", 0, now)
		assert.Error(t, err)
	})

	t.Run("no bounds at all", func(t *testing.T) {
		_, err := buildWindow("", "", 0, now)
		assert.Error(t, err)
	})
}

func TestPipelineConfig(t *testing.T) {
	cfg = &config.Config{}
	cfg.Discovery.Modalities = []int{6, 8}
	cfg.Discovery.PageSize = 25
	cfg.Discovery.MinValue = 2500
	cfg.Discovery.MaxValue = 1e6
	cfg.Discovery.SampleSize = 4
	cfg.Discovery.AutoApproveScore = 65
	cfg.Discovery.TierHighConcurrency = 8
	cfg.Discovery.TierMedConcurrency = 4
	cfg.Discovery.TierLowConcurrency = 2
	cfg.Discovery.SkipExisting = true

	pc := pipelineConfig(discovery.StrategyExhaustive)

	assert.Equal(t, []int{6, 8}, pc.Modalities)
	assert.Equal(t, 25, pc.PageSize)
	assert.InDelta(t, 2500.0, pc.MinValue, 0.001)
	assert.InDelta(t, 1e6, pc.MaxValue, 0.001)
	assert.Equal(t, discovery.StrategyExhaustive, pc.Strategy)
	assert.Equal(t, 4, pc.SampleSize)
	assert.InDelta(t, 65.0, pc.AutoApproveScore, 0.001)
	assert.Equal(t, discovery.TierConcurrency{High: 8, Medium: 4, Low: 2}, pc.Tiers)
	assert.True(t, pc.SkipExisting)
}
