package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sealtrack/pncp-radar/internal/discovery"
	"github.com/sealtrack/pncp-radar/internal/scorer"
	"github.com/sealtrack/pncp-radar/pkg/pncp"
)

const windowFlagLayout = "2006-01-02"

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run the discovery pipeline over a publication window",
	Long:  "Fetches tenders from PNCP for the given states and date window, filters and verifies them against the security-seal vocabulary, and persists confirmed candidates.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		ufs, _ := cmd.Flags().GetStringSlice("uf")
		days, _ := cmd.Flags().GetInt("days")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		strategyFlag, _ := cmd.Flags().GetString("strategy")
		concurrency, _ := cmd.Flags().GetInt("concurrency")

		if len(ufs) == 0 {
			ufs = cfg.Discovery.UFs
		}
		if len(ufs) == 0 {
			return eris.New("no states to scan: pass --uf or set discovery.ufs")
		}

		window, err := buildWindow(from, to, days, time.Now())
		if err != nil {
			return err
		}

		strategyName := cfg.Discovery.Strategy
		if strategyFlag != "" {
			strategyName = strategyFlag
		}
		strategy, err := discovery.ParseStrategy(strategyName)
		if err != nil {
			return err
		}

		voc, err := scorer.LoadVocabulary(cfg.Discovery.VocabularyPath)
		if err != nil {
			return eris.Wrap(err, "load vocabulary")
		}

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		pipe := discovery.New(buildClient(), scorer.NewKeywordScorer(voc), store, pipelineConfig(strategy))

		parts := make([]discovery.Partition, 0, len(ufs))
		for _, uf := range ufs {
			parts = append(parts, discovery.Partition{UF: uf, Window: window})
		}

		zap.L().Info("starting discovery",
			zap.Strings("ufs", ufs),
			zap.String("window", window.StartParam()+".."+window.EndParam()),
			zap.String("strategy", string(strategy)))

		if concurrency <= 0 {
			concurrency = cfg.Discovery.PartitionConcurrency
		}

		results, runErr := pipe.RunAll(ctx, parts, concurrency)

		failed := 0
		for _, r := range results {
			if r == nil {
				continue
			}
			if r.Metrics != nil {
				fmt.Println(r.Metrics.Report())
			}
			if r.Err != nil {
				failed++
				zap.L().Error("partition failed",
					zap.String("partition", r.Partition.String()),
					zap.Error(r.Err))
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "discover")
		}
		if failed > 0 {
			return eris.Errorf("%d of %d partitions failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringSlice("uf", nil, "states to scan (default from config)")
	discoverCmd.Flags().Int("days", 7, "scan the last N days of publications")
	discoverCmd.Flags().String("from", "", "window start, YYYY-MM-DD (overrides --days)")
	discoverCmd.Flags().String("to", "", "window end, YYYY-MM-DD (defaults to today)")
	discoverCmd.Flags().String("strategy", "", "verification strategy: sampling or exhaustive")
	discoverCmd.Flags().Int("concurrency", 0, "partitions processed in parallel")
	rootCmd.AddCommand(discoverCmd)
}

// buildWindow resolves --from/--to/--days into a publication window. An
// explicit --from overrides --days; --to defaults to now.
func buildWindow(from, to string, days int, now time.Time) (pncp.Window, error) {
	end := now
	if to != "" {
		t, err := time.Parse(windowFlagLayout, to)
		if err != nil {
			return pncp.Window{}, eris.Wrapf(err, "parse --to %q", to)
		}
		end = t
	}

	var start time.Time
	switch {
	case from != "":
		t, err := time.Parse(windowFlagLayout, from)
		if err != nil {
			return pncp.Window{}, eris.Wrapf(err, "parse --from %q", from)
		}
		start = t
	case days > 0:
		start = end.AddDate(0, 0, -days)
	default:
		return pncp.Window{}, eris.New("either --from or a positive --days is required")
	}

	if start.After(end) {
		return pncp.Window{}, eris.Errorf("window start %s is after end %s",
			start.Format(windowFlagLayout), end.Format(windowFlagLayout))
	}
	return pncp.Window{Start: start, End: end}, nil
}

func buildClient() pncp.Client {
	opts := []pncp.Option{
		pncp.WithBaseURL(cfg.PNCP.BaseURL),
		pncp.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.PNCP.TimeoutSecs) * time.Second}),
		pncp.WithLimiter(pncp.NewWindowLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.PerHour)),
		pncp.WithRetry(cfg.Retry.MaxRetries, time.Duration(cfg.Retry.BaseDelaySecs)*time.Second),
		pncp.WithPagePacing(cfg.RateLimit.PagePacingRPS),
		pncp.WithTokenBuffer(time.Duration(cfg.PNCP.TokenBufferMins) * time.Minute),
	}
	if cfg.PNCP.Login != "" {
		opts = append(opts, pncp.WithCredentials(pncp.Credentials{
			Login:    cfg.PNCP.Login,
			Password: cfg.PNCP.Password,
		}))
	}
	return pncp.NewClient(opts...)
}

func pipelineConfig(strategy discovery.Strategy) discovery.Config {
	d := cfg.Discovery
	return discovery.Config{
		Modalities:  d.Modalities,
		PageSize:    d.PageSize,
		OnlyOngoing: d.OnlyOngoing,
		MinValue:    d.MinValue,
		MaxValue:    d.MaxValue,

		Strategy:            strategy,
		SampleSize:          d.SampleSize,
		AutoApproveScore:    d.AutoApproveScore,
		TitleMatchThreshold: d.TitleMatchThreshold,
		ConfidenceThreshold: d.ConfidenceThreshold,
		HighConfidence:      d.HighConfidence,
		OrgTrustMin:         d.OrgTrustMin,
		SamplingConcurrency: d.SamplingConcurrency,
		Tiers: discovery.TierConcurrency{
			High:   d.TierHighConcurrency,
			Medium: d.TierMedConcurrency,
			Low:    d.TierLowConcurrency,
		},

		SkipExisting: d.SkipExisting,
	}
}
