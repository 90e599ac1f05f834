package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ymatsuda/cuprum/internal/calendar"
	"github.com/ymatsuda/cuprum/internal/contracts"
)

// BarSource abstracts the vendor client for the collector
type BarSource interface {
	DailyBars(ctx context.Context, instrument string, from, to time.Time) ([]contracts.PriceRecord, error)
}

// CollectorConfig holds collection parameters
type CollectorConfig struct {
	Instruments []string

	// DaysBack is how far behind as-of each collection reaches, so a
	// missed day is picked up by the next run.
	DaysBack int
}

// Collector pulls recent bars for every tracked instrument and upserts
// them. One instrument failing does not stop the others.
type Collector struct {
	source BarSource
	prices contracts.PriceRepository
	runs   contracts.RunRepository
	config CollectorConfig
	log    zerolog.Logger
}

// NewCollector creates a collector
func NewCollector(source BarSource, prices contracts.PriceRepository,
	runs contracts.RunRepository, config CollectorConfig, log zerolog.Logger) *Collector {
	return &Collector{
		source: source,
		prices: prices,
		runs:   runs,
		config: config,
		log:    log.With().Str("component", "marketdata.collector").Logger(),
	}
}

// CollectStats summarizes one collection run
type CollectStats struct {
	BarsStored int
	Failed     map[string]string
}

// Collect fetches and stores bars for [asOf-DaysBack, asOf]. Runs
// single-flight under the collection job name. Returns an error only
// when every instrument fails or the run itself cannot execute.
func (c *Collector) Collect(ctx context.Context, asOf time.Time) (*CollectStats, error) {
	asOf = calendar.Midnight(asOf)
	started := time.Now()

	rec := &contracts.RunRecord{
		RunID:        fmt.Sprintf("%s-%s", contracts.JobCollection, started.UTC().Format("20060102T150405.000")),
		JobName:      contracts.JobCollection,
		StartedAt:    started,
		StepStatuses: make(map[string]contracts.StepStatus),
	}
	if err := c.runs.TryStart(ctx, rec); err != nil {
		return nil, err
	}

	stats := &CollectStats{Failed: make(map[string]string)}
	from := asOf.AddDate(0, 0, -c.config.DaysBack)

	for _, instrument := range c.config.Instruments {
		bars, err := c.source.DailyBars(ctx, instrument, from, asOf)
		if err != nil {
			c.log.Error().Str("instrument", instrument).Err(err).Msg("collection failed")
			stats.Failed[instrument] = err.Error()
			rec.StepStatuses[instrument] = contracts.StepFailed
			continue
		}
		if err := c.prices.UpsertBatch(ctx, bars); err != nil {
			stats.Failed[instrument] = err.Error()
			rec.StepStatuses[instrument] = contracts.StepFailed
			continue
		}
		stats.BarsStored += len(bars)
		rec.StepStatuses[instrument] = contracts.StepOK
	}

	switch {
	case len(stats.Failed) == 0:
		rec.Status = contracts.RunSuccess
	case len(stats.Failed) < len(c.config.Instruments):
		rec.Status = contracts.RunPartial
	default:
		rec.Status = contracts.RunFailed
	}

	if err := c.runs.Finish(context.WithoutCancel(ctx), rec); err != nil {
		return nil, fmt.Errorf("finish collection run: %w", err)
	}

	c.log.Info().
		Str("as_of", asOf.Format("2006-01-02")).
		Int("bars", stats.BarsStored).
		Int("failed_instruments", len(stats.Failed)).
		Str("status", string(rec.Status)).
		Msg("collection finished")

	if rec.Status == contracts.RunFailed {
		return stats, fmt.Errorf("collection failed for all %d instruments", len(c.config.Instruments))
	}
	return stats, nil
}
