package dashboard

import (
	"context"
	"fmt"
	"time"

	"checkinbot/internal/logger"
	"checkinbot/internal/storage"
	"checkinbot/internal/tracker"

	"go.uber.org/zap"
)

type Status string

const (
	StatusHealthy Status = "healthy"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

type Health struct {
	Status   Status   `json:"status"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
}

// Report is a read-only projection of the processed-post ledger.
type Report struct {
	GeneratedAt time.Time                  `json:"generated_at"`
	Today       string                     `json:"today"`
	Health      Health                     `json:"health"`
	Heartbeat   *tracker.Heartbeat         `json:"heartbeat,omitempty"`
	Totals      *storage.Totals            `json:"totals,omitempty"`
	Daily       []*storage.DailySummary    `json:"daily"`
	Recent      []*storage.ProcessedRecord `json:"recent"`
	Failures    []*storage.ProcessedRecord `json:"failures"`
	Pending     []*storage.ProcessedRecord `json:"pending"`
}

type HeartbeatSource interface {
	Heartbeat() tracker.Heartbeat
}

type Options struct {
	Days        int
	RecentLimit int
	DryRun      bool
	Location    *time.Location

	// Heartbeat and Interval enable the stale-loop warning; both are unset
	// when the report is built outside the running bot.
	Heartbeat HeartbeatSource
	Interval  time.Duration

	Now func() time.Time
}

func (o *Options) defaults() {
	if o.Days <= 0 {
		o.Days = 7
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = 20
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Build reads the ledger and derives the bot health. Store failures become
// health issues, never errors.
func Build(ctx context.Context, store storage.Storage, options Options) *Report {
	options.defaults()

	now := options.Now()
	report := &Report{
		GeneratedAt: now.UTC(),
		Today:       tracker.DayBucket(now, options.Location),
		Health:      Health{Status: StatusHealthy, Issues: []string{}, Warnings: []string{}},
	}

	var err error
	if report.Totals, err = store.Totals(ctx); err != nil {
		report.issue("ledger unreadable: %v", err)
		return report.finish()
	}
	if report.Daily, err = store.DailySummaries(ctx, options.Days); err != nil {
		report.issue("daily summaries unreadable: %v", err)
	}
	if report.Recent, err = store.RecentRecords(ctx, options.RecentLimit); err != nil {
		report.issue("recent records unreadable: %v", err)
	}
	if report.Failures, err = store.FailedRecords(ctx, options.RecentLimit); err != nil {
		report.issue("failed records unreadable: %v", err)
	}
	if report.Pending, err = store.PendingRecords(ctx); err != nil {
		report.issue("pending records unreadable: %v", err)
	}

	if options.DryRun {
		report.warn("bot is in dry-run mode")
	}

	today := report.todaySummary()
	if today == nil || today.Processed == 0 {
		report.warn("no posts processed today")
	} else if today.Failed > 0 {
		report.warn("%d rewards with failed steps today", today.Failed)
	}

	if len(report.Pending) > 0 {
		report.warn("%d interrupted rewards need manual reconciliation", len(report.Pending))
	}

	if options.Heartbeat != nil {
		hb := options.Heartbeat.Heartbeat()
		report.Heartbeat = &hb

		switch {
		case hb.FinishedAt.IsZero():
			report.warn("no poll cycle finished yet")
		case options.Interval > 0 && now.Sub(hb.FinishedAt) > tracker.StaleHeartbeatIntervals*options.Interval:
			report.warn("last poll cycle finished %s ago, loop may be stuck", now.Sub(hb.FinishedAt).Round(time.Second))
		}
		if hb.Error != "" {
			report.warn("last poll cycle: %s", hb.Error)
		}
	}

	return report.finish()
}

func (r *Report) todaySummary() *storage.DailySummary {
	for _, summary := range r.Daily {
		if summary.DayBucket == r.Today {
			return summary
		}
	}
	return nil
}

func (r *Report) issue(format string, args ...any) {
	r.Health.Issues = append(r.Health.Issues, fmt.Sprintf(format, args...))
}

func (r *Report) warn(format string, args ...any) {
	r.Health.Warnings = append(r.Health.Warnings, fmt.Sprintf(format, args...))
}

func (r *Report) finish() *Report {
	switch {
	case len(r.Health.Issues) > 0:
		r.Health.Status = StatusError
	case len(r.Health.Warnings) > 0:
		r.Health.Status = StatusWarning
	}
	return r
}

// LogDailyStats writes today's ledger summary to the log.
func LogDailyStats(ctx context.Context, store storage.Storage, location *time.Location) {
	today := tracker.DayBucket(time.Now(), location)

	summaries, err := store.DailySummaries(ctx, 1)
	if err != nil {
		logger.Error("daily stats: ledger unreadable", zap.Error(err))
		return
	}

	summary := &storage.DailySummary{DayBucket: today}
	if len(summaries) > 0 && summaries[0].DayBucket == today {
		summary = summaries[0]
	}

	logger.Info("daily stats",
		zap.String("day", summary.DayBucket),
		zap.Int64("processed", summary.Processed),
		zap.Int64("comments", summary.CommentsSent),
		zap.Int64("transfers", summary.TransfersSent),
		zap.Int64("votes", summary.VotesSent),
		zap.Int64("simulated", summary.Simulated),
		zap.Int64("failed", summary.Failed))
}
