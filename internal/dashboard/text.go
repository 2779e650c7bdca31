package dashboard

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"checkinbot/internal/storage"

	"github.com/dustin/go-humanize"
)

// WriteText renders the report for a terminal.
func (r *Report) WriteText(w io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Check-in bot status: %s\n", strings.ToUpper(string(r.Health.Status)))
	for _, issue := range r.Health.Issues {
		fmt.Fprintf(&b, "  issue:   %s\n", issue)
	}
	for _, warning := range r.Health.Warnings {
		fmt.Fprintf(&b, "  warning: %s\n", warning)
	}

	if r.Heartbeat != nil && !r.Heartbeat.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "  last cycle %s (%s fetched, %s rewarded)\n",
			humanize.Time(r.Heartbeat.FinishedAt),
			humanize.Comma(int64(r.Heartbeat.Fetched)),
			humanize.Comma(int64(r.Heartbeat.Rewarded)))
	}

	if r.Totals != nil {
		fmt.Fprintf(&b, "\nTotals\n")
		fmt.Fprintf(&b, "  posts processed: %s\n", humanize.Comma(r.Totals.Processed))
		fmt.Fprintf(&b, "  comments sent:   %s\n", humanize.Comma(r.Totals.CommentsSent))
		fmt.Fprintf(&b, "  transfers sent:  %s\n", humanize.Comma(r.Totals.TransfersSent))
		fmt.Fprintf(&b, "  votes sent:      %s\n", humanize.Comma(r.Totals.VotesSent))
		fmt.Fprintf(&b, "  dry-run records: %s\n", humanize.Comma(r.Totals.Simulated))
		fmt.Fprintf(&b, "  with failures:   %s\n", humanize.Comma(r.Totals.Failed))

		symbols := make([]string, 0, len(r.Totals.Paid))
		for symbol := range r.Totals.Paid {
			symbols = append(symbols, symbol)
		}
		sort.Strings(symbols)
		for _, symbol := range symbols {
			fmt.Fprintf(&b, "  paid:            %s %s\n", r.Totals.Paid[symbol].StringFixed(3), symbol)
		}
	}

	if len(r.Daily) > 0 {
		fmt.Fprintf(&b, "\nDaily\n")
		tw := tabwriter.NewWriter(&b, 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "  day\tprocessed\tcomments\ttransfers\tvotes\tfailed")
		for _, d := range r.Daily {
			fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\t%d\t%d\n", d.DayBucket, d.Processed, d.CommentsSent, d.TransfersSent, d.VotesSent, d.Failed)
		}
		_ = tw.Flush()
	}

	writeRecords(&b, "Recent", r.Recent)
	writeRecords(&b, "Failures", r.Failures)
	writeRecords(&b, "Needs reconciliation", r.Pending)

	_, err := io.WriteString(w, b.String())
	return err
}

func writeRecords(b *strings.Builder, title string, records []*storage.ProcessedRecord) {
	if len(records) == 0 {
		return
	}

	fmt.Fprintf(b, "\n%s\n", title)
	for _, record := range records {
		mode := ""
		if record.DryRun {
			mode = " [dry run]"
		}
		fmt.Fprintf(b, "  @%s/%s %s%s comment=%s transfer=%s vote=%s\n",
			record.Author,
			record.Permlink,
			humanize.Time(record.StartedAt),
			mode,
			stepText(record.CommentStatus, record.CommentReason),
			stepText(record.TransferStatus, record.TransferReason),
			stepText(record.VoteStatus, record.VoteReason))
	}
}

func stepText(status storage.StepStatus, reason string) string {
	if status == "" {
		status = "unknown"
	}
	if reason == "" {
		return status
	}
	return fmt.Sprintf("%s(%s)", status, reason)
}
