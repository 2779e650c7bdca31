package storage

import (
	"context"
	"errors"
)

// ErrAlreadyClaimed is returned by Begin when the post already has a record
// that may not be replaced.
var ErrAlreadyClaimed = errors.New("post already claimed")

type Storage interface {
	// claim and outcome
	Begin(ctx context.Context, record *ProcessedRecord, replaceSimulated bool) error
	Record(ctx context.Context, record *ProcessedRecord) error

	// dedup and daily cap
	HasProcessed(ctx context.Context, author string, permlink string, includeSimulated bool) (bool, error)
	CountSuccessfulTransfers(ctx context.Context, dayBucket string, includeSimulated bool) (int64, error)

	// read-only projections
	DailySummaries(ctx context.Context, days int) ([]*DailySummary, error)
	Totals(ctx context.Context) (*Totals, error)
	RecentRecords(ctx context.Context, limit int) ([]*ProcessedRecord, error)
	FailedRecords(ctx context.Context, limit int) ([]*ProcessedRecord, error)
	PendingRecords(ctx context.Context) ([]*ProcessedRecord, error)

	Close() error
}
