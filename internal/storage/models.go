package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

type RecordState = string

const (
	StatePending   RecordState = "pending"
	StateFinalized RecordState = "finalized"
)

// StepStatus is the outcome of one remote action of a reward.
type StepStatus = string

const (
	StepSent      StepStatus = "sent"
	StepSimulated StepStatus = "simulated"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// ProcessedRecord is the durable outcome of rewarding one post. A row exists
// from the moment the post is claimed, before any remote write.
type ProcessedRecord struct {
	Author    string      `gorm:"primaryKey"`
	Permlink  string      `gorm:"primaryKey"`
	Community string      `gorm:"not null"`
	CycleID   string      `gorm:"not null"`
	State     RecordState `gorm:"not null;index"`
	DryRun    bool        `gorm:"not null"`
	DayBucket string      `gorm:"not null;index"`

	StartedAt   time.Time `gorm:"not null"`
	FinalizedAt *time.Time

	CommentStatus   StepStatus
	CommentReason   string
	CommentPermlink string
	CommentTxID     string

	TransferStatus StepStatus `gorm:"index"`
	TransferReason string
	TransferTxID   string
	TransferAmount string
	TransferAsset  string

	VoteStatus StepStatus
	VoteReason string
	VoteTxID   string
}

// Failed reports whether any step of the reward failed.
func (r *ProcessedRecord) Failed() bool {
	return r.CommentStatus == StepFailed || r.TransferStatus == StepFailed || r.VoteStatus == StepFailed
}

type DailySummary struct {
	DayBucket      string
	Processed      int64
	CommentsSent   int64
	TransfersSent  int64
	VotesSent      int64
	Simulated      int64
	Failed         int64
	TransferFailed int64
}

type Totals struct {
	Processed     int64
	CommentsSent  int64
	TransfersSent int64
	VotesSent     int64
	Simulated     int64
	Failed        int64
	Pending       int64

	// Paid sums sent transfers per asset symbol.
	Paid map[string]decimal.Decimal
}
