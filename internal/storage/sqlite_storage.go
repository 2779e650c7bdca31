package storage

import (
	"context"
	"fmt"

	"checkinbot/internal/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/clause"
)

var keyColumns = []clause.Column{{Name: "author"}, {Name: "permlink"}}

var recordColumns = []string{
	"community",
	"cycle_id",
	"state",
	"dry_run",
	"day_bucket",
	"started_at",
	"finalized_at",
	"comment_status",
	"comment_reason",
	"comment_permlink",
	"comment_tx_id",
	"transfer_status",
	"transfer_reason",
	"transfer_tx_id",
	"transfer_amount",
	"transfer_asset",
	"vote_status",
	"vote_reason",
	"vote_tx_id",
}

type SqliteStorage struct {
	db *gorm.DB
}

func NewSqliteStorage(path string) (*SqliteStorage, error) {

	logger.Debug("initializing database...", zap.String("path", path))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	err = db.AutoMigrate(
		&ProcessedRecord{},
	)

	if err != nil {
		return nil, fmt.Errorf("migrate database %s: %w", path, err)
	}

	logger.Debug("initializing database... done")
	return &SqliteStorage{
		db: db,
	}, nil
}

// Begin inserts record as the claim on its post. With replaceSimulated a
// dry-run row for the same post is overwritten; any other existing row makes
// Begin fail with ErrAlreadyClaimed.
func (s *SqliteStorage) Begin(ctx context.Context, record *ProcessedRecord, replaceSimulated bool) error {
	logger.Debug("claiming post...", zap.String("author", record.Author), zap.String("permlink", record.Permlink))

	onConflict := clause.OnConflict{
		Columns:   keyColumns,
		DoNothing: true,
	}
	if replaceSimulated {
		onConflict = clause.OnConflict{
			Columns: keyColumns,
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Table: "processed_records", Name: "dry_run"}, Value: true},
			}},
			DoUpdates: clause.AssignmentColumns(recordColumns),
		}
	}

	tx := s.db.WithContext(ctx).Clauses(onConflict).Create(record)
	if tx.Error != nil {
		return fmt.Errorf("claim @%s/%s: %w", record.Author, record.Permlink, tx.Error)
	}

	if tx.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}

	logger.Debug("claiming post... done")
	return nil
}

// Record stores the final outcome of a claimed post.
func (s *SqliteStorage) Record(ctx context.Context, record *ProcessedRecord) error {
	logger.Debug("recording processed post...", zap.String("author", record.Author), zap.String("permlink", record.Permlink))

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   keyColumns,
		DoUpdates: clause.AssignmentColumns(recordColumns),
	}).Create(record).Error

	if err != nil {
		return fmt.Errorf("record @%s/%s: %w", record.Author, record.Permlink, err)
	}

	logger.Debug("recording processed post... done")
	return nil
}

func (s *SqliteStorage) HasProcessed(ctx context.Context, author string, permlink string, includeSimulated bool) (bool, error) {

	query := s.db.WithContext(ctx).
		Model(&ProcessedRecord{}).
		Where("author = ? and permlink = ?", author, permlink)
	if !includeSimulated {
		query = query.Where("dry_run = ?", false)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, fmt.Errorf("lookup @%s/%s: %w", author, permlink, err)
	}

	return count > 0, nil
}

// CountSuccessfulTransfers counts transfers sent on dayBucket. Live rows left
// pending count too, since their transfer outcome is unknown.
func (s *SqliteStorage) CountSuccessfulTransfers(ctx context.Context, dayBucket string, includeSimulated bool) (int64, error) {
	logger.Debug("counting transfers...", zap.String("day", dayBucket))

	statuses := []StepStatus{StepSent}
	if includeSimulated {
		statuses = append(statuses, StepSimulated)
	}

	var count int64
	err := s.db.WithContext(ctx).
		Model(&ProcessedRecord{}).
		Where("day_bucket = ?", dayBucket).
		Where("(transfer_status in ? or (state = ? and dry_run = ?))", statuses, StatePending, false).
		Count(&count).Error

	if err != nil {
		return 0, fmt.Errorf("count transfers on %s: %w", dayBucket, err)
	}

	logger.Debug("counting transfers... done", zap.Int64("count", count))
	return count, nil
}

func (s *SqliteStorage) DailySummaries(ctx context.Context, days int) ([]*DailySummary, error) {

	var summaries []*DailySummary
	err := s.db.WithContext(ctx).Raw(`
		select day_bucket,
			count(*) as processed,
			coalesce(sum(case when comment_status = 'sent' then 1 else 0 end), 0) as comments_sent,
			coalesce(sum(case when transfer_status = 'sent' then 1 else 0 end), 0) as transfers_sent,
			coalesce(sum(case when vote_status = 'sent' then 1 else 0 end), 0) as votes_sent,
			coalesce(sum(case when dry_run then 1 else 0 end), 0) as simulated,
			coalesce(sum(case when comment_status = 'failed' or transfer_status = 'failed' or vote_status = 'failed' then 1 else 0 end), 0) as failed,
			coalesce(sum(case when transfer_status = 'failed' then 1 else 0 end), 0) as transfer_failed
		from processed_records
		group by day_bucket
		order by day_bucket desc
		limit ?
	`, days).Scan(&summaries).Error

	if err != nil {
		return nil, fmt.Errorf("daily summaries: %w", err)
	}

	return summaries, nil
}

func (s *SqliteStorage) Totals(ctx context.Context) (*Totals, error) {

	var totals Totals
	err := s.db.WithContext(ctx).Raw(`
		select count(*) as processed,
			coalesce(sum(case when comment_status = 'sent' then 1 else 0 end), 0) as comments_sent,
			coalesce(sum(case when transfer_status = 'sent' then 1 else 0 end), 0) as transfers_sent,
			coalesce(sum(case when vote_status = 'sent' then 1 else 0 end), 0) as votes_sent,
			coalesce(sum(case when dry_run then 1 else 0 end), 0) as simulated,
			coalesce(sum(case when comment_status = 'failed' or transfer_status = 'failed' or vote_status = 'failed' then 1 else 0 end), 0) as failed,
			coalesce(sum(case when state = 'pending' then 1 else 0 end), 0) as pending
		from processed_records
	`).Row().Scan(
		&totals.Processed,
		&totals.CommentsSent,
		&totals.TransfersSent,
		&totals.VotesSent,
		&totals.Simulated,
		&totals.Failed,
		&totals.Pending,
	)
	if err != nil {
		return nil, fmt.Errorf("totals: %w", err)
	}

	var payments []*ProcessedRecord
	err = s.db.WithContext(ctx).
		Select("transfer_amount", "transfer_asset").
		Where("transfer_status = ?", StepSent).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("totals: paid amounts: %w", err)
	}

	totals.Paid = make(map[string]decimal.Decimal)
	for _, payment := range payments {
		amount, err := decimal.NewFromString(payment.TransferAmount)
		if err != nil {
			logger.Warn("totals: unreadable transfer amount", zap.String("amount", payment.TransferAmount), zap.Error(err))
			continue
		}
		totals.Paid[payment.TransferAsset] = totals.Paid[payment.TransferAsset].Add(amount)
	}

	return &totals, nil
}

func (s *SqliteStorage) RecentRecords(ctx context.Context, limit int) ([]*ProcessedRecord, error) {

	var records []*ProcessedRecord
	err := s.db.WithContext(ctx).
		Order("started_at desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("recent records: %w", err)
	}

	return records, nil
}

func (s *SqliteStorage) FailedRecords(ctx context.Context, limit int) ([]*ProcessedRecord, error) {

	var records []*ProcessedRecord
	err := s.db.WithContext(ctx).
		Where("comment_status = ? or transfer_status = ? or vote_status = ?", StepFailed, StepFailed, StepFailed).
		Order("started_at desc").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed records: %w", err)
	}

	return records, nil
}

func (s *SqliteStorage) PendingRecords(ctx context.Context) ([]*ProcessedRecord, error) {

	var records []*ProcessedRecord
	err := s.db.WithContext(ctx).
		Where("state = ?", StatePending).
		Order("started_at").
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("pending records: %w", err)
	}

	return records, nil
}

func (s *SqliteStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
