package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"text/template"
	"time"

	"checkinbot/internal/blockchain"
	"checkinbot/internal/config"
	"checkinbot/internal/logger"
	"checkinbot/internal/storage"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerClient is the remote chain as the reward flow sees it.
type LedgerClient interface {
	FetchCommunityPosts(ctx context.Context, community string, cursor blockchain.PostCursor, limit int) ([]blockchain.Post, error)
	FetchBalance(ctx context.Context, account string, symbol string) (blockchain.Asset, error)
	SubmitComment(ctx context.Context, comment blockchain.Comment) (blockchain.Receipt, error)
	SubmitTransfer(ctx context.Context, to string, amount blockchain.Asset, memo string) (blockchain.Receipt, error)
	SubmitVote(ctx context.Context, post blockchain.PostRef, weightPercent int) (blockchain.Receipt, error)
	VerifyAccount(ctx context.Context, account string) error
}

type RewardSettings struct {
	Account             string
	Community           string
	Transfer            blockchain.Asset
	MinBalance          decimal.Decimal
	VotePercentage      int
	MaxDailyTransfers   int
	Location            *time.Location
	DryRun              bool
	DryRunConsumesSlots bool
	Welcome             *template.Template
	Memo                *template.Template
}

func RewardSettingsFromConfig(cfg *config.Config) RewardSettings {
	return RewardSettings{
		Account:             cfg.Account,
		Community:           cfg.Community,
		Transfer:            cfg.Transfer(),
		MinBalance:          cfg.MinBalance(),
		VotePercentage:      cfg.VotePercentage,
		MaxDailyTransfers:   cfg.MaxDailyTransfers,
		Location:            cfg.Location(),
		DryRun:              cfg.DryRun,
		DryRunConsumesSlots: cfg.DryRunConsumesSlots,
		Welcome:             cfg.WelcomeTemplate(),
		Memo:                cfg.MemoTemplate(),
	}
}

// includeSimulated reports whether dry-run rows count for dedup and the
// daily cap in the current mode.
func (s *RewardSettings) includeSimulated() bool {
	return s.DryRun || s.DryRunConsumesSlots
}

// DayBucket is the calendar date of t in loc, used for daily-limit accounting.
func DayBucket(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayBucketLayout)
}

type messageData struct {
	Author    string
	Onboarder string
	Community string
	Amount    string
	Asset     string
}

// Orchestrator runs the reward actions for one qualified post and records
// the outcome exactly once.
type Orchestrator struct {
	client   LedgerClient
	storage  storage.Storage
	settings RewardSettings
	now      func() time.Time
}

func NewOrchestrator(client LedgerClient, store storage.Storage, settings RewardSettings) *Orchestrator {
	return &Orchestrator{
		client:   client,
		storage:  store,
		settings: settings,
		now:      time.Now,
	}
}

// Reward moves a qualified post from pending to finalized. It returns
// ErrAlreadyProcessed for known posts, ErrStoreUnavailable when the ledger
// cannot be read or written, and ErrTransient when the balance cannot be
// fetched; in the last two cases nothing was submitted.
func (o *Orchestrator) Reward(ctx context.Context, post *blockchain.Post, verdict Verdict, cycleID string) (*storage.ProcessedRecord, error) {
	s := &o.settings
	ref := post.Ref()
	fields := []zap.Field{
		zap.String("author", ref.Author),
		zap.String("permlink", ref.Permlink),
		zap.String("cycle", cycleID),
		zap.Bool("dry run", s.DryRun),
	}

	processed, err := o.storage.HasProcessed(ctx, ref.Author, ref.Permlink, s.includeSimulated())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if processed {
		return nil, ErrAlreadyProcessed
	}

	now := o.now()
	day := DayBucket(now, s.Location)
	record := &storage.ProcessedRecord{
		Author:         ref.Author,
		Permlink:       ref.Permlink,
		Community:      post.Community,
		CycleID:        cycleID,
		State:          storage.StatePending,
		DryRun:         s.DryRun,
		DayBucket:      day,
		StartedAt:      now.UTC(),
		TransferAmount: s.Transfer.Amount.StringFixed(3),
		TransferAsset:  s.Transfer.Symbol,
	}

	transferReason, err := o.transferGate(ctx, day)
	if err != nil {
		return nil, err
	}

	if err := o.storage.Begin(ctx, record, !s.includeSimulated()); err != nil {
		if errors.Is(err, storage.ErrAlreadyClaimed) {
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	logger.Debug("reward: post claimed", fields...)

	data := messageData{
		Author:    ref.Author,
		Onboarder: verdict.Onboarder,
		Community: s.Community,
		Amount:    s.Transfer.Amount.StringFixed(3),
		Asset:     s.Transfer.Symbol,
	}

	o.comment(ctx, post, data, record, now)
	o.transfer(ctx, ref, data, transferReason, record)
	o.vote(ctx, ref, record)

	finalizedAt := o.now().UTC()
	record.State = storage.StateFinalized
	record.FinalizedAt = &finalizedAt

	if err := o.storage.Record(ctx, record); err != nil {
		// The claim row stays pending and blocks the post; startup
		// reconciliation reports it.
		logger.Error("reward: cannot finalize record, manual reconciliation required",
			append(fields,
				zap.String("comment", record.CommentStatus),
				zap.String("transfer", record.TransferStatus),
				zap.String("transfer tx", record.TransferTxID),
				zap.String("vote", record.VoteStatus),
				zap.Error(err))...)
		return record, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	logger.Info("reward: post finalized",
		append(fields,
			zap.String("comment", record.CommentStatus),
			zap.String("transfer", record.TransferStatus),
			zap.String("transfer reason", record.TransferReason),
			zap.String("vote", record.VoteStatus))...)
	return record, nil
}

// transferGate returns the skip reason for today's transfer, or "" when the
// transfer may proceed.
func (o *Orchestrator) transferGate(ctx context.Context, day string) (Reason, error) {
	s := &o.settings

	count, err := o.storage.CountSuccessfulTransfers(ctx, day, s.includeSimulated())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if count >= int64(s.MaxDailyTransfers) {
		logger.Info("reward: daily transfer limit reached", zap.String("day", day), zap.Int64("count", count), zap.Int("limit", s.MaxDailyTransfers))
		return ReasonDailyLimit, nil
	}

	balance, err := o.client.FetchBalance(ctx, s.Account, s.Transfer.Symbol)
	if err != nil {
		return "", fmt.Errorf("%w: balance: %w", ErrTransient, err)
	}
	if balance.Amount.Sub(s.Transfer.Amount).LessThan(s.MinBalance) {
		logger.Warn("reward: balance below threshold",
			zap.String("balance", balance.String()),
			zap.String("transfer", s.Transfer.String()),
			zap.String("minimum", s.MinBalance.StringFixed(3)))
		return ReasonInsufficientBalance, nil
	}

	return "", nil
}

func (o *Orchestrator) comment(ctx context.Context, post *blockchain.Post, data messageData, record *storage.ProcessedRecord, now time.Time) {
	record.CommentPermlink = commentPermlink(post.Permlink, now)

	body, err := render(o.settings.Welcome, data)
	if err != nil {
		record.CommentStatus = storage.StepFailed
		record.CommentReason = err.Error()
		logger.Error("reward: cannot render welcome message", zap.String("author", data.Author), zap.Error(err))
		return
	}

	if o.settings.DryRun {
		record.CommentStatus = storage.StepSimulated
		logger.Info("reward: [dry run] would comment", zap.String("author", data.Author), zap.String("permlink", post.Permlink), zap.String("body", body))
		return
	}

	receipt, err := o.client.SubmitComment(ctx, blockchain.Comment{
		Parent:       post.Ref(),
		Permlink:     record.CommentPermlink,
		Body:         body,
		JSONMetadata: commentMetadata(o.settings.Community),
	})
	if err != nil {
		record.CommentStatus = storage.StepFailed
		record.CommentReason = failureReason(err)
		logger.Error("reward: comment failed", zap.String("author", data.Author), zap.String("permlink", post.Permlink), zap.Error(err))
		return
	}

	record.CommentStatus = storage.StepSent
	record.CommentTxID = receipt.TxID
	logger.Info("reward: comment sent", zap.String("author", data.Author), zap.String("permlink", post.Permlink), zap.String("tx", receipt.TxID))
}

func (o *Orchestrator) transfer(ctx context.Context, ref blockchain.PostRef, data messageData, skipReason Reason, record *storage.ProcessedRecord) {
	if skipReason != "" {
		record.TransferStatus = storage.StepSkipped
		record.TransferReason = skipReason
		return
	}

	memo, err := render(o.settings.Memo, data)
	if err != nil {
		record.TransferStatus = storage.StepFailed
		record.TransferReason = err.Error()
		logger.Error("reward: cannot render transfer memo", zap.String("author", ref.Author), zap.Error(err))
		return
	}

	if o.settings.DryRun {
		record.TransferStatus = storage.StepSimulated
		logger.Info("reward: [dry run] would transfer", zap.String("to", ref.Author), zap.String("amount", o.settings.Transfer.String()), zap.String("memo", memo))
		return
	}

	// never retried: a failure may be a late success
	receipt, err := o.client.SubmitTransfer(ctx, ref.Author, o.settings.Transfer, memo)
	if err != nil {
		record.TransferStatus = storage.StepFailed
		record.TransferReason = failureReason(err)
		logger.Error("reward: transfer failed", zap.String("to", ref.Author), zap.String("amount", o.settings.Transfer.String()), zap.String("kind", string(blockchain.KindOf(err))), zap.Error(err))
		return
	}

	record.TransferStatus = storage.StepSent
	record.TransferTxID = receipt.TxID
	logger.Info("reward: transfer sent", zap.String("to", ref.Author), zap.String("amount", o.settings.Transfer.String()), zap.String("tx", receipt.TxID))
}

func (o *Orchestrator) vote(ctx context.Context, ref blockchain.PostRef, record *storage.ProcessedRecord) {
	if o.settings.DryRun {
		record.VoteStatus = storage.StepSimulated
		logger.Info("reward: [dry run] would vote", zap.String("author", ref.Author), zap.String("permlink", ref.Permlink), zap.Int("percent", o.settings.VotePercentage))
		return
	}

	receipt, err := o.client.SubmitVote(ctx, ref, o.settings.VotePercentage)
	if err != nil {
		record.VoteStatus = storage.StepFailed
		record.VoteReason = failureReason(err)
		logger.Error("reward: vote failed", zap.String("author", ref.Author), zap.String("permlink", ref.Permlink), zap.Error(err))
		return
	}

	record.VoteStatus = storage.StepSent
	record.VoteTxID = receipt.TxID
	logger.Info("reward: vote sent", zap.String("author", ref.Author), zap.String("permlink", ref.Permlink), zap.String("tx", receipt.TxID))
}

func render(tmpl *template.Template, data messageData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// failureReason is the persisted form of a step failure: the error kind
// followed by the node message.
func failureReason(err error) string {
	return fmt.Sprintf("%s: %v", blockchain.KindOf(err), err)
}

func commentPermlink(parent string, now time.Time) string {
	permlink := fmt.Sprintf("re-%s-%d", parent, now.Unix())
	if len(permlink) > maxPermlinkLength {
		suffix := fmt.Sprintf("-%d", now.Unix())
		permlink = permlink[:maxPermlinkLength-len(suffix)] + suffix
	}
	return permlink
}

func commentMetadata(community string) string {
	raw, _ := json.Marshal(map[string]any{
		"app":  commentApp,
		"tags": []string{community},
	})
	return string(raw)
}
