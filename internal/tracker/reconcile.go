package tracker

import (
	"fmt"

	"checkinbot/internal/logger"
	"checkinbot/internal/storage"

	"go.uber.org/zap"
)

// Reconcile reports posts left pending by an interrupted run. Their actions
// may or may not have reached the chain, so they are never retried
// automatically; an operator has to check the bot's history and settle them.
func (t *Tracker) Reconcile() ([]*storage.ProcessedRecord, error) {
	logger.Debug("reconcile: looking for interrupted rewards...")

	pending, err := t.storage.PendingRecords(t.ctx)
	if err != nil {
		logger.Debug("reconcile: cannot get pending records, exiting...")
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	for _, record := range pending {
		logger.Error("reconcile: reward interrupted, verify on chain before re-processing",
			zap.String("author", record.Author),
			zap.String("permlink", record.Permlink),
			zap.String("cycle", record.CycleID),
			zap.Time("started at", record.StartedAt),
			zap.Bool("dry run", record.DryRun),
			zap.String("transfer", record.TransferAmount+" "+record.TransferAsset),
		)
	}

	logger.Debug("reconcile: looking for interrupted rewards... done", zap.Int("pending", len(pending)))
	return pending, nil
}
