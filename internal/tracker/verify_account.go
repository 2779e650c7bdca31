package tracker

import (
	"fmt"

	"checkinbot/internal/blockchain"
	"checkinbot/internal/logger"

	"go.uber.org/zap"
)

// VerifyAccount checks that the bot account exists and logs its balance
// before polling starts.
func (t *Tracker) VerifyAccount() error {
	account := t.settings.Account
	logger.Debug("verify account: verifying bot account...", zap.String("account", account))

	_, err := retryRateLimited(t.ctx, func() (struct{}, error) {
		return struct{}{}, t.client.VerifyAccount(t.ctx, account)
	})
	if err != nil {
		logger.Error("verify account: cannot read bot account", zap.String("account", account), zap.Error(err))
		return fmt.Errorf("verify account %s: %w", account, err)
	}

	symbol := t.orchestrator.settings.Transfer.Symbol
	balance, err := retryRateLimited(t.ctx, func() (blockchain.Asset, error) {
		return t.client.FetchBalance(t.ctx, account, symbol)
	})
	if err != nil {
		logger.Warn("verify account: cannot read balance", zap.String("account", account), zap.Error(err))
	} else {
		logger.Info("verify account: bot account", zap.String("account", account), zap.String("balance", balance.String()))
	}

	logger.Debug("verify account: verifying bot account... done")
	return nil
}
