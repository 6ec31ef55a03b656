package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/nft-gate/backend/internal/models"
	"go.uber.org/zap"
)

// TransactionSource is the part of Client the transaction matcher needs.
type TransactionSource interface {
	RecentTransactions(ctx context.Context, address string, limit int) ([]Transaction, error)
}

type TransactionConfig struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

// TransactionMatcher looks for the self-transfer that proves control of
// an address.
type TransactionMatcher struct {
	src TransactionSource
	cfg TransactionConfig
	log *zap.Logger
}

func NewTransactionMatcher(src TransactionSource, cfg TransactionConfig, log *zap.Logger) *TransactionMatcher {
	if cfg.Limit <= 0 {
		cfg.Limit = 20
	}
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TransactionMatcher{src: src, cfg: cfg, log: log}
}

// HasSelfTransfer reports whether one of the latest transactions is a
// transfer from address to itself, within 0.1% of amount, made inside the
// verification window.
func (m *TransactionMatcher) HasSelfTransfer(ctx context.Context, address, amount string) (bool, error) {
	expected, err := models.ParseAmountToWei(amount)
	if err != nil {
		return false, err
	}
	margin := new(big.Int).Quo(expected, big.NewInt(1000))
	low := new(big.Int).Sub(expected, margin)
	high := new(big.Int).Add(expected, margin)

	txs, err := m.src.RecentTransactions(ctx, address, m.cfg.Limit)
	if err != nil {
		return false, fmt.Errorf("fetch transactions: %w", err)
	}

	cutoff := m.cfg.Now().Add(-m.cfg.Window)
	for _, tx := range txs {
		if !models.SameAddress(tx.From, address) || !models.SameAddress(tx.To, address) {
			continue
		}
		value, ok := parseValue(string(tx.Value))
		if !ok {
			continue
		}
		if value.Cmp(low) < 0 || value.Cmp(high) > 0 {
			continue
		}
		at, err := tx.Time()
		if err != nil || !at.After(cutoff) {
			continue
		}
		m.log.Info("verification transfer found",
			zap.String("address", address), zap.String("hash", tx.Hash), zap.String("value", models.FormatWei(value)))
		return true, nil
	}
	return false, nil
}

func parseValue(s string) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return new(big.Int).SetString(s[2:], 16)
	}
	return new(big.Int).SetString(s, 10)
}
