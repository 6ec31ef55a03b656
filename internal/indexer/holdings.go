package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/nft-gate/backend/internal/metrics"
	"go.uber.org/zap"
)

type HoldingsConfig struct {
	Contract         string
	MaxPages         int
	MaxEmptyPages    int
	MaxServerRetries int
	Strategies       []MatchStrategy
}

func (c *HoldingsConfig) withDefaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.MaxEmptyPages <= 0 {
		c.MaxEmptyPages = 3
	}
	if c.MaxServerRetries <= 0 {
		c.MaxServerRetries = 3
	}
	if len(c.Strategies) == 0 {
		c.Strategies = DefaultStrategies(StrategyConfig{Contract: c.Contract})
	}
}

// HoldingsSource is the part of Client the holdings matcher needs.
type HoldingsSource interface {
	CollectionsPage(ctx context.Context, address string, page int) ([]Collection, bool, error)
	TokenList(ctx context.Context, address string) ([]Collection, error)
	ContractNFTs(ctx context.Context, address, contract string) ([]Collection, error)
	OwnedNFTs(ctx context.Context, address, contract string) ([]Collection, error)
}

// HoldingsMatcher answers whether an address holds at least one token of
// the configured collection.
type HoldingsMatcher struct {
	src HoldingsSource
	cfg HoldingsConfig
	log *zap.Logger
}

func NewHoldingsMatcher(src HoldingsSource, cfg HoldingsConfig, log *zap.Logger) *HoldingsMatcher {
	cfg.withDefaults()
	return &HoldingsMatcher{src: src, cfg: cfg, log: log}
}

// HasCollection pages through the address's collections, then tries the
// fallback lookups. An error is returned only when no lookup produced a
// usable answer, so callers can tell "holds nothing" from "could not tell".
func (m *HoldingsMatcher) HasCollection(ctx context.Context, address string) (bool, error) {
	found, inspected, pageErr := m.scanPages(ctx, address)
	if found {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	fallbacks := []struct {
		name  string
		fetch func() ([]Collection, error)
	}{
		{"tokens", func() ([]Collection, error) { return m.src.TokenList(ctx, address) }},
		{"contract", func() ([]Collection, error) { return m.src.ContractNFTs(ctx, address, m.cfg.Contract) }},
		{"owned", func() ([]Collection, error) { return m.src.OwnedNFTs(ctx, address, m.cfg.Contract) }},
	}

	var lastErr error
	for _, fb := range fallbacks {
		cols, err := fb.fetch()
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			m.log.Debug("holdings fallback failed",
				zap.String("address", address), zap.String("lookup", fb.name), zap.Error(err))
			lastErr = err
			continue
		}
		inspected = true
		if name, ok := FirstMatch(m.cfg.Strategies, cols); ok {
			metrics.HoldingsMatches.WithLabelValues(fb.name + "_" + name).Inc()
			m.log.Info("collection found via fallback",
				zap.String("address", address), zap.String("lookup", fb.name), zap.String("strategy", name))
			return true, nil
		}
	}

	if !inspected {
		if pageErr == nil {
			pageErr = lastErr
		}
		return false, fmt.Errorf("holdings lookup for %s: %w", address, pageErr)
	}
	return false, nil
}

// scanPages walks the paged collection listing. inspected reports whether
// at least one page came back usable.
func (m *HoldingsMatcher) scanPages(ctx context.Context, address string) (found, inspected bool, err error) {
	empty := 0
	retries := 0
	for page := 1; page <= m.cfg.MaxPages; {
		cols, ok, err := m.src.CollectionsPage(ctx, address, page)
		if err != nil {
			if ctx.Err() != nil {
				return false, inspected, ctx.Err()
			}
			var se *StatusError
			if errors.As(err, &se) && se.ServerSide() && retries < m.cfg.MaxServerRetries {
				retries++
				m.log.Warn("indexer server error, retrying page",
					zap.String("address", address), zap.Int("page", page), zap.Int("status", se.Code))
				continue
			}
			m.log.Warn("stopping collection paging",
				zap.String("address", address), zap.Int("page", page), zap.Error(err))
			return false, inspected, err
		}
		retries = 0
		inspected = true

		if !ok || len(cols) == 0 {
			empty++
			if empty >= m.cfg.MaxEmptyPages {
				m.log.Debug("consecutive empty pages, stopping",
					zap.String("address", address), zap.Int("page", page))
				return false, true, nil
			}
			page++
			continue
		}
		empty = 0

		if name, ok := FirstMatch(m.cfg.Strategies, cols); ok {
			metrics.HoldingsMatches.WithLabelValues(name).Inc()
			m.log.Info("collection found",
				zap.String("address", address), zap.Int("page", page), zap.String("strategy", name))
			return true, true, nil
		}
		page++
	}
	return false, inspected, nil
}
