package checkers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/httpx"
	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/ratelimit"
)

// onchainDiscrepancy is the relative difference between the summed wallet
// balance and the recorded holdings above which a candidate is emitted.
// Wallet sums are exact, so the tolerance only absorbs rounding in the
// recorded figure.
var onchainDiscrepancy = decimal.NewFromFloat(0.001)

var satoshisPerCoin = decimal.NewFromInt(100_000_000)

// addressStats is the explorer's per-address response. Balance is funded
// minus spent, in satoshis.
type addressStats struct {
	ChainStats struct {
		FundedSum int64 `json:"funded_txo_sum"`
		SpentSum  int64 `json:"spent_txo_sum"`
	} `json:"chain_stats"`
}

// OnchainChecker sums confirmed balances across an entity's known wallet
// addresses. The chain is the ground truth for entities that disclose
// their wallets, so candidates carry official trust at full confidence.
type OnchainChecker struct {
	client   *resty.Client
	limiter  *ratelimit.HostLimiter
	explorer string
	retry    *httpx.RetryConfig
}

func NewOnchainChecker(cfg *config.Config, limiter *ratelimit.HostLimiter) *OnchainChecker {
	return &OnchainChecker{
		client:   httpx.NewClient(cfg.FilingUserAgent),
		limiter:  limiter,
		explorer: strings.TrimRight(cfg.ExplorerURL, "/"),
		retry:    httpx.DefaultRetryConfig(),
	}
}

func (c *OnchainChecker) Category() models.SourceCategory { return models.SourceOnChain }

func (c *OnchainChecker) Check(ctx context.Context, entities []models.TrackedEntity, _ time.Time) ([]models.SourceCandidate, error) {
	var candidates []models.SourceCandidate
	for i := range entities {
		entity := &entities[i]
		if len(entity.Sources.WalletAddresses) == 0 {
			continue
		}

		total, err := c.sumBalances(ctx, entity.Sources.WalletAddresses)
		if err != nil {
			log.Warn().Str("ticker", entity.Ticker).Err(err).Msg("on-chain balance check failed")
			continue
		}

		recorded := decimal.NewFromFloat(entity.CurrentHoldings)
		if !onchainDisagrees(recorded, total) {
			continue
		}

		value, _ := total.Float64()
		log.Info().Str("ticker", entity.Ticker).
			Float64("recorded", entity.CurrentHoldings).
			Float64("onchain", value).
			Msg("on-chain balance differs from recorded holdings")

		candidates = append(candidates, models.SourceCandidate{
			Entity:           entity,
			Category:         models.SourceOnChain,
			DetectedHoldings: &value,
			RawText: fmt.Sprintf("confirmed balance across %d wallets: %s",
				len(entity.Sources.WalletAddresses), total.String()),
			TrustTier:  models.TrustOfficial,
			SourceURL:  c.explorer,
			SourceDate: time.Now().UTC(),
			Confidence: 1.0,
		})
	}
	return candidates, nil
}

// sumBalances fetches every address and sums confirmed balances. Any
// address failure fails the whole entity: a partial sum would read as a
// large sale.
func (c *OnchainChecker) sumBalances(ctx context.Context, addresses []string) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, addr := range addresses {
		sats, err := c.fetchAddress(ctx, addr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("address %s: %w", addr, err)
		}
		total = total.Add(decimal.NewFromInt(sats).Div(satoshisPerCoin))
	}
	return total, nil
}

func (c *OnchainChecker) fetchAddress(ctx context.Context, addr string) (int64, error) {
	url := fmt.Sprintf("%s/address/%s", c.explorer, addr)

	var stats addressStats
	err := httpx.WithRetry(c.retry, func() error {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return err
		}
		resp, err := c.client.R().SetContext(ctx).SetResult(&stats).Get(url)
		if err != nil {
			return fmt.Errorf("fetch address stats: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("address stats HTTP %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return stats.ChainStats.FundedSum - stats.ChainStats.SpentSum, nil
}

func onchainDisagrees(recorded, observed decimal.Decimal) bool {
	if recorded.IsZero() {
		return !observed.IsZero()
	}
	diff := observed.Sub(recorded).Abs()
	return diff.Div(recorded.Abs()).GreaterThan(onchainDiscrepancy)
}
