package checkers

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/phuslu/log"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/cache"
	"github.com/voskhod/treasurywatch/internal/httpx"
	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/ratelimit"
)

// aggregatorDiscrepancy is the relative difference between the aggregator's
// number and our own above which a candidate is worth surfacing. Below it
// the two are considered in agreement.
const aggregatorDiscrepancy = 0.01

// aggregatorEntry is one company row in the public treasury index.
type aggregatorEntry struct {
	Slug     string  `json:"slug"`
	Ticker   string  `json:"ticker"`
	Name     string  `json:"name"`
	Holdings float64 `json:"holdings"`
}

type aggregatorIndex struct {
	Companies []aggregatorEntry `json:"companies"`
}

// AggregatorChecker cross-references a public third-party treasury index.
// Aggregators lag and mirror other people's data, so its candidates are
// community-tier and only surface discrepancies; they never auto-approve.
type AggregatorChecker struct {
	client  *resty.Client
	cache   *cache.Cache
	limiter *ratelimit.HostLimiter
	url     string
}

func NewAggregatorChecker(cfg *config.Config, limiter *ratelimit.HostLimiter) *AggregatorChecker {
	return &AggregatorChecker{
		client:  httpx.NewClient(cfg.FilingUserAgent),
		cache:   cache.New(filepath.Join(cfg.DataCacheDir, "aggregator"), 4*time.Hour, cfg.CacheEnabled),
		limiter: limiter,
		url:     cfg.AggregatorURL,
	}
}

func (c *AggregatorChecker) Category() models.SourceCategory { return models.SourceAggregator }

func (c *AggregatorChecker) Check(ctx context.Context, entities []models.TrackedEntity, _ time.Time) ([]models.SourceCandidate, error) {
	index, err := c.fetchIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregator index: %w", err)
	}

	var candidates []models.SourceCandidate
	for i := range entities {
		entity := &entities[i]
		entry := matchEntry(index.Companies, entity)
		if entry == nil {
			continue
		}

		if !aggregatorDisagrees(entity.CurrentHoldings, entry.Holdings) {
			continue
		}

		log.Info().Str("ticker", entity.Ticker).
			Float64("ours", entity.CurrentHoldings).
			Float64("aggregator", entry.Holdings).
			Msg("aggregator discrepancy")

		value := entry.Holdings
		candidates = append(candidates, models.SourceCandidate{
			Entity:           entity,
			Category:         models.SourceAggregator,
			DetectedHoldings: &value,
			RawText:          fmt.Sprintf("aggregator reports %.4f for %s (%s)", entry.Holdings, entry.Name, entry.Ticker),
			TrustTier:        models.TrustCommunity,
			SourceURL:        c.url,
			SourceDate:       time.Now().UTC(),
			Confidence:       0.5,
		})
	}
	return candidates, nil
}

// aggregatorDisagrees reports whether theirs differs from ours by more than
// the discrepancy threshold. A zero local value with a nonzero aggregator
// value always disagrees.
func aggregatorDisagrees(ours, theirs float64) bool {
	if ours == 0 {
		return theirs != 0
	}
	return math.Abs(theirs-ours)/math.Abs(ours) > aggregatorDiscrepancy
}

// matchEntry finds the aggregator row for an entity: by configured slug
// first, then by ticker, then by case-insensitive name.
func matchEntry(companies []aggregatorEntry, entity *models.TrackedEntity) *aggregatorEntry {
	slug := entity.Sources.AggregatorSlug
	for i := range companies {
		entry := &companies[i]
		if slug != "" && entry.Slug == slug {
			return entry
		}
		if strings.EqualFold(entry.Ticker, entity.Ticker) {
			return entry
		}
		if strings.EqualFold(entry.Name, entity.Name) {
			return entry
		}
	}
	return nil
}

func (c *AggregatorChecker) fetchIndex(ctx context.Context) (*aggregatorIndex, error) {
	var cached aggregatorIndex
	if c.cache.Get("aggregator", "index", c.url, &cached) {
		return &cached, nil
	}

	var index aggregatorIndex
	err := httpx.WithRetry(httpx.DefaultRetryConfig(), func() error {
		if err := c.limiter.Wait(ctx, c.url); err != nil {
			return err
		}
		resp, err := c.client.R().SetContext(ctx).SetResult(&index).Get(c.url)
		if err != nil {
			return fmt.Errorf("fetch aggregator index: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("aggregator index HTTP %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Set("aggregator", "index", c.url, &index)
	return &index, nil
}
