package checkers

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/phuslu/log"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/cache"
	"github.com/voskhod/treasurywatch/internal/httpx"
	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/ratelimit"
)

// pageChecker is the shared machinery of the two official-page checkers:
// fetch a page, reduce it to text, and run the numeric-near-keyword scan.
type pageChecker struct {
	client  *resty.Client
	cache   *cache.Cache
	limiter *ratelimit.HostLimiter
}

func newPageChecker(cfg *config.Config, limiter *ratelimit.HostLimiter, cacheName string, ttl time.Duration) *pageChecker {
	return &pageChecker{
		client:  httpx.NewClient(cfg.FilingUserAgent),
		cache:   cache.New(filepath.Join(cfg.DataCacheDir, cacheName), ttl, cfg.CacheEnabled),
		limiter: limiter,
	}
}

func (p *pageChecker) fetchPageText(ctx context.Context, url string) (string, error) {
	var cached string
	if p.cache.Get("page", "text", url, &cached) {
		return cached, nil
	}

	var body string
	err := httpx.WithRetry(httpx.DefaultRetryConfig(), func() error {
		if err := p.limiter.Wait(ctx, url); err != nil {
			return err
		}
		resp, err := p.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("fetch page: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("page HTTP %d", resp.StatusCode())
		}
		body = resp.String()
		return nil
	})
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse page HTML: %w", err)
	}
	doc.Find("script, style, nav, footer").Remove()
	text := strings.Join(strings.Fields(doc.Text()), " ")

	p.cache.Set("page", "text", url, text)
	return text, nil
}

// scanPage turns scanned page text into at most one candidate.
func (p *pageChecker) scanPage(entity *models.TrackedEntity, category models.SourceCategory, url, text string) *models.SourceCandidate {
	result := ScanForHoldings(text)
	if result == nil {
		return nil
	}

	value := result.Value
	return &models.SourceCandidate{
		Entity:           entity,
		Category:         category,
		DetectedHoldings: &value,
		RawText:          models.BoundRawText(text),
		TrustTier:        models.TrustOfficial,
		SourceURL:        url,
		SourceDate:       time.Now().UTC(),
		Confidence:       result.Confidence,
	}
}

// HoldingsPageChecker polls each entity's dedicated holdings page, where the
// number is usually presented in a known-good pattern.
type HoldingsPageChecker struct {
	page *pageChecker
}

func NewHoldingsPageChecker(cfg *config.Config, limiter *ratelimit.HostLimiter) *HoldingsPageChecker {
	return &HoldingsPageChecker{page: newPageChecker(cfg, limiter, "holdings_pages", 2*time.Hour)}
}

func (c *HoldingsPageChecker) Category() models.SourceCategory { return models.SourceHoldingsPage }

func (c *HoldingsPageChecker) Check(ctx context.Context, entities []models.TrackedEntity, _ time.Time) ([]models.SourceCandidate, error) {
	var candidates []models.SourceCandidate
	for i := range entities {
		entity := &entities[i]
		url := entity.Sources.HoldingsPageURL
		if url == "" {
			continue
		}

		text, err := c.page.fetchPageText(ctx, url)
		if err != nil {
			log.Warn().Str("ticker", entity.Ticker).Str("url", url).Err(err).Msg("holdings page fetch failed")
			continue
		}
		if candidate := c.page.scanPage(entity, models.SourceHoldingsPage, url, text); candidate != nil {
			candidates = append(candidates, *candidate)
		}
	}
	return candidates, nil
}

// AnnouncementChecker polls each entity's press/announcement page. Prose is
// noisier than a holdings page, so when the scan finds nothing the raw text
// is still handed to extraction if it talks about holdings at all.
type AnnouncementChecker struct {
	page *pageChecker
}

func NewAnnouncementChecker(cfg *config.Config, limiter *ratelimit.HostLimiter) *AnnouncementChecker {
	return &AnnouncementChecker{page: newPageChecker(cfg, limiter, "announcements", 2*time.Hour)}
}

func (c *AnnouncementChecker) Category() models.SourceCategory { return models.SourceAnnouncement }

func (c *AnnouncementChecker) Check(ctx context.Context, entities []models.TrackedEntity, _ time.Time) ([]models.SourceCandidate, error) {
	var candidates []models.SourceCandidate
	for i := range entities {
		entity := &entities[i]
		url := entity.Sources.AnnouncementURL
		if url == "" {
			continue
		}

		text, err := c.page.fetchPageText(ctx, url)
		if err != nil {
			log.Warn().Str("ticker", entity.Ticker).Str("url", url).Err(err).Msg("announcement page fetch failed")
			continue
		}

		if candidate := c.page.scanPage(entity, models.SourceAnnouncement, url, text); candidate != nil {
			candidates = append(candidates, *candidate)
			continue
		}
		if containsHoldingsLanguage(text) {
			candidates = append(candidates, models.SourceCandidate{
				Entity:     entity,
				Category:   models.SourceAnnouncement,
				RawText:    models.BoundRawText(text),
				TrustTier:  models.TrustOfficial,
				SourceURL:  url,
				SourceDate: time.Now().UTC(),
				Confidence: 0.6,
			})
		}
	}
	return candidates, nil
}
