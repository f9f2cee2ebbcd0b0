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

// relevantForms are the filing types that can restate treasury holdings.
var relevantForms = map[string]bool{
	"10-Q": true,
	"10-K": true,
	"8-K":  true,
}

// maxDocumentsPerEntity bounds how many filing documents one entity fetch
// may trigger per run.
const maxDocumentsPerEntity = 3

// FilingsChecker polls the regulatory filing index for each entity's recent
// filings, fetches candidate documents, and emits raw-text candidates for
// the extraction engine. It never fills DetectedHoldings itself: filing
// prose is exactly what the delegate exists for.
type FilingsChecker struct {
	client    *resty.Client
	docClient *resty.Client
	cache     *cache.Cache
	limiter   *ratelimit.HostLimiter
	baseURL   string
}

func NewFilingsChecker(cfg *config.Config, limiter *ratelimit.HostLimiter) *FilingsChecker {
	// The filing index publishes a 10 req/s courtesy ceiling for tagged
	// clients; stay under it.
	limiter.SetHostRate(hostOf(cfg.FilingIndexURL), 8)

	return &FilingsChecker{
		client:    httpx.NewClient(cfg.FilingUserAgent),
		docClient: httpx.NewDocumentClient(cfg.FilingUserAgent),
		cache:     cache.New(filepath.Join(cfg.DataCacheDir, "filings"), 6*time.Hour, cfg.CacheEnabled),
		limiter:   limiter,
		baseURL:   strings.TrimRight(cfg.FilingIndexURL, "/"),
	}
}

func (c *FilingsChecker) Category() models.SourceCategory { return models.SourceRegulatoryFiling }

// filingIndex is the shape of the per-entity recent-filings listing.
type filingIndex struct {
	Filings struct {
		Recent struct {
			Form            []string `json:"form"`
			FilingDate      []string `json:"filingDate"`
			AccessionNumber []string `json:"accessionNumber"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

func (c *FilingsChecker) Check(ctx context.Context, entities []models.TrackedEntity, since time.Time) ([]models.SourceCandidate, error) {
	var candidates []models.SourceCandidate
	for i := range entities {
		entity := &entities[i]
		if entity.Sources.FilingIndexID == "" {
			continue
		}

		found, err := c.checkEntity(ctx, entity, since)
		if err != nil {
			log.Warn().Str("ticker", entity.Ticker).Err(err).Msg("filings check failed for entity")
			continue
		}
		candidates = append(candidates, found...)
	}
	return candidates, nil
}

func (c *FilingsChecker) checkEntity(ctx context.Context, entity *models.TrackedEntity, since time.Time) ([]models.SourceCandidate, error) {
	index, err := c.fetchIndex(ctx, entity.Sources.FilingIndexID)
	if err != nil {
		return nil, err
	}

	recent := index.Filings.Recent
	var candidates []models.SourceCandidate
	fetched := 0
	for i := range recent.Form {
		if fetched >= maxDocumentsPerEntity {
			break
		}
		if !relevantForms[recent.Form[i]] {
			continue
		}
		filed, err := time.Parse("2006-01-02", recent.FilingDate[i])
		if err != nil || filed.Before(since) {
			continue
		}

		docURL := c.documentURL(entity.Sources.FilingIndexID, recent.AccessionNumber[i], recent.PrimaryDocument[i])
		text, err := c.fetchDocument(ctx, docURL)
		if err != nil {
			log.Warn().Str("ticker", entity.Ticker).Str("url", docURL).Err(err).Msg("filing document fetch failed")
			continue
		}
		fetched++

		if !containsHoldingsLanguage(text) {
			continue
		}

		candidates = append(candidates, models.SourceCandidate{
			Entity:     entity,
			Category:   models.SourceRegulatoryFiling,
			RawText:    models.BoundRawText(text),
			TrustTier:  models.TrustOfficial,
			SourceURL:  docURL,
			SourceDate: filed,
			Confidence: 0.8, // raw text; extraction refines this
		})
	}
	return candidates, nil
}

func (c *FilingsChecker) fetchIndex(ctx context.Context, indexID string) (*filingIndex, error) {
	var cached filingIndex
	if c.cache.Get("filings", "index", indexID, &cached) {
		return &cached, nil
	}

	url := fmt.Sprintf("%s/submissions/CIK%010s.json", c.baseURL, indexID)

	var index filingIndex
	err := httpx.WithRetry(httpx.DefaultRetryConfig(), func() error {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return err
		}
		resp, err := c.client.R().SetContext(ctx).SetResult(&index).Get(url)
		if err != nil {
			return fmt.Errorf("fetch filing index: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("filing index HTTP %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.cache.Set("filings", "index", indexID, &index)
	return &index, nil
}

func (c *FilingsChecker) documentURL(indexID, accession, document string) string {
	accession = strings.ReplaceAll(accession, "-", "")
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		c.baseURL, strings.TrimLeft(indexID, "0"), accession, document)
}

func (c *FilingsChecker) fetchDocument(ctx context.Context, url string) (string, error) {
	var cached string
	if c.cache.Get("filings", "document", url, &cached) {
		return cached, nil
	}

	var body string
	err := httpx.WithRetry(httpx.DefaultRetryConfig(), func() error {
		if err := c.limiter.Wait(ctx, url); err != nil {
			return err
		}
		resp, err := c.docClient.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("fetch filing document: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("filing document HTTP %d", resp.StatusCode())
		}
		body = resp.String()
		return nil
	})
	if err != nil {
		return "", err
	}

	text := stripHTML(body)
	c.cache.Set("filings", "document", url, text)
	return text, nil
}

// stripHTML reduces a document to its text content. Filing documents are
// HTML more often than not; plain text passes through unchanged.
func stripHTML(body string) string {
	if !strings.Contains(body, "<") {
		return body
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return body
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func hostOf(rawURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(rawURL, "https://"), "http://")
	if idx := strings.IndexAny(trimmed, "/"); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}
