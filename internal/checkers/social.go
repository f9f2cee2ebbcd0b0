package checkers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/phuslu/log"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/httpx"
	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/ratelimit"
)

// SocialPost is one result from the search delegate.
type SocialPost struct {
	ID       string    `json:"id"`
	Author   string    `json:"author"`
	Text     string    `json:"text"`
	URL      string    `json:"url"`
	Verified bool      `json:"verified"`
	PostedAt time.Time `json:"posted_at"`
}

// SearchClient is the third-party text-search capability the social checker
// delegates to.
type SearchClient interface {
	Search(ctx context.Context, query string, since time.Time) ([]SocialPost, error)
}

// HTTPSearchClient calls a search API endpoint over HTTP.
type HTTPSearchClient struct {
	client  *resty.Client
	limiter *ratelimit.HostLimiter
	baseURL string
	apiKey  string
}

func NewHTTPSearchClient(cfg *config.Config, limiter *ratelimit.HostLimiter) *HTTPSearchClient {
	return &HTTPSearchClient{
		client:  httpx.NewClient(cfg.FilingUserAgent),
		limiter: limiter,
		baseURL: cfg.SearchAPIURL,
		apiKey:  cfg.SearchAPIKey,
	}
}

func (s *HTTPSearchClient) Search(ctx context.Context, query string, since time.Time) ([]SocialPost, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("search API not configured")
	}

	var response struct {
		Posts []SocialPost `json:"posts"`
	}
	err := httpx.WithRetry(httpx.DefaultRetryConfig(), func() error {
		if err := s.limiter.Wait(ctx, s.baseURL); err != nil {
			return err
		}
		resp, err := s.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"q":     query,
				"since": since.Format(time.RFC3339),
			}).
			SetHeader("Authorization", "Bearer "+s.apiKey).
			SetResult(&response).
			Get(s.baseURL)
		if err != nil {
			return fmt.Errorf("search request: %w", err)
		}
		if resp.StatusCode() != 200 {
			return fmt.Errorf("search API HTTP %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return response.Posts, nil
}

// SocialChecker searches social posts for holdings chatter. It never fills
// DetectedHoldings: post text always goes through extraction, and the trust
// tier caps what the policy will do with the result anyway.
type SocialChecker struct {
	search SearchClient
}

func NewSocialChecker(search SearchClient) *SocialChecker {
	return &SocialChecker{search: search}
}

func (c *SocialChecker) Category() models.SourceCategory { return models.SourceSocial }

func (c *SocialChecker) Check(ctx context.Context, entities []models.TrackedEntity, since time.Time) ([]models.SourceCandidate, error) {
	var candidates []models.SourceCandidate
	for i := range entities {
		entity := &entities[i]
		for _, query := range entity.Sources.SocialQueries {
			posts, err := c.search.Search(ctx, query, since)
			if err != nil {
				log.Warn().Str("ticker", entity.Ticker).Str("query", query).Err(err).Msg("social search failed")
				continue
			}

			for _, post := range posts {
				if !containsHoldingsLanguage(post.Text) {
					continue
				}
				tier := models.TrustUnverified
				if post.Verified {
					tier = models.TrustCommunity
				}
				candidates = append(candidates, models.SourceCandidate{
					Entity:     entity,
					Category:   models.SourceSocial,
					RawText:    models.BoundRawText(post.Text),
					TrustTier:  tier,
					SourceURL:  post.URL,
					SourceDate: post.PostedAt,
					Confidence: 0.3,
				})
			}
		}
	}
	return candidates, nil
}
