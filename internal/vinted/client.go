// Package vinted implements the catalog API client, gated by the local
// rate limiter and the shared session.
package vinted

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/mhorvath/vintedwatch/internal/filter"
	"github.com/mhorvath/vintedwatch/internal/model"
	"github.com/mhorvath/vintedwatch/internal/ratelimit"
	"github.com/mhorvath/vintedwatch/internal/session"
)

const (
	searchPath     = "/api/v2/catalog/items"
	searchEndpoint = "search"

	// Conservative local cap, well under what the site tolerates.
	searchMaxRequests = 20
	searchWindow      = time.Minute

	// Cookies older than this are refreshed before a request.
	sessionMaxAge = time.Minute
)

// Catalog ids for the clothing verticals, used to scope the remote query.
const (
	catalogMen   = "5"
	catalogWomen = "1"
)

// Client executes catalog searches against one Vinted site.
type Client struct {
	baseURL string
	session *session.Manager
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration)
	jitter  func(min, max time.Duration) time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithSleep replaces the delay function. Tests use it to skip real sleeps.
func WithSleep(f func(ctx context.Context, d time.Duration)) Option {
	return func(c *Client) { c.sleep = f }
}

// WithJitter replaces the randomized delay picker.
func WithJitter(f func(min, max time.Duration) time.Duration) Option {
	return func(c *Client) { c.jitter = f }
}

// NewClient builds a Client for the given site root.
func NewClient(baseURL string, sess *session.Manager, limiter *ratelimit.Limiter, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: baseURL,
		session: sess,
		limiter: limiter,
		logger:  logger,
		sleep:   sleepCtx,
		jitter:  jitterBetween,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type searchResponse struct {
	Items []model.Listing `json:"items"`
}

// Search runs one catalog search and returns the listings that pass the
// filter. A locally throttled call backs off briefly and returns an empty
// result without error; remote rejections return nil listings plus a
// classified error. There is no retry here — the next cycle tries again.
func (c *Client) Search(ctx context.Context, f model.Filter, page, perPage int) ([]model.Listing, error) {
	if !c.limiter.Allow(searchEndpoint, searchMaxRequests, searchWindow) {
		c.logger.Warn("local rate limit reached", zap.String("endpoint", searchEndpoint))
		c.sleep(ctx, c.jitter(5*time.Second, 10*time.Second))
		return nil, nil
	}

	if err := c.session.RefreshIfStale(ctx, sessionMaxAge); err != nil {
		// A stale session may still be accepted; carry on and let the
		// response status decide.
		c.logger.Warn("session refresh failed", zap.Error(err))
	}

	// Small randomized delay so request timing does not look automated.
	c.sleep(ctx, c.jitter(500*time.Millisecond, 2*time.Second))

	req, err := c.buildSearchRequest(ctx, f, page, perPage)
	if err != nil {
		return nil, err
	}

	resp, err := c.session.Client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("search response",
		zap.String("query", f.Query), zap.Int("status", resp.StatusCode))

	switch resp.StatusCode {
	case http.StatusOK:
		return c.decodeAndFilter(resp, f)
	case http.StatusTooManyRequests:
		c.logger.Warn("throttled by catalog api", zap.String("query", f.Query))
		c.sleep(ctx, c.jitter(10*time.Second, 20*time.Second))
		return nil, ErrThrottled
	case http.StatusForbidden:
		c.logger.Warn("forbidden, refreshing session", zap.String("query", f.Query))
		if err := c.session.ForceRefresh(ctx); err != nil {
			c.logger.Warn("forced session refresh failed", zap.Error(err))
		}
		return nil, ErrForbidden
	default:
		return nil, &RemoteError{Status: resp.StatusCode}
	}
}

func (c *Client) buildSearchRequest(ctx context.Context, f model.Filter, page, perPage int) (*http.Request, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("order", "newest_first")
	params.Set("search_text", f.Query)
	if f.Category == model.CategoryClothing {
		switch f.Gender {
		case model.GenderMen:
			params.Set("catalog_ids", catalogMen)
		case model.GenderWomen:
			params.Set("catalog_ids", catalogWomen)
		}
	}

	reqURL := c.baseURL + searchPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header = c.session.Headers(c.baseURL + "/catalog")
	return req, nil
}

func (c *Client) decodeAndFilter(resp *http.Response, f model.Filter) ([]model.Listing, error) {
	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode search response: %v", ErrMalformed, err)
	}

	matched := make([]model.Listing, 0, len(body.Items))
	for _, item := range body.Items {
		ok, reason := filter.Matches(f, item)
		if !ok {
			c.logger.Debug("listing filtered out",
				zap.Int64("id", item.ID), zap.String("reason", reason))
			continue
		}
		matched = append(matched, item)
	}
	c.logger.Info("search complete",
		zap.String("query", f.Query),
		zap.Int("fetched", len(body.Items)),
		zap.Int("matched", len(matched)))
	return matched, nil
}

func jitterBetween(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
