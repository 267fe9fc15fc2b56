package vinted

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mhorvath/vintedwatch/internal/model"
	"github.com/mhorvath/vintedwatch/internal/ratelimit"
	"github.com/mhorvath/vintedwatch/internal/session"
)

type catalogServer struct {
	srv        *httptest.Server
	rootHits   atomic.Int32
	searchHits atomic.Int32
	lastQuery  atomic.Value // raw query string of the last search
	status     atomic.Int32
	rawBody    atomic.Value // when set, served verbatim instead of items
	items      []model.Listing
}

func newCatalogServer(t *testing.T) *catalogServer {
	t.Helper()
	cs := &catalogServer{}
	cs.status.Store(http.StatusOK)
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			cs.rootHits.Add(1)
			http.SetCookie(w, &http.Cookie{Name: "_session", Value: "tok", Path: "/"})
			w.WriteHeader(http.StatusOK)
		case "/api/v2/catalog/items":
			cs.searchHits.Add(1)
			cs.lastQuery.Store(r.URL.RawQuery)
			code := int(cs.status.Load())
			if code != http.StatusOK {
				w.WriteHeader(code)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			if raw, ok := cs.rawBody.Load().(string); ok {
				w.Write([]byte(raw))
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"items": cs.items})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(cs.srv.Close)
	return cs
}

func newTestClient(t *testing.T, cs *catalogServer, limiter *ratelimit.Limiter) *Client {
	t.Helper()
	sess, err := session.New(cs.srv.URL, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	if limiter == nil {
		limiter = ratelimit.New(nil)
	}
	return NewClient(cs.srv.URL, sess, limiter, zap.NewNop(),
		WithSleep(func(context.Context, time.Duration) {}),
		WithJitter(func(min, _ time.Duration) time.Duration { return min }),
	)
}

func TestClient_SearchFiltersListings(t *testing.T) {
	t.Parallel()

	cs := newCatalogServer(t)
	cs.items = []model.Listing{
		{ID: 1, Title: "fits exactly", Size: "M"},
		{ID: 2, Title: "composite label", Size: "S / M"},
		{ID: 3, Title: "too big", Size: "XL"},
	}
	c := newTestClient(t, cs, nil)

	f := model.Filter{
		Query:    "ralph lauren",
		Sizes:    []string{"M"},
		Gender:   model.GenderMen,
		Category: model.CategoryClothing,
	}
	listings, err := c.Search(context.Background(), f, 1, 20)
	require.NoError(t, err)
	require.Len(t, listings, 2)
	require.Equal(t, int64(1), listings[0].ID)
	require.Equal(t, int64(2), listings[1].ID)

	require.GreaterOrEqual(t, cs.rootHits.Load(), int32(1),
		"an unprimed session must bootstrap cookies before searching")

	query := cs.lastQuery.Load().(string)
	require.Contains(t, query, "order=newest_first")
	require.Contains(t, query, "catalog_ids=5")
	require.Contains(t, query, "per_page=20")
	require.Contains(t, query, "search_text=ralph+lauren")
}

func TestClient_SearchOmitsCatalogScopeForOtherCategory(t *testing.T) {
	t.Parallel()

	cs := newCatalogServer(t)
	c := newTestClient(t, cs, nil)

	_, err := c.Search(context.Background(), model.Filter{Query: "lego", Category: model.CategoryOther}, 1, 20)
	require.NoError(t, err)
	require.NotContains(t, cs.lastQuery.Load().(string), "catalog_ids")
}

func TestClient_SearchThrottledRemote(t *testing.T) {
	t.Parallel()

	cs := newCatalogServer(t)
	cs.status.Store(http.StatusTooManyRequests)
	c := newTestClient(t, cs, nil)

	listings, err := c.Search(context.Background(), model.Filter{Query: "q"}, 1, 20)
	require.ErrorIs(t, err, ErrThrottled)
	require.Empty(t, listings)
}

func TestClient_SearchForbiddenForcesRefresh(t *testing.T) {
	t.Parallel()

	cs := newCatalogServer(t)
	cs.status.Store(http.StatusForbidden)
	c := newTestClient(t, cs, nil)

	listings, err := c.Search(context.Background(), model.Filter{Query: "q"}, 1, 20)
	require.ErrorIs(t, err, ErrForbidden)
	require.Empty(t, listings)
	require.Equal(t, int32(2), cs.rootHits.Load(),
		"one bootstrap refresh plus exactly one forced refresh")
}

func TestClient_SearchRemoteError(t *testing.T) {
	t.Parallel()

	cs := newCatalogServer(t)
	cs.status.Store(http.StatusBadGateway)
	c := newTestClient(t, cs, nil)

	_, err := c.Search(context.Background(), model.Filter{Query: "q"}, 1, 20)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, http.StatusBadGateway, remote.Status)
}

func TestClient_SearchMalformedPayload(t *testing.T) {
	t.Parallel()

	cs := newCatalogServer(t)
	cs.rawBody.Store(`{"items": [{"id": "not a number"`)
	c := newTestClient(t, cs, nil)

	listings, err := c.Search(context.Background(), model.Filter{Query: "q"}, 1, 20)
	require.ErrorIs(t, err, ErrMalformed)
	require.Empty(t, listings)
	require.Equal(t, "remote", Classify(err),
		"an undecodable 200 body is the remote misbehaving, not a transport fault")
}

func TestClient_LocalThrottleYieldsEmptyWithoutError(t *testing.T) {
	t.Parallel()

	cs := newCatalogServer(t)
	limiter := ratelimit.New(nil)
	for i := 0; i < searchMaxRequests; i++ {
		require.True(t, limiter.Allow(searchEndpoint, searchMaxRequests, searchWindow))
	}
	c := newTestClient(t, cs, limiter)

	listings, err := c.Search(context.Background(), model.Filter{Query: "q"}, 1, 20)
	require.NoError(t, err, "a locally throttled cycle is not a failure")
	require.Empty(t, listings)
	require.Zero(t, cs.searchHits.Load(), "no request may be issued while throttled")
}

func TestClassify(t *testing.T) {
	t.Parallel()

	require.Equal(t, "throttled", Classify(ErrThrottled))
	require.Equal(t, "forbidden", Classify(ErrForbidden))
	require.Equal(t, "remote", Classify(&RemoteError{Status: 500}))
	require.Equal(t, "remote", Classify(ErrMalformed))
	require.Equal(t, "transport", Classify(context.DeadlineExceeded))
	require.Equal(t, "none", Classify(nil))
}
