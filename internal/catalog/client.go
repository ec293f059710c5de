// Package catalog is a paged REST client for the off-chain project
// catalog: listings, detail lookup, the project selection policy and a
// cached/single-flighted upcoming-launches aggregation.
package catalog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/launchwatch/monitor/internal/cache"
	"github.com/launchwatch/monitor/internal/errkind"
	"github.com/launchwatch/monitor/internal/model"
)

const (
	requestTimeout    = 10 * time.Second
	retryAttempts     = 3
	retryBaseDelay    = 1 * time.Second
	retryMaxDelay     = 10 * time.Second
	upcomingCacheTTL  = 30 * time.Second
	upcomingHorizon   = 10 * 24 * time.Hour
	discoverMaxFails  = 10
	discoverBaseDelay = 1 * time.Second
	discoverMaxDelay  = 30 * time.Second
)

var discoveryFactories = [...]model.FactoryTag{
	model.FactoryBondingCurveV2,
	model.FactoryBondingCurveV4,
	model.FactoryVibes,
}

// Client is the off-chain catalog REST client.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	log            zerolog.Logger
	preferredTicker string

	upcoming *cache.TTL[[]model.ProjectDescriptor]
}

// New builds a Client against baseURL (no trailing slash expected,
// trimmed defensively). preferredTicker is the selection policy's
// tie-breaker symbol (may be empty).
func New(baseURL string, preferredTicker string, log zerolog.Logger) *Client {
	for len(baseURL) > 0 && baseURL[len(baseURL)-1] == '/' {
		baseURL = baseURL[:len(baseURL)-1]
	}
	return &Client{
		baseURL:         baseURL,
		httpClient:      &http.Client{},
		log:             log,
		preferredTicker: preferredTicker,
		upcoming:        cache.NewTTL[[]model.ProjectDescriptor](upcomingCacheTTL),
	}
}

// get performs a single GET against path?query under the retry
// discipline: 3 attempts, 1s->10s backoff, 10s per-call timeout.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	full := c.baseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	var lastErr error
	delay := retryBaseDelay
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, 0, ctx.Err()
			case <-timer.C:
			}
			delay *= 2
			if delay > retryMaxDelay {
				delay = retryMaxDelay
			}
		}

		cctx, cancel := context.WithTimeout(ctx, requestTimeout)
		req, err := http.NewRequestWithContext(cctx, http.MethodGet, full, nil)
		if err != nil {
			cancel()
			return nil, 0, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			cancel()
			lastErr = err
			c.log.Warn().Err(err).Str("url", full).Int("attempt", attempt+1).Msg("catalog request failed")
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			return body, resp.StatusCode, nil
		}
		if resp.StatusCode >= 300 {
			lastErr = errkind.NewAPI(resp.StatusCode, full, fmt.Errorf("catalog returned status %d", resp.StatusCode))
			continue
		}
		return body, resp.StatusCode, nil
	}
	return nil, 0, errkind.NewAPI(0, full, lastErr)
}

// ListBySort returns one page sorted by sort.
func (c *Client) ListBySort(ctx context.Context, sort Sort, page, pageSize int) (Page, error) {
	q := url.Values{}
	q.Set("sort", string(sort))
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	body, status, err := c.get(ctx, "/projects", q)
	if err != nil {
		return Page{}, err
	}
	if status == http.StatusNotFound {
		return Page{}, nil
	}
	return decodeWirePage(body)
}

// ListByFactory returns one page of a given factory's projects.
func (c *Client) ListByFactory(ctx context.Context, factory model.FactoryTag, page, pageSize int) (Page, error) {
	q := url.Values{}
	q.Set("factory", factory.String())
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(pageSize))
	body, status, err := c.get(ctx, "/projects", q)
	if err != nil {
		return Page{}, err
	}
	if status == http.StatusNotFound {
		return Page{}, nil
	}
	return decodeWirePage(body)
}

// ListAllByFactory pages through every project for factory until
// pageCount is reached.
func (c *Client) ListAllByFactory(ctx context.Context, factory model.FactoryTag) ([]model.ProjectDescriptor, error) {
	const pageSize = 100
	var all []model.ProjectDescriptor
	page := 1
	for {
		p, err := c.ListByFactory(ctx, factory, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, p.Items...)
		if p.PageCount == 0 || page >= p.PageCount {
			break
		}
		page++
	}
	return all, nil
}

// ByID looks up a single project; a 404 is translated to (nil, nil).
func (c *Client) ByID(ctx context.Context, id int64) (*model.ProjectDescriptor, error) {
	body, status, err := c.get(ctx, fmt.Sprintf("/projects/%d", id), nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	d, err := decodeWireProject(body)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// UpcomingLaunches merges three concurrent factory-exhausted listings,
// filters to not-yet-launched undergrad-bound projects inside the next
// ten days, sorts ascending by launch time. Cached 30s, single-flighted.
func (c *Client) UpcomingLaunches(ctx context.Context) ([]model.ProjectDescriptor, error) {
	return c.upcoming.Get("upcoming", func() ([]model.ProjectDescriptor, error) {
		return c.fetchUpcomingLaunches(ctx)
	})
}

func (c *Client) fetchUpcomingLaunches(ctx context.Context) ([]model.ProjectDescriptor, error) {
	type result struct {
		items []model.ProjectDescriptor
		err   error
	}
	results := make(chan result, len(discoveryFactories))
	for _, f := range discoveryFactories {
		f := f
		go func() {
			items, err := c.ListAllByFactory(ctx, f)
			results <- result{items: items, err: err}
		}()
	}

	merged := make(map[int64]model.ProjectDescriptor)
	var order []int64
	var firstErr error
	for range discoveryFactories {
		r := <-results
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		for _, d := range r.items {
			if _, seen := merged[d.ID]; !seen {
				merged[d.ID] = d
				order = append(order, d.ID)
			}
		}
	}
	if len(merged) == 0 && firstErr != nil {
		return nil, firstErr
	}

	now := time.Now()
	horizon := now.Add(upcomingHorizon)
	var out []model.ProjectDescriptor
	for _, id := range order {
		d := merged[id]
		if d.Status != model.StatusInitialized {
			continue
		}
		if d.PreTokenPair == nil || *d.PreTokenPair == "" {
			continue
		}
		if d.LPCreatedAt != nil {
			continue
		}
		if d.LaunchedAt == nil {
			continue
		}
		if d.LaunchedAt.Before(now) || d.LaunchedAt.After(horizon) {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LaunchedAt.Before(*out[j].LaunchedAt)
	})
	return out, nil
}
