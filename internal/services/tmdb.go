package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

const (
	defaultTMDBBaseURL = "https://api.themoviedb.org/3"
	detailsAppend      = "credits,images,videos,keywords,external_ids,recommendations,similar"
)

// cacheClass groups catalog requests that share a time-to-live.
type cacheClass int

const (
	classTrending cacheClass = iota
	classPeople
	classSearch
	classDetails
	classExternalIDs
)

// TMDBOpts configures a [TMDBClient].
type TMDBOpts struct {
	BaseURL           string
	AccessToken       string
	APIKey            string
	Language          string
	RequestsPerSecond float64
	Cache             shared.CacheConfig
	Attempts          uint
	RetryDelay        time.Duration
	HTTPClient        *http.Client
	Logger            *log.Logger
}

// TMDBClient implements [Catalog] against The Movie Database v3 API.
//
// Requests are rate limited, retried on 429 and 5xx responses, deduplicated while in flight
// and cached per request class.
type TMDBClient struct {
	baseURL     string
	accessToken string
	apiKey      string
	language    string
	httpClient  *http.Client
	limiter     *rate.Limiter
	caches      map[cacheClass]*expirable.LRU[string, []byte]
	group       singleflight.Group
	attempts    uint
	retryDelay  time.Duration
	logger      *log.Logger
}

// statusError is a non-2xx catalog response.
type statusError struct {
	code int
	path string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("tmdb %s: status %d", e.path, e.code)
}

func (e *statusError) Unwrap() error {
	return shared.ErrAPIRequest
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

// NewTMDBClient creates a catalog client. Either an access token or an API key is required.
func NewTMDBClient(opts TMDBOpts) (*TMDBClient, error) {
	if opts.AccessToken == "" && opts.APIKey == "" {
		return nil, fmt.Errorf("%w: tmdb access_token or api_key", shared.ErrMissingCredentials)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultTMDBBaseURL
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 20
	}
	if opts.Attempts == 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 250 * time.Millisecond
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	size := opts.Cache.Size
	if size <= 0 {
		size = 512
	}
	ttl := func(d shared.Duration, fallback time.Duration) time.Duration {
		if d.Duration > 0 {
			return d.Duration
		}
		return fallback
	}

	c := &TMDBClient{
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		accessToken: opts.AccessToken,
		apiKey:      opts.APIKey,
		language:    opts.Language,
		httpClient:  opts.HTTPClient,
		limiter:     rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond))),
		attempts:    opts.Attempts,
		retryDelay:  opts.RetryDelay,
		logger:      opts.Logger,
		caches: map[cacheClass]*expirable.LRU[string, []byte]{
			classTrending:    expirable.NewLRU[string, []byte](size, nil, ttl(opts.Cache.TrendingTTL, time.Hour)),
			classPeople:      expirable.NewLRU[string, []byte](size, nil, ttl(opts.Cache.PeopleTTL, time.Hour)),
			classSearch:      expirable.NewLRU[string, []byte](size, nil, ttl(opts.Cache.TrendingTTL, time.Hour)),
			classDetails:     expirable.NewLRU[string, []byte](size, nil, ttl(opts.Cache.DetailsTTL, 24*time.Hour)),
			classExternalIDs: expirable.NewLRU[string, []byte](size, nil, ttl(opts.Cache.ExternalIDsTTL, 7*24*time.Hour)),
		},
	}
	return c, nil
}

// NewTMDBClientFromConfig creates a catalog client from the application config.
func NewTMDBClientFromConfig(cfg *shared.Config, logger *log.Logger) (*TMDBClient, error) {
	creds := cfg.Credentials.TMDB
	return NewTMDBClient(TMDBOpts{
		BaseURL:           creds.BaseURL,
		AccessToken:       creds.AccessToken,
		APIKey:            creds.APIKey,
		Language:          creds.Language,
		RequestsPerSecond: creds.RequestsPerSecond,
		Cache:             cfg.Cache,
		Logger:            logger,
	})
}

// Trending returns today's trending movies and shows, dropping people.
func (c *TMDBClient) Trending(ctx context.Context) ([]models.Media, error) {
	var page models.Page[models.Media]
	if err := c.get(ctx, classTrending, "/trending/all/day", nil, &page); err != nil {
		return nil, err
	}
	return listable(page.Results, models.MediaUnknown), nil
}

// PopularPeople returns the first page of popular people.
func (c *TMDBClient) PopularPeople(ctx context.Context) ([]models.Person, error) {
	var page models.Page[models.Person]
	if err := c.get(ctx, classPeople, "/person/popular", nil, &page); err != nil {
		return nil, err
	}
	return page.Results, nil
}

// Search runs a multi search and keeps movie and TV results.
func (c *TMDBClient) Search(ctx context.Context, query string, page int) (*models.Page[models.Media], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", shared.ErrInvalidInput)
	}
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("include_adult", "false")

	var result models.Page[models.Media]
	if err := c.get(ctx, classSearch, "/search/multi", params, &result); err != nil {
		return nil, err
	}
	result.Results = listable(result.Results, models.MediaUnknown)
	return &result, nil
}

// Details returns a title with its sub-resources appended in one request.
func (c *TMDBClient) Details(ctx context.Context, mt models.MediaType, id int64) (*models.Details, error) {
	if err := checkTitle(mt, id); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("append_to_response", detailsAppend)
	params.Set("include_image_language", "en,null")

	var d models.Details
	if err := c.get(ctx, classDetails, titlePath(mt, id, ""), params, &d); err != nil {
		return nil, err
	}
	d.MediaType = mt
	d.Recommendations.Results = listable(d.Recommendations.Results, mt)
	d.Similar.Results = listable(d.Similar.Results, mt)
	return &d, nil
}

// ExternalIDs returns the ids of a title in other databases.
func (c *TMDBClient) ExternalIDs(ctx context.Context, mt models.MediaType, id int64) (*models.ExternalIDs, error) {
	if err := checkTitle(mt, id); err != nil {
		return nil, err
	}
	var ids models.ExternalIDs
	if err := c.get(ctx, classExternalIDs, titlePath(mt, id, "external_ids"), nil, &ids); err != nil {
		return nil, err
	}
	return &ids, nil
}

// Collection returns a movie collection with its parts.
func (c *TMDBClient) Collection(ctx context.Context, id int64) (*models.Collection, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: collection id %d", shared.ErrInvalidArgument, id)
	}
	var col models.Collection
	if err := c.get(ctx, classDetails, "/collection/"+strconv.FormatInt(id, 10), nil, &col); err != nil {
		return nil, err
	}
	col.Parts = listable(col.Parts, models.MediaMovie)
	return &col, nil
}

// Recommendations returns titles recommended for a title.
func (c *TMDBClient) Recommendations(ctx context.Context, mt models.MediaType, id int64) ([]models.Media, error) {
	return c.related(ctx, mt, id, "recommendations")
}

// Similar returns titles similar to a title.
func (c *TMDBClient) Similar(ctx context.Context, mt models.MediaType, id int64) ([]models.Media, error) {
	return c.related(ctx, mt, id, "similar")
}

// HomeFeed is the landing page content.
type HomeFeed struct {
	Trending []models.Media  `json:"trending"`
	People   []models.Person `json:"people"`
	Degraded bool            `json:"degraded,omitempty"`
}

// LoadHome loads trending titles and popular people concurrently.
//
// A failed half is logged and left empty so the page still renders.
func LoadHome(ctx context.Context, catalog Catalog, logger *log.Logger) HomeFeed {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	feed := HomeFeed{Trending: []models.Media{}, People: []models.Person{}}
	var trendErr, peopleErr error
	var wg conc.WaitGroup
	wg.Go(func() {
		var trending []models.Media
		if trending, trendErr = catalog.Trending(ctx); trendErr != nil {
			logger.Error("failed to load trending", "error", trendErr)
			return
		}
		feed.Trending = trending
	})
	wg.Go(func() {
		var people []models.Person
		if people, peopleErr = catalog.PopularPeople(ctx); peopleErr != nil {
			logger.Error("failed to load popular people", "error", peopleErr)
			return
		}
		feed.People = people
	})
	wg.Wait()
	feed.Degraded = trendErr != nil || peopleErr != nil
	return feed
}

// Purge drops every cached response.
func (c *TMDBClient) Purge() {
	for _, cache := range c.caches {
		cache.Purge()
	}
}

func (c *TMDBClient) related(ctx context.Context, mt models.MediaType, id int64, kind string) ([]models.Media, error) {
	if err := checkTitle(mt, id); err != nil {
		return nil, err
	}
	var page models.Page[models.Media]
	if err := c.get(ctx, classDetails, titlePath(mt, id, kind), nil, &page); err != nil {
		return nil, err
	}
	return listable(page.Results, mt), nil
}

// get serves endpoint from the class cache, joining an identical in-flight request when there is one.
func (c *TMDBClient) get(ctx context.Context, class cacheClass, endpoint string, params url.Values, result any) error {
	u := c.buildURL(endpoint, params)
	cache := c.caches[class]

	if body, ok := cache.Get(u); ok {
		return decodeBody(body, result)
	}

	v, err, _ := c.group.Do(u, func() (any, error) {
		body, err := c.fetch(ctx, endpoint, u)
		if err != nil {
			return nil, err
		}
		cache.Add(u, body)
		return body, nil
	})
	if err != nil {
		return err
	}
	return decodeBody(v.([]byte), result)
}

func (c *TMDBClient) fetch(ctx context.Context, endpoint, u string) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			if err := c.limiter.Wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")
			if c.accessToken != "" {
				req.Header.Set("Authorization", "Bearer "+c.accessToken)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				serr := &statusError{code: resp.StatusCode, path: endpoint}
				if serr.retryable() {
					return serr
				}
				return retry.Unrecoverable(serr)
			}

			body, err = io.ReadAll(resp.Body)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("retrying catalog request", "path", endpoint, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *TMDBClient) buildURL(endpoint string, params url.Values) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("language", c.language)
	if c.accessToken == "" {
		q.Set("api_key", c.apiKey)
	}
	return c.baseURL + endpoint + "?" + q.Encode()
}

func decodeBody(body []byte, result any) error {
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func checkTitle(mt models.MediaType, id int64) error {
	if !mt.Valid() {
		return fmt.Errorf("%w: media type %q", shared.ErrInvalidArgument, mt)
	}
	if id <= 0 {
		return fmt.Errorf("%w: media id %d", shared.ErrInvalidArgument, id)
	}
	return nil
}

func titlePath(mt models.MediaType, id int64, sub string) string {
	p := "/" + string(mt) + "/" + strconv.FormatInt(id, 10)
	if sub != "" {
		p += "/" + sub
	}
	return p
}

// listable keeps movie and TV results, stamping fallback as the type when the endpoint omits it.
func listable(in []models.Media, fallback models.MediaType) []models.Media {
	out := make([]models.Media, 0, len(in))
	for _, m := range in {
		if m.MediaType == models.MediaPerson {
			continue
		}
		if m.MediaType == models.MediaUnknown && fallback.Valid() {
			m.MediaType = fallback
		}
		out = append(out, m)
	}
	return out
}

// IsNotFound reports whether err is a 404 from the catalog or wraps [shared.ErrNotFound].
func IsNotFound(err error) bool {
	var serr *statusError
	if errors.As(err, &serr) {
		return serr.code == http.StatusNotFound
	}
	return errors.Is(err, shared.ErrNotFound)
}
