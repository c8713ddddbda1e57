// Package apify runs Apify actors for people search, post search and profile
// scraping, waiting on each actor run with a bounded poller.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yungbote/talentgraph-backend/internal/normalization"
	"github.com/yungbote/talentgraph-backend/internal/pkg/errors"
	"github.com/yungbote/talentgraph-backend/internal/pkg/httpx"
	"github.com/yungbote/talentgraph-backend/internal/pkg/logger"
)

const (
	ProviderPeopleSearch = "people_search"
	ProviderLinkedinPost = "linkedin_posts"
	ProviderProfile      = "linkedin_profile"

	// LinkedIn search result pages hold 25 people.
	itemsPerPage = 25
)

type Config struct {
	Token   string
	BaseURL string
	// Actors maps a provider name to an actor id ("user~actor").
	Actors          map[string]string
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	MaxPollAttempts int
	RunTimeout      time.Duration
	HTTPTimeout     time.Duration
	MaxRetries      int
}

type SearchRequest struct {
	Provider       string
	Payload        json.RawMessage
	MaxPages       int
	MaxItems       int
	EnrichProfiles bool
}

type SearchResult struct {
	Items        []json.RawMessage
	PagesFetched int
	QueryID      string
}

type ProfileResult struct {
	URL     string
	Success bool
	Data    json.RawMessage
	Error   string
}

type ScrapeResult struct {
	Results []ProfileResult
}

type Client struct {
	log        *logger.Logger
	cfg        Config
	baseURL    string
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("missing apify token")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.apify.com"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPollInterval <= 0 {
		cfg.MaxPollInterval = 15 * time.Second
	}
	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = 120
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Client{
		log:        log.With("service", "ApifyClient"),
		cfg:        cfg,
		baseURL:    base,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
	}, nil
}

type actorRun struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	StatusMessage    string `json:"statusMessage"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

type runEnvelope struct {
	Data actorRun `json:"data"`
}

func (r actorRun) terminal() bool {
	switch r.Status {
	case "SUCCEEDED", "FAILED", "ABORTED", "TIMED-OUT":
		return true
	}
	return false
}

func (c *Client) actor(provider string) (string, error) {
	id := strings.TrimSpace(c.cfg.Actors[provider])
	if id == "" {
		return "", errors.Validation("apify.actor", "no actor configured for provider %q", provider)
	}
	return id, nil
}

// Search runs the actor configured for req.Provider and returns its dataset items.
func (c *Client) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	const op = "apify.Search"
	actorID, err := c.actor(req.Provider)
	if err != nil {
		return nil, err
	}
	input := map[string]any{}
	if len(bytes.TrimSpace(req.Payload)) > 0 {
		if err := json.Unmarshal(req.Payload, &input); err != nil {
			return nil, errors.Validation(op, "search payload must be a JSON object: %v", err)
		}
	}
	if req.MaxPages > 0 {
		setDefault(input, "maxPages", req.MaxPages)
	}
	if req.MaxItems > 0 {
		setDefault(input, "maxItems", req.MaxItems)
	}
	if req.EnrichProfiles {
		setDefault(input, "enrichProfiles", true)
	}

	run, items, err := c.runActor(ctx, actorID, input, req.MaxItems)
	if err != nil {
		return nil, providerError(op, err)
	}
	pages := (len(items) + itemsPerPage - 1) / itemsPerPage
	if req.MaxPages > 0 && pages > req.MaxPages {
		pages = req.MaxPages
	}
	c.log.Info("Apify search finished", "provider", req.Provider, "run_id", run.ID, "items", len(items), "pages", pages)
	return &SearchResult{Items: items, PagesFetched: pages, QueryID: run.ID}, nil
}

// ScrapeProfile scrapes each profile URL; URLs the actor did not return are
// reported as unsuccessful rather than failing the call.
func (c *Client) ScrapeProfile(ctx context.Context, urls []string) (*ScrapeResult, error) {
	const op = "apify.ScrapeProfile"
	if len(urls) == 0 {
		return nil, errors.Validation(op, "no profile urls")
	}
	actorID, err := c.actor(ProviderProfile)
	if err != nil {
		return nil, err
	}
	_, items, err := c.runActor(ctx, actorID, map[string]any{"profileUrls": urls}, 0)
	if err != nil {
		return nil, providerError(op, err)
	}

	byURL := map[string]json.RawMessage{}
	for _, it := range items {
		var probe struct {
			LinkedinURL string `json:"linkedinUrl"`
			URL         string `json:"url"`
			ProfileURL  string `json:"profileUrl"`
		}
		if json.Unmarshal(it, &probe) != nil {
			continue
		}
		for _, raw := range []string{probe.LinkedinURL, probe.ProfileURL, probe.URL} {
			if norm, err := normalization.NormalizeProfileURL(raw); err == nil {
				byURL[norm] = it
				break
			}
		}
	}

	out := &ScrapeResult{}
	for _, u := range urls {
		res := ProfileResult{URL: u}
		norm, err := normalization.NormalizeProfileURL(u)
		switch {
		case err != nil:
			res.Error = err.Error()
		case byURL[norm] != nil:
			res.Success = true
			res.Data = byURL[norm]
		default:
			res.Error = "profile not returned by scraper"
		}
		out.Results = append(out.Results, res)
	}
	return out, nil
}

// providerError keeps poll timeouts distinguishable from provider failures.
func providerError(op string, err error) error {
	if errors.IsCode(err, errors.CodeTimeout) {
		return err
	}
	return errors.ExternalProvider(op, err)
}

func setDefault(m map[string]any, key string, v any) {
	if _, ok := m[key]; !ok {
		m[key] = v
	}
}

func (c *Client) runActor(ctx context.Context, actorID string, input map[string]any, limit int) (*actorRun, []json.RawMessage, error) {
	var started runEnvelope
	path := "/v2/acts/" + url.PathEscape(actorID) + "/runs"
	if err := c.do(ctx, http.MethodPost, path, input, &started); err != nil {
		return nil, nil, errors.Wrap(err, "start actor run")
	}
	run := started.Data
	if run.ID == "" {
		return nil, nil, errors.New("actor run id missing in response")
	}

	if !run.terminal() {
		err := httpx.Poll(ctx, httpx.PollOptions{
			Interval:    c.cfg.PollInterval,
			MaxInterval: c.cfg.MaxPollInterval,
			Multiplier:  1.5,
			MaxAttempts: c.cfg.MaxPollAttempts,
			Timeout:     c.cfg.RunTimeout,
			Jitter:      true,
		}, func(ctx context.Context, attempt int) (bool, error) {
			var env runEnvelope
			if err := c.doOnce(ctx, http.MethodGet, "/v2/actor-runs/"+url.PathEscape(run.ID), nil, &env); err != nil {
				return false, err
			}
			run = env.Data
			return run.terminal(), nil
		})
		if err != nil {
			if httpx.IsPollTimeout(err) {
				return &run, nil, errors.Timeout("apify.wait", err)
			}
			return &run, nil, err
		}
	}
	if run.Status != "SUCCEEDED" {
		return &run, nil, errors.Newf("actor run %s ended %s: %s", run.ID, run.Status, run.StatusMessage)
	}

	q := url.Values{}
	q.Set("format", "json")
	q.Set("clean", "true")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var items []json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/v2/datasets/"+url.PathEscape(run.DefaultDatasetID)+"/items?"+q.Encode(), nil, &items); err != nil {
		return &run, nil, errors.Wrap(err, "fetch dataset items")
	}
	return &run, items, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpx.StatusError{Provider: "apify", Code: resp.StatusCode, Body: string(raw)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, method, path, body, out)
		if err == nil || !httpx.IsRetryableError(err) || attempt >= c.cfg.MaxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("Apify request retrying", "path", path, "attempt", attempt+1, "sleep", sleepFor.String(), "error", err.Error())
		if err := httpx.Sleep(ctx, sleepFor); err != nil {
			return err
		}
		backoff *= 2
	}
}
