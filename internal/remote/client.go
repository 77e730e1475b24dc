// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package remote talks to the disease-detection history API: it pushes
// locally recorded scans and reads the user's server-side history through
// a time-bounded local cache.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/leafscan/internal/httputil"
	"github.com/pdiddy/leafscan/internal/store"
	"github.com/pdiddy/leafscan/pkg/types"
)

const (
	historyPath = "/api/disease-detection/history"

	// HistoryCachePrefix prefixes every cached history response. Deleting
	// the prefix invalidates all cached history pages.
	HistoryCachePrefix = "diseaseHistory:"

	defaultHistoryTTL = 24 * time.Hour
	defaultTimeout    = 15 * time.Second
	defaultUserAgent  = "leafscan/0.1"
)

// ErrNotConfigured reports a client without a base URL.
var ErrNotConfigured = errors.New("remote endpoint not configured")

// APIError is a non-2xx response from the history API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("history API returned %d: %s", e.Status, e.Message)
}

// HistoryItem is one server-side history entry.
type HistoryItem struct {
	ID              int64    `json:"id" yaml:"id"`
	CropType        string   `json:"crop_type" yaml:"crop_type"`
	DiseaseName     string   `json:"disease_name,omitempty" yaml:"disease_name,omitempty"`
	ConfidenceScore float64  `json:"confidence_score,omitempty" yaml:"confidence_score,omitempty"`
	Severity        string   `json:"severity,omitempty" yaml:"severity,omitempty"`
	Symptoms        []string `json:"symptoms,omitempty" yaml:"symptoms,omitempty"`
	Treatment       []string `json:"treatment,omitempty" yaml:"treatment,omitempty"`
	Prevention      []string `json:"prevention,omitempty" yaml:"prevention,omitempty"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	IsVerified      bool     `json:"is_verified" yaml:"is_verified"`
	ExpertComment   string   `json:"expert_comment,omitempty" yaml:"expert_comment,omitempty"`
	CreatedAt       string   `json:"created_at" yaml:"created_at"`
}

// HistoryPage is the result of a history read.
type HistoryPage struct {
	Items []HistoryItem

	// Cached is true when Items came from the local cache.
	Cached bool

	// Stale is true when the network read failed and an expired cache
	// entry was served instead.
	Stale bool
}

// scanPayload is the wire form of a pushed scan.
type scanPayload struct {
	ClientID        string  `json:"client_id"`
	UserID          string  `json:"user_id,omitempty"`
	CreatedAt       string  `json:"created_at"`
	ImageURI        string  `json:"image_uri,omitempty"`
	CropType        string  `json:"crop_type"`
	DiseaseName     string  `json:"disease_name"`
	ConfidenceScore float64 `json:"confidence_score"`
	Severity        string  `json:"severity"`
	Health          string  `json:"health"`
}

// Client calls the history API.
type Client struct {
	baseURL    string
	http       *http.Client
	userAgent  string
	maxRetries int
	ttl        time.Duration
	cache      store.Store
	log        logrus.FieldLogger
	now        func() time.Time

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithCache enables the history read cache.
func WithCache(s store.Store) Option {
	return func(c *Client) { c.cache = s }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithLogger sets the client logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Client) { c.log = l }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithClock replaces the time source used for cache freshness.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New returns a Client for cfg.BaseURL.
func New(cfg types.SyncConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	ttl := cfg.HistoryTTL
	if ttl <= 0 {
		ttl = defaultHistoryTTL
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		userAgent:  ua,
		maxRetries: cfg.MaxRetries,
		ttl:        ttl,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.log = l
	}
	return c
}

// SetToken replaces the bearer token, as after a login.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// HistoryCacheKey returns the cache key of a history page.
func HistoryCacheKey(limit int) string {
	return HistoryCachePrefix + "limit:" + strconv.Itoa(limit)
}

// PushScan sends one local scan record to the history endpoint.
func (c *Client) PushScan(ctx context.Context, rec types.ScanRecord) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(scanPayload{
		ClientID:        rec.ID,
		UserID:          rec.UserID,
		CreatedAt:       rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		ImageURI:        rec.ImageURI,
		CropType:        rec.CropType,
		DiseaseName:     rec.DiseaseName,
		ConfidenceScore: rec.ConfidenceScore,
		Severity:        string(rec.Severity),
		Health:          string(rec.Health),
	})
	if err != nil {
		return fmt.Errorf("encoding scan %s: %w", rec.ID, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, historyPath, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.maxRetries)
	if err != nil {
		return fmt.Errorf("pushing scan %s: %w", rec.ID, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return fmt.Errorf("pushing scan %s: %w", rec.ID, err)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// History returns the newest limit server-side history entries. A fresh
// cache entry is returned without a network call; on a network failure an
// expired cache entry is served as stale.
func (c *Client) History(ctx context.Context, limit int) (HistoryPage, error) {
	if limit <= 0 {
		limit = 20
	}
	key := HistoryCacheKey(limit)

	cached, hasCached := c.readCache(ctx, key)
	if hasCached && !cached.entry.IsExpired(c.now()) {
		c.log.WithField("key", key).Debug("history cache hit")
		return HistoryPage{Items: cached.items, Cached: true}, nil
	}

	items, raw, err := c.fetchHistory(ctx, limit)
	if err != nil {
		if hasCached {
			c.log.WithError(err).WithField("key", key).Warn("history fetch failed, serving stale cache")
			return HistoryPage{Items: cached.items, Cached: true, Stale: true}, nil
		}
		return HistoryPage{}, err
	}

	if c.cache != nil {
		ttl := int64(c.ttl / time.Second)
		entry := types.CacheEntry{Key: key, JSON: string(raw), UpdatedAt: c.now(), TTLSeconds: &ttl}
		if err := c.cache.SetCache(context.WithoutCancel(ctx), entry); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("caching history failed")
		}
	}
	return HistoryPage{Items: items}, nil
}

type cachedHistory struct {
	entry types.CacheEntry
	items []HistoryItem
}

func (c *Client) readCache(ctx context.Context, key string) (cachedHistory, bool) {
	if c.cache == nil {
		return cachedHistory{}, false
	}
	entry, ok, err := c.cache.GetCache(ctx, key)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("reading history cache failed")
		return cachedHistory{}, false
	}
	if !ok {
		return cachedHistory{}, false
	}
	var items []HistoryItem
	if err := json.Unmarshal([]byte(entry.JSON), &items); err != nil {
		c.log.WithError(err).WithField("key", key).Debug("ignoring unreadable history cache entry")
		return cachedHistory{}, false
	}
	return cachedHistory{entry: entry, items: items}, true
}

func (c *Client) fetchHistory(ctx context.Context, limit int) ([]HistoryItem, []byte, error) {
	if c.baseURL == "" {
		return nil, nil, ErrNotConfigured
	}
	req, err := c.newRequest(ctx, http.MethodGet, historyPath+"?limit="+strconv.Itoa(limit), nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.maxRetries)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching history: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, nil, fmt.Errorf("fetching history: %w", err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading history: %w", err)
	}
	var items []HistoryItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, fmt.Errorf("decoding history: %w", err)
	}
	return items, raw, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// checkStatus turns a non-2xx response into an *APIError, preferring the
// "detail" field of a JSON error body.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := http.StatusText(resp.StatusCode)
	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Detail != "" {
		msg = payload.Detail
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
