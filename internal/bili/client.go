// Package bili is the upstream video-platform API client: WBI request
// signing, a single rate-limited dispatcher with retry/backoff, an error
// taxonomy for the {code, message, data} JSON envelope, and thin domain
// operations (profile, recent videos, summaries, subtitles) on top.
package bili

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"bilifeed/internal/cache"
)

const (
	apiBase        = "https://api.bilibili.com"
	defaultReferer = "https://www.bilibili.com/"
	defaultUA      = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

// Config holds client parameters. The code sets are configuration rather
// than constants: the upstream introduces new codes over time and their
// severity class is empirical, not contractual.
type Config struct {
	// APIBase overrides the upstream origin (tests point it at httptest).
	APIBase string
	// Credential is the opaque session token (SESSDATA). Empty means
	// anonymous mode — a supported first-class path, not a failure state.
	Credential string
	UserAgent  string
	Referer    string

	MinInterval    time.Duration // spacing between outbound requests
	MaxRetries     int           // retries after the first attempt
	BaseDelay      time.Duration // backoff base, doubled per attempt
	RetryableCodes []int         // transient/rate-limited upstream codes
	AuthCodes      []int         // credential-missing/rejected codes

	KeyTTL      time.Duration // signing key pair lifetime
	ArtifactTTL time.Duration // summary/subtitle cache TTL

	HTTPClient *http.Client
	Cache      cache.Store // nil disables artifact caching
}

// DefaultConfig returns the empirically derived upstream parameters.
func DefaultConfig() Config {
	return Config{
		APIBase:        apiBase,
		UserAgent:      defaultUA,
		Referer:        defaultReferer,
		MinInterval:    500 * time.Millisecond,
		MaxRetries:     2,
		BaseDelay:      time.Second,
		RetryableCodes: []int{-799, -352, -503, -412},
		AuthCodes:      []int{-101, -111},
		KeyTTL:         time.Hour,
		ArtifactTTL:    24 * time.Hour,
	}
}

// Client is the single gate through which every upstream call passes.
// All mutable state (rate gate, signing key cache) lives on the struct, so
// independent clients in tests share nothing.
type Client struct {
	cfg       Config
	http      *http.Client
	gate      *rate.Limiter
	retryable map[int]bool
	auth      map[int]bool
	store     cache.Store

	keyMu sync.Mutex
	keys  signingKeys

	lastSuccess atomic.Int64 // unix seconds; observability only
}

// New builds a Client from cfg, filling zero fields from DefaultConfig.
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.APIBase == "" {
		cfg.APIBase = def.APIBase
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Referer == "" {
		cfg.Referer = def.Referer
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = def.MinInterval
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.RetryableCodes == nil {
		cfg.RetryableCodes = def.RetryableCodes
	}
	if cfg.AuthCodes == nil {
		cfg.AuthCodes = def.AuthCodes
	}
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = def.KeyTTL
	}
	if cfg.ArtifactTTL <= 0 {
		cfg.ArtifactTTL = def.ArtifactTTL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     60 * time.Second,
			},
		}
	}

	c := &Client{
		cfg:       cfg,
		http:      cfg.HTTPClient,
		gate:      rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		retryable: make(map[int]bool, len(cfg.RetryableCodes)),
		auth:      make(map[int]bool, len(cfg.AuthCodes)),
		store:     cfg.Cache,
	}
	for _, code := range cfg.RetryableCodes {
		c.retryable[code] = true
	}
	for _, code := range cfg.AuthCodes {
		c.auth[code] = true
	}
	return c
}

// LastSuccess returns the time of the most recent successful dispatch,
// or the zero time if none yet.
func (c *Client) LastSuccess() time.Time {
	ts := c.lastSuccess.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}
