// Package geocode resolves one-line street addresses to coordinates
// via the Census Geocoder (default), OpenStreetMap Nominatim, or the
// Google Geocoding API.
package geocode

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Provider names accepted by NewClient.
const (
	ProviderCensus    = "census"
	ProviderNominatim = "nominatim"
	ProviderGoogle    = "google"
)

// Client geocodes one-line address queries.
type Client interface {
	// Geocode resolves a single query. A clean no-match is not an
	// error: the returned result has Matched == false.
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Result holds the geocoding output for a query.
type Result struct {
	MatchedAddress string
	Latitude       float64
	Longitude      float64
	Source         string // "census", "nominatim" or "google"
	Quality        string // "rooftop", "range", "centroid", "approximate"
	Matched        bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithGoogleAPIKey sets the Google API key. For non-Google primary
// providers it also enables the Google fallback.
func WithGoogleAPIKey(key string) Option {
	return func(g *geocoder) {
		g.googleKey = key
	}
}

// WithHTTPClient sets a custom HTTP client for all provider requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithMinInterval spaces out provider calls so that consecutive
// request starts are at least d apart. The bucket holds a single
// token, so the first call is immediate and every later call waits
// out the remainder of the interval.
func WithMinInterval(d time.Duration) Option {
	return func(g *geocoder) {
		if d > 0 {
			g.limiter = rate.NewLimiter(rate.Every(d), 1)
		}
	}
}

// WithUserAgent sets the User-Agent header sent to providers.
// Nominatim's usage policy requires an identifying agent.
func WithUserAgent(ua string) Option {
	return func(g *geocoder) {
		if ua != "" {
			g.userAgent = ua
		}
	}
}

type geocoder struct {
	provider   string
	httpClient *http.Client
	googleKey  string
	userAgent  string
	limiter    *rate.Limiter
}

// NewClient creates a geocoding Client backed by the named provider.
func NewClient(provider string, opts ...Option) (Client, error) {
	switch provider {
	case ProviderCensus, ProviderNominatim, ProviderGoogle:
	default:
		return nil, eris.Errorf("geocode: unknown provider %q", provider)
	}

	g := &geocoder{
		provider:   provider,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(2*time.Second), 1),
		userAgent:  "geocode-cli/1.0 (+https://github.com/sells-group/geocode-cli)",
	}
	for _, opt := range opts {
		opt(g)
	}

	if provider == ProviderGoogle && g.googleKey == "" {
		return nil, eris.New("geocode: google provider requires an api key")
	}
	return g, nil
}

// Geocode resolves a query with the primary provider, falling back to
// Google when a key is configured and the primary came up empty. The
// shared limiter gates every outbound call, fallback included. A
// primary transport error is surfaced even when the fallback also
// finds nothing, so callers can classify the failure.
func (g *geocoder) Geocode(ctx context.Context, query string) (*Result, error) {
	var result *Result
	var err error
	switch g.provider {
	case ProviderNominatim:
		result, err = g.geocodeNominatim(ctx, query)
	case ProviderGoogle:
		result, err = g.geocodeGoogle(ctx, query)
	default:
		result, err = g.geocodeCensus(ctx, query)
	}
	if err == nil && result.Matched {
		return result, nil
	}

	if g.googleKey != "" && g.provider != ProviderGoogle {
		googleResult, googleErr := g.geocodeGoogle(ctx, query)
		if googleErr == nil && googleResult.Matched {
			return googleResult, nil
		}
	}

	if err != nil {
		return nil, err
	}
	return result, nil
}
