// Package resolve builds address queries from input records and
// geocodes them according to the run's failure policy.
package resolve

import (
	"context"
	"errors"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocode-cli/internal/model"
	"github.com/sells-group/geocode-cli/internal/resilience"
	"github.com/sells-group/geocode-cli/pkg/geocode"
)

// Failure policies for geocode errors during a run.
const (
	PolicySkip  = "skip"  // log the row as failed and continue
	PolicyFail  = "fail"  // abort the run on the first failure
	PolicyRetry = "retry" // retry transient errors with backoff, then skip
)

// ErrNoMatch reports that the provider found no location for a query.
var ErrNoMatch = errors.New("resolve: address did not match")

// Resolution is the outcome of geocoding a single record. Query is
// always set; Result is nil when the lookup failed.
type Resolution struct {
	Query  string
	Result *geocode.Result
}

// Resolver geocodes records one at a time.
type Resolver struct {
	client geocode.Client
	policy string
	retry  resilience.RetryConfig
}

// New creates a Resolver. The retry config only applies under
// PolicyRetry.
func New(client geocode.Client, policy string, retry resilience.RetryConfig) (*Resolver, error) {
	switch policy {
	case PolicySkip, PolicyFail, PolicyRetry:
	default:
		return nil, eris.Errorf("resolve: unknown failure policy %q", policy)
	}
	return &Resolver{client: client, policy: policy, retry: retry}, nil
}

// FailFast reports whether the first geocode failure should abort the run.
func (r *Resolver) FailFast() bool {
	return r.policy == PolicyFail
}

// Resolve geocodes one record. A provider miss comes back as
// ErrNoMatch so callers can apply the failure policy; the returned
// Resolution keeps the query for logging and the run ledger either
// way. A progress line is emitted after every attempt.
func (r *Resolver) Resolve(ctx context.Context, rec model.Record) (Resolution, error) {
	query := BuildQuery(rec)
	res := Resolution{Query: query}

	geocodeOnce := func(ctx context.Context) (*geocode.Result, error) {
		return r.client.Geocode(ctx, query)
	}

	var result *geocode.Result
	var err error
	if r.policy == PolicyRetry {
		cfg := r.retry
		cfg.OnRetry = resilience.RetryLogger("geocoder", "geocode")
		result, err = resilience.DoVal(ctx, cfg, geocodeOnce)
	} else {
		result, err = geocodeOnce(ctx)
	}

	matched := err == nil && result.Matched
	zap.L().Info("geocoded address",
		zap.Int("row", rec.Row),
		zap.String("query", query),
		zap.Bool("matched", matched),
	)

	if err != nil {
		return res, eris.Wrapf(err, "resolve: row %d", rec.Row)
	}
	if !result.Matched {
		return res, eris.Wrapf(ErrNoMatch, "resolve: row %d query %q", rec.Row, query)
	}
	res.Result = result
	return res, nil
}

// FormatCoord renders a coordinate for CSV output without losing
// precision.
func FormatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
