// Package pipeline drives a geocoding run end to end: read input
// records, resolve each address against the provider, write enriched
// rows, and record the outcome in the run ledger.
package pipeline

import (
	"context"
	"errors"
	"io"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/geocode-cli/internal/model"
	"github.com/sells-group/geocode-cli/internal/resolve"
	"github.com/sells-group/geocode-cli/internal/store"
	"github.com/sells-group/geocode-cli/internal/tabular"
)

// Options describes one run.
type Options struct {
	InputPath  string
	OutputPath string
	Provider   string // recorded in the ledger
	RowLimit   int
	DryRun     bool // build queries without calling the provider or writing output

	Tabular tabular.Options
}

// Pipeline processes input files row by row, single threaded. The
// store may be nil to run without a ledger.
type Pipeline struct {
	resolver *resolve.Resolver
	store    store.Store
}

// New creates a Pipeline.
func New(resolver *resolve.Resolver, st store.Store) *Pipeline {
	return &Pipeline{resolver: resolver, store: st}
}

// Run executes one geocoding run. The returned summary is valid even
// when an error is returned, covering the rows processed before the
// abort. Ledger problems never fail the run; they are logged and the
// run carries on.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*model.Summary, error) {
	if opts.RowLimit <= 0 {
		return nil, eris.New("pipeline: row limit must be positive")
	}

	log := zap.L().With(
		zap.String("input", opts.InputPath),
		zap.String("provider", opts.Provider),
	)

	var run *model.Run
	if p.store != nil && !opts.DryRun {
		created, err := p.store.CreateRun(ctx, model.Run{
			InputPath:  opts.InputPath,
			OutputPath: opts.OutputPath,
			Provider:   opts.Provider,
			RowLimit:   opts.RowLimit,
		})
		if err != nil {
			log.Warn("run ledger unavailable", zap.Error(err))
		} else {
			run = created
			log = log.With(zap.String("run_id", run.ID))
		}
	}

	summary, results, runErr := p.process(ctx, opts, log)
	p.finishRun(ctx, run, summary, results, runErr, log)

	return summary, runErr
}

func (p *Pipeline) process(ctx context.Context, opts Options, log *zap.Logger) (*model.Summary, []model.RowResult, error) {
	summary := &model.Summary{}
	var results []model.RowResult

	reader, err := tabular.Open(opts.InputPath, opts.Tabular)
	if err != nil {
		return summary, nil, eris.Wrap(err, "pipeline: open input")
	}
	defer reader.Close() //nolint:errcheck

	var writer *tabular.Writer
	if !opts.DryRun {
		writer, err = tabular.NewWriter(opts.OutputPath)
		if err != nil {
			return summary, nil, eris.Wrap(err, "pipeline: create output")
		}
		defer writer.Close() //nolint:errcheck

		// Header goes out before any row so a failed run still
		// leaves a well-formed file.
		if err := writer.WriteHeader(); err != nil {
			return summary, nil, eris.Wrap(err, "pipeline: write header")
		}
	}

	for summary.Attempted < opts.RowLimit {
		if ctx.Err() != nil {
			return summary, results, eris.Wrap(ctx.Err(), "pipeline: cancelled")
		}

		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, results, eris.Wrap(err, "pipeline: read input")
		}

		if opts.DryRun {
			summary.Attempted++
			log.Info("would geocode",
				zap.Int("row", rec.Row),
				zap.String("query", resolve.BuildQuery(rec)),
			)
			continue
		}

		summary.Attempted++
		res, resolveErr := p.resolver.Resolve(ctx, rec)

		rowResult := model.RowResult{
			Row:   rec.Row,
			Name:  rec.Get(model.ColName),
			Query: res.Query,
		}

		if resolveErr != nil {
			summary.Failed++
			rowResult.Status = model.RowStatusFailed
			rowResult.Error = resolveErr.Error()
			results = append(results, rowResult)

			if ctx.Err() != nil {
				return summary, results, eris.Wrap(resolveErr, "pipeline: cancelled")
			}
			if p.resolver.FailFast() {
				return summary, results, eris.Wrapf(resolveErr, "pipeline: row %d", rec.Row)
			}
			log.Warn("row failed, continuing",
				zap.Int("row", rec.Row),
				zap.Error(resolveErr),
			)
			continue
		}

		summary.Succeeded++
		rowResult.Status = model.RowStatusOK
		rowResult.MatchAddr = res.Result.MatchedAddress
		rowResult.Lat = res.Result.Latitude
		rowResult.Lon = res.Result.Longitude
		results = append(results, rowResult)

		out := rec.Enriched(
			res.Result.MatchedAddress,
			resolve.FormatCoord(res.Result.Latitude),
			resolve.FormatCoord(res.Result.Longitude),
		)
		if err := writer.Write(out); err != nil {
			return summary, results, eris.Wrapf(err, "pipeline: write row %d", rec.Row)
		}
	}

	if summary.Attempted >= opts.RowLimit {
		log.Info("row limit reached", zap.Int("limit", opts.RowLimit))
	}

	if writer != nil {
		if err := writer.Close(); err != nil {
			return summary, results, eris.Wrap(err, "pipeline: close output")
		}
	}

	log.Info("run complete",
		zap.Int("attempted", summary.Attempted),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary, results, nil
}

// finishRun records row outcomes and the final status. It runs even
// after cancellation so an interrupted run is still visible in the
// ledger.
func (p *Pipeline) finishRun(ctx context.Context, run *model.Run, summary *model.Summary, results []model.RowResult, runErr error, log *zap.Logger) {
	if run == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	if err := p.store.RecordRows(ctx, run.ID, results); err != nil {
		log.Warn("record rows in ledger", zap.Error(err))
	}

	status := model.RunStatusComplete
	errMsg := ""
	if runErr != nil {
		status = model.RunStatusFailed
		errMsg = runErr.Error()
	}
	if err := p.store.FinishRun(ctx, run.ID, status, *summary, errMsg); err != nil {
		log.Warn("finish run in ledger", zap.Error(err))
	}
}
