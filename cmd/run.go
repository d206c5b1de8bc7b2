package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/geocode-cli/internal/pipeline"
	"github.com/sells-group/geocode-cli/internal/resilience"
	"github.com/sells-group/geocode-cli/internal/resolve"
	"github.com/sells-group/geocode-cli/internal/store"
	"github.com/sells-group/geocode-cli/internal/tabular"
	"github.com/sells-group/geocode-cli/pkg/geocode"
)

var (
	runInput         string
	runOutput        string
	runLimit         int
	runDelay         time.Duration
	runProvider      string
	runFailurePolicy string
	runDelimiter     string
	runEncoding      string
	runFieldmap      string
	runSheet         string
	runDryRun        bool
	runNoLedger      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Geocode a delimited address file",
	Long: `Reads NAME/DBA/STADDR/STADDR2/CITY/STATE/ZIP rows from a CSV or XLSX file,
geocodes each address, and writes the enriched rows to a new CSV.

Examples:
  # Geocode the first 5 rows of schools.csv
  geocode-cli run --input schools.csv --output schools-geo.csv

  # Tab-delimited input, 100 rows, faster pacing
  geocode-cli run --input plants.tsv --delimiter tab --limit 100 --delay 500ms

  # Preview the queries without calling the provider
  geocode-cli run --input schools.csv --dry-run`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if runOutput == "" && !runDryRun {
			return eris.New("run: --output is required unless --dry-run")
		}

		log := zap.L().With(zap.String("command", "run"))

		// Flags override config where set.
		provider := cfg.Geocoder.Provider
		if runProvider != "" {
			provider = runProvider
		}
		limit := cfg.Run.Limit
		if cmd.Flags().Changed("limit") {
			limit = runLimit
		}
		delay := time.Duration(cfg.Geocoder.DelayMs) * time.Millisecond
		if cmd.Flags().Changed("delay") {
			delay = runDelay
		}
		policy := cfg.Run.FailurePolicy
		if runFailurePolicy != "" {
			policy = runFailurePolicy
		}

		tabOpts, err := tabularOptions()
		if err != nil {
			return err
		}

		client, err := geocode.NewClient(provider,
			geocode.WithMinInterval(delay),
			geocode.WithGoogleAPIKey(cfg.Geocoder.GoogleAPIKey),
			geocode.WithUserAgent(cfg.Geocoder.UserAgent),
			geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Geocoder.TimeoutSecs) * time.Second}),
		)
		if err != nil {
			return eris.Wrap(err, "run: init geocoder")
		}

		resolver, err := resolve.New(client, policy,
			resilience.FromRetryConfig(cfg.Run.Retry.MaxAttempts, cfg.Run.Retry.InitialBackoffMs))
		if err != nil {
			return eris.Wrap(err, "run: init resolver")
		}

		// The ledger is best-effort: a broken database must not block geocoding.
		var st store.Store
		if !runNoLedger && !runDryRun {
			st, err = initStore(ctx)
			if err != nil {
				log.Warn("run ledger unavailable, continuing without it", zap.Error(err))
			} else {
				defer st.Close() //nolint:errcheck
				if migErr := st.Migrate(ctx); migErr != nil {
					log.Warn("run ledger migration failed, continuing without it", zap.Error(migErr))
					st = nil
				}
			}
		}

		p := pipeline.New(resolver, st)
		summary, runErr := p.Run(ctx, pipeline.Options{
			InputPath:  runInput,
			OutputPath: runOutput,
			Provider:   provider,
			RowLimit:   limit,
			DryRun:     runDryRun,
			Tabular:    tabOpts,
		})

		// Partial counts still print when the run aborts early.
		if summary != nil {
			fmt.Printf("Geocoding complete: %d attempted, %d geocoded, %d failed\n",
				summary.Attempted, summary.Succeeded, summary.Failed)
		}
		if runErr != nil {
			return eris.Wrap(runErr, "run")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runInput, "input", "", "path to the input CSV or XLSX file (required)")
	runCmd.Flags().StringVar(&runOutput, "output", "", "path for the enriched output CSV")
	runCmd.Flags().IntVar(&runLimit, "limit", 5, "max rows to geocode")
	runCmd.Flags().DurationVar(&runDelay, "delay", 2*time.Second, "min spacing between provider calls")
	runCmd.Flags().StringVar(&runProvider, "provider", "", "geocoding provider: census, nominatim, or google (default from config)")
	runCmd.Flags().StringVar(&runFailurePolicy, "failure-policy", "", "row failure policy: skip, fail, or retry (default from config)")
	runCmd.Flags().StringVar(&runDelimiter, "delimiter", "", "input field delimiter: comma, tab, semicolon, or pipe (default from config)")
	runCmd.Flags().StringVar(&runEncoding, "encoding", "", "input text encoding, e.g. utf-8, latin1 (default from config)")
	runCmd.Flags().StringVar(&runFieldmap, "fieldmap", "", "YAML file mapping source headers to the canonical columns")
	runCmd.Flags().StringVar(&runSheet, "sheet", "", "worksheet name for XLSX input (default: first sheet)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "build queries and log them, skip the provider and output")
	runCmd.Flags().BoolVar(&runNoLedger, "no-ledger", false, "skip recording the run in the ledger database")
	_ = runCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(runCmd)
}

// tabularOptions merges input flags over config into reader options.
func tabularOptions() (tabular.Options, error) {
	delim := cfg.Input.Delimiter
	if runDelimiter != "" {
		delim = runDelimiter
	}
	r, err := parseDelimiter(delim)
	if err != nil {
		return tabular.Options{}, err
	}

	encoding := cfg.Input.Encoding
	if runEncoding != "" {
		encoding = runEncoding
	}

	opts := tabular.Options{
		Delimiter: r,
		Encoding:  encoding,
		SheetName: runSheet,
	}

	fmPath := cfg.Input.Fieldmap
	if runFieldmap != "" {
		fmPath = runFieldmap
	}
	if fmPath != "" {
		fm, err := tabular.LoadFieldMap(fmPath)
		if err != nil {
			return tabular.Options{}, eris.Wrap(err, "run: load fieldmap")
		}
		opts.FieldMap = fm
	}

	return opts, nil
}

// parseDelimiter maps a delimiter name or literal to its rune. Empty means comma.
func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", ",", "comma":
		return ',', nil
	case "\t", "tab":
		return '\t', nil
	case ";", "semicolon":
		return ';', nil
	case "|", "pipe":
		return '|', nil
	}
	if runes := []rune(s); len(runes) == 1 {
		return runes[0], nil
	}
	return 0, eris.Errorf("run: invalid delimiter %q", s)
}
