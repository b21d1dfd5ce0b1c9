package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/khanhnv2901/headerscope/internal/api"
	"github.com/khanhnv2901/headerscope/internal/application"
	scanapp "github.com/khanhnv2901/headerscope/internal/application/scan"
	"github.com/khanhnv2901/headerscope/internal/checker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const (
	jsonPrefix    = ""
	jsonIndent    = "  "
	scoreBarWidth = 20
)

var scanCmd = &cobra.Command{
	Use:   "scan <url> [url...]",
	Short: "Fetch one or more URLs and grade their security headers",
	Long: `Fetch each URL with browser-like request headers and grade the response
against seven security headers. Targets without a scheme are scanned over https.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		asJSON, _ := cmd.Flags().GetBool("json")
		showProgress, _ := cmd.Flags().GetBool("progress")

		container, err := application.NewContainer(application.Options{
			FetchTimeout: appCtx.Config.Scan.Timeout,
			WAFDetection: appCtx.Config.Scan.WAFDetection,
			Logger:       appCtx.Logger,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var progress *progressPrinter
		if showProgress && len(args) > 1 && !asJSON {
			progress = newProgressPrinter(cmd.ErrOrStderr(), len(args), "scan")
			progress.Start()
		}

		outcomes := runScans(ctx, container.ScanService, args, appCtx.Config.Scan.Concurrency, func(o scanOutcome) {
			if progress != nil {
				progress.Increment(o.Err == nil, o.Duration.Seconds())
			}
		})
		if progress != nil {
			progress.Stop()
		}

		out := cmd.OutOrStdout()
		if asJSON {
			if err := writeScanJSON(out, outcomes); err != nil {
				return err
			}
		} else {
			for i, o := range outcomes {
				if i > 0 {
					fmt.Fprintln(out)
				}
				printOutcome(out, o)
			}
		}

		return scanFailure(outcomes)
	},
}

func init() {
	addScanFlags(scanCmd.Flags())
	scanCmd.Flags().Bool("json", false, "Print results as JSON in the same shape as the HTTP API")
	scanCmd.Flags().Int("concurrency", defaultConcurrency, "Maximum number of targets scanned at once")
	scanCmd.Flags().Bool("progress", true, "Show a progress line on stderr when scanning several targets")
}

// scanOutcome is the result of scanning one command-line target.
type scanOutcome struct {
	Target     string
	Assessment *checker.Assessment
	Err        error
	Duration   time.Duration
}

// runScans scans targets with at most concurrency requests in flight.
// Results keep the order of targets; onDone may be called concurrently.
func runScans(ctx context.Context, scanner api.ScanService, targets []string, concurrency int, onDone func(scanOutcome)) []scanOutcome {
	if concurrency < 1 {
		concurrency = 1
	}
	outcomes := make([]scanOutcome, len(targets))

	var g errgroup.Group
	g.SetLimit(concurrency)

	for i, target := range targets {
		g.Go(func() error {
			start := time.Now()
			assessment, err := scanner.Analyze(ctx, target)
			o := scanOutcome{
				Target:     target,
				Assessment: assessment,
				Err:        err,
				Duration:   time.Since(start),
			}
			outcomes[i] = o
			if onDone != nil {
				onDone(o)
			}
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// errorMessage returns the client-facing text for a scan failure.
func errorMessage(err error) string {
	var serr *scanapp.Error
	if errors.As(err, &serr) {
		return serr.Message
	}
	return err.Error()
}

func scanFailure(outcomes []scanOutcome) error {
	failed := 0
	target := ""
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			target = o.Target
		}
	}
	if failed == 0 {
		return nil
	}
	return &ScanFailedError{Target: target, Failed: failed, Total: len(outcomes)}
}

type scanJSONResult struct {
	URL    string               `json:"url"`
	Result *api.AnalyzeResponse `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// writeScanJSON prints a single target exactly as POST /analyze would answer,
// and several targets as an array of url/result/error objects.
func writeScanJSON(w io.Writer, outcomes []scanOutcome) error {
	var payload interface{}

	if len(outcomes) == 1 {
		o := outcomes[0]
		if o.Err != nil {
			payload = map[string]string{"error": errorMessage(o.Err)}
		} else {
			payload = api.NewAnalyzeResponse(o.Assessment)
		}
	} else {
		items := make([]scanJSONResult, 0, len(outcomes))
		for _, o := range outcomes {
			item := scanJSONResult{URL: o.Target}
			if o.Err != nil {
				item.Error = errorMessage(o.Err)
			} else {
				resp := api.NewAnalyzeResponse(o.Assessment)
				item.Result = &resp
			}
			items = append(items, item)
		}
		payload = items
	}

	data, err := json.MarshalIndent(payload, jsonPrefix, jsonIndent)
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printOutcome(w io.Writer, o scanOutcome) {
	if o.Err != nil {
		fmt.Fprintf(w, "%s %s\n", colorBold(o.Target), colorError("✗ "+errorMessage(o.Err)))
		return
	}
	printAssessment(w, o.Assessment)
}

func printAssessment(w io.Writer, a *checker.Assessment) {
	fmt.Fprintf(w, "%s %s (HTTP %d)\n", colorInfo("→"), colorBold(a.Target), a.StatusCode)
	fmt.Fprintf(w, "  Score: %s %s  Grade: %s  Rating: %s\n",
		formatScoreWithColor(a.Score),
		scoreBar(a.Score, scoreBarWidth),
		colorBold(a.Grade()),
		formatRatingWithColor(a.Rating()),
	)
	if a.WAFSuspected {
		fmt.Fprintf(w, "  %s\n", colorWarn("Firewall suspected: results may not reflect the origin's headers"))
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  \tHEADER\tVALUE")
	for _, f := range a.Findings {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", formatPresence(f.Present), f.Header, f.Value)
	}
	_ = tw.Flush()

	if len(a.Recommendations) == 0 {
		fmt.Fprintf(w, "\n  %s\n", colorSuccess("All security headers are set."))
		return
	}

	fmt.Fprintf(w, "\n  %s\n", colorBold("Recommendations:"))
	for _, rec := range a.Recommendations {
		fmt.Fprintf(w, "  - %s\n", rec)
	}
}
