package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"mercator-hq/sentinel/pkg/cli"
	"mercator-hq/sentinel/pkg/proxy/middleware"
)

var benchFlags struct {
	target      string
	requests    int
	concurrency int
	apiKey      string
	timeout     time.Duration
	format      string
}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Send a burst of requests and report admission outcomes",
	Long: `Send a fixed number of requests to a running gateway and report how many
were admitted, denied with 429 or bypassed through the whitelist.

All requests come from this host, so without --api-key they share one
anonymous client and the burst shows where its limits kick in.

Examples:
  # 100 requests, 10 at a time
  sentinel bench --target http://localhost:8080/api/chatbot/ask

  # As an authenticated client
  sentinel bench --requests 500 --concurrency 20 --api-key $KEY`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)

	benchCmd.Flags().StringVar(&benchFlags.target, "target", "http://127.0.0.1:8080/api/chatbot/ask", "URL to request")
	benchCmd.Flags().IntVar(&benchFlags.requests, "requests", 100, "total requests")
	benchCmd.Flags().IntVar(&benchFlags.concurrency, "concurrency", 10, "requests in flight")
	benchCmd.Flags().StringVar(&benchFlags.apiKey, "api-key", "", "API key sent as X-API-Key")
	benchCmd.Flags().DurationVar(&benchFlags.timeout, "timeout", 10*time.Second, "per-request timeout")
	benchCmd.Flags().StringVar(&benchFlags.format, "format", "text", "output format: text, json, csv")
}

type benchOptions struct {
	Target      string
	Requests    int
	Concurrency int
	APIKey      string
	Timeout     time.Duration
}

type benchResults struct {
	Total      int
	Allowed    int64
	Denied     int64
	Bypassed   int64
	Errors     int64
	RetryAfter string
	Duration   time.Duration
	latencies  []time.Duration
}

// Percentile returns the p-th latency percentile, p in [0, 100].
func (r *benchResults) Percentile(p float64) time.Duration {
	if len(r.latencies) == 0 {
		return 0
	}
	idx := int(float64(len(r.latencies)-1) * p / 100)
	return r.latencies[idx]
}

func (r *benchResults) Table() *cli.Table {
	rps := 0.0
	if r.Duration > 0 {
		rps = float64(r.Total) / r.Duration.Seconds()
	}

	table := &cli.Table{Headers: []string{"METRIC", "VALUE"}}
	table.AddRow("requests", r.Total)
	table.AddRow("allowed", r.Allowed)
	table.AddRow("denied", r.Denied)
	table.AddRow("bypassed", r.Bypassed)
	table.AddRow("errors", r.Errors)
	if r.RetryAfter != "" {
		table.AddRow("first_retry_after", r.RetryAfter+"s")
	}
	table.AddRow("duration", r.Duration.Round(time.Millisecond))
	table.AddRow("throughput", fmt.Sprintf("%.1f req/s", rps))
	table.AddRow("latency_p50", r.Percentile(50))
	table.AddRow("latency_p95", r.Percentile(95))
	table.AddRow("latency_p99", r.Percentile(99))
	if n := len(r.latencies); n > 0 {
		table.AddRow("latency_max", r.latencies[n-1])
	}
	return table
}

func runBench(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseFormat(benchFlags.format)
	if err != nil {
		return err
	}

	opts := benchOptions{
		Target:      benchFlags.target,
		Requests:    benchFlags.requests,
		Concurrency: benchFlags.concurrency,
		APIKey:      benchFlags.apiKey,
		Timeout:     benchFlags.timeout,
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatText {
		fmt.Fprintln(out, "Sentinel Bench")
		fmt.Fprintln(out, "==============")
		fmt.Fprintf(out, "Target: %s\n", opts.Target)
		fmt.Fprintf(out, "Requests: %d\n", opts.Requests)
		fmt.Fprintf(out, "Concurrency: %d\n\n", opts.Concurrency)
	}

	progress := cli.NewProgressReporter(cmd.ErrOrStderr(), "Requests")
	results, err := bench(cmd.Context(), opts, progress)
	if err != nil {
		return cli.NewCommandError("bench", err)
	}

	return cli.NewFormatter(format).FormatTo(out, results.Table())
}

// bench sends opts.Requests requests and classifies each response. Transport
// failures are counted, not returned.
func bench(ctx context.Context, opts benchOptions, progress cli.ProgressReporter) (*benchResults, error) {
	if opts.Requests <= 0 {
		return nil, fmt.Errorf("requests must be positive, got %d", opts.Requests)
	}
	if opts.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", opts.Concurrency)
	}
	if u, err := url.Parse(opts.Target); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid target URL %q", opts.Target)
	}

	client := &http.Client{Timeout: opts.Timeout}
	results := &benchResults{
		Total:     opts.Requests,
		latencies: make([]time.Duration, 0, opts.Requests),
	}

	var (
		mu        sync.Mutex
		completed atomic.Int64
	)

	progress.Start(int64(opts.Requests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	start := time.Now()
	for i := 0; i < opts.Requests; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			defer func() { progress.Update(completed.Add(1)) }()

			req, err := http.NewRequestWithContext(gctx, http.MethodGet, opts.Target, nil)
			if err != nil {
				return err
			}
			if opts.APIKey != "" {
				req.Header.Set("X-API-Key", opts.APIKey)
			}

			reqStart := time.Now()
			resp, err := client.Do(req)
			latency := time.Since(reqStart)
			if err != nil {
				atomic.AddInt64(&results.Errors, 1)
				return nil
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			mu.Lock()
			results.latencies = append(results.latencies, latency)
			if resp.StatusCode == http.StatusTooManyRequests && results.RetryAfter == "" {
				results.RetryAfter = resp.Header.Get("Retry-After")
			}
			mu.Unlock()

			switch {
			case resp.StatusCode == http.StatusTooManyRequests:
				atomic.AddInt64(&results.Denied, 1)
			case resp.Header.Get(middleware.HeaderBypass) != "":
				atomic.AddInt64(&results.Bypassed, 1)
			case resp.StatusCode >= 500:
				atomic.AddInt64(&results.Errors, 1)
			default:
				atomic.AddInt64(&results.Allowed, 1)
			}
			return nil
		})
	}

	err := g.Wait()
	results.Duration = time.Since(start)
	if err != nil {
		progress.Error(err)
		return nil, err
	}
	if ctx.Err() != nil {
		progress.Error(ctx.Err())
		return nil, ctx.Err()
	}
	progress.Finish()

	sort.Slice(results.latencies, func(i, j int) bool {
		return results.latencies[i] < results.latencies[j]
	})
	return results, nil
}
