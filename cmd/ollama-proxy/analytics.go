package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/export"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/query"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/analytics/storage"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/cli"
	"github.com/bmeyer99/Ollama-Proxy-Wrapper/pkg/config"
)

func init() {
	rootCmd.AddCommand(newAnalyticsCmd())
}

// filterFlags are the search filters shared by search and export. They
// map one-to-one onto the HTTP API's query parameters.
type filterFlags struct {
	backend    string
	model      string
	search     string
	category   string
	endpoint   string
	status     string
	since      time.Duration
	startTime  string
	endTime    string
	minTokens  int
	maxTokens  int
	minLatency int
	maxLatency int
	limit      int
	offset     int
}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.backend, "backend", "", "analytics backend (uses config if not specified)")
	fs.StringVar(&f.model, "model", "", "filter by model")
	fs.StringVar(&f.search, "search", "", "substring match on prompt text")
	fs.StringVar(&f.category, "category", "", "filter by prompt category")
	fs.StringVar(&f.endpoint, "endpoint", "", "filter by endpoint (generate, chat, ...)")
	fs.StringVar(&f.status, "status", "", "filter by status (success, error)")
	fs.DurationVar(&f.since, "since", 0, "only records newer than this (e.g. 24h)")
	fs.StringVar(&f.startTime, "start-time", "", "inclusive start (RFC3339 or unix seconds)")
	fs.StringVar(&f.endTime, "end-time", "", "inclusive end (RFC3339 or unix seconds)")
	fs.IntVar(&f.minTokens, "min-tokens", 0, "minimum generated tokens")
	fs.IntVar(&f.maxTokens, "max-tokens", 0, "maximum generated tokens")
	fs.IntVar(&f.minLatency, "min-latency", 0, "minimum latency in milliseconds")
	fs.IntVar(&f.maxLatency, "max-latency", 0, "maximum latency in milliseconds")
	fs.IntVar(&f.limit, "limit", query.DefaultLimit, "max results")
	fs.IntVar(&f.offset, "offset", 0, "pagination offset")
}

// values converts the flags that were set into query parameters.
func (f *filterFlags) values(fs *pflag.FlagSet, now time.Time) url.Values {
	v := url.Values{}
	set := func(key, val string) {
		if val != "" {
			v.Set(key, val)
		}
	}
	setInt := func(flag, key string, val int) {
		if fs.Changed(flag) {
			v.Set(key, strconv.Itoa(val))
		}
	}

	set("model", f.model)
	set("search", f.search)
	set("category", f.category)
	set("endpoint", f.endpoint)
	set("status", f.status)
	set("start_time", f.startTime)
	set("end_time", f.endTime)
	if f.since > 0 && f.startTime == "" {
		v.Set("start_time", now.Add(-f.since).UTC().Format(time.RFC3339))
	}
	setInt("min-tokens", "min_tokens", f.minTokens)
	setInt("max-tokens", "max_tokens", f.maxTokens)
	setInt("min-latency", "min_latency", f.minLatency)
	setInt("max-latency", "max_latency", f.maxLatency)
	v.Set("limit", strconv.Itoa(f.limit))
	v.Set("offset", strconv.Itoa(f.offset))
	return v
}

func newAnalyticsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Query and maintain recorded interactions",
		Long: `Query, export and clean up the interactions recorded by the proxy.

The commands open the configured analytics backend directly, so they work
whether or not the proxy is running. Search and export need a backend with
query support (sqlite or memory).

Subcommands:
  search   - Search interactions with filters
  export   - Export interactions as JSON or CSV
  cleanup  - Delete interactions older than a number of days
  stats    - Summarize recent traffic`,
	}
	cmd.AddCommand(
		newAnalyticsSearchCmd(),
		newAnalyticsExportCmd(),
		newAnalyticsCleanupCmd(),
		newAnalyticsStatsCmd(),
	)
	return cmd
}

func newAnalyticsSearchCmd() *cobra.Command {
	var (
		filters filterFlags
		format  string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search recorded interactions",
		Long: `Search recorded interactions, newest first.

Examples:
  # Last 20 interactions with llama3
  ollama-proxy analytics search --model llama3:8b --limit 20

  # Failed requests in the last day
  ollama-proxy analytics search --status error --since 24h

  # Slow requests as JSON
  ollama-proxy analytics search --min-latency 5000 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := cli.ParseFormat(format)
			if err != nil {
				return cli.NewConfigError("--format", err.Error())
			}

			records, err := searchRecords(cmd.Context(), &filters, filters.values(cmd.Flags(), time.Now()))
			if err != nil {
				return err
			}

			return withOutput(cmd, output, func(w io.Writer) error {
				return cli.WriteRecords(cmd.Context(), w, outFormat, records)
			})
		},
	}

	filters.register(cmd.Flags())
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json, csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newAnalyticsExportCmd() *cobra.Command {
	var (
		filters filterFlags
		format  string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recorded interactions",
		Long: `Export recorded interactions in the same layout as GET /analytics/export.

Examples:
  # Everything from the last week as CSV
  ollama-proxy analytics export --since 168h --limit 10000 --format csv -o week.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exporter, err := export.New(format)
			if err != nil {
				return cli.NewConfigError("--format", err.Error())
			}

			records, err := searchRecords(cmd.Context(), &filters, filters.values(cmd.Flags(), time.Now()))
			if err != nil {
				return err
			}

			err = withOutput(cmd, output, func(w io.Writer) error {
				return exporter.Export(cmd.Context(), records, w)
			})
			if err != nil {
				return cli.NewCommandError("analytics export", err)
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d record(s) to %s\n", len(records), output)
			}
			return nil
		},
	}

	filters.register(cmd.Flags())
	cmd.Flags().StringVar(&format, "format", "json", "export format: json, csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	return cmd
}

func newAnalyticsCleanupCmd() *cobra.Command {
	var (
		backendName string
		days        int
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete interactions older than the retention horizon",
		Long: `Delete interactions older than --days (default: analytics.retention_days).

For the jsonl backend whole day files are removed; other backends delete
individual records.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("days") {
				days = cfg.Analytics.RetentionDays
			}
			if days <= 0 {
				return cli.NewConfigError("--days", "must be greater than zero")
			}

			backend, err := openBackend(cfg, backendName)
			if err != nil {
				return err
			}
			defer backend.Close()

			cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
			deleted, err := backend.Cleanup(cmd.Context(), cutoff)
			if err != nil {
				return cli.NewCommandError("analytics cleanup", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Removed %d %s older than %s (%d days)\n",
				deleted, cleanupUnit(backend.Name()), cutoff.Format(time.RFC3339), days)
			return nil
		},
	}

	cmd.Flags().StringVar(&backendName, "backend", "", "analytics backend (uses config if not specified)")
	cmd.Flags().IntVar(&days, "days", 0, "retention in days")
	return cmd
}

func newAnalyticsStatsCmd() *cobra.Command {
	var (
		backendName string
		hours       int
		format      string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize recent traffic",
		RunE: func(cmd *cobra.Command, args []string) error {
			outFormat, err := cli.ParseFormat(format)
			if err != nil || outFormat == cli.FormatCSV {
				return cli.NewConfigError("--format", "must be text or json")
			}
			if hours <= 0 {
				return cli.NewConfigError("--hours", "must be greater than zero")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			backend, err := openBackend(cfg, backendName)
			if err != nil {
				return err
			}
			defer backend.Close()

			searcher, err := asSearcher(backend, "summary")
			if err != nil {
				return err
			}
			summary, err := searcher.Summary(cmd.Context(), time.Now().Add(-time.Duration(hours)*time.Hour))
			if err != nil {
				return cli.NewCommandError("analytics stats", err)
			}

			if outFormat == cli.FormatJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(summary)
			}
			return writeSummary(cmd.OutOrStdout(), summary, hours)
		},
	}

	cmd.Flags().StringVar(&backendName, "backend", "", "analytics backend (uses config if not specified)")
	cmd.Flags().IntVar(&hours, "hours", 24, "summary window in hours")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text, json")
	return cmd
}

// searchRecords loads config, opens the backend and runs the query.
func searchRecords(ctx context.Context, filters *filterFlags, values url.Values) ([]*analytics.InteractionRecord, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	q, err := query.FromValues(values, query.Limits{
		Default: cfg.Analytics.Query.DefaultLimit,
		Max:     cfg.Analytics.Query.MaxLimit,
	})
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}

	backend, err := openBackend(cfg, filters.backend)
	if err != nil {
		return nil, err
	}
	defer backend.Close()

	searcher, err := asSearcher(backend, "search")
	if err != nil {
		return nil, err
	}

	records, err := searcher.Search(ctx, q)
	if err != nil {
		return nil, cli.NewCommandError("analytics search", err)
	}
	return records, nil
}

func openBackend(cfg *config.Config, override string) (analytics.Backend, error) {
	if override != "" {
		cfg.Analytics.Backend = override
	}
	backend, err := storage.New(&cfg.Analytics)
	if err != nil {
		return nil, cli.NewCommandError("analytics", err)
	}
	return backend, nil
}

func asSearcher(backend analytics.Backend, operation string) (analytics.Searcher, error) {
	searcher, ok := backend.(analytics.Searcher)
	if !ok {
		return nil, cli.NewCommandError("analytics "+operation, analytics.NewCapabilityError(backend.Name(), operation))
	}
	return searcher, nil
}

// withOutput runs write against the named file, or stdout when name is empty.
func withOutput(cmd *cobra.Command, name string, write func(io.Writer) error) error {
	if name == "" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func cleanupUnit(backend string) string {
	if backend == "jsonl" {
		return "day file(s)"
	}
	return "record(s)"
}

func writeSummary(w io.Writer, s *analytics.Summary, hours int) error {
	fmt.Fprintf(w, "Traffic summary (last %dh)\n", hours)
	fmt.Fprintln(w, "=========================")
	fmt.Fprintf(w, "Requests:     %d (%d ok, %d failed)\n", s.TotalRequests, s.SuccessCount, s.ErrorCount)
	fmt.Fprintf(w, "Success rate: %.1f%%\n", s.SuccessRate*100)
	fmt.Fprintf(w, "Avg latency:  %.0f ms\n", s.AvgLatencyMs)
	fmt.Fprintf(w, "Tokens:       %d\n", s.TotalTokens)
	fmt.Fprintf(w, "Est. cost:    $%.4f\n", s.TotalCost)

	if len(s.TopModels) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "By Model:")
		for _, m := range s.TopModels {
			fmt.Fprintf(w, "  %s: %d requests, %d tokens\n", m.Model, m.Requests, m.Tokens)
		}
	}
	if len(s.TopCategories) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "By Category:")
		for _, c := range s.TopCategories {
			fmt.Fprintf(w, "  %s: %d requests\n", c.Category, c.Requests)
		}
	}
	return nil
}
