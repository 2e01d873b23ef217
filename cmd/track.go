package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/soralab/gh-productivity/internal/domain"
	"github.com/soralab/gh-productivity/internal/gateway"
	"github.com/soralab/gh-productivity/internal/repofilter"
	"github.com/soralab/gh-productivity/internal/report"
	"github.com/soralab/gh-productivity/internal/snapshot"
	"github.com/soralab/gh-productivity/internal/usecase"
	"github.com/soralab/gh-productivity/internal/viz"
)

var trackCmd = &cobra.Command{
	Use:   "track",
	Short: "Collects a user's activity and renders the reports",
	Long: `Collects the tracked user's commits, pull requests, reviews and
issues across every repository of an organization (or the user's own
repositories with --personal) within the chosen timeframe, then prints a
console report, writes a text summary and saves a JSON snapshot. Optional
SVG visualizations are generated with --heatmap and --timeline.`,
	RunE: runTrack,
}

func init() {
	rootCmd.AddCommand(trackCmd)
	f := trackCmd.Flags()
	f.StringP("username", "u", "", "GitHub username to track (or GITHUB_USERNAME)")
	f.StringP("organization", "o", "", "GitHub organization name (or GITHUB_ORGANIZATION)")
	f.Bool("personal", false, "Track the user's own repositories instead of an organization's")
	addCollectionFlags(trackCmd)
	f.String("output", "", "Snapshot file path (default: outputs/<user>/...)")
	f.Bool("heatmap", false, "Generate the commit heatmap SVG")
	f.Bool("timeline", false, "Generate the daily timeline SVG")
	f.String("viz-output", "", "Directory for visualization files (default: outputs/<user>)")
}

// addCollectionFlags registers the flags every collecting command shares.
func addCollectionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("timeframe", "t", domain.Preset1Week, "Timeframe preset: 3days, 1week, 1month or custom")
	f.String("start-date", "", "Custom start date (YYYY-MM-DD), required with --timeframe custom")
	f.String("end-date", "", "Custom end date (YYYY-MM-DD), required with --timeframe custom")
	f.String("token", "", "GitHub personal access token (or GITHUB_TOKEN)")
	f.Bool("include-prs", false, "Include pull request metrics")
	f.Bool("include-reviews", false, "Include code review metrics")
	f.Bool("include-issues", false, "Include issue creation metrics")
	f.Bool("include-lines", false, "Include lines-of-code metrics (one extra call per commit)")
	f.Bool("all", false, "Include all available metrics")
	f.String("repoignore", ".repoignore", "Path to the repository ignore file")
	f.Int("branch-concurrency", 0, "Parallel branch fetches per repository (default 3)")
	f.Int("repo-concurrency", 0, "Parallel repositories in the commit phase (default 5)")
}

func runTrack(cmd *cobra.Command, args []string) error {
	opts, err := collectionOptions(cmd)
	if err != nil {
		return err
	}
	personal, _ := cmd.Flags().GetBool("personal")
	if personal {
		opts.organization = ""
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	collector, user, err := setup(ctx, opts)
	if err != nil {
		return err
	}

	progress := report.NewProgress(nil)
	if !opts.verbose {
		collector.SetProgress(progress)
	}

	result, err := collector.Run(ctx, usecase.Config{
		Username:     user,
		Organization: opts.organization,
		Personal:     personal,
		Window:       opts.window,
		Metrics:      opts.metrics,
		Ignore:       opts.ignore,
		Concurrency:  opts.concurrency,
	})
	progress.Stop()
	if err != nil {
		return err
	}

	info := report.RunInfo{
		User:         user,
		Organization: opts.organization,
		Personal:     personal,
		Metrics:      opts.metrics,
	}
	report.NewConsole(nil).Render(info, result)

	scope := snapshot.ScopeOrganization
	if personal {
		scope = snapshot.ScopePersonal
	}
	outputPath, _ := cmd.Flags().GetString("output")
	writer := snapshot.NewWriter("")
	savedTo, err := writer.WriteRun(user, scope, opts.organization, outputPath, result)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	pterm.Success.Printfln("Snapshot saved to %s", savedTo)

	summaryDir := filepath.Join(snapshot.DefaultBaseDir, user)
	summaryPath, err := report.WriteTextSummary(summaryDir, info, result, time.Now())
	if err != nil {
		return fmt.Errorf("writing text summary: %w", err)
	}
	pterm.Success.Printfln("Text summary saved to %s", summaryPath)

	return writeVisualizations(cmd, user, result)
}

func writeVisualizations(cmd *cobra.Command, user string, result *domain.AggregateResult) error {
	heatmap, _ := cmd.Flags().GetBool("heatmap")
	timeline, _ := cmd.Flags().GetBool("timeline")
	if !heatmap && !timeline {
		return nil
	}

	dir, _ := cmd.Flags().GetString("viz-output")
	if dir == "" {
		dir = filepath.Join(snapshot.DefaultBaseDir, user)
	}
	date := time.Now().UTC().Format("2006-01-02")

	if heatmap {
		path := filepath.Join(dir, fmt.Sprintf("productivity_heatmap_%s_%s.svg", user, date))
		if err := viz.WriteHeatmap(path, user, result); err != nil {
			return fmt.Errorf("generating heatmap: %w", err)
		}
		pterm.Success.Printfln("Heatmap saved to %s", path)
	}
	if timeline {
		path := filepath.Join(dir, fmt.Sprintf("commit_timeline_%s_%s.svg", user, date))
		if err := viz.WriteTimeline(path, user, result); err != nil {
			return fmt.Errorf("generating timeline: %w", err)
		}
		pterm.Success.Printfln("Timeline saved to %s", path)
	}
	return nil
}

// options is the fully resolved configuration shared by the collecting
// commands: flags first, then environment.
type options struct {
	verbose      bool
	token        string
	username     string
	organization string
	window       domain.TimeWindow
	metrics      domain.MetricSet
	ignore       *repofilter.Filter
	concurrency  usecase.Concurrency
	logger       *log.Logger
}

func collectionOptions(cmd *cobra.Command) (*options, error) {
	opts := &options{}
	opts.verbose, _ = cmd.InheritedFlags().GetBool("verbose")
	opts.logger = log.New(io.Discard, "", log.LstdFlags)
	if opts.verbose {
		opts.logger.SetOutput(os.Stderr)
	}

	opts.token = stringFlagOrEnv(cmd, "token", "GITHUB_TOKEN")
	if opts.token == "" {
		return nil, &domain.CollectionError{
			Kind:  domain.KindConfiguration,
			Cause: errors.New("a GitHub token is required: pass --token or set GITHUB_TOKEN"),
		}
	}
	opts.username = stringFlagOrEnv(cmd, "username", "GITHUB_USERNAME")
	opts.organization = stringFlagOrEnv(cmd, "organization", "GITHUB_ORGANIZATION")

	timeframe, _ := cmd.Flags().GetString("timeframe")
	startDate, _ := cmd.Flags().GetString("start-date")
	endDate, _ := cmd.Flags().GetString("end-date")
	window, err := domain.NewWindow(timeframe, startDate, endDate, time.Now())
	if err != nil {
		return nil, &domain.CollectionError{Kind: domain.KindConfiguration, Cause: err}
	}
	opts.window = window

	all, _ := cmd.Flags().GetBool("all")
	prs, _ := cmd.Flags().GetBool("include-prs")
	reviews, _ := cmd.Flags().GetBool("include-reviews")
	issues, _ := cmd.Flags().GetBool("include-issues")
	lines, _ := cmd.Flags().GetBool("include-lines")
	opts.metrics = domain.MetricSet{
		PullRequests: prs || all,
		Reviews:      reviews || all,
		Issues:       issues || all,
		Lines:        lines || all,
	}

	ignorePath, _ := cmd.Flags().GetString("repoignore")
	opts.ignore, err = loadIgnore(ignorePath, opts.logger)
	if err != nil {
		return nil, err
	}

	opts.concurrency.Branches, _ = cmd.Flags().GetInt("branch-concurrency")
	opts.concurrency.Repos, _ = cmd.Flags().GetInt("repo-concurrency")
	return opts, nil
}

func stringFlagOrEnv(cmd *cobra.Command, flag, env string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	return os.Getenv(env)
}

// setup builds the gateway and collector and resolves the target user,
// defaulting to the token's own login when no username was given.
func setup(ctx context.Context, opts *options) (*usecase.Collector, string, error) {
	gw, err := gateway.NewGitHubGateway(opts.token, opts.logger)
	if err != nil {
		return nil, "", fmt.Errorf("creating GitHub gateway: %w", err)
	}

	login, err := gw.CheckAuth(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("verifying token: %w", err)
	}
	user := opts.username
	if user == "" {
		user = login
		opts.logger.Printf("No username given, tracking the authenticated user %s.", user)
	}

	return usecase.NewCollector(gw, opts.logger), user, nil
}

// loadIgnore reads the ignore file; a missing file just means nothing is
// ignored.
func loadIgnore(path string, logger *log.Logger) (*repofilter.Filter, error) {
	f, err := repofilter.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return repofilter.Compile(nil), nil
		}
		return nil, fmt.Errorf("loading ignore file: %w", err)
	}
	logger.Printf("Loaded %d ignore patterns from %s.", f.Len(), path)
	return f, nil
}

// signalContext cancels the returned context on the first interrupt so
// in-flight units can finish; a second interrupt force-exits.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupt received, letting in-flight requests finish... (press Ctrl-C again to force quit)")
		cancel()
		if sig == syscall.SIGTERM {
			return
		}
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nForce quitting...")
		os.Exit(130)
	}()
	return ctx, cancel
}
