package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/soralab/gh-productivity/internal/domain"
	"github.com/soralab/gh-productivity/internal/report"
	"github.com/soralab/gh-productivity/internal/snapshot"
	"github.com/soralab/gh-productivity/internal/usecase"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compares organization and personal activity",
	Long: `Runs the collection pipeline twice over the same timeframe, once
against the organization's repositories and once against the user's own,
then reports the differences per metric and the activity split between the
two scopes. The comparison and its ratio summary are saved as JSON.`,
	RunE: runCompare,
}

func init() {
	rootCmd.AddCommand(compareCmd)
	f := compareCmd.Flags()
	f.StringP("username", "u", "", "GitHub username to track (or GITHUB_USERNAME)")
	f.StringP("organization", "o", "", "GitHub organization name (or GITHUB_ORGANIZATION)")
	addCollectionFlags(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	opts, err := collectionOptions(cmd)
	if err != nil {
		return err
	}
	if opts.organization == "" {
		return &domain.CollectionError{
			Kind:  domain.KindConfiguration,
			Cause: errors.New("an organization is required: pass --organization or set GITHUB_ORGANIZATION"),
		}
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
	defer progress.Stop()

	// Both runs share one window so the two sides stay comparable.
	base := usecase.Config{
		Username:    user,
		Window:      opts.window,
		Metrics:     opts.metrics,
		Ignore:      opts.ignore,
		Concurrency: opts.concurrency,
	}

	pterm.Info.Printfln("Collecting organization activity for %s in %s...", user, opts.organization)
	orgCfg := base
	orgCfg.Organization = opts.organization
	orgResult, err := collector.Run(ctx, orgCfg)
	if err != nil {
		return fmt.Errorf("organization run: %w", err)
	}

	pterm.Info.Printfln("Collecting personal activity for %s...", user)
	personalCfg := base
	personalCfg.Personal = true
	personalResult, err := collector.Run(ctx, personalCfg)
	if err != nil {
		return fmt.Errorf("personal run: %w", err)
	}
	progress.Stop()

	cmp := report.Compare(user, opts.organization, orgResult, personalResult)
	report.NewConsole(nil).RenderComparison(cmp)

	writer := snapshot.NewWriter("")
	savedTo, err := writer.Write(user, "comparison_data", "", cmp)
	if err != nil {
		return fmt.Errorf("saving comparison: %w", err)
	}
	pterm.Success.Printfln("Comparison data saved to %s", savedTo)

	ratioPath, err := writer.Write(user, "ratio_summary", "", cmp.RatioSummary(time.Now()))
	if err != nil {
		return fmt.Errorf("saving ratio summary: %w", err)
	}
	pterm.Success.Printfln("Ratio summary saved to %s", ratioPath)
	return nil
}
