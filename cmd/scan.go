package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/naka-gawa/contrib-stats/internal/blame"
	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/naka-gawa/contrib-stats/internal/usecase"
	"github.com/naka-gawa/contrib-stats/internal/walker"
	"github.com/spf13/cobra"
)

// scanResult is the output of the scan command.
type scanResult struct {
	Window       domain.Window        `json:"window"`
	Repositories []domain.RepoOutcome `json:"repositories"`
	Totals       domain.LineCounts    `json:"totals"`
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Attributes repository lines to author emails and outputs as JSON",
	Long: `Blames every file of every configured repository, counts the lines last
changed within the window per author email, and outputs the per-repository
results and the merged totals in JSON format.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := setup()
		if err != nil {
			return err
		}

		scanner := usecase.NewScanner(blame.NewGitBlamer(rc.logger), rc.workers, rc.logger)
		outcomes, totals := scanner.ScanAll(cmd.Context(), rc.targets, rc.window, walker.DefaultExcludes)

		jsonData, err := json.MarshalIndent(scanResult{
			Window:       rc.window,
			Repositories: outcomes,
			Totals:       totals,
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results to JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))

		return allFailed(outcomes)
	},
}

// allFailed reports an error when there was something to scan and nothing
// could be scanned.
func allFailed(outcomes []domain.RepoOutcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	for _, o := range outcomes {
		if o.Err == nil {
			return nil
		}
	}
	return errors.New("every repository failed to scan")
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
