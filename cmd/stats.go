package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/naka-gawa/contrib-stats/internal/blame"
	"github.com/naka-gawa/contrib-stats/internal/gateway"
	"github.com/naka-gawa/contrib-stats/internal/usecase"
	"github.com/naka-gawa/contrib-stats/internal/walker"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Aggregates per-person contribution statistics and outputs as JSON",
	Long: `Scans every configured repository, fetches issue and pull request activity
from GitHub, maps emails and logins to canonical persons, and outputs the
per-person statistics in JSON format, together with the pull requests under
review and the assigned issues with no update in the past day.

GitHub activity is skipped when GITHUB_TOKEN is not set or no GitHub
repositories are configured.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, err := setup()
		if err != nil {
			return err
		}

		// Inject dependencies and run the main business logic.
		var fetchers []gateway.Fetcher
		token := settings.GetString("github-token")
		switch {
		case len(rc.cfg.GitHub.Repos) == 0:
			rc.logger.Debug("no GitHub repositories configured")
		case token == "":
			rc.logger.Warn("GITHUB_TOKEN is not set, skipping GitHub activity")
		default:
			githubGateway, err := gateway.NewGitHubGateway(token, rc.cfg.GitHub.Owner, rc.cfg.GitHub.Repos, rc.logger)
			if err != nil {
				return fmt.Errorf("failed to create GitHub gateway: %w", err)
			}
			fetchers = append(fetchers, githubGateway)
		}

		scanner := usecase.NewScanner(blame.NewGitBlamer(rc.logger), rc.workers, rc.logger)
		aggregator := usecase.NewAggregator(scanner, fetchers, rc.logger)

		report, err := aggregator.Aggregate(cmd.Context(), usecase.Request{
			Repos:           rc.targets,
			DefaultExcludes: walker.DefaultExcludes,
			Window:          rc.window,
			EmailMap:        rc.cfg.EmailMap,
			LoginMap:        rc.cfg.LoginMap,
			FoldCase:        rc.cfg.FoldCase,
			People:          rc.cfg.People,
		})
		if err != nil {
			return fmt.Errorf("failed to aggregate stats: %w", err)
		}

		// Marshal the results into a pretty-printed JSON string.
		jsonData, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results to JSON: %w", err)
		}

		// Print the final JSON to standard output.
		fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
