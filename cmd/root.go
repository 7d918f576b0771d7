// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/naka-gawa/contrib-stats/internal/config"
	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/naka-gawa/contrib-stats/internal/logging"
	"github.com/naka-gawa/contrib-stats/internal/usecase"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "CONTRIB_STATS"

// settings holds flag and environment values. Identity maps and
// repositories live in config.toml instead, since their keys contain dots.
var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "contrib-stats",
	Short: "A CLI tool to build per-person contribution statistics.",
	Long: `contrib-stats attributes the lines of locally synchronized repositories
to their authors with git blame, merges them with issue and pull request
activity from GitHub, and reports per-person statistics over a time window.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A .env file is optional.
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return settings.BindPFlags(cmd.Flags())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolP("verbose", "v", false, "Enable verbose/debug logging")
	flags.StringP("config", "c", "", "Path to config.toml (default is the user config directory)")
	flags.String("asof", "", "End of the window, RFC 3339 (default is now)")
	flags.String("epoch", "", "Earliest start of the window, RFC 3339")
	flags.Int("days", config.DefaultDays, "Length of the window in days")
	flags.Int("workers", 0, "Concurrent blame calls per repository (default is one per CPU)")

	settings.SetEnvPrefix(envPrefix)
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	_ = settings.BindEnv("github-token", "GITHUB_TOKEN")
	_ = settings.BindEnv("log-level", "LOG_LEVEL")
}

// runContext is what every subcommand needs before it starts working.
type runContext struct {
	logger  *logrus.Logger
	cfg     *config.Config
	window  domain.Window
	targets []usecase.RepoTarget
	workers int
}

func setup() (*runContext, error) {
	logger, err := logging.New(os.Stderr, settings.GetString("log-level"), settings.GetBool("verbose"))
	if err != nil {
		return nil, err
	}

	path := settings.GetString("config")
	if path == "" {
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger.WithField("path", path).Debug("configuration loaded")

	w, err := config.ResolveWindow(settings.GetString("asof"), settings.GetString("epoch"), settings.GetInt("days"), time.Now())
	if err != nil {
		return nil, err
	}

	var targets []usecase.RepoTarget
	for _, repo := range cfg.Repositories() {
		targets = append(targets, usecase.RepoTarget{Name: repo.Name, Root: repo.Root, Exclude: repo.Exclude})
	}
	if len(targets) == 0 {
		logger.WithField("path", path).Warn("no repositories configured")
	}

	workers := settings.GetInt("workers")
	if workers == 0 {
		workers = cfg.Workers
	}

	return &runContext{
		logger:  logger,
		cfg:     cfg,
		window:  w,
		targets: targets,
		workers: workers,
	}, nil
}
