// Package config loads the run configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/naka-gawa/contrib-stats/internal/walker"
)

const (
	appName  = "contrib-stats"
	fileName = "config.toml"

	// DefaultDays is the length of the window when no epoch is closer.
	DefaultDays = 90
)

// Config represents the configuration stored in config.toml.
type Config struct {
	// RepoRoot holds the synchronized working trees, one directory per
	// repository name.
	RepoRoot string                `toml:"repo_root"`
	Workers  int                   `toml:"workers"`
	Repos    map[string]Repository `toml:"repos"`
	// EmailMap maps commit author emails to canonical persons.
	EmailMap map[string]string `toml:"email_map"`
	// LoginMap maps tracker logins to canonical persons.
	LoginMap map[string]string `toml:"login_map"`
	// FoldCase matches emails and logins ignoring letter case.
	FoldCase bool `toml:"fold_case"`
	// People limits the reported persons. Empty reports everyone.
	People []string     `toml:"people"`
	GitHub GitHubConfig `toml:"github"`
}

// Repository describes one repository to scan.
type Repository struct {
	// Path overrides RepoRoot/<name>.
	Path    string   `toml:"path"`
	URL     string   `toml:"url"`
	Exclude []string `toml:"exclude"`
}

// GitHubConfig selects the GitHub repositories whose issues and pull
// requests are counted.
type GitHubConfig struct {
	Owner string   `toml:"owner"`
	Repos []string `toml:"repos"`
}

// NamedRepository is a Repository with its name and resolved working tree.
type NamedRepository struct {
	Name    string
	Root    string
	Exclude []string
}

// DefaultPath returns the location of config.toml in the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, appName, fileName), nil
}

func defaultRepoRoot() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appName, "repos")
}

// Load reads the configuration at path. A missing file yields an empty
// configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if cfg.RepoRoot == "" {
		cfg.RepoRoot = defaultRepoRoot()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every repository can be located and that its
// exclusion patterns compile.
func (c *Config) Validate() error {
	for name, repo := range c.Repos {
		if repo.Path == "" && c.RepoRoot == "" {
			return fmt.Errorf("repository %s: no path and no repo_root", name)
		}
		if _, err := walker.NewMatcher(repo.Exclude); err != nil {
			return fmt.Errorf("repository %s: %w", name, err)
		}
	}
	if len(c.GitHub.Repos) > 0 && c.GitHub.Owner == "" {
		return errors.New("github: repos given without owner")
	}
	return nil
}

// Repositories returns the configured repositories ordered by name.
func (c *Config) Repositories() []NamedRepository {
	names := make([]string, 0, len(c.Repos))
	for name := range c.Repos {
		names = append(names, name)
	}
	sort.Strings(names)

	repos := make([]NamedRepository, 0, len(names))
	for _, name := range names {
		repo := c.Repos[name]
		root := repo.Path
		if root == "" {
			root = filepath.Join(c.RepoRoot, name)
		}
		repos = append(repos, NamedRepository{Name: name, Root: root, Exclude: repo.Exclude})
	}
	return repos
}

// ResolveWindow computes the window of a run. asof defaults to now; since is
// the later of epoch and asof minus days. Both times are RFC 3339.
func ResolveWindow(asof, epoch string, days int, now time.Time) (domain.Window, error) {
	end := now
	if asof != "" {
		t, err := time.Parse(time.RFC3339, asof)
		if err != nil {
			return domain.Window{}, fmt.Errorf("invalid asof %q: %w", asof, err)
		}
		end = t
	}
	if days <= 0 {
		days = DefaultDays
	}

	since := end.AddDate(0, 0, -days)
	if epoch != "" {
		t, err := time.Parse(time.RFC3339, epoch)
		if err != nil {
			return domain.Window{}, fmt.Errorf("invalid epoch %q: %w", epoch, err)
		}
		if t.After(since) {
			since = t
		}
	}
	return domain.NewWindow(since, end)
}
