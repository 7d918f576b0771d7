package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/naka-gawa/contrib-stats/internal/blame"
	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/naka-gawa/contrib-stats/internal/walker"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// RepoTarget is a synchronized working tree to scan.
type RepoTarget struct {
	Name    string
	Root    string
	Exclude []string
}

// Scanner attributes the lines of repositories to author emails.
// It composes the walker, an external blame call and the blame parser.
type Scanner struct {
	blamer  blame.Blamer
	parser  *blame.Parser
	workers int
	logger  logrus.FieldLogger
}

// NewScanner creates a new Scanner instance. workers bounds the number of
// concurrent blame calls per repository; zero or less means one per CPU.
func NewScanner(blamer blame.Blamer, workers int, logger logrus.FieldLogger) *Scanner {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Scanner{
		blamer:  blamer,
		parser:  blame.NewParser(logger),
		workers: workers,
		logger:  logger,
	}
}

// Scan counts, per author email, the lines of the working tree at root that
// were last changed within w. Paths matching excludes are never blamed, and
// files git does not track are skipped.
//
// A filesystem or blame failure is returned as a *domain.TraversalError or a
// *domain.ExtractionError. An invalid exclude pattern or a cancelled ctx is
// returned as a plain wrapped error.
func (s *Scanner) Scan(ctx context.Context, root string, w domain.Window, excludes []string) (domain.LineCounts, error) {
	m, err := walker.NewMatcher(excludes)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	var mu sync.Mutex
	total := make(domain.LineCounts)
	var walkErr error
	files := 0

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)

	for path, err := range walker.Walk(root, m) {
		if err != nil {
			walkErr = err
			break
		}
		if egCtx.Err() != nil {
			break
		}
		files++
		eg.Go(func() error {
			text, err := s.blamer.Blame(egCtx, root, path)
			if errors.Is(err, blame.ErrUntracked) {
				s.logger.WithFields(logrus.Fields{"root": root, "path": path}).Debug("skipping untracked file")
				return nil
			}
			if err != nil {
				return &domain.ExtractionError{Repo: root, Path: path, Err: err}
			}
			counts, warnings := s.parser.Tally(path, text, w)
			if len(warnings) > 0 {
				s.logger.WithFields(logrus.Fields{
					"path":     path,
					"warnings": len(warnings),
				}).Info("skipped malformed blame lines")
			}

			mu.Lock()
			total.Add(counts)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("scan of %s interrupted: %w", root, err)
	}
	if walkErr != nil {
		var terr *domain.TraversalError
		if !errors.As(walkErr, &terr) {
			walkErr = &domain.TraversalError{Repo: root, Err: walkErr}
		}
		return nil, walkErr
	}

	s.logger.WithFields(logrus.Fields{
		"root":  root,
		"files": files,
		"lines": total.Total(),
	}).Debug("scan complete")
	return total, nil
}

// ScanAll scans every repository concurrently. A failing repository is
// recorded in its outcome and does not affect the others. The returned
// totals merge the counts of every repository that succeeded.
func (s *Scanner) ScanAll(ctx context.Context, repos []RepoTarget, w domain.Window, defaultExcludes []string) ([]domain.RepoOutcome, domain.LineCounts) {
	outcomes := make([]domain.RepoOutcome, len(repos))

	var eg errgroup.Group
	for i, repo := range repos {
		eg.Go(func() error {
			s.logger.WithField("repo", repo.Name).Info("scanning repository")
			excludes := make([]string, 0, len(defaultExcludes)+len(repo.Exclude))
			excludes = append(excludes, defaultExcludes...)
			excludes = append(excludes, repo.Exclude...)

			counts, err := s.Scan(ctx, repo.Root, w, excludes)
			outcome := domain.RepoOutcome{Name: repo.Name}
			if err != nil {
				s.logger.WithError(err).WithField("repo", repo.Name).Warn("repository scan failed")
				outcome.Err = err
				outcome.Error = err.Error()
			} else {
				outcome.Count = counts
				outcome.Lines = counts.Total()
			}
			outcomes[i] = outcome
			return nil
		})
	}
	_ = eg.Wait()

	partials := make([]domain.LineCounts, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Err == nil {
			partials = append(partials, o.Count)
		}
	}
	return outcomes, domain.MergeLineCounts(partials...)
}
