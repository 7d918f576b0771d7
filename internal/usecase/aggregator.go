// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"sort"

	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/naka-gawa/contrib-stats/internal/gateway"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Request describes one statistics run.
type Request struct {
	Repos           []RepoTarget
	DefaultExcludes []string
	Window          domain.Window
	EmailMap        map[string]string
	LoginMap        map[string]string
	// FoldCase matches emails and logins ignoring letter case.
	FoldCase bool
	// People limits the reported statistics to these persons. Empty means
	// everyone.
	People []string
}

// Aggregator is the use case for building per-person statistics.
// It orchestrates the scanning, fetching and combining of data.
type Aggregator struct {
	scanner  *Scanner
	fetchers []gateway.Fetcher
	logger   logrus.FieldLogger
}

// NewAggregator creates a new Aggregator instance.
func NewAggregator(scanner *Scanner, fetchers []gateway.Fetcher, logger logrus.FieldLogger) *Aggregator {
	return &Aggregator{
		scanner:  scanner,
		fetchers: fetchers,
		logger:   logger,
	}
}

// Aggregate performs the main business logic.
// It scans all repositories and fetches tracker activity concurrently, then
// merges everything into per-person statistics.
// A failing repository is reported in the result; a failing tracker fails
// the run.
func (a *Aggregator) Aggregate(ctx context.Context, req Request) (*domain.Report, error) {
	a.logger.Debug("Usecase: Starting data aggregation...")

	var outcomes []domain.RepoOutcome
	var lines domain.LineCounts
	activity := make([]map[string]*domain.ActivityCounters, len(a.fetchers))
	agendas := make([]*domain.Agenda, len(a.fetchers))

	// Use an errgroup to scan and fetch all data concurrently.
	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		outcomes, lines = a.scanner.ScanAll(egCtx, req.Repos, req.Window, req.DefaultExcludes)
		return nil
	})

	for i, fetcher := range a.fetchers {
		eg.Go(func() error {
			var err error
			activity[i], err = fetcher.FetchActivity(egCtx, req.Window)
			return err
		})
		eg.Go(func() error {
			var err error
			agendas[i], err = fetcher.FetchAgenda(egCtx, req.Window.Asof)
			return err
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	a.logger.Debug("Usecase: All data fetched successfully.")

	reconciled := Reconcile(ReconcileInput{
		Lines:    lines,
		EmailMap: req.EmailMap,
		Activity: activity,
		LoginMap: req.LoginMap,
		FoldCase: req.FoldCase,
	})
	people := selectPeople(reconciled.Sorted(), req.People)

	for _, u := range reconciled.UnmappedEmails {
		a.logger.WithFields(logrus.Fields{"email": u.Identity, "lines": u.Lines}).Info("email has no canonical person")
	}

	a.logger.Debug("Usecase: Aggregation complete.")
	return &domain.Report{
		Window:         req.Window,
		People:         people,
		UnmappedEmails: reconciled.UnmappedEmails,
		UnmappedLogins: reconciled.UnmappedLogins,
		Repositories:   outcomes,
		Agenda:         mergeAgendas(agendas),
		Summary:        Summarize(people, req.Window),
	}, nil
}

func selectPeople(people []*domain.IndividualStatistics, names []string) []*domain.IndividualStatistics {
	if len(names) == 0 {
		return people
	}
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[name] = true
	}
	selected := make([]*domain.IndividualStatistics, 0, len(names))
	for _, p := range people {
		if wanted[p.Person] {
			selected = append(selected, p)
		}
	}
	return selected
}

// mergeAgendas combines the agendas of every tracker, ordered by repository
// and number.
func mergeAgendas(agendas []*domain.Agenda) *domain.Agenda {
	merged := &domain.Agenda{
		OpenRequests: make([]domain.OpenRequest, 0),
		StaleIssues:  make([]domain.StaleIssue, 0),
	}
	for _, a := range agendas {
		if a == nil {
			continue
		}
		merged.OpenRequests = append(merged.OpenRequests, a.OpenRequests...)
		merged.StaleIssues = append(merged.StaleIssues, a.StaleIssues...)
	}
	sort.SliceStable(merged.OpenRequests, func(i, j int) bool {
		x, y := merged.OpenRequests[i], merged.OpenRequests[j]
		if x.Repo != y.Repo {
			return x.Repo < y.Repo
		}
		return x.Number < y.Number
	})
	sort.SliceStable(merged.StaleIssues, func(i, j int) bool {
		x, y := merged.StaleIssues[i], merged.StaleIssues[j]
		if x.Repo != y.Repo {
			return x.Repo < y.Repo
		}
		return x.Number < y.Number
	})
	return merged
}
