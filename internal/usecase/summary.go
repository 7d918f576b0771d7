package usecase

import (
	"github.com/montanaflynn/stats"
	"github.com/naka-gawa/contrib-stats/internal/domain"
)

const ratePlaces = 3

// Summarize derives per-day rates for every person over w, along with team
// figures for contributed lines.
func Summarize(people []*domain.IndividualStatistics, w domain.Window) *domain.Summary {
	days := float64(w.Days())
	summary := &domain.Summary{
		Days:  w.Days(),
		Rates: make([]domain.Rates, 0, len(people)),
	}

	lines := make(stats.Float64Data, 0, len(people))
	for _, p := range people {
		lines = append(lines, float64(p.LinesContributed))
		summary.TotalLines += p.LinesContributed

		r := domain.Rates{
			Person:                     p.Person,
			IssuesCompletedPerDay:      round(p.IssuesCompleted / days),
			IssuesOpenedPerDay:         round(float64(p.IssuesOpened) / days),
			BugsReportedPerDay:         round(float64(p.BugsReported) / days),
			MergedRequestsOpenedPerDay: round(float64(p.MergedRequestsOpened) / days),
			LinesContributedPerDay:     round(float64(p.LinesContributed) / days),
		}
		if p.MergedRequestsOpened > 0 {
			r.CommentsPerRequest = round(float64(p.RequestCommentCount) / float64(p.MergedRequestsOpened))
		}
		summary.Rates = append(summary.Rates, r)
	}

	if len(lines) > 0 {
		// Both only fail on empty input.
		mean, _ := lines.Mean()
		median, _ := lines.Median()
		summary.MeanLines = round(mean)
		summary.MedianLines = round(median)
	}
	return summary
}

func round(v float64) float64 {
	r, err := stats.Round(v, ratePlaces)
	if err != nil {
		return v
	}
	return r
}
