package usecase

import (
	"sort"
	"strings"

	"github.com/naka-gawa/contrib-stats/internal/domain"
)

// ReconcileInput holds every source merged into per-person statistics.
type ReconcileInput struct {
	// Lines maps author emails to attributed lines.
	Lines domain.LineCounts
	// EmailMap maps author emails to canonical persons.
	EmailMap map[string]string
	// Activity holds the per-login counters of each tracker.
	Activity []map[string]*domain.ActivityCounters
	// LoginMap maps tracker logins to canonical persons.
	LoginMap map[string]string
	// FoldCase retries an unmatched email or login ignoring letter case.
	FoldCase bool
}

// Reconciliation is the result of Reconcile.
type Reconciliation struct {
	People         map[string]*domain.IndividualStatistics
	UnmappedEmails []domain.UnmappedIdentity
	UnmappedLogins []domain.UnmappedActivity
}

// identityMap resolves an identity exactly, then case-insensitively when
// folded is set.
type identityMap struct {
	exact  map[string]string
	folded map[string]string
}

func newIdentityMap(m map[string]string, foldCase bool) identityMap {
	if !foldCase {
		return identityMap{exact: m}
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	folded := make(map[string]string, len(m))
	for _, k := range keys {
		lower := strings.ToLower(k)
		if _, ok := folded[lower]; !ok {
			folded[lower] = m[k]
		}
	}
	return identityMap{exact: m, folded: folded}
}

func (im identityMap) resolve(identity string) (string, bool) {
	if person, ok := im.exact[identity]; ok {
		return person, true
	}
	if im.folded == nil {
		return "", false
	}
	person, ok := im.folded[strings.ToLower(identity)]
	return person, ok
}

// Reconcile merges line counts and tracker activity into one
// IndividualStatistics per canonical person. A person named by any source
// appears with zeros for the sources that do not name them.
//
// Identities without a canonical person are left out of People and kept
// verbatim in UnmappedEmails and UnmappedLogins, so that the lines and
// activity they carry are never lost.
func Reconcile(in ReconcileInput) *Reconciliation {
	people := make(map[string]*domain.IndividualStatistics)
	ensurePerson := func(person string) *domain.IndividualStatistics {
		if _, ok := people[person]; !ok {
			people[person] = &domain.IndividualStatistics{Person: person}
		}
		return people[person]
	}

	emails := newIdentityMap(in.EmailMap, in.FoldCase)
	unmappedEmails := make([]domain.UnmappedIdentity, 0)
	for email, lines := range in.Lines {
		person, ok := emails.resolve(email)
		if !ok {
			unmappedEmails = append(unmappedEmails, domain.UnmappedIdentity{Identity: email, Lines: lines})
			continue
		}
		ensurePerson(person).LinesContributed += lines
	}
	sort.Slice(unmappedEmails, func(i, j int) bool {
		if unmappedEmails[i].Lines != unmappedEmails[j].Lines {
			return unmappedEmails[i].Lines > unmappedEmails[j].Lines
		}
		return unmappedEmails[i].Identity < unmappedEmails[j].Identity
	})

	logins := newIdentityMap(in.LoginMap, in.FoldCase)
	unmappedByLogin := make(map[string]*domain.ActivityCounters)
	for _, source := range in.Activity {
		for login, counters := range source {
			person, ok := logins.resolve(login)
			if !ok {
				if _, seen := unmappedByLogin[login]; !seen {
					unmappedByLogin[login] = &domain.ActivityCounters{}
				}
				unmappedByLogin[login].Add(counters)
				continue
			}
			ensurePerson(person).AddActivity(counters)
		}
	}

	unmappedLogins := make([]domain.UnmappedActivity, 0, len(unmappedByLogin))
	for login, counters := range unmappedByLogin {
		unmappedLogins = append(unmappedLogins, domain.UnmappedActivity{Login: login, Counters: counters})
	}
	sort.Slice(unmappedLogins, func(i, j int) bool {
		return unmappedLogins[i].Login < unmappedLogins[j].Login
	})

	return &Reconciliation{
		People:         people,
		UnmappedEmails: unmappedEmails,
		UnmappedLogins: unmappedLogins,
	}
}

// Sorted returns the statistics ordered by person for consistent output.
func (r *Reconciliation) Sorted() []*domain.IndividualStatistics {
	sorted := make([]*domain.IndividualStatistics, 0, len(r.People))
	for _, s := range r.People {
		sorted = append(sorted, s)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Person < sorted[j].Person
	})
	return sorted
}
