// Package blame turns per-line attribution text into author line counts.
package blame

import (
	"errors"
	"strings"
	"time"

	"github.com/naka-gawa/contrib-stats/internal/domain"
	"github.com/sirupsen/logrus"
)

// TimestampLayout is the layout of the timestamp embedded in each line.
const TimestampLayout = "2006-01-02 15:04:05 -0700"

const timestampWidth = len(TimestampLayout)

// Record is the attribution of a single source line.
type Record struct {
	Email     string
	Timestamp time.Time
}

var (
	errNoEmailStart = errors.New("missing \"(<\" before author email")
	errNoEmailEnd   = errors.New("missing \">\" after author email")
	errNoMetaEnd    = errors.New("missing \")\" after timestamp")
)

// ParseLine extracts the author email and timestamp from one line of blame
// output such as
//
//	^1a2b3c4 (<alice@example.com> 2024-01-02 10:00:00 +0000 1) foo
//
// The returned error, if any, is a *domain.ParseWarning.
func ParseLine(line string) (Record, error) {
	start := strings.Index(line, "(<")
	if start < 0 {
		return Record{}, warning(errNoEmailStart)
	}
	rest := line[start+2:]

	end := strings.IndexByte(rest, '>')
	if end < 0 {
		return Record{}, warning(errNoEmailEnd)
	}
	email := rest[:end]
	rest = rest[end+1:]

	closing := strings.IndexByte(rest, ')')
	if closing < 0 {
		return Record{}, warning(errNoMetaEnd)
	}
	meta := rest[:closing]
	// The field after the last space is the line number.
	if space := strings.LastIndexByte(meta, ' '); space >= 0 {
		meta = meta[:space]
	}

	ts, err := parseTimestamp(strings.TrimSpace(meta))
	if err != nil {
		return Record{}, warning(err)
	}
	return Record{Email: email, Timestamp: ts}, nil
}

// parseTimestamp parses field, falling back to its fixed-width prefix so that
// padding or stray text after the timestamp is tolerated.
func parseTimestamp(field string) (time.Time, error) {
	ts, err := time.Parse(TimestampLayout, field)
	if err == nil {
		return ts, nil
	}
	if len(field) > timestampWidth {
		if ts, ferr := time.Parse(TimestampLayout, field[:timestampWidth]); ferr == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}

func warning(err error) *domain.ParseWarning {
	return &domain.ParseWarning{Reason: err.Error()}
}

// Parser tallies blame output within a window.
type Parser struct {
	logger logrus.FieldLogger
}

// NewParser creates a new Parser instance.
func NewParser(logger logrus.FieldLogger) *Parser {
	return &Parser{logger: logger}
}

// Tally counts, per author email, the lines of text whose timestamp falls
// within w. Lines that cannot be parsed are logged, skipped and returned as
// warnings; Tally never fails.
func (p *Parser) Tally(path string, text []byte, w domain.Window) (domain.LineCounts, []*domain.ParseWarning) {
	counts := make(domain.LineCounts)
	var warnings []*domain.ParseWarning

	lines := strings.Split(string(text), "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}

	for i, line := range lines {
		rec, err := ParseLine(line)
		if err != nil {
			var pw *domain.ParseWarning
			if !errors.As(err, &pw) {
				pw = &domain.ParseWarning{Reason: err.Error()}
			}
			pw.Path = path
			pw.Line = i + 1
			warnings = append(warnings, pw)
			p.logger.WithFields(logrus.Fields{
				"path": path,
				"line": pw.Line,
			}).Debugf("skipping blame line: %s", pw.Reason)
			continue
		}
		if !w.Contains(rec.Timestamp) {
			continue
		}
		counts[rec.Email]++
	}
	return counts, warnings
}
