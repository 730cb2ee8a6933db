// Package validate checks a published Rt table for the invariants every run
// must satisfy.
package validate

import (
	"fmt"
	"time"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/reference"
)

// maxErrorsPerPhase caps how many problems a phase records.
const maxErrorsPerPhase = 50

// Phase tracks pass/fail for one group of checks.
type Phase struct {
	Name    string
	Errors  []string
	dropped int
}

func (p *Phase) errorf(format string, args ...any) {
	if len(p.Errors) >= maxErrorsPerPhase {
		p.dropped++
		return
	}
	p.Errors = append(p.Errors, fmt.Sprintf(format, args...))
}

// Passed reports whether the phase found no problems.
func (p *Phase) Passed() bool { return len(p.Errors) == 0 }

// Count returns the number of problems found, including ones not recorded.
func (p *Phase) Count() int { return len(p.Errors) + p.dropped }

// Intervals checks that every row is complete and Rt_LCI <= Rt <= Rt_UCI.
func Intervals(rows domain.CombinedResult) *Phase {
	p := &Phase{Name: "Credible intervals"}
	for i, e := range rows {
		if !e.Complete() {
			p.errorf("row %d (%s): incomplete row", i+1, key(e))
			continue
		}
		if e.Lower > e.Rt || e.Rt > e.Upper {
			p.errorf("row %d (%s): Rt %g outside [%g, %g]", i+1, key(e), e.Rt, e.Lower, e.Upper)
		}
		if e.Lower < 0 {
			p.errorf("row %d (%s): negative Rt_LCI %g", i+1, key(e), e.Lower)
		}
	}
	return p
}

// Ordering checks that rows are sorted by (County, Date) with no duplicate
// pair.
func Ordering(rows domain.CombinedResult) *Phase {
	p := &Phase{Name: "Ordering and uniqueness"}
	seen := make(map[string]int, len(rows))
	for i, e := range rows {
		k := key(e)
		if first, ok := seen[k]; ok {
			p.errorf("row %d: duplicate of row %d (%s)", i+1, first, k)
			continue
		}
		seen[k] = i + 1
		if i == 0 {
			continue
		}
		prev := rows[i-1]
		if prev.County > e.County || (prev.County == e.County && !prev.Date.Before(e.Date)) {
			p.errorf("row %d (%s): out of order after %s", i+1, k, key(prev))
		}
	}
	return p
}

// Enumeration checks that every county belongs to the reference dataset.
func Enumeration(rows domain.CombinedResult, ref *reference.Dataset) *Phase {
	p := &Phase{Name: fmt.Sprintf("County enumeration (%s)", ref.Version)}
	reported := map[string]bool{}
	for i, e := range rows {
		if ref.HasCounty(e.County) || reported[e.County] {
			continue
		}
		reported[e.County] = true
		p.errorf("row %d: county %q is not enumerated", i+1, e.County)
	}
	return p
}

// Spans checks that each estimate falls inside its county's observed span,
// after the first leadIn days.
func Spans(rows domain.CombinedResult, observations []domain.Observation, leadIn int) *Phase {
	p := &Phase{Name: "Observed span and lead-in"}

	type span struct{ first, last time.Time }
	spans := map[string]span{}
	for _, o := range observations {
		if o.Value == nil {
			continue
		}
		s, ok := spans[o.County]
		if !ok || o.Date.Before(s.first) {
			s.first = o.Date
		}
		if !ok || o.Date.After(s.last) {
			s.last = o.Date
		}
		spans[o.County] = s
	}

	for i, e := range rows {
		s, ok := spans[e.County]
		if !ok {
			p.errorf("row %d (%s): county has no observations", i+1, key(e))
			continue
		}
		if earliest := s.first.AddDate(0, 0, leadIn); e.Date.Before(earliest) {
			p.errorf("row %d (%s): before %s, the end of the lead-in", i+1, key(e), earliest.Format(time.DateOnly))
		}
		if e.Date.After(s.last) {
			p.errorf("row %d (%s): after the last observation %s", i+1, key(e), s.last.Format(time.DateOnly))
		}
	}
	return p
}

func key(e domain.Estimate) string {
	return e.County + " " + e.Date.Format(time.DateOnly)
}
