package domain

import (
	"errors"
	"sort"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// NewRunSummary starts a summary stamped with c. Pass a fake clock in tests
// for deterministic timestamps.
func NewRunSummary(c clockwork.Clock) RunSummary {
	return RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: c.Now().UTC(),
		Skipped:   map[string]string{},
	}
}

// Record adds one county outcome to the summary.
func (s *RunSummary) Record(o CountyOutcome) {
	if o.Err != nil {
		s.Skipped[o.County] = SkipReason(o.Err)
		return
	}
	s.Processed = append(s.Processed, o.County)
	sort.Strings(s.Processed)
}

// Finish stamps the end of the run and the number of published rows.
func (s *RunSummary) Finish(c clockwork.Clock, rows int) {
	s.FinishedAt = c.Now().UTC()
	s.Rows = rows
}

// reasoner lets errors from other packages name their skip reason without
// domain importing them.
type reasoner interface {
	Reason() string
}

// SkipReason maps a county failure to a short, stable label used in logs,
// metrics and the run store.
func SkipReason(err error) string {
	var r reasoner
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrMalformedSeries):
		return "malformed"
	case errors.Is(err, ErrEngineOutput):
		return "engine_output"
	case errors.Is(err, ErrEnginePanic):
		return "panic"
	case errors.As(err, &r):
		return r.Reason()
	default:
		return "error"
	}
}
