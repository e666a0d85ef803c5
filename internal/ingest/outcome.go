package ingest

import (
	"errors"
	"time"

	"github.com/roach88/zugdienste/internal/config"
	"github.com/roach88/zugdienste/internal/ir"
	"github.com/roach88/zugdienste/internal/scan"
	"github.com/roach88/zugdienste/internal/store"
	"github.com/roach88/zugdienste/internal/zusi"
)

// OutcomeKind is the fate of one file.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeSkipped
	OutcomeExcluded
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeExcluded:
		return "excluded"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Outcome is what extraction produced for one file. Record is set only
// for OutcomeOK.
type Outcome struct {
	Kind   OutcomeKind
	Path   string
	Record ir.ServiceRecord
	Err    error
}

// Classify maps an error to the outcome it causes.
func Classify(err error) OutcomeKind {
	if err == nil {
		return OutcomeOK
	}

	var (
		excluded *zusi.ExcludedError
		cfgErr   *config.ConfigurationError
		openErr  *store.StoreOpenError
		dirErr   *scan.DirectoryAccessError
	)
	switch {
	case errors.As(err, &excluded):
		return OutcomeExcluded
	case errors.As(err, &cfgErr), errors.As(err, &openErr):
		return OutcomeFatal
	case errors.As(err, &dirErr):
		if dirErr.Required {
			return OutcomeFatal
		}
		return OutcomeSkipped
	default:
		return OutcomeSkipped
	}
}

// IsFatal reports whether err ends a run in the Failed state.
func IsFatal(err error) bool {
	return Classify(err) == OutcomeFatal
}

// State is a step of the run state machine.
type State string

const (
	StateIdle           State = "idle"
	StateResolvingPaths State = "resolving_paths"
	StateWalking        State = "walking"
	StateExtracting     State = "extracting"
	StateWriting        State = "writing"
	StateDone           State = "done"
	StateFailed         State = "failed"
)

// Summary reports what a run did.
type Summary struct {
	RunID     string           `json:"run_id,omitempty"`
	State     State            `json:"state"`
	Status    string           `json:"status,omitempty"`
	Roots     []string         `json:"roots,omitempty"`
	Database  string           `json:"database,omitempty"`
	StartedAt time.Time        `json:"started_at"`
	Duration  time.Duration    `json:"duration_ns"`
	Scanned   int64            `json:"scanned"`
	Inserted  int64            `json:"inserted"`
	Updated   int64            `json:"updated"`
	Unchanged int64            `json:"unchanged"`
	Skipped   int64            `json:"skipped"`
	Excluded  int64            `json:"excluded"`
	Failed    int64            `json:"failed"`
	Pruned    int64            `json:"pruned"`
	Reasons   map[string]int64 `json:"skip_reasons,omitempty"`
}

// Ingested is the number of rows inserted or replaced.
func (s Summary) Ingested() int64 {
	return s.Inserted + s.Updated
}

// scanRun converts the summary into the row stored in scan_runs.
func (s Summary) scanRun(finishedAt time.Time) ir.ScanRun {
	return ir.ScanRun{
		ID:         s.RunID,
		StartedAt:  s.StartedAt,
		FinishedAt: finishedAt,
		Status:     s.Status,
		Scanned:    s.Scanned,
		Ingested:   s.Ingested(),
		Unchanged:  s.Unchanged,
		Skipped:    s.Skipped,
		Excluded:   s.Excluded,
		Failed:     s.Failed,
		Pruned:     s.Pruned,
	}
}
