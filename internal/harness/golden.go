package harness

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/zugdienste/internal/ir"
)

// Snapshot is the golden view of a scenario: scan counters and the
// catalogue columns a user browses. Absolute paths, timestamps and
// content hashes are left out so the snapshot is the same on every
// machine.
type Snapshot struct {
	Scenario string            `json:"scenario"`
	Scans    []ScanSnapshot    `json:"scans"`
	Services []ServiceSnapshot `json:"services"`
}

// ScanSnapshot holds the counters of one scan.
type ScanSnapshot struct {
	RunID     string           `json:"run_id"`
	Status    string           `json:"status"`
	Scanned   int64            `json:"scanned"`
	Inserted  int64            `json:"inserted"`
	Updated   int64            `json:"updated"`
	Unchanged int64            `json:"unchanged"`
	Skipped   int64            `json:"skipped"`
	Excluded  int64            `json:"excluded"`
	Pruned    int64            `json:"pruned"`
	Reasons   map[string]int64 `json:"skip_reasons,omitempty"`
}

// ServiceSnapshot holds the catalogue view of one stored service.
type ServiceSnapshot struct {
	Path        string         `json:"path"`
	Route       string         `json:"route"`
	ServiceName string         `json:"service_name"`
	Kind        ir.ServiceKind `json:"kind"`
	Locomotive  string         `json:"locomotive"`
	Departure   string         `json:"departure"`
	Duration    string         `json:"duration"`
	From        string         `json:"from"`
	To          string         `json:"to"`
	Stops       int64          `json:"stops"`
	DistanceKm  int64          `json:"distance_km"`
	ScanID      string         `json:"scan_id"`
}

// NewSnapshot builds the snapshot of a finished scenario.
func NewSnapshot(name string, result *Result) Snapshot {
	snap := Snapshot{
		Scenario: name,
		Scans:    make([]ScanSnapshot, len(result.Scans)),
		Services: make([]ServiceSnapshot, len(result.Services)),
	}
	for i, sum := range result.Scans {
		snap.Scans[i] = ScanSnapshot{
			RunID:     sum.RunID,
			Status:    sum.Status,
			Scanned:   sum.Scanned,
			Inserted:  sum.Inserted,
			Updated:   sum.Updated,
			Unchanged: sum.Unchanged,
			Skipped:   sum.Skipped,
			Excluded:  sum.Excluded,
			Pruned:    sum.Pruned,
			Reasons:   sum.Reasons,
		}
	}
	for i, svc := range result.Services {
		snap.Services[i] = ServiceSnapshot{
			Path:        result.Rel(svc),
			Route:       svc.Route,
			ServiceName: svc.ServiceName,
			Kind:        svc.Kind,
			Locomotive:  svc.Locomotive,
			Departure:   svc.StartTime,
			Duration:    svc.Duration,
			From:        svc.EntryPoint,
			To:          svc.EndStation,
			Stops:       svc.StopCount,
			DistanceKm:  svc.DistanceKm,
			ScanID:      svc.ScanID,
		}
	}
	return snap
}

// Marshal renders the snapshot as indented JSON without HTML escaping,
// ending in a newline.
func (s Snapshot) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs a scenario, evaluates its assertions and compares
// the snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if a scan fails. Failed assertions and snapshot
// mismatches fail t.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(t, scenario)
	if err != nil {
		return err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		t.Error(msg)
	}

	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares the snapshot of result against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := NewSnapshot(name, result).Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)

	return nil
}
