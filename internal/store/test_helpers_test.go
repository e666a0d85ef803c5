package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/zugdienste/internal/ir"
)

var testTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// createTestStore creates a new store in a temporary directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRecord creates a record with the fields the queries touch.
func createTestRecord(path, route, locomotive string) ir.ServiceRecord {
	return ir.ServiceRecord{
		SourcePath:  path,
		Origin:      ir.OriginInstallation,
		Country:     "Deutschland",
		Route:       route,
		Timetable:   "Fahrplan",
		ServiceName: filepath.Base(path),
		Kind:        ir.KindPassenger,
		Category:    "RE",
		TrainNumber: "1",
		Locomotive:  locomotive,
		LengthM:     120,
		MassT:       300,
		StartTime:   "08:00",
		EndTime:     "09:00",
		Duration:    "1:00:00",
		EntryPoint:  "A Hbf",
		EndStation:  "B Hbf",
		StartKind:   ir.StationPassenger,
		EndKind:     ir.StationPassenger,
		StopCount:   1,
		Stops:       "B Hbf",
		HasEvents:   true,
		Turnarounds: 0,
		DistanceKm:  60,
		AvgSpeedKmh: 60,
		ContentHash: "hash-" + path,
	}
}
