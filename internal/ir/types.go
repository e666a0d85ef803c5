package ir

import "time"

// Origin names the configured root a record was found under.
type Origin string

const (
	OriginInstallation Origin = "installation"
	OriginUser         Origin = "user"
)

// ServiceKind distinguishes passenger from cargo services.
type ServiceKind string

const (
	KindPassenger ServiceKind = "P"
	KindCargo     ServiceKind = "C"
)

// StationKind classifies a timetable entry by the keywords in its name.
type StationKind string

const (
	StationUnknown        StationKind = "unknown"
	StationOpenLine       StationKind = "open_line"
	StationOperatingPoint StationKind = "operating_point"
	StationPassenger      StationKind = "passenger_station"
	StationFreightYard    StationKind = "freight_yard"
)

// ServiceRecord is one drivable service extracted from a service-definition
// file. It maps one-to-one onto a row of the services table.
type ServiceRecord struct {
	SourcePath  string `json:"source_path"`
	Origin      Origin `json:"origin"`
	Country     string `json:"country"`
	Route       string `json:"route"`
	Timetable   string `json:"timetable"`
	ServiceName string `json:"service_name"`

	Kind           ServiceKind `json:"kind"`
	Category       string      `json:"category"`
	TrainNumber    string      `json:"train_number"`
	Locomotive     string      `json:"locomotive"`
	LengthM        int64       `json:"length_m"`
	MassT          int64       `json:"mass_t"`
	Line           string      `json:"line"`
	TimetableGroup string      `json:"timetable_group"`

	StartTime   string      `json:"start_time"`
	EndTime     string      `json:"end_time"`
	Duration    string      `json:"duration"`
	EntryPoint  string      `json:"entry_point"`
	EndStation  string      `json:"end_station"`
	StartKind   StationKind `json:"start_kind"`
	EndKind     StationKind `json:"end_kind"`
	StopCount   int64       `json:"stop_count"`
	Stops       string      `json:"stops"`
	HasEvents   bool        `json:"has_events"`
	Turnarounds int64       `json:"turnarounds"`
	DistanceKm  int64       `json:"distance_km"`
	AvgSpeedKmh int64       `json:"avg_speed_kmh"`

	ContentHash string `json:"content_hash"`
}

// ScanRun summarizes one execution of the ingest pipeline.
type ScanRun struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Scanned    int64     `json:"scanned"`
	Ingested   int64     `json:"ingested"`
	Unchanged  int64     `json:"unchanged"`
	Skipped    int64     `json:"skipped"`
	Excluded   int64     `json:"excluded"`
	Failed     int64     `json:"failed"`
	Pruned     int64     `json:"pruned"`
}

// Scan run statuses.
const (
	RunStatusRunning     = "running"
	RunStatusDone        = "done"
	RunStatusInterrupted = "interrupted"
)
