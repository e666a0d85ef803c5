package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/zugdienste/internal/ir"
)

// Service is a stored record together with the scan that last wrote it.
type Service struct {
	ir.ServiceRecord
	ScanID    string    `json:"scan_id"`
	ScannedAt time.Time `json:"scanned_at"`
}

// ListFilter narrows List. Zero values match everything.
type ListFilter struct {
	Route      string // case-insensitive substring
	Locomotive string // case-insensitive substring
	Origin     ir.Origin
	Kind       ir.ServiceKind
	Limit      int // 0 means no limit
}

// Stats summarizes the catalogue.
type Stats struct {
	Services int64                    `json:"services"`
	ByOrigin map[ir.Origin]int64      `json:"by_origin"`
	ByKind   map[ir.ServiceKind]int64 `json:"by_kind"`
	Routes   int64                    `json:"routes"`
	LastRun  *ir.ScanRun              `json:"last_run,omitempty"`
}

// GetService retrieves a single service by source path.
// Returns ErrNotFound if not found.
func (s *Store) GetService(ctx context.Context, sourcePath string) (Service, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE source_path = ?
	`, sourcePath)

	svc, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Service{}, fmt.Errorf("service %s: %w", sourcePath, ErrNotFound)
	}
	return svc, err
}

// CountServices returns the number of stored services.
func (s *Store) CountServices(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM services`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count services: %w", err)
	}
	return n, nil
}

// ListServices returns services matching f ordered by country, route,
// timetable, service name and source path.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ListServices(ctx context.Context, f ListFilter) ([]Service, error) {
	var (
		where []string
		args  []any
	)
	if f.Route != "" {
		where = append(where, "instr(lower(route), lower(?)) > 0")
		args = append(args, f.Route)
	}
	if f.Locomotive != "" {
		where = append(where, "instr(lower(locomotive), lower(?)) > 0")
		args = append(args, f.Locomotive)
	}
	if f.Origin != "" {
		where = append(where, "origin = ?")
		args = append(args, string(f.Origin))
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}

	query := "SELECT " + serviceColumns + " FROM services"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY country, route, timetable, service_name, source_path COLLATE BINARY"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	defer rows.Close()

	services := []Service{}
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}

	return services, nil
}

// Stats returns row counts by origin and kind plus the latest scan run.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		ByOrigin: map[ir.Origin]int64{},
		ByKind:   map[ir.ServiceKind]int64{},
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(DISTINCT route) FROM services`,
	).Scan(&st.Services, &st.Routes); err != nil {
		return Stats{}, fmt.Errorf("count services: %w", err)
	}

	if err := s.countBy(ctx, "origin", func(k string, n int64) { st.ByOrigin[ir.Origin(k)] = n }); err != nil {
		return Stats{}, err
	}
	if err := s.countBy(ctx, "kind", func(k string, n int64) { st.ByKind[ir.ServiceKind(k)] = n }); err != nil {
		return Stats{}, err
	}

	run, err := s.LastRun(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return Stats{}, err
	default:
		st.LastRun = &run
	}

	return st, nil
}

// countBy groups services by a fixed column name.
func (s *Store) countBy(ctx context.Context, column string, add func(string, int64)) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+column+", COUNT(*) FROM services GROUP BY "+column+" ORDER BY "+column)
	if err != nil {
		return fmt.Errorf("count by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key string
			n   int64
		)
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("scan count by %s: %w", column, err)
		}
		add(key, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate count by %s: %w", column, err)
	}
	return nil
}

// LastRun returns the most recently started scan run.
// Returns ErrNotFound if no scan has run yet.
func (s *Store) LastRun(ctx context.Context) (ir.ScanRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, status,
		       scanned, ingested, unchanged, skipped, excluded, failed, pruned
		FROM scan_runs
		ORDER BY started_at DESC, id DESC
		LIMIT 1
	`)

	var (
		run        ir.ScanRun
		startedAt  string
		finishedAt sql.NullString
	)
	err := row.Scan(
		&run.ID, &startedAt, &finishedAt, &run.Status,
		&run.Scanned, &run.Ingested, &run.Unchanged, &run.Skipped,
		&run.Excluded, &run.Failed, &run.Pruned,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.ScanRun{}, fmt.Errorf("last run: %w", ErrNotFound)
	}
	if err != nil {
		return ir.ScanRun{}, fmt.Errorf("last run: %w", err)
	}

	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return ir.ScanRun{}, fmt.Errorf("last run %s: started_at: %w", run.ID, err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = parseTime(finishedAt.String); err != nil {
			return ir.ScanRun{}, fmt.Errorf("last run %s: finished_at: %w", run.ID, err)
		}
	}

	return run, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (Service, error) {
	var (
		svc                Service
		origin, kind       string
		startKind, endKind string
		scannedAt          string
	)
	r := &svc.ServiceRecord
	err := row.Scan(
		&r.SourcePath,
		&origin,
		&r.Country,
		&r.Route,
		&r.Timetable,
		&r.ServiceName,
		&kind,
		&r.Category,
		&r.TrainNumber,
		&r.Locomotive,
		&r.LengthM,
		&r.MassT,
		&r.Line,
		&r.TimetableGroup,
		&r.StartTime,
		&r.EndTime,
		&r.Duration,
		&r.EntryPoint,
		&r.EndStation,
		&startKind,
		&endKind,
		&r.StopCount,
		&r.Stops,
		&r.HasEvents,
		&r.Turnarounds,
		&r.DistanceKm,
		&r.AvgSpeedKmh,
		&r.ContentHash,
		&scannedAt,
		&svc.ScanID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Service{}, err
	}
	if err != nil {
		return Service{}, fmt.Errorf("scan service: %w", err)
	}

	r.Origin = ir.Origin(origin)
	r.Kind = ir.ServiceKind(kind)
	r.StartKind = ir.StationKind(startKind)
	r.EndKind = ir.StationKind(endKind)

	if svc.ScannedAt, err = parseTime(scannedAt); err != nil {
		return Service{}, fmt.Errorf("scan service %s: scanned_at: %w", r.SourcePath, err)
	}

	return svc, nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
