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

// UpsertResult says what UpsertService did with a record.
type UpsertResult int

const (
	Inserted UpsertResult = iota + 1
	Updated
	Unchanged
)

func (r UpsertResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

const serviceColumns = `source_path, origin, country, route, timetable, service_name, kind,
	category, train_number, locomotive, length_m, mass_t, line, timetable_group,
	start_time, end_time, duration, entry_point, end_station, start_kind, end_kind,
	stop_count, stops, has_events, turnarounds, distance_km, avg_speed_kmh,
	content_hash, scanned_at, scan_id`

// UpsertService writes rec in its own transaction, keyed by SourcePath.
// A row with the same content hash only gets scanID and scannedAt
// refreshed. Failures are returned as *WriteError.
func (s *Store) UpsertService(ctx context.Context, rec ir.ServiceRecord, scanID string, scannedAt time.Time) (UpsertResult, error) {
	if rec.SourcePath == "" {
		return 0, &WriteError{Path: rec.SourcePath, Err: errors.New("empty source path")}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &WriteError{Path: rec.SourcePath, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer tx.Rollback() // No-op if committed

	result, err := upsertService(ctx, tx, rec, scanID, formatTime(scannedAt))
	if err != nil {
		return 0, &WriteError{Path: rec.SourcePath, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return 0, &WriteError{Path: rec.SourcePath, Err: fmt.Errorf("commit: %w", err)}
	}

	return result, nil
}

func upsertService(ctx context.Context, tx *sql.Tx, rec ir.ServiceRecord, scanID, scannedAt string) (UpsertResult, error) {
	var storedHash string
	err := tx.QueryRowContext(ctx,
		`SELECT content_hash FROM services WHERE source_path = ?`,
		rec.SourcePath,
	).Scan(&storedHash)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, insertServiceSQL, serviceArgs(rec, scanID, scannedAt)...); err != nil {
			return 0, fmt.Errorf("insert service: %w", err)
		}
		return Inserted, nil

	case err != nil:
		return 0, fmt.Errorf("read content hash: %w", err)

	case storedHash == rec.ContentHash:
		if _, err := tx.ExecContext(ctx,
			`UPDATE services SET scan_id = ?, scanned_at = ? WHERE source_path = ?`,
			scanID, scannedAt, rec.SourcePath,
		); err != nil {
			return 0, fmt.Errorf("touch service: %w", err)
		}
		return Unchanged, nil

	default:
		if _, err := tx.ExecContext(ctx, insertServiceSQL, serviceArgs(rec, scanID, scannedAt)...); err != nil {
			return 0, fmt.Errorf("replace service: %w", err)
		}
		return Updated, nil
	}
}

// insertServiceSQL inserts a row or replaces every data column of the row
// with the same source_path. The row id is kept.
var insertServiceSQL = buildInsertServiceSQL()

func buildInsertServiceSQL() string {
	cols := strings.Split(serviceColumns, ",")
	names := make([]string, len(cols))
	updates := make([]string, 0, len(cols))
	for i, c := range cols {
		names[i] = strings.TrimSpace(c)
		if names[i] != "source_path" {
			updates = append(updates, names[i]+" = excluded."+names[i])
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ")

	return "INSERT INTO services (" + strings.Join(names, ", ") + ")\n" +
		"VALUES (" + placeholders + ")\n" +
		"ON CONFLICT(source_path) DO UPDATE SET " + strings.Join(updates, ", ")
}

func serviceArgs(rec ir.ServiceRecord, scanID, scannedAt string) []any {
	return []any{
		rec.SourcePath,
		string(rec.Origin),
		rec.Country,
		rec.Route,
		rec.Timetable,
		rec.ServiceName,
		string(rec.Kind),
		rec.Category,
		rec.TrainNumber,
		rec.Locomotive,
		rec.LengthM,
		rec.MassT,
		rec.Line,
		rec.TimetableGroup,
		rec.StartTime,
		rec.EndTime,
		rec.Duration,
		rec.EntryPoint,
		rec.EndStation,
		string(rec.StartKind),
		string(rec.EndKind),
		rec.StopCount,
		rec.Stops,
		rec.HasEvents,
		rec.Turnarounds,
		rec.DistanceKm,
		rec.AvgSpeedKmh,
		rec.ContentHash,
		scannedAt,
		scanID,
	}
}

// BeginRun records the start of a scan.
func (s *Store) BeginRun(ctx context.Context, run ir.ScanRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_runs (id, started_at, status)
		VALUES (?, ?, ?)
	`, run.ID, formatTime(run.StartedAt), run.Status)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stores the final counters and status of a scan.
func (s *Store) FinishRun(ctx context.Context, run ir.ScanRun) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scan_runs
		SET finished_at = ?, status = ?,
		    scanned = ?, ingested = ?, unchanged = ?, skipped = ?,
		    excluded = ?, failed = ?, pruned = ?
		WHERE id = ?
	`,
		nullTime(run.FinishedAt),
		run.Status,
		run.Scanned,
		run.Ingested,
		run.Unchanged,
		run.Skipped,
		run.Excluded,
		run.Failed,
		run.Pruned,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrNotFound)
	}
	return nil
}

// Prune deletes services below any of roots that were not seen by scanID.
// roots are slash-separated absolute directories. Rows outside the given
// roots are never touched. Returns the number of deleted rows.
func (s *Store) Prune(ctx context.Context, roots []string, scanID string) (int64, error) {
	var total int64
	for _, root := range roots {
		prefix := strings.TrimSuffix(root, "/") + "/"
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM services
			WHERE scan_id <> ?
			  AND substr(source_path, 1, length(?)) = ?
		`, scanID, prefix, prefix)
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", root, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("prune %s: %w", root, err)
		}
		total += n
	}
	return total, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
