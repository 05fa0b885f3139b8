package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CleanupTraces removes trace index rows and their backing files older than
// maxAge. Advisory housekeeping: a file that fails to delete becomes an
// orphan that a later pass removes.
func (s *TraceStore) CleanupTraces(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	rows, err := s.db.QueryContext(ctx, `
		SELECT trace_id, filename FROM trace_index WHERE start_time < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query stale traces: %w", err)
	}
	type stale struct{ id, filename string }
	var victims []stale
	for rows.Next() {
		var v stale
		if err := rows.Scan(&v.id, &v.filename); err != nil {
			rows.Close() //nolint:errcheck
			return 0, err
		}
		victims = append(victims, v)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	for _, v := range victims {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM trace_index WHERE trace_id = ?`, v.id); err != nil {
			s.logger.Warn("trace index delete failed", "trace_id", v.id, "error", err)
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, v.filename)); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("trace file delete failed", "file", v.filename, "error", err)
		}
		count++
	}
	if count > 0 {
		s.logger.Info("trace cleanup complete", "removed", count)
	}
	return count, nil
}

// CleanupMetrics removes metrics index rows older than maxAge and deletes
// daily files whose rows are all gone.
func (s *TraceStore) CleanupMetrics(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT filename FROM metrics_index WHERE recorded_at < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query stale metrics: %w", err)
	}
	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			rows.Close() //nolint:errcheck
			return 0, err
		}
		files = append(files, f)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM metrics_index WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete stale metrics rows: %w", err)
	}
	removed, _ := res.RowsAffected()

	for _, f := range files {
		var remaining int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM metrics_index WHERE filename = ?`, f).Scan(&remaining); err != nil {
			continue
		}
		if remaining == 0 {
			if err := os.Remove(filepath.Join(s.dir, f)); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("metrics file delete failed", "file", f, "error", err)
			}
		}
	}
	if removed > 0 {
		s.logger.Info("metrics cleanup complete", "removed", removed)
	}
	return int(removed), nil
}
