package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/conduit/internal/observability"
	"github.com/haasonsaas/conduit/pkg/contract"
)

// Repository pairs a payload backend with a SQLite metadata table. Metadata
// is persisted apart from payloads so listing and cleanup never read payload
// files. The metadata table is process-wide shared state mutated by
// concurrent tool calls; row-level consistency comes from the database.
type Repository struct {
	db      *sql.DB
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewRepository creates a metadata-backed artifact repository and ensures
// the schema exists.
func NewRepository(db *sql.DB, store Store, logger *slog.Logger, metrics *observability.Metrics) (*Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if store == nil {
		return nil, fmt.Errorf("payload store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Repository{db: db, store: store, logger: logger, metrics: metrics}
	if err := r.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS artifacts (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			size_bytes INTEGER NOT NULL,
			hash TEXT NOT NULL,
			tool_name TEXT,
			summary TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at);
	`)
	if err != nil {
		return fmt.Errorf("create artifacts schema: %w", err)
	}
	return nil
}

// Close closes the payload backend. The database handle is shared with the
// trace/metrics index and is closed by its owner.
func (r *Repository) Close() error {
	return r.store.Close()
}

// StoreArtifact persists a payload and its metadata, returning the artifact
// ID, the observation text for the LLM, and the metadata row. IDs are
// content-derived: storing an identical payload again returns the existing
// metadata without rewriting the file.
func (r *Repository) StoreArtifact(ctx context.Context, data []byte, toolName, summary string) (string, string, *Metadata, error) {
	id := ArtifactID(data)

	if meta, err := r.lookup(ctx, id); err == nil {
		return id, observationFor(meta), meta, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return "", "", nil, err
	}

	if err := r.store.Put(ctx, id, data); err != nil {
		r.countOp("store", "error")
		return "", "", nil, fmt.Errorf("store artifact payload: %w", err)
	}

	meta := &Metadata{
		ArtifactID: id,
		Filename:   id + ".bin",
		CreatedAt:  time.Now().UTC(),
		SizeBytes:  int64(len(data)),
		Hash:       ContentHash(data),
		ToolName:   toolName,
		Summary:    summary,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, filename, created_at, size_bytes, hash, tool_name, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, meta.ArtifactID, meta.Filename, meta.CreatedAt, meta.SizeBytes, meta.Hash, meta.ToolName, meta.Summary)
	if err != nil {
		r.countOp("store", "error")
		return "", "", nil, fmt.Errorf("store artifact metadata: %w", err)
	}

	if r.metrics != nil {
		r.metrics.RecordArtifactWrite(meta.SizeBytes)
	}
	r.logger.Info("artifact stored",
		"artifact_id", id,
		"tool", toolName,
		"size_bytes", meta.SizeBytes)
	return id, observationFor(meta), meta, nil
}

// Offload implements contract.Offloader for the result-shaping layer.
func (r *Repository) Offload(data []byte, toolName, summary string) (string, string, error) {
	id, observation, _, err := r.StoreArtifact(context.Background(), data, toolName, summary)
	return id, observation, err
}

// Retrieve returns a payload by ID. The ID is validated before any file or
// database access; a validation failure is a security error.
func (r *Repository) Retrieve(ctx context.Context, artifactID string) ([]byte, error) {
	if err := ValidateID(artifactID); err != nil {
		r.countOp("reject", "error")
		return nil, err
	}
	if _, err := r.lookup(ctx, artifactID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.countOp("retrieve", "error")
			return nil, contract.NewError(contract.ErrTool, "artifact not found: %s", artifactID)
		}
		return nil, err
	}
	data, err := r.store.Get(ctx, artifactID)
	if err != nil {
		r.countOp("retrieve", "error")
		return nil, err
	}
	r.countOp("retrieve", "success")
	return data, nil
}

// GetMetadata returns an artifact's metadata without reading the payload.
func (r *Repository) GetMetadata(ctx context.Context, artifactID string) (*Metadata, error) {
	if err := ValidateID(artifactID); err != nil {
		r.countOp("reject", "error")
		return nil, err
	}
	meta, err := r.lookup(ctx, artifactID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contract.NewError(contract.ErrTool, "artifact not found: %s", artifactID)
	}
	return meta, err
}

// Delete removes an artifact's payload and metadata. Returns whether the
// artifact existed.
func (r *Repository) Delete(ctx context.Context, artifactID string) (bool, error) {
	if err := ValidateID(artifactID); err != nil {
		r.countOp("reject", "error")
		return false, err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = ?`, artifactID)
	if err != nil {
		return false, fmt.Errorf("delete artifact metadata: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}

	if err := r.store.Delete(ctx, artifactID); err != nil {
		// The metadata row is gone; the orphaned payload is picked up by a
		// later cleanup pass.
		r.logger.Warn("artifact payload delete failed",
			"artifact_id", artifactID,
			"error", err)
	}
	r.countOp("delete", "success")
	return true, nil
}

// List returns the most recent artifact metadata rows, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]*Metadata, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, filename, created_at, size_bytes, hash, tool_name, summary
		FROM artifacts ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*Metadata
	for rows.Next() {
		meta := &Metadata{}
		if err := rows.Scan(&meta.ArtifactID, &meta.Filename, &meta.CreatedAt,
			&meta.SizeBytes, &meta.Hash, &meta.ToolName, &meta.Summary); err != nil {
			return nil, fmt.Errorf("scan artifact row: %w", err)
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

// Cleanup deletes artifacts older than maxAge and returns the count removed.
// Payload deletion failures leave orphans that later passes tolerate.
func (r *Repository) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM artifacts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("query stale artifacts: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close() //nolint:errcheck
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close() //nolint:errcheck
	if err := rows.Err(); err != nil {
		return 0, err
	}

	count := 0
	for _, id := range ids {
		if ok, err := r.Delete(ctx, id); err == nil && ok {
			count++
		}
	}
	if count > 0 {
		r.logger.Info("artifact cleanup complete", "removed", count)
	}
	return count, nil
}

func (r *Repository) lookup(ctx context.Context, artifactID string) (*Metadata, error) {
	meta := &Metadata{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, filename, created_at, size_bytes, hash, tool_name, summary
		FROM artifacts WHERE id = ?
	`, artifactID).Scan(&meta.ArtifactID, &meta.Filename, &meta.CreatedAt,
		&meta.SizeBytes, &meta.Hash, &meta.ToolName, &meta.Summary)
	if err != nil {
		return nil, err
	}
	return meta, nil
}

func (r *Repository) countOp(op, status string) {
	if r.metrics != nil {
		r.metrics.RecordArtifactOp(op, status)
	}
}

// observationFor renders the LLM-facing description of a stored artifact:
// ID, size, and summary only. Never a path.
func observationFor(meta *Metadata) string {
	obs := fmt.Sprintf("Result stored as artifact %s (%d bytes)", meta.ArtifactID, meta.SizeBytes)
	if meta.Summary != "" {
		obs += ": " + meta.Summary
	}
	return obs
}
