package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/billvault/internal/domain"
)

// Archiver moves aged audit log entries out of the primary store into
// S3-hosted JSONL files. Entries are deleted from Postgres only after the
// upload succeeds, so a failed run leaves the primary store intact and the
// next run re-archives the same window.
type Archiver struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveAuditLog uploads all audit entries created strictly before the
// cutoff to S3 and then deletes them from the primary store. It returns the
// number of entries archived.
func (a *Archiver) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	deleted, err := a.audit.DeleteBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit delete: %w", err)
	}

	a.logger.InfoContext(ctx, "audit log archived",
		slog.String("path", path),
		slog.Int("archived", len(entries)),
		slog.Int64("deleted", deleted),
	)

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  len(entries),
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	return int64(len(entries)), nil
}

// Run archives on the given interval until the context is cancelled. Each run
// archives entries older than retention. An archival failure is logged and
// retried on the next tick.
func (a *Archiver) Run(ctx context.Context, interval, retention time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-retention)
			if _, err := a.ArchiveAuditLog(ctx, cutoff); err != nil {
				a.logger.ErrorContext(ctx, "audit archival failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/audit/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
