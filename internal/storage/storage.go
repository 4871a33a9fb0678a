// Package storage keeps run artifacts (datasets, model snapshots, reports) in
// an object store.
package storage

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
)

// ArtifactStore reads and writes whole objects by key
type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Copy(ctx context.Context, src, dst string) error
}

const (
	ContentTypeJSON = "application/json"
)

// DatasetKey is where the uploaded frame of a run is kept
func DatasetKey(runID uuid.UUID) string {
	return path.Join("datasets", runID.String()+".json")
}

// SnapshotKey is where the fitted model of a run is kept
func SnapshotKey(runID uuid.UUID) string {
	return path.Join("models", runID.String(), "snapshot.json")
}

// ReportKey is where the validation uncertainty report of a run is kept
func ReportKey(runID uuid.UUID) string {
	return path.Join("reports", runID.String(), "report.json")
}

// ExportKey is the dated location an exported report is published under,
// prefix/YYYY-MM-DD/<run>.json in UTC.
func ExportKey(prefix string, day time.Time, runID uuid.UUID) string {
	return path.Join(prefix, day.UTC().Format(time.DateOnly), runID.String()+".json")
}
