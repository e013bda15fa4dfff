package repositories

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"docforge/internal/pkg/errors"
)

// Export job statuses. Transitions: queued -> running -> done | failed.
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

type ExportJob struct {
	ID                 string
	TenantID           string
	ContractInstanceID string
	Format             string
	StyleTemplateID    string
	Status             string
	ResultPath         string
	ResultSize         int64
	ErrorText          string
	QueuedAt           time.Time
	StartedAt          *time.Time
	FinishedAt         *time.Time
}

type ExportJobRepository struct {
	db *pgxpool.Pool
}

func NewExportJobRepository(db *pgxpool.Pool) *ExportJobRepository {
	return &ExportJobRepository{db: db}
}

func (r *ExportJobRepository) Get(ctx context.Context, id string) (*ExportJob, error) {
	var (
		j       ExportJob
		styleID *string
		path    *string
		size    *int64
		errText *string
	)
	err := r.db.QueryRow(ctx, `
		SELECT id, tenant_id, contract_instance_id, format, style_template_id,
		       status, result_path, result_size, error_text,
		       queued_at, started_at, finished_at
		FROM export_jobs
		WHERE id=$1
	`, id).Scan(
		&j.ID, &j.TenantID, &j.ContractInstanceID, &j.Format, &styleID,
		&j.Status, &path, &size, &errText,
		&j.QueuedAt, &j.StartedAt, &j.FinishedAt,
	)
	if err != nil {
		return nil, errors.NotFound("export job", id)
	}
	if styleID != nil {
		j.StyleTemplateID = *styleID
	}
	if path != nil {
		j.ResultPath = *path
	}
	if size != nil {
		j.ResultSize = *size
	}
	if errText != nil {
		j.ErrorText = *errText
	}
	return &j, nil
}

func (r *ExportJobRepository) MarkRunning(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE export_jobs
		SET status=$2, started_at=NOW(), finished_at=NULL, error_text=NULL
		WHERE id=$1
	`, id, JobStatusRunning)
	return err
}

// MarkDone records the result location exactly once, as the final step of a
// successful export.
func (r *ExportJobRepository) MarkDone(ctx context.Context, id, resultPath string, resultSize int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE export_jobs
		SET status=$2, result_path=$3, result_size=$4, finished_at=NOW()
		WHERE id=$1
	`, id, JobStatusDone, resultPath, resultSize)
	return err
}

func (r *ExportJobRepository) MarkFailed(ctx context.Context, id, errText string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE export_jobs
		SET status=$2, finished_at=NOW(), error_text=$3
		WHERE id=$1
	`, id, JobStatusFailed, errText)
	return err
}
