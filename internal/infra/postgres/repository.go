package postgres

import (
	"context"
	"fmt"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobRepository struct {
	pool *pgxpool.Pool
}

func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

func (r *JobRepository) Create(ctx context.Context, job *entity.Job) error {
	query := `
		INSERT INTO roop_jobs (
			id, user_id, source_key, target_key, output_key, media_kind,
			status, frame_count, fps, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err := r.pool.Exec(ctx, query,
		job.ID, job.UserID, job.SourceKey, job.TargetKey, job.OutputKey, string(job.MediaKind),
		string(job.Status), job.FrameCount, job.FPS, job.Attempt, job.MaxAttempts,
		job.ErrorMessage, job.CreatedAt, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *entity.Job) error {
	query := `
		UPDATE roop_jobs SET
			status=$2, output_key=$3, media_kind=$4, frame_count=$5, fps=$6,
			attempt=$7, error_message=$8, updated_at=$9, completed_at=$10
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		job.ID, string(job.Status), job.OutputKey, string(job.MediaKind), job.FrameCount, job.FPS,
		job.Attempt, job.ErrorMessage, job.UpdatedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	query := `
		SELECT id, user_id, source_key, target_key, output_key, media_kind,
			status, frame_count, fps, attempt, max_attempts,
			error_message, created_at, updated_at, completed_at
		FROM roop_jobs WHERE id=$1`

	job := &entity.Job{}
	var status, kind string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.UserID, &job.SourceKey, &job.TargetKey, &job.OutputKey, &kind,
		&status, &job.FrameCount, &job.FPS, &job.Attempt, &job.MaxAttempts,
		&job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find job by id: %w", err)
	}
	job.Status = entity.JobStatus(status)
	job.MediaKind = entity.MediaKind(kind)
	return job, nil
}
