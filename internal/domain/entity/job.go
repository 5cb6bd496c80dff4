package entity

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Job is the persisted record of one queued swap request.
type Job struct {
	ID           uuid.UUID
	UserID       string
	SourceKey    string
	TargetKey    string
	OutputKey    string
	MediaKind    MediaKind
	Status       JobStatus
	FrameCount   int
	FPS          float64
	Attempt      int
	MaxAttempts  int
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

func NewJob(userID, sourceKey, targetKey string, maxAttempts int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		UserID:      userID,
		SourceKey:   sourceKey,
		TargetKey:   targetKey,
		Status:      JobStatusPending,
		Attempt:     0,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (j *Job) MarkProcessing() {
	j.Status = JobStatusProcessing
	j.Attempt++
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) MarkCompleted(outputKey string, result *PipelineResult) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.OutputKey = outputKey
	if result != nil {
		j.MediaKind = result.MediaKind
		j.FrameCount = result.FrameCount
		j.FPS = result.FPS
	}
	j.UpdatedAt = now
	j.CompletedAt = &now
}

func (j *Job) MarkFailed(errMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMessage = errMsg
	j.UpdatedAt = time.Now().UTC()
}

func (j *Job) CanRetry() bool {
	return j.Attempt < j.MaxAttempts
}
