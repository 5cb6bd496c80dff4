package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/execution"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]entity.Job
}

func (r *memRepo) Create(_ context.Context, job *entity.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *memRepo) Update(_ context.Context, job *entity.Job) error {
	return r.Create(context.Background(), job)
}

func (r *memRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return &job, nil
}

type memStorage struct {
	objects     map[string]string
	uploads     map[string]string
	contentType string
}

func (s *memStorage) DownloadInput(_ context.Context, key, dest string) error {
	body, ok := s.objects[key]
	if !ok {
		return fmt.Errorf("object %s not found", key)
	}
	return os.WriteFile(dest, []byte(body), 0644)
}

func (s *memStorage) UploadOutput(_ context.Context, key string, r io.Reader, _ int64, contentType string) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.uploads[key] = string(body)
	s.contentType = contentType
	return nil
}

// scriptedMedia stands in for the orchestrator.
type scriptedMedia struct {
	err  error
	seen []MediaRequest
}

func (m *scriptedMedia) Execute(_ context.Context, req MediaRequest) *entity.PipelineResult {
	m.seen = append(m.seen, req)
	out := entity.NormalizeOutputPath(req.Spec.SourcePath, req.Spec.TargetPath, req.Spec.OutputPath)
	if m.err != nil {
		return &entity.PipelineResult{OutputPath: out, Err: &entity.PhaseError{Phase: entity.PhaseVideoPath, Err: m.err}}
	}
	if err := os.WriteFile(out, []byte("swapped"), 0644); err != nil {
		return &entity.PipelineResult{Err: err}
	}
	return &entity.PipelineResult{Success: true, OutputPath: out, MediaKind: entity.MediaVideo, FrameCount: 72, FPS: 24}
}

type recorder struct {
	statuses []entity.JobStatusMessage
	dlq      []string
	emails   []string
}

func (r *recorder) PublishStatus(_ context.Context, msg []byte) error {
	var s entity.JobStatusMessage
	if err := json.Unmarshal(msg, &s); err != nil {
		return err
	}
	r.statuses = append(r.statuses, s)
	return nil
}

func (r *recorder) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	r.dlq = append(r.dlq, reason)
	return nil
}

func (r *recorder) NotifyFailure(_ context.Context, email, _, _, _ string) error {
	r.emails = append(r.emails, email)
	return nil
}

type messageFixture struct {
	repo    *memRepo
	storage *memStorage
	media   *scriptedMedia
	rec     *recorder
	tempDir string
	uc      *ProcessMessageUseCase
}

func newMessageFixture(t *testing.T, maxRetries int) *messageFixture {
	t.Helper()
	f := &messageFixture{
		repo: &memRepo{jobs: map[uuid.UUID]entity.Job{}},
		storage: &memStorage{
			objects: map[string]string{"u1/face.jpg": "face", "u1/clip.mp4": "clip"},
			uploads: map[string]string{},
		},
		media:   &scriptedMedia{},
		rec:     &recorder{},
		tempDir: t.TempDir(),
	}
	f.uc = NewProcessMessageUseCase(f.repo, f.storage, f.media, f.rec, f.rec, f.rec, zap.NewNop(), ProcessMessageConfig{
		TempDir:    f.tempDir,
		MaxRetries: maxRetries,
		Defaults: JobDefaults{
			Processors: []string{"face_swapper"},
			Tuning:     entity.ProcessorTuning{SimilarFaceDistance: entity.DefaultSimilarFaceDistance},
			Frames: entity.FrameOptions{
				Format:       entity.DefaultFrameFormat,
				KeepFPS:      true,
				KeepTemp:     true,
				VideoEncoder: entity.DefaultVideoEncoder,
				VideoQuality: entity.DefaultVideoQuality,
			},
			Execution: execution.Request{Providers: []string{"cpu"}, QueueCount: 1},
		},
	})
	return f
}

func (f *messageFixture) message(t *testing.T, mutate func(*entity.JobMessage)) (entity.JobMessage, []byte) {
	t.Helper()
	msg := entity.JobMessage{
		JobID:     uuid.New(),
		UserID:    "u1",
		SourceKey: "u1/face.jpg",
		TargetKey: "u1/clip.mp4",
		UserEmail: "user@example.com",
	}
	if mutate != nil {
		mutate(&msg)
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	return msg, raw
}

func TestProcessMessageUploadsOutput(t *testing.T) {
	f := newMessageFixture(t, 3)
	keepFPS := false
	msg, raw := f.message(t, func(m *entity.JobMessage) {
		m.Processors = []string{"face_swapper", "face_enhancer"}
		m.KeepFPS = &keepFPS
	})

	require.NoError(t, f.uc.Execute(context.Background(), raw))

	wantKey := fmt.Sprintf("u1/%s/source-target.mp4", msg.JobID)
	assert.Equal(t, "swapped", f.storage.uploads[wantKey])
	assert.Equal(t, "text/plain; charset=utf-8", f.storage.contentType)

	job, err := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompleted, job.Status)
	assert.Equal(t, wantKey, job.OutputKey)
	assert.Equal(t, 72, job.FrameCount)
	assert.Equal(t, 24.0, job.FPS)

	require.Len(t, f.rec.statuses, 2)
	assert.Equal(t, entity.JobStatusProcessing, f.rec.statuses[0].Status)
	assert.Equal(t, entity.JobStatusCompleted, f.rec.statuses[1].Status)
	assert.Empty(t, f.rec.dlq)

	require.Len(t, f.media.seen, 1)
	spec := f.media.seen[0].Spec
	assert.Equal(t, []string{"face_swapper", "face_enhancer"}, spec.Processors)
	assert.False(t, spec.Frames.KeepFPS)
	assert.False(t, spec.Frames.KeepTemp)
	assert.Equal(t, entity.DefaultSimilarFaceDistance, spec.Tuning.SimilarFaceDistance)
	assert.Equal(t, []string{"cpu"}, f.media.seen[0].Execution.Providers)

	_, err = os.Stat(filepath.Join(f.tempDir, msg.JobID.String()))
	assert.True(t, os.IsNotExist(err), "per-job directory should be removed")
}

func TestProcessMessageMalformedGoesToDLQ(t *testing.T) {
	f := newMessageFixture(t, 3)

	require.NoError(t, f.uc.Execute(context.Background(), []byte("{not json")))

	require.Len(t, f.rec.dlq, 1)
	assert.Contains(t, f.rec.dlq[0], "unmarshal_error")
	assert.Empty(t, f.media.seen)
}

func TestProcessMessageRetryableFailure(t *testing.T) {
	f := newMessageFixture(t, 3)
	f.media.err = fmt.Errorf("%w: no frames", entity.ErrExtraction)
	msg, raw := f.message(t, nil)

	err := f.uc.Execute(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempt 1/3")

	job, findErr := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, findErr)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Empty(t, f.rec.dlq)
	assert.Empty(t, f.rec.emails)
}

func TestProcessMessageConfigurationErrorIsPermanent(t *testing.T) {
	f := newMessageFixture(t, 3)
	f.media.err = fmt.Errorf("%w: unsupported video encoder", entity.ErrConfiguration)
	_, raw := f.message(t, nil)

	require.NoError(t, f.uc.Execute(context.Background(), raw))

	assert.Len(t, f.rec.dlq, 1)
	assert.Equal(t, []string{"user@example.com"}, f.rec.emails)
	last := f.rec.statuses[len(f.rec.statuses)-1]
	assert.Equal(t, entity.JobStatusFailed, last.Status)
}

func TestProcessMessageExhaustsRetries(t *testing.T) {
	f := newMessageFixture(t, 1)
	f.media.err = fmt.Errorf("%w: encoder crashed", entity.ErrReassembly)
	_, raw := f.message(t, nil)

	require.NoError(t, f.uc.Execute(context.Background(), raw))
	assert.Len(t, f.rec.dlq, 1)

	// redelivery of the same message is rejected without running again
	require.NoError(t, f.uc.Execute(context.Background(), raw))
	assert.Len(t, f.media.seen, 1)
	assert.Len(t, f.rec.dlq, 2)
}

func TestProcessMessageDownloadFailureRetries(t *testing.T) {
	f := newMessageFixture(t, 3)
	_, raw := f.message(t, func(m *entity.JobMessage) { m.TargetKey = "u1/missing.mp4" })

	err := f.uc.Execute(context.Background(), raw)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "download_input")
	assert.Empty(t, f.media.seen)
}
