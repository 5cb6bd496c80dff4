package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/domain/port"
	"github.com/WrongMoves/roop/internal/execution"
	"github.com/WrongMoves/roop/internal/infra/metrics"
	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MediaProcessor runs one job to a terminal state.
type MediaProcessor interface {
	Execute(ctx context.Context, req MediaRequest) *entity.PipelineResult
}

// JobDefaults fill the parts of a queued job the message leaves out.
type JobDefaults struct {
	Processors []string
	Tuning     entity.ProcessorTuning
	Frames     entity.FrameOptions
	Execution  execution.Request
}

type ProcessMessageConfig struct {
	TempDir    string
	MaxRetries int
	Defaults   JobDefaults
}

// ProcessMessageUseCase handles one message from the processing queue:
// fetch inputs, orchestrate, upload the result and report status.
type ProcessMessageUseCase struct {
	repo      port.JobRepository
	storage   port.ObjectStorage
	media     MediaProcessor
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	tempDir   string
	maxRetry  int
	defaults  JobDefaults
}

func NewProcessMessageUseCase(
	repo port.JobRepository,
	storage port.ObjectStorage,
	media MediaProcessor,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ProcessMessageConfig,
) *ProcessMessageUseCase {
	return &ProcessMessageUseCase{
		repo:      repo,
		storage:   storage,
		media:     media,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
		defaults:  cfg.Defaults,
	}
}

// Execute returns an error only when the message should be redelivered.
func (uc *ProcessMessageUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessMessageUseCase.Execute")
	defer span.End()

	var msg entity.JobMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.target_key", msg.TargetKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("target_key", msg.TargetKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.SourceKey, msg.TargetKey, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}
	uc.publishStatus(ctx, job, log)

	return uc.processJob(ctx, job, msg, rawMsg, log)
}

func (uc *ProcessMessageUseCase) processJob(
	ctx context.Context,
	job *entity.Job,
	msg entity.JobMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	outDir := filepath.Join(workDir, "output")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	dlStart := time.Now()
	ctxDl, spanDl := tracer.Start(ctx, "download_inputs")
	sourcePath := filepath.Join(workDir, "source"+path.Ext(msg.SourceKey))
	targetPath := filepath.Join(workDir, "target"+path.Ext(msg.TargetKey))
	for key, dest := range map[string]string{msg.SourceKey: sourcePath, msg.TargetKey: targetPath} {
		if err := uc.storage.DownloadInput(ctxDl, key, dest); err != nil {
			spanDl.End()
			log.Error("failed to download input", zap.String("key", key), zap.Error(err))
			return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_input: "+err.Error(), log)
		}
	}
	spanDl.End()
	metrics.PhaseDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	req := uc.buildRequest(msg, sourcePath, targetPath, outDir)
	result := uc.media.Execute(ctx, req)
	if !result.Success {
		errMsg := "process_media: " + result.Err.Error()
		if isPermanent(result.Err) {
			return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
		}
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, errMsg, log)
	}
	for _, w := range result.Warnings {
		log.Warn("job finished with warning", zap.Error(w))
	}

	upStart := time.Now()
	ctxUp, spanUp := tracer.Start(ctx, "upload_output")
	outputKey := fmt.Sprintf("%s/%s/%s", msg.UserID, job.ID.String(), filepath.Base(result.OutputPath))
	if err := uc.uploadOutput(ctxUp, outputKey, result.OutputPath); err != nil {
		spanUp.End()
		log.Error("output upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_output: "+err.Error(), log)
	}
	spanUp.End()
	metrics.PhaseDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	job.MarkCompleted(outputKey, result)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.String("media_kind", string(result.MediaKind)),
		zap.Int("frame_count", result.FrameCount),
		zap.String("output_key", outputKey),
	)
	return nil
}

// buildRequest overlays the message on the configured defaults.
func (uc *ProcessMessageUseCase) buildRequest(msg entity.JobMessage, sourcePath, targetPath, outDir string) MediaRequest {
	spec := entity.JobSpec{
		SourcePath: sourcePath,
		TargetPath: targetPath,
		OutputPath: outDir,
		Processors: uc.defaults.Processors,
		Tuning:     uc.defaults.Tuning,
		Frames:     uc.defaults.Frames,
	}
	if len(msg.Processors) > 0 {
		spec.Processors = msg.Processors
	}
	if msg.Tuning != nil {
		spec.Tuning = *msg.Tuning
		if spec.Tuning.SimilarFaceDistance == 0 {
			spec.Tuning.SimilarFaceDistance = uc.defaults.Tuning.SimilarFaceDistance
		}
	}
	if msg.SkipAudio {
		spec.Frames.SkipAudio = true
	}
	if msg.KeepFPS != nil {
		spec.Frames.KeepFPS = *msg.KeepFPS
	}
	// a queued job never keeps its frames; the work dir is removed anyway
	spec.Frames.KeepTemp = false
	return MediaRequest{Spec: spec, Execution: uc.defaults.Execution}
}

func (uc *ProcessMessageUseCase) uploadOutput(ctx context.Context, key, outputPath string) error {
	f, err := os.Open(outputPath)
	if err != nil {
		return err
	}
	defer f.Close()
	stat, err := f.Stat()
	if err != nil {
		return err
	}
	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(outputPath); err == nil {
		contentType = mt.String()
	}
	return uc.storage.UploadOutput(ctx, key, f, stat.Size(), contentType)
}

// isPermanent reports errors a redelivery cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, entity.ErrConfiguration) || errors.Is(err, entity.ErrUnknownProcessor)
}

func (uc *ProcessMessageUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.JobMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ProcessMessageUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.JobMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.TargetKey, errMsg)
	}

	return nil
}

func (uc *ProcessMessageUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.JobStatusMessage{
		JobID:        job.ID,
		UserID:       job.UserID,
		Status:       job.Status,
		TargetKey:    job.TargetKey,
		OutputKey:    job.OutputKey,
		MediaKind:    job.MediaKind,
		FrameCount:   job.FrameCount,
		FPS:          job.FPS,
		ErrorMessage: job.ErrorMessage,
		Attempt:      job.Attempt,
		MaxAttempts:  job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}
