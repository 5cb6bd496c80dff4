package usecase

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/domain/port"
	"github.com/WrongMoves/roop/internal/execution"
	"github.com/WrongMoves/roop/internal/governor"
	"github.com/WrongMoves/roop/internal/infra/command"
	"github.com/WrongMoves/roop/internal/infra/metrics"
	"github.com/WrongMoves/roop/internal/processor"
	"github.com/WrongMoves/roop/internal/workspace"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

const coreScope = "ROOP.CORE"

// MediaTool is the external codec tool: frame rate probing and audio remux.
type MediaTool interface {
	port.FPSDetector
	port.AudioMuxer
}

type ConfigResolver interface {
	Resolve(ctx context.Context, req execution.Request) (entity.ExecutionConfig, error)
}

type ResourceGovernor interface {
	Apply(cfg entity.ExecutionConfig) governor.Limits
}

// TargetTracker lets the interrupt handler find in-flight workspaces.
type TargetTracker interface {
	Track(targetPath string) (release func())
}

// ProcessMediaConfig wires the orchestrator's collaborators.
type ProcessMediaConfig struct {
	Resolver   ConfigResolver
	Governor   ResourceGovernor
	Registry   *processor.Registry
	StageOpts  processor.Options
	Workspaces *workspace.Manager
	Tool       MediaTool
	Inspector  port.MediaInspector
	Tracker    TargetTracker
	// CoreCheck verifies tools the core itself needs (ffmpeg). Nil skips it.
	CoreCheck func(ctx context.Context) error
}

// ProcessMediaUseCase is the media orchestrator: it resolves configuration,
// applies limits, runs preflight and then the image or the video path.
type ProcessMediaUseCase struct {
	cfg    ProcessMediaConfig
	logger *zap.Logger
}

func NewProcessMediaUseCase(cfg ProcessMediaConfig, logger *zap.Logger) *ProcessMediaUseCase {
	return &ProcessMediaUseCase{cfg: cfg, logger: logger}
}

// FFmpegCheck builds a CoreCheck that requires ffmpegPath on PATH.
func FFmpegCheck(ffmpegPath string) func(context.Context) error {
	return func(context.Context) error {
		if !command.Available(ffmpegPath) {
			return fmt.Errorf("%s is not installed", ffmpegPath)
		}
		return nil
	}
}

// MediaRequest is one job submitted to the orchestrator.
type MediaRequest struct {
	Spec      entity.JobSpec
	Execution execution.Request
	// OnStatus, if set, receives every status line as it is emitted.
	OnStatus func(entity.PhaseStatus)
}

// jobRun carries the state of one Execute call.
type jobRun struct {
	uc     *ProcessMediaUseCase
	req    MediaRequest
	job    *entity.JobContext
	result *entity.PipelineResult
	log    *zap.Logger
	// terminal is the final status line, emitted after cleanup.
	terminal string
}

// Execute runs one job to a terminal state. It never panics on job errors;
// failures are reported in the result.
func (uc *ProcessMediaUseCase) Execute(ctx context.Context, req MediaRequest) *entity.PipelineResult {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ProcessMediaUseCase.Execute")
	defer span.End()

	metrics.ActiveJobs.Inc()
	defer metrics.ActiveJobs.Dec()

	req.Spec.OutputPath = entity.NormalizeOutputPath(req.Spec.SourcePath, req.Spec.TargetPath, req.Spec.OutputPath)
	r := &jobRun{
		uc:     uc,
		req:    req,
		result: &entity.PipelineResult{OutputPath: req.Spec.OutputPath},
	}
	r.job = entity.NewJobContext(req.Spec, entity.ExecutionConfig{})
	r.log = uc.logger.With(zap.String("job_id", r.job.ID.String()), zap.String("target", req.Spec.TargetPath))
	span.SetAttributes(
		attribute.String("job.id", r.job.ID.String()),
		attribute.String("job.target", req.Spec.TargetPath),
	)

	r.run(ctx)

	if r.result.Success {
		r.emit(entity.PhaseSucceeded, coreScope, r.terminal, false)
		metrics.JobsProcessedTotal.WithLabelValues("succeeded").Inc()
		return r.result
	}
	if r.terminal == "" {
		r.terminal = "Processing failed: " + r.result.Err.Error()
	}
	r.emit(entity.PhaseFailed, coreScope, r.terminal, false)
	metrics.JobsProcessedTotal.WithLabelValues("failed").Inc()
	span.SetStatus(codes.Error, r.result.Err.Error())
	return r.result
}

func (r *jobRun) run(ctx context.Context) {
	stages, ok := r.prepare(ctx)
	if !ok {
		return
	}

	kind := r.uc.cfg.Inspector.Kind(r.req.Spec.TargetPath)
	if kind == entity.MediaImage {
		r.result.MediaKind = entity.MediaImage
		r.imagePath(ctx, stages)
		return
	}
	r.result.MediaKind = entity.MediaVideo
	r.videoPath(ctx, stages)
}

// prepare walks Idle → ConfigResolved → ResourcesLimited → PreflightChecked.
// Nothing on disk is touched before it returns true.
func (r *jobRun) prepare(ctx context.Context) (*processor.Pipeline, bool) {
	start := time.Now()
	spec := r.req.Spec
	if err := spec.Validate(); err != nil {
		r.fail(entity.PhaseIdle, err)
		return nil, false
	}
	if err := r.uc.cfg.Registry.Validate(spec.Processors); err != nil {
		r.fail(entity.PhaseIdle, fmt.Errorf("%w: %w", entity.ErrConfiguration, err))
		return nil, false
	}
	exec, err := r.uc.cfg.Resolver.Resolve(ctx, r.req.Execution)
	if err != nil {
		r.fail(entity.PhaseIdle, err)
		return nil, false
	}
	r.job.Execution = exec
	r.observe(entity.PhaseConfigResolved, start)
	r.emit(entity.PhaseConfigResolved, coreScope, fmt.Sprintf("Using %v with %d threads", exec.Providers, exec.ThreadCount), false)

	start = time.Now()
	limits := r.uc.cfg.Governor.Apply(exec)
	opts := r.uc.cfg.StageOpts
	if opts.Runner == nil {
		opts.Runner = &command.ExecRunner{Env: limits.Env}
	}
	if opts.Inspector == nil {
		opts.Inspector = r.uc.cfg.Inspector
	}
	if opts.Logger == nil {
		opts.Logger = r.log
	}
	r.observe(entity.PhaseResourcesLimited, start)
	r.emit(entity.PhaseResourcesLimited, coreScope, "Resource limits applied", false)

	start = time.Now()
	if r.uc.cfg.CoreCheck != nil {
		if err := r.uc.cfg.CoreCheck(ctx); err != nil {
			r.fail(entity.PhaseResourcesLimited, fmt.Errorf("%w: %v", entity.ErrPreflight, err))
			return nil, false
		}
	}
	stages, err := r.uc.cfg.Registry.Resolve(spec.Processors, opts)
	if err != nil {
		r.fail(entity.PhaseResourcesLimited, fmt.Errorf("%w: %w", entity.ErrConfiguration, err))
		return nil, false
	}
	pipe := processor.NewPipeline(stages, r.log, func(scope, msg string) {
		r.emit(r.result.Final(), scope, msg, false)
	})
	if err := pipe.PreCheck(ctx); err != nil {
		r.fail(entity.PhaseResourcesLimited, err)
		return nil, false
	}
	if err := pipe.PreStart(ctx, r.job); err != nil {
		r.fail(entity.PhaseResourcesLimited, err)
		return nil, false
	}
	r.observe(entity.PhasePreflightChecked, start)
	r.emit(entity.PhasePreflightChecked, coreScope, fmt.Sprintf("Frame processors ready: %v", pipe.Names()), false)
	return pipe, true
}

func (r *jobRun) imagePath(ctx context.Context, pipe *processor.Pipeline) {
	start := time.Now()
	spec := r.req.Spec
	r.emit(entity.PhaseImagePath, coreScope, "Processing image...", false)

	if err := copyFile(spec.TargetPath, spec.OutputPath); err != nil {
		r.fail(entity.PhaseImagePath, fmt.Errorf("copy target to output: %w", err))
		return
	}
	if err := pipe.RunImage(ctx, spec.SourcePath, spec.OutputPath); err != nil {
		r.fail(entity.PhaseImagePath, err)
		return
	}
	r.observe(entity.PhaseImagePath, start)

	if !r.uc.cfg.Inspector.IsImage(spec.OutputPath) {
		r.fail(entity.PhaseImagePath, fmt.Errorf("%w: output is not a valid image", entity.ErrValidation))
		r.terminal = "Processing to image failed!"
		return
	}
	r.succeed("Processing to image succeed!")
}

func (r *jobRun) videoPath(ctx context.Context, pipe *processor.Pipeline) {
	spec := r.req.Spec
	opts := spec.Frames
	cfg := r.uc.cfg

	if cfg.Tracker != nil {
		release := cfg.Tracker.Track(spec.TargetPath)
		defer release()
	}

	start := time.Now()
	r.emit(entity.PhaseVideoPath, coreScope, "Creating temporary resources...", false)
	ws, err := cfg.Workspaces.Create(spec.TargetPath, opts.Format)
	if err != nil {
		r.fail(entity.PhaseVideoPath, err)
		return
	}

	cleaned := false
	cleanup := func(reason string) {
		if cleaned {
			return
		}
		cleaned = true
		r.emit(entity.PhaseCleaningUp, coreScope, "Cleaning temporary resources...", false)
		if err := ws.Discard(opts.KeepTemp); err != nil {
			r.warn(entity.PhaseCleaningUp, err)
			return
		}
		if !opts.KeepTemp {
			metrics.WorkspaceDiscardsTotal.WithLabelValues(reason).Inc()
		}
	}
	// every exit below funnels through the same release path
	defer cleanup("aborted")

	fps := workspace.FrameRate(ctx, cfg.Tool, spec.TargetPath, opts.KeepFPS)
	r.result.FPS = fps
	r.emit(entity.PhaseVideoPath, coreScope, fmt.Sprintf("Extracting frames with %s FPS...", formatFPS(fps)), false)
	if err := ws.Populate(ctx, fps, opts.Quality); err != nil {
		r.fail(entity.PhaseVideoPath, err)
		return
	}
	frames, err := ws.ListFrames()
	if err != nil {
		r.fail(entity.PhaseVideoPath, fmt.Errorf("%w: %v", entity.ErrExtraction, err))
		return
	}
	if len(frames) == 0 {
		r.emit(entity.PhaseVideoPath, coreScope, "Temporary frames not found...", false)
		r.fail(entity.PhaseVideoPath, fmt.Errorf("%w: no frames", entity.ErrExtraction))
		return
	}
	r.result.FrameCount = len(frames)
	metrics.FramesExtractedTotal.Add(float64(len(frames)))

	if err := pipe.RunVideo(ctx, spec.SourcePath, frames); err != nil {
		r.fail(entity.PhaseVideoPath, err)
		return
	}
	r.observe(entity.PhaseVideoPath, start)
	if err := ctx.Err(); err != nil {
		r.fail(entity.PhaseVideoPath, fmt.Errorf("%w: %v", entity.ErrCancelled, err))
		return
	}

	start = time.Now()
	r.emit(entity.PhaseReassembling, coreScope, fmt.Sprintf("Creating video with %s FPS...", formatFPS(fps)), false)
	reassembled := true
	if err := ws.Finalize(ctx, fps, opts.VideoEncoder, opts.VideoQuality); err != nil {
		reassembled = false
		r.warn(entity.PhaseReassembling, err)
		r.emit(entity.PhaseReassembling, coreScope, "Creating video failed...", true)
	}
	r.observe(entity.PhaseReassembling, start)

	start = time.Now()
	r.handleAudio(ctx, ws, reassembled)
	r.observe(entity.PhaseAudioHandling, start)

	cleanup("completed")

	if !cfg.Inspector.IsVideo(spec.OutputPath) {
		err := fmt.Errorf("%w: output is not a valid video", entity.ErrValidation)
		if !reassembled {
			err = fmt.Errorf("%w: %w", entity.ErrReassembly, err)
		}
		r.fail(entity.PhaseCleaningUp, err)
		r.terminal = "Processing to video failed!"
		return
	}
	r.succeed("Processing to video succeed!")
}

// handleAudio either moves the silent video into place or remuxes the
// target's audio onto it, falling back to the silent video.
func (r *jobRun) handleAudio(ctx context.Context, ws *workspace.Workspace, reassembled bool) {
	spec := r.req.Spec
	if spec.Frames.SkipAudio {
		r.emit(entity.PhaseAudioHandling, coreScope, "Skipping audio...", false)
		if err := ws.MoveVideo(spec.OutputPath); err != nil {
			r.warn(entity.PhaseAudioHandling, err)
		}
		return
	}
	if spec.Frames.KeepFPS {
		r.emit(entity.PhaseAudioHandling, coreScope, "Restoring audio...", false)
	} else {
		r.emit(entity.PhaseAudioHandling, coreScope, "Restoring audio might cause issues as fps are not kept...", true)
	}
	if !reassembled {
		r.warn(entity.PhaseAudioHandling, fmt.Errorf("%w: no reassembled video to remux", entity.ErrAudio))
		return
	}
	if err := r.uc.cfg.Tool.RestoreAudio(ctx, ws.VideoPath(), spec.TargetPath, spec.OutputPath); err != nil {
		r.warn(entity.PhaseAudioHandling, fmt.Errorf("%w: %v", entity.ErrAudio, err))
		if err := ws.MoveVideo(spec.OutputPath); err != nil {
			r.warn(entity.PhaseAudioHandling, err)
		}
	}
}

func (r *jobRun) emit(phase entity.Phase, scope, message string, warning bool) {
	status := entity.PhaseStatus{Phase: phase, Scope: scope, Message: message, Warning: warning}
	r.result.Statuses = append(r.result.Statuses, status)
	fields := []zap.Field{zap.String("phase", string(phase)), zap.String("scope", scope)}
	if warning {
		r.log.Warn(message, fields...)
	} else {
		r.log.Info(message, fields...)
	}
	if r.req.OnStatus != nil {
		r.req.OnStatus(status)
	}
}

func (r *jobRun) warn(phase entity.Phase, err error) {
	r.result.Warnings = append(r.result.Warnings, &entity.PhaseError{Phase: phase, Err: err})
	r.log.Warn("phase degraded", zap.String("phase", string(phase)), zap.Error(err))
}

// fail records the terminal error; the Failed status itself is emitted by
// Execute once cleanup has run.
func (r *jobRun) fail(phase entity.Phase, err error) {
	r.result.Success = false
	r.result.Err = &entity.PhaseError{Phase: phase, Err: err}
	r.emit(phase, coreScope, err.Error(), true)
}

func (r *jobRun) succeed(message string) {
	r.result.Success = true
	r.terminal = message
}

func (r *jobRun) observe(phase entity.Phase, start time.Time) {
	metrics.PhaseDuration.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dest, info.ModTime(), info.ModTime())
}

func formatFPS(fps float64) string {
	return fmt.Sprintf("%g", fps)
}
