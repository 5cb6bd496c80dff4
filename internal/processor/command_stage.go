package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/domain/port"
	"github.com/WrongMoves/roop/internal/infra/command"
	"github.com/WrongMoves/roop/internal/infra/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	FaceSwapper   = "face_swapper"
	FaceEnhancer  = "face_enhancer"
	FrameEnhancer = "frame_enhancer"
)

type kind struct {
	name  string
	mode  string
	model string
	// swap stages need a detectable face in the source image
	needsSourceFace bool
}

var builtinKinds = []kind{
	{name: FaceSwapper, mode: "swap", model: "inswapper_128.onnx", needsSourceFace: true},
	{name: FaceEnhancer, mode: "enhance-face", model: "GFPGANv1.4.pth"},
	{name: FrameEnhancer, mode: "enhance-frame", model: "RealESRGAN_x4plus.pth"},
}

// commandStage delegates inference to an external tool that rewrites the
// frames it is given in place.
type commandStage struct {
	kind kind
	opts Options
	log  *zap.Logger

	// job is set by PreStart and released by PostProcess.
	job *entity.JobContext
}

func newCommandStageConstructor(k kind) Constructor {
	return func(opts Options) (port.FrameProcessor, error) {
		if opts.ToolPath == "" {
			return nil, errors.New("inference tool path is required")
		}
		if opts.Runner == nil {
			opts.Runner = &command.ExecRunner{}
		}
		if opts.Logger == nil {
			opts.Logger = zap.NewNop()
		}
		return &commandStage{kind: k, opts: opts, log: opts.Logger.With(zap.String("stage", k.name))}, nil
	}
}

func (s *commandStage) Name() string { return s.kind.name }

func (s *commandStage) modelPath() string {
	return filepath.Join(s.opts.ModelsDir, s.kind.model)
}

func (s *commandStage) PreCheck(context.Context) error {
	if !command.Available(s.opts.ToolPath) {
		return fmt.Errorf("inference tool %q not found", s.opts.ToolPath)
	}
	if _, err := os.Stat(s.modelPath()); err != nil {
		return fmt.Errorf("model weights missing at %s", s.modelPath())
	}
	return nil
}

func (s *commandStage) PreStart(ctx context.Context, job *entity.JobContext) error {
	if job == nil {
		return errors.New("no job context")
	}
	insp := s.opts.Inspector
	if s.kind.needsSourceFace {
		if insp != nil && !insp.IsImage(job.Spec.SourcePath) {
			return errors.New("select an image for source path")
		}
		_, err := s.opts.Runner.Run(ctx, s.opts.ToolPath,
			"detect",
			"--model", s.modelPath(),
			"--source", job.Spec.SourcePath,
		)
		if err != nil {
			return fmt.Errorf("no face in source path: %w", err)
		}
	} else if insp != nil && !insp.IsImage(job.Spec.TargetPath) && !insp.IsVideo(job.Spec.TargetPath) {
		return errors.New("select an image or video for target path")
	}
	s.job = job
	return nil
}

func (s *commandStage) ProcessImage(ctx context.Context, sourcePath, targetPath string) error {
	if s.job == nil {
		return errors.New("stage not started")
	}
	return s.run(ctx, sourcePath, targetPath, []string{targetPath})
}

// ProcessVideoFrames splits the frames into chunks and runs up to ThreadCount
// tool invocations at once. Chunk size follows the queue budget.
func (s *commandStage) ProcessVideoFrames(ctx context.Context, sourcePath string, framePaths []string) error {
	if s.job == nil {
		return errors.New("stage not started")
	}
	if len(framePaths) == 0 {
		return nil
	}
	exec := s.job.Execution
	reference := framePaths[min(max(s.job.Spec.Tuning.ReferenceFrameNumber, 0), len(framePaths)-1)]

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(exec.ThreadCount, 1))
	for _, chunk := range chunkFrames(framePaths, exec.ThreadCount, exec.QueueCount) {
		chunk := chunk
		g.Go(func() error {
			return s.run(gctx, sourcePath, reference, chunk)
		})
	}
	return g.Wait()
}

func (s *commandStage) PostProcess(context.Context) error {
	s.job = nil
	return nil
}

func (s *commandStage) run(ctx context.Context, sourcePath, referencePath string, frames []string) error {
	args := s.args(sourcePath, referencePath)
	args = append(args, frames...)
	if _, err := s.opts.Runner.Run(ctx, s.opts.ToolPath, args...); err != nil {
		return err
	}
	metrics.FramesProcessedTotal.WithLabelValues(s.kind.name).Add(float64(len(frames)))
	s.log.Debug("frames processed", zap.Int("count", len(frames)))
	return nil
}

func (s *commandStage) args(sourcePath, referencePath string) []string {
	exec := s.job.Execution
	tuning := s.job.Spec.Tuning
	args := []string{
		s.kind.mode,
		"--model", s.modelPath(),
		"--providers", strings.Join(exec.Providers, ","),
		"--threads", strconv.Itoa(exec.ThreadCount),
	}
	if s.kind.needsSourceFace {
		args = append(args,
			"--source", sourcePath,
			"--reference-frame", referencePath,
			"--reference-face-position", strconv.Itoa(tuning.ReferenceFacePosition),
			"--similar-face-distance", strconv.FormatFloat(tuning.SimilarFaceDistance, 'f', -1, 64),
		)
		if tuning.ManyFaces {
			args = append(args, "--many-faces")
		}
	}
	return append(args, "--")
}

// chunkFrames splits frames into threads*queue batches of near-equal size.
func chunkFrames(frames []string, threads, queue int) [][]string {
	batches := max(threads, 1) * max(queue, 1)
	size := max((len(frames)+batches-1)/batches, 1)
	var chunks [][]string
	for start := 0; start < len(frames); start += size {
		chunks = append(chunks, frames[start:min(start+size, len(frames))])
	}
	return chunks
}
