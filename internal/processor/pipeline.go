package processor

import (
	"context"
	"fmt"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/domain/port"
	"go.uber.org/zap"
)

// StatusFunc receives one status line per stage transition.
type StatusFunc func(scope, message string)

// Pipeline runs stages strictly one after another; a stage's PostProcess
// finishes before the next stage starts.
type Pipeline struct {
	stages []port.FrameProcessor
	logger *zap.Logger
	status StatusFunc
}

func NewPipeline(stages []port.FrameProcessor, logger *zap.Logger, status StatusFunc) *Pipeline {
	if status == nil {
		status = func(string, string) {}
	}
	return &Pipeline{stages: stages, logger: logger, status: status}
}

func (p *Pipeline) Names() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// PreCheck validates every stage's own prerequisites.
func (p *Pipeline) PreCheck(ctx context.Context) error {
	for _, s := range p.stages {
		if err := s.PreCheck(ctx); err != nil {
			return fmt.Errorf("%w: %s pre-check: %v", entity.ErrPreflight, s.Name(), err)
		}
	}
	return nil
}

// PreStart validates job-specific inputs for every stage.
func (p *Pipeline) PreStart(ctx context.Context, job *entity.JobContext) error {
	for _, s := range p.stages {
		if err := s.PreStart(ctx, job); err != nil {
			return fmt.Errorf("%w: %s pre-start: %v", entity.ErrPreflight, s.Name(), err)
		}
	}
	return nil
}

// RunImage mutates targetPath in place once per stage.
func (p *Pipeline) RunImage(ctx context.Context, sourcePath, targetPath string) error {
	for _, s := range p.stages {
		err := p.runStage(ctx, s, func() error {
			return s.ProcessImage(ctx, sourcePath, targetPath)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RunVideo hands the full ordered frame list to each stage in turn. An empty
// list is a no-op.
func (p *Pipeline) RunVideo(ctx context.Context, sourcePath string, framePaths []string) error {
	if len(framePaths) == 0 {
		return nil
	}
	for _, s := range p.stages {
		err := p.runStage(ctx, s, func() error {
			return s.ProcessVideoFrames(ctx, sourcePath, framePaths)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runStage(ctx context.Context, s port.FrameProcessor, process func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: before %s: %v", entity.ErrCancelled, s.Name(), err)
	}
	p.status(s.Name(), "Progressing...")
	processErr := process()
	// release stage resources whether or not processing worked
	postErr := s.PostProcess(ctx)
	if processErr != nil {
		return fmt.Errorf("%s: %w", s.Name(), processErr)
	}
	if postErr != nil {
		return fmt.Errorf("%s post-process: %w", s.Name(), postErr)
	}
	p.logger.Debug("stage finished", zap.String("stage", s.Name()))
	return nil
}
