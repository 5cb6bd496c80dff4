package port

import (
	"context"

	"github.com/WrongMoves/roop/internal/domain/entity"
)

// FrameProcessor is one pluggable transformation stage. A nil error from
// PreCheck or PreStart means the stage is ready.
type FrameProcessor interface {
	Name() string
	PreCheck(ctx context.Context) error
	PreStart(ctx context.Context, job *entity.JobContext) error
	// ProcessImage reads targetPath and overwrites it in place.
	ProcessImage(ctx context.Context, sourcePath, targetPath string) error
	// ProcessVideoFrames rewrites every frame in place; order is significant.
	ProcessVideoFrames(ctx context.Context, sourcePath string, framePaths []string) error
	// PostProcess releases whatever the stage holds for this job.
	PostProcess(ctx context.Context) error
}
