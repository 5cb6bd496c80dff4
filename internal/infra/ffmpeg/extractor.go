package ffmpeg

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/WrongMoves/roop/internal/domain/port"
	"github.com/WrongMoves/roop/internal/infra/command"
	"go.uber.org/zap"
)

// Tool drives the ffmpeg and ffprobe binaries.
type Tool struct {
	ffmpegPath  string
	ffprobePath string
	runner      command.Runner
	logger      *zap.Logger
}

func NewTool(ffmpegPath, ffprobePath string, runner command.Runner, logger *zap.Logger) *Tool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if runner == nil {
		runner = &command.ExecRunner{}
	}
	return &Tool{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, runner: runner, logger: logger}
}

// FFmpegPath is what the core pre-check looks up.
func (t *Tool) FFmpegPath() string { return t.ffmpegPath }

func (t *Tool) ExtractFrames(ctx context.Context, req port.FrameExtractionRequest) error {
	args := []string{
		"-hwaccel", "auto",
		"-i", req.TargetPath,
		"-q:v", strconv.Itoa(frameQuality(req.Quality)),
		"-pix_fmt", "rgb24",
		"-vf", "fps=" + formatFPS(req.FPS),
		req.FramePattern,
	}
	if err := t.ffmpeg(ctx, args...); err != nil {
		return fmt.Errorf("extract frames: %w", err)
	}
	t.logger.Debug("frames extracted", zap.String("target", req.TargetPath), zap.Float64("fps", req.FPS))
	return nil
}

// DetectFPS reads r_frame_rate of the first video stream.
func (t *Tool) DetectFPS(ctx context.Context, videoPath string) (float64, error) {
	log, err := t.runner.Run(ctx, t.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseFrameRate(log.Stdout)
}

func (t *Tool) ffmpeg(ctx context.Context, args ...string) error {
	full := append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	_, err := t.runner.Run(ctx, t.ffmpegPath, full...)
	return err
}

func parseFrameRate(out string) (float64, error) {
	rate := strings.TrimSpace(out)
	if i := strings.IndexByte(rate, '\n'); i >= 0 {
		rate = strings.TrimSpace(rate[:i])
	}
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("parse frame rate %q: %w", rate, err)
	}
	if !found {
		return n, nil
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("parse frame rate %q: bad denominator", rate)
	}
	return n / d, nil
}

// frameQuality maps 0-100 onto ffmpeg's -q:v scale of 0-31.
func frameQuality(quality int) int {
	return quality * 31 / 100
}

func formatFPS(fps float64) string {
	return strconv.FormatFloat(fps, 'f', -1, 64)
}
