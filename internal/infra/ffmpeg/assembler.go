package ffmpeg

import (
	"context"
	"fmt"
	"strconv"

	"github.com/WrongMoves/roop/internal/domain/port"
	"go.uber.org/zap"
)

func (t *Tool) AssembleVideo(ctx context.Context, req port.AssembleRequest) error {
	args := []string{
		"-hwaccel", "auto",
		"-r", formatFPS(req.FPS),
		"-i", req.FramePattern,
		"-c:v", req.Encoder,
	}
	args = append(args, encoderQualityArgs(req.Encoder, req.Quality)...)
	args = append(args,
		"-pix_fmt", "yuv420p",
		"-vf", "colorspace=bt709:iall=bt601-6-625:fast=1",
		"-y", req.OutputPath,
	)
	if err := t.ffmpeg(ctx, args...); err != nil {
		return fmt.Errorf("assemble video: %w", err)
	}
	t.logger.Debug("video assembled", zap.String("output", req.OutputPath), zap.String("encoder", req.Encoder))
	return nil
}

// encoderQualityArgs maps 0-100 onto the encoder's 0-51 quantizer; nvenc
// encoders take -cq, software encoders -crf.
func encoderQualityArgs(encoder string, quality int) []string {
	q := strconv.Itoa((quality + 1) * 51 / 100)
	switch encoder {
	case "libx264", "libx265", "libvpx-vp9":
		return []string{"-crf", q}
	case "h264_nvenc", "hevc_nvenc":
		return []string{"-cq", q}
	}
	return nil
}
