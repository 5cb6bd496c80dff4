package ffmpeg

import (
	"context"
	"fmt"
)

// RestoreAudio copies the video stream untouched and takes audio from audioSource.
func (t *Tool) RestoreAudio(ctx context.Context, videoPath, audioSource, outputPath string) error {
	err := t.ffmpeg(ctx,
		"-i", videoPath,
		"-i", audioSource,
		"-c:v", "copy",
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-y", outputPath,
	)
	if err != nil {
		return fmt.Errorf("restore audio: %w", err)
	}
	return nil
}
