package port

import "context"

type FrameExtractionRequest struct {
	TargetPath string
	// FramePattern is a printf-style path such as /tmp/x/%04d.png.
	FramePattern string
	FPS          float64
	Quality      int
}

// FrameExtractor splits a video into numbered still frames. It reports
// tool failures; missing output is detected by the caller.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, req FrameExtractionRequest) error
}

type AssembleRequest struct {
	FramePattern string
	FPS          float64
	Encoder      string
	Quality      int
	OutputPath   string
}

// VideoAssembler reassembles numbered frames into a video container.
type VideoAssembler interface {
	AssembleVideo(ctx context.Context, req AssembleRequest) error
}

// AudioMuxer copies the audio track of audioSource onto videoPath, writing outputPath.
type AudioMuxer interface {
	RestoreAudio(ctx context.Context, videoPath, audioSource, outputPath string) error
}

type FPSDetector interface {
	DetectFPS(ctx context.Context, videoPath string) (float64, error)
}
