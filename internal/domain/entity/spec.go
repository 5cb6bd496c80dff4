package entity

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Defaults for a job when nothing overrides them.
const (
	DefaultFrameFormat         = "jpg"
	DefaultFrameQuality        = 1
	DefaultVideoEncoder        = "libx264"
	DefaultVideoQuality        = 35
	DefaultSimilarFaceDistance = 1.25
	DefaultMaxMemoryGB         = 16
	FallbackFPS                = 30.0
)

var (
	FrameFormats  = []string{"jpg", "png"}
	VideoEncoders = []string{"libx264", "libx265", "libvpx-vp9", "h264_nvenc", "hevc_nvenc"}
)

// ProcessorTuning carries the per-stage knobs shared by the face stages.
type ProcessorTuning struct {
	ManyFaces             bool    `json:"many_faces,omitempty" yaml:"many_faces"`
	ReferenceFacePosition int     `json:"reference_face_position,omitempty" yaml:"reference_face_position"`
	ReferenceFrameNumber  int     `json:"reference_frame_number,omitempty" yaml:"reference_frame_number"`
	SimilarFaceDistance   float64 `json:"similar_face_distance,omitempty" yaml:"similar_face_distance"`
}

// FrameOptions controls extraction, reassembly and audio handling of video targets.
type FrameOptions struct {
	Format       string
	Quality      int
	KeepFPS      bool
	KeepTemp     bool
	SkipAudio    bool
	VideoEncoder string
	VideoQuality int
}

// JobSpec describes one swap: what to read, where to write and which stages run.
// Processors are executed in slice order.
type JobSpec struct {
	SourcePath string
	TargetPath string
	OutputPath string
	Processors []string
	Tuning     ProcessorTuning
	Frames     FrameOptions
}

// Validate rejects a job before any work starts.
func (s JobSpec) Validate() error {
	if strings.TrimSpace(s.SourcePath) == "" {
		return fmt.Errorf("%w: source path is required", ErrConfiguration)
	}
	if strings.TrimSpace(s.TargetPath) == "" {
		return fmt.Errorf("%w: target path is required", ErrConfiguration)
	}
	if strings.TrimSpace(s.OutputPath) == "" {
		return fmt.Errorf("%w: output path is required", ErrConfiguration)
	}
	for _, p := range []string{s.SourcePath, s.TargetPath} {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("%w: cannot access %s: %v", ErrConfiguration, p, err)
		}
	}
	for _, in := range []string{s.TargetPath, s.SourcePath} {
		if sameFile(s.OutputPath, in) {
			return fmt.Errorf("%w: output path %s would overwrite input %s", ErrConfiguration, s.OutputPath, in)
		}
	}
	if len(s.Processors) == 0 {
		return fmt.Errorf("%w: at least one frame processor is required", ErrConfiguration)
	}
	if !slices.Contains(FrameFormats, s.Frames.Format) {
		return fmt.Errorf("%w: unsupported temp frame format %q", ErrConfiguration, s.Frames.Format)
	}
	if s.Frames.Quality < 0 || s.Frames.Quality > 100 {
		return fmt.Errorf("%w: temp frame quality %d out of range [0-100]", ErrConfiguration, s.Frames.Quality)
	}
	if !slices.Contains(VideoEncoders, s.Frames.VideoEncoder) {
		return fmt.Errorf("%w: unsupported video encoder %q", ErrConfiguration, s.Frames.VideoEncoder)
	}
	if s.Frames.VideoQuality < 0 || s.Frames.VideoQuality > 100 {
		return fmt.Errorf("%w: output video quality %d out of range [0-100]", ErrConfiguration, s.Frames.VideoQuality)
	}
	return nil
}

// sameFile reports whether a and b name the same file, by path or by inode.
func sameFile(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA == nil && errB == nil && absA == absB {
		return true
	}
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}

// NormalizeOutputPath derives the output file from source, target and an
// explicit override. A directory override (or no override) yields
// "<source stem>-<target stem><target ext>" inside that directory.
func NormalizeOutputPath(sourcePath, targetPath, outputPath string) string {
	if sourcePath == "" || targetPath == "" {
		return outputPath
	}
	dir := outputPath
	if dir == "" {
		dir = filepath.Dir(targetPath)
	} else if info, err := os.Stat(outputPath); err != nil || !info.IsDir() {
		return outputPath
	}
	sourceStem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	targetBase := filepath.Base(targetPath)
	targetExt := filepath.Ext(targetBase)
	targetStem := strings.TrimSuffix(targetBase, targetExt)
	return filepath.Join(dir, sourceStem+"-"+targetStem+targetExt)
}

// ExecutionConfig is the resolved, hardware-aware execution budget handed to every stage.
type ExecutionConfig struct {
	Providers   []string
	ThreadCount int
	QueueCount  int
	// MemoryCeiling is a byte count; zero means no ceiling.
	MemoryCeiling uint64
}

// JobContext is passed explicitly to every component instead of process globals.
type JobContext struct {
	ID        uuid.UUID
	Spec      JobSpec
	Execution ExecutionConfig
}

func NewJobContext(spec JobSpec, exec ExecutionConfig) *JobContext {
	return &JobContext{ID: uuid.New(), Spec: spec, Execution: exec}
}
