package jobfile

import (
	"fmt"
	"os"

	"github.com/WrongMoves/roop/internal/infra/config"
	"gopkg.in/yaml.v3"
)

// File is the YAML form of a job. Zero fields leave the environment value
// in place; booleans are pointers so an explicit false still overrides.
type File struct {
	Source     string   `yaml:"source"`
	Target     string   `yaml:"target"`
	Output     string   `yaml:"output"`
	Processors []string `yaml:"frame_processors"`

	KeepFPS   *bool `yaml:"keep_fps"`
	KeepTemp  *bool `yaml:"keep_temp"`
	SkipAudio *bool `yaml:"skip_audio"`
	ManyFaces *bool `yaml:"many_faces"`

	ReferenceFacePosition *int     `yaml:"reference_face_position"`
	ReferenceFrameNumber  *int     `yaml:"reference_frame_number"`
	SimilarFaceDistance   *float64 `yaml:"similar_face_distance"`

	TempFrameFormat    string `yaml:"temp_frame_format"`
	TempFrameQuality   *int   `yaml:"temp_frame_quality"`
	OutputVideoEncoder string `yaml:"output_video_encoder"`
	OutputVideoQuality *int   `yaml:"output_video_quality"`

	Execution struct {
		Providers       []string `yaml:"providers"`
		Threads         int      `yaml:"threads"`
		Queue           int      `yaml:"queue"`
		MaxMemoryGB     uint64   `yaml:"max_memory"`
		RequireProvider *bool    `yaml:"require_provider"`
	} `yaml:"execution"`
}

func Load(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job file: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse job file: %w", err)
	}
	return &f, nil
}

// Apply overlays the file on cfg.
func (f *File) Apply(cfg *config.Config) {
	setString(&cfg.SourcePath, f.Source)
	setString(&cfg.TargetPath, f.Target)
	setString(&cfg.OutputPath, f.Output)
	if len(f.Processors) > 0 {
		cfg.FrameProcessors = f.Processors
	}
	setPtr(&cfg.KeepFPS, f.KeepFPS)
	setPtr(&cfg.KeepTemp, f.KeepTemp)
	setPtr(&cfg.SkipAudio, f.SkipAudio)
	setPtr(&cfg.ManyFaces, f.ManyFaces)
	setPtr(&cfg.ReferenceFacePosition, f.ReferenceFacePosition)
	setPtr(&cfg.ReferenceFrameNumber, f.ReferenceFrameNumber)
	setPtr(&cfg.SimilarFaceDistance, f.SimilarFaceDistance)
	setString(&cfg.TempFrameFormat, f.TempFrameFormat)
	setPtr(&cfg.TempFrameQuality, f.TempFrameQuality)
	setString(&cfg.OutputVideoEncoder, f.OutputVideoEncoder)
	setPtr(&cfg.OutputVideoQuality, f.OutputVideoQuality)

	if len(f.Execution.Providers) > 0 {
		cfg.ExecutionProviders = f.Execution.Providers
	}
	if f.Execution.Threads > 0 {
		cfg.ExecutionThreads = f.Execution.Threads
	}
	if f.Execution.Queue > 0 {
		cfg.ExecutionQueue = f.Execution.Queue
	}
	if f.Execution.MaxMemoryGB > 0 {
		cfg.MaxMemoryGB = f.Execution.MaxMemoryGB
	}
	setPtr(&cfg.RequireProvider, f.Execution.RequireProvider)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
