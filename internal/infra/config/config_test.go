package config

import (
	"testing"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	spec := cfg.Spec()
	assert.Equal(t, []string{"face_swapper"}, spec.Processors)
	assert.True(t, spec.Frames.KeepFPS)
	assert.False(t, spec.Frames.KeepTemp)
	assert.False(t, spec.Frames.SkipAudio)
	assert.Equal(t, entity.DefaultFrameFormat, spec.Frames.Format)
	assert.Equal(t, entity.DefaultFrameQuality, spec.Frames.Quality)
	assert.Equal(t, entity.DefaultVideoEncoder, spec.Frames.VideoEncoder)
	assert.Equal(t, entity.DefaultVideoQuality, spec.Frames.VideoQuality)
	assert.Equal(t, entity.DefaultSimilarFaceDistance, spec.Tuning.SimilarFaceDistance)

	req := cfg.ExecutionRequest()
	assert.Equal(t, []string{"cpu"}, req.Providers)
	assert.Zero(t, req.ThreadCount)
	assert.Equal(t, 1, req.QueueCount)
	assert.Equal(t, uint64(entity.DefaultMaxMemoryGB)<<30, req.MemoryCeiling)
	assert.Equal(t, "roop.processing", cfg.RabbitMQProcessingQueue)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ROOP_FRAME_PROCESSORS", "face_swapper,face_enhancer")
	t.Setenv("ROOP_EXECUTION_PROVIDER", "cuda,cpu")
	t.Setenv("ROOP_EXECUTION_THREADS", "8")
	t.Setenv("ROOP_MAX_MEMORY", "4")
	t.Setenv("ROOP_KEEP_FPS", "false")
	t.Setenv("ROOP_OUTPUT_VIDEO_ENCODER", "h264_nvenc")

	cfg, err := Load()
	require.NoError(t, err)

	spec := cfg.Spec()
	assert.Equal(t, []string{"face_swapper", "face_enhancer"}, spec.Processors)
	assert.False(t, spec.Frames.KeepFPS)
	assert.Equal(t, "h264_nvenc", spec.Frames.VideoEncoder)

	req := cfg.ExecutionRequest()
	assert.Equal(t, []string{"cuda", "cpu"}, req.Providers)
	assert.Equal(t, 8, req.ThreadCount)
	assert.Equal(t, uint64(4)<<30, req.MemoryCeiling)
}

func TestLoadRejectsMalformedValue(t *testing.T) {
	t.Setenv("ROOP_EXECUTION_THREADS", "many")

	_, err := Load()
	assert.Error(t, err)
}
