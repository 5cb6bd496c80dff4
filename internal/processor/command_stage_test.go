package processor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/infra/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls [][]string
	fail  string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) (command.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	if r.fail != "" && len(args) > 0 && args[0] == r.fail {
		return command.Log{ExitCode: 1}, errors.New("exit status 1")
	}
	return command.Log{}, nil
}

type stubInspector struct{ images, videos []string }

func (s stubInspector) Kind(string) entity.MediaKind { return entity.MediaUnknown }
func (s stubInspector) IsImage(p string) bool        { return slices.Contains(s.images, p) }
func (s stubInspector) IsVideo(p string) bool        { return slices.Contains(s.videos, p) }

func newStage(t *testing.T, name string, runner *recordingRunner, insp stubInspector) *commandStage {
	t.Helper()
	stages, err := DefaultRegistry().Resolve([]string{name}, Options{
		ToolPath:  "roop-infer",
		ModelsDir: "/models",
		Runner:    runner,
		Inspector: insp,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	return stages[0].(*commandStage)
}

func job(threads, queue int) *entity.JobContext {
	return entity.NewJobContext(entity.JobSpec{
		SourcePath: "face.png",
		TargetPath: "clip.mp4",
		Tuning:     entity.ProcessorTuning{ReferenceFrameNumber: 1, SimilarFaceDistance: 0.85, ManyFaces: true},
	}, entity.ExecutionConfig{Providers: []string{"CUDAExecutionProvider", "CPUExecutionProvider"}, ThreadCount: threads, QueueCount: queue})
}

func TestChunkFrames(t *testing.T) {
	frames := make([]string, 72)
	chunks := chunkFrames(frames, 4, 1)
	assert.Len(t, chunks, 4)
	assert.Len(t, chunks[0], 18)

	chunks = chunkFrames(frames, 4, 2)
	assert.Len(t, chunks, 8)

	chunks = chunkFrames(frames[:3], 4, 2)
	assert.Len(t, chunks, 3)

	total := 0
	for _, c := range chunkFrames(frames[:10], 3, 1) {
		total += len(c)
	}
	assert.Equal(t, 10, total)
	assert.Empty(t, chunkFrames(nil, 1, 1))
}

func TestSwapperPreStartDetectsFace(t *testing.T) {
	r := &recordingRunner{}
	s := newStage(t, FaceSwapper, r, stubInspector{images: []string{"face.png"}})

	require.NoError(t, s.PreStart(context.Background(), job(1, 1)))
	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{"roop-infer", "detect", "--model", filepath.Join("/models", "inswapper_128.onnx"), "--source", "face.png"}, r.calls[0])
}

func TestSwapperPreStartRejects(t *testing.T) {
	s := newStage(t, FaceSwapper, &recordingRunner{}, stubInspector{})
	assert.ErrorContains(t, s.PreStart(context.Background(), job(1, 1)), "select an image for source path")

	s = newStage(t, FaceSwapper, &recordingRunner{fail: "detect"}, stubInspector{images: []string{"face.png"}})
	assert.ErrorContains(t, s.PreStart(context.Background(), job(1, 1)), "no face in source path")
}

func TestEnhancerPreStartNeedsMediaTarget(t *testing.T) {
	s := newStage(t, FaceEnhancer, &recordingRunner{}, stubInspector{})
	assert.Error(t, s.PreStart(context.Background(), job(1, 1)))

	s = newStage(t, FaceEnhancer, &recordingRunner{}, stubInspector{videos: []string{"clip.mp4"}})
	assert.NoError(t, s.PreStart(context.Background(), job(1, 1)))
}

func TestPreCheckNeedsModel(t *testing.T) {
	dir := t.TempDir()
	stages, err := DefaultRegistry().Resolve([]string{FaceEnhancer}, Options{ToolPath: "sh", ModelsDir: dir})
	require.NoError(t, err)
	s := stages[0]

	if !command.Available("sh") {
		t.Skip("requires sh on PATH")
	}
	assert.ErrorContains(t, s.PreCheck(context.Background()), "model weights missing")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "GFPGANv1.4.pth"), []byte("w"), 0o644))
	assert.NoError(t, s.PreCheck(context.Background()))
}

func TestProcessVideoFramesCoversEveryFrame(t *testing.T) {
	r := &recordingRunner{}
	s := newStage(t, FaceSwapper, r, stubInspector{images: []string{"face.png"}})
	require.NoError(t, s.PreStart(context.Background(), job(3, 1)))
	r.calls = nil

	frames := []string{"0001.png", "0002.png", "0003.png", "0004.png", "0005.png", "0006.png", "0007.png"}
	require.NoError(t, s.ProcessVideoFrames(context.Background(), "face.png", frames))

	var seen []string
	for _, call := range r.calls {
		assert.Equal(t, "swap", call[1])
		assert.Contains(t, call, "--many-faces")
		assert.Contains(t, call, "CUDAExecutionProvider,CPUExecutionProvider")
		idx := slices.Index(call, "--reference-frame")
		require.Greater(t, idx, 0)
		assert.Equal(t, "0002.png", call[idx+1])
		sep := slices.Index(call, "--")
		seen = append(seen, call[sep+1:]...)
	}
	slices.Sort(seen)
	assert.Equal(t, frames, seen)
	assert.Len(t, r.calls, 3)
}

func TestProcessRequiresPreStart(t *testing.T) {
	s := newStage(t, FrameEnhancer, &recordingRunner{}, stubInspector{})
	assert.Error(t, s.ProcessImage(context.Background(), "face.png", "out.png"))

	require.NoError(t, s.PostProcess(context.Background()))
	assert.Nil(t, s.job)
}

func TestProcessImageEnhancerArgs(t *testing.T) {
	r := &recordingRunner{}
	s := newStage(t, FrameEnhancer, r, stubInspector{images: []string{"clip.mp4"}})
	require.NoError(t, s.PreStart(context.Background(), job(1, 1)))

	require.NoError(t, s.ProcessImage(context.Background(), "face.png", "out.png"))
	require.Len(t, r.calls, 1)
	call := r.calls[0]
	assert.Equal(t, "enhance-frame", call[1])
	assert.NotContains(t, call, "--source")
	assert.Equal(t, "out.png", call[len(call)-1])
}
