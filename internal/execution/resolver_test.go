package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingQuery struct{}

func (failingQuery) AvailableProviders(context.Context) ([]string, error) {
	return nil, errors.New("runtime not installed")
}

var gpuBox = StaticProviders{"TensorrtExecutionProvider", "CUDAExecutionProvider", "CPUExecutionProvider"}

func TestResolveKeepsRuntimeOrder(t *testing.T) {
	r := NewResolver(gpuBox, zap.NewNop())

	cfg, err := r.Resolve(context.Background(), Request{Providers: []string{"cpu", "cuda", "tensorrt"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"TensorrtExecutionProvider", "CUDAExecutionProvider", "CPUExecutionProvider"}, cfg.Providers)
}

func TestResolveIsSubsequenceOfAvailable(t *testing.T) {
	r := NewResolver(gpuBox, zap.NewNop())
	requests := [][]string{
		{"cpu"},
		{"cuda", "cpu"},
		{"cpu", "tensorrt"},
		{"rocm", "cuda"},
		{"c"},
	}
	for _, req := range requests {
		cfg, err := r.Resolve(context.Background(), Request{Providers: req})
		require.NoError(t, err)
		assert.True(t, isSubsequence(cfg.Providers, gpuBox), "request %v resolved to %v", req, cfg.Providers)
	}
}

func TestResolveDropsUnmatchedSilently(t *testing.T) {
	r := NewResolver(gpuBox, zap.NewNop())

	cfg, err := r.Resolve(context.Background(), Request{Providers: []string{"cuda", "typo"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"CUDAExecutionProvider"}, cfg.Providers)
}

func TestResolveFallsBackToCPU(t *testing.T) {
	r := NewResolver(StaticProviders{"CPUExecutionProvider"}, zap.NewNop())

	cfg, err := r.Resolve(context.Background(), Request{Providers: []string{"cuda"}})
	require.NoError(t, err)
	assert.Equal(t, []string{CPUProvider}, cfg.Providers)
	assert.Equal(t, 1, cfg.ThreadCount)
	assert.Equal(t, 1, cfg.QueueCount)
}

func TestResolveRequiredProviderMissing(t *testing.T) {
	r := NewResolver(StaticProviders{"CPUExecutionProvider"}, zap.NewNop())

	_, err := r.Resolve(context.Background(), Request{Providers: []string{"cuda"}, RequireProvider: true})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestResolveQueryFailure(t *testing.T) {
	r := NewResolver(failingQuery{}, zap.NewNop())

	cfg, err := r.Resolve(context.Background(), Request{Providers: []string{"cpu"}})
	require.NoError(t, err)
	assert.Equal(t, []string{CPUProvider}, cfg.Providers)

	_, err = r.Resolve(context.Background(), Request{Providers: []string{"cpu"}, RequireProvider: true})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestResolveThreadDefaults(t *testing.T) {
	r := NewResolver(gpuBox, zap.NewNop())

	cfg, err := r.Resolve(context.Background(), Request{Providers: []string{"cuda"}})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ThreadCount)

	cfg, err = r.Resolve(context.Background(), Request{Providers: []string{"cpu"}})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.ThreadCount)

	cfg, err = r.Resolve(context.Background(), Request{Providers: []string{"cuda"}, ThreadCount: 2, QueueCount: 3})
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.ThreadCount)
	assert.Equal(t, 3, cfg.QueueCount)
}

func TestSuggestThreadCountPerAccelerator(t *testing.T) {
	tests := []struct {
		name      string
		providers []string
		want      int
	}{
		{"directml", []string{"DmlExecutionProvider"}, 4},
		{"rocm", []string{"ROCMExecutionProvider"}, 4},
		{"coreml", []string{"CoreMLExecutionProvider"}, 4},
		{"migraphx", []string{"MIGraphXExecutionProvider"}, 4},
		{"accelerator after cpu", []string{"CPUExecutionProvider", "DmlExecutionProvider"}, 4},
		{"cpu only", []string{"CPUExecutionProvider"}, 1},
		{"none", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SuggestThreadCount(tt.providers))
		})
	}
}

func TestResolveDefaultsThreadsForDirectML(t *testing.T) {
	r := NewResolver(StaticProviders{"DmlExecutionProvider", "CPUExecutionProvider"}, zap.NewNop())

	cfg, err := r.Resolve(context.Background(), Request{Providers: []string{"dml"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"DmlExecutionProvider"}, cfg.Providers)
	assert.Equal(t, 4, cfg.ThreadCount)
}

func TestResolveRejectsNegativeCounts(t *testing.T) {
	r := NewResolver(gpuBox, zap.NewNop())

	_, err := r.Resolve(context.Background(), Request{Providers: []string{"cpu"}, ThreadCount: -1})
	assert.ErrorIs(t, err, entity.ErrConfiguration)

	_, err = r.Resolve(context.Background(), Request{Providers: []string{"cpu"}, QueueCount: -2})
	assert.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestEncodeProviders(t *testing.T) {
	assert.Equal(t, []string{"cuda", "cpu", "coreml"},
		EncodeProviders([]string{"CUDAExecutionProvider", "CPUExecutionProvider", "CoreMLExecutionProvider"}))
}

func TestParseProviderList(t *testing.T) {
	assert.Equal(t, []string{"CUDAExecutionProvider", "CPUExecutionProvider"},
		parseProviderList("['CUDAExecutionProvider', 'CPUExecutionProvider']\n"))
	assert.Equal(t, []string{"CUDAExecutionProvider", "CPUExecutionProvider"},
		parseProviderList("CUDAExecutionProvider\nCPUExecutionProvider\n"))
	assert.Empty(t, parseProviderList(""))
}

func isSubsequence(sub, full []string) bool {
	i := 0
	for _, s := range full {
		if i < len(sub) && sub[i] == s {
			i++
		}
	}
	return i == len(sub)
}
