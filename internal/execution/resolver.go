package execution

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/domain/port"
	"go.uber.org/zap"
)

const (
	gpuThreadCount = 4
	cpuThreadCount = 1
)

// gpuTokens are encoded provider names that imply accelerator execution.
var gpuTokens = []string{"cuda", "tensorrt", "rocm", "migraphx", "dml", "coreml"}

// Request is the user's execution intent before it is checked against the runtime.
type Request struct {
	// Providers are name fragments such as "cuda" or "cpu".
	Providers []string
	// ThreadCount of zero selects the hardware-aware default.
	ThreadCount int
	QueueCount  int
	// MemoryCeiling is a byte count; zero disables the ceiling.
	MemoryCeiling uint64
	// RequireProvider turns an empty match into a configuration error
	// instead of a CPU fallback.
	RequireProvider bool
}

type Resolver struct {
	query  port.ProviderQuery
	logger *zap.Logger
}

func NewResolver(query port.ProviderQuery, logger *zap.Logger) *Resolver {
	return &Resolver{query: query, logger: logger}
}

// Resolve intersects the requested fragments with what the runtime reports.
// The result keeps the runtime's order.
func (r *Resolver) Resolve(ctx context.Context, req Request) (entity.ExecutionConfig, error) {
	if req.ThreadCount < 0 {
		return entity.ExecutionConfig{}, fmt.Errorf("%w: thread count must be positive, got %d", entity.ErrConfiguration, req.ThreadCount)
	}
	if req.QueueCount < 0 {
		return entity.ExecutionConfig{}, fmt.Errorf("%w: queue count must be positive, got %d", entity.ErrConfiguration, req.QueueCount)
	}

	available, err := r.query.AvailableProviders(ctx)
	if err != nil {
		if req.RequireProvider {
			return entity.ExecutionConfig{}, fmt.Errorf("%w: query execution providers: %v", entity.ErrConfiguration, err)
		}
		r.logger.Warn("could not query execution providers, assuming cpu only", zap.Error(err))
		available = []string{CPUProvider}
	}

	providers := DecodeProviders(available, req.Providers)
	if unmatched := unmatchedFragments(available, req.Providers); len(unmatched) > 0 {
		// unmatched fragments are dropped
		r.logger.Warn("requested execution providers not available",
			zap.Strings("unmatched", unmatched),
			zap.Strings("available", EncodeProviders(available)),
		)
	}
	if len(providers) == 0 {
		if req.RequireProvider {
			return entity.ExecutionConfig{}, fmt.Errorf("%w: none of %v matches available providers %v",
				entity.ErrConfiguration, req.Providers, EncodeProviders(available))
		}
		providers = []string{CPUProvider}
	}

	threads := req.ThreadCount
	if threads == 0 {
		threads = SuggestThreadCount(providers)
	}
	queue := req.QueueCount
	if queue == 0 {
		queue = 1
	}

	cfg := entity.ExecutionConfig{
		Providers:     providers,
		ThreadCount:   threads,
		QueueCount:    queue,
		MemoryCeiling: req.MemoryCeiling,
	}
	r.logger.Info("execution config resolved",
		zap.Strings("providers", cfg.Providers),
		zap.Int("threads", cfg.ThreadCount),
		zap.Int("queue", cfg.QueueCount),
		zap.Uint64("memory_ceiling", cfg.MemoryCeiling),
	)
	return cfg, nil
}

// EncodeProviders turns CUDAExecutionProvider into cuda.
func EncodeProviders(providers []string) []string {
	encoded := make([]string, 0, len(providers))
	for _, p := range providers {
		encoded = append(encoded, strings.ToLower(strings.ReplaceAll(p, "ExecutionProvider", "")))
	}
	return encoded
}

// DecodeProviders returns the available providers whose encoded name contains
// any requested fragment, in availability order.
func DecodeProviders(available, requested []string) []string {
	var decoded []string
	for i, enc := range EncodeProviders(available) {
		for _, fragment := range requested {
			fragment = strings.ToLower(strings.TrimSpace(fragment))
			if fragment != "" && strings.Contains(enc, fragment) {
				decoded = append(decoded, available[i])
				break
			}
		}
	}
	return decoded
}

// SuggestThreadCount picks a higher default when an accelerator is in use.
func SuggestThreadCount(providers []string) int {
	for _, enc := range EncodeProviders(providers) {
		if slices.Contains(gpuTokens, enc) {
			return gpuThreadCount
		}
	}
	return cpuThreadCount
}

func unmatchedFragments(available, requested []string) []string {
	var unmatched []string
	for _, fragment := range requested {
		if len(DecodeProviders(available, []string{fragment})) == 0 {
			unmatched = append(unmatched, fragment)
		}
	}
	return unmatched
}
