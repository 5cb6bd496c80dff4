package port

import "context"

// ProviderQuery reports the acceleration providers the inference runtime
// can use, best first (e.g. CUDAExecutionProvider, CPUExecutionProvider).
type ProviderQuery interface {
	AvailableProviders(ctx context.Context) ([]string, error)
}

// MemoryLimiter applies a process-wide data segment ceiling.
type MemoryLimiter interface {
	ApplyMemoryCeiling(bytes uint64) error
}
