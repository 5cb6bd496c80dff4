// Package governor applies process-wide resource ceilings before any
// processor work starts. Ceilings are best-effort and applied once.
package governor

import (
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"sync"

	"github.com/WrongMoves/roop/internal/domain/entity"
	"github.com/WrongMoves/roop/internal/domain/port"
	"go.uber.org/zap"
)

// DeviceMemoryLimitMB caps accelerator memory per device for stage runtimes.
const DeviceMemoryLimitMB = 1024

var ErrUnsupported = errors.New("memory ceiling not supported on this platform")

// Limits records what was applied. Env is handed to stage subprocesses.
type Limits struct {
	DeviceMemoryLimitMB int
	MemoryCeiling       uint64
	CeilingApplied      bool
	Env                 []string
}

type Governor struct {
	limiter port.MemoryLimiter
	logger  *zap.Logger

	once   sync.Once
	limits Limits
}

// New uses the platform limiter when limiter is nil.
func New(limiter port.MemoryLimiter, logger *zap.Logger) *Governor {
	if limiter == nil {
		limiter = PlatformLimiter()
	}
	return &Governor{limiter: limiter, logger: logger}
}

// Apply runs at most once per Governor; later calls return the first result.
func (g *Governor) Apply(cfg entity.ExecutionConfig) Limits {
	g.once.Do(func() {
		g.limits = g.apply(cfg)
	})
	return g.limits
}

func (g *Governor) apply(cfg entity.ExecutionConfig) Limits {
	limits := Limits{
		DeviceMemoryLimitMB: DeviceMemoryLimitMB,
		MemoryCeiling:       cfg.MemoryCeiling,
		Env: []string{
			"OMP_NUM_THREADS=1",
			"TF_CPP_MIN_LOG_LEVEL=2",
			fmt.Sprintf("ROOP_DEVICE_MEMORY_LIMIT_MB=%d", DeviceMemoryLimitMB),
		},
	}

	if cfg.MemoryCeiling == 0 {
		g.logger.Info("resource limits applied", zap.Int("device_memory_limit_mb", DeviceMemoryLimitMB))
		return limits
	}

	if cfg.MemoryCeiling <= math.MaxInt64 {
		debug.SetMemoryLimit(int64(cfg.MemoryCeiling))
	}
	if err := g.limiter.ApplyMemoryCeiling(cfg.MemoryCeiling); err != nil {
		g.logger.Warn("memory ceiling not applied", zap.Uint64("bytes", cfg.MemoryCeiling), zap.Error(err))
	} else {
		limits.CeilingApplied = true
	}
	g.logger.Info("resource limits applied",
		zap.Int("device_memory_limit_mb", DeviceMemoryLimitMB),
		zap.Uint64("memory_ceiling", cfg.MemoryCeiling),
		zap.Bool("ceiling_applied", limits.CeilingApplied),
	)
	return limits
}
