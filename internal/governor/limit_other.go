//go:build !linux && !darwin

package governor

import "github.com/WrongMoves/roop/internal/domain/port"

type unsupportedLimiter struct{}

func PlatformLimiter() port.MemoryLimiter { return unsupportedLimiter{} }

func (unsupportedLimiter) ApplyMemoryCeiling(uint64) error { return ErrUnsupported }
