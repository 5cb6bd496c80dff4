//go:build linux || darwin

package governor

import (
	"fmt"

	"github.com/WrongMoves/roop/internal/domain/port"
	"golang.org/x/sys/unix"
)

type rlimitLimiter struct{}

func PlatformLimiter() port.MemoryLimiter { return rlimitLimiter{} }

func (rlimitLimiter) ApplyMemoryCeiling(bytes uint64) error {
	n := scaleCeiling(bytes)
	if err := unix.Setrlimit(unix.RLIMIT_DATA, &unix.Rlimit{Cur: n, Max: n}); err != nil {
		return fmt.Errorf("setrlimit data: %w", err)
	}
	return nil
}
