package governor

import "math"

// darwinScale accounts for macOS reporting a far larger virtual size than is resident.
const darwinScale = 1 << 30

func scaleCeiling(bytes uint64) uint64 {
	if bytes > math.MaxInt64/darwinScale {
		return math.MaxInt64
	}
	return bytes * darwinScale
}
