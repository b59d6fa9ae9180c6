// Package determinism derives reproducible seeds for assistant
// invocations, so re-running the same batch of the same revision can
// produce comparable output from seed-aware models.
package determinism

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// BatchSeed creates a deterministic uint64 seed for one batch of one task.
// The seed is derived from a SHA-256 hash of the repository id, revision
// and batch index,
// ensuring reproducibility for the same inputs.
// The returned value is guaranteed to be <= math.MaxInt64 to stay
// compatible with model endpoints that take signed int64 seeds.
func BatchSeed(repoID, revisionRef string, batchIndex int) uint64 {
	input := fmt.Sprintf("%s|%s|%d", repoID, revisionRef, batchIndex)

	hash := sha256.Sum256([]byte(input))

	seed := binary.BigEndian.Uint64(hash[:8])

	// Mask off the high bit so the value fits in int64.
	seed = seed & 0x7FFFFFFFFFFFFFFF

	return seed
}
