package engine

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// PartitionOf returns which of W workers owns row, hashing the first
// column (spec §5's "partitioned by a hash of the first column of each
// tuple, first-column mod W"). This implements the partition function
// itself; it is not wired into any execution path. InMemory is a single
// unsharded Store and internal/driver runs every stratum sequentially in
// one goroutine — real SPMD execution would need partitioned relation
// storage plus a cross-partition join shuffle and a per-iteration
// exchange barrier, neither of which this Store has (see DESIGN.md's
// "§5 concurrency is unimplemented").
func PartitionOf(row Row, workers int) int {
	if workers <= 1 || len(row) == 0 {
		return 0
	}
	var buf [8]byte
	first := row[0]
	if first.IsString {
		h := murmur3.Sum32([]byte(first.Str))
		return int(h) % workers
	}
	binary.LittleEndian.PutUint64(buf[:], uint64(first.Int))
	h := murmur3.Sum32(buf[:])
	return int(h) % workers
}
