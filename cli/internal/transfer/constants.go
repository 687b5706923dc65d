package transfer

import "time"

const (
	// Label is the data channel carrying chunked transfers.
	Label = "photos"

	// ChunkSize is the size of every binary frame except a shorter final one.
	ChunkSize = 64000

	// DefaultMaxTransferSize bounds declared lengths on the receiving side.
	DefaultMaxTransferSize = 64 << 20

	HighWaterMark = 2 * 1024 * 1024 // 2 MB - backpressure threshold
	LowWaterMark  = 512 * 1024      // 512 KB - resume threshold

	SendTimeout  = 60 * time.Second
	DrainTimeout = 30 * time.Second
)
