package frame

import (
	"github.com/klauspost/compress/zstd"
)

const compressionThreshold = 1024 // gateway only compresses payloads > 1KB

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	decoder, _ = zstd.NewReader(nil)
)

// Compress compresses a frame with zstd if it exceeds the threshold.
// Returns (compressed data, true) if compression helped, or (original, false).
// The sync client never compresses its own traffic (probes are tiny);
// this exists so tests can produce the binary messages the gateway sends.
func Compress(data []byte) ([]byte, bool) {
	if len(data) <= compressionThreshold {
		return data, false
	}

	compressed := encoder.EncodeAll(data, make([]byte, 0, len(data)))

	// Only use compressed if it's actually smaller
	if len(compressed) >= len(data) {
		return data, false
	}

	return compressed, true
}

// Decompress decompresses a zstd-compressed binary frame.
func Decompress(data []byte) ([]byte, error) {
	return decoder.DecodeAll(data, nil)
}
