package packet

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/orbitmesh/satnode/internal/meshmetrics"
	"github.com/orbitmesh/satnode/internal/meshnet"
)

// imageBuffer accumulates chunks for one in-flight image from one
// source. Duplicate chunks overwrite idempotently (spec §5); the
// buffer is complete once len(chunks) == total regardless of arrival
// order (spec §8 property 6).
type imageBuffer struct {
	total   int
	chunks  map[int][]byte
	updated time.Time
}

// reassembler buffers per-source image chunks and evicts stale
// partial buffers after a TTL, addressing the §9 open question that
// the original design never evicts incomplete buffers at all.
type reassembler struct {
	ttl     time.Duration
	metrics *meshmetrics.Metrics

	mu      sync.Mutex
	buffers map[meshnet.PeerId]*imageBuffer
}

func newReassembler(ttl time.Duration, metrics *meshmetrics.Metrics) *reassembler {
	return &reassembler{
		ttl:     ttl,
		metrics: metrics,
		buffers: make(map[meshnet.PeerId]*imageBuffer),
	}
}

// addChunk stores one chunk and returns the reassembled-and-inflated
// image bytes once every index 1..total has been seen for src.
func (r *reassembler) addChunk(src meshnet.PeerId, index, total int, data []byte) ([]byte, bool, error) {
	r.mu.Lock()
	buf, ok := r.buffers[src]
	if !ok {
		buf = &imageBuffer{total: total, chunks: make(map[int][]byte, total)}
		r.buffers[src] = buf
	}
	buf.total = total
	cp := append([]byte(nil), data...)
	buf.chunks[index] = cp
	buf.updated = time.Now()
	complete := len(buf.chunks) == buf.total
	if complete {
		delete(r.buffers, src)
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ImageChunksBufferedTotal.Inc()
	}

	if !complete {
		return nil, false, nil
	}

	compressed := make([]byte, 0, total*ChunkSize)
	for i := 1; i <= buf.total; i++ {
		compressed = append(compressed, buf.chunks[i]...)
	}

	inflated, err := inflate(compressed)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", meshnet.ErrParseError, err)
	}
	if r.metrics != nil {
		r.metrics.ImagesReassembledTotal.Inc()
	}
	return inflated, true, nil
}

// sweep evicts partial buffers older than ttl. Run periodically by
// the PacketEngine's janitor loop.
func (r *reassembler) sweep() {
	deadline := time.Now().Add(-r.ttl)
	r.mu.Lock()
	var expired int
	for src, buf := range r.buffers {
		if buf.updated.Before(deadline) {
			delete(r.buffers, src)
			expired++
		}
	}
	r.mu.Unlock()
	if expired > 0 && r.metrics != nil {
		r.metrics.ImageBuffersExpiredTotal.Add(float64(expired))
	}
}

func deflate(data []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(data)
	w.Close()
	return buf.Bytes()
}

func inflate(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
