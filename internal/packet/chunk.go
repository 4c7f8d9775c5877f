package packet

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/orbitmesh/satnode/internal/meshnet"
)

var errParse = meshnet.ErrParseError

// ChunkSize is the maximum compressed-image chunk size, per spec §4.5.
const ChunkSize = 512

// EncodeChunk formats one image-chunk payload as "<i>/<N>|<bytes>",
// per spec §3. i is 1-based.
func EncodeChunk(index, total int, data []byte) []byte {
	prefix := fmt.Sprintf("%d/%d|", index, total)
	out := make([]byte, 0, len(prefix)+len(data))
	out = append(out, prefix...)
	out = append(out, data...)
	return out
}

// DecodeChunk parses an "<i>/<N>|<bytes>" payload.
func DecodeChunk(payload []byte) (index, total int, data []byte, err error) {
	sep := bytes.IndexByte(payload, '|')
	if sep < 0 {
		return 0, 0, nil, fmt.Errorf("%w: chunk metadata missing '|' separator", errParse)
	}
	meta := payload[:sep]
	slash := bytes.IndexByte(meta, '/')
	if slash < 0 {
		return 0, 0, nil, fmt.Errorf("%w: chunk metadata missing '/' separator", errParse)
	}
	index, err = strconv.Atoi(string(meta[:slash]))
	if err != nil {
		return 0, 0, nil, fmt.Errorf("%w: invalid chunk index: %v", errParse, err)
	}
	total, err = strconv.Atoi(string(meta[slash+1:]))
	if err != nil {
		return 0, 0, nil, fmt.Errorf("%w: invalid chunk total: %v", errParse, err)
	}
	if index < 1 || total < 1 || index > total {
		return 0, 0, nil, fmt.Errorf("%w: chunk index %d out of range [1,%d]", errParse, index, total)
	}
	return index, total, payload[sep+1:], nil
}

// SplitChunks splits compressed data into ceil(len/ChunkSize) chunks
// of at most ChunkSize bytes each.
func SplitChunks(data []byte) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for off := 0; off < len(data); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, data[off:end])
	}
	return chunks
}
