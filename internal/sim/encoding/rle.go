// Package encoding carries chunk-sized grids over the wire and into
// snapshots as base64(varint pairs). Each pair is (value, run_len); runs
// make flat terrain and dark light fields almost free.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// EncodeBlocks encodes a chunk's palette ids.
func EncodeBlocks(ids []uint16) string { return encodeRuns(ids) }

// DecodeBlocks decodes a payload that must hold exactly want palette ids.
func DecodeBlocks(b64 string, want int) ([]uint16, error) {
	return decodeRuns[uint16](b64, want, 0xFFFF)
}

// EncodeLight encodes one channel's intensity grid.
func EncodeLight(cells []byte) string { return encodeRuns(cells) }

// DecodeLight decodes a payload that must hold exactly want intensities.
func DecodeLight(b64 string, want int) ([]byte, error) {
	return decodeRuns[byte](b64, want, 0xFF)
}

func encodeRuns[T uint8 | uint16](vals []T) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	i := 0
	for i < len(vals) {
		v := vals[i]
		run := 1
		for j := i + 1; j < len(vals) && vals[j] == v; j++ {
			run++
		}

		n := binary.PutUvarint(tmp[:], uint64(v))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])

		i += run
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// decodeRuns rejects payloads that decode to anything but want values, so
// a truncated or padded payload cannot produce a misshapen grid and a
// hostile run length cannot balloon the allocation.
func decodeRuns[T uint8 | uint16](b64 string, want int, max uint64) ([]T, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, want)
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > max {
			return nil, fmt.Errorf("value too large: %d", v)
		}
		if run == 0 || run > uint64(want-len(out)) {
			return nil, fmt.Errorf("run of %d overflows %d cells", run, want)
		}
		for k := 0; k < int(run); k++ {
			out = append(out, T(v))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("decoded %d cells, want %d", len(out), want)
	}
	return out, nil
}
