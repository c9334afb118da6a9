package encoding

import (
	"strings"
	"testing"
)

func TestBlocks_RoundTrip(t *testing.T) {
	in := make([]uint16, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 7)
	}
	in = append(in, 9, 10, 10, 10)

	enc := EncodeBlocks(in)
	out, err := DecodeBlocks(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeBlocks: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestLight_RoundTrip(t *testing.T) {
	in := make([]byte, 32*32*32)
	for i := 0; i < 40; i++ {
		in[100+i] = 255
		in[4000+i] = byte(i)
	}

	enc := EncodeLight(in)
	out, err := DecodeLight(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeLight: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestDecode_RejectsWrongCellCount(t *testing.T) {
	enc := EncodeLight([]byte{1, 1, 1, 1})
	if _, err := DecodeLight(enc, 8); err == nil || !strings.Contains(err.Error(), "want 8") {
		t.Fatalf("short payload accepted: %v", err)
	}
	if _, err := DecodeLight(enc, 2); err == nil || !strings.Contains(err.Error(), "overflows") {
		t.Fatalf("long payload accepted: %v", err)
	}
}

func TestDecode_RejectsOversizeValue(t *testing.T) {
	enc := EncodeBlocks([]uint16{300, 300})
	if _, err := DecodeLight(enc, 2); err == nil || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("oversize value accepted: %v", err)
	}
}

func TestDecode_RejectsGarbage(t *testing.T) {
	if _, err := DecodeBlocks("not base64!!!", 4); err == nil {
		t.Fatalf("bad base64 accepted")
	}
	// 0xFF alone is an unterminated varint.
	if _, err := DecodeBlocks("/w==", 4); err == nil {
		t.Fatalf("truncated varint accepted")
	}
}
