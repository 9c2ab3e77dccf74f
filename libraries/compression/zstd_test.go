package compression

import (
	"bytes"
	"testing"
)

func testPayload() []byte {
	var buf bytes.Buffer
	for i := 0; i < 200; i++ {
		buf.WriteString("index=42 pack_voltage=51.2 current=-3.1 temp_c=24.5\n")
	}
	return buf.Bytes()
}

func TestZstdRoundTrip(t *testing.T) {
	src := testPayload()

	compressed, err := ZstdCompressLevel(nil, src, 3)
	if err != nil {
		t.Fatalf("ZstdCompressLevel: %v", err)
	}
	if len(compressed) >= len(src) {
		t.Errorf("repetitive payload did not shrink: %d >= %d", len(compressed), len(src))
	}

	out, err := ZstdDecompress(nil, compressed)
	if err != nil {
		t.Fatalf("ZstdDecompress: %v", err)
	}
	if !bytes.Equal(out, src) {
		t.Error("round trip mismatch")
	}
}

func TestZstdDecompressInto(t *testing.T) {
	src := testPayload()
	compressed, err := ZstdCompressLevel(nil, src, 1)
	if err != nil {
		t.Fatal(err)
	}

	dst := make([]byte, len(src))
	n, err := ZstdDecompressInto(dst, compressed)
	if err != nil {
		t.Fatalf("ZstdDecompressInto: %v", err)
	}
	if n != len(src) || !bytes.Equal(dst[:n], src) {
		t.Errorf("got %d bytes", n)
	}
}

func TestZstdDecompressPartial(t *testing.T) {
	src := testPayload()
	compressed, err := ZstdCompressLevel(nil, src, 3)
	if err != nil {
		t.Fatal(err)
	}

	out, err := ZstdDecompressPartial(compressed, 64)
	if err != nil {
		t.Fatalf("ZstdDecompressPartial: %v", err)
	}
	if len(out) < 64 {
		t.Errorf("partial returned %d bytes, want at least 64", len(out))
	}
	if !bytes.Equal(out[:64], src[:64]) {
		t.Error("partial prefix mismatch")
	}
}

func TestZstdDecompressGarbage(t *testing.T) {
	if _, err := ZstdDecompress(nil, []byte("not a zstd frame")); err == nil {
		t.Error("garbage input accepted")
	}
}
