// Copyright 2026 The Quicksend Authors
// SPDX-License-Identifier: Apache-2.0

package blob

import (
	"bytes"
	"testing"
)

func TestCompressRoundtrip(t *testing.T) {
	data := bytes.Repeat([]byte("compressible text payload. "), 1000)

	for _, tag := range []CompressionTag{CompressionLZ4, CompressionZstd} {
		compressed, err := CompressBlock(data, tag)
		if err != nil {
			t.Fatalf("%s compress failed: %v", tag, err)
		}
		if len(compressed) >= len(data) {
			t.Errorf("%s did not shrink repetitive input: %d -> %d",
				tag, len(data), len(compressed))
		}

		decompressed, err := DecompressBlock(compressed, tag, len(data))
		if err != nil {
			t.Fatalf("%s decompress failed: %v", tag, err)
		}
		if !bytes.Equal(decompressed, data) {
			t.Errorf("%s roundtrip mismatch", tag)
		}
	}
}

func TestCompressNonePassthrough(t *testing.T) {
	data := []byte("untouched")

	compressed, err := CompressBlock(data, CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(compressed, data) {
		t.Error("CompressionNone modified the data")
	}

	decompressed, err := DecompressBlock(compressed, CompressionNone, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Error("CompressionNone roundtrip mismatch")
	}

	// Size mismatch must be rejected.
	if _, err := DecompressBlock(compressed, CompressionNone, len(data)+1); err == nil {
		t.Error("DecompressBlock accepted a size mismatch for CompressionNone")
	}
}

func TestCompressIncompressibleInput(t *testing.T) {
	data := randomBytes(t, 20, 64*1024)

	_, err := CompressBlock(data, CompressionLZ4)
	if !IsIncompressible(err) {
		t.Errorf("LZ4 on random input: got err %v, want incompressible", err)
	}

	_, err = CompressBlock(data, CompressionZstd)
	if !IsIncompressible(err) {
		t.Errorf("zstd on random input: got err %v, want incompressible", err)
	}
}

func TestCompressBlockAutoFallback(t *testing.T) {
	data := randomBytes(t, 21, 64*1024)

	compressed, tag, err := CompressBlockAuto(data, "")
	if err != nil {
		t.Fatalf("CompressBlockAuto failed: %v", err)
	}
	if tag != CompressionNone {
		t.Errorf("random input selected %s, want none", tag)
	}
	if !bytes.Equal(compressed, data) {
		t.Error("CompressionNone fallback modified the data")
	}
}

func TestSelectCompression(t *testing.T) {
	text := bytes.Repeat([]byte("log line: request handled in 3ms\n"), 500)
	if tag := SelectCompression(text, ""); tag != CompressionZstd {
		t.Errorf("repetitive text selected %s, want zstd", tag)
	}

	if tag := SelectCompression(randomBytes(t, 22, 32*1024), ""); tag != CompressionNone {
		t.Errorf("random data selected %s, want none", tag)
	}

	// Known content types skip the probe.
	if tag := SelectCompression(nil, "application/json"); tag != CompressionZstd {
		t.Errorf("application/json selected %s, want zstd", tag)
	}
	if tag := SelectCompression(nil, "image/png"); tag != CompressionNone {
		t.Errorf("image/png selected %s, want none", tag)
	}
}

func TestParseCompressionTag(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		parsed, err := ParseCompressionTag(tag.String())
		if err != nil {
			t.Errorf("ParseCompressionTag(%q) failed: %v", tag.String(), err)
		}
		if parsed != tag {
			t.Errorf("ParseCompressionTag(%q) = %d, want %d", tag.String(), parsed, tag)
		}
	}

	if _, err := ParseCompressionTag("brotli"); err == nil {
		t.Error("ParseCompressionTag accepted an unknown name")
	}
}
