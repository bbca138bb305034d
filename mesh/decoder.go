package mesh

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// maxDecodedBytes limits decompressed payloads to 64 MB.
const maxDecodedBytes = 64 << 20

var (
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
	lz4Magic  = []byte{0x04, 0x22, 0x4D, 0x18}
)

// DecodeSample decodes an ODF sample from various formats:
// - Raw JSON
// - Zlib-compressed JSON
// - Zstandard-compressed JSON
// - LZ4 frame-compressed JSON
func DecodeSample(data []byte) (*OdfSample, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty data")
	}

	var jsonBytes []byte
	var err error

	switch {
	case data[0] == '{':
		jsonBytes = data
	case bytes.HasPrefix(data, zstdMagic):
		jsonBytes, err = inflateZstd(data)
	case bytes.HasPrefix(data, lz4Magic):
		jsonBytes, err = inflateLZ4(data)
	case data[0] == 0x78:
		jsonBytes, err = inflateZlib(data)
	default:
		return nil, fmt.Errorf("unknown format: not JSON, zlib, zstd or lz4")
	}
	if err != nil {
		return nil, err
	}

	if len(jsonBytes) == 0 {
		return nil, fmt.Errorf("decoded JSON payload is empty")
	}
	return ParseSampleJSON(jsonBytes)
}

// inflateZlib decompresses zlib data
func inflateZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = r.Close() }()

	return readLimited(r, "zlib")
}

// inflateZstd decompresses a zstd frame
func inflateZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDecodedBytes))
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing zstd: %w", err)
	}
	return out, nil
}

// inflateLZ4 decompresses an LZ4 frame
func inflateLZ4(data []byte) ([]byte, error) {
	return readLimited(lz4.NewReader(bytes.NewReader(data)), "lz4")
}

func readLimited(r io.Reader, codec string) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecodedBytes+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", codec, err)
	}
	if len(out) > maxDecodedBytes {
		return nil, fmt.Errorf("decompressed %s payload exceeds %d bytes", codec, maxDecodedBytes)
	}
	return out, nil
}
