package mesh

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const sampleJSON = `{"source":"s1","sphere":"oct","values":[1,0.5,0,0,0,0],"timestamp":42}`

func zlibCompress(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func zstdCompress(t testing.TB, data []byte) []byte {
	t.Helper()
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func lz4Compress(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("lz4 write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("lz4 close: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeSample_Formats(t *testing.T) {
	raw := []byte(sampleJSON)

	tests := []struct {
		name string
		data []byte
	}{
		{"raw JSON", raw},
		{"zlib", zlibCompress(t, raw)},
		{"zstd", zstdCompress(t, raw)},
		{"lz4", lz4Compress(t, raw)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeSample(tt.data)
			if err != nil {
				t.Fatalf("DecodeSample() error: %v", err)
			}
			if s.Source != "s1" || s.Sphere != "oct" || s.Timestamp != 42 {
				t.Errorf("DecodeSample() = %+v", s)
			}
			if len(s.Values) != 6 || s.Values[1] != 0.5 {
				t.Errorf("Values = %v", s.Values)
			}
		})
	}
}

func TestDecodeSample_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantMsg string
	}{
		{"empty", nil, "empty data"},
		{"unknown format", []byte("hello"), "unknown format"},
		{"truncated zlib", []byte{0x78, 0x9c, 0x01}, "zlib"},
		{"corrupt zstd", append(append([]byte{}, zstdMagic...), 0xff, 0xff, 0xff), "zstd"},
		{"no values", []byte(`{"sphere":"oct"}`), "no values"},
		{"compressed empty payload", zlibCompress(t, nil), "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSample(tt.data)
			if err == nil {
				t.Fatal("DecodeSample() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestReadLimited(t *testing.T) {
	out, err := readLimited(strings.NewReader("abc"), "test")
	if err != nil || string(out) != "abc" {
		t.Errorf("readLimited() = %q, %v", out, err)
	}
}

func BenchmarkDecodeSample_Zstd(b *testing.B) {
	data := zstdCompress(b, []byte(sampleJSON))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeSample(data); err != nil {
			b.Fatal(err)
		}
	}
}
