package persist

import (
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compressor transforms envelope bytes on their way to and from a Store.
type Compressor interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// CompressedStore wraps a Store, compressing on Save and decompressing on
// Load.
type CompressedStore struct {
	inner      Store
	compressor Compressor
}

// NewCompressedStore wraps inner with the given compressor.
func NewCompressedStore(inner Store, compressor Compressor) *CompressedStore {
	return &CompressedStore{inner: inner, compressor: compressor}
}

func (s *CompressedStore) Save(ctx context.Context, key string, data []byte) error {
	compressed, err := s.compressor.Compress(data)
	if err != nil {
		return fmt.Errorf("%s compression: %w", s.compressor.Name(), err)
	}

	return s.inner.Save(ctx, key, compressed)
}

func (s *CompressedStore) Load(ctx context.Context, key string) ([]byte, error) {
	compressed, err := s.inner.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	data, err := s.compressor.Decompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("%s decompression: %w", s.compressor.Name(), err)
	}

	return data, nil
}

func (s *CompressedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

// ZstdCompressor compresses envelopes with zstd. The zero value is ready to
// use; encoders and decoders are created per call because envelopes are
// small and infrequent.
type ZstdCompressor struct{}

func (ZstdCompressor) Name() string { return "zstd" }

func (ZstdCompressor) Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

func (ZstdCompressor) Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}

// lz4 block framing: 1 mode byte (raw or compressed) plus a 4-byte
// little-endian uncompressed length.
const (
	lz4ModeRaw        = 0
	lz4ModeCompressed = 1
	lz4HeaderLen      = 5
)

// LZ4Compressor compresses envelopes with lz4 block compression, trading
// ratio for speed.
type LZ4Compressor struct{}

func (LZ4Compressor) Name() string { return "lz4" }

func (LZ4Compressor) Compress(data []byte) ([]byte, error) {
	buf := make([]byte, lz4HeaderLen+lz4.CompressBlockBound(len(data)))

	buf[0] = lz4ModeCompressed
	buf[1] = byte(len(data))
	buf[2] = byte(len(data) >> 8)
	buf[3] = byte(len(data) >> 16)
	buf[4] = byte(len(data) >> 24)

	var compressor lz4.Compressor

	n, err := compressor.CompressBlock(data, buf[lz4HeaderLen:])
	if err != nil {
		return nil, err
	}

	if n == 0 {
		// Incompressible input is stored raw after the header.
		buf[0] = lz4ModeRaw
		buf = append(buf[:lz4HeaderLen], data...)

		return buf, nil
	}

	return buf[:lz4HeaderLen+n], nil
}

func (LZ4Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) < lz4HeaderLen {
		return nil, fmt.Errorf("lz4 block too short: %d bytes", len(data))
	}

	size := int(data[1]) | int(data[2])<<8 | int(data[3])<<16 | int(data[4])<<24
	body := data[lz4HeaderLen:]

	if data[0] == lz4ModeRaw {
		out := make([]byte, len(body))
		copy(out, body)

		return out, nil
	}

	out := make([]byte, size)

	n, err := lz4.UncompressBlock(body, out)
	if err != nil {
		return nil, err
	}

	return out[:n], nil
}
