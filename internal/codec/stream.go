package codec

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

type gzipCodec struct{ level int }

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip header: %w", err)
	}
	return zr, nil
}

func (c gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := gzip.DefaultCompression
	if c.level > 0 {
		level = clamp(c.level, gzip.BestSpeed, gzip.BestCompression)
	}
	return gzip.NewWriterLevel(w, level)
}

type bzip2Codec struct{ level int }

func (bzip2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := bzip2.NewReader(r, nil)
	if err != nil {
		return nil, fmt.Errorf("bzip2 reader: %w", err)
	}
	return zr, nil
}

func (c bzip2Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	conf := &bzip2.WriterConfig{Level: bzip2.DefaultCompression}
	if c.level > 0 {
		conf.Level = clamp(c.level, bzip2.BestSpeed, bzip2.BestCompression)
	}
	return bzip2.NewWriter(w, conf)
}

// xzMagic opens every .xz stream; anything else under the lzma kind is read as
// a legacy .lzma stream.
var xzMagic = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}

// lzmaCodec reads both framings. It writes xz unless legacy is set.
type lzmaCodec struct{ legacy bool }

func (lzmaCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(xzMagic))
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("lzma header: %w", err)
	}
	if bytes.Equal(head, xzMagic) {
		zr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("xz reader: %w", err)
		}
		return nopCloser{zr}, nil
	}
	zr, err := lzma.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("lzma reader: %w", err)
	}
	return nopCloser{zr}, nil
}

func (c lzmaCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	if c.legacy {
		return lzma.NewWriter(w)
	}
	return xz.NewWriter(w)
}

type zstdCodec struct {
	level       int
	concurrency int
}

func (c zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	opts := []zstd.DOption{}
	if c.concurrency > 0 {
		opts = append(opts, zstd.WithDecoderConcurrency(c.concurrency))
	}
	zr, err := zstd.NewReader(r, opts...)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return readCloser{Reader: zr, close: zr.Close}, nil
}

func (c zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	opts := []zstd.EOption{}
	if c.level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)))
	}
	if c.concurrency > 0 {
		opts = append(opts, zstd.WithEncoderConcurrency(c.concurrency))
	}
	return zstd.NewWriter(w, opts...)
}

type lz4Codec struct {
	level       int
	concurrency int
}

func (lz4Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return nopCloser{lz4.NewReader(r)}, nil
}

func (c lz4Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw := lz4.NewWriter(w)
	var opts []lz4.Option
	if c.level > 0 {
		opts = append(opts, lz4.CompressionLevelOption(lz4Levels[clamp(c.level, 1, 9)]))
	}
	if c.concurrency > 0 {
		opts = append(opts, lz4.ConcurrencyOption(c.concurrency))
	}
	if len(opts) > 0 {
		if err := zw.Apply(opts...); err != nil {
			return nil, fmt.Errorf("lz4 options: %w", err)
		}
	}
	return zw, nil
}

var lz4Levels = map[int]lz4.CompressionLevel{
	1: lz4.Fast,
	2: lz4.Level1,
	3: lz4.Level2,
	4: lz4.Level3,
	5: lz4.Level4,
	6: lz4.Level5,
	7: lz4.Level6,
	8: lz4.Level7,
	9: lz4.Level9,
}

// snapCodec speaks the snappy framing format (.sz) through s2, which reads
// snappy frames natively and writes them in compatibility mode.
type snapCodec struct{ concurrency int }

func (snapCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	return nopCloser{s2.NewReader(r)}, nil
}

func (c snapCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	opts := []s2.WriterOption{s2.WriterSnappyCompat()}
	if c.concurrency > 0 {
		opts = append(opts, s2.WriterConcurrency(c.concurrency))
	}
	return s2.NewWriter(w, opts...), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
