// Package codec adapts third-party stream compression libraries to a single
// capability: wrap a reader to decode, wrap a writer to encode.
package codec

import (
	"errors"
	"fmt"
	"io"

	"github.com/harrison/packrat/internal/format"
)

// ErrUnsupported is returned for kinds that have no stream codec.
var ErrUnsupported = errors.New("no stream codec for format")

// Codec decodes and encodes one stream format.
type Codec interface {
	// NewReader returns a reader yielding the decoded bytes of r.
	NewReader(r io.Reader) (io.ReadCloser, error)
	// NewWriter returns a writer that encodes into w. Close flushes the
	// trailer but does not close w.
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

// Options tune encoders. Zero values select each library's default.
type Options struct {
	// Level is a 1 (fastest) to 9 (smallest) hint mapped onto each library's scale.
	Level int
	// Concurrency bounds encoder goroutines for codecs that parallelize internally.
	Concurrency int
}

// Registry maps stream kinds to codecs.
type Registry struct {
	codecs map[format.CodecKind]Codec
}

// NewRegistry returns a registry holding every built-in stream codec.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		codecs: map[format.CodecKind]Codec{
			format.Gzip:  gzipCodec{level: opts.Level},
			format.Bzip2: bzip2Codec{level: opts.Level},
			format.Lzma:  lzmaCodec{},
			format.Zstd:  zstdCodec{level: opts.Level, concurrency: opts.Concurrency},
			format.Lz4:   lz4Codec{level: opts.Level, concurrency: opts.Concurrency},
			format.Snap:  snapCodec{concurrency: opts.Concurrency},
		},
	}
}

// Register installs or replaces the codec for kind.
func (r *Registry) Register(kind format.CodecKind, c Codec) {
	r.codecs[kind] = c
}

// Lookup returns the codec for kind.
func (r *Registry) Lookup(kind format.CodecKind) (Codec, error) {
	c, ok := r.codecs[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	return c, nil
}

// ForLayer returns the codec for l. A legacy lzma layer gets the writer for
// the .lzma framing.
func (r *Registry) ForLayer(l format.Layer) (Codec, error) {
	c, err := r.Lookup(l.Kind)
	if err != nil {
		return nil, err
	}
	if lc, ok := c.(lzmaCodec); ok && l.Legacy {
		lc.legacy = true
		return lc, nil
	}
	return c, nil
}

// nopCloser turns a reader without Close into an io.ReadCloser.
type nopCloser struct{ io.Reader }

func (nopCloser) Close() error { return nil }

// readCloser pairs a reader with a close function that has no error result.
type readCloser struct {
	io.Reader
	close func()
}

func (r readCloser) Close() error {
	r.close()
	return nil
}
