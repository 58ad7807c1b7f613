package codec

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/harrison/packrat/internal/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
)

var streamKinds = []format.CodecKind{
	format.Gzip,
	format.Bzip2,
	format.Lzma,
	format.Zstd,
	format.Lz4,
	format.Snap,
}

func payload(n int) []byte {
	rng := rand.New(rand.NewSource(42))
	buf := make([]byte, n)
	// Half random, half repetitive so every codec has something to compress.
	rng.Read(buf[:n/2])
	for i := n / 2; i < n; i++ {
		buf[i] = byte('a' + i%7)
	}
	return buf
}

func encode(t *testing.T, c Codec, data []byte) []byte {
	t.Helper()
	var out bytes.Buffer
	w, err := c.NewWriter(&out)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return out.Bytes()
}

func decode(c Codec, data []byte) ([]byte, error) {
	r, err := c.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func TestRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 4096, 300 * 1024}
	for _, level := range []int{0, 1, 9} {
		reg := NewRegistry(Options{Level: level})
		for _, kind := range streamKinds {
			for _, size := range sizes {
				c, err := reg.Lookup(kind)
				require.NoError(t, err)

				data := payload(size)
				got, err := decode(c, encode(t, c, data))
				require.NoError(t, err, "%s level=%d size=%d", kind, level, size)
				assert.True(t, bytes.Equal(data, got), "%s level=%d size=%d mismatch", kind, level, size)
			}
		}
	}
}

func TestTruncatedStreamFails(t *testing.T) {
	reg := NewRegistry(Options{})
	for _, kind := range []format.CodecKind{format.Gzip, format.Bzip2, format.Lzma, format.Zstd} {
		t.Run(kind.String(), func(t *testing.T) {
			c, err := reg.Lookup(kind)
			require.NoError(t, err)

			full := encode(t, c, payload(64*1024))
			_, err = decode(c, full[:len(full)/2])
			assert.Error(t, err)
		})
	}
}

func TestLzmaReadsLegacyFormat(t *testing.T) {
	data := payload(8192)
	var legacy bytes.Buffer
	w, err := lzma.NewWriter(&legacy)
	require.NoError(t, err)
	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	got, err := decode(lzmaCodec{}, legacy.Bytes())
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestForLayerSelectsLzmaFraming(t *testing.T) {
	reg := NewRegistry(Options{})
	data := payload(8192)

	c, err := reg.ForLayer(format.Layer{Kind: format.Lzma, Role: format.RoleStream})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(encode(t, c, data), xzMagic), "plain lzma layers write xz")

	c, err = reg.ForLayer(format.Layer{Kind: format.Lzma, Role: format.RoleStream, Legacy: true})
	require.NoError(t, err)
	out := encode(t, c, data)
	assert.False(t, bytes.HasPrefix(out, xzMagic))

	r, err := lzma.NewReader(bytes.NewReader(out))
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	got, err = decode(c, out)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	gz, err := reg.ForLayer(format.Layer{Kind: format.Gzip, Role: format.RoleStream, Legacy: true})
	require.NoError(t, err)
	assert.Equal(t, gzipCodec{}, gz)
}

func TestLookupUnsupported(t *testing.T) {
	reg := NewRegistry(Options{})
	_, err := reg.Lookup(format.Tar)
	assert.ErrorIs(t, err, ErrUnsupported)
}

type identity struct{}

func (identity) NewReader(r io.Reader) (io.ReadCloser, error) { return io.NopCloser(r), nil }

func (identity) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{w}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestRegisterReplacesCodec(t *testing.T) {
	reg := NewRegistry(Options{})
	reg.Register(format.Gzip, identity{})

	c, err := reg.Lookup(format.Gzip)
	require.NoError(t, err)
	got, err := decode(c, []byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(got))
}
