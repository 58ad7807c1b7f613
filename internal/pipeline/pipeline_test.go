package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/packrat/internal/archive"
	"github.com/harrison/packrat/internal/format"
	"github.com/harrison/packrat/internal/models"
)

var stamp = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// sampleTree writes a small tree under a temp dir and returns its entries in
// walker order.
func sampleTree(t *testing.T) []models.FileEntry {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "root")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0755))

	files := map[string][]byte{
		"a.txt":     []byte("hello packrat\n"),
		"sub/b.bin": bytes.Repeat([]byte{0, 1, 2, 3, 250}, 4096),
	}
	for rel, data := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, rel), data, 0644))
	}

	entry := func(rel string, isDir bool) models.FileEntry {
		p := filepath.Join(base, filepath.FromSlash(rel))
		info, err := os.Stat(p)
		require.NoError(t, err)
		fe := models.FileEntry{SourcePath: p, RelPath: rel, IsDir: isDir, Mode: info.Mode().Perm(), ModTime: stamp}
		if !isDir {
			fe.Size = info.Size()
		}
		return fe
	}
	return []models.FileEntry{
		entry("root", true),
		entry("root/a.txt", false),
		entry("root/sub", true),
		entry("root/sub/b.bin", false),
	}
}

func parse(t *testing.T, name string) format.Chain {
	t.Helper()
	chain, _, err := format.ParseOutput(name)
	require.NoError(t, err)
	return chain
}

type collected struct {
	names    []string
	contents map[string][]byte
}

func collect(t *testing.T) (*collected, EntrySink) {
	c := &collected{contents: map[string][]byte{}}
	return c, func(e archive.Entry, r io.Reader) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		c.names = append(c.names, e.Name)
		if !e.IsDir {
			c.contents[e.Name] = data
		}
		return nil
	}
}

func TestRoundTripContainerChains(t *testing.T) {
	entries := sampleTree(t)
	reg := NewRegistry(0, 2)

	names := []string{
		"out.tar",
		"out.tar.gz",
		"out.tgz",
		"out.tar.bz2",
		"out.tar.xz",
		"out.tar.zst",
		"out.tar.lz4",
		"out.tar.sz",
		"out.tar.gz.zst",
		"out.tar.bz2.lz4.sz",
		"out.zip",
		"out.zip.gz",
		"out.zip.xz.zst",
	}

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			chain := parse(t, name)

			enc, err := Build(chain, models.Encode, reg)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, enc.Encode(context.Background(), entries, &buf))

			dec, err := Build(chain, models.Decode, reg)
			require.NoError(t, err)
			got, sink := collect(t)
			require.NoError(t, dec.Decode(context.Background(), Source{Reader: bytes.NewReader(buf.Bytes()), TempDir: t.TempDir()}, sink))

			assert.Equal(t, []string{"root", "root/a.txt", "root/sub", "root/sub/b.bin"}, got.names)
			for _, fe := range entries {
				if fe.IsDir {
					continue
				}
				want, err := os.ReadFile(fe.SourcePath)
				require.NoError(t, err)
				assert.Equal(t, want, got.contents[fe.RelPath], fe.RelPath)
			}
		})
	}
}

func TestRoundTripStreamOnly(t *testing.T) {
	entries := sampleTree(t)
	single := []models.FileEntry{entries[3]}
	want, err := os.ReadFile(single[0].SourcePath)
	require.NoError(t, err)
	reg := NewRegistry(9, 1)

	for _, name := range []string{"b.gz", "b.bz2", "b.lzma", "b.zst", "b.lz4", "b.sz", "b.gz.zst", "b.xz.bz2.gz"} {
		t.Run(name, func(t *testing.T) {
			chain := parse(t, name)

			enc, err := Build(chain, models.Encode, reg)
			require.NoError(t, err)
			var buf bytes.Buffer
			require.NoError(t, enc.Encode(context.Background(), single, &buf))

			dec, err := Build(chain, models.Decode, reg)
			require.NoError(t, err)
			assert.False(t, dec.HasContainer())

			var calls int
			var got []byte
			err = dec.Decode(context.Background(), Source{Reader: &buf}, func(e archive.Entry, r io.Reader) error {
				calls++
				assert.Empty(t, e.Name)
				got, err = io.ReadAll(r)
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, 1, calls)
			assert.Equal(t, want, got)
		})
	}
}

func TestEncodeWithoutContainerRejectsTree(t *testing.T) {
	entries := sampleTree(t)
	p, err := Build(parse(t, "out.gz"), models.Encode, NewRegistry(0, 0))
	require.NoError(t, err)

	err = p.Encode(context.Background(), entries, io.Discard)
	assert.ErrorIs(t, err, ErrNeedsContainer)

	err = p.Encode(context.Background(), entries[:1], io.Discard)
	assert.ErrorIs(t, err, ErrNeedsContainer, "a lone directory still needs a container")
}

func TestBuildRejectsInvalidChains(t *testing.T) {
	reg := NewRegistry(0, 0)

	_, err := Build(nil, models.Decode, reg)
	assert.ErrorIs(t, err, ErrEmptyChain)

	rar, _, err := format.Parse("legacy.rar")
	require.NoError(t, err)
	_, err = Build(rar, models.Encode, reg)
	assert.ErrorIs(t, err, format.ErrDecodeOnly)

	p, err := Build(rar, models.Decode, reg)
	require.NoError(t, err)
	assert.True(t, p.HasContainer())
	assert.Equal(t, rar, p.Chain())
}

func TestDecodeTruncatedStreamIsStageError(t *testing.T) {
	entries := sampleTree(t)
	reg := NewRegistry(0, 0)
	chain := parse(t, "out.tar.gz")

	enc, err := Build(chain, models.Encode, reg)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), entries, &buf))

	truncated := buf.Bytes()[:buf.Len()/2]
	dec, err := Build(chain, models.Decode, reg)
	require.NoError(t, err)

	_, sink := collect(t)
	err = dec.Decode(context.Background(), Source{Reader: bytes.NewReader(truncated)}, sink)
	require.Error(t, err)
	var stage *StageError
	assert.True(t, errors.As(err, &stage), "got %v", err)
}

func TestDecodeGarbageIsStageError(t *testing.T) {
	dec, err := Build(parse(t, "x.zst"), models.Decode, NewRegistry(0, 0))
	require.NoError(t, err)

	err = dec.Decode(context.Background(), Source{Reader: bytes.NewReader([]byte("definitely not zstd"))}, func(archive.Entry, io.Reader) error {
		return nil
	})
	var stage *StageError
	require.True(t, errors.As(err, &stage), "got %v", err)
	assert.Equal(t, format.Zstd, stage.Layer.Kind)
}

func TestDecodeSinkErrorPassesThrough(t *testing.T) {
	entries := sampleTree(t)
	reg := NewRegistry(0, 0)
	chain := parse(t, "out.tar.gz")

	enc, err := Build(chain, models.Encode, reg)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), entries, &buf))

	dec, err := Build(chain, models.Decode, reg)
	require.NoError(t, err)

	boom := errors.New("disk full")
	err = dec.Decode(context.Background(), Source{Reader: &buf}, func(archive.Entry, io.Reader) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	var stage *StageError
	assert.False(t, errors.As(err, &stage))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("sequential read not expected")
}

func TestDecodeBareZipUsesReaderAt(t *testing.T) {
	entries := sampleTree(t)
	reg := NewRegistry(0, 0)
	chain := parse(t, "out.zip")

	enc, err := Build(chain, models.Encode, reg)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), entries, &buf))

	dec, err := Build(chain, models.Decode, reg)
	require.NoError(t, err)
	var read atomic.Int64
	dec.OnBytes = func(n int64) { read.Add(n) }

	got, sink := collect(t)
	src := Source{Reader: failingReader{}, ReaderAt: bytes.NewReader(buf.Bytes()), Size: int64(buf.Len())}
	require.NoError(t, dec.Decode(context.Background(), src, sink))
	assert.Len(t, got.names, 4)
	assert.Positive(t, read.Load())
}

func TestDecodeSevenZipInsideStreamLayer(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "archive", "testdata", "pair.7z"))
	require.NoError(t, err)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(data)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	chain, _, err := format.Parse("pair.7z.gz")
	require.NoError(t, err)
	dec, err := Build(chain, models.Decode, NewRegistry(0, 0))
	require.NoError(t, err)

	// The gzip layer leaves only a stream, so the 7z reader works from a spool file.
	spool := t.TempDir()
	got, sink := collect(t)
	require.NoError(t, dec.Decode(context.Background(), Source{Reader: bytes.NewReader(buf.Bytes()), TempDir: spool}, sink))

	assert.Equal(t, []string{"bar", "foo"}, got.names)
	assert.Equal(t, "bar\n", string(got.contents["bar"]))
	assert.Equal(t, "foo\n", string(got.contents["foo"]))
	left, err := os.ReadDir(spool)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestOnBytesCountsWholeSource(t *testing.T) {
	entries := sampleTree(t)
	reg := NewRegistry(0, 0)
	chain := parse(t, "out.tar.zst")

	enc, err := Build(chain, models.Encode, reg)
	require.NoError(t, err)
	var written atomic.Int64
	enc.OnBytes = func(n int64) { written.Add(n) }
	var buf bytes.Buffer
	require.NoError(t, enc.Encode(context.Background(), entries, &buf))
	assert.Equal(t, int64(buf.Len()), written.Load())

	dec, err := Build(chain, models.Decode, reg)
	require.NoError(t, err)
	var read atomic.Int64
	dec.OnBytes = func(n int64) { read.Add(n) }
	_, sink := collect(t)
	require.NoError(t, dec.Decode(context.Background(), Source{Reader: bytes.NewReader(buf.Bytes())}, sink))
	assert.Equal(t, written.Load(), read.Load())
}

func TestDecodeHonoursCancelledContext(t *testing.T) {
	dec, err := Build(parse(t, "out.tar"), models.Decode, NewRegistry(0, 0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = dec.Decode(ctx, Source{Reader: bytes.NewReader(nil)}, func(archive.Entry, io.Reader) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.bin")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0644))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	src, err := FileSource(f)
	require.NoError(t, err)
	assert.Equal(t, int64(5), src.Size)
	assert.NotNil(t, src.ReaderAt)
}
