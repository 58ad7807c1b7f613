// Package pipeline composes the layers of a format chain into one streaming
// decode or encode path: stream codecs peel or wrap the bytes, and the
// container stage, when present, splits or joins the entry tree.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/harrison/packrat/internal/archive"
	"github.com/harrison/packrat/internal/codec"
	"github.com/harrison/packrat/internal/format"
	"github.com/harrison/packrat/internal/models"
)

var (
	// ErrEmptyChain is returned when building a pipeline without layers.
	ErrEmptyChain = errors.New("chain has no layers")
	// ErrNeedsContainer is returned when encoding anything other than a single
	// regular file through a chain without a container layer.
	ErrNeedsContainer = errors.New("multiple entries require a container layer")
)

// StageError reports a failure inside one pipeline stage: malformed or
// truncated data, or an encoder that could not finish its stream.
type StageError struct {
	Layer format.Layer
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Layer.Kind, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Registry bundles the stream codecs and containers a pipeline draws from.
type Registry struct {
	Codecs     *codec.Registry
	Containers *archive.Registry
}

// NewRegistry returns a registry of every built-in format. level is a 1-9
// compression hint (0 = library default); concurrency bounds encoder
// goroutines for codecs that parallelize.
func NewRegistry(level, concurrency int) *Registry {
	return &Registry{
		Codecs:     codec.NewRegistry(codec.Options{Level: level, Concurrency: concurrency}),
		Containers: archive.NewRegistry(level),
	}
}

// Source is the byte input of a decode. ReaderAt and Size are set when the
// source is a seekable file so random-access containers can skip spooling.
type Source struct {
	Reader   io.Reader
	ReaderAt io.ReaderAt
	Size     int64
	// TempDir receives spool files; empty means os.TempDir().
	TempDir string
}

// FileSource wraps an open file as a Source.
func FileSource(f *os.File) (Source, error) {
	info, err := f.Stat()
	if err != nil {
		return Source{}, err
	}
	return Source{Reader: f, ReaderAt: f, Size: info.Size()}, nil
}

// EntrySink receives decoded entries in container order. Without a container
// layer it is called once with an unnamed entry carrying the peeled stream.
// r is only valid for the duration of the call.
type EntrySink func(e archive.Entry, r io.Reader) error

// Pipeline is the composed stage list for one chain and direction.
type Pipeline struct {
	chain     format.Chain
	direction models.Direction
	streams   []codec.Codec // outermost first, parallel to chain.Streams()
	container archive.Container
	layer     format.Layer // container layer, valid when container != nil

	// OnBytes, when set, is called with the number of source bytes consumed
	// (decode) or destination bytes produced (encode).
	OnBytes func(n int64)
}

// Build resolves every layer of chain against reg.
func Build(chain format.Chain, direction models.Direction, reg *Registry) (*Pipeline, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}
	if err := chain.Validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{chain: chain, direction: direction}
	for _, l := range chain.Streams() {
		c, err := reg.Codecs.ForLayer(l)
		if err != nil {
			return nil, err
		}
		p.streams = append(p.streams, c)
	}
	if l, ok := chain.Container(); ok {
		if direction == models.Encode && l.Kind.DecodeOnly() {
			return nil, fmt.Errorf("%w: %s", format.ErrDecodeOnly, l.Kind)
		}
		c, err := reg.Containers.Lookup(l.Kind)
		if err != nil {
			return nil, err
		}
		p.container = c
		p.layer = l
	}
	return p, nil
}

// Chain returns the chain the pipeline was built from.
func (p *Pipeline) Chain() format.Chain {
	return p.chain
}

// HasContainer reports whether the innermost layer is a container.
func (p *Pipeline) HasContainer() bool {
	return p.container != nil
}

// Decode peels every stream layer outermost-first and hands the result to the
// container stage or, without one, straight to sink. Every decoder is drained
// to EOF and closed so trailing checksums are verified.
func (p *Pipeline) Decode(ctx context.Context, src Source, sink EntrySink) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var r io.Reader = src.Reader
	if p.OnBytes != nil {
		r = &countingReader{r: r, fn: p.OnBytes}
	}

	streams := p.chain.Streams()
	decoders := make([]io.ReadCloser, 0, len(p.streams))
	defer func() {
		for i := len(decoders) - 1; i >= 0; i-- {
			decoders[i].Close()
		}
	}()
	for i, c := range p.streams {
		dr, err := c.NewReader(r)
		if err != nil {
			return &StageError{Layer: streams[i], Err: err}
		}
		decoders = append(decoders, dr)
		r = &stageReader{r: dr, layer: streams[i]}
	}

	var err error
	if p.container != nil {
		err = p.demultiplex(ctx, src, r, sink)
	} else {
		err = sink(archive.Entry{Mode: 0644}, r)
	}
	if err != nil {
		return err
	}

	if len(decoders) > 0 {
		if _, err := io.Copy(io.Discard, r); err != nil {
			return classify(err, streams[len(streams)-1])
		}
	}
	for i := len(decoders) - 1; i >= 0; i-- {
		err := decoders[i].Close()
		decoders = decoders[:i]
		if err != nil {
			return &StageError{Layer: streams[i], Err: err}
		}
	}
	return nil
}

func (p *Pipeline) demultiplex(ctx context.Context, src Source, r io.Reader, sink EntrySink) error {
	in := archive.Input{Reader: r, TempDir: src.TempDir}
	if len(p.streams) == 0 && src.ReaderAt != nil {
		in.ReaderAt = src.ReaderAt
		in.Size = src.Size
		if p.OnBytes != nil {
			in.ReaderAt = &countingReaderAt{r: src.ReaderAt, fn: p.OnBytes}
		}
	}

	err := p.container.Demultiplex(ctx, in, func(e archive.Entry, er io.Reader) error {
		return callSink(sink, e, &stageReader{r: er, layer: p.layer})
	})
	return classify(err, p.layer)
}

// Encode joins entries through the container stage, if any, and wraps the
// result in every stream layer innermost-first. Without a container exactly
// one regular file is accepted.
func (p *Pipeline) Encode(ctx context.Context, entries []models.FileEntry, dst io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.container == nil && (len(entries) != 1 || entries[0].IsDir || entries[0].IsSymlink()) {
		return ErrNeedsContainer
	}

	var w io.Writer = dst
	if p.OnBytes != nil {
		w = &countingWriter{w: w, fn: p.OnBytes}
	}

	streams := p.chain.Streams()
	encoders := make([]io.WriteCloser, 0, len(p.streams))
	for i, c := range p.streams {
		ew, err := c.NewWriter(w)
		if err != nil {
			return &StageError{Layer: streams[i], Err: err}
		}
		encoders = append(encoders, ew)
		w = ew
	}

	var err error
	if p.container != nil {
		err = classify(p.container.Multiplex(ctx, w, Items(entries)), p.layer)
	} else {
		err = copyFile(w, entries[0].SourcePath)
	}
	if err != nil {
		return err
	}

	for i := len(encoders) - 1; i >= 0; i-- {
		if err := encoders[i].Close(); err != nil {
			return &StageError{Layer: streams[i], Err: err}
		}
	}
	return nil
}

// Items converts walker entries into container items that open their source
// file lazily.
func Items(entries []models.FileEntry) []archive.Item {
	items := make([]archive.Item, 0, len(entries))
	for _, fe := range entries {
		src := fe.SourcePath
		items = append(items, archive.Item{
			Entry: archive.Entry{
				Name:       fe.RelPath,
				IsDir:      fe.IsDir,
				Mode:       fe.Mode,
				ModTime:    fe.ModTime,
				LinkTarget: fe.LinkTarget,
				Size:       fe.Size,
			},
			Open: func() (io.ReadCloser, error) {
				return os.Open(src)
			},
		})
	}
	return items
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return err
	}
	return nil
}

// sinkError marks errors raised by the caller's sink so they pass through
// stage classification untouched.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

func callSink(sink EntrySink, e archive.Entry, r io.Reader) error {
	if err := sink(e, r); err != nil {
		return &sinkError{err: err}
	}
	return nil
}

// classify unwraps sink errors, leaves cancellation and existing stage errors
// alone, and attributes everything else to layer.
func classify(err error, layer format.Layer) error {
	if err == nil {
		return nil
	}
	var se *sinkError
	if errors.As(err, &se) {
		return se.err
	}
	var stage *StageError
	if errors.As(err, &stage) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &StageError{Layer: layer, Err: err}
}
