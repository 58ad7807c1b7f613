package pipeline

import (
	"errors"
	"io"

	"github.com/harrison/packrat/internal/format"
)

// stageReader attributes read failures to the stage that produced them.
type stageReader struct {
	r     io.Reader
	layer format.Layer
}

func (s *stageReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		var stage *StageError
		if !errors.As(err, &stage) {
			err = &StageError{Layer: s.layer, Err: err}
		}
	}
	return n, err
}

type countingReader struct {
	r  io.Reader
	fn func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.fn(int64(n))
	}
	return n, err
}

type countingReaderAt struct {
	r  io.ReaderAt
	fn func(int64)
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n, err := c.r.ReadAt(p, off)
	if n > 0 {
		c.fn(int64(n))
	}
	return n, err
}

type countingWriter struct {
	w  io.Writer
	fn func(int64)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if n > 0 {
		c.fn(int64(n))
	}
	return n, err
}
