package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bodgit/sevenzip"
	"github.com/nwaples/rardecode/v2"
)

type sevenZipContainer struct{}

func (sevenZipContainer) Demultiplex(ctx context.Context, in Input, visit VisitFunc) error {
	ra, size, cleanup, err := randomAccess(in)
	if err != nil {
		return err
	}
	defer cleanup()

	zr, err := sevenzip.NewReader(ra, size)
	if err != nil {
		return fmt.Errorf("open 7z: %w", err)
	}
	for _, f := range zr.File {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		if err := visitSevenZipFile(f, visit); err != nil {
			return err
		}
	}
	return nil
}

func visitSevenZipFile(f *sevenzip.File, visit VisitFunc) error {
	name, err := CleanName(f.Name)
	if err != nil {
		return err
	}
	info := f.FileInfo()
	e := Entry{
		Name:    name,
		Mode:    info.Mode(),
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}
	if info.IsDir() {
		e.IsDir = true
		return visit(e, emptyReader)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open 7z entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	return visit(e, rc)
}

func (sevenZipContainer) Multiplex(context.Context, io.Writer, []Item) error {
	return fmt.Errorf("%w: 7z", ErrReadOnly)
}

type rarContainer struct{}

func (rarContainer) Demultiplex(ctx context.Context, in Input, visit VisitFunc) error {
	rr, err := rardecode.NewReader(in.Reader)
	if err != nil {
		return fmt.Errorf("open rar: %w", err)
	}
	for {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		hdr, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rar header: %w", err)
		}

		name, err := CleanName(hdr.Name)
		if err != nil {
			return err
		}
		e := Entry{
			Name:    name,
			IsDir:   hdr.IsDir,
			Mode:    hdr.Mode(),
			ModTime: hdr.ModificationTime,
			Size:    hdr.UnPackedSize,
		}
		if e.IsDir {
			if err := visit(e, emptyReader); err != nil {
				return err
			}
			continue
		}
		if err := visit(e, rr); err != nil {
			return err
		}
	}
}

func (rarContainer) Multiplex(context.Context, io.Writer, []Item) error {
	return fmt.Errorf("%w: rar", ErrReadOnly)
}
