package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

type zipContainer struct{ level int }

func (zipContainer) Demultiplex(ctx context.Context, in Input, visit VisitFunc) error {
	ra, size, cleanup, err := randomAccess(in)
	if err != nil {
		return err
	}
	defer cleanup()

	zr, err := zip.NewReader(ra, size)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	for _, f := range zr.File {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		if err := visitZipFile(f, visit); err != nil {
			return err
		}
	}
	return nil
}

func visitZipFile(f *zip.File, visit VisitFunc) error {
	name, err := CleanName(f.Name)
	if err != nil {
		return err
	}
	mode := f.Mode()
	e := Entry{
		Name:    name,
		Mode:    mode,
		ModTime: f.Modified,
		Size:    int64(f.UncompressedSize64),
	}

	if mode.IsDir() || strings.HasSuffix(f.Name, "/") {
		e.IsDir = true
		return visit(e, emptyReader)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	if mode&fs.ModeSymlink != 0 {
		target, err := io.ReadAll(io.LimitReader(rc, 4096))
		if err != nil {
			return fmt.Errorf("read zip link %s: %w", f.Name, err)
		}
		e.LinkTarget = string(target)
		return visit(e, emptyReader)
	}
	return visit(e, rc)
}

func (c zipContainer) Multiplex(ctx context.Context, w io.Writer, items []Item) error {
	zw := zip.NewWriter(w)
	if c.level > 0 {
		level := c.level
		zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(out, level)
		})
	}

	for _, item := range items {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		if err := writeZipItem(zw, item); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish zip: %w", err)
	}
	return nil
}

func writeZipItem(zw *zip.Writer, item Item) error {
	hdr := &zip.FileHeader{
		Name:     item.Name,
		Method:   zip.Deflate,
		Modified: item.ModTime,
	}
	mode := item.Mode.Perm()
	switch {
	case item.IsDir:
		mode |= fs.ModeDir
		hdr.Method = zip.Store
		if !strings.HasSuffix(hdr.Name, "/") {
			hdr.Name += "/"
		}
	case item.IsSymlink():
		mode |= fs.ModeSymlink
		hdr.Method = zip.Store
	}
	hdr.SetMode(mode)

	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("write zip header %s: %w", item.Name, err)
	}
	switch {
	case item.IsDir:
		return nil
	case item.IsSymlink():
		_, err := io.WriteString(fw, item.LinkTarget)
		return err
	}

	rc, err := item.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if _, err := io.Copy(fw, rc); err != nil {
		return fmt.Errorf("write zip entry %s: %w", item.Name, err)
	}
	return nil
}
