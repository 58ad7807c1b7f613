package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

type tarContainer struct{}

func (tarContainer) Demultiplex(ctx context.Context, in Input, visit VisitFunc) error {
	tr := tar.NewReader(in.Reader)
	for {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read tar header: %w", err)
		}

		name, err := CleanName(hdr.Name)
		if err != nil {
			return err
		}
		e := Entry{
			Name:    name,
			Mode:    hdr.FileInfo().Mode(),
			ModTime: hdr.ModTime,
			Size:    hdr.Size,
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			e.IsDir = true
			if err := visit(e, emptyReader); err != nil {
				return err
			}
		case tar.TypeSymlink:
			e.LinkTarget = hdr.Linkname
			if err := visit(e, emptyReader); err != nil {
				return err
			}
		case tar.TypeLink:
			target, err := CleanName(hdr.Linkname)
			if err != nil {
				return err
			}
			e.HardLink = target
			e.Size = 0
			if err := visit(e, emptyReader); err != nil {
				return err
			}
		case tar.TypeReg, tar.TypeRegA:
			if err := visit(e, tr); err != nil {
				return err
			}
		default:
			// Devices and fifos are not materialized.
			continue
		}
	}
}

func (tarContainer) Multiplex(ctx context.Context, w io.Writer, items []Item) error {
	tw := tar.NewWriter(w)
	for _, item := range items {
		if err := checkCtx(ctx); err != nil {
			return err
		}
		if err := writeTarItem(tw, item); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish tar: %w", err)
	}
	return nil
}

func writeTarItem(tw *tar.Writer, item Item) error {
	hdr := &tar.Header{
		Name:    item.Name,
		Mode:    int64(item.Mode.Perm()),
		ModTime: item.ModTime,
		Format:  tar.FormatPAX,
	}
	switch {
	case item.IsDir:
		hdr.Typeflag = tar.TypeDir
		if !strings.HasSuffix(hdr.Name, "/") {
			hdr.Name += "/"
		}
	case item.IsSymlink():
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = item.LinkTarget
	default:
		hdr.Typeflag = tar.TypeReg
		hdr.Size = item.Size
	}

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header %s: %w", item.Name, err)
	}
	if hdr.Typeflag != tar.TypeReg {
		return nil
	}

	rc, err := item.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	n, err := io.Copy(tw, rc)
	if err != nil {
		return fmt.Errorf("write tar entry %s: %w", item.Name, err)
	}
	if n != item.Size {
		return fmt.Errorf("write tar entry %s: size changed from %d to %d bytes while archiving", item.Name, item.Size, n)
	}
	return nil
}
