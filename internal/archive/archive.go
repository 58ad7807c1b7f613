// Package archive adapts container formats (tar, zip, 7z, rar) to one
// capability: split a byte stream into named entries, or join entries into one
// byte stream.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/harrison/packrat/internal/format"
)

var (
	// ErrUnsupported is returned for kinds that are not containers.
	ErrUnsupported = errors.New("no container for format")
	// ErrReadOnly is returned when multiplexing into a decode-only container.
	ErrReadOnly = errors.New("container format is read-only")
	// ErrUnsafePath is returned for entry names that are absolute or escape the
	// extraction root.
	ErrUnsafePath = errors.New("unsafe entry path")
)

// Entry describes one member of a container.
type Entry struct {
	// Name is the slash-separated relative path inside the container.
	Name       string
	IsDir      bool
	Mode       fs.FileMode
	ModTime    time.Time
	LinkTarget string
	HardLink   string // earlier entry whose content this entry shares
	Size       int64
}

// IsSymlink reports whether the entry is a symbolic link.
func (e Entry) IsSymlink() bool {
	return e.LinkTarget != ""
}

// Item is an entry to be multiplexed together with a way to open its content.
// Open is not called for directories and symlinks.
type Item struct {
	Entry
	Open func() (io.ReadCloser, error)
}

// Input is the byte stream handed to a demultiplexer. ReaderAt and Size are set
// when the stream is a seekable file; containers that need random access spool
// the stream to a temporary file otherwise.
type Input struct {
	Reader   io.Reader
	ReaderAt io.ReaderAt
	Size     int64
	// TempDir is where spooled copies go; empty means os.TempDir().
	TempDir string
}

// VisitFunc receives each entry in container order. r yields the entry content
// and is only valid for the duration of the call; it is empty for directories
// and symlinks.
type VisitFunc func(e Entry, r io.Reader) error

// Container splits and joins entry trees.
type Container interface {
	Demultiplex(ctx context.Context, in Input, visit VisitFunc) error
	Multiplex(ctx context.Context, w io.Writer, items []Item) error
}

// Registry maps container kinds to their implementation.
type Registry struct {
	containers map[format.CodecKind]Container
}

// NewRegistry returns a registry holding every built-in container. level is
// the deflate level hint for zip (0 = default).
func NewRegistry(level int) *Registry {
	return &Registry{
		containers: map[format.CodecKind]Container{
			format.Tar:      tarContainer{},
			format.Zip:      zipContainer{level: level},
			format.SevenZip: sevenZipContainer{},
			format.Rar:      rarContainer{},
		},
	}
}

// Lookup returns the container for kind.
func (r *Registry) Lookup(kind format.CodecKind) (Container, error) {
	c, ok := r.containers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
	}
	return c, nil
}

// CleanName normalizes an entry name to a clean relative slash path and rejects
// names that are absolute or climb out of the extraction root.
func CleanName(name string) (string, error) {
	n := strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(n, "/") || (len(n) > 1 && n[1] == ':') {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, name)
	}
	n = path.Clean(n)
	if n == ".." || strings.HasPrefix(n, "../") {
		return "", fmt.Errorf("%w: %q escapes the destination", ErrUnsafePath, name)
	}
	if n == "." {
		return "", fmt.Errorf("%w: %q is empty", ErrUnsafePath, name)
	}
	return n, nil
}

func checkCtx(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// emptyReader is handed to visitors for entries without content.
var emptyReader = strings.NewReader("")
