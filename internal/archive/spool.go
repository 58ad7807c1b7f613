package archive

import (
	"fmt"
	"io"
	"os"
)

// randomAccess returns a ReaderAt over the input. Seekable inputs are used
// directly; streams are copied to a temporary file that cleanup removes.
func randomAccess(in Input) (io.ReaderAt, int64, func(), error) {
	if in.ReaderAt != nil {
		return in.ReaderAt, in.Size, func() {}, nil
	}

	tmp, err := os.CreateTemp(in.TempDir, ".packrat-spool-*")
	if err != nil {
		return nil, 0, nil, fmt.Errorf("create spool file: %w", err)
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}

	n, err := io.Copy(tmp, in.Reader)
	if err != nil {
		cleanup()
		return nil, 0, nil, fmt.Errorf("spool stream: %w", err)
	}
	return tmp, n, cleanup, nil
}
