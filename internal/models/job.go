package models

import (
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/packrat/internal/format"
)

// Direction says whether a job peels layers off or wraps them on.
type Direction int

const (
	// Decode extracts or decompresses.
	Decode Direction = iota
	// Encode archives or compresses.
	Encode
)

func (d Direction) String() string {
	if d == Encode {
		return "compress"
	}
	return "decompress"
}

// FileEntry is one file or directory yielded by the walker.
type FileEntry struct {
	SourcePath string      // Absolute path on disk
	RelPath    string      // Slash-separated path used as entry name and write path
	IsDir      bool        // Directory entries carry no content
	Mode       fs.FileMode // Permission bits (and type bits for links)
	ModTime    time.Time   // Last modification time
	LinkTarget string      // Non-empty for symbolic links that were not followed
	Size       int64       // Content size in bytes for regular files
}

// IsSymlink reports whether the entry is an unfollowed symbolic link.
func (e FileEntry) IsSymlink() bool {
	return e.LinkTarget != ""
}

// Job is one independent top-level unit of work.
type Job struct {
	ID          int          // Position in the operation, 1-based
	Direction   Direction    // Decode or Encode
	Inputs      []string     // Top-level inputs (one for decode jobs)
	Output      string       // Destination file, or directory when OutputIsDir
	OutputIsDir bool         // Output receives extracted trees
	Chain       format.Chain // Encode chain of Output; decode chains come from each input
}

// Name is a short label for logs: the first input plus a count of the rest.
func (j Job) Name() string {
	if len(j.Inputs) == 0 {
		return filepath.Base(j.Output)
	}
	name := j.Inputs[0]
	if len(j.Inputs) > 1 {
		name += " (+" + strconv.Itoa(len(j.Inputs)-1) + " more)"
	}
	return name
}

// Describe renders "inputs -> output" for summaries.
func (j Job) Describe() string {
	return strings.Join(j.Inputs, ", ") + " -> " + j.Output
}
