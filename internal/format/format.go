// Package format resolves filename suffixes into ordered chains of codec layers.
//
// A chain is read right to left: "a.tar.gz" is a gzip stream wrapping a tar
// container, so Parse returns [gzip, tar] (outermost first) and the base name "a".
// Stream layers wrap one byte stream; a container layer holds named entries and
// must be the innermost layer of a chain.
package format

import (
	"errors"
	"fmt"
)

// CodecKind identifies one compression or container format.
type CodecKind int

const (
	Tar CodecKind = iota + 1
	Zip
	SevenZip
	Rar
	Gzip
	Bzip2
	Lzma
	Zstd
	Lz4
	Snap
)

// Role says whether a layer wraps a single byte stream or a tree of entries.
type Role int

const (
	// RoleStream layers wrap exactly one byte stream.
	RoleStream Role = iota
	// RoleContainer layers hold multiple named entries.
	RoleContainer
)

func (r Role) String() string {
	if r == RoleContainer {
		return "container"
	}
	return "stream"
}

type kindInfo struct {
	name       string
	role       Role
	decodeOnly bool
}

// kinds is the single place a new format has to be registered.
var kinds = map[CodecKind]kindInfo{
	Tar:      {name: "tar", role: RoleContainer},
	Zip:      {name: "zip", role: RoleContainer},
	SevenZip: {name: "7z", role: RoleContainer, decodeOnly: true},
	Rar:      {name: "rar", role: RoleContainer, decodeOnly: true},
	Gzip:     {name: "gzip", role: RoleStream},
	Bzip2:    {name: "bzip2", role: RoleStream},
	Lzma:     {name: "lzma", role: RoleStream},
	Zstd:     {name: "zstd", role: RoleStream},
	Lz4:      {name: "lz4", role: RoleStream},
	Snap:     {name: "snap", role: RoleStream},
}

// String returns the short format name, e.g. "gzip".
func (k CodecKind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("CodecKind(%d)", int(k))
}

// Role returns the role of the kind.
func (k CodecKind) Role() Role {
	return kinds[k].role
}

// DecodeOnly reports whether the kind can be read but not written.
func (k CodecKind) DecodeOnly() bool {
	return kinds[k].decodeOnly
}

// Layer is one step of a chain.
type Layer struct {
	Kind CodecKind
	Role Role

	// Legacy selects the .lzma framing instead of xz when writing.
	Legacy bool
}

func layer(k CodecKind) Layer {
	return Layer{Kind: k, Role: k.Role()}
}

func (l Layer) String() string {
	return fmt.Sprintf("%s(%s)", l.Kind, l.Role)
}

var (
	// ErrUnrecognizedFormat is returned when the outermost suffix is unknown.
	ErrUnrecognizedFormat = errors.New("unrecognized format")
	// ErrInvalidChain is returned when a chain breaks the single-innermost-container rule.
	ErrInvalidChain = errors.New("invalid format chain")
	// ErrDecodeOnly is returned when an encode chain names a read-only format.
	ErrDecodeOnly = errors.New("format cannot be written")
)

// suffixes maps each recognized suffix (without the dot, lowercase) to the layers
// it stands for, outermost first. The compound aliases expand to two layers.
var suffixes = map[string][]CodecKind{
	"tar":  {Tar},
	"zip":  {Zip},
	"7z":   {SevenZip},
	"rar":  {Rar},
	"gz":   {Gzip},
	"bz":   {Bzip2},
	"bz2":  {Bzip2},
	"lz":   {Lzma},
	"lzma": {Lzma},
	"xz":   {Lzma},
	"zst":  {Zstd},
	"lz4":  {Lz4},
	"sz":   {Snap},

	"tgz":   {Gzip, Tar},
	"tbz":   {Bzip2, Tar},
	"tbz2":  {Bzip2, Tar},
	"tlz":   {Lzma, Tar},
	"txz":   {Lzma, Tar},
	"tlzma": {Lzma, Tar},
	"tzst":  {Zstd, Tar},
	"tlz4":  {Lz4, Tar},
	"tsz":   {Snap, Tar},
}

// legacySuffixes name the lzma kind in its pre-xz framing.
var legacySuffixes = map[string]bool{"lzma": true, "tlzma": true}

// preferred is the suffix written back by Chain.Suffix for each kind.
var preferred = map[CodecKind]string{
	Tar:      "tar",
	Zip:      "zip",
	SevenZip: "7z",
	Rar:      "rar",
	Gzip:     "gz",
	Bzip2:    "bz2",
	Lzma:     "xz",
	Zstd:     "zst",
	Lz4:      "lz4",
	Snap:     "sz",
}
