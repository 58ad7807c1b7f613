package format

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Chain is an ordered list of layers, outermost first.
type Chain []Layer

// maxSuffixParts is the largest number of dot-separated components a single
// table key spans.
var maxSuffixParts = 1

func init() {
	// Two-part keys decompose into the same layers as their parts; registering
	// them lets the matcher consume the longest recognized substring in one step.
	for _, inner := range []string{"gz", "bz", "bz2", "lz", "lzma", "xz", "zst", "lz4", "sz"} {
		suffixes["tar."+inner] = append(append([]CodecKind{}, suffixes[inner]...), Tar)
	}
	for key := range suffixes {
		if n := strings.Count(key, ".") + 1; n > maxSuffixParts {
			maxSuffixParts = n
		}
	}
}

// Parse derives the chain of the file name at path, stripping the longest
// recognized suffix from the right until none matches. The base name is what
// remains. A name without any extension yields an empty chain and no error;
// an unknown outermost extension yields ErrUnrecognizedFormat.
//
// When the suffixes name a container that is not innermost ("x.gz.tar"), the
// outermost container terminates the chain and the rest stays in the base name.
func Parse(path string) (Chain, string, error) {
	name := filepath.Base(path)
	matches, rest := strip(name)
	if len(matches) == 0 {
		if ext := extension(name); ext != "" {
			return nil, name, fmt.Errorf("%w: %q in %s", ErrUnrecognizedFormat, ext, name)
		}
		return nil, name, nil
	}

	var chain Chain
	for i, m := range matches {
		chain = append(chain, m.layers()...)
		if _, ok := chain.Container(); ok {
			// Inner suffixes belong to the name of the contained file.
			for j := len(matches) - 1; j > i; j-- {
				rest += matches[j].text
			}
			break
		}
	}
	return chain, rest, nil
}

// ParseOutput parses a requested output name for encoding and validates it: the
// chain must be non-empty, hold at most one container which is innermost, and
// name no read-only format.
func ParseOutput(path string) (Chain, string, error) {
	name := filepath.Base(path)
	matches, base := strip(name)
	if len(matches) == 0 {
		if ext := extension(name); ext != "" {
			return nil, name, fmt.Errorf("%w: %q in %s", ErrUnrecognizedFormat, ext, name)
		}
		return nil, name, fmt.Errorf("%w: %s has no format extension", ErrUnrecognizedFormat, name)
	}
	var chain Chain
	for _, m := range matches {
		chain = append(chain, m.layers()...)
	}
	if err := chain.Validate(); err != nil {
		return nil, base, fmt.Errorf("%s: %w", name, err)
	}
	for _, l := range chain {
		if l.Kind.DecodeOnly() {
			return nil, base, fmt.Errorf("%s: %w: %s", name, ErrDecodeOnly, l.Kind)
		}
	}
	return chain, base, nil
}

// Decompressible reports whether path has a non-empty, valid chain.
func Decompressible(path string) bool {
	chain, _, err := Parse(path)
	return err == nil && len(chain) > 0
}

// match is one suffix consumed by strip: the layers it stands for, outermost
// first, and the exact text (with its leading dot) it consumed.
type match struct {
	kinds []CodecKind
	text  string
}

func (m match) layers() Chain {
	legacy := legacySuffixes[strings.ToLower(strings.TrimPrefix(m.text, "."))]
	out := make(Chain, len(m.kinds))
	for i, k := range m.kinds {
		out[i] = layer(k)
		out[i].Legacy = legacy && k == Lzma
	}
	return out
}

// strip repeatedly removes the longest recognized suffix from name. Matches are
// returned outermost first along with the remaining stem.
func strip(name string) ([]match, string) {
	var matches []match
	rest := name
	for {
		kinds, n := matchSuffix(rest)
		if n == 0 {
			break
		}
		matches = append(matches, match{kinds: kinds, text: rest[len(rest)-n:]})
		rest = rest[:len(rest)-n]
	}
	return matches, rest
}

// matchSuffix returns the layers for the longest recognized suffix of name and
// the number of bytes (including the leading dot) it consumes. A suffix must
// leave a non-empty stem so ".gz" alone is a hidden file, not a gzip stream.
func matchSuffix(name string) ([]CodecKind, int) {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return nil, 0
	}
	for n := maxSuffixParts; n >= 1; n-- {
		if len(parts)-n < 1 {
			continue
		}
		stem := strings.Join(parts[:len(parts)-n], ".")
		if stem == "" {
			continue
		}
		key := strings.ToLower(strings.Join(parts[len(parts)-n:], "."))
		if kinds, ok := suffixes[key]; ok {
			return kinds, len(key) + 1
		}
	}
	return nil, 0
}

// extension returns the last extension of name without the dot, or "" when the
// name has none (hidden files like ".profile" have none).
func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i <= 0 || i == len(name)-1 {
		return ""
	}
	return name[i+1:]
}

// Validate checks the single-container-innermost invariant.
func (c Chain) Validate() error {
	if i := c.containerIndex(); i >= 0 && i != len(c)-1 {
		return fmt.Errorf("%w: container %s must be the innermost layer of %s", ErrInvalidChain, c[i].Kind, c)
	}
	count := 0
	for _, l := range c {
		if l.Role == RoleContainer {
			count++
		}
	}
	if count > 1 {
		return fmt.Errorf("%w: %s has %d container layers", ErrInvalidChain, c, count)
	}
	return nil
}

func (c Chain) containerIndex() int {
	for i, l := range c {
		if l.Role == RoleContainer {
			return i
		}
	}
	return -1
}

// Container returns the container layer, if the chain has one.
func (c Chain) Container() (Layer, bool) {
	if len(c) > 0 && c[len(c)-1].Role == RoleContainer {
		return c[len(c)-1], true
	}
	return Layer{}, false
}

// Streams returns the stream layers, outermost first.
func (c Chain) Streams() Chain {
	if _, ok := c.Container(); ok {
		return c[:len(c)-1]
	}
	return c
}

// Suffix renders the chain back to a filename suffix, e.g. ".tar.gz".
func (c Chain) Suffix() string {
	var sb strings.Builder
	for i := len(c) - 1; i >= 0; i-- {
		sb.WriteString(".")
		if c[i].Legacy {
			sb.WriteString("lzma")
			continue
		}
		sb.WriteString(preferred[c[i].Kind])
	}
	return sb.String()
}

func (c Chain) String() string {
	names := make([]string, len(c))
	for i, l := range c {
		names[i] = l.String()
	}
	return "[" + strings.Join(names, ", ") + "]"
}
