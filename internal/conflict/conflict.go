// Package conflict decides what happens when a destination path already
// exists. One Policy is shared by every worker of an operation so that an
// "overwrite all" answer, once given, applies everywhere.
package conflict

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/harrison/packrat/internal/format"
)

// ErrConflictAborted is returned when the user or policy chose Abort.
var ErrConflictAborted = errors.New("aborted on existing destination")

// Decision is the answer to a single conflict.
type Decision int

const (
	Skip Decision = iota
	Overwrite
	// OverwriteAll overwrites and stops prompting for the rest of the operation.
	OverwriteAll
	Rename
	Abort
)

var decisionNames = map[Decision]string{
	Skip:         "skip",
	Overwrite:    "overwrite",
	OverwriteAll: "overwrite-all",
	Rename:       "rename",
	Abort:        "abort",
}

func (d Decision) String() string {
	if s, ok := decisionNames[d]; ok {
		return s
	}
	return fmt.Sprintf("Decision(%d)", int(d))
}

// ParseDecision maps a policy name to a Decision.
func ParseDecision(s string) (Decision, error) {
	for d, name := range decisionNames {
		if strings.EqualFold(s, name) {
			return d, nil
		}
	}
	return Skip, fmt.Errorf("unknown conflict decision %q", s)
}

// Action is what the writer should do after resolution.
type Action int

const (
	Write Action = iota
	SkipWrite
)

// Outcome tells the writer whether to write and where.
type Outcome struct {
	Action Action
	// Path is the destination to write; it differs from the requested path
	// after a rename.
	Path string
}

// Resolver is consulted before every destination write.
type Resolver interface {
	Resolve(ctx context.Context, path string) (Outcome, error)
}

// Prompter supplies a decision for one conflicting path.
type Prompter interface {
	Prompt(ctx context.Context, path string) (Decision, error)
}

// Policy is the operation-scoped conflict state. All methods are
// goroutine-safe and resolutions are serialized, so at most one prompt is
// shown at a time.
type Policy struct {
	mu           sync.Mutex
	prompter     Prompter
	overwriteAll bool
	claimed      map[string]bool // destinations handed out during this operation
	counters     map[string]int  // requested path -> next rename number
	exists       func(path string) bool
}

// NewPolicy returns a policy that asks prompter about every conflict until an
// OverwriteAll answer makes overwriting sticky.
func NewPolicy(prompter Prompter) *Policy {
	return &Policy{
		prompter: prompter,
		claimed:  make(map[string]bool),
		counters: make(map[string]int),
		exists:   pathExists,
	}
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// OverwriteAll reports whether the sticky overwrite flag is set.
func (p *Policy) OverwriteAll() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overwriteAll
}

// Resolve decides the fate of a write to path. A path counts as conflicting
// when it exists on disk or was already handed out to another writer of this
// operation.
func (p *Policy) Resolve(ctx context.Context, path string) (Outcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.taken(path) {
		p.claimed[path] = true
		return Outcome{Action: Write, Path: path}, nil
	}
	if p.overwriteAll {
		return Outcome{Action: Write, Path: path}, nil
	}

	decision, err := p.prompter.Prompt(ctx, path)
	if err != nil {
		return Outcome{}, err
	}

	switch decision {
	case Skip:
		return Outcome{Action: SkipWrite, Path: path}, nil
	case Overwrite:
		return Outcome{Action: Write, Path: path}, nil
	case OverwriteAll:
		p.overwriteAll = true
		return Outcome{Action: Write, Path: path}, nil
	case Rename:
		renamed := p.rename(path)
		p.claimed[renamed] = true
		return Outcome{Action: Write, Path: renamed}, nil
	case Abort:
		return Outcome{}, fmt.Errorf("%w: %s", ErrConflictAborted, path)
	default:
		return Outcome{}, fmt.Errorf("unknown conflict decision %v", decision)
	}
}

func (p *Policy) taken(path string) bool {
	return p.claimed[path] || p.exists(path)
}

// rename finds the first free sibling stem_N<suffix>, where suffix is the
// recognized format suffix ("a.tar.gz" -> "a_1.tar.gz") or else the last
// extension. Callers hold p.mu.
func (p *Policy) rename(path string) string {
	dir := filepath.Dir(path)
	stem, suffix := splitName(filepath.Base(path))

	n := p.counters[path]
	if n == 0 {
		n = 1
	}
	for {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, suffix))
		n++
		if !p.taken(candidate) {
			p.counters[path] = n
			return candidate
		}
	}
}

func splitName(base string) (stem, suffix string) {
	if chain, rest, err := format.Parse(base); err == nil && len(chain) > 0 {
		return rest, base[len(rest):]
	}
	ext := filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	if stem == "" {
		return base, ""
	}
	return stem, ext
}
