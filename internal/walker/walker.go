package walker

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/harrison/packrat/internal/filelock"
	"github.com/harrison/packrat/internal/models"
)

// ErrDuplicateName is returned by WalkAll when two inputs share a base name.
var ErrDuplicateName = errors.New("duplicate entry name")

// Options configures a walk.
type Options struct {
	// FollowSymlinks descends into linked directories and archives link
	// targets instead of the links themselves.
	FollowSymlinks bool
	// Exclude lists paths that are skipped together with everything below them.
	Exclude []string
}

type walker struct {
	opts     Options
	excluded map[string]bool
	exInfos  []os.FileInfo
	root     os.FileInfo
	entries  []models.FileEntry
}

// Walk returns the entries beneath root in lexicographic RelPath order. A plain
// file yields a single entry named after its base name.
func Walk(ctx context.Context, root string, opts Options) ([]models.FileEntry, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", root, err)
	}

	w := &walker{opts: opts, excluded: make(map[string]bool)}
	for _, ex := range opts.Exclude {
		exAbs, err := filepath.Abs(ex)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", ex, err)
		}
		w.excluded[exAbs] = true
		if info, err := os.Stat(exAbs); err == nil {
			w.exInfos = append(w.exInfos, info)
		}
	}

	linfo, err := os.Lstat(abs)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", root, err)
	}
	if w.isExcluded(abs, linfo) {
		return nil, nil
	}

	name := filepath.Base(abs)
	if linfo.Mode()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
		entry, err := linkEntry(abs, name, linfo)
		if err != nil {
			return nil, err
		}
		return []models.FileEntry{entry}, nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("error accessing %s: %w", root, err)
	}
	w.root = info

	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("error accessing %s: not a regular file or directory", root)
		}
		return []models.FileEntry{fileEntry(abs, name, info)}, nil
	}

	w.entries = append(w.entries, dirEntry(abs, name, info))
	if err := w.descend(ctx, abs, name, []os.FileInfo{info}); err != nil {
		return nil, err
	}

	// Sort entries for reproducible archives
	sort.Slice(w.entries, func(i, j int) bool {
		return w.entries[i].RelPath < w.entries[j].RelPath
	})
	return w.entries, nil
}

// WalkAll walks every root in order and concatenates the results. Two roots
// with the same base name would collide inside one container and are rejected.
func WalkAll(ctx context.Context, roots []string, opts Options) ([]models.FileEntry, error) {
	var all []models.FileEntry
	seen := make(map[string]string)
	for _, root := range roots {
		entries, err := Walk(ctx, root, opts)
		if err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			continue
		}
		top := entries[0].RelPath
		if prev, ok := seen[top]; ok {
			return nil, fmt.Errorf("%w: %s and %s both archive as %q", ErrDuplicateName, prev, root, top)
		}
		seen[top] = root
		all = append(all, entries...)
	}
	return all, nil
}

func (w *walker) descend(ctx context.Context, dir, rel string, ancestors []os.FileInfo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	children, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	for _, d := range children {
		if filelock.IsTemp(d.Name()) {
			// In-flight commits of concurrent jobs; they may vanish mid-walk.
			continue
		}
		p := filepath.Join(dir, d.Name())
		childRel := path.Join(rel, d.Name())

		linfo, err := os.Lstat(p)
		if err != nil {
			return fmt.Errorf("error accessing %s: %w", p, err)
		}
		if w.isExcluded(p, linfo) {
			continue
		}

		if linfo.Mode()&fs.ModeSymlink != 0 {
			if err := w.visitLink(ctx, p, childRel, linfo, ancestors); err != nil {
				return err
			}
			continue
		}

		switch {
		case linfo.IsDir():
			w.entries = append(w.entries, dirEntry(p, childRel, linfo))
			if err := w.descend(ctx, p, childRel, append(ancestors, linfo)); err != nil {
				return err
			}
		case linfo.Mode().IsRegular():
			w.entries = append(w.entries, fileEntry(p, childRel, linfo))
		default:
			// Sockets, devices and fifos have no archivable content.
		}
	}
	return nil
}

func (w *walker) visitLink(ctx context.Context, p, rel string, linfo os.FileInfo, ancestors []os.FileInfo) error {
	target, err := os.Stat(p)
	if err == nil && os.SameFile(target, w.root) {
		return nil
	}

	if !w.opts.FollowSymlinks || err != nil {
		// Dangling links are kept as links even when following.
		entry, err := linkEntry(p, rel, linfo)
		if err != nil {
			return err
		}
		w.entries = append(w.entries, entry)
		return nil
	}

	if w.isExcluded(p, target) {
		return nil
	}
	if !target.IsDir() {
		if target.Mode().IsRegular() {
			w.entries = append(w.entries, fileEntry(p, rel, target))
		}
		return nil
	}

	for _, a := range ancestors {
		if os.SameFile(a, target) {
			return nil
		}
	}
	w.entries = append(w.entries, dirEntry(p, rel, target))
	return w.descend(ctx, p, rel, append(ancestors, target))
}

func (w *walker) isExcluded(p string, info os.FileInfo) bool {
	if w.excluded[p] {
		return true
	}
	for _, ex := range w.exInfos {
		if os.SameFile(ex, info) {
			return true
		}
	}
	return false
}

func fileEntry(p, rel string, info os.FileInfo) models.FileEntry {
	return models.FileEntry{
		SourcePath: p,
		RelPath:    rel,
		Mode:       info.Mode().Perm(),
		ModTime:    info.ModTime(),
		Size:       info.Size(),
	}
}

func dirEntry(p, rel string, info os.FileInfo) models.FileEntry {
	return models.FileEntry{
		SourcePath: p,
		RelPath:    rel,
		IsDir:      true,
		Mode:       info.Mode().Perm(),
		ModTime:    info.ModTime(),
	}
}

func linkEntry(p, rel string, info os.FileInfo) (models.FileEntry, error) {
	target, err := os.Readlink(p)
	if err != nil {
		return models.FileEntry{}, fmt.Errorf("failed to read link %s: %w", p, err)
	}
	return models.FileEntry{
		SourcePath: p,
		RelPath:    rel,
		Mode:       fs.ModeSymlink | info.Mode().Perm(),
		ModTime:    info.ModTime(),
		LinkTarget: target,
	}, nil
}
