// Package walker expands top-level input paths into the ordered file lists
// that archive entries are built from and that extraction writes back.
//
// # Purpose
//
// The walker package is designed for:
//   - Turning a file or directory input into a flat list of models.FileEntry
//   - Reproducible entry order, so two runs over the same tree produce identical archives
//   - Safe recursion: no symlink cycles, no reading back the job's own output
//
// # Ordering
//
// Entries are sorted lexicographically by RelPath. The top-level input's own
// base name is the first path component of every entry ("photos",
// "photos/a.jpg", "photos/trip/b.jpg"), and directory entries are included so
// empty directories survive a round trip. A parent always sorts before its
// children.
//
// # Symbolic Links
//
// By default links are not followed; each becomes an entry carrying its
// LinkTarget. With Options.FollowSymlinks, links are resolved and linked
// directories are descended, except when the target is already an ancestor of
// the current directory (detected with os.SameFile, i.e. device and inode
// identity). In both modes a link that resolves to the walk root itself is
// dropped.
//
// # Exclusions
//
// Options.Exclude lists paths that are never yielded and never descended,
// typically the destination of the current job. Paths are matched by their
// absolute form and, when they exist, by file identity.
//
// # Usage Examples
//
// Walking a single input:
//
//	entries, err := walker.Walk(ctx, "photos", walker.Options{})
//	if err != nil {
//	    return err
//	}
//	for _, e := range entries {
//	    fmt.Println(e.RelPath)
//	}
//
// Walking several inputs for one archive while excluding the archive itself:
//
//	entries, err := walker.WalkAll(ctx, []string{"docs", "README.md"}, walker.Options{
//	    Exclude: []string{"docs/bundle.tar.gz"},
//	})
//
// # Errors
//
// Unreadable entries abort the walk with the underlying *fs.PathError wrapped
// in the returned error. There is no partial result.
package walker
