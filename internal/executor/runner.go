package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/harrison/packrat/internal/archive"
	"github.com/harrison/packrat/internal/conflict"
	"github.com/harrison/packrat/internal/filelock"
	"github.com/harrison/packrat/internal/format"
	"github.com/harrison/packrat/internal/models"
	"github.com/harrison/packrat/internal/pipeline"
	"github.com/harrison/packrat/internal/walker"
)

// RunnerOptions tune how jobs touch the filesystem.
type RunnerOptions struct {
	FollowSymlinks bool
	// TempDir receives spool files for random-access containers; empty means
	// os.TempDir().
	TempDir string
}

// JobRunner executes one job end to end: walk the inputs, build the pipeline,
// resolve conflicts and commit every destination atomically.
type JobRunner struct {
	registry *pipeline.Registry
	resolver conflict.Resolver
	logger   Logger
	opts     RunnerOptions
}

// NewJobRunner creates a runner. The logger parameter is optional.
func NewJobRunner(registry *pipeline.Registry, resolver conflict.Resolver, logger Logger, opts RunnerOptions) *JobRunner {
	return &JobRunner{
		registry: registry,
		resolver: resolver,
		logger:   logger,
		opts:     opts,
	}
}

// jobRun is the mutable state of one Execute call. Entries within a job are
// processed sequentially, so only the byte counter is shared with codec
// goroutines.
type jobRun struct {
	*JobRunner
	ctx     context.Context
	job     models.Job
	current string
	written []string
	skipped []string
	bytes   atomic.Int64

	// extracted maps container entry names to the paths they were written to.
	extracted map[string]string
}

// Execute runs job and captures its outcome. Files committed before a
// failure stay on disk and are listed in Written.
func (r *JobRunner) Execute(ctx context.Context, job models.Job) models.JobResult {
	start := time.Now()
	run := &jobRun{JobRunner: r, ctx: ctx, job: job}

	var err error
	if job.Direction == models.Encode {
		err = run.encode()
	} else {
		err = run.decode()
	}

	result := models.JobResult{
		Job:      job,
		Written:  run.written,
		Skipped:  run.skipped,
		Bytes:    run.bytes.Load(),
		Duration: time.Since(start),
	}
	switch {
	case err != nil:
		result.Status = models.StatusFailed
		result.Path = run.current
		result.Err = NewJobError(job.ID, job.Name(), run.current, err)
	case len(run.written) == 0 && len(run.skipped) > 0:
		result.Status = models.StatusSkipped
	default:
		result.Status = models.StatusSucceeded
	}
	return result
}

func (run *jobRun) countBytes(n int64) {
	run.bytes.Add(n)
}

func (run *jobRun) encode() error {
	entries, err := walker.WalkAll(run.ctx, run.job.Inputs, walker.Options{
		FollowSymlinks: run.opts.FollowSymlinks,
		Exclude:        []string{run.job.Output},
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("%w: nothing to archive in %s", ErrAmbiguousOutput, strings.Join(run.job.Inputs, ", "))
	}

	p, err := pipeline.Build(run.job.Chain, models.Encode, run.registry)
	if err != nil {
		return err
	}
	p.OnBytes = run.countBytes

	run.current = run.job.Output
	outcome, err := run.resolver.Resolve(run.ctx, run.job.Output)
	if err != nil {
		return err
	}
	if outcome.Action == conflict.SkipWrite {
		run.skip(outcome.Path)
		return nil
	}

	run.current = outcome.Path
	err = filelock.LockAndCommit(outcome.Path, filelock.Options{Perm: 0644}, func(w io.Writer) error {
		return p.Encode(run.ctx, entries, w)
	})
	if err != nil {
		return err
	}
	run.wrote(outcome.Path)
	return nil
}

func (run *jobRun) decode() error {
	input := run.job.Inputs[0]
	run.current = input

	info, err := os.Stat(input)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return run.decodeTree(input, run.job.Output)
	}
	return run.decodeFile(input, run.job.Output)
}

// decodeTree decodes every decompressible file below root into dest, keeping
// each file's relative directory. Other files are ignored. When dest is root
// itself, every output lands next to its source file.
func (run *jobRun) decodeTree(root, dest string) error {
	inPlace := sameDir(root, dest)
	opts := walker.Options{FollowSymlinks: run.opts.FollowSymlinks}
	if !inPlace {
		// The walk is a snapshot taken before any write; only a destination
		// inside root could otherwise be read back.
		opts.Exclude = []string{dest}
	}
	entries, err := walker.Walk(run.ctx, root, opts)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if e.IsDir || e.IsSymlink() || !format.Decompressible(e.SourcePath) {
			continue
		}
		if err := run.ctx.Err(); err != nil {
			return err
		}
		outDir := filepath.Join(dest, filepath.FromSlash(path.Dir(e.RelPath)))
		if inPlace {
			outDir = filepath.Dir(e.SourcePath)
		}
		if err := run.decodeFile(e.SourcePath, outDir); err != nil {
			return err
		}
	}
	return nil
}

// sameDir reports whether a and b name the same existing directory.
func sameDir(a, b string) bool {
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}

func (run *jobRun) decodeFile(src, destDir string) error {
	run.current = src

	chain, base, err := format.Parse(src)
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return fmt.Errorf("%w: %s has no format extension", format.ErrUnrecognizedFormat, filepath.Base(src))
	}

	p, err := pipeline.Build(chain, models.Decode, run.registry)
	if err != nil {
		return err
	}
	p.OnBytes = run.countBytes

	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()

	source, err := pipeline.FileSource(f)
	if err != nil {
		return err
	}
	source.TempDir = run.opts.TempDir

	if p.HasContainer() {
		// Each archive unpacks into its own directory named after the archive.
		return p.Decode(run.ctx, source, run.extractTo(filepath.Join(destDir, base)))
	}

	info, err := f.Stat()
	if err != nil {
		return err
	}
	// Several stream jobs may decode to the same name ("a.gz" and "a.zst"), so
	// the output is written under its lock like an encode output.
	target := filepath.Join(destDir, base)
	return p.Decode(run.ctx, source, func(_ archive.Entry, r io.Reader) error {
		return run.commitFile(target, r, filelock.Options{Perm: info.Mode().Perm()}, filelock.LockAndWrite)
	})
}

// extractTo returns the sink that materializes container entries below dest.
func (run *jobRun) extractTo(dest string) pipeline.EntrySink {
	return func(e archive.Entry, r io.Reader) error {
		if err := run.ctx.Err(); err != nil {
			return err
		}

		target := filepath.Join(dest, filepath.FromSlash(e.Name))
		run.current = target
		if err := checkParents(dest, e.Name); err != nil {
			return err
		}

		switch {
		case e.IsDir:
			perm := e.Mode.Perm() | 0700
			if err := os.MkdirAll(target, perm); err != nil {
				return err
			}
			return nil
		case e.IsSymlink():
			return run.writeLink(target, e.LinkTarget)
		case e.HardLink != "":
			return run.copyLinked(target, e)
		default:
			written := len(run.written)
			if err := run.writeFile(target, r, filelock.Options{Perm: e.Mode.Perm(), ModTime: e.ModTime}); err != nil {
				return err
			}
			if len(run.written) > written {
				if run.extracted == nil {
					run.extracted = make(map[string]string)
				}
				run.extracted[e.Name] = run.written[len(run.written)-1]
			}
			return nil
		}
	}
}

// copyLinked materializes a hard link entry as a copy of the file its target
// entry was extracted to. A link whose target was not written is skipped.
func (run *jobRun) copyLinked(target string, e archive.Entry) error {
	src, ok := run.extracted[e.HardLink]
	if !ok {
		if run.logger != nil {
			run.logger.LogWarn(fmt.Sprintf("%s: hard link to %s skipped, target was not extracted", e.Name, e.HardLink))
		}
		run.skip(target)
		return nil
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return run.writeFile(target, f, filelock.Options{Perm: e.Mode.Perm(), ModTime: e.ModTime})
}

// checkParents rejects entries whose parent directories inside dest are
// symbolic links, so an archive cannot plant a link and then write through it.
func checkParents(dest, name string) error {
	dir := path.Dir(name)
	if dir == "." {
		return nil
	}
	prefix := ""
	for _, part := range strings.Split(dir, "/") {
		prefix = path.Join(prefix, part)
		info, err := os.Lstat(filepath.Join(dest, filepath.FromSlash(prefix)))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s passes through link %s", archive.ErrUnsafePath, name, prefix)
		}
	}
	return nil
}

func (run *jobRun) writeFile(target string, r io.Reader, opts filelock.Options) error {
	return run.commitFile(target, r, opts, filelock.AtomicWrite)
}

// commitFile resolves conflicts for target and writes r with write.
func (run *jobRun) commitFile(target string, r io.Reader, opts filelock.Options, write func(string, io.Reader, filelock.Options) (int64, error)) error {
	outcome, err := run.resolver.Resolve(run.ctx, target)
	if err != nil {
		return err
	}
	if outcome.Action == conflict.SkipWrite {
		run.skip(outcome.Path)
		return nil
	}

	run.current = outcome.Path
	if _, err := write(outcome.Path, r, opts); err != nil {
		return err
	}
	run.wrote(outcome.Path)
	return nil
}

func (run *jobRun) writeLink(target, linkTarget string) error {
	outcome, err := run.resolver.Resolve(run.ctx, target)
	if err != nil {
		return err
	}
	if outcome.Action == conflict.SkipWrite {
		run.skip(outcome.Path)
		return nil
	}

	run.current = outcome.Path
	if err := filelock.Symlink(linkTarget, outcome.Path); err != nil {
		return err
	}
	run.wrote(outcome.Path)
	return nil
}

func (run *jobRun) wrote(p string) {
	run.written = append(run.written, p)
	if run.logger != nil {
		run.logger.LogEntry(run.job, p, false)
	}
}

func (run *jobRun) skip(p string) {
	run.skipped = append(run.skipped, p)
	if run.logger != nil {
		run.logger.LogEntry(run.job, p, true)
	}
}
