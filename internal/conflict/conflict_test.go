package conflict

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedPrompter returns answers in order and counts calls.
type scriptedPrompter struct {
	mu      sync.Mutex
	answers []Decision
	calls   atomic.Int32
}

func (s *scriptedPrompter) Prompt(ctx context.Context, path string) (Decision, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.answers) == 0 {
		return Skip, errors.New("unexpected prompt for " + path)
	}
	d := s.answers[0]
	s.answers = s.answers[1:]
	return d, nil
}

func touch(t *testing.T, paths ...string) {
	t.Helper()
	for _, p := range paths {
		require.NoError(t, os.WriteFile(p, []byte("existing"), 0644))
	}
}

func TestResolveFreePathDoesNotPrompt(t *testing.T) {
	dir := t.TempDir()
	prompter := &scriptedPrompter{}
	policy := NewPolicy(prompter)

	out, err := policy.Resolve(context.Background(), filepath.Join(dir, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, Outcome{Action: Write, Path: filepath.Join(dir, "new.txt")}, out)
	assert.Zero(t, prompter.calls.Load())
}

func TestResolveDecisions(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		want     Outcome
		wantErr  error
	}{
		{name: "skip", decision: Skip, want: Outcome{Action: SkipWrite, Path: "a.txt"}},
		{name: "overwrite", decision: Overwrite, want: Outcome{Action: Write, Path: "a.txt"}},
		{name: "overwrite all", decision: OverwriteAll, want: Outcome{Action: Write, Path: "a.txt"}},
		{name: "rename", decision: Rename, want: Outcome{Action: Write, Path: "a_1.txt"}},
		{name: "abort", decision: Abort, wantErr: ErrConflictAborted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			target := filepath.Join(dir, "a.txt")
			touch(t, target)

			policy := NewPolicy(StaticPrompter{Decision: tt.decision})
			out, err := policy.Resolve(context.Background(), target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Action, out.Action)
			assert.Equal(t, filepath.Join(dir, tt.want.Path), out.Path)
		})
	}
}

func TestOverwriteAllIsSticky(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 32; i++ {
		p := filepath.Join(dir, "f"+strings.Repeat("x", i)+".txt")
		touch(t, p)
		paths = append(paths, p)
	}

	prompter := &scriptedPrompter{answers: []Decision{OverwriteAll}}
	policy := NewPolicy(prompter)

	out, err := policy.Resolve(context.Background(), paths[0])
	require.NoError(t, err)
	assert.Equal(t, Write, out.Action)
	assert.True(t, policy.OverwriteAll())

	var wg sync.WaitGroup
	for _, p := range paths[1:] {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			out, err := policy.Resolve(context.Background(), p)
			assert.NoError(t, err)
			assert.Equal(t, Outcome{Action: Write, Path: p}, out)
		}(p)
	}
	wg.Wait()

	assert.Equal(t, int32(1), prompter.calls.Load(), "only the first conflict may prompt")
}

func TestOverwriteAllFromConcurrentWorkers(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 16; i++ {
		p := filepath.Join(dir, "w"+strings.Repeat("y", i))
		touch(t, p)
		paths = append(paths, p)
	}

	// Whichever worker resolves first answers "all"; nobody else is asked.
	prompter := &scriptedPrompter{answers: []Decision{OverwriteAll}}
	policy := NewPolicy(prompter)

	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			_, err := policy.Resolve(context.Background(), p)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	assert.Equal(t, int32(1), prompter.calls.Load())
}

func TestRenameNumbering(t *testing.T) {
	dir := t.TempDir()
	touch(t,
		filepath.Join(dir, "a.tar.gz"),
		filepath.Join(dir, "a_1.tar.gz"),
		filepath.Join(dir, "notes.txt"),
		filepath.Join(dir, "README"),
		filepath.Join(dir, ".profile"),
	)

	policy := NewPolicy(StaticPrompter{Decision: Rename})
	tests := []struct {
		in   string
		want string
	}{
		{"a.tar.gz", "a_2.tar.gz"},
		{"a.tar.gz", "a_3.tar.gz"},
		{"notes.txt", "notes_1.txt"},
		{"README", "README_1"},
		{".profile", ".profile_1"},
	}
	for _, tt := range tests {
		out, err := policy.Resolve(context.Background(), filepath.Join(dir, tt.in))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, tt.want), out.Path, tt.in)
	}
}

func TestConcurrentRenamesNeverCollide(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "data.zip")
	touch(t, target)

	policy := NewPolicy(StaticPrompter{Decision: Rename})

	const workers = 20
	results := make(chan string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := policy.Resolve(context.Background(), target)
			assert.NoError(t, err)
			results <- out.Path
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[string]bool)
	for p := range results {
		assert.False(t, seen[p], "duplicate rename %s", p)
		seen[p] = true
		assert.True(t, strings.HasSuffix(p, ".zip"))
	}
	assert.Len(t, seen, workers)
}

func TestClaimedPathConflictsWithinOperation(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "out.txt")

	prompter := &scriptedPrompter{answers: []Decision{Skip}}
	policy := NewPolicy(prompter)

	first, err := policy.Resolve(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, Write, first.Action)

	// Nothing on disk yet, but another writer already owns the path.
	second, err := policy.Resolve(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, SkipWrite, second.Action)
	assert.Equal(t, int32(1), prompter.calls.Load())
}

func TestTerminalPrompter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Decision
	}{
		{"yes", "y\n", Overwrite},
		{"no", "no\n", Skip},
		{"all upper", "A\n", OverwriteAll},
		{"rename", "r\n", Rename},
		{"quit", "q\n", Abort},
		{"reprompt", "maybe\n\ny\n", Overwrite},
		{"eof", "", Skip},
		{"no trailing newline", "a", OverwriteAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewTerminalPrompter(strings.NewReader(tt.input), &out)
			got, err := p.Prompt(context.Background(), "/tmp/x.txt")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "/tmp/x.txt already exists")
		})
	}
}

// countingReader counts Read calls.
type countingReader struct {
	reads atomic.Int32
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads.Add(1)
	return copy(p, "y\n"), nil
}

func TestTerminalPrompterCancelledContextDoesNotRead(t *testing.T) {
	in := &countingReader{}
	p := NewTerminalPrompter(in, &bytes.Buffer{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		_, err := p.Prompt(ctx, "/tmp/x.txt")
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, int32(0), in.reads.Load())
}

func TestTerminalPrompterKeepsAnswerAfterCancellation(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewTerminalPrompter(pr, &bytes.Buffer{})

	// The first question is abandoned while the reader waits for input.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Prompt(ctx, "/tmp/a.txt")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	go func() {
		pw.Write([]byte("r\n"))
		pw.Write([]byte("q\n"))
	}()

	got, err := p.Prompt(context.Background(), "/tmp/b.txt")
	require.NoError(t, err)
	assert.Equal(t, Rename, got, "the answer typed after the cancel goes to the next question")

	got, err = p.Prompt(context.Background(), "/tmp/c.txt")
	require.NoError(t, err)
	assert.Equal(t, Abort, got)
}

func TestNewPrompter(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()

	p, err := NewPrompter("ask", f, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, StaticPrompter{Decision: Skip}, p, "a regular file is not a terminal")

	p, err = NewPrompter("overwrite", f, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, StaticPrompter{Decision: Overwrite}, p)

	_, err = NewPrompter("sometimes", f, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseDecision(t *testing.T) {
	for d, name := range decisionNames {
		got, err := ParseDecision(strings.ToUpper(name))
		require.NoError(t, err)
		assert.Equal(t, d, got)
		assert.Equal(t, name, d.String())
	}
	_, err := ParseDecision("ask")
	assert.Error(t, err)
}
